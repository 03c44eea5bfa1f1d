package model_test

import (
	"math"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/domain/types"
)

func TestContextItem_Priority(t *testing.T) {
	item := &model.ContextItem{
		Type:           types.ItemTypeNote,
		RelevanceScore: 0.8,
		RecencyScore:   0.5,
	}
	want := 0.8*0.5 + 0.5*0.2 + types.ItemTypeNote.Weight()*0.3
	gt.Bool(t, math.Abs(item.Priority()-want) < 1e-9).True()

	item.Metadata.IsRequired = true
	gt.Bool(t, math.Abs(item.Priority()-want*2) < 1e-9).True()
}

func TestContextItem_Truncatable(t *testing.T) {
	note := &model.ContextItem{Type: types.ItemTypeNote, Metadata: model.ContextItemMetadata{CanTruncate: true}}
	gt.Bool(t, note.Truncatable()).True()

	code := &model.ContextItem{Type: types.ItemTypeCode, Metadata: model.ContextItemMetadata{CanTruncate: true}}
	gt.Bool(t, code.Truncatable()).False()

	pinned := &model.ContextItem{Type: types.ItemTypeNote}
	gt.Bool(t, pinned.Truncatable()).False()
}
