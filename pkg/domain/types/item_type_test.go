package types_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/recall/pkg/domain/types"
)

func TestItemType_Weight(t *testing.T) {
	for _, it := range types.AllItemTypes() {
		w := it.Weight()
		gt.Number(t, w).GreaterOrEqual(0.0)
		gt.Bool(t, w <= 1.0).True()
	}
	gt.Value(t, types.ItemTypeSystem.Weight()).Equal(1.0)
}

func TestItemType_CanTruncate(t *testing.T) {
	gt.Bool(t, types.ItemTypeSystem.CanTruncate()).False()
	gt.Bool(t, types.ItemTypeCode.CanTruncate()).False()
	gt.Bool(t, types.ItemTypeNote.CanTruncate()).True()
	gt.Bool(t, types.ItemTypeMessage.CanTruncate()).True()
}

func TestItemType_Category(t *testing.T) {
	gt.Value(t, types.ItemTypeFile.Category()).Equal("code")
	gt.Value(t, types.ItemTypeCode.Category()).Equal("code")
	gt.Value(t, types.ItemTypeNote.Category()).Equal("document")
	gt.Value(t, types.ItemTypeMessage.Category()).Equal("conversation")
}

func TestParseItemType(t *testing.T) {
	it, err := types.ParseItemType("note")
	gt.NoError(t, err).Required()
	gt.Value(t, it).Equal(types.ItemTypeNote)

	_, err = types.ParseItemType("bogus")
	gt.Error(t, err)
}

func TestTierOf(t *testing.T) {
	gt.Value(t, types.TierOf(0.75)).Equal(types.RelevanceTierHigh)
	gt.Value(t, types.TierOf(0.5)).Equal(types.RelevanceTierMedium)
	gt.Value(t, types.TierOf(0.25)).Equal(types.RelevanceTierLow)
	gt.Value(t, types.TierOf(0.0)).Equal(types.RelevanceTierMinimal)
}
