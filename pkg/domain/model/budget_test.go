package model_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/recall/pkg/domain/model"
)

func TestTokenBudget_Allocate(t *testing.T) {
	b := model.NewTokenBudget(100)

	gt.Bool(t, b.Allocate(60, "system")).True()
	gt.Bool(t, b.Allocate(30, "file")).True()
	gt.Value(t, b.Used).Equal(90)
	gt.Value(t, b.Remaining()).Equal(10)

	t.Run("overflow fails without mutation", func(t *testing.T) {
		gt.Bool(t, b.Allocate(11, "note")).False()
		gt.Value(t, b.Used).Equal(90)
		_, exists := b.Allocations["note"]
		gt.Bool(t, exists).False()
	})

	t.Run("exact fit succeeds", func(t *testing.T) {
		gt.Bool(t, b.Reserve(10)).True()
		gt.Value(t, b.Remaining()).Equal(0)
		gt.Value(t, b.Utilization()).Equal(100.0)
	})

	t.Run("used equals sum of allocations", func(t *testing.T) {
		sum := 0
		for _, v := range b.Allocations {
			sum += v
		}
		gt.Value(t, b.Used).Equal(sum)
	})
}

func TestTokenBudget_Release(t *testing.T) {
	b := model.NewTokenBudget(50)
	gt.Bool(t, b.Allocate(20, "file")).True()
	gt.Bool(t, b.Allocate(10, "note")).True()

	b.Release(20, "file")
	gt.Value(t, b.Used).Equal(10)
	gt.Value(t, len(b.Allocations)).Equal(1)

	b.Release(100, "note")
	gt.Value(t, b.Used).Equal(0)

	b.Release(5, "unknown")
	gt.Value(t, b.Used).Equal(0)
}

func TestTokenBudget_NegativeAllocation(t *testing.T) {
	b := model.NewTokenBudget(10)
	gt.Bool(t, b.Allocate(-1, "file")).False()
	gt.Value(t, b.Used).Equal(0)
}
