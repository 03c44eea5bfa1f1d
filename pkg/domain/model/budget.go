package model

import "maps"

// TokenBudget is a mutable ledger of tokens allocated against a fixed total.
// Used always equals the sum of Allocations.
type TokenBudget struct {
	Total       int
	Used        int
	Allocations map[string]int
}

// NewTokenBudget creates an empty budget with the given total
func NewTokenBudget(total int) *TokenBudget {
	return &TokenBudget{
		Total:       total,
		Allocations: make(map[string]int),
	}
}

// Allocate charges tokens to category. It returns false and leaves the budget
// unchanged if the allocation would exceed Total.
func (b *TokenBudget) Allocate(tokens int, category string) bool {
	if tokens < 0 || b.Used+tokens > b.Total {
		return false
	}
	if b.Allocations == nil {
		b.Allocations = make(map[string]int)
	}
	b.Allocations[category] += tokens
	b.Used += tokens
	return true
}

// Reserve sets aside tokens under the reserved category
func (b *TokenBudget) Reserve(tokens int) bool {
	return b.Allocate(tokens, "reserved")
}

// Release reverses a prior allocation. Releasing more than was allocated releases what exists.
func (b *TokenBudget) Release(tokens int, category string) {
	current, ok := b.Allocations[category]
	if !ok || tokens <= 0 {
		return
	}
	if tokens > current {
		tokens = current
	}
	current -= tokens
	if current == 0 {
		delete(b.Allocations, category)
	} else {
		b.Allocations[category] = current
	}
	b.Used -= tokens
}

// Remaining returns the tokens still available
func (b *TokenBudget) Remaining() int {
	return b.Total - b.Used
}

// Utilization returns Used as a percentage of Total
func (b *TokenBudget) Utilization() float64 {
	if b.Total <= 0 {
		return 0
	}
	return float64(b.Used) / float64(b.Total) * 100
}

// Snapshot returns a copy of the allocations
func (b *TokenBudget) Snapshot() map[string]int {
	return maps.Clone(b.Allocations)
}
