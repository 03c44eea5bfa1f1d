package types

// RelevanceTier is a coarse display bucket derived from a relevance score
type RelevanceTier string

const (
	RelevanceTierHigh    RelevanceTier = "high"
	RelevanceTierMedium  RelevanceTier = "medium"
	RelevanceTierLow     RelevanceTier = "low"
	RelevanceTierMinimal RelevanceTier = "minimal"
)

// TierOf maps a score in [0,1] to its tier
func TierOf(score float64) RelevanceTier {
	switch {
	case score >= 0.75:
		return RelevanceTierHigh
	case score >= 0.5:
		return RelevanceTierMedium
	case score >= 0.25:
		return RelevanceTierLow
	default:
		return RelevanceTierMinimal
	}
}

// String returns the string representation of the tier
func (t RelevanceTier) String() string {
	return string(t)
}
