package model

import "github.com/secmon-lab/recall/pkg/domain/types"

// RelevanceScore is the weighted breakdown produced by the relevance scorer
type RelevanceScore struct {
	Total       float64 `json:"total" yaml:"total"`
	Semantic    float64 `json:"semantic" yaml:"semantic"`
	Recency     float64 `json:"recency" yaml:"recency"`
	Frequency   float64 `json:"frequency" yaml:"frequency"`
	CoAccess    float64 `json:"co_access" yaml:"co_access"`
	Prediction  float64 `json:"prediction" yaml:"prediction"`
	TypeMatch   float64 `json:"type_match" yaml:"type_match"`
	Contextual  float64 `json:"contextual" yaml:"contextual"`
	Explanation string  `json:"explanation" yaml:"explanation"`
}

// Tier returns the display bucket of the total score
func (s *RelevanceScore) Tier() types.RelevanceTier {
	return types.TierOf(s.Total)
}
