// Package scan holds the brute-force similarity scan shared by the local backends.
package scan

import (
	"slices"
	"sort"

	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/service/embedding"
)

// Matches reports whether doc passes the source and conversation filters
func Matches(doc *model.Document, filter model.SearchFilter) bool {
	if len(filter.Sources) > 0 && !slices.Contains(filter.Sources, doc.Source) {
		return false
	}
	if filter.ConversationID != "" && doc.Metadata.ConversationID != filter.ConversationID {
		return false
	}
	return true
}

// Ranker accumulates candidates of one scan
type Ranker struct {
	query   []float32
	filter  model.SearchFilter
	results []*model.ScoredDocument
}

// NewRanker creates a ranker for one query
func NewRanker(query []float32, filter model.SearchFilter) *Ranker {
	return &Ranker{query: query, filter: filter}
}

// Add scores doc and keeps it if it passes the filters and the similarity floor.
// Documents whose embedding length differs from the query are skipped.
func (r *Ranker) Add(doc *model.Document) {
	if !Matches(doc, r.filter) || len(doc.Embedding) != len(r.query) {
		return
	}
	sim := embedding.CosineSimilarity(r.query, doc.Embedding)
	if sim < r.filter.MinSimilarity {
		return
	}
	r.results = append(r.results, &model.ScoredDocument{Document: doc, Similarity: sim})
}

// Results returns candidates sorted by descending similarity, ties broken by ID, cut to the limit
func (r *Ranker) Results() []*model.ScoredDocument {
	sort.SliceStable(r.results, func(i, j int) bool {
		if r.results[i].Similarity != r.results[j].Similarity {
			return r.results[i].Similarity > r.results[j].Similarity
		}
		return r.results[i].Document.ID < r.results[j].Document.ID
	})

	if r.filter.Limit > 0 && len(r.results) > r.filter.Limit {
		r.results = r.results[:r.filter.Limit]
	}
	if r.results == nil {
		return []*model.ScoredDocument{}
	}
	return r.results
}
