package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"golang.org/x/sync/errgroup"
)

// Embedder maps text to a fixed-length L2-normalised vector
type Embedder interface {
	Embed(text string) []float32
	Dimension() int
}

const (
	wordWeight    = 1.0
	bigramWeight  = 0.5
	trigramWeight = 0.5
)

// HashEmbedder is a deterministic feature-hashing embedder. Lower-cased words, word
// bigrams and character trigrams of each word are hashed into signed buckets.
// It makes no network calls and never fails.
type HashEmbedder struct {
	dim int
}

var _ Embedder = &HashEmbedder{}

// Option configures HashEmbedder
type Option func(*HashEmbedder)

// WithDimension overrides the vector length. Stores reject embeddings whose length
// differs from model.EmbeddingDimension, so this is for standalone use only.
func WithDimension(dim int) Option {
	return func(e *HashEmbedder) {
		if dim > 0 {
			e.dim = dim
		}
	}
}

// New creates a HashEmbedder producing model.EmbeddingDimension vectors
func New(opts ...Option) *HashEmbedder {
	e := &HashEmbedder{dim: model.EmbeddingDimension}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Dimension returns the vector length
func (e *HashEmbedder) Dimension() int {
	return e.dim
}

// Embed returns the unit vector of text. Text without any word yields the zero vector.
func (e *HashEmbedder) Embed(text string) []float32 {
	acc := make([]float64, e.dim)
	words := Words(text)

	for i, w := range words {
		e.add(acc, w, wordWeight)

		padded := []rune("#" + w + "#")
		for j := 0; j+3 <= len(padded); j++ {
			e.add(acc, string(padded[j:j+3]), trigramWeight)
		}

		if i > 0 {
			e.add(acc, words[i-1]+" "+w, bigramWeight)
		}
	}

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	vec := make([]float32, e.dim)
	if norm == 0 {
		return vec
	}
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec
}

func (e *HashEmbedder) add(acc []float64, feature string, weight float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()

	idx := ((sum >> 32) ^ (sum & 0xffffffff)) % uint64(e.dim)
	if (sum>>31)&1 == 1 {
		weight = -weight
	}
	acc[idx] += weight
}

// Words splits text into lower-cased runs of letters and digits
func Words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// EmbedBatch embeds texts concurrently. Results keep the order of texts.
func EmbedBatch(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(8)
	for i, text := range texts {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = e.Embed(text)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, goerr.Wrap(err, "failed to embed batch", goerr.V("count", len(texts)))
	}

	return out, nil
}

// CosineSimilarity returns the cosine of the angle between a and b, clamped to [-1,1].
// Mismatched lengths, empty vectors and zero vectors yield 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}

	return max(-1, min(1, dot/denom))
}

// Magnitude returns the L2 norm of v
func Magnitude(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
