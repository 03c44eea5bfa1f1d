package embedding_test

import (
	"context"
	"math"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/service/embedding"
)

func TestEmbed_Deterministic(t *testing.T) {
	e := embedding.New()

	a := e.Embed("The quick brown fox jumps over the lazy dog")
	b := e.Embed("The quick brown fox jumps over the lazy dog")
	c := e.Embed("Quarterly revenue report for the finance team")

	gt.Array(t, a).Length(model.EmbeddingDimension)
	gt.Value(t, a).Equal(b)
	gt.Value(t, a).NotEqual(c)
}

func TestEmbed_Normalized(t *testing.T) {
	e := embedding.New()

	for _, text := range []string{
		"hello",
		"The quick brown fox",
		"func main() { fmt.Println(\"hi\") }",
		"日本語のテキスト",
	} {
		t.Run(text, func(t *testing.T) {
			mag := embedding.Magnitude(e.Embed(text))
			gt.Bool(t, math.Abs(mag-1.0) < 0.01).True()
		})
	}
}

func TestEmbed_EmptyTextIsZeroVector(t *testing.T) {
	e := embedding.New()

	for _, text := range []string{"", "   ", "!!! ..."} {
		v := e.Embed(text)
		gt.Array(t, v).Length(model.EmbeddingDimension)
		gt.Value(t, embedding.Magnitude(v)).Equal(0.0)
	}
}

func TestEmbed_CaseInsensitive(t *testing.T) {
	e := embedding.New()
	gt.Value(t, e.Embed("Brown FOX")).Equal(e.Embed("brown fox"))
}

func TestWithDimension(t *testing.T) {
	e := embedding.New(embedding.WithDimension(64))
	gt.Value(t, e.Dimension()).Equal(64)
	gt.Array(t, e.Embed("hello world")).Length(64)

	e = embedding.New(embedding.WithDimension(0))
	gt.Value(t, e.Dimension()).Equal(model.EmbeddingDimension)
}

func TestCosineSimilarity(t *testing.T) {
	e := embedding.New()
	a := e.Embed("security incident response")
	b := e.Embed("cooking italian pasta")

	t.Run("self similarity is one", func(t *testing.T) {
		gt.Bool(t, math.Abs(embedding.CosineSimilarity(a, a)-1.0) < 1e-6).True()
	})

	t.Run("bounded", func(t *testing.T) {
		s := embedding.CosineSimilarity(a, b)
		gt.Bool(t, s >= -1 && s <= 1).True()
	})

	t.Run("opposite vectors", func(t *testing.T) {
		neg := make([]float32, len(a))
		for i := range a {
			neg[i] = -a[i]
		}
		gt.Bool(t, math.Abs(embedding.CosineSimilarity(a, neg)+1.0) < 1e-6).True()
	})

	t.Run("mismatched dimension is zero", func(t *testing.T) {
		gt.Value(t, embedding.CosineSimilarity(a, []float32{1, 0, 0})).Equal(0.0)
	})

	t.Run("empty and zero vectors are zero", func(t *testing.T) {
		gt.Value(t, embedding.CosineSimilarity(nil, nil)).Equal(0.0)
		zero := make([]float32, len(a))
		gt.Value(t, embedding.CosineSimilarity(a, zero)).Equal(0.0)
	})
}

func TestSharedWordsRankHigher(t *testing.T) {
	e := embedding.New()
	q := e.Embed("fast brown animal")

	fox := embedding.CosineSimilarity(q, e.Embed("The quick brown fox"))
	pasta := embedding.CosineSimilarity(q, e.Embed("Cooking Italian pasta"))
	gt.Bool(t, fox > pasta).True()
}

func TestEmbedBatch(t *testing.T) {
	e := embedding.New()
	texts := []string{"alpha", "beta", "gamma", "delta"}

	vecs, err := embedding.EmbedBatch(context.Background(), e, texts)
	gt.NoError(t, err).Required()
	gt.Array(t, vecs).Length(len(texts))
	for i, text := range texts {
		gt.Value(t, vecs[i]).Equal(e.Embed(text))
	}

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := embedding.EmbedBatch(ctx, e, texts)
		gt.Error(t, err)
	})
}
