package text_test

import (
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/recall/pkg/service/text"
)

func TestTokenize(t *testing.T) {
	gt.Value(t, text.Tokenize("Hello, World! foo_bar 42")).Equal([]string{"hello", "world", "foo", "bar", "42"})
	gt.Array(t, text.Tokenize("  ...  ")).Length(0)
}

func TestKeywords(t *testing.T) {
	got := text.Keywords("How do I configure the Firestore vector index for the index?")
	gt.Value(t, got).Equal([]string{"configure", "firestore", "vector", "index"})
}

func TestIsStopword(t *testing.T) {
	gt.Bool(t, text.IsStopword("The")).True()
	gt.Bool(t, text.IsStopword("firestore")).False()
}

func TestCountMatches(t *testing.T) {
	content := "Configure the Firestore vector index"
	gt.Value(t, text.CountMatches(content, []string{"firestore", "index", "sqlite"})).Equal(2)
	gt.Value(t, text.CountMatches(content, nil)).Equal(0)
}

func TestSplit(t *testing.T) {
	t.Run("short text is one chunk", func(t *testing.T) {
		chunks := text.Split("short text", 100, 20)
		gt.Array(t, chunks).Length(1)
		gt.Value(t, chunks[0].Total).Equal(1)
		gt.Value(t, chunks[0].Content).Equal("short text")
	})

	t.Run("long text overlaps", func(t *testing.T) {
		src := strings.Repeat("abcdefghij ", 50)
		chunks := text.Split(src, 100, 20)

		gt.Number(t, len(chunks)).GreaterOrEqual(6)
		for i, c := range chunks {
			gt.Value(t, c.Index).Equal(i)
			gt.Value(t, c.Total).Equal(len(chunks))
			gt.Bool(t, len([]rune(c.Content)) <= 100).True()
		}
		for i := 1; i < len(chunks); i++ {
			gt.Bool(t, chunks[i].Start < chunks[i-1].Start+100).True()
		}
	})

	t.Run("invalid overlap is ignored", func(t *testing.T) {
		src := strings.Repeat("x", 250)
		chunks := text.Split(src, 100, 100)
		gt.Array(t, chunks).Length(3)
	})
}
