package token_test

import (
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/recall/pkg/service/token"
)

func TestCount(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{name: "empty", text: "", want: 0},
		{name: "short word", text: "fox", want: 1},
		{name: "common word", text: "the", want: 1},
		{name: "long common word", text: "because", want: 2},
		{name: "long word", text: "internationalization", want: 5},
		{name: "punctuation adds", text: "Sentence one.", want: 4},
		{name: "punctuation only", text: "...", want: 3},
		{name: "newline adds", text: "a\nb", want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gt.Value(t, token.Count(tt.text)).Equal(tt.want)
		})
	}
}

func TestCount_Monotonic(t *testing.T) {
	for _, unit := range []string{"a", "word ", "x.", "\n"} {
		prev := 0
		for n := 1; n <= 60; n++ {
			c := token.Count(strings.Repeat(unit, n))
			gt.Bool(t, c >= prev).True()
			prev = c
		}
	}
}

func TestCount_MonotonicPrefixes(t *testing.T) {
	words := []string{"because", "through", "between", "should", "before", "internationalization"}
	for _, w := range words {
		prev := 0
		for i := 1; i <= len(w); i++ {
			c := token.Count(w[:i])
			gt.Bool(t, c >= prev).True()
			prev = c
		}
		gt.Value(t, token.Count(w)).Equal((len(w) + 3) / 4)
	}
}

func TestTruncateToFit(t *testing.T) {
	t.Run("fits unchanged", func(t *testing.T) {
		gt.Value(t, token.TruncateToFit("short text", 100, true)).Equal("short text")
	})

	t.Run("sentence boundary", func(t *testing.T) {
		src := "Sentence one. Sentence two. Sentence three."
		budget := token.Count("Sentence one.")

		got := token.TruncateToFit(src, budget, false)
		gt.Value(t, got).Equal("Sentence one.")
		gt.Bool(t, token.Count(got) <= budget).True()
	})

	t.Run("word boundary", func(t *testing.T) {
		got := token.TruncateToFit("alpha bravo charlie delta echo", 5, true)
		gt.Value(t, got).Equal("alpha bravo")
	})

	t.Run("word boundary with ellipsis", func(t *testing.T) {
		got := token.TruncateToFit("aa bb cc ddddddddddddddddddddddd", 7, true)
		gt.Value(t, got).Equal("aa bb cc...")
		gt.Bool(t, token.Count(got) <= 7).True()
	})

	t.Run("character cut", func(t *testing.T) {
		got := token.TruncateToFit("abcdefghijklmnopqrstuvwxyz", 3, false)
		gt.Value(t, got).Equal("abcdefghijkl")
	})

	t.Run("zero budget", func(t *testing.T) {
		gt.Value(t, token.TruncateToFit("anything at all", 0, true)).Equal("")
	})

	t.Run("never over budget", func(t *testing.T) {
		src := strings.Repeat("The optimizer keeps items under budget. ", 40)
		for budget := 1; budget < 200; budget += 7 {
			got := token.TruncateToFit(src, budget, true)
			gt.Bool(t, token.Count(got) <= budget).True()
		}
	})
}
