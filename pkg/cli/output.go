package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/secmon-lab/recall/pkg/domain/model"
)

var (
	scoreColor  = color.New(color.FgGreen, color.Bold)
	idColor     = color.New(color.FgCyan)
	sourceColor = color.New(color.FgYellow)
	dimColor    = color.New(color.Faint)
)

const previewLength = 160

func preview(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	runes := []rune(content)
	if len(runes) <= previewLength {
		return content
	}
	return string(runes[:previewLength]) + "..."
}

func printSearchResults(w io.Writer, results []*model.SearchResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, dimColor.Sprint("no results"))
		return
	}

	for i, r := range results {
		title := r.Document.Metadata.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(w, "%2d. %s %s %s %s\n",
			i+1,
			scoreColor.Sprintf("%.3f", r.Score),
			idColor.Sprint(r.Document.ID),
			sourceColor.Sprint(r.Document.Source),
			title,
		)

		var boosts []string
		if r.RecencyBoost > 0 {
			boosts = append(boosts, fmt.Sprintf("recency +%.2f", r.RecencyBoost))
		}
		if r.TopicBoost > 0 {
			boosts = append(boosts, fmt.Sprintf("topic +%.2f", r.TopicBoost))
		}
		if r.KeywordHits > 0 {
			boosts = append(boosts, fmt.Sprintf("keywords %d +%.2f", r.KeywordHits, r.KeywordBoost))
		}
		detail := fmt.Sprintf("similarity %.3f", r.Similarity)
		if len(boosts) > 0 {
			detail += ", " + strings.Join(boosts, ", ")
		}
		fmt.Fprintf(w, "    %s\n    %s\n", dimColor.Sprint(detail), preview(r.Document.Content))
	}
}

func printUsageMatches(w io.Writer, matches []*model.UsageMatch) {
	if len(matches) == 0 {
		fmt.Fprintln(w, dimColor.Sprint("no results"))
		return
	}

	for i, m := range matches {
		fmt.Fprintf(w, "%2d. %s %s %s\n",
			i+1,
			scoreColor.Sprintf("%.3f", m.Score()),
			idColor.Sprint(m.Entry.ID),
			sourceColor.Sprint(m.Entry.FileType),
		)
		fmt.Fprintf(w, "    %s\n", dimColor.Sprintf("similarity %.3f, boost +%.2f, accessed %d times in %d conversations",
			m.Similarity, m.RelevanceBoost, m.Entry.AccessCount, len(m.Entry.ConversationIDs)))
	}
}
