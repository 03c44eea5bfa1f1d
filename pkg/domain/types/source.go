package types

import "fmt"

// Source represents where a stored document originated
type Source string

const (
	SourceMessage      Source = "message"
	SourceTheme        Source = "theme"
	SourceNote         Source = "note"
	SourceFile         Source = "file"
	SourceCode         Source = "code"
	SourceSearchResult Source = "search_result"
	SourceTask         Source = "task"
	SourceSummary      Source = "summary"
)

// AllSources returns all valid sources
func AllSources() []Source {
	return []Source{
		SourceMessage,
		SourceTheme,
		SourceNote,
		SourceFile,
		SourceCode,
		SourceSearchResult,
		SourceTask,
		SourceSummary,
	}
}

// IsValid checks if the source is valid
func (s Source) IsValid() bool {
	switch s {
	case SourceMessage,
		SourceTheme,
		SourceNote,
		SourceFile,
		SourceCode,
		SourceSearchResult,
		SourceTask,
		SourceSummary:
		return true
	default:
		return false
	}
}

// String returns the string representation of the source
func (s Source) String() string {
	return string(s)
}

// ItemType maps a document source to the context item type used during optimization
func (s Source) ItemType() ItemType {
	switch s {
	case SourceMessage:
		return ItemTypeMessage
	case SourceTheme:
		return ItemTypeTheme
	case SourceNote:
		return ItemTypeNote
	case SourceFile:
		return ItemTypeFile
	case SourceCode:
		return ItemTypeCode
	case SourceTask:
		return ItemTypeTask
	case SourceSummary:
		return ItemTypeSummary
	default:
		return ItemTypeSearchResult
	}
}

// ParseSource parses a string into a Source. "search-result" is accepted as an alias.
func ParseSource(s string) (Source, error) {
	if s == "search-result" {
		return SourceSearchResult, nil
	}
	source := Source(s)
	if !source.IsValid() {
		return "", fmt.Errorf("invalid source: %s", s)
	}
	return source, nil
}
