package types

import "fmt"

// ItemType classifies a context item. Each type carries a priority weight and a truncation policy.
type ItemType string

const (
	ItemTypeSystem       ItemType = "system"
	ItemTypeSummary      ItemType = "summary"
	ItemTypeMessage      ItemType = "message"
	ItemTypeTheme        ItemType = "theme"
	ItemTypeNote         ItemType = "note"
	ItemTypeSearchResult ItemType = "search_result"
	ItemTypeFile         ItemType = "file"
	ItemTypeCode         ItemType = "code"
	ItemTypeTask         ItemType = "task"
)

// AllItemTypes returns all valid item types
func AllItemTypes() []ItemType {
	return []ItemType{
		ItemTypeSystem,
		ItemTypeSummary,
		ItemTypeMessage,
		ItemTypeTheme,
		ItemTypeNote,
		ItemTypeSearchResult,
		ItemTypeFile,
		ItemTypeCode,
		ItemTypeTask,
	}
}

// IsValid checks if the item type is valid
func (t ItemType) IsValid() bool {
	switch t {
	case ItemTypeSystem,
		ItemTypeSummary,
		ItemTypeMessage,
		ItemTypeTheme,
		ItemTypeNote,
		ItemTypeSearchResult,
		ItemTypeFile,
		ItemTypeCode,
		ItemTypeTask:
		return true
	default:
		return false
	}
}

// Weight returns the priority weight of the item type in [0,1]
func (t ItemType) Weight() float64 {
	switch t {
	case ItemTypeSystem:
		return 1.0
	case ItemTypeSummary:
		return 0.9
	case ItemTypeMessage:
		return 0.8
	case ItemTypeTask:
		return 0.7
	case ItemTypeTheme:
		return 0.6
	case ItemTypeCode:
		return 0.6
	case ItemTypeNote:
		return 0.5
	case ItemTypeFile:
		return 0.5
	case ItemTypeSearchResult:
		return 0.4
	default:
		return 0.3
	}
}

// CanTruncate reports whether items of this type may be shortened to fit a budget
func (t ItemType) CanTruncate() bool {
	switch t {
	case ItemTypeSystem, ItemTypeCode:
		return false
	default:
		return true
	}
}

// Category returns the coarse grouping used for type matching
func (t ItemType) Category() string {
	switch t {
	case ItemTypeFile, ItemTypeCode:
		return "code"
	case ItemTypeNote, ItemTypeTheme, ItemTypeSummary, ItemTypeSearchResult:
		return "document"
	case ItemTypeMessage, ItemTypeTask:
		return "conversation"
	default:
		return "system"
	}
}

// String returns the string representation of the item type
func (t ItemType) String() string {
	return string(t)
}

// ParseItemType parses a string into an ItemType
func ParseItemType(s string) (ItemType, error) {
	t := ItemType(s)
	if !t.IsValid() {
		return "", fmt.Errorf("invalid item type: %s", s)
	}
	return t, nil
}
