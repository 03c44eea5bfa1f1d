package model

import (
	"slices"
	"time"
)

const (
	// AccessLogMaxEntries is the size at which the access log gets trimmed
	AccessLogMaxEntries = 10000

	// AccessLogRetainEntries is the number of newest entries kept after trimming
	AccessLogRetainEntries = 5000
)

// UsageEntry tracks how a piece of content is used across conversations
type UsageEntry struct {
	ID              string
	Filename        string
	FileType        string
	Content         string
	Embedding       []float32
	ConversationIDs []string // sorted, no duplicates
	AccessCount     int
	LastAccessed    time.Time
	FirstIndexed    time.Time
	ContentHash     string
}

// AddConversation inserts a conversation ID into the sorted set. It reports whether the set changed.
func (e *UsageEntry) AddConversation(conversationID string) bool {
	if conversationID == "" {
		return false
	}
	if !slices.IsSorted(e.ConversationIDs) {
		e.NormalizeConversations()
	}
	idx, found := slices.BinarySearch(e.ConversationIDs, conversationID)
	if found {
		return false
	}
	e.ConversationIDs = slices.Insert(e.ConversationIDs, idx, conversationID)
	return true
}

// NormalizeConversations sorts the conversation IDs and drops duplicates and empty IDs
func (e *UsageEntry) NormalizeConversations() {
	ids := slices.DeleteFunc(slices.Clone(e.ConversationIDs), func(id string) bool { return id == "" })
	slices.Sort(ids)
	e.ConversationIDs = slices.Compact(ids)
}

// HasConversation reports whether the entry was seen in the conversation
func (e *UsageEntry) HasConversation(conversationID string) bool {
	if !slices.IsSorted(e.ConversationIDs) {
		return slices.Contains(e.ConversationIDs, conversationID)
	}
	_, found := slices.BinarySearch(e.ConversationIDs, conversationID)
	return found
}

// Merge folds other into e: conversation IDs are unioned, the newer last-accessed and the
// older first-indexed timestamps are kept, and the access count never decreases.
func (e *UsageEntry) Merge(other *UsageEntry) {
	for _, id := range other.ConversationIDs {
		e.AddConversation(id)
	}
	if other.AccessCount > e.AccessCount {
		e.AccessCount = other.AccessCount
	}
	if other.LastAccessed.After(e.LastAccessed) {
		e.LastAccessed = other.LastAccessed
	}
	if e.FirstIndexed.IsZero() || (!other.FirstIndexed.IsZero() && other.FirstIndexed.Before(e.FirstIndexed)) {
		e.FirstIndexed = other.FirstIndexed
	}
	if other.Filename != "" {
		e.Filename = other.Filename
	}
	if other.FileType != "" {
		e.FileType = other.FileType
	}
	if other.Content != "" {
		e.Content = other.Content
	}
	if other.ContentHash != "" {
		e.ContentHash = other.ContentHash
	}
	if len(other.Embedding) > 0 {
		e.Embedding = other.Embedding
	}
}

// Copy returns a deep copy of the entry with its conversation IDs normalized
func (e *UsageEntry) Copy() *UsageEntry {
	copied := *e
	if e.Embedding != nil {
		copied.Embedding = make([]float32, len(e.Embedding))
		copy(copied.Embedding, e.Embedding)
	}
	copied.NormalizeConversations()
	return &copied
}

// AccessLog is a single entry of the rolling access log
type AccessLog struct {
	EntryID        string
	ConversationID string
	Timestamp      time.Time
	Context        string
}

// UsageMatch is a usage entry ranked against a query
type UsageMatch struct {
	Entry          *UsageEntry
	Similarity     float64
	RelevanceBoost float64
}

// Score returns similarity plus boost
func (m *UsageMatch) Score() float64 {
	return m.Similarity + m.RelevanceBoost
}

// CoAccess is an entry that appears in the same conversations as another
type CoAccess struct {
	EntryID string
	Count   int
	Score   float64 // Count divided by the number of conversations of the target entry
}

// UsageStats summarises the usage index
type UsageStats struct {
	Entries    int
	AccessLogs int
}
