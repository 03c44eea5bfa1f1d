package model

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/recall/pkg/domain/types"
)

// EmbeddingDimension is the fixed length of every stored embedding
const EmbeddingDimension = 384

// DocumentID is a UUID-based identifier for Document
type DocumentID string

// NewDocumentID generates a new UUID v4 DocumentID
func NewDocumentID() DocumentID {
	return DocumentID(uuid.New().String())
}

// ChunkID derives the stable ID of the chunk at index of a parent document, so that
// re-indexing the same parent overwrites its chunks in place.
func ChunkID(parent DocumentID, index int) DocumentID {
	name := parent.String() + "#" + strconv.Itoa(index)
	return DocumentID(uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String())
}

// String returns the string representation of the document ID
func (id DocumentID) String() string {
	return string(id)
}

// DocumentMetadata carries the optional attributes of a stored document
type DocumentMetadata struct {
	ConversationID string   `json:"conversation_id,omitempty" yaml:"conversation_id,omitempty"`
	SessionID      string   `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	Title          string   `json:"title,omitempty" yaml:"title,omitempty"`
	Tags           []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	ChunkIndex     int      `json:"chunk_index" yaml:"chunk_index"`
	TotalChunks    int      `json:"total_chunks" yaml:"total_chunks"`
	ParentID       string   `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	IsProtected    bool     `json:"is_protected,omitempty" yaml:"is_protected,omitempty"`
}

// Document is the unit stored in the vector store
type Document struct {
	ID             DocumentID
	Content        string
	Embedding      []float32 // L2-normalised, EmbeddingDimension elements
	Source         types.Source
	Metadata       DocumentMetadata
	CreatedAt      time.Time
	LastAccessedAt time.Time
}

// Validate checks that the document can be stored
func (d *Document) Validate() error {
	if d.ID == "" {
		return goerr.New("document ID is required")
	}
	if !d.Source.IsValid() {
		return goerr.New("invalid document source", goerr.V("source", d.Source))
	}
	if len(d.Embedding) != EmbeddingDimension {
		return goerr.Wrap(ErrInvalidEmbeddingDimension, "document embedding has wrong dimension",
			goerr.V("id", d.ID),
			goerr.V("expected", EmbeddingDimension),
			goerr.V("actual", len(d.Embedding)))
	}
	return nil
}

// Copy returns a deep copy of the document
func (d *Document) Copy() *Document {
	copied := *d
	if d.Embedding != nil {
		copied.Embedding = make([]float32, len(d.Embedding))
		copy(copied.Embedding, d.Embedding)
	}
	if d.Metadata.Tags != nil {
		copied.Metadata.Tags = make([]string, len(d.Metadata.Tags))
		copy(copied.Metadata.Tags, d.Metadata.Tags)
	}
	return &copied
}

// Title returns the metadata title, falling back to the document ID
func (d *Document) Title() string {
	if d.Metadata.Title != "" {
		return d.Metadata.Title
	}
	return d.ID.String()
}
