package memory

import (
	"sync/atomic"

	"github.com/secmon-lab/recall/pkg/domain/interfaces"
)

// Memory keeps documents and usage entries in process memory. Contents are lost on exit.
type Memory struct {
	closed   *atomic.Bool
	document *documentRepository
	usage    *usageRepository
}

var _ interfaces.Repository = &Memory{}

func New() *Memory {
	closed := &atomic.Bool{}
	return &Memory{
		closed:   closed,
		document: newDocumentRepository(closed),
		usage:    newUsageRepository(closed),
	}
}

func (m *Memory) Document() interfaces.DocumentRepository {
	return m.document
}

func (m *Memory) Usage() interfaces.UsageRepository {
	return m.usage
}

func (m *Memory) Close() error {
	m.closed.Store(true)
	return nil
}
