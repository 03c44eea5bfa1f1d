package sqlite

import (
	"sort"
	"sync"

	"github.com/secmon-lab/recall/pkg/domain/model"
)

// embeddingCache keeps decoded embeddings. When it grows past capacity the older
// half of the entries, by insertion order, is evicted in one batch.
type embeddingCache struct {
	mu       sync.Mutex
	capacity int
	seq      uint64
	entries  map[model.DocumentID]cachedEmbedding
}

type cachedEmbedding struct {
	vec []float32
	seq uint64
}

func newEmbeddingCache(capacity int) *embeddingCache {
	return &embeddingCache{
		capacity: capacity,
		entries:  make(map[model.DocumentID]cachedEmbedding),
	}
}

func (c *embeddingCache) get(id model.DocumentID) ([]float32, bool) {
	if c.capacity == 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	return e.vec, ok
}

func (c *embeddingCache) put(id model.DocumentID, vec []float32) {
	if c.capacity == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	c.entries[id] = cachedEmbedding{vec: vec, seq: c.seq}
	if len(c.entries) > c.capacity {
		c.evictOldestHalf()
	}
}

func (c *embeddingCache) remove(ids ...model.DocumentID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.entries, id)
	}
}

func (c *embeddingCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *embeddingCache) evictOldestHalf() {
	type kv struct {
		id  model.DocumentID
		seq uint64
	}
	all := make([]kv, 0, len(c.entries))
	for id, e := range c.entries {
		all = append(all, kv{id: id, seq: e.seq})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].seq < all[j].seq })

	for _, e := range all[:len(all)/2] {
		delete(c.entries, e.id)
	}
}
