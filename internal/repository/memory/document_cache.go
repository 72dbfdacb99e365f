package memory

import (
	"context"
	"time"

	"ai-docchat/pkg/docservice"

	"github.com/patrickmn/go-cache"
)

const (
	docKeyPrefix    = "doc:"
	chunksKeyPrefix = "chunks:"
)

// DocumentCache is a process-local cache of document metadata and chunks.
type DocumentCache struct {
	cache *cache.Cache
}

func NewDocumentCache(ttl time.Duration) *DocumentCache {
	return &DocumentCache{
		cache: cache.New(ttl, 2*ttl),
	}
}

func (c *DocumentCache) GetDocument(_ context.Context, documentID string) (*docservice.Document, bool) {
	x, found := c.cache.Get(docKeyPrefix + documentID)
	if !found {
		return nil, false
	}
	doc := x.(docservice.Document)
	return &doc, true
}

func (c *DocumentCache) SetDocument(_ context.Context, doc *docservice.Document) {
	c.cache.Set(docKeyPrefix+doc.ID.String(), *doc, cache.DefaultExpiration)
}

func (c *DocumentCache) GetChunks(_ context.Context, documentID string) ([]docservice.Chunk, bool) {
	x, found := c.cache.Get(chunksKeyPrefix + documentID)
	if !found {
		return nil, false
	}
	stored := x.([]docservice.Chunk)
	chunks := make([]docservice.Chunk, len(stored))
	copy(chunks, stored)
	return chunks, true
}

func (c *DocumentCache) SetChunks(_ context.Context, documentID string, chunks []docservice.Chunk) {
	stored := make([]docservice.Chunk, len(chunks))
	copy(stored, chunks)
	c.cache.Set(chunksKeyPrefix+documentID, stored, cache.DefaultExpiration)
}

func (c *DocumentCache) Invalidate(_ context.Context, documentID string) {
	c.cache.Delete(docKeyPrefix + documentID)
	c.cache.Delete(chunksKeyPrefix + documentID)
}
