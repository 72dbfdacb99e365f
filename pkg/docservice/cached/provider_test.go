package cached

import (
	"context"
	"errors"
	"sync"
	"testing"

	"ai-docchat/internal/pkg/logger"
	"ai-docchat/pkg/docservice"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProvider struct {
	docservice.Provider
	doc       *docservice.Document
	chunks    []docservice.Chunk
	docCalls  int
	chunkCall int
	deleted   []string
}

func (p *countingProvider) GetDocument(ctx context.Context, id string) (*docservice.Document, error) {
	p.docCalls++
	if p.doc == nil {
		return nil, &docservice.Error{Op: "get document", Kind: docservice.KindHTTPStatus, Status: 404}
	}
	d := *p.doc
	return &d, nil
}

func (p *countingProvider) GetChunks(ctx context.Context, id string) ([]docservice.Chunk, error) {
	p.chunkCall++
	return p.chunks, nil
}

func (p *countingProvider) DeleteDocument(ctx context.Context, id string) error {
	p.deleted = append(p.deleted, id)
	return nil
}

type mapCache struct {
	mu     sync.Mutex
	docs   map[string]*docservice.Document
	chunks map[string][]docservice.Chunk
}

func newMapCache() *mapCache {
	return &mapCache{docs: map[string]*docservice.Document{}, chunks: map[string][]docservice.Chunk{}}
}

func (c *mapCache) GetDocument(_ context.Context, id string) (*docservice.Document, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.docs[id]
	return d, ok
}

func (c *mapCache) SetDocument(_ context.Context, doc *docservice.Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs[doc.ID.String()] = doc
}

func (c *mapCache) GetChunks(_ context.Context, id string) ([]docservice.Chunk, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.chunks[id]
	return ch, ok
}

func (c *mapCache) SetChunks(_ context.Context, id string, chunks []docservice.Chunk) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunks[id] = chunks
}

func (c *mapCache) Invalidate(_ context.Context, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.docs, id)
	delete(c.chunks, id)
}

func TestProvider_CachesCompletedDocuments(t *testing.T) {
	next := &countingProvider{doc: &docservice.Document{ID: "1", ProcessingStatus: docservice.StatusCompleted}}
	p := NewProvider(next, newMapCache(), logger.NewNopLogger())

	for i := 0; i < 3; i++ {
		doc, err := p.GetDocument(context.Background(), "1")
		require.NoError(t, err)
		assert.Equal(t, docservice.ID("1"), doc.ID)
	}
	assert.Equal(t, 1, next.docCalls)
}

func TestProvider_SkipsDocumentsStillProcessing(t *testing.T) {
	next := &countingProvider{doc: &docservice.Document{ID: "1", ProcessingStatus: docservice.StatusProcessing}}
	p := NewProvider(next, newMapCache(), logger.NewNopLogger())

	_, _ = p.GetDocument(context.Background(), "1")
	_, _ = p.GetDocument(context.Background(), "1")
	assert.Equal(t, 2, next.docCalls)
}

func TestProvider_ErrorsAreNotCached(t *testing.T) {
	next := &countingProvider{}
	p := NewProvider(next, newMapCache(), logger.NewNopLogger())

	_, err := p.GetDocument(context.Background(), "1")
	assert.True(t, docservice.IsNotFound(err))
	_, err = p.GetDocument(context.Background(), "1")
	assert.Error(t, err)
	assert.Equal(t, 2, next.docCalls)
}

func TestProvider_Chunks(t *testing.T) {
	next := &countingProvider{chunks: []docservice.Chunk{{ChunkIndex: 0, Content: "a"}}}
	p := NewProvider(next, newMapCache(), logger.NewNopLogger())

	for i := 0; i < 2; i++ {
		chunks, err := p.GetChunks(context.Background(), "1")
		require.NoError(t, err)
		assert.Len(t, chunks, 1)
	}
	assert.Equal(t, 1, next.chunkCall)

	empty := &countingProvider{chunks: []docservice.Chunk{}}
	p = NewProvider(empty, newMapCache(), logger.NewNopLogger())
	_, _ = p.GetChunks(context.Background(), "2")
	_, _ = p.GetChunks(context.Background(), "2")
	assert.Equal(t, 2, empty.chunkCall)
}

func TestProvider_DeleteInvalidates(t *testing.T) {
	cache := newMapCache()
	next := &countingProvider{doc: &docservice.Document{ID: "1", ProcessingStatus: docservice.StatusCompleted}}
	p := NewProvider(next, cache, logger.NewNopLogger())

	_, _ = p.GetDocument(context.Background(), "1")
	require.NoError(t, p.DeleteDocument(context.Background(), "1"))

	_, ok := cache.GetDocument(context.Background(), "1")
	assert.False(t, ok)
	assert.Equal(t, []string{"1"}, next.deleted)
}

type failingDelete struct{ countingProvider }

func (f *failingDelete) DeleteDocument(ctx context.Context, id string) error {
	return errors.New("nope")
}

func TestProvider_DeleteFailureKeepsCache(t *testing.T) {
	cache := newMapCache()
	cache.SetDocument(context.Background(), &docservice.Document{ID: "1"})
	p := NewProvider(&failingDelete{}, cache, logger.NewNopLogger())

	assert.Error(t, p.DeleteDocument(context.Background(), "1"))
	_, ok := cache.GetDocument(context.Background(), "1")
	assert.True(t, ok)
}

func TestChain_BackfillsEarlierLayers(t *testing.T) {
	local, shared := newMapCache(), newMapCache()
	shared.SetChunks(context.Background(), "1", []docservice.Chunk{{ChunkIndex: 3}})
	shared.SetDocument(context.Background(), &docservice.Document{ID: "1"})

	c := Chain(local, shared)

	chunks, ok := c.GetChunks(context.Background(), "1")
	require.True(t, ok)
	assert.Equal(t, 3, chunks[0].ChunkIndex)
	_, ok = local.GetChunks(context.Background(), "1")
	assert.True(t, ok)

	_, ok = c.GetDocument(context.Background(), "1")
	require.True(t, ok)
	_, ok = local.GetDocument(context.Background(), "1")
	assert.True(t, ok)

	c.Invalidate(context.Background(), "1")
	_, ok = shared.GetDocument(context.Background(), "1")
	assert.False(t, ok)
}
