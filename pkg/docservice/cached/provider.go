package cached

import (
	"context"

	"ai-docchat/internal/pkg/logger"
	"ai-docchat/pkg/docservice"
)

// DocumentCache stores document metadata and chunk lists keyed by document id.
type DocumentCache interface {
	GetDocument(ctx context.Context, documentID string) (*docservice.Document, bool)
	SetDocument(ctx context.Context, doc *docservice.Document)
	GetChunks(ctx context.Context, documentID string) ([]docservice.Chunk, bool)
	SetChunks(ctx context.Context, documentID string, chunks []docservice.Chunk)
	Invalidate(ctx context.Context, documentID string)
}

// Provider serves metadata and chunks of fully processed documents from a cache.
// History and questions always go to the wrapped provider.
type Provider struct {
	docservice.Provider
	cache  DocumentCache
	logger logger.ILogger
}

var _ docservice.Provider = &Provider{}

func NewProvider(next docservice.Provider, cache DocumentCache, log logger.ILogger) *Provider {
	return &Provider{
		Provider: next,
		cache:    cache,
		logger:   log,
	}
}

func (p *Provider) GetDocument(ctx context.Context, documentID string) (*docservice.Document, error) {
	if doc, ok := p.cache.GetDocument(ctx, documentID); ok {
		return doc, nil
	}

	doc, err := p.Provider.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	// Status changes while a document is being processed.
	if doc.ProcessingStatus == docservice.StatusCompleted {
		p.cache.SetDocument(ctx, doc)
	}
	return doc, nil
}

func (p *Provider) GetChunks(ctx context.Context, documentID string) ([]docservice.Chunk, error) {
	if chunks, ok := p.cache.GetChunks(ctx, documentID); ok {
		p.logger.Debug("Cache", "Chunks served from cache", map[string]interface{}{"document_id": documentID})
		return chunks, nil
	}

	chunks, err := p.Provider.GetChunks(ctx, documentID)
	if err != nil {
		return nil, err
	}

	if len(chunks) > 0 {
		p.cache.SetChunks(ctx, documentID, chunks)
	}
	return chunks, nil
}

func (p *Provider) DeleteDocument(ctx context.Context, documentID string) error {
	if err := p.Provider.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	p.cache.Invalidate(ctx, documentID)
	return nil
}

// Chain layers caches: reads return the first hit and backfill the earlier layers, writes go to every layer.
func Chain(layers ...DocumentCache) DocumentCache {
	return chain(layers)
}

type chain []DocumentCache

func (c chain) GetDocument(ctx context.Context, documentID string) (*docservice.Document, bool) {
	for i, layer := range c {
		if doc, ok := layer.GetDocument(ctx, documentID); ok {
			for _, earlier := range c[:i] {
				earlier.SetDocument(ctx, doc)
			}
			return doc, true
		}
	}
	return nil, false
}

func (c chain) SetDocument(ctx context.Context, doc *docservice.Document) {
	for _, layer := range c {
		layer.SetDocument(ctx, doc)
	}
}

func (c chain) GetChunks(ctx context.Context, documentID string) ([]docservice.Chunk, bool) {
	for i, layer := range c {
		if chunks, ok := layer.GetChunks(ctx, documentID); ok {
			for _, earlier := range c[:i] {
				earlier.SetChunks(ctx, documentID, chunks)
			}
			return chunks, true
		}
	}
	return nil, false
}

func (c chain) SetChunks(ctx context.Context, documentID string, chunks []docservice.Chunk) {
	for _, layer := range c {
		layer.SetChunks(ctx, documentID, chunks)
	}
}

func (c chain) Invalidate(ctx context.Context, documentID string) {
	for _, layer := range c {
		layer.Invalidate(ctx, documentID)
	}
}
