package cache

import (
	"context"
	"encoding/json"
	"time"

	"ai-docchat/internal/pkg/logger"
	"ai-docchat/pkg/docservice"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "docchat:"

// RedisDocumentCache shares document metadata and chunks between gateway instances.
// Redis failures are logged and treated as misses.
type RedisDocumentCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger logger.ILogger
}

func NewRedisDocumentCache(rdb *redis.Client, ttl time.Duration, log logger.ILogger) *RedisDocumentCache {
	return &RedisDocumentCache{
		rdb:    rdb,
		ttl:    ttl,
		logger: log,
	}
}

func documentKey(documentID string) string {
	return keyPrefix + "document:" + documentID
}

func chunksKey(documentID string) string {
	return keyPrefix + "chunks:" + documentID
}

func (c *RedisDocumentCache) GetDocument(ctx context.Context, documentID string) (*docservice.Document, bool) {
	var doc docservice.Document
	if !c.load(ctx, documentKey(documentID), &doc) {
		return nil, false
	}
	return &doc, true
}

func (c *RedisDocumentCache) SetDocument(ctx context.Context, doc *docservice.Document) {
	c.store(ctx, documentKey(doc.ID.String()), doc)
}

func (c *RedisDocumentCache) GetChunks(ctx context.Context, documentID string) ([]docservice.Chunk, bool) {
	var chunks []docservice.Chunk
	if !c.load(ctx, chunksKey(documentID), &chunks) {
		return nil, false
	}
	return chunks, true
}

func (c *RedisDocumentCache) SetChunks(ctx context.Context, documentID string, chunks []docservice.Chunk) {
	c.store(ctx, chunksKey(documentID), chunks)
}

func (c *RedisDocumentCache) Invalidate(ctx context.Context, documentID string) {
	if err := c.rdb.Del(ctx, documentKey(documentID), chunksKey(documentID)).Err(); err != nil {
		c.logger.Warn("Cache", "Failed to invalidate document", map[string]interface{}{"document_id": documentID, "error": err.Error()})
	}
}

func (c *RedisDocumentCache) load(ctx context.Context, key string, out interface{}) bool {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("Cache", "Redis read failed", map[string]interface{}{"key": key, "error": err.Error()})
		}
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.logger.Warn("Cache", "Dropping undecodable cache entry", map[string]interface{}{"key": key, "error": err.Error()})
		c.rdb.Del(ctx, key)
		return false
	}
	return true
}

func (c *RedisDocumentCache) store(ctx context.Context, key string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("Cache", "Failed to encode cache entry", map[string]interface{}{"key": key, "error": err.Error()})
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("Cache", "Redis write failed", map[string]interface{}{"key": key, "error": err.Error()})
	}
}
