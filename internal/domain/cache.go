package domain

import (
	"context"
	"time"
)

// TopicCache provides fast topic summary lookups.
type TopicCache interface {
	Set(ctx context.Context, topic Topic) error
	Get(ctx context.Context, id string) (Topic, error)
	Invalidate(ctx context.Context, id string) error
}

// LockManager provides distributed locking. The resolution core assumes a
// single writer per topic; the lock manager extends that guarantee across
// replicas.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RateLimiter limits request rates per key over a sliding window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams for resolution events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// BlobWriter stores finalized resolution records in object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
}
