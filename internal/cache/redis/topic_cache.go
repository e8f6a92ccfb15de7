package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/openquorum/resolved/internal/domain"
	"github.com/redis/go-redis/v9"
)

const topicTTL = 5 * time.Minute

// TopicCache implements domain.TopicCache using Redis hashes with JSON-
// serialized topic summary records.
//
// Key schema:
//
//	topic:{id} - hash with field "data" containing JSON
type TopicCache struct {
	rdb *redis.Client
}

// NewTopicCache creates a TopicCache backed by the given Client.
func NewTopicCache(c *Client) *TopicCache {
	return &TopicCache{rdb: c.Underlying()}
}

func topicKey(id string) string { return "topic:" + id }

// Set stores a topic summary in the cache with a 5-minute TTL.
func (tc *TopicCache) Set(ctx context.Context, topic domain.Topic) error {
	data, err := json.Marshal(topic)
	if err != nil {
		return fmt.Errorf("redis: marshal topic %s: %w", topic.ID, err)
	}

	key := topicKey(topic.ID)

	pipe := tc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, topicTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set topic %s: %w", topic.ID, err)
	}
	return nil
}

// Get retrieves a topic summary by its ID from the cache.
// It returns domain.ErrNotFound when the key does not exist.
func (tc *TopicCache) Get(ctx context.Context, id string) (domain.Topic, error) {
	data, err := tc.rdb.HGet(ctx, topicKey(id), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Topic{}, domain.ErrNotFound
		}
		return domain.Topic{}, fmt.Errorf("redis: get topic %s: %w", id, err)
	}

	var topic domain.Topic
	if err := json.Unmarshal(data, &topic); err != nil {
		return domain.Topic{}, fmt.Errorf("redis: unmarshal topic %s: %w", id, err)
	}
	return topic, nil
}

// Invalidate removes a topic summary from the cache.
func (tc *TopicCache) Invalidate(ctx context.Context, id string) error {
	if err := tc.rdb.Del(ctx, topicKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate topic %s: %w", id, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.TopicCache = (*TopicCache)(nil)
