package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// TopicStore persists topic summary records together with the serialized
// resolution state blob.
type TopicStore interface {
	Upsert(ctx context.Context, topic Topic, state []byte) error
	GetByID(ctx context.Context, id string) (Topic, []byte, error)
	ListByStatus(ctx context.Context, status TopicStatus, opts ListOpts) ([]Topic, error)
	List(ctx context.Context, opts ListOpts) ([]Topic, error)
	Count(ctx context.Context) (int64, error)
}

// EventStore persists the append-only resolution event log.
type EventStore interface {
	InsertBatch(ctx context.Context, events []Event) error
	ListByTopic(ctx context.Context, topicID string, opts ListOpts) ([]Event, error)
	ListByParticipant(ctx context.Context, participant string, opts ListOpts) ([]Event, error)
}
