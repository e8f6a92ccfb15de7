package postgres

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openquorum/resolved/internal/domain"
)

// EventStore implements domain.EventStore using PostgreSQL. The event log is
// append-only; rows are never updated or deleted.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// InsertBatch appends a batch of events in a single round trip.
func (s *EventStore) InsertBatch(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	const query = `
		INSERT INTO resolution_events (
			id, topic_id, kind, participant, outcome, amount, round, height, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`

	batch := &pgx.Batch{}
	for _, e := range events {
		amount := "0"
		if e.Amount != nil {
			amount = e.Amount.String()
		}
		batch.Queue(query,
			e.ID, e.TopicID, string(e.Kind), e.Participant.Hex(),
			e.Outcome, amount, e.Round, int64(e.Height), e.CreatedAt,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range events {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("postgres: insert events: %w", err)
		}
	}
	return nil
}

// ListByTopic returns the events of one topic in append order.
func (s *EventStore) ListByTopic(ctx context.Context, topicID string, opts domain.ListOpts) ([]domain.Event, error) {
	const query = `
		SELECT id, topic_id, kind, participant, outcome, amount::text, round, height, created_at
		FROM resolution_events
		WHERE topic_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2 OFFSET $3`

	return s.list(ctx, query, topicID, normLimit(opts.Limit), opts.Offset)
}

// ListByParticipant returns the events touching one participant address,
// newest first.
func (s *EventStore) ListByParticipant(ctx context.Context, participant string, opts domain.ListOpts) ([]domain.Event, error) {
	const query = `
		SELECT id, topic_id, kind, participant, outcome, amount::text, round, height, created_at
		FROM resolution_events
		WHERE participant = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	return s.list(ctx, query, common.HexToAddress(participant).Hex(), normLimit(opts.Limit), opts.Offset)
}

func (s *EventStore) list(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var (
			e           domain.Event
			kind        string
			participant string
			amount      string
			height      int64
		)
		err := rows.Scan(&e.ID, &e.TopicID, &kind, &participant, &e.Outcome, &amount, &e.Round, &height, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		e.Kind = domain.EventKind(kind)
		e.Participant = common.HexToAddress(participant)
		e.Height = uint64(height)
		e.Amount, _ = new(big.Int).SetString(amount, 10)
		if e.Amount == nil {
			e.Amount = new(big.Int)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
