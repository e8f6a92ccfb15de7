package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openquorum/resolved/internal/domain"
)

// TopicStore implements domain.TopicStore using PostgreSQL.
type TopicStore struct {
	pool *pgxpool.Pool
}

// NewTopicStore creates a new TopicStore backed by the given connection pool.
func NewTopicStore(pool *pgxpool.Pool) *TopicStore {
	return &TopicStore{pool: pool}
}

// Upsert inserts or updates a topic record together with its serialized
// resolution state.
func (s *TopicStore) Upsert(ctx context.Context, t domain.Topic, state []byte) error {
	const query = `
		INSERT INTO topics (
			id, question, outcomes, betting_deadline, reporting_deadline,
			reporter, status, current_outcome, final_outcome, pool, round,
			state, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11,
			$12, $13, NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			status          = EXCLUDED.status,
			current_outcome = EXCLUDED.current_outcome,
			final_outcome   = EXCLUDED.final_outcome,
			pool            = EXCLUDED.pool,
			round           = EXCLUDED.round,
			state           = EXCLUDED.state,
			updated_at      = NOW()`

	_, err := s.pool.Exec(ctx, query,
		t.ID, t.Question, t.Outcomes, int64(t.BettingDeadline), int64(t.ReportingDeadline),
		t.Reporter.Hex(), string(t.Status), t.CurrentOutcome, t.FinalOutcome,
		t.Pool.String(), t.Round, state, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert topic %s: %w", t.ID, err)
	}
	return nil
}

// GetByID retrieves a topic record and its serialized state by ID.
func (s *TopicStore) GetByID(ctx context.Context, id string) (domain.Topic, []byte, error) {
	const query = `
		SELECT id, question, outcomes, betting_deadline, reporting_deadline,
		       reporter, status, current_outcome, final_outcome, pool::text,
		       round, state, created_at, updated_at
		FROM topics WHERE id = $1`

	var state []byte
	t, err := scanTopic(s.pool.QueryRow(ctx, query, id), &state)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Topic{}, nil, fmt.Errorf("postgres: topic %s: %w", id, domain.ErrNotFound)
		}
		return domain.Topic{}, nil, fmt.Errorf("postgres: get topic %s: %w", id, err)
	}
	return t, state, nil
}

// ListByStatus returns topic records in the given status, newest first.
func (s *TopicStore) ListByStatus(ctx context.Context, status domain.TopicStatus, opts domain.ListOpts) ([]domain.Topic, error) {
	const query = `
		SELECT id, question, outcomes, betting_deadline, reporting_deadline,
		       reporter, status, current_outcome, final_outcome, pool::text,
		       round, state, created_at, updated_at
		FROM topics WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	return s.list(ctx, query, string(status), normLimit(opts.Limit), opts.Offset)
}

// List returns all topic records, newest first.
func (s *TopicStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Topic, error) {
	const query = `
		SELECT id, question, outcomes, betting_deadline, reporting_deadline,
		       reporter, status, current_outcome, final_outcome, pool::text,
		       round, state, created_at, updated_at
		FROM topics
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	return s.list(ctx, query, normLimit(opts.Limit), opts.Offset)
}

// Count returns the total number of topics.
func (s *TopicStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM topics`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count topics: %w", err)
	}
	return n, nil
}

func (s *TopicStore) list(ctx context.Context, query string, args ...any) ([]domain.Topic, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list topics: %w", err)
	}
	defer rows.Close()

	var topics []domain.Topic
	for rows.Next() {
		var state []byte
		t, err := scanTopic(rows, &state)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan topic: %w", err)
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

// scanTopic scans a single topic row. The state blob is written into *state
// so list queries can discard it cheaply.
func scanTopic(row pgx.Row, state *[]byte) (domain.Topic, error) {
	var (
		t        domain.Topic
		reporter string
		status   string
		pool     string
		betting  int64
		report   int64
	)
	err := row.Scan(
		&t.ID, &t.Question, &t.Outcomes, &betting, &report,
		&reporter, &status, &t.CurrentOutcome, &t.FinalOutcome, &pool,
		&t.Round, state, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return domain.Topic{}, err
	}

	t.BettingDeadline = uint64(betting)
	t.ReportingDeadline = uint64(report)
	t.Reporter = common.HexToAddress(reporter)
	t.Status = domain.TopicStatus(status)
	t.Pool, _ = new(big.Int).SetString(pool, 10)
	if t.Pool == nil {
		t.Pool = new(big.Int)
	}
	return t, nil
}

func normLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	return limit
}
