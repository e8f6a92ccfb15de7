// Package service orchestrates topic resolution: it loads topic state from
// the store, applies operations under a per-topic distributed lock, and
// persists the result together with the emitted event log. Persistence is the
// commit point; an in-memory mutation that is never persisted has no effect.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/openquorum/resolved/internal/domain"
	"github.com/openquorum/resolved/internal/market"
	"github.com/openquorum/resolved/internal/payout"
)

// lockTTL bounds how long one replica can hold a topic lock. Operations are
// short; a crashed holder releases via expiry.
const lockTTL = 10 * time.Second

// eventStream is the durable Redis stream all resolution events append to.
const eventStream = "resolution:events"

// Archiver uploads the durable record of a finalized topic.
type Archiver interface {
	ArchiveTopic(ctx context.Context, topicID string, state []byte) error
}

// Notifier delivers operator alerts for resolution lifecycle events.
type Notifier interface {
	RoundConcluded(ctx context.Context, topic domain.Topic, round int, outcome string) error
	RoundInvalidated(ctx context.Context, topic domain.Topic, round int) error
	TopicFinalized(ctx context.Context, topic domain.Topic, outcome string) error
}

// ResolutionService exposes the full topic lifecycle: opening, betting,
// reporting, voting, invalidation, finalization, and withdrawal.
type ResolutionService struct {
	topics   domain.TopicStore
	events   domain.EventStore
	cache    domain.TopicCache
	locks    domain.LockManager
	bus      domain.SignalBus
	clock    domain.Clock
	token    domain.StakingToken
	payouts  *payout.Engine
	archiver Archiver
	notifier Notifier

	// custody receives all token stake transfers.
	custody  common.Address
	defaults domain.ResolutionParams

	logger *slog.Logger
}

// Deps bundles the constructor dependencies of the ResolutionService.
// Archiver and Notifier are optional; StakingToken may be nil in tests.
type Deps struct {
	Topics   domain.TopicStore
	Events   domain.EventStore
	Cache    domain.TopicCache
	Locks    domain.LockManager
	Bus      domain.SignalBus
	Clock    domain.Clock
	Token    domain.StakingToken
	Payouts  *payout.Engine
	Archiver Archiver
	Notifier Notifier
	Custody  common.Address
	Defaults domain.ResolutionParams
	Logger   *slog.Logger
}

// NewResolutionService creates a ResolutionService.
func NewResolutionService(d Deps) *ResolutionService {
	return &ResolutionService{
		topics:   d.Topics,
		events:   d.Events,
		cache:    d.Cache,
		locks:    d.Locks,
		bus:      d.Bus,
		clock:    d.Clock,
		token:    d.Token,
		payouts:  d.Payouts,
		archiver: d.Archiver,
		notifier: d.Notifier,
		custody:  d.Custody,
		defaults: d.Defaults,
		logger:   d.Logger.With(slog.String("component", "resolution_service")),
	}
}

// OpenTopic creates a new topic with the service's resolution parameter
// snapshot and persists it. The topic ID is generated here if the caller
// leaves it empty.
func (s *ResolutionService) OpenTopic(ctx context.Context, params domain.TopicParams) (domain.Topic, error) {
	if params.ID == "" {
		params.ID = uuid.New().String()
	}
	if params.CreatedAt.IsZero() {
		params.CreatedAt = time.Now().UTC()
	}

	t, err := market.New(params, s.defaults)
	if err != nil {
		return domain.Topic{}, err
	}

	if err := s.persist(ctx, t); err != nil {
		return domain.Topic{}, err
	}

	s.logger.InfoContext(ctx, "topic opened",
		slog.String("topic_id", params.ID),
		slog.Int("outcomes", len(params.Outcomes)),
		slog.Uint64("betting_deadline", params.BettingDeadline),
		slog.Uint64("reporting_deadline", params.ReportingDeadline),
	)
	return t.Record(), nil
}

// GetTopic retrieves a topic summary, checking the cache first and falling
// back to the persistent store on a miss.
func (s *ResolutionService) GetTopic(ctx context.Context, id string) (domain.Topic, error) {
	rec, err := s.cache.Get(ctx, id)
	if err == nil {
		return rec, nil
	}

	rec, _, err = s.topics.GetByID(ctx, id)
	if err != nil {
		return domain.Topic{}, fmt.Errorf("resolution_service: get topic %q: %w", id, err)
	}

	if cacheErr := s.cache.Set(ctx, rec); cacheErr != nil {
		s.logger.WarnContext(ctx, "cache set failed",
			slog.String("topic_id", id),
			slog.String("error", cacheErr.Error()),
		)
	}
	return rec, nil
}

// ListTopics returns topic summaries, newest first.
func (s *ResolutionService) ListTopics(ctx context.Context, opts domain.ListOpts) ([]domain.Topic, error) {
	topics, err := s.topics.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("resolution_service: list topics: %w", err)
	}
	return topics, nil
}

// ListByStatus returns topic summaries in the given status, newest first.
func (s *ResolutionService) ListByStatus(ctx context.Context, status domain.TopicStatus, opts domain.ListOpts) ([]domain.Topic, error) {
	topics, err := s.topics.ListByStatus(ctx, status, opts)
	if err != nil {
		return nil, fmt.Errorf("resolution_service: list by status %s: %w", status, err)
	}
	return topics, nil
}

// ListEvents returns the event log of one topic in append order.
func (s *ResolutionService) ListEvents(ctx context.Context, topicID string, opts domain.ListOpts) ([]domain.Event, error) {
	events, err := s.events.ListByTopic(ctx, topicID, opts)
	if err != nil {
		return nil, fmt.Errorf("resolution_service: list events %s: %w", topicID, err)
	}
	return events, nil
}

// PlaceBet records a native-value bet on a topic outcome.
func (s *ResolutionService) PlaceBet(ctx context.Context, topicID string, participant common.Address, outcome int, amount *big.Int) error {
	return s.withTopic(ctx, topicID, func(t *market.Topic, now uint64) error {
		return t.PlaceBet(now, participant, outcome, amount)
	})
}

// SubmitReport submits the designated reporter's outcome with its token
// stake. The stake transfer runs only after the report has been accepted
// in memory; a failed transfer aborts before anything is persisted.
func (s *ResolutionService) SubmitReport(ctx context.Context, topicID string, reporter common.Address, outcome int, stake *big.Int) error {
	var rec domain.Topic
	err := s.withTopic(ctx, topicID, func(t *market.Topic, now uint64) error {
		if err := t.SubmitReport(now, reporter, outcome, stake); err != nil {
			return err
		}
		if err := s.transferStake(ctx, reporter, stake); err != nil {
			return err
		}
		rec = t.Record()
		return nil
	})
	if err != nil {
		return err
	}

	s.notifyConcluded(ctx, rec, 0, rec.Outcomes[outcome])
	return nil
}

// CastVote records a token-stake vote in a topic's active open-vote round.
func (s *ResolutionService) CastVote(ctx context.Context, topicID string, participant common.Address, outcome int, amount *big.Int) error {
	var (
		rec       domain.Topic
		round     int
		concluded bool
	)
	err := s.withTopic(ctx, topicID, func(t *market.Topic, now uint64) error {
		round = t.Chain.Active().Index
		err := t.CastVote(now, participant, outcome, amount, func() error {
			return s.transferStake(ctx, participant, amount)
		})
		if err != nil {
			return err
		}
		concluded = t.Chain.Active().Index > round
		rec = t.Record()
		return nil
	})
	if err != nil {
		return err
	}

	if concluded {
		s.notifyConcluded(ctx, rec, round, rec.Outcomes[outcome])
	}
	return nil
}

// notifyConcluded sends the round-conclusion alert; delivery failures are
// logged, never surfaced to the caller.
func (s *ResolutionService) notifyConcluded(ctx context.Context, rec domain.Topic, round int, outcome string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.RoundConcluded(ctx, rec, round, outcome); err != nil {
		s.logger.WarnContext(ctx, "conclusion notification failed",
			slog.String("topic_id", rec.ID),
			slog.String("error", err.Error()),
		)
	}
}

// ForceResolve concludes an expired round 0 that received no report, using
// the betting-phase majority as the de-facto report.
func (s *ResolutionService) ForceResolve(ctx context.Context, topicID string) error {
	var rec domain.Topic
	err := s.withTopic(ctx, topicID, func(t *market.Topic, now uint64) error {
		if err := t.ForceResolve(now); err != nil {
			return err
		}
		rec = t.Record()
		return nil
	})
	if err != nil {
		return err
	}

	if rec.CurrentOutcome != nil {
		s.notifyConcluded(ctx, rec, 0, rec.Outcomes[*rec.CurrentOutcome])
	}
	return nil
}

// InvalidateRound discards a topic's active open-vote round after its
// deadline passed below threshold and escalates to the next round.
func (s *ResolutionService) InvalidateRound(ctx context.Context, topicID string) error {
	var rec domain.Topic
	var round int
	err := s.withTopic(ctx, topicID, func(t *market.Topic, now uint64) error {
		round = t.Chain.Active().Index
		if err := t.InvalidateRound(now); err != nil {
			return err
		}
		rec = t.Record()
		return nil
	})
	if err != nil {
		return err
	}

	if s.notifier != nil {
		if nerr := s.notifier.RoundInvalidated(ctx, rec, round); nerr != nil {
			s.logger.WarnContext(ctx, "invalidation notification failed",
				slog.String("topic_id", topicID),
				slog.String("error", nerr.Error()),
			)
		}
	}
	return nil
}

// Finalize locks in a topic's winning outcome, archives the resolution
// record, and notifies operators. Archival and notification failures are
// logged but do not roll back the finalization.
func (s *ResolutionService) Finalize(ctx context.Context, topicID string) (int, error) {
	var (
		winner int
		rec    domain.Topic
		state  []byte
	)
	err := s.withTopic(ctx, topicID, func(t *market.Topic, now uint64) error {
		w, err := t.Finalize(now)
		if err != nil {
			return err
		}
		winner = w
		rec = t.Record()
		state, err = t.MarshalState()
		return err
	})
	if err != nil {
		return 0, err
	}

	if s.archiver != nil {
		if aerr := s.archiver.ArchiveTopic(ctx, topicID, state); aerr != nil {
			s.logger.ErrorContext(ctx, "topic archive failed",
				slog.String("topic_id", topicID),
				slog.String("error", aerr.Error()),
			)
		}
	}
	if s.notifier != nil {
		if nerr := s.notifier.TopicFinalized(ctx, rec, rec.Outcomes[winner]); nerr != nil {
			s.logger.WarnContext(ctx, "finalization notification failed",
				slog.String("topic_id", topicID),
				slog.String("error", nerr.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "topic finalized",
		slog.String("topic_id", topicID),
		slog.Int("winner", winner),
	)
	return winner, nil
}

// Withdraw releases the participant's proportional share of a finalized
// topic's pool. The zeroed ledger entry is persisted only after the value
// transfer succeeds, so a failed transfer leaves the claim intact.
func (s *ResolutionService) Withdraw(ctx context.Context, topicID string, participant common.Address) (*big.Int, error) {
	var share *big.Int
	err := s.withTopic(ctx, topicID, func(t *market.Topic, now uint64) error {
		var err error
		share, err = s.payouts.Withdraw(ctx, t, now, participant)
		return err
	})
	if err != nil {
		return nil, err
	}
	return share, nil
}

// transferStake moves token stake from the participant into custody.
func (s *ResolutionService) transferStake(ctx context.Context, from common.Address, amount *big.Int) error {
	if s.token == nil {
		return nil
	}
	return s.token.TransferFrom(ctx, from, s.custody, amount)
}

// withTopic runs fn against a freshly loaded topic under its distributed
// lock, at the current chain height, and persists the result if fn succeeds.
func (s *ResolutionService) withTopic(ctx context.Context, topicID string, fn func(t *market.Topic, now uint64) error) error {
	unlock, err := s.locks.Acquire(ctx, "topic:"+topicID, lockTTL)
	if err != nil {
		return fmt.Errorf("resolution_service: lock topic %s: %w", topicID, err)
	}
	defer unlock()

	_, state, err := s.topics.GetByID(ctx, topicID)
	if err != nil {
		return fmt.Errorf("resolution_service: load topic %s: %w", topicID, err)
	}
	t, err := market.Restore(state)
	if err != nil {
		return err
	}

	now, err := s.clock.Height(ctx)
	if err != nil {
		return fmt.Errorf("resolution_service: current height: %w", err)
	}

	if err := fn(t, now); err != nil {
		return err
	}

	return s.persist(ctx, t)
}

// persist commits the topic state, appends its drained events, invalidates
// the cache entry, and publishes the events on the signal bus. Event and bus
// failures after the state commit are logged, not returned; the state write
// is the single commit point.
func (s *ResolutionService) persist(ctx context.Context, t *market.Topic) error {
	state, err := t.MarshalState()
	if err != nil {
		return err
	}
	rec := t.Record()

	if err := s.topics.Upsert(ctx, rec, state); err != nil {
		return fmt.Errorf("resolution_service: persist topic %s: %w", rec.ID, err)
	}

	events := t.DrainEvents()
	if len(events) > 0 {
		if err := s.events.InsertBatch(ctx, events); err != nil {
			s.logger.ErrorContext(ctx, "event log append failed",
				slog.String("topic_id", rec.ID),
				slog.Int("count", len(events)),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := s.cache.Invalidate(ctx, rec.ID); err != nil {
		s.logger.WarnContext(ctx, "cache invalidate failed",
			slog.String("topic_id", rec.ID),
			slog.String("error", err.Error()),
		)
	}

	s.publish(ctx, rec.ID, events)
	return nil
}

// publish fans events out over pub/sub and the durable stream.
func (s *ResolutionService) publish(ctx context.Context, topicID string, events []domain.Event) {
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			continue
		}
		if err := s.bus.Publish(ctx, "resolution:topic:"+topicID, payload); err != nil {
			s.logger.WarnContext(ctx, "event publish failed",
				slog.String("topic_id", topicID),
				slog.String("error", err.Error()),
			)
		}
		if err := s.bus.StreamAppend(ctx, eventStream, payload); err != nil {
			s.logger.WarnContext(ctx, "event stream append failed",
				slog.String("topic_id", topicID),
				slog.String("error", err.Error()),
			)
		}
	}
}
