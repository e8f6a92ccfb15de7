package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/openquorum/resolved/internal/domain"
)

// DeadlineWatcher drives the resolution lifecycle forward on deadline expiry:
// it force-resolves round 0 when the reporting window lapses without a
// report, invalidates open-vote rounds that expired below threshold, and
// finalizes topics whose arbitration window elapsed unchallenged.
type DeadlineWatcher struct {
	resolution *ResolutionService
	pollDur    time.Duration
	batchSize  int
	logger     *slog.Logger
}

// NewDeadlineWatcher creates a DeadlineWatcher. pollInterval is how often
// unfinalized topics are scanned.
func NewDeadlineWatcher(resolution *ResolutionService, pollInterval time.Duration, logger *slog.Logger) *DeadlineWatcher {
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	return &DeadlineWatcher{
		resolution: resolution,
		pollDur:    pollInterval,
		batchSize:  200,
		logger:     logger.With(slog.String("component", "deadline_watcher")),
	}
}

// Run scans unfinalized topics on each tick. Call in a goroutine; it returns
// when the context is cancelled.
func (w *DeadlineWatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollDur)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.sweep(ctx); err != nil {
				w.logger.ErrorContext(ctx, "deadline sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// sweep advances every unfinalized topic that has a lapsed deadline. Each
// step is attempted unconditionally; the service rejects steps that are not
// due with window or readiness errors, which the sweep ignores.
func (w *DeadlineWatcher) sweep(ctx context.Context) error {
	opts := domain.ListOpts{Limit: w.batchSize}

	betting, err := w.resolution.ListByStatus(ctx, domain.TopicStatusBetting, opts)
	if err != nil {
		return err
	}
	reporting, err := w.resolution.ListByStatus(ctx, domain.TopicStatusReporting, opts)
	if err != nil {
		return err
	}

	for _, rec := range append(betting, reporting...) {
		w.advance(ctx, rec)
	}
	return nil
}

// advance tries each lifecycle step for one topic in order. A step that is
// not yet due fails with an expected error and the next one is tried.
func (w *DeadlineWatcher) advance(ctx context.Context, rec domain.Topic) {
	if rec.Round == 0 {
		err := w.resolution.ForceResolve(ctx, rec.ID)
		switch {
		case err == nil:
			w.logger.InfoContext(ctx, "round 0 force-resolved", slog.String("topic_id", rec.ID))
			return
		case expected(err):
		default:
			w.logger.ErrorContext(ctx, "force resolve failed",
				slog.String("topic_id", rec.ID),
				slog.String("error", err.Error()),
			)
			return
		}
	}

	// Finalization takes priority over invalidation: a round whose deadline
	// lapsed while its leader matches the tentative outcome is confirmation,
	// not failure.
	_, err := w.resolution.Finalize(ctx, rec.ID)
	if err == nil {
		return
	}
	if !expected(err) {
		w.logger.ErrorContext(ctx, "finalize failed",
			slog.String("topic_id", rec.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	err = w.resolution.InvalidateRound(ctx, rec.ID)
	switch {
	case err == nil:
		w.logger.InfoContext(ctx, "round invalidated", slog.String("topic_id", rec.ID))
	case expected(err):
	default:
		w.logger.ErrorContext(ctx, "invalidate failed",
			slog.String("topic_id", rec.ID),
			slog.String("error", err.Error()),
		)
	}
}

// expected reports whether an error is a normal not-yet-due or contention
// outcome of a sweep step.
func expected(err error) bool {
	return errors.Is(err, domain.ErrWindowNotReached) ||
		errors.Is(err, domain.ErrNotReady) ||
		errors.Is(err, domain.ErrAlreadyReported) ||
		errors.Is(err, domain.ErrAlreadyFinalized) ||
		errors.Is(err, domain.ErrLockHeld)
}
