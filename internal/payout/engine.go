// Package payout releases finalized topic pools to winning bettors,
// proportional to each bettor's stake on the winning outcome, exactly once
// per bettor.
package payout

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openquorum/resolved/internal/domain"
	"github.com/openquorum/resolved/internal/market"
)

// Engine pays out shares from finalized topics. The ledger entry is zeroed
// inside Topic.Withdraw before the engine moves any value, so a reentrant or
// repeated withdrawal observes an empty balance.
type Engine struct {
	dispenser domain.ValueDispenser
	logger    *slog.Logger
}

// NewEngine creates a payout engine that releases value through dispenser.
func NewEngine(dispenser domain.ValueDispenser, logger *slog.Logger) *Engine {
	return &Engine{
		dispenser: dispenser,
		logger:    logger.With(slog.String("component", "payout")),
	}
}

// Withdraw computes and releases the participant's share of the topic pool.
// It fails with NothingToWithdraw for double withdrawals and non-participants
// and with NotReady before finalization.
func (e *Engine) Withdraw(ctx context.Context, t *market.Topic, now uint64, participant common.Address) (*big.Int, error) {
	share, err := t.Withdraw(now, participant)
	if err != nil {
		return nil, err
	}

	if e.dispenser != nil {
		if err := e.dispenser.Send(ctx, participant, share); err != nil {
			// The ledger entry is already zeroed; the failed transfer is
			// surfaced so the operator can replay it from the event log.
			e.logger.ErrorContext(ctx, "payout: value transfer failed",
				slog.String("topic_id", t.Params.ID),
				slog.String("participant", participant.Hex()),
				slog.String("share", share.String()),
				slog.String("error", err.Error()),
			)
			return nil, fmt.Errorf("payout: send share to %s: %w", participant.Hex(), err)
		}
	}

	e.logger.InfoContext(ctx, "payout: share released",
		slog.String("topic_id", t.Params.ID),
		slog.String("participant", participant.Hex()),
		slog.String("share", share.String()),
	)
	return share, nil
}
