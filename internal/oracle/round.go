// Package oracle implements the tiered oracle-consensus protocol: single
// escalation rounds (designated report or open vote) and the resolution chain
// that sequences them until a final outcome survives its arbitration window.
package oracle

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openquorum/resolved/internal/domain"
)

// Round is a single escalation tier. A round is a tagged variant: designated
// report rounds carry Reporter and MinStake, open-vote rounds carry Threshold.
// Exactly one reportedOutcome is ever set; a concluded round accepts no
// further stake.
type Round struct {
	Index int              `json:"index"`
	Kind  domain.RoundKind `json:"kind"`

	// Designated-report rounds only.
	Reporter common.Address `json:"reporter,omitempty"`
	MinStake *big.Int       `json:"min_stake,omitempty"`

	// Open-vote rounds only.
	Threshold      *big.Int   `json:"threshold,omitempty"`
	StakeByOutcome []*big.Int `json:"stake_by_outcome,omitempty"`

	OpenedAt    uint64 `json:"opened_at"`
	Deadline    uint64 `json:"deadline"`
	Reported    *int   `json:"reported,omitempty"`
	Concluded   bool   `json:"concluded"`
	ConcludedAt uint64 `json:"concluded_at,omitempty"`
}

// newDesignatedRound builds round 0. Its window opens at openedAt (the
// betting deadline) and closes at deadline (the reporting deadline).
func newDesignatedRound(reporter common.Address, minStake *big.Int, openedAt, deadline uint64) *Round {
	return &Round{
		Index:    0,
		Kind:     domain.RoundDesignatedReport,
		Reporter: reporter,
		MinStake: new(big.Int).Set(minStake),
		OpenedAt: openedAt,
		Deadline: deadline,
	}
}

// newOpenVoteRound builds an open-vote round with the given consensus
// threshold, open from now until now+period.
func newOpenVoteRound(index int, numOutcomes int, threshold *big.Int, now, period uint64) *Round {
	stake := make([]*big.Int, numOutcomes)
	for i := range stake {
		stake[i] = new(big.Int)
	}
	return &Round{
		Index:          index,
		Kind:           domain.RoundOpenVote,
		Threshold:      new(big.Int).Set(threshold),
		StakeByOutcome: stake,
		OpenedAt:       now,
		Deadline:       now + period,
	}
}

// Open reports whether the round still accepts reports or stake.
func (r *Round) Open() bool {
	return !r.Concluded
}

// SubmitReport concludes a designated-report round with the reporter's
// outcome. The reporter must be the designated authority, must post at least
// MinStake, and must report inside the round's window.
func (r *Round) SubmitReport(now uint64, reporter common.Address, outcome, numOutcomes int, stake *big.Int) error {
	if r.Kind != domain.RoundDesignatedReport {
		return fmt.Errorf("oracle: submit report round %d: %w", r.Index, domain.ErrUnauthorized)
	}
	if r.Concluded {
		return fmt.Errorf("oracle: submit report round %d: %w", r.Index, domain.ErrAlreadyReported)
	}
	if now < r.OpenedAt {
		return fmt.Errorf("oracle: submit report round %d: %w", r.Index, domain.ErrWindowNotReached)
	}
	if now >= r.Deadline {
		return fmt.Errorf("oracle: submit report round %d: %w", r.Index, domain.ErrWindowClosed)
	}
	if reporter != r.Reporter {
		return fmt.Errorf("oracle: submit report round %d: %w", r.Index, domain.ErrUnauthorized)
	}
	if outcome < 0 || outcome >= numOutcomes {
		return fmt.Errorf("oracle: submit report round %d: %w", r.Index, domain.ErrInvalidOutcome)
	}
	if stake == nil || stake.Cmp(r.MinStake) < 0 {
		return fmt.Errorf("oracle: submit report round %d: %w", r.Index, domain.ErrInsufficientStake)
	}

	r.conclude(now, outcome)
	return nil
}

// CanAccept reports whether the round would accept the given vote stake
// right now. It performs every validation of AddStake without mutating the
// round, so callers can complete external effects (the token transfer)
// between validation and the actual accumulation.
func (r *Round) CanAccept(now uint64, outcome int, amount *big.Int) error {
	if r.Kind != domain.RoundOpenVote {
		return fmt.Errorf("oracle: add stake round %d: %w", r.Index, domain.ErrUnauthorized)
	}
	if r.Concluded {
		return fmt.Errorf("oracle: add stake round %d: %w", r.Index, domain.ErrAlreadyReported)
	}
	if now < r.OpenedAt {
		return fmt.Errorf("oracle: add stake round %d: %w", r.Index, domain.ErrWindowNotReached)
	}
	if now >= r.Deadline {
		return fmt.Errorf("oracle: add stake round %d: %w", r.Index, domain.ErrWindowClosed)
	}
	if outcome < 0 || outcome >= len(r.StakeByOutcome) {
		return fmt.Errorf("oracle: add stake round %d: %w", r.Index, domain.ErrInvalidOutcome)
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("oracle: add stake round %d: %w", r.Index, domain.ErrInsufficientStake)
	}
	return nil
}

// AddStake accumulates vote stake on an outcome of an open-vote round. The
// round concludes the instant the outcome's accumulator reaches Threshold;
// the conclusion is threshold-exact.
func (r *Round) AddStake(now uint64, outcome int, amount *big.Int) (concluded bool, err error) {
	if err := r.CanAccept(now, outcome, amount); err != nil {
		return false, err
	}

	acc := r.StakeByOutcome[outcome]
	acc.Add(acc, amount)

	if acc.Cmp(r.Threshold) >= 0 {
		r.conclude(now, outcome)
		return true, nil
	}
	return false, nil
}

// Invalidate concludes an open-vote round past its deadline with the majority
// outcome so far, falling back to the supplied outcome when the round saw no
// stake at all. It is usable only after the deadline has passed.
func (r *Round) Invalidate(now uint64, fallback int) error {
	if r.Kind != domain.RoundOpenVote {
		return fmt.Errorf("oracle: invalidate round %d: %w", r.Index, domain.ErrUnauthorized)
	}
	if r.Concluded {
		return fmt.Errorf("oracle: invalidate round %d: %w", r.Index, domain.ErrAlreadyReported)
	}
	if now < r.Deadline {
		return fmt.Errorf("oracle: invalidate round %d: %w", r.Index, domain.ErrWindowNotReached)
	}

	outcome, ok := r.Leading()
	if !ok {
		outcome = fallback
	}
	r.conclude(now, outcome)
	return nil
}

// Leading returns the outcome with the largest accumulated stake in this
// round and whether any stake was recorded at all. Ties break to the lowest
// index.
func (r *Round) Leading() (outcome int, ok bool) {
	best := new(big.Int)
	for i, acc := range r.StakeByOutcome {
		if acc.Cmp(best) > 0 {
			outcome, best = i, acc
			ok = true
		}
	}
	return outcome, ok
}

func (r *Round) conclude(now uint64, outcome int) {
	o := outcome
	r.Reported = &o
	r.Concluded = true
	r.ConcludedAt = now
}
