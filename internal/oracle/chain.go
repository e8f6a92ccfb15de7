package oracle

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openquorum/resolved/internal/domain"
)

// Chain orchestrates the ordered sequence of rounds for one topic. Rounds are
// appended, never removed; round 0 is the designated-report round and every
// later round is an open-vote round. After any conclusion the chain
// immediately opens the next round as the standing challenge tier, so the
// last round is always open and all prior rounds are concluded.
type Chain struct {
	Params      domain.ResolutionParams `json:"params"`
	NumOutcomes int                     `json:"num_outcomes"`
	Rounds      []*Round                `json:"rounds"`

	// CurrentOutcome is the tentative call, re-set at every conclusion and
	// locked in as the winner at finalization.
	CurrentOutcome *int `json:"current_outcome,omitempty"`

	Finalized   bool   `json:"finalized"`
	FinalizedAt uint64 `json:"finalized_at,omitempty"`
}

// NewChain creates a chain with round 0 spanning the reporting window
// (bettingDeadline, reportingDeadline).
func NewChain(params domain.ResolutionParams, numOutcomes int, reporter common.Address, bettingDeadline, reportingDeadline uint64) *Chain {
	return &Chain{
		Params:      params,
		NumOutcomes: numOutcomes,
		Rounds: []*Round{
			newDesignatedRound(reporter, params.MinReportStake, bettingDeadline, reportingDeadline),
		},
	}
}

// Active returns the currently active (last) round.
func (c *Chain) Active() *Round {
	return c.Rounds[len(c.Rounds)-1]
}

// SubmitReport routes a designated report to the active round. On success
// round 0 concludes with the reported outcome and round 1 opens at the base
// threshold.
func (c *Chain) SubmitReport(now uint64, reporter common.Address, outcome int, stake *big.Int) error {
	if c.Finalized {
		return fmt.Errorf("oracle: submit report: %w", domain.ErrAlreadyFinalized)
	}
	r := c.Active()
	if err := r.SubmitReport(now, reporter, outcome, c.NumOutcomes, stake); err != nil {
		return err
	}
	c.advance(now, r)
	return nil
}

// ForceResolve concludes an expired round 0 that never received a report,
// using the betting-phase majority outcome as the de-facto report, then
// proceeds exactly as if that outcome had been reported.
func (c *Chain) ForceResolve(now uint64, bettingLeader int) error {
	if c.Finalized {
		return fmt.Errorf("oracle: force resolve: %w", domain.ErrAlreadyFinalized)
	}
	r := c.Rounds[0]
	if r.Concluded {
		return fmt.Errorf("oracle: force resolve: %w", domain.ErrAlreadyReported)
	}
	if now < r.Deadline {
		return fmt.Errorf("oracle: force resolve: %w", domain.ErrWindowNotReached)
	}
	if bettingLeader < 0 || bettingLeader >= c.NumOutcomes {
		return fmt.Errorf("oracle: force resolve outcome %d: %w", bettingLeader, domain.ErrInvalidOutcome)
	}

	r.conclude(now, bettingLeader)
	c.advance(now, r)
	return nil
}

// AddVoteStake accumulates vote stake on the active round. When the stake
// crosses the round's threshold the round concludes and the next round opens
// with a strictly larger threshold.
func (c *Chain) AddVoteStake(now uint64, outcome int, amount *big.Int) (concluded bool, err error) {
	if c.Finalized {
		return false, fmt.Errorf("oracle: add vote stake: %w", domain.ErrAlreadyFinalized)
	}
	r := c.Active()
	concluded, err = r.AddStake(now, outcome, amount)
	if err != nil {
		return false, err
	}
	if concluded {
		c.advance(now, r)
	}
	return concluded, nil
}

// InvalidateActive concludes the active open-vote round after its deadline
// passed without consensus, carrying the round's majority-so-far outcome (or
// the standing current outcome when the round saw no stake) and escalating to
// the next round.
func (c *Chain) InvalidateActive(now uint64) error {
	if c.Finalized {
		return fmt.Errorf("oracle: invalidate: %w", domain.ErrAlreadyFinalized)
	}
	if c.CurrentOutcome == nil {
		return fmt.Errorf("oracle: invalidate: %w", domain.ErrNotReady)
	}
	r := c.Active()
	if err := r.Invalidate(now, *c.CurrentOutcome); err != nil {
		return err
	}
	c.advance(now, r)
	return nil
}

// Finalize locks in the current outcome once the active challenge round has
// stayed quiet for the arbitration window: no stake leading on a different
// outcome, and ArbitrationWindow heights elapsed since the round opened.
func (c *Chain) Finalize(now uint64) (winner int, err error) {
	if c.Finalized {
		return 0, fmt.Errorf("oracle: finalize: %w", domain.ErrAlreadyFinalized)
	}
	if c.CurrentOutcome == nil {
		return 0, fmt.Errorf("oracle: finalize: %w", domain.ErrNotReady)
	}

	r := c.Active()
	if now < r.OpenedAt+c.Params.ArbitrationWindow {
		return 0, fmt.Errorf("oracle: finalize: %w", domain.ErrNotReady)
	}
	if leading, ok := r.Leading(); ok && leading != *c.CurrentOutcome {
		// A live challenge is leading on a different outcome; the round
		// must play out (threshold or invalidation) before finalizing.
		return 0, fmt.Errorf("oracle: finalize: %w", domain.ErrNotReady)
	}

	c.Finalized = true
	c.FinalizedAt = now
	return *c.CurrentOutcome, nil
}

// advance records the concluded round's outcome as the current call and opens
// the next open-vote round. After round 0 the threshold is the configured
// base; after an open-vote round it escalates by the configured factor, so
// thresholds grow strictly monotonically.
func (c *Chain) advance(now uint64, concluded *Round) {
	c.CurrentOutcome = concluded.Reported

	var threshold *big.Int
	if concluded.Kind == domain.RoundDesignatedReport {
		threshold = new(big.Int).Set(c.Params.BaseThreshold)
	} else {
		threshold = new(big.Int).Mul(concluded.Threshold, new(big.Int).SetUint64(c.Params.EscalationFactor))
	}

	next := newOpenVoteRound(len(c.Rounds), c.NumOutcomes, threshold, now, c.Params.VotingPeriod)
	c.Rounds = append(c.Rounds, next)
}
