// Package market implements the topic aggregate: one resolution instance
// combining the stake ledger, the oracle resolution chain, and the pooled
// native balance. All operations take the current ordinal height explicitly
// and are deterministic given a fixed operation order; every operation
// validates fully before mutating anything.
package market

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/openquorum/resolved/internal/domain"
	"github.com/openquorum/resolved/internal/ledger"
	"github.com/openquorum/resolved/internal/oracle"
)

// TransferFunc moves vote stake from the voter into custody. It runs after
// all vote validation has passed and before any ledger mutation; a failure
// is surfaced as an insufficient allowance.
type TransferFunc func() error

// Topic is one resolution instance. Fields are exported for state
// serialization; all mutation goes through methods. Callers are responsible
// for serializing access (single writer per topic).
type Topic struct {
	Params     domain.TopicParams      `json:"params"`
	Resolution domain.ResolutionParams `json:"resolution"`
	Status     domain.TopicStatus      `json:"status"`
	Ledger     *ledger.Ledger          `json:"ledger"`
	Chain      *oracle.Chain           `json:"chain"`

	// Pool is the topic's native value balance: the sum of all bets minus
	// all released shares.
	Pool *big.Int `json:"pool"`

	events []domain.Event
}

// New creates a topic with validated parameters and its round-0
// designated-report round. The resolution parameters are snapshotted here and
// never re-read.
func New(params domain.TopicParams, resolution domain.ResolutionParams) (*Topic, error) {
	if n := len(params.Outcomes); n < domain.MinOutcomes || n > domain.MaxOutcomes {
		return nil, fmt.Errorf("market: new topic with %d outcomes: %w", len(params.Outcomes), domain.ErrInvalidOutcome)
	}
	if params.ReportingDeadline <= params.BettingDeadline {
		return nil, fmt.Errorf("market: new topic: %w", domain.ErrInvalidDeadlineOrdering)
	}
	if params.Reporter == (common.Address{}) {
		return nil, fmt.Errorf("market: new topic with zero reporter: %w", domain.ErrUnauthorized)
	}

	n := len(params.Outcomes)
	return &Topic{
		Params:     params,
		Resolution: resolution,
		Status:     domain.TopicStatusBetting,
		Ledger:     ledger.New(n),
		Chain:      oracle.NewChain(resolution, n, params.Reporter, params.BettingDeadline, params.ReportingDeadline),
		Pool:       new(big.Int),
	}, nil
}

// Restore deserializes a topic state blob produced by MarshalState.
func Restore(state []byte) (*Topic, error) {
	var t Topic
	if err := json.Unmarshal(state, &t); err != nil {
		return nil, fmt.Errorf("market: restore topic: %w", err)
	}
	return &t, nil
}

// MarshalState serializes the full topic state (params, ledger, rounds, pool)
// for persistence.
func (t *Topic) MarshalState() ([]byte, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("market: marshal topic %s: %w", t.Params.ID, err)
	}
	return data, nil
}

// PlaceBet records a native-value bet on an outcome during the open betting
// window. The received value joins the topic pool.
func (t *Topic) PlaceBet(now uint64, participant common.Address, outcome int, amount *big.Int) error {
	t.advanceStatus(now)
	if t.Status != domain.TopicStatusBetting || now >= t.Params.BettingDeadline {
		return fmt.Errorf("market: place bet: %w", domain.ErrWindowClosed)
	}
	if err := t.Ledger.RecordBet(participant, outcome, amount); err != nil {
		return err
	}
	t.Pool.Add(t.Pool, amount)
	t.emit(domain.EventBetPlaced, participant, outcome, amount, 0, now)
	return nil
}

// SubmitReport submits the designated reporter's outcome for round 0. On
// success round 0 concludes and round 1 opens at the base threshold.
func (t *Topic) SubmitReport(now uint64, reporter common.Address, outcome int, stake *big.Int) error {
	t.advanceStatus(now)
	if err := t.Chain.SubmitReport(now, reporter, outcome, stake); err != nil {
		return err
	}
	t.emit(domain.EventRoundConcluded, reporter, outcome, stake, 0, now)
	t.emit(domain.EventRoundOpened, common.Address{}, outcome, t.Chain.Active().Threshold, t.Chain.Active().Index, now)
	return nil
}

// ForceResolve concludes an expired round 0 that received no report, using
// the betting-phase majority outcome as the de-facto report.
func (t *Topic) ForceResolve(now uint64) error {
	t.advanceStatus(now)
	leader := t.Ledger.LeadingOutcome()
	if err := t.Chain.ForceResolve(now, leader); err != nil {
		return err
	}
	t.emit(domain.EventRoundConcluded, common.Address{}, leader, new(big.Int), 0, now)
	t.emit(domain.EventRoundOpened, common.Address{}, leader, t.Chain.Active().Threshold, t.Chain.Active().Index, now)
	return nil
}

// CastVote records a token-stake vote in the active open-vote round. All
// validation happens first, then the token transfer, then the ledger and
// round mutations; a failed transfer maps to an insufficient allowance and
// leaves no state behind.
func (t *Topic) CastVote(now uint64, participant common.Address, outcome int, amount *big.Int, transfer TransferFunc) error {
	t.advanceStatus(now)
	if t.Status == domain.TopicStatusFinalized {
		return fmt.Errorf("market: cast vote: %w", domain.ErrWindowClosed)
	}

	r := t.Chain.Active()
	if err := r.CanAccept(now, outcome, amount); err != nil {
		return err
	}
	if t.Ledger.HasVoted(r.Index, participant) {
		return fmt.Errorf("market: cast vote round %d: %w", r.Index, domain.ErrAlreadyReported)
	}

	if transfer != nil {
		if err := transfer(); err != nil {
			return fmt.Errorf("market: cast vote: %w: %v", domain.ErrInsufficientAllowance, err)
		}
	}

	if err := t.Ledger.RecordVote(r.Index, participant, outcome, amount); err != nil {
		return err
	}
	concluded, err := t.Chain.AddVoteStake(now, outcome, amount)
	if err != nil {
		return err
	}

	t.emit(domain.EventVoteRecorded, participant, outcome, amount, r.Index, now)
	if concluded {
		t.emit(domain.EventRoundConcluded, participant, outcome, r.StakeByOutcome[outcome], r.Index, now)
		t.emit(domain.EventRoundOpened, common.Address{}, outcome, t.Chain.Active().Threshold, t.Chain.Active().Index, now)
	}
	return nil
}

// InvalidateRound concludes the active open-vote round after its deadline
// passed without consensus and escalates to the next round.
func (t *Topic) InvalidateRound(now uint64) error {
	t.advanceStatus(now)
	r := t.Chain.Active()
	if err := t.Chain.InvalidateActive(now); err != nil {
		return err
	}
	t.emit(domain.EventRoundConcluded, common.Address{}, *r.Reported, new(big.Int), r.Index, now)
	t.emit(domain.EventRoundOpened, common.Address{}, *r.Reported, t.Chain.Active().Threshold, t.Chain.Active().Index, now)
	return nil
}

// Finalize locks in the winning outcome once the arbitration window has
// elapsed with no live challenge, snapshots the payout pool, and transitions
// the topic to Finalized. Idempotent failure: a second call reports
// AlreadyFinalized and changes nothing.
func (t *Topic) Finalize(now uint64) (winner int, err error) {
	t.advanceStatus(now)
	winner, err = t.Chain.Finalize(now)
	if err != nil {
		return 0, err
	}
	if err := t.Ledger.Finalize(winner); err != nil {
		return 0, err
	}
	t.Status = domain.TopicStatusFinalized
	t.emit(domain.EventChainFinalized, common.Address{}, winner, t.Ledger.PoolSnapshot, t.Chain.Active().Index, now)
	return winner, nil
}

// Withdraw releases the participant's proportional share of the pool. The
// ledger entry is zeroed before the share leaves the pool, so a second call
// reports NothingToWithdraw and moves nothing.
func (t *Topic) Withdraw(now uint64, participant common.Address) (*big.Int, error) {
	if t.Status != domain.TopicStatusFinalized {
		return nil, fmt.Errorf("market: withdraw: %w", domain.ErrNotReady)
	}
	share, err := t.Ledger.ReleaseShare(participant)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyWithdrawn) {
			return nil, fmt.Errorf("market: withdraw: %w", domain.ErrNothingToWithdraw)
		}
		return nil, err
	}
	t.Pool.Sub(t.Pool, share)
	t.emit(domain.EventShareWithdrawn, participant, *t.Ledger.Winning, share, t.Chain.Active().Index, now)
	return share, nil
}

// FinalOutcome returns the finalized winning outcome, if any.
func (t *Topic) FinalOutcome() (int, bool) {
	if t.Status != domain.TopicStatusFinalized || t.Ledger.Winning == nil {
		return 0, false
	}
	return *t.Ledger.Winning, true
}

// Record builds the persisted summary record from the current state.
func (t *Topic) Record() domain.Topic {
	rec := domain.Topic{
		ID:                t.Params.ID,
		Question:          t.Params.Question,
		Outcomes:          t.Params.Outcomes,
		BettingDeadline:   t.Params.BettingDeadline,
		ReportingDeadline: t.Params.ReportingDeadline,
		Reporter:          t.Params.Reporter,
		Status:            t.Status,
		Pool:              new(big.Int).Set(t.Pool),
		Round:             t.Chain.Active().Index,
		CreatedAt:         t.Params.CreatedAt,
		UpdatedAt:         time.Now().UTC(),
	}
	if t.Chain.CurrentOutcome != nil {
		o := *t.Chain.CurrentOutcome
		rec.CurrentOutcome = &o
	}
	if w, ok := t.FinalOutcome(); ok {
		rec.FinalOutcome = &w
	}
	return rec
}

// DrainEvents returns and clears the events emitted since the last drain.
func (t *Topic) DrainEvents() []domain.Event {
	evts := t.events
	t.events = nil
	return evts
}

// advanceStatus performs the lazy Betting -> Reporting transition once the
// betting deadline has been reached. The Finalized transition happens only in
// Finalize.
func (t *Topic) advanceStatus(now uint64) {
	if t.Status == domain.TopicStatusBetting && now >= t.Params.BettingDeadline {
		t.Status = domain.TopicStatusReporting
	}
}

func (t *Topic) emit(kind domain.EventKind, participant common.Address, outcome int, amount *big.Int, round int, height uint64) {
	amt := new(big.Int)
	if amount != nil {
		amt.Set(amount)
	}
	t.events = append(t.events, domain.Event{
		ID:          uuid.New().String(),
		TopicID:     t.Params.ID,
		Kind:        kind,
		Participant: participant,
		Outcome:     outcome,
		Amount:      amt,
		Round:       round,
		Height:      height,
		CreatedAt:   time.Now().UTC(),
	})
}
