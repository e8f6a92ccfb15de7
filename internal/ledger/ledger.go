// Package ledger implements the stake ledger for one topic: per-participant,
// per-outcome bet balances for the betting phase and per-round token vote
// records for the voting phases, plus the proportional share release used by
// the payout engine.
package ledger

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openquorum/resolved/internal/domain"
)

// Vote is a single recorded token vote. A participant may vote at most once
// per round; the per-round map doubles as the has-voted flag.
type Vote struct {
	Outcome int      `json:"outcome"`
	Amount  *big.Int `json:"amount"`
}

// Ledger tracks all stake contributed to a topic. Entries are created on
// first contribution and zeroed, never deleted, on withdrawal so the audit
// trail survives payout. Fields are exported for state serialization; all
// mutation goes through methods.
type Ledger struct {
	NumOutcomes int `json:"num_outcomes"`

	// Bets maps participant -> outcome -> accumulated native bet amount.
	Bets map[common.Address]map[int]*big.Int `json:"bets"`

	// Votes maps round index -> participant -> recorded vote.
	Votes map[int]map[common.Address]Vote `json:"votes"`

	// Payout snapshots, captured once at finalization so that earlier
	// withdrawals cannot skew later shares.
	Winning         *int     `json:"winning,omitempty"`
	PoolSnapshot    *big.Int `json:"pool_snapshot,omitempty"`
	WinningSnapshot *big.Int `json:"winning_snapshot,omitempty"`
}

// New creates an empty ledger for a topic with the given number of outcomes.
func New(numOutcomes int) *Ledger {
	return &Ledger{
		NumOutcomes: numOutcomes,
		Bets:        make(map[common.Address]map[int]*big.Int),
		Votes:       make(map[int]map[common.Address]Vote),
	}
}

// RecordBet adds amount to the participant's balance on the given outcome.
// Repeated bets on the same outcome accumulate; nothing is overwritten.
func (l *Ledger) RecordBet(participant common.Address, outcome int, amount *big.Int) error {
	if outcome < 0 || outcome >= l.NumOutcomes {
		return fmt.Errorf("ledger: record bet outcome %d: %w", outcome, domain.ErrInvalidOutcome)
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("ledger: record bet: %w", domain.ErrInsufficientStake)
	}

	byOutcome, ok := l.Bets[participant]
	if !ok {
		byOutcome = make(map[int]*big.Int)
		l.Bets[participant] = byOutcome
	}
	cur, ok := byOutcome[outcome]
	if !ok {
		cur = new(big.Int)
		byOutcome[outcome] = cur
	}
	cur.Add(cur, amount)
	return nil
}

// HasVoted reports whether the participant already voted in the given round.
// The flag is scoped to the round: voting in round 1 does not prevent voting
// in round 2.
func (l *Ledger) HasVoted(round int, participant common.Address) bool {
	_, ok := l.Votes[round][participant]
	return ok
}

// RecordVote records the participant's token vote for the given round.
func (l *Ledger) RecordVote(round int, participant common.Address, outcome int, amount *big.Int) error {
	if outcome < 0 || outcome >= l.NumOutcomes {
		return fmt.Errorf("ledger: record vote outcome %d: %w", outcome, domain.ErrInvalidOutcome)
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("ledger: record vote: %w", domain.ErrInsufficientStake)
	}
	if l.HasVoted(round, participant) {
		return fmt.Errorf("ledger: record vote round %d: %w", round, domain.ErrAlreadyReported)
	}

	byParticipant, ok := l.Votes[round]
	if !ok {
		byParticipant = make(map[common.Address]Vote)
		l.Votes[round] = byParticipant
	}
	byParticipant[participant] = Vote{Outcome: outcome, Amount: new(big.Int).Set(amount)}
	return nil
}

// BalanceOf returns the participant's accumulated bet balance on outcome.
func (l *Ledger) BalanceOf(participant common.Address, outcome int) *big.Int {
	if cur, ok := l.Bets[participant][outcome]; ok {
		return new(big.Int).Set(cur)
	}
	return new(big.Int)
}

// TotalOf returns the total bet stake across all participants on outcome.
func (l *Ledger) TotalOf(outcome int) *big.Int {
	total := new(big.Int)
	for _, byOutcome := range l.Bets {
		if cur, ok := byOutcome[outcome]; ok {
			total.Add(total, cur)
		}
	}
	return total
}

// GrandTotal returns the total bet stake across all outcomes.
func (l *Ledger) GrandTotal() *big.Int {
	total := new(big.Int)
	for _, byOutcome := range l.Bets {
		for _, cur := range byOutcome {
			total.Add(total, cur)
		}
	}
	return total
}

// LeadingOutcome returns the outcome with the largest betting-phase stake.
// Ties break to the lowest index, as does the all-zero case.
func (l *Ledger) LeadingOutcome() int {
	leader := 0
	best := l.TotalOf(0)
	for i := 1; i < l.NumOutcomes; i++ {
		if t := l.TotalOf(i); t.Cmp(best) > 0 {
			leader, best = i, t
		}
	}
	return leader
}

// Finalize locks in the winning outcome and snapshots the pool and the
// winning-outcome total for proportional payout. Idempotent calls with the
// same winner are rejected; the chain calls this exactly once.
func (l *Ledger) Finalize(winning int) error {
	if winning < 0 || winning >= l.NumOutcomes {
		return fmt.Errorf("ledger: finalize outcome %d: %w", winning, domain.ErrInvalidOutcome)
	}
	if l.Winning != nil {
		return fmt.Errorf("ledger: finalize: %w", domain.ErrAlreadyFinalized)
	}
	w := winning
	l.Winning = &w
	l.PoolSnapshot = l.GrandTotal()
	l.WinningSnapshot = l.TotalOf(winning)
	return nil
}

// ReleaseShare computes the participant's proportional share of the pooled
// stake, zeroes their winning-outcome balance, and returns the share. The
// balance is zeroed before the caller moves any value, so a reentrant second
// call observes an empty balance.
//
//	share = poolSnapshot * balance / winningSnapshot   (floor division)
func (l *Ledger) ReleaseShare(participant common.Address) (*big.Int, error) {
	if l.Winning == nil {
		return nil, fmt.Errorf("ledger: release share: %w", domain.ErrNotReady)
	}
	if l.WinningSnapshot.Sign() == 0 {
		return nil, fmt.Errorf("ledger: release share: %w", domain.ErrNothingToWithdraw)
	}

	balance, ok := l.Bets[participant][*l.Winning]
	if !ok || balance.Sign() == 0 {
		return nil, fmt.Errorf("ledger: release share: %w", domain.ErrAlreadyWithdrawn)
	}

	share := new(big.Int).Mul(l.PoolSnapshot, balance)
	share.Quo(share, l.WinningSnapshot)

	// Zero, do not delete: the entry remains as an audit marker.
	balance.SetInt64(0)
	return share, nil
}
