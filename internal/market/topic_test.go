package market

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openquorum/resolved/internal/domain"
)

var (
	alice    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob      = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	carol    = common.HexToAddress("0x00000000000000000000000000000000000000c3")
	reporter = common.HexToAddress("0x00000000000000000000000000000000000000e1")
)

func amt(n int64) *big.Int { return big.NewInt(n) }

func testParams() domain.TopicParams {
	return domain.TopicParams{
		ID:                "topic-1",
		Question:          "Which team wins the final?",
		Outcomes:          []string{"Team A", "Team B", "Draw"},
		BettingDeadline:   100,
		ReportingDeadline: 200,
		Reporter:          reporter,
	}
}

func testResolution() domain.ResolutionParams {
	return domain.ResolutionParams{
		MinReportStake:    big.NewInt(100),
		BaseThreshold:     big.NewInt(100),
		EscalationFactor:  2,
		VotingPeriod:      100,
		ArbitrationWindow: 20,
	}
}

func newTestTopic(t *testing.T) *Topic {
	t.Helper()
	topic, err := New(testParams(), testResolution())
	require.NoError(t, err)
	return topic
}

func TestNew_Validation(t *testing.T) {
	t.Run("too few outcomes", func(t *testing.T) {
		p := testParams()
		p.Outcomes = []string{"only one"}
		_, err := New(p, testResolution())
		assert.ErrorIs(t, err, domain.ErrInvalidOutcome)
	})

	t.Run("too many outcomes", func(t *testing.T) {
		p := testParams()
		p.Outcomes = make([]string, 11)
		_, err := New(p, testResolution())
		assert.ErrorIs(t, err, domain.ErrInvalidOutcome)
	})

	t.Run("deadlines not increasing", func(t *testing.T) {
		p := testParams()
		p.ReportingDeadline = p.BettingDeadline
		_, err := New(p, testResolution())
		assert.ErrorIs(t, err, domain.ErrInvalidDeadlineOrdering)
	})

	t.Run("zero reporter", func(t *testing.T) {
		p := testParams()
		p.Reporter = common.Address{}
		_, err := New(p, testResolution())
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})
}

func TestPlaceBet_BalancesAndPool(t *testing.T) {
	topic := newTestTopic(t)

	// One participant spreads 13/7/4 across the three outcomes.
	require.NoError(t, topic.PlaceBet(10, alice, 0, amt(13)))
	require.NoError(t, topic.PlaceBet(11, alice, 1, amt(7)))
	require.NoError(t, topic.PlaceBet(12, alice, 2, amt(4)))

	assert.Equal(t, amt(24), topic.Ledger.GrandTotal())
	assert.Equal(t, amt(24), topic.Pool)
	assert.Equal(t, amt(13), topic.Ledger.BalanceOf(alice, 0))
	assert.Equal(t, amt(7), topic.Ledger.BalanceOf(alice, 1))
	assert.Equal(t, amt(4), topic.Ledger.BalanceOf(alice, 2))
}

func TestPlaceBet_WindowBoundaries(t *testing.T) {
	topic := newTestTopic(t)

	// The last height before the deadline is accepted.
	require.NoError(t, topic.PlaceBet(99, alice, 0, amt(1)))

	// The deadline height itself is closed.
	err := topic.PlaceBet(100, alice, 0, amt(1))
	assert.ErrorIs(t, err, domain.ErrWindowClosed)

	// The pool is untouched by the rejected bet.
	assert.Equal(t, amt(1), topic.Pool)
}

func TestSubmitReport_TransitionsToReporting(t *testing.T) {
	topic := newTestTopic(t)
	require.NoError(t, topic.PlaceBet(10, alice, 1, amt(5)))

	// Reporting before the betting deadline is premature.
	err := topic.SubmitReport(99, reporter, 1, amt(100))
	assert.ErrorIs(t, err, domain.ErrWindowNotReached)
	assert.Equal(t, domain.TopicStatusBetting, topic.Status)

	require.NoError(t, topic.SubmitReport(150, reporter, 1, amt(100)))

	assert.Equal(t, domain.TopicStatusReporting, topic.Status)
	require.Len(t, topic.Chain.Rounds, 2)
	assert.Equal(t, domain.RoundOpenVote, topic.Chain.Active().Kind)
	assert.Equal(t, big.NewInt(100), topic.Chain.Active().Threshold)
}

func TestCastVote_ThirdVoteCrossesThreshold(t *testing.T) {
	topic := newTestTopic(t)
	require.NoError(t, topic.PlaceBet(10, alice, 1, amt(5)))
	require.NoError(t, topic.SubmitReport(150, reporter, 1, amt(100)))

	// Round 1 threshold is 100: 20 and 35 on outcome 0 leave it open, the
	// third vote of 101 on outcome 2 crosses and concludes the round.
	require.NoError(t, topic.CastVote(160, alice, 0, amt(20), nil))
	require.NoError(t, topic.CastVote(161, bob, 0, amt(35), nil))
	require.NoError(t, topic.CastVote(162, carol, 2, amt(101), nil))

	require.Len(t, topic.Chain.Rounds, 3)
	assert.Equal(t, 2, *topic.Chain.CurrentOutcome)

	// Round 2 escalated strictly above round 1's threshold.
	assert.Equal(t, big.NewInt(200), topic.Chain.Active().Threshold)
}

func TestCastVote_DoubleVoteSameRound(t *testing.T) {
	topic := newTestTopic(t)
	require.NoError(t, topic.SubmitReport(150, reporter, 1, amt(100)))

	require.NoError(t, topic.CastVote(160, alice, 0, amt(20), nil))

	err := topic.CastVote(161, alice, 2, amt(20), nil)
	assert.ErrorIs(t, err, domain.ErrAlreadyReported)
}

func TestCastVote_TransferFailureLeavesNoState(t *testing.T) {
	topic := newTestTopic(t)
	require.NoError(t, topic.SubmitReport(150, reporter, 1, amt(100)))

	failing := func() error { return errors.New("transfer reverted") }

	err := topic.CastVote(160, alice, 0, amt(20), failing)
	assert.ErrorIs(t, err, domain.ErrInsufficientAllowance)

	// Nothing was recorded: the participant may retry.
	assert.False(t, topic.Ledger.HasVoted(1, alice))
	assert.Zero(t, topic.Chain.Active().StakeByOutcome[0].Sign())

	require.NoError(t, topic.CastVote(161, alice, 0, amt(20), nil))
}

func TestCastVote_TransferNotAttemptedOnInvalidVote(t *testing.T) {
	topic := newTestTopic(t)
	require.NoError(t, topic.SubmitReport(150, reporter, 1, amt(100)))

	called := false
	transfer := func() error { called = true; return nil }

	err := topic.CastVote(160, alice, 5, amt(20), transfer)
	assert.ErrorIs(t, err, domain.ErrInvalidOutcome)
	assert.False(t, called)
}

func TestForceResolve_UsesBettingMajority(t *testing.T) {
	topic := newTestTopic(t)

	require.NoError(t, topic.PlaceBet(10, alice, 0, amt(10)))
	require.NoError(t, topic.PlaceBet(11, bob, 2, amt(25)))
	require.NoError(t, topic.PlaceBet(12, carol, 1, amt(5)))

	// The reporting window expires with no report submitted.
	err := topic.ForceResolve(150)
	assert.ErrorIs(t, err, domain.ErrWindowNotReached)

	require.NoError(t, topic.ForceResolve(200))

	assert.Equal(t, domain.TopicStatusReporting, topic.Status)
	require.NotNil(t, topic.Chain.CurrentOutcome)
	assert.Equal(t, 2, *topic.Chain.CurrentOutcome)
	require.Len(t, topic.Chain.Rounds, 2)
	assert.Equal(t, domain.RoundOpenVote, topic.Chain.Active().Kind)
}

func TestFinalize_Idempotence(t *testing.T) {
	topic := newTestTopic(t)
	require.NoError(t, topic.PlaceBet(10, alice, 1, amt(10)))
	require.NoError(t, topic.SubmitReport(150, reporter, 1, amt(100)))

	winner, err := topic.Finalize(170)
	require.NoError(t, err)
	assert.Equal(t, 1, winner)
	assert.Equal(t, domain.TopicStatusFinalized, topic.Status)

	poolBefore := new(big.Int).Set(topic.Pool)

	_, err = topic.Finalize(171)
	assert.ErrorIs(t, err, domain.ErrAlreadyFinalized)
	assert.Equal(t, poolBefore, topic.Pool)
	assert.Equal(t, amt(10), topic.Ledger.BalanceOf(alice, 1))
}

func TestWithdraw_EvenSplit(t *testing.T) {
	topic := newTestTopic(t)
	oneEther := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	require.NoError(t, topic.PlaceBet(10, alice, 1, oneEther))
	require.NoError(t, topic.PlaceBet(11, bob, 1, oneEther))
	require.NoError(t, topic.SubmitReport(150, reporter, 1, amt(100)))

	// Withdrawals before finalization are premature.
	_, err := topic.Withdraw(160, alice)
	assert.ErrorIs(t, err, domain.ErrNotReady)

	_, err = topic.Finalize(170)
	require.NoError(t, err)

	shareA, err := topic.Withdraw(171, alice)
	require.NoError(t, err)
	assert.Equal(t, oneEther, shareA)

	shareB, err := topic.Withdraw(172, bob)
	require.NoError(t, err)
	assert.Equal(t, oneEther, shareB)

	// The pool is exactly drained.
	assert.Zero(t, topic.Pool.Sign())

	// Second withdrawal transfers nothing.
	_, err = topic.Withdraw(173, alice)
	assert.ErrorIs(t, err, domain.ErrNothingToWithdraw)
}

func TestStateRoundTrip(t *testing.T) {
	topic := newTestTopic(t)
	require.NoError(t, topic.PlaceBet(10, alice, 1, amt(30)))
	require.NoError(t, topic.PlaceBet(11, bob, 0, amt(10)))
	require.NoError(t, topic.SubmitReport(150, reporter, 1, amt(100)))
	require.NoError(t, topic.CastVote(160, carol, 1, amt(40), nil))

	state, err := topic.MarshalState()
	require.NoError(t, err)

	restored, err := Restore(state)
	require.NoError(t, err)

	assert.Equal(t, topic.Status, restored.Status)
	assert.Equal(t, amt(40), restored.Pool)
	assert.Equal(t, amt(30), restored.Ledger.BalanceOf(alice, 1))
	assert.True(t, restored.Ledger.HasVoted(1, carol))
	require.Len(t, restored.Chain.Rounds, 2)
	assert.Equal(t, amt(40), restored.Chain.Active().StakeByOutcome[1])

	// The restored topic keeps operating where the original left off.
	_, err = restored.Finalize(180)
	require.NoError(t, err)
}

func TestEvents_EmittedAndDrained(t *testing.T) {
	topic := newTestTopic(t)
	require.NoError(t, topic.PlaceBet(10, alice, 1, amt(10)))

	evts := topic.DrainEvents()
	require.Len(t, evts, 1)
	assert.Equal(t, domain.EventBetPlaced, evts[0].Kind)
	assert.Equal(t, alice, evts[0].Participant)
	assert.Equal(t, amt(10), evts[0].Amount)
	assert.Equal(t, uint64(10), evts[0].Height)

	// Drained: the queue is empty until the next operation.
	assert.Empty(t, topic.DrainEvents())

	require.NoError(t, topic.SubmitReport(150, reporter, 1, amt(100)))
	evts = topic.DrainEvents()
	require.Len(t, evts, 2)
	assert.Equal(t, domain.EventRoundConcluded, evts[0].Kind)
	assert.Equal(t, domain.EventRoundOpened, evts[1].Kind)
}
