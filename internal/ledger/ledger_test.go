package ledger

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openquorum/resolved/internal/domain"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	carol = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

func amt(n int64) *big.Int { return big.NewInt(n) }

func TestRecordBet_AccumulatesPerOutcome(t *testing.T) {
	l := New(3)

	// Same participant spreads 13/7/4 across the three outcomes.
	require.NoError(t, l.RecordBet(alice, 0, amt(13)))
	require.NoError(t, l.RecordBet(alice, 1, amt(7)))
	require.NoError(t, l.RecordBet(alice, 2, amt(4)))

	assert.Equal(t, amt(13), l.BalanceOf(alice, 0))
	assert.Equal(t, amt(7), l.BalanceOf(alice, 1))
	assert.Equal(t, amt(4), l.BalanceOf(alice, 2))
	assert.Equal(t, amt(24), l.GrandTotal())
}

func TestRecordBet_RepeatedBetsSum(t *testing.T) {
	l := New(2)

	require.NoError(t, l.RecordBet(alice, 1, amt(10)))
	require.NoError(t, l.RecordBet(alice, 1, amt(5)))

	assert.Equal(t, amt(15), l.BalanceOf(alice, 1))
	assert.Equal(t, amt(15), l.TotalOf(1))
	assert.Equal(t, amt(0), l.TotalOf(0))
}

func TestRecordBet_Validation(t *testing.T) {
	l := New(2)

	err := l.RecordBet(alice, 2, amt(1))
	assert.ErrorIs(t, err, domain.ErrInvalidOutcome)

	err = l.RecordBet(alice, -1, amt(1))
	assert.ErrorIs(t, err, domain.ErrInvalidOutcome)

	err = l.RecordBet(alice, 0, amt(0))
	assert.ErrorIs(t, err, domain.ErrInsufficientStake)

	err = l.RecordBet(alice, 0, nil)
	assert.ErrorIs(t, err, domain.ErrInsufficientStake)

	// Nothing leaked into the ledger.
	assert.Equal(t, amt(0), l.GrandTotal())
}

func TestGrandTotal_MatchesSumOfAllBets(t *testing.T) {
	l := New(3)

	bets := []struct {
		who     common.Address
		outcome int
		amount  int64
	}{
		{alice, 0, 13},
		{bob, 0, 20},
		{carol, 2, 7},
		{alice, 1, 5},
		{bob, 2, 1},
	}

	var sum int64
	for _, b := range bets {
		require.NoError(t, l.RecordBet(b.who, b.outcome, amt(b.amount)))
		sum += b.amount

		// The invariant holds at every point in time, not just at the end.
		assert.Equal(t, amt(sum), l.GrandTotal())
	}

	assert.Equal(t, amt(33), l.TotalOf(0))
	assert.Equal(t, amt(5), l.TotalOf(1))
	assert.Equal(t, amt(8), l.TotalOf(2))
}

func TestRecordVote_PerRoundNamespace(t *testing.T) {
	l := New(2)

	require.NoError(t, l.RecordVote(1, alice, 0, amt(10)))
	assert.True(t, l.HasVoted(1, alice))
	assert.False(t, l.HasVoted(2, alice))

	// Double vote in the same round is rejected.
	err := l.RecordVote(1, alice, 1, amt(10))
	assert.ErrorIs(t, err, domain.ErrAlreadyReported)

	// A different outcome in a different round is fine.
	require.NoError(t, l.RecordVote(2, alice, 1, amt(10)))
}

func TestLeadingOutcome(t *testing.T) {
	l := New(3)

	// No bets at all: ties break to the lowest index.
	assert.Equal(t, 0, l.LeadingOutcome())

	require.NoError(t, l.RecordBet(alice, 2, amt(5)))
	assert.Equal(t, 2, l.LeadingOutcome())

	require.NoError(t, l.RecordBet(bob, 1, amt(5)))
	// 1 and 2 are tied at 5; the lower index wins.
	assert.Equal(t, 1, l.LeadingOutcome())

	require.NoError(t, l.RecordBet(carol, 2, amt(1)))
	assert.Equal(t, 2, l.LeadingOutcome())
}

func TestReleaseShare_ProportionalSplit(t *testing.T) {
	l := New(2)

	oneEther := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	require.NoError(t, l.RecordBet(alice, 1, oneEther))
	require.NoError(t, l.RecordBet(bob, 1, oneEther))
	require.NoError(t, l.Finalize(1))

	// Pool is 2 ether, both staked equally on the winner: 1 ether each.
	shareA, err := l.ReleaseShare(alice)
	require.NoError(t, err)
	assert.Equal(t, oneEther, shareA)

	shareB, err := l.ReleaseShare(bob)
	require.NoError(t, err)
	assert.Equal(t, oneEther, shareB)
}

func TestReleaseShare_LosersFundWinners(t *testing.T) {
	l := New(2)

	require.NoError(t, l.RecordBet(alice, 0, amt(30)))
	require.NoError(t, l.RecordBet(bob, 0, amt(10)))
	require.NoError(t, l.RecordBet(carol, 1, amt(60)))
	require.NoError(t, l.Finalize(0))

	// Pool 100, winning total 40: alice gets 75, bob gets 25.
	shareA, err := l.ReleaseShare(alice)
	require.NoError(t, err)
	assert.Equal(t, amt(75), shareA)

	shareB, err := l.ReleaseShare(bob)
	require.NoError(t, err)
	assert.Equal(t, amt(25), shareB)

	// Carol backed the loser.
	_, err = l.ReleaseShare(carol)
	assert.ErrorIs(t, err, domain.ErrAlreadyWithdrawn)
}

func TestReleaseShare_SnapshotUnaffectedByEarlierWithdrawals(t *testing.T) {
	l := New(2)

	require.NoError(t, l.RecordBet(alice, 0, amt(10)))
	require.NoError(t, l.RecordBet(bob, 0, amt(30)))
	require.NoError(t, l.Finalize(0))

	shareA, err := l.ReleaseShare(alice)
	require.NoError(t, err)
	assert.Equal(t, amt(10), shareA)

	// Bob's share is computed against the finalization snapshot, not the
	// post-withdrawal balances.
	shareB, err := l.ReleaseShare(bob)
	require.NoError(t, err)
	assert.Equal(t, amt(30), shareB)
}

func TestReleaseShare_SecondCallRejected(t *testing.T) {
	l := New(2)

	require.NoError(t, l.RecordBet(alice, 0, amt(10)))
	require.NoError(t, l.Finalize(0))

	_, err := l.ReleaseShare(alice)
	require.NoError(t, err)

	_, err = l.ReleaseShare(alice)
	assert.ErrorIs(t, err, domain.ErrAlreadyWithdrawn)

	// The zeroed entry survives as an audit marker.
	assert.Equal(t, amt(0), l.BalanceOf(alice, 0))
}

func TestReleaseShare_BeforeFinalize(t *testing.T) {
	l := New(2)
	require.NoError(t, l.RecordBet(alice, 0, amt(10)))

	_, err := l.ReleaseShare(alice)
	assert.ErrorIs(t, err, domain.ErrNotReady)
}

func TestReleaseShare_ZeroWinningTotal(t *testing.T) {
	l := New(2)
	require.NoError(t, l.RecordBet(alice, 0, amt(10)))
	require.NoError(t, l.Finalize(1))

	_, err := l.ReleaseShare(alice)
	assert.ErrorIs(t, err, domain.ErrNothingToWithdraw)
}

func TestFinalize_Once(t *testing.T) {
	l := New(2)
	require.NoError(t, l.RecordBet(alice, 0, amt(10)))

	require.NoError(t, l.Finalize(0))
	assert.ErrorIs(t, l.Finalize(0), domain.ErrAlreadyFinalized)
	assert.ErrorIs(t, l.Finalize(5), domain.ErrInvalidOutcome)
}
