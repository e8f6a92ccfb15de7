package oracle

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openquorum/resolved/internal/domain"
)

var (
	reporter = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	stranger = common.HexToAddress("0x00000000000000000000000000000000000000e2")
)

const (
	bettingDeadline   uint64 = 100
	reportingDeadline uint64 = 200
)

func designated() *Round {
	return newDesignatedRound(reporter, big.NewInt(100), bettingDeadline, reportingDeadline)
}

func TestDesignatedRound_SubmitReport(t *testing.T) {
	r := designated()

	require.NoError(t, r.SubmitReport(150, reporter, 1, 3, big.NewInt(100)))

	assert.False(t, r.Open())
	require.NotNil(t, r.Reported)
	assert.Equal(t, 1, *r.Reported)
	assert.Equal(t, uint64(150), r.ConcludedAt)
}

func TestDesignatedRound_SubmitReport_Failures(t *testing.T) {
	t.Run("wrong reporter", func(t *testing.T) {
		r := designated()
		err := r.SubmitReport(150, stranger, 1, 3, big.NewInt(100))
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
		assert.True(t, r.Open())
	})

	t.Run("stake below minimum", func(t *testing.T) {
		r := designated()
		err := r.SubmitReport(150, reporter, 1, 3, big.NewInt(99))
		assert.ErrorIs(t, err, domain.ErrInsufficientStake)
	})

	t.Run("invalid outcome", func(t *testing.T) {
		r := designated()
		err := r.SubmitReport(150, reporter, 3, 3, big.NewInt(100))
		assert.ErrorIs(t, err, domain.ErrInvalidOutcome)
	})

	t.Run("before window opens", func(t *testing.T) {
		r := designated()
		err := r.SubmitReport(99, reporter, 1, 3, big.NewInt(100))
		assert.ErrorIs(t, err, domain.ErrWindowNotReached)
	})

	t.Run("window opens exactly at betting deadline", func(t *testing.T) {
		r := designated()
		assert.NoError(t, r.SubmitReport(100, reporter, 1, 3, big.NewInt(100)))
	})

	t.Run("closed exactly at reporting deadline", func(t *testing.T) {
		r := designated()
		err := r.SubmitReport(200, reporter, 1, 3, big.NewInt(100))
		assert.ErrorIs(t, err, domain.ErrWindowClosed)
	})

	t.Run("second report rejected", func(t *testing.T) {
		r := designated()
		require.NoError(t, r.SubmitReport(150, reporter, 1, 3, big.NewInt(100)))
		err := r.SubmitReport(151, reporter, 2, 3, big.NewInt(100))
		assert.ErrorIs(t, err, domain.ErrAlreadyReported)
		assert.Equal(t, 1, *r.Reported)
	})
}

func TestOpenVoteRound_ThresholdExact(t *testing.T) {
	r := newOpenVoteRound(1, 2, big.NewInt(50), 100, 100)

	// One unit below the threshold does not conclude.
	concluded, err := r.AddStake(110, 0, big.NewInt(49))
	require.NoError(t, err)
	assert.False(t, concluded)
	assert.True(t, r.Open())

	// Reaching the threshold exactly concludes the round.
	concluded, err = r.AddStake(111, 0, big.NewInt(1))
	require.NoError(t, err)
	assert.True(t, concluded)
	assert.False(t, r.Open())
	assert.Equal(t, 0, *r.Reported)

	// No further stake is accepted after conclusion.
	_, err = r.AddStake(111, 1, big.NewInt(100))
	assert.ErrorIs(t, err, domain.ErrAlreadyReported)
}

func TestOpenVoteRound_Windows(t *testing.T) {
	r := newOpenVoteRound(1, 2, big.NewInt(50), 100, 100)

	_, err := r.AddStake(99, 0, big.NewInt(1))
	assert.ErrorIs(t, err, domain.ErrWindowNotReached)

	_, err = r.AddStake(200, 0, big.NewInt(1))
	assert.ErrorIs(t, err, domain.ErrWindowClosed)

	_, err = r.AddStake(150, 5, big.NewInt(1))
	assert.ErrorIs(t, err, domain.ErrInvalidOutcome)

	_, err = r.AddStake(150, 0, big.NewInt(0))
	assert.ErrorIs(t, err, domain.ErrInsufficientStake)
}

func TestOpenVoteRound_Invalidate(t *testing.T) {
	r := newOpenVoteRound(1, 3, big.NewInt(100), 100, 100)

	_, err := r.AddStake(110, 2, big.NewInt(30))
	require.NoError(t, err)
	_, err = r.AddStake(120, 1, big.NewInt(20))
	require.NoError(t, err)

	// Only usable once the deadline has passed.
	err = r.Invalidate(199, 0)
	assert.ErrorIs(t, err, domain.ErrWindowNotReached)

	require.NoError(t, r.Invalidate(200, 0))
	assert.False(t, r.Open())
	assert.Equal(t, 2, *r.Reported)
}

func TestOpenVoteRound_InvalidateWithoutStakeUsesFallback(t *testing.T) {
	r := newOpenVoteRound(1, 3, big.NewInt(100), 100, 100)

	require.NoError(t, r.Invalidate(200, 1))
	assert.Equal(t, 1, *r.Reported)
}

func TestDesignatedRound_InvalidateRejected(t *testing.T) {
	r := designated()
	err := r.Invalidate(300, 0)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}
