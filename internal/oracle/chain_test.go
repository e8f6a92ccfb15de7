package oracle

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openquorum/resolved/internal/domain"
)

func params() domain.ResolutionParams {
	return domain.ResolutionParams{
		MinReportStake:    big.NewInt(100),
		BaseThreshold:     big.NewInt(50),
		EscalationFactor:  2,
		VotingPeriod:      100,
		ArbitrationWindow: 20,
	}
}

func newTestChain() *Chain {
	return NewChain(params(), 3, reporter, bettingDeadline, reportingDeadline)
}

func TestChain_ReportOpensVotingRound(t *testing.T) {
	c := newTestChain()

	require.Len(t, c.Rounds, 1)
	assert.Equal(t, domain.RoundDesignatedReport, c.Rounds[0].Kind)

	require.NoError(t, c.SubmitReport(150, reporter, 1, big.NewInt(100)))

	// Round 0 concluded, round 1 opened automatically at the base threshold.
	require.Len(t, c.Rounds, 2)
	assert.False(t, c.Rounds[0].Open())
	assert.Equal(t, domain.RoundOpenVote, c.Rounds[1].Kind)
	assert.Equal(t, big.NewInt(50), c.Rounds[1].Threshold)
	assert.Equal(t, uint64(150), c.Rounds[1].OpenedAt)
	assert.Equal(t, uint64(250), c.Rounds[1].Deadline)

	require.NotNil(t, c.CurrentOutcome)
	assert.Equal(t, 1, *c.CurrentOutcome)
}

func TestChain_VoteThresholdEscalation(t *testing.T) {
	c := newTestChain()
	require.NoError(t, c.SubmitReport(150, reporter, 1, big.NewInt(100)))

	// Three voters stake 20/35/51 behind outcomes 0/0/2: the third vote
	// crosses the threshold on outcome 2 and concludes round 1.
	concluded, err := c.AddVoteStake(160, 0, big.NewInt(20))
	require.NoError(t, err)
	assert.False(t, concluded)

	concluded, err = c.AddVoteStake(161, 0, big.NewInt(35))
	require.NoError(t, err)
	// 55 >= 50: outcome 0 crossed first.
	assert.True(t, concluded)

	require.Len(t, c.Rounds, 3)
	assert.Equal(t, 0, *c.CurrentOutcome)

	// Round 2 escalated to twice round 1's threshold.
	assert.Equal(t, big.NewInt(100), c.Rounds[2].Threshold)

	concluded, err = c.AddVoteStake(170, 2, big.NewInt(101))
	require.NoError(t, err)
	assert.True(t, concluded)
	assert.Equal(t, 2, *c.CurrentOutcome)
	assert.Equal(t, big.NewInt(200), c.Rounds[3].Threshold)
}

func TestChain_ForceResolveExpiredReport(t *testing.T) {
	c := newTestChain()

	// Too early: the designated window has not expired yet.
	err := c.ForceResolve(199, 2)
	assert.ErrorIs(t, err, domain.ErrWindowNotReached)

	require.NoError(t, c.ForceResolve(200, 2))
	require.Len(t, c.Rounds, 2)
	assert.Equal(t, 2, *c.CurrentOutcome)
	assert.Equal(t, 2, *c.Rounds[0].Reported)

	// A second force-resolution is rejected.
	err = c.ForceResolve(201, 1)
	assert.ErrorIs(t, err, domain.ErrAlreadyReported)
}

func TestChain_InvalidateEscalates(t *testing.T) {
	c := newTestChain()
	require.NoError(t, c.SubmitReport(150, reporter, 1, big.NewInt(100)))

	// Some stake lands on outcome 0 but never reaches the threshold.
	_, err := c.AddVoteStake(160, 0, big.NewInt(30))
	require.NoError(t, err)

	// Round 1 runs 150..250; invalidation concludes it with the majority.
	require.NoError(t, c.InvalidateActive(250))
	require.Len(t, c.Rounds, 3)
	assert.Equal(t, 0, *c.CurrentOutcome)
	assert.Equal(t, big.NewInt(100), c.Rounds[2].Threshold)
}

func TestChain_InvalidateWithoutVotesKeepsOutcome(t *testing.T) {
	c := newTestChain()
	require.NoError(t, c.SubmitReport(150, reporter, 1, big.NewInt(100)))

	require.NoError(t, c.InvalidateActive(250))
	assert.Equal(t, 1, *c.CurrentOutcome)
}

func TestChain_Finalize(t *testing.T) {
	c := newTestChain()

	// Nothing concluded yet.
	_, err := c.Finalize(300)
	assert.ErrorIs(t, err, domain.ErrNotReady)

	require.NoError(t, c.SubmitReport(150, reporter, 1, big.NewInt(100)))

	// Arbitration window (20 heights from round 1 opening at 150) still open.
	_, err = c.Finalize(169)
	assert.ErrorIs(t, err, domain.ErrNotReady)

	winner, err := c.Finalize(170)
	require.NoError(t, err)
	assert.Equal(t, 1, winner)
	assert.True(t, c.Finalized)

	// Idempotence: the second call fails and changes nothing.
	_, err = c.Finalize(171)
	assert.ErrorIs(t, err, domain.ErrAlreadyFinalized)
	assert.Equal(t, 1, *c.CurrentOutcome)
}

func TestChain_FinalizeBlockedByLiveChallenge(t *testing.T) {
	c := newTestChain()
	require.NoError(t, c.SubmitReport(150, reporter, 1, big.NewInt(100)))

	// A challenger leads on a different outcome inside round 1.
	_, err := c.AddVoteStake(160, 2, big.NewInt(10))
	require.NoError(t, err)

	_, err = c.Finalize(180)
	assert.ErrorIs(t, err, domain.ErrNotReady)

	// Stake on the standing outcome overtakes the challenger; finalization
	// unblocks.
	_, err = c.AddVoteStake(181, 1, big.NewInt(11))
	require.NoError(t, err)

	winner, err := c.Finalize(182)
	require.NoError(t, err)
	assert.Equal(t, 1, winner)
}

func TestChain_MutationsRejectedAfterFinalize(t *testing.T) {
	c := newTestChain()
	require.NoError(t, c.SubmitReport(150, reporter, 1, big.NewInt(100)))
	_, err := c.Finalize(170)
	require.NoError(t, err)

	_, err = c.AddVoteStake(171, 0, big.NewInt(10))
	assert.ErrorIs(t, err, domain.ErrAlreadyFinalized)

	assert.ErrorIs(t, c.InvalidateActive(300), domain.ErrAlreadyFinalized)
	assert.ErrorIs(t, c.SubmitReport(171, reporter, 0, big.NewInt(100)), domain.ErrAlreadyFinalized)
	assert.ErrorIs(t, c.ForceResolve(300, 0), domain.ErrAlreadyFinalized)
}
