package domain

import "errors"

// Resolution taxonomy. Every validation failure in the core maps to exactly
// one of these sentinels so callers can branch with errors.Is.
var (
	ErrInvalidOutcome         = errors.New("invalid outcome index")
	ErrInvalidDeadlineOrdering = errors.New("deadlines not strictly increasing")
	ErrInsufficientStake      = errors.New("stake below required minimum")
	ErrInsufficientAllowance  = errors.New("token allowance insufficient")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrAlreadyReported        = errors.New("already reported in this round")
	ErrAlreadyFinalized       = errors.New("already finalized")
	ErrAlreadyWithdrawn       = errors.New("share already withdrawn")
	ErrNothingToWithdraw      = errors.New("nothing to withdraw")
	ErrNotReady               = errors.New("not ready")
	ErrWindowClosed           = errors.New("window closed")
	ErrWindowNotReached       = errors.New("window not reached")
)

// Infrastructure errors shared by the store and cache adapters.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrLockHeld      = errors.New("lock already held")
)
