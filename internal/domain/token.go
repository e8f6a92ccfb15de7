package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// StakingToken is the fungible token used as the voting stake medium. The
// core calls TransferFrom during vote recording and treats any failure as an
// insufficient allowance.
type StakingToken interface {
	Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error)
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
	TransferFrom(ctx context.Context, from, to common.Address, amount *big.Int) error
}

// ValueDispenser releases pooled native value to a participant during payout.
type ValueDispenser interface {
	Send(ctx context.Context, to common.Address, amount *big.Int) error
}

// Registry is the external configuration registry consumed at topic
// construction time only; the resulting ResolutionParams snapshot is immutable
// thereafter.
type Registry interface {
	StakingTokenAddress(ctx context.Context) (common.Address, error)
	DefaultResolutionParams(ctx context.Context) (ResolutionParams, error)
}
