package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/openquorum/resolved/internal/domain"
)

const erc20ABI = `[
	{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"transferFrom","type":"function","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

// ERC20 implements domain.StakingToken against a standard ERC-20 contract.
type ERC20 struct {
	client     *Client
	transactor *Transactor
	address    common.Address
	abi        abi.ABI
}

// NewERC20 creates a staking token adapter for the contract at address.
func NewERC20(client *Client, transactor *Transactor, address common.Address) (*ERC20, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("ethereum: parse erc20 abi: %w", err)
	}
	return &ERC20{
		client:     client,
		transactor: transactor,
		address:    address,
		abi:        parsed,
	}, nil
}

// Allowance returns the amount spender may move on owner's behalf.
func (t *ERC20) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	return t.callUint(ctx, "allowance", owner, spender)
}

// BalanceOf returns the owner's token balance.
func (t *ERC20) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	return t.callUint(ctx, "balanceOf", owner)
}

// TransferFrom moves amount from `from` into `to` using the operator's
// spender allowance. Any failure -- revert, false return, or RPC error -- is
// reported to the caller, which treats it as an insufficient allowance.
func (t *ERC20) TransferFrom(ctx context.Context, from, to common.Address, amount *big.Int) error {
	data, err := t.abi.Pack("transferFrom", from, to, amount)
	if err != nil {
		return fmt.Errorf("ethereum: pack transferFrom: %w", err)
	}
	if err := t.transactor.Execute(ctx, t.address, data); err != nil {
		return fmt.Errorf("ethereum: transferFrom %s: %w", from.Hex(), err)
	}
	return nil
}

func (t *ERC20) callUint(ctx context.Context, method string, args ...any) (*big.Int, error) {
	data, err := t.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("ethereum: pack %s: %w", method, err)
	}

	out, err := t.client.ec.CallContract(ctx, ethereum.CallMsg{
		To:   &t.address,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("ethereum: call %s: %w", method, err)
	}

	results, err := t.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("ethereum: unpack %s: %w", method, err)
	}
	value, ok := results[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("ethereum: %s returned unexpected type %T", method, results[0])
	}
	return value, nil
}

// Compile-time interface check.
var _ domain.StakingToken = (*ERC20)(nil)
