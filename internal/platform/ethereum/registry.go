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

const registryABI = `[
	{"name":"getStakingToken","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"name":"getMinReportStake","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"getBaseThreshold","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"getEscalationFactor","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"getVotingPeriod","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"getArbitrationWindow","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

// Registry implements domain.Registry against the on-chain configuration
// registry. It is consulted once per topic at construction; the resulting
// parameter snapshot is immutable.
type Registry struct {
	client  *Client
	address common.Address
	abi     abi.ABI
}

// NewRegistry creates a registry adapter for the contract at address.
func NewRegistry(client *Client, address common.Address) (*Registry, error) {
	parsed, err := abi.JSON(strings.NewReader(registryABI))
	if err != nil {
		return nil, fmt.Errorf("ethereum: parse registry abi: %w", err)
	}
	return &Registry{client: client, address: address, abi: parsed}, nil
}

// StakingTokenAddress returns the address of the staking token contract.
func (r *Registry) StakingTokenAddress(ctx context.Context) (common.Address, error) {
	out, err := r.call(ctx, "getStakingToken")
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := out.(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("ethereum: getStakingToken returned unexpected type %T", out)
	}
	return addr, nil
}

// DefaultResolutionParams fetches the registry's current default resolution
// parameters.
func (r *Registry) DefaultResolutionParams(ctx context.Context) (domain.ResolutionParams, error) {
	var params domain.ResolutionParams
	var err error

	if params.MinReportStake, err = r.callUint(ctx, "getMinReportStake"); err != nil {
		return params, err
	}
	if params.BaseThreshold, err = r.callUint(ctx, "getBaseThreshold"); err != nil {
		return params, err
	}

	factor, err := r.callUint(ctx, "getEscalationFactor")
	if err != nil {
		return params, err
	}
	params.EscalationFactor = factor.Uint64()

	period, err := r.callUint(ctx, "getVotingPeriod")
	if err != nil {
		return params, err
	}
	params.VotingPeriod = period.Uint64()

	window, err := r.callUint(ctx, "getArbitrationWindow")
	if err != nil {
		return params, err
	}
	params.ArbitrationWindow = window.Uint64()

	return params, nil
}

func (r *Registry) call(ctx context.Context, method string) (any, error) {
	data, err := r.abi.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("ethereum: pack %s: %w", method, err)
	}
	out, err := r.client.ec.CallContract(ctx, ethereum.CallMsg{
		To:   &r.address,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("ethereum: call %s: %w", method, err)
	}
	results, err := r.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("ethereum: unpack %s: %w", method, err)
	}
	return results[0], nil
}

func (r *Registry) callUint(ctx context.Context, method string) (*big.Int, error) {
	out, err := r.call(ctx, method)
	if err != nil {
		return nil, err
	}
	value, ok := out.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("ethereum: %s returned unexpected type %T", method, out)
	}
	return value, nil
}

// Compile-time interface check.
var _ domain.Registry = (*Registry)(nil)
