package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/openquorum/resolved/internal/domain"
)

const vaultABI = `[
	{"name":"release","type":"function","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]}
]`

// Vault implements domain.ValueDispenser against the payout vault contract
// holding the pooled bet value.
type Vault struct {
	transactor *Transactor
	address    common.Address
	abi        abi.ABI
}

// NewVault creates a vault adapter for the contract at address.
func NewVault(transactor *Transactor, address common.Address) (*Vault, error) {
	parsed, err := abi.JSON(strings.NewReader(vaultABI))
	if err != nil {
		return nil, fmt.Errorf("ethereum: parse vault abi: %w", err)
	}
	return &Vault{transactor: transactor, address: address, abi: parsed}, nil
}

// Send releases amount from the vault to the participant.
func (v *Vault) Send(ctx context.Context, to common.Address, amount *big.Int) error {
	data, err := v.abi.Pack("release", to, amount)
	if err != nil {
		return fmt.Errorf("ethereum: pack release: %w", err)
	}
	if err := v.transactor.Execute(ctx, v.address, data); err != nil {
		return fmt.Errorf("ethereum: release to %s: %w", to.Hex(), err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.ValueDispenser = (*Vault)(nil)
