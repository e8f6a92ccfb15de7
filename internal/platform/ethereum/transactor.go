package ethereum

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Transactor signs and submits contract calls from the operator key and
// waits for them to be mined.
type Transactor struct {
	client *Client
	key    *ecdsa.PrivateKey
	from   common.Address
}

// NewTransactor creates a Transactor from a hex-encoded secp256k1 private
// key.
func NewTransactor(client *Client, privateKeyHex string) (*Transactor, error) {
	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("ethereum: invalid private key: %w", err)
	}
	return &Transactor{
		client: client,
		key:    key,
		from:   ethcrypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// From returns the operator address derived from the signing key.
func (t *Transactor) From() common.Address {
	return t.from
}

// Execute signs, submits, and waits for a contract call. It returns an error
// if the transaction cannot be submitted or is mined with a failed status.
func (t *Transactor) Execute(ctx context.Context, to common.Address, data []byte) error {
	ec := t.client.ec

	nonce, err := ec.PendingNonceAt(ctx, t.from)
	if err != nil {
		return fmt.Errorf("ethereum: pending nonce: %w", err)
	}

	tipCap, err := ec.SuggestGasTipCap(ctx)
	if err != nil {
		return fmt.Errorf("ethereum: suggest tip cap: %w", err)
	}
	head, err := ec.HeaderByNumber(ctx, nil)
	if err != nil {
		return fmt.Errorf("ethereum: latest header: %w", err)
	}
	// Standard fee cap: 2*baseFee + tip keeps the tx valid across moderate
	// base-fee swings.
	feeCap := new(big.Int).Add(new(big.Int).Mul(head.BaseFee, big.NewInt(2)), tipCap)

	gas, err := ec.EstimateGas(ctx, ethereum.CallMsg{
		From: t.from,
		To:   &to,
		Data: data,
	})
	if err != nil {
		return fmt.Errorf("ethereum: estimate gas: %w", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   t.client.chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Data:      data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(t.client.chainID), t.key)
	if err != nil {
		return fmt.Errorf("ethereum: sign tx: %w", err)
	}
	if err := ec.SendTransaction(ctx, signed); err != nil {
		return fmt.Errorf("ethereum: send tx: %w", err)
	}

	receipt, err := bind.WaitMined(ctx, ec, signed)
	if err != nil {
		return fmt.Errorf("ethereum: wait mined %s: %w", signed.Hash(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("ethereum: tx %s reverted", signed.Hash())
	}
	return nil
}
