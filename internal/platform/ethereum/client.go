// Package ethereum implements the chain-facing collaborators: the ordinal
// block-height clock, the ERC-20 staking token, the configuration registry,
// and the payout vault.
package ethereum

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/ethclient"
)

// Client wraps an ethclient.Client together with the verified chain ID.
type Client struct {
	ec      *ethclient.Client
	chainID *big.Int
}

// Dial connects to the JSON-RPC endpoint and verifies it serves the expected
// chain.
func Dial(ctx context.Context, rpcURL string, expectedChainID int) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("ethereum: dial %s: %w", rpcURL, err)
	}

	chainID, err := ec.ChainID(ctx)
	if err != nil {
		ec.Close()
		return nil, fmt.Errorf("ethereum: chain id: %w", err)
	}
	if expectedChainID != 0 && chainID.Cmp(big.NewInt(int64(expectedChainID))) != 0 {
		ec.Close()
		return nil, fmt.Errorf("ethereum: endpoint serves chain %s, expected %d", chainID, expectedChainID)
	}

	return &Client{ec: ec, chainID: chainID}, nil
}

// ChainID returns the verified chain ID.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// Underlying returns the raw ethclient for sub-components that need direct
// access to the driver.
func (c *Client) Underlying() *ethclient.Client {
	return c.ec
}

// Close closes the RPC connection.
func (c *Client) Close() {
	c.ec.Close()
}
