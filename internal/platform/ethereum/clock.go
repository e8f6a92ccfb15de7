package ethereum

import (
	"context"
	"fmt"

	"github.com/openquorum/resolved/internal/domain"
)

// Clock implements domain.Clock using the chain's block number as the
// ordinal height.
type Clock struct {
	client *Client
}

// NewClock creates a block-number clock backed by the given client.
func NewClock(client *Client) *Clock {
	return &Clock{client: client}
}

// Height returns the current block number.
func (c *Clock) Height(ctx context.Context) (uint64, error) {
	n, err := c.client.ec.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("ethereum: block number: %w", err)
	}
	return n, nil
}

// Compile-time interface check.
var _ domain.Clock = (*Clock)(nil)
