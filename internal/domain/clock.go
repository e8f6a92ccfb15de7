package domain

import "context"

// Clock supplies the ordinal height against which every deadline in the core
// is evaluated. Implementations include a manual clock for tests and an
// Ethereum block-number clock for production.
type Clock interface {
	Height(ctx context.Context) (uint64, error)
}
