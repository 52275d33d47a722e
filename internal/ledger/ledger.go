package ledger

import (
	"context"
	"errors"
)

// ErrAccountNotFound is returned for balances of accounts never provisioned.
var ErrAccountNotFound = errors.New("ledger account not found")

// Ledger provisions wallet accounts and reports their balances.
type Ledger interface {
	EnsureAccount(ctx context.Context, code string) error
	Balance(ctx context.Context, code string) (int64, error)
}
