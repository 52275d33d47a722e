package wallet

import (
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("wallet not found")
	ErrExists        = errors.New("wallet already exists")
	ErrOwnerRequired = errors.New("owner id is required")
)

// Wallet is a stored value account backed by the ledger. AccountCode doubles
// as the wallet address handed to the user.
type Wallet struct {
	ID          string
	OwnerID     int64
	AccountCode string
	Currency    string
	Status      string
	CreatedAt   time.Time
}

// Balance encapsulates available funds for a wallet.
type Balance struct {
	WalletID string
	Amount   int64
	AsOf     time.Time
}
