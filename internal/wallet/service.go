package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/druid/internal/ledger"
)

const (
	statusActive    = "active"
	defaultCurrency = "XAF"
)

// Service exposes wallet operations backed by the ledger.
type Service struct {
	repo   Repository
	ledger ledger.Ledger
	now    func() time.Time
}

// NewService builds a wallet service instance.
func NewService(repo Repository, ledger ledger.Ledger) *Service {
	return &Service{repo: repo, ledger: ledger, now: time.Now}
}

// CreateInput captures data required to create a wallet.
type CreateInput struct {
	OwnerID  int64
	Currency string
}

// Create provisions a wallet and its ledger account. An owner holds at most
// one wallet; asking again returns the existing one.
func (s *Service) Create(ctx context.Context, input CreateInput) (Wallet, error) {
	if input.OwnerID <= 0 {
		return Wallet{}, ErrOwnerRequired
	}
	if existing, err := s.repo.GetByOwner(ctx, input.OwnerID); err == nil {
		return existing, nil
	}

	walletID := uuid.New().String()
	accountCode := fmt.Sprintf("wallet:%s", walletID)

	if err := s.ledger.EnsureAccount(ctx, accountCode); err != nil {
		return Wallet{}, fmt.Errorf("provision ledger account: %w", err)
	}

	currency := input.Currency
	if currency == "" {
		currency = defaultCurrency
	}

	wallet := Wallet{
		ID:          walletID,
		OwnerID:     input.OwnerID,
		AccountCode: accountCode,
		Currency:    currency,
		Status:      statusActive,
		CreatedAt:   s.now().UTC(),
	}

	if err := s.repo.Create(ctx, wallet); err != nil {
		return Wallet{}, err
	}

	return wallet, nil
}

// Get retrieves wallet metadata.
func (s *Service) Get(ctx context.Context, id string) (Wallet, error) {
	return s.repo.Get(ctx, id)
}

// ForOwner retrieves the wallet of a user.
func (s *Service) ForOwner(ctx context.Context, ownerID int64) (Wallet, error) {
	return s.repo.GetByOwner(ctx, ownerID)
}

// Balance returns the ledger balance for the wallet.
func (s *Service) Balance(ctx context.Context, w Wallet) (Balance, error) {
	amount, err := s.ledger.Balance(ctx, w.AccountCode)
	if err != nil {
		return Balance{}, err
	}
	return Balance{WalletID: w.ID, Amount: amount, AsOf: s.now().UTC()}, nil
}
