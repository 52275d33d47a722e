package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/druid/internal/binding"
	"github.com/congo-pay/druid/internal/identity"
	"github.com/congo-pay/druid/internal/onboarding"
	"github.com/congo-pay/druid/internal/wallet"
)

const defaultCurrency = "XAF"

// Wallets provisions the wallet created alongside each user.
type Wallets interface {
	Create(ctx context.Context, input wallet.CreateInput) (wallet.Wallet, error)
}

// Service manages the user lifecycle.
type Service struct {
	repo    Repository
	wallets Wallets
	logger  *slog.Logger
	pinCost int
	now     func() time.Time
}

// NewService creates a users service. wallets may be nil, in which case no
// wallet is provisioned on registration.
func NewService(repo Repository, wallets Wallets, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, wallets: wallets, logger: logger, pinCost: bcrypt.DefaultCost, now: time.Now}
}

// Register creates a user and auto-provisions a wallet. A wallet failure is
// logged and does not fail the registration.
func (s *Service) Register(ctx context.Context, in RegisterInput) (User, error) {
	user := User{
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Email:     normalizeEmail(in.Email),
		Phone:     strings.TrimSpace(in.Phone),
		CreatedAt: s.now().UTC(),
	}
	if err := validateContact(user.Email, user.Phone); err != nil {
		return User{}, err
	}

	id, err := s.repo.Create(ctx, user)
	if err != nil {
		return User{}, err
	}
	user.ID = id
	user.UpdatedAt = user.CreatedAt

	if s.wallets != nil {
		w, err := s.wallets.Create(ctx, wallet.CreateInput{OwnerID: id, Currency: defaultCurrency})
		if err != nil {
			s.logger.Warn("wallet provisioning failed", slog.Int64("user_id", id), slog.Any("error", err))
		} else if err := s.repo.SetWallet(ctx, id, w.AccountCode); err != nil {
			s.logger.Warn("store wallet address", slog.Int64("user_id", id), slog.Any("error", err))
		} else {
			user.WalletAddress = w.AccountCode
		}
	}

	s.logger.Info("users.register completed",
		slog.Int64("user_id", user.ID),
		slog.String("wallet_address", user.WalletAddress),
	)
	return user, nil
}

// Lookup finds a user by email or phone.
func (s *Service) Lookup(ctx context.Context, kind identity.Kind, value string) (User, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return User{}, ErrContactRequired
	}
	if kind == identity.KindEmail {
		return s.repo.FindByEmail(ctx, normalizeEmail(value))
	}
	return s.repo.FindByPhone(ctx, value)
}

// Get fetches a user by id.
func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	return s.repo.FindByID(ctx, id)
}

// SetPIN hashes and stores a 6-digit PIN.
func (s *Service) SetPIN(ctx context.Context, userID int64, pin string) error {
	if !validPIN(pin) {
		return ErrInvalidPIN
	}
	if _, err := s.repo.FindByID(ctx, userID); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), s.pinCost)
	if err != nil {
		return fmt.Errorf("hash pin: %w", err)
	}
	if err := s.repo.UpdatePIN(ctx, userID, hash); err != nil {
		return err
	}
	s.logger.Info("users.set_pin completed", slog.Int64("user_id", userID))
	return nil
}

// SaveSigner records the passkey-derived address for the user named by
// SignerID. Registering the same address again succeeds; a different one
// fails with ErrSignerConflict.
func (s *Service) SaveSigner(ctx context.Context, signer binding.Signer) (User, error) {
	address := strings.TrimSpace(signer.ContractID)
	switch address {
	case "":
		return User{}, ErrAddressRequired
	case identity.SkippedSetup:
		return User{}, ErrReservedAddress
	}
	id, err := strconv.ParseInt(strings.TrimSpace(signer.SignerID), 10, 64)
	if err != nil || id <= 0 {
		return User{}, ErrInvalidSigner
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if signer.Email != "" && normalizeEmail(signer.Email) != user.Email {
		return User{}, ErrSignerContact
	}
	if signer.Phone != "" && strings.TrimSpace(signer.Phone) != user.Phone {
		return User{}, ErrSignerContact
	}

	if err := s.repo.BindPasskey(ctx, id, address); err != nil {
		if errors.Is(err, ErrSignerConflict) {
			s.logger.Warn("signer conflict", slog.Int64("user_id", id))
		}
		return User{}, err
	}
	user.PasskeyAddress = address
	s.logger.Info("signers.save completed", slog.Int64("user_id", id))
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateContact(email, phone string) error {
	if email == "" && phone == "" {
		return ErrContactRequired
	}
	if email != "" {
		at := strings.Index(email, "@")
		if at <= 0 || at == len(email)-1 || strings.Count(email, "@") != 1 {
			return ErrInvalidEmail
		}
	}
	if phone != "" {
		digits := strings.TrimPrefix(phone, "+")
		if len(digits) < 6 || len(digits) > 15 {
			return ErrInvalidPhone
		}
		for _, r := range digits {
			if r < '0' || r > '9' {
				return ErrInvalidPhone
			}
		}
	}
	return nil
}

func validPIN(pin string) bool {
	if len(pin) != onboarding.PINLength {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
