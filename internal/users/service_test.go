package users

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/druid/internal/binding"
	"github.com/congo-pay/druid/internal/identity"
	"github.com/congo-pay/druid/internal/ledger"
	"github.com/congo-pay/druid/internal/logging"
	"github.com/congo-pay/druid/internal/wallet"
)

func newTestService(t *testing.T) (*Service, Repository) {
	t.Helper()
	repo := NewMemoryRepository()
	wallets := wallet.NewService(wallet.NewMemoryRepository(), ledger.NewInMemory())
	svc := NewService(repo, wallets, logging.Discard())
	svc.pinCost = bcrypt.MinCost
	return svc, repo
}

type failingWallets struct{}

func (failingWallets) Create(context.Context, wallet.CreateInput) (wallet.Wallet, error) {
	return wallet.Wallet{}, errors.New("ledger down")
}

func TestRegisterProvisionsWallet(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterInput{FirstName: " Ada ", Email: "Ada@Example.com"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.ID == 0 || user.Email != "ada@example.com" || user.FirstName != "Ada" {
		t.Fatalf("unexpected user %+v", user)
	}
	if user.WalletAddress == "" {
		t.Fatalf("expected wallet address to be provisioned")
	}

	stored, err := repo.FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.WalletAddress != user.WalletAddress {
		t.Fatalf("expected stored wallet %q, got %q", user.WalletAddress, stored.WalletAddress)
	}
}

func TestRegisterSurvivesWalletFailure(t *testing.T) {
	svc := NewService(NewMemoryRepository(), failingWallets{}, logging.Discard())
	user, err := svc.Register(context.Background(), RegisterInput{Phone: "+242061234567"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.WalletAddress != "" {
		t.Fatalf("expected no wallet, got %q", user.WalletAddress)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		in   RegisterInput
		want error
	}{
		{"no contact", RegisterInput{FirstName: "x"}, ErrContactRequired},
		{"bad email", RegisterInput{Email: "nope"}, ErrInvalidEmail},
		{"bad phone", RegisterInput{Phone: "06-12"}, ErrInvalidPhone},
	}
	for _, tc := range cases {
		if _, err := svc.Register(ctx, tc.in); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}

	if _, err := svc.Register(ctx, RegisterInput{Email: "a@b.co"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Register(ctx, RegisterInput{Email: "A@B.co"}); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
}

func TestLookupByKind(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	user, err := svc.Register(ctx, RegisterInput{Email: "ada@example.com", Phone: "061234567"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	byEmail, err := svc.Lookup(ctx, identity.KindEmail, " ADA@example.com ")
	if err != nil || byEmail.ID != user.ID {
		t.Fatalf("lookup by email: %+v %v", byEmail, err)
	}
	byPhone, err := svc.Lookup(ctx, identity.KindPhone, "061234567")
	if err != nil || byPhone.ID != user.ID {
		t.Fatalf("lookup by phone: %+v %v", byPhone, err)
	}
	if _, err := svc.Lookup(ctx, identity.KindPhone, "000000000"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Lookup(ctx, identity.KindEmail, ""); !errors.Is(err, ErrContactRequired) {
		t.Fatalf("expected ErrContactRequired, got %v", err)
	}
}

func TestSetPINHashesAndRedacts(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	user, _ := svc.Register(ctx, RegisterInput{Email: "ada@example.com"})

	if err := svc.SetPIN(ctx, user.ID, "12345"); !errors.Is(err, ErrInvalidPIN) {
		t.Fatalf("expected ErrInvalidPIN, got %v", err)
	}
	if err := svc.SetPIN(ctx, user.ID, "12a456"); !errors.Is(err, ErrInvalidPIN) {
		t.Fatalf("expected ErrInvalidPIN for non-digits, got %v", err)
	}
	if err := svc.SetPIN(ctx, 999, "123456"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := svc.SetPIN(ctx, user.ID, "123456"); err != nil {
		t.Fatalf("set pin: %v", err)
	}

	stored, _ := repo.FindByID(ctx, user.ID)
	if err := bcrypt.CompareHashAndPassword(stored.PINHash, []byte("123456")); err != nil {
		t.Fatalf("stored hash does not match: %v", err)
	}
	rec := stored.Record()
	if rec.HashedPIN != identity.PINSetMarker {
		t.Fatalf("expected redacted marker, got %q", rec.HashedPIN)
	}
}

func TestSaveSigner(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	user, _ := svc.Register(ctx, RegisterInput{Email: "ada@example.com"})

	signer := binding.Signer{ContractID: "CABC", SignerID: itoa(user.ID), Email: "ada@example.com"}
	saved, err := svc.SaveSigner(ctx, signer)
	if err != nil {
		t.Fatalf("save signer: %v", err)
	}
	if saved.PasskeyAddress != "CABC" {
		t.Fatalf("expected bound address, got %q", saved.PasskeyAddress)
	}

	if _, err := svc.SaveSigner(ctx, signer); err != nil {
		t.Fatalf("same signer should be accepted again: %v", err)
	}

	signer.ContractID = "CXYZ"
	if _, err := svc.SaveSigner(ctx, signer); !errors.Is(err, ErrSignerConflict) {
		t.Fatalf("expected ErrSignerConflict, got %v", err)
	}
}

func TestSaveSignerValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	user, _ := svc.Register(ctx, RegisterInput{Email: "ada@example.com"})
	id := itoa(user.ID)

	cases := []struct {
		name   string
		signer binding.Signer
		want   error
	}{
		{"empty address", binding.Signer{SignerID: id}, ErrAddressRequired},
		{"sentinel address", binding.Signer{ContractID: identity.SkippedSetup, SignerID: id}, ErrReservedAddress},
		{"bad signer id", binding.Signer{ContractID: "CABC", SignerID: "ada"}, ErrInvalidSigner},
		{"unknown user", binding.Signer{ContractID: "CABC", SignerID: "999"}, ErrNotFound},
		{"wrong email", binding.Signer{ContractID: "CABC", SignerID: id, Email: "eve@example.com"}, ErrSignerContact},
	}
	for _, tc := range cases {
		if _, err := svc.SaveSigner(ctx, tc.signer); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}
