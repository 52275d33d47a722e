package binding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/congo-pay/druid/internal/identity"
	"github.com/congo-pay/druid/internal/reconcile"
)

var (
	// ErrCredentialMismatch rejects an address that differs from the one
	// already bound to the identity.
	ErrCredentialMismatch = errors.New("invalid passkey")

	// ErrRegistrationFailed marks a failed best-effort signer registration.
	// It never fails a Bind call.
	ErrRegistrationFailed = errors.New("signer registration failed")

	// ErrAddressRequired rejects an empty passkey address.
	ErrAddressRequired = errors.New("passkey address is required")
)

// Signer is the signer registration request sent to the wallet backend.
type Signer struct {
	ContractID string `json:"contractId"`
	SignerID   string `json:"signerId"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

// SignerRegistry registers a passkey-derived signer remotely.
type SignerRegistry interface {
	SaveSigner(ctx context.Context, signer Signer) error
}

// Binder reconciles passkey addresses with identities. An identity carries at
// most one bound address.
type Binder struct {
	registry SignerRegistry
	recorder reconcile.Recorder
	logger   *slog.Logger
}

// NewBinder constructs a binder. A nil recorder falls back to logging.
func NewBinder(registry SignerRegistry, recorder reconcile.Recorder, logger *slog.Logger) *Binder {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = reconcile.NewLogRecorder(logger)
	}
	return &Binder{registry: registry, recorder: recorder, logger: logger}
}

// Bind associates address with id and returns the updated identity. The
// input is never modified; on ErrCredentialMismatch the returned identity is
// the input unchanged.
func (b *Binder) Bind(ctx context.Context, id identity.Identity, address string) (identity.Identity, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return id, ErrAddressRequired
	}
	if address == identity.SkippedSetup {
		return id, fmt.Errorf("%w: sentinel is not an address", ErrAddressRequired)
	}

	switch id.PasskeyAddress.State() {
	case identity.PasskeyBound:
		if id.PasskeyAddress.Address() != address {
			b.logger.Warn("passkey address mismatch", slog.Int64("user_id", id.ID))
			return id, ErrCredentialMismatch
		}
		return id, nil
	case identity.PasskeySkipped, identity.PasskeyUnset:
		// An explicit skip is upgraded exactly like a first binding.
	}

	bound := id
	bound.PasskeyAddress = identity.BoundPasskey(address)

	if err := b.register(ctx, bound); err != nil {
		b.logger.Error("signer registration failed, keeping local binding",
			slog.Int64("user_id", bound.ID),
			slog.Any("error", err),
		)
		entry := reconcile.Entry{
			Kind:       reconcile.KindSignerRegistration,
			UserID:     bound.ID,
			ContractID: address,
			Email:      bound.Email,
			Phone:      bound.Phone,
			Reason:     err.Error(),
			RecordedAt: time.Now().UTC(),
		}
		if recErr := b.recorder.Record(ctx, entry); recErr != nil {
			b.logger.Error("record reconciliation entry", slog.Any("error", recErr))
		}
	}

	return bound, nil
}

func (b *Binder) register(ctx context.Context, id identity.Identity) error {
	if b.registry == nil {
		return fmt.Errorf("%w: no signer registry configured", ErrRegistrationFailed)
	}
	signer := Signer{
		ContractID: id.PasskeyAddress.Address(),
		SignerID:   strconv.FormatInt(id.ID, 10),
		Email:      id.Email,
		Phone:      id.Phone,
	}
	if err := b.registry.SaveSigner(ctx, signer); err != nil {
		return fmt.Errorf("%w: %v", ErrRegistrationFailed, err)
	}
	return nil
}
