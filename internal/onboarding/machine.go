package onboarding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/congo-pay/druid/internal/gateway"
	"github.com/congo-pay/druid/internal/identity"
)

var errNoAddress = errors.New("ceremony returned no address")

// SetPINResult is the acknowledgement returned by the PIN service.
type SetPINResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// PINSetter stores a PIN for a user remotely.
type PINSetter interface {
	SetPIN(ctx context.Context, userID int64, pin string) (SetPINResult, error)
}

// Ceremony runs the external passkey ceremony and returns the resulting
// passkey-derived address.
type Ceremony interface {
	Create(ctx context.Context) (string, error)
	Connect(ctx context.Context) (string, error)
}

// Binder attaches a passkey address to an identity.
type Binder interface {
	Bind(ctx context.Context, id identity.Identity, address string) (identity.Identity, error)
}

// Saver persists the identity once a step succeeds.
type Saver interface {
	Save(ctx context.Context, id identity.Identity) error
}

// Deps are the collaborators of a Machine.
type Deps struct {
	PINs     PINSetter
	Ceremony Ceremony
	Binder   Binder
	Sessions Saver
	Logger   *slog.Logger
}

// Machine drives onboarding for one identity. All state changes go through
// Transition; the machine only runs the effects it asks for.
type Machine struct {
	mu    sync.Mutex
	state Snapshot
	id    identity.Identity
	deps  Deps
}

// New starts the flow for id. An identity that already has a PIN resumes at
// the passkey step, and one that has also dealt with its passkey is complete.
func New(id identity.Identity, deps Deps) *Machine {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	state := Snapshot{Step: StepCreatePIN}
	if id.HasPIN() {
		state.Step = StepPasskey
		state.Completed = id.PasskeyAddress.State() != identity.PasskeyUnset
	}
	return &Machine{state: state, id: id, deps: deps}
}

// Snapshot returns the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Identity returns the identity as updated by completed steps.
func (m *Machine) Identity() identity.Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id
}

// Destination is where the user goes once onboarding completes.
func (m *Machine) Destination() string {
	return gateway.DashboardPath
}

// Press enters one digit. Completing a matching confirmation submits the PIN
// and returns after the service answers.
func (m *Machine) Press(ctx context.Context, d rune) Snapshot {
	return m.apply(ctx, Input{Kind: InputDigit, Digit: d})
}

// Delete removes the last digit of the active buffer.
func (m *Machine) Delete(ctx context.Context) Snapshot {
	return m.apply(ctx, Input{Kind: InputDelete})
}

// Cancel restarts PIN entry.
func (m *Machine) Cancel(ctx context.Context) Snapshot {
	return m.apply(ctx, Input{Kind: InputCancel})
}

// CreatePasskey runs the ceremony and binds its result.
func (m *Machine) CreatePasskey(ctx context.Context) Snapshot {
	return m.apply(ctx, Input{Kind: InputCreatePasskey})
}

// SkipPasskey finishes onboarding without a passkey.
func (m *Machine) SkipPasskey(ctx context.Context) Snapshot {
	return m.apply(ctx, Input{Kind: InputSkipPasskey})
}

type outcome struct {
	input    Input
	identity *identity.Identity
}

func (m *Machine) apply(ctx context.Context, in Input) Snapshot {
	m.mu.Lock()
	next, effect := Transition(m.state, in)
	m.state = next
	if effect == EffectNone {
		m.mu.Unlock()
		return next
	}
	id := m.id
	m.mu.Unlock()

	// Busy is set, so input arriving while the effect runs is ignored.
	out := m.run(ctx, effect, next.PIN, id)

	m.mu.Lock()
	defer m.mu.Unlock()
	if out.identity != nil {
		m.id = *out.identity
	}
	m.state, _ = Transition(m.state, out.input)
	return m.state
}

func (m *Machine) run(ctx context.Context, effect Effect, pin string, id identity.Identity) outcome {
	switch effect {
	case EffectSubmitPIN:
		return m.submitPIN(ctx, pin, id)
	case EffectCreatePasskey:
		return m.createPasskey(ctx, id)
	case EffectSkipPasskey:
		updated := id
		updated.PasskeyAddress = identity.SkippedPasskey()
		return m.finish(ctx, updated)
	}
	return outcome{}
}

func (m *Machine) submitPIN(ctx context.Context, pin string, id identity.Identity) outcome {
	result := Input{Kind: InputPINResult}
	res, err := m.deps.PINs.SetPIN(ctx, id.ID, pin)
	if err != nil {
		m.deps.Logger.Error("set pin", slog.Int64("user_id", id.ID), slog.Any("error", err))
		result.Err = fmt.Errorf("%w: %v", ErrSetPINFailed, err)
		return outcome{input: result}
	}
	if !res.Success {
		msg := strings.TrimSpace(res.Message)
		m.deps.Logger.Warn("set pin rejected", slog.Int64("user_id", id.ID), slog.String("message", msg))
		if msg == "" {
			result.Err = ErrPINRejected
		} else {
			result.Err = fmt.Errorf("%w: %s", ErrPINRejected, msg)
		}
		return outcome{input: result}
	}

	updated := id
	updated.HashedPIN = identity.PINSetMarker
	if err := m.deps.Sessions.Save(ctx, updated); err != nil {
		// The service already holds the PIN; the next refresh picks it up.
		m.deps.Logger.Error("save session after pin", slog.Int64("user_id", id.ID), slog.Any("error", err))
	}
	return outcome{input: result, identity: &updated}
}

func (m *Machine) createPasskey(ctx context.Context, id identity.Identity) outcome {
	address, err := m.deps.Ceremony.Create(ctx)
	if err == nil && strings.TrimSpace(address) == "" {
		err = errNoAddress
	}
	if err != nil {
		m.deps.Logger.Warn("passkey ceremony", slog.Int64("user_id", id.ID), slog.Any("error", err))
		return outcome{input: Input{Kind: InputPasskeyResult, Err: fmt.Errorf("%w: %v", ErrCeremonyFailed, err)}}
	}

	bound, err := m.deps.Binder.Bind(ctx, id, address)
	if err != nil {
		m.deps.Logger.Warn("bind passkey", slog.Int64("user_id", id.ID), slog.Any("error", err))
		return outcome{input: Input{Kind: InputPasskeyResult, Err: err}}
	}
	return m.finish(ctx, bound)
}

func (m *Machine) finish(ctx context.Context, updated identity.Identity) outcome {
	result := Input{Kind: InputPasskeyResult}
	if err := m.deps.Sessions.Save(ctx, updated); err != nil {
		m.deps.Logger.Error("save session after passkey", slog.Int64("user_id", updated.ID), slog.Any("error", err))
		result.Err = fmt.Errorf("save session: %w", err)
		return outcome{input: result}
	}
	return outcome{input: result, identity: &updated}
}
