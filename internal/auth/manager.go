package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/congo-pay/druid/internal/binding"
	"github.com/congo-pay/druid/internal/identity"
)

// ErrStale is returned when a logout happened while a login or refresh was
// in flight. The result is discarded.
var ErrStale = errors.New("session changed while request was in flight")

// ErrNotSignedIn is returned by operations that need a current identity.
var ErrNotSignedIn = errors.New("not signed in")

// Resolver looks identities up by email or phone.
type Resolver interface {
	Resolve(ctx context.Context, identifier string) (identity.Identity, error)
}

// Binder attaches a passkey address to an identity.
type Binder interface {
	Bind(ctx context.Context, id identity.Identity, address string) (identity.Identity, error)
}

// Sessions persists the current identity.
type Sessions interface {
	Save(ctx context.Context, id identity.Identity) error
	Load(ctx context.Context) (identity.Identity, bool, error)
	Clear(ctx context.Context) error
}

// Registration is the sign-up request.
type Registration struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// Registrar creates users on the users service and returns the new id.
type Registrar interface {
	Register(ctx context.Context, reg Registration) (int64, error)
}

// Deps are the collaborators of a Manager.
type Deps struct {
	Resolver  Resolver
	Binder    Binder
	Sessions  Sessions
	Registrar Registrar
	Logger    *slog.Logger
}

// Manager owns the signed-in identity. It is created by the presentation
// layer, initialized from the session store with Init and torn down with
// Logout.
type Manager struct {
	mu      sync.Mutex
	epoch   uint64
	current *identity.Identity
	loaded  bool
	deps    Deps
}

// NewManager builds a manager. Call Init before reading Current.
func NewManager(deps Deps) *Manager {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Manager{deps: deps}
}

// Init loads the persisted session.
func (m *Manager) Init(ctx context.Context) error {
	m.mu.Lock()
	epoch := m.epoch
	m.mu.Unlock()

	id, ok, err := m.deps.Sessions.Load(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded = true
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if epoch != m.epoch {
		return nil
	}
	if ok {
		m.current = &id
	}
	return nil
}

// Loading reports whether Init has not finished yet.
func (m *Manager) Loading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.loaded
}

// Current returns a copy of the signed-in identity, or nil.
func (m *Manager) Current() *identity.Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	id := *m.current
	return &id
}

// Login resolves identifier, checks the passkey address against the stored
// binding and persists the result.
func (m *Manager) Login(ctx context.Context, identifier, passkeyAddress string) (identity.Identity, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return identity.Identity{}, identity.ErrIdentifierRequired
	}
	if strings.TrimSpace(passkeyAddress) == "" {
		return identity.Identity{}, binding.ErrAddressRequired
	}
	epoch := m.begin()

	id, err := m.deps.Resolver.Resolve(ctx, identifier)
	if err != nil {
		m.deps.Logger.Warn("login resolve failed", slog.String("identifier", identifier), slog.Any("error", err))
		return identity.Identity{}, err
	}
	id, err = m.deps.Binder.Bind(ctx, id, passkeyAddress)
	if err != nil {
		m.deps.Logger.Warn("login bind failed", slog.Int64("user_id", id.ID), slog.Any("error", err))
		return identity.Identity{}, err
	}

	if err := m.commit(ctx, epoch, id); err != nil {
		return identity.Identity{}, err
	}
	m.deps.Logger.Info("signed in", slog.Int64("user_id", id.ID))
	return id, nil
}

// Register creates a user and signs them in without a passkey so onboarding
// can start.
func (m *Manager) Register(ctx context.Context, reg Registration) (identity.Identity, error) {
	reg.Email = strings.TrimSpace(reg.Email)
	reg.Phone = strings.TrimSpace(reg.Phone)
	if reg.Email == "" && reg.Phone == "" {
		return identity.Identity{}, identity.ErrIdentifierRequired
	}
	if m.deps.Registrar == nil {
		return identity.Identity{}, errors.New("registration is not configured")
	}
	epoch := m.begin()

	userID, err := m.deps.Registrar.Register(ctx, reg)
	if err != nil {
		m.deps.Logger.Warn("register failed", slog.Any("error", err))
		return identity.Identity{}, err
	}

	identifier := reg.Email
	if identifier == "" {
		identifier = reg.Phone
	}
	id, err := m.deps.Resolver.Resolve(ctx, identifier)
	if err != nil {
		// The record exists; fill it from what was submitted.
		m.deps.Logger.Warn("resolve after register", slog.Int64("user_id", userID), slog.Any("error", err))
		id = identity.Identity{
			ID:        userID,
			Email:     reg.Email,
			Phone:     reg.Phone,
			FirstName: reg.FirstName,
			LastName:  reg.LastName,
		}
	}

	if err := m.commit(ctx, epoch, id); err != nil {
		return identity.Identity{}, err
	}
	m.deps.Logger.Info("registered", slog.Int64("user_id", id.ID))
	return id, nil
}

// Refresh re-reads the signed-in identity from the users service. Local
// progress the service does not know about yet (a bound passkey whose signer
// registration failed, a skipped setup) is kept.
func (m *Manager) Refresh(ctx context.Context) (identity.Identity, error) {
	cur := m.Current()
	if cur == nil {
		return identity.Identity{}, ErrNotSignedIn
	}
	m.mu.Lock()
	epoch := m.epoch
	m.mu.Unlock()

	fresh, err := m.deps.Resolver.Resolve(ctx, cur.Identifier())
	if err != nil {
		return identity.Identity{}, err
	}
	merged := merge(*cur, fresh)
	if err := m.commit(ctx, epoch, merged); err != nil {
		return identity.Identity{}, err
	}
	return merged, nil
}

// Save replaces the current identity, typically after an onboarding step.
// It fails with ErrStale when nobody, or another user, is signed in.
func (m *Manager) Save(ctx context.Context, id identity.Identity) error {
	m.mu.Lock()
	epoch := m.epoch
	m.mu.Unlock()
	return m.commitSignedIn(ctx, epoch, id)
}

// Scoped returns a Saver tied to the current sign-in. Saves through it fail
// with ErrStale once Logout or another sign-in has run, even if the step
// started before that.
func (m *Manager) Scoped() *ScopedSaver {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &ScopedSaver{m: m, epoch: m.epoch}
}

// ScopedSaver persists onboarding progress for one sign-in.
type ScopedSaver struct {
	m     *Manager
	epoch uint64
}

// Save commits id if the sign-in it was created for is still current.
func (s *ScopedSaver) Save(ctx context.Context, id identity.Identity) error {
	return s.m.commitSignedIn(ctx, s.epoch, id)
}

// Logout clears the session. Requests still in flight will fail with
// ErrStale.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.epoch++
	m.current = nil
	m.mu.Unlock()

	if err := m.deps.Sessions.Clear(ctx); err != nil {
		return err
	}
	m.deps.Logger.Info("signed out")
	return nil
}

// begin starts a sign-in attempt. A new attempt supersedes any in flight.
func (m *Manager) begin() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.epoch++
	return m.epoch
}

func (m *Manager) commit(ctx context.Context, epoch uint64, id identity.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if epoch != m.epoch {
		m.deps.Logger.Info("discarding stale result", slog.Int64("user_id", id.ID))
		return ErrStale
	}
	if err := m.deps.Sessions.Save(ctx, id); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	m.current = &id
	return nil
}

func (m *Manager) commitSignedIn(ctx context.Context, epoch uint64, id identity.Identity) error {
	m.mu.Lock()
	signedIn := m.current != nil && m.current.ID == id.ID
	m.mu.Unlock()
	if !signedIn {
		m.deps.Logger.Info("discarding save for signed-out user", slog.Int64("user_id", id.ID))
		return ErrStale
	}
	return m.commit(ctx, epoch, id)
}

func merge(local, remote identity.Identity) identity.Identity {
	out := remote
	if out.ID == 0 {
		out.ID = local.ID
	}
	if !out.HasPIN() && local.HasPIN() {
		out.HashedPIN = local.HashedPIN
	}
	if out.PasskeyAddress.State() == identity.PasskeyUnset {
		out.PasskeyAddress = local.PasskeyAddress
	}
	if out.WalletAddress == "" {
		out.WalletAddress = local.WalletAddress
	}
	return out
}
