package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/druid/internal/identity"
)

// Key is the well-known storage key of the single session record.
const Key = "auth_user"

var (
	// ErrPersistenceCorrupt marks stored content that could not be decoded or
	// failed validation. Load recovers from it by clearing storage.
	ErrPersistenceCorrupt = errors.New("stored session is corrupt")

	// ErrInvalidIdentity rejects saving an identity without an id or contact.
	ErrInvalidIdentity = errors.New("identity needs an id and an email or phone")
)

// Storage is a minimal byte-oriented key/value store.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Record is what gets persisted: the full identity plus an issue marker.
type Record struct {
	SessionID string            `json:"session_id"`
	IssuedAt  time.Time         `json:"issued_at"`
	Identity  identity.Identity `json:"identity"`
}

// Store persists the current identity. It is the single source of truth for
// whether someone is logged in.
type Store struct {
	storage Storage
	codec   Codec
	logger  *slog.Logger
	now     func() time.Time
}

// NewStore builds a session store. A nil codec means plain JSON.
func NewStore(storage Storage, codec Codec, logger *slog.Logger) *Store {
	if codec == nil {
		codec = JSONCodec{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{storage: storage, codec: codec, logger: logger, now: time.Now}
}

// Save overwrites the stored record with id. Callers merge changes in memory
// before saving; nothing is merged here.
func (s *Store) Save(ctx context.Context, id identity.Identity) error {
	if !id.Valid() {
		return ErrInvalidIdentity
	}
	rec := Record{
		SessionID: uuid.NewString(),
		IssuedAt:  s.now().UTC(),
		Identity:  id,
	}
	data, err := s.codec.Encode(rec)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.storage.Set(ctx, Key, data); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// Load returns the stored identity. Corrupt content is logged, cleared and
// reported as absent; only storage failures are returned as errors.
func (s *Store) Load(ctx context.Context) (identity.Identity, bool, error) {
	rec, ok, err := s.LoadRecord(ctx)
	if err != nil || !ok {
		return identity.Identity{}, false, err
	}
	return rec.Identity, true, nil
}

// LoadRecord is Load with the issue marker.
func (s *Store) LoadRecord(ctx context.Context) (Record, bool, error) {
	data, ok, err := s.storage.Get(ctx, Key)
	if err != nil {
		return Record{}, false, fmt.Errorf("read session: %w", err)
	}
	if !ok {
		return Record{}, false, nil
	}

	rec, err := s.codec.Decode(data)
	if err == nil && !rec.Identity.Valid() {
		err = fmt.Errorf("%w: identity lacks id or contact", ErrPersistenceCorrupt)
	}
	if err != nil {
		s.logger.Warn("discarding stored session", slog.Any("error", err))
		if delErr := s.storage.Delete(ctx, Key); delErr != nil {
			s.logger.Error("clear corrupt session", slog.Any("error", delErr))
		}
		return Record{}, false, nil
	}
	return rec, true, nil
}

// Clear removes the stored record. Clearing an empty store is not an error.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.storage.Delete(ctx, Key); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
