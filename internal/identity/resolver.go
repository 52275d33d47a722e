package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Lookup fetches the raw user record for an identifier from the users
// service. Implementations return ErrNotFound when the service reports no
// match and wrap every other failure in ErrRemoteUnavailable.
type Lookup interface {
	LookupUser(ctx context.Context, kind Kind, value string) ([]byte, error)
}

// Resolver turns an identifier into an Identity.
type Resolver struct {
	lookup Lookup
	logger *slog.Logger
}

// NewResolver builds a resolver on top of the given lookup.
func NewResolver(lookup Lookup, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{lookup: lookup, logger: logger}
}

// Resolve looks the identifier up and normalizes the response. When the
// record has no usable id a FallbackID is assigned.
func (r *Resolver) Resolve(ctx context.Context, identifier string) (Identity, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return Identity{}, ErrIdentifierRequired
	}
	kind := Classify(identifier)

	payload, err := r.lookup.LookupUser(ctx, kind, identifier)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrRemoteUnavailable):
			return Identity{}, err
		default:
			return Identity{}, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
		}
	}

	id, err := Decode(payload)
	if err != nil {
		if errors.Is(err, ErrMalformedResponse) {
			r.logger.Error("user lookup payload rejected",
				slog.String("kind", string(kind)),
				slog.Int("payload_bytes", len(payload)),
				slog.Any("error", err),
			)
		}
		return Identity{}, err
	}

	if id.ID == 0 {
		id.ID = FallbackID(identifier)
		r.logger.Warn("user record has no id, using derived fallback",
			slog.String("kind", string(kind)),
			slog.Int64("fallback_id", id.ID),
		)
	}

	if id.Email == "" && id.Phone == "" {
		if kind == KindEmail {
			id.Email = identifier
		} else {
			id.Phone = identifier
		}
	}

	return id, nil
}
