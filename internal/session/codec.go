package session

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/congo-pay/druid/internal/identity"
)

// Codec converts a Record to and from its stored form. Decode failures are
// wrapped in ErrPersistenceCorrupt.
type Codec interface {
	Encode(rec Record) ([]byte, error)
	Decode(data []byte) (Record, error)
}

// JSONCodec stores the record as plain JSON.
type JSONCodec struct{}

func (JSONCodec) Encode(rec Record) ([]byte, error) {
	return json.Marshal(rec)
}

func (JSONCodec) Decode(data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrPersistenceCorrupt, err)
	}
	return rec, nil
}

type sessionClaims struct {
	Identity identity.Identity `json:"identity"`
	jwt.RegisteredClaims
}

// SignedCodec stores the record as an HS256 token so edits made outside the
// application are detected on load.
type SignedCodec struct {
	key []byte
}

// NewSignedCodec returns a codec keyed with secret.
func NewSignedCodec(secret []byte) (*SignedCodec, error) {
	if len(secret) < 16 {
		return nil, errors.New("session signing key must be at least 16 bytes")
	}
	return &SignedCodec{key: append([]byte(nil), secret...)}, nil
}

func (c *SignedCodec) Encode(rec Record) ([]byte, error) {
	claims := sessionClaims{
		Identity: rec.Identity,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       rec.SessionID,
			IssuedAt: jwt.NewNumericDate(rec.IssuedAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return nil, err
	}
	return []byte(signed), nil
}

func (c *SignedCodec) Decode(data []byte) (Record, error) {
	var claims sessionClaims
	token, err := jwt.ParseWithClaims(string(data), &claims, func(*jwt.Token) (any, error) {
		return c.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrPersistenceCorrupt, err)
	}
	if !token.Valid {
		return Record{}, fmt.Errorf("%w: invalid token", ErrPersistenceCorrupt)
	}

	rec := Record{SessionID: claims.ID, Identity: claims.Identity}
	if claims.IssuedAt != nil {
		rec.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	return rec, nil
}
