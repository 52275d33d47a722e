package identity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf16"
)

// fallbackRange bounds derived ids to seven digits.
const fallbackRange = 10_000_000

// wrapperKeys are the only keys a record may be nested under. Exactly one
// level of nesting is unwrapped.
var wrapperKeys = []string{"json", "data"}

// idFields lists the accepted names for the authoritative id, in priority
// order.
var idFields = []string{"id", "ID", "Id", "_id", "userId", "user_id"}

var recordFields = map[string]struct{}{
	"email":           {},
	"phone":           {},
	"firstName":       {},
	"lastName":        {},
	"hashedPin":       {},
	"passkeyAddress":  {},
	"passkeyCAddress": {},
	"walletAddress":   {},
}

type wireRecord struct {
	Email           *string `json:"email"`
	Phone           *string `json:"phone"`
	FirstName       *string `json:"firstName"`
	LastName        *string `json:"lastName"`
	HashedPIN       *string `json:"hashedPin"`
	PasskeyAddress  Passkey `json:"passkeyAddress"`
	PasskeyCAddress Passkey `json:"passkeyCAddress"`
	WalletAddress   *string `json:"walletAddress"`
}

// Decode turns a lookup payload into an Identity. The payload must be a flat
// record or a record nested under one wrapper key. A JSON null, at the top
// level or under the wrapper, is ErrNotFound. The returned identity has a
// zero ID when the record carries no usable id.
func Decode(payload []byte) (Identity, error) {
	fields, err := unwrap(payload)
	if err != nil {
		return Identity{}, err
	}

	var rec wireRecord
	if err := json.Unmarshal(mustMarshal(fields), &rec); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	out := Identity{
		ID:             extractID(fields),
		Email:          deref(rec.Email),
		Phone:          deref(rec.Phone),
		FirstName:      deref(rec.FirstName),
		LastName:       deref(rec.LastName),
		HashedPIN:      deref(rec.HashedPIN),
		PasskeyAddress: rec.PasskeyAddress,
		WalletAddress:  deref(rec.WalletAddress),
	}
	if out.PasskeyAddress.State() == PasskeyUnset {
		out.PasskeyAddress = rec.PasskeyCAddress
	}
	return out, nil
}

func unwrap(payload []byte) (map[string]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedResponse)
	}
	if isNull(trimmed) {
		return nil, ErrNotFound
	}

	var outer map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &outer); err != nil {
		return nil, fmt.Errorf("%w: payload is not an object", ErrMalformedResponse)
	}

	if len(outer) == 1 {
		for _, key := range wrapperKeys {
			raw, ok := outer[key]
			if !ok {
				continue
			}
			if isNull(bytes.TrimSpace(raw)) {
				return nil, ErrNotFound
			}
			var inner map[string]json.RawMessage
			if err := json.Unmarshal(raw, &inner); err != nil {
				return nil, fmt.Errorf("%w: %q wrapper does not hold an object", ErrMalformedResponse, key)
			}
			if !isRecord(inner) {
				return nil, fmt.Errorf("%w: %q wrapper does not hold a user record", ErrMalformedResponse, key)
			}
			return inner, nil
		}
	}

	if !isRecord(outer) {
		return nil, fmt.Errorf("%w: no user record fields", ErrMalformedResponse)
	}
	return outer, nil
}

func isRecord(fields map[string]json.RawMessage) bool {
	for key := range fields {
		if _, ok := recordFields[key]; ok {
			return true
		}
	}
	for _, key := range idFields {
		if _, ok := fields[key]; ok {
			return true
		}
	}
	return false
}

func extractID(fields map[string]json.RawMessage) int64 {
	for _, key := range idFields {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		if id, ok := parseID(raw); ok {
			return id
		}
	}
	return 0
}

func parseID(raw json.RawMessage) (int64, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, false
	}

	var text string
	switch t := v.(type) {
	case json.Number:
		text = t.String()
	case string:
		text = strings.TrimSpace(t)
	default:
		return 0, false
	}

	if id, err := strconv.ParseInt(text, 10, 64); err == nil {
		return id, id > 0
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || f <= 0 || f != math.Trunc(f) || f > math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// FallbackID derives an id from the identifier by summing its UTF-16 code
// units weighted by 1-based position, reduced modulo 10,000,000, with a zero
// remainder mapped to 10,000,000 so the id is always positive. The same
// identifier always yields the same id. Collisions are possible; the value
// must never be treated as proof of identity.
func FallbackID(identifier string) int64 {
	var sum int64
	for i, unit := range utf16.Encode([]rune(identifier)) {
		sum += int64(unit) * int64(i+1)
	}
	if sum < 0 {
		sum = -sum
	}
	if id := sum % fallbackRange; id != 0 {
		return id
	}
	return fallbackRange
}

func isNull(b []byte) bool {
	return bytes.Equal(b, []byte("null"))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func mustMarshal(fields map[string]json.RawMessage) []byte {
	b, err := json.Marshal(fields)
	if err != nil {
		return []byte("{}")
	}
	return b
}
