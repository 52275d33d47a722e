package identity

import (
	"bytes"
	"encoding/json"
	"strings"
)

// SkippedSetup is recorded in place of a passkey address when the user
// explicitly opts out of passkey setup.
const SkippedSetup = "skipped_setup"

// PINSetMarker is what the users service reports in hashedPin once a PIN
// exists. The hash itself never leaves the service.
const PINSetMarker = "[redacted]"

// PasskeyState classifies a Passkey value.
type PasskeyState int

const (
	PasskeyUnset PasskeyState = iota
	PasskeyBound
	PasskeySkipped
)

func (s PasskeyState) String() string {
	switch s {
	case PasskeyBound:
		return "bound"
	case PasskeySkipped:
		return "skipped"
	default:
		return "unset"
	}
}

// Passkey is the tri-state passkey binding of an identity. The zero value is
// unset.
type Passkey struct {
	value string
}

// BoundPasskey returns a passkey bound to address. An empty address yields
// the unset value.
func BoundPasskey(address string) Passkey {
	return Passkey{value: strings.TrimSpace(address)}
}

// SkippedPasskey returns the explicit opt-out value.
func SkippedPasskey() Passkey {
	return Passkey{value: SkippedSetup}
}

// State reports which of the three states p is in.
func (p Passkey) State() PasskeyState {
	switch p.value {
	case "":
		return PasskeyUnset
	case SkippedSetup:
		return PasskeySkipped
	default:
		return PasskeyBound
	}
}

// Address returns the bound address, or "" unless p is bound.
func (p Passkey) Address() string {
	if p.State() != PasskeyBound {
		return ""
	}
	return p.value
}

func (p Passkey) String() string {
	if p.value == "" {
		return "<unset>"
	}
	return p.value
}

// MarshalJSON encodes unset as null and everything else as a string.
func (p Passkey) MarshalJSON() ([]byte, error) {
	if p.value == "" {
		return []byte("null"), nil
	}
	return json.Marshal(p.value)
}

// UnmarshalJSON accepts null, "" or a string.
func (p *Passkey) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		p.value = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*p = BoundPasskey(s)
	return nil
}

// Identity is the resolved user record shared by the session, the binder and
// the onboarding flow.
type Identity struct {
	ID             int64   `json:"id"`
	Email          string  `json:"email,omitempty"`
	Phone          string  `json:"phone,omitempty"`
	FirstName      string  `json:"firstName,omitempty"`
	LastName       string  `json:"lastName,omitempty"`
	HashedPIN      string  `json:"hashedPin,omitempty"`
	PasskeyAddress Passkey `json:"passkeyAddress"`
	WalletAddress  string  `json:"walletAddress,omitempty"`
}

// HasPIN reports whether a PIN has been set for the identity.
func (i Identity) HasPIN() bool {
	return i.HashedPIN != ""
}

// DisplayName joins first and last name, or falls back to the contact field.
func (i Identity) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(i.FirstName) + " " + strings.TrimSpace(i.LastName))
	if name != "" {
		return name
	}
	if i.Email != "" {
		return i.Email
	}
	return i.Phone
}

// Identifier returns the contact value used to look the identity up.
func (i Identity) Identifier() string {
	if i.Email != "" {
		return i.Email
	}
	return i.Phone
}

// Valid reports whether the identity satisfies the invariants required to be
// persisted: a non-zero id and at least one contact field.
func (i Identity) Valid() bool {
	return i.ID != 0 && (i.Email != "" || i.Phone != "")
}

// Kind tells which lookup an identifier maps to.
type Kind string

const (
	KindEmail Kind = "email"
	KindPhone Kind = "phone"
)

// Classify picks email when the identifier contains "@", phone otherwise.
func Classify(identifier string) Kind {
	if strings.Contains(identifier, "@") {
		return KindEmail
	}
	return KindPhone
}
