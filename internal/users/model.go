package users

import (
	"errors"
	"time"

	"github.com/congo-pay/druid/internal/identity"
)

var (
	ErrNotFound        = errors.New("user not found")
	ErrExists          = errors.New("user already exists")
	ErrContactRequired = errors.New("email or phone is required")
	ErrInvalidEmail    = errors.New("invalid email address")
	ErrInvalidPhone    = errors.New("invalid phone number")
	ErrInvalidPIN      = errors.New("PIN must be exactly 6 digits")
	ErrInvalidSigner   = errors.New("signerId must be a user id")
	ErrSignerContact   = errors.New("signer contact does not match user")
	ErrSignerConflict  = errors.New("a different passkey is already registered")
	ErrAddressRequired = errors.New("contractId is required")
	ErrReservedAddress = errors.New("contractId is reserved")
)

// User is a stored account. PINHash is a bcrypt hash and never leaves the
// service; PasskeyAddress is empty until a signer is registered.
type User struct {
	ID             int64
	Email          string
	Phone          string
	FirstName      string
	LastName       string
	PINHash        []byte
	PasskeyAddress string
	WalletAddress  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Record is the public view of the user returned by lookups. The PIN hash is
// replaced by a marker that only says a PIN exists.
func (u User) Record() identity.Identity {
	rec := identity.Identity{
		ID:            u.ID,
		Email:         u.Email,
		Phone:         u.Phone,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		WalletAddress: u.WalletAddress,
	}
	if len(u.PINHash) > 0 {
		rec.HashedPIN = identity.PINSetMarker
	}
	if u.PasskeyAddress != "" {
		rec.PasskeyAddress = identity.BoundPasskey(u.PasskeyAddress)
	}
	return rec
}

// RegisterInput captures the sign-up form.
type RegisterInput struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}
