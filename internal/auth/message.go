package auth

import (
	"errors"

	"github.com/congo-pay/druid/internal/binding"
	"github.com/congo-pay/druid/internal/identity"
	"github.com/congo-pay/druid/internal/onboarding"
)

// Message maps an error from sign-in or onboarding to the text shown to the
// user. Unknown errors get a generic message; details stay in the logs.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, identity.ErrIdentifierRequired):
		return "Email or phone is required."
	case errors.Is(err, binding.ErrAddressRequired):
		return "Passkey address is required."
	case errors.Is(err, identity.ErrNotFound):
		return "No account matches that email or phone."
	case errors.Is(err, identity.ErrRemoteUnavailable):
		return "The service is unavailable right now. Please try again."
	case errors.Is(err, identity.ErrMalformedResponse):
		return "The service sent an unexpected response. Please try again later."
	case errors.Is(err, binding.ErrCredentialMismatch):
		return "Invalid passkey."
	case errors.Is(err, onboarding.ErrPinMismatch):
		return onboarding.ErrPinMismatch.Error()
	case errors.Is(err, onboarding.ErrPINRejected):
		return err.Error()
	case errors.Is(err, onboarding.ErrSetPINFailed):
		return "Could not save your PIN. Please try again."
	case errors.Is(err, onboarding.ErrCeremonyFailed):
		return "Passkey setup did not finish. Try again or skip for now."
	case errors.Is(err, ErrStale):
		return "You were signed out. Please sign in again."
	case errors.Is(err, ErrNotSignedIn):
		return "Please sign in."
	default:
		return "Something went wrong. Please try again."
	}
}
