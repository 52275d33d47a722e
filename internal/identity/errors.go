package identity

import "errors"

var (
	// ErrNotFound means the lookup completed without a matching record.
	ErrNotFound = errors.New("user not found")

	// ErrRemoteUnavailable covers transport failures and non-success
	// responses from the lookup service. Retryable by the user.
	ErrRemoteUnavailable = errors.New("user lookup unavailable")

	// ErrMalformedResponse means the payload matched none of the accepted
	// shapes.
	ErrMalformedResponse = errors.New("malformed user lookup response")

	// ErrIdentifierRequired rejects an empty identifier before any lookup.
	ErrIdentifierRequired = errors.New("email or phone is required")
)
