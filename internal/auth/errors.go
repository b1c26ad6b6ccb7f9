package auth

import "errors"

var (
	// ErrInvalidCredentials covers both unknown identifier and wrong password;
	// login never reveals which one failed.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountNotFound means a token referenced an identity that no longer exists.
	ErrAccountNotFound = errors.New("account not found")

	// ErrTokenMissing means no token was present on either transport.
	ErrTokenMissing = errors.New("missing token")

	// ErrTokenExpired is returned only for tokens with a valid signature.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenInvalid covers bad signature, malformed input and wrong token class,
	// without distinguishing between them.
	ErrTokenInvalid = errors.New("invalid token")

	// ErrTokenMismatch means the presented refresh token is not the stored one:
	// already rotated, revoked, or lost a concurrent rotation. The caller must
	// re-authenticate; never downgrade this to ErrTokenExpired.
	ErrTokenMismatch = errors.New("refresh token is no longer valid")

	// ErrStoreUnavailable is transient and retryable, distinct from any
	// credential failure.
	ErrStoreUnavailable = errors.New("identity store unavailable")

	// ErrIssuance signals an internal invariant violation while building tokens,
	// not a user error.
	ErrIssuance = errors.New("token issuance failed")
)
