package auth

import "errors"

var (
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("auth: not found")
	// ErrExpired marks an access credential past its expiry. Recoverable
	// via rotation.
	ErrExpired = errors.New("auth: access credential expired")
	// ErrInvalidCredential marks a malformed, unsigned or unknown
	// credential, or one belonging to a revoked family. Not recoverable.
	ErrInvalidCredential = errors.New("auth: invalid credential")
	// ErrCredentialReused marks a retired refresh credential presented
	// against a still-active family. The whole family is revoked.
	ErrCredentialReused = errors.New("auth: refresh credential reused")
	// ErrUnauthorized covers failed login attempts.
	ErrUnauthorized = errors.New("auth: unauthorized")
	// ErrRoleDenied marks an authenticated principal whose role does not
	// cover the requested resource. Logged as access_denied.
	ErrRoleDenied = errors.New("auth: insufficient role")
	// ErrStoreUnavailable marks a transient persistence failure. Not a
	// security event; callers may retry.
	ErrStoreUnavailable = errors.New("auth: store unavailable")
)
