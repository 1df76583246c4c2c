package checkmate

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials is returned when an email/password pair does not
	// match a stored identity.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned while a temporary lockout window is active.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountDisabled is returned for identities with the active flag cleared.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrTokenExpired is returned when an access token is past its embedded expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked is returned when a token appears on the revocation list.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrTokenInvalid is returned when a token fails signature verification.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrChallengeExpired is returned when a one-time code or WebAuthn
	// challenge is absent or past its expiry.
	ErrChallengeExpired = errors.New("challenge expired or invalid")
	// ErrTooManyAttempts is returned when a pending one-time code has
	// exhausted its attempt budget.
	ErrTooManyAttempts = errors.New("too many attempts")
	// ErrInvalidCode is returned when a one-time code or backup code does not match.
	ErrInvalidCode = errors.New("invalid code")
	// ErrCredentialNotFound is returned when no WebAuthn credential matches.
	// Unknown emails produce the same error so account existence is not revealed.
	ErrCredentialNotFound = errors.New("credential not found")
	// ErrReplayDetected is returned when a WebAuthn assertion carries a
	// signature counter at or below the stored value.
	ErrReplayDetected = errors.New("replay detected")
	// ErrSessionNotFound is returned when no active session backs a token.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidRefreshToken is returned when a refresh token fails
	// verification or no session owns it.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrUnauthorized is returned on role mismatch.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrTwoFactorNotEnabled is returned when a two-factor operation targets
	// an identity without two-factor enabled.
	ErrTwoFactorNotEnabled = errors.New("two-factor not enabled")
	// ErrIdentityNotFound is reported by IdentityProvider implementations
	// when no identity matches a lookup.
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrStoreUnavailable wraps backend failures from Redis round-trips.
	ErrStoreUnavailable = errors.New("auth store unavailable")
	// ErrEngineNotReady is returned when the engine was not built correctly.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// LockedError carries the remaining lock duration alongside ErrAccountLocked.
// errors.Is(err, ErrAccountLocked) matches it.
type LockedError struct {
	RetryAfter time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked, retry in %s", e.RetryAfter.Round(time.Second))
}

func (e *LockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// CredentialsError carries the number of attempts left before lockout
// alongside ErrInvalidCredentials.
type CredentialsError struct {
	RemainingAttempts int
}

func (e *CredentialsError) Error() string {
	return fmt.Sprintf("invalid credentials, %d attempts remaining", e.RemainingAttempts)
}

func (e *CredentialsError) Is(target error) bool {
	return target == ErrInvalidCredentials
}

// CodeError carries the number of verification attempts left on the pending
// one-time code alongside ErrInvalidCode.
type CodeError struct {
	RemainingAttempts int
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("invalid code, %d attempts remaining", e.RemainingAttempts)
}

func (e *CodeError) Is(target error) bool {
	return target == ErrInvalidCode
}
