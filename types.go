package checkmate

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/Mr-ivo/CheckMate-backend/internal/audit"
)

// IdentityRecord is the account record returned by [IdentityProvider]. It
// carries the credential hash, role, active flag, and the lockout counters the
// Credential Verifier mutates on every login attempt.
type IdentityRecord struct {
	UserID       string
	Email        string
	PasswordHash string
	Role         string
	Active       bool
	FailedLogins int
	LockUntil    time.Time
}

// TwoFactorRecord describes an identity's second-factor configuration.
type TwoFactorRecord struct {
	Enabled bool
	Method  string
}

// BackupCodeRecord stores the SHA-256 hash of a single-use backup code.
// The plaintext is never persisted.
type BackupCodeRecord struct {
	Hash [32]byte
}

// WebAuthnCredentialRecord is a stored authenticator credential. CredentialID
// is treated as opaque bytes everywhere inside the engine; encoding happens
// only at the storage and wire boundaries.
type WebAuthnCredentialRecord struct {
	UserID        string
	CredentialID  []byte
	PublicKey     []byte
	SignCount     uint32
	CounterExempt bool
	Transports    []string
	Label         string
	UsageCount    int64
	LastUsedAt    time.Time
	CreatedAt     time.Time
}

// IdentityProvider is the interface callers implement to integrate checkmate
// with their user database. Lookups report [ErrIdentityNotFound] when no
// identity matches. RecordLoginFailure and ConsumeBackupCode must be atomic
// at the store (increment-and-return, conditional mark-used): the engine
// relies on them to close the concurrent-redemption races.
type IdentityProvider interface {
	GetIdentityByEmail(ctx context.Context, email string) (IdentityRecord, error)
	GetIdentityByID(ctx context.Context, userID string) (IdentityRecord, error)

	// RecordLoginFailure atomically increments the consecutive-failure
	// counter and returns the new value.
	RecordLoginFailure(ctx context.Context, userID string) (int, error)
	LockIdentity(ctx context.Context, userID string, until time.Time) error
	ClearLoginFailures(ctx context.Context, userID string) error

	GetTwoFactor(ctx context.Context, userID string) (TwoFactorRecord, error)
	SetTwoFactor(ctx context.Context, userID string, record TwoFactorRecord) error
	ReplaceBackupCodes(ctx context.Context, userID string, codes []BackupCodeRecord) error
	// ConsumeBackupCode marks the matching unused code as used in a single
	// conditional update and reports whether a code was consumed.
	ConsumeBackupCode(ctx context.Context, userID string, codeHash [32]byte) (bool, error)

	ListWebAuthnCredentials(ctx context.Context, userID string) ([]WebAuthnCredentialRecord, error)
	GetWebAuthnCredential(ctx context.Context, credentialID []byte) (WebAuthnCredentialRecord, error)
	CreateWebAuthnCredential(ctx context.Context, record WebAuthnCredentialRecord) error
	UpdateWebAuthnUsage(ctx context.Context, credentialID []byte, signCount uint32, counterExempt bool, usedAt time.Time) error
	DeleteWebAuthnCredential(ctx context.Context, userID string, credentialID []byte) error
}

// OTPSender delivers one-time codes out of band. Delivery is fire-and-forget:
// the engine never fails or blocks a login on a delivery error.
type OTPSender interface {
	SendOTP(ctx context.Context, email, code string) error
}

// IdentitySummary is the caller-facing identity slice embedded in successful
// login results.
type IdentitySummary struct {
	UserID string
	Email  string
	Role   string
}

// LoginResult is returned by [Engine.Login], [Engine.CompleteTwoFactorLogin],
// and [Engine.FinishWebAuthnAuthentication]. Either the token pair is set, or
// Requires2FA is true and no session exists yet.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Identity     IdentitySummary

	Requires2FA  bool
	OTPDelivered bool
}

// RefreshResult is returned by [Engine.RefreshAccessToken].
type RefreshResult struct {
	AccessToken string
	ExpiresAt   time.Time
}

// AuthResult identifies the caller behind a validated access token.
type AuthResult struct {
	UserID    string
	Email     string
	Role      string
	SessionID string
}

// SessionInfo is a read-only session summary for account-security screens.
type SessionInfo struct {
	SessionID    string
	IP           string
	UserAgent    string
	Active       bool
	Reason       string
	CreatedAt    time.Time
	LastActivity time.Time
	ExpiresAt    time.Time
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
