package checkmate

import (
	"bytes"
	"errors"
	"time"
)

// Config is the complete configuration surface of the engine. Instances are
// set up before [Builder.Build] and treated as immutable afterwards.
type Config struct {
	Token    TokenConfig
	Session  SessionConfig
	Lockout  LockoutConfig
	OTP      OTPConfig
	WebAuthn WebAuthnConfig
	Password PasswordConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

// TokenConfig controls token issuance. Access and refresh tokens are signed
// with distinct keys so a leaked refresh key cannot mint access tokens.
type TokenConfig struct {
	AccessTTL         time.Duration
	RefreshTTL        time.Duration
	AccessSigningKey  []byte
	RefreshSigningKey []byte
	Issuer            string
}

// SessionConfig controls the Redis session registry.
type SessionConfig struct {
	RedisPrefix string
	// MaxConcurrent caps simultaneously active sessions per user. Enforced
	// as a compensating eviction after session creation, not a hard gate.
	MaxConcurrent int
}

// LockoutConfig controls temporary account lockout after consecutive
// password failures.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
}

// OTPConfig controls the email one-time-code second factor and backup codes.
// BackupCodeLength must differ from Digits: both codes arrive through the
// same input and are told apart by shape, and the backup alphabet contains
// digits.
type OTPConfig struct {
	Digits           int
	TTL              time.Duration
	MaxAttempts      int
	BackupCodeCount  int
	BackupCodeLength int
}

// WebAuthnConfig binds ceremonies to the application's domain.
type WebAuthnConfig struct {
	RPID          string
	RPDisplayName string
	RPOrigins     []string
	ChallengeTTL  time.Duration
}

// PasswordConfig controls bcrypt hashing of new password material.
type PasswordConfig struct {
	BcryptCost int
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// FailuresOnly suppresses successful events, keeping denials, lockouts,
	// and replays for sinks that only alert.
	FailuresOnly bool
}

// MetricsConfig controls the in-process metrics system.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the baseline configuration: 24h access tokens, 7d
// refresh tokens, 3 concurrent sessions, 5-attempt/30-minute lockout,
// 6-digit 10-minute OTPs with 5 attempts, 10 backup codes, 5-minute WebAuthn
// challenges. Signing keys must still be supplied by the caller.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:  24 * time.Hour,
			RefreshTTL: 7 * 24 * time.Hour,
			Issuer:     "checkmate",
		},
		Session: SessionConfig{
			RedisPrefix:   "cm",
			MaxConcurrent: 3,
		},
		Lockout: LockoutConfig{
			Threshold: 5,
			Duration:  30 * time.Minute,
		},
		OTP: OTPConfig{
			Digits:           6,
			TTL:              10 * time.Minute,
			MaxAttempts:      5,
			BackupCodeCount:  10,
			BackupCodeLength: 10,
		},
		WebAuthn: WebAuthnConfig{
			ChallengeTTL: 5 * time.Minute,
		},
		Password: PasswordConfig{
			BcryptCost: 12,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate reports the first configuration error, or nil.
func (c *Config) Validate() error {
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.Token.RefreshTTL < c.Token.AccessTTL {
		return errors.New("refresh TTL must not be shorter than access TTL")
	}
	if len(c.Token.AccessSigningKey) < 32 || len(c.Token.RefreshSigningKey) < 32 {
		return errors.New("signing keys must be at least 32 bytes")
	}
	if bytes.Equal(c.Token.AccessSigningKey, c.Token.RefreshSigningKey) {
		return errors.New("access and refresh signing keys must differ")
	}
	if c.Session.MaxConcurrent < 1 {
		return errors.New("session concurrency cap must be at least 1")
	}
	if c.Lockout.Threshold < 1 || c.Lockout.Duration <= 0 {
		return errors.New("invalid lockout configuration")
	}
	if c.OTP.Digits < 6 || c.OTP.Digits > 10 {
		return errors.New("otp digits must be between 6 and 10")
	}
	if c.OTP.TTL <= 0 || c.OTP.MaxAttempts < 1 {
		return errors.New("invalid otp configuration")
	}
	if c.OTP.BackupCodeCount < 1 || c.OTP.BackupCodeLength < 8 {
		return errors.New("invalid backup code configuration")
	}
	if c.OTP.BackupCodeLength == c.OTP.Digits {
		return errors.New("backup code length must differ from otp digits")
	}
	if c.WebAuthn.RPID == "" || len(c.WebAuthn.RPOrigins) == 0 {
		return errors.New("webauthn relying party id and origins are required")
	}
	if c.WebAuthn.ChallengeTTL <= 0 {
		return errors.New("webauthn challenge TTL must be positive")
	}
	if c.Password.BcryptCost < 10 || c.Password.BcryptCost > 31 {
		return errors.New("bcrypt cost out of range")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.AccessSigningKey = cloneBytes(cfg.Token.AccessSigningKey)
	out.Token.RefreshSigningKey = cloneBytes(cfg.Token.RefreshSigningKey)
	out.WebAuthn.RPOrigins = append([]string(nil), cfg.WebAuthn.RPOrigins...)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
