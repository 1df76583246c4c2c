package checkmate

import (
	"errors"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/redis/go-redis/v9"

	internalaudit "github.com/Mr-ivo/CheckMate-backend/internal/audit"
	"github.com/Mr-ivo/CheckMate-backend/internal/stores"
	"github.com/Mr-ivo/CheckMate-backend/password"
	"github.com/Mr-ivo/CheckMate-backend/session"
	"github.com/Mr-ivo/CheckMate-backend/token"
)

// Builder assembles an [Engine]. Configure, then call Build exactly once.
type Builder struct {
	config   Config
	redis    redis.UniversalClient
	identity IdentityProvider
	sender   OTPSender
	sinks    []AuditSink

	built bool
}

// New returns a builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing sessions, revocations, pending
// codes, and WebAuthn challenges.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithIdentityProvider sets the durable identity backend.
func (b *Builder) WithIdentityProvider(provider IdentityProvider) *Builder {
	b.identity = provider
	return b
}

// WithOTPSender sets the out-of-band code delivery channel. Optional: without
// a sender, two-factor logins can still complete with backup codes, and
// LoginResult.OTPDelivered stays false.
func (b *Builder) WithOTPSender(sender OTPSender) *Builder {
	b.sender = sender
	return b
}

// WithAuditSink adds an audit event consumer. Repeated calls fan events out
// to every registered sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	if sink != nil {
		b.sinks = append(b.sinks, sink)
	}
	return b
}

// WithMetricsEnabled toggles the in-process counter set.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the Validate latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, wires the stores, and returns a ready
// engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.identity == nil {
		return nil, errors.New("identity provider required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tokens, err := token.NewManager(token.Config{
		AccessTTL:  cfg.Token.AccessTTL,
		RefreshTTL: cfg.Token.RefreshTTL,
		AccessKey:  cloneBytes(cfg.Token.AccessSigningKey),
		RefreshKey: cloneBytes(cfg.Token.RefreshSigningKey),
		Issuer:     cfg.Token.Issuer,
	})
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewHasher(cfg.Password.BcryptCost)
	if err != nil {
		return nil, err
	}

	wa, err := webauthn.New(&webauthn.Config{
		RPID:          cfg.WebAuthn.RPID,
		RPDisplayName: cfg.WebAuthn.RPDisplayName,
		RPOrigins:     cfg.WebAuthn.RPOrigins,
	})
	if err != nil {
		return nil, err
	}

	prefix := cfg.Session.RedisPrefix

	engine := &Engine{
		config:     cfg,
		identity:   b.identity,
		otpSender:  b.sender,
		tokens:     tokens,
		hasher:     hasher,
		sessions:   session.NewRegistry(b.redis, prefix),
		revocation: session.NewRevocationList(b.redis, prefix),
		otpStore:   stores.NewOTPStore(b.redis, prefix),
		pending:    stores.NewPendingLoginStore(b.redis, prefix),
		challenges: stores.NewChallengeStore(b.redis, prefix),
		webAuthn:   wa,
		metrics:    NewMetrics(cfg.Metrics),
	}
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:      cfg.Audit.Enabled,
		BufferSize:   cfg.Audit.BufferSize,
		DropIfFull:   cfg.Audit.DropIfFull,
		FailuresOnly: cfg.Audit.FailuresOnly,
	}, b.sinks...)

	b.built = true

	return engine, nil
}
