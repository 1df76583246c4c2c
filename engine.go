package checkmate

import (
	"context"
	"errors"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/Mr-ivo/CheckMate-backend/internal"
	internalaudit "github.com/Mr-ivo/CheckMate-backend/internal/audit"
	"github.com/Mr-ivo/CheckMate-backend/internal/stores"
	"github.com/Mr-ivo/CheckMate-backend/password"
	"github.com/Mr-ivo/CheckMate-backend/session"
	"github.com/Mr-ivo/CheckMate-backend/token"
)

// Engine is the authentication core. All state lives in the identity
// provider and Redis; Engine itself is immutable after Build and safe for
// concurrent use.
type Engine struct {
	config     Config
	identity   IdentityProvider
	otpSender  OTPSender
	tokens     *token.Manager
	hasher     *password.Hasher
	sessions   *session.Registry
	revocation *session.RevocationList
	otpStore   *stores.OTPStore
	pending    *stores.PendingLoginStore
	challenges *stores.ChallengeStore
	webAuthn   *webauthn.WebAuthn
	audit      *internalaudit.Dispatcher
	metrics    *Metrics
}

// Close flushes and stops the audit dispatcher. The engine must not be used
// after Close.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Validate is the request hot path: it authenticates an access token and
// returns the identity behind it. Checks run cheapest-reject first:
// revocation list, then signature and expiry, then the backing session. A
// token whose session is inactive, expired, or superseded is rejected even
// when its signature is still valid. Redis failures fail closed.
func (e *Engine) Validate(ctx context.Context, accessToken string) (*AuthResult, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}
	start := time.Now()

	result, err := e.validate(ctx, accessToken)
	if err != nil {
		e.metricInc(MetricValidateFailure)
		return nil, err
	}

	e.metricInc(MetricValidateSuccess)
	e.metrics.Observe(MetricValidateLatency, time.Since(start))
	return result, nil
}

func (e *Engine) validate(ctx context.Context, accessToken string) (*AuthResult, error) {
	if accessToken == "" {
		return nil, ErrTokenInvalid
	}

	tokenHash := hashToken(accessToken)
	revoked, err := e.revocation.IsRevoked(ctx, tokenHash)
	if err != nil {
		return nil, storeErr(err)
	}
	if revoked {
		return nil, ErrTokenRevoked
	}

	claims, err := e.tokens.ParseAccess(accessToken)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	sess, err := e.sessions.Get(ctx, claims.SID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, storeErr(err)
	}
	if !sess.Active {
		return nil, ErrSessionNotFound
	}
	if sess.AccessHash != tokenHash {
		// A rotated session only honors its newest access token.
		return nil, ErrTokenInvalid
	}

	if err := e.sessions.Touch(ctx, sess); err != nil {
		return nil, storeErr(err)
	}

	return &AuthResult{
		UserID:    sess.UserID,
		Email:     sess.Email,
		Role:      sess.Role,
		SessionID: sess.SessionID,
	}, nil
}

func hashToken(tokenStr string) [32]byte {
	return internal.HashToken(tokenStr)
}

// storeErr normalizes backend failures to ErrStoreUnavailable while keeping
// the cause in the chain.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return errors.Join(ErrStoreUnavailable, err)
}
