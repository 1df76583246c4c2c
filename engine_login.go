package checkmate

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/Mr-ivo/CheckMate-backend/session"
)

// Login verifies an email/password pair. Three outcomes: a full token pair
// with an open session, a two-factor handoff (Requires2FA set, no session),
// or an error. Unknown emails and disabled accounts both fail as invalid
// credentials so account existence is never revealed.
func (e *Engine) Login(ctx context.Context, email, plainPassword string) (*LoginResult, error) {
	if e == nil || e.identity == nil {
		return nil, ErrEngineNotReady
	}

	identity, err := e.identity.GetIdentityByEmail(ctx, email)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", email, "", ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}

	if until := identity.LockUntil; time.Now().Before(until) {
		e.metricInc(MetricLoginLocked)
		lockErr := &LockedError{RetryAfter: time.Until(until)}
		e.emitAudit(ctx, auditEventLoginLocked, false, identity.UserID, email, "", lockErr, nil)
		return nil, lockErr
	}

	if !identity.Active {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, identity.UserID, email, "", ErrAccountDisabled, nil)
		return nil, ErrInvalidCredentials
	}

	if !e.hasher.Verify(plainPassword, identity.PasswordHash) {
		return nil, e.recordPasswordFailure(ctx, identity)
	}

	if identity.FailedLogins > 0 {
		if err := e.identity.ClearLoginFailures(ctx, identity.UserID); err != nil {
			return nil, storeErr(err)
		}
	}

	twoFactor, err := e.identity.GetTwoFactor(ctx, identity.UserID)
	if err != nil {
		return nil, storeErr(err)
	}
	if twoFactor.Enabled {
		return e.beginTwoFactor(ctx, identity)
	}

	return e.finishLogin(ctx, identity, auditEventLoginSuccess, MetricLoginSuccess)
}

// recordPasswordFailure burns one attempt and locks the account when the
// threshold is reached. The increment is atomic at the provider, so parallel
// failures each count once and exactly one of them crosses the threshold.
func (e *Engine) recordPasswordFailure(ctx context.Context, identity IdentityRecord) error {
	failures, err := e.identity.RecordLoginFailure(ctx, identity.UserID)
	if err != nil {
		return storeErr(err)
	}

	threshold := e.config.Lockout.Threshold
	if failures >= threshold {
		until := time.Now().Add(e.config.Lockout.Duration)
		if err := e.identity.LockIdentity(ctx, identity.UserID, until); err != nil {
			return storeErr(err)
		}
		e.metricInc(MetricLockoutTriggered)
		lockErr := &LockedError{RetryAfter: e.config.Lockout.Duration}
		e.emitAudit(ctx, auditEventLockoutTriggered, false, identity.UserID, identity.Email, "", lockErr, func() map[string]string {
			return map[string]string{"failures": strconv.Itoa(failures)}
		})
		return lockErr
	}

	e.metricInc(MetricLoginFailure)
	credErr := &CredentialsError{RemainingAttempts: threshold - failures}
	e.emitAudit(ctx, auditEventLoginFailure, false, identity.UserID, identity.Email, "", credErr, nil)
	return credErr
}

// beginTwoFactor opens the second-factor window, issues a fresh one-time
// code, and hands the login off. The window is what CompleteTwoFactorLogin
// checks before accepting any code, so passing the password stage is the
// only way in. Delivery failures are swallowed: the caller learns via
// OTPDelivered and the user can fall back to a backup code.
func (e *Engine) beginTwoFactor(ctx context.Context, identity IdentityRecord) (*LoginResult, error) {
	if err := e.pending.Open(ctx, identity.UserID, e.config.OTP.TTL); err != nil {
		return nil, storeErr(err)
	}

	delivered, err := e.issueOTP(ctx, identity)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricTwoFactorRequired)
	e.emitAudit(ctx, auditEventTwoFactorRequired, true, identity.UserID, identity.Email, "", nil, nil)

	return &LoginResult{
		Requires2FA:  true,
		OTPDelivered: delivered,
		Identity: IdentitySummary{
			UserID: identity.UserID,
			Email:  identity.Email,
			Role:   identity.Role,
		},
	}, nil
}

// finishLogin is the single convergence point for every successful
// authentication path: password-only, OTP, backup code, and WebAuthn. It
// mints the token pair, opens the session, and enforces the concurrency cap.
func (e *Engine) finishLogin(ctx context.Context, identity IdentityRecord, auditEvent string, metric MetricID) (*LoginResult, error) {
	sessionID := uuid.NewString()

	accessToken, accessExpiry, err := e.tokens.IssueAccess(identity.UserID, identity.Role, sessionID)
	if err != nil {
		return nil, err
	}
	refreshToken, _, err := e.tokens.IssueRefresh(identity.UserID, sessionID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sess := &session.Session{
		SessionID:    sessionID,
		UserID:       identity.UserID,
		Email:        identity.Email,
		Role:         identity.Role,
		AccessHash:   hashToken(accessToken),
		RefreshHash:  hashToken(refreshToken),
		IP:           clientIPFromContext(ctx),
		UserAgent:    userAgentFromContext(ctx),
		Active:       true,
		CreatedAt:    now.Unix(),
		LastActivity: now.Unix(),
		ExpiresAt:    accessExpiry.Unix(),
	}

	if err := e.sessions.Save(ctx, sess); err != nil {
		return nil, storeErr(err)
	}
	e.metricInc(MetricSessionCreated)

	if evicted, err := e.enforceSessionCap(ctx, identity.UserID, sessionID); err != nil {
		// The login itself succeeded; cap enforcement is best effort and a
		// failure here must not strand the user with a dead token pair.
		e.emitAudit(ctx, auditEventSessionEvicted, false, identity.UserID, identity.Email, sessionID, err, nil)
	} else if evicted > 0 {
		e.emitAudit(ctx, auditEventSessionEvicted, true, identity.UserID, identity.Email, sessionID, nil, func() map[string]string {
			return map[string]string{"evicted": strconv.Itoa(evicted)}
		})
	}

	e.metricInc(metric)
	e.emitAudit(ctx, auditEvent, true, identity.UserID, identity.Email, sessionID, nil, nil)

	return &LoginResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    accessExpiry,
		Identity: IdentitySummary{
			UserID: identity.UserID,
			Email:  identity.Email,
			Role:   identity.Role,
		},
	}, nil
}

// enforceSessionCap evicts the least-recently-active sessions beyond the
// configured cap, sparing the one just created. Compensating rather than
// gating: concurrent logins may briefly exceed the cap, then converge, and
// no cross-request lock is held. Evicted sessions have both their tokens
// revoked for their remaining lifetimes.
func (e *Engine) enforceSessionCap(ctx context.Context, userID, keepSessionID string) (int, error) {
	limit := e.config.Session.MaxConcurrent
	if limit < 1 {
		return 0, nil
	}

	active, err := e.sessions.ActiveForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if len(active) <= limit {
		return 0, nil
	}

	// ActiveForUser sorts most-recent first; walk the tail upward, never
	// touching the session that triggered enforcement.
	evicted := 0
	excess := len(active) - limit
	for i := len(active) - 1; i >= 0 && evicted < excess; i-- {
		victim := active[i]
		if victim.SessionID == keepSessionID {
			continue
		}
		if err := e.evictSession(ctx, victim); err != nil {
			return evicted, err
		}
		e.metricInc(MetricSessionEvicted)
		evicted++
	}

	return evicted, nil
}

func (e *Engine) evictSession(ctx context.Context, victim *session.Session) error {
	if err := e.sessions.MarkInactive(ctx, victim.SessionID, session.ReasonSecurity); err != nil {
		return err
	}
	return e.revokeSessionTokens(ctx, victim, session.ReasonSecurity)
}

// revokeSessionTokens puts both of a session's token hashes on the
// revocation list. The refresh expiry is reconstructed from the session's
// creation time since the raw refresh token is never stored.
func (e *Engine) revokeSessionTokens(ctx context.Context, sess *session.Session, reason session.Reason) error {
	accessExpiry := time.Unix(sess.ExpiresAt, 0)
	refreshExpiry := time.Unix(sess.CreatedAt, 0).Add(e.config.Token.RefreshTTL)

	if err := e.revocation.Revoke(ctx, sess.AccessHash, sess.UserID, reason, accessExpiry); err != nil {
		return err
	}
	if err := e.revocation.Revoke(ctx, sess.RefreshHash, sess.UserID, reason, refreshExpiry); err != nil {
		return err
	}
	e.metricInc(MetricTokenRevoked)
	e.emitAudit(ctx, auditEventTokenRevoked, true, sess.UserID, sess.Email, sess.SessionID, nil, func() map[string]string {
		return map[string]string{"reason": reason.String()}
	})
	return nil
}
