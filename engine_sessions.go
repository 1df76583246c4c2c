package checkmate

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/Mr-ivo/CheckMate-backend/session"
	"github.com/Mr-ivo/CheckMate-backend/token"
)

// RefreshAccessToken exchanges a valid refresh token for a new access token.
// The refresh token itself is not rotated; the session is updated in place
// and only the newest access token validates from here on. Every failure
// mode collapses to ErrInvalidRefreshToken except a disabled account, which
// the caller is allowed to learn about since they hold a proven token.
func (e *Engine) RefreshAccessToken(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}

	result, err := e.refresh(ctx, refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", "", err, nil)
		return nil, err
	}
	return result, nil
}

func (e *Engine) refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}

	refreshHash := hashToken(refreshToken)
	revoked, err := e.revocation.IsRevoked(ctx, refreshHash)
	if err != nil {
		return nil, storeErr(err)
	}
	if revoked {
		return nil, ErrInvalidRefreshToken
	}

	claims, err := e.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}

	sess, err := e.sessions.Get(ctx, claims.SID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, storeErr(err)
	}
	if !sess.Active || sess.RefreshHash != refreshHash {
		return nil, ErrInvalidRefreshToken
	}

	identity, err := e.identity.GetIdentityByID(ctx, sess.UserID)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}
	if !identity.Active {
		return nil, ErrAccountDisabled
	}

	accessToken, accessExpiry, err := e.tokens.IssueAccess(identity.UserID, identity.Role, sess.SessionID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sess.AccessHash = hashToken(accessToken)
	sess.Role = identity.Role
	sess.LastActivity = now.Unix()
	sess.ExpiresAt = accessExpiry.Unix()

	// Save rather than Update: the new access token pushes the session
	// expiry forward, so the TTL must be re-armed, not preserved.
	if err := e.sessions.Save(ctx, sess); err != nil {
		return nil, storeErr(err)
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, sess.UserID, sess.Email, sess.SessionID, nil, nil)

	return &RefreshResult{
		AccessToken: accessToken,
		ExpiresAt:   accessExpiry,
	}, nil
}

// Logout terminates the session behind the presented access token and
// revokes both of its tokens for their remaining lifetimes.
func (e *Engine) Logout(ctx context.Context, accessToken string) error {
	if e == nil || e.tokens == nil {
		return ErrEngineNotReady
	}

	sess, err := e.sessionForAccessToken(ctx, accessToken)
	if err != nil {
		return err
	}

	if err := e.sessions.MarkInactive(ctx, sess.SessionID, session.ReasonManual); err != nil {
		return storeErr(err)
	}
	if err := e.revokeSessionTokens(ctx, sess, session.ReasonManual); err != nil {
		return storeErr(err)
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutSession, true, sess.UserID, sess.Email, sess.SessionID, nil, nil)
	return nil
}

// LogoutAll terminates every other active session of the caller, keeping
// the one behind the presented token. Returns how many sessions were
// terminated.
func (e *Engine) LogoutAll(ctx context.Context, accessToken string) (int, error) {
	if e == nil || e.tokens == nil {
		return 0, ErrEngineNotReady
	}

	current, err := e.sessionForAccessToken(ctx, accessToken)
	if err != nil {
		return 0, err
	}

	terminated, err := e.terminateSessions(ctx, current.UserID, current.SessionID, session.ReasonManual)
	if err != nil {
		return terminated, err
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, current.UserID, current.Email, current.SessionID, nil, func() map[string]string {
		return map[string]string{"terminated": strconv.Itoa(terminated)}
	})
	return terminated, nil
}

// ForceLogout is the administrative kill switch: it terminates every active
// session of the target user and revokes all their outstanding tokens.
func (e *Engine) ForceLogout(ctx context.Context, userID string) (int, error) {
	if e == nil || e.sessions == nil {
		return 0, ErrEngineNotReady
	}

	terminated, err := e.terminateSessions(ctx, userID, "", session.ReasonForced)
	if err != nil {
		return terminated, err
	}

	e.metricInc(MetricForceLogout)
	e.emitAudit(ctx, auditEventForceLogout, true, userID, "", "", nil, func() map[string]string {
		return map[string]string{"terminated": strconv.Itoa(terminated)}
	})
	return terminated, nil
}

// ListSessions returns the user's session inventory for account-security
// screens: active sessions plus terminated ones that have not yet aged out.
func (e *Engine) ListSessions(ctx context.Context, userID string) ([]SessionInfo, error) {
	if e == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}

	records, err := e.sessions.AllForUser(ctx, userID)
	if err != nil {
		return nil, storeErr(err)
	}

	infos := make([]SessionInfo, 0, len(records))
	for _, sess := range records {
		infos = append(infos, SessionInfo{
			SessionID:    sess.SessionID,
			IP:           sess.IP,
			UserAgent:    sess.UserAgent,
			Active:       sess.Active,
			Reason:       sess.Reason.String(),
			CreatedAt:    time.Unix(sess.CreatedAt, 0),
			LastActivity: time.Unix(sess.LastActivity, 0),
			ExpiresAt:    time.Unix(sess.ExpiresAt, 0),
		})
	}
	return infos, nil
}

// sessionForAccessToken resolves a presented access token to its active
// session, enforcing the hash binding but not the revocation list: a user
// must be able to log out a session even mid-revocation.
func (e *Engine) sessionForAccessToken(ctx context.Context, accessToken string) (*session.Session, error) {
	if accessToken == "" {
		return nil, ErrTokenInvalid
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
	if sess.AccessHash != hashToken(accessToken) {
		return nil, ErrTokenInvalid
	}
	return sess, nil
}

func (e *Engine) terminateSessions(ctx context.Context, userID, keepSessionID string, reason session.Reason) (int, error) {
	active, err := e.sessions.ActiveForUser(ctx, userID)
	if err != nil {
		return 0, storeErr(err)
	}

	terminated := 0
	for _, sess := range active {
		if sess.SessionID == keepSessionID {
			continue
		}
		if err := e.sessions.MarkInactive(ctx, sess.SessionID, reason); err != nil {
			return terminated, storeErr(err)
		}
		if err := e.revokeSessionTokens(ctx, sess, reason); err != nil {
			return terminated, storeErr(err)
		}
		terminated++
	}
	return terminated, nil
}
