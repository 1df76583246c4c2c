package checkmate

import (
	"context"
	"errors"
	"time"

	internalaudit "github.com/Mr-ivo/CheckMate-backend/internal/audit"
)

const (
	auditEventLoginSuccess           = "login_success"
	auditEventLoginFailure           = "login_failure"
	auditEventLoginLocked            = "login_locked"
	auditEventLockoutTriggered       = "lockout_triggered"
	auditEventTwoFactorRequired      = "two_factor_required"
	auditEventTwoFactorRejected      = "two_factor_rejected"
	auditEventOTPIssued              = "otp_issued"
	auditEventOTPSuccess             = "otp_success"
	auditEventOTPFailure             = "otp_failure"
	auditEventBackupCodeUsed         = "backup_code_used"
	auditEventBackupCodeFailed       = "backup_code_failed"
	auditEventBackupCodesRegenerated = "backup_codes_regenerated"
	auditEventTwoFactorEnabled       = "two_factor_enabled"
	auditEventTwoFactorDisabled      = "two_factor_disabled"
	auditEventWebAuthnRegistered     = "webauthn_registered"
	auditEventWebAuthnRemoved        = "webauthn_removed"
	auditEventWebAuthnSuccess        = "webauthn_success"
	auditEventWebAuthnFailure        = "webauthn_failure"
	auditEventReplayDetected         = "webauthn_replay_detected"
	auditEventRefreshSuccess         = "refresh_success"
	auditEventRefreshInvalid         = "refresh_invalid"
	auditEventTokenRevoked           = "token_revoked"
	auditEventSessionEvicted         = "session_evicted"
	auditEventLogoutSession          = "logout_session"
	auditEventLogoutAll              = "logout_all"
	auditEventForceLogout            = "force_logout"
)

// auditErrorCode maps engine errors to stable audit codes. Sink consumers
// alert on these strings, so they never carry formatting or dynamic detail.
func auditErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrAccountLocked):
		return "account_locked"
	case errors.Is(err, ErrAccountDisabled):
		return "account_disabled"
	case errors.Is(err, ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, ErrTokenRevoked):
		return "token_revoked"
	case errors.Is(err, ErrTokenInvalid):
		return "token_invalid"
	case errors.Is(err, ErrChallengeExpired):
		return "challenge_expired"
	case errors.Is(err, ErrTooManyAttempts):
		return "too_many_attempts"
	case errors.Is(err, ErrInvalidCode):
		return "invalid_code"
	case errors.Is(err, ErrCredentialNotFound):
		return "credential_not_found"
	case errors.Is(err, ErrReplayDetected):
		return "replay_detected"
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, ErrInvalidRefreshToken):
		return "refresh_invalid"
	case errors.Is(err, ErrTwoFactorNotEnabled):
		return "two_factor_not_enabled"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "internal_error"
	}
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	email string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := internalaudit.Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		Email:     email,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = code
	}

	e.audit.Emit(ctx, event)
}
