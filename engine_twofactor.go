package checkmate

import (
	"context"
	"errors"

	"github.com/Mr-ivo/CheckMate-backend/internal"
	"github.com/Mr-ivo/CheckMate-backend/internal/stores"
)

// twoFactorMethodOTP is the only delivery method currently stored on
// TwoFactorRecord. WebAuthn is a first-class login path, not a 2FA method.
const twoFactorMethodOTP = "otp"

// IssueOTP resends the one-time code for a login that already passed the
// password stage, replacing any code outstanding and re-arming the window.
// Only the latest code can verify. Without an open window the resend is
// refused, so a code can never be minted by email alone.
func (e *Engine) IssueOTP(ctx context.Context, email string) (bool, error) {
	if e == nil || e.identity == nil {
		return false, ErrEngineNotReady
	}

	identity, err := e.identity.GetIdentityByEmail(ctx, email)
	if err != nil {
		return false, ErrInvalidCredentials
	}
	if !identity.Active {
		return false, ErrInvalidCredentials
	}

	twoFactor, err := e.identity.GetTwoFactor(ctx, identity.UserID)
	if err != nil {
		return false, storeErr(err)
	}
	if !twoFactor.Enabled {
		return false, ErrTwoFactorNotEnabled
	}

	if err := e.requirePendingLogin(ctx, identity); err != nil {
		return false, err
	}
	if err := e.pending.Open(ctx, identity.UserID, e.config.OTP.TTL); err != nil {
		return false, storeErr(err)
	}

	return e.issueOTP(ctx, identity)
}

// requirePendingLogin rejects second-factor operations for users whose
// password stage has not run or whose window has lapsed.
func (e *Engine) requirePendingLogin(ctx context.Context, identity IdentityRecord) error {
	err := e.pending.Check(ctx, identity.UserID)
	if err == nil {
		return nil
	}
	if errors.Is(err, stores.ErrNoPending) {
		e.emitAudit(ctx, auditEventTwoFactorRejected, false, identity.UserID, identity.Email, "", ErrChallengeExpired, nil)
		return ErrChallengeExpired
	}
	return storeErr(err)
}

func (e *Engine) issueOTP(ctx context.Context, identity IdentityRecord) (bool, error) {
	code, err := internal.NewOTP(e.config.OTP.Digits)
	if err != nil {
		return false, err
	}

	codeHash := internal.HashCode(identity.UserID, code)
	if err := e.otpStore.Put(ctx, identity.UserID, codeHash, e.config.OTP.TTL); err != nil {
		return false, storeErr(err)
	}

	e.metricInc(MetricOTPIssued)
	e.emitAudit(ctx, auditEventOTPIssued, true, identity.UserID, identity.Email, "", nil, nil)

	// Delivery is fire-and-forget. A sender failure never fails the login;
	// the caller sees OTPDelivered=false and the user falls back to a
	// backup code or a resend.
	delivered := false
	if e.otpSender != nil {
		delivered = e.otpSender.SendOTP(ctx, identity.Email, code) == nil
	}
	return delivered, nil
}

// CompleteTwoFactorLogin finishes a two-factor login that Login handed off,
// with either the pending one-time code or a single-use backup code. Numeric
// input of the configured code length takes the OTP path; everything else is
// treated as a backup code. Both paths require the second-factor window the
// password stage opened; a code submitted outside one is refused and not
// consumed. Success consumes the window and converges on the same session
// issuance as Login.
func (e *Engine) CompleteTwoFactorLogin(ctx context.Context, email, code string) (*LoginResult, error) {
	if e == nil || e.identity == nil {
		return nil, ErrEngineNotReady
	}

	identity, err := e.identity.GetIdentityByEmail(ctx, email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if !identity.Active {
		return nil, ErrInvalidCredentials
	}

	twoFactor, err := e.identity.GetTwoFactor(ctx, identity.UserID)
	if err != nil {
		return nil, storeErr(err)
	}
	if !twoFactor.Enabled {
		return nil, ErrTwoFactorNotEnabled
	}

	if err := e.requirePendingLogin(ctx, identity); err != nil {
		return nil, err
	}

	canonical := internal.CanonicalizeCode(code)
	if isNumeric(canonical) && len(canonical) == e.config.OTP.Digits {
		return e.completeWithOTP(ctx, identity, canonical)
	}
	return e.completeWithBackupCode(ctx, identity, canonical)
}

func (e *Engine) completeWithOTP(ctx context.Context, identity IdentityRecord, canonical string) (*LoginResult, error) {
	submittedHash := internal.HashCode(identity.UserID, canonical)

	err := e.otpStore.Verify(ctx, identity.UserID, submittedHash, e.config.OTP.MaxAttempts)
	if err != nil {
		var mismatch *stores.MismatchError
		switch {
		case errors.As(err, &mismatch):
			e.metricInc(MetricOTPFailure)
			codeErr := &CodeError{RemainingAttempts: mismatch.Remaining}
			e.emitAudit(ctx, auditEventOTPFailure, false, identity.UserID, identity.Email, "", codeErr, nil)
			return nil, codeErr
		case errors.Is(err, stores.ErrExhausted):
			e.metricInc(MetricOTPExhausted)
			e.emitAudit(ctx, auditEventOTPFailure, false, identity.UserID, identity.Email, "", ErrTooManyAttempts, nil)
			return nil, ErrTooManyAttempts
		case errors.Is(err, stores.ErrNoPending):
			e.emitAudit(ctx, auditEventOTPFailure, false, identity.UserID, identity.Email, "", ErrChallengeExpired, nil)
			return nil, ErrChallengeExpired
		default:
			return nil, storeErr(err)
		}
	}

	if err := e.pending.Consume(ctx, identity.UserID); err != nil {
		return nil, storeErr(err)
	}

	return e.finishLogin(ctx, identity, auditEventOTPSuccess, MetricOTPSuccess)
}

func (e *Engine) completeWithBackupCode(ctx context.Context, identity IdentityRecord, canonical string) (*LoginResult, error) {
	submittedHash := internal.HashCode(identity.UserID, canonical)

	consumed, err := e.identity.ConsumeBackupCode(ctx, identity.UserID, submittedHash)
	if err != nil {
		return nil, storeErr(err)
	}
	if !consumed {
		e.metricInc(MetricBackupCodeFailed)
		e.emitAudit(ctx, auditEventBackupCodeFailed, false, identity.UserID, identity.Email, "", ErrInvalidCode, nil)
		return nil, ErrInvalidCode
	}

	// A redeemed backup code also retires the window and any pending
	// one-time code; the login they were issued for is complete.
	if err := e.pending.Consume(ctx, identity.UserID); err != nil {
		return nil, storeErr(err)
	}
	if err := e.otpStore.Clear(ctx, identity.UserID); err != nil {
		return nil, storeErr(err)
	}

	return e.finishLogin(ctx, identity, auditEventBackupCodeUsed, MetricBackupCodeUsed)
}

// EnableTwoFactor turns on the email one-time-code second factor and
// returns a fresh set of plaintext backup codes. The plaintexts exist only
// in this return value; storage keeps hashes.
func (e *Engine) EnableTwoFactor(ctx context.Context, userID string) ([]string, error) {
	if e == nil || e.identity == nil {
		return nil, ErrEngineNotReady
	}

	identity, err := e.identity.GetIdentityByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := e.identity.SetTwoFactor(ctx, userID, TwoFactorRecord{
		Enabled: true,
		Method:  twoFactorMethodOTP,
	}); err != nil {
		return nil, storeErr(err)
	}

	codes, err := e.replaceBackupCodes(ctx, identity)
	if err != nil {
		return nil, err
	}

	e.emitAudit(ctx, auditEventTwoFactorEnabled, true, identity.UserID, identity.Email, "", nil, nil)
	return codes, nil
}

// DisableTwoFactor turns the second factor off and destroys its supporting
// state: the open window and pending one-time code, if any, and all backup
// codes.
func (e *Engine) DisableTwoFactor(ctx context.Context, userID string) error {
	if e == nil || e.identity == nil {
		return ErrEngineNotReady
	}

	identity, err := e.identity.GetIdentityByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := e.identity.SetTwoFactor(ctx, userID, TwoFactorRecord{}); err != nil {
		return storeErr(err)
	}
	if err := e.identity.ReplaceBackupCodes(ctx, userID, nil); err != nil {
		return storeErr(err)
	}
	if err := e.pending.Consume(ctx, userID); err != nil {
		return storeErr(err)
	}
	if err := e.otpStore.Clear(ctx, userID); err != nil {
		return storeErr(err)
	}

	e.emitAudit(ctx, auditEventTwoFactorDisabled, true, identity.UserID, identity.Email, "", nil, nil)
	return nil
}

// GenerateBackupCodes replaces the user's backup-code set and returns the
// new plaintexts, formatted for display. Previously issued codes stop
// working immediately.
func (e *Engine) GenerateBackupCodes(ctx context.Context, userID string) ([]string, error) {
	if e == nil || e.identity == nil {
		return nil, ErrEngineNotReady
	}

	identity, err := e.identity.GetIdentityByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	twoFactor, err := e.identity.GetTwoFactor(ctx, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	if !twoFactor.Enabled {
		return nil, ErrTwoFactorNotEnabled
	}

	return e.replaceBackupCodes(ctx, identity)
}

func (e *Engine) replaceBackupCodes(ctx context.Context, identity IdentityRecord) ([]string, error) {
	count := e.config.OTP.BackupCodeCount
	plaintexts := make([]string, 0, count)
	records := make([]BackupCodeRecord, 0, count)

	for i := 0; i < count; i++ {
		raw, err := internal.NewBackupCode(e.config.OTP.BackupCodeLength)
		if err != nil {
			return nil, err
		}
		plaintexts = append(plaintexts, internal.FormatBackupCode(raw))
		records = append(records, BackupCodeRecord{
			Hash: internal.HashCode(identity.UserID, raw),
		})
	}

	if err := e.identity.ReplaceBackupCodes(ctx, identity.UserID, records); err != nil {
		return nil, storeErr(err)
	}

	e.metricInc(MetricBackupCodesRegenerated)
	e.emitAudit(ctx, auditEventBackupCodesRegenerated, true, identity.UserID, identity.Email, "", nil, nil)
	return plaintexts, nil
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
