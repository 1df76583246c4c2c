package internaldefs

import (
	checkmate "github.com/Mr-ivo/CheckMate-backend"
)

// CounterDef binds a metric ID to its exported name and help text.
type CounterDef struct {
	ID   checkmate.MetricID
	Name string
	Help string
}

// HistogramDef binds a histogram metric ID to its exported name and help text.
type HistogramDef struct {
	ID   checkmate.MetricID
	Name string
	Help string
}

// CounterDefs enumerates every exported counter. Both exporters iterate this
// list so metric names never diverge between them.
var CounterDefs = []CounterDef{
	{ID: checkmate.MetricLoginSuccess, Name: "checkmate_login_success_total", Help: "Password logins that produced a session."},
	{ID: checkmate.MetricLoginFailure, Name: "checkmate_login_failure_total", Help: "Rejected password attempts."},
	{ID: checkmate.MetricLoginLocked, Name: "checkmate_login_locked_total", Help: "Attempts rejected by an active lockout."},
	{ID: checkmate.MetricLockoutTriggered, Name: "checkmate_lockout_triggered_total", Help: "Lockouts started by the failure threshold."},
	{ID: checkmate.MetricTwoFactorRequired, Name: "checkmate_two_factor_required_total", Help: "Logins deferred to a second factor."},
	{ID: checkmate.MetricOTPIssued, Name: "checkmate_otp_issued_total", Help: "One-time codes generated."},
	{ID: checkmate.MetricOTPSuccess, Name: "checkmate_otp_success_total", Help: "One-time codes verified."},
	{ID: checkmate.MetricOTPFailure, Name: "checkmate_otp_failure_total", Help: "One-time code mismatches."},
	{ID: checkmate.MetricOTPExhausted, Name: "checkmate_otp_exhausted_total", Help: "Codes invalidated by attempt exhaustion."},
	{ID: checkmate.MetricBackupCodeUsed, Name: "checkmate_backup_code_used_total", Help: "Backup codes redeemed."},
	{ID: checkmate.MetricBackupCodeFailed, Name: "checkmate_backup_code_failed_total", Help: "Backup codes that did not match."},
	{ID: checkmate.MetricBackupCodesRegenerated, Name: "checkmate_backup_codes_regenerated_total", Help: "Backup-code set replacements."},
	{ID: checkmate.MetricWebAuthnRegistered, Name: "checkmate_webauthn_registered_total", Help: "Completed credential registrations."},
	{ID: checkmate.MetricWebAuthnSuccess, Name: "checkmate_webauthn_success_total", Help: "Completed assertion ceremonies."},
	{ID: checkmate.MetricWebAuthnFailure, Name: "checkmate_webauthn_failure_total", Help: "Failed assertion ceremonies."},
	{ID: checkmate.MetricReplayDetected, Name: "checkmate_replay_detected_total", Help: "Assertions rejected by the signature counter."},
	{ID: checkmate.MetricRefreshSuccess, Name: "checkmate_refresh_success_total", Help: "Access tokens minted from refresh tokens."},
	{ID: checkmate.MetricRefreshFailure, Name: "checkmate_refresh_failure_total", Help: "Rejected refresh attempts."},
	{ID: checkmate.MetricValidateSuccess, Name: "checkmate_validate_success_total", Help: "Access tokens accepted by Validate."},
	{ID: checkmate.MetricValidateFailure, Name: "checkmate_validate_failure_total", Help: "Access tokens rejected by Validate."},
	{ID: checkmate.MetricTokenRevoked, Name: "checkmate_token_revoked_total", Help: "Tokens added to the revocation list."},
	{ID: checkmate.MetricSessionCreated, Name: "checkmate_session_created_total", Help: "Sessions opened."},
	{ID: checkmate.MetricSessionEvicted, Name: "checkmate_session_evicted_total", Help: "Sessions invalidated by the concurrency cap."},
	{ID: checkmate.MetricLogout, Name: "checkmate_logout_total", Help: "Single-session logout operations."},
	{ID: checkmate.MetricLogoutAll, Name: "checkmate_logout_all_total", Help: "Logout-everywhere operations."},
	{ID: checkmate.MetricForceLogout, Name: "checkmate_force_logout_total", Help: "Administrative session terminations."},
}

// HistogramDefs enumerates every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: checkmate.MetricValidateLatency, Name: "checkmate_validate_latency_seconds", Help: "Validate latency histogram."},
}

// HistogramBounds are the upper bounds, in seconds, of the latency buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix mirrors HistogramBounds with characters safe for
// metric name suffixes.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw bucket slice to the fixed width.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to the cumulative form
// Prometheus histograms expect.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
