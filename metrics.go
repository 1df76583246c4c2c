package checkmate

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter.
type MetricID uint16

const (
	// MetricLoginSuccess counts password logins that produced a session.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts rejected password attempts.
	MetricLoginFailure
	// MetricLoginLocked counts attempts rejected by an active lockout.
	MetricLoginLocked
	// MetricLockoutTriggered counts lockouts started by the failure threshold.
	MetricLockoutTriggered
	// MetricTwoFactorRequired counts logins deferred to a second factor.
	MetricTwoFactorRequired
	// MetricOTPIssued counts one-time codes generated.
	MetricOTPIssued
	// MetricOTPSuccess counts one-time codes verified.
	MetricOTPSuccess
	// MetricOTPFailure counts one-time code mismatches.
	MetricOTPFailure
	// MetricOTPExhausted counts codes invalidated by attempt exhaustion.
	MetricOTPExhausted
	// MetricBackupCodeUsed counts backup codes redeemed.
	MetricBackupCodeUsed
	// MetricBackupCodeFailed counts backup codes that did not match.
	MetricBackupCodeFailed
	// MetricBackupCodesRegenerated counts full backup-code set replacements.
	MetricBackupCodesRegenerated
	// MetricWebAuthnRegistered counts completed credential registrations.
	MetricWebAuthnRegistered
	// MetricWebAuthnSuccess counts completed assertion ceremonies.
	MetricWebAuthnSuccess
	// MetricWebAuthnFailure counts failed assertion ceremonies.
	MetricWebAuthnFailure
	// MetricReplayDetected counts assertions rejected by the signature counter.
	MetricReplayDetected
	// MetricRefreshSuccess counts access tokens minted from refresh tokens.
	MetricRefreshSuccess
	// MetricRefreshFailure counts rejected refresh attempts.
	MetricRefreshFailure
	// MetricValidateSuccess counts access tokens accepted by Validate.
	MetricValidateSuccess
	// MetricValidateFailure counts access tokens rejected by Validate.
	MetricValidateFailure
	// MetricTokenRevoked counts tokens added to the revocation list.
	MetricTokenRevoked
	// MetricSessionCreated counts sessions opened.
	MetricSessionCreated
	// MetricSessionEvicted counts sessions invalidated by the concurrency cap.
	MetricSessionEvicted
	// MetricLogout counts single-session logouts.
	MetricLogout
	// MetricLogoutAll counts logout-everywhere operations.
	MetricLogoutAll
	// MetricForceLogout counts administrative session terminations.
	MetricForceLogout
	// MetricValidateLatency indexes the Validate latency histogram.
	MetricValidateLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

// Counters are cache-line padded so hot increments from different goroutines
// do not false-share.
type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is the engine's lock-free counter set.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters and histograms.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc increments a counter. A nil or disabled receiver is a no-op.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records a latency sample. Only the Validate histogram exists.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || id != MetricValidateLatency {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
}

// Value reads a single counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies all counters atomically enough for monitoring: each value
// is individually consistent, the set is not a transaction.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricValidateLatency].buckets[i])
		}
		s.Histograms[MetricValidateLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
