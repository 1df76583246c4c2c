package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	checkmate "github.com/Mr-ivo/CheckMate-backend"
)

type fakeSource struct {
	snapshot checkmate.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() checkmate.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                       { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: checkmate.MetricsSnapshot{
			Counters:   map[checkmate.MetricID]uint64{},
			Histograms: map[checkmate.MetricID][]uint64{},
		},
		dropped: 0,
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderIncludesCounterAndHistogram(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: checkmate.MetricsSnapshot{
			Counters: map[checkmate.MetricID]uint64{
				checkmate.MetricLoginSuccess:   7,
				checkmate.MetricReplayDetected: 1,
			},
			Histograms: map[checkmate.MetricID][]uint64{
				checkmate.MetricValidateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	if !strings.Contains(out, "checkmate_login_success_total 7") {
		t.Fatalf("expected login_success counter in output, got:\n%s", out)
	}
	if !strings.Contains(out, "checkmate_replay_detected_total 1") {
		t.Fatalf("expected replay_detected counter in output, got:\n%s", out)
	}
	if !strings.Contains(out, "checkmate_validate_latency_seconds_bucket{le=\"0.005\"} 1") {
		t.Fatalf("expected first histogram bucket in output, got:\n%s", out)
	}
	if !strings.Contains(out, "checkmate_validate_latency_seconds_bucket{le=\"+Inf\"} 36") {
		t.Fatalf("expected +Inf cumulative bucket in output, got:\n%s", out)
	}
	if !strings.Contains(out, "checkmate_validate_latency_seconds_count 36") {
		t.Fatalf("expected histogram count in output, got:\n%s", out)
	}
	if !strings.Contains(out, "checkmate_audit_dropped_total 2") {
		t.Fatalf("expected audit dropped counter in output, got:\n%s", out)
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: checkmate.MetricsSnapshot{
			Counters: map[checkmate.MetricID]uint64{
				checkmate.MetricLoginSuccess:   3,
				checkmate.MetricRefreshSuccess: 2,
			},
			Histograms: map[checkmate.MetricID][]uint64{},
		},
	})

	first := exp.Render()
	second := exp.Render()
	if first != second {
		t.Fatal("expected identical output across renders of the same snapshot")
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: checkmate.MetricsSnapshot{
			Counters:   map[checkmate.MetricID]uint64{checkmate.MetricLoginSuccess: 1},
			Histograms: map[checkmate.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: checkmate.MetricsSnapshot{
			Counters: map[checkmate.MetricID]uint64{
				checkmate.MetricLoginSuccess:   1000,
				checkmate.MetricLoginFailure:   40,
				checkmate.MetricRefreshSuccess: 800,
				checkmate.MetricRefreshFailure: 10,
				checkmate.MetricSessionCreated: 800,
				checkmate.MetricSessionEvicted: 20,
				checkmate.MetricTokenRevoked:   60,
			},
			Histograms: map[checkmate.MetricID][]uint64{
				checkmate.MetricValidateLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
		dropped: 0,
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
