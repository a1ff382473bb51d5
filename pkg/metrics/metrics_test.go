package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func scrape(t *testing.T, m *SweepMetrics) string {
	t.Helper()
	req := httptest.NewRequest("GET", "/metrics", nil)
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, req)
	if rr.Code != 200 {
		t.Fatalf("scrape status = %d", rr.Code)
	}
	return rr.Body.String()
}

func TestSweepMetrics(t *testing.T) {
	m := NewSweepMetrics()

	m.PointCompleted("116.67", 215.3, 4.2)
	m.PointCompleted("116.67", 216.1, 3.9)
	m.PointFailed()
	m.RetryObserved()
	m.SetProgress(3, 12)

	body := scrape(t, m)

	checks := []string{
		"machmap_points_completed_total 2",
		"machmap_points_failed_total 1",
		"machmap_solver_retries_total 1",
		"machmap_sweep_progress_ratio 0.25",
		`machmap_last_torque_nm{current="116.67"} 216.1`,
		"machmap_solver_duration_seconds_count 2",
	}
	for _, want := range checks {
		if !strings.Contains(body, want) {
			t.Errorf("scrape output missing %q", want)
		}
	}
}

func TestSetProgressZeroTotal(t *testing.T) {
	// A zero total must not divide; the gauge simply stays put
	m := NewSweepMetrics()
	m.SetProgress(5, 0)

	body := scrape(t, m)
	if !strings.Contains(body, "machmap_sweep_progress_ratio 0") {
		t.Error("progress gauge moved on a zero total")
	}
}

func TestIndependentRegistries(t *testing.T) {
	// Two metric sets must not collide: each sweep gets its own registry
	a := NewSweepMetrics()
	b := NewSweepMetrics()

	a.PointCompleted("10.00", 12.5, 1)
	if body := scrape(t, b); strings.Contains(body, "machmap_points_completed_total 1") {
		t.Error("metric sets share a registry")
	}
}
