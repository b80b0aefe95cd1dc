package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func counterValue(t *testing.T, m *Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	metric:
		for _, metric := range family.GetMetric() {
			for _, pair := range metric.GetLabel() {
				if want, ok := labels[pair.GetName()]; ok && want != pair.GetValue() {
					continue metric
				}
			}
			if c := metric.GetCounter(); c != nil {
				return c.GetValue()
			}
			if g := metric.GetGauge(); g != nil {
				return g.GetValue()
			}
		}
	}
	return 0
}

func TestCountersAndGauges(t *testing.T) {
	m := New()
	m.JobFinished("proxy", "succeeded")
	m.JobFinished("proxy", "succeeded")
	m.JobFinished("export", "failed")
	m.AttemptFinished("proxy", "ok", 2*time.Second)
	m.SetQueueDepth(3, 1)
	m.Append("conflict")
	m.GCItem("archive", false)
	m.GCStage("archive")()

	if got := counterValue(t, m, "cutline_render_jobs_total", map[string]string{"kind": "proxy", "outcome": "succeeded"}); got != 2 {
		t.Fatalf("proxy succeeded = %v, want 2", got)
	}
	if got := counterValue(t, m, "cutline_render_queue_depth", map[string]string{"state": "queued"}); got != 3 {
		t.Fatalf("queued depth = %v, want 3", got)
	}
	if got := counterValue(t, m, "cutline_gc_items_total", map[string]string{"stage": "archive", "result": "error"}); got != 1 {
		t.Fatalf("gc archive errors = %v, want 1", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.Append("ok")
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `cutline_edit_appends_total{result="ok"} 1`) {
		t.Fatalf("metrics output missing append counter:\n%s", body)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.JobFinished("proxy", "failed")
	m.SetQueueDepth(1, 1)
	m.GCStage("mark")()
	if m.Registry() != nil {
		t.Fatal("nil metrics should have no registry")
	}
}
