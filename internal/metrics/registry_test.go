package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

func TestInitDefault(t *testing.T) {
	m := InitDefault()
	if m == nil {
		t.Fatal("expected metrics, got nil")
	}
	if m != Default {
		t.Error("expected returned metrics to be same as Default")
	}
	if InitDefault() != m {
		t.Error("expected same instance on second call")
	}
	if GetDefault() != m {
		t.Error("expected GetDefault to return Default instance")
	}
}

func TestNewRegistry(t *testing.T) {
	reg, m := NewRegistry()
	m.CommandExecutions.WithLabelValues("build", "true").Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	names := map[string]bool{}
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	if !names["blitz_command_executions_total"] {
		t.Error("command metric not registered with custom registry")
	}
	if !names["go_goroutines"] {
		t.Error("runtime collector not registered")
	}
}

func TestHandlerFor(t *testing.T) {
	reg, m := NewRegistry()
	m.RecordProviderCall("gemini", "gemini-2.5-flash", 0, 10, 20, nil)

	handler := HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %v, want %v", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	if !strings.Contains(body, "blitz_provider_calls_total") {
		t.Error("metrics output does not contain provider_calls_total")
	}
	if !strings.Contains(body, `token_type="output"`) {
		t.Error("metrics output does not contain token counts")
	}
}

func TestMultipleRegistries(t *testing.T) {
	reg1, m1 := NewRegistry()
	reg2, m2 := NewRegistry()
	if m1 == m2 {
		t.Fatal("expected different metrics instances")
	}

	m1.RecordMount(nil)

	count := func(reg interface {
		Gather() ([]*dto.MetricFamily, error)
	}) int {
		families, err := reg.Gather()
		if err != nil {
			t.Fatalf("gather: %v", err)
		}
		for _, mf := range families {
			if mf.GetName() == "blitz_sandbox_mounts_total" {
				return len(mf.GetMetric())
			}
		}
		return 0
	}

	if got := count(reg1); got != 1 {
		t.Errorf("reg1 mount series = %d, want 1", got)
	}
	if got := count(reg2); got != 0 {
		t.Errorf("reg2 mount series = %d, want 0", got)
	}
}
