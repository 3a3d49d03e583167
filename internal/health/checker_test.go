package health

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestStatusString(t *testing.T) {
	tests := []struct {
		status   Status
		expected string
	}{
		{StatusHealthy, "healthy"},
		{StatusDegraded, "degraded"},
		{StatusUnhealthy, "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.String(); got != tt.expected {
				t.Errorf("Status.String() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestResultConstructors(t *testing.T) {
	tests := []struct {
		name   string
		result *Result
		want   Status
	}{
		{"healthy", Healthy("ok"), StatusHealthy},
		{"degraded", Degraded("slow"), StatusDegraded},
		{"unhealthy", Unhealthy("down"), StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.result.Status != tt.want {
				t.Errorf("Status = %v, want %v", tt.result.Status, tt.want)
			}
			if tt.result.Details == nil {
				t.Error("Details should be initialized")
			}
		})
	}
}

func TestResultChaining(t *testing.T) {
	r := (&Result{Status: StatusHealthy}).
		WithDetail("path", "/tmp").
		WithDetail("count", 2).
		WithLatency(15 * time.Millisecond)

	if r.Details["path"] != "/tmp" || r.Details["count"] != 2 {
		t.Errorf("Details = %v", r.Details)
	}
	if r.Latency != 15*time.Millisecond {
		t.Errorf("Latency = %v, want 15ms", r.Latency)
	}
}

func TestResultJSON(t *testing.T) {
	data, err := json.Marshal(Healthy("ok"))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded["status"] != "healthy" || decoded["message"] != "ok" {
		t.Errorf("decoded = %v", decoded)
	}
	if _, ok := decoded["details"]; ok {
		t.Error("empty details should be omitted")
	}
}

func TestPingChecker(t *testing.T) {
	ok := NewPingChecker("journal", func(context.Context) error { return nil })
	if ok.Name() != "journal" {
		t.Errorf("Name() = %q, want journal", ok.Name())
	}
	if got := ok.Check(context.Background()); got.Status != StatusHealthy {
		t.Errorf("Status = %v, want healthy", got.Status)
	}

	failing := NewPingChecker("journal", func(context.Context) error { return errors.New("database is closed") })
	got := failing.Check(context.Background())
	if got.Status != StatusUnhealthy {
		t.Errorf("Status = %v, want unhealthy", got.Status)
	}
	if got.Details["error"] != "database is closed" {
		t.Errorf("Details[error] = %v", got.Details["error"])
	}
}
