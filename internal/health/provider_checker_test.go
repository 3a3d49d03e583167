package health

import (
	"context"
	"errors"
	"testing"

	"github.com/felixgeelhaar/blitz/internal/provider"
)

// mockProvider implements provider.ProviderClient for testing
type mockProvider struct {
	name      string
	available bool
	healthErr error
}

func (m *mockProvider) Generate(context.Context, *provider.GenerateRequest) (*provider.GenerateResponse, error) {
	return nil, errors.New("not implemented")
}

func (m *mockProvider) Stream(context.Context, *provider.GenerateRequest) (<-chan provider.StreamChunk, error) {
	return nil, errors.New("not implemented")
}

func (m *mockProvider) GetCapabilities() *provider.ProviderCapabilities {
	return &provider.ProviderCapabilities{}
}

func (m *mockProvider) GetInfo() *provider.ProviderInfo {
	return &provider.ProviderInfo{Name: m.name, Version: "1.0.0", Type: provider.ProviderTypeAPI}
}

func (m *mockProvider) IsAvailable() bool            { return m.available }
func (m *mockProvider) Health(context.Context) error { return m.healthErr }
func (m *mockProvider) Close() error                 { return nil }

func TestProviderCheckerNoProviders(t *testing.T) {
	result := NewProviderChecker().Check(context.Background())

	if result.Status != StatusDegraded {
		t.Errorf("Status = %v, want degraded", result.Status)
	}
	if _, ok := result.Details["suggestion"]; !ok {
		t.Error("expected a suggestion")
	}
}

func TestProviderChecker(t *testing.T) {
	down := errors.New("connection refused")

	tests := []struct {
		name      string
		providers []provider.ProviderClient
		want      Status
		message   string
	}{
		{
			name:      "all healthy",
			providers: []provider.ProviderClient{&mockProvider{name: "gemini", available: true}},
			want:      StatusHealthy,
			message:   "all providers healthy (1/1)",
		},
		{
			name: "one unavailable",
			providers: []provider.ProviderClient{
				&mockProvider{name: "gemini", available: true},
				&mockProvider{name: "backup", available: false},
			},
			want:    StatusDegraded,
			message: "some providers unhealthy (1/2)",
		},
		{
			name:      "health error",
			providers: []provider.ProviderClient{&mockProvider{name: "gemini", available: true, healthErr: down}},
			want:      StatusUnhealthy,
			message:   "no healthy providers (0/1)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NewProviderChecker(tt.providers...).Check(context.Background())
			if result.Status != tt.want {
				t.Errorf("Status = %v, want %v", result.Status, tt.want)
			}
			if result.Message != tt.message {
				t.Errorf("Message = %q, want %q", result.Message, tt.message)
			}
			if got := result.Details["total_providers"]; got != len(tt.providers) {
				t.Errorf("total_providers = %v", got)
			}
		})
	}
}

func TestProviderCheckerDetails(t *testing.T) {
	down := errors.New("connection refused")
	result := NewProviderChecker(&mockProvider{name: "gemini", available: true, healthErr: down}).
		Check(context.Background())

	details, ok := result.Details["providers"].(map[string]interface{})
	if !ok {
		t.Fatalf("providers detail has type %T", result.Details["providers"])
	}
	entry := details["gemini"].(map[string]interface{})
	if entry["available"] != true || entry["healthy"] != false || entry["error"] != "connection refused" {
		t.Errorf("entry = %v", entry)
	}
}

func TestRegistryChecker(t *testing.T) {
	reg := provider.NewRegistry()
	if err := reg.Register("gemini", &mockProvider{name: "gemini", available: true}, nil); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	checker := NewRegistryChecker(reg)
	if checker.Name() != "providers" {
		t.Errorf("Name() = %q", checker.Name())
	}
	if got := checker.Check(context.Background()).Status; got != StatusHealthy {
		t.Errorf("Status = %v, want healthy", got)
	}
	if got := NewRegistryChecker(nil).Check(context.Background()).Status; got != StatusDegraded {
		t.Errorf("nil registry Status = %v, want degraded", got)
	}
}
