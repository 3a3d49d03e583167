package health

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/blitz/internal/provider"
)

// ProviderChecker checks the generation providers. Without a provider the
// template endpoint still works, so an empty checker is degraded rather than
// unhealthy.
type ProviderChecker struct {
	providers []provider.ProviderClient
}

// NewProviderChecker creates a checker over the given provider clients.
func NewProviderChecker(providers ...provider.ProviderClient) *ProviderChecker {
	return &ProviderChecker{providers: providers}
}

// NewRegistryChecker creates a checker over every provider in reg.
func NewRegistryChecker(reg *provider.Registry) *ProviderChecker {
	c := &ProviderChecker{}
	if reg == nil {
		return c
	}
	for _, name := range reg.List() {
		if p, err := reg.Get(name); err == nil {
			c.providers = append(c.providers, p)
		}
	}
	return c
}

// Name returns the name of this health check.
func (c *ProviderChecker) Name() string {
	return "providers"
}

// Check calls IsAvailable and Health on each provider. All healthy is
// healthy, none healthy is unhealthy, anything in between is degraded.
func (c *ProviderChecker) Check(ctx context.Context) *Result {
	if len(c.providers) == 0 {
		return Degraded("no generation provider configured").
			WithDetail("provider_count", 0).
			WithDetail("suggestion", "Set BLITZ_PROVIDER_API_KEY or GEMINI_API_KEY")
	}

	healthy := 0
	details := make(map[string]interface{}, len(c.providers))

	for _, p := range c.providers {
		info := p.GetInfo()
		entry := map[string]interface{}{
			"available": false,
			"healthy":   false,
			"type":      string(info.Type),
		}
		details[info.Name] = entry

		if !p.IsAvailable() {
			continue
		}
		entry["available"] = true

		if err := p.Health(ctx); err != nil {
			entry["error"] = err.Error()
			continue
		}
		entry["healthy"] = true
		entry["version"] = info.Version
		healthy++
	}

	total := len(c.providers)
	var result *Result
	switch {
	case healthy == 0:
		result = Unhealthy(fmt.Sprintf("no healthy providers (0/%d)", total))
	case healthy < total:
		result = Degraded(fmt.Sprintf("some providers unhealthy (%d/%d)", healthy, total))
	default:
		result = Healthy(fmt.Sprintf("all providers healthy (%d/%d)", healthy, total))
	}
	return result.
		WithDetail("total_providers", total).
		WithDetail("healthy_providers", healthy).
		WithDetail("providers", details)
}
