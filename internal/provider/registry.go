package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/felixgeelhaar/blitz/internal/errors"
)

// ProviderRegistry defines the interface for managing providers.
type ProviderRegistry interface {
	Register(name string, provider ProviderClient, config *ProviderConfig) error
	Get(name string) (ProviderClient, error)
	GetConfig(name string) (*ProviderConfig, error)
	List() []string
	Remove(name string) error
	CloseAll() error
	LoadFromConfig(ctx context.Context, config *ProviderConfig) error
	Select() (ProviderClient, error)
}

// Registry manages all loaded providers and implements ProviderRegistry
type Registry struct {
	mu         sync.RWMutex
	providers  map[string]ProviderClient
	configs    map[string]*ProviderConfig
	preference []string
}

// NewRegistry creates a new provider registry
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]ProviderClient),
		configs:   make(map[string]*ProviderConfig),
	}
}

// SetPreference sets the order Select tries providers in.
func (r *Registry) SetPreference(names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.preference = append([]string(nil), names...)
}

// Register adds a provider to the registry
func (r *Registry) Register(name string, provider ProviderClient, config *ProviderConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("provider %s already registered", name)
	}

	r.providers[name] = provider
	r.configs[name] = config

	return nil
}

// Get retrieves a provider by name
func (r *Registry) Get(name string) (ProviderClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, exists := r.providers[name]
	if !exists {
		return nil, errors.New(errors.ErrCodeProviderNotFound, fmt.Sprintf("provider %s not found", name))
	}

	return provider, nil
}

// GetConfig retrieves a provider's configuration
func (r *Registry) GetConfig(name string) (*ProviderConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	config, exists := r.configs[name]
	if !exists {
		return nil, errors.New(errors.ErrCodeProviderNotFound, fmt.Sprintf("provider %s not found", name))
	}

	return config, nil
}

// List returns all registered provider names in sorted order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Select returns the first available provider in preference order, falling
// back to the remaining providers by name.
func (r *Registry) Select() (ProviderClient, error) {
	r.mu.RLock()
	order := append([]string(nil), r.preference...)
	r.mu.RUnlock()
	order = append(order, r.List()...)

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range order {
		if p, ok := r.providers[name]; ok && p.IsAvailable() {
			return p, nil
		}
	}
	return nil, errors.New(errors.ErrCodeProviderNotFound, "no available provider")
}

// Remove removes a provider from the registry and closes it
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	provider, exists := r.providers[name]
	if !exists {
		return errors.New(errors.ErrCodeProviderNotFound, fmt.Sprintf("provider %s not found", name))
	}

	if err := provider.Close(); err != nil {
		return fmt.Errorf("failed to close provider %s: %w", name, err)
	}

	delete(r.providers, name)
	delete(r.configs, name)

	return nil
}

// CloseAll closes all registered providers
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for name, provider := range r.providers {
		if err := provider.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close provider %s: %w", name, err))
		}
	}

	r.providers = make(map[string]ProviderClient)
	r.configs = make(map[string]*ProviderConfig)

	if len(errs) > 0 {
		return fmt.Errorf("errors closing providers: %v", errs)
	}

	return nil
}

// LoadFromConfig creates and registers the provider described by config.
// Disabled providers are skipped without error.
func (r *Registry) LoadFromConfig(ctx context.Context, config *ProviderConfig) error {
	if config.Name == "" {
		return fmt.Errorf("provider name is required")
	}

	if !config.Enabled {
		return nil
	}

	var provider ProviderClient
	var err error

	switch config.Type {
	case ProviderTypeAPI:
		switch config.Name {
		case "gemini":
			provider, err = NewGeminiProvider(config)
		default:
			return fmt.Errorf("unknown API provider: %s", config.Name)
		}

	case ProviderTypeSDK:
		provider, err = NewGenAIProvider(ctx, config)

	default:
		return fmt.Errorf("unknown provider type: %s", config.Type)
	}

	if err != nil {
		return fmt.Errorf("failed to create provider %s: %w", config.Name, err)
	}

	return r.Register(config.Name, provider, config)
}

// Compile-time verification that Registry implements ProviderRegistry
var _ ProviderRegistry = (*Registry)(nil)
