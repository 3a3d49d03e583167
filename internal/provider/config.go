package provider

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/blitz/internal/errors"
	"github.com/felixgeelhaar/blitz/internal/log"
)

// ProvidersConfig represents the complete providers.yaml configuration
type ProvidersConfig struct {
	Providers []ProviderConfig `yaml:"providers"`
	Strategy  StrategyConfig   `yaml:"strategy,omitempty"`
}

// StrategyConfig says which provider to prefer.
type StrategyConfig struct {
	// Preference lists provider names, most preferred first.
	Preference []string `yaml:"preference,omitempty"`
}

// LoadProvidersConfig loads provider configuration from a YAML file.
// ${VAR} references are expanded from the environment before decoding.
func LoadProvidersConfig(path string) (*ProvidersConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFileNotFoundError(path)
		}
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, "read providers config", err)
	}

	configStr := os.ExpandEnv(string(data))

	var config ProvidersConfig
	if err := yaml.Unmarshal([]byte(configStr), &config); err != nil {
		return nil, errors.NewFileUnmarshalError(path, "YAML", err)
	}

	if err := ValidateProvidersConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// ValidateProvidersConfig validates a providers configuration
func ValidateProvidersConfig(config *ProvidersConfig) error {
	if len(config.Providers) == 0 {
		return fmt.Errorf("no providers configured")
	}

	hasEnabled := false
	for _, p := range config.Providers {
		if p.Enabled {
			hasEnabled = true
			break
		}
	}
	if !hasEnabled {
		return fmt.Errorf("at least one provider must be enabled")
	}

	for i, p := range config.Providers {
		if err := ValidateProviderConfig(&p); err != nil {
			return fmt.Errorf("provider %d (%s): %w", i, p.Name, err)
		}
	}

	known := make(map[string]bool, len(config.Providers))
	for _, p := range config.Providers {
		known[p.Name] = true
	}
	for _, name := range config.Strategy.Preference {
		if !known[name] {
			return fmt.Errorf("strategy preference names unknown provider %q", name)
		}
	}

	return nil
}

// ValidateProviderConfig validates a single provider configuration
func ValidateProviderConfig(config *ProviderConfig) error {
	if config.Name == "" {
		return fmt.Errorf("name is required")
	}

	switch config.Type {
	case ProviderTypeAPI, ProviderTypeSDK:
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("invalid provider type: %s (must be api or sdk)", config.Type)
	}

	if config.Enabled && strings.TrimSpace(config.stringValue("api_key")) == "" {
		return fmt.Errorf("api_key is required for enabled provider")
	}
	return nil
}

// SaveProvidersConfig saves provider configuration to a YAML file
func SaveProvidersConfig(config *ProvidersConfig, path string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileMarshal, "marshal providers config", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "write providers config", err)
	}

	return nil
}

// DefaultProvidersConfig returns the Gemini REST provider reading its key
// from ${GEMINI_API_KEY}, with the SDK provider as a disabled alternative.
func DefaultProvidersConfig() *ProvidersConfig {
	return &ProvidersConfig{
		Providers: []ProviderConfig{
			{
				Name:    "gemini",
				Type:    ProviderTypeAPI,
				Enabled: true,
				Version: "1.0.0",
				Config: map[string]interface{}{
					"api_key":     "${GEMINI_API_KEY}",
					"model":       DefaultModel,
					"max_tokens":  DefaultMaxTokens,
					"temperature": DefaultTemperature,
				},
			},
			{
				Name:    "genai",
				Type:    ProviderTypeSDK,
				Enabled: false,
				Version: "1.0.0",
				Config: map[string]interface{}{
					"api_key": "${GEMINI_API_KEY}",
					"model":   DefaultModel,
				},
			},
		},
		Strategy: StrategyConfig{
			Preference: []string{"gemini", "genai"},
		},
	}
}

// Settings are the flat provider options found in the blitz config file.
type Settings struct {
	Name        string
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
}

// ConfigFromSettings turns flat settings into a single enabled provider entry.
func ConfigFromSettings(s Settings) *ProviderConfig {
	name := s.Name
	if name == "" {
		name = "gemini"
	}
	typ := ProviderTypeAPI
	if name == "genai" {
		typ = ProviderTypeSDK
	}

	cfg := map[string]interface{}{"api_key": s.APIKey}
	if s.BaseURL != "" {
		cfg["base_url"] = s.BaseURL
	}
	if s.Model != "" {
		cfg["model"] = s.Model
	}
	if s.MaxTokens > 0 {
		cfg["max_tokens"] = s.MaxTokens
	}
	if s.Temperature > 0 {
		cfg["temperature"] = s.Temperature
	}

	return &ProviderConfig{Name: name, Type: typ, Enabled: true, Config: cfg}
}

// LoadRegistryFromConfig loads providers into a registry from configuration
func LoadRegistryFromConfig(ctx context.Context, configPath string) (*Registry, error) {
	config, err := LoadProvidersConfig(configPath)
	if err != nil {
		return nil, err
	}

	return LoadRegistryFromProvidersConfig(ctx, config)
}

// LoadRegistryFromProvidersConfig loads the enabled providers of config.
// Providers that fail to load are logged and skipped.
func LoadRegistryFromProvidersConfig(ctx context.Context, config *ProvidersConfig) (*Registry, error) {
	registry := NewRegistry()
	registry.SetPreference(config.Strategy.Preference)

	for i := range config.Providers {
		providerConfig := &config.Providers[i]
		if !providerConfig.Enabled {
			continue
		}

		if err := registry.LoadFromConfig(ctx, providerConfig); err != nil {
			log.DefaultLogger().With("provider", providerConfig.Name).LogError("failed to load provider", err)
			continue
		}
	}

	if len(registry.List()) == 0 {
		return nil, errors.New(errors.ErrCodeProviderNotFound, "no providers loaded successfully").
			WithSuggestion("Check that GEMINI_API_KEY is set").
			WithSuggestion("Enable at least one provider in providers.yaml")
	}

	return registry, nil
}

// IsEnvVarSet checks if an environment variable is set and non-empty
func IsEnvVarSet(name string) bool {
	return strings.TrimSpace(os.Getenv(name)) != ""
}
