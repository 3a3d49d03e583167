// Package config loads blitz settings from ~/.blitz/config.yaml, an explicit
// file, BLITZ_* environment variables and command-line flags.
package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/felixgeelhaar/blitz/internal/errors"
	"github.com/felixgeelhaar/blitz/internal/provider"
)

// EnvPrefix prefixes every environment override, e.g. BLITZ_SERVER_ADDR.
const EnvPrefix = "BLITZ"

// Sandbox kinds.
const (
	SandboxNone     = "none"
	SandboxRecorder = "recorder"
	SandboxLocal    = "local"
	SandboxDocker   = "docker"
)

// Config holds the application configuration.
type Config struct {
	Log        LogConfig        `mapstructure:"log" json:"log" yaml:"log"`
	Server     ServerConfig     `mapstructure:"server" json:"server" yaml:"server"`
	Provider   ProviderConfig   `mapstructure:"provider" json:"provider" yaml:"provider"`
	Sandbox    SandboxConfig    `mapstructure:"sandbox" json:"sandbox" yaml:"sandbox"`
	Journal    JournalConfig    `mapstructure:"journal" json:"journal" yaml:"journal"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint" json:"checkpoint" yaml:"checkpoint"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry" json:"telemetry" yaml:"telemetry"`
}

// LogConfig selects log level and format.
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level" yaml:"level"`
	Format string `mapstructure:"format" json:"format" yaml:"format"`
}

// ServerConfig configures the HTTP relay.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" json:"addr" yaml:"addr"`
	CORSOrigins     []string      `mapstructure:"cors_origins" json:"cors_origins" yaml:"cors_origins"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" json:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// ProviderConfig selects and configures the generation backend. When
// ConfigFile names a providers.yaml it takes precedence over the flat fields.
type ProviderConfig struct {
	Name        string  `mapstructure:"name" json:"name" yaml:"name"`
	APIKey      string  `mapstructure:"api_key" json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL     string  `mapstructure:"base_url" json:"base_url" yaml:"base_url"`
	Model       string  `mapstructure:"model" json:"model" yaml:"model"`
	MaxTokens   int     `mapstructure:"max_tokens" json:"max_tokens" yaml:"max_tokens"`
	Temperature float64 `mapstructure:"temperature" json:"temperature" yaml:"temperature"`
	ConfigFile  string  `mapstructure:"config_file" json:"config_file" yaml:"config_file"`
}

// SandboxConfig selects where projects are mounted and commands run.
type SandboxConfig struct {
	Kind    string `mapstructure:"kind" json:"kind" yaml:"kind"`
	Root    string `mapstructure:"root" json:"root" yaml:"root"`
	Image   string `mapstructure:"image" json:"image" yaml:"image"`
	Network string `mapstructure:"network" json:"network" yaml:"network"`
}

// JournalConfig locates the step journal.
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" json:"path" yaml:"path"`
}

// CheckpointConfig locates session snapshots.
type CheckpointConfig struct {
	Dir string `mapstructure:"dir" json:"dir" yaml:"dir"`
}

// TelemetryConfig controls OpenTelemetry tracing. Endpoint is an OTLP/HTTP
// collector URL; without one spans are recorded but not exported.
type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	Endpoint    string  `mapstructure:"endpoint" json:"endpoint" yaml:"endpoint"`
	SampleRate  float64 `mapstructure:"sample_rate" json:"sample_rate" yaml:"sample_rate"`
	Environment string  `mapstructure:"environment" json:"environment" yaml:"environment"`
}

// Home returns the blitz state directory, ~/.blitz.
func Home() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".blitz"
	}
	return filepath.Join(home, ".blitz")
}

// New returns a viper instance with defaults, file lookup and environment
// bindings configured and the config file, if any, read.
func New(configPath string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, errors.NewFileNotFoundError(configPath)
		}
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(Home())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// GEMINI_API_KEY is accepted as well.
	if err := v.BindEnv("provider.api_key", EnvPrefix+"_PROVIDER_API_KEY", "GEMINI_API_KEY"); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !stderrors.As(err, &notFound) {
			return nil, errors.NewFileUnmarshalError(v.ConfigFileUsed(), "YAML", err)
		}
	}
	return v, nil
}

// Load reads configuration from file and environment.
func Load(configPath string) (*Config, error) {
	v, err := New(configPath)
	if err != nil {
		return nil, err
	}
	return Decode(v)
}

// Decode unmarshals v, expands home-relative paths and validates the result.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileUnmarshal, "decode configuration", err)
	}

	cfg.Sandbox.Root = expandHome(cfg.Sandbox.Root)
	cfg.Journal.Path = expandHome(cfg.Journal.Path)
	cfg.Checkpoint.Dir = expandHome(cfg.Checkpoint.Dir)
	cfg.Provider.ConfigFile = expandHome(cfg.Provider.ConfigFile)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	home := Home()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("server.addr", ":3000")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("provider.name", "gemini")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.base_url", "")
	v.SetDefault("provider.model", provider.DefaultModel)
	v.SetDefault("provider.max_tokens", provider.DefaultMaxTokens)
	v.SetDefault("provider.temperature", provider.DefaultTemperature)
	v.SetDefault("provider.config_file", "")

	v.SetDefault("sandbox.kind", SandboxRecorder)
	v.SetDefault("sandbox.root", filepath.Join(home, "sandboxes"))
	v.SetDefault("sandbox.image", "node:20-alpine")
	v.SetDefault("sandbox.network", "none")

	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.path", filepath.Join(home, "journal.db"))

	v.SetDefault("checkpoint.dir", filepath.Join(home, "checkpoints"))

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.sample_rate", 1.0)
	v.SetDefault("telemetry.environment", "development")
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch c.Sandbox.Kind {
	case SandboxNone, SandboxRecorder, SandboxLocal, SandboxDocker:
	default:
		return errors.New(errors.ErrCodeProviderConfig, fmt.Sprintf("unknown sandbox kind %q", c.Sandbox.Kind)).
			WithSuggestion("Use one of: none, recorder, local, docker")
	}

	switch c.Provider.Name {
	case "gemini", "genai":
	default:
		return errors.New(errors.ErrCodeProviderConfig, fmt.Sprintf("unknown provider %q", c.Provider.Name)).
			WithSuggestion("Use gemini (REST) or genai (SDK)")
	}

	if c.Provider.Temperature < 0 || c.Provider.Temperature > 2 {
		return errors.New(errors.ErrCodeProviderConfig,
			fmt.Sprintf("temperature %.2f is outside 0..2", c.Provider.Temperature))
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return errors.New(errors.ErrCodeProviderConfig,
			fmt.Sprintf("telemetry sample rate %.2f is outside 0..1", c.Telemetry.SampleRate))
	}
	return nil
}

// ProviderSettings returns the flat provider settings.
func (c *Config) ProviderSettings() provider.Settings {
	return provider.Settings{
		Name:        c.Provider.Name,
		APIKey:      c.Provider.APIKey,
		BaseURL:     c.Provider.BaseURL,
		Model:       c.Provider.Model,
		MaxTokens:   c.Provider.MaxTokens,
		Temperature: c.Provider.Temperature,
	}
}

// APIKeyConfigured reports whether a provider key is available.
func (c *Config) APIKeyConfigured() bool {
	return c.Provider.APIKey != ""
}

// Save writes cfg to path as YAML. The API key is never written.
func Save(cfg *Config, path string) error {
	v := viper.New()

	v.Set("log.level", cfg.Log.Level)
	v.Set("log.format", cfg.Log.Format)
	v.Set("server.addr", cfg.Server.Addr)
	v.Set("server.cors_origins", cfg.Server.CORSOrigins)
	v.Set("server.read_timeout", cfg.Server.ReadTimeout.String())
	v.Set("server.write_timeout", cfg.Server.WriteTimeout.String())
	v.Set("server.shutdown_timeout", cfg.Server.ShutdownTimeout.String())
	v.Set("provider.name", cfg.Provider.Name)
	v.Set("provider.base_url", cfg.Provider.BaseURL)
	v.Set("provider.model", cfg.Provider.Model)
	v.Set("provider.max_tokens", cfg.Provider.MaxTokens)
	v.Set("provider.temperature", cfg.Provider.Temperature)
	v.Set("provider.config_file", cfg.Provider.ConfigFile)
	v.Set("sandbox.kind", cfg.Sandbox.Kind)
	v.Set("sandbox.root", cfg.Sandbox.Root)
	v.Set("sandbox.image", cfg.Sandbox.Image)
	v.Set("sandbox.network", cfg.Sandbox.Network)
	v.Set("journal.enabled", cfg.Journal.Enabled)
	v.Set("journal.path", cfg.Journal.Path)
	v.Set("checkpoint.dir", cfg.Checkpoint.Dir)
	v.Set("telemetry.enabled", cfg.Telemetry.Enabled)
	v.Set("telemetry.endpoint", cfg.Telemetry.Endpoint)
	v.Set("telemetry.sample_rate", cfg.Telemetry.SampleRate)
	v.Set("telemetry.environment", cfg.Telemetry.Environment)

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return errors.Wrap(errors.ErrCodeDirectoryFailed, "create config directory", err)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "write config", err)
	}
	return nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
