package cmd

import (
	"context"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/blitz/internal/checkpoint"
	"github.com/felixgeelhaar/blitz/internal/config"
	"github.com/felixgeelhaar/blitz/internal/errors"
	"github.com/felixgeelhaar/blitz/internal/journal"
	"github.com/felixgeelhaar/blitz/internal/log"
	"github.com/felixgeelhaar/blitz/internal/metrics"
	"github.com/felixgeelhaar/blitz/internal/provider"
	"github.com/felixgeelhaar/blitz/internal/sandbox"
	"github.com/felixgeelhaar/blitz/internal/telemetry"
	"github.com/felixgeelhaar/blitz/internal/template"
	"github.com/felixgeelhaar/blitz/internal/ux"
	"github.com/felixgeelhaar/blitz/internal/version"
)

// flagKeys maps command-line flags to the configuration keys they override.
// A flag is bound only on the commands that define it.
var flagKeys = map[string]string{
	"log-level":      "log.level",
	"log-format":     "log.format",
	"sandbox":        "sandbox.kind",
	"sandbox-root":   "sandbox.root",
	"journal":        "journal.path",
	"provider":       "provider.name",
	"model":          "provider.model",
	"addr":           "server.addr",
	"checkpoint-dir": "checkpoint.dir",
}

// CommandContext holds the configuration and shared services of one command
// invocation. It replaces package-level flag variables so commands can be
// built and executed repeatedly in tests.
type CommandContext struct {
	ConfigPath string
	NoColor    bool
	NoJournal  bool

	Viper   *viper.Viper
	Config  *config.Config
	Logger  *log.Logger
	Metrics *metrics.Metrics

	span trace.Span
}

// load reads configuration for cmd, applies its flags and sets up logging.
func (c *CommandContext) load(cmd *cobra.Command) error {
	v, err := config.New(c.ConfigPath)
	if err != nil {
		return err
	}

	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}
	if c.NoJournal {
		v.Set("journal.enabled", false)
	}

	cfg, err := config.Decode(v)
	if err != nil {
		return err
	}

	logCfg := log.FromSettings(cfg.Log.Level, cfg.Log.Format)
	logCfg.Output = log.NewOutput(cmd.ErrOrStderr())
	logger := log.New(logCfg)
	log.SetDefaultLogger(logger)

	c.Viper = v
	c.Config = cfg
	c.Logger = logger.With("command", cmd.Name())
	c.Metrics = metrics.InitDefault()

	tc := telemetry.DefaultConfig()
	tc.ServiceVersion = version.GetInfo().Version
	tc.Enabled = cfg.Telemetry.Enabled
	tc.Endpoint = cfg.Telemetry.Endpoint
	tc.SampleRate = cfg.Telemetry.SampleRate
	tc.Environment = cfg.Telemetry.Environment
	if _, err := telemetry.InitProvider(cmd.Context(), tc); err != nil {
		return errors.Wrap(errors.ErrCodeProviderConfig, "initialize tracing", err)
	}
	ctx, span := telemetry.StartCommandSpan(cmd.Context(), cmd.CommandPath())
	cmd.SetContext(ctx)
	c.span = span
	return nil
}

// finish ends the command span and flushes traces.
func (c *CommandContext) finish(err error) {
	if c.span == nil {
		return
	}
	telemetry.End(c.span, err)
	c.span = nil

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if shutdownErr := telemetry.Shutdown(ctx); shutdownErr != nil && c.Logger != nil {
		c.Logger.LogError("flush traces", shutdownErr)
	}
}

// Styles returns terminal styles honouring --no-color.
func (c *CommandContext) Styles() ux.Styles {
	return ux.NewStyles(!c.NoColor)
}

// Formatter writes to cmd's output in format.
func (c *CommandContext) Formatter(cmd *cobra.Command, format string) (ux.Formatter, error) {
	return ux.NewFormatter(format, &ux.FormatterOptions{
		Writer:  cmd.OutOrStdout(),
		NoColor: c.NoColor,
	})
}

// Registry loads the configured providers. Without a providers file or an API
// key the registry is empty.
func (c *CommandContext) Registry(ctx context.Context) (*provider.Registry, error) {
	if c.Config.Provider.ConfigFile != "" {
		return provider.LoadRegistryFromConfig(ctx, c.Config.Provider.ConfigFile)
	}

	reg := provider.NewRegistry()
	if !c.Config.APIKeyConfigured() {
		return reg, nil
	}
	if err := reg.LoadFromConfig(ctx, provider.ConfigFromSettings(c.Config.ProviderSettings())); err != nil {
		return nil, errors.Wrap(errors.ErrCodeProviderConfig, "load provider", err)
	}
	return reg, nil
}

// Generator returns a chat generator over the preferred available provider,
// or nil when none is configured.
func (c *CommandContext) Generator(reg *provider.Registry) provider.Generator {
	client, err := reg.Select()
	if err != nil {
		c.Logger.Debug("no generation backend", "reason", err.Error())
		return nil
	}
	return provider.NewChatGenerator(client, template.SystemPrompt(),
		provider.WithMaxTokens(c.Config.Provider.MaxTokens),
		provider.WithTemperature(c.Config.Provider.Temperature),
		provider.WithMetrics(c.Metrics),
	)
}

// SandboxFactory builds one sandbox per session according to sandbox.kind.
// Directory-backed sandboxes live under sandbox.root/<session id>.
func (c *CommandContext) SandboxFactory() func(id string) (sandbox.Sandbox, error) {
	sc := c.Config.Sandbox
	switch sc.Kind {
	case config.SandboxNone:
		return nil
	case config.SandboxLocal:
		return func(id string) (sandbox.Sandbox, error) {
			return sandbox.NewLocal(filepath.Join(sc.Root, id))
		}
	case config.SandboxDocker:
		return func(id string) (sandbox.Sandbox, error) {
			return sandbox.NewDocker(filepath.Join(sc.Root, id), sandbox.DockerOptions{
				Image:   sc.Image,
				Network: sc.Network,
			})
		}
	default:
		return func(string) (sandbox.Sandbox, error) {
			return sandbox.NewRecorder(), nil
		}
	}
}

// OpenJournal opens the step journal, or returns nil when it is disabled.
func (c *CommandContext) OpenJournal() (*journal.Journal, error) {
	if !c.Config.Journal.Enabled {
		return nil, nil
	}
	return journal.Open(c.Config.Journal.Path)
}

// Checkpoints returns the snapshot store.
func (c *CommandContext) Checkpoints() *checkpoint.Manager {
	return checkpoint.NewManager(c.Config.Checkpoint.Dir)
}
