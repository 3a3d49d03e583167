package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/blitz/internal/config"
	"github.com/felixgeelhaar/blitz/internal/errors"
	"github.com/felixgeelhaar/blitz/internal/health"
	"github.com/felixgeelhaar/blitz/internal/journal"
	"github.com/felixgeelhaar/blitz/internal/metrics"
	"github.com/felixgeelhaar/blitz/internal/server"
	"github.com/felixgeelhaar/blitz/internal/session"
	"github.com/felixgeelhaar/blitz/internal/version"
)

func newServeCmd(cc *CommandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP relay and session API",
		Long: `Start the HTTP server browser clients talk to.

Endpoints:
  POST /template          pick a starter template for a prompt
  POST /chat              relay a conversation to the generation provider
  /sessions/...           build projects on the server
  /health, /health/live, /health/ready, /health/startup, /healthz
  /metrics                Prometheus metrics

The server drains connections and fails readiness on SIGTERM or SIGINT.

Examples:
  blitz serve
  blitz serve --addr 127.0.0.1:8080 --sandbox local`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd, cc)
		},
	}

	f := cmd.Flags()
	f.String("addr", "", "listen address (default :3000)")
	f.String("sandbox-root", "", "directory session sandboxes are created under")
	f.String("checkpoint-dir", "", "directory holding session snapshots")
	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, cc *CommandContext) error {
	cfg := cc.Config
	if err := ensureStateDirs(cfg); err != nil {
		return err
	}

	reg, err := cc.Registry(ctx)
	if err != nil {
		return err
	}
	defer reg.CloseAll()
	gen := cc.Generator(reg)
	if gen == nil {
		cc.Logger.Warn("no generation provider configured; /chat and prompted sessions are unavailable")
	}

	var jr *journal.Journal
	if jr, err = cc.OpenJournal(); err != nil {
		return err
	}
	opts := session.ManagerOptions{
		Generator:   gen,
		Metrics:     cc.Metrics,
		Logger:      cc.Logger,
		Sandbox:     cc.SandboxFactory(),
		Checkpoints: cc.Checkpoints(),
	}
	if jr != nil {
		defer jr.Close()
		opts.Journal = jr
	}

	info := version.GetInfo()
	probes := health.NewProbeManager(info.Version)
	for _, c := range cc.healthCheckers(reg, jr) {
		probes.AddChecker(c)
	}

	srv := server.NewServer(server.Config{
		Address:         cfg.Server.Addr,
		CORSOrigins:     cfg.Server.CORSOrigins,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
	}, server.Deps{
		Probes:           probes,
		Sessions:         session.NewManager(opts),
		Generator:        gen,
		APIKeyConfigured: cfg.APIKeyConfigured(),
		Metrics:          cc.Metrics,
		MetricsHandler:   metrics.Handler(),
		Logger:           cc.Logger,
	})

	s := cc.Styles()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s\n", s.Title.Render("blitz"), s.Muted.Render(info.Version))
	fmt.Fprintf(out, "%s http://%s\n", s.Key.Render("listening on"), displayAddr(cfg.Server.Addr))
	fmt.Fprintf(out, "%s %s\n", s.Key.Render("sandbox"), cfg.Sandbox.Kind)
	fmt.Fprintln(out, s.Muted.Render("Press Ctrl+C to stop the server"))

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	select {
	case err := <-serverErr:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	cc.Logger.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout)
	// The parent context is already cancelled; drain on a fresh one.
	if err := srv.Shutdown(context.Background()); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-serverErr; err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	cc.Logger.Info("server stopped")
	return nil
}

// ensureStateDirs creates the directories blitz writes into.
func ensureStateDirs(cfg *config.Config) error {
	dirs := []string{cfg.Checkpoint.Dir}
	if cfg.Sandbox.Kind == config.SandboxLocal || cfg.Sandbox.Kind == config.SandboxDocker {
		dirs = append(dirs, cfg.Sandbox.Root)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return errors.Wrap(errors.ErrCodeDirectoryFailed, "create "+dir, err)
		}
	}
	return nil
}

func displayAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}
