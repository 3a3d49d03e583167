package cmd

import (
	"github.com/felixgeelhaar/blitz/internal/config"
	"github.com/felixgeelhaar/blitz/internal/health"
	"github.com/felixgeelhaar/blitz/internal/journal"
	"github.com/felixgeelhaar/blitz/internal/provider"
	"github.com/felixgeelhaar/blitz/internal/sandbox"
)

// healthCheckers returns the dependency checks for the configured services.
// jr may be nil when the journal is disabled.
func (c *CommandContext) healthCheckers(reg *provider.Registry, jr *journal.Journal) []health.Checker {
	checkers := []health.Checker{
		health.NewRegistryChecker(reg),
		health.NewDirChecker("checkpoints", c.Config.Checkpoint.Dir),
	}
	if jr != nil {
		checkers = append(checkers, health.NewPingChecker("journal", jr.Ping))
	}

	switch c.Config.Sandbox.Kind {
	case config.SandboxLocal:
		checkers = append(checkers,
			health.NewDirChecker("sandbox", c.Config.Sandbox.Root),
			health.NewBinaryChecker("sh", true),
		)
	case config.SandboxDocker:
		checkers = append(checkers,
			health.NewDirChecker("sandbox", c.Config.Sandbox.Root),
			health.NewBinaryChecker("docker", true, "--version"),
			health.NewDockerChecker(sandbox.Available),
		)
	}
	return checkers
}
