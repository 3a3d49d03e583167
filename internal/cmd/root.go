// Package cmd implements the blitz command line.
package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

// NewRootCommand builds the blitz command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&CommandContext{})
}

func newRootCommand(cc *CommandContext) *cobra.Command {
	root := &cobra.Command{
		Use:   "blitz",
		Short: "Turn model-generated build artifacts into projects",
		Long: `blitz turns the build artifacts a language model writes into a project:
it parses <boltArtifact> responses into an ordered step log, folds pending
steps into a file tree, projects that tree into a mount record and hands
the record and any shell commands to a sandbox.

Use it as an HTTP relay for browser clients (serve), to build projects from
saved responses (build, watch) or to inspect what a response contains (parse).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return cc.load(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cc.ConfigPath, "config", "", "config file (default is $HOME/.blitz/config.yaml)")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("log-format", "", "log format: json or text")
	pf.BoolVar(&cc.NoColor, "no-color", false, "disable colored output")
	pf.String("sandbox", "", "sandbox kind: none, recorder, local, docker")
	pf.String("journal", "", "path of the step journal database")
	pf.BoolVar(&cc.NoJournal, "no-journal", false, "do not record steps in the journal")
	pf.String("provider", "", "generation provider: gemini or genai")
	pf.String("model", "", "model used for generation")

	root.AddCommand(
		newServeCmd(cc),
		newParseCmd(cc),
		newBuildCmd(cc),
		newWatchCmd(cc),
		newHistoryCmd(cc),
		newDoctorCmd(cc),
		newConfigCmd(cc),
		newVersionCmd(cc),
	)
	return root
}

// Execute runs the root command
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with ctx and records how the invoked
// command went.
func ExecuteContext(ctx context.Context) error {
	cc := &CommandContext{}
	start := time.Now()
	cmd, err := newRootCommand(cc).ExecuteContextC(ctx)
	// Metrics exist only once the configuration has loaded.
	if cc.Metrics != nil && cmd != nil {
		cc.Metrics.RecordCommandExecution(cmd.CommandPath(), time.Since(start), err)
	}
	cc.finish(err)
	return err
}
