// Package sandbox defines the execution environment a project is mounted into
// and where build commands run.
package sandbox

import (
	"context"
	"time"

	"github.com/felixgeelhaar/blitz/internal/mount"
)

// Sandbox receives mount records and runs shell commands against them.
type Sandbox interface {
	// Mount makes rec the sandbox's file system content.
	Mount(ctx context.Context, rec mount.Record) error

	// Run executes one command line. A non-zero exit is reported in the
	// result; the error is reserved for commands that could not run at all.
	Run(ctx context.Context, command string) (RunResult, error)
}

// RunResult is the outcome of one command.
type RunResult struct {
	Command  string        `json:"command"`
	ExitCode int           `json:"exit_code"`
	Stdout   string        `json:"stdout,omitempty"`
	Stderr   string        `json:"stderr,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Succeeded reports whether the command exited with status zero.
func (r RunResult) Succeeded() bool {
	return r.ExitCode == 0
}
