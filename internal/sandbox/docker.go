package sandbox

import (
	"context"
	"fmt"
	"os/exec"
	"sort"

	"github.com/felixgeelhaar/blitz/internal/mount"
)

// DockerOptions constrain the container commands run in.
type DockerOptions struct {
	Image   string
	Network string
	CPU     string
	Mem     string
	Env     map[string]string
}

// Docker mounts into a host directory like Local but runs every command in a
// throwaway container with that directory as /workspace.
type Docker struct {
	*Local
	opts DockerOptions
}

// NewDocker creates a container-backed sandbox rooted at root.
func NewDocker(root string, opts DockerOptions) (*Docker, error) {
	if opts.Image == "" {
		opts.Image = "node:20-alpine"
	}
	local, err := NewLocal(root)
	if err != nil {
		return nil, err
	}
	return &Docker{Local: local, opts: opts}, nil
}

// Mount delegates to the host directory.
func (d *Docker) Mount(ctx context.Context, rec mount.Record) error {
	return d.Local.Mount(ctx, rec)
}

// Run executes command via "docker run".
func (d *Docker) Run(ctx context.Context, command string) (RunResult, error) {
	return runProcess(ctx, command, d.root, nil, "docker", d.args(command)...)
}

// args builds the docker command line with security constraints.
func (d *Docker) args(command string) []string {
	args := []string{"run", "--rm"}

	if d.opts.Network != "" {
		args = append(args, "--network", d.opts.Network)
	}
	if d.opts.CPU != "" {
		args = append(args, "--cpus", d.opts.CPU)
	}
	if d.opts.Mem != "" {
		args = append(args, "--memory", d.opts.Mem)
	}

	args = append(args,
		"--pids-limit", "256",
		"--cap-drop", "ALL",
		"-v", fmt.Sprintf("%s:/workspace", d.root),
		"-w", "/workspace",
	)

	keys := make([]string, 0, len(d.opts.Env))
	for key := range d.opts.Env {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		args = append(args, "-e", fmt.Sprintf("%s=%s", key, d.opts.Env[key]))
	}

	return append(args, d.opts.Image, "sh", "-c", command)
}

// Available checks that the docker CLI can reach a daemon.
func Available(ctx context.Context) error {
	if err := exec.CommandContext(ctx, "docker", "version").Run(); err != nil {
		return fmt.Errorf("docker is not available: %w", err)
	}
	return nil
}

var _ Sandbox = (*Docker)(nil)
