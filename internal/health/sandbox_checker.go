package health

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// DirChecker checks that a directory blitz writes into exists and is writable.
type DirChecker struct {
	name string
	dir  string
}

// NewDirChecker creates a checker for dir reported under name.
func NewDirChecker(name, dir string) *DirChecker {
	return &DirChecker{name: name, dir: dir}
}

// Name returns the name of this health check.
func (c *DirChecker) Name() string {
	return c.name
}

// Check creates and removes a probe file in the directory.
func (c *DirChecker) Check(ctx context.Context) *Result {
	info, err := os.Stat(c.dir)
	if err != nil {
		return Unhealthy("directory not accessible").
			WithDetail("path", c.dir).
			WithDetail("error", err.Error())
	}
	if !info.IsDir() {
		return Unhealthy("path is not a directory").WithDetail("path", c.dir)
	}

	f, err := os.CreateTemp(c.dir, ".blitz-health-*")
	if err != nil {
		return Unhealthy("directory not writable").
			WithDetail("path", c.dir).
			WithDetail("error", err.Error())
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)

	return Healthy("directory writable").WithDetail("path", filepath.Clean(c.dir))
}

// BinaryChecker checks that an executable the sandbox relies on is on PATH.
// A missing optional binary is degraded; a missing required one is unhealthy.
type BinaryChecker struct {
	binary   string
	args     []string
	required bool
}

// NewBinaryChecker creates a checker that resolves binary and, when args are
// given, runs it with them to read a version line.
func NewBinaryChecker(binary string, required bool, args ...string) *BinaryChecker {
	return &BinaryChecker{binary: binary, args: args, required: required}
}

// Name returns the name of this health check.
func (c *BinaryChecker) Name() string {
	return "binary-" + c.binary
}

// Check looks the binary up and optionally runs it.
func (c *BinaryChecker) Check(ctx context.Context) *Result {
	path, err := exec.LookPath(c.binary)
	if err != nil {
		msg := c.binary + " not found on PATH"
		if c.required {
			return Unhealthy(msg).WithDetail("error", err.Error())
		}
		return Degraded(msg).WithDetail("error", err.Error())
	}

	result := Healthy(c.binary + " available").WithDetail("path", path)
	if len(c.args) == 0 {
		return result
	}

	out, err := exec.CommandContext(ctx, path, c.args...).Output() // #nosec G204 -- binary and args are fixed by the caller
	if err != nil {
		return Degraded(c.binary+" did not run").
			WithDetail("path", path).
			WithDetail("error", err.Error())
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return result.WithDetail("version", line)
}

// DockerChecker checks that the docker daemon answers, for the docker sandbox.
type DockerChecker struct {
	available func(ctx context.Context) error
}

// NewDockerChecker creates a checker around an availability probe such as
// sandbox.Available.
func NewDockerChecker(available func(ctx context.Context) error) *DockerChecker {
	return &DockerChecker{available: available}
}

// Name returns the name of this health check.
func (c *DockerChecker) Name() string {
	return "docker"
}

// Check calls the availability probe.
func (c *DockerChecker) Check(ctx context.Context) *Result {
	if err := c.available(ctx); err != nil {
		return Unhealthy("docker daemon not reachable").
			WithDetail("error", err.Error()).
			WithDetail("suggestion", "Start docker or set sandbox.kind to local")
	}
	return Healthy("docker daemon reachable")
}
