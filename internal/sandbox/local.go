package sandbox

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/felixgeelhaar/blitz/internal/errors"
	"github.com/felixgeelhaar/blitz/internal/mount"
)

// Local materialises mount records under a directory and runs commands there
// with the host shell.
type Local struct {
	root  string
	shell string
	env   []string
}

// LocalOption customises a Local sandbox.
type LocalOption func(*Local)

// WithShell sets the shell used to run commands; the default is "sh".
func WithShell(shell string) LocalOption {
	return func(l *Local) { l.shell = shell }
}

// WithEnv adds KEY=VALUE pairs to the command environment.
func WithEnv(env ...string) LocalOption {
	return func(l *Local) { l.env = append(l.env, env...) }
}

// NewLocal creates a sandbox rooted at root. The directory is created if needed.
func NewLocal(root string, opts ...LocalOption) (*Local, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDirectoryFailed, "resolve sandbox root", err)
	}
	if err := os.MkdirAll(abs, 0750); err != nil {
		return nil, errors.Wrap(errors.ErrCodeDirectoryFailed, "create sandbox root", err)
	}

	l := &Local{root: abs, shell: "sh"}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Root returns the absolute sandbox directory.
func (l *Local) Root() string {
	return l.root
}

// Mount writes every file of rec under the root, creating directories as
// needed. Existing files not named in rec are left alone.
func (l *Local) Mount(ctx context.Context, rec mount.Record) error {
	if err := Validate(rec); err != nil {
		return err
	}
	if err := writeLevel(ctx, l.root, rec); err != nil {
		return errors.Wrap(errors.ErrCodeSandboxMountFailed, "mount project", err)
	}
	return nil
}

func writeLevel(ctx context.Context, dir string, rec mount.Record) error {
	for _, name := range rec.Names() {
		if err := ctx.Err(); err != nil {
			return err
		}
		entry := rec[name]
		path := filepath.Join(dir, name)

		if entry.IsDir() {
			if err := os.MkdirAll(path, 0750); err != nil {
				return err
			}
			if err := writeLevel(ctx, path, entry.Directory); err != nil {
				return err
			}
			continue
		}
		if err := os.WriteFile(path, []byte(entry.File.Contents), 0640); err != nil {
			return err
		}
	}
	return nil
}

// Validate rejects entry names that would leave the directory they are
// mounted in.
func Validate(rec mount.Record) error {
	for name, entry := range rec {
		if name == "" || name == "." || name == ".." ||
			strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
			return errors.NewSandboxPathEscapeError(name)
		}
		if entry.IsDir() {
			if err := Validate(entry.Directory); err != nil {
				return err
			}
		}
	}
	return nil
}

// Run executes command with the configured shell inside the root.
func (l *Local) Run(ctx context.Context, command string) (RunResult, error) {
	return runProcess(ctx, command, l.root, l.env, l.shell, "-c", command)
}

// runProcess runs name with args in dir. The exit status of a process that
// started and finished on its own is reported in the result.
func runProcess(ctx context.Context, command, dir string, env []string, name string, args ...string) (RunResult, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := RunResult{
		Command:  command,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if stderrors.As(err, &exitErr) && ctx.Err() == nil {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		res.ExitCode = -1
		return res, errors.Wrap(errors.ErrCodeSandboxRunFailed, "run "+command, err)
	}
	return res, nil
}

var _ Sandbox = (*Local)(nil)
