package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/blitz/internal/errors"
	"github.com/felixgeelhaar/blitz/internal/mount"
)

func sampleRecord() mount.Record {
	return mount.Record{
		"package.json": {File: &mount.File{Contents: `{"name":"app"}`}},
		"src": {Directory: mount.Record{
			"App.tsx": {File: &mount.File{Contents: "export default 1\n"}},
			"assets":  {Directory: mount.Record{}},
		}},
	}
}

func TestLocalMount(t *testing.T) {
	root := t.TempDir()
	sb, err := NewLocal(root)
	require.NoError(t, err)

	require.NoError(t, sb.Mount(context.Background(), sampleRecord()))

	data, err := os.ReadFile(filepath.Join(root, "src", "App.tsx"))
	require.NoError(t, err)
	assert.Equal(t, "export default 1\n", string(data))

	info, err := os.Stat(filepath.Join(root, "src", "assets"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	data, err = os.ReadFile(filepath.Join(root, "package.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"name":"app"}`, string(data))
}

func TestLocalMountKeepsUnlistedFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("keep"), 0600))

	sb, err := NewLocal(root)
	require.NoError(t, err)
	require.NoError(t, sb.Mount(context.Background(), sampleRecord()))

	_, err = os.Stat(filepath.Join(root, "notes.txt"))
	assert.NoError(t, err)
}

func TestLocalMountRejectsEscapingNames(t *testing.T) {
	tests := []struct {
		name string
		rec  mount.Record
	}{
		{"parent", mount.Record{"..": {File: &mount.File{Contents: "x"}}}},
		{"dot", mount.Record{".": {Directory: mount.Record{}}}},
		{"slash", mount.Record{"a/b": {File: &mount.File{Contents: "x"}}}},
		{"backslash", mount.Record{`a\b`: {File: &mount.File{Contents: "x"}}}},
		{"empty", mount.Record{"": {File: &mount.File{Contents: "x"}}}},
		{"nested", mount.Record{"src": {Directory: mount.Record{"..": {Directory: mount.Record{}}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			sb, err := NewLocal(root)
			require.NoError(t, err)

			err = sb.Mount(context.Background(), tt.rec)
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.ErrCodeSandboxPathEscape))

			entries, err := os.ReadDir(root)
			require.NoError(t, err)
			assert.Empty(t, entries, "nothing may be written when validation fails")
		})
	}
}

func TestLocalRun(t *testing.T) {
	root := t.TempDir()
	sb, err := NewLocal(root, WithEnv("BLITZ_GREETING=hi"))
	require.NoError(t, err)

	res, err := sb.Run(context.Background(), `echo "$BLITZ_GREETING" && pwd`)
	require.NoError(t, err)
	assert.True(t, res.Succeeded())
	assert.Contains(t, res.Stdout, "hi\n")

	want, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	assert.Contains(t, res.Stdout, filepath.Base(want))
}

func TestLocalRunNonZeroExit(t *testing.T) {
	sb, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	res, err := sb.Run(context.Background(), "echo oops >&2; exit 3")
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.False(t, res.Succeeded())
	assert.Equal(t, "oops\n", res.Stderr)
	assert.Equal(t, "echo oops >&2; exit 3", res.Command)
}

func TestLocalRunMissingShell(t *testing.T) {
	sb, err := NewLocal(t.TempDir(), WithShell("/nonexistent/shell"))
	require.NoError(t, err)

	_, err = sb.Run(context.Background(), "true")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeSandboxRunFailed))
}

func TestLocalRunCancelled(t *testing.T) {
	sb, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = sb.Run(ctx, "sleep 5")
	assert.Error(t, err)
}

func TestDockerArgs(t *testing.T) {
	sb, err := NewDocker(t.TempDir(), DockerOptions{
		Network: "none",
		Mem:     "512m",
		Env:     map[string]string{"B": "2", "A": "1"},
	})
	require.NoError(t, err)

	args := sb.args("npm install")
	assert.Equal(t, []string{"run", "--rm"}, args[:2])
	assert.Contains(t, args, "--network")
	assert.Contains(t, args, "--cap-drop")
	assert.Equal(t, []string{"node:20-alpine", "sh", "-c", "npm install"}, args[len(args)-4:])

	var envs []string
	for i, a := range args {
		if a == "-e" {
			envs = append(envs, args[i+1])
		}
	}
	assert.Equal(t, []string{"A=1", "B=2"}, envs)
}
