package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/blitz/internal/step"
)

func openTest(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "nested", "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func appended(t *testing.T) []step.Step {
	t.Helper()
	store := step.NewStore()
	return store.Append(
		step.Step{Kind: step.KindCreateFile, Path: "src/App.tsx", Content: "x", Title: "Create src/App.tsx", ArtifactID: "app"},
		step.Step{Kind: step.KindRunCommand, Content: "npm install", Title: "Run npm install"},
	)
}

func TestRecordAndHistory(t *testing.T) {
	j := openTest(t)
	ctx := context.Background()
	steps := appended(t)

	require.NoError(t, j.RecordAppended(ctx, "s1", steps))

	history, err := j.History(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, history, 2)

	assert.Equal(t, int64(1), history[0].Step.ID)
	assert.Equal(t, step.KindCreateFile, history[0].Step.Kind)
	assert.Equal(t, "src/App.tsx", history[0].Step.Path)
	assert.Equal(t, "app", history[0].Step.ArtifactID)
	assert.Equal(t, step.StatusPending, history[0].Step.Status)
	assert.Nil(t, history[0].CompletedAt)
	assert.Equal(t, "npm install", history[1].Step.Content)

	other, err := j.History(ctx, "s2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestRecordAppendedIgnoresDuplicates(t *testing.T) {
	j := openTest(t)
	ctx := context.Background()
	steps := appended(t)

	require.NoError(t, j.RecordAppended(ctx, "s1", steps))
	changed := steps[0]
	changed.Content = "different"
	require.NoError(t, j.RecordAppended(ctx, "s1", []step.Step{changed}))

	history, err := j.History(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "x", history[0].Step.Content)
}

func TestRecordCompletedKeepsFirstTime(t *testing.T) {
	j := openTest(t)
	ctx := context.Background()
	require.NoError(t, j.RecordAppended(ctx, "s1", appended(t)))

	first := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	j.now = func() time.Time { return first }
	require.NoError(t, j.RecordCompleted(ctx, "s1", []int64{1}))

	j.now = func() time.Time { return first.Add(time.Hour) }
	require.NoError(t, j.RecordCompleted(ctx, "s1", []int64{1, 99}))

	history, err := j.History(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, step.StatusCompleted, history[0].Step.Status)
	require.NotNil(t, history[0].CompletedAt)
	assert.True(t, first.Equal(*history[0].CompletedAt))
	assert.Equal(t, step.StatusPending, history[1].Step.Status)
}

func TestRuns(t *testing.T) {
	j := openTest(t)
	ctx := context.Background()

	require.NoError(t, j.RecordRun(ctx, "s1", Run{StepID: 2, Command: "npm install", Duration: 1500 * time.Millisecond}))
	require.NoError(t, j.RecordRun(ctx, "s1", Run{StepID: 3, Command: "npm test", ExitCode: 1, Error: "exit status 1"}))

	runs, err := j.Runs(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "npm install", runs[0].Command)
	assert.Equal(t, 1500*time.Millisecond, runs[0].Duration)
	assert.False(t, runs[0].RanAt.IsZero())
	assert.Equal(t, 1, runs[1].ExitCode)
	assert.Equal(t, "exit status 1", runs[1].Error)
}

func TestSessions(t *testing.T) {
	j := openTest(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	older := appended(t)
	for i := range older {
		older[i].CreatedAt = base
	}
	newer := appended(t)
	for i := range newer {
		newer[i].CreatedAt = base.Add(time.Minute)
	}

	require.NoError(t, j.RecordAppended(ctx, "old", older))
	require.NoError(t, j.RecordAppended(ctx, "new", newer))
	j.now = func() time.Time { return base.Add(30 * time.Second) }
	require.NoError(t, j.RecordCompleted(ctx, "old", []int64{1}))

	sessions, err := j.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	assert.Equal(t, "new", sessions[0].SessionID)
	assert.Equal(t, 2, sessions[0].Pending)
	assert.Equal(t, "old", sessions[1].SessionID)
	assert.Equal(t, 1, sessions[1].Completed)
	assert.Equal(t, 1, sessions[1].Pending)
	assert.True(t, base.Add(30*time.Second).Equal(sessions[1].LastActivity))
}

func TestEmptyInputsAreNoops(t *testing.T) {
	j := openTest(t)
	ctx := context.Background()
	assert.NoError(t, j.RecordAppended(ctx, "s1", nil))
	assert.NoError(t, j.RecordCompleted(ctx, "s1", nil))

	sessions, err := j.Sessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestPing(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)

	assert.NoError(t, j.Ping(context.Background()))
	require.NoError(t, j.Close())
	assert.Error(t, j.Ping(context.Background()))
}
