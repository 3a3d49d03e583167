package session

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/blitz/internal/checkpoint"
	"github.com/felixgeelhaar/blitz/internal/errors"
	"github.com/felixgeelhaar/blitz/internal/log"
	"github.com/felixgeelhaar/blitz/internal/metrics"
	"github.com/felixgeelhaar/blitz/internal/sandbox"
)

func TestManagerLifecycle(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	var built []string
	mgr := NewManager(ManagerOptions{
		Logger:  log.Discard(),
		Metrics: m,
		Sandbox: func(id string) (sandbox.Sandbox, error) {
			built = append(built, id)
			return sandbox.NewRecorder(), nil
		},
	})

	a, err := mgr.Create()
	require.NoError(t, err)
	b, err := mgr.Create()
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, []string{a.ID(), b.ID()}, built)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ActiveSessions))

	got, err := mgr.Get(a.ID())
	require.NoError(t, err)
	assert.Same(t, a, got)

	list := mgr.List()
	require.Len(t, list, 2)

	require.NoError(t, mgr.Delete(a.ID()))
	_, err = mgr.Get(a.ID())
	assert.True(t, errors.HasCode(err, errors.ErrCodeSessionNotFound))
	assert.True(t, errors.HasCode(mgr.Delete(a.ID()), errors.ErrCodeSessionNotFound))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveSessions))
}

func TestManagerSandboxError(t *testing.T) {
	mgr := NewManager(ManagerOptions{
		Logger: log.Discard(),
		Sandbox: func(string) (sandbox.Sandbox, error) {
			return nil, fmt.Errorf("no space left")
		},
	})

	_, err := mgr.Create()
	assert.Error(t, err)
	assert.Empty(t, mgr.List())
}

func TestManagerSaveAndResume(t *testing.T) {
	cps := checkpoint.NewManager(t.TempDir())
	ctx := context.Background()

	first := NewManager(ManagerOptions{Logger: log.Discard(), Checkpoints: cps})
	s, err := first.Create()
	require.NoError(t, err)
	_, err = s.Ingest(ctx, fileAndShell)
	require.NoError(t, err)
	_, err = s.Process(ctx)
	require.NoError(t, err)
	require.NoError(t, first.Save(s.ID()))

	second := NewManager(ManagerOptions{Logger: log.Discard(), Checkpoints: cps})
	resumed, err := second.Resume(ctx, s.ID())
	require.NoError(t, err)
	assert.Equal(t, s.Counts(), resumed.Counts())

	item, ok := resumed.Tree().Find("src/App.tsx")
	require.True(t, ok)
	assert.Equal(t, "hello", item.Content)

	again, err := second.Resume(ctx, s.ID())
	require.NoError(t, err)
	assert.Same(t, resumed, again)

	_, err = second.Resume(ctx, "missing")
	assert.True(t, errors.HasCode(err, errors.ErrCodeSessionNotFound))
}

func TestManagerConcurrentResumeSharesOneSession(t *testing.T) {
	cps := checkpoint.NewManager(t.TempDir())
	ctx := context.Background()

	first := NewManager(ManagerOptions{Logger: log.Discard(), Checkpoints: cps})
	s, err := first.Create()
	require.NoError(t, err)
	_, err = s.Ingest(ctx, fileAndShell)
	require.NoError(t, err)
	require.NoError(t, first.Save(s.ID()))

	m := metrics.NewMetrics(prometheus.NewRegistry())
	second := NewManager(ManagerOptions{Logger: log.Discard(), Checkpoints: cps, Metrics: m})

	const callers = 8
	got := make([]*Session, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i], errs[i] = second.Resume(ctx, s.ID())
		}(i)
	}
	wg.Wait()

	for i := range got {
		require.NoError(t, errs[i])
		assert.Same(t, got[0], got[i])
	}
	assert.Len(t, second.List(), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveSessions))
}

func TestManagerSaveWithoutCheckpoints(t *testing.T) {
	mgr := NewManager(ManagerOptions{Logger: log.Discard()})
	s, err := mgr.Create()
	require.NoError(t, err)

	err = mgr.Save(s.ID())
	assert.True(t, errors.HasCode(err, errors.ErrCodeSessionNoBackend))
}
