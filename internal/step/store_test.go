package step

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fileStep(path, content string) Step {
	return Step{Kind: KindCreateFile, Path: path, Content: content, Title: DefaultTitle(KindCreateFile, path, content)}
}

func TestAppendAssignsMonotonicIDs(t *testing.T) {
	s := NewStore()

	first := s.Append(fileStep("a.txt", "a"), fileStep("b.txt", "b"))
	second := s.Append(Step{Kind: KindRunCommand, Content: "npm install"})

	require.Len(t, first, 2)
	require.Len(t, second, 1)
	assert.Equal(t, int64(1), first[0].ID)
	assert.Equal(t, int64(2), first[1].ID)
	assert.Equal(t, int64(3), second[0].ID)
	assert.Equal(t, 3, s.Len())
	for _, st := range s.All() {
		assert.Equal(t, StatusPending, st.Status)
		assert.False(t, st.CreatedAt.IsZero())
	}
}

func TestAppendForcesPending(t *testing.T) {
	s := NewStore()
	in := fileStep("a.txt", "a")
	in.Status = StatusCompleted
	in.ID = 99

	out := s.Append(in)
	assert.Equal(t, int64(1), out[0].ID)
	assert.Equal(t, StatusPending, out[0].Status)
}

func TestAppendNothing(t *testing.T) {
	s := NewStore()
	assert.Nil(t, s.Append())
	assert.Equal(t, 0, s.Len())
}

func TestMarkCompletedIdempotent(t *testing.T) {
	s := NewStore()
	s.Append(fileStep("a", "1"), fileStep("b", "2"))

	assert.Equal(t, 1, s.MarkCompleted(1))
	assert.Equal(t, 0, s.MarkCompleted(1))
	assert.Equal(t, 1, s.MarkCompleted(1, 2, 42))

	st, ok := s.Get(2)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, st.Status)
	assert.Equal(t, Counts{Pending: 0, Completed: 2}, s.Counts())
}

func TestPendingSince(t *testing.T) {
	s := NewStore()
	s.Append(fileStep("a", "1"), fileStep("b", "2"), fileStep("c", "3"), fileStep("d", "4"))
	s.MarkCompleted(2)

	all := s.PendingSince(0)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{1, 3, 4}, ids(all))

	after := s.PendingSince(3)
	assert.Equal(t, []int64{4}, ids(after))

	assert.Empty(t, s.PendingSince(4))
}

func TestPendingCommands(t *testing.T) {
	s := NewStore()
	s.Append(
		Step{Kind: KindRunCommand, Content: "npm install"},
		fileStep("a.txt", "a"),
		Step{Kind: KindRunCommand, Content: "npm test"},
		Step{Kind: KindRunCommand, Content: "npm run dev"},
	)
	s.MarkCompleted(3)

	got := s.PendingCommands(3)
	require.Len(t, got, 1)
	assert.Equal(t, "npm install", got[0].Content)

	got = s.PendingCommands(4)
	require.Len(t, got, 2)
	assert.Equal(t, []int64{1, 4}, []int64{got[0].ID, got[1].ID})

	assert.Empty(t, s.PendingCommands(0))
}

func TestGetUnknown(t *testing.T) {
	_, ok := NewStore().Get(7)
	assert.False(t, ok)
}

func TestAllReturnsCopy(t *testing.T) {
	s := NewStore()
	s.Append(fileStep("a", "1"))

	all := s.All()
	all[0].Content = "mutated"

	st, _ := s.Get(1)
	assert.Equal(t, "1", st.Content)
}

func TestRestoreContinuesIDs(t *testing.T) {
	s := Restore([]Step{
		{ID: 1, Kind: KindCreateFile, Path: "a", Status: StatusCompleted},
		{ID: 2, Kind: KindRunCommand, Content: "ls", Status: ""},
	})

	assert.Equal(t, Counts{Pending: 1, Completed: 1}, s.Counts())
	out := s.Append(fileStep("b", "2"))
	assert.Equal(t, int64(3), out[0].ID)
}

func TestConcurrentAppend(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.Append(fileStep("x", "y"))
			}
		}()
	}
	wg.Wait()

	all := s.All()
	require.Len(t, all, 500)
	for i, st := range all {
		assert.Equal(t, int64(i+1), st.ID)
	}
}

func TestKindPredicates(t *testing.T) {
	assert.True(t, KindEditFile.WritesFile())
	assert.True(t, KindCreateFile.WritesFile())
	assert.False(t, KindCreateFolder.WritesFile())
	assert.False(t, KindRunCommand.NeedsPath())
	assert.True(t, KindCreateFolder.NeedsPath())
	assert.False(t, Kind("delete").Valid())
}

func TestDefaultTitle(t *testing.T) {
	assert.Equal(t, "Create src/App.tsx", DefaultTitle(KindCreateFile, "src/App.tsx", ""))
	assert.Equal(t, "Run npm install", DefaultTitle(KindRunCommand, "", "npm install\nnpm run dev"))
	assert.Equal(t, "Create folder src", DefaultTitle(KindCreateFolder, "src", ""))
}

func ids(steps []Step) []int64 {
	out := make([]int64, len(steps))
	for i, st := range steps {
		out[i] = st.ID
	}
	return out
}
