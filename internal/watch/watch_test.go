package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/felixgeelhaar/blitz/internal/errors"
	"github.com/felixgeelhaar/blitz/internal/log"
	"github.com/felixgeelhaar/blitz/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func fileArtifact(path, content string) string {
	return fmt.Sprintf(`<boltArtifact id="w" title="w"><boltAction type="file" filePath="%s"><boltActionText>%s</boltActionText></boltAction></boltArtifact>`,
		path, content)
}

// start runs a watcher over dir and returns its events and a stop function
// that waits for Run to return.
func start(t *testing.T, dir string, s *session.Session) (<-chan Event, func()) {
	t.Helper()
	events := make(chan Event, 16)
	w := New(dir, s, Options{
		Debounce: 20 * time.Millisecond,
		Existing: true,
		OnEvent:  func(ev Event) { events <- ev },
		Logger:   log.Discard(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	return events, func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("watcher did not stop")
		}
	}
}

func next(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("no watch event")
		return Event{}
	}
}

// write replaces name atomically so the watcher never sees a partial file.
func write(t *testing.T, dir, name, content string) {
	t.Helper()
	tmp := filepath.Join(dir, name+".partial")
	require.NoError(t, os.WriteFile(tmp, []byte(content), 0600))
	require.NoError(t, os.Rename(tmp, filepath.Join(dir, name)))
}

func TestWatchIngestsNewResponses(t *testing.T) {
	dir := t.TempDir()
	s := session.New(session.Options{Logger: log.Discard()})
	events, stop := start(t, dir, s)
	defer stop()

	write(t, dir, "first.xml", fileArtifact("src/index.js", "console.log(1)"))

	ev := next(t, events)
	require.NoError(t, ev.Err)
	assert.Equal(t, filepath.Join(dir, "first.xml"), ev.Path)
	assert.Len(t, ev.Pass.Applied, 1)

	item, ok := s.Tree().Find("src/index.js")
	require.True(t, ok)
	assert.Equal(t, "console.log(1)", item.Content)
}

func TestWatchReportsNonActionableResponses(t *testing.T) {
	dir := t.TempDir()
	s := session.New(session.Options{Logger: log.Discard()})
	events, stop := start(t, dir, s)
	defer stop()

	write(t, dir, "notes.md", "I could not build that, sorry.")

	ev := next(t, events)
	require.Error(t, ev.Err)
	assert.True(t, errors.HasCode(ev.Err, errors.ErrCodeNoActionableOutput))
	assert.Zero(t, s.Counts().Pending+s.Counts().Completed)
}

func TestWatchSkipsUnchangedContent(t *testing.T) {
	dir := t.TempDir()
	content := fileArtifact("a.txt", "a")
	write(t, dir, "a.xml", content)

	s := session.New(session.Options{Logger: log.Discard()})
	events, stop := start(t, dir, s)
	defer stop()

	ev := next(t, events)
	require.NoError(t, ev.Err)
	assert.Equal(t, filepath.Join(dir, "a.xml"), ev.Path)

	write(t, dir, "a.xml", content)
	write(t, dir, "b.xml", fileArtifact("b.txt", "b"))

	ev = next(t, events)
	assert.Equal(t, filepath.Join(dir, "b.xml"), ev.Path)
	assert.Equal(t, 2, s.Counts().Completed)
}

func TestWatchExistingFilesInNameOrder(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "2.xml", fileArtifact("app.js", "second"))
	write(t, dir, "1.xml", fileArtifact("app.js", "first"))
	write(t, dir, "ignored.json", fileArtifact("other.js", "x"))

	s := session.New(session.Options{Logger: log.Discard()})
	events, stop := start(t, dir, s)
	defer stop()

	assert.Equal(t, filepath.Join(dir, "1.xml"), next(t, events).Path)
	assert.Equal(t, filepath.Join(dir, "2.xml"), next(t, events).Path)

	item, ok := s.Tree().Find("app.js")
	require.True(t, ok)
	assert.Equal(t, "second", item.Content)
	_, ok = s.Tree().Find("other.js")
	assert.False(t, ok)
}

func TestRunMissingDirectory(t *testing.T) {
	s := session.New(session.Options{Logger: log.Discard()})
	w := New(filepath.Join(t.TempDir(), "missing"), s, Options{Logger: log.Discard()})

	err := w.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeFileReadFailed))
}

func TestMatches(t *testing.T) {
	w := New(".", nil, Options{Logger: log.Discard()})
	assert.True(t, w.matches("a/response.XML"))
	assert.True(t, w.matches("notes.md"))
	assert.False(t, w.matches("data.json"))
	assert.False(t, w.matches("Makefile"))
}
