// Package watch feeds model responses saved into a directory to a session.
// Every new or changed response file is ingested and followed by a pass.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/zeebo/blake3"

	"github.com/felixgeelhaar/blitz/internal/errors"
	"github.com/felixgeelhaar/blitz/internal/log"
	"github.com/felixgeelhaar/blitz/internal/session"
)

// DefaultDebounce is how long a file must stay quiet before it is read.
const DefaultDebounce = 300 * time.Millisecond

// Extensions are the response file suffixes watched by default.
var Extensions = []string{".xml", ".txt", ".md"}

// Event reports the handling of one file.
type Event struct {
	Path string
	Pass session.PassResult
	// Err is set when the file could not be read or held no actionable output.
	Err error
}

// Options configure a Watcher.
type Options struct {
	Debounce   time.Duration
	Extensions []string
	// Existing ingests matching files already in the directory, by name, on start.
	Existing bool
	// OnEvent is called from the watch loop after every handled file.
	OnEvent func(Event)
	Logger  *log.Logger
}

// Watcher ingests response files written into one directory.
type Watcher struct {
	dir     string
	session *session.Session
	opts    Options
	logger  *log.Logger

	// Owned by the Run goroutine.
	pending map[string]time.Time
	seen    map[string][32]byte
}

// New creates a watcher for dir feeding s.
func New(dir string, s *session.Session, opts Options) *Watcher {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = Extensions
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.DefaultLogger()
	}
	return &Watcher{
		dir:     dir,
		session: s,
		opts:    opts,
		logger:  logger.With("dir", dir),
		pending: make(map[string]time.Time),
		seen:    make(map[string][32]byte),
	}
}

// Run watches until ctx is cancelled. It returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileReadFailed, "start file watcher", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return errors.Wrap(errors.ErrCodeFileReadFailed, "watch "+w.dir, err)
	}
	w.logger.InfoContext(ctx, "watching for responses", "extensions", w.opts.Extensions)

	if w.opts.Existing {
		if err := w.ingestExisting(ctx); err != nil {
			return err
		}
	}

	ticker := time.NewTicker(max(w.opts.Debounce/2, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if (ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write)) && w.matches(ev.Name) {
				w.pending[ev.Name] = time.Now()
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.LogErrorContext(ctx, "file watcher error", err)

		case now := <-ticker.C:
			w.flush(ctx, now)
		}
	}
}

// flush handles every pending file that has been quiet for the debounce
// interval, in name order.
func (w *Watcher) flush(ctx context.Context, now time.Time) {
	var ready []string
	for path, at := range w.pending {
		if now.Sub(at) >= w.opts.Debounce {
			ready = append(ready, path)
		}
	}
	sort.Strings(ready)
	for _, path := range ready {
		delete(w.pending, path)
		w.handle(ctx, path)
	}
}

func (w *Watcher) ingestExisting(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileReadFailed, "list "+w.dir, err)
	}
	// ReadDir sorts by name.
	for _, e := range entries {
		path := filepath.Join(w.dir, e.Name())
		if e.Type().IsRegular() && w.matches(path) {
			w.handle(ctx, path)
		}
	}
	return nil
}

func (w *Watcher) matches(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, want := range w.opts.Extensions {
		if ext == want {
			return true
		}
	}
	return false
}

// handle ingests one file and runs a pass. A file whose content was already
// ingested is skipped.
func (w *Watcher) handle(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			w.emit(Event{Path: path, Err: errors.Wrap(errors.ErrCodeFileReadFailed, "read "+path, err)})
		}
		return
	}

	sum := blake3.Sum256(data)
	if prev, ok := w.seen[path]; ok && prev == sum {
		w.logger.DebugContext(ctx, "response unchanged", "file", path)
		return
	}
	w.seen[path] = sum

	if _, err := w.session.Ingest(ctx, string(data)); err != nil {
		w.logger.WarnContext(ctx, "response not ingested", "file", path, "code", errors.CodeOf(err))
		w.emit(Event{Path: path, Err: err})
		return
	}

	pass, err := w.session.Process(ctx)
	if err != nil {
		w.logger.LogErrorContext(ctx, "pass failed", err)
	}
	w.emit(Event{Path: path, Pass: pass, Err: err})
}

func (w *Watcher) emit(ev Event) {
	if w.opts.OnEvent != nil {
		w.opts.OnEvent(ev)
	}
}
