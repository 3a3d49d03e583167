package sandbox

import (
	"context"
	"sync"

	"github.com/felixgeelhaar/blitz/internal/mount"
)

// Recorder is an in-memory Sandbox. It keeps every mount record and command it
// receives and runs nothing.
type Recorder struct {
	mu       sync.Mutex
	mounts   []mount.Record
	commands []string

	// RunFunc, when set, decides the outcome of each command.
	RunFunc func(command string) (RunResult, error)
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Mount stores a copy of rec.
func (r *Recorder) Mount(ctx context.Context, rec mount.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := Validate(rec); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.mounts = append(r.mounts, copyRecord(rec))
	return nil
}

// Run records command and reports success unless RunFunc says otherwise.
func (r *Recorder) Run(ctx context.Context, command string) (RunResult, error) {
	if err := ctx.Err(); err != nil {
		return RunResult{Command: command}, err
	}

	r.mu.Lock()
	fn := r.RunFunc
	r.mu.Unlock()

	res := RunResult{Command: command}
	if fn != nil {
		var err error
		res, err = fn(command)
		if err != nil {
			return res, err
		}
	}

	r.mu.Lock()
	r.commands = append(r.commands, command)
	r.mu.Unlock()
	return res, nil
}

// Mounts returns the records mounted so far, oldest first.
func (r *Recorder) Mounts() []mount.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]mount.Record, len(r.mounts))
	copy(out, r.mounts)
	return out
}

// Last returns the most recent mount record.
func (r *Recorder) Last() (mount.Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.mounts) == 0 {
		return nil, false
	}
	return r.mounts[len(r.mounts)-1], true
}

// Commands returns the commands run so far, in order.
func (r *Recorder) Commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.commands))
	copy(out, r.commands)
	return out
}

func copyRecord(rec mount.Record) mount.Record {
	out := make(mount.Record, len(rec))
	for name, entry := range rec {
		switch {
		case entry.IsDir():
			out[name] = mount.Entry{Directory: copyRecord(entry.Directory)}
		case entry.File != nil:
			f := *entry.File
			out[name] = mount.Entry{File: &f}
		}
	}
	return out
}

var _ Sandbox = (*Recorder)(nil)
