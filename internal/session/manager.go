package session

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/blitz/internal/checkpoint"
	"github.com/felixgeelhaar/blitz/internal/errors"
	"github.com/felixgeelhaar/blitz/internal/log"
	"github.com/felixgeelhaar/blitz/internal/metrics"
	"github.com/felixgeelhaar/blitz/internal/provider"
	"github.com/felixgeelhaar/blitz/internal/sandbox"
)

// ManagerOptions are shared by every session a Manager creates.
type ManagerOptions struct {
	Generator provider.Generator
	Journal   Journal
	Metrics   *metrics.Metrics
	Logger    *log.Logger

	// Sandbox builds the sandbox for a new session. Nil means no sandbox.
	Sandbox func(sessionID string) (sandbox.Sandbox, error)

	// Checkpoints, when set, enables Save and Resume.
	Checkpoints *checkpoint.Manager
}

// Manager keeps live sessions by id. It is safe for concurrent use; each
// session serialises its own passes.
type Manager struct {
	opts ManagerOptions

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates an empty manager.
func NewManager(opts ManagerOptions) *Manager {
	if opts.Logger == nil {
		opts.Logger = log.DefaultLogger()
	}
	return &Manager{opts: opts, sessions: make(map[string]*Session)}
}

func (m *Manager) options(id string) (Options, error) {
	o := Options{
		ID:        id,
		Generator: m.opts.Generator,
		Journal:   m.opts.Journal,
		Metrics:   m.opts.Metrics,
		Logger:    m.opts.Logger,
	}
	if m.opts.Sandbox != nil {
		sb, err := m.opts.Sandbox(id)
		if err != nil {
			return Options{}, err
		}
		o.Sandbox = sb
	}
	return o, nil
}

// Create starts and registers a new empty session.
func (m *Manager) Create() (*Session, error) {
	opts, err := m.options(uuid.NewString())
	if err != nil {
		return nil, err
	}
	s := New(opts)
	m.add(s)
	return s, nil
}

func (m *Manager) add(s *Session) {
	m.mu.Lock()
	m.sessions[s.ID()] = s
	n := len(m.sessions)
	m.mu.Unlock()

	if m.opts.Metrics != nil {
		m.opts.Metrics.ActiveSessions.Set(float64(n))
	}
}

// addIfAbsent registers s unless a session with its id is already live, in
// which case the live one is returned and s is dropped.
func (m *Manager) addIfAbsent(s *Session) (*Session, bool) {
	m.mu.Lock()
	if live, ok := m.sessions[s.ID()]; ok {
		m.mu.Unlock()
		return live, false
	}
	m.sessions[s.ID()] = s
	n := len(m.sessions)
	m.mu.Unlock()

	if m.opts.Metrics != nil {
		m.opts.Metrics.ActiveSessions.Set(float64(n))
	}
	return s, true
}

// Get returns the session with id or SESSION-001.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, errors.NewSessionNotFoundError(id)
	}
	return s, nil
}

// List summarises all live sessions, oldest first.
func (m *Manager) List() []Summary {
	m.mu.RLock()
	out := make([]Summary, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Summary())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Delete forgets a live session. Its checkpoint, if any, is kept.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return errors.NewSessionNotFoundError(id)
	}
	if m.opts.Metrics != nil {
		m.opts.Metrics.ActiveSessions.Set(float64(n))
	}
	return nil
}

// Save checkpoints a live session.
func (m *Manager) Save(id string) error {
	if m.opts.Checkpoints == nil {
		return errors.New(errors.ErrCodeSessionNoBackend, "checkpoints are not configured")
	}
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	return m.opts.Checkpoints.Save(s.Snapshot())
}

// Resume returns the live session with id, restoring it from its checkpoint
// when it is not in memory.
func (m *Manager) Resume(ctx context.Context, id string) (*Session, error) {
	if s, err := m.Get(id); err == nil {
		return s, nil
	}
	if m.opts.Checkpoints == nil || !m.opts.Checkpoints.Exists(id) {
		return nil, errors.NewSessionNotFoundError(id)
	}

	state, err := m.opts.Checkpoints.Load(id)
	if err != nil {
		return nil, err
	}
	opts, err := m.options(id)
	if err != nil {
		return nil, err
	}

	s, added := m.addIfAbsent(Restore(state, opts))
	if !added {
		return s, nil
	}
	m.opts.Logger.InfoContext(ctx, "session resumed", "session", id, "steps", len(state.Steps))
	return s, nil
}
