package step

import (
	"sync"
	"time"
)

// Counts summarises a store by status.
type Counts struct {
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
}

// Store is the ordered, append-only log of steps for one session.
// Entries are never removed or reordered; only their status changes.
type Store struct {
	mu     sync.RWMutex
	steps  []Step
	index  map[int64]int
	nextID int64
	now    func() time.Time
}

// NewStore creates an empty store whose first id is 1.
func NewStore() *Store {
	return &Store{
		index:  make(map[int64]int),
		nextID: 1,
		now:    time.Now,
	}
}

// Append assigns ids to steps, stores them as pending and returns the stored copies.
func (s *Store) Append(steps ...Step) []Step {
	if len(steps) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Step, 0, len(steps))
	for _, st := range steps {
		st.ID = s.nextID
		s.nextID++
		st.Status = StatusPending
		if st.CreatedAt.IsZero() {
			st.CreatedAt = s.now()
		}
		s.index[st.ID] = len(s.steps)
		s.steps = append(s.steps, st)
		out = append(out, st)
	}
	return out
}

// MarkCompleted transitions the given steps to completed and returns how many
// actually changed. Unknown and already completed ids are ignored.
func (s *Store) MarkCompleted(ids ...int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	for _, id := range ids {
		i, ok := s.index[id]
		if !ok || s.steps[i].Status == StatusCompleted {
			continue
		}
		s.steps[i].Status = StatusCompleted
		changed++
	}
	return changed
}

// PendingSince returns pending steps with id greater than cursor, in append order.
func (s *Store) PendingSince(cursor int64) []Step {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Step
	for _, st := range s.steps {
		if st.ID > cursor && st.Status == StatusPending {
			out = append(out, st)
		}
	}
	return out
}

// PendingCommands returns pending run-command steps with id at most cursor,
// in append order. These were read by an earlier pass but never dispatched.
func (s *Store) PendingCommands(cursor int64) []Step {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Step
	for _, st := range s.steps {
		if st.ID <= cursor && st.Kind == KindRunCommand && st.Status == StatusPending {
			out = append(out, st)
		}
	}
	return out
}

// All returns a copy of every step in append order.
func (s *Store) All() []Step {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Step, len(s.steps))
	copy(out, s.steps)
	return out
}

// Get returns the step with the given id.
func (s *Store) Get(id int64) (Step, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return Step{}, false
	}
	return s.steps[i], true
}

// Len returns the number of stored steps.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.steps)
}

// Counts returns the number of pending and completed steps.
func (s *Store) Counts() Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c Counts
	for _, st := range s.steps {
		if st.Status == StatusCompleted {
			c.Completed++
		} else {
			c.Pending++
		}
	}
	return c
}

// Restore rebuilds a store from previously stored steps, keeping their ids and
// statuses. The next assigned id follows the highest restored id.
func Restore(steps []Step) *Store {
	s := NewStore()
	for _, st := range steps {
		if st.Status != StatusCompleted {
			st.Status = StatusPending
		}
		s.index[st.ID] = len(s.steps)
		s.steps = append(s.steps, st)
		if st.ID >= s.nextID {
			s.nextID = st.ID + 1
		}
	}
	return s
}
