// Package journal keeps a durable SQLite audit trail of the steps a session
// appends, the status transitions they go through and the commands dispatched
// for them.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/felixgeelhaar/blitz/internal/errors"
	"github.com/felixgeelhaar/blitz/internal/step"
)

const schema = `
CREATE TABLE IF NOT EXISTS steps (
	session_id   TEXT NOT NULL,
	step_id      INTEGER NOT NULL,
	kind         TEXT NOT NULL,
	title        TEXT,
	path         TEXT,
	content      TEXT,
	artifact_id  TEXT,
	status       TEXT NOT NULL,
	created_at   TEXT NOT NULL,
	completed_at TEXT,
	PRIMARY KEY (session_id, step_id)
);
CREATE INDEX IF NOT EXISTS idx_steps_status ON steps(session_id, status);

CREATE TABLE IF NOT EXISTS runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id  TEXT NOT NULL,
	step_id     INTEGER NOT NULL,
	command     TEXT NOT NULL,
	exit_code   INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	error       TEXT,
	ran_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_session ON runs(session_id);
`

// Journal is a SQLite-backed step journal. It is safe for concurrent use.
type Journal struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// Entry is one journaled step.
type Entry struct {
	Step        step.Step  `json:"step"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Run is one journaled command dispatch.
type Run struct {
	StepID   int64         `json:"step_id"`
	Command  string        `json:"command"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
	RanAt    time.Time     `json:"ran_at"`
}

// Summary describes one session's journal.
type Summary struct {
	SessionID    string    `json:"session_id"`
	Steps        int       `json:"steps"`
	Pending      int       `json:"pending"`
	Completed    int       `json:"completed"`
	LastActivity time.Time `json:"last_activity"`
}

// Open opens or creates the journal database at path.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, errors.Wrap(errors.ErrCodeDirectoryFailed, "create journal directory", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, "open journal", err)
	}
	// One connection keeps writes serialised and makes ":memory:" usable.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(errors.ErrCodeFileWriteFailed, "create journal schema", err)
	}

	return &Journal{db: db, path: path, now: time.Now}, nil
}

// Path returns the database location.
func (j *Journal) Path() string {
	return j.path
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Ping checks that the database is still usable.
func (j *Journal) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

// RecordAppended stores newly appended steps. Steps already journaled under
// the same session and id are left untouched.
func (j *Journal) RecordAppended(ctx context.Context, sessionID string, steps []step.Step) error {
	if len(steps) == 0 {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin journal transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO steps
			(session_id, step_id, kind, title, path, content, artifact_id, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare journal insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range steps {
		createdAt := s.CreatedAt
		if createdAt.IsZero() {
			createdAt = j.now()
		}
		if _, err := stmt.ExecContext(ctx,
			sessionID, s.ID, string(s.Kind), s.Title, s.Path, s.Content, s.ArtifactID,
			string(s.Status), formatTime(createdAt),
		); err != nil {
			return fmt.Errorf("journal step %d: %w", s.ID, err)
		}
	}

	return tx.Commit()
}

// RecordCompleted marks steps completed. Steps that are already completed
// keep their original completion time.
func (j *Journal) RecordCompleted(ctx context.Context, sessionID string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin journal transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	at := formatTime(j.now())
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `
			UPDATE steps SET status = ?, completed_at = ?
			WHERE session_id = ? AND step_id = ? AND status != ?`,
			string(step.StatusCompleted), at, sessionID, id, string(step.StatusCompleted),
		); err != nil {
			return fmt.Errorf("journal completion of step %d: %w", id, err)
		}
	}

	return tx.Commit()
}

// RecordRun stores the outcome of one dispatched command.
func (j *Journal) RecordRun(ctx context.Context, sessionID string, run Run) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	ranAt := run.RanAt
	if ranAt.IsZero() {
		ranAt = j.now()
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO runs (session_id, step_id, command, exit_code, duration_ms, error, ran_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionID, run.StepID, run.Command, run.ExitCode, run.Duration.Milliseconds(),
		run.Error, formatTime(ranAt),
	)
	if err != nil {
		return fmt.Errorf("journal run of step %d: %w", run.StepID, err)
	}
	return nil
}

// History returns the journaled steps of a session in id order.
func (j *Journal) History(ctx context.Context, sessionID string) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT step_id, kind, title, path, content, artifact_id, status, created_at, completed_at
		FROM steps WHERE session_id = ? ORDER BY step_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                   Entry
			kind, status        string
			title, path         sql.NullString
			content, artifactID sql.NullString
			createdAt           string
			completedAt         sql.NullString
		)
		if err := rows.Scan(&e.Step.ID, &kind, &title, &path, &content, &artifactID,
			&status, &createdAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}

		e.Step.Kind = step.Kind(kind)
		e.Step.Status = step.Status(status)
		e.Step.Title = title.String
		e.Step.Path = path.String
		e.Step.Content = content.String
		e.Step.ArtifactID = artifactID.String
		e.Step.CreatedAt = parseTime(createdAt)
		if completedAt.Valid {
			t := parseTime(completedAt.String)
			e.CompletedAt = &t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Runs returns the commands dispatched for a session, oldest first.
func (j *Journal) Runs(ctx context.Context, sessionID string) ([]Run, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT step_id, command, exit_code, duration_ms, error, ran_at
		FROM runs WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r          Run
			durationMS int64
			errText    sql.NullString
			ranAt      string
		)
		if err := rows.Scan(&r.StepID, &r.Command, &r.ExitCode, &durationMS, &errText, &ranAt); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		r.Error = errText.String
		r.RanAt = parseTime(ranAt)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Sessions summarises every journaled session, most recently active first.
func (j *Journal) Sessions(ctx context.Context) ([]Summary, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT session_id,
			COUNT(*),
			SUM(CASE WHEN status = ? THEN 1 ELSE 0 END),
			MAX(COALESCE(completed_at, created_at))
		FROM steps GROUP BY session_id`, string(step.StatusCompleted))
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			s    Summary
			last string
		)
		if err := rows.Scan(&s.SessionID, &s.Steps, &s.Completed, &last); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		s.Pending = s.Steps - s.Completed
		s.LastActivity = parseTime(last)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(out, func(a, b int) bool {
		if !out[a].LastActivity.Equal(out[b].LastActivity) {
			return out[a].LastActivity.After(out[b].LastActivity)
		}
		return out[a].SessionID < out[b].SessionID
	})
	return out, nil
}

// timeLayout is fixed width so stored times sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
