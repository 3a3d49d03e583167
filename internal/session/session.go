// Package session drives one build conversation: it ingests model output into
// a step log, folds pending steps into the project tree in discrete passes and
// hands the projected mount record and commands to a sandbox.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/blitz/internal/artifact"
	"github.com/felixgeelhaar/blitz/internal/checkpoint"
	"github.com/felixgeelhaar/blitz/internal/errors"
	"github.com/felixgeelhaar/blitz/internal/filetree"
	"github.com/felixgeelhaar/blitz/internal/journal"
	"github.com/felixgeelhaar/blitz/internal/log"
	"github.com/felixgeelhaar/blitz/internal/metrics"
	"github.com/felixgeelhaar/blitz/internal/mount"
	"github.com/felixgeelhaar/blitz/internal/provider"
	"github.com/felixgeelhaar/blitz/internal/sandbox"
	"github.com/felixgeelhaar/blitz/internal/step"
	"github.com/felixgeelhaar/blitz/internal/template"
)

// Journal receives the durable record of a session's steps.
type Journal interface {
	RecordAppended(ctx context.Context, sessionID string, steps []step.Step) error
	RecordCompleted(ctx context.Context, sessionID string, ids []int64) error
	RecordRun(ctx context.Context, sessionID string, run journal.Run) error
}

// Options configure a session. Every collaborator is optional: without a
// Generator Init and Chat fail, without a Sandbox nothing is mounted and
// commands stay pending, without a Journal nothing is persisted.
type Options struct {
	ID        string
	Generator provider.Generator
	Sandbox   sandbox.Sandbox
	Journal   Journal
	Metrics   *metrics.Metrics
	Logger    *log.Logger
}

// Session owns one step log, its current tree and mount record, and the
// conversation that produced them.
type Session struct {
	id        string
	createdAt time.Time

	generator provider.Generator
	sandbox   sandbox.Sandbox
	journal   Journal
	metrics   *metrics.Metrics
	logger    *log.Logger

	store *step.Store

	// pass serialises passes; mu guards the fields below it.
	pass       sync.Mutex
	mu         sync.RWMutex
	cursor     int64
	tree       filetree.Tree
	digest     string
	mounted    string
	transcript []provider.Message
	template   template.Name
}

// IngestResult reports what one model response contributed.
type IngestResult struct {
	Added     []step.Step         `json:"added"`
	Warnings  []artifact.Warning  `json:"warnings,omitempty"`
	Artifacts []artifact.Artifact `json:"artifacts,omitempty"`
}

// Turn is the outcome of one generation round trip.
type Turn struct {
	Template string       `json:"template,omitempty"`
	Response string       `json:"response"`
	Ingest   IngestResult `json:"ingest"`
	Pass     PassResult   `json:"pass"`
}

// Summary is a compact view of a session.
type Summary struct {
	ID        string         `json:"id"`
	Template  string         `json:"template,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Steps     step.Counts    `json:"steps"`
	Tree      filetree.Stats `json:"tree"`
	Digest    string         `json:"digest"`
}

// New creates an empty session.
func New(opts Options) *Session {
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.DefaultLogger()
	}

	s := &Session{
		id:        id,
		createdAt: time.Now(),
		generator: opts.Generator,
		sandbox:   opts.Sandbox,
		journal:   opts.Journal,
		metrics:   opts.Metrics,
		logger:    logger.With("session", id),
		store:     step.NewStore(),
	}
	s.digest, _ = mount.Digest(mount.Record{})
	return s
}

// Restore rebuilds a session from a snapshot. The first pass after a restore
// mounts the restored tree.
func Restore(state *checkpoint.State, opts Options) *Session {
	opts.ID = state.SessionID
	s := New(opts)
	s.createdAt = state.StartedAt
	s.store = step.Restore(state.Steps)
	s.cursor = state.Cursor
	s.tree = state.Tree.Clone()
	s.digest, _ = mount.Digest(mount.Project(s.tree))
	s.transcript = append([]provider.Message(nil), state.Transcript...)
	s.template = template.Name(state.Template)
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Ingest parses text and appends the steps it describes. Text that yields no
// steps is rejected with ARTIFACT-001 and leaves the log untouched.
func (s *Session) Ingest(ctx context.Context, text string) (IngestResult, error) {
	parsed := artifact.Parse(text)
	res := IngestResult{Warnings: parsed.Warnings, Artifacts: parsed.Artifacts}

	kinds := make([]string, len(parsed.Steps))
	for i, st := range parsed.Steps {
		kinds[i] = string(st.Kind)
	}
	s.metrics.RecordParse(kinds, len(parsed.Warnings))

	for _, w := range parsed.Warnings {
		s.logger.WarnContext(ctx, "artifact entry skipped", "offset", w.Offset, "reason", w.Message)
	}

	if strings.TrimSpace(text) == "" || parsed.Empty() {
		err := errors.NewNoActionableOutputError(len(text))
		s.metrics.RecordError("session", err)
		return res, err
	}

	res.Added = s.store.Append(parsed.Steps...)
	s.logger.DebugContext(ctx, "steps appended", "count", len(res.Added),
		"first_id", res.Added[0].ID, "last_id", res.Added[len(res.Added)-1].ID)

	if s.journal != nil {
		if err := s.journal.RecordAppended(ctx, s.id, res.Added); err != nil {
			s.logger.LogErrorContext(ctx, "journal append failed", err)
		}
	}
	return res, nil
}

// Init starts a build from prompt: it picks a template, ingests the template
// scaffold, asks the generator for the project and runs a pass.
func (s *Session) Init(ctx context.Context, prompt string) (Turn, error) {
	tpl, err := template.Detect(prompt)
	if err != nil {
		return Turn{}, err
	}
	if s.generator == nil {
		return Turn{}, errNoGenerator()
	}
	s.logger.InfoContext(ctx, "template selected", "template", tpl.Name, "reason", tpl.Reason)

	s.mu.Lock()
	s.template = tpl.Name
	s.mu.Unlock()

	if _, err := s.Ingest(ctx, tpl.BaseArtifact); err != nil {
		return Turn{}, err
	}

	msgs := make([]provider.Message, 0, len(tpl.Prompts)+1)
	for _, p := range tpl.Prompts {
		msgs = append(msgs, provider.Message{Role: provider.RoleUser, Content: p})
	}
	msgs = append(msgs, provider.Message{Role: provider.RoleUser, Content: prompt})

	turn, err := s.exchange(ctx, msgs)
	turn.Template = string(tpl.Name)
	return turn, err
}

// Chat sends a follow-up message and applies the answer.
func (s *Session) Chat(ctx context.Context, message string) (Turn, error) {
	if strings.TrimSpace(message) == "" {
		return Turn{}, errors.New(errors.ErrCodeTemplatePromptRequired, "message is required")
	}
	if s.generator == nil {
		return Turn{}, errNoGenerator()
	}
	return s.exchange(ctx, []provider.Message{{Role: provider.RoleUser, Content: message}})
}

// exchange appends msgs to the transcript, generates, ingests and runs a pass.
// The transcript is left unchanged when generation fails.
func (s *Session) exchange(ctx context.Context, msgs []provider.Message) (Turn, error) {
	s.mu.RLock()
	conversation := make([]provider.Message, 0, len(s.transcript)+len(msgs))
	conversation = append(conversation, s.transcript...)
	s.mu.RUnlock()
	conversation = append(conversation, msgs...)

	response, err := s.generator.Generate(ctx, conversation)
	if err != nil {
		s.logger.LogErrorContext(ctx, "generation failed", err)
		return Turn{}, err
	}

	s.mu.Lock()
	s.transcript = append(s.transcript, msgs...)
	s.transcript = append(s.transcript, provider.Message{Role: provider.RoleAssistant, Content: response})
	s.mu.Unlock()

	turn := Turn{Response: response}
	turn.Ingest, err = s.Ingest(ctx, response)
	if err != nil {
		return turn, err
	}

	turn.Pass, err = s.Process(ctx)
	return turn, err
}

func errNoGenerator() error {
	return errors.New(errors.ErrCodeSessionNoBackend, "session has no generation backend").
		WithSuggestion("Configure a provider with GEMINI_API_KEY or providers.yaml")
}

// Steps returns every step in the log, in order.
func (s *Session) Steps() []step.Step {
	return s.store.All()
}

// Counts summarises the log by status.
func (s *Session) Counts() step.Counts {
	return s.store.Counts()
}

// Tree returns a copy of the current tree.
func (s *Session) Tree() filetree.Tree {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Clone()
}

// Mount returns the mount record of the current tree and its digest.
func (s *Session) Mount() (mount.Record, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return mount.Project(s.tree), s.digest
}

// Transcript returns a copy of the conversation so far.
func (s *Session) Transcript() []provider.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]provider.Message(nil), s.transcript...)
}

// Summary returns a compact view of the session.
func (s *Session) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Summary{
		ID:        s.id,
		Template:  string(s.template),
		CreatedAt: s.createdAt,
		Steps:     s.store.Counts(),
		Tree:      s.tree.Stats(),
		Digest:    s.digest,
	}
}

// Snapshot captures the session for checkpointing. It waits for a running pass.
func (s *Session) Snapshot() *checkpoint.State {
	s.pass.Lock()
	defer s.pass.Unlock()
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := checkpoint.NewState(s.id)
	state.StartedAt = s.createdAt
	state.Template = string(s.template)
	state.Steps = s.store.All()
	state.Cursor = s.cursor
	state.Tree = s.tree.Clone()
	state.Transcript = append([]provider.Message(nil), s.transcript...)
	state.Digest = s.digest
	return state
}
