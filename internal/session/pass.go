package session

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/felixgeelhaar/blitz/internal/errors"
	"github.com/felixgeelhaar/blitz/internal/filetree"
	"github.com/felixgeelhaar/blitz/internal/journal"
	"github.com/felixgeelhaar/blitz/internal/mount"
	"github.com/felixgeelhaar/blitz/internal/sandbox"
	"github.com/felixgeelhaar/blitz/internal/step"
	"github.com/felixgeelhaar/blitz/internal/telemetry"
)

// PassResult reports what one pass did.
type PassResult struct {
	// Considered is the number of pending steps read for this pass.
	Considered int              `json:"considered"`
	Applied    []int64          `json:"applied"`
	Failed     []StepFailure    `json:"failed,omitempty"`
	Commands   []CommandOutcome `json:"commands,omitempty"`
	Mounted    bool             `json:"mounted"`
	Digest     string           `json:"digest"`
	Duration   time.Duration    `json:"duration"`
}

// StepFailure is a step the tree builder rejected. It stays pending.
type StepFailure struct {
	Step  step.Step `json:"step"`
	Code  string    `json:"code"`
	Error string    `json:"error"`
}

// CommandOutcome is the dispatch result of one run-command step.
type CommandOutcome struct {
	StepID     int64             `json:"step_id"`
	Command    string            `json:"command"`
	Dispatched bool              `json:"dispatched"`
	Result     sandbox.RunResult `json:"result"`
	Error      string            `json:"error,omitempty"`
}

// Process runs one pass: every step appended since the previous pass is folded
// into a copy of the tree, the copy replaces the current tree, applied steps
// are completed, the new mount record is handed to the sandbox when it
// changed, and run-command steps are dispatched in order.
//
// Passes are serialised. Steps appended while a pass runs are left for the
// next one. Rejected steps stay pending and are not retried by later passes.
// Run-command steps that earlier passes could not dispatch are dispatched
// first, ahead of the new batch's commands.
func (s *Session) Process(ctx context.Context) (res PassResult, err error) {
	s.pass.Lock()
	defer s.pass.Unlock()

	ctx, span := telemetry.StartPassSpan(ctx, s.id)
	defer func() {
		telemetry.End(span, err,
			attribute.Int("pass.considered", res.Considered),
			attribute.Int("pass.applied", len(res.Applied)),
			attribute.Int("pass.failed", len(res.Failed)),
			attribute.Int("pass.commands", len(res.Commands)),
			attribute.Bool("pass.mounted", res.Mounted))
	}()

	start := time.Now()

	s.mu.RLock()
	cursor, current, mounted := s.cursor, s.tree, s.mounted
	s.mu.RUnlock()

	carried := s.store.PendingCommands(cursor)
	batch := s.store.PendingSince(cursor)
	res.Considered = len(batch)
	if n := len(batch); n > 0 {
		cursor = batch[n-1].ID
	}

	next, folded := filetree.Apply(current, batch)
	rec := mount.Project(next)
	digest, err := mount.Digest(rec)
	if err != nil {
		return res, errors.Wrap(errors.ErrCodeFileMarshal, "digest mount record", err)
	}

	s.mu.Lock()
	s.cursor = cursor
	s.tree = next
	s.digest = digest
	s.mu.Unlock()
	res.Digest = digest

	res.Applied = folded.Applied
	s.complete(ctx, folded.Applied)

	failedCodes := make([]string, 0, len(folded.Failed))
	for _, f := range folded.Failed {
		code := string(errors.CodeOf(f.Err))
		failedCodes = append(failedCodes, code)
		res.Failed = append(res.Failed, StepFailure{Step: f.Step, Code: code, Error: f.Err.Error()})
		s.logger.WithError(f.Err).WarnContext(ctx, "step rejected", "step_id", f.Step.ID, "path", f.Step.Path)
	}

	var passErr error
	if s.sandbox != nil {
		if digest != mounted {
			passErr = s.sandbox.Mount(ctx, rec)
			s.metrics.RecordMount(passErr)
			if passErr == nil {
				res.Mounted = true
				s.mu.Lock()
				s.mounted = digest
				s.mu.Unlock()
			} else {
				s.logger.LogErrorContext(ctx, "mount failed", passErr)
			}
		}
		// Commands need the files they act on, so none run after a failed mount.
		if passErr == nil {
			commands := append(carried, folded.Commands...)
			res.Commands, passErr = s.dispatch(ctx, commands)
		}
	}

	res.Duration = time.Since(start)
	s.metrics.RecordPass(res.Duration, len(res.Applied), failedCodes, passErr)
	s.logger.InfoContext(ctx, "pass complete",
		"considered", res.Considered,
		"applied", len(res.Applied),
		"failed", len(res.Failed),
		"commands", len(res.Commands),
		"mounted", res.Mounted,
		"duration", res.Duration)

	return res, passErr
}

// dispatch runs commands in order. A command that exits non-zero still counts
// as dispatched; one that cannot be run stops dispatch and it and every later
// command stay pending.
func (s *Session) dispatch(ctx context.Context, commands []step.Step) ([]CommandOutcome, error) {
	var outcomes []CommandOutcome
	for _, cmd := range commands {
		result, err := s.sandbox.Run(ctx, cmd.Content)
		s.metrics.RecordCommand(result.Duration, result.ExitCode, err)

		outcome := CommandOutcome{StepID: cmd.ID, Command: cmd.Content, Result: result}
		run := journal.Run{
			StepID:   cmd.ID,
			Command:  cmd.Content,
			ExitCode: result.ExitCode,
			Duration: result.Duration,
		}
		if err != nil {
			outcome.Error = err.Error()
			run.Error = err.Error()
		}
		s.recordRun(ctx, run)

		if err != nil {
			outcomes = append(outcomes, outcome)
			s.logger.LogErrorContext(ctx, "command dispatch failed", err)
			return outcomes, err
		}

		outcome.Dispatched = true
		outcomes = append(outcomes, outcome)
		s.complete(ctx, []int64{cmd.ID})

		if !result.Succeeded() {
			s.logger.WarnContext(ctx, "command exited non-zero",
				"step_id", cmd.ID, "command", cmd.Content, "exit_code", result.ExitCode)
		}
	}
	return outcomes, nil
}

func (s *Session) complete(ctx context.Context, ids []int64) {
	if len(ids) == 0 {
		return
	}
	s.store.MarkCompleted(ids...)
	if s.journal != nil {
		if err := s.journal.RecordCompleted(ctx, s.id, ids); err != nil {
			s.logger.LogErrorContext(ctx, "journal completion failed", err)
		}
	}
}

func (s *Session) recordRun(ctx context.Context, run journal.Run) {
	if s.journal == nil {
		return
	}
	if err := s.journal.RecordRun(ctx, s.id, run); err != nil {
		s.logger.LogErrorContext(ctx, "journal run failed", err)
	}
}
