package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/blitz/internal/errors"
	"github.com/felixgeelhaar/blitz/internal/filetree"
	"github.com/felixgeelhaar/blitz/internal/mount"
	"github.com/felixgeelhaar/blitz/internal/sandbox"
	"github.com/felixgeelhaar/blitz/internal/session"
	"github.com/felixgeelhaar/blitz/internal/step"
	"github.com/felixgeelhaar/blitz/internal/ux"
)

type buildOptions struct {
	prompt     string
	out        string
	run        bool
	mountOut   string
	checkpoint bool
	resume     string
	sessionID  string
	format     string
}

// buildReport is what build prints.
type buildReport struct {
	SessionID  string               `json:"session_id" yaml:"session_id"`
	Passes     []session.PassResult `json:"passes" yaml:"passes"`
	Steps      step.Counts          `json:"steps" yaml:"steps"`
	Tree       filetree.Stats       `json:"tree" yaml:"tree"`
	Digest     string               `json:"digest" yaml:"digest"`
	Output     string               `json:"output,omitempty" yaml:"output,omitempty"`
	Checkpoint bool                 `json:"checkpoint" yaml:"checkpoint"`

	tree filetree.Tree
}

// Render implements ux.Renderer.
func (r buildReport) Render(s ux.Styles) string {
	var b strings.Builder
	for _, p := range r.Passes {
		b.WriteString(ux.PassView{Pass: p}.Render(s))
		b.WriteByte('\n')
	}
	b.WriteString(ux.TreeView{Tree: r.tree}.Render(s))
	b.WriteString("\n\n")
	b.WriteString(s.Key.Render("session ") + r.SessionID)
	b.WriteString(s.Muted.Render(fmt.Sprintf("  %d completed, %d pending  digest %s",
		r.Steps.Completed, r.Steps.Pending, shortDigest(r.Digest))))
	if r.Output != "" {
		b.WriteString("\n" + s.Key.Render("written to ") + r.Output)
	}
	return b.String()
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}

func newBuildCmd(cc *CommandContext) *cobra.Command {
	o := &buildOptions{}

	cmd := &cobra.Command{
		Use:   "build [file...]",
		Short: "Build a project from model responses",
		Long: `Ingest one or more saved model responses, or generate one from --prompt,
and fold their steps into a project tree. Each response runs as its own pass.

Without --run the finished tree is written to --out and shell commands stay
pending. With --run every pass is mounted into --out and its commands are
executed there in order.

Examples:
  blitz build scaffold.xml changes.xml --out ./app
  blitz build --prompt "todo app with react" --out ./app --run
  blitz build more.xml --resume 6f1c... --checkpoint`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, cc, o, args)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.prompt, "prompt", "p", "", "generate a response for this prompt first")
	f.StringVarP(&o.out, "out", "o", "", "directory the project is written to")
	f.BoolVar(&o.run, "run", false, "mount every pass into --out and run its commands")
	f.StringVar(&o.mountOut, "mount-out", "", "write the final mount record as JSON to this file")
	f.BoolVar(&o.checkpoint, "checkpoint", false, "save a session snapshot when done")
	f.StringVar(&o.resume, "resume", "", "continue the checkpointed session with this id")
	f.StringVar(&o.sessionID, "session", "", "id for a new session (default: random)")
	f.StringVarP(&o.format, "format", "f", "table", "output format: table, json or yaml")
	f.String("checkpoint-dir", "", "directory holding session snapshots")
	return cmd
}

func runBuild(cmd *cobra.Command, cc *CommandContext, o *buildOptions, args []string) error {
	ctx := cmd.Context()

	if o.run && o.out == "" {
		return ux.NewErrorWithSuggestion(fmt.Errorf("--run needs a project directory"),
			"Pass --out <dir> so commands have somewhere to run")
	}
	if len(args) == 0 && o.prompt == "" {
		return ux.NewErrorWithSuggestion(fmt.Errorf("nothing to build"),
			"Pass response files, \"-\" for standard input, or --prompt")
	}

	formatter, err := cc.Formatter(cmd, o.format)
	if err != nil {
		return err
	}

	opts := session.Options{ID: o.sessionID, Metrics: cc.Metrics, Logger: cc.Logger}

	jr, err := cc.OpenJournal()
	if err != nil {
		return err
	}
	if jr != nil {
		defer jr.Close()
		opts.Journal = jr
	}

	var local *sandbox.Local
	if o.out != "" {
		if local, err = sandbox.NewLocal(o.out); err != nil {
			return err
		}
		if o.run {
			opts.Sandbox = local
		}
	}

	if o.prompt != "" {
		reg, err := cc.Registry(ctx)
		if err != nil {
			return err
		}
		defer reg.CloseAll()
		opts.Generator = cc.Generator(reg)
	}

	s, err := openBuildSession(cc, o, opts)
	if err != nil {
		return err
	}
	report := buildReport{SessionID: s.ID()}

	if o.prompt != "" {
		var turn session.Turn
		if o.resume != "" {
			turn, err = s.Chat(ctx, o.prompt)
		} else {
			turn, err = s.Init(ctx, o.prompt)
		}
		if err != nil {
			return err
		}
		report.Passes = append(report.Passes, turn.Pass)
	}

	var skipped error
	ingested := 0
	for _, name := range args {
		text, err := readInput(cmd, name)
		if err != nil {
			return err
		}
		if _, err := s.Ingest(ctx, text); err != nil {
			if !errors.HasCode(err, errors.ErrCodeNoActionableOutput) {
				return err
			}
			cc.Logger.WarnContext(ctx, "response has no actionable output", "file", name)
			skipped = err
			continue
		}
		ingested++

		pass, err := s.Process(ctx)
		report.Passes = append(report.Passes, pass)
		if err != nil {
			return err
		}
	}
	if ingested == 0 && o.prompt == "" && skipped != nil {
		return skipped
	}

	rec, digest := s.Mount()
	if local != nil && !o.run {
		if err := local.Mount(ctx, rec); err != nil {
			return err
		}
	}
	if local != nil {
		report.Output = local.Root()
	}
	if o.mountOut != "" {
		if err := writeMountRecord(o.mountOut, rec); err != nil {
			return err
		}
	}
	if o.checkpoint {
		if err := cc.Checkpoints().Save(s.Snapshot()); err != nil {
			return err
		}
		report.Checkpoint = true
	}

	tree := s.Tree()
	report.Steps = s.Counts()
	report.Tree = tree.Stats()
	report.Digest = digest
	report.tree = tree
	return formatter.Format(report)
}

func openBuildSession(cc *CommandContext, o *buildOptions, opts session.Options) (*session.Session, error) {
	if o.resume == "" {
		return session.New(opts), nil
	}
	state, err := cc.Checkpoints().Load(o.resume)
	if err != nil {
		return nil, err
	}
	return session.Restore(state, opts), nil
}

func writeMountRecord(path string, rec mount.Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileMarshal, "encode mount record", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return errors.Wrap(errors.ErrCodeDirectoryFailed, "create mount record directory", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0600); err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "write mount record", err)
	}
	return nil
}
