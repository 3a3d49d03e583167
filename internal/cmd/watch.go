package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/blitz/internal/errors"
	"github.com/felixgeelhaar/blitz/internal/sandbox"
	"github.com/felixgeelhaar/blitz/internal/session"
	"github.com/felixgeelhaar/blitz/internal/ux"
	"github.com/felixgeelhaar/blitz/internal/watch"
)

func newWatchCmd(cc *CommandContext) *cobra.Command {
	var (
		out        string
		run        bool
		existing   bool
		checkpoint bool
		debounce   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Build from responses as they are saved into a directory",
		Long: `Watch a directory for model responses (*.xml, *.txt, *.md). Every new or
changed file is ingested into one session and followed by a pass. Files
whose content was already ingested are skipped.

Stop with Ctrl+C. With --checkpoint the session is saved on exit and can be
continued with "blitz build --resume <id>".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if run && out == "" {
				return ux.NewErrorWithSuggestion(fmt.Errorf("--run needs a project directory"),
					"Pass --out <dir> so commands have somewhere to run")
			}

			opts := session.Options{Metrics: cc.Metrics, Logger: cc.Logger}
			jr, err := cc.OpenJournal()
			if err != nil {
				return err
			}
			if jr != nil {
				defer jr.Close()
				opts.Journal = jr
			}

			var local *sandbox.Local
			if out != "" {
				if local, err = sandbox.NewLocal(out); err != nil {
					return err
				}
				if run {
					opts.Sandbox = local
				}
			}

			s := session.New(opts)
			styles := cc.Styles()
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s %s\n", styles.Key.Render("session"), s.ID())

			mounted := ""
			onEvent := func(ev watch.Event) {
				if ev.Err != nil {
					fmt.Fprintln(w, ux.FormatError(ev.Err, styles))
					return
				}
				fmt.Fprintf(w, "%s %s\n", styles.Title.Render(ev.Path), ux.PassView{Pass: ev.Pass}.Render(styles))

				// Without --run the sandbox is only a mirror of the tree.
				if local != nil && !run && ev.Pass.Digest != mounted {
					rec, digest := s.Mount()
					if err := local.Mount(ctx, rec); err != nil {
						cc.Logger.LogErrorContext(ctx, "mount failed", err)
						return
					}
					mounted = digest
				}
			}

			err = watch.New(args[0], s, watch.Options{
				Debounce: debounce,
				Existing: existing,
				OnEvent:  onEvent,
				Logger:   cc.Logger,
			}).Run(ctx)
			if err != nil {
				return err
			}

			if checkpoint {
				if err := cc.Checkpoints().Save(s.Snapshot()); err != nil {
					return errors.Wrap(errors.ErrCodeFileWriteFailed, "save checkpoint", err)
				}
				fmt.Fprintf(w, "%s %s\n", styles.Success.Render("checkpoint saved:"), s.ID())
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&out, "out", "o", "", "directory the project is written to")
	f.BoolVar(&run, "run", false, "mount every pass into --out and run its commands")
	f.BoolVar(&existing, "existing", true, "ingest responses already in the directory first")
	f.BoolVar(&checkpoint, "checkpoint", false, "save a session snapshot on exit")
	f.DurationVar(&debounce, "debounce", watch.DefaultDebounce, "quiet period before a changed file is read")
	f.String("checkpoint-dir", "", "directory holding session snapshots")
	return cmd
}
