package cmd

import (
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/blitz/internal/errors"
	"github.com/felixgeelhaar/blitz/internal/ux"
)

func newHistoryCmd(cc *CommandContext) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "history [session]",
		Short: "Show journaled sessions or the steps of one session",
		Long: `Without an argument, list every session recorded in the step journal.
With a session id, print its steps in log order and the commands it ran.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if !cc.Config.Journal.Enabled {
				return errors.New(errors.ErrCodeSessionNoBackend, "the step journal is disabled").
					WithSuggestion("Set journal.enabled: true or drop --no-journal")
			}
			jr, err := cc.OpenJournal()
			if err != nil {
				return err
			}
			defer jr.Close()

			f, err := cc.Formatter(cmd, format)
			if err != nil {
				return err
			}

			if len(args) == 0 {
				sessions, err := jr.Sessions(ctx)
				if err != nil {
					return err
				}
				if format == "json" || format == "yaml" {
					return f.Format(sessions)
				}
				return f.Format(ux.SessionsView{Sessions: sessions})
			}

			id := args[0]
			entries, err := jr.History(ctx, id)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				return errors.NewSessionNotFoundError(id)
			}
			runs, err := jr.Runs(ctx, id)
			if err != nil {
				return err
			}
			return f.Format(ux.HistoryView{SessionID: id, Entries: entries, Runs: runs})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "table", "output format: table, json or yaml")
	return cmd
}
