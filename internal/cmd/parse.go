package cmd

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/blitz/internal/artifact"
	"github.com/felixgeelhaar/blitz/internal/errors"
	"github.com/felixgeelhaar/blitz/internal/ux"
)

func newParseCmd(cc *CommandContext) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "parse [file|-]",
		Short: "Show the steps a model response describes",
		Long: `Parse a model response and print the steps it contains without
applying them. Entries that cannot be turned into steps are reported as
warnings. Reads standard input when no file or "-" is given.

Examples:
  blitz parse response.xml
  cat response.xml | blitz parse --format yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := "-"
			if len(args) == 1 {
				name = args[0]
			}
			text, err := readInput(cmd, name)
			if err != nil {
				return err
			}

			res := artifact.Parse(text)
			kinds := make([]string, len(res.Steps))
			for i, st := range res.Steps {
				kinds[i] = string(st.Kind)
			}
			cc.Metrics.RecordParse(kinds, len(res.Warnings))

			f, err := cc.Formatter(cmd, format)
			if err != nil {
				return err
			}
			if format == "json" || format == "yaml" {
				return f.Format(res)
			}
			return f.Format(ux.ParseView{Result: res})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "table", "output format: table, json or yaml")
	return cmd
}

// readInput returns the contents of name, or of standard input for "-".
func readInput(cmd *cobra.Command, name string) (string, error) {
	if name == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", errors.Wrap(errors.ErrCodeFileReadFailed, "read standard input", err)
		}
		return string(data), nil
	}

	data, err := os.ReadFile(name)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.NewFileNotFoundError(name)
		}
		return "", errors.Wrap(errors.ErrCodeFileReadFailed, "read "+name, err)
	}
	return string(data), nil
}
