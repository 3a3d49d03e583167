package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/blitz/internal/config"
	"github.com/felixgeelhaar/blitz/internal/errors"
)

func newConfigCmd(cc *CommandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View or create blitz configuration",
		Long: `Manage the configuration stored at ~/.blitz/config.yaml.

Every setting can also be given as an environment variable with the BLITZ_
prefix, dots replaced by underscores (for example BLITZ_SERVER_ADDR). The
provider API key is read from BLITZ_PROVIDER_API_KEY or GEMINI_API_KEY.

Examples:
  blitz config view
  blitz config view --format json
  blitz config path
  blitz config init`,
	}

	cmd.AddCommand(newConfigViewCmd(cc), newConfigPathCmd(cc), newConfigInitCmd(cc))
	return cmd
}

func newConfigViewCmd(cc *CommandContext) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "view",
		Short: "Display the effective configuration",
		Long:  `Display the configuration after defaults, the config file, environment and flags are applied. The API key is masked.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := cc.Formatter(cmd, format)
			if err != nil {
				return err
			}
			view := *cc.Config
			view.Provider.APIKey = maskKey(view.Provider.APIKey)
			return f.Format(view)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "output format: json or yaml")
	return cmd
}

func newConfigPathCmd(cc *CommandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), configFilePath(cc))
			return nil
		},
	}
}

func newConfigInitCmd(cc *CommandContext) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the current settings to the configuration file",
		Long:  `Write the effective settings to the configuration file so they can be edited. The API key is never written.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := configFilePath(cc)
			if _, err := os.Stat(path); err == nil && !force {
				return errors.New(errors.ErrCodeFileWriteFailed, "configuration already exists: "+path).
					WithSuggestion("Pass --force to overwrite it")
			}
			if err := config.Save(cc.Config, path); err != nil {
				return err
			}
			s := cc.Styles()
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", s.Success.Render("wrote"), path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing configuration file")
	return cmd
}

// configFilePath is the file in use, --config, or the default location.
func configFilePath(cc *CommandContext) string {
	if used := cc.Viper.ConfigFileUsed(); used != "" {
		return used
	}
	if cc.ConfigPath != "" {
		return cc.ConfigPath
	}
	return filepath.Join(config.Home(), "config.yaml")
}

func maskKey(key string) string {
	switch {
	case key == "":
		return ""
	case len(key) <= 8:
		return "********"
	default:
		return key[:4] + "…" + key[len(key)-4:]
	}
}
