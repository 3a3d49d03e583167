package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/blitz/internal/health"
	"github.com/felixgeelhaar/blitz/internal/journal"
	"github.com/felixgeelhaar/blitz/internal/ux"
)

// DoctorReport is the outcome of blitz doctor.
type DoctorReport struct {
	Status     health.Status             `json:"status" yaml:"status"`
	ConfigFile string                    `json:"config_file,omitempty" yaml:"config_file,omitempty"`
	Sandbox    string                    `json:"sandbox" yaml:"sandbox"`
	APIKey     bool                      `json:"api_key_configured" yaml:"api_key_configured"`
	Checks     map[string]*health.Result `json:"checks" yaml:"checks"`
}

// Render implements ux.Renderer.
func (r DoctorReport) Render(s ux.Styles) string {
	var b strings.Builder
	b.WriteString(s.Title.Render("blitz doctor"))

	config := r.ConfigFile
	if config == "" {
		config = "(defaults and environment)"
	}
	b.WriteString(fmt.Sprintf("\n%s %s", s.Key.Render("config: "), config))
	b.WriteString(fmt.Sprintf("\n%s %s", s.Key.Render("sandbox:"), r.Sandbox))
	key := s.Warning.Render("not set")
	if r.APIKey {
		key = s.Success.Render("set")
	}
	b.WriteString(fmt.Sprintf("\n%s %s\n", s.Key.Render("api key:"), key))

	names := make([]string, 0, len(r.Checks))
	for name := range r.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		res := r.Checks[name]
		b.WriteString(fmt.Sprintf("\n%s %-16s %s", statusMark(s, res.Status), name, res.Message))
		if hint, ok := res.Details["suggestion"].(string); ok {
			b.WriteString("\n  " + s.Muted.Render("→ "+hint))
		}
		if msg, ok := res.Details["error"].(string); ok {
			b.WriteString("\n  " + s.Muted.Render(msg))
		}
	}
	b.WriteString(fmt.Sprintf("\n\n%s %s", s.Key.Render("overall:"), statusMark(s, r.Status)+" "+r.Status.String()))
	return b.String()
}

func statusMark(s ux.Styles, st health.Status) string {
	switch st {
	case health.StatusHealthy:
		return s.Success.Render("✓")
	case health.StatusDegraded:
		return s.Warning.Render("!")
	default:
		return s.Error.Render("✗")
	}
}

func newDoctorCmd(cc *CommandContext) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and the services blitz depends on",
		Long: `Run the same dependency checks the server exposes on /health/ready:
generation providers, the step journal, checkpoint and sandbox directories,
and the sandbox runtime. Missing state directories are created.

Exits non-zero when any check is unhealthy. Degraded checks only warn.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := ensureStateDirs(cc.Config); err != nil {
				return err
			}

			f, err := cc.Formatter(cmd, format)
			if err != nil {
				return err
			}

			reg, err := cc.Registry(ctx)
			if err != nil {
				return err
			}
			defer reg.CloseAll()

			var jr *journal.Journal
			if jr, err = cc.OpenJournal(); err != nil {
				return err
			}
			if jr != nil {
				defer jr.Close()
			}

			m := health.NewManager()
			for _, c := range cc.healthCheckers(reg, jr) {
				m.AddChecker(c)
			}
			results := m.Check(ctx)

			report := DoctorReport{
				Status:     m.OverallStatus(results),
				ConfigFile: cc.Viper.ConfigFileUsed(),
				Sandbox:    cc.Config.Sandbox.Kind,
				APIKey:     cc.Config.APIKeyConfigured(),
				Checks:     results,
			}
			if err := f.Format(report); err != nil {
				return err
			}

			if report.Status == health.StatusUnhealthy {
				return ux.NewErrorWithSuggestion(fmt.Errorf("one or more checks are unhealthy"),
					"Fix the checks marked ✗ above and run blitz doctor again")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "table", "output format: table, json or yaml")
	return cmd
}
