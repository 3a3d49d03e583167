// Package metrics exposes Prometheus instrumentation for parsing, tree
// passes, generation, sandbox dispatch and the HTTP relay.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/felixgeelhaar/blitz/internal/errors"
)

// Metrics holds all Prometheus metrics for blitz
type Metrics struct {
	// CLI command metrics
	CommandExecutions *prometheus.CounterVec
	CommandDuration   *prometheus.HistogramVec

	// Provider operation metrics
	ProviderCalls   *prometheus.CounterVec
	ProviderLatency *prometheus.HistogramVec
	ProviderErrors  *prometheus.CounterVec
	ProviderTokens  *prometheus.CounterVec

	// Artifact parsing metrics
	ArtifactParses *prometheus.CounterVec
	ParsedSteps    *prometheus.CounterVec
	ParseWarnings  prometheus.Counter

	// Tree pass metrics
	Passes       *prometheus.CounterVec
	PassDuration prometheus.Histogram
	StepsApplied prometheus.Counter
	StepsFailed  *prometheus.CounterVec

	// Sandbox metrics
	SandboxMounts   *prometheus.CounterVec
	SandboxCommands *prometheus.CounterVec
	SandboxDuration prometheus.Histogram

	// HTTP relay metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	ActiveSessions prometheus.Gauge

	// Error metrics (by error code from structured errors)
	Errors *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		CommandExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blitz_command_executions_total",
				Help: "Total number of CLI command executions",
			},
			[]string{"command", "success"},
		),
		CommandDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "blitz_command_duration_seconds",
				Help:    "CLI command duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"command"},
		),

		ProviderCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blitz_provider_calls_total",
				Help: "Total number of generation calls",
			},
			[]string{"provider", "model", "success"},
		),
		ProviderLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "blitz_provider_latency_seconds",
				Help:    "Generation call latency in seconds",
				Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"provider", "model"},
		),
		ProviderErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blitz_provider_errors_total",
				Help: "Total number of generation errors",
			},
			[]string{"provider", "error_code"},
		),
		ProviderTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blitz_provider_tokens_total",
				Help: "Total tokens consumed by generation calls",
			},
			[]string{"provider", "model", "token_type"},
		),

		ArtifactParses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blitz_artifact_parses_total",
				Help: "Total number of model responses parsed",
			},
			[]string{"result"},
		),
		ParsedSteps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blitz_parsed_steps_total",
				Help: "Total number of build steps extracted from responses",
			},
			[]string{"kind"},
		),
		ParseWarnings: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "blitz_parse_warnings_total",
				Help: "Total number of malformed artifact entries skipped",
			},
		),

		Passes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blitz_passes_total",
				Help: "Total number of tree passes",
			},
			[]string{"outcome"},
		),
		PassDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "blitz_pass_duration_seconds",
				Help:    "Tree pass duration in seconds, sandbox work included",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1.0, 5.0, 30.0, 120.0},
			},
		),
		StepsApplied: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "blitz_steps_applied_total",
				Help: "Total number of file and folder steps folded into a tree",
			},
		),
		StepsFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blitz_steps_failed_total",
				Help: "Total number of steps the tree builder rejected",
			},
			[]string{"error_code"},
		),

		SandboxMounts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blitz_sandbox_mounts_total",
				Help: "Total number of mount records handed to a sandbox",
			},
			[]string{"success"},
		),
		SandboxCommands: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blitz_sandbox_commands_total",
				Help: "Total number of commands dispatched to a sandbox",
			},
			[]string{"exit"},
		),
		SandboxDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "blitz_sandbox_command_duration_seconds",
				Help:    "Sandbox command duration in seconds",
				Buckets: []float64{0.1, 1.0, 5.0, 10.0, 30.0, 60.0, 300.0},
			},
		),

		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blitz_http_requests_total",
				Help: "Total number of HTTP requests served",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "blitz_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "blitz_active_sessions",
				Help: "Number of sessions held in memory",
			},
		),

		Errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blitz_errors_total",
				Help: "Total number of errors by error code",
			},
			[]string{"error_code", "component"},
		),
	}
}

// The Record helpers below accept a nil receiver so callers can leave
// instrumentation unset.

// RecordParse counts one parsed response with the kinds of its steps.
func (m *Metrics) RecordParse(kinds []string, warnings int) {
	if m == nil {
		return
	}
	result := "steps"
	if len(kinds) == 0 {
		result = "empty"
	}
	m.ArtifactParses.WithLabelValues(result).Inc()
	for _, k := range kinds {
		m.ParsedSteps.WithLabelValues(k).Inc()
	}
	m.ParseWarnings.Add(float64(warnings))
}

// RecordPass records one tree pass. failedCodes holds the error code of each
// rejected step.
func (m *Metrics) RecordPass(d time.Duration, applied int, failedCodes []string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Passes.WithLabelValues(outcome).Inc()
	m.PassDuration.Observe(d.Seconds())
	m.StepsApplied.Add(float64(applied))
	for _, code := range failedCodes {
		m.StepsFailed.WithLabelValues(code).Inc()
	}
}

// RecordMount counts one sandbox mount.
func (m *Metrics) RecordMount(err error) {
	if m == nil {
		return
	}
	m.SandboxMounts.WithLabelValues(strconv.FormatBool(err == nil)).Inc()
}

// RecordCommand records one sandbox command. exitCode is ignored when err is set.
func (m *Metrics) RecordCommand(d time.Duration, exitCode int, err error) {
	if m == nil {
		return
	}
	exit := strconv.Itoa(exitCode)
	if err != nil {
		exit = "error"
	}
	m.SandboxCommands.WithLabelValues(exit).Inc()
	m.SandboxDuration.Observe(d.Seconds())
}

// RecordProviderCall records one generation call.
func (m *Metrics) RecordProviderCall(provider, model string, d time.Duration, inputTokens, outputTokens int, err error) {
	if m == nil {
		return
	}
	m.ProviderCalls.WithLabelValues(provider, model, strconv.FormatBool(err == nil)).Inc()
	m.ProviderLatency.WithLabelValues(provider, model).Observe(d.Seconds())
	if err != nil {
		m.ProviderErrors.WithLabelValues(provider, codeLabel(err)).Inc()
		return
	}
	if inputTokens > 0 {
		m.ProviderTokens.WithLabelValues(provider, model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.ProviderTokens.WithLabelValues(provider, model, "output").Add(float64(outputTokens))
	}
}

// RecordHTTP records one served request. route is the matched pattern, not the raw path.
func (m *Metrics) RecordHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordCommandExecution records one CLI command run.
func (m *Metrics) RecordCommandExecution(command string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.CommandExecutions.WithLabelValues(command, strconv.FormatBool(err == nil)).Inc()
	m.CommandDuration.WithLabelValues(command).Observe(d.Seconds())
	if err != nil {
		m.RecordError("cli", err)
	}
}

// RecordError counts err under its structured code.
func (m *Metrics) RecordError(component string, err error) {
	if m == nil || err == nil {
		return
	}
	m.Errors.WithLabelValues(codeLabel(err), component).Inc()
}

func codeLabel(err error) string {
	if code := errors.CodeOf(err); code != "" {
		return string(code)
	}
	return "unknown"
}
