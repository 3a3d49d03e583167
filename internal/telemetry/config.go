package telemetry

// Config holds configuration for the tracer.
type Config struct {
	ServiceName    string
	ServiceVersion string

	// Environment is the deployment environment (development, production).
	Environment string

	// Enabled selects the SDK tracer provider. When false spans go to a
	// noop provider.
	Enabled bool

	// Endpoint is the OTLP/HTTP collector URL, e.g. http://localhost:4318.
	// When empty spans are sampled and recorded but not exported.
	Endpoint string

	// SampleRate is the fraction of root spans sampled, 0.0 to 1.0.
	SampleRate float64
}

// DefaultConfig returns tracing disabled.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "blitz",
		ServiceVersion: "dev",
		Environment:    "development",
		SampleRate:     1.0,
	}
}
