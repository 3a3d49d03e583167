package provider

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/felixgeelhaar/blitz/internal/errors"
	"github.com/felixgeelhaar/blitz/internal/metrics"
	"github.com/felixgeelhaar/blitz/internal/telemetry"
)

// ChatGenerator adapts a ProviderClient to Generator. Every call carries the
// system prompt; system messages in the conversation are folded into it.
type ChatGenerator struct {
	client       ProviderClient
	systemPrompt string
	maxTokens    int
	temperature  float64
	metrics      *metrics.Metrics
}

// ChatOption customises a ChatGenerator.
type ChatOption func(*ChatGenerator)

// WithMaxTokens overrides the provider's token limit.
func WithMaxTokens(n int) ChatOption {
	return func(g *ChatGenerator) { g.maxTokens = n }
}

// WithTemperature overrides the provider's temperature.
func WithTemperature(t float64) ChatOption {
	return func(g *ChatGenerator) { g.temperature = t }
}

// WithMetrics records every call's latency, tokens and errors.
func WithMetrics(m *metrics.Metrics) ChatOption {
	return func(g *ChatGenerator) { g.metrics = m }
}

// NewChatGenerator wraps client.
func NewChatGenerator(client ProviderClient, systemPrompt string, opts ...ChatOption) *ChatGenerator {
	g := &ChatGenerator{client: client, systemPrompt: systemPrompt}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate sends messages and returns the answer text. The final user message
// becomes the prompt; everything before it is context.
func (g *ChatGenerator) Generate(ctx context.Context, messages []Message) (string, error) {
	req := g.Request(messages)
	info := g.client.GetInfo()

	ctx, span := telemetry.StartProviderSpan(ctx, info.Name, "generate")
	span.SetAttributes(attribute.String("model", info.Model), attribute.Int("messages", len(messages)))

	start := time.Now()
	resp, err := g.client.Generate(ctx, req)
	if err == nil && strings.TrimSpace(resp.Content) == "" {
		err = errors.NewEmptyResponseError()
	}

	var in, out int
	if resp != nil {
		in, out = resp.InputTokens, resp.OutputTokens
	}
	g.metrics.RecordProviderCall(info.Name, info.Model, time.Since(start), in, out, err)
	telemetry.End(span, err, attribute.Int("tokens.input", in), attribute.Int("tokens.output", out))

	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// Request builds the GenerateRequest Generate would send.
func (g *ChatGenerator) Request(messages []Message) *GenerateRequest {
	system := []string{}
	if g.systemPrompt != "" {
		system = append(system, g.systemPrompt)
	}

	var turns []Message
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		turns = append(turns, m)
	}

	req := &GenerateRequest{
		SystemPrompt: strings.Join(system, "\n\n"),
		MaxTokens:    g.maxTokens,
		Temperature:  g.temperature,
	}
	if n := len(turns); n > 0 && turns[n-1].Role != RoleAssistant {
		req.Prompt = turns[n-1].Content
		turns = turns[:n-1]
	}
	req.Context = turns
	return req
}

// GeneratorFunc lets an ordinary function serve as a Generator.
type GeneratorFunc func(ctx context.Context, messages []Message) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, messages []Message) (string, error) {
	return f(ctx, messages)
}
