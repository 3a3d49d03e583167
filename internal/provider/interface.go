// Package provider talks to text-generation backends.
package provider

import (
	"context"
	"time"
)

// Generator produces the model's text answer for a conversation. It is the
// only thing the build loop needs from a backend.
type Generator interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}

// ProviderClient is the interface every generation backend implements.
type ProviderClient interface {
	// Generate sends a prompt and returns a complete response.
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)

	// Stream sends a prompt and returns a channel of response chunks.
	// The channel is closed when streaming completes.
	Stream(ctx context.Context, req *GenerateRequest) (<-chan StreamChunk, error)

	// GetCapabilities returns what this provider supports.
	GetCapabilities() *ProviderCapabilities

	// GetInfo returns metadata about the provider.
	GetInfo() *ProviderInfo

	// IsAvailable reports whether the provider is configured to handle requests.
	IsAvailable() bool

	// Health performs a live check against the backend.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// ProviderCapabilities describes what features a provider supports
type ProviderCapabilities struct {
	SupportsStreaming bool
	SupportsMultiTurn bool

	// MaxContextTokens is the maximum context window size
	MaxContextTokens int
}

// ProviderInfo contains metadata about a provider
type ProviderInfo struct {
	Name        string
	Version     string
	Type        ProviderType
	Model       string
	Description string
}

// ProviderType represents the implementation type of a provider
type ProviderType string

const (
	// ProviderTypeAPI talks to a REST endpoint directly.
	ProviderTypeAPI ProviderType = "api"

	// ProviderTypeSDK goes through a vendor SDK.
	ProviderTypeSDK ProviderType = "sdk"
)

// StreamChunk represents a single chunk in a streaming response
type StreamChunk struct {
	// Content is the text accumulated so far
	Content string

	// Delta is the text added by this chunk
	Delta string

	// Done indicates if this is the final chunk
	Done bool

	// TokensUsed is set on the final chunk
	TokensUsed int

	// Error is set on the final chunk when streaming failed
	Error error

	Timestamp time.Time
}
