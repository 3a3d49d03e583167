package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/felixgeelhaar/blitz/internal/errors"
)

// GenAIProvider implements ProviderClient with the Google GenAI SDK.
type GenAIProvider struct {
	client      *genai.Client
	config      *ProviderConfig
	model       string
	maxTokens   int
	temperature float64
}

// NewGenAIProvider creates an SDK-backed provider. Like the REST provider it
// only accepts an explicit api_key.
func NewGenAIProvider(ctx context.Context, config *ProviderConfig) (*GenAIProvider, error) {
	apiKey := config.stringValue("api_key")
	if apiKey == "" {
		return nil, errors.New(errors.ErrCodeProviderConfig, "api_key not found in provider config").
			WithSuggestion("Set GEMINI_API_KEY or provider.api_key in the blitz config")
	}

	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL := config.stringValue("base_url"); baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeProviderConfig, "create GenAI client", err)
	}

	model := config.stringValue("model")
	if model == "" {
		model = DefaultModel
	}
	maxTokens := config.intValue("max_tokens")
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	temperature := config.floatValue("temperature")
	if temperature <= 0 {
		temperature = DefaultTemperature
	}

	return &GenAIProvider{
		client:      client,
		config:      config,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
	}, nil
}

func (p *GenAIProvider) request(req *GenerateRequest) (string, []*genai.Content, *genai.GenerateContentConfig) {
	model := p.model
	if m, ok := req.Config["model"].(string); ok && m != "" {
		model = m
	}

	contents := make([]*genai.Content, 0, len(req.Context)+1)
	for _, msg := range req.Context {
		role := genai.Role(genai.RoleUser)
		if msg.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}
	if req.Prompt != "" || len(contents) == 0 {
		contents = append(contents, genai.NewContentFromText(req.Prompt, genai.RoleUser))
	}

	maxTokens := p.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	temperature := p.temperature
	if req.Temperature > 0 {
		temperature = req.Temperature
	}

	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokens),
		Temperature:     genai.Ptr(float32(temperature)),
	}
	if req.TopP > 0 {
		cfg.TopP = genai.Ptr(float32(req.TopP))
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	return model, contents, cfg
}

// Generate implements ProviderClient.Generate
func (p *GenAIProvider) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	start := time.Now()
	model, contents, cfg := p.request(req)

	resp, err := p.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeProviderAPI, "GenAI generate failed", err)
	}
	if len(resp.Candidates) == 0 {
		return nil, errors.NewEmptyResponseError()
	}

	out := &GenerateResponse{
		Content:      resp.Text(),
		Model:        model,
		Provider:     p.config.Name,
		FinishReason: string(resp.Candidates[0].FinishReason),
		Latency:      time.Since(start),
	}
	if u := resp.UsageMetadata; u != nil {
		out.InputTokens = int(u.PromptTokenCount)
		out.OutputTokens = int(u.CandidatesTokenCount)
		out.TokensUsed = int(u.TotalTokenCount)
	}
	return out, nil
}

// Stream implements ProviderClient.Stream
func (p *GenAIProvider) Stream(ctx context.Context, req *GenerateRequest) (<-chan StreamChunk, error) {
	model, contents, cfg := p.request(req)
	chunks := make(chan StreamChunk, 10)

	go func() {
		defer close(chunks)

		var full strings.Builder
		tokens := 0
		for resp, err := range p.client.Models.GenerateContentStream(ctx, model, contents, cfg) {
			if err != nil {
				select {
				case chunks <- StreamChunk{Error: fmt.Errorf("GenAI stream failed: %w", err), Done: true}:
				case <-ctx.Done():
				}
				return
			}
			delta := resp.Text()
			full.WriteString(delta)
			if resp.UsageMetadata != nil {
				tokens = int(resp.UsageMetadata.TotalTokenCount)
			}
			select {
			case chunks <- StreamChunk{Content: full.String(), Delta: delta, Timestamp: time.Now()}:
			case <-ctx.Done():
				return
			}
		}
		select {
		case chunks <- StreamChunk{Content: full.String(), Done: true, TokensUsed: tokens, Timestamp: time.Now()}:
		case <-ctx.Done():
		}
	}()

	return chunks, nil
}

// GetCapabilities returns provider capabilities
func (p *GenAIProvider) GetCapabilities() *ProviderCapabilities {
	return &ProviderCapabilities{
		SupportsStreaming: true,
		SupportsMultiTurn: true,
		MaxContextTokens:  1000000,
	}
}

// GetInfo returns provider metadata
func (p *GenAIProvider) GetInfo() *ProviderInfo {
	return &ProviderInfo{
		Name:        p.config.Name,
		Version:     p.config.Version,
		Type:        ProviderTypeSDK,
		Model:       p.model,
		Description: "Google GenAI SDK",
	}
}

// IsAvailable reports whether a client was created.
func (p *GenAIProvider) IsAvailable() bool {
	return p.client != nil
}

// Health sends a tiny generation request.
func (p *GenAIProvider) Health(ctx context.Context) error {
	_, err := p.Generate(ctx, &GenerateRequest{Prompt: "Hello", MaxTokens: 10, Temperature: 0.1})
	return err
}

// Close is a no-op; the SDK client holds no resources that need releasing.
func (p *GenAIProvider) Close() error {
	return nil
}
