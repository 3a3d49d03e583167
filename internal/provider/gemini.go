package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/felixgeelhaar/blitz/internal/errors"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "gemini-2.5-flash"
	// DefaultMaxTokens caps a generation when no limit is configured.
	DefaultMaxTokens = 8000
	// DefaultTemperature is used when no temperature is configured.
	DefaultTemperature = 0.7

	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
)

// GeminiProvider implements ProviderClient against the Gemini REST API.
type GeminiProvider struct {
	apiKey      string
	baseURL     string
	client      *http.Client
	config      *ProviderConfig
	model       string
	maxTokens   int
	temperature float64
}

// Gemini API request/response structures
type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate `json:"candidates"`
	UsageMetadata *geminiUsage      `json:"usageMetadata,omitempty"`
	ModelVersion  string            `json:"modelVersion,omitempty"`
	Error         *geminiError      `json:"error,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
	Index        int           `json:"index"`
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// NewGeminiProvider creates a Gemini REST provider. The API key must be
// present in config; it is never read from the environment here.
func NewGeminiProvider(config *ProviderConfig) (*GeminiProvider, error) {
	apiKey := config.stringValue("api_key")
	if apiKey == "" {
		return nil, errors.New(errors.ErrCodeProviderConfig, "api_key not found in provider config").
			WithSuggestion("Set GEMINI_API_KEY or provider.api_key in the blitz config")
	}

	baseURL := config.stringValue("base_url")
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
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

	return &GeminiProvider{
		apiKey:      apiKey,
		baseURL:     strings.TrimRight(baseURL, "/"),
		client:      &http.Client{Timeout: 120 * time.Second},
		config:      config,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
	}, nil
}

func (p *GeminiProvider) modelFor(req *GenerateRequest) string {
	if req.Config != nil {
		if model, ok := req.Config["model"].(string); ok && model != "" {
			return model
		}
	}
	return p.model
}

// Generate implements ProviderClient.Generate
func (p *GeminiProvider) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	startTime := time.Now()

	reqBody, err := json.Marshal(p.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	modelName := p.modelFor(req)
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.baseURL, modelName, p.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(errors.ErrCodeProviderTimeout, "gemini request cancelled", ctx.Err())
		}
		return nil, errors.Wrap(errors.ErrCodeProviderAPI, "send request", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, statusError(httpResp, respBody, modelName)
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(respBody, &geminiResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	if geminiResp.Error != nil {
		return nil, errors.New(errors.ErrCodeProviderAPI,
			fmt.Sprintf("gemini API error: %s (code: %d)", geminiResp.Error.Message, geminiResp.Error.Code))
	}

	return p.convertResponse(&geminiResp, time.Since(startTime), modelName)
}

// statusError maps an HTTP failure onto a coded provider error.
func statusError(resp *http.Response, body []byte, model string) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.NewProviderAuthError("gemini")
	case http.StatusTooManyRequests:
		return errors.NewProviderRateLimitError("gemini", resp.Header.Get("Retry-After"))
	case http.StatusNotFound:
		return errors.New(errors.ErrCodeProviderModelNotFound, fmt.Sprintf("model not found: %s", model))
	default:
		return errors.New(errors.ErrCodeProviderAPI,
			fmt.Sprintf("API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}
}

// Stream implements ProviderClient.Stream
func (p *GeminiProvider) Stream(ctx context.Context, req *GenerateRequest) (<-chan StreamChunk, error) {
	chunkChan := make(chan StreamChunk, 10)

	reqBody, err := json.Marshal(p.buildRequest(req))
	if err != nil {
		close(chunkChan)
		return chunkChan, fmt.Errorf("marshal request: %w", err)
	}

	modelName := p.modelFor(req)
	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?key=%s&alt=sse", p.baseURL, modelName, p.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		close(chunkChan)
		return chunkChan, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		close(chunkChan)
		return chunkChan, errors.Wrap(errors.ErrCodeProviderAPI, "send request", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(httpResp.Body)
		httpResp.Body.Close()
		close(chunkChan)
		return chunkChan, statusError(httpResp, body, modelName)
	}

	go func() {
		defer close(chunkChan)
		defer httpResp.Body.Close()

		scanner := bufio.NewScanner(httpResp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		var full strings.Builder
		var lastUsage *geminiUsage

		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")
			if data == "" {
				continue
			}

			var geminiResp geminiResponse
			if err := json.Unmarshal([]byte(data), &geminiResp); err != nil {
				chunkChan <- StreamChunk{Error: fmt.Errorf("parse chunk: %w", err), Done: true}
				return
			}
			if geminiResp.Error != nil {
				chunkChan <- StreamChunk{Error: fmt.Errorf("gemini API error: %s", geminiResp.Error.Message), Done: true}
				return
			}
			if geminiResp.UsageMetadata != nil {
				lastUsage = geminiResp.UsageMetadata
			}
			if len(geminiResp.Candidates) == 0 {
				continue
			}

			candidate := geminiResp.Candidates[0]
			delta := joinParts(candidate.Content.Parts)
			full.WriteString(delta)

			chunk := StreamChunk{
				Content:   full.String(),
				Delta:     delta,
				Done:      candidate.FinishReason != "",
				Timestamp: time.Now(),
			}
			if chunk.Done && lastUsage != nil {
				chunk.TokensUsed = lastUsage.TotalTokenCount
			}

			select {
			case chunkChan <- chunk:
			case <-ctx.Done():
				return
			}
			if chunk.Done {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			chunkChan <- StreamChunk{Error: fmt.Errorf("stream read error: %w", err), Done: true}
		}
	}()

	return chunkChan, nil
}

// buildRequest converts our GenerateRequest to Gemini format
func (p *GeminiProvider) buildRequest(req *GenerateRequest) *geminiRequest {
	geminiReq := &geminiRequest{
		Contents: []geminiContent{},
	}

	if req.SystemPrompt != "" {
		geminiReq.SystemInstruction = &geminiContent{
			Parts: []geminiPart{{Text: req.SystemPrompt}},
		}
	}

	for _, msg := range req.Context {
		geminiReq.Contents = append(geminiReq.Contents, geminiContent{
			Role:  geminiRole(msg.Role),
			Parts: []geminiPart{{Text: msg.Content}},
		})
	}

	if req.Prompt != "" || len(geminiReq.Contents) == 0 {
		geminiReq.Contents = append(geminiReq.Contents, geminiContent{
			Role:  "user",
			Parts: []geminiPart{{Text: req.Prompt}},
		})
	}

	genConfig := &geminiGenerationConfig{MaxOutputTokens: p.maxTokens}
	if req.MaxTokens > 0 {
		genConfig.MaxOutputTokens = req.MaxTokens
	}

	temp := p.temperature
	if req.Temperature > 0 {
		temp = req.Temperature
	}
	genConfig.Temperature = &temp

	if req.TopP > 0 {
		topP := req.TopP
		genConfig.TopP = &topP
	}

	geminiReq.GenerationConfig = genConfig
	return geminiReq
}

// geminiRole maps conversation roles; Gemini calls the assistant "model".
func geminiRole(role string) string {
	if role == RoleAssistant {
		return "model"
	}
	return "user"
}

func joinParts(parts []geminiPart) string {
	if len(parts) == 1 {
		return parts[0].Text
	}
	var b strings.Builder
	for _, part := range parts {
		b.WriteString(part.Text)
	}
	return b.String()
}

// convertResponse converts Gemini response to our format
func (p *GeminiProvider) convertResponse(resp *geminiResponse, latency time.Duration, model string) (*GenerateResponse, error) {
	if len(resp.Candidates) == 0 {
		return nil, errors.NewEmptyResponseError()
	}

	candidate := resp.Candidates[0]
	result := &GenerateResponse{
		Content:      joinParts(candidate.Content.Parts),
		Model:        model,
		Provider:     "gemini",
		FinishReason: candidate.FinishReason,
		Latency:      latency,
	}

	if resp.UsageMetadata != nil {
		result.InputTokens = resp.UsageMetadata.PromptTokenCount
		result.OutputTokens = resp.UsageMetadata.CandidatesTokenCount
		result.TokensUsed = resp.UsageMetadata.TotalTokenCount
	}

	return result, nil
}

// GetCapabilities returns provider capabilities
func (p *GeminiProvider) GetCapabilities() *ProviderCapabilities {
	return &ProviderCapabilities{
		SupportsStreaming: true,
		SupportsMultiTurn: true,
		MaxContextTokens:  1000000,
	}
}

// GetInfo returns provider metadata
func (p *GeminiProvider) GetInfo() *ProviderInfo {
	return &ProviderInfo{
		Name:        p.config.Name,
		Version:     p.config.Version,
		Type:        ProviderTypeAPI,
		Model:       p.model,
		Description: "Google Gemini REST API",
	}
}

// IsAvailable checks if the provider is configured
func (p *GeminiProvider) IsAvailable() bool {
	return p.apiKey != ""
}

// Health sends a tiny generation request.
func (p *GeminiProvider) Health(ctx context.Context) error {
	_, err := p.Generate(ctx, &GenerateRequest{
		Prompt:      "Hello",
		MaxTokens:   10,
		Temperature: 0.1,
	})
	return err
}

// Close cleans up resources
func (p *GeminiProvider) Close() error {
	return nil
}
