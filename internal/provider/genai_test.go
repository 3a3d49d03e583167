package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/felixgeelhaar/blitz/internal/errors"
)

func genaiConfig(baseURL string) *ProviderConfig {
	config := geminiConfig(baseURL)
	config.Name = "genai"
	config.Type = ProviderTypeSDK
	return config
}

func TestNewGenAIProvider_RequiresAPIKey(t *testing.T) {
	_, err := NewGenAIProvider(context.Background(), &ProviderConfig{Name: "genai", Config: map[string]interface{}{}})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeProviderConfig))
}

func TestGenAIProvider_Generate(t *testing.T) {
	server := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/v1beta/models/"+DefaultModel+":generateContent")
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		var req geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.SystemInstruction)
		assert.Equal(t, "be terse", req.SystemInstruction.Parts[0].Text)
		require.Len(t, req.Contents, 3)
		assert.Equal(t, "user", req.Contents[0].Role)
		assert.Equal(t, "model", req.Contents[1].Role)
		assert.Equal(t, "done", req.Contents[1].Parts[0].Text)
		assert.Equal(t, "user", req.Contents[2].Role)
		assert.Equal(t, "and now?", req.Contents[2].Parts[0].Text)
		require.NotNil(t, req.GenerationConfig)
		assert.Equal(t, DefaultMaxTokens, req.GenerationConfig.MaxOutputTokens)
		require.NotNil(t, req.GenerationConfig.Temperature)
		assert.InDelta(t, DefaultTemperature, *req.GenerationConfig.Temperature, 1e-6)

		writeGemini(w, "<boltArtifact id=\"a\"></boltArtifact>")
	}))

	p, err := NewGenAIProvider(context.Background(), genaiConfig(server.URL))
	require.NoError(t, err)
	assert.True(t, p.IsAvailable())

	resp, err := p.Generate(context.Background(), &GenerateRequest{
		SystemPrompt: "be terse",
		Context: []Message{
			{Role: RoleUser, Content: "build it"},
			{Role: RoleAssistant, Content: "done"},
		},
		Prompt: "and now?",
	})
	require.NoError(t, err)

	assert.Equal(t, "<boltArtifact id=\"a\"></boltArtifact>", resp.Content)
	assert.Equal(t, DefaultModel, resp.Model)
	assert.Equal(t, "genai", resp.Provider)
	assert.Equal(t, "STOP", resp.FinishReason)
	assert.Equal(t, 10, resp.InputTokens)
	assert.Equal(t, 20, resp.OutputTokens)
	assert.Equal(t, 30, resp.TokensUsed)
}

func TestGenAIProvider_Generate_ModelOverride(t *testing.T) {
	server := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "models/gemini-custom:generateContent")
		writeGemini(w, "ok")
	}))

	p, err := NewGenAIProvider(context.Background(), genaiConfig(server.URL))
	require.NoError(t, err)

	resp, err := p.Generate(context.Background(), &GenerateRequest{
		Prompt: "x",
		Config: map[string]interface{}{"model": "gemini-custom"},
	})
	require.NoError(t, err)
	assert.Equal(t, "gemini-custom", resp.Model)
}

func TestGenAIProvider_Generate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		code   errors.ErrorCode
	}{
		{"server error", http.StatusInternalServerError, `{"error":{"code":500,"message":"boom"}}`, errors.ErrCodeProviderAPI},
		{"no candidates", http.StatusOK, `{"candidates":[]}`, errors.ErrCodeEmptyResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))

			p, err := NewGenAIProvider(context.Background(), genaiConfig(server.URL))
			require.NoError(t, err)

			_, err = p.Generate(context.Background(), &GenerateRequest{Prompt: "x"})
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestGenAIProvider_Stream(t *testing.T) {
	server := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, ":streamGenerateContent")
		assert.Equal(t, "sse", r.URL.Query().Get("alt"))

		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"candidates":[{"content":{"role":"model","parts":[{"text":"Hello"}]}}]}`,
			`{"candidates":[{"content":{"role":"model","parts":[{"text":" world"}]},"finishReason":"STOP"}],"usageMetadata":{"totalTokenCount":7}}`,
		}
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
		}
	}))

	p, err := NewGenAIProvider(context.Background(), genaiConfig(server.URL))
	require.NoError(t, err)

	ch, err := p.Stream(context.Background(), &GenerateRequest{Prompt: "hi"})
	require.NoError(t, err)

	var got []StreamChunk
	for c := range ch {
		got = append(got, c)
	}
	require.Len(t, got, 3)
	assert.Equal(t, "Hello", got[0].Delta)
	assert.Equal(t, " world", got[1].Delta)
	assert.Equal(t, "Hello world", got[1].Content)
	assert.False(t, got[1].Done)
	assert.True(t, got[2].Done)
	assert.Equal(t, "Hello world", got[2].Content)
	assert.Equal(t, 7, got[2].TokensUsed)
	assert.NoError(t, got[2].Error)
}

func TestGenAIProvider_Stream_HTTPError(t *testing.T) {
	server := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"code":500,"message":"boom"}}`)
	}))

	p, err := NewGenAIProvider(context.Background(), genaiConfig(server.URL))
	require.NoError(t, err)

	ch, err := p.Stream(context.Background(), &GenerateRequest{Prompt: "hi"})
	require.NoError(t, err)

	var got []StreamChunk
	for c := range ch {
		got = append(got, c)
	}
	require.Len(t, got, 1)
	assert.True(t, got[0].Done)
	assert.Error(t, got[0].Error)
}

func TestGenAIProvider_StreamExitsWhenCancelledWithFullBuffer(t *testing.T) {
	const buffered = 10
	server := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for i := 0; i < buffered; i++ {
			fmt.Fprintf(w, "data: {\"candidates\":[{\"content\":{\"role\":\"model\",\"parts\":[{\"text\":\"%d\"}]}}]}\n\n", i)
		}
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))

	p, err := NewGenAIProvider(context.Background(), genaiConfig(server.URL))
	require.NoError(t, err)

	ignore := goleak.IgnoreCurrent()
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := p.Stream(ctx, &GenerateRequest{Prompt: "hi"})
	require.NoError(t, err)

	// Nobody reads, so the final chunk has nowhere to go once the body ends.
	require.Eventually(t, func() bool { return len(ch) == buffered }, 5*time.Second, 10*time.Millisecond)
	cancel()

	goleak.VerifyNone(t, ignore)
}

func TestGenAIProviderInfo(t *testing.T) {
	p, err := NewGenAIProvider(context.Background(), genaiConfig("http://127.0.0.1:1"))
	require.NoError(t, err)

	info := p.GetInfo()
	assert.Equal(t, ProviderTypeSDK, info.Type)
	assert.Equal(t, DefaultModel, info.Model)
	assert.True(t, p.GetCapabilities().SupportsStreaming)
	assert.NoError(t, p.Close())
}
