package provider

import "time"

// Conversation roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// GenerateRequest contains all parameters for generating a response
type GenerateRequest struct {
	// Prompt is the final user turn
	Prompt string `json:"prompt"`

	// SystemPrompt sets the system-level instructions
	SystemPrompt string `json:"system_prompt,omitempty"`

	// MaxTokens limits the response length; 0 uses the provider default
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness; 0 uses the provider default
	Temperature float64 `json:"temperature,omitempty"`

	TopP float64 `json:"top_p,omitempty"`

	// Context holds the earlier turns of a multi-turn conversation
	Context []Message `json:"context,omitempty"`

	// Config contains per-request overrides such as {"model": "..."}
	Config map[string]interface{} `json:"config,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// GenerateResponse contains the model's response
type GenerateResponse struct {
	Content      string        `json:"content"`
	TokensUsed   int           `json:"tokens_used"`
	InputTokens  int           `json:"input_tokens,omitempty"`
	OutputTokens int           `json:"output_tokens,omitempty"`
	Model        string        `json:"model"`
	Latency      time.Duration `json:"latency"`

	// FinishReason explains why generation stopped, e.g. "STOP" or "MAX_TOKENS"
	FinishReason string `json:"finish_reason"`

	Provider string `json:"provider"`
}

// Message represents a single message in a conversation
type Message struct {
	// Role is "user", "assistant" or "system"
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ProviderConfig represents one entry of providers.yaml
type ProviderConfig struct {
	// Name selects the backend: "gemini" (REST) or "genai" (SDK)
	Name string `yaml:"name" json:"name"`

	Type ProviderType `yaml:"type" json:"type"`

	Enabled bool `yaml:"enabled" json:"enabled"`

	// Config contains backend settings: api_key, base_url, model, max_tokens, temperature
	Config map[string]interface{} `yaml:"config" json:"config"`

	Version string `yaml:"version,omitempty" json:"version,omitempty"`
}

func (c *ProviderConfig) stringValue(key string) string {
	if c == nil || c.Config == nil {
		return ""
	}
	s, _ := c.Config[key].(string)
	return s
}

// intValue accepts the numeric types YAML and JSON decoding produce.
func (c *ProviderConfig) intValue(key string) int {
	if c == nil || c.Config == nil {
		return 0
	}
	switch v := c.Config[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func (c *ProviderConfig) floatValue(key string) float64 {
	if c == nil || c.Config == nil {
		return 0
	}
	switch v := c.Config[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}
