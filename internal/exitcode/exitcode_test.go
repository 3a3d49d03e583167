package exitcode

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/felixgeelhaar/blitz/internal/errors"
)

func TestDetermineExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, Success},
		{"cancelled", fmt.Errorf("generate: %w", context.Canceled), Interrupted},
		{"no actionable output", errors.NewNoActionableOutputError(42), NoActionableOutput},
		{"empty response", errors.NewEmptyResponseError(), NoActionableOutput},
		{"auth", errors.NewProviderAuthError("gemini"), AuthError},
		{"rate limit", errors.NewProviderRateLimitError("gemini", "30s"), ProviderError},
		{"provider timeout", errors.New(errors.ErrCodeProviderTimeout, "slow"), NetworkError},
		{"no backend", errors.New(errors.ErrCodeSessionNoBackend, "none"), ProviderError},
		{"missing prompt", errors.New(errors.ErrCodeTemplatePromptRequired, "prompt is required"), UsageError},
		{"sandbox escape", errors.NewSandboxPathEscapeError(".."), SandboxError},
		{"wrapped sandbox", fmt.Errorf("build: %w", errors.New(errors.ErrCodeSandboxRunFailed, "sh")), SandboxError},
		{"other coded", errors.NewFileNotFoundError("x.xml"), GeneralError},
		{"unknown command", stderrors.New(`unknown command "bild" for "blitz"`), UsageError},
		{"arg count", stderrors.New("accepts 1 arg(s), received 0"), UsageError},
		{"api key text", stderrors.New("missing API key"), AuthError},
		{"network text", stderrors.New("dial tcp: connection refused"), NetworkError},
		{"deadline", context.DeadlineExceeded, NetworkError},
		{"plain", stderrors.New("boom"), GeneralError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetermineExitCode(tt.err); got != tt.want {
				t.Errorf("DetermineExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestGetExitCodeDescription(t *testing.T) {
	codes := []int{Success, GeneralError, UsageError, NoActionableOutput, ProviderError, AuthError, NetworkError, SandboxError, Interrupted}
	seen := map[string]bool{}
	for _, c := range codes {
		d := GetExitCodeDescription(c)
		if d == "Unknown error" {
			t.Errorf("code %d has no description", c)
		}
		if seen[d] {
			t.Errorf("description %q is used twice", d)
		}
		seen[d] = true
	}
	if GetExitCodeDescription(99) != "Unknown error" {
		t.Error("unexpected description for 99")
	}
}
