package ux

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/felixgeelhaar/blitz/internal/errors"
)

func TestNewErrorWithSuggestion(t *testing.T) {
	assert.Nil(t, NewErrorWithSuggestion(nil, "x"))

	base := stderrors.New("something failed")
	err := NewErrorWithSuggestion(base, "try this fix")
	assert.Equal(t, "something failed\n\nSuggestion: try this fix", err.Error())
	assert.ErrorIs(t, err, base)

	assert.Equal(t, "something failed", NewErrorWithSuggestion(base, "").Error())
}

func TestEnhanceError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"docker daemon", stderrors.New("Cannot connect to the Docker daemon at unix:///var/run/docker.sock"), "Start Docker"},
		{"docker socket", stderrors.New("permission denied while trying to connect to docker.sock"), "docker group"},
		{"permission", stderrors.New("open /x: permission denied"), "sandbox root"},
		{"api key", stderrors.New("missing API key"), "GEMINI_API_KEY"},
		{"network", fmt.Errorf("dial: %w", stderrors.New("connection refused")), "network"},
		{"journal lock", stderrors.New("database is locked"), "--journal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EnhanceError(tt.err)
			var ews *ErrorWithSuggestion
			if assert.ErrorAs(t, got, &ews) {
				assert.Contains(t, ews.Suggestion, tt.want)
			}
		})
	}

	plain := stderrors.New("something else")
	assert.Same(t, plain, EnhanceError(plain))
	assert.Nil(t, EnhanceError(nil))

	coded := errors.NewProviderAuthError("gemini")
	assert.Same(t, coded, EnhanceError(coded))
}

func TestFormatError(t *testing.T) {
	s := NewStyles(false)

	coded := errors.Wrap(errors.ErrCodeFileReadFailed, "read response.xml", stderrors.New("is a directory")).
		WithSuggestion("Pass a file, not a directory")
	assert.Equal(t,
		"Error [IO-002]: read response.xml\n  cause: is a directory\n  → Pass a file, not a directory",
		FormatError(coded, s))

	assert.Equal(t,
		"Error: open x: permission denied\n  → Check permissions on the sandbox root and ~/.blitz",
		FormatError(stderrors.New("open x: permission denied"), s))

	assert.Equal(t, "Error: boom", FormatError(stderrors.New("boom"), s))
	assert.Empty(t, FormatError(nil, s))
}
