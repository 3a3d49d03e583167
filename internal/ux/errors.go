package ux

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/blitz/internal/errors"
)

// ErrorWithSuggestion wraps an error with a recovery suggestion.
type ErrorWithSuggestion struct {
	Err        error
	Suggestion string
}

// Error implements the error interface
func (e *ErrorWithSuggestion) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%v\n\nSuggestion: %s", e.Err, e.Suggestion)
	}
	return e.Err.Error()
}

// Unwrap provides access to the underlying error
func (e *ErrorWithSuggestion) Unwrap() error {
	return e.Err
}

// NewErrorWithSuggestion creates a new error with a suggestion
func NewErrorWithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}
	return &ErrorWithSuggestion{Err: err, Suggestion: suggestion}
}

// EnhanceError adds a suggestion to errors that do not carry one. Coded
// errors already hold their own suggestions and are returned unchanged.
func EnhanceError(err error) error {
	if err == nil {
		return nil
	}
	var be *errors.BlitzError
	if stderrors.As(err, &be) && len(be.Suggestions) > 0 {
		return err
	}
	var ews *ErrorWithSuggestion
	if stderrors.As(err, &ews) {
		return err
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "Cannot connect to the Docker daemon"),
		strings.Contains(msg, "docker") && strings.Contains(msg, "daemon"):
		return NewErrorWithSuggestion(err, "Start Docker, or use --sandbox local")
	case strings.Contains(msg, "permission denied") && strings.Contains(msg, "docker.sock"):
		return NewErrorWithSuggestion(err, "Add your user to the docker group, then log in again")
	case strings.Contains(msg, "permission denied"):
		return NewErrorWithSuggestion(err, "Check permissions on the sandbox root and ~/.blitz")
	case strings.Contains(msg, "API key"), strings.Contains(msg, "API_KEY"):
		return NewErrorWithSuggestion(err, "Set GEMINI_API_KEY or provider.api_key in ~/.blitz/config.yaml")
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "no such host"):
		return NewErrorWithSuggestion(err, "Check your network connection and the provider base URL")
	case strings.Contains(msg, "database is locked"):
		return NewErrorWithSuggestion(err, "Another blitz process holds the journal; use --journal to pick another file")
	}
	return err
}

// FormatError renders err for the terminal: the message, then any
// suggestions from a coded error or EnhanceError.
func FormatError(err error, s Styles) string {
	if err == nil {
		return ""
	}
	err = EnhanceError(err)

	var b strings.Builder
	var be *errors.BlitzError
	var ews *ErrorWithSuggestion
	switch {
	case stderrors.As(err, &be):
		b.WriteString(s.Error.Render("Error ["+string(be.Code)+"]: ") + be.Message)
		if be.Cause != nil {
			b.WriteString(s.Muted.Render("\n  cause: " + be.Cause.Error()))
		}
		for _, sug := range be.Suggestions {
			b.WriteString("\n  " + s.Key.Render("→ ") + sug)
		}
		if be.DocsURL != "" {
			b.WriteString("\n  " + s.Muted.Render("docs: "+be.DocsURL))
		}
	case stderrors.As(err, &ews):
		b.WriteString(s.Error.Render("Error: ") + ews.Err.Error())
		b.WriteString("\n  " + s.Key.Render("→ ") + ews.Suggestion)
	default:
		b.WriteString(s.Error.Render("Error: ") + err.Error())
	}
	return b.String()
}
