package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Artifact errors (ARTIFACT-001 to ARTIFACT-099)
	ErrCodeNoActionableOutput ErrorCode = "ARTIFACT-001"
	ErrCodeEmptyResponse      ErrorCode = "ARTIFACT-002"

	// Tree errors (TREE-001 to TREE-099)
	ErrCodeTreeMalformedPath ErrorCode = "TREE-001"
	ErrCodeTreeTypeConflict  ErrorCode = "TREE-002"

	// Template errors (TEMPLATE-001 to TEMPLATE-099)
	ErrCodeTemplatePromptRequired ErrorCode = "TEMPLATE-001"

	// Session errors (SESSION-001 to SESSION-099)
	ErrCodeSessionNotFound  ErrorCode = "SESSION-001"
	ErrCodeSessionNoBackend ErrorCode = "SESSION-002"

	// Provider errors (PROVIDER-001 to PROVIDER-099)
	ErrCodeProviderNotFound      ErrorCode = "PROVIDER-001"
	ErrCodeProviderConfig        ErrorCode = "PROVIDER-002"
	ErrCodeProviderAuth          ErrorCode = "PROVIDER-003"
	ErrCodeProviderAPI           ErrorCode = "PROVIDER-004"
	ErrCodeProviderRateLimit     ErrorCode = "PROVIDER-005"
	ErrCodeProviderTimeout       ErrorCode = "PROVIDER-006"
	ErrCodeProviderModelNotFound ErrorCode = "PROVIDER-007"

	// Sandbox errors (SANDBOX-001 to SANDBOX-099)
	ErrCodeSandboxMountFailed ErrorCode = "SANDBOX-001"
	ErrCodeSandboxRunFailed   ErrorCode = "SANDBOX-002"
	ErrCodeSandboxPathEscape  ErrorCode = "SANDBOX-003"

	// File I/O errors (IO-001 to IO-099)
	ErrCodeFileNotFound    ErrorCode = "IO-001"
	ErrCodeFileReadFailed  ErrorCode = "IO-002"
	ErrCodeFileWriteFailed ErrorCode = "IO-003"
	ErrCodeDirectoryFailed ErrorCode = "IO-004"
	ErrCodeFileUnmarshal   ErrorCode = "IO-005"
	ErrCodeFileMarshal     ErrorCode = "IO-006"
)

// BlitzError represents an enhanced error with code, suggestions, and documentation
type BlitzError struct {
	Code        ErrorCode
	Message     string
	Suggestions []string
	DocsURL     string
	Cause       error
}

// Error implements the error interface
func (e *BlitzError) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  • %s", suggestion))
		}
	}

	if e.DocsURL != "" {
		b.WriteString(fmt.Sprintf("\n\nDocumentation: %s", e.DocsURL))
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *BlitzError) Unwrap() error {
	return e.Cause
}

// New creates a new BlitzError
func New(code ErrorCode, message string) *BlitzError {
	return &BlitzError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new BlitzError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *BlitzError {
	return &BlitzError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithSuggestion adds a suggestion to the error
func (e *BlitzError) WithSuggestion(suggestion string) *BlitzError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *BlitzError) WithSuggestions(suggestions ...string) *BlitzError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// WithDocs adds a documentation URL to the error
func (e *BlitzError) WithDocs(url string) *BlitzError {
	e.DocsURL = url
	return e
}

// CodeOf returns the code of the first BlitzError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var be *BlitzError
	if stderrors.As(err, &be) {
		return be.Code
	}
	return ""
}

// HasCode reports whether err's chain contains a BlitzError with the given code.
func HasCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// Common error constructors for frequently used errors

// NewNoActionableOutputError reports a non-empty model response that produced no build steps.
func NewNoActionableOutputError(responseLen int) *BlitzError {
	return New(ErrCodeNoActionableOutput, fmt.Sprintf("generation produced no actionable output (%d bytes, 0 steps)", responseLen)).
		WithSuggestion("Retry the request; the model did not answer with a <boltArtifact> block").
		WithSuggestion("Run 'blitz parse' on the saved response to inspect parser warnings").
		WithDocs("https://github.com/felixgeelhaar/blitz#artifact-format")
}

// NewEmptyResponseError reports an empty model response.
func NewEmptyResponseError() *BlitzError {
	return New(ErrCodeEmptyResponse, "generation returned an empty response").
		WithSuggestion("Retry the request").
		WithSuggestion("Check the provider quota and max_tokens setting")
}

// NewMalformedPathError reports a file step whose path cannot be placed in the tree.
func NewMalformedPathError(path, reason string) *BlitzError {
	return New(ErrCodeTreeMalformedPath, fmt.Sprintf("malformed step path %q: %s", path, reason))
}

// NewTypeConflictError reports a step that would turn a file into a folder or vice versa.
func NewTypeConflictError(path, existing string) *BlitzError {
	return New(ErrCodeTreeTypeConflict, fmt.Sprintf("path %q already exists as a %s", path, existing)).
		WithSuggestion("Deleting or renaming nodes is not supported; ask the model for a different path")
}

// NewSessionNotFoundError creates a session not found error
func NewSessionNotFoundError(id string) *BlitzError {
	return New(ErrCodeSessionNotFound, fmt.Sprintf("session not found: %s", id)).
		WithSuggestion("Create a session with POST /sessions first")
}

// NewProviderAuthError creates a provider authentication error
func NewProviderAuthError(provider string) *BlitzError {
	return New(ErrCodeProviderAuth, fmt.Sprintf("authentication failed for provider: %s", provider)).
		WithSuggestion(fmt.Sprintf("Set the %s_API_KEY environment variable", strings.ToUpper(provider))).
		WithSuggestion("Check if your API key is valid and not expired").
		WithDocs("https://github.com/felixgeelhaar/blitz#provider-configuration")
}

// NewProviderRateLimitError creates a rate limit error
func NewProviderRateLimitError(provider string, retryAfter string) *BlitzError {
	msg := fmt.Sprintf("rate limit exceeded for provider: %s", provider)
	if retryAfter != "" {
		msg += fmt.Sprintf(" (retry after: %s)", retryAfter)
	}

	return New(ErrCodeProviderRateLimit, msg).
		WithSuggestion("Wait before retrying the request").
		WithSuggestion("Use a different provider if available")
}

// NewSandboxPathEscapeError reports a mount entry name that would leave the sandbox root.
func NewSandboxPathEscapeError(name string) *BlitzError {
	return New(ErrCodeSandboxPathEscape, fmt.Sprintf("mount entry escapes sandbox root: %s", name))
}

// NewFileNotFoundError creates a file not found error
func NewFileNotFoundError(path string) *BlitzError {
	return New(ErrCodeFileNotFound, fmt.Sprintf("file not found: %s", path)).
		WithSuggestion("Check if the file path is correct").
		WithSuggestion("Verify the file exists and you have read permissions")
}

// NewFileUnmarshalError creates an unmarshal error
func NewFileUnmarshalError(path string, format string, cause error) *BlitzError {
	return Wrap(ErrCodeFileUnmarshal, fmt.Sprintf("failed to parse %s file: %s", format, path), cause).
		WithSuggestion("Check the file syntax and format").
		WithSuggestion(fmt.Sprintf("Ensure the file is valid %s", format))
}
