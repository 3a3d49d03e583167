// Package exitcode maps command errors to process exit codes.
package exitcode

import (
	"context"
	stderrors "errors"
	"os"
	"strings"

	"github.com/felixgeelhaar/blitz/internal/errors"
)

// Exit codes for consistent error handling across the CLI
const (
	// Success indicates successful execution
	Success = 0

	// GeneralError indicates a general error condition
	GeneralError = 1

	// UsageError indicates invalid command usage (bad flags, missing args, etc.)
	UsageError = 2

	// NoActionableOutput indicates the model answered without any build step
	NoActionableOutput = 3

	// ProviderError indicates the generation provider failed
	ProviderError = 4

	// AuthError indicates a missing or rejected API key
	AuthError = 5

	// NetworkError indicates a network connectivity issue or timeout
	NetworkError = 6

	// SandboxError indicates files could not be mounted or a command could not be run
	SandboxError = 7

	// Interrupted indicates the user cancelled with Ctrl+C
	Interrupted = 130
)

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError exits with an appropriate code based on error type
func ExitWithError(err error) {
	Exit(DetermineExitCode(err))
}

// DetermineExitCode returns the exit code for err. Coded errors map by code;
// other errors fall back to matching their message.
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}
	if stderrors.Is(err, context.Canceled) {
		return Interrupted
	}

	switch code := errors.CodeOf(err); {
	case code == errors.ErrCodeNoActionableOutput, code == errors.ErrCodeEmptyResponse:
		return NoActionableOutput
	case code == errors.ErrCodeProviderAuth:
		return AuthError
	case code == errors.ErrCodeProviderTimeout:
		return NetworkError
	case code == errors.ErrCodeTemplatePromptRequired:
		return UsageError
	case strings.HasPrefix(string(code), "PROVIDER-"), code == errors.ErrCodeSessionNoBackend:
		return ProviderError
	case strings.HasPrefix(string(code), "SANDBOX-"):
		return SandboxError
	case code != "":
		return GeneralError
	}

	errMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errMsg, "unknown command"),
		strings.Contains(errMsg, "unknown flag"),
		strings.Contains(errMsg, "invalid argument"),
		strings.Contains(errMsg, "required flag"),
		strings.Contains(errMsg, "accepts") && strings.Contains(errMsg, "arg(s)"):
		return UsageError
	case strings.Contains(errMsg, "api key"), strings.Contains(errMsg, "unauthorized"):
		return AuthError
	case strings.Contains(errMsg, "connection refused"),
		strings.Contains(errMsg, "no such host"),
		strings.Contains(errMsg, "timeout"),
		strings.Contains(errMsg, "deadline exceeded"):
		return NetworkError
	}
	return GeneralError
}

// GetExitCodeDescription returns a human-readable description of an exit code
func GetExitCodeDescription(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case UsageError:
		return "Usage error (invalid flags or arguments)"
	case NoActionableOutput:
		return "No actionable output"
	case ProviderError:
		return "Provider error"
	case AuthError:
		return "Authentication error"
	case NetworkError:
		return "Network error"
	case SandboxError:
		return "Sandbox error"
	case Interrupted:
		return "Interrupted"
	default:
		return "Unknown error"
	}
}
