package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	apperrors "github.com/kwizz/kwizz-go/internal/errors"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the server rejected the request
	ExitCommandError = 2 // bad flags, unreadable files, unreachable server
)

// ExitError carries the exit code a command failed with.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error. API errors exit with
// ExitFailure unless the server could not be reached.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if apperrors.HasCode(err, apperrors.ErrCodeExternal) || !apperrors.IsAppError(err) {
		return ExitCommandError
	}
	return ExitFailure
}

// OutputFormatter writes command results as text, JSON or YAML.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// CLIResponse is the envelope of structured output.
type CLIResponse struct {
	Status string    `json:"status"`
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success writes data. In text format render draws it instead.
func (f *OutputFormatter) Success(data any, render func(w io.Writer) error) error {
	switch f.Format {
	case "json", "yaml":
		return f.encode(CLIResponse{Status: "ok", Data: data})
	default:
		return render(f.Writer)
	}
}

// Error writes err, keeping the API error code when there is one.
func (f *OutputFormatter) Error(err error) error {
	cliErr := &CLIError{Code: "CLI_ERROR", Message: err.Error()}
	if appErr, ok := apperrors.AsAppError(err); ok {
		cliErr.Code = string(appErr.Code)
		cliErr.Message = appErr.Message
		cliErr.Details = appErr.Details
	}

	switch f.Format {
	case "json", "yaml":
		return f.encode(CLIResponse{Status: "error", Error: cliErr})
	default:
		_, werr := fmt.Fprintf(f.Writer, "Error: %s (%s)\n", cliErr.Message, cliErr.Code)
		return werr
	}
}

// encode writes one document. YAML goes through JSON first so field names
// match the json tags of the API types.
func (f *OutputFormatter) encode(v any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(v)
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(f.Writer)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}
