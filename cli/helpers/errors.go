package helpers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Error codes reported by the CLI.
const (
	CodeConfig      = "CONFIG_ERROR"
	CodeInput       = "INVALID_INPUT"
	CodeClipboard   = "CLIPBOARD_ERROR"
	CodeWindow      = "WINDOW_ERROR"
	CodeAllFailed   = "ALL_DROPS_FAILED"
	CodeExport      = "EXPORT_ERROR"
	CodeCanceled    = "OPERATION_CANCELED"
	CodeUnsupported = "UNSUPPORTED_FORMAT"
)

// CliError represents a CLI-specific error with enhanced context
type CliError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   string         `json:"details,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	cause     error
}

func (e *CliError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CliError) Unwrap() error {
	return e.cause
}

// NewCliError creates a new CLI error with context
func NewCliError(code, message string, details ...string) *CliError {
	err := &CliError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Context:   make(map[string]any),
	}
	if len(details) > 0 {
		err.Details = details[0]
	}
	return err
}

// WrapCliError builds a CliError whose details come from cause.
func WrapCliError(code, message string, cause error) *CliError {
	err := NewCliError(code, message)
	if cause != nil {
		err.Details = cause.Error()
		err.cause = cause
	}
	return err
}

// WithContext adds context to the error
func (e *CliError) WithContext(key string, value any) *CliError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// Categorize converts well-known errors to CliErrors. Other errors are
// returned unchanged.
func Categorize(err error) error {
	var cliErr *CliError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &cliErr):
		return cliErr
	case errors.Is(err, context.Canceled):
		return WrapCliError(CodeCanceled, "Operation was canceled by user", err)
	default:
		return err
	}
}

// FormatError formats errors based on output mode
func FormatError(err error, mode Mode, color bool) string {
	if err == nil {
		return ""
	}
	if mode == ModeJSON {
		return formatErrorJSON(err)
	}
	message, details := extractErrorInfo(err)
	if !color {
		if details != "" {
			return fmt.Sprintf("Error: %s\nDetails: %s", message, details)
		}
		return "Error: " + message
	}
	result := errorStyle.Render("✗ " + message)
	if details != "" {
		result += "\n" + detailStyle.Render("Details: "+details)
	}
	return result
}

func formatErrorJSON(err error) string {
	message, details := extractErrorInfo(err)
	out, mErr := json.MarshalIndent(map[string]any{
		"error":   message,
		"details": details,
	}, "", "  ")
	if mErr != nil {
		return `{"error": "JSON marshaling failed", "details": ""}`
	}
	return string(out)
}

func extractErrorInfo(err error) (message, details string) {
	var cliErr *CliError
	if errors.As(err, &cliErr) {
		return cliErr.Message, cliErr.Details
	}
	return err.Error(), ""
}

// OutputError writes an error to w in the appropriate format
func OutputError(w io.Writer, err error, mode Mode, color bool) {
	if err == nil {
		return
	}
	fmt.Fprintln(w, FormatError(err, mode, color))
}

var (
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	detailStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Italic(true)
)
