package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ideacrew/gluedb-sub000/internal/engine"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Batch or scenario failure, invalid config file
	ExitCommandError = 2 // Command error (unreadable input, database not found, etc.)
)

// Error codes used in JSON output. Runtime errors use their engine code.
const (
	ErrCodeGeneric    = "E000"
	ErrCodeBatchInput = "E101"
	ErrCodeConfig     = "E102"
	ErrCodeStore      = "E103"
	ErrCodeTestFailed = "E_TEST_FAILED"
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
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

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string      `json:"status"`          // "ok" or "error"
	Data   interface{} `json:"data,omitempty"`  // success payload
	Error  *CLIError   `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data interface{}) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}

	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details interface{}) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Report outputs a batch report. A non-nil runErr is printed after the
// chunks handled before the failure; rep may be nil when the batch was
// rejected before any chunk ran.
func (f *OutputFormatter) Report(rep *engine.Report, runErr error) error {
	if f.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: rep}
		if runErr != nil {
			resp.Status = "error"
			resp.Error = &CLIError{Code: errorCode(runErr), Message: runErr.Error()}
		}
		return f.encode(resp)
	}

	w := f.Writer
	if rep != nil {
		writeReportText(w, rep)
	}
	if runErr != nil {
		fmt.Fprintf(w, "Error [%s]: %s\n", errorCode(runErr), runErr.Error())
	}
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...interface{}) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

func (f *OutputFormatter) encode(resp CLIResponse) error {
	encoder := json.NewEncoder(f.Writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(resp)
}

// writeReportText renders a report for humans.
func writeReportText(w io.Writer, rep *engine.Report) {
	fmt.Fprintf(w, "Batch: %s\n", rep.BatchID)
	fmt.Fprintf(w, "Received: %d  Dropped: %d\n", rep.Received, rep.Dropped)
	if rep.WholeBatch != "" {
		fmt.Fprintf(w, "Whole batch: %s\n", rep.WholeBatch)
	}
	if len(rep.Order) > 0 {
		fmt.Fprintf(w, "Order: %s\n", strings.Join(rep.Order, ", "))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Chunks ===")
	if len(rep.Chunks) == 0 {
		fmt.Fprintln(w, "  (no chunks)")
	}
	for i, c := range rep.Chunks {
		action := c.Action
		if action == "" {
			action = "(unmatched)"
		}
		fmt.Fprintf(w, "  [%d] %s %v %s\n", i+1, action, c.HbxEnrollmentIDs, c.Outcome)
		if len(c.Documents) > 0 {
			fmt.Fprintf(w, "       documents: %s\n", strings.Join(c.Documents, ", "))
		}
		if len(c.Canceled) > 0 {
			fmt.Fprintf(w, "       canceled renewals: %s\n", strings.Join(c.Canceled, ", "))
		}
		for _, e := range c.Errors {
			fmt.Fprintf(w, "       error: %s\n", e)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Summary ===")
	for _, o := range []engine.Outcome{
		engine.OutcomePublished,
		engine.OutcomePersisted,
		engine.OutcomeRejected,
		engine.OutcomeUnmatched,
		engine.OutcomeFailed,
		engine.OutcomeClassified,
	} {
		if n := rep.Count(o); n > 0 {
			fmt.Fprintf(w, "  %-10s %d\n", o+":", n)
		}
	}
}

// errorCode maps an error to its JSON code.
func errorCode(err error) string {
	var re *engine.RuntimeError
	if errors.As(err, &re) {
		return string(re.Code)
	}
	return ErrCodeGeneric
}
