package executor

import (
	"errors"
	"fmt"
)

// ErrCancelled is returned by Fetch when the invocation was stopped by
// the caller's cancellation signal rather than by a tool failure.
var ErrCancelled = errors.New("download cancelled")

// ExecutionError represents a fetch-tool failure: a non-zero exit or a
// process that could not be started. Output carries the last line the
// tool wrote to stderr, verbatim, for the user-visible failed list.
type ExecutionError struct {
	URL      string // Source URL the tool was fetching
	ExitCode int    // Process exit code, -1 when the process never started
	Output   string // Last captured stderr line, if any
	Err      error  // Underlying error, if any
}

func (e *ExecutionError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("fetch failed for %s (exit %d): %s", e.URL, e.ExitCode, e.Output)
	}

	return fmt.Sprintf("fetch failed for %s (exit %d)", e.URL, e.ExitCode)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
