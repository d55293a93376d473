package executor

import (
	"errors"
	"fmt"
	"testing"
)

// TestExecutionError_Error verifies error message formatting
func TestExecutionError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ExecutionError
		want string
	}{
		{
			name: "with stderr output",
			err: &ExecutionError{
				URL:      "https://youtube.com/watch?v=abc",
				ExitCode: 1,
				Output:   "ERROR: Video unavailable",
			},
			want: "fetch failed for https://youtube.com/watch?v=abc (exit 1): ERROR: Video unavailable",
		},
		{
			name: "without output",
			err: &ExecutionError{
				URL:      "https://youtube.com/watch?v=abc",
				ExitCode: -1,
			},
			want: "fetch failed for https://youtube.com/watch?v=abc (exit -1)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExecutionError_Unwrap(t *testing.T) {
	underlying := errors.New("exec: not found")
	err := fmt.Errorf("wrapped: %w", &ExecutionError{URL: "u", ExitCode: -1, Err: underlying})

	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatal("errors.As failed to find *ExecutionError")
	}

	if !errors.Is(err, underlying) {
		t.Error("errors.Is failed to reach the underlying error")
	}
}
