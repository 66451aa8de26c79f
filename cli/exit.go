package cli

import "fmt"

// Exit codes reported by the okit binary.
const (
	ExitSuccess  = 0
	ExitFailure  = 1
	ExitDispatch = 2
)

// ExitError is an error that carries a specific process exit code.
// Command RunE functions return this to signal the desired code to main;
// tool-reported failures pass through unchanged.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

// Exitf creates an ExitError with the given code and formatted message.
func Exitf(code int, format string, args ...any) *ExitError {
	return &ExitError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}
