package build

import "fmt"

// ErrorKind classifies pipeline failures that do not come from a child process.
type ErrorKind string

const (
	ConfigurationError ErrorKind = "configuration"
	IOError            ErrorKind = "io"
	IncompleteError    ErrorKind = "incomplete"
)

// A BuildError represents an error that occurred during the build process.
type BuildError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Error returns the error message.
func (e *BuildError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

func configError(format string, args ...any) error {
	return &BuildError{Kind: ConfigurationError, Message: fmt.Sprintf(format, args...)}
}
