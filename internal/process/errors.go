package process

import (
	"fmt"
)

// LaunchError is returned when a command could not be spawned at all.
type LaunchError struct {
	Command string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to spawn %s: %v", e.Command, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// ExitError is returned when a command exited normally with a nonzero code.
type ExitError struct {
	Command string
	Code    int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with status code %d", e.Command, e.Code)
}

// SignalError is returned when a command was terminated by a signal.
type SignalError struct {
	Command string
	Signal  string
}

func (e *SignalError) Error() string {
	return fmt.Sprintf("%s terminated by signal %s", e.Command, e.Signal)
}

// WaitError is returned when waiting on a started command failed for a
// reason other than its exit status.
type WaitError struct {
	Command string
	Err     error
}

func (e *WaitError) Error() string {
	return fmt.Sprintf("failed to wait for %s: %v", e.Command, e.Err)
}

func (e *WaitError) Unwrap() error {
	return e.Err
}
