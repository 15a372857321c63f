// Package process runs the external tools the pipeline depends on and turns
// their outcome into typed errors. A command is either launched, exits with a
// code, or is killed by a signal; each case has a distinct error type so the
// diagnostic printed at abort time says which one happened.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// Command describes a single external process invocation.
type Command struct {
	Path string
	Args []string
	Dir  string
	// Unset lists environment variables removed from the inherited environment.
	Unset []string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// String renders the command line for diagnostics.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	for _, part := range append([]string{c.Path}, c.Args...) {
		if part == "" || strings.ContainsAny(part, " \t\n\"'") {
			part = strconv.Quote(part)
		}
		parts = append(parts, part)
	}
	line := strings.Join(parts, " ")
	if c.Dir != "" {
		line = fmt.Sprintf("(cd %s && %s)", c.Dir, line)
	}
	return line
}

// Run starts the command and waits for it to exit successfully. Output that
// is not redirected goes to the parent's stderr so that stdout stays free for
// build-system directives.
func Run(ctx context.Context, c Command) error {
	cmd := c.build(ctx)
	cmd.Stdin = c.Stdin
	cmd.Stdout = writerOr(c.Stdout, os.Stderr)
	cmd.Stderr = writerOr(c.Stderr, os.Stderr)

	if err := cmd.Start(); err != nil {
		return &LaunchError{Command: c.String(), Err: err}
	}
	return classify(c.String(), cmd.Wait())
}

// Output runs the command and returns what it wrote to stdout.
func Output(ctx context.Context, c Command) ([]byte, error) {
	var stdout bytes.Buffer
	c.Stdout = &stdout
	if err := Run(ctx, c); err != nil {
		return nil, err
	}
	return stdout.Bytes(), nil
}

// Running is a started command whose stdout and stderr are exposed as pipes.
// Both pipes must be read to EOF before Wait is called.
type Running struct {
	Stdout io.ReadCloser
	Stderr io.ReadCloser

	cmd     *exec.Cmd
	command string
}

// Start launches the command with stdout and stderr connected to pipes.
func Start(ctx context.Context, c Command) (*Running, error) {
	cmd := c.build(ctx)
	cmd.Stdin = c.Stdin

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdout.Close()
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdout.Close()
		stderr.Close()
		return nil, &LaunchError{Command: c.String(), Err: err}
	}

	return &Running{
		Stdout:  stdout,
		Stderr:  stderr,
		cmd:     cmd,
		command: c.String(),
	}, nil
}

// Wait waits for the command to exit and classifies its status.
func (r *Running) Wait() error {
	return classify(r.command, r.cmd.Wait())
}

// String returns the rendered command line.
func (r *Running) String() string {
	return r.command
}

// Pipe runs producer with its stdout connected directly to consumer's stdin
// through an OS pipe. Both exit statuses are checked and every failure is
// reported, so a consumer failure surfaces even when the producer succeeded.
func Pipe(ctx context.Context, producer, consumer Command) error {
	reader, writer, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("create pipe: %w", err)
	}

	producerCmd := producer.build(ctx)
	producerCmd.Stdin = producer.Stdin
	producerCmd.Stdout = writer
	producerCmd.Stderr = writerOr(producer.Stderr, os.Stderr)

	consumerCmd := consumer.build(ctx)
	consumerCmd.Stdin = reader
	consumerCmd.Stdout = writerOr(consumer.Stdout, os.Stderr)
	consumerCmd.Stderr = writerOr(consumer.Stderr, os.Stderr)

	if err := producerCmd.Start(); err != nil {
		reader.Close()
		writer.Close()
		return &LaunchError{Command: producer.String(), Err: err}
	}
	// The children hold their own copies of the pipe ends from here on.
	writer.Close()

	if err := consumerCmd.Start(); err != nil {
		reader.Close()
		_ = producerCmd.Wait()
		return &LaunchError{Command: consumer.String(), Err: err}
	}
	reader.Close()

	consumerErr := classify(consumer.String(), consumerCmd.Wait())
	producerErr := classify(producer.String(), producerCmd.Wait())
	return errors.Join(producerErr, consumerErr)
}

func (c Command) build(ctx context.Context) *exec.Cmd {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Unset) > 0 {
		cmd.Env = environWithout(os.Environ(), c.Unset)
	}
	return cmd
}

func classify(command string, err error) error {
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ProcessState != nil {
		return statusError(command, exitErr.ProcessState)
	}
	return &WaitError{Command: command, Err: err}
}

func statusError(command string, state *os.ProcessState) error {
	if state.Success() {
		return nil
	}
	if status, ok := state.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		name := unix.SignalName(status.Signal())
		if name == "" {
			name = status.Signal().String()
		}
		return &SignalError{Command: command, Signal: name}
	}
	return &ExitError{Command: command, Code: state.ExitCode()}
}

func environWithout(environ []string, keys []string) []string {
	filtered := make([]string, 0, len(environ))
	for _, entry := range environ {
		name, _, _ := strings.Cut(entry, "=")
		drop := false
		for _, key := range keys {
			if name == key {
				drop = true
				break
			}
		}
		if !drop {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}

func writerOr(w io.Writer, fallback io.Writer) io.Writer {
	if w != nil {
		return w
	}
	return fallback
}
