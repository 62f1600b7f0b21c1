// Package executor runs external commands under privilege escalation.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// NoStatus is the exit code recorded when the command never produced one.
const NoStatus = -1

// Executor runs a command with elevated privileges.
type Executor interface {
	RunPrivileged(ctx context.Context, command string, args ...string) error
}

// ExecError is returned when a privileged command could not be started or
// exited with a non-zero status.
type ExecError struct {
	Command  string
	Args     []string
	ExitCode int // NoStatus if the command never ran to completion
	Err      error
}

func (e *ExecError) Error() string {
	cmdline := strings.TrimSpace(e.Command + " " + strings.Join(e.Args, " "))
	if !e.HasStatus() {
		return fmt.Sprintf("command %q failed to start: %v", cmdline, e.Err)
	}
	return fmt.Sprintf("command %q failed with exit status %d", cmdline, e.ExitCode)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// HasStatus reports whether the command ran and exited with a status code.
func (e *ExecError) HasStatus() bool {
	return e.ExitCode != NoStatus
}

// SudoExecutor runs commands through a privilege escalation wrapper such as sudo,
// streaming their output to Stdout and Stderr.
type SudoExecutor struct {
	Wrapper string // empty runs the command directly
	Stdout  io.Writer
	Stderr  io.Writer
	logger  zerolog.Logger
}

// New creates an executor that escalates with wrapper and inherits the
// process's standard output streams.
func New(logger zerolog.Logger, wrapper string) *SudoExecutor {
	return &SudoExecutor{
		Wrapper: wrapper,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		logger:  logger,
	}
}

// RunPrivileged runs command with args and blocks until it exits.
func (e *SudoExecutor) RunPrivileged(ctx context.Context, command string, args ...string) error {
	name, argv := e.argv(command, args)

	e.logger.Debug().
		Str("command", name).
		Strs("args", argv).
		Msg("running privileged command")

	cmd := exec.CommandContext(ctx, name, argv...)
	cmd.Stdout = e.Stdout
	cmd.Stderr = e.Stderr

	if err := cmd.Run(); err != nil {
		execErr := &ExecError{
			Command:  command,
			Args:     args,
			ExitCode: NoStatus,
			Err:      err,
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
			execErr.ExitCode = exitErr.ExitCode()
		}
		return execErr
	}

	return nil
}

func (e *SudoExecutor) argv(command string, args []string) (string, []string) {
	if e.Wrapper == "" {
		return command, args
	}
	return e.Wrapper, append([]string{command}, args...)
}
