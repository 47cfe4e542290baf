package process

import (
	"errors"
	"io"
	"time"
)

var (
	ErrKillTimeout = errors.New("kill timeout")
	ErrEmptyCmd    = errors.New("empty command")
)

type StartConfig struct {
	// Cmd is the path or name of the binary to execute
	Cmd string

	// Cwd is the working directory in which
	// the binary should be executed
	Cwd string

	// Args is the list of arguments to pass to the command
	Args []string

	// Env is a map of environment variables set on top
	// of the supervisor's own environment
	Env map[string]string

	// Stdout receives the standard output of the process
	Stdout io.Writer

	// Stderr receives the standard error of the process
	Stderr io.Writer
}

// ExitEvent describes how a process terminated.
type ExitEvent struct {
	// Code is the exit code of the process
	Code *int

	// Signal is the signal that caused the process to exit
	Signal *int
}

// ExitCode returns the exit code, or -1 if the
// process was terminated by a signal.
func (e ExitEvent) ExitCode() int {
	if e.Code != nil {
		return *e.Code
	}

	return -1
}

// Success reports whether the process exited with code 0.
func (e ExitEvent) Success() bool {
	return e.Code != nil && *e.Code == 0
}

// Handle is a live child process that can be asked to stop.
type Handle interface {
	Pid() int

	// Terminate sends SIGTERM and waits up to timeout for the process to exit.
	Terminate(timeout time.Duration) error

	// Kill sends SIGKILL and waits up to timeout for the process to exit.
	Kill(timeout time.Duration) error
}
