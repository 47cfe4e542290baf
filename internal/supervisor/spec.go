package supervisor

import (
	"errors"
	"fmt"
	"time"
)

// DefaultRestartDelay is used when a spec does not set a restart delay.
const DefaultRestartDelay = 1000

var ErrInvalidSpec = errors.New("invalid process definition")

// RestartPolicy decides what happens when a process exits with a non-zero code.
type RestartPolicy string

const (
	// RestartNone leaves the process stopped.
	RestartNone RestartPolicy = "none"

	// RestartAlways restarts the process after the restart delay.
	RestartAlways RestartPolicy = "restart"

	// RestartPanic terminates every process and ends the supervisor.
	RestartPanic RestartPolicy = "panic"

	// restartServerPanic is the legacy spelling of RestartPanic.
	restartServerPanic RestartPolicy = "serverPanic"
)

// Normalize maps the empty policy to RestartNone and legacy spellings
// to their current name.
func (p RestartPolicy) Normalize() RestartPolicy {
	switch p {
	case "":
		return RestartNone
	case restartServerPanic:
		return RestartPanic
	default:
		return p
	}
}

func (p RestartPolicy) Valid() bool {
	switch p.Normalize() {
	case RestartNone, RestartAlways, RestartPanic:
		return true
	default:
		return false
	}
}

// Spec describes one supervised program.
type Spec struct {
	// Name identifies the process in logs and banners
	Name string `conf:"name" json:"name"`

	// Description is free text, not used by the supervisor
	Description string `conf:"description" json:"description,omitempty"`

	// Command is the path or name of the binary to execute
	Command string `conf:"command" json:"command"`

	// Args is the list of arguments to pass to the command
	Args []string `conf:"args" json:"args,omitempty"`

	// Cwd is the working directory, relative to the base directory
	Cwd string `conf:"cwd" json:"cwd,omitempty"`

	// Env is a map of environment variables to set on top
	// of the supervisor's environment
	Env map[string]string `conf:"env" json:"env,omitempty"`

	// EnvFile is a dotenv file, relative to Cwd, loaded before Env
	EnvFile string `conf:"envFile" json:"envFile,omitempty"`

	// Stdout is the file receiving standard output, relative
	// to Cwd. Empty or "console" writes to the console.
	Stdout string `conf:"stdout" json:"stdout,omitempty"`

	// Stderr is the file receiving standard error, relative
	// to Cwd. Empty or "console" writes to the console.
	Stderr string `conf:"stderr" json:"stderr,omitempty"`

	// Restart is the policy applied on non-zero exit codes
	Restart RestartPolicy `conf:"restart" json:"restart,omitempty"`

	// MaxRestart is the number of restarts before the supervisor
	// panics. Zero restarts without limit.
	MaxRestart int `conf:"maxRestart" json:"maxRestart"`

	// RestartDelay is the wait before a restart, in milliseconds
	RestartDelay int `conf:"restartDelay" json:"restartDelay"`
}

// WithDefaults returns a copy of the spec with the restart
// policy normalized and the restart delay filled in.
func (s Spec) WithDefaults() Spec {
	s.Restart = s.Restart.Normalize()

	if s.RestartDelay == 0 {
		s.RestartDelay = DefaultRestartDelay
	}

	return s
}

// Delay returns the restart delay as a duration.
func (s Spec) Delay() time.Duration {
	return time.Duration(s.RestartDelay) * time.Millisecond
}

// Validate reports whether the spec can be supervised.
func (s Spec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidSpec)
	}

	if s.Command == "" {
		return fmt.Errorf("%w: %s: missing command", ErrInvalidSpec, s.Name)
	}

	if s.MaxRestart < 0 {
		return fmt.Errorf("%w: %s: maxRestart must not be negative", ErrInvalidSpec, s.Name)
	}

	if s.RestartDelay < 0 {
		return fmt.Errorf("%w: %s: restartDelay must not be negative", ErrInvalidSpec, s.Name)
	}

	if !s.Restart.Valid() {
		return fmt.Errorf("%w: %s: unknown restart policy %q", ErrInvalidSpec, s.Name, s.Restart)
	}

	return nil
}
