package supervisor

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/jurassik/jurassik/internal/process"
	"github.com/jurassik/jurassik/internal/sink"
)

// SinkProvider hands out one sink per destination.
type SinkProvider interface {
	Get(sink.Destination) *sink.Sink
	Shutdown() error
}

// Runtime holds the state shared by all supervise chains of a run.
type Runtime struct {
	// Sinks resolves destinations to sinks
	Sinks SinkProvider

	// Processes is the set of live children
	Processes *process.Registry

	// BaseDir is the directory relative working directories resolve against
	BaseDir string
}

type RuntimeParams struct {
	// Tee mirrors file output to the console
	Tee bool

	// BaseDir defaults to the current working directory
	BaseDir string

	// Stdout and Stderr are the console streams, default os.Stdout and os.Stderr
	Stdout io.Writer
	Stderr io.Writer

	Log *zap.Logger
}

func NewRuntime(params RuntimeParams) (*Runtime, error) {
	baseDir := params.BaseDir
	if baseDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		baseDir = wd
	}

	sinks := sink.NewRegistry(sink.Options{
		Tee:    params.Tee,
		Stdout: params.Stdout,
		Stderr: params.Stderr,
		Log:    params.Log,
	})

	return &Runtime{
		Sinks:     sinks,
		Processes: process.NewRegistry(),
		BaseDir:   baseDir,
	}, nil
}

// Teardown flushes and closes every sink and forgets all processes.
func (r *Runtime) Teardown() error {
	r.Processes.Clear()

	return r.Sinks.Shutdown()
}
