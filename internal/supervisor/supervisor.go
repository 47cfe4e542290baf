package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/xid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jurassik/jurassik/internal/process"
	"github.com/jurassik/jurassik/internal/sink"
)

// DefaultTerminateTimeout is how long a process gets to exit after SIGTERM.
const DefaultTerminateTimeout = 10 * time.Second

var (
	// ErrPanic is returned by supervise chains that ended in a panic.
	ErrPanic = errors.New("supervisor panic")

	ErrStopped = errors.New("supervisor stopped")
)

// Proc is a started child process.
type Proc interface {
	process.Handle
	Wait() process.ExitEvent
}

// SpawnFn starts a child process.
type SpawnFn func(process.StartConfig, *zap.Logger) (Proc, error)

// ExitFn ends the program with the given status code.
type ExitFn func(code int)

// SpawnError is returned when a process could not be started.
type SpawnError struct {
	Name string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to start process %s: %s", e.Name, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// ExitError is returned when a process without restart
// policy exits with a non-zero code.
type ExitError struct {
	Name string
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("process %s exited with code %d", e.Name, e.Code)
}

type Params struct {
	// Runtime is the state shared by all chains
	Runtime *Runtime

	// Spawn starts child processes. Defaults to process.Start.
	Spawn SpawnFn

	// Exit ends the program after a panic. Defaults to os.Exit.
	Exit ExitFn

	// TerminateTimeout is the grace period between SIGTERM and SIGKILL
	TerminateTimeout time.Duration

	Log *zap.Logger
}

// Supervisor runs supervise chains, one per process spec.
type Supervisor struct {
	rt               *Runtime
	spawn            SpawnFn
	exit             ExitFn
	terminateTimeout time.Duration

	panicOnce sync.Once
	panicked  atomic.Bool

	statuses statusTable

	runLock sync.Mutex
	cancel  context.CancelFunc
	started bool
	stopped bool
	done    chan struct{}

	log *zap.Logger
}

func New(params Params) (*Supervisor, error) {
	if params.Runtime == nil {
		return nil, errors.New("no runtime provided")
	}

	if params.Spawn == nil {
		params.Spawn = defaultSpawn
	}

	if params.Exit == nil {
		params.Exit = os.Exit
	}

	if params.TerminateTimeout <= 0 {
		params.TerminateTimeout = DefaultTerminateTimeout
	}

	if params.Log == nil {
		params.Log = zap.NewNop()
	}

	return &Supervisor{
		rt:               params.Runtime,
		spawn:            params.Spawn,
		exit:             params.Exit,
		terminateTimeout: params.TerminateTimeout,
		done:             make(chan struct{}),
		log:              params.Log.Named("supervisor"),
	}, nil
}

// Run supervises every valid spec concurrently and returns once all
// chains have ended. Invalid specs are logged and skipped.
func (s *Supervisor) Run(ctx context.Context, specs []Spec) error {
	s.runLock.Lock()
	if s.stopped || s.started {
		s.runLock.Unlock()
		return ErrStopped
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.started = true
	s.runLock.Unlock()

	defer close(s.done)
	defer cancel()

	var g errgroup.Group

	for _, spec := range specs {
		if err := spec.WithDefaults().Validate(); err != nil {
			s.log.Error("skipping process", zap.String("process", spec.Name), zap.Error(err))
			continue
		}

		spec := spec
		g.Go(func() error {
			err := s.Supervise(ctx, spec)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	s.log.Debug("all processes started")

	return g.Wait()
}

// Supervise runs the process described by spec until it exits
// successfully, fails without restart policy, or causes a panic.
func (s *Supervisor) Supervise(ctx context.Context, spec Spec) error {
	spec = spec.WithDefaults()

	log := s.log.With(zap.String("process", spec.Name))

	retriesLeft := spec.MaxRestart
	status := s.statuses.track(spec.Name, retriesLeft)

	if err := spec.Validate(); err != nil {
		log.Error("invalid process definition", zap.Error(err))
		status.set(StateFailed, err)
		return err
	}

	owned := map[*sink.Sink]struct{}{}
	defer s.release(owned, log)

	for !s.panicked.Load() {
		evt, err := s.attempt(spec, retriesLeft, status, owned, log)

		if ctx.Err() != nil {
			status.set(StateStopped, nil)
			return ctx.Err()
		}

		// a sibling panicked and terminated this process
		if s.panicked.Load() {
			return ErrPanic
		}

		if err != nil {
			var spawnErr *SpawnError
			if errors.As(err, &spawnErr) && spec.Restart == RestartPanic {
				log.Error("process failed to start, panicking", zap.Error(err))
				return s.Panic(spawnErr.Error())
			}

			log.Error("process failed", zap.Error(err))
			status.set(StateFailed, err)
			return err
		}

		code := evt.ExitCode()
		if code == 0 {
			log.Info("process exited")
			status.set(StateExited, nil)
			return nil
		}

		switch spec.Restart {
		case RestartAlways:
			if spec.MaxRestart > 0 && retriesLeft <= 0 {
				log.Error("process failed after maximum restart attempts",
					zap.Int("exit_code", code),
					zap.Int("max_restart", spec.MaxRestart),
				)
				return s.Panic(fmt.Sprintf("process %s failed after maximum restart attempts", spec.Name))
			}

			log.Info("restarting process",
				zap.Int("exit_code", code),
				zap.Duration("delay", spec.Delay()),
				zap.Int("retries_left", retriesLeft-1),
			)
			status.set(StateBackoff, nil)

			if err := sleep(ctx, spec.Delay()); err != nil {
				status.set(StateStopped, nil)
				return err
			}

			retriesLeft--

		case RestartPanic:
			log.Error("process caused a panic", zap.Int("exit_code", code))
			return s.Panic(fmt.Sprintf("process %s exited with code %d", spec.Name, code))

		default:
			log.Error("process exited with error code, not restarting", zap.Int("exit_code", code))
			err := &ExitError{Name: spec.Name, Code: code}
			status.set(StateFailed, err)
			return err
		}
	}

	return ErrPanic
}

// attempt runs the process once and waits for it to exit.
func (s *Supervisor) attempt(
	spec Spec,
	retriesLeft int,
	status *tracker,
	owned map[*sink.Sink]struct{},
	log *zap.Logger,
) (process.ExitEvent, error) {
	id := xid.New()
	log = log.With(zap.Stringer("attempt", id))

	status.starting(id.String(), retriesLeft)

	p, err := s.resolve(spec)
	if err != nil {
		return process.ExitEvent{}, fmt.Errorf("failed to prepare process %s: %w", spec.Name, err)
	}

	stdout := s.rt.Sinks.Get(p.stdout)
	stderr := s.rt.Sinks.Get(p.stderr)
	owned[stdout] = struct{}{}
	owned[stderr] = struct{}{}

	for _, sk := range []*sink.Sink{stdout, stderr} {
		if err := sk.EnsureLocation(); err != nil {
			return process.ExitEvent{}, fmt.Errorf("failed to prepare process %s: %w", spec.Name, err)
		}
	}

	log.Debug("starting process",
		zap.String("command", spec.Command),
		zap.Strings("args", spec.Args),
		zap.String("cwd", p.cwd),
		zap.Any("env", spec.Env),
		zap.Stringer("stdout", p.stdout),
		zap.Stringer("stderr", p.stderr),
	)

	retries := retriesText(spec, retriesLeft)
	stdout.Mark(fmt.Sprintf("Starting process: %s (stdout) %s", spec.Name, retries))
	stderr.Mark(fmt.Sprintf("Starting process: %s (stderr) %s", spec.Name, retries))

	proc, err := s.spawn(process.StartConfig{
		Cmd:    spec.Command,
		Cwd:    p.cwd,
		Args:   spec.Args,
		Env:    p.env,
		Stdout: stdout,
		Stderr: stderr,
	}, log)
	if err != nil {
		return process.ExitEvent{}, &SpawnError{Name: spec.Name, Err: err}
	}

	if !s.rt.Processes.Add(proc) {
		// a panic or shutdown already collected the live processes
		log.Warn("supervisor is stopping, terminating new process", zap.Int("pid", proc.Pid()))
		_ = s.stop(proc)
		return process.ExitEvent{}, ErrStopped
	}
	defer s.rt.Processes.Remove(proc)

	status.running(proc.Pid())
	log.Debug("process started", zap.Int("pid", proc.Pid()))

	evt := proc.Wait()

	msg := fmt.Sprintf("Process %s exited with code: %d", spec.Name, evt.ExitCode())
	log.Debug(msg)
	stdout.Mark(msg)

	status.exited(evt.ExitCode())

	return evt, nil
}

// release flushes and closes the sinks of a chain that ended.
func (s *Supervisor) release(owned map[*sink.Sink]struct{}, log *zap.Logger) {
	for sk := range owned {
		if err := sk.Sync(); err != nil {
			log.Warn("failed to flush output", zap.Stringer("destination", sk.Destination()), zap.Error(err))
		}
		if err := sk.Close(); err != nil {
			log.Warn("failed to close output", zap.Stringer("destination", sk.Destination()), zap.Error(err))
		}
	}
}

// Panic terminates every live process and ends the program with
// status 1. Concurrent calls terminate the processes only once.
// ErrPanic is returned only if the exit function returns.
func (s *Supervisor) Panic(reason string) error {
	s.panicOnce.Do(func() {
		s.panicked.Store(true)

		s.log.Error("panic, terminating all processes", zap.String("reason", reason))
		s.statuses.panicked()

		s.rt.Processes.Close()
		for _, h := range s.rt.Processes.Snapshot() {
			_ = s.stop(h)
		}

		// pending sink buffers are not drained
		s.exit(1)
	})

	return ErrPanic
}

// Shutdown stops all chains, terminates the live processes and tears
// down the runtime.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.runLock.Lock()
	s.stopped = true
	started := s.started
	if s.cancel != nil {
		s.cancel()
	}
	s.runLock.Unlock()

	s.rt.Processes.Close()

	var g errgroup.Group
	for _, h := range s.rt.Processes.Snapshot() {
		h := h
		g.Go(func() error {
			return s.stop(h)
		})
	}
	stopErr := g.Wait()

	if started {
		select {
		case <-s.done:
		case <-ctx.Done():
			s.log.Warn("shutdown timed out waiting for processes")
		}
	}

	if err := s.rt.Teardown(); err != nil {
		s.log.Error("failed to tear down runtime", zap.Error(err))
		return err
	}

	return stopErr
}

// Statuses returns the status of every supervised process.
func (s *Supervisor) Statuses() []Status {
	return s.statuses.snapshot()
}

// stop terminates h, killing it if it does not exit in time.
func (s *Supervisor) stop(h process.Handle) error {
	log := s.log.With(zap.Int("pid", h.Pid()))

	err := h.Terminate(s.terminateTimeout)
	if errors.Is(err, process.ErrKillTimeout) {
		log.Warn("process did not terminate in time, killing")
		err = h.Kill(s.terminateTimeout)
	}

	if err != nil {
		log.Error("failed to terminate process", zap.Error(err))
	}

	return err
}

func retriesText(spec Spec, retriesLeft int) string {
	if spec.Restart == RestartAlways && spec.MaxRestart == 0 {
		return "unlimited retries"
	}

	return fmt.Sprintf("%d retries left", retriesLeft)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func defaultSpawn(config process.StartConfig, log *zap.Logger) (Proc, error) {
	proc, err := process.Start(config, log)
	if err != nil {
		return nil, err
	}

	return proc, nil
}
