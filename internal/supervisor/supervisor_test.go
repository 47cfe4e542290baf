package supervisor_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jurassik/jurassik/internal/process"
	"github.com/jurassik/jurassik/internal/supervisor"
)

// --- fakes ---

type fakeProc struct {
	pid  int
	code int

	terminateErr error
	terminated   atomic.Int32
	killed       atomic.Int32
}

func (p *fakeProc) Pid() int { return p.pid }

func (p *fakeProc) Wait() process.ExitEvent {
	code := p.code
	return process.ExitEvent{Code: &code}
}

func (p *fakeProc) Terminate(time.Duration) error {
	p.terminated.Add(1)
	return p.terminateErr
}

func (p *fakeProc) Kill(time.Duration) error {
	p.killed.Add(1)
	return nil
}

// spawner returns a spawn function that hands out processes exiting
// with the given codes, repeating the last code forever.
func spawner(codes ...int) (supervisor.SpawnFn, *atomic.Int32) {
	var calls atomic.Int32

	fn := func(process.StartConfig, *zap.Logger) (supervisor.Proc, error) {
		n := int(calls.Add(1))
		code := codes[len(codes)-1]
		if n <= len(codes) {
			code = codes[n-1]
		}
		return &fakeProc{pid: 1000 + n, code: code}, nil
	}

	return fn, &calls
}

type exitRecorder struct {
	mu    sync.Mutex
	codes []int

	// fired is closed on the first exit
	fired chan struct{}
	once  sync.Once
}

func (e *exitRecorder) exit(code int) {
	e.mu.Lock()
	e.codes = append(e.codes, code)
	e.mu.Unlock()

	e.once.Do(func() { close(e.fired) })
}

func (e *exitRecorder) calls() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int(nil), e.codes...)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fixture struct {
	sup    *supervisor.Supervisor
	rt     *supervisor.Runtime
	exits  *exitRecorder
	stdout *syncBuffer
	stderr *syncBuffer
}

func newFixture(t *testing.T, spawn supervisor.SpawnFn) *fixture {
	t.Helper()

	stdout := &syncBuffer{}
	stderr := &syncBuffer{}

	rt, err := supervisor.NewRuntime(supervisor.RuntimeParams{
		BaseDir: t.TempDir(),
		Stdout:  stdout,
		Stderr:  stderr,
		Log:     zap.NewNop(),
	})
	require.NoError(t, err)

	exits := &exitRecorder{fired: make(chan struct{})}

	sup, err := supervisor.New(supervisor.Params{
		Runtime:          rt,
		Spawn:            spawn,
		Exit:             exits.exit,
		TerminateTimeout: time.Second,
		Log:              zap.NewNop(),
	})
	require.NoError(t, err)

	return &fixture{sup: sup, rt: rt, exits: exits, stdout: stdout, stderr: stderr}
}

// --- restart policy ---

func TestSupervisor_Supervise_ExitZeroEndsChain(t *testing.T) {
	spawn, calls := spawner(0)
	f := newFixture(t, spawn)

	err := f.sup.Supervise(context.Background(), supervisor.Spec{
		Name:       "web",
		Command:    "web",
		Restart:    supervisor.RestartAlways,
		MaxRestart: 3,
	})

	assert.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, f.exits.calls())
	assert.Equal(t, 0, f.rt.Processes.Len())
}

func TestSupervisor_Supervise_RestartBudgetExhaustedPanics(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5} {
		spawn, calls := spawner(1)
		f := newFixture(t, spawn)

		err := f.sup.Supervise(context.Background(), supervisor.Spec{
			Name:         "worker",
			Command:      "worker",
			Restart:      supervisor.RestartAlways,
			MaxRestart:   n,
			RestartDelay: 1,
		})

		assert.ErrorIs(t, err, supervisor.ErrPanic)
		assert.Equal(t, int32(n+1), calls.Load(), "max restart %d", n)
		assert.Equal(t, []int{1}, f.exits.calls())
	}
}

func TestSupervisor_Supervise_UnlimitedRestarts(t *testing.T) {
	spawn, calls := spawner(1, 1, 1, 1, 1, 0)
	f := newFixture(t, spawn)

	err := f.sup.Supervise(context.Background(), supervisor.Spec{
		Name:         "flaky",
		Command:      "flaky",
		Restart:      supervisor.RestartAlways,
		RestartDelay: 1,
	})

	assert.NoError(t, err)
	assert.Equal(t, int32(6), calls.Load())
	assert.Empty(t, f.exits.calls())
}

func TestSupervisor_Supervise_RestartWaitsForDelay(t *testing.T) {
	spawn, calls := spawner(1, 0)
	f := newFixture(t, spawn)

	start := time.Now()

	err := f.sup.Supervise(context.Background(), supervisor.Spec{
		Name:         "slow",
		Command:      "slow",
		Restart:      supervisor.RestartAlways,
		MaxRestart:   1,
		RestartDelay: 150,
	})

	assert.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestSupervisor_Supervise_PanicPolicy(t *testing.T) {
	spawn, calls := spawner(2)
	f := newFixture(t, spawn)

	err := f.sup.Supervise(context.Background(), supervisor.Spec{
		Name:    "server",
		Command: "server",
		Restart: "serverPanic",
	})

	assert.ErrorIs(t, err, supervisor.ErrPanic)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, []int{1}, f.exits.calls())
}

func TestSupervisor_Supervise_NoPolicyStops(t *testing.T) {
	spawn, calls := spawner(2)
	f := newFixture(t, spawn)

	err := f.sup.Supervise(context.Background(), supervisor.Spec{
		Name:    "job",
		Command: "job",
	})

	var exitErr *supervisor.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, f.exits.calls())
}

func TestSupervisor_Supervise_SpawnFailureDoesNotRestart(t *testing.T) {
	var calls atomic.Int32
	spawn := func(process.StartConfig, *zap.Logger) (supervisor.Proc, error) {
		calls.Add(1)
		return nil, os.ErrPermission
	}

	f := newFixture(t, spawn)

	err := f.sup.Supervise(context.Background(), supervisor.Spec{
		Name:         "denied",
		Command:      "denied",
		Restart:      supervisor.RestartAlways,
		MaxRestart:   3,
		RestartDelay: 1,
	})

	var spawnErr *supervisor.SpawnError
	require.ErrorAs(t, err, &spawnErr)
	assert.ErrorIs(t, err, os.ErrPermission)
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, f.exits.calls())
	assert.Equal(t, 0, f.rt.Processes.Len())
}

func TestSupervisor_Supervise_SpawnFailureWithPanicPolicyPanics(t *testing.T) {
	spawn := func(process.StartConfig, *zap.Logger) (supervisor.Proc, error) {
		return nil, errors.New("exec: not found")
	}

	f := newFixture(t, spawn)

	err := f.sup.Supervise(context.Background(), supervisor.Spec{
		Name:    "critical",
		Command: "critical",
		Restart: supervisor.RestartPanic,
	})

	assert.ErrorIs(t, err, supervisor.ErrPanic)
	assert.Equal(t, []int{1}, f.exits.calls())
}

func TestSupervisor_Supervise_InvalidSpec(t *testing.T) {
	spawn, calls := spawner(0)
	f := newFixture(t, spawn)

	err := f.sup.Supervise(context.Background(), supervisor.Spec{Name: "nameless"})

	assert.ErrorIs(t, err, supervisor.ErrInvalidSpec)
	assert.Equal(t, int32(0), calls.Load())
}

func TestSupervisor_Supervise_WritesBanners(t *testing.T) {
	spawn, _ := spawner(0)
	f := newFixture(t, spawn)

	err := f.sup.Supervise(context.Background(), supervisor.Spec{
		Name:       "web",
		Command:    "web",
		Restart:    supervisor.RestartAlways,
		MaxRestart: 3,
	})
	require.NoError(t, err)

	assert.Contains(t, f.stdout.String(), "Starting process: web (stdout) 3 retries left\n")
	assert.Contains(t, f.stdout.String(), "Process web exited with code: 0\n")
	assert.Contains(t, f.stderr.String(), "Starting process: web (stderr) 3 retries left\n")
}

func TestSupervisor_Supervise_DirectoryFailureEndsChain(t *testing.T) {
	spawn, calls := spawner(0)
	f := newFixture(t, spawn)

	blocker := filepath.Join(f.rt.BaseDir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	err := f.sup.Supervise(context.Background(), supervisor.Spec{
		Name:    "web",
		Command: "web",
		Stdout:  "blocker/logs/out.log",
		Restart: supervisor.RestartPanic,
	})

	assert.Error(t, err)
	assert.Equal(t, int32(0), calls.Load())
	assert.Empty(t, f.exits.calls())
}

// --- panic ---

func TestSupervisor_Panic_TerminatesAllEvenIfOneFails(t *testing.T) {
	spawn, _ := spawner(0)
	f := newFixture(t, spawn)

	procs := []*fakeProc{
		{pid: 1},
		{pid: 2, terminateErr: errors.New("operation not permitted")},
		{pid: 3},
	}
	for _, p := range procs {
		f.rt.Processes.Add(p)
	}

	err := f.sup.Panic("test")

	assert.ErrorIs(t, err, supervisor.ErrPanic)
	for _, p := range procs {
		assert.Equal(t, int32(1), p.terminated.Load(), "pid %d", p.pid)
	}
	assert.Equal(t, []int{1}, f.exits.calls())
}

func TestSupervisor_Panic_KillsOnTerminateTimeout(t *testing.T) {
	spawn, _ := spawner(0)
	f := newFixture(t, spawn)

	stubborn := &fakeProc{pid: 1, terminateErr: process.ErrKillTimeout}
	f.rt.Processes.Add(stubborn)

	_ = f.sup.Panic("test")

	assert.Equal(t, int32(1), stubborn.terminated.Load())
	assert.Equal(t, int32(1), stubborn.killed.Load())
}

func TestSupervisor_Panic_ConcurrentCallsTerminateOnce(t *testing.T) {
	spawn, _ := spawner(0)
	f := newFixture(t, spawn)

	procs := []*fakeProc{{pid: 1}, {pid: 2}, {pid: 3}}
	for _, p := range procs {
		f.rt.Processes.Add(p)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.ErrorIs(t, f.sup.Panic("concurrent"), supervisor.ErrPanic)
		}()
	}
	wg.Wait()

	for _, p := range procs {
		assert.Equal(t, int32(1), p.terminated.Load())
	}
	assert.Equal(t, []int{1}, f.exits.calls())
}

// --- run & shutdown ---

func TestSupervisor_Run_SkipsInvalidSpecs(t *testing.T) {
	spawn, calls := spawner(0)
	f := newFixture(t, spawn)

	err := f.sup.Run(context.Background(), []supervisor.Spec{
		{Name: "a", Command: "a"},
		{Name: "missing-command"},
		{Command: "missing-name"},
		{Name: "b", Command: "b"},
	})

	assert.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())

	statuses := f.sup.Statuses()
	require.Len(t, statuses, 2)
	for _, st := range statuses {
		assert.Equal(t, supervisor.StateExited, st.State)
		assert.Equal(t, 1, st.Attempts)
	}
}

func TestSupervisor_Run_CannotRunTwice(t *testing.T) {
	spawn, _ := spawner(0)
	f := newFixture(t, spawn)

	require.NoError(t, f.sup.Run(context.Background(), nil))
	assert.ErrorIs(t, f.sup.Run(context.Background(), nil), supervisor.ErrStopped)
}

func TestSupervisor_Shutdown_BeforeRun(t *testing.T) {
	spawn, _ := spawner(0)
	f := newFixture(t, spawn)

	require.NoError(t, f.sup.Shutdown(context.Background()))
	assert.ErrorIs(t, f.sup.Run(context.Background(), nil), supervisor.ErrStopped)
}

// --- processes spawned while stopping ---

func TestSupervisor_Panic_StopsProcessSpawnedDuringPanic(t *testing.T) {
	late := &fakeProc{pid: 2000}
	slowEntered := make(chan struct{})

	var f *fixture
	spawn := func(config process.StartConfig, _ *zap.Logger) (supervisor.Proc, error) {
		switch config.Cmd {
		case "slow":
			close(slowEntered)
			// the spawn completes only after the panic exit ran
			select {
			case <-f.exits.fired:
			case <-time.After(5 * time.Second):
			}
			return late, nil
		default:
			<-slowEntered
			return &fakeProc{pid: 2001, code: 1}, nil
		}
	}

	f = newFixture(t, spawn)

	err := f.sup.Run(context.Background(), []supervisor.Spec{
		{Name: "slow", Command: "slow", Restart: supervisor.RestartAlways},
		{Name: "crash", Command: "crash", Restart: supervisor.RestartPanic},
	})

	assert.ErrorIs(t, err, supervisor.ErrPanic)
	assert.Equal(t, []int{1}, f.exits.calls())
	assert.Equal(t, int32(1), late.terminated.Load())
	assert.False(t, f.rt.Processes.Contains(late))
}

func TestSupervisor_Shutdown_StopsProcessSpawnedDuringShutdown(t *testing.T) {
	late := &fakeProc{pid: 3000}
	entered := make(chan struct{})
	release := make(chan struct{})

	spawn := func(process.StartConfig, *zap.Logger) (supervisor.Proc, error) {
		close(entered)
		<-release
		return late, nil
	}

	f := newFixture(t, spawn)

	done := make(chan error, 1)
	go func() {
		done <- f.sup.Run(context.Background(), []supervisor.Spec{
			{Name: "late", Command: "late", Restart: supervisor.RestartPanic},
		})
	}()

	<-entered

	stopped := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		stopped <- f.sup.Shutdown(ctx)
	}()

	// wait until the registry no longer accepts processes
	sentinel := &fakeProc{pid: 3001}
	require.Eventually(t, func() bool {
		if f.rt.Processes.Add(sentinel) {
			f.rt.Processes.Remove(sentinel)
			return false
		}
		return true
	}, 5*time.Second, time.Millisecond)

	close(release)

	require.NoError(t, <-stopped)
	assert.NoError(t, <-done)

	assert.Equal(t, int32(1), late.terminated.Load())
	assert.False(t, f.rt.Processes.Contains(late))
	assert.Empty(t, f.exits.calls())

	statuses := f.sup.Statuses()
	require.Len(t, statuses, 1)
	assert.Equal(t, supervisor.StateStopped, statuses[0].State)
}
