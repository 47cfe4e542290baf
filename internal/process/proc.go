package process

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// outputDrainTimeout bounds how long the exit of a process waits for
// its output copies to reach EOF.
const outputDrainTimeout = 250 * time.Millisecond

// Proc is a started child process.
type Proc struct {
	pid         int
	process     *os.Process
	termination chan struct{}
	exit        ExitEvent

	log *zap.Logger
}

var _ Handle = (*Proc)(nil)

// Start spawns the process described by config. The output of the
// process is copied to config.Stdout and config.Stderr in the
// background; the call does not wait for the process.
func Start(config StartConfig, log *zap.Logger) (*Proc, error) {
	if config.Cmd == "" {
		return nil, ErrEmptyCmd
	}

	cmd := exec.Command(config.Cmd, config.Args...)

	if config.Env != nil {
		env := os.Environ()
		for k, v := range config.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		cmd.Env = env
	}

	if config.Cwd != "" {
		cmd.Dir = config.Cwd
	}

	// with *os.File outputs cmd.Wait returns when the child exits,
	// even while a descendant holds the write end of a pipe
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, err
	}

	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeAll(stdoutR, stdoutW)
		return nil, err
	}

	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	initCmd(cmd)

	err = cmd.Start()

	// the child has its own copies of the write ends
	closeAll(stdoutW, stderrW)

	if err != nil {
		closeAll(stdoutR, stderrR)
		return nil, err
	}

	log = log.Named("proc").With(zap.Int("pid", cmd.Process.Pid))

	p := &Proc{
		pid:         cmd.Process.Pid,
		process:     cmd.Process,
		termination: make(chan struct{}),
		log:         log,
	}

	var copyWg sync.WaitGroup
	copyWg.Add(2)
	go p.pipe(&copyWg, stdoutR, config.Stdout, "stdout")
	go p.pipe(&copyWg, stderrR, config.Stderr, "stderr")

	copied := make(chan struct{})
	go func() {
		copyWg.Wait()
		close(copied)
	}()

	go func() {
		exit := exitEvent(cmd.Wait())

		// give the copies a moment to pick up what the child wrote
		// last, unless a descendant keeps the pipes open
		select {
		case <-copied:
		case <-time.After(outputDrainTimeout):
			p.log.Debug("output still open after exit, copying in background")
		}

		p.exit = exit
		close(p.termination)
	}()

	return p, nil
}

func (p *Proc) pipe(wg *sync.WaitGroup, r io.ReadCloser, w io.Writer, name string) {
	defer wg.Done()
	defer r.Close()

	if w == nil {
		w = io.Discard
	}

	if _, err := io.Copy(w, r); err != nil {
		p.log.Debug("output copy ended", zap.String("stream", name), zap.Error(err))
	}
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}

// Pid returns the process id.
func (p *Proc) Pid() int {
	return p.pid
}

// Done is closed once the process has exited.
func (p *Proc) Done() <-chan struct{} {
	return p.termination
}

// Wait blocks until the process exits and returns how it exited.
func (p *Proc) Wait() ExitEvent {
	<-p.termination
	return p.exit
}

func (p *Proc) Terminate(timeout time.Duration) error {
	// terminate should report success if the process
	// terminated by the time the request arrives.
	select {
	case <-p.termination:
		p.log.Debug("process already terminated")
		return nil
	default:
		// continue
	}

	if err := p.signal(false); err != nil {
		return err
	}

	return p.waitForTermination(timeout)
}

func (p *Proc) Kill(timeout time.Duration) error {
	select {
	case <-p.termination:
		p.log.Debug("process already terminated")
		return nil
	default:
		// continue
	}

	if err := p.signal(true); err != nil {
		return err
	}

	return p.waitForTermination(timeout)
}

func (p *Proc) waitForTermination(timeout time.Duration) error {
	// if timeout is < 0, don't wait for the process to exit
	if timeout < 0 {
		return nil
	}

	// if timeout is 0, wait indefinitely
	if timeout == 0 {
		<-p.termination
		return nil
	}

	select {
	case <-p.termination:
		return nil
	case <-time.After(timeout):
		return ErrKillTimeout
	}
}

func exitEvent(err error) ExitEvent {
	var cell int
	var exitStatus *int
	var signo *int

	if err == nil {
		// the process exited successfully, set the exit code to 0
		exitStatus = &cell
	} else if exitError, ok := err.(*exec.ExitError); ok {
		if status, ok := exitError.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				cell = int(status.Signal())
				signo = &cell
			} else {
				cell = status.ExitStatus()
				exitStatus = &cell
			}
		}
	}

	if signo == nil && exitStatus == nil {
		// could not determine the exit status or signal,
		// set exit status to 1
		cell = 1
		exitStatus = &cell
	}

	return ExitEvent{
		Code:   exitStatus,
		Signal: signo,
	}
}
