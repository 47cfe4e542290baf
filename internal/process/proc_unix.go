//go:build aix || darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris

package process

import (
	"fmt"
	"os/exec"
	"syscall"

	"go.uber.org/zap"
)

// signal sends SIGTERM, or SIGKILL if force is set, to the
// process group of the process.
func (p *Proc) signal(force bool) error {
	signal := syscall.SIGTERM
	if force {
		signal = syscall.SIGKILL
	}

	p.log.Info("sending signal", zap.Stringer("signal", signal))

	var err error
	if pgid, pgErr := syscall.Getpgid(p.pid); pgErr == nil {
		// negative pid sends the signal to the whole process group
		err = syscall.Kill(-pgid, signal)
	} else {
		err = syscall.Kill(p.pid, signal)
	}

	if err != nil {
		return fmt.Errorf("failed to send %s to %d: %w", signal, p.pid, err)
	}

	return nil
}

func initCmd(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}
