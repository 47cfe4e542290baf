package process

import "os/exec"

// signal kills the process. There are no process groups to signal
// on windows, so force has no effect.
func (p *Proc) signal(_ bool) error {
	p.log.Info("killing process")
	return p.process.Kill()
}

func initCmd(cmd *exec.Cmd) {
	// No-op on Windows.
}
