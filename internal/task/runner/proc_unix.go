//go:build unix

package runner

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// isolate puts the child in its own process group so terminal signals aimed at
// the orchestrator (Ctrl-C) are not delivered to in-flight runs. The group is
// signalled as a whole, so jobs that fork helpers do not leave them behind.
func isolate(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminate(p *os.Process) error { return signalGroup(p, syscall.SIGTERM) }

func kill(p *os.Process) error { return signalGroup(p, syscall.SIGKILL) }

// signalGroup signals the process group led by p. The leader's pid is the
// group id because of Setpgid.
func signalGroup(p *os.Process, sig syscall.Signal) error {
	err := syscall.Kill(-p.Pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return os.ErrProcessDone
	}
	return err
}

func signalName(ps *os.ProcessState) string {
	ws, ok := ps.Sys().(syscall.WaitStatus)
	if !ok || !ws.Signaled() {
		return ""
	}
	return ws.Signal().String()
}
