//go:build !unix

package runner

import (
	"os"
	"os/exec"
)

func isolate(cmd *exec.Cmd) {}

func terminate(p *os.Process) error { return p.Kill() }

func kill(p *os.Process) error { return p.Kill() }

func signalName(ps *os.ProcessState) string { return "" }
