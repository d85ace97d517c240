package tapdevice

import "os/exec"

// Commander abstracts platform command execution so the Linux TAP adapter
// can be exercised without a real network namespace in tests, mirroring
// the teacher's exec_commander.Commander split.
type Commander interface {
	Run(name string, args ...string) error
}

// execCommander backs Commander with os/exec.
type execCommander struct{}

// NewExecCommander returns the real, OS-backed Commander.
func NewExecCommander() Commander {
	return execCommander{}
}

func (execCommander) Run(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}
