package engine

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"tandem/shm"
)

// Spawner starts and stops worker processes. The supervisor only ever deals
// with pids; tests substitute an in-process fake.
type Spawner interface {
	Spawn(dir, segment string) (pid int, err error)
	Kill(pid int) error
	Alive(pid int) bool
}

// ExecSpawner re-executes the current binary with the hidden "worker"
// subcommand, pointing it at a slot segment.
type ExecSpawner struct {
	// Args precede the worker flags; defaults to ["worker"].
	Args []string
}

func (e *ExecSpawner) Spawn(dir, segment string) (int, error) {
	self, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("locating own binary: %w", err)
	}
	args := e.Args
	if len(args) == 0 {
		args = []string{"worker"}
	}
	args = append(append([]string{}, args...), "--dir", dir, "--segment", segment)
	cmd := exec.Command(self, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), "TANDEM_WORKER="+segment)
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("spawning worker for %s: %w", segment, err)
	}
	pid := cmd.Process.Pid
	// Reap the child when it exits so it never lingers as a zombie.
	go func() { _ = cmd.Wait() }()
	return pid, nil
}

func (e *ExecSpawner) Kill(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := proc.Signal(syscall.SIGKILL); err != nil && err != os.ErrProcessDone {
		return fmt.Errorf("killing worker %s: %w", strconv.Itoa(pid), err)
	}
	return nil
}

func (e *ExecSpawner) Alive(pid int) bool { return shm.PidAlive(pid) }
