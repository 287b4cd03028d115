package bridge

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"studio/pkg"
)

// Worker is one running engine process with its three streams.
type Worker interface {
	Stdin() io.WriteCloser
	Stdout() io.Reader
	Stderr() io.Reader
	// Wait blocks until the process ends. It must only be called once both output streams
	// have been drained.
	Wait() error
	Kill() error
	Pid() int
}

// Spawner starts worker processes.
type Spawner interface {
	Spawn() (Worker, error)
}

// ExecSpawner spawns the engine as a child process.
type ExecSpawner struct {
	Command string
	Args    []string
	Dir     string
	Env     []string
}

func (slf ExecSpawner) Spawn() (Worker, error) {
	if slf.Command == "" {
		return nil, errors.New("worker command is empty")
	}
	cmd := pkg.NewCommand(slf.Dir, slf.Command, slf.Env, slf.Args...)
	// Reap the process even if a grandchild keeps the pipes open.
	cmd.WaitDelay = 2 * time.Second

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", slf.Command, err)
	}
	return &execWorker{cmd: cmd, stdin: stdin, stdout: stdout, stderr: stderr}, nil
}

type execWorker struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader
	stderr io.Reader
}

func (slf *execWorker) Stdin() io.WriteCloser { return slf.stdin }
func (slf *execWorker) Stdout() io.Reader     { return slf.stdout }
func (slf *execWorker) Stderr() io.Reader     { return slf.stderr }
func (slf *execWorker) Wait() error           { return slf.cmd.Wait() }
func (slf *execWorker) Pid() int              { return slf.cmd.Process.Pid }

func (slf *execWorker) Kill() error {
	_ = slf.stdin.Close()
	if err := slf.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// exitCode extracts the status of an abnormal exit, as reported by *exec.ExitError or any
// error with the same ExitCode method. ok is false when err does not carry a status.
func exitCode(err error) (code int, ok bool) {
	var coded interface{ ExitCode() int }
	if errors.As(err, &coded) {
		return coded.ExitCode(), true
	}
	return 0, false
}
