// Package bridgetest provides in-memory workers for exercising the supervisor without
// spawning a real engine.
package bridgetest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"studio/internal/bridge"
)

// ExitStatus is the error a fake worker's Wait returns for a non-zero exit.
type ExitStatus int

func (e ExitStatus) Error() string { return fmt.Sprintf("exit status %d", int(e)) }
func (e ExitStatus) ExitCode() int { return int(e) }

// Worker is a fake process backed by pipes. Commands written to its stdin are collected
// line by line; Emit and Diagnose play the worker's side of stdout and stderr.
type Worker struct {
	pid int

	stdinR  *io.PipeReader
	stdinW  *io.PipeWriter
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter
	stderrR *io.PipeReader
	stderrW *io.PipeWriter

	commands chan []byte
	done     chan struct{}
	exitOnce sync.Once
	exitErr  error
	killed   atomic.Bool
}

func NewWorker(pid int) *Worker {
	w := &Worker{
		pid:      pid,
		commands: make(chan []byte, 64),
		done:     make(chan struct{}),
	}
	w.stdinR, w.stdinW = io.Pipe()
	w.stdoutR, w.stdoutW = io.Pipe()
	w.stderrR, w.stderrW = io.Pipe()
	go w.readCommands()
	return w
}

func (slf *Worker) readCommands() {
	reader := bufio.NewReader(slf.stdinR)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 && err == nil {
			slf.commands <- line
		}
		if err != nil {
			return
		}
	}
}

func (slf *Worker) Stdin() io.WriteCloser { return slf.stdinW }
func (slf *Worker) Stdout() io.Reader     { return slf.stdoutR }
func (slf *Worker) Stderr() io.Reader     { return slf.stderrR }
func (slf *Worker) Pid() int              { return slf.pid }

func (slf *Worker) Wait() error {
	<-slf.done
	return slf.exitErr
}

func (slf *Worker) Kill() error {
	slf.killed.Store(true)
	slf.Exit(ExitStatus(-1))
	return nil
}

// Killed reports whether the supervisor killed this worker.
func (slf *Worker) Killed() bool {
	return slf.killed.Load()
}

// Exit ends the fake process with err as its wait status; nil is a clean exit.
func (slf *Worker) Exit(err error) {
	slf.exitOnce.Do(func() {
		slf.exitErr = err
		_ = slf.stdinW.Close()
		_ = slf.stdinR.Close()
		_ = slf.stdoutW.Close()
		_ = slf.stderrW.Close()
		close(slf.done)
	})
}

// Emit writes each line to stdout followed by a newline.
func (slf *Worker) Emit(lines ...string) error {
	for _, line := range lines {
		if _, err := slf.stdoutW.Write([]byte(line + "\n")); err != nil {
			return err
		}
	}
	return nil
}

// EmitRaw writes data to stdout untouched, so tests control the chunk boundaries.
func (slf *Worker) EmitRaw(data []byte) error {
	_, err := slf.stdoutW.Write(data)
	return err
}

// Diagnose writes text to stderr.
func (slf *Worker) Diagnose(text string) error {
	_, err := slf.stderrW.Write([]byte(text))
	return err
}

// NextCommand waits for the next line written to stdin.
func (slf *Worker) NextCommand(timeout time.Duration) ([]byte, error) {
	select {
	case line := <-slf.commands:
		return line, nil
	case <-time.After(timeout):
		return nil, errors.New("no command received")
	}
}

// PendingCommands returns how many received lines have not been consumed yet.
func (slf *Worker) PendingCommands() int {
	return len(slf.commands)
}

// Done is closed once the fake process has exited.
func (slf *Worker) Done() <-chan struct{} {
	return slf.done
}

// Spawner hands out fake workers and remembers them in spawn order.
type Spawner struct {
	// Err, when set, makes Spawn fail.
	Err error

	mu      sync.Mutex
	workers []*Worker
}

func (slf *Spawner) Spawn() (bridge.Worker, error) {
	slf.mu.Lock()
	defer slf.mu.Unlock()
	if slf.Err != nil {
		return nil, slf.Err
	}
	w := NewWorker(1000 + len(slf.workers))
	slf.workers = append(slf.workers, w)
	return w, nil
}

func (slf *Spawner) Workers() []*Worker {
	slf.mu.Lock()
	defer slf.mu.Unlock()
	return append([]*Worker(nil), slf.workers...)
}

// Last returns the most recently spawned worker, or nil.
func (slf *Spawner) Last() *Worker {
	slf.mu.Lock()
	defer slf.mu.Unlock()
	if len(slf.workers) == 0 {
		return nil
	}
	return slf.workers[len(slf.workers)-1]
}
