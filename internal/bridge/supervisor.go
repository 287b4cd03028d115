package bridge

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"studio/internal/api/models"
	"studio/pkg/metrics"

	"github.com/rs/zerolog"
)

const readChunkSize = 32 * 1024

// Supervisor owns the worker process. It writes commands to the worker's stdin, turns its
// stdout lines into events and its stderr output into error events, and reports abnormal
// exits. Every event goes to the dispatch function, one at a time, in stream order.
//
// Events from an instance that was stopped are dropped, so once Stop or Start returns
// nothing more is heard from the previous process. Stop waits for an event already being
// dispatched to reach every subscriber.
type Supervisor struct {
	spawner  Spawner
	dispatch func(models.Event)
	logger   zerolog.Logger

	mu         sync.Mutex
	current    *instance
	generation uint64

	// dispatchMu serializes delivery across the stdout, stderr and exit goroutines.
	dispatchMu sync.Mutex
}

// instance is one spawned process and the goroutines bound to it.
type instance struct {
	generation uint64
	worker     Worker
	pid        int

	// killed is set by Stop before the process is signalled.
	killed atomic.Bool
	exited chan struct{}

	writeMu sync.Mutex
	closed  bool
}

func NewSupervisor(spawner Spawner, dispatch func(models.Event), logger zerolog.Logger) *Supervisor {
	return &Supervisor{
		spawner:  spawner,
		dispatch: dispatch,
		logger:   logger.With().Str("component", "supervisor").Logger(),
	}
}

// Start spawns a worker. A running worker is stopped first, so Start doubles as restart.
func (slf *Supervisor) Start() error {
	slf.mu.Lock()
	defer slf.mu.Unlock()

	if slf.current != nil {
		slf.stopLocked()
	}

	worker, err := slf.spawner.Spawn()
	if err != nil {
		slf.logger.Error().Err(err).Msg("Failed to spawn worker")
		return fmt.Errorf("spawn worker: %w", err)
	}

	slf.generation++
	inst := &instance{
		generation: slf.generation,
		worker:     worker,
		pid:        worker.Pid(),
		exited:     make(chan struct{}),
	}
	slf.current = inst
	metrics.WorkerStarts.Inc()
	slf.logger.Info().Int("pid", inst.pid).Uint64("generation", inst.generation).Msg("Worker started")

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		slf.readStdout(inst)
	}()
	go func() {
		defer readers.Done()
		slf.readStderr(inst)
	}()
	go slf.watchExit(inst, &readers)

	return nil
}

// Stop kills the running worker without waiting for it to acknowledge. It is a no-op when
// nothing is running.
func (slf *Supervisor) Stop() {
	slf.mu.Lock()
	defer slf.mu.Unlock()
	slf.stopLocked()
}

func (slf *Supervisor) stopLocked() {
	inst := slf.current
	if inst == nil {
		return
	}
	slf.current = nil

	inst.killed.Store(true)
	// Wait out a delivery that passed the killed check before the flag was set. Subscribers
	// must not call Stop or Start from inside dispatch.
	slf.dispatchMu.Lock()
	slf.dispatchMu.Unlock()

	// Kill closes stdin first, which also releases a writer blocked on a full pipe.
	if err := inst.worker.Kill(); err != nil {
		slf.logger.Warn().Err(err).Int("pid", inst.pid).Msg("Failed to kill worker")
	}
	inst.writeMu.Lock()
	inst.closed = true
	inst.writeMu.Unlock()

	slf.logger.Info().Int("pid", inst.pid).Uint64("generation", inst.generation).Msg("Worker stopped")
}

// Send writes cmd as one line on the worker's stdin. Only encoding failures are returned:
// when no worker is running or its stdin is not writable the command is dropped and logged.
func (slf *Supervisor) Send(cmd models.Command) error {
	line, err := cmd.Encode()
	if err != nil {
		return err
	}

	slf.mu.Lock()
	inst := slf.current
	slf.mu.Unlock()

	if inst == nil {
		slf.drop(cmd, errors.New("worker not running"))
		return nil
	}
	if err := inst.write(line); err != nil {
		slf.drop(cmd, err)
		return nil
	}

	metrics.CommandsSent.WithLabelValues(string(cmd.Tag)).Inc()
	slf.logger.Debug().Str("command", string(cmd.Tag)).Int("bytes", len(line)).Msg("Command sent")
	return nil
}

func (slf *Supervisor) drop(cmd models.Command, reason error) {
	metrics.CommandsDropped.WithLabelValues(string(cmd.Tag)).Inc()
	slf.logger.Warn().Err(reason).Str("command", string(cmd.Tag)).Msg("Command dropped")
}

// write holds the instance write lock for the whole line so concurrent senders never
// interleave partial lines.
func (slf *instance) write(line []byte) error {
	slf.writeMu.Lock()
	defer slf.writeMu.Unlock()

	if slf.closed {
		return errors.New("worker stdin closed")
	}
	if _, err := slf.worker.Stdin().Write(line); err != nil {
		slf.closed = true
		return fmt.Errorf("write stdin: %w", err)
	}
	return nil
}

func (slf *Supervisor) IsRunning() bool {
	slf.mu.Lock()
	defer slf.mu.Unlock()
	return slf.current != nil
}

// Generation identifies the current worker instance. It increases on every spawn, so a
// changed value means the previous process handle is gone.
func (slf *Supervisor) Generation() uint64 {
	slf.mu.Lock()
	defer slf.mu.Unlock()
	return slf.generation
}

// Pid of the running worker, or 0.
func (slf *Supervisor) Pid() int {
	slf.mu.Lock()
	defer slf.mu.Unlock()
	if slf.current == nil {
		return 0
	}
	return slf.current.pid
}

// Done returns a channel closed when the current worker has exited, or nil when nothing
// is running.
func (slf *Supervisor) Done() <-chan struct{} {
	slf.mu.Lock()
	defer slf.mu.Unlock()
	if slf.current == nil {
		return nil
	}
	return slf.current.exited
}

func (slf *Supervisor) deliver(inst *instance, ev models.Event) {
	slf.dispatchMu.Lock()
	defer slf.dispatchMu.Unlock()

	if inst.killed.Load() {
		slf.logger.Debug().Str("event", string(ev.Tag())).Uint64("generation", inst.generation).Msg("Dropping event from stopped worker")
		return
	}
	metrics.EventsReceived.WithLabelValues(string(ev.Tag())).Inc()
	if slf.dispatch != nil {
		slf.dispatch(ev)
	}
}

func (slf *Supervisor) readStdout(inst *instance) {
	decoder := NewFrameDecoder(func(line []byte, err error) {
		metrics.FramingErrors.Inc()
		slf.logger.Warn().Err(err).Str("line", string(line)).Msg("Malformed line from worker")
	})

	buf := make([]byte, readChunkSize)
	for {
		n, err := inst.worker.Stdout().Read(buf)
		if n > 0 {
			for raw := range decoder.Feed(buf[:n]) {
				ev, decodeErr := models.DecodeEvent(raw)
				if decodeErr != nil {
					slf.logger.Warn().Err(decodeErr).Str("line", string(raw)).Msg("Ignoring worker output")
					continue
				}
				slf.deliver(inst, ev)
			}
		}
		if err != nil {
			if pending := decoder.Pending(); len(pending) > 0 {
				slf.logger.Warn().Str("fragment", string(pending)).Msg("Worker output ended mid-line")
			}
			if !errors.Is(err, io.EOF) && !inst.killed.Load() {
				slf.logger.Debug().Err(err).Msg("Worker stdout closed")
			}
			return
		}
	}
}

// readStderr forwards diagnostic output verbatim. The stream carries no severity, so every
// chunk becomes an error event.
func (slf *Supervisor) readStderr(inst *instance) {
	buf := make([]byte, readChunkSize)
	for {
		n, err := inst.worker.Stderr().Read(buf)
		if n > 0 {
			text := string(buf[:n])
			slf.logger.Warn().Str("stderr", text).Int("pid", inst.pid).Msg("Worker diagnostic")
			slf.deliver(inst, models.ErrorEvent{Message: text, Source: models.ErrorSourceStderr})
		}
		if err != nil {
			return
		}
	}
}

func (slf *Supervisor) watchExit(inst *instance, readers *sync.WaitGroup) {
	defer close(inst.exited)

	readers.Wait()
	err := inst.worker.Wait()

	slf.mu.Lock()
	if slf.current == inst {
		slf.current = nil
	}
	slf.mu.Unlock()

	inst.writeMu.Lock()
	inst.closed = true
	inst.writeMu.Unlock()

	if inst.killed.Load() {
		metrics.WorkerExits.WithLabelValues("stopped").Inc()
		slf.logger.Debug().Int("pid", inst.pid).Msg("Stopped worker exited")
		return
	}
	if err == nil {
		metrics.WorkerExits.WithLabelValues("clean").Inc()
		slf.logger.Info().Int("pid", inst.pid).Msg("Worker exited")
		return
	}

	metrics.WorkerExits.WithLabelValues("abnormal").Inc()
	ev := models.ErrorEvent{Message: fmt.Sprintf("Process exited unexpectedly: %v", err), Source: models.ErrorSourceExit}
	if code, ok := exitCode(err); ok {
		ev.Message = fmt.Sprintf("Process exited with code %d", code)
		ev.ExitCode = &code
	}
	slf.logger.Error().Err(err).Int("pid", inst.pid).Msg("Worker exited unexpectedly")
	slf.deliver(inst, ev)
}
