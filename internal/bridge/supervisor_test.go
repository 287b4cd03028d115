package bridge_test

import (
	"encoding/json"
	"errors"
	"math"
	"os/exec"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"studio/internal/api/models"
	"studio/internal/bridge"
	"studio/internal/bridge/bridgetest"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

type eventSink struct {
	ch chan models.Event
}

func newEventSink() *eventSink {
	return &eventSink{ch: make(chan models.Event, 128)}
}

func (s *eventSink) dispatch(ev models.Event) { s.ch <- ev }

func (s *eventSink) next(t *testing.T) models.Event {
	t.Helper()
	select {
	case ev := <-s.ch:
		return ev
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func (s *eventSink) none(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case ev := <-s.ch:
		t.Fatalf("unexpected event %#v", ev)
	case <-time.After(within):
	}
}

func newSupervisor(t *testing.T) (*bridge.Supervisor, *bridgetest.Spawner, *eventSink) {
	t.Helper()
	spawner := &bridgetest.Spawner{}
	sink := newEventSink()
	sup := bridge.NewSupervisor(spawner, sink.dispatch, zerolog.Nop())
	t.Cleanup(sup.Stop)
	return sup, spawner, sink
}

// ============ Lifecycle Tests ============

func TestSupervisor_StartDeliversEventsInOrder(t *testing.T) {
	sup, spawner, sink := newSupervisor(t)
	require.NoError(t, sup.Start())
	assert.True(t, sup.IsRunning())
	assert.Equal(t, uint64(1), sup.Generation())

	w := spawner.Last()
	require.NotNil(t, w)
	assert.Equal(t, w.Pid(), sup.Pid())

	stream := `{"event":"ready","data":{}}` + "\n" +
		`{"event":"epoch_end","data":{"epoch":1,"loss":0.5,"accuracy":80}}` + "\n" +
		`{"event":"epoch_end","data":{"epoch":2,"loss":0.4,"accuracy":85}}` + "\n"
	go func() {
		for i := 0; i < len(stream); i += 7 {
			_ = w.EmitRaw([]byte(stream[i:min(i+7, len(stream))]))
		}
	}()

	assert.Equal(t, models.Ready{}, sink.next(t))
	assert.Equal(t, models.EpochEnd{Epoch: 1, Loss: 0.5, Accuracy: 80}, sink.next(t))
	assert.Equal(t, models.EpochEnd{Epoch: 2, Loss: 0.4, Accuracy: 85}, sink.next(t))
}

func TestSupervisor_MalformedAndUnknownLinesAreSkipped(t *testing.T) {
	sup, spawner, sink := newSupervisor(t)
	require.NoError(t, sup.Start())
	w := spawner.Last()

	go func() {
		_ = w.Emit(
			`{"event":"ready"}`,
			`Traceback (most recent call last):`,
			`{"event":"shutdown","data":{}}`,
			`{"event":"validation_success","data":{"node_count":2,"total_params":100480}}`,
		)
	}()

	assert.Equal(t, models.Ready{}, sink.next(t))
	assert.Equal(t, models.ValidationSuccess{NodeCount: 2, TotalParams: 100480}, sink.next(t))
	sink.none(t, 50*time.Millisecond)
}

func TestSupervisor_StderrBecomesErrorEvent(t *testing.T) {
	sup, spawner, sink := newSupervisor(t)
	require.NoError(t, sup.Start())

	go func() { _ = spawner.Last().Diagnose("UserWarning: CUDA not available\n") }()

	ev := sink.next(t)
	require.IsType(t, models.ErrorEvent{}, ev)
	errEv := ev.(models.ErrorEvent)
	assert.Equal(t, "UserWarning: CUDA not available\n", errEv.Message)
	assert.Equal(t, models.ErrorSourceStderr, errEv.Source)
}

func TestSupervisor_AbnormalExitSynthesizesError(t *testing.T) {
	sup, spawner, sink := newSupervisor(t)
	require.NoError(t, sup.Start())
	w := spawner.Last()
	done := sup.Done()

	w.Exit(bridgetest.ExitStatus(2))

	ev := sink.next(t)
	require.IsType(t, models.ErrorEvent{}, ev)
	errEv := ev.(models.ErrorEvent)
	assert.Equal(t, models.ErrorSourceExit, errEv.Source)
	require.NotNil(t, errEv.ExitCode)
	assert.Equal(t, 2, *errEv.ExitCode)
	assert.Equal(t, "Process exited with code 2", errEv.Message)

	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatal("exit not observed")
	}
	assert.False(t, sup.IsRunning())
}

func TestSupervisor_CleanExitIsSilent(t *testing.T) {
	sup, spawner, sink := newSupervisor(t)
	require.NoError(t, sup.Start())
	done := sup.Done()

	spawner.Last().Exit(nil)

	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatal("exit not observed")
	}
	sink.none(t, 50*time.Millisecond)
	assert.False(t, sup.IsRunning())
}

func TestSupervisor_StopIsSilentAndIdempotent(t *testing.T) {
	sup, spawner, sink := newSupervisor(t)
	require.NoError(t, sup.Start())
	w := spawner.Last()

	sup.Stop()
	sup.Stop()

	assert.True(t, w.Killed())
	assert.False(t, sup.IsRunning())
	assert.Zero(t, sup.Pid())
	assert.Nil(t, sup.Done())
	sink.none(t, 50*time.Millisecond)
}

func TestSupervisor_StartWhileRunningRestarts(t *testing.T) {
	sup, spawner, sink := newSupervisor(t)
	require.NoError(t, sup.Start())
	first := spawner.Last()

	require.NoError(t, sup.Start())
	second := spawner.Last()

	assert.NotSame(t, first, second)
	assert.True(t, first.Killed())
	assert.False(t, second.Killed())
	assert.Equal(t, uint64(2), sup.Generation())
	assert.Equal(t, second.Pid(), sup.Pid())

	go func() { _ = second.Emit(`{"event":"ready","data":{"message":"again"}}`) }()
	assert.Equal(t, models.Ready{Message: "again"}, sink.next(t))
	sink.none(t, 50*time.Millisecond)
}

func TestSupervisor_SpawnFailure(t *testing.T) {
	spawner := &bridgetest.Spawner{Err: errors.New("python: not found")}
	sup := bridge.NewSupervisor(spawner, nil, zerolog.Nop())

	err := sup.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "python: not found")
	assert.False(t, sup.IsRunning())
}

// ============ Send Tests ============

func TestSupervisor_SendWritesOneLine(t *testing.T) {
	sup, spawner, _ := newSupervisor(t)
	require.NoError(t, sup.Start())

	require.NoError(t, sup.Send(models.NewExportCommand("./exports")))

	line, err := spawner.Last().NextCommand(waitTimeout)
	require.NoError(t, err)
	assert.Equal(t, "{\"command\":\"export\",\"path\":\"./exports\"}\n", string(line))
}

func TestSupervisor_ConcurrentSendsNeverInterleave(t *testing.T) {
	sup, spawner, _ := newSupervisor(t)
	require.NoError(t, sup.Start())
	w := spawner.Last()

	graph := models.GraphSnapshot{}
	for i := 0; i < 50; i++ {
		graph.Nodes = append(graph.Nodes, models.Node{ID: "linear", Type: models.NodeTypeLinear})
	}

	const senders = 16
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, sup.Send(models.NewValidateCommand(graph)))
		}()
	}

	for i := 0; i < senders; i++ {
		line, err := w.NextCommand(waitTimeout)
		require.NoError(t, err)
		var decoded map[string]any
		require.NoError(t, json.Unmarshal(line, &decoded), string(line))
		assert.Equal(t, "validate", decoded["command"])
	}
	wg.Wait()
}

func TestSupervisor_SendWithoutWorkerIsDropped(t *testing.T) {
	sup, spawner, _ := newSupervisor(t)

	assert.NoError(t, sup.Send(models.NewSystemInfoCommand()))
	assert.Empty(t, spawner.Workers())

	require.NoError(t, sup.Start())
	w := spawner.Last()
	sup.Stop()

	assert.NoError(t, sup.Send(models.NewSystemInfoCommand()))
	assert.Zero(t, w.PendingCommands())
}

func TestSupervisor_SendSerializationError(t *testing.T) {
	sup, spawner, _ := newSupervisor(t)
	require.NoError(t, sup.Start())

	graph := models.GraphSnapshot{Nodes: []models.Node{{
		ID:     "dropout-1",
		Type:   models.NodeTypeDropout,
		Params: models.Params{"p": models.FloatParam(math.Inf(1))},
	}}}

	err := sup.Send(models.NewValidateCommand(graph))
	assert.ErrorIs(t, err, models.ErrSerialization)
	assert.Zero(t, spawner.Last().PendingCommands())
}

func TestSupervisor_StopWaitsForEventInFlight(t *testing.T) {
	router := bridge.NewRouter()
	spawner := &bridgetest.Spawner{}
	sup := bridge.NewSupervisor(spawner, router.Dispatch, zerolog.Nop())
	t.Cleanup(sup.Stop)

	entered := make(chan struct{})
	release := make(chan struct{})
	router.Subscribe(func(ev models.Event) {
		if _, ok := ev.(models.EpochEnd); ok {
			close(entered)
			<-release
		}
	})

	var stopped atomic.Bool
	var late atomic.Int32
	router.Subscribe(func(models.Event) {
		if stopped.Load() {
			late.Add(1)
		}
	})

	require.NoError(t, sup.Start())
	w := spawner.Last()
	go func() { _ = w.Emit(`{"event":"epoch_end","data":{"epoch":1,"loss":0.5,"accuracy":80}}`) }()

	select {
	case <-entered:
	case <-time.After(waitTimeout):
		t.Fatal("epoch_end never dispatched")
	}

	stopDone := make(chan struct{})
	go func() {
		sup.Stop()
		stopped.Store(true)
		close(stopDone)
	}()

	select {
	case <-stopDone:
		t.Fatal("Stop returned while an event was still being dispatched")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopDone:
	case <-time.After(waitTimeout):
		t.Fatal("Stop did not return")
	}
	assert.Zero(t, late.Load(), "no subscriber may see the stopped worker's event after Stop")
	assert.False(t, sup.IsRunning())
}

// ============ Process Tests ============

func shellSpawner(t *testing.T, script string) bridge.ExecSpawner {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	return bridge.ExecSpawner{Command: sh, Args: []string{"-c", script}}
}

func TestExecSpawner_ReportsExitCode(t *testing.T) {
	spawner := shellSpawner(t, `echo '{"event":"ready","data":{"message":"sh ready"}}'; exit 3`)
	sink := newEventSink()
	sup := bridge.NewSupervisor(spawner, sink.dispatch, zerolog.Nop())
	t.Cleanup(sup.Stop)

	require.NoError(t, sup.Start())
	assert.Positive(t, sup.Pid())

	assert.Equal(t, models.Ready{Message: "sh ready"}, sink.next(t))

	ev := sink.next(t)
	require.IsType(t, models.ErrorEvent{}, ev)
	errEv := ev.(models.ErrorEvent)
	assert.Equal(t, models.ErrorSourceExit, errEv.Source)
	assert.Equal(t, "Process exited with code 3", errEv.Message)
	require.NotNil(t, errEv.ExitCode)
	assert.Equal(t, 3, *errEv.ExitCode)
}

func TestExecSpawner_StopIsSilent(t *testing.T) {
	spawner := shellSpawner(t, `exec sleep 30`)
	sink := newEventSink()
	sup := bridge.NewSupervisor(spawner, sink.dispatch, zerolog.Nop())

	require.NoError(t, sup.Start())
	done := sup.Done()
	sup.Stop()

	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatal("killed process was not reaped")
	}
	sink.none(t, 100*time.Millisecond)
	assert.False(t, sup.IsRunning())
}

func TestExecSpawner_EmptyCommand(t *testing.T) {
	_, err := bridge.ExecSpawner{}.Spawn()
	assert.Error(t, err)
}
