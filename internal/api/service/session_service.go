package service

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"studio/internal/api/models"
	"studio/pkg/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrTrainingInProgress = errors.New("training in progress")
	ErrWorkerRestart      = errors.New("worker restart failed")
)

type SessionState string

const (
	SessionIdle     SessionState = "idle"
	SessionTraining SessionState = "training"
)

// WorkerControl is the part of the supervisor the session drives.
type WorkerControl interface {
	Start() error
	Stop()
	Send(cmd models.Command) error
}

// GraphSource yields the graph a command should carry.
type GraphSource interface {
	Snapshot() models.GraphSnapshot
}

// ActivityRecorder receives user-facing log lines for actions that never reach the wire.
type ActivityRecorder interface {
	Record(level LogLevel, message string) LogEntry
}

type SessionOptions struct {
	// RejectCycles makes validate, train and generate_code fail locally on a cyclic graph
	// instead of leaving the check to the worker.
	RejectCycles bool
	// ExportPath is used when an export request names no path.
	ExportPath string
}

// SessionService gates user actions on the worker's activity and keeps what the worker
// reported back. Only train moves the session out of Idle; training_complete, an error
// event or Stop bring it back.
type SessionService struct {
	worker   WorkerControl
	graph    GraphSource
	activity ActivityRecorder
	options  SessionOptions
	logger   zerolog.Logger

	mu     sync.RWMutex
	status SessionStatus
}

// SessionStatus is the observable state of a session.
type SessionStatus struct {
	ID            string              `json:"id"`
	State         SessionState        `json:"state"`
	WorkerReady   bool                `json:"workerReady"`
	NodeCount     *int                `json:"nodeCount,omitempty"`
	TotalParams   *int64              `json:"totalParams,omitempty"`
	Validation    []string            `json:"validationErrors,omitempty"`
	Config        *models.TrainConfig `json:"config,omitempty"`
	PlannedEpochs int                 `json:"plannedEpochs,omitempty"`
	Progress      []models.EpochEnd   `json:"progress"`
	LastBatch     *models.BatchEnd    `json:"lastBatch,omitempty"`
	FinalAccuracy *float64            `json:"finalAccuracy,omitempty"`
	FinalLoss     *float64            `json:"finalLoss,omitempty"`
	LastError     *models.ErrorEvent  `json:"lastError,omitempty"`
	Code          string              `json:"code,omitempty"`
	ExportFiles   map[string]string   `json:"exportFiles,omitempty"`
	SystemInfo    map[string]any      `json:"systemInfo,omitempty"`
	StartedAt     *time.Time          `json:"startedAt,omitempty"`
}

func NewSessionService(worker WorkerControl, graph GraphSource, activity ActivityRecorder, options SessionOptions, logger zerolog.Logger) *SessionService {
	if options.ExportPath == "" {
		options.ExportPath = "./exports"
	}
	return &SessionService{
		worker:   worker,
		graph:    graph,
		activity: activity,
		options:  options,
		logger:   logger.With().Str("component", "session").Logger(),
		status: SessionStatus{
			ID:       uuid.NewString(),
			State:    SessionIdle,
			Progress: []models.EpochEnd{},
		},
	}
}

func (slf *SessionService) State() SessionState {
	slf.mu.RLock()
	defer slf.mu.RUnlock()
	return slf.status.State
}

func (slf *SessionService) IsTraining() bool {
	return slf.State() == SessionTraining
}

// Status returns a copy of everything the session has recorded.
func (slf *SessionService) Status() SessionStatus {
	slf.mu.RLock()
	defer slf.mu.RUnlock()

	s := slf.status
	s.Progress = slices.Clone(slf.status.Progress)
	s.Validation = slices.Clone(slf.status.Validation)
	s.ExportFiles = maps.Clone(slf.status.ExportFiles)
	s.SystemInfo = maps.Clone(slf.status.SystemInfo)
	if slf.status.Config != nil {
		cfg := *slf.status.Config
		s.Config = &cfg
	}
	return s
}

// Validate asks the worker to check the current graph.
func (slf *SessionService) Validate() error {
	return slf.sendIdle(models.CommandValidate, models.NewValidateCommand)
}

// GenerateCode asks the worker for source code building the current graph.
func (slf *SessionService) GenerateCode() error {
	return slf.sendIdle(models.CommandGenerateCode, models.NewGenerateCodeCommand)
}

// Export asks the worker to write the trained model to path, or to the default export
// directory when path is empty.
func (slf *SessionService) Export(path string) error {
	if path == "" {
		path = slf.options.ExportPath
	}
	if err := slf.requireIdle(models.CommandExport); err != nil {
		return err
	}
	return slf.worker.Send(models.NewExportCommand(path))
}

// RequestSystemInfo asks the worker for its hardware report. It is allowed while training.
func (slf *SessionService) RequestSystemInfo() error {
	return slf.worker.Send(models.NewSystemInfoCommand())
}

func (slf *SessionService) sendIdle(tag models.CommandTag, build func(models.GraphSnapshot) models.Command) error {
	if err := slf.requireIdle(tag); err != nil {
		return err
	}
	graph := slf.graph.Snapshot()
	if err := slf.checkGraph(graph); err != nil {
		return err
	}
	return slf.worker.Send(build(graph))
}

func (slf *SessionService) requireIdle(tag models.CommandTag) error {
	if slf.IsTraining() {
		slf.logger.Warn().Str("command", string(tag)).Msg("Rejected while training")
		return fmt.Errorf("%w: cannot %s", ErrTrainingInProgress, tag)
	}
	return nil
}

func (slf *SessionService) checkGraph(graph models.GraphSnapshot) error {
	if slf.options.RejectCycles && graph.HasCycle() {
		return models.ErrCyclicGraph
	}
	return nil
}

// Train starts a training run on the current graph. It fails with ErrTrainingInProgress,
// without sending anything, when a run is already in flight.
func (slf *SessionService) Train(config models.TrainConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}
	graph := slf.graph.Snapshot()
	if err := slf.checkGraph(graph); err != nil {
		return err
	}

	slf.mu.Lock()
	if slf.status.State == SessionTraining {
		slf.mu.Unlock()
		slf.logger.Warn().Msg("Train rejected, a run is already in progress")
		return ErrTrainingInProgress
	}
	previous := slf.status
	now := time.Now()
	slf.status.State = SessionTraining
	slf.status.Config = &config
	slf.status.PlannedEpochs = config.Epochs
	slf.status.Progress = []models.EpochEnd{}
	slf.status.LastBatch = nil
	slf.status.FinalAccuracy = nil
	slf.status.FinalLoss = nil
	slf.status.LastError = nil
	slf.status.StartedAt = &now
	slf.mu.Unlock()
	metrics.Training.Set(1)

	// The lock is released before writing: the worker may be blocked emitting events that
	// need it.
	if err := slf.worker.Send(models.NewTrainCommand(graph, config)); err != nil {
		slf.mu.Lock()
		slf.status = previous
		slf.mu.Unlock()
		metrics.Training.Set(0)
		return err
	}

	slf.logger.Info().Int("epochs", config.Epochs).Str("optimizer", config.Optimizer).Float64("lr", config.LearningRate).Msg("Training requested")
	return nil
}

// Stop cancels whatever the worker is doing by killing it and spawning a fresh one. The
// session is Idle afterwards even if the respawn fails.
func (slf *SessionService) Stop() error {
	slf.worker.Stop()

	slf.mu.Lock()
	wasTraining := slf.status.State == SessionTraining
	slf.status.State = SessionIdle
	slf.status.WorkerReady = false
	slf.mu.Unlock()
	metrics.Training.Set(0)

	if slf.activity != nil && wasTraining {
		slf.activity.Record(LogWarning, "Training stopped")
	}
	slf.logger.Info().Bool("wasTraining", wasTraining).Msg("Worker restart requested")

	if err := slf.worker.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrWorkerRestart, err)
	}
	return nil
}

// HandleEvent folds one worker event into the session.
func (slf *SessionService) HandleEvent(ev models.Event) {
	slf.mu.Lock()
	defer slf.mu.Unlock()

	switch e := ev.(type) {
	case models.Ready:
		slf.status.WorkerReady = true
	case models.ValidationSuccess:
		count, total := e.NodeCount, e.TotalParams
		slf.status.NodeCount = &count
		slf.status.TotalParams = &total
		slf.status.Validation = nil
	case models.ValidationError:
		slf.status.Validation = slices.Clone(e.Errors)
	case models.TrainingStart:
		slf.status.PlannedEpochs = e.Epochs
		slf.status.Progress = []models.EpochEnd{}
	case models.EpochEnd:
		slf.status.Progress = append(slf.status.Progress, e)
	case models.BatchEnd:
		slf.status.LastBatch = &e
	case models.TrainingComplete:
		accuracy := e.FinalAccuracy
		slf.status.FinalAccuracy = &accuracy
		slf.status.FinalLoss = e.FinalLoss
		slf.toIdleLocked("training_complete")
	case models.CodeGenerated:
		slf.status.Code = e.Code
	case models.ExportComplete:
		slf.status.ExportFiles = maps.Clone(e.Files)
	case models.SystemInfo:
		slf.status.SystemInfo = maps.Clone(e.Info)
	case models.ErrorEvent:
		slf.status.LastError = &e
		slf.toIdleLocked("error")
	default:
		slf.logger.Warn().Str("event", string(ev.Tag())).Msg("Unhandled event")
	}
}

func (slf *SessionService) toIdleLocked(reason string) {
	if slf.status.State == SessionTraining {
		slf.logger.Info().Str("reason", reason).Int("epochs", len(slf.status.Progress)).Msg("Training finished")
	}
	slf.status.State = SessionIdle
	metrics.Training.Set(0)
}
