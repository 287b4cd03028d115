package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"studio/internal/api/models"
	"studio/pkg"

	"github.com/rs/zerolog"
)

type LogLevel string

const (
	LogInfo    LogLevel = "info"
	LogSuccess LogLevel = "success"
	LogWarning LogLevel = "warning"
	LogError   LogLevel = "error"
)

// MaxLogEntries bounds the activity log; older entries are discarded first.
const MaxLogEntries = 50

const activityLogKey = "studio:activity"

type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Level     LogLevel  `json:"type"`
}

// ProgressService keeps the human readable activity log shown next to the editor. It turns
// routed events into log lines and, when Redis is configured, mirrors the log so it survives
// a server restart.
type ProgressService struct {
	logger  zerolog.Logger
	persist bool
	ttl     time.Duration
	now     func() time.Time

	mu        sync.RWMutex
	entries   []LogEntry
	listeners []func(LogEntry)

	dirty  chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewProgressService creates the log. persist enables the Redis mirror.
func NewProgressService(logger zerolog.Logger, persist bool, ttl time.Duration) *ProgressService {
	ctx, cancel := context.WithCancel(context.Background())
	return &ProgressService{
		logger:  logger.With().Str("component", "progress").Logger(),
		persist: persist,
		ttl:     ttl,
		now:     time.Now,
		dirty:   make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start restores the mirrored log and begins mirroring. Without persistence it does nothing.
func (slf *ProgressService) Start() {
	if !slf.persist {
		return
	}
	var stored []LogEntry
	if err := pkg.RedisGet(activityLogKey, &stored); err != nil {
		if !pkg.IsRedisNil(err) {
			slf.logger.Warn().Err(err).Msg("Could not restore activity log")
		}
	} else {
		slf.mu.Lock()
		slf.entries = append(stored, slf.entries...)
		slf.trimLocked()
		slf.mu.Unlock()
		slf.logger.Info().Int("entries", len(stored)).Msg("Activity log restored")
	}

	slf.wg.Add(1)
	go slf.mirror()
}

// Stop flushes the log one last time and ends mirroring.
func (slf *ProgressService) Stop() {
	slf.cancel()
	slf.wg.Wait()
}

func (slf *ProgressService) mirror() {
	defer slf.wg.Done()
	for {
		select {
		case <-slf.ctx.Done():
			slf.flush()
			return
		case <-slf.dirty:
			slf.flush()
		}
	}
}

func (slf *ProgressService) flush() {
	entries := slf.Entries()
	if err := pkg.RedisSet(activityLogKey, entries, slf.ttl); err != nil {
		slf.logger.Warn().Err(err).Msg("Failed to mirror activity log")
	}
}

// OnEntry registers fn to receive every new entry. It is called outside the lock.
func (slf *ProgressService) OnEntry(fn func(LogEntry)) {
	slf.mu.Lock()
	defer slf.mu.Unlock()
	slf.listeners = append(slf.listeners, fn)
}

// Record appends an entry.
func (slf *ProgressService) Record(level LogLevel, message string) LogEntry {
	entry := LogEntry{Timestamp: slf.now(), Message: message, Level: level}

	slf.mu.Lock()
	slf.entries = append(slf.entries, entry)
	slf.trimLocked()
	listeners := slf.listeners
	slf.mu.Unlock()

	for _, fn := range listeners {
		fn(entry)
	}
	if slf.persist {
		select {
		case slf.dirty <- struct{}{}:
		default:
		}
	}
	return entry
}

func (slf *ProgressService) trimLocked() {
	if over := len(slf.entries) - MaxLogEntries; over > 0 {
		slf.entries = slices.Delete(slf.entries, 0, over)
	}
}

// Entries returns the log, oldest first.
func (slf *ProgressService) Entries() []LogEntry {
	slf.mu.RLock()
	defer slf.mu.RUnlock()
	return slices.Clone(slf.entries)
}

func (slf *ProgressService) Clear() {
	slf.mu.Lock()
	slf.entries = nil
	slf.mu.Unlock()
	if slf.persist {
		if err := pkg.RedisDelete(activityLogKey); err != nil {
			slf.logger.Warn().Err(err).Msg("Failed to clear mirrored activity log")
		}
	}
}

// HandleEvent logs one routed event.
func (slf *ProgressService) HandleEvent(ev models.Event) {
	switch e := ev.(type) {
	case models.Ready:
		slf.Record(LogInfo, "Backend ready")
	case models.ValidationSuccess:
		slf.Record(LogSuccess, fmt.Sprintf("Graph validated: %d nodes, %d params", e.NodeCount, e.TotalParams))
	case models.ValidationError:
		slf.Record(LogError, "Validation errors: "+strings.Join(e.Errors, ", "))
	case models.TrainingStart:
		slf.Record(LogInfo, fmt.Sprintf("Training started: %d epochs", e.Epochs))
	case models.EpochEnd:
		slf.Record(LogInfo, fmt.Sprintf("Epoch %d: Loss=%.4f, Acc=%.2f%%", e.Epoch, e.Loss, e.Accuracy*100))
	case models.BatchEnd:
		// Too frequent for the activity log.
	case models.TrainingComplete:
		slf.Record(LogSuccess, fmt.Sprintf("Training complete! Final accuracy: %.2f%%", e.FinalAccuracy*100))
	case models.CodeGenerated:
		slf.Record(LogSuccess, "Code generated successfully")
	case models.ExportComplete:
		slf.Record(LogSuccess, "Model exported to: "+e.CodePath())
	case models.SystemInfo:
		slf.Record(LogInfo, "System info received")
	case models.ErrorEvent:
		msg := "Error: " + strings.TrimSpace(e.Message)
		if len(e.Errors) > 0 {
			msg += " (" + strings.Join(e.Errors, ", ") + ")"
		}
		slf.Record(LogError, msg)
	default:
		slf.logger.Warn().Str("event", string(ev.Tag())).Msg("No log format for event")
	}
}
