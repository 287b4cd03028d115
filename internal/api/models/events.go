package models

import (
	"encoding/json"
	"fmt"
)

type EventTag string

const (
	EventReady             EventTag = "ready"
	EventValidationSuccess EventTag = "validation_success"
	EventValidationError   EventTag = "validation_error"
	EventTrainingStart     EventTag = "training_start"
	EventEpochEnd          EventTag = "epoch_end"
	EventBatchEnd          EventTag = "batch_end"
	EventTrainingComplete  EventTag = "training_complete"
	EventCodeGenerated     EventTag = "code_generated"
	EventExportComplete    EventTag = "export_complete"
	EventSystemInfo        EventTag = "system_info"
	EventError             EventTag = "error"
)

// Event is the closed set of messages the worker emits. Every implementation lives in this
// file; consumers switch on the concrete type.
type Event interface {
	Tag() EventTag
	isEvent()
}

type Ready struct {
	Message string `json:"message,omitempty"`
}

type ValidationSuccess struct {
	NodeCount   int    `json:"node_count"`
	TotalParams int64  `json:"total_params"`
	Message     string `json:"message,omitempty"`
}

type ValidationError struct {
	Errors []string `json:"errors"`
}

type TrainingStart struct {
	Epochs       int     `json:"epochs"`
	Optimizer    string  `json:"optimizer,omitempty"`
	LearningRate float64 `json:"lr,omitempty"`
}

type EpochEnd struct {
	Epoch    int     `json:"epoch"`
	Loss     float64 `json:"loss"`
	Accuracy float64 `json:"accuracy"`
}

type BatchEnd struct {
	Batch        int     `json:"batch"`
	TotalBatches int     `json:"total_batches"`
	Loss         float64 `json:"loss"`
}

type TrainingComplete struct {
	FinalAccuracy float64  `json:"final_accuracy"`
	FinalLoss     *float64 `json:"final_loss,omitempty"`
}

type CodeGenerated struct {
	Code string `json:"code,omitempty"`
}

type ExportComplete struct {
	Files map[string]string `json:"files"`
}

// CodePath is the location of the exported source file, when the worker reported one.
func (e ExportComplete) CodePath() string {
	return e.Files["code"]
}

type SystemInfo struct {
	Info map[string]any
}

type ErrorSource string

const (
	ErrorSourceWorker ErrorSource = "worker"
	ErrorSourceStderr ErrorSource = "stderr"
	ErrorSourceExit   ErrorSource = "exit"
)

// ErrorEvent carries worker-reported failures as well as the ones the supervisor
// synthesizes from stderr output and abnormal exits.
type ErrorEvent struct {
	Message   string      `json:"message"`
	Traceback string      `json:"traceback,omitempty"`
	Errors    []string    `json:"errors,omitempty"`
	Source    ErrorSource `json:"source,omitempty"`
	ExitCode  *int        `json:"exit_code,omitempty"`
}

func (Ready) Tag() EventTag             { return EventReady }
func (ValidationSuccess) Tag() EventTag { return EventValidationSuccess }
func (ValidationError) Tag() EventTag   { return EventValidationError }
func (TrainingStart) Tag() EventTag     { return EventTrainingStart }
func (EpochEnd) Tag() EventTag          { return EventEpochEnd }
func (BatchEnd) Tag() EventTag          { return EventBatchEnd }
func (TrainingComplete) Tag() EventTag  { return EventTrainingComplete }
func (CodeGenerated) Tag() EventTag     { return EventCodeGenerated }
func (ExportComplete) Tag() EventTag    { return EventExportComplete }
func (SystemInfo) Tag() EventTag        { return EventSystemInfo }
func (ErrorEvent) Tag() EventTag        { return EventError }

func (Ready) isEvent()             {}
func (ValidationSuccess) isEvent() {}
func (ValidationError) isEvent()   {}
func (TrainingStart) isEvent()     {}
func (EpochEnd) isEvent()          {}
func (BatchEnd) isEvent()          {}
func (TrainingComplete) isEvent()  {}
func (CodeGenerated) isEvent()     {}
func (ExportComplete) isEvent()    {}
func (SystemInfo) isEvent()        {}
func (ErrorEvent) isEvent()        {}

// Envelope is the wire form of an event: {"event": tag, "data": {...}}.
type Envelope struct {
	Event EventTag        `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// DecodeEvent turns one decoded protocol line into its typed event.
func DecodeEvent(raw []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid event envelope: %w", err)
	}

	var ev Event
	var err error
	switch env.Event {
	case EventReady:
		ev, err = decodeData[Ready](env.Data)
	case EventValidationSuccess:
		ev, err = decodeData[ValidationSuccess](env.Data)
	case EventValidationError:
		ev, err = decodeData[ValidationError](env.Data)
	case EventTrainingStart:
		ev, err = decodeData[TrainingStart](env.Data)
	case EventEpochEnd:
		ev, err = decodeData[EpochEnd](env.Data)
	case EventBatchEnd:
		ev, err = decodeData[BatchEnd](env.Data)
	case EventTrainingComplete:
		ev, err = decodeData[TrainingComplete](env.Data)
	case EventCodeGenerated:
		ev, err = decodeData[CodeGenerated](env.Data)
	case EventExportComplete:
		ev, err = decodeData[ExportComplete](env.Data)
	case EventSystemInfo:
		var info map[string]any
		info, err = decodeData[map[string]any](env.Data)
		ev = SystemInfo{Info: info}
	case EventError:
		var e ErrorEvent
		e, err = decodeData[ErrorEvent](env.Data)
		if e.Source == "" {
			e.Source = ErrorSourceWorker
		}
		ev = e
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid %s data: %w", env.Event, err)
	}
	return ev, nil
}

func decodeData[T any](data json.RawMessage) (T, error) {
	var out T
	if len(data) == 0 || string(data) == "null" {
		return out, nil
	}
	err := json.Unmarshal(data, &out)
	return out, err
}

// EncodeEvent produces the wire envelope for ev, without a trailing newline.
func EncodeEvent(ev Event) ([]byte, error) {
	var payload any = ev
	if info, ok := ev.(SystemInfo); ok {
		payload = info.Info
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: ev.Tag(), Data: data})
}
