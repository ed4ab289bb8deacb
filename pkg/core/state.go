package core

import "time"

// Store defines the interface for run-history operations.
type Store interface {
	Open(path string) error
	Close() error
	InitSchema() error

	// Run operations
	CreateRun(source string, pos Position) (*Run, error)
	GetRun(id string) (*Run, error)
	CompleteRun(id string, status RunStatus, errMsg string) error
	ListRuns(limit int) ([]*Run, error)
	GetLatestRun(source string) (*Run, error)

	// Stage operations
	RecordStage(stage *StageRun) error
	GetStageRuns(runID string) ([]*StageRun, error)
}

// RunStatus represents the status of a pipeline run.
type RunStatus string

// Run status constants.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run represents one pipeline execution for a source.
type Run struct {
	ID          string
	SourceName  string
	RA          float64
	Dec         float64
	Status      RunStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// StageStatus represents the outcome of a single stage.
type StageStatus string

// Stage status constants.
const (
	StageStatusSuccess StageStatus = "success"
	StageStatusFailed  StageStatus = "failed"
	StageStatusCached  StageStatus = "cached"
)

// StageRun is one stage execution within a run.
type StageRun struct {
	ID         string
	RunID      string
	Stage      Stage
	Status     StageStatus
	StartedAt  time.Time
	DurationMS int64
	Error      string
}
