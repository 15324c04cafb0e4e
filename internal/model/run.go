package model

import (
	"time"
)

// RunStatus represents the current state of a cluster pipeline run.
type RunStatus string

const (
	RunStatusQueued     RunStatus = "queued"
	RunStatusBooting    RunStatus = "booting"
	RunStatusProcessing RunStatus = "processing"
	RunStatusCompleting RunStatus = "completing"
	RunStatusWriting    RunStatus = "writing"
	RunStatusCompiling  RunStatus = "compiling"
	RunStatusComplete   RunStatus = "complete"
	RunStatusFailed     RunStatus = "failed"
)

// ScheduleMode selects how batches are advanced through their phases.
type ScheduleMode string

const (
	ScheduleInline   ScheduleMode = "inline"
	ScheduleParallel ScheduleMode = "parallel"
)

// RunSpec describes what a run was asked to do.
type RunSpec struct {
	Input    string       `json:"input"`
	Mode     ScheduleMode `json:"mode"`
	Vertices int          `json:"vertices"`
	Edges    int          `json:"edges"`
}

// Run represents a single pipeline run.
type Run struct {
	ID        string     `json:"id"`
	Spec      RunSpec    `json:"spec"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunResult holds the final outcome of a run.
type RunResult struct {
	Pairs      int           `json:"pairs"`
	Batches    int           `json:"batches"`
	Processors int           `json:"processors"`
	Issues     int           `json:"issues"`
	StagedVtx  int           `json:"staged_vtx"`
	StagedEdge int           `json:"staged_edges"`
	Graphs     int           `json:"graphs"`
	Failures   int           `json:"task_failures"`
	Phases     []PhaseResult `json:"phases"`
}

// RunPhase represents a phase within a run.
type RunPhase struct {
	ID        string       `json:"id"`
	RunID     string       `json:"run_id"`
	Name      string       `json:"name"`
	Status    PhaseStatus  `json:"status"`
	Result    *PhaseResult `json:"result,omitempty"`
	StartedAt time.Time    `json:"started_at"`
}

// PhaseStatus represents the current state of a pipeline phase.
type PhaseStatus string

const (
	PhaseStatusRunning  PhaseStatus = "running"
	PhaseStatusComplete PhaseStatus = "complete"
	PhaseStatusFailed   PhaseStatus = "failed"
	PhaseStatusSkipped  PhaseStatus = "skipped"
)

// PhaseResult holds the outcome of a pipeline phase.
type PhaseResult struct {
	Name     string         `json:"name"`
	Status   PhaseStatus    `json:"status"`
	Duration int64          `json:"duration_ms"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
