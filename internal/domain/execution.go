package domain

import (
	"time"

	"github.com/flowgate/engine/pkg/value"
)

// ExecutionStatus is the terminal/non-terminal state of an ExecutionRecord.
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "Running"
	ExecutionSucceeded ExecutionStatus = "Succeeded"
	ExecutionFailed    ExecutionStatus = "Failed"
	ExecutionCancelled ExecutionStatus = "Cancelled"
)

func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionSucceeded || s == ExecutionFailed || s == ExecutionCancelled
}

// TaskExecutionStatus is the terminal state of a single TaskExecutionRecord.
type TaskExecutionStatus string

const (
	TaskSucceeded TaskExecutionStatus = "Succeeded"
	TaskFailed    TaskExecutionStatus = "Failed"
	TaskSkipped   TaskExecutionStatus = "Skipped"
)

// OrchestrationCost is the engine-internal timing breakdown recorded for
// every execution: setup (graph build), teardown (record finalization),
// scheduling overhead (time in the dispatcher not spent inside tasks), and
// per-level iteration timings.
type OrchestrationCost struct {
	SetupMs             int64   `json:"setupMs"`
	TeardownMs          int64   `json:"teardownMs"`
	SchedulingOverheadMs int64  `json:"schedulingOverheadMs"`
	PerLevelMs          []int64 `json:"perLevelMs,omitempty"`
}

// TaskExecutionRecord captures the outcome of a single TaskStep dispatch.
type TaskExecutionRecord struct {
	ExecutionID  string              `json:"executionId"`
	TaskID       string              `json:"taskId"`
	TaskRef      string              `json:"taskRef"`
	Status       TaskExecutionStatus `json:"status"`
	Output       value.Value         `json:"output,omitempty"`
	Errors       []string            `json:"errors,omitempty"`
	ErrorInfo    *ErrorDetail        `json:"errorInfo,omitempty"`
	Duration     time.Duration       `json:"duration"`
	RetryCount   int                 `json:"retryCount"`
	StartedAt    time.Time           `json:"startedAt"`
	CompletedAt  time.Time           `json:"completedAt"`
}

// ExecutionRecord is the top-level audit row for one Orchestrator.Execute
// call. It is owned exclusively by its originating call until finalized
// exactly once, after which the ExecutionRecorder owns the persisted row.
type ExecutionRecord struct {
	ID                 string                `json:"id"`
	WorkflowName       string                `json:"workflowName"`
	Status             ExecutionStatus       `json:"status"`
	StartedAt          time.Time             `json:"startedAt"`
	CompletedAt        *time.Time            `json:"completedAt,omitempty"`
	Duration           *time.Duration        `json:"duration,omitempty"`
	InputSnapshot      value.Value           `json:"inputSnapshot"`
	TaskExecutions     []TaskExecutionRecord `json:"taskExecutions"`
	GraphBuildDuration *time.Duration        `json:"graphBuildDuration,omitempty"`
	OrchestrationCost  OrchestrationCost     `json:"orchestrationCost"`
	ErrorMessage       string                `json:"errorMessage,omitempty"`
}

// Finalize sets the terminal status, completion time and duration. Callers
// must invoke this exactly once per ExecutionRecord.
func (r *ExecutionRecord) Finalize(status ExecutionStatus, at time.Time) {
	r.Status = status
	r.CompletedAt = &at
	d := at.Sub(r.StartedAt)
	r.Duration = &d
}
