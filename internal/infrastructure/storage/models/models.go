// Package models defines the bun ORM row shapes persisted to Postgres:
// workflow/task definitions and execution/task-execution audit rows.
// Grounded on the teacher's WorkflowModel/ExecutionModel
// (backend/internal/infrastructure/storage/models/{workflow,execution}_model.go):
// same bun.BaseModel + JSONB-column + BeforeInsert/BeforeUpdate hook shape,
// trimmed to the engine's own domain (no node/edge/account/audit tables —
// the graph is compiled in-process from WorkflowModel.Definition, not
// persisted as separate node/edge rows).
package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// JSONBDoc is a raw JSON document column, used for workflow/task
// definitions and execution input/output snapshots.
type JSONBDoc json.RawMessage

func (d JSONBDoc) MarshalJSON() ([]byte, error) {
	if len(d) == 0 {
		return []byte("null"), nil
	}
	return d, nil
}

func (d *JSONBDoc) UnmarshalJSON(data []byte) error {
	*d = append((*d)[0:0], data...)
	return nil
}

// WorkflowModel is the persisted row for one domain.WorkflowSpec.
type WorkflowModel struct {
	bun.BaseModel `bun:"table:workflows,alias:w"`

	ID         uuid.UUID `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	Name       string    `bun:"name,notnull,unique" json:"name"`
	Namespace  string    `bun:"namespace" json:"namespace,omitempty"`
	Definition JSONBDoc  `bun:"definition,type:jsonb,notnull" json:"definition"`
	CreatedAt  time.Time `bun:"created_at,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt  time.Time `bun:"updated_at,notnull,default:current_timestamp" json:"updatedAt"`
}

func (WorkflowModel) TableName() string { return "workflows" }

func (w *WorkflowModel) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	switch query.(type) {
	case *bun.InsertQuery:
		if w.ID == uuid.Nil {
			w.ID = uuid.New()
		}
		now := time.Now()
		w.CreatedAt = now
		w.UpdatedAt = now
	case *bun.UpdateQuery:
		w.UpdatedAt = time.Now()
	}
	return nil
}

// TaskResourceModel is the persisted row for one domain.TaskResource.
type TaskResourceModel struct {
	bun.BaseModel `bun:"table:task_resources,alias:tr"`

	ID         uuid.UUID `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	Name       string    `bun:"name,notnull,unique" json:"name"`
	Definition JSONBDoc  `bun:"definition,type:jsonb,notnull" json:"definition"`
	CreatedAt  time.Time `bun:"created_at,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt  time.Time `bun:"updated_at,notnull,default:current_timestamp" json:"updatedAt"`
}

func (TaskResourceModel) TableName() string { return "task_resources" }

func (t *TaskResourceModel) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	switch query.(type) {
	case *bun.InsertQuery:
		if t.ID == uuid.Nil {
			t.ID = uuid.New()
		}
		now := time.Now()
		t.CreatedAt = now
		t.UpdatedAt = now
	case *bun.UpdateQuery:
		t.UpdatedAt = time.Now()
	}
	return nil
}

// ExecutionModel is the persisted row for one domain.ExecutionRecord.
type ExecutionModel struct {
	bun.BaseModel `bun:"table:executions,alias:ex"`

	ID           uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	WorkflowName string     `bun:"workflow_name,notnull" json:"workflowName"`
	Status       string     `bun:"status,notnull" json:"status"`
	StartedAt    time.Time  `bun:"started_at,notnull" json:"startedAt"`
	CompletedAt  *time.Time `bun:"completed_at" json:"completedAt,omitempty"`
	DurationMs   int64      `bun:"duration_ms" json:"durationMs"`
	Input        JSONBDoc   `bun:"input,type:jsonb" json:"input,omitempty"`
	OrchestrationCost JSONBDoc `bun:"orchestration_cost,type:jsonb" json:"orchestrationCost,omitempty"`
	ErrorMessage string     `bun:"error_message" json:"errorMessage,omitempty"`
	CreatedAt    time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"createdAt"`

	TaskExecutions []*TaskExecutionModel `bun:"rel:has-many,join:id=execution_id" json:"taskExecutions,omitempty"`
}

func (ExecutionModel) TableName() string { return "executions" }

func (e *ExecutionModel) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); ok && e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	return nil
}

// TaskExecutionModel is the persisted row for one domain.TaskExecutionRecord.
type TaskExecutionModel struct {
	bun.BaseModel `bun:"table:task_executions,alias:tex"`

	ID          uuid.UUID `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	ExecutionID uuid.UUID `bun:"execution_id,notnull,type:uuid" json:"executionId"`
	TaskID      string    `bun:"task_id,notnull" json:"taskId"`
	TaskRef     string    `bun:"task_ref,notnull" json:"taskRef"`
	Status      string    `bun:"status,notnull" json:"status"`
	Output      JSONBDoc  `bun:"output,type:jsonb" json:"output,omitempty"`
	ErrorInfo   JSONBDoc  `bun:"error_info,type:jsonb" json:"errorInfo,omitempty"`
	DurationMs  int64     `bun:"duration_ms" json:"durationMs"`
	RetryCount  int       `bun:"retry_count" json:"retryCount"`
	StartedAt   time.Time `bun:"started_at,notnull" json:"startedAt"`
	CompletedAt time.Time `bun:"completed_at,notnull" json:"completedAt"`

	Execution *ExecutionModel `bun:"rel:belongs-to,join:execution_id=id" json:"-"`
}

func (TaskExecutionModel) TableName() string { return "task_executions" }

func (t *TaskExecutionModel) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); ok && t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
