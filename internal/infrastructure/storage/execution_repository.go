package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/flowgate/engine/internal/domain"
	"github.com/flowgate/engine/internal/infrastructure/storage/models"
)

// ExecutionRepository is the bun-backed orchestrator.Recorder: it persists
// an ExecutionRecord and its TaskExecutionRecords as a parent/child row
// pair inside one transaction. Grounded on the teacher's TriggerRepository
// Create/FindByID shape, generalized to a two-table write.
type ExecutionRepository struct {
	db *bun.DB
}

func NewExecutionRepository(db *bun.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

// Save persists record, overwriting any prior row with the same ID. Used
// both for the initial "Running" write and the terminal-status update.
func (r *ExecutionRepository) Save(ctx context.Context, record domain.ExecutionRecord) error {
	row, taskRows, err := toModels(record)
	if err != nil {
		return fmt.Errorf("storage: encode execution %s: %w", record.ID, err)
	}

	return WithTransaction(ctx, r.db, func(tx bun.Tx) error {
		if _, err := tx.NewInsert().
			Model(row).
			On("CONFLICT (id) DO UPDATE").
			Set("status = EXCLUDED.status").
			Set("completed_at = EXCLUDED.completed_at").
			Set("duration_ms = EXCLUDED.duration_ms").
			Set("orchestration_cost = EXCLUDED.orchestration_cost").
			Set("error_message = EXCLUDED.error_message").
			Exec(ctx); err != nil {
			return fmt.Errorf("upsert execution: %w", err)
		}
		if _, err := tx.NewDelete().
			Model((*models.TaskExecutionModel)(nil)).
			Where("execution_id = ?", row.ID).
			Exec(ctx); err != nil {
			return fmt.Errorf("clear task executions: %w", err)
		}
		if len(taskRows) == 0 {
			return nil
		}
		if _, err := tx.NewInsert().Model(&taskRows).Exec(ctx); err != nil {
			return fmt.Errorf("insert task executions: %w", err)
		}
		return nil
	})
}

// Get loads one execution record with its task executions, used by the
// ingress query surface. Returns (nil, nil) when no row matches id.
func (r *ExecutionRepository) Get(ctx context.Context, id string) (*domain.ExecutionRecord, error) {
	row := new(models.ExecutionModel)
	err := r.db.NewSelect().
		Model(row).
		Relation("TaskExecutions").
		Where("ex.id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get execution %s: %w", id, err)
	}
	return fromModel(row), nil
}

// List returns the most recent executions for a workflow, newest first.
func (r *ExecutionRepository) List(ctx context.Context, workflowName string, limit int) ([]domain.ExecutionRecord, error) {
	var rows []*models.ExecutionModel
	q := r.db.NewSelect().Model(&rows).Relation("TaskExecutions").Order("started_at DESC")
	if workflowName != "" {
		q = q.Where("workflow_name = ?", workflowName)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("storage: list executions: %w", err)
	}
	out := make([]domain.ExecutionRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, *fromModel(row))
	}
	return out, nil
}

func toModels(record domain.ExecutionRecord) (*models.ExecutionModel, []*models.TaskExecutionModel, error) {
	id, err := uuid.Parse(record.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("parse execution id: %w", err)
	}
	input, err := json.Marshal(record.InputSnapshot)
	if err != nil {
		return nil, nil, fmt.Errorf("encode input snapshot: %w", err)
	}
	cost, err := json.Marshal(record.OrchestrationCost)
	if err != nil {
		return nil, nil, fmt.Errorf("encode orchestration cost: %w", err)
	}

	var durationMs int64
	if record.Duration != nil {
		durationMs = record.Duration.Milliseconds()
	}

	row := &models.ExecutionModel{
		ID:                id,
		WorkflowName:      record.WorkflowName,
		Status:            string(record.Status),
		StartedAt:         record.StartedAt,
		CompletedAt:       record.CompletedAt,
		DurationMs:        durationMs,
		Input:             models.JSONBDoc(input),
		OrchestrationCost: models.JSONBDoc(cost),
		ErrorMessage:      record.ErrorMessage,
	}

	taskRows := make([]*models.TaskExecutionModel, 0, len(record.TaskExecutions))
	for _, t := range record.TaskExecutions {
		output, err := json.Marshal(t.Output)
		if err != nil {
			return nil, nil, fmt.Errorf("encode task output %s: %w", t.TaskID, err)
		}
		var errInfo []byte
		if t.ErrorInfo != nil {
			errInfo, err = json.Marshal(t.ErrorInfo)
			if err != nil {
				return nil, nil, fmt.Errorf("encode task error info %s: %w", t.TaskID, err)
			}
		}
		taskRows = append(taskRows, &models.TaskExecutionModel{
			ExecutionID: id,
			TaskID:      t.TaskID,
			TaskRef:     t.TaskRef,
			Status:      string(t.Status),
			Output:      models.JSONBDoc(output),
			ErrorInfo:   models.JSONBDoc(errInfo),
			DurationMs:  t.Duration.Milliseconds(),
			RetryCount:  t.RetryCount,
			StartedAt:   t.StartedAt,
			CompletedAt: t.CompletedAt,
		})
	}
	return row, taskRows, nil
}

func fromModel(row *models.ExecutionModel) *domain.ExecutionRecord {
	record := &domain.ExecutionRecord{
		ID:           row.ID.String(),
		WorkflowName: row.WorkflowName,
		Status:       domain.ExecutionStatus(row.Status),
		StartedAt:    row.StartedAt,
		CompletedAt:  row.CompletedAt,
		ErrorMessage: row.ErrorMessage,
	}
	if row.CompletedAt != nil {
		d := row.CompletedAt.Sub(row.StartedAt)
		record.Duration = &d
	}
	_ = json.Unmarshal(row.Input, &record.InputSnapshot)
	_ = json.Unmarshal(row.OrchestrationCost, &record.OrchestrationCost)

	record.TaskExecutions = make([]domain.TaskExecutionRecord, 0, len(row.TaskExecutions))
	for _, t := range row.TaskExecutions {
		tr := domain.TaskExecutionRecord{
			ExecutionID: row.ID.String(),
			TaskID:      t.TaskID,
			TaskRef:     t.TaskRef,
			Status:      domain.TaskExecutionStatus(t.Status),
			Duration:    time.Duration(t.DurationMs) * time.Millisecond,
			RetryCount:  t.RetryCount,
			StartedAt:   t.StartedAt,
			CompletedAt: t.CompletedAt,
		}
		_ = json.Unmarshal(t.Output, &tr.Output)
		if len(t.ErrorInfo) > 0 {
			var detail domain.ErrorDetail
			if err := json.Unmarshal(t.ErrorInfo, &detail); err == nil {
				tr.ErrorInfo = &detail
			}
		}
		record.TaskExecutions = append(record.TaskExecutions, tr)
	}
	return record
}
