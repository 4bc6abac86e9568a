package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/flowgate/engine/internal/domain"
	"github.com/flowgate/engine/internal/infrastructure/storage/models"
)

// WorkflowRepository is the bun-backed catalog.Source: it loads every
// stored workflow/task definition and decodes the JSONB definition
// column back into domain types. Grounded on the teacher's
// TriggerRepository query idiom (db.NewSelect().Model(...).Scan(ctx)).
type WorkflowRepository struct {
	db bun.IDB
}

func NewWorkflowRepository(db bun.IDB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

func (r *WorkflowRepository) LoadWorkflows(ctx context.Context) ([]domain.WorkflowSpec, error) {
	var rows []*models.WorkflowModel
	if err := r.db.NewSelect().Model(&rows).Scan(ctx); err != nil {
		return nil, fmt.Errorf("storage: load workflows: %w", err)
	}
	out := make([]domain.WorkflowSpec, 0, len(rows))
	for _, row := range rows {
		var spec domain.WorkflowSpec
		if err := json.Unmarshal(row.Definition, &spec); err != nil {
			return nil, fmt.Errorf("storage: decode workflow %q: %w", row.Name, err)
		}
		out = append(out, spec)
	}
	return out, nil
}

func (r *WorkflowRepository) LoadTasks(ctx context.Context) ([]domain.TaskResource, error) {
	var rows []*models.TaskResourceModel
	if err := r.db.NewSelect().Model(&rows).Scan(ctx); err != nil {
		return nil, fmt.Errorf("storage: load task resources: %w", err)
	}
	out := make([]domain.TaskResource, 0, len(rows))
	for _, row := range rows {
		var res domain.TaskResource
		if err := json.Unmarshal(row.Definition, &res); err != nil {
			return nil, fmt.Errorf("storage: decode task resource %q: %w", row.Name, err)
		}
		out = append(out, res)
	}
	return out, nil
}

// Upsert persists a single workflow's definition, used by the import/
// registration path (a trimmed stand-in for the teacher's importer
// package, which this engine does not carry forward — see DESIGN.md).
func (r *WorkflowRepository) Upsert(ctx context.Context, spec domain.WorkflowSpec) error {
	definition, err := json.Marshal(spec)
	if err != nil {
		return fmt.Errorf("storage: encode workflow %q: %w", spec.Name, err)
	}
	row := &models.WorkflowModel{Name: spec.Name, Namespace: spec.Namespace, Definition: definition}
	_, err = r.db.NewInsert().
		Model(row).
		On("CONFLICT (name) DO UPDATE").
		Set("definition = EXCLUDED.definition").
		Set("namespace = EXCLUDED.namespace").
		Set("updated_at = current_timestamp").
		Exec(ctx)
	return err
}
