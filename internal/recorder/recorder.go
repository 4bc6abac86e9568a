// Package recorder is the query-side facade the HTTP ingress uses to read
// back execution history: get one record, list recent records for a
// workflow, and pull duration-trend points for a scope. Grounded on the
// teacher's ExecutionHandlers composing *storage.ExecutionRepository
// directly (go/internal/infrastructure/api/rest/handlers_executions.go);
// this engine separates the read-side composition into its own package so
// internal/httpapi depends on one narrow interface rather than reaching
// into both storage and stats.
package recorder

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/flowgate/engine/internal/domain"
	"github.com/flowgate/engine/internal/stats"
)

// Store persists and retrieves ExecutionRecords. Satisfied by
// *storage.ExecutionRepository (Postgres) or *InMemoryStore (standalone).
type Store interface {
	Save(ctx context.Context, record domain.ExecutionRecord) error
	Get(ctx context.Context, id string) (*domain.ExecutionRecord, error)
	List(ctx context.Context, workflowName string, limit int) ([]domain.ExecutionRecord, error)
}

// TrendSource supplies duration-trend points for a scope. Satisfied by
// *stats.Aggregator.
type TrendSource interface {
	DurationTrends(scope domain.BaselineScope, daysBack int) ([]stats.Point, error)
}

// Recorder is the ExecutionRecorder's read-side facade: it composes a
// Store with a TrendSource so httpapi gets Get/List/DurationTrends behind
// one dependency instead of wiring storage and stats separately.
type Recorder struct {
	store  Store
	trends TrendSource
}

func New(store Store, trends TrendSource) *Recorder {
	return &Recorder{store: store, trends: trends}
}

// Save persists record. Satisfies orchestrator.Recorder directly, so a
// *Recorder can be handed to orchestrator.New in place of the bare Store.
func (r *Recorder) Save(ctx context.Context, record domain.ExecutionRecord) error {
	return r.store.Save(ctx, record)
}

func (r *Recorder) Get(ctx context.Context, id string) (*domain.ExecutionRecord, error) {
	return r.store.Get(ctx, id)
}

func (r *Recorder) List(ctx context.Context, workflowName string, limit int) ([]domain.ExecutionRecord, error) {
	return r.store.List(ctx, workflowName, limit)
}

// TaskExecutions returns every TaskExecutionRecord for taskRef across the
// most recent executions of workflowName, newest first, windowed by
// skip/take over that flattened list.
func (r *Recorder) TaskExecutions(ctx context.Context, workflowName, taskRef string, skip, take int) ([]domain.TaskExecutionRecord, error) {
	records, err := r.store.List(ctx, workflowName, 0)
	if err != nil {
		return nil, fmt.Errorf("recorder: list executions for %s: %w", workflowName, err)
	}

	var out []domain.TaskExecutionRecord
	for _, record := range records {
		for _, t := range record.TaskExecutions {
			if t.TaskRef == taskRef {
				out = append(out, t)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })

	if skip >= len(out) {
		return []domain.TaskExecutionRecord{}, nil
	}
	end := len(out)
	if take > 0 && skip+take < end {
		end = skip + take
	}
	return out[skip:end], nil
}

// DurationTrends delegates to the stats aggregator's per-day P50/P95
// rollup for scope. daysBack outside [1, 90] surfaces the aggregator's
// InputValidation error rather than being silently clamped.
func (r *Recorder) DurationTrends(scope domain.BaselineScope, daysBack int) ([]stats.Point, error) {
	return r.trends.DurationTrends(scope, daysBack)
}

// InMemoryStore is a process-local Store for standalone/no-Postgres runs
// and tests, grounded on the same Save/Get/List contract as
// *storage.ExecutionRepository.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]domain.ExecutionRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]domain.ExecutionRecord)}
}

func (s *InMemoryStore) Save(ctx context.Context, record domain.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = record
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, id string) (*domain.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func (s *InMemoryStore) List(ctx context.Context, workflowName string, limit int) ([]domain.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ExecutionRecord, 0, len(s.records))
	for _, record := range s.records {
		if workflowName != "" && record.WorkflowName != workflowName {
			continue
		}
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}
