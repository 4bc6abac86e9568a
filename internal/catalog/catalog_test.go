package catalog_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowgate/engine/internal/catalog"
	"github.com/flowgate/engine/internal/domain"
	"github.com/flowgate/engine/internal/infrastructure/logger"
)

type stubSource struct {
	mu        sync.Mutex
	workflows []domain.WorkflowSpec
	tasks     []domain.TaskResource
	loadCalls int32
	err       error
}

func (s *stubSource) LoadWorkflows(ctx context.Context) ([]domain.WorkflowSpec, error) {
	atomic.AddInt32(&s.loadCalls, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return append([]domain.WorkflowSpec{}, s.workflows...), nil
}

func (s *stubSource) LoadTasks(ctx context.Context) ([]domain.TaskResource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.TaskResource{}, s.tasks...), nil
}

func (s *stubSource) set(workflows []domain.WorkflowSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows = workflows
}

func TestCache_GetWorkflow_LoadsOnFirstMiss(t *testing.T) {
	src := &stubSource{workflows: []domain.WorkflowSpec{{Name: "w1", Tasks: []domain.TaskStep{{ID: "a", TaskRef: "a"}}}}}
	c := catalog.New(src, time.Hour, logger.Noop())

	w, ok := c.GetWorkflow(context.Background(), "w1")
	require.True(t, ok)
	assert.Equal(t, "w1", w.Name)
	assert.Equal(t, int32(1), atomic.LoadInt32(&src.loadCalls))
}

func TestCache_RespectsTTL(t *testing.T) {
	src := &stubSource{workflows: []domain.WorkflowSpec{{Name: "w1"}}}
	c := catalog.New(src, time.Hour, logger.Noop())

	c.GetWorkflow(context.Background(), "w1")
	c.GetWorkflow(context.Background(), "w1")
	c.GetWorkflow(context.Background(), "w1")
	assert.Equal(t, int32(1), atomic.LoadInt32(&src.loadCalls))
}

func TestCache_RefreshPicksUpChanges(t *testing.T) {
	src := &stubSource{workflows: []domain.WorkflowSpec{{Name: "w1"}}}
	c := catalog.New(src, time.Millisecond, logger.Noop())

	c.GetWorkflow(context.Background(), "w1")
	src.set([]domain.WorkflowSpec{{Name: "w2"}})
	time.Sleep(5 * time.Millisecond)

	_, ok := c.GetWorkflow(context.Background(), "w2")
	require.True(t, ok)
	_, ok = c.GetWorkflow(context.Background(), "w1")
	assert.False(t, ok)
}

func TestCache_OnChangeFiresAddedRemoved(t *testing.T) {
	src := &stubSource{workflows: []domain.WorkflowSpec{{Name: "w1"}}}
	c := catalog.New(src, time.Millisecond, logger.Noop())
	c.GetWorkflow(context.Background(), "w1")

	var added, removed []string
	c.OnChange(func(a, r []string) { added, removed = a, r })

	src.set([]domain.WorkflowSpec{{Name: "w2"}})
	time.Sleep(5 * time.Millisecond)
	c.GetWorkflow(context.Background(), "w2")

	assert.Equal(t, []string{"w2"}, added)
	assert.Equal(t, []string{"w1"}, removed)
}

func TestCache_SourceErrorKeepsStaleSnapshot(t *testing.T) {
	src := &stubSource{workflows: []domain.WorkflowSpec{{Name: "w1"}}}
	c := catalog.New(src, time.Millisecond, logger.Noop())
	c.GetWorkflow(context.Background(), "w1")

	src.mu.Lock()
	src.err = assert.AnError
	src.mu.Unlock()
	time.Sleep(5 * time.Millisecond)

	w, ok := c.GetWorkflow(context.Background(), "w1")
	require.True(t, ok)
	assert.Equal(t, "w1", w.Name)
}
