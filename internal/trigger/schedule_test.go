package trigger_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowgate/engine/internal/domain"
	"github.com/flowgate/engine/internal/orchestrator"
	"github.com/flowgate/engine/internal/trigger"
	"github.com/flowgate/engine/pkg/value"
)

type stubCatalog struct {
	workflows []domain.WorkflowSpec
	tasks     map[string]domain.TaskResource
}

func (c *stubCatalog) ListWorkflows(ctx context.Context) []domain.WorkflowSpec { return c.workflows }
func (c *stubCatalog) GetTask(ctx context.Context, ref string) (domain.TaskResource, bool) {
	t, ok := c.tasks[ref]
	return t, ok
}

type recordingExecutor struct {
	mu    sync.Mutex
	calls []executeCall
}

type executeCall struct {
	workflowName string
	input        map[string]value.Value
}

func (e *recordingExecutor) Execute(ctx context.Context, wf domain.WorkflowSpec, catalog orchestrator.TaskCatalog, input map[string]value.Value) (*domain.ExecutionRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, executeCall{workflowName: wf.Name, input: input})
	return &domain.ExecutionRecord{ID: "exec-1", WorkflowName: wf.Name, Status: domain.ExecutionSucceeded}, nil
}

func (e *recordingExecutor) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

func scheduledWorkflow(name, cron string) domain.WorkflowSpec {
	return domain.WorkflowSpec{
		Name:  name,
		Tasks: []domain.TaskStep{{ID: "a", TaskRef: "noop"}},
		Triggers: []domain.Trigger{
			{ID: "t1", Kind: domain.TriggerKindSchedule, Schedule: &domain.ScheduleTrigger{Cron: cron, Enabled: true}},
		},
	}
}

func TestLoop_ScheduleTick_FirstObservationFiresOnceNotRepeatedly(t *testing.T) {
	wf := scheduledWorkflow("wf", "* * * * *")
	catalog := &stubCatalog{workflows: []domain.WorkflowSpec{wf}}
	exec := &recordingExecutor{}
	loop := trigger.New(catalog, exec, nil, trigger.Options{ScheduleTickInterval: 5 * time.Millisecond})

	// With no prior lastRun for this trigger, the first tick treats it as
	// due since the zero time: "* * * * *" has always-elapsed fire times,
	// so it fires exactly once here, then the remaining ticks inside the
	// same minute must not fire again.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	loop.Run(ctx)

	assert.Equal(t, 1, exec.count(), "first observation must fire exactly once, and later ticks in the same minute must not re-fire")
}

func TestLoop_ScheduleTick_DisabledTriggerNeverFires(t *testing.T) {
	wf := scheduledWorkflow("wf", "* * * * *")
	wf.Triggers[0].Schedule.Enabled = false
	catalog := &stubCatalog{workflows: []domain.WorkflowSpec{wf}}
	exec := &recordingExecutor{}
	loop := trigger.New(catalog, exec, nil, trigger.Options{ScheduleTickInterval: 5 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()
	loop.Run(ctx)

	assert.Equal(t, 0, exec.count())
}

func TestLoop_ScheduleTick_InvalidCronIsSkippedNotFatal(t *testing.T) {
	wf := scheduledWorkflow("wf", "not a cron expression")
	catalog := &stubCatalog{workflows: []domain.WorkflowSpec{wf}}
	exec := &recordingExecutor{}
	loop := trigger.New(catalog, exec, nil, trigger.Options{ScheduleTickInterval: 5 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.NotPanics(t, func() { loop.Run(ctx) })
	assert.Equal(t, 0, exec.count())
}
