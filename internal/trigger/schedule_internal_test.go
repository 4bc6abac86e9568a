package trigger

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowgate/engine/internal/domain"
	"github.com/flowgate/engine/internal/orchestrator"
	"github.com/flowgate/engine/pkg/value"
)

type countingExecutor struct {
	calls int32
}

func (e *countingExecutor) Execute(ctx context.Context, wf domain.WorkflowSpec, catalog orchestrator.TaskCatalog, input map[string]value.Value) (*domain.ExecutionRecord, error) {
	atomic.AddInt32(&e.calls, 1)
	return &domain.ExecutionRecord{ID: "exec-1", WorkflowName: wf.Name, Status: domain.ExecutionSucceeded}, nil
}

func (e *countingExecutor) count() int32 { return atomic.LoadInt32(&e.calls) }

type nilCatalog struct{}

func (nilCatalog) ListWorkflows(ctx context.Context) []domain.WorkflowSpec { return nil }
func (nilCatalog) GetTask(ctx context.Context, ref string) (domain.TaskResource, bool) {
	return domain.TaskResource{}, false
}

// TestIsDue_ZeroLastRunFiresOnFirstDueTime locks in the minute-boundary
// arithmetic the priming fix depends on: a schedule with no prior lastRun
// (the zero time) is due at any already-elapsed fire time, not just at
// exactly "now".
func TestIsDue_ZeroLastRunFiresOnFirstDueTime(t *testing.T) {
	parser := newCronParser()
	schedule, err := parser.parse("* * * * *")
	require.NoError(t, err)

	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	assert.True(t, isDue(schedule, time.Time{}, now))
}

// TestLoop_EvaluateSchedule_FirstObservationFiresExactlyOnce pins
// scenario 6: a schedule ticking every minute with no prior lastRun fires
// exactly once for two ticks inside the same minute, then fires again once
// the minute boundary is crossed.
func TestLoop_EvaluateSchedule_FirstObservationFiresExactlyOnce(t *testing.T) {
	wf := scheduledWorkflowFixture("wf", "* * * * *")
	exec := &countingExecutor{}
	loop := New(nilCatalog{}, exec, nil, Options{})

	minuteStart := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	trig := wf.Triggers[0]

	fire := func(now time.Time) {
		loop.scheduleMu.Lock()
		defer loop.scheduleMu.Unlock()
		loop.evaluateSchedule(context.Background(), wf, trig, now)
	}

	fire(minuteStart) // tick 1: no prior lastRun, due since the zero time -> fires once
	assert.Eventually(t, func() bool { return exec.count() == 1 }, time.Second, time.Millisecond)

	fire(minuteStart.Add(5 * time.Second)) // tick 2: same minute, already fired -> no second Execute
	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 1, exec.count(), "second tick in the same minute must not fire again")

	fire(minuteStart.Add(65 * time.Second)) // tick 3: crossed the minute boundary -> fires again
	assert.Eventually(t, func() bool { return exec.count() == 2 }, time.Second, time.Millisecond)
}

func scheduledWorkflowFixture(name, cron string) domain.WorkflowSpec {
	return domain.WorkflowSpec{
		Name:  name,
		Tasks: []domain.TaskStep{{ID: "a", TaskRef: "noop"}},
		Triggers: []domain.Trigger{
			{ID: "t1", Kind: domain.TriggerKindSchedule, Schedule: &domain.ScheduleTrigger{Cron: cron, Enabled: true}},
		},
	}
}
