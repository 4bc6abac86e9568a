package recorder_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowgate/engine/internal/domain"
	"github.com/flowgate/engine/internal/recorder"
)

func record(id, workflow string, startedAt time.Time, taskRefs ...string) domain.ExecutionRecord {
	r := domain.ExecutionRecord{ID: id, WorkflowName: workflow, StartedAt: startedAt, Status: domain.ExecutionSucceeded}
	for i, ref := range taskRefs {
		r.TaskExecutions = append(r.TaskExecutions, domain.TaskExecutionRecord{
			TaskID: ref, TaskRef: ref, StartedAt: startedAt.Add(time.Duration(i) * time.Second),
		})
	}
	return r
}

func TestInMemoryStore_SaveGetList(t *testing.T) {
	store := recorder.NewInMemoryStore()
	ctx := context.Background()

	r1 := record("exec-1", "wf-a", time.Now().Add(-time.Minute))
	r2 := record("exec-2", "wf-a", time.Now())
	require.NoError(t, store.Save(ctx, r1))
	require.NoError(t, store.Save(ctx, r2))

	got, err := store.Get(ctx, "exec-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "wf-a", got.WorkflowName)

	missing, err := store.Get(ctx, "no-such-id")
	require.NoError(t, err)
	assert.Nil(t, missing)

	list, err := store.List(ctx, "wf-a", 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "exec-2", list[0].ID, "newest first")
}

func TestInMemoryStore_ListFiltersByWorkflowAndLimit(t *testing.T) {
	store := recorder.NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, record("exec-1", "wf-a", time.Now())))
	require.NoError(t, store.Save(ctx, record("exec-2", "wf-b", time.Now())))

	list, err := store.List(ctx, "wf-a", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "wf-a", list[0].WorkflowName)

	all, err := store.List(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRecorder_TaskExecutions_WindowsAcrossExecutions(t *testing.T) {
	store := recorder.NewInMemoryStore()
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	require.NoError(t, store.Save(ctx, record("exec-1", "wf-a", base, "fetch")))
	require.NoError(t, store.Save(ctx, record("exec-2", "wf-a", base.Add(time.Minute), "fetch")))
	require.NoError(t, store.Save(ctx, record("exec-3", "wf-a", base.Add(2*time.Minute), "other")))

	rec := recorder.New(store, nil)
	taskExecs, err := rec.TaskExecutions(ctx, "wf-a", "fetch", 0, 1)
	require.NoError(t, err)
	require.Len(t, taskExecs, 1)
	assert.Equal(t, "fetch", taskExecs[0].TaskRef)

	rest, err := rec.TaskExecutions(ctx, "wf-a", "fetch", 1, 10)
	require.NoError(t, err)
	assert.Len(t, rest, 1)

	none, err := rec.TaskExecutions(ctx, "wf-a", "fetch", 10, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}
