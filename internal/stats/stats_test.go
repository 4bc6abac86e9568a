package stats_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowgate/engine/internal/domain"
	"github.com/flowgate/engine/internal/stats"
)

func TestAggregator_RecordWorkflow_AccumulatesCounts(t *testing.T) {
	a := stats.New()
	a.RecordWorkflow("wf", true, 100*time.Millisecond)
	a.RecordWorkflow("wf", true, 200*time.Millisecond)
	a.RecordWorkflow("wf", false, 50*time.Millisecond)

	snap := a.Snapshot(domain.BaselineScope{WorkflowName: "wf"})
	assert.Equal(t, int64(3), snap.Count)
	assert.Equal(t, int64(2), snap.SuccessCount)
	assert.Equal(t, int64(1), snap.FailureCount)
	assert.Equal(t, 50*time.Millisecond, snap.Min)
	assert.Equal(t, 200*time.Millisecond, snap.Max)
}

func TestAggregator_RecordTask_IsolatedFromWorkflowScope(t *testing.T) {
	a := stats.New()
	a.RecordWorkflow("wf", true, 100*time.Millisecond)
	a.RecordTask("wf", "t1", true, 10*time.Millisecond)

	wfSnap := a.Snapshot(domain.BaselineScope{WorkflowName: "wf"})
	taskSnap := a.Snapshot(domain.BaselineScope{WorkflowName: "wf", TaskID: "t1"})
	assert.Equal(t, int64(1), wfSnap.Count)
	assert.Equal(t, int64(1), taskSnap.Count)
	assert.Equal(t, 10*time.Millisecond, taskSnap.Mean())
}

func TestAggregator_Snapshot_UnknownScopeIsZeroValue(t *testing.T) {
	a := stats.New()
	snap := a.Snapshot(domain.BaselineScope{WorkflowName: "never-seen"})
	assert.Equal(t, int64(0), snap.Count)
}

func TestAggregator_RecentSuccessfulDurations_OnlyCountsSuccesses(t *testing.T) {
	a := stats.New()
	a.RecordWorkflow("wf", true, 1*time.Millisecond)
	a.RecordWorkflow("wf", false, 999*time.Millisecond)
	a.RecordWorkflow("wf", true, 2*time.Millisecond)

	recent := a.RecentSuccessfulDurations(domain.BaselineScope{WorkflowName: "wf"})
	require.Len(t, recent, 2)
	for _, d := range recent {
		assert.Less(t, d, 900*time.Millisecond)
	}
}

func TestAggregator_DurationTrends_RejectsOutOfRangeDaysBack(t *testing.T) {
	a := stats.New()
	a.RecordWorkflow("wf", true, 10*time.Millisecond)
	scope := domain.BaselineScope{WorkflowName: "wf"}

	_, err := a.DurationTrends(scope, 0)
	require.Error(t, err)
	derr, ok := err.(*domain.Error)
	require.True(t, ok)
	assert.Equal(t, domain.ErrInputValidation, derr.Kind)

	_, err = a.DurationTrends(scope, 91)
	require.Error(t, err)
}

func TestAggregator_DurationTrends_ValidDaysBackReturnsPoints(t *testing.T) {
	a := stats.New()
	a.RecordWorkflow("wf", true, 10*time.Millisecond)

	points, err := a.DurationTrends(domain.BaselineScope{WorkflowName: "wf"}, 1)
	require.NoError(t, err)
	require.NotEmpty(t, points)

	today := points[len(points)-1]
	assert.Equal(t, int64(1), today.Count)
	assert.Equal(t, int64(1), today.Success)
	assert.Equal(t, 10*time.Millisecond, today.Avg)

	points, err = a.DurationTrends(domain.BaselineScope{WorkflowName: "wf"}, 90)
	require.NoError(t, err)
	require.NotEmpty(t, points)
}

func TestAggregator_Scopes_ListsEveryTrackedScope(t *testing.T) {
	a := stats.New()
	a.RecordWorkflow("wf", true, time.Millisecond)
	a.RecordTask("wf", "t1", true, time.Millisecond)

	scopes := a.Scopes()
	assert.Len(t, scopes, 2)
}
