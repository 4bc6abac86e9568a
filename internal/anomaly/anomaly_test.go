package anomaly_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowgate/engine/internal/anomaly"
	"github.com/flowgate/engine/internal/domain"
)

type stubSource struct {
	scopes  []domain.BaselineScope
	samples map[string][]time.Duration
}

func (s *stubSource) Scopes() []domain.BaselineScope { return s.scopes }
func (s *stubSource) RecentSuccessfulDurations(scope domain.BaselineScope) []time.Duration {
	return s.samples[scope.String()]
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.AnomalyEvent
}

func (n *recordingNotifier) OnAnomalyDetected(ctx context.Context, event domain.AnomalyEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) snapshot() []domain.AnomalyEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.AnomalyEvent{}, n.events...)
}

func baselineSamples(n int, ms int64) []time.Duration {
	out := make([]time.Duration, n)
	for i := range out {
		out[i] = time.Duration(ms) * time.Millisecond
	}
	return out
}

func TestDetector_Evaluate_DetectsCriticalOutlier(t *testing.T) {
	scope := domain.BaselineScope{WorkflowName: "wf", TaskID: "slow-task"}
	samples := baselineSamples(50, 100)
	samples[0] = 90 * time.Millisecond
	samples[1] = 110 * time.Millisecond
	src := &stubSource{scopes: []domain.BaselineScope{scope}, samples: map[string][]time.Duration{scope.String(): samples}}
	notifier := &recordingNotifier{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := anomaly.New(src, notifier, nil, anomaly.Options{MinSamples: 10})
	go d.Run(ctx) // Run performs one synchronous refresh before blocking on the cancelled ctx

	var event *domain.AnomalyEvent
	var ok bool
	assert.Eventually(t, func() bool {
		event, ok = d.Evaluate(scope, 100000, "exec-1")
		return ok
	}, time.Second, time.Millisecond)
	require.True(t, ok)
	assert.Equal(t, domain.SeverityCritical, event.Severity)
	assert.Eventually(t, func() bool { return len(notifier.snapshot()) == 1 }, time.Second, time.Millisecond)
}

func TestDetector_Evaluate_BelowThresholdReturnsFalse(t *testing.T) {
	scope := domain.BaselineScope{WorkflowName: "wf"}
	samples := baselineSamples(50, 100)
	samples[0] = 90 * time.Millisecond // mean stays 100ms, stddev becomes 2ms
	samples[1] = 110 * time.Millisecond
	src := &stubSource{scopes: []domain.BaselineScope{scope}, samples: map[string][]time.Duration{scope.String(): samples}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := anomaly.New(src, &recordingNotifier{}, nil, anomaly.Options{})
	go d.Run(ctx)
	time.Sleep(10 * time.Millisecond)

	_, ok := d.Evaluate(scope, 101, "exec-2")
	assert.False(t, ok)
}

func TestDetector_Evaluate_InsufficientSamplesReturnsFalse(t *testing.T) {
	scope := domain.BaselineScope{WorkflowName: "wf"}
	samples := baselineSamples(3, 100)
	src := &stubSource{scopes: []domain.BaselineScope{scope}, samples: map[string][]time.Duration{scope.String(): samples}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := anomaly.New(src, &recordingNotifier{}, nil, anomaly.Options{MinSamples: 10})
	go d.Run(ctx)
	time.Sleep(10 * time.Millisecond)

	_, ok := d.Evaluate(scope, 10000, "exec-3")
	assert.False(t, ok)
}

func TestDetector_Evaluate_UnknownScopeReturnsFalse(t *testing.T) {
	d := anomaly.New(&stubSource{}, &recordingNotifier{}, nil, anomaly.Options{})
	_, ok := d.Evaluate(domain.BaselineScope{WorkflowName: "never-seen"}, 500, "exec-4")
	assert.False(t, ok)
}
