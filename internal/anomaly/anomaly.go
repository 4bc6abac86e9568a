// Package anomaly implements the AnomalyDetector: an hourly-refreshed,
// per-scope {mean, stddev} baseline index evaluated against every completed
// execution's observed duration via z-score. Grounded on the teacher's
// background-refresh-loop shape used by its cache warmers
// (backend/internal/application/engine/condition_cache.go's periodic
// refresh goroutine), generalized to a baseline rebuild-and-swap instead of
// a single cached value.
package anomaly

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/flowgate/engine/internal/domain"
	"github.com/flowgate/engine/internal/infrastructure/logger"
)

// DurationSource supplies the recent successful-duration samples a scope's
// baseline is recomputed from. Satisfied by *stats.Aggregator.
type DurationSource interface {
	Scopes() []domain.BaselineScope
	RecentSuccessfulDurations(scope domain.BaselineScope) []time.Duration
}

// Notifier receives every detected anomaly, best-effort. Satisfied by
// *notify.Manager.
type Notifier interface {
	OnAnomalyDetected(ctx context.Context, event domain.AnomalyEvent)
}

// Options configures thresholds; zero values fall back to the
// specification's defaults.
type Options struct {
	MinSamples      int           // default 10
	ZScoreThreshold float64       // default 2 (Minor bucket floor)
	RefreshInterval time.Duration // default time.Hour
}

// Detector is the concrete AnomalyDetector.
type Detector struct {
	source   DurationSource
	notifier Notifier
	log      *logger.Logger

	minSamples int
	threshold  float64
	interval   time.Duration

	baselines atomic.Pointer[map[string]domain.Baseline]
}

func New(source DurationSource, notifier Notifier, log *logger.Logger, opts Options) *Detector {
	if log == nil {
		log = logger.Noop()
	}
	if opts.MinSamples <= 0 {
		opts.MinSamples = 10
	}
	if opts.ZScoreThreshold <= 0 {
		opts.ZScoreThreshold = 2
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = time.Hour
	}
	d := &Detector{
		source: source, notifier: notifier, log: log,
		minSamples: opts.MinSamples, threshold: opts.ZScoreThreshold, interval: opts.RefreshInterval,
	}
	empty := map[string]domain.Baseline{}
	d.baselines.Store(&empty)
	return d
}

// Run blocks refreshing baselines every interval until ctx is cancelled.
// Idempotent and safely abortable — a refresh in flight when ctx cancels
// simply does not reschedule.
func (d *Detector) Run(ctx context.Context) {
	d.refresh()
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.refresh()
		}
	}
}

func (d *Detector) refresh() {
	next := make(map[string]domain.Baseline)
	now := time.Now()
	for _, scope := range d.source.Scopes() {
		samples := d.source.RecentSuccessfulDurations(scope)
		if len(samples) == 0 {
			continue
		}
		mean, stddev := meanStdDev(samples)
		next[scope.String()] = domain.Baseline{
			Scope: scope, Mean: mean, StdDev: stddev,
			SampleCount: len(samples), RefreshedAt: now,
		}
	}
	d.baselines.Store(&next)
}

func meanStdDev(samples []time.Duration) (mean, stddev float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s.Milliseconds())
	}
	mean = sum / float64(len(samples))

	var sqDiff float64
	for _, s := range samples {
		d := float64(s.Milliseconds()) - mean
		sqDiff += d * d
	}
	stddev = math.Sqrt(sqDiff / float64(len(samples)))
	return mean, stddev
}

// Evaluate checks durationMs against scope's current baseline, returning an
// AnomalyEvent iff sampleCount >= minSamples, stddev > 0, and |z| crosses
// the configured threshold. Satisfies orchestrator.AnomalyEvaluator.
// On detection, forwards the event to the Notifier — a notifier failure
// (panic-recovered inside notify.Manager) never suppresses the returned
// event.
func (d *Detector) Evaluate(scope domain.BaselineScope, durationMs float64, executionID string) (*domain.AnomalyEvent, bool) {
	baselines := *d.baselines.Load()
	baseline, ok := baselines[scope.String()]
	if !ok || baseline.SampleCount < d.minSamples || baseline.StdDev <= 0 {
		return nil, false
	}

	z := (durationMs - baseline.Mean) / baseline.StdDev
	severity, detected := domain.SeverityForZScore(math.Abs(z))
	if !detected || math.Abs(z) < d.threshold {
		return nil, false
	}

	event := domain.AnomalyEvent{
		Scope: scope, ExecutionID: executionID, DurationMs: durationMs,
		ZScore: z, Severity: severity, DetectedAt: time.Now(),
	}
	if d.notifier != nil {
		d.notifier.OnAnomalyDetected(context.Background(), event)
	}
	return &event, true
}
