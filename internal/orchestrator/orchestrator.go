// Package orchestrator drives a compiled ExecutionGraph to completion:
// level-synchronous parallel dispatch, retry/timeout/cancellation
// composition, downstream-skip propagation on failure, and sub-workflow
// recursion. Grounded on the teacher's DAGExecutor.Execute/executeWave
// (sync.WaitGroup + buffered error channel fan-out per level), generalized
// to the engine's WorkflowCallStack recursion-safety model (no teacher
// equivalent) and retry jitter policy.
package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowgate/engine/internal/domain"
	"github.com/flowgate/engine/internal/executor"
	"github.com/flowgate/engine/internal/graph"
	"github.com/flowgate/engine/internal/infrastructure/logger"
	"github.com/flowgate/engine/internal/notify"
	"github.com/flowgate/engine/pkg/value"
)

// WorkflowLookup resolves a workflow by name for sub-workflow recursion;
// implemented by the catalog cache.
type WorkflowLookup interface {
	GetWorkflow(ctx context.Context, name string) (domain.WorkflowSpec, bool)
}

// Recorder persists a finalized ExecutionRecord. Persistence failures must
// never propagate to the caller; the Orchestrator only logs them.
type Recorder interface {
	Save(ctx context.Context, record domain.ExecutionRecord) error
}

// Options configures engine-wide defaults.
type Options struct {
	WorkflowDeadline time.Duration // default 30s
	MaxCallDepth     int           // default domain.DefaultMaxDepth
	HTTPClient       *http.Client
}

// Orchestrator is the Execute(workflow, taskCatalog, input, ctx) engine.
type Orchestrator struct {
	lookup   WorkflowLookup
	notifier notify.Notifier
	recorder Recorder
	log      *logger.Logger
	taskExec *executor.Executor
	deadline time.Duration
	maxDepth int

	anomaly  AnomalyEvaluator
	stats    StatsSink
}

// AnomalyEvaluator is the seam to the anomaly detector; nil-safe.
type AnomalyEvaluator interface {
	Evaluate(scope domain.BaselineScope, durationMs float64, executionID string) (*domain.AnomalyEvent, bool)
}

// StatsSink is the seam to the stats aggregator; nil-safe.
type StatsSink interface {
	RecordTask(workflowName, taskID string, succeeded bool, duration time.Duration)
	RecordWorkflow(workflowName string, succeeded bool, duration time.Duration)
}

func New(lookup WorkflowLookup, notifier notify.Notifier, recorder Recorder, log *logger.Logger, opts Options) *Orchestrator {
	if log == nil {
		log = logger.Noop()
	}
	if opts.WorkflowDeadline <= 0 {
		opts.WorkflowDeadline = 30 * time.Second
	}
	if opts.MaxCallDepth <= 0 {
		opts.MaxCallDepth = domain.DefaultMaxDepth
	}
	o := &Orchestrator{
		lookup:   lookup,
		notifier: notifier,
		recorder: recorder,
		log:      log,
		deadline: opts.WorkflowDeadline,
		maxDepth: opts.MaxCallDepth,
	}
	o.taskExec = executor.New(opts.HTTPClient, o)
	return o
}

// WithAnomalyEvaluator attaches the anomaly detector; optional.
func (o *Orchestrator) WithAnomalyEvaluator(a AnomalyEvaluator) *Orchestrator {
	o.anomaly = a
	return o
}

// WithStatsSink attaches the stats aggregator; optional.
func (o *Orchestrator) WithStatsSink(s StatsSink) *Orchestrator {
	o.stats = s
	return o
}

// TaskCatalog resolves a taskRef to its TaskResource.
// The Orchestrator receives the already-resolved catalog from its caller
// per Execute call, since task resource resolution is a CatalogCache
// concern, not the Orchestrator's.
type TaskCatalog interface {
	GetTask(ctx context.Context, taskRef string) (domain.TaskResource, bool)
}

// Execute drives workflow to completion against input, starting a fresh
// call stack. Top-level callers (HTTP ingress, trigger loop) use this
// entry point; sub-workflow recursion uses ExecuteSubWorkflow instead.
func (o *Orchestrator) Execute(ctx context.Context, workflow domain.WorkflowSpec, catalog TaskCatalog, input map[string]value.Value) (*domain.ExecutionRecord, error) {
	return o.execute(ctx, workflow, catalog, input, domain.NewCallStack(o.maxDepth))
}

// ExecuteSubWorkflow implements executor.WorkflowRunner: it resolves
// workflowName via the WorkflowLookup, clones callStack, and recurses.
// The returned value.Value is the resolved workflow output object.
func (o *Orchestrator) ExecuteSubWorkflow(ctx context.Context, workflowName string, input map[string]value.Value, callStack domain.WorkflowCallStack) (value.Value, error) {
	spec, ok := o.lookup.GetWorkflow(ctx, workflowName)
	if !ok {
		return value.Null(), domain.New(domain.ErrUndefinedDep, fmt.Sprintf("sub-workflow %q not found", workflowName))
	}
	record, err := o.execute(ctx, spec, staticCatalogFromLookup(o.lookup), input, callStack)
	if err != nil {
		return value.Null(), err
	}
	if record.Status != domain.ExecutionSucceeded {
		return value.Null(), domain.New(domain.ErrTransport, fmt.Sprintf("sub-workflow %q finished with status %s", workflowName, record.Status))
	}
	return buildWorkflowOutput(spec, record), nil
}

func (o *Orchestrator) execute(ctx context.Context, workflow domain.WorkflowSpec, catalog TaskCatalog, input map[string]value.Value, callStack domain.WorkflowCallStack) (*domain.ExecutionRecord, error) {
	setupStart := time.Now()

	buildResult, err := graph.Build(workflow)
	if err != nil {
		return nil, err
	}

	nextStack, err := callStack.Push(workflow.Name)
	if err != nil {
		return nil, err
	}

	executionID := uuid.NewString()
	graphBuildDuration := time.Since(setupStart)

	record := &domain.ExecutionRecord{
		ID:                 executionID,
		WorkflowName:       workflow.Name,
		Status:             domain.ExecutionRunning,
		StartedAt:          time.Now(),
		InputSnapshot:      value.Obj(input),
		GraphBuildDuration: &graphBuildDuration,
	}

	o.notifier.OnWorkflowStarted(ctx, executionID, workflow.Name)

	wfCtx, cancel := context.WithTimeout(ctx, o.deadline)
	defer cancel()

	dispatchStart := time.Now()
	outcome := o.runGraph(wfCtx, executionID, workflow, buildResult.Graph, catalog, input, nextStack)
	schedulingOverhead := time.Since(dispatchStart)
	for _, lv := range outcome.levelDurations {
		schedulingOverhead -= lv
	}
	if schedulingOverhead < 0 {
		schedulingOverhead = 0
	}

	record.TaskExecutions = outcome.records

	status := domain.ExecutionSucceeded
	switch {
	case ctx.Err() != nil:
		status = domain.ExecutionCancelled
	case outcome.anyFailed:
		status = domain.ExecutionFailed
	}

	teardownStart := time.Now()
	completedAt := time.Now()
	record.Finalize(status, completedAt)
	record.OrchestrationCost = domain.OrchestrationCost{
		SetupMs:              graphBuildDuration.Milliseconds(),
		SchedulingOverheadMs: schedulingOverhead.Milliseconds(),
		PerLevelMs:           millis(outcome.levelDurations),
	}

	o.notifier.OnWorkflowCompleted(ctx, executionID, workflow.Name, string(status))

	if o.recorder != nil {
		if err := o.recorder.Save(context.WithoutCancel(ctx), *record); err != nil {
			o.log.ErrorContext(ctx, "orchestrator: failed to persist execution record", "execution_id", executionID, "error", err)
		}
	}
	if o.stats != nil {
		o.stats.RecordWorkflow(workflow.Name, status == domain.ExecutionSucceeded, *record.Duration)
	}
	if o.anomaly != nil {
		scope := domain.BaselineScope{WorkflowName: workflow.Name}
		if status == domain.ExecutionSucceeded {
			o.anomaly.Evaluate(scope, float64(record.Duration.Milliseconds()), executionID)
		}
	}

	record.OrchestrationCost.TeardownMs = time.Since(teardownStart).Milliseconds()
	return record, nil
}

type graphOutcome struct {
	records        []domain.TaskExecutionRecord
	anyFailed      bool
	levelDurations []time.Duration
}

// runGraph executes every parallel group in buildResult.ParallelGroups in
// level order, collecting TaskExecutionRecords and marking downstream
// closures of any failure as Skipped.
func (o *Orchestrator) runGraph(wfCtx context.Context, executionID string, workflow domain.WorkflowSpec, g *graph.Graph, catalog TaskCatalog, input map[string]value.Value, callStack domain.WorkflowCallStack) graphOutcome {
	status := make(map[string]domain.TaskExecutionStatus, len(g.Nodes))
	outputs := make(map[string]value.Value, len(g.Nodes))
	var records []domain.TaskExecutionRecord
	var recordsMu sync.Mutex
	var levelDurations []time.Duration
	anyFailed := false

	for _, level := range g.ParallelGroups {
		levelStart := time.Now()
		if wfCtx.Err() != nil {
			break
		}

		var ready []string
		for _, id := range level {
			step, _ := g.Node(id)
			blocked := false
			for _, dep := range g.DependsOn[id] {
				if status[dep] != domain.TaskSucceeded {
					blocked = true
					break
				}
			}
			if blocked {
				skippedAt := time.Now()
				status[id] = domain.TaskSkipped
				recordsMu.Lock()
				records = append(records, domain.TaskExecutionRecord{
					ExecutionID: executionID, TaskID: id, TaskRef: step.TaskRef,
					Status: domain.TaskSkipped, StartedAt: skippedAt, CompletedAt: skippedAt,
				})
				recordsMu.Unlock()
				continue
			}
			ready = append(ready, id)
		}

		// Snapshot outputs once before fan-out: every task in this level only
		// ever depends on earlier levels (ParallelGroups is already
		// dependency-ordered), so siblings never legitimately need each
		// other's output, and handing out a copy instead of the live map
		// means runTask's readers (evaluateCondition, template resolution,
		// HTTP rendering) never race the writers at the bottom of this loop.
		recordsMu.Lock()
		levelOutputs := make(map[string]value.Value, len(outputs))
		for k, v := range outputs {
			levelOutputs[k] = v
		}
		recordsMu.Unlock()

		var wg sync.WaitGroup
		for _, id := range ready {
			step, _ := g.Node(id)
			wg.Add(1)
			go func(step domain.TaskStep) {
				defer wg.Done()
				for _, dep := range step.DependsOn {
					o.notifier.OnSignalFlow(wfCtx, executionID, dep, step.ID)
				}
				rec, out, succeeded := o.runTask(wfCtx, executionID, workflow, catalog, step, input, levelOutputs, callStack)
				recordsMu.Lock()
				records = append(records, rec)
				status[step.ID] = rec.Status
				if succeeded {
					outputs[step.ID] = out
				} else if rec.Status == domain.TaskFailed {
					anyFailed = true
				}
				recordsMu.Unlock()
			}(step)
		}
		wg.Wait()
		levelDurations = append(levelDurations, time.Since(levelStart))
	}

	return graphOutcome{records: records, anyFailed: anyFailed, levelDurations: levelDurations}
}

// runTask dispatches a single ready node with retry/timeout composition.
func (o *Orchestrator) runTask(wfCtx context.Context, executionID string, workflow domain.WorkflowSpec, catalog TaskCatalog, step domain.TaskStep, workflowInput map[string]value.Value, taskOutputs map[string]value.Value, callStack domain.WorkflowCallStack) (domain.TaskExecutionRecord, value.Value, bool) {
	started := time.Now()

	if passed, err := evaluateCondition(step.Condition, workflowInput, taskOutputs); err != nil {
		detail := &domain.ErrorDetail{TaskID: step.ID, Kind: domain.ErrTemplateResolution, Message: err.Error(), OccurredAt: started.UnixMilli()}
		return o.finishFailed(executionID, step, started, detail), value.Null(), false
	} else if !passed {
		return conditionSkipRecord(executionID, step), value.Null(), false
	}

	o.notifier.OnTaskStarted(wfCtx, executionID, step.ID, step.TaskRef)

	resource, ok := catalog.GetTask(wfCtx, step.TaskRef)
	if !ok {
		detail := &domain.ErrorDetail{TaskID: step.ID, Kind: domain.ErrUndefinedDep, Message: fmt.Sprintf("task resource %q not found", step.TaskRef), OccurredAt: time.Now().UnixMilli()}
		return o.finishFailed(executionID, step, started, detail), value.Null(), false
	}

	retryPolicy := domain.DefaultRetryPolicy()
	if step.Retry != nil {
		retryPolicy = *step.Retry
	}

	tmplCtx := executor.TemplateContext{Input: workflowInput, Tasks: taskOutputs}
	resolveEngine := executor.NewEngine(tmplCtx, executor.ModeStrict)
	resolvedInput, err := resolveEngine.ResolveMap(step.Input)
	if err != nil {
		detail := &domain.ErrorDetail{TaskID: step.ID, Kind: domain.ErrTemplateResolution, Message: err.Error(), OccurredAt: time.Now().UnixMilli()}
		return o.finishFailed(executionID, step, started, detail), value.Null(), false
	}
	stepTmplCtx := executor.TemplateContext{Input: resolvedInput, Tasks: taskOutputs}

	var lastDetail *domain.ErrorDetail
	attempts := 0
	for {
		attempts++
		taskTimeout := parseDurationOr(step.Timeout, 0)
		taskCtx, cancel := effectiveDeadlineContext(wfCtx, taskTimeout)

		attemptStart := time.Now()
		result := o.taskExec.Execute(taskCtx, step.ID, resource, resolvedInput, stepTmplCtx, callStack)
		cancel()

		if result.ErrorDetail == nil {
			duration := time.Since(started)
			o.notifier.OnTaskCompleted(wfCtx, executionID, step.ID, step.TaskRef, string(domain.TaskSucceeded), duration.Milliseconds(), "")
			if o.stats != nil {
				o.stats.RecordTask(workflow.Name, step.ID, true, time.Since(attemptStart))
			}
			return domain.TaskExecutionRecord{
				ExecutionID: executionID, TaskID: step.ID, TaskRef: step.TaskRef,
				Status: domain.TaskSucceeded, Output: result.Output,
				Duration: duration, RetryCount: attempts - 1,
				StartedAt: started, CompletedAt: time.Now(),
			}, result.Output, true
		}

		lastDetail = result.ErrorDetail
		if taskCtx.Err() == context.DeadlineExceeded {
			lastDetail.Kind = domain.ErrTaskTimeout
		}
		lastDetail.RetryAttempts = attempts - 1
		for _, code := range retryPolicy.RetryOn {
			if result.HTTPStatus == code {
				lastDetail.IsRetryable = true
			}
		}

		if !lastDetail.IsRetryable || attempts >= retryPolicy.MaxAttempts || wfCtx.Err() != nil {
			break
		}

		delay := nextDelay(retryPolicy, attempts)
		o.notifier.OnTaskCompleted(wfCtx, executionID, step.ID, step.TaskRef, "Retrying", time.Since(attemptStart).Milliseconds(), lastDetail.Message)
		select {
		case <-time.After(delay):
		case <-wfCtx.Done():
		}
	}

	rec := o.finishFailed(executionID, step, started, lastDetail)
	rec.RetryCount = attempts - 1
	o.notifier.OnTaskCompleted(wfCtx, executionID, step.ID, step.TaskRef, string(domain.TaskFailed), rec.Duration.Milliseconds(), lastDetail.Message)
	if o.stats != nil {
		o.stats.RecordTask(workflow.Name, step.ID, false, rec.Duration)
	}
	return rec, value.Null(), false
}

func (o *Orchestrator) finishFailed(executionID string, step domain.TaskStep, started time.Time, detail *domain.ErrorDetail) domain.TaskExecutionRecord {
	completed := time.Now()
	return domain.TaskExecutionRecord{
		ExecutionID: executionID, TaskID: step.ID, TaskRef: step.TaskRef,
		Status: domain.TaskFailed, Errors: []string{detail.Message}, ErrorInfo: detail,
		Duration: completed.Sub(started), StartedAt: started, CompletedAt: completed,
	}
}

// effectiveDeadlineContext derives a context whose deadline is the
// earlier of parent's existing deadline and now+taskTimeout (if positive).
func effectiveDeadlineContext(parent context.Context, taskTimeout time.Duration) (context.Context, context.CancelFunc) {
	if taskTimeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, taskTimeout)
}

func millis(durations []time.Duration) []int64 {
	out := make([]int64, len(durations))
	for i, d := range durations {
		out[i] = d.Milliseconds()
	}
	return out
}

// buildWorkflowOutput renders a WorkflowSpec's declared `output` templates
// against the completed execution's task outputs; with no declared output
// mapping, it returns an object of every task's output keyed by task id.
func buildWorkflowOutput(spec domain.WorkflowSpec, record *domain.ExecutionRecord) value.Value {
	taskOutputs := make(map[string]value.Value, len(record.TaskExecutions))
	for _, tr := range record.TaskExecutions {
		taskOutputs[tr.TaskID] = tr.Output
	}
	if len(spec.Output) == 0 {
		return value.Obj(taskOutputs)
	}
	engine := executor.NewEngine(executor.TemplateContext{Tasks: taskOutputs}, executor.ModeSilentOnMissing)
	out := make(map[string]value.Value, len(spec.Output))
	for k, expr := range spec.Output {
		v, err := engine.ResolveString(expr)
		if err != nil {
			continue
		}
		out[k] = v
	}
	return value.Obj(out)
}

// staticCatalogFromLookup adapts a WorkflowLookup-capable catalog to also
// serve as a TaskCatalog when recursing into a sub-workflow; the catalog
// implementation is expected to satisfy both interfaces.
func staticCatalogFromLookup(lookup WorkflowLookup) TaskCatalog {
	if tc, ok := lookup.(TaskCatalog); ok {
		return tc
	}
	return emptyCatalog{}
}

type emptyCatalog struct{}

func (emptyCatalog) GetTask(ctx context.Context, taskRef string) (domain.TaskResource, bool) {
	return domain.TaskResource{}, false
}
