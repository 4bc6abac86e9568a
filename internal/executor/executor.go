package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/flowgate/engine/internal/domain"
	"github.com/flowgate/engine/pkg/value"
)

// Result is the outcome of executing a TaskStep's leaf resource.
type Result struct {
	Output      value.Value
	HTTPStatus  int
	IsRetryable bool
	ErrorDetail *domain.ErrorDetail
}

// WorkflowRunner is the recursive-invocation seam a subWorkflow leaf uses
// to call back into the Orchestrator without creating an import cycle
// between the executor and orchestrator packages (the Orchestrator
// implements this interface and injects itself at construction).
type WorkflowRunner interface {
	ExecuteSubWorkflow(ctx context.Context, workflowName string, input map[string]value.Value, callStack domain.WorkflowCallStack) (value.Value, error)
}

// Executor runs a single TaskStep's resolved TaskResource.
type Executor struct {
	httpClient *http.Client
	runner     WorkflowRunner
}

func New(httpClient *http.Client, runner WorkflowRunner) *Executor {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Executor{httpClient: httpClient, runner: runner}
}

// Execute renders resource's templates against tmplCtx and runs the leaf.
// For subWorkflow resources, callStack must already have had the current
// workflow name pushed by the caller before recursing.
func (e *Executor) Execute(ctx context.Context, taskID string, resource domain.TaskResource, input map[string]value.Value, tmplCtx TemplateContext, callStack domain.WorkflowCallStack) Result {
	switch resource.Kind {
	case domain.TaskKindSubWorkflow:
		return e.executeSubWorkflow(ctx, taskID, resource, input, callStack)
	default:
		return e.executeHTTP(ctx, taskID, resource, tmplCtx)
	}
}

func (e *Executor) executeSubWorkflow(ctx context.Context, taskID string, resource domain.TaskResource, input map[string]value.Value, callStack domain.WorkflowCallStack) Result {
	out, err := e.runner.ExecuteSubWorkflow(ctx, resource.WorkflowRef, input, callStack)
	if err != nil {
		kind := domain.ErrTransport
		retryable := false
		if derr, ok := err.(*domain.Error); ok {
			kind = derr.Kind
		}
		return Result{ErrorDetail: &domain.ErrorDetail{
			TaskID: taskID, Kind: kind, Message: err.Error(), IsRetryable: retryable,
			OccurredAt: time.Now().UnixMilli(),
		}}
	}
	return Result{Output: out}
}

func (e *Executor) executeHTTP(ctx context.Context, taskID string, resource domain.TaskResource, tmplCtx TemplateContext) Result {
	start := time.Now()
	req := resource.Request
	if req == nil {
		return Result{ErrorDetail: &domain.ErrorDetail{
			TaskID: taskID, Kind: domain.ErrMalformedResponse, Message: "http task resource missing request spec",
			OccurredAt: time.Now().UnixMilli(),
		}}
	}

	engine := NewEngine(tmplCtx, ModeStrict)
	urlVal, err := engine.ResolveString(req.URL)
	if err != nil {
		return templateFailure(taskID, err, start)
	}
	resolvedURL, _ := urlVal.AsStr()

	var bodyReader io.Reader
	if req.BodyTemplate != "" {
		bodyVal, err := engine.ResolveString(req.BodyTemplate)
		if err != nil {
			return templateFailure(taskID, err, start)
		}
		bodyStr, _ := bodyVal.AsStr()
		bodyReader = strings.NewReader(bodyStr)
	}

	httpReq, err := http.NewRequestWithContext(ctx, strings.ToUpper(req.Method), resolvedURL, bodyReader)
	if err != nil {
		return Result{ErrorDetail: &domain.ErrorDetail{
			TaskID: taskID, Kind: domain.ErrTransport, Message: err.Error(),
			URL: resolvedURL, IsRetryable: false, OccurredAt: time.Now().UnixMilli(),
			DurationUntilErrorMs: time.Since(start).Milliseconds(),
		}}
	}
	for k, v := range req.Headers {
		resolved, err := engine.ResolveString(v)
		if err != nil {
			return templateFailure(taskID, err, start)
		}
		s, _ := resolved.AsStr()
		httpReq.Header.Set(k, s)
	}

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		retryable := ctx.Err() == nil // context cancellation is not retryable
		return Result{ErrorDetail: &domain.ErrorDetail{
			TaskID: taskID, Kind: domain.ErrTransport, Message: err.Error(),
			URL: resolvedURL, IsRetryable: retryable, OccurredAt: time.Now().UnixMilli(),
			DurationUntilErrorMs: time.Since(start).Milliseconds(),
		}}
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 400 {
		return Result{
			HTTPStatus:  resp.StatusCode,
			IsRetryable: isRetryableStatus(resp.StatusCode),
			ErrorDetail: &domain.ErrorDetail{
				TaskID: taskID, Kind: domain.ErrHTTPStatus, Message: fmt.Sprintf("http status %d", resp.StatusCode),
				URL: resolvedURL, HTTPStatus: resp.StatusCode,
				ResponseBodyPreview: domain.TruncateResponseBody(string(bodyBytes)),
				IsRetryable:         isRetryableStatus(resp.StatusCode),
				OccurredAt:          time.Now().UnixMilli(),
				DurationUntilErrorMs: time.Since(start).Milliseconds(),
			},
		}
	}

	out := parseBody(bodyBytes, resp.Header.Get("Content-Type"))
	return Result{Output: out, HTTPStatus: resp.StatusCode}
}

// isRetryableStatus matches the engine's default retry classification:
// transport errors and 5xx are retryable; 4xx is not, absent explicit
// configuration to the contrary (handled by the orchestrator's RetryOn
// list, not here).
func isRetryableStatus(status int) bool {
	return status >= 500
}

func templateFailure(taskID string, err error, start time.Time) Result {
	return Result{ErrorDetail: &domain.ErrorDetail{
		TaskID: taskID, Kind: domain.ErrTemplateResolution, Message: err.Error(),
		IsRetryable: false, OccurredAt: time.Now().UnixMilli(),
		DurationUntilErrorMs: time.Since(start).Milliseconds(),
	}}
}

func parseBody(body []byte, contentType string) value.Value {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return value.Null()
	}
	if strings.Contains(contentType, "application/json") || looksLikeJSON(trimmed) {
		if v, err := value.FromJSON(trimmed); err == nil {
			return v
		}
	}
	return value.Str(string(body))
}

func looksLikeJSON(b []byte) bool {
	return len(b) > 0 && (b[0] == '{' || b[0] == '[' || b[0] == '"')
}
