package httpapi

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flowgate/engine/internal/domain"
	"github.com/flowgate/engine/internal/graph"
	"github.com/flowgate/engine/internal/orchestrator"
	"github.com/flowgate/engine/internal/validate"
	"github.com/flowgate/engine/internal/visualize"
	"github.com/flowgate/engine/pkg/value"
)

// Catalog resolves a workflow by name and satisfies orchestrator.TaskCatalog
// for task-ref resolution. Satisfied by *catalog.Cache.
type Catalog interface {
	orchestrator.TaskCatalog
	GetWorkflow(ctx context.Context, name string) (domain.WorkflowSpec, bool)
}

// Executor drives a workflow execution to completion. Satisfied by
// *orchestrator.Orchestrator.
type Executor interface {
	Execute(ctx context.Context, workflow domain.WorkflowSpec, catalog orchestrator.TaskCatalog, input map[string]value.Value) (*domain.ExecutionRecord, error)
}

// ExecutionReader answers the execution-history query surface. Satisfied
// by *recorder.Recorder.
type ExecutionReader interface {
	Get(ctx context.Context, id string) (*domain.ExecutionRecord, error)
	List(ctx context.Context, workflowName string, limit int) ([]domain.ExecutionRecord, error)
}

// WebhookHandler ingests a raw HTTP webhook call. Satisfied by
// *trigger.Loop.
type WebhookHandler interface {
	HandleWebhook(ctx context.Context, path string, body []byte, headers http.Header) (*domain.ExecutionRecord, error)
}

// Handlers groups the ingress operations consuming the engine's core
// components, grounded on the teacher's ExecutionHandlers{ops, logger}
// facade shape (go/internal/infrastructure/api/rest/handlers_executions.go),
// collapsed to the one Operations-equivalent this engine needs.
type Handlers struct {
	catalog     Catalog
	executor    Executor
	executions  ExecutionReader
	webhooks    WebhookHandler
	defaultPage int
}

func NewHandlers(catalog Catalog, executor Executor, executions ExecutionReader, webhooks WebhookHandler) *Handlers {
	return &Handlers{catalog: catalog, executor: executor, executions: executions, webhooks: webhooks, defaultPage: 50}
}

// HandleExecuteWorkflow implements POST /workflows/:name/executions
// ("Execute(workflow, input)"): it loads the named workflow, validates the
// caller's input against its declared schema, and drives it to completion
// synchronously. InputValidation failures never reach the Orchestrator —
// no execution record is written for them.
func (h *Handlers) HandleExecuteWorkflow(c *gin.Context) {
	name := c.Param("name")
	workflow, ok := h.catalog.GetWorkflow(c.Request.Context(), name)
	if !ok {
		respondAPIError(c, domain.New(domain.ErrInputValidation, "workflow \""+name+"\" not found"))
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		respondAPIError(c, ErrInvalidJSON)
		return
	}

	input := map[string]value.Value{}
	if len(body) > 0 {
		decoded, err := value.FromJSON(body)
		if err != nil {
			respondAPIError(c, ErrInvalidJSON)
			return
		}
		if obj, ok := decoded.AsObj(); ok {
			input = obj
		}
	}

	result := validate.Validate(workflow, input)
	if !result.Valid {
		apiErr := validationAPIError(result)
		c.JSON(apiErr.HTTPStatus, apiErr)
		return
	}

	record, err := h.executor.Execute(c.Request.Context(), workflow, h.catalog, input)
	if err != nil {
		respondAPIError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, record)
}

// HandleBuildTrace implements GET /executions/:id/trace ("BuildTrace").
// The persisted ExecutionRecord already carries every TaskExecutionRecord
// with start/end times and status, so it doubles as the execution trace.
func (h *Handlers) HandleBuildTrace(c *gin.Context) {
	id := c.Param("id")
	record, err := h.executions.Get(c.Request.Context(), id)
	if err != nil {
		respondAPIError(c, err)
		return
	}
	if record == nil {
		respondAPIError(c, ErrNotFound)
		return
	}
	respondJSON(c, http.StatusOK, record)
}

// HandleListExecutions implements GET /workflows/:name/executions
// ("ListExecutions(workflow, filter, page)"). Paging is offset/limit;
// richer filter predicates are left to a later pass (the Orchestrator and
// ExecutionRecorder contracts don't define one yet).
func (h *Handlers) HandleListExecutions(c *gin.Context) {
	name := c.Param("name")
	limit := getQueryInt(c, "limit", h.defaultPage)
	offset := getQueryInt(c, "offset", 0)

	all, err := h.executions.List(c.Request.Context(), name, 0)
	if err != nil {
		respondAPIError(c, err)
		return
	}

	total := len(all)
	if offset >= total {
		respondList(c, http.StatusOK, []domain.ExecutionRecord{}, total, limit, offset)
		return
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	respondList(c, http.StatusOK, all[offset:end], total, limit, offset)
}

// HandleListOptimizations implements GET /workflows/:name/optimizations
// ("ListOptimizations"). Optimization analysis is explicitly out of
// scope, so this endpoint exists only to mark the ingress contract; it
// never returns a computed recommendation set.
func (h *Handlers) HandleListOptimizations(c *gin.Context) {
	respondAPIError(c, NewAPIError("NOT_IMPLEMENTED", "optimization analysis is provided by an external analyzer, not this engine", http.StatusNotImplemented))
}

// HandleWorkflowGraph implements GET /workflows/:name/graph: it compiles
// the named workflow's DAG and renders it as an ASCII dependency tree,
// the format the "visualization" subscriber group's consumers use to
// show workflow structure alongside the live events the EventNotifier
// fans out to that same group.
func (h *Handlers) HandleWorkflowGraph(c *gin.Context) {
	name := c.Param("name")
	workflow, ok := h.catalog.GetWorkflow(c.Request.Context(), name)
	if !ok {
		respondAPIError(c, domain.New(domain.ErrInputValidation, "workflow \""+name+"\" not found"))
		return
	}

	result, err := graph.Build(workflow)
	if err != nil {
		respondAPIError(c, err)
		return
	}

	c.String(http.StatusOK, visualize.Tree(workflow, result.Graph, visualize.DefaultRenderOptions()))
}

// HandleWebhook implements the trigger ingress surface: POST
// /hooks/*suffix delegates path matching, signature validation, and
// payload mapping to the TriggerLoop, then runs the matched workflow.
func (h *Handlers) HandleWebhook(c *gin.Context) {
	path := c.Param("suffix")
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		respondAPIError(c, ErrInvalidJSON)
		return
	}

	record, err := h.webhooks.HandleWebhook(c.Request.Context(), path, body, c.Request.Header)
	if err != nil {
		respondAPIErrorWithRequestID(c, err)
		return
	}
	respondJSON(c, http.StatusAccepted, record)
}
