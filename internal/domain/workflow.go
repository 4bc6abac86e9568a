package domain

import (
	"fmt"

	"github.com/flowgate/engine/pkg/value"
)

// InputType enumerates the declared scalar/container types a WorkflowSpec
// input parameter may take.
type InputType string

const (
	InputTypeString  InputType = "string"
	InputTypeInteger InputType = "integer"
	InputTypeNumber  InputType = "number"
	InputTypeBoolean InputType = "boolean"
	InputTypeObject  InputType = "object"
	InputTypeArray   InputType = "array"
)

// InputParam declares one entry of a WorkflowSpec's input schema.
type InputParam struct {
	Type        InputType `json:"type"`
	Required    bool      `json:"required"`
	Description string    `json:"description,omitempty"`
}

// BackoffStrategy selects how RetryPolicy spaces successive attempts.
type BackoffStrategy string

const (
	BackoffFixed       BackoffStrategy = "fixed"
	BackoffExponential BackoffStrategy = "exponential"
)

// RetryPolicy configures retry attempts for a TaskStep.
type RetryPolicy struct {
	MaxAttempts  int             `json:"maxAttempts"`
	Backoff      BackoffStrategy `json:"backoff"`
	InitialDelay string          `json:"initialDelay"` // duration literal, e.g. "20ms"
	MaxDelay     string          `json:"maxDelay"`
	RetryOn      []int           `json:"retryOn,omitempty"` // additional retryable HTTP status codes
}

// DefaultRetryPolicy returns a single-attempt, no-retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1, Backoff: BackoffFixed, InitialDelay: "0s", MaxDelay: "0s"}
}

// TaskResourceKind discriminates the TaskResource variants.
type TaskResourceKind string

const (
	TaskKindHTTP        TaskResourceKind = "http"
	TaskKindSubWorkflow TaskResourceKind = "subWorkflow"
)

// HTTPRequestSpec is the request-shape portion of an http TaskResource.
type HTTPRequestSpec struct {
	Method       string            `json:"method"`
	URL          string            `json:"url"`
	Headers      map[string]string `json:"headers,omitempty"`
	BodyTemplate string            `json:"bodyTemplate,omitempty"`
}

// TaskResource is the leaf executable referenced by a TaskStep's taskRef.
// Exactly one of Request (kind=http) or WorkflowRef (kind=subWorkflow) is
// populated, selected by Kind.
type TaskResource struct {
	Name        string           `json:"name"`
	Kind        TaskResourceKind `json:"kind"`
	Request     *HTTPRequestSpec `json:"request,omitempty"`
	WorkflowRef string           `json:"workflowRef,omitempty"`
	InputSchema map[string]InputParam `json:"inputSchema,omitempty"`
	Timeout     string           `json:"timeout,omitempty"`
}

func (r TaskResource) Validate() error {
	switch r.Kind {
	case TaskKindHTTP:
		if r.Request == nil {
			return ValidationError{Field: "request", Message: "required for kind=http"}
		}
		if r.Request.Method == "" {
			return ValidationError{Field: "request.method", Message: "required"}
		}
		if r.Request.URL == "" {
			return ValidationError{Field: "request.url", Message: "required"}
		}
	case TaskKindSubWorkflow:
		if r.WorkflowRef == "" {
			return ValidationError{Field: "workflowRef", Message: "required for kind=subWorkflow"}
		}
	default:
		return ValidationError{Field: "kind", Message: fmt.Sprintf("unknown task resource kind %q", r.Kind)}
	}
	return nil
}

// TaskStep is a single node of a WorkflowSpec's DAG.
type TaskStep struct {
	ID        string                  `json:"id"`
	TaskRef   string                  `json:"taskRef"`
	DependsOn []string                `json:"dependsOn,omitempty"`
	Input     map[string]value.Value  `json:"input,omitempty"`
	Retry     *RetryPolicy            `json:"retry,omitempty"`
	Timeout   string                  `json:"timeout,omitempty"`
	Condition string                  `json:"condition,omitempty"`
}

func (t TaskStep) Validate() error {
	if t.ID == "" {
		return ValidationError{Field: "id", Message: "required"}
	}
	if t.TaskRef == "" {
		return ValidationError{Field: "taskRef", Message: "required"}
	}
	return nil
}

// TriggerKind discriminates the Trigger tagged variant.
type TriggerKind string

const (
	TriggerKindSchedule TriggerKind = "schedule"
	TriggerKindWebhook  TriggerKind = "webhook"
	TriggerKindManual   TriggerKind = "manual"
)

// ScheduleTrigger fires Execute calls on a cron schedule.
type ScheduleTrigger struct {
	Cron    string                 `json:"cron"`
	Input   map[string]value.Value `json:"input,omitempty"`
	Enabled bool                   `json:"enabled"`
}

// WebhookTrigger fires Execute calls on inbound HTTP requests matching Path.
type WebhookTrigger struct {
	Path         string            `json:"path"`
	SecretRef    string            `json:"secretRef,omitempty"`
	SignatureHdr string            `json:"signatureHeader,omitempty"`
	InputMapping map[string]string `json:"inputMapping,omitempty"` // dest field -> "$.payload.<path>"
	Enabled      bool              `json:"enabled"`
}

// Trigger is a tagged variant: exactly one of Schedule/Webhook is set when
// Kind is the matching value; Manual carries no payload.
type Trigger struct {
	ID       string           `json:"id"`
	Kind     TriggerKind      `json:"kind"`
	Schedule *ScheduleTrigger `json:"schedule,omitempty"`
	Webhook  *WebhookTrigger  `json:"webhook,omitempty"`
}

func (t Trigger) Validate() error {
	switch t.Kind {
	case TriggerKindSchedule:
		if t.Schedule == nil || t.Schedule.Cron == "" {
			return ValidationError{Field: "schedule.cron", Message: "required for kind=schedule"}
		}
	case TriggerKindWebhook:
		if t.Webhook == nil || t.Webhook.Path == "" {
			return ValidationError{Field: "webhook.path", Message: "required for kind=webhook"}
		}
	case TriggerKindManual:
		// no payload required
	default:
		return ValidationError{Field: "kind", Message: fmt.Sprintf("unknown trigger kind %q", t.Kind)}
	}
	return nil
}

// WorkflowSpec is the declarative definition consumed by the GraphBuilder.
type WorkflowSpec struct {
	Name        string                  `json:"name"`
	Namespace   string                  `json:"namespace,omitempty"`
	Description string                  `json:"description,omitempty"`
	Input       map[string]InputParam   `json:"input,omitempty"`
	Output      map[string]string       `json:"output,omitempty"` // dest field -> template expr
	Tasks       []TaskStep              `json:"tasks"`
	Triggers    []Trigger               `json:"triggers,omitempty"`
	Tags        []string                `json:"tags,omitempty"`
	Categories  []string                `json:"categories,omitempty"`
}

// Validate checks structural well-formedness independent of graph-building
// (cycle/dependency checks live in the graph package). Mirrors the
// required-name / at-least-one-node / duplicate-id checks the teacher's
// model layer performs.
func (w WorkflowSpec) Validate() error {
	if w.Name == "" {
		return ValidationError{Field: "name", Message: "required"}
	}
	if len(w.Tasks) == 0 {
		return ValidationError{Field: "tasks", Message: "workflow must declare at least one task"}
	}
	seen := make(map[string]struct{}, len(w.Tasks))
	for _, t := range w.Tasks {
		if err := t.Validate(); err != nil {
			return err
		}
		if _, dup := seen[t.ID]; dup {
			return ValidationError{Field: "tasks", Message: fmt.Sprintf("duplicate task id %q", t.ID)}
		}
		seen[t.ID] = struct{}{}
	}
	for _, tr := range w.Triggers {
		if err := tr.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// GetTask returns the TaskStep with the given id, if present.
func (w WorkflowSpec) GetTask(id string) (TaskStep, bool) {
	for _, t := range w.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return TaskStep{}, false
}
