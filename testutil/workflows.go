// Workflow fixture factories. Grounded on the teacher's go/testutil/
// workflows.go, which built fixtures via the pkg/builder fluent DSL
// over pkg/models.Workflow (node/edge graphs). This engine has neither
// type: a WorkflowSpec is a flat, declaration-ordered list of TaskSteps
// with dependsOn edges, so these fixtures construct domain.WorkflowSpec
// literals directly instead of going through a builder.
package testutil

import (
	"github.com/flowgate/engine/internal/domain"
)

// LinearWorkflow returns a three-task chain (fetch -> transform -> post)
// of http TaskResources against baseURL, plus the TaskResource
// definitions its TaskSteps reference.
func LinearWorkflow(name, baseURL string) (domain.WorkflowSpec, []domain.TaskResource) {
	resources := []domain.TaskResource{
		{Name: "http-get", Kind: domain.TaskKindHTTP, Request: &domain.HTTPRequestSpec{Method: "GET", URL: baseURL + "/fetch"}},
		{Name: "http-transform", Kind: domain.TaskKindHTTP, Request: &domain.HTTPRequestSpec{Method: "POST", URL: baseURL + "/transform"}},
		{Name: "http-post", Kind: domain.TaskKindHTTP, Request: &domain.HTTPRequestSpec{Method: "POST", URL: baseURL + "/post"}},
	}
	spec := domain.WorkflowSpec{
		Name: name,
		Tasks: []domain.TaskStep{
			{ID: "fetch", TaskRef: "http-get"},
			{ID: "transform", TaskRef: "http-transform", DependsOn: []string{"fetch"}},
			{ID: "post", TaskRef: "http-post", DependsOn: []string{"transform"}},
		},
	}
	return spec, resources
}

// DiamondWorkflow returns a fan-out/fan-in workflow (root -> left,right
// -> merge) exercising the Orchestrator's level-synchronous parallel
// dispatch of independent tasks at the same level.
func DiamondWorkflow(name, baseURL string) (domain.WorkflowSpec, []domain.TaskResource) {
	resources := []domain.TaskResource{
		{Name: "http-root", Kind: domain.TaskKindHTTP, Request: &domain.HTTPRequestSpec{Method: "GET", URL: baseURL + "/root"}},
		{Name: "http-left", Kind: domain.TaskKindHTTP, Request: &domain.HTTPRequestSpec{Method: "GET", URL: baseURL + "/left"}},
		{Name: "http-right", Kind: domain.TaskKindHTTP, Request: &domain.HTTPRequestSpec{Method: "GET", URL: baseURL + "/right"}},
		{Name: "http-merge", Kind: domain.TaskKindHTTP, Request: &domain.HTTPRequestSpec{Method: "POST", URL: baseURL + "/merge"}},
	}
	spec := domain.WorkflowSpec{
		Name: name,
		Tasks: []domain.TaskStep{
			{ID: "root", TaskRef: "http-root"},
			{ID: "left", TaskRef: "http-left", DependsOn: []string{"root"}},
			{ID: "right", TaskRef: "http-right", DependsOn: []string{"root"}},
			{ID: "merge", TaskRef: "http-merge", DependsOn: []string{"left", "right"}},
		},
	}
	return spec, resources
}

// SubWorkflowCaller returns a single-task workflow whose one task is a
// subWorkflow TaskResource pointing at calleeName, for exercising
// ExecuteSubWorkflow recursion and call-stack depth/cycle checks.
func SubWorkflowCaller(name, calleeName string) (domain.WorkflowSpec, []domain.TaskResource) {
	resources := []domain.TaskResource{
		{Name: "call-" + calleeName, Kind: domain.TaskKindSubWorkflow, WorkflowRef: calleeName},
	}
	spec := domain.WorkflowSpec{
		Name:  name,
		Tasks: []domain.TaskStep{{ID: "call", TaskRef: "call-" + calleeName}},
	}
	return spec, resources
}
