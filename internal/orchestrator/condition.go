package orchestrator

import (
	"fmt"
	"time"

	"github.com/expr-lang/expr"

	"github.com/flowgate/engine/internal/domain"
	"github.com/flowgate/engine/pkg/value"
)

// evaluateCondition compiles and runs a TaskStep's Condition expression
// against the workflow's input and the outputs of tasks that have already
// completed. An empty condition always passes. The expression language is
// the same input/tasks namespace the template Engine resolves {{...}}
// placeholders against, so a skip predicate reads like
// "tasks.check.approved == true".
func evaluateCondition(condition string, workflowInput map[string]value.Value, taskOutputs map[string]value.Value) (bool, error) {
	if condition == "" {
		return true, nil
	}

	env := map[string]any{
		"input": toAnyMap(workflowInput),
		"tasks": toAnyMap(taskOutputs),
	}

	program, err := expr.Compile(condition, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("compile condition: %w", err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("evaluate condition: %w", err)
	}
	result, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("condition did not evaluate to a boolean")
	}
	return result, nil
}

func toAnyMap(values map[string]value.Value) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v.ToAny()
	}
	return out
}

// conditionSkipRecord builds the TaskSkipped record for a task whose
// Condition evaluated false, mirroring the dependency-blocked skip path in
// runGraph but attributing the skip to the predicate rather than an
// upstream failure.
func conditionSkipRecord(executionID string, step domain.TaskStep) domain.TaskExecutionRecord {
	now := time.Now()
	return domain.TaskExecutionRecord{
		ExecutionID: executionID, TaskID: step.ID, TaskRef: step.TaskRef,
		Status: domain.TaskSkipped, StartedAt: now, CompletedAt: now,
	}
}
