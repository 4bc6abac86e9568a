package executor_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowgate/engine/internal/domain"
	"github.com/flowgate/engine/internal/executor"
	"github.com/flowgate/engine/pkg/value"
)

func TestExecutor_HTTPSuccessParsesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	ex := executor.New(nil, nil)
	resource := domain.TaskResource{Kind: domain.TaskKindHTTP, Request: &domain.HTTPRequestSpec{Method: "GET", URL: srv.URL}}
	res := ex.Execute(context.Background(), "t1", resource, nil, executor.TemplateContext{}, domain.NewCallStack(5))

	require.Nil(t, res.ErrorDetail)
	obj, ok := res.Output.AsObj()
	require.True(t, ok)
	b, _ := obj["ok"].AsBool()
	assert.True(t, b)
}

func TestExecutor_HTTP5xxIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ex := executor.New(nil, nil)
	resource := domain.TaskResource{Kind: domain.TaskKindHTTP, Request: &domain.HTTPRequestSpec{Method: "GET", URL: srv.URL}}
	res := ex.Execute(context.Background(), "t1", resource, nil, executor.TemplateContext{}, domain.NewCallStack(5))

	require.NotNil(t, res.ErrorDetail)
	assert.True(t, res.ErrorDetail.IsRetryable)
	assert.Equal(t, domain.ErrHTTPStatus, res.ErrorDetail.Kind)
}

func TestExecutor_HTTP4xxNotRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	ex := executor.New(nil, nil)
	resource := domain.TaskResource{Kind: domain.TaskKindHTTP, Request: &domain.HTTPRequestSpec{Method: "GET", URL: srv.URL}}
	res := ex.Execute(context.Background(), "t1", resource, nil, executor.TemplateContext{}, domain.NewCallStack(5))

	require.NotNil(t, res.ErrorDetail)
	assert.False(t, res.ErrorDetail.IsRetryable)
}

func TestExecutor_TemplatedURL(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	ex := executor.New(nil, nil)
	resource := domain.TaskResource{
		Kind:    domain.TaskKindHTTP,
		Request: &domain.HTTPRequestSpec{Method: "GET", URL: srv.URL + "/items/{{input.id}}"},
	}
	tmplCtx := executor.TemplateContext{Input: map[string]value.Value{"id": value.Str("42")}}
	res := ex.Execute(context.Background(), "t1", resource, nil, tmplCtx, domain.NewCallStack(5))

	require.Nil(t, res.ErrorDetail)
	assert.Equal(t, "/items/42", gotPath)
}

type stubRunner struct {
	out value.Value
	err error
}

func (s stubRunner) ExecuteSubWorkflow(ctx context.Context, name string, input map[string]value.Value, stack domain.WorkflowCallStack) (value.Value, error) {
	return s.out, s.err
}

func TestExecutor_SubWorkflowDelegatesToRunner(t *testing.T) {
	ex := executor.New(nil, stubRunner{out: value.Obj(map[string]value.Value{"done": value.Bool(true)})})
	resource := domain.TaskResource{Kind: domain.TaskKindSubWorkflow, WorkflowRef: "child"}
	res := ex.Execute(context.Background(), "t1", resource, nil, executor.TemplateContext{}, domain.NewCallStack(5))

	require.Nil(t, res.ErrorDetail)
	obj, _ := res.Output.AsObj()
	b, _ := obj["done"].AsBool()
	assert.True(t, b)
}
