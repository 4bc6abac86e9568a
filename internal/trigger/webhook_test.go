package trigger_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowgate/engine/internal/domain"
	"github.com/flowgate/engine/internal/trigger"
)

type stubSecrets struct{ secret string }

func (s stubSecrets) Resolve(ref string) (string, bool) {
	if ref == "" {
		return "", false
	}
	return s.secret, true
}

func webhookWorkflow(name, path, secretRef string, mapping map[string]string) domain.WorkflowSpec {
	return domain.WorkflowSpec{
		Name:  name,
		Tasks: []domain.TaskStep{{ID: "a", TaskRef: "noop"}},
		Triggers: []domain.Trigger{
			{ID: "hook", Kind: domain.TriggerKindWebhook, Webhook: &domain.WebhookTrigger{
				Path: path, SecretRef: secretRef, InputMapping: mapping, Enabled: true,
			}},
		},
	}
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func newRunningLoop(t *testing.T, catalog *stubCatalog, exec *recordingExecutor) *trigger.Loop {
	t.Helper()
	loop := trigger.New(catalog, exec, nil, trigger.Options{ScheduleTickInterval: time.Hour}).
		WithSecretResolver(stubSecrets{secret: "s3cr3t"})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go loop.Run(ctx)
	time.Sleep(5 * time.Millisecond) // let the initial index build complete
	return loop
}

func TestLoop_HandleWebhook_UnknownPathReturnsNotFound(t *testing.T) {
	catalog := &stubCatalog{}
	loop := newRunningLoop(t, catalog, &recordingExecutor{})

	_, err := loop.HandleWebhook(context.Background(), "missing", []byte("{}"), http.Header{})
	require.Error(t, err)
	var webhookErr *trigger.WebhookError
	require.ErrorAs(t, err, &webhookErr)
	assert.Equal(t, http.StatusNotFound, webhookErr.Status)
}

func TestLoop_HandleWebhook_NoSecretRunsExecutor(t *testing.T) {
	wf := webhookWorkflow("wf", "/hooks/plain", "", nil)
	catalog := &stubCatalog{workflows: []domain.WorkflowSpec{wf}}
	exec := &recordingExecutor{}
	loop := newRunningLoop(t, catalog, exec)

	record, err := loop.HandleWebhook(context.Background(), "hooks/plain", []byte(`{"a":1}`), http.Header{})
	require.NoError(t, err)
	assert.Equal(t, "wf", record.WorkflowName)
	assert.Equal(t, 1, exec.count())
}

func TestLoop_HandleWebhook_ValidSignaturePasses(t *testing.T) {
	wf := webhookWorkflow("wf", "/hooks/secure", "WEBHOOK_SECRET", nil)
	catalog := &stubCatalog{workflows: []domain.WorkflowSpec{wf}}
	exec := &recordingExecutor{}
	loop := newRunningLoop(t, catalog, exec)

	body := []byte(`{"order_id":"42"}`)
	headers := http.Header{}
	headers.Set("X-Webhook-Signature", sign("s3cr3t", body))

	_, err := loop.HandleWebhook(context.Background(), "/hooks/secure", body, headers)
	require.NoError(t, err)
	assert.Equal(t, 1, exec.count())
}

func TestLoop_HandleWebhook_InvalidSignatureRejected(t *testing.T) {
	wf := webhookWorkflow("wf", "/hooks/secure", "WEBHOOK_SECRET", nil)
	catalog := &stubCatalog{workflows: []domain.WorkflowSpec{wf}}
	exec := &recordingExecutor{}
	loop := newRunningLoop(t, catalog, exec)

	body := []byte(`{"order_id":"42"}`)
	headers := http.Header{}
	headers.Set("X-Webhook-Signature", "sha256="+"0000000000000000000000000000000000000000000000000000000000000000")

	_, err := loop.HandleWebhook(context.Background(), "/hooks/secure", body, headers)
	require.Error(t, err)
	var webhookErr *trigger.WebhookError
	require.ErrorAs(t, err, &webhookErr)
	assert.Equal(t, http.StatusUnauthorized, webhookErr.Status)
	assert.Equal(t, 0, exec.count())
}

func TestLoop_HandleWebhook_SignsRawBodyNotGoStringFormat(t *testing.T) {
	// Regression guard: the signature must be computed over the exact raw
	// body bytes, not fmt.Sprintf("%v", decodedPayload) — two JSON bodies
	// that decode to the same map must not share a signature when their
	// raw byte forms differ (e.g. key order, whitespace).
	wf := webhookWorkflow("wf", "/hooks/secure", "WEBHOOK_SECRET", nil)
	catalog := &stubCatalog{workflows: []domain.WorkflowSpec{wf}}
	exec := &recordingExecutor{}
	loop := newRunningLoop(t, catalog, exec)

	body := []byte(`{"a":1,"b":2}`)
	reordered := []byte(`{"b":2,"a":1}`)
	headers := http.Header{}
	headers.Set("X-Webhook-Signature", sign("s3cr3t", body))

	_, err := loop.HandleWebhook(context.Background(), "/hooks/secure", reordered, headers)
	require.Error(t, err, "signature computed for a different raw body must not validate")
}

func TestLoop_HandleWebhook_InputMappingResolvesFromPayload(t *testing.T) {
	wf := webhookWorkflow("wf", "/hooks/mapped", "", map[string]string{
		"customerId": "$.payload.customer.id",
		"missing":    "$.payload.does.not.exist",
	})
	catalog := &stubCatalog{workflows: []domain.WorkflowSpec{wf}}
	exec := &recordingExecutor{}
	loop := newRunningLoop(t, catalog, exec)

	body := []byte(`{"customer":{"id":"cust-9"}}`)
	_, err := loop.HandleWebhook(context.Background(), "/hooks/mapped", body, http.Header{})
	require.NoError(t, err)

	require.Len(t, exec.calls, 1)
	input := exec.calls[0].input
	id, ok := input["customerId"].AsStr()
	require.True(t, ok)
	assert.Equal(t, "cust-9", id)
	_, missingPresent := input["missing"]
	assert.False(t, missingPresent, "unresolved inputMapping path must be silently dropped")
}

func TestLoop_HandleWebhook_DuplicatePathFirstWins(t *testing.T) {
	first := webhookWorkflow("first", "/hooks/dup", "", nil)
	second := webhookWorkflow("second", "/hooks/dup", "", nil)
	catalog := &stubCatalog{workflows: []domain.WorkflowSpec{first, second}}
	exec := &recordingExecutor{}
	loop := newRunningLoop(t, catalog, exec)

	record, err := loop.HandleWebhook(context.Background(), "/hooks/dup", []byte("{}"), http.Header{})
	require.NoError(t, err)
	assert.Equal(t, "first", record.WorkflowName, "first-registered workflow wins a path collision")
}
