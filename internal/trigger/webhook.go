package trigger

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/flowgate/engine/internal/domain"
	"github.com/flowgate/engine/internal/infrastructure/logger"
	"github.com/flowgate/engine/pkg/value"
)

// WebhookError carries the HTTP status the ingress layer should respond
// with; webhook matching/validation failures are not part of the
// execution exit-code taxonomy since no execution was attempted.
type WebhookError struct {
	Status  int
	Message string
}

func (e *WebhookError) Error() string { return e.Message }

func errNotFound(path string) *WebhookError {
	return &WebhookError{Status: http.StatusNotFound, Message: fmt.Sprintf("no enabled webhook registered at %q", path)}
}

func errUnauthorized(message string) *WebhookError {
	return &WebhookError{Status: http.StatusUnauthorized, Message: message}
}

const defaultSignatureHeader = "X-Webhook-Signature"

// registration is one matched (workflow, trigger) pair keyed by its
// normalized path.
type registration struct {
	workflow domain.WorkflowSpec
	trigger  domain.Trigger
}

// webhookIndex is the path -> registration table rebuilt from the
// catalog each refresh. First-registered-wins on a path collision; the
// loser is logged and dropped rather than silently overwriting the
// winner, per the duplicate-webhook-path decision.
type webhookIndex struct {
	mu     sync.RWMutex
	byPath map[string]registration
	log    *logger.Logger
}

func newWebhookIndex(log *logger.Logger) *webhookIndex {
	return &webhookIndex{byPath: make(map[string]registration), log: log}
}

func normalizePath(p string) string {
	return strings.ToLower(strings.TrimPrefix(p, "/"))
}

func (idx *webhookIndex) rebuild(workflows []domain.WorkflowSpec) {
	next := make(map[string]registration)
	for _, wf := range workflows {
		for _, trig := range wf.Triggers {
			if trig.Kind != domain.TriggerKindWebhook || trig.Webhook == nil || !trig.Webhook.Enabled {
				continue
			}
			key := normalizePath(trig.Webhook.Path)
			if existing, collide := next[key]; collide {
				idx.log.Warn("trigger: duplicate webhook path, keeping first registration",
					"path", trig.Webhook.Path,
					"kept_workflow", existing.workflow.Name, "kept_trigger", existing.trigger.ID,
					"dropped_workflow", wf.Name, "dropped_trigger", trig.ID)
				continue
			}
			next[key] = registration{workflow: wf, trigger: trig}
		}
	}

	idx.mu.Lock()
	idx.byPath = next
	idx.mu.Unlock()
}

func (idx *webhookIndex) lookup(path string) (registration, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	r, ok := idx.byPath[normalizePath(path)]
	return r, ok
}

// SecretResolver resolves a WebhookTrigger.SecretRef to its signing
// secret. The default implementation reads it as an environment
// variable, matching the engine's FLOWGATE_-prefixed env-driven config.
type SecretResolver interface {
	Resolve(ref string) (string, bool)
}

type envSecretResolver struct{}

func (envSecretResolver) Resolve(ref string) (string, bool) {
	return os.LookupEnv(ref)
}

// HandleWebhook matches path against the registered webhook triggers,
// validates the signature when the trigger has a secretRef configured,
// maps the payload into an execution input, and runs the workflow to
// completion. path is the request path with any mount prefix already
// stripped (e.g. the "<suffix>" in "/hooks/<suffix>").
func (l *Loop) HandleWebhook(ctx context.Context, path string, body []byte, headers http.Header) (*domain.ExecutionRecord, error) {
	reg, ok := l.webhook.lookup(path)
	if !ok {
		return nil, errNotFound(path)
	}

	wh := reg.trigger.Webhook
	if wh.SecretRef != "" {
		if err := l.validateSignature(wh, body, headers); err != nil {
			return nil, err
		}
	}

	input, err := mapWebhookInput(wh, body)
	if err != nil {
		return nil, &WebhookError{Status: http.StatusBadRequest, Message: err.Error()}
	}

	record, err := l.executor.Execute(ctx, reg.workflow, l.catalog, input)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (l *Loop) validateSignature(wh *domain.WebhookTrigger, body []byte, headers http.Header) error {
	secret, ok := l.secrets().Resolve(wh.SecretRef)
	if !ok || secret == "" {
		return errUnauthorized("webhook secret is not configured")
	}

	header := wh.SignatureHdr
	if header == "" {
		header = defaultSignatureHeader
	}
	signature := headers.Get(header)
	if signature == "" {
		return errUnauthorized(fmt.Sprintf("missing %s header", header))
	}

	const prefix = "sha256="
	provided := strings.TrimPrefix(signature, prefix)
	if provided == signature && strings.Contains(signature, "=") {
		// A differently-prefixed digest scheme was sent; reject rather
		// than silently comparing against the wrong algorithm.
		return errUnauthorized("unsupported signature scheme")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(provided), []byte(expected)) {
		return errUnauthorized("signature mismatch")
	}
	return nil
}

func (l *Loop) secrets() SecretResolver {
	if l.secretResolver != nil {
		return l.secretResolver
	}
	return envSecretResolver{}
}

// mapWebhookInput decodes body as JSON and, when the trigger declares an
// inputMapping, resolves each destination field's "$.payload.<path>"
// expression against it, silently dropping unresolved paths. With no
// inputMapping declared the raw payload becomes the execution input.
func mapWebhookInput(wh *domain.WebhookTrigger, body []byte) (map[string]value.Value, error) {
	var payload value.Value
	if len(body) == 0 {
		payload = value.Obj(map[string]value.Value{})
	} else {
		var err error
		payload, err = value.FromJSON(body)
		if err != nil {
			return nil, fmt.Errorf("trigger: invalid webhook JSON payload: %w", err)
		}
	}

	if len(wh.InputMapping) == 0 {
		obj, ok := payload.AsObj()
		if !ok {
			return map[string]value.Value{"payload": payload}, nil
		}
		return obj, nil
	}

	const payloadRoot = "$.payload."
	out := make(map[string]value.Value, len(wh.InputMapping))
	for dest, expr := range wh.InputMapping {
		path := strings.TrimPrefix(expr, payloadRoot)
		if path == expr {
			// Not rooted at $.payload. — treat as silently unresolved
			// rather than guessing at a different root.
			continue
		}
		resolved, ok := payload.Path(path)
		if !ok {
			continue
		}
		out[dest] = resolved
	}
	return out, nil
}
