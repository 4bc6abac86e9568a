// Package httpapi is the gin HTTP surface consuming the Orchestrator,
// CatalogCache, Recorder, and TriggerLoop. Grounded on the teacher's
// rest.APIError/TranslateError/SuccessResponse envelope
// (backend/internal/infrastructure/api/rest/errors.go, helpers.go),
// generalized from the teacher's sentinel-error-set translation to this
// engine's domain.ErrorKind/ExitCode taxonomy.
package httpapi

import (
	"errors"
	"net/http"

	"github.com/flowgate/engine/internal/domain"
	"github.com/flowgate/engine/internal/trigger"
	"github.com/flowgate/engine/internal/validate"
)

// APIError is the JSON error envelope returned to callers.
type APIError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	HTTPStatus int            `json:"-"`
}

func (e *APIError) Error() string { return e.Message }

func NewAPIError(code, message string, httpStatus int) *APIError {
	return &APIError{Code: code, Message: message, HTTPStatus: httpStatus}
}

var (
	ErrNotFound       = NewAPIError("NOT_FOUND", "resource not found", http.StatusNotFound)
	ErrInvalidJSON    = NewAPIError("INVALID_JSON", "invalid JSON in request body", http.StatusBadRequest)
	ErrInternalServer = NewAPIError("INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
)

var exitCodeStatus = map[domain.ExitCode]int{
	domain.CodeOK:               http.StatusOK,
	domain.CodeNotFound:         http.StatusNotFound,
	domain.CodeInvalidInput:     http.StatusBadRequest,
	domain.CodeTimeout:          http.StatusGatewayTimeout,
	domain.CodeCancelled:        http.StatusConflict,
	domain.CodeCycleDetected:    http.StatusUnprocessableEntity,
	domain.CodeMaxDepthExceeded: http.StatusUnprocessableEntity,
	domain.CodeUpstreamFailed:   http.StatusBadGateway,
	domain.CodeInternal:         http.StatusInternalServerError,
}

// TranslateError maps an engine error into the caller-facing APIError.
// Trigger-ingress rejections (webhook not-found/unauthorized/bad payload)
// carry their own HTTP status since no execution was attempted; everything
// else is translated through domain.ErrorKind.ExitCode.
func TranslateError(err error) *APIError {
	if err == nil {
		return NewAPIError("OK", "", http.StatusOK)
	}

	var webhookErr *trigger.WebhookError
	if errors.As(err, &webhookErr) {
		return NewAPIError(string(statusCode(webhookErr.Status)), webhookErr.Message, webhookErr.Status)
	}

	var engineErr *domain.Error
	if errors.As(err, &engineErr) {
		code := engineErr.Kind.ExitCode()
		return NewAPIError(string(code), engineErr.Error(), exitCodeStatus[code])
	}

	return NewAPIError(ErrInternalServer.Code, err.Error(), http.StatusInternalServerError)
}

func statusCode(status int) domain.ExitCode {
	switch status {
	case http.StatusNotFound:
		return domain.CodeNotFound
	case http.StatusUnauthorized:
		return "Unauthorized"
	case http.StatusBadRequest:
		return domain.CodeInvalidInput
	default:
		return domain.CodeInternal
	}
}

// validationAPIError renders a validate.Result with Missing/Invalid
// fields into an APIError whose Details surfaces the per-field breakdown,
// the same way an InputValidation domain.Error would via its message but
// with structure a client can act on directly.
func validationAPIError(result validate.Result) *APIError {
	details := map[string]any{}
	if len(result.Missing) > 0 {
		details["missing"] = result.Missing
	}
	if len(result.Invalid) > 0 {
		details["invalid"] = result.Invalid
	}
	return &APIError{
		Code:       string(domain.CodeInvalidInput),
		Message:    result.SuggestedPrompt,
		Details:    details,
		HTTPStatus: http.StatusBadRequest,
	}
}
