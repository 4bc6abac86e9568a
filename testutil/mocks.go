// Mocked upstream HTTP servers for task-execution tests. Grounded on
// the teacher's go/testutil/mocks.go verbatim in shape: it exercises
// arbitrary HTTP endpoints the same way this engine's TaskExecutor
// dispatches http TaskResources, so no adaptation to FlowGate's domain
// types was needed here.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// SetupOpenAIMock creates a mock OpenAI chat-completions server.
func SetupOpenAIMock(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		response := map[string]any{
			"id":      "chatcmpl-test-123",
			"object":  "chat.completion",
			"created": 1234567890,
			"model":   "gpt-4",
			"choices": []map[string]any{
				{
					"index":         0,
					"message":       map[string]any{"role": "assistant", "content": "Mocked LLM response"},
					"finish_reason": "stop",
				},
			},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 20, "total_tokens": 30},
		}
		json.NewEncoder(w).Encode(response)
	}))
}

// SetupTelegramMock creates a mock Telegram Bot API sendMessage server.
func SetupTelegramMock(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		response := map[string]any{
			"ok": true,
			"result": map[string]any{
				"message_id": 123,
				"chat":       map[string]any{"id": 456, "type": "private"},
				"text":       "Mocked message",
			},
		}
		json.NewEncoder(w).Encode(response)
	}))
}

// SetupTelegramErrorMock creates a mock Telegram server returning a
// failure response, for exercising TaskExecutor's HTTP-error handling.
func SetupTelegramErrorMock(t *testing.T, errorCode int, description string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		response := map[string]any{"ok": false, "error_code": errorCode, "description": description}
		json.NewEncoder(w).Encode(response)
	}))
}

// SetupCustomMock creates a mock server backed by a caller-supplied
// handler, for test cases that need full control over the response.
func SetupCustomMock(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	return httptest.NewServer(handler)
}
