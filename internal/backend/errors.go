package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrNotConfigured is returned by calls that need a value the user has not
// saved yet, such as the OpenAI key or the sheet URL.
var ErrNotConfigured = errors.New("not configured")

// APIError is a non-2xx answer from the backend.
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Action  string `json:"action,omitempty"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("backend %d %s: %s", e.Status, e.Code, msg)
	}
	return fmt.Sprintf("backend %d: %s", e.Status, msg)
}

// StatusCode returns the HTTP status carried by err, or 0 when err is not an
// *APIError.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// decodeError understands {"detail":{"message","code","action"}},
// {"detail":"text"}, {"error":"text"} and plain-text bodies.
func decodeError(status int, body []byte) *APIError {
	e := &APIError{Status: status}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return e
	}

	var envelope struct {
		Detail  json.RawMessage `json:"detail"`
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		e.Message = truncate(text, 512)
		return e
	}

	for _, raw := range []json.RawMessage{envelope.Detail, envelope.Error} {
		if len(raw) == 0 {
			continue
		}
		var s string
		if json.Unmarshal(raw, &s) == nil {
			e.Message = s
			return e
		}
		var detail APIError
		if json.Unmarshal(raw, &detail) == nil && detail.Message != "" {
			detail.Status = status
			return &detail
		}
		// FastAPI validation errors carry a list under detail.
		var list []struct {
			Msg string `json:"msg"`
		}
		if json.Unmarshal(raw, &list) == nil && len(list) > 0 {
			msgs := make([]string, 0, len(list))
			for _, item := range list {
				msgs = append(msgs, item.Msg)
			}
			e.Message = strings.Join(msgs, "; ")
			e.Code = "VALIDATION_ERROR"
			return e
		}
	}
	if envelope.Message != "" {
		e.Message = envelope.Message
		return e
	}
	e.Message = truncate(text, 512)
	return e
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "") + "…"
}
