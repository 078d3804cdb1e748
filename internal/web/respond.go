package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"outreach/internal/backend"
	"outreach/internal/model"
	"outreach/internal/quiz"
	"outreach/internal/store"
	"outreach/internal/templates"
)

// maxJSONBody bounds request bodies decoded by readJSON.
const maxJSONBody = 1 << 20

// errorBody is the JSON shape of every failed API call. Redirect tells the
// page where the user can fix the problem.
type errorBody struct {
	Error    string `json:"error"`
	Code     string `json:"code,omitempty"`
	Action   string `json:"action,omitempty"`
	Redirect string `json:"redirect,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// needsSettings answers 400 and points the page at /settings.
func needsSettings(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg, Code: "NOT_CONFIGURED", Redirect: "/settings"})
}

// readJSON decodes a bounded JSON body into v. An empty body leaves v alone.
func readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// fail maps err to an HTTP answer. Backend client errors keep their status and
// message, backend server errors become 502.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *backend.APIError
	switch {
	case errors.As(err, &apiErr):
		status := apiErr.Status
		if status >= 500 || status < 400 {
			status = http.StatusBadGateway
		}
		s.logger.Warn("backend call failed",
			zap.String("path", r.URL.Path),
			zap.Int("backend_status", apiErr.Status),
			zap.Error(err))
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(apiErr.Status)
		}
		writeJSON(w, status, errorBody{Error: msg, Code: apiErr.Code, Action: apiErr.Action})
	case errors.Is(err, backend.ErrNotConfigured):
		needsSettings(w, err.Error())
	case errors.Is(err, model.ErrInvalidSheetURL),
		errors.Is(err, model.ErrUnknownField),
		errors.Is(err, templates.ErrInvalidName):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, templates.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, templates.ErrNotFound),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, quiz.ErrUnknownQuestion):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, context.Canceled):
		s.logger.Debug("request canceled", zap.String("path", r.URL.Path))
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "backend did not answer in time")
	default:
		s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusBadGateway, "backend unavailable")
	}
}
