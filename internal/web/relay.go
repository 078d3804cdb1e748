package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"outreach/internal/model"
	"outreach/internal/sendrun"
)

// relayEvent is one server-sent event forwarded to the browser. Counters are
// the totals after the event was applied.
type relayEvent struct {
	Seq       int             `json:"seq"`
	Type      string          `json:"type"`
	Message   string          `json:"message,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Effect    string          `json:"effect"`
	Total     int             `json:"total"`
	Processed int             `json:"processed"`
	Sent      int             `json:"sent"`
	Failed    int             `json:"failed"`
	Remaining int             `json:"remaining"`
}

type relaySummary struct {
	Type   string        `json:"type"`
	Run    model.SendRun `json:"run"`
	Errors []string      `json:"errors"`
}

func writeSSE(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", b)
	return err
}

// handleSendEmails starts a preview (confirmed=false) or a real send on the
// backend and relays its status feed as text/event-stream. A final "summary"
// event carries the recorded run unless the client went away.
func (s *Server) handleSendEmails(w http.ResponseWriter, r *http.Request, id model.Identity) {
	var in struct {
		SheetURL  string `json:"sheet_url"`
		Confirmed bool   `json:"confirmed"`
		UseCC     bool   `json:"use_cc"`
	}
	if err := readJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sheetURL, err := s.sheetURL(r, id, in.SheetURL)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if sheetURL == "" {
		needsSettings(w, "Google Sheet URL not found in config")
		return
	}
	if _, err := model.SheetID(sheetURL); err != nil {
		s.fail(w, r, err)
		return
	}

	run, err := s.runner.Start(r.Context(), model.SendRequest{
		Email:     id.Email,
		SheetURL:  sheetURL,
		Confirmed: in.Confirmed,
		UseCC:     in.UseCC,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	h.Set("X-Run-ID", run.ID())
	w.WriteHeader(http.StatusOK)
	rc := http.NewResponseController(w)
	_ = rc.Flush()

	res, _ := run.Stream(r.Context(), func(u sendrun.Update) error {
		out := relayEvent{
			Seq:       u.Seq,
			Type:      string(u.Event.Type),
			Message:   u.Event.Message,
			Data:      u.Event.Data,
			Effect:    u.Effect.String(),
			Total:     u.Total,
			Processed: u.Processed,
			Sent:      u.Sent,
			Failed:    u.Failed,
			Remaining: u.Remaining,
		}
		if err := writeSSE(w, out); err != nil {
			return fmt.Errorf("%w: write: %v", sendrun.ErrClientGone, err)
		}
		if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return fmt.Errorf("%w: flush: %v", sendrun.ErrClientGone, err)
		}
		return nil
	})
	if res.Run.Status == model.RunCanceled {
		return
	}
	errs := res.Errors
	if errs == nil {
		errs = []string{}
	}
	if err := writeSSE(w, relaySummary{Type: "summary", Run: res.Run, Errors: errs}); err == nil {
		_ = rc.Flush()
	}
}
