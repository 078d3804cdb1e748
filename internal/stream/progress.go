package stream

import (
	"encoding/json"
	"strings"

	"outreach/internal/model"
)

// Effect tells a UI how to react to an applied event.
type Effect int

const (
	EffectNone Effect = iota
	// EffectLog appends a line to the visible log.
	EffectLog
	// EffectSent bumps the sent counter.
	EffectSent
	// EffectToast surfaces an error notification.
	EffectToast
	// EffectPreview replaces the contact preview table.
	EffectPreview
)

func (e Effect) String() string {
	switch e {
	case EffectLog:
		return "log"
	case EffectSent:
		return "sent"
	case EffectToast:
		return "toast"
	case EffectPreview:
		return "preview"
	}
	return "none"
}

// Progress accumulates counters and logs for one send or preview stream.
// The zero value is ready to use.
type Progress struct {
	Total     int         `json:"total"`
	Processed int         `json:"processed"`
	Sent      int         `json:"sent"`
	Failed    int         `json:"failed"`
	Log       []string    `json:"log"`
	Errors    []string    `json:"errors"`
	Preview   []model.Row `json:"preview,omitempty"`
	Done      bool        `json:"done"`
}

// Apply folds ev into p and reports what changed.
func (p *Progress) Apply(ev Event) Effect {
	switch ev.Type {
	case TypePreview:
		if rows, ok := decodeRows(ev.Data); ok {
			p.Preview = rows
			p.Total = len(rows)
			return EffectPreview
		}
		if ev.Message == "" {
			return p.applyStatus(ev.Raw)
		}
		return p.applyStatus(ev.Message)
	case TypeError:
		msg := ev.Message
		if msg == "" {
			msg = ev.Raw
		}
		p.Failed++
		p.Errors = append(p.Errors, msg)
		p.Log = append(p.Log, msg)
		return EffectToast
	default:
		return p.applyStatus(ev.Message)
	}
}

func (p *Progress) applyStatus(msg string) Effect {
	if msg == "" {
		return EffectNone
	}
	p.Log = append(p.Log, msg)

	lower := strings.ToLower(msg)
	switch {
	case strings.HasPrefix(msg, "✓") || strings.Contains(lower, "email sent to"):
		p.Sent++
		return EffectSent
	case strings.Contains(lower, "failed to send"):
		p.Failed++
		p.Errors = append(p.Errors, msg)
		return EffectToast
	case strings.Contains(lower, "preparing email for"):
		p.Processed++
	}
	return EffectLog
}

// Finish marks the stream as ended.
func (p *Progress) Finish() { p.Done = true }

// Remaining is Total minus the sent and failed counts, never negative.
// It is zero while Total is unknown.
func (p *Progress) Remaining() int {
	n := p.Total - p.Sent - p.Failed
	if n < 0 {
		return 0
	}
	return n
}

func decodeRows(raw json.RawMessage) ([]model.Row, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var rows []model.Row
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, false
	}
	return rows, true
}
