// Package stream reads the newline-delimited status feed the backend emits
// while previewing or sending outreach emails.
//
// Each line is either plain text ("✓ Email sent to a@b.com"), or JSON such as
// {"type":"error","message":"..."}, optionally prefixed with "data: " when the
// backend speaks text/event-stream. There is no framing beyond newlines and
// the feed ends when the response body does.
package stream

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Type classifies a status line.
type Type string

const (
	TypeStatus  Type = "status"
	TypeError   Type = "error"
	TypePreview Type = "preview"
)

// Event is one parsed line of the feed.
type Event struct {
	Type    Type            `json:"type"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	// Raw is the line after prefix stripping.
	Raw string `json:"-"`
	// Structured is true when Raw was a JSON object.
	Structured bool `json:"-"`
}

const dataPrefix = "data:"

// Parse classifies a single line. It never fails: anything that is not a JSON
// object becomes a status event carrying the line verbatim.
func Parse(line string) Event {
	ev, _ := parse(line)
	return ev
}

// parse also returns the JSON error, if any, so the Reader can log it.
func parse(line string) (Event, error) {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, dataPrefix) {
		line = strings.TrimSpace(line[len(dataPrefix):])
	}

	ev := Event{Type: TypeStatus, Message: line, Raw: line}
	if line == "" || (line[0] != '{' && line[0] != '[' && line[0] != '"') {
		return ev, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		return ev, err
	}
	ev.Structured = true

	typ := stringField(fields, "type")
	switch Type(typ) {
	case TypeStatus, TypeError, TypePreview:
		ev.Type = Type(typ)
	case "":
		if _, ok := fields["error"]; ok {
			ev.Type = TypeError
		}
	}

	if msg := firstString(fields, "message", "detail", "error", "status"); msg != "" {
		ev.Message = msg
	}
	for _, k := range []string{"data", "rows", "contacts"} {
		if raw, ok := fields[k]; ok && !isNull(raw) {
			ev.Data = raw
			break
		}
	}
	if ev.Type == TypePreview && len(ev.Data) > 0 && ev.Message == line {
		ev.Message = ""
	}
	return ev, nil
}

func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// firstString returns the first key holding a non-empty string. An object
// value under "detail" or "error" contributes its own "message".
func firstString(fields map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		raw, ok := fields[k]
		if !ok {
			continue
		}
		if s := stringField(fields, k); s != "" {
			return s
		}
		var nested map[string]json.RawMessage
		if json.Unmarshal(raw, &nested) == nil {
			if s := stringField(nested, "message"); s != "" {
				return s
			}
		}
	}
	return ""
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
