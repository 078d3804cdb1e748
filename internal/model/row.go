package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Row is one contact-sheet record. Column order is preserved from the
// backend's JSON object so previews render columns the way the sheet has them.
type Row struct {
	Columns []string
	Values  []any
}

// UnmarshalJSON decodes a JSON object keeping key order.
func (r *Row) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("decode row: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("decode row: expected JSON object")
	}

	r.Columns = r.Columns[:0]
	r.Values = r.Values[:0]
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("decode row key: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("decode row: unexpected key token %v", keyTok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("decode row value %q: %w", key, err)
		}
		r.Columns = append(r.Columns, key)
		r.Values = append(r.Values, v)
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("decode row: %w", err)
	}
	return nil
}

// MarshalJSON encodes the row as an object in column order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range r.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		var v any
		if i < len(r.Values) {
			v = r.Values[i]
		}
		vb, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Get returns the raw value of a column.
func (r Row) Get(col string) (any, bool) {
	for i, c := range r.Columns {
		if c == col && i < len(r.Values) {
			return r.Values[i], true
		}
	}
	return nil, false
}

// Text returns the column value formatted for display. Null cells are "".
func (r Row) Text(col string) string {
	v, _ := r.Get(col)
	return FormatCell(v)
}

// Cells returns every value formatted for display, in column order.
func (r Row) Cells() []string {
	out := make([]string, len(r.Columns))
	for i := range r.Columns {
		if i < len(r.Values) {
			out[i] = FormatCell(r.Values[i])
		}
	}
	return out
}

// FormatCell renders a decoded JSON value as plain text.
func FormatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

// Header returns the union of all row columns in first-seen order.
func Header(rows []Row) []string {
	seen := make(map[string]struct{})
	var cols []string
	for _, r := range rows {
		for _, c := range r.Columns {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			cols = append(cols, c)
		}
	}
	return cols
}

func itoa(n int) string { return strconv.Itoa(n) }
