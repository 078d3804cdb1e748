package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Backend config keys.
const (
	KeyUiFormAPIKey      = "uiform_api_key"
	KeyUiFormAPIEndpoint = "uiform_api_endpoint"
	KeyOpenAIAPIKey      = "openai_api_key"
	KeySMTPUser          = "smtp_user"
	KeySMTPPass          = "smtp_pass"
	KeySMTPServer        = "smtp_server"
	KeySMTPPort          = "smtp_port"
	KeyGoogleSheetURL    = "google_sheet_url"
)

// UserConfig is the per-user configuration the backend stores (encrypted at
// rest on its side). The form fields are always sent, even when empty.
type UserConfig struct {
	UiFormAPIKey      string   `json:"uiform_api_key"`
	UiFormAPIEndpoint string   `json:"uiform_api_endpoint,omitempty"`
	OpenAIAPIKey      string   `json:"openai_api_key"`
	SMTPUser          string   `json:"smtp_user"`
	SMTPPass          string   `json:"smtp_pass"`
	SMTPServer        string   `json:"smtp_server"`
	SMTPPort          Port     `json:"smtp_port"`
	GoogleSheetURL    string   `json:"google_sheet_url"`
	WatchedFileTypes  []string `json:"watched_file_types,omitempty"`
}

// Port holds an SMTP port that the backend may return as a string or a number.
type Port string

// UnmarshalJSON accepts "587", 587 or null.
func (p *Port) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*p = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*p = Port(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("decode smtp_port: %w", err)
	}
	*p = Port(n.String())
	return nil
}

// Section groups the settings that are saved together.
type Section struct {
	Name   string
	Fields []string
}

// Sections lists the settings sections in display order.
var Sections = []Section{
	{Name: "UiForm API Key", Fields: []string{KeyUiFormAPIKey}},
	{Name: "OpenAI API Key", Fields: []string{KeyOpenAIAPIKey}},
	{Name: "Google Sheet URL", Fields: []string{KeyGoogleSheetURL}},
	{Name: "Email Settings", Fields: []string{KeySMTPUser, KeySMTPPass, KeySMTPServer, KeySMTPPort}},
}

// FormFields are the keys edited through the settings form.
var FormFields = []string{
	KeyUiFormAPIKey,
	KeyOpenAIAPIKey,
	KeySMTPUser,
	KeySMTPPass,
	KeySMTPServer,
	KeySMTPPort,
	KeyGoogleSheetURL,
}

var sensitive = map[string]bool{
	KeyOpenAIAPIKey:      true,
	KeyUiFormAPIKey:      true,
	KeyUiFormAPIEndpoint: true,
	KeySMTPPass:          true,
}

// ErrUnknownField is returned when a settings key is not recognised.
var ErrUnknownField = errors.New("unknown config field")

// IsSensitive reports whether a field holds a secret.
func IsSensitive(key string) bool { return sensitive[key] }

// SectionByName finds a settings section, case-insensitively.
func SectionByName(name string) (Section, bool) {
	for _, s := range Sections {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return Section{}, false
}

// Field returns the value of a config key.
func (c UserConfig) Field(key string) (string, error) {
	switch key {
	case KeyUiFormAPIKey:
		return c.UiFormAPIKey, nil
	case KeyUiFormAPIEndpoint:
		return c.UiFormAPIEndpoint, nil
	case KeyOpenAIAPIKey:
		return c.OpenAIAPIKey, nil
	case KeySMTPUser:
		return c.SMTPUser, nil
	case KeySMTPPass:
		return c.SMTPPass, nil
	case KeySMTPServer:
		return c.SMTPServer, nil
	case KeySMTPPort:
		return string(c.SMTPPort), nil
	case KeyGoogleSheetURL:
		return c.GoogleSheetURL, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownField, key)
}

// SetField assigns a config key. Values are trimmed.
func (c *UserConfig) SetField(key, value string) error {
	value = strings.TrimSpace(value)
	switch key {
	case KeyUiFormAPIKey:
		c.UiFormAPIKey = value
	case KeyUiFormAPIEndpoint:
		c.UiFormAPIEndpoint = value
	case KeyOpenAIAPIKey:
		c.OpenAIAPIKey = value
	case KeySMTPUser:
		c.SMTPUser = value
	case KeySMTPPass:
		c.SMTPPass = value
	case KeySMTPServer:
		c.SMTPServer = value
	case KeySMTPPort:
		c.SMTPPort = Port(value)
	case KeyGoogleSheetURL:
		c.GoogleSheetURL = value
	default:
		return fmt.Errorf("%w: %s", ErrUnknownField, key)
	}
	return nil
}

// SavedFields reports, per form field, whether a value is stored.
func (c UserConfig) SavedFields() map[string]bool {
	out := make(map[string]bool, len(FormFields))
	for _, k := range FormFields {
		v, _ := c.Field(k)
		out[k] = v != ""
	}
	return out
}

// Missing lists the form fields that are still empty.
func (c UserConfig) Missing() []string {
	var out []string
	for _, k := range FormFields {
		if v, _ := c.Field(k); v == "" {
			out = append(out, k)
		}
	}
	return out
}

// Mask hides all but the last four characters of a secret.
func Mask(secret string) string {
	if secret == "" {
		return ""
	}
	r := []rune(secret)
	if len(r) <= 4 {
		return strings.Repeat("•", len(r))
	}
	return strings.Repeat("•", len(r)-4) + string(r[len(r)-4:])
}

var sheetIDPattern = regexp.MustCompile(`/d/([a-zA-Z0-9_-]+)`)

// ErrInvalidSheetURL is returned for URLs without a /d/<id> segment.
var ErrInvalidSheetURL = errors.New("invalid Google Sheet URL")

// SheetID extracts the spreadsheet id from a Google Sheets URL.
func SheetID(url string) (string, error) {
	m := sheetIDPattern.FindStringSubmatch(url)
	if m == nil {
		return "", ErrInvalidSheetURL
	}
	return m[1], nil
}
