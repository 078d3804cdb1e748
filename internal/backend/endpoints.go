package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"outreach/internal/model"
)

// ErrNotText rejects template uploads that are not .txt files.
var ErrNotText = errors.New("only .txt files are allowed")

// GetConfig returns the stored configuration for email. A user with nothing
// saved gets a zero UserConfig.
func (c *Client) GetConfig(ctx context.Context, email string) (model.UserConfig, error) {
	var cfg model.UserConfig
	q := url.Values{"email": {email}}
	if err := c.doJSON(ctx, http.MethodGet, c.endpoint(c.base, "/config", q), nil, &cfg, nil); err != nil {
		return model.UserConfig{}, fmt.Errorf("get config: %w", err)
	}
	return cfg, nil
}

// SaveConfig replaces the stored configuration for email.
func (c *Client) SaveConfig(ctx context.Context, email string, cfg model.UserConfig) error {
	in := struct {
		Email  string           `json:"email"`
		Config model.UserConfig `json:"config"`
	}{email, cfg}
	if err := c.doJSON(ctx, http.MethodPost, c.endpoint(c.base, "/config", nil), in, nil, nil); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}

// ListTemplates returns the backend's templates for email.
func (c *Client) ListTemplates(ctx context.Context, email string) ([]model.Template, error) {
	var out []model.Template
	q := url.Values{"email": {email}}
	if err := c.doJSON(ctx, http.MethodGet, c.endpoint(c.base, "/templates", q), nil, &out, nil); err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return out, nil
}

type templateBody struct {
	Email    string         `json:"email"`
	Template model.Template `json:"template"`
}

// CreateTemplate stores t for email and returns the saved copy.
func (c *Client) CreateTemplate(ctx context.Context, email string, t model.Template) (model.Template, error) {
	var out model.Template
	err := c.doJSON(ctx, http.MethodPost, c.endpoint(c.base, "/templates", nil), templateBody{email, t}, &out, nil)
	if err != nil {
		return model.Template{}, fmt.Errorf("create template: %w", err)
	}
	return out, nil
}

// UpdateTemplate replaces the template called name.
func (c *Client) UpdateTemplate(ctx context.Context, email, name string, t model.Template) (model.Template, error) {
	var out model.Template
	target := c.endpoint(c.base, "/templates/"+url.PathEscape(name), nil)
	if err := c.doJSON(ctx, http.MethodPut, target, templateBody{email, t}, &out, nil); err != nil {
		return model.Template{}, fmt.Errorf("update template: %w", err)
	}
	return out, nil
}

// DeleteTemplate removes name and reports whether anything was deleted.
func (c *Client) DeleteTemplate(ctx context.Context, email, name string) (bool, error) {
	var out struct {
		Success bool `json:"success"`
	}
	target := c.endpoint(c.base, "/templates/"+url.PathEscape(name), url.Values{"email": {email}})
	if err := c.doJSON(ctx, http.MethodDelete, target, nil, &out, nil); err != nil {
		return false, fmt.Errorf("delete template: %w", err)
	}
	return out.Success, nil
}

// UploadTemplate sends a .txt file as multipart form data. The backend names
// the template after the file without its extension.
func (c *Client) UploadTemplate(ctx context.Context, email, filename string, r io.Reader) (model.Template, error) {
	if !strings.EqualFold(filepath.Ext(filename), ".txt") {
		return model.Template{}, ErrNotText
	}
	fields := map[string]string{"email": email}
	files := []File{{Field: "file", Name: filename, Body: r}}
	var out model.Template
	if err := c.doMultipart(ctx, c.endpoint(c.base, "/templates/upload", nil), fields, files, &out); err != nil {
		return model.Template{}, fmt.Errorf("upload template: %w", err)
	}
	return out, nil
}

// StartWatcher asks the backend to monitor folder for screenshots.
func (c *Client) StartWatcher(ctx context.Context, email, folder string) (model.WatcherResult, error) {
	in := struct {
		WatchFolder string `json:"watchFolder"`
		Email       string `json:"email"`
	}{folder, email}
	var out model.WatcherResult
	if err := c.doJSON(ctx, http.MethodPost, c.endpoint(c.base, "/watcher/start", nil), in, &out, nil); err != nil {
		return model.WatcherResult{}, fmt.Errorf("start watcher: %w", err)
	}
	return out, nil
}

// StopWatcher stops the running watcher, if any.
func (c *Client) StopWatcher(ctx context.Context) (model.WatcherResult, error) {
	var out model.WatcherResult
	if err := c.doJSON(ctx, http.MethodPost, c.endpoint(c.base, "/watcher/stop", nil), nil, &out, nil); err != nil {
		return model.WatcherResult{}, fmt.Errorf("stop watcher: %w", err)
	}
	return out, nil
}

// WatcherStatus reports whether the watcher runs and what it has processed.
func (c *Client) WatcherStatus(ctx context.Context) (model.WatcherStatus, error) {
	var out model.WatcherStatus
	if err := c.doJSON(ctx, http.MethodGet, c.endpoint(c.base, "/watcher/status", nil), nil, &out, nil); err != nil {
		return model.WatcherStatus{}, fmt.Errorf("watcher status: %w", err)
	}
	return out, nil
}

// SelectFolder returns the backend's default watch folder, creating it on
// the backend host.
func (c *Client) SelectFolder(ctx context.Context) (string, error) {
	var out struct {
		Folder string `json:"folder"`
	}
	if err := c.doJSON(ctx, http.MethodPost, c.endpoint(c.base, "/select-folder", nil), nil, &out, nil); err != nil {
		return "", fmt.Errorf("select folder: %w", err)
	}
	return out.Folder, nil
}

// ProcessImage submits a single PNG screenshot for extraction.
func (c *Client) ProcessImage(ctx context.Context, email, filename string, r io.Reader) (string, error) {
	if !strings.EqualFold(filepath.Ext(filename), ".png") {
		return "", errors.New("only PNG files are supported")
	}
	var out struct {
		Message string `json:"message"`
	}
	fields := map[string]string{"email": email}
	files := []File{{Field: "file", Name: filename, Body: r}}
	if err := c.doMultipart(ctx, c.endpoint(c.base, "/process-image", nil), fields, files, &out); err != nil {
		return "", fmt.Errorf("process image: %w", err)
	}
	return out.Message, nil
}

// SheetPreview returns the first rows of the Google Sheet at sheetURL with
// column order preserved.
func (c *Client) SheetPreview(ctx context.Context, sheetURL string, rows int) ([]model.Row, error) {
	if _, err := model.SheetID(sheetURL); err != nil {
		return nil, err
	}
	if rows <= 0 {
		rows = 5
	}
	q := url.Values{"url": {sheetURL}, "rows": {strconv.Itoa(rows)}}
	var out []model.Row
	if err := c.doJSON(ctx, http.MethodGet, c.endpoint(c.base, "/sheet-preview", q), nil, &out, nil); err != nil {
		return nil, fmt.Errorf("sheet preview: %w", err)
	}
	return out, nil
}

// SendEmails starts a send (or, with Confirmed false, a preview) and returns
// the streaming status body. The caller must close it. Only ctx bounds the
// stream.
func (c *Client) SendEmails(ctx context.Context, req model.SendRequest) (io.ReadCloser, error) {
	if req.Email == "" || req.SheetURL == "" {
		return nil, &APIError{Status: http.StatusBadRequest, Code: "MISSING_PARAMS", Message: "Email and sheet URL are required"}
	}
	b, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode send request: %w", err)
	}
	httpReq, err := c.newRequest(ctx, http.MethodPost, c.endpoint(c.base, "/send-emails", nil), bytes.NewReader(b), "application/json")
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	resp, err := c.send(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send emails: %w", err)
	}
	return resp.Body, nil
}

// Download is a file returned by the backend.
type Download struct {
	Body        io.ReadCloser
	ContentType string
	Filename    string
}

// DownloadContacts refreshes the contact list from sheetURL and returns the
// resulting spreadsheet. action "delete" also clears processed screenshots.
func (c *Client) DownloadContacts(ctx context.Context, email, sheetURL, action string) (*Download, error) {
	in := struct {
		Email    string `json:"email"`
		SheetURL string `json:"sheet_url"`
		Action   string `json:"action,omitempty"`
	}{email, sheetURL, action}
	b, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encode download request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, c.endpoint(c.base, "/download-contacts", nil), bytes.NewReader(b), "application/json")
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "*/*")
	resp, err := c.send(req)
	if err != nil {
		return nil, fmt.Errorf("download contacts: %w", err)
	}

	d := &Download{
		Body:        resp.Body,
		ContentType: resp.Header.Get("Content-Type"),
		Filename:    "contact_list.xlsx",
	}
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		d.Filename = filepath.Base(params["filename"])
	}
	return d, nil
}
