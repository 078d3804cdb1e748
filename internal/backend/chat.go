package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"outreach/internal/model"
)

func bearer(apiKey string) (http.Header, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key: %w", ErrNotConfigured)
	}
	return http.Header{"Authorization": {"Bearer " + apiKey}}, nil
}

// Chat sends the whole conversation and returns the assistant's answer.
// mode is model.ChatModeCourse or model.ChatModeInternet.
func (c *Client) Chat(ctx context.Context, apiKey string, messages []model.ChatMessage, mode string) (string, error) {
	h, err := bearer(apiKey)
	if err != nil {
		return "", err
	}
	in := struct {
		Messages []model.ChatMessage `json:"messages"`
		Mode     string              `json:"mode"`
	}{messages, mode}
	var out struct {
		Answer string `json:"answer"`
	}
	if err := c.doJSON(ctx, http.MethodPost, c.endpoint(c.apiBase, "/api/chat", nil), in, &out, h); err != nil {
		return "", fmt.Errorf("chat: %w", err)
	}
	return out.Answer, nil
}

// FreeAnswer grades a free-form answer to question and returns feedback.
func (c *Client) FreeAnswer(ctx context.Context, apiKey, question string) (string, error) {
	h, err := bearer(apiKey)
	if err != nil {
		return "", err
	}
	in := struct {
		Question string `json:"question"`
	}{question}
	var out struct {
		Feedback string `json:"feedback"`
	}
	if err := c.doJSON(ctx, http.MethodPost, c.endpoint(c.apiBase, "/api/free-answer", nil), in, &out, h); err != nil {
		return "", fmt.Errorf("free answer: %w", err)
	}
	return out.Feedback, nil
}

// UploadReferences forwards course PDFs under the multipart field "files" and
// returns the backend's JSON answer untouched.
func (c *Client) UploadReferences(ctx context.Context, files []File) (json.RawMessage, error) {
	for i := range files {
		files[i].Field = "files"
	}
	var out json.RawMessage
	if err := c.doMultipart(ctx, c.endpoint(c.base, "/api/pdf/upload", nil), nil, files, &out); err != nil {
		return nil, fmt.Errorf("upload references: %w", err)
	}
	return out, nil
}
