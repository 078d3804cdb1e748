package model

import "time"

// Identity is the signed-in Google account.
type Identity struct {
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
}

// Template is an outreach email body with [PLACEHOLDER] tokens.
type Template struct {
	Name      string `json:"name"`
	Content   string `json:"content"`
	Email     string `json:"email,omitempty"`
	IsDefault bool   `json:"is_default,omitempty"`
}

// SendRequest is the body of the backend's /send-emails call.
// Confirmed=false asks the backend for a preview stream only.
type SendRequest struct {
	Email     string `json:"email"`
	SheetURL  string `json:"sheet_url"`
	Confirmed bool   `json:"confirmed"`
	UseCC     bool   `json:"use_cc"`
}

// WatcherStatus mirrors GET /watcher/status.
type WatcherStatus struct {
	IsRunning      bool     `json:"is_running"`
	ProcessedFiles []string `json:"processed_files"`
}

// WatcherResult is the body returned by /watcher/start and /watcher/stop.
type WatcherResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// ChatMessage is one turn of a chat conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat modes accepted by the chat backend.
const (
	ChatModeCourse   = "course"
	ChatModeInternet = "internet"
	ChatModeFree     = "free-answer"
)

// Send run states.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
	RunCanceled  = "canceled"
)

// SendRun summarizes one streamed send (or preview) against the backend.
type SendRun struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	SheetURL   string    `json:"sheet_url"`
	Preview    bool      `json:"preview"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	Total      int       `json:"total"`
	Processed  int       `json:"processed"`
	Sent       int       `json:"sent"`
	Failed     int       `json:"failed"`
	Status     string    `json:"status"`
}

// RunEvent is a single status line recorded for a SendRun.
type RunEvent struct {
	RunID     string    `json:"run_id"`
	Seq       int       `json:"seq"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// ToSlice flattens a run for CSV export.
func (r SendRun) ToSlice() []string {
	finished := ""
	if !r.FinishedAt.IsZero() {
		finished = r.FinishedAt.Format(time.RFC3339)
	}
	return []string{
		r.ID,
		r.Email,
		r.SheetURL,
		r.StartedAt.Format(time.RFC3339),
		finished,
		itoa(r.Total),
		itoa(r.Sent),
		itoa(r.Failed),
		r.Status,
	}
}

// RunCSVHeader is the header row matching SendRun.ToSlice.
var RunCSVHeader = []string{"id", "email", "sheet_url", "started_at", "finished_at", "total", "sent", "failed", "status"}
