package web

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outreach/internal/auth"
	"outreach/internal/backend"
	"outreach/internal/config"
	"outreach/internal/model"
	"outreach/internal/store"
	"outreach/internal/templates"
)

const (
	testEmail = "ada@example.com"
	testSheet = "https://docs.google.com/spreadsheets/d/1AbC-xyz/edit"
)

// fakeBackend is an in-memory stand-in for the outreach backend.
type fakeBackend struct {
	mu       sync.Mutex
	config   map[string]model.UserConfig
	stream   []string
	acks     chan struct{} // when set, each stream chunk waits for one ack
	deleted  []string
	sendReqs []model.SendRequest
	chats    [][]model.ChatMessage
}

func (f *fakeBackend) setConfig(email string, cfg model.UserConfig) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.config[email] = cfg
}

func (f *fakeBackend) getConfig(email string) model.UserConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.config[email]
}

func (f *fakeBackend) setStream(lines ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stream = lines
}

// calls returns copies of what the backend has been asked to do.
func (f *fakeBackend) calls() (deleted []string, sends []model.SendRequest, chats [][]model.ChatMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.deleted), slices.Clone(f.sendReqs), slices.Clone(f.chats)
}

func (f *fakeBackend) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"message":"API is running"}`)
	})
	mux.HandleFunc("GET /config", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		json.NewEncoder(w).Encode(f.config[r.URL.Query().Get("email")])
	})
	mux.HandleFunc("POST /config", func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Email  string           `json:"email"`
			Config model.UserConfig `json:"config"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		f.mu.Lock()
		f.config[in.Email] = in.Config
		f.mu.Unlock()
		io.WriteString(w, `{"status":"ok"}`)
	})
	mux.HandleFunc("DELETE /templates/{name}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.deleted = append(f.deleted, r.PathValue("name"))
		f.mu.Unlock()
		io.WriteString(w, `{"success":true}`)
	})
	mux.HandleFunc("GET /sheet-preview", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"last_name":"Lovelace","first_name":"Ada","email":"ada@x.com"}]`)
	})
	mux.HandleFunc("POST /send-emails", func(w http.ResponseWriter, r *http.Request) {
		var req model.SendRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		f.mu.Lock()
		f.sendReqs = append(f.sendReqs, req)
		chunks, acks := f.stream, f.acks
		f.mu.Unlock()
		w.Header().Set("Content-Type", "text/event-stream")
		// Like the send script: one flushed chunk per message, no newline.
		for _, c := range chunks {
			io.WriteString(w, c)
			w.(http.Flusher).Flush()
			if acks == nil {
				continue
			}
			select {
			case <-acks:
			case <-r.Context().Done():
				return
			case <-time.After(5 * time.Second):
				t.Errorf("chunk %q was never relayed", c)
				return
			}
		}
	})
	mux.HandleFunc("POST /download-contacts", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		io.WriteString(w, "PK\x03\x04")
	})
	mux.HandleFunc("POST /api/chat", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var in struct {
			Messages []model.ChatMessage `json:"messages"`
			Mode     string              `json:"mode"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		f.mu.Lock()
		f.chats = append(f.chats, in.Messages)
		f.mu.Unlock()
		io.WriteString(w, `{"answer":"EBITDA is earnings before interest, taxes, depreciation and amortization."}`)
	})
	mux.HandleFunc("GET /watcher/status", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"is_running":true,"processed_files":["a.png"]}`)
	})
	mux.HandleFunc("POST /select-folder", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"folder":"/srv/screenshots"}`)
	})
	mux.HandleFunc("POST /watcher/start", func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			WatchFolder string `json:"watchFolder"`
			Email       string `json:"email"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "/srv/screenshots", in.WatchFolder)
		assert.Equal(t, testEmail, in.Email)
		io.WriteString(w, `{"status":"success","message":"Watcher started"}`)
	})
	return mux
}

type testEnv struct {
	srv      *Server
	backend  *fakeBackend
	store    *store.SQLiteStore
	tmpl     *templates.Store
	sessions *auth.Sessions
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fb := &fakeBackend{config: map[string]model.UserConfig{}}
	upstream := httptest.NewServer(fb.handler(t))
	t.Cleanup(upstream.Close)

	cfg := config.DefaultConfig()
	cfg.BackendURL = upstream.URL
	cfg.PublicURL = "http://localhost:3000"

	bc, err := backend.New(upstream.URL)
	require.NoError(t, err)
	tmpl, err := templates.NewStore(t.TempDir(), nil)
	require.NoError(t, err)
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "outreach.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	sessions, err := auth.NewSessions(strings.Repeat("k", 32), time.Hour, false)
	require.NoError(t, err)

	srv, err := New(Deps{
		Config:    cfg,
		Backend:   bc,
		Templates: tmpl,
		Store:     st,
		Sessions:  sessions,
	})
	require.NoError(t, err)
	return &testEnv{srv: srv, backend: fb, store: st, tmpl: tmpl, sessions: sessions}
}

// do runs a request through the handler, signed in as testEmail unless anon.
func (e *testEnv) do(t *testing.T, req *http.Request, anon bool) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.serve(t, rec, req, anon)
	return rec
}

func (e *testEnv) serve(t *testing.T, w http.ResponseWriter, req *http.Request, anon bool) {
	t.Helper()
	if !anon {
		token, err := e.sessions.Issue(model.Identity{Email: testEmail, Name: "Ada"})
		require.NoError(t, err)
		req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: token})
	}
	e.srv.Handler().ServeHTTP(w, req)
}

// ackRecorder acks the fake backend after every write so the next chunk is
// only sent once the previous one has been relayed.
type ackRecorder struct {
	*httptest.ResponseRecorder
	acks chan<- struct{}
}

func (a ackRecorder) Write(p []byte) (int, error) {
	n, err := a.ResponseRecorder.Write(p)
	select {
	case a.acks <- struct{}{}:
	default:
	}
	return n, err
}

// brokenWriter is a client that hung up after the headers were sent.
type brokenWriter struct {
	*httptest.ResponseRecorder
}

func (brokenWriter) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }

func jsonRequest(method, target string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(Deps{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend")
}

func TestAccessControl(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, httptest.NewRequest(http.MethodGet, "/dashboard", nil), true)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	rec = e.do(t, httptest.NewRequest(http.MethodGet, "/somewhere/else", nil), true)
	assert.Equal(t, http.StatusFound, rec.Code)

	rec = e.do(t, httptest.NewRequest(http.MethodGet, "/api/config", nil), true)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(t, httptest.NewRequest(http.MethodGet, "/", nil), true)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Outreach Assistant")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = e.do(t, httptest.NewRequest(http.MethodGet, "/static/app.js", nil), true)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, httptest.NewRequest(http.MethodGet, "/dashboard", nil), false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), testEmail)
}

func TestInvalidSessionCookieIsCleared(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: "forged"})
	rec := e.do(t, req, true)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("Set-Cookie"), auth.CookieName+"=;")
}

func TestLoginWithoutOAuth(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, httptest.NewRequest(http.MethodGet, "/auth/google/login", nil), true)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLogoutClearsCookie(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, httptest.NewRequest(http.MethodPost, "/auth/logout", nil), false)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Contains(t, rec.Header().Get("Set-Cookie"), "Max-Age=0")
}

func TestConfigSectionSave(t *testing.T) {
	e := newTestEnv(t)
	e.backend.setConfig(testEmail, model.UserConfig{OpenAIAPIKey: "sk-secret-1234", SMTPServer: "smtp.old"})

	rec := e.do(t, httptest.NewRequest(http.MethodGet, "/api/config", nil), false)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[configResponse](t, rec)
	assert.Equal(t, model.Mask("sk-secret-1234"), got.Config[model.KeyOpenAIAPIKey])
	assert.True(t, got.Saved[model.KeyOpenAIAPIKey])
	assert.Contains(t, got.Missing, model.KeySMTPUser)

	// Saving the email section must keep the key and replace SMTP fields.
	rec = e.do(t, jsonRequest(http.MethodPost, "/api/config", map[string]any{
		"section": "Email Settings",
		"values": map[string]string{
			model.KeySMTPUser:   "ada@example.com",
			model.KeySMTPServer: "smtp.gmail.com",
			model.KeySMTPPort:   "587",
			model.KeySMTPPass:   "app-password",
		},
	}), false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "✓ Email Settings saved.")

	stored := e.backend.getConfig(testEmail)
	assert.Equal(t, "sk-secret-1234", stored.OpenAIAPIKey)
	assert.Equal(t, "smtp.gmail.com", stored.SMTPServer)
	assert.Equal(t, model.Port("587"), stored.SMTPPort)

	// Submitting the masked value leaves the secret alone.
	rec = e.do(t, jsonRequest(http.MethodPost, "/api/config", map[string]any{
		"section": "OpenAI API Key",
		"values":  map[string]string{model.KeyOpenAIAPIKey: model.Mask("sk-secret-1234")},
	}), false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sk-secret-1234", e.backend.getConfig(testEmail).OpenAIAPIKey)
}

func TestConfigSaveRejects(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, jsonRequest(http.MethodPost, "/api/config", map[string]any{"section": "Nope"}), false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, jsonRequest(http.MethodPost, "/api/config", map[string]any{
		"section": "Google Sheet URL",
		"values":  map[string]string{model.KeyGoogleSheetURL: "https://example.com/not-a-sheet"},
	}), false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTemplatesUploadListDelete(t *testing.T) {
	e := newTestEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("template", "Intro.txt")
	require.NoError(t, err)
	io.WriteString(fw, "Hello [FIRST_NAME]")
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/templates/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := e.do(t, req, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.do(t, httptest.NewRequest(http.MethodGet, "/api/templates", nil), false)
	list := decodeBody[[]model.Template](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "Intro.txt", list[0].Name)
	assert.Equal(t, "Hello [FIRST_NAME]", list[0].Content)

	rec = e.do(t, httptest.NewRequest(http.MethodDelete, "/api/templates/Intro.txt", nil), false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	deleted, _, _ := e.backend.calls()
	assert.Equal(t, []string{"Intro"}, deleted)
	_, err = e.tmpl.Get("Intro.txt")
	assert.ErrorIs(t, err, templates.ErrNotFound)
}

func TestTemplateUploadRejectsNonText(t *testing.T) {
	e := newTestEnv(t)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("template", "evil.sh")
	io.WriteString(fw, "rm -rf /")
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/templates/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := e.do(t, req, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWatcherStartPicksFolder(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, jsonRequest(http.MethodPost, "/api/watcher/start", map[string]string{}), false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "/srv/screenshots", got["folder"])
	assert.Equal(t, "Watcher started", got["message"])

	rec = e.do(t, httptest.NewRequest(http.MethodGet, "/api/watcher/status", nil), false)
	st := decodeBody[model.WatcherStatus](t, rec)
	assert.True(t, st.IsRunning)
}

func TestSheetPreviewNeedsSheet(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, httptest.NewRequest(http.MethodGet, "/api/sheet-preview", nil), false)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody[errorBody](t, rec)
	assert.Equal(t, "/settings", body.Redirect)

	e.backend.setConfig(testEmail, model.UserConfig{GoogleSheetURL: testSheet})
	rec = e.do(t, httptest.NewRequest(http.MethodGet, "/api/sheet-preview?rows=3", nil), false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got struct {
		Columns []string `json:"columns"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, []string{"last_name", "first_name", "email"}, got.Columns)
}

// readSSE splits a text/event-stream body into its data payloads.
func readSSE(t *testing.T, r io.Reader) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &m))
		out = append(out, m)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestSendEmailsRelaysAndRecords(t *testing.T) {
	e := newTestEnv(t)
	e.backend.setConfig(testEmail, model.UserConfig{GoogleSheetURL: testSheet})
	e.backend.setStream(
		`data: {"type":"status","message":"...preparing email for Ada (ada@x.com)..."}`,
		"✓ Email sent to ada@x.com",
		`{"type":"error","message":"Failed to send to bob@x.com"}`,
		"not json {",
	)
	acks := make(chan struct{}, 16)
	e.backend.mu.Lock()
	e.backend.acks = acks
	e.backend.mu.Unlock()

	rec := httptest.NewRecorder()
	e.serve(t, ackRecorder{ResponseRecorder: rec, acks: acks},
		jsonRequest(http.MethodPost, "/api/send-emails", map[string]any{"confirmed": true, "use_cc": true}), false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	runID := rec.Header().Get("X-Run-ID")
	require.NotEmpty(t, runID)

	events := readSSE(t, rec.Body)
	require.Len(t, events, 5)
	assert.Equal(t, "log", events[0]["effect"])
	assert.Equal(t, "sent", events[1]["effect"])
	assert.Equal(t, "toast", events[2]["effect"])
	assert.Equal(t, "not json {", events[3]["message"])
	summary := events[4]
	assert.Equal(t, "summary", summary["type"])
	run := summary["run"].(map[string]any)
	assert.Equal(t, model.RunCompleted, run["status"])
	assert.EqualValues(t, 1, run["sent"])
	assert.EqualValues(t, 1, run["failed"])

	_, sends, _ := e.backend.calls()
	require.Len(t, sends, 1)
	assert.Equal(t, testSheet, sends[0].SheetURL)
	assert.True(t, sends[0].UseCC)

	stored, err := e.store.GetRun(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, stored.Status)
	assert.False(t, stored.Preview)
	evs, err := e.store.RunEvents(context.Background(), runID)
	require.NoError(t, err)
	require.Len(t, evs, 4)
	assert.Equal(t, "error", evs[2].Type)

	rec = e.do(t, httptest.NewRequest(http.MethodGet, "/api/history/"+runID, nil), false)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = e.do(t, httptest.NewRequest(http.MethodGet, "/history/"+runID, nil), false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Failed to send to bob@x.com")

	rec = e.do(t, httptest.NewRequest(http.MethodGet, "/api/history?format=csv", nil), false)
	assert.Equal(t, http.StatusOK, rec.Code)
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, strings.Join(model.RunCSVHeader, ","), lines[0])
}

func TestSendEmailsClientGoneIsCanceled(t *testing.T) {
	e := newTestEnv(t)
	e.backend.setConfig(testEmail, model.UserConfig{GoogleSheetURL: testSheet})
	e.backend.setStream("...preparing email for Ada (ada@x.com)...", "✓ Email sent to ada@x.com")

	rec := httptest.NewRecorder()
	e.serve(t, brokenWriter{rec}, jsonRequest(http.MethodPost, "/api/send-emails", map[string]any{"confirmed": true}), false)
	runID := rec.Header().Get("X-Run-ID")
	require.NotEmpty(t, runID)

	stored, err := e.store.GetRun(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, model.RunCanceled, stored.Status)
}

func TestSendEmailsWithoutSheet(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, jsonRequest(http.MethodPost, "/api/send-emails", map[string]any{"confirmed": false}), false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	_, sends, _ := e.backend.calls()
	assert.Empty(t, sends)
}

func TestRunOfAnotherUserIsHidden(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, e.store.CreateRun(ctx, model.SendRun{
		ID: "other", Email: "eve@example.com", SheetURL: testSheet, StartedAt: time.Now(),
	}))
	rec := e.do(t, httptest.NewRequest(http.MethodGet, "/api/history/other", nil), false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDownloadContacts(t *testing.T) {
	e := newTestEnv(t)
	e.backend.setConfig(testEmail, model.UserConfig{GoogleSheetURL: testSheet})
	rec := e.do(t, jsonRequest(http.MethodPost, "/api/contacts/download", map[string]string{"action": "download"}), false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "contact_list.xlsx")
	assert.Equal(t, "PK\x03\x04", rec.Body.String())
}

func TestChat(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, jsonRequest(http.MethodPost, "/api/chat", map[string]string{"message": "What is EBITDA?"}), false)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "/settings", decodeBody[errorBody](t, rec).Redirect)

	e.backend.setConfig(testEmail, model.UserConfig{OpenAIAPIKey: "sk-test"})
	for range 2 {
		rec = e.do(t, jsonRequest(http.MethodPost, "/api/chat", map[string]string{"message": "What is EBITDA?", "mode": "course"}), false)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	assert.Contains(t, decodeBody[map[string]string](t, rec)["answer"], "EBITDA")

	// The second call carries the first turn as history.
	_, _, chats := e.backend.calls()
	require.Len(t, chats, 2)
	assert.Len(t, chats[0], 1)
	assert.Len(t, chats[1], 3)

	rec = e.do(t, httptest.NewRequest(http.MethodDelete, "/api/chat/history?mode=course", nil), false)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	msgs, err := e.store.ChatHistory(context.Background(), testEmail, model.ChatModeCourse, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestQuizFlow(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, httptest.NewRequest(http.MethodGet, "/api/quiz?subject=Valuation&count=2", nil), false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"answer"`)

	rec = e.do(t, jsonRequest(http.MethodPost, "/api/quiz/answer", map[string]any{"id": 2, "choice": "Intrinsic Value"}), false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody[map[string]any](t, rec)["correct"])

	rec = e.do(t, jsonRequest(http.MethodPost, "/api/quiz/answer", map[string]any{"id": 999}), false)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	form := strings.NewReader("id=2&q2=Intrinsic+Value&id=3&q3=Coupon+rate")
	req := httptest.NewRequest(http.MethodPost, "/mcq/quiz", form)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = e.do(t, req, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "You scored 1 out of 2")
}

func TestPagesRender(t *testing.T) {
	e := newTestEnv(t)
	for _, path := range []string{
		"/dashboard", "/settings", "/templates", "/contacts", "/watcher",
		"/chat", "/chat?mode=internet", "/free-answer", "/mcq", "/mcq/quiz?subject=Markets&count=3",
		"/references", "/history",
	} {
		rec := e.do(t, httptest.NewRequest(http.MethodGet, path, nil), false)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/html", path)
	}
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil), true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "API is running", decodeBody[map[string]string](t, rec)["backend"])
}

func TestServeShutsDownOnCancel(t *testing.T) {
	e := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	ln, err := newLocalListener()
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- e.srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func newLocalListener() (net.Listener, error) {
	return net.Listen("tcp", "127.0.0.1:0")
}
