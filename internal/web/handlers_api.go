package web

import (
	"encoding/csv"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"outreach/internal/backend"
	"outreach/internal/model"
	"outreach/internal/quiz"
	"outreach/internal/store"
	"outreach/internal/templates"
)

const (
	maxUploadMemory = 8 << 20
	maxUploadBody   = 64 << 20
)

// Settings.

type configResponse struct {
	Config  map[string]string `json:"config"`
	Saved   map[string]bool   `json:"saved"`
	Missing []string          `json:"missing"`
}

func maskedConfig(cfg model.UserConfig) configResponse {
	out := configResponse{
		Config:  make(map[string]string, len(model.FormFields)),
		Saved:   cfg.SavedFields(),
		Missing: cfg.Missing(),
	}
	for _, k := range model.FormFields {
		v, _ := cfg.Field(k)
		if model.IsSensitive(k) {
			v = model.Mask(v)
		}
		out.Config[k] = v
	}
	if out.Missing == nil {
		out.Missing = []string{}
	}
	return out
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request, id model.Identity) {
	cfg, err := s.backend.GetConfig(r.Context(), id.Email)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, maskedConfig(cfg))
}

// handleSaveConfig updates one settings section. The whole config is read
// back first and written in one piece, and a secret submitted in its masked
// form is left unchanged.
func (s *Server) handleSaveConfig(w http.ResponseWriter, r *http.Request, id model.Identity) {
	var in struct {
		Section string            `json:"section"`
		Values  map[string]string `json:"values"`
	}
	if err := readJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sec, ok := model.SectionByName(in.Section)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown settings section "+strconv.Quote(in.Section))
		return
	}

	cfg, err := s.backend.GetConfig(r.Context(), id.Email)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	for _, key := range sec.Fields {
		v, ok := in.Values[key]
		if !ok {
			continue
		}
		if model.IsSensitive(key) {
			current, _ := cfg.Field(key)
			if v == model.Mask(current) && current != "" {
				continue
			}
		}
		if key == model.KeyGoogleSheetURL && strings.TrimSpace(v) != "" {
			if _, err := model.SheetID(v); err != nil {
				s.fail(w, r, err)
				return
			}
		}
		if err := cfg.SetField(key, v); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	if err := s.backend.SaveConfig(r.Context(), id.Email, cfg); err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info("settings saved", zap.String("email", id.Email), zap.String("section", sec.Name))

	resp := maskedConfig(cfg)
	writeJSON(w, http.StatusOK, struct {
		configResponse
		Message string `json:"message"`
	}{resp, "✓ " + sec.Name + " saved."})
}

// Templates.

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request, _ model.Identity) {
	list, err := s.templates.List()
	if err != nil {
		s.logger.Error("list templates", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not read templates")
		return
	}
	if list == nil {
		list = []model.Template{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleUploadTemplate(w http.ResponseWriter, r *http.Request, _ model.Identity) {
	r.Body = http.MaxBytesReader(w, r.Body, templates.MaxSize+(64<<10))
	file, hdr, err := r.FormFile("template")
	if err != nil {
		writeError(w, http.StatusBadRequest, "expected a multipart field named template")
		return
	}
	defer file.Close()

	name := filepath.Base(hdr.Filename)
	if err := s.templates.Save(name, file); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Template uploaded successfully",
		"name":    name,
	})
}

// handleDeleteTemplate removes the template on the backend and from the local
// directory. A template that exists in only one of the two still counts.
func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request, id model.Identity) {
	name := r.PathValue("name")
	local := name
	if !strings.EqualFold(filepath.Ext(local), templates.Ext) {
		local += templates.Ext
	}
	remote := strings.TrimSuffix(local, filepath.Ext(local))

	ok, err := s.backend.DeleteTemplate(r.Context(), id.Email, remote)
	if err != nil && backend.StatusCode(err) != http.StatusNotFound {
		s.fail(w, r, err)
		return
	}
	removed := false
	switch err := s.templates.Delete(local); {
	case err == nil:
		removed = true
	case errors.Is(err, templates.ErrNotFound):
	default:
		s.fail(w, r, err)
		return
	}
	if !ok && !removed {
		writeError(w, http.StatusNotFound, "template not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Watcher.

func (s *Server) handleWatcherStart(w http.ResponseWriter, r *http.Request, id model.Identity) {
	var in struct {
		Folder string `json:"watchFolder"`
	}
	if err := readJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	folder := strings.TrimSpace(in.Folder)
	if folder == "" {
		var err error
		if folder, err = s.backend.SelectFolder(r.Context()); err != nil {
			s.fail(w, r, err)
			return
		}
		if folder == "" {
			writeError(w, http.StatusBadRequest, "no folder selected")
			return
		}
	}
	res, err := s.backend.StartWatcher(r.Context(), id.Email, folder)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		model.WatcherResult
		Folder string `json:"folder"`
	}{res, folder})
}

func (s *Server) handleWatcherStop(w http.ResponseWriter, r *http.Request, _ model.Identity) {
	res, err := s.backend.StopWatcher(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleWatcherStatus(w http.ResponseWriter, r *http.Request, _ model.Identity) {
	st, err := s.backend.WatcherStatus(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if st.ProcessedFiles == nil {
		st.ProcessedFiles = []string{}
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleProcessImage(w http.ResponseWriter, r *http.Request, id model.Identity) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "expected a multipart field named file")
		return
	}
	defer file.Close()
	if !strings.EqualFold(filepath.Ext(hdr.Filename), ".png") {
		writeError(w, http.StatusBadRequest, "only PNG screenshots are accepted")
		return
	}
	msg, err := s.backend.ProcessImage(r.Context(), id.Email, filepath.Base(hdr.Filename), file)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

// Contacts.

// sheetURL returns the explicit URL when given, else the one saved in the
// user's config.
func (s *Server) sheetURL(r *http.Request, id model.Identity, explicit string) (string, error) {
	if u := strings.TrimSpace(explicit); u != "" {
		return u, nil
	}
	cfg, err := s.backend.GetConfig(r.Context(), id.Email)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(cfg.GoogleSheetURL), nil
}

func (s *Server) handleSheetPreview(w http.ResponseWriter, r *http.Request, id model.Identity) {
	q := r.URL.Query()
	url, err := s.sheetURL(r, id, q.Get("url"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if url == "" {
		needsSettings(w, "Google Sheet URL not found in config")
		return
	}
	rows := s.cfg.PreviewRows
	if n, err := strconv.Atoi(q.Get("rows")); err == nil && n > 0 {
		rows = min(n, 100)
	}
	data, err := s.backend.SheetPreview(r.Context(), url, rows)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if data == nil {
		data = []model.Row{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"columns": model.Header(data),
		"rows":    data,
	})
}

func (s *Server) handleDownloadContacts(w http.ResponseWriter, r *http.Request, id model.Identity) {
	var in struct {
		SheetURL string `json:"sheet_url"`
		Action   string `json:"action"`
	}
	if err := readJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	url, err := s.sheetURL(r, id, in.SheetURL)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if url == "" {
		needsSettings(w, "Google Sheet URL not found in config")
		return
	}
	d, err := s.backend.DownloadContacts(r.Context(), id.Email, url, in.Action)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer d.Body.Close()

	ct := d.ContentType
	if ct == "" {
		ct = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Disposition", `attachment; filename="`+d.Filename+`"`)
	if _, err := io.Copy(w, d.Body); err != nil {
		s.logger.Warn("relay contact list", zap.Error(err))
	}
}

// References.

func (s *Server) handleUploadReferences(w http.ResponseWriter, r *http.Request, _ model.Identity) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid upload")
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "no files uploaded")
		return
	}
	files := make([]backend.File, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable upload "+strconv.Quote(h.Filename))
			return
		}
		defer f.Close()
		files = append(files, backend.File{Field: "files", Name: filepath.Base(h.Filename), Body: f})
	}
	raw, err := s.backend.UploadReferences(r.Context(), files)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

// Chat.

func (s *Server) openAIKey(r *http.Request, id model.Identity) (string, error) {
	cfg, err := s.backend.GetConfig(r.Context(), id.Email)
	if err != nil {
		return "", err
	}
	return cfg.OpenAIAPIKey, nil
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, id model.Identity) {
	var in struct {
		Message string `json:"message"`
		Mode    string `json:"mode"`
	}
	if err := readJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	msg := strings.TrimSpace(in.Message)
	if msg == "" {
		writeError(w, http.StatusBadRequest, "message is empty")
		return
	}
	mode := chatMode(in.Mode)

	key, err := s.openAIKey(r, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if key == "" {
		needsSettings(w, "Please add your OpenAI API key in Settings.")
		return
	}

	history, err := s.store.ChatHistory(r.Context(), id.Email, mode, chatHistoryLimit)
	if err != nil {
		s.logger.Warn("load chat history", zap.Error(err))
	}
	user := model.ChatMessage{Role: "user", Content: msg}
	answer, err := s.backend.Chat(r.Context(), key, append(history, user), mode)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.store.AppendChat(r.Context(), id.Email, mode, user, model.ChatMessage{Role: "assistant", Content: answer}); err != nil {
		s.logger.Warn("save chat turn", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request, id model.Identity) {
	mode := r.URL.Query().Get("mode")
	if mode != model.ChatModeFree {
		mode = chatMode(mode)
	}
	msgs, err := s.store.ChatHistory(r.Context(), id.Email, mode, chatHistoryLimit)
	if err != nil {
		s.logger.Error("load chat history", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load history")
		return
	}
	if msgs == nil {
		msgs = []model.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"mode": mode, "messages": msgs})
}

// handleClearChat drops one mode's history, or all of it when mode is empty.
func (s *Server) handleClearChat(w http.ResponseWriter, r *http.Request, id model.Identity) {
	if err := s.store.ClearChat(r.Context(), id.Email, r.URL.Query().Get("mode")); err != nil {
		s.logger.Error("clear chat", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not clear history")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFreeAnswer(w http.ResponseWriter, r *http.Request, id model.Identity) {
	var in struct {
		Question string `json:"question"`
	}
	if err := readJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	question := strings.TrimSpace(in.Question)
	if question == "" {
		writeError(w, http.StatusBadRequest, "question is empty")
		return
	}
	key, err := s.openAIKey(r, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if key == "" {
		needsSettings(w, "Please add your OpenAI API key in Settings.")
		return
	}
	feedback, err := s.backend.FreeAnswer(r.Context(), key, question)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	err = s.store.AppendChat(r.Context(), id.Email, model.ChatModeFree,
		model.ChatMessage{Role: "user", Content: question},
		model.ChatMessage{Role: "assistant", Content: feedback})
	if err != nil {
		s.logger.Warn("save free answer", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, map[string]string{"feedback": feedback})
}

// Quiz.

func (s *Server) handleDrawQuiz(w http.ResponseWriter, r *http.Request, _ model.Identity) {
	q := r.URL.Query()
	subject := q.Get("subject")
	questions := s.quiz.Draw(subject, quizCount(q.Get("count")), nil)
	if questions == nil {
		questions = []quiz.Question{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"subject": subject, "questions": questions})
}

func (s *Server) handleCheckAnswer(w http.ResponseWriter, r *http.Request, _ model.Identity) {
	var in struct {
		ID     int    `json:"id"`
		Choice string `json:"choice"`
	}
	if err := readJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	correct, answer, err := s.quiz.Check(in.ID, in.Choice)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"correct": correct, "answer": answer})
}

// History.

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request, id model.Identity) {
	runs, err := s.store.ListRuns(r.Context(), id.Email, historyLimit)
	if err != nil {
		s.logger.Error("list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load history")
		return
	}
	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="send_history.csv"`)
		cw := csv.NewWriter(w)
		_ = cw.Write(model.RunCSVHeader)
		for _, run := range runs {
			_ = cw.Write(run.ToSlice())
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			s.logger.Warn("write history csv", zap.Error(err))
		}
		return
	}
	if runs == nil {
		runs = []model.SendRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request, id model.Identity) {
	run, events, err := s.ownedRun(r, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.logger.Error("load run", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load run")
		return
	}
	if events == nil {
		events = []model.RunEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run, "events": events})
}
