package web

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"outreach/internal/model"
	"outreach/internal/quiz"
	"outreach/internal/store"
)

const (
	chatHistoryLimit = 20
	historyLimit     = 50
)

var fieldLabels = map[string]string{
	model.KeyUiFormAPIKey:   "UiForm API key",
	model.KeyOpenAIAPIKey:   "OpenAI API key",
	model.KeySMTPUser:       "SMTP user",
	model.KeySMTPPass:       "SMTP password",
	model.KeySMTPServer:     "SMTP server",
	model.KeySMTPPort:       "SMTP port",
	model.KeyGoogleSheetURL: "Google Sheet URL",
}

type fieldView struct {
	Key    string
	Label  string
	Value  string
	Saved  bool
	Secret bool
}

type sectionView struct {
	Name   string
	Fields []fieldView
}

func settingsView(cfg model.UserConfig) []sectionView {
	saved := cfg.SavedFields()
	out := make([]sectionView, 0, len(model.Sections))
	for _, sec := range model.Sections {
		sv := sectionView{Name: sec.Name}
		for _, key := range sec.Fields {
			v, _ := cfg.Field(key)
			if model.IsSensitive(key) {
				v = model.Mask(v)
			}
			sv.Fields = append(sv.Fields, fieldView{
				Key:    key,
				Label:  fieldLabels[key],
				Value:  v,
				Saved:  saved[key],
				Secret: model.IsSensitive(key),
			})
		}
		out = append(out, sv)
	}
	return out
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, id model.Identity) {
	var data struct {
		Missing []string
		Runs    []model.SendRun
	}
	pd := pageData{Title: "Dashboard"}
	cfg, err := s.backend.GetConfig(r.Context(), id.Email)
	if err != nil {
		s.logger.Warn("dashboard config", zap.Error(err))
		pd.Error = "The backend is not reachable right now."
	} else {
		for _, k := range cfg.Missing() {
			data.Missing = append(data.Missing, fieldLabels[k])
		}
	}
	if data.Runs, err = s.store.ListRuns(r.Context(), id.Email, 5); err != nil {
		s.logger.Warn("dashboard runs", zap.Error(err))
	}
	pd.Data = data
	s.render(w, r, http.StatusOK, "dashboard", pd)
}

func (s *Server) handleSettingsPage(w http.ResponseWriter, r *http.Request, id model.Identity) {
	pd := pageData{Title: "Settings"}
	cfg, err := s.backend.GetConfig(r.Context(), id.Email)
	if err != nil {
		s.logger.Warn("load settings", zap.Error(err))
		pd.Error = "Could not load your settings: " + err.Error()
	}
	pd.Data = settingsView(cfg)
	s.render(w, r, http.StatusOK, "settings", pd)
}

func (s *Server) handleTemplatesPage(w http.ResponseWriter, r *http.Request, _ model.Identity) {
	pd := pageData{Title: "Templates"}
	list, err := s.templates.List()
	if err != nil {
		s.logger.Warn("list templates", zap.Error(err))
		pd.Error = "Could not read the templates directory."
	}
	pd.Data = list
	s.render(w, r, http.StatusOK, "templates", pd)
}

func (s *Server) handleContactsPage(w http.ResponseWriter, r *http.Request, id model.Identity) {
	pd := pageData{Title: "Contacts"}
	cfg, err := s.backend.GetConfig(r.Context(), id.Email)
	if err != nil {
		pd.Error = "Could not load your settings: " + err.Error()
	} else if cfg.GoogleSheetURL == "" {
		pd.Error = "Add a Google Sheet URL in Settings first."
	}
	pd.Data = struct {
		SheetURL    string
		PreviewRows int
	}{cfg.GoogleSheetURL, s.cfg.PreviewRows}
	s.render(w, r, http.StatusOK, "contacts", pd)
}

func (s *Server) handleWatcherPage(w http.ResponseWriter, r *http.Request, _ model.Identity) {
	pd := pageData{Title: "Screenshot watcher"}
	st, err := s.backend.WatcherStatus(r.Context())
	if err != nil {
		pd.Error = "Could not read watcher status: " + err.Error()
	}
	pd.Data = st
	s.render(w, r, http.StatusOK, "watcher", pd)
}

func chatMode(v string) string {
	if v == model.ChatModeInternet {
		return v
	}
	return model.ChatModeCourse
}

func (s *Server) handleChatPage(w http.ResponseWriter, r *http.Request, id model.Identity) {
	mode := chatMode(r.URL.Query().Get("mode"))
	pd := pageData{Title: "Finance chat"}
	history, err := s.store.ChatHistory(r.Context(), id.Email, mode, chatHistoryLimit)
	if err != nil {
		s.logger.Warn("load chat history", zap.Error(err))
	}
	pd.Data = struct {
		Mode     string
		Messages []model.ChatMessage
	}{mode, history}
	s.render(w, r, http.StatusOK, "chat", pd)
}

func (s *Server) handleFreeAnswerPage(w http.ResponseWriter, r *http.Request, id model.Identity) {
	history, err := s.store.ChatHistory(r.Context(), id.Email, model.ChatModeFree, chatHistoryLimit)
	if err != nil {
		s.logger.Warn("load free-answer history", zap.Error(err))
	}
	s.render(w, r, http.StatusOK, "free_answer", pageData{Title: "Free answer", Data: history})
}

func (s *Server) handleMCQPage(w http.ResponseWriter, r *http.Request, _ model.Identity) {
	s.render(w, r, http.StatusOK, "mcq", pageData{
		Title: "Multiple choice",
		Data: struct {
			Subjects []string
			Default  int
			Max      int
		}{s.quiz.Subjects, quiz.DefaultCount, quiz.MaxCount},
	})
}

// quizCount reads a question count, clamped to [1, MaxCount].
func quizCount(v string) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 1 {
		return quiz.DefaultCount
	}
	return min(n, quiz.MaxCount)
}

func (s *Server) handleQuizPage(w http.ResponseWriter, r *http.Request, _ model.Identity) {
	q := r.URL.Query()
	subject := q.Get("subject")
	questions := s.quiz.Draw(subject, quizCount(q.Get("count")), nil)
	pd := pageData{Title: "Quiz", Active: "mcq"}
	if len(questions) == 0 {
		pd.Error = "No questions for that subject yet."
	}
	pd.Data = struct {
		Subject   string
		Questions []quiz.Question
	}{subject, questions}
	s.render(w, r, http.StatusOK, "quiz", pd)
}

type questionResult struct {
	Question quiz.Question
	Choice   string
	Answer   string
	Correct  bool
}

func (s *Server) handleQuizSubmit(w http.ResponseWriter, r *http.Request, _ model.Identity) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	var results []questionResult
	score := 0
	for _, raw := range r.PostForm["id"] {
		qid, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}
		question, ok := s.questionByID(qid)
		if !ok {
			continue
		}
		choice := r.PostForm.Get("q" + raw)
		correct, answer, _ := s.quiz.Check(qid, choice)
		if correct {
			score++
		}
		results = append(results, questionResult{question, choice, answer, correct})
	}
	s.render(w, r, http.StatusOK, "quiz_result", pageData{
		Title:  "Quiz result",
		Active: "mcq",
		Data: struct {
			Score   int
			Total   int
			Results []questionResult
		}{score, len(results), results},
	})
}

func (s *Server) questionByID(id int) (quiz.Question, bool) {
	for _, q := range s.quiz.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return quiz.Question{}, false
}

func (s *Server) handleReferencesPage(w http.ResponseWriter, r *http.Request, _ model.Identity) {
	s.render(w, r, http.StatusOK, "references", pageData{Title: "References"})
}

func (s *Server) handleHistoryPage(w http.ResponseWriter, r *http.Request, id model.Identity) {
	pd := pageData{Title: "Send history"}
	runs, err := s.store.ListRuns(r.Context(), id.Email, historyLimit)
	if err != nil {
		s.logger.Error("list runs", zap.Error(err))
		pd.Error = "Could not load history."
	}
	pd.Data = runs
	s.render(w, r, http.StatusOK, "history", pd)
}

func (s *Server) handleRunPage(w http.ResponseWriter, r *http.Request, id model.Identity) {
	run, events, err := s.ownedRun(r, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		s.logger.Error("load run", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.render(w, r, http.StatusOK, "run", pageData{
		Title:  "Run " + run.ID,
		Active: "history",
		Data: struct {
			Run    model.SendRun
			Events []model.RunEvent
		}{run, events},
	})
}

// ownedRun loads the run named by the {id} path value. Runs belonging to
// another user are reported as not found.
func (s *Server) ownedRun(r *http.Request, id model.Identity) (model.SendRun, []model.RunEvent, error) {
	run, err := s.store.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		return model.SendRun{}, nil, err
	}
	if run.Email != id.Email {
		return model.SendRun{}, nil, store.ErrNotFound
	}
	events, err := s.store.RunEvents(r.Context(), run.ID)
	if err != nil {
		return model.SendRun{}, nil, err
	}
	return run, events, nil
}
