package web

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"outreach/internal/auth"
	"outreach/internal/model"
	"outreach/internal/store"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.oauth == nil {
		http.Error(w, "Google sign-in is not configured", http.StatusServiceUnavailable)
		return
	}
	state, err := auth.SetState(w, s.secure)
	if err != nil {
		s.logger.Error("create oauth state", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, s.oauth.AuthURL(state), http.StatusFound)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if s.oauth == nil {
		http.Error(w, "Google sign-in is not configured", http.StatusServiceUnavailable)
		return
	}
	q := r.URL.Query()
	if reason := q.Get("error"); reason != "" {
		s.logger.Info("google sign-in declined", zap.String("reason", reason))
		s.renderLanding(w, r, http.StatusUnauthorized, "Sign-in was cancelled.")
		return
	}
	if err := auth.CheckState(w, r); err != nil {
		s.logger.Warn("oauth callback rejected", zap.Error(err))
		s.renderLanding(w, r, http.StatusBadRequest, "Sign-in expired, please try again.")
		return
	}
	code := q.Get("code")
	if code == "" {
		s.renderLanding(w, r, http.StatusBadRequest, "Sign-in failed: no authorization code.")
		return
	}

	id, _, err := s.oauth.Exchange(r.Context(), code)
	if err != nil {
		s.logger.Warn("oauth exchange failed", zap.Error(err))
		s.renderLanding(w, r, http.StatusUnauthorized, "Sign-in failed, please try again.")
		return
	}
	if err := s.store.UpsertUser(r.Context(), id, time.Now()); err != nil {
		s.logger.Error("record user", zap.String("email", id.Email), zap.Error(err))
	}
	if err := s.sessions.SetCookie(w, id); err != nil {
		s.logger.Error("issue session", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.logger.Info("user signed in", zap.String("email", id.Email))
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.ClearCookie(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleLanding(w http.ResponseWriter, r *http.Request) {
	s.renderLanding(w, r, http.StatusOK, "")
}

func (s *Server) renderLanding(w http.ResponseWriter, r *http.Request, status int, msg string) {
	s.render(w, r, status, "landing", pageData{
		Title: "Outreach Assistant",
		Error: msg,
		Data:  struct{ SignInEnabled bool }{s.oauth != nil},
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	if _, ok := identityFrom(r.Context()); !ok {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	http.NotFound(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	msg, err := s.backend.Health(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "backend": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "backend": msg})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, id model.Identity) {
	_, lastLogin, err := s.store.GetUser(r.Context(), id.Email)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("load user", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, struct {
		model.Identity
		LastLogin time.Time `json:"last_login,omitzero"`
	}{id, lastLogin})
}
