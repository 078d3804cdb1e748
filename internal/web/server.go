// Package web serves the outreach dashboard: server-rendered pages, the JSON
// API the pages call, Google sign-in, and the live send-status relay.
package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"outreach/internal/auth"
	"outreach/internal/backend"
	"outreach/internal/config"
	"outreach/internal/quiz"
	"outreach/internal/sendrun"
	"outreach/internal/store"
	"outreach/internal/templates"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Deps are the collaborators the server is built from. OAuth may be nil, in
// which case sign-in answers 503.
type Deps struct {
	Config    *config.Config
	Backend   *backend.Client
	Templates *templates.Store
	Store     *store.SQLiteStore
	OAuth     *auth.GoogleOAuth
	Sessions  *auth.Sessions
	Quiz      *quiz.Bank
	Logger    *zap.Logger
}

// Server hosts the dashboard.
type Server struct {
	cfg       *config.Config
	backend   *backend.Client
	templates *templates.Store
	store     *store.SQLiteStore
	oauth     *auth.GoogleOAuth
	sessions  *auth.Sessions
	quiz      *quiz.Bank
	runner    *sendrun.Runner
	logger    *zap.Logger

	pages   *pageSet
	handler http.Handler
	secure  bool
}

// New validates d and assembles the handler tree.
func New(d Deps) (*Server, error) {
	var missing []string
	if d.Config == nil {
		missing = append(missing, "config")
	}
	if d.Backend == nil {
		missing = append(missing, "backend")
	}
	if d.Templates == nil {
		missing = append(missing, "templates")
	}
	if d.Store == nil {
		missing = append(missing, "store")
	}
	if d.Sessions == nil {
		missing = append(missing, "sessions")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("web server: missing %s", strings.Join(missing, ", "))
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Quiz == nil {
		b, err := quiz.Builtin()
		if err != nil {
			return nil, err
		}
		d.Quiz = b
	}

	pages, err := loadPages()
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:       d.Config,
		backend:   d.Backend,
		templates: d.Templates,
		store:     d.Store,
		oauth:     d.OAuth,
		sessions:  d.Sessions,
		quiz:      d.Quiz,
		runner:    sendrun.New(d.Backend, d.Store, d.Logger),
		logger:    d.Logger,
		pages:     pages,
		secure:    strings.HasPrefix(d.Config.PublicURL, "https://"),
	}
	s.handler = chain(s.routes(),
		s.recoverPanic,
		requestID,
		s.requestLogger,
		s.loadSession,
	)
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe serves on the configured address until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.HTTPAddr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the HTTP server on ln next to the template directory watcher and
// shuts both down when ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("dashboard listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		err := s.templates.Watch(gctx, func() {
			s.logger.Info("templates directory changed", zap.String("dir", s.templates.Dir()))
		})
		if err != nil {
			s.logger.Warn("template watcher stopped", zap.Error(err))
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	})
	return g.Wait()
}
