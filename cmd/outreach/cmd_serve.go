package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"outreach/internal/auth"
	"outreach/internal/templates"
	"outreach/internal/web"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web dashboard",
	Long: `Serves the dashboard on http_addr. Users sign in with Google; every page
and API call is then proxied to the backend on their behalf.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides http_addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveAddr != "" {
		cfg.HTTPAddr = serveAddr
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", configPath, err)
	}

	client, err := newBackend()
	if err != nil {
		return err
	}
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	tmpl, err := templates.NewStore(cfg.TemplatesDir, logger.Named("templates"))
	if err != nil {
		return err
	}
	if err := tmpl.EnsureDefault(); err != nil {
		return err
	}

	oauth, err := auth.NewGoogleOAuth(cfg.Google, cfg.RedirectURL())
	if err != nil {
		return err
	}
	secure := strings.HasPrefix(cfg.PublicURL, "https://")
	sessions, err := auth.NewSessions(cfg.Session.Secret, cfg.Session.TTL, secure)
	if err != nil {
		return err
	}

	srv, err := web.New(web.Deps{
		Config:    cfg,
		Backend:   client,
		Templates: tmpl,
		Store:     db,
		OAuth:     oauth,
		Sessions:  sessions,
		Logger:    logger.Named("web"),
	})
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	logger.Info("starting dashboard",
		zap.String("addr", cfg.HTTPAddr),
		zap.String("backend", client.BaseURL()),
		zap.String("templates", tmpl.Dir()))
	return srv.ListenAndServe(ctx)
}
