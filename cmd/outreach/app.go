package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"outreach/internal/backend"
	"outreach/internal/config"
	"outreach/internal/model"
	"outreach/internal/store"
	"outreach/internal/util"
)

func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

func newBackend() (*backend.Client, error) {
	return backend.New(cfg.BackendURL,
		backend.WithAPIBase(cfg.ChatBaseURL()),
		backend.WithTimeout(cfg.RequestTimeout),
		backend.WithLogger(logger.Named("backend")),
	)
}

func openStore() (*store.SQLiteStore, error) {
	db, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

func nowUTC() time.Time { return time.Now().UTC() }

func identityPath() string { return filepath.Join(config.Dir(), "identity.yaml") }
func tokenPath() string    { return filepath.Join(config.Dir(), "token.json") }

var errNotSignedIn = errors.New("not signed in: run `outreach login` or pass --email")

func saveIdentity(id model.Identity) error {
	data, err := yaml.Marshal(struct {
		Email string `yaml:"email"`
		Name  string `yaml:"name,omitempty"`
	}{id.Email, id.Name})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(config.Dir(), 0o700); err != nil {
		return err
	}
	return os.WriteFile(identityPath(), data, 0o600)
}

func loadIdentity() (model.Identity, error) {
	data, err := os.ReadFile(identityPath())
	if errors.Is(err, os.ErrNotExist) {
		return model.Identity{}, errNotSignedIn
	}
	if err != nil {
		return model.Identity{}, err
	}
	var v struct {
		Email string `yaml:"email"`
		Name  string `yaml:"name"`
	}
	if err := yaml.Unmarshal(data, &v); err != nil {
		return model.Identity{}, fmt.Errorf("parse %s: %w", identityPath(), err)
	}
	if v.Email == "" {
		return model.Identity{}, errNotSignedIn
	}
	return model.Identity{Email: util.NormalizeEmail(v.Email), Name: v.Name}, nil
}

// currentEmail is the --email flag, or the account saved by `outreach login`.
func currentEmail() (string, error) {
	if emailFlag != "" {
		return util.NormalizeEmail(emailFlag), nil
	}
	id, err := loadIdentity()
	if err != nil {
		return "", err
	}
	return id.Email, nil
}

// sheetURLFor returns explicit, or the sheet saved in the account settings.
func sheetURLFor(ctx context.Context, c *backend.Client, email, explicit string) (string, error) {
	if explicit != "" {
		if _, err := model.SheetID(explicit); err != nil {
			return "", err
		}
		return explicit, nil
	}
	uc, err := c.GetConfig(ctx, email)
	if err != nil {
		return "", err
	}
	if uc.GoogleSheetURL == "" {
		return "", errors.New("no Google Sheet URL configured: run `outreach settings set google_sheet_url=...` or pass --sheet")
	}
	return uc.GoogleSheetURL, nil
}
