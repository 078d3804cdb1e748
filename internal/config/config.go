package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// AppName names the config directory and the session cookie.
const AppName = "outreach"

// Config holds all outreach configuration.
type Config struct {
	// Backend that performs the screenshot, sheet, SMTP and AI work.
	BackendURL string `yaml:"backend_url" env:"BACKEND_URL"`
	// Chat/quiz backend. Empty means BackendURL.
	APIBaseURL string `yaml:"api_base_url" env:"API_BASE_URL"`

	HTTPAddr  string `yaml:"http_addr" env:"HTTP_ADDR"`
	PublicURL string `yaml:"public_url" env:"PUBLIC_URL"`

	TemplatesDir string `yaml:"templates_dir" env:"TEMPLATES_DIR"`
	DatabasePath string `yaml:"database_path" env:"DATABASE_PATH"`

	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	PreviewRows    int           `yaml:"preview_rows" env:"PREVIEW_ROWS"`

	Google  GoogleConfig  `yaml:"google" envPrefix:"GOOGLE_"`
	Session SessionConfig `yaml:"session" envPrefix:"SESSION_"`
	Log     LogConfig     `yaml:"log" envPrefix:"LOG_"`
}

// GoogleConfig configures Google sign-in.
type GoogleConfig struct {
	ClientID        string `yaml:"client_id" env:"CLIENT_ID"`
	ClientSecret    string `yaml:"client_secret" env:"CLIENT_SECRET"`
	CredentialsFile string `yaml:"credentials_file" env:"CREDENTIALS_FILE"`
}

// SessionConfig configures the signed session cookie.
type SessionConfig struct {
	Secret string        `yaml:"secret" env:"SECRET"`
	TTL    time.Duration `yaml:"ttl" env:"TTL"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level       string `yaml:"level" env:"LEVEL"`
	Development bool   `yaml:"development" env:"DEVELOPMENT"`
}

// DefaultConfig returns a Config pointing at a local backend.
func DefaultConfig() *Config {
	dir := Dir()
	return &Config{
		BackendURL:     "http://localhost:8000",
		HTTPAddr:       "localhost:3000",
		TemplatesDir:   filepath.Join(dir, "templates"),
		DatabasePath:   filepath.Join(dir, AppName+".db"),
		RequestTimeout: 30 * time.Second,
		PreviewRows:    5,
		Session: SessionConfig{
			TTL: 30 * 24 * time.Hour,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Dir returns ~/.config/outreach, or ./.outreach when the home directory
// cannot be determined.
func Dir() string {
	if d := os.Getenv("OUTREACH_CONFIG_DIR"); d != "" {
		return d
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "." + AppName
	}
	return filepath.Join(home, ".config", AppName)
}

// DefaultPath is the config file location inside Dir.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Load reads path (a missing file yields defaults) and applies OUTREACH_*
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: "OUTREACH_"}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (c *Config) normalize() {
	c.BackendURL = strings.TrimRight(strings.TrimSpace(c.BackendURL), "/")
	c.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
	c.PublicURL = strings.TrimRight(strings.TrimSpace(c.PublicURL), "/")
	if c.PreviewRows <= 0 {
		c.PreviewRows = 5
	}
}

// ChatBaseURL is the base URL of the chat/quiz backend.
func (c *Config) ChatBaseURL() string {
	if c.APIBaseURL != "" {
		return c.APIBaseURL
	}
	return c.BackendURL
}

// RedirectURL is the OAuth callback registered with Google.
func (c *Config) RedirectURL() string {
	base := c.PublicURL
	if base == "" {
		base = "http://" + c.HTTPAddr
	}
	return base + "/auth/google/callback"
}

// Validate checks the settings the web server cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.BackendURL == "" {
		errs = append(errs, errors.New("backend_url is required"))
	}
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http_addr is required"))
	}
	if c.Google.ClientID == "" && c.Google.CredentialsFile == "" {
		errs = append(errs, errors.New("google.client_id or google.credentials_file is required"))
	}
	if c.Google.CredentialsFile == "" && c.Google.ClientSecret == "" {
		errs = append(errs, errors.New("google.client_secret is required"))
	}
	if len(c.Session.Secret) < 32 {
		errs = append(errs, errors.New("session.secret must be at least 32 bytes"))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("session.ttl must be positive"))
	}
	return errors.Join(errs...)
}

// Save writes the config as YAML, replacing path atomically.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
