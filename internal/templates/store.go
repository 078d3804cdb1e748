// Package templates keeps outreach email bodies as .txt files in a directory
// shared with the backend.
package templates

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"outreach/internal/model"
)

// Ext is the only extension the store reads or writes.
const Ext = ".txt"

// MaxSize bounds an uploaded template.
const MaxSize = 1 << 20

var (
	ErrNotFound    = errors.New("template not found")
	ErrInvalidName = errors.New("template name must be a plain file name ending in .txt")
	ErrTooLarge    = errors.New("template exceeds 1 MiB")
)

// Store is a directory of templates. List results are cached until the
// directory changes through Save, Delete or a Watch notification.
type Store struct {
	dir    string
	logger *zap.Logger

	mu     sync.Mutex
	cached []model.Template
}

// NewStore returns a store rooted at dir, creating it if needed.
func NewStore(dir string, logger *zap.Logger) (*Store, error) {
	if dir == "" {
		return nil, errors.New("templates directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create templates directory: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Dir returns the directory backing the store.
func (s *Store) Dir() string { return s.dir }

// ValidName reports whether name is a bare .txt file name.
func ValidName(name string) bool {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) {
		return false
	}
	if strings.HasPrefix(name, ".") {
		return false
	}
	return strings.EqualFold(filepath.Ext(name), Ext) && len(name) > len(Ext)
}

// List returns every .txt template sorted by name.
func (s *Store) List() ([]model.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != nil {
		return append([]model.Template(nil), s.cached...), nil
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read templates directory: %w", err)
	}
	out := make([]model.Template, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !ValidName(e.Name()) {
			continue
		}
		b, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			s.logger.Warn("skip unreadable template", zap.String("name", e.Name()), zap.Error(err))
			continue
		}
		out = append(out, model.Template{Name: e.Name(), Content: string(b)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	s.cached = out
	return append([]model.Template(nil), out...), nil
}

// Get reads a single template.
func (s *Store) Get(name string) (model.Template, error) {
	if !ValidName(name) {
		return model.Template{}, ErrInvalidName
	}
	b, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return model.Template{}, ErrNotFound
	}
	if err != nil {
		return model.Template{}, fmt.Errorf("read template %s: %w", name, err)
	}
	return model.Template{Name: name, Content: string(b)}, nil
}

// Save writes r to name, replacing any existing file atomically.
func (s *Store) Save(name string, r io.Reader) error {
	if !ValidName(name) {
		return ErrInvalidName
	}
	b, err := io.ReadAll(io.LimitReader(r, MaxSize+1))
	if err != nil {
		return fmt.Errorf("read template body: %w", err)
	}
	if len(b) > MaxSize {
		return ErrTooLarge
	}

	path := filepath.Join(s.dir, name)
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write template: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close template: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename template: %w", err)
	}

	s.invalidate()
	s.logger.Info("template saved", zap.String("name", name), zap.Int("bytes", len(b)))
	return nil
}

// Delete removes name. Deleting a missing template returns ErrNotFound.
func (s *Store) Delete(name string) error {
	if !ValidName(name) {
		return ErrInvalidName
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete template %s: %w", name, err)
	}
	s.invalidate()
	return nil
}

// EnsureDefault seeds DefaultTemplate into an empty directory.
func (s *Store) EnsureDefault() error {
	list, err := s.List()
	if err != nil {
		return err
	}
	if len(list) > 0 {
		return nil
	}
	return s.Save(DefaultName, strings.NewReader(DefaultTemplate))
}

func (s *Store) invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}
