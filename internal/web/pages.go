package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"outreach/internal/model"
)

//go:embed views/*.html
var viewFiles embed.FS

//go:embed static
var staticFiles embed.FS

func staticFS() fs.FS {
	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

var pageNames = []string{
	"landing",
	"dashboard",
	"settings",
	"templates",
	"contacts",
	"watcher",
	"chat",
	"free_answer",
	"mcq",
	"quiz",
	"quiz_result",
	"references",
	"history",
	"run",
}

var funcs = template.FuncMap{
	"mask": model.Mask,
	"join": strings.Join,
	"inc":  func(i int) int { return i + 1 },
	"when": func(t time.Time) string {
		if t.IsZero() {
			return "—"
		}
		return t.Local().Format("2006-01-02 15:04")
	},
}

// pageSet holds one parsed template per page, each combined with the layout.
type pageSet struct {
	pages map[string]*template.Template
}

func loadPages() (*pageSet, error) {
	ps := &pageSet{pages: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		t, err := template.New(name).Funcs(funcs).ParseFS(viewFiles, "views/layout.html", "views/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse page %s: %w", name, err)
		}
		ps.pages[name] = t
	}
	return ps, nil
}

// pageData is what every page template receives.
type pageData struct {
	Title  string
	Active string
	User   model.Identity
	Signed bool
	Error  string
	Data   any
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, pd pageData) {
	t, ok := s.pages.pages[name]
	if !ok {
		s.logger.Error("unknown page", zap.String("page", name))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if pd.Active == "" {
		pd.Active = name
	}
	pd.User, pd.Signed = identityFrom(r.Context())

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", pd); err != nil {
		s.logger.Error("render page", zap.String("page", name), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
