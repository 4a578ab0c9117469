// Package web holds the server-rendered pages of the dashboard and their
// static assets.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"strings"

	"github.com/atinyakov/imagedash/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Page names accepted by Renderer.Render.
const (
	LoginPage   = "login.html"
	GalleryPage = "gallery.html"
)

// LoginData is rendered by LoginPage.
type LoginData struct {
	Username string
	Error    string
}

// GalleryData is rendered by GalleryPage.
type GalleryData struct {
	User   *models.User
	Images []models.Image
	Query  string
	Error  string
	Notice string
}

// Renderer renders the embedded page templates.
type Renderer struct {
	pages map[string]*template.Template
}

var funcs = template.FuncMap{
	"join": strings.Join,
}

// New parses every page together with the shared layout.
func New() (*Renderer, error) {
	names, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	r := &Renderer{pages: make(map[string]*template.Template)}
	for _, path := range names {
		name := strings.TrimPrefix(path, "templates/")
		if name == "layout.html" {
			continue
		}
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", path)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// Render executes page into w. The page is rendered to a buffer first so
// a template failure never leaves a half-written response.
func (r *Renderer) Render(w io.Writer, page string, data any) error {
	t, ok := r.pages[page]
	if !ok {
		return fmt.Errorf("unknown page %q", page)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}

// Static serves the embedded assets under /static/.
func Static() http.Handler {
	return http.FileServerFS(staticFS)
}
