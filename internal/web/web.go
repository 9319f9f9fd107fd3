// Package web renders the HTML pages. Templates are embedded at build
// time; rendering takes a page name and an optional logged-in user.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/mindusforge/mindus-web/internal/observability/logger"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static
var staticFS embed.FS

// Static serves the embedded assets under /static/.
func Static() http.Handler {
	return http.FileServer(http.FS(staticFS))
}

// User is the page context for a logged-in visitor.
type User struct {
	Email    string
	Name     string
	Platform string
	Avatar   string
}

type pageData struct {
	User *User
}

// Renderer holds the parsed template set.
type Renderer struct {
	t *template.Template
}

// NewRenderer parses all embedded templates.
func NewRenderer() (*Renderer, error) {
	t, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("web: parse templates: %w", err)
	}
	return &Renderer{t: t}, nil
}

// Render writes the named page. A nil user renders the anonymous variant.
func (rd *Renderer) Render(w http.ResponseWriter, r *http.Request, status int, page string, user *User) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := rd.t.ExecuteTemplate(w, page+".html", pageData{User: user}); err != nil {
		// Headers ya enviados: solo queda loguear.
		logger.From(r.Context()).Error("template render failed",
			logger.String("page", page), logger.Err(err))
	}
}
