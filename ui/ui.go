// Package ui renders the server-side pages: the gated layout with its navbar
// and sort-order dropdown, and the sign-in page.
package ui

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/MrEthical07/authshield/middleware"
	"github.com/MrEthical07/authshield/session"
)

//go:embed templates/*.html
var templateFS embed.FS

// Sort-order labels offered by the dropdown.
const (
	MostViewed  = "Most Viewed"
	MostRecent  = "Most Recent"
	OldestFirst = "Oldest First"
	LeastViewed = "Least Viewed"
)

// SortOptions is the dropdown's fixed option list, in display order.
var SortOptions = []string{MostViewed, MostRecent, OldestFirst, LeastViewed}

// Dropdown is the sort-order widget. Open only sets the initial state; the
// browser toggles it through <details> without a round trip.
type Dropdown struct {
	Options  []string
	Selected string
	Open     bool
}

// NewDropdown returns a closed dropdown showing MostRecent.
func NewDropdown() Dropdown {
	return Dropdown{Options: SortOptions, Selected: MostRecent}
}

// Toggle flips the open state.
func (d Dropdown) Toggle() Dropdown {
	d.Open = !d.Open
	return d
}

// LayoutData feeds the gated layout.
type LayoutData struct {
	Title       string
	SignOutPath string
	User        *session.Session
	Dropdown    Dropdown
	Content     template.HTML
}

// SignInData feeds the sign-in page.
type SignInData struct {
	Title      string
	SignInPath string
}

// Renderer holds the parsed templates.
type Renderer struct {
	tmpl   *template.Template
	title  string
	logger *slog.Logger
}

// New parses the embedded templates.
func New(title string, logger *slog.Logger) (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{tmpl: tmpl, title: title, logger: logger}, nil
}

func (rn *Renderer) render(w http.ResponseWriter, name string, data any) {
	var buf bytes.Buffer
	if err := rn.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		rn.logger.Error("render template", "template", name, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// Layout renders the page shell. Mount it behind middleware.RequireSession;
// the session stored by the gate fills the navbar.
func (rn *Renderer) Layout(signOutPath string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, _ := middleware.SessionFromContext(r.Context())
		rn.render(w, "layout", LayoutData{
			Title:       rn.title,
			SignOutPath: signOutPath,
			User:        sess,
			Dropdown:    NewDropdown(),
		})
	})
}

// SignIn renders the sign-in page, which posts to signInPath.
func (rn *Renderer) SignIn(signInPath string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		rn.render(w, "signin", SignInData{Title: rn.title, SignInPath: signInPath})
	})
}
