package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/alim08/tradesite/pkg/i18n"
	"github.com/alim08/tradesite/pkg/logger"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageNames = []string{"home", "page", "contact", "login", "register", "notfound"}

// renderer holds one parsed template set per page, each sharing the layout
// and the live view fragments.
type renderer struct {
	pages map[string]*template.Template
	live  *template.Template
}

func newRenderer() (*renderer, error) {
	r := &renderer{pages: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		t, err := template.ParseFS(templateFS, "templates/layout.html", "templates/live.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		r.pages[name] = t
	}
	live, err := template.ParseFS(templateFS, "templates/live.html")
	if err != nil {
		return nil, fmt.Errorf("parse live templates: %w", err)
	}
	r.live = live
	return r, nil
}

// render executes page into a buffer first so a template error never leaves
// a half-written response.
func (r *renderer) render(w http.ResponseWriter, status int, page string, data interface{}) {
	t, ok := r.pages[page]
	if !ok {
		logger.Log.Error("unknown page template", zap.String("page", page))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		logger.Log.Error("template execution failed", zap.String("page", page), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// fragment renders one live template without the layout.
func (r *renderer) fragment(w http.ResponseWriter, name string, data interface{}) {
	var buf bytes.Buffer
	if err := r.live.ExecuteTemplate(&buf, name, data); err != nil {
		logger.Log.Error("fragment execution failed", zap.String("fragment", name), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}

// layout is the data every page shares.
type layout struct {
	Locale       string
	Locales      []string
	Path         string
	Title        string
	SignedIn     bool
	Year         int
	Refresh      string
	RefreshAfter int

	catalog *i18n.Catalog
}

// T translates key into the page's locale.
func (l layout) T(key string, args ...interface{}) string {
	return l.catalog.T(l.Locale, key, args...)
}
