package web

import (
	"net/http"
	"strings"

	"github.com/alim08/tradesite/pkg/display"
	"github.com/alim08/tradesite/pkg/format"
	"github.com/gorilla/mux"
)

// Names of the two displays on the home page.
const (
	ViewHero   = "hero"
	ViewMarket = "market"
)

var tradeFeatures = []string{"speed", "security", "analytics", "fees", "access", "support"}

// viewModel is a display view with its texts resolved for one locale.
type viewModel struct {
	display.View
	ErrorText   string
	UpdatedText string
}

// liveView is the data of one live fragment: a view and its page's texts.
type liveView struct {
	layout
	viewModel
}

type homePage struct {
	layout
	Hero     liveView
	Market   liveView
	Features []string
}

// liveTemplates maps view names to their fragment templates.
var liveTemplates = map[string]string{
	ViewHero:   "hero-live",
	ViewMarket: "market-live",
}

type staticPage struct {
	layout
	Page string
}

// localeMiddleware rejects locales the catalog does not carry.
func (s *Server) localeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.catalog.Supported(mux.Vars(r)["locale"]) {
			s.notFoundHandler(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// localeOf returns the request's route locale, or the negotiated one when
// the route carries none.
func (s *Server) localeOf(r *http.Request) string {
	if locale := mux.Vars(r)["locale"]; s.catalog.Supported(locale) {
		return locale
	}
	return s.catalog.Negotiate(r.Header.Get("Accept-Language"))
}

func (s *Server) newLayout(r *http.Request, locale, title string) layout {
	path := strings.TrimPrefix(r.URL.Path, "/"+locale)
	if path == "/" {
		path = ""
	}
	_, err := s.sessions.SessionFromRequest(r)
	return layout{
		Locale:   locale,
		Locales:  s.catalog.Locales(),
		Path:     path,
		Title:    title,
		SignedIn: err == nil,
		Year:     s.now().Year(),
		catalog:  s.catalog,
	}
}

func (s *Server) viewModel(locale, name string) viewModel {
	d, ok := s.display(name)
	if !ok {
		return viewModel{View: display.View{Name: name, Status: display.StatusUnmounted}}
	}
	v := d.View()
	return viewModel{
		View:        v,
		ErrorText:   s.errorText(locale, v),
		UpdatedText: format.Updated(v.UpdatedAt, s.now()),
	}
}

// errorText is the upstream message when there is one, else the localized
// fallback.
func (s *Server) errorText(locale string, v display.View) string {
	if v.Error != "" {
		return v.Error
	}
	if v.ErrorKey != "" {
		return s.catalog.T(locale, v.ErrorKey)
	}
	return ""
}

func (s *Server) rootHandler(w http.ResponseWriter, r *http.Request) {
	locale := s.catalog.Negotiate(r.Header.Get("Accept-Language"))
	http.Redirect(w, r, "/"+locale, http.StatusFound)
}

func (s *Server) homeHandler(w http.ResponseWriter, r *http.Request) {
	locale := s.localeOf(r)
	l := s.newLayout(r, locale, "")
	s.pages.render(w, http.StatusOK, "home", homePage{
		layout:   l,
		Hero:     liveView{l, s.viewModel(locale, ViewHero)},
		Market:   liveView{l, s.viewModel(locale, ViewMarket)},
		Features: tradeFeatures,
	})
}

// liveHandler renders the current state of one view as the HTML fragment
// the home page swaps in when the feed announces a change.
func (s *Server) liveHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["view"]
	tmpl, ok := liveTemplates[name]
	if !ok {
		http.NotFound(w, r)
		return
	}
	if _, ok := s.display(name); !ok {
		http.NotFound(w, r)
		return
	}
	locale := s.localeOf(r)
	w.Header().Set("Cache-Control", "no-store")
	s.pages.fragment(w, tmpl, liveView{s.newLayout(r, locale, ""), s.viewModel(locale, name)})
}

func (s *Server) staticPageHandler(w http.ResponseWriter, r *http.Request) {
	locale := s.localeOf(r)
	page := mux.Vars(r)["page"]
	s.pages.render(w, http.StatusOK, "page", staticPage{
		layout: s.newLayout(r, locale, s.catalog.T(locale, "pages."+page+".title")),
		Page:   page,
	})
}

func (s *Server) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	locale := s.localeOf(r)
	s.pages.render(w, http.StatusNotFound, "notfound", staticPage{
		layout: s.newLayout(r, locale, s.catalog.T(locale, "site.notFound")),
	})
}
