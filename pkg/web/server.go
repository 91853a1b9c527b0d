// Package web serves the localized site pages, the form endpoints and the
// JSON, GraphQL and websocket views of the live market displays.
package web

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"time"

	"github.com/alim08/tradesite/pkg/auth"
	"github.com/alim08/tradesite/pkg/database"
	"github.com/alim08/tradesite/pkg/display"
	"github.com/alim08/tradesite/pkg/i18n"
	"github.com/alim08/tradesite/pkg/models"
	"github.com/alim08/tradesite/pkg/reference"
	"github.com/graphql-go/graphql"
	"github.com/gorilla/mux"
)

// Version is reported by /health.
const Version = "1.0.0"

// Authenticator forwards login and registration forms.
type Authenticator interface {
	Login(ctx context.Context, creds models.LoginCredentials) (models.AuthResult, error)
	Register(ctx context.Context, reg models.Registration) (models.AuthResult, error)
}

// ReferenceSource provides the registration form's lookups.
type ReferenceSource interface {
	Countries(ctx context.Context) ([]models.Country, error)
	Languages(ctx context.Context) ([]models.Language, error)
	Load(ctx context.Context, clientIP string) (reference.Lookups, error)
}

// ContactQueue announces accepted contact messages.
type ContactQueue interface {
	EnqueueContact(ctx context.Context, payload []byte) error
}

// SnapshotCache serves the last published snapshot of a view.
type SnapshotCache interface {
	CachedSnapshot(ctx context.Context, view string) ([]byte, error)
}

// HealthChecker is a dependency /ready waits on.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Pinger is a dependency /ready pings.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of a Server. Queue, Cache, Redis and Assets
// are optional.
type Deps struct {
	Displays  []*display.Display
	Catalog   *i18n.Catalog
	Sessions  *auth.SessionService
	Auth      Authenticator
	Reference ReferenceSource
	Contacts  database.ContactRepository
	Queue     ContactQueue
	Cache     SnapshotCache
	DB        HealthChecker
	Redis     Pinger
	Hub       *Hub
	Assets    fs.FS
	Origins   []string
}

// Server holds the site's handlers.
type Server struct {
	displays  map[string]*display.Display
	catalog   *i18n.Catalog
	sessions  *auth.SessionService
	auth      Authenticator
	reference ReferenceSource
	contacts  database.ContactRepository
	queue     ContactQueue
	cache     SnapshotCache
	db        HealthChecker
	redis     Pinger
	hub       *Hub
	assets    fs.FS
	origins   []string
	schema    graphql.Schema
	pages     *renderer
	now       func() time.Time
}

// NewServer validates deps and prepares templates and the GraphQL schema.
func NewServer(deps Deps) (*Server, error) {
	switch {
	case deps.Catalog == nil:
		return nil, errors.New("web: catalog is required")
	case deps.Sessions == nil:
		return nil, errors.New("web: session service is required")
	case deps.Auth == nil:
		return nil, errors.New("web: authenticator is required")
	case deps.Reference == nil:
		return nil, errors.New("web: reference source is required")
	case deps.Contacts == nil:
		return nil, errors.New("web: contact repository is required")
	}

	s := &Server{
		displays:  make(map[string]*display.Display, len(deps.Displays)),
		catalog:   deps.Catalog,
		sessions:  deps.Sessions,
		auth:      deps.Auth,
		reference: deps.Reference,
		contacts:  deps.Contacts,
		queue:     deps.Queue,
		cache:     deps.Cache,
		db:        deps.DB,
		redis:     deps.Redis,
		hub:       deps.Hub,
		assets:    deps.Assets,
		origins:   deps.Origins,
		now:       time.Now,
	}
	for _, d := range deps.Displays {
		s.displays[d.Name()] = d
	}
	if s.hub == nil {
		s.hub = NewHub(deps.Origins)
	}

	schema, err := createSchema(s.displays)
	if err != nil {
		return nil, err
	}
	s.schema = schema

	pages, err := newRenderer()
	if err != nil {
		return nil, err
	}
	s.pages = pages
	return s, nil
}

// Hub returns the websocket hub displays should broadcast to.
func (s *Server) Hub() *Hub { return s.hub }

// Router builds the site's route table.
func (s *Server) Router() http.Handler {
	router := mux.NewRouter()

	router.Use(requestIDMiddleware)
	router.Use(loggingMiddleware)
	router.Use(corsMiddleware(s.origins))
	router.Use(metricsMiddleware)

	// Preflight requests are answered by corsMiddleware.
	router.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(http.ResponseWriter, *http.Request) {})

	router.HandleFunc("/", s.rootHandler).Methods("GET")
	router.HandleFunc("/health", s.healthHandler).Methods("GET")
	router.HandleFunc("/ready", s.readyHandler).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/market/{view}", s.marketHandler).Methods("GET")
	api.HandleFunc("/logo-failures", s.logoFailureHandler).Methods("POST")
	api.HandleFunc("/countries", s.countriesHandler).Methods("GET")
	api.HandleFunc("/languages", s.languagesHandler).Methods("GET")
	api.Handle("/contact-messages", s.sessions.RequireRole(SupportRole)(http.HandlerFunc(s.contactMessagesHandler))).Methods("GET")

	router.HandleFunc("/graphql", s.graphQLHandler).Methods("GET", "POST")
	router.HandleFunc("/ws/market", s.feedHandler).Methods("GET")

	if s.assets != nil {
		router.PathPrefix("/assets/").Handler(
			http.StripPrefix("/assets/", http.FileServer(http.FS(s.assets)))).Methods("GET")
	}

	site := router.PathPrefix("/{locale:[a-z]{2}}").Subrouter()
	site.Use(s.localeMiddleware)
	site.HandleFunc("", s.homeHandler).Methods("GET")
	site.HandleFunc("/", s.homeHandler).Methods("GET")
	site.HandleFunc("/{page:about|blog|security|terms|privacy|cookie|documentation}", s.staticPageHandler).Methods("GET")
	site.HandleFunc("/live/{view}", s.liveHandler).Methods("GET")
	site.HandleFunc("/contact", s.contactPageHandler).Methods("GET")
	site.HandleFunc("/contact", s.contactSubmitHandler).Methods("POST")
	site.HandleFunc("/login", s.loginPageHandler).Methods("GET")
	site.HandleFunc("/login", s.loginSubmitHandler).Methods("POST")
	site.HandleFunc("/register", s.registerPageHandler).Methods("GET")
	site.HandleFunc("/register", s.registerSubmitHandler).Methods("POST")
	site.Handle("/account", s.sessions.RequireSession(http.HandlerFunc(s.accountHandler))).Methods("GET")
	site.HandleFunc("/logout", s.logoutHandler).Methods("POST")

	router.NotFoundHandler = http.HandlerFunc(s.notFoundHandler)
	return router
}

// display looks up a view by name.
func (s *Server) display(name string) (*display.Display, bool) {
	d, ok := s.displays[name]
	return d, ok
}

// orderedViews returns the views in page order: hero first, then the rest.
func (s *Server) orderedViews() []display.View {
	views := make([]display.View, 0, len(s.displays))
	for _, name := range []string{ViewHero, ViewMarket} {
		if d, ok := s.displays[name]; ok {
			views = append(views, d.View())
		}
	}
	for name, d := range s.displays {
		if name != ViewHero && name != ViewMarket {
			views = append(views, d.View())
		}
	}
	return views
}
