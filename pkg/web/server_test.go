package web

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alim08/tradesite/pkg/auth"
	"github.com/alim08/tradesite/pkg/display"
	"github.com/alim08/tradesite/pkg/format"
	"github.com/alim08/tradesite/pkg/i18n"
	"github.com/alim08/tradesite/pkg/marketdata"
	"github.com/alim08/tradesite/pkg/models"
	"github.com/alim08/tradesite/pkg/reference"
)

var (
	keyDir  string
	catalog *i18n.Catalog
)

var (
	btc = models.MarketQuote{Symbol: "BTC", Name: "Bitcoin", Price: 65000.5, Change: -1.25, Volume: "$32.1B"}
	eth = models.MarketQuote{Symbol: "ETH", Name: "Ethereum", Price: 3200.25, Change: 2.5, Volume: "$12.4B"}
	ada = models.MarketQuote{Symbol: "ADA", Name: "Cardano", Price: 0.456789, Change: 0, Volume: "$410M"}
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "tradesite-web-")
	if err != nil {
		panic(err)
	}
	keyDir = dir
	priv, pub, err := auth.GenerateKeyPair(2048)
	if err != nil {
		panic(err)
	}
	if err := auth.SavePrivateKey(priv, filepath.Join(dir, "private.pem")); err != nil {
		panic(err)
	}
	if err := auth.SavePublicKey(pub, filepath.Join(dir, "public.pem")); err != nil {
		panic(err)
	}
	catalog, err = i18n.Load([]string{"en", "es", "fr", "de"}, "en")
	if err != nil {
		panic(err)
	}
	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}

type fakeAuth struct {
	mu          sync.Mutex
	login       models.AuthResult
	loginErr    error
	register    models.AuthResult
	registerErr error
	gotLogin    *models.LoginCredentials
	gotReg      *models.Registration
}

func (f *fakeAuth) Login(ctx context.Context, creds models.LoginCredentials) (models.AuthResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotLogin = &creds
	return f.login, f.loginErr
}

func (f *fakeAuth) Register(ctx context.Context, reg models.Registration) (models.AuthResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotReg = &reg
	return f.register, f.registerErr
}

type fakeReference struct {
	countries    []models.Country
	languages    []models.Language
	preselected  string
	countriesErr error
	loadErr      error
	gotIP        string
}

func (f *fakeReference) Countries(ctx context.Context) ([]models.Country, error) {
	return f.countries, f.countriesErr
}

func (f *fakeReference) Languages(ctx context.Context) ([]models.Language, error) {
	return f.languages, nil
}

func (f *fakeReference) Load(ctx context.Context, clientIP string) (reference.Lookups, error) {
	f.gotIP = clientIP
	if f.loadErr != nil {
		return reference.Lookups{}, f.loadErr
	}
	return reference.Lookups{Countries: f.countries, Languages: f.languages, Preselected: f.preselected}, nil
}

type fakeContacts struct {
	mu    sync.Mutex
	saved []models.ContactMessage
	err   error
}

func (f *fakeContacts) Save(ctx context.Context, msg *models.ContactMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	msg.ID = "msg-1"
	f.saved = append(f.saved, *msg)
	return nil
}

func (f *fakeContacts) ListRecent(ctx context.Context, limit int) ([]models.ContactMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ContactMessage(nil), f.saved...), nil
}

type fakeQueue struct {
	mu       sync.Mutex
	payloads [][]byte
	err      error
}

func (f *fakeQueue) EnqueueContact(ctx context.Context, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	return f.err
}

type fakeCache struct {
	payload []byte
	err     error
}

func (f *fakeCache) CachedSnapshot(ctx context.Context, view string) ([]byte, error) {
	return f.payload, f.err
}

type fakeHealth struct{ err error }

func (f fakeHealth) HealthCheck(ctx context.Context) error { return f.err }
func (f fakeHealth) Ping(ctx context.Context) error        { return f.err }

var errBoom = errors.New("boom")

func quotes(q ...models.MarketQuote) marketdata.ClientFunc {
	return func(ctx context.Context) ([]models.MarketQuote, error) { return q, nil }
}

func failing(err error) marketdata.ClientFunc {
	return func(ctx context.Context) ([]models.MarketQuote, error) { return nil, err }
}

// mountDisplay mounts a display with a long interval and waits for its
// first fetch to settle.
func mountDisplay(t *testing.T, name string, policy format.Policy, client marketdata.Client) *display.Display {
	t.Helper()
	d := display.New(name, client, policy, time.Hour)
	if err := d.Mount(context.Background()); err != nil {
		t.Fatalf("Mount(%s): %v", name, err)
	}
	t.Cleanup(d.Unmount)
	deadline := time.Now().Add(2 * time.Second)
	for d.Status() == display.StatusLoading {
		if time.Now().After(deadline) {
			t.Fatalf("display %s still loading", name)
		}
		time.Sleep(5 * time.Millisecond)
	}
	return d
}

func newSessions(t *testing.T) *auth.SessionService {
	t.Helper()
	s, err := auth.NewSessionService(&auth.Config{
		PrivateKeyPath:     filepath.Join(keyDir, "private.pem"),
		PublicKeyPath:      filepath.Join(keyDir, "public.pem"),
		Issuer:             "tradesite",
		Audience:           "tradesite-web",
		Expiration:         time.Hour,
		RememberExpiration: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("NewSessionService: %v", err)
	}
	return s
}

type fixture struct {
	server    *Server
	handler   http.Handler
	auth      *fakeAuth
	reference *fakeReference
	contacts  *fakeContacts
	queue     *fakeQueue
}

// newFixture builds a server over a ready hero and market display. edit may
// adjust the deps before the server is created.
func newFixture(t *testing.T, edit func(*Deps)) *fixture {
	t.Helper()
	f := &fixture{
		auth: &fakeAuth{},
		reference: &fakeReference{
			countries: []models.Country{{Code: "US", Name: "United States"}, {Code: "DE", Name: "Germany"}},
			languages: []models.Language{{Code: "en", Name: "English"}, {Code: "de", Name: "German"}},
		},
		contacts: &fakeContacts{},
		queue:    &fakeQueue{},
	}
	deps := Deps{
		Displays: []*display.Display{
			mountDisplay(t, ViewHero, format.Fixed2, quotes(btc, eth)),
			mountDisplay(t, ViewMarket, format.Tiered, quotes(btc, eth, ada)),
		},
		Catalog:   catalog,
		Sessions:  newSessions(t),
		Auth:      f.auth,
		Reference: f.reference,
		Contacts:  f.contacts,
		Queue:     f.queue,
		Origins:   []string{"*"},
	}
	if edit != nil {
		edit(&deps)
	}
	srv, err := NewServer(deps)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	f.server = srv
	f.handler = srv.Router()
	return f
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) get(path string) *httptest.ResponseRecorder {
	return f.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (f *fixture) postForm(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return f.do(req)
}

func TestNewServer_RequiresCollaborators(t *testing.T) {
	if _, err := NewServer(Deps{}); err == nil {
		t.Fatal("expected error for missing catalog")
	}
	if _, err := NewServer(Deps{Catalog: catalog}); err == nil {
		t.Fatal("expected error for missing session service")
	}
}

func TestRouter_RequestID(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.get("/health")
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Fatal("expected a generated request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = f.do(req)
	if got := rec.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Fatalf("request id = %q, want the caller's", got)
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.Origins = []string{"https://app.example"} })

	req := httptest.NewRequest(http.MethodOptions, "/api/countries", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := f.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Fatalf("allow origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = f.do(req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("allow origin = %q for a foreign origin", got)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	if got := clientIP(req); got != "10.0.0.1" {
		t.Fatalf("clientIP = %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.7" {
		t.Fatalf("clientIP = %q", got)
	}
}
