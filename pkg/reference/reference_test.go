package reference

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alim08/tradesite/pkg/models"
	"github.com/alim08/tradesite/pkg/upstream"
)

type routes map[string]func(w http.ResponseWriter, r *http.Request)

func server(t *testing.T, rs routes) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := rs[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func jsonBody(status int, body string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}
}

const (
	countriesOK = `{"success":true,"data":[{"code":"US","name":"United States"},{"code":"DE","name":"Germany"},{"code":"AT","name":"Austria"}]}`
	languagesOK = `[{"code":"fr","name":"French"},{"code":"de","name":"German"},{"code":"es","name":"Spanish"},{"code":"en","name":"English"}]`
)

func TestLoad_PreselectsDetectedCountry(t *testing.T) {
	ref := server(t, routes{
		"/countries": jsonBody(200, countriesOK),
		"/languages": jsonBody(200, languagesOK),
	})
	var forwarded string
	geo := server(t, routes{
		"/": func(w http.ResponseWriter, r *http.Request) {
			forwarded = r.Header.Get("X-Forwarded-For")
			jsonBody(200, `{"country_code":"de"}`)(w, r)
		},
	})

	c := NewClient(ref.URL, geo.URL+"/", time.Second)
	got, err := c.Load(context.Background(), "203.0.113.7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Countries) != 3 || got.Preselected != "DE" {
		t.Errorf("countries=%v preselected=%q", got.Countries, got.Preselected)
	}
	if forwarded != "203.0.113.7" {
		t.Errorf("X-Forwarded-For = %q", forwarded)
	}
	wantOrder := []string{"en", "de", "fr", "es"}
	for i, code := range wantOrder {
		if got.Languages[i].Code != code {
			t.Errorf("languages = %v; want order %v", got.Languages, wantOrder)
			break
		}
	}
}

func TestLoad_UnknownDetectedCountry(t *testing.T) {
	ref := server(t, routes{
		"/countries": jsonBody(200, countriesOK),
		"/languages": jsonBody(200, languagesOK),
	})
	geo := server(t, routes{"/": jsonBody(200, `{"country_code":"JP"}`)})

	got, err := NewClient(ref.URL, geo.URL+"/", time.Second).Load(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Preselected != "" {
		t.Errorf("Preselected = %q; want none", got.Preselected)
	}
}

func TestLoad_GeoFailureIgnored(t *testing.T) {
	ref := server(t, routes{
		"/countries": jsonBody(200, countriesOK),
		"/languages": jsonBody(200, languagesOK),
	})
	geo := server(t, routes{"/": jsonBody(500, `{}`)})

	got, err := NewClient(ref.URL, geo.URL+"/", time.Second).Load(context.Background(), "")
	if err != nil {
		t.Fatalf("geo failure should be ignored, got %v", err)
	}
	if len(got.Countries) != 3 || len(got.Languages) != 4 || got.Preselected != "" {
		t.Errorf("got %+v", got)
	}
}

func TestLoad_CountriesUnsuccessful(t *testing.T) {
	ref := server(t, routes{
		"/countries": jsonBody(200, `{"success":false,"error":"maintenance"}`),
		"/languages": jsonBody(200, languagesOK),
	})
	geoCalled := false
	geo := server(t, routes{"/": func(w http.ResponseWriter, r *http.Request) { geoCalled = true }})

	got, err := NewClient(ref.URL, geo.URL+"/", time.Second).Load(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Countries) != 0 || len(got.Languages) != 4 {
		t.Errorf("got %+v", got)
	}
	if geoCalled {
		t.Error("geo lookup should be skipped without a country list")
	}
}

func TestLoad_LanguagesFail(t *testing.T) {
	ref := server(t, routes{
		"/countries": jsonBody(200, countriesOK),
		"/languages": jsonBody(503, `{}`),
	})
	_, err := NewClient(ref.URL, "", time.Second).Load(context.Background(), "")
	if upstream.TypeOf(err) != upstream.ErrorTypeServer {
		t.Fatalf("err = %v; want server error", err)
	}
}

func TestCountries_UpstreamMessage(t *testing.T) {
	ref := server(t, routes{"/countries": jsonBody(200, `{"success":false,"error":"maintenance"}`)})
	_, err := NewClient(ref.URL, "", time.Second).Countries(context.Background())
	if upstream.DetailOf(err) != "maintenance" {
		t.Errorf("err = %v", err)
	}
}

func TestDetectCountry_Disabled(t *testing.T) {
	code, err := NewClient("http://127.0.0.1:1", "", time.Second).DetectCountry(context.Background(), "")
	if code != "" || err != nil {
		t.Errorf("got %q, %v", code, err)
	}
}

func TestFilter(t *testing.T) {
	countries := []models.Country{
		{Code: "US", Name: "United States"},
		{Code: "DE", Name: "Germany"},
		{Code: "GB", Name: "United Kingdom"},
	}
	if got := Filter(countries, "united"); len(got) != 2 {
		t.Errorf("name match = %v", got)
	}
	if got := Filter(countries, "de"); len(got) != 1 || got[0].Code != "DE" {
		t.Errorf("code match = %v", got)
	}
	if got := Filter(countries, "  "); len(got) != 3 {
		t.Errorf("empty query = %v", got)
	}
	languages := []models.Language{{Code: "en", Name: "English"}, {Code: "pt", Name: "Portuguese"}}
	if got := Filter(languages, "PORT"); len(got) != 1 || got[0].Code != "pt" {
		t.Errorf("language match = %v", got)
	}
}

func TestSortLanguages(t *testing.T) {
	langs := []models.Language{
		{Code: "it", Name: "Italian"},
		{Code: "de", Name: "German"},
		{Code: "ar", Name: "Arabic"},
		{Code: "en", Name: "English"},
	}
	SortLanguages(langs)
	want := []string{"en", "de", "ar", "it"}
	for i, code := range want {
		if langs[i].Code != code {
			t.Fatalf("order = %v; want %v", langs, want)
		}
	}
}
