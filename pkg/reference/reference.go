// Package reference loads the country and language lists shown on the
// registration form, and guesses the visitor's country from their IP.
package reference

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/alim08/tradesite/pkg/logger"
	"github.com/alim08/tradesite/pkg/models"
	"github.com/alim08/tradesite/pkg/upstream"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"resty.dev/v3"
)

// Lookups is everything the registration form needs.
type Lookups struct {
	Countries []models.Country  `json:"countries"`
	Languages []models.Language `json:"languages"`
	// Preselected is the detected country code, set only when it is in Countries.
	Preselected string `json:"preselected,omitempty"`
}

type countriesEnvelope struct {
	Success bool             `json:"success"`
	Data    []models.Country `json:"data"`
	Error   string           `json:"error"`
}

type geoResponse struct {
	CountryCode string `json:"country_code"`
}

// Client talks to the reference-data service and the geo-IP lookup.
type Client struct {
	rc  *resty.Client
	geo *resty.Client
}

// NewClient creates a Client. An empty geoURL disables country detection.
func NewClient(baseURL, geoURL string, timeout time.Duration) *Client {
	c := &Client{rc: upstream.NewHTTPClient(baseURL, timeout)}
	if geoURL != "" {
		c.geo = upstream.NewHTTPClient(geoURL, timeout)
	}
	return c
}

// Countries returns the country list. A success=false answer yields an
// upstream error carrying the service's message.
func (c *Client) Countries(ctx context.Context) (countries []models.Country, err error) {
	start := time.Now()
	defer func() { upstream.Observe("countries", start, err) }()

	var env countriesEnvelope
	resp, err := c.rc.R().
		SetContext(ctx).
		SetExpectResponseContentType("application/json").
		SetResult(&env).
		Get("/countries")
	if err != nil {
		return nil, upstream.ClassifyTransportError(err)
	}
	if !resp.IsSuccess() {
		return nil, upstream.ClassifyHTTPError(resp.StatusCode(), "")
	}
	if !env.Success {
		return nil, upstream.NewUpstreamError(env.Error)
	}
	return env.Data, nil
}

// Languages returns the language list, English and German first and the
// rest by name.
func (c *Client) Languages(ctx context.Context) (languages []models.Language, err error) {
	start := time.Now()
	defer func() { upstream.Observe("languages", start, err) }()

	resp, err := c.rc.R().
		SetContext(ctx).
		SetExpectResponseContentType("application/json").
		SetResult(&languages).
		Get("/languages")
	if err != nil {
		return nil, upstream.ClassifyTransportError(err)
	}
	if !resp.IsSuccess() {
		return nil, upstream.ClassifyHTTPError(resp.StatusCode(), "")
	}
	SortLanguages(languages)
	return languages, nil
}

// DetectCountry returns the visitor's ISO country code according to the
// geo-IP service. clientIP is forwarded so the lookup is about the visitor
// rather than this server.
func (c *Client) DetectCountry(ctx context.Context, clientIP string) (code string, err error) {
	if c.geo == nil {
		return "", nil
	}
	start := time.Now()
	defer func() { upstream.Observe("geoip", start, err) }()

	var geo geoResponse
	req := c.geo.R().
		SetContext(ctx).
		SetExpectResponseContentType("application/json").
		SetResult(&geo)
	if clientIP != "" {
		req.SetHeader("X-Forwarded-For", clientIP)
	}
	resp, err := req.Get("")
	if err != nil {
		return "", upstream.ClassifyTransportError(err)
	}
	if !resp.IsSuccess() {
		return "", upstream.ClassifyHTTPError(resp.StatusCode(), "")
	}
	return strings.ToUpper(geo.CountryCode), nil
}

// Load fetches countries and languages concurrently. If either request fails
// the whole load fails. When the country list is available the visitor's
// country is detected and preselected; detection failures are ignored.
func (c *Client) Load(ctx context.Context, clientIP string) (Lookups, error) {
	var out Lookups
	var countriesErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		countries, err := c.Countries(gctx)
		if upstream.TypeOf(err) == upstream.ErrorTypeUpstream {
			// The list is simply unavailable; languages still load.
			countriesErr = err
			return nil
		}
		out.Countries = countries
		return err
	})
	g.Go(func() error {
		languages, err := c.Languages(gctx)
		out.Languages = languages
		return err
	})
	if err := g.Wait(); err != nil {
		logger.Log.Error("failed to load reference data", zap.Error(err))
		return Lookups{}, err
	}
	if countriesErr != nil {
		logger.Log.Warn("country list unavailable", zap.Error(countriesErr))
		return out, nil
	}

	code, err := c.DetectCountry(ctx, clientIP)
	if err != nil {
		logger.Log.Debug("could not detect location via IP", zap.Error(err))
		return out, nil
	}
	if code != "" && containsCountry(out.Countries, code) {
		out.Preselected = code
	}
	return out, nil
}

func containsCountry(countries []models.Country, code string) bool {
	for _, c := range countries {
		if c.Code == code {
			return true
		}
	}
	return false
}

// Filter returns the items whose name or code contains query, ignoring case.
// An empty query returns items unchanged.
func Filter[T models.Country | models.Language](items []T, query string) []T {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return items
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		code, name := fields(item)
		if strings.Contains(strings.ToLower(name), q) || strings.Contains(strings.ToLower(code), q) {
			out = append(out, item)
		}
	}
	return out
}

func fields[T models.Country | models.Language](item T) (code, name string) {
	switch v := any(item).(type) {
	case models.Country:
		return v.Code, v.Name
	case models.Language:
		return v.Code, v.Name
	}
	return "", ""
}

var languagePriority = map[string]int{"en": 0, "de": 1}

// SortLanguages orders languages with English and German first, then by name.
func SortLanguages(languages []models.Language) {
	sort.SliceStable(languages, func(i, j int) bool {
		pi, iok := languagePriority[languages[i].Code]
		pj, jok := languagePriority[languages[j].Code]
		switch {
		case iok && jok:
			return pi < pj
		case iok != jok:
			return iok
		default:
			return languages[i].Name < languages[j].Name
		}
	})
}
