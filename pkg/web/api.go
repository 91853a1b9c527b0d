package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/alim08/tradesite/pkg/display"
	"github.com/alim08/tradesite/pkg/logger"
	"github.com/alim08/tradesite/pkg/models"
	"github.com/alim08/tradesite/pkg/reference"
	"github.com/alim08/tradesite/pkg/upstream"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// SupportRole may read submitted contact messages.
const SupportRole = "support"

const maxContactListing = 200

// logoFailure is the body of POST /api/logo-failures.
type logoFailure struct {
	View   string `json:"view"`
	Symbol string `json:"symbol"`
}

// marketHandler returns one display's view. Until the display has a
// snapshot of its own, the last snapshot cached by a previous process is
// served when one exists.
func (s *Server) marketHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	name := mux.Vars(r)["view"]
	d, ok := s.display(name)
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown market view")
		return
	}

	v := d.View()
	meta := &Meta{Source: "live"}
	if v.Status == display.StatusLoading || v.Status == display.StatusUnmounted {
		if cached, ok := s.cachedView(r.Context(), name); ok {
			v = cached
			meta.Source = "cache"
		}
	}
	meta.Total = len(v.Quotes)
	meta.Duration = time.Since(start).Milliseconds()

	if v.HasError() {
		locale := s.catalog.Negotiate(r.Header.Get("Accept-Language"))
		writeJSON(w, http.StatusServiceUnavailable, Response{
			Success: false,
			Data:    v,
			Error:   s.errorText(locale, v),
			Meta:    meta,
		})
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: v, Meta: meta})
}

func (s *Server) cachedView(ctx context.Context, name string) (display.View, bool) {
	if s.cache == nil {
		return display.View{}, false
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	payload, err := s.cache.CachedSnapshot(ctx, name)
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Log.Warn("snapshot cache unavailable", zap.String("view", name), zap.Error(err))
		}
		return display.View{}, false
	}
	var v display.View
	if err := json.Unmarshal(payload, &v); err != nil {
		logger.Log.Warn("discarding malformed cached snapshot", zap.String("view", name), zap.Error(err))
		return display.View{}, false
	}
	return v, true
}

// logoFailureHandler records an image load error reported by the browser.
func (s *Server) logoFailureHandler(w http.ResponseWriter, r *http.Request) {
	var req logoFailure
	r.Body = http.MaxBytesReader(w, r.Body, 4<<10)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	d, ok := s.display(req.View)
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown market view")
		return
	}

	recorded := d.ReportLogoFailure(req.Symbol)
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data: map[string]interface{}{
			"recorded": recorded,
			"badge":    display.Badge(req.Symbol),
		},
	})
}

func (s *Server) countriesHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	countries, err := s.reference.Countries(ctx)
	if err != nil {
		s.writeUpstreamError(w, "countries", err)
		return
	}
	countries = reference.Filter(countries, r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    countries,
		Meta:    &Meta{Total: len(countries), Duration: time.Since(start).Milliseconds()},
	})
}

func (s *Server) languagesHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	languages, err := s.reference.Languages(ctx)
	if err != nil {
		s.writeUpstreamError(w, "languages", err)
		return
	}
	languages = reference.Filter(languages, r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    languages,
		Meta:    &Meta{Total: len(languages), Duration: time.Since(start).Milliseconds()},
	})
}

// writeUpstreamError passes an upstream's own message through; anything
// else is reported generically.
func (s *Server) writeUpstreamError(w http.ResponseWriter, what string, err error) {
	logger.Log.Error("reference lookup failed", zap.String("lookup", what), zap.Error(err))
	message := upstream.DetailOf(err)
	if message == "" {
		message = "Failed to load " + what
	}
	writeError(w, http.StatusBadGateway, message)
}

// contactMessagesHandler lists the newest contact messages for support staff.
func (s *Server) contactMessagesHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if n > maxContactListing {
			n = maxContactListing
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	messages, err := s.contacts.ListRecent(ctx, limit)
	if err != nil {
		logger.Log.Error("failed to list contact messages", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if messages == nil {
		messages = []models.ContactMessage{}
	}
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    messages,
		Meta:    &Meta{Total: len(messages), Duration: time.Since(start).Milliseconds()},
	})
}

// feedHandler streams every display's snapshots over a websocket.
func (s *Server) feedHandler(w http.ResponseWriter, r *http.Request) {
	s.hub.Serve(w, r, s.orderedViews()...)
}

// healthHandler returns server health status
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data: map[string]interface{}{
			"status":    "healthy",
			"timestamp": s.now().Unix(),
			"version":   Version,
		},
	})
}

// readyHandler checks the database and, when configured, Redis.
func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if s.db != nil {
		if err := s.db.HealthCheck(ctx); err != nil {
			logger.Log.Warn("database not ready", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "Database not ready")
			return
		}
	}
	if s.redis != nil {
		if err := s.redis.Ping(ctx); err != nil {
			logger.Log.Warn("redis not ready", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "Redis not ready")
			return
		}
	}

	views := make(map[string]string, len(s.displays))
	for name, d := range s.displays {
		views[name] = string(d.Status())
	}
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data: map[string]interface{}{
			"status": "ready",
			"views":  views,
		},
	})
}
