package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alim08/tradesite/pkg/auth"
	"github.com/alim08/tradesite/pkg/config"
	"github.com/alim08/tradesite/pkg/database"
	"github.com/alim08/tradesite/pkg/display"
	"github.com/alim08/tradesite/pkg/format"
	"github.com/alim08/tradesite/pkg/i18n"
	"github.com/alim08/tradesite/pkg/logger"
	"github.com/alim08/tradesite/pkg/marketdata"
	"github.com/alim08/tradesite/pkg/redisclient"
	"github.com/alim08/tradesite/pkg/reference"
	"github.com/alim08/tradesite/pkg/web"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		panic("config error: " + err.Error())
	}

	// 2. Init logger
	if err := logger.Init(); err != nil {
		panic("logger init: " + err.Error())
	}
	defer logger.Log.Sync()
	log := logger.Log
	log.Info("starting tradesite", zap.Int("port", cfg.Port), zap.Strings("locales", cfg.Locales))

	// 3. Database and migrations
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	db, err := database.New(ctx, database.NewConfig(cfg.DBDriver, cfg.DBDSN))
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	if err := db.RunMigrations(ctx); err != nil {
		log.Fatal("failed to run database migrations", zap.Error(err))
	}
	log.Info("database migrations completed", zap.String("driver", db.Driver()))

	// 4. Redis is optional; without it snapshots are not cached and
	// contact messages are only stored.
	var rdb *redisclient.Client
	if cfg.RedisURL != "" {
		rdb, err = redisclient.New(cfg.RedisURL)
		if err != nil {
			log.Fatal("failed to configure Redis", zap.Error(err))
		}
		defer rdb.Close()
	}

	// 5. Sessions and backends
	authConfig := auth.NewConfig()
	authConfig.SecureCookie = authConfig.SecureCookie || cfg.CookieSecure
	sessions, err := auth.NewSessionService(authConfig)
	if err != nil {
		log.Fatal("failed to initialize session service", zap.Error(err))
	}
	backend := auth.NewBackend(cfg.AuthURL, cfg.AuthTimeout)
	lookups := reference.NewClient(cfg.ReferenceURL, cfg.GeoIPURL, cfg.AuthTimeout)

	catalog, err := i18n.Load(cfg.Locales, cfg.DefaultLocale)
	if err != nil {
		log.Fatal("failed to load translations", zap.Error(err))
	}

	// 6. Market data clients share one limiter per provider.
	limiter := rate.NewLimiter(rate.Limit(cfg.MarketRateLimit), 1)
	marketHTTP := marketdata.NewHTTPClient("market", cfg.MarketURL, cfg.MarketTimeout, marketdata.WithLimiter(limiter))
	defer marketHTTP.Close()
	var marketClient marketdata.Client = marketHTTP
	if cfg.MarketFallbackURL != "" {
		fallback := marketdata.NewHTTPClient("market-fallback", cfg.MarketFallbackURL, cfg.MarketTimeout)
		defer fallback.Close()
		marketClient = marketdata.NewMultiClient(marketHTTP, fallback)
	}
	heroClient := marketClient
	if cfg.HeroURL != cfg.MarketURL {
		hero := marketdata.NewHTTPClient("hero", cfg.HeroURL, cfg.MarketTimeout)
		defer hero.Close()
		heroClient = hero
	}

	// 7. Displays publish every change to the feed; snapshots also go to
	// the cache.
	hub := web.NewHub(cfg.AllowedOrigins)
	assets := assetsFS(cfg.AssetsDir)
	onSnapshot := func(v display.View) {
		hub.Broadcast(v)
		if rdb == nil || v.Status != display.StatusReady {
			return
		}
		payload, err := json.Marshal(v)
		if err != nil {
			log.Error("failed to encode snapshot", zap.String("view", v.Name), zap.Error(err))
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := rdb.CacheSnapshot(ctx, v.Name, payload); err != nil {
			log.Warn("failed to cache snapshot", zap.String("view", v.Name), zap.Error(err))
		}
	}
	displayOpts := []display.Option{display.WithSnapshotHook(onSnapshot)}
	if assets != nil {
		displayOpts = append(displayOpts, display.WithAssets(assets))
	}
	heroDisplay := display.New(web.ViewHero, heroClient, format.Fixed2, cfg.HeroPollInterval, displayOpts...)
	marketDisplay := display.New(web.ViewMarket, marketClient, format.Tiered, cfg.MarketPollInterval, displayOpts...)

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()
	for _, d := range []*display.Display{heroDisplay, marketDisplay} {
		if err := d.Mount(runCtx); err != nil {
			log.Fatal("failed to mount display", zap.String("view", d.Name()), zap.Error(err))
		}
	}

	// 8. Site
	deps := web.Deps{
		Displays:  []*display.Display{heroDisplay, marketDisplay},
		Catalog:   catalog,
		Sessions:  sessions,
		Auth:      backend,
		Reference: lookups,
		Contacts:  database.NewContactRepository(db),
		DB:        db,
		Hub:       hub,
		Assets:    assets,
		Origins:   cfg.AllowedOrigins,
	}
	if rdb != nil {
		deps.Queue = rdb
		deps.Cache = rdb
		deps.Redis = rdb
	}
	site, err := web.NewServer(deps)
	if err != nil {
		log.Fatal("failed to build site", zap.Error(err))
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      site.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go startMetricsServer(cfg.MetricsPort)

	go func() {
		log.Info("starting HTTP server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// 9. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	heroDisplay.Unmount()
	marketDisplay.Unmount()
	stop()
	hub.Close()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	log.Info("server exited")
}

// assetsFS returns the static assets directory, or nil when it is missing.
func assetsFS(dir string) fs.FS {
	if dir == "" {
		return nil
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		logger.Log.Warn("assets directory unavailable, logos will use badges", zap.String("dir", dir))
		return nil
	}
	return os.DirFS(dir)
}

func startMetricsServer(port int) {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	logger.Log.Info("metrics server listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, r); err != nil {
		logger.Log.Error("metrics server stopped", zap.Error(err))
	}
}
