package config

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the site configuration. Values come from defaults, an optional
// YAML file, environment variables and finally explicitly set flags, each
// overriding the previous.
type Config struct {
	Port        int    `mapstructure:"port"`
	MetricsPort int    `mapstructure:"metrics_port"`
	RedisURL    string `mapstructure:"redis_url"`

	// Market data
	MarketURL          string        `mapstructure:"market_url"`
	MarketFallbackURL  string        `mapstructure:"market_fallback_url"`
	HeroURL            string        `mapstructure:"hero_url"`
	MarketPollInterval time.Duration `mapstructure:"market_poll_interval"`
	HeroPollInterval   time.Duration `mapstructure:"hero_poll_interval"`
	MarketTimeout      time.Duration `mapstructure:"market_timeout"`
	MarketRateLimit    float64       `mapstructure:"market_rate_limit"`

	// Backends
	AuthURL      string        `mapstructure:"auth_url"`
	AuthTimeout  time.Duration `mapstructure:"auth_timeout"`
	ReferenceURL string        `mapstructure:"reference_url"`
	GeoIPURL     string        `mapstructure:"geoip_url"`

	// SupportWebhookURL receives queued contact messages; empty logs them only.
	SupportWebhookURL string `mapstructure:"support_webhook_url"`

	// Site
	DefaultLocale  string   `mapstructure:"default_locale"`
	Locales        []string `mapstructure:"locales"`
	AssetsDir      string   `mapstructure:"assets_dir"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	CookieSecure   bool     `mapstructure:"cookie_secure"`

	// Storage
	DBDriver string `mapstructure:"db_driver"`
	DBDSN    string `mapstructure:"db_dsn"`
}

var defaults = map[string]interface{}{
	"port":                 8080,
	"metrics_port":         9090,
	"redis_url":            "",
	"market_url":           "",
	"market_fallback_url":  "",
	"hero_url":             "",
	"market_poll_interval": 15 * time.Second,
	"hero_poll_interval":   30 * time.Second,
	"market_timeout":       10 * time.Second,
	"market_rate_limit":    2.0,
	"auth_url":             "",
	"auth_timeout":         10 * time.Second,
	"reference_url":        "",
	"geoip_url":            "https://ipapi.co/json/",
	"support_webhook_url":  "",
	"default_locale":       "en",
	"locales":              []string{"en", "es", "fr", "de"},
	"assets_dir":           "web/static",
	"allowed_origins":      []string{"*"},
	"cookie_secure":        false,
	"db_driver":            "sqlite",
	"db_dsn":               "data/site.db",
}

// Load reads defaults, the optional config file, environment variables and
// application flags (via a local FlagSet, ignoring -test.* args), then
// validates the result.
func Load() (*Config, error) {
	return load(os.Args[1:])
}

func load(args []string) (*Config, error) {
	// Fresh FlagSet so we don't collide with `go test` flags
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	configFile := fs.String("config", os.Getenv("SITE_CONFIG"), "optional YAML config file")
	port := fs.Int("port", 0, "HTTP listen port")
	metricsPort := fs.Int("metrics-port", 0, "Metrics server port")
	redisURL := fs.String("redis", "", "Redis connection URL")

	var appArgs []string
	for _, arg := range args {
		if strings.HasPrefix(arg, "-test.") {
			continue
		}
		appArgs = append(appArgs, arg)
	}
	if err := fs.Parse(appArgs); err != nil {
		return nil, err
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if *configFile != "" {
		v.SetConfigFile(*configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", *configFile, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = *port
		case "metrics-port":
			cfg.MetricsPort = *metricsPort
		case "redis":
			cfg.RedisURL = *redisURL
		}
	})

	if cfg.HeroURL == "" {
		cfg.HeroURL = cfg.MarketURL
	}
	cfg.Locales = splitAndTrim(strings.Join(cfg.Locales, ","), ",")
	cfg.AllowedOrigins = splitAndTrim(strings.Join(cfg.AllowedOrigins, ","), ",")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate returns the first violated rule.
func (c *Config) Validate() error {
	if c.MarketURL == "" {
		return errors.New("missing required config: MARKET_URL")
	}
	if c.AuthURL == "" {
		return errors.New("missing required config: AUTH_URL")
	}
	for _, u := range []struct{ name, raw string }{
		{"MARKET_URL", c.MarketURL},
		{"MARKET_FALLBACK_URL", c.MarketFallbackURL},
		{"HERO_URL", c.HeroURL},
		{"AUTH_URL", c.AuthURL},
		{"REFERENCE_URL", c.ReferenceURL},
		{"GEOIP_URL", c.GeoIPURL},
		{"SUPPORT_WEBHOOK_URL", c.SupportWebhookURL},
	} {
		if u.raw == "" {
			continue
		}
		if parsed, err := url.Parse(u.raw); err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("invalid %s: %q", u.name, u.raw)
		}
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT: %d", c.Port)
	}
	if c.MetricsPort <= 0 || c.MetricsPort > 65535 || c.MetricsPort == c.Port {
		return fmt.Errorf("invalid METRICS_PORT: %d", c.MetricsPort)
	}
	if c.MarketPollInterval <= 0 || c.HeroPollInterval <= 0 {
		return errors.New("poll intervals must be positive")
	}
	if c.MarketTimeout <= 0 {
		return errors.New("MARKET_TIMEOUT must be positive")
	}
	if c.MarketRateLimit <= 0 {
		return errors.New("MARKET_RATE_LIMIT must be positive")
	}
	if len(c.Locales) == 0 {
		return errors.New("no locales configured")
	}
	found := false
	for _, l := range c.Locales {
		if l == c.DefaultLocale {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("DEFAULT_LOCALE %q is not in LOCALES", c.DefaultLocale)
	}
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.DBDSN == "" {
		return errors.New("missing required config: DB_DSN")
	}
	return nil
}

// splitAndTrim splits s on sep, trims spaces, and drops empty entries.
func splitAndTrim(s, sep string) []string {
	parts := []string{}
	for _, p := range strings.Split(s, sep) {
		if t := strings.TrimSpace(p); t != "" {
			parts = append(parts, t)
		}
	}
	return parts
}
