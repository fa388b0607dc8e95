// Package config loads the server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // VIEWER_TIMEZONE must resolve on hosts without zoneinfo

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/breatheroute/roadpulse/internal/database"
)

// ErrInvalid is returned for an environment value that cannot be used.
var ErrInvalid = errors.New("invalid configuration value")

// Data sources.
const (
	SourceHTTP    = "http"
	SourcePostGIS = "postgis"
)

// Config is the complete server configuration.
type Config struct {
	Port     string
	Env      string
	LogLevel zerolog.Level

	DataSource         string
	DataServiceURL     string
	DataServiceTimeout time.Duration

	RoadCacheSize int
	RoadCacheTTL  time.Duration

	CacheWarmEnabled     bool
	CacheWarmConcurrency int

	Location       *time.Location
	ViewportWidth  int
	ViewportHeight int

	OTelEnabled  bool
	OTLPEndpoint string

	RequireTLS bool

	Database database.Config
}

// Load reads optional dotenv files, then parses the process environment.
// Variables already set in the environment take precedence over dotenv files.
// Missing files are ignored.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return Parse(os.Getenv)
}

// Parse builds a Config from a variable lookup.
func Parse(getenv func(string) string) (Config, error) {
	p := parser{getenv: getenv}

	cfg := Config{
		Port:                 p.str("APP_PORT", "8080"),
		Env:                  p.str("APP_ENV", "development"),
		LogLevel:             p.level("LOG_LEVEL", zerolog.InfoLevel),
		DataSource:           strings.ToLower(p.str("DATA_SOURCE", SourceHTTP)),
		DataServiceURL:       p.str("DATA_SERVICE_URL", "http://localhost:8000"),
		DataServiceTimeout:   p.duration("DATA_SERVICE_TIMEOUT", 10*time.Second),
		RoadCacheSize:        p.integer("ROAD_CACHE_SIZE", 64),
		RoadCacheTTL:         p.duration("ROAD_CACHE_TTL", 10*time.Minute),
		CacheWarmEnabled:     p.boolean("CACHE_WARM_ENABLED", true),
		CacheWarmConcurrency: p.integer("CACHE_WARM_CONCURRENCY", 3),
		Location:             p.location("VIEWER_TIMEZONE", "Europe/Madrid"),
		ViewportWidth:        p.integer("VIEWPORT_WIDTH", 1280),
		ViewportHeight:       p.integer("VIEWPORT_HEIGHT", 720),
		OTelEnabled:          p.boolean("OTEL_ENABLED", false),
		OTLPEndpoint:         p.str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		RequireTLS:           p.boolean("REQUIRE_TLS", false),
		Database: database.Config{
			Host:            p.str("DB_HOST", "localhost"),
			Port:            p.integer("DB_PORT", 5432),
			User:            p.str("DB_USER", "roadpulse"),
			Password:        p.str("DB_PASSWORD", "localdev"),
			Database:        p.str("DB_NAME", "roadpulse"),
			SSLMode:         p.str("DB_SSL_MODE", "disable"),
			MaxOpenConns:    p.integer("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    p.integer("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: p.duration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
	}

	if cfg.DataSource != SourceHTTP && cfg.DataSource != SourcePostGIS {
		p.fail("DATA_SOURCE", cfg.DataSource)
	}
	if cfg.CacheWarmConcurrency < 1 {
		p.fail("CACHE_WARM_CONCURRENCY", strconv.Itoa(cfg.CacheWarmConcurrency))
	}
	if cfg.ViewportWidth < 0 {
		p.fail("VIEWPORT_WIDTH", strconv.Itoa(cfg.ViewportWidth))
	}
	if cfg.ViewportHeight < 0 {
		p.fail("VIEWPORT_HEIGHT", strconv.Itoa(cfg.ViewportHeight))
	}

	if len(p.errs) > 0 {
		return Config{}, errors.Join(p.errs...)
	}
	return cfg, nil
}

// IsProduction reports whether the server runs in production.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

type parser struct {
	getenv func(string) string
	errs   []error
}

func (p *parser) fail(key, value string) {
	p.errs = append(p.errs, fmt.Errorf("%s=%q: %w", key, value, ErrInvalid))
}

func (p *parser) str(key, def string) string {
	if v := strings.TrimSpace(p.getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) integer(key string, def int) int {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v)
		return def
	}
	return n
}

func (p *parser) boolean(key string, def bool) bool {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v)
		return def
	}
	return b
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		p.fail(key, v)
		return def
	}
	return d
}

func (p *parser) level(key string, def zerolog.Level) zerolog.Level {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(v))
	if err != nil {
		p.fail(key, v)
		return def
	}
	return lvl
}

func (p *parser) location(key, def string) *time.Location {
	v := p.str(key, def)
	loc, err := time.LoadLocation(v)
	if err != nil {
		p.fail(key, v)
		return time.UTC
	}
	return loc
}
