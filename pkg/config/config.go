// Package config loads proxy configuration from SWCACHE_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/Sternrassler/swcache-proxy/pkg/logging"
	"github.com/Sternrassler/swcache-proxy/pkg/version"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config is the complete proxy configuration. It is read once at startup
// and not modified afterwards.
type Config struct {
	// Build identity; the cache generation name derives from it.
	Title    string `env:"SWCACHE_TITLE" envDefault:"SW Demo"`
	Major    int    `env:"SWCACHE_MAJOR" envDefault:"0"`
	Minor    int    `env:"SWCACHE_MINOR" envDefault:"0"`
	Revision int    `env:"SWCACHE_REVISION" envDefault:"15"`

	Origin string `env:"SWCACHE_ORIGIN,required"`
	Listen string `env:"SWCACHE_LISTEN" envDefault:":8080"`

	Store         string `env:"SWCACHE_STORE" envDefault:"memory"`
	RedisAddr     string `env:"SWCACHE_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"SWCACHE_REDIS_PASSWORD"`
	RedisDB       int    `env:"SWCACHE_REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"SWCACHE_REDIS_PREFIX" envDefault:"swcache"`

	Assets []string `env:"SWCACHE_ASSETS" envSeparator:"," envDefault:"/,/index.html,/about.html,/images.html,/style/reset.css,/style/style.css,/js/constants.js,/js/app.js,/img/icons/home16.png,/img/photo1.jpg,/img/photo2.jpg,/img/photo3.jpg"`
	Ignore []string `env:"SWCACHE_IGNORE" envSeparator:"," envDefault:"chrome-extension,fiveserver"`

	FetchTimeout       time.Duration `env:"SWCACHE_FETCH_TIMEOUT" envDefault:"30s"`
	MaxAttempts        int           `env:"SWCACHE_MAX_ATTEMPTS" envDefault:"2"`
	PrewarmConcurrency int           `env:"SWCACHE_PREWARM_CONCURRENCY" envDefault:"6"`
	PrewarmTimeout     time.Duration `env:"SWCACHE_PREWARM_TIMEOUT" envDefault:"15s"`
	WriteBackTimeout   time.Duration `env:"SWCACHE_WRITEBACK_TIMEOUT" envDefault:"5s"`
	ShutdownTimeout    time.Duration `env:"SWCACHE_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	LogLevel  string `env:"SWCACHE_LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"SWCACHE_LOG_PRETTY" envDefault:"false"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Assets = trimAll(cfg.Assets)
	cfg.Ignore = trimAll(cfg.Ignore)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values the environment parser cannot.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Title) == "" {
		errs = append(errs, errors.New("SWCACHE_TITLE must not be empty"))
	}
	if c.Major < 0 || c.Minor < 0 || c.Revision < 0 {
		errs = append(errs, fmt.Errorf("version numbers must be >= 0 (got %d.%d.%d)", c.Major, c.Minor, c.Revision))
	}

	if u, err := url.Parse(c.Origin); err != nil {
		errs = append(errs, fmt.Errorf("SWCACHE_ORIGIN: %w", err))
	} else if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("SWCACHE_ORIGIN must be an absolute http(s) URL (got %q)", c.Origin))
	}

	switch c.Store {
	case StoreMemory:
	case StoreRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("SWCACHE_REDIS_ADDR is required for the redis store"))
		}
	default:
		errs = append(errs, fmt.Errorf("SWCACHE_STORE must be %q or %q (got %q)", StoreMemory, StoreRedis, c.Store))
	}

	for _, p := range c.Assets {
		if !strings.HasPrefix(p, "/") {
			errs = append(errs, fmt.Errorf("asset %q must start with /", p))
		}
	}

	if c.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("SWCACHE_FETCH_TIMEOUT must be > 0 (got %s)", c.FetchTimeout))
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("SWCACHE_MAX_ATTEMPTS must be >= 1 (got %d)", c.MaxAttempts))
	}
	if c.PrewarmConcurrency < 1 {
		errs = append(errs, fmt.Errorf("SWCACHE_PREWARM_CONCURRENCY must be >= 1 (got %d)", c.PrewarmConcurrency))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("SWCACHE_LOG_LEVEL: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// App returns the build identity.
func (c Config) App() version.App {
	return version.New(c.Title, c.Major, c.Minor, c.Revision)
}

// OriginURL returns the parsed origin. Only valid after Validate.
func (c Config) OriginURL() *url.URL {
	u, _ := url.Parse(c.Origin)
	return u
}

// Logging returns the logger configuration.
func (c Config) Logging() logging.Config {
	level, _ := logging.ParseLevel(c.LogLevel)
	cfg := logging.DefaultConfig()
	cfg.Level = level
	cfg.Pretty = c.LogPretty
	cfg.Fields = map[string]string{"app": c.App().Name()}
	return cfg
}

func trimAll(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
