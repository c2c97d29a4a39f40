// Package config loads the orchestrator configuration from the environment.
// Values in optional dotenv files are applied first and never override
// variables already set in the process environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jmgilman/go/errors"
	"github.com/joho/godotenv"

	"github.com/Sternrassler/pm-orchestrator/pkg/cache"
	"github.com/Sternrassler/pm-orchestrator/pkg/client"
	"github.com/Sternrassler/pm-orchestrator/pkg/logging"
	"github.com/Sternrassler/pm-orchestrator/pkg/orchestrator"
	"github.com/Sternrassler/pm-orchestrator/pkg/pagination"
	"github.com/Sternrassler/pm-orchestrator/pkg/ratelimit"
)

// Environment keys.
const (
	EnvBaseURL            = "PM_BASE_URL"
	EnvAccountID          = "PM_ACCOUNT_ID"
	EnvAccessToken        = "PM_ACCESS_TOKEN"
	EnvUserAgent          = "PM_USER_AGENT"
	EnvTimeout            = "PM_TIMEOUT"
	EnvMaxRetries         = "PM_MAX_RETRIES"
	EnvMaxPages           = "PM_MAX_PAGES"
	EnvPreloadConcurrency = "PM_PRELOAD_CONCURRENCY"
	EnvCollectionTTL      = "PM_COLLECTION_TTL"
	EnvQueryTTL           = "PM_QUERY_TTL"
	EnvRedisURL           = "REDIS_URL"
	EnvLogLevel           = "LOG_LEVEL"
	EnvLogPretty          = "LOG_PRETTY"
	EnvPort               = "PORT"
)

// DefaultUserAgent is sent when PM_USER_AGENT is unset.
const DefaultUserAgent = "pm-orchestrator/0.1.0"

// Config is the process configuration.
type Config struct {
	BaseURL     string
	AccountID   string
	AccessToken string
	UserAgent   string

	Timeout            time.Duration
	MaxRetries         int
	MaxPages           int
	PreloadConcurrency int

	CollectionTTL time.Duration
	QueryTTL      time.Duration

	// RedisURL enables the shared snapshot tier when set.
	RedisURL string

	LogLevel  logging.LogLevel
	LogPretty bool

	Port string
}

// Default returns the configuration used for unset variables.
func Default() *Config {
	retry := client.DefaultRetryConfig()
	return &Config{
		BaseURL:            client.DefaultBaseURL,
		UserAgent:          DefaultUserAgent,
		Timeout:            30 * time.Second,
		MaxRetries:         retry.MaxRetries,
		MaxPages:           pagination.DefaultConfig().MaxPages,
		PreloadConcurrency: ratelimit.DefaultConcurrency,
		CollectionTTL:      cache.DefaultCollectionTTL,
		QueryTTL:           orchestrator.DefaultQueryTTL,
		LogLevel:           logging.LevelInfo,
		Port:               "8080",
	}
}

// Load applies the dotenv files that exist, then reads the environment.
// Missing files are skipped.
func Load(files ...string) (*Config, error) {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, errors.WrapWithContext(err, errors.CodeInvalidConfig, "failed to read env file", map[string]interface{}{
				"file": f,
			})
		}
	}
	return FromEnv()
}

// FromEnv reads the configuration from the process environment and
// validates it.
func FromEnv() (*Config, error) {
	cfg := Default()
	p := parser{}

	cfg.BaseURL = p.str(EnvBaseURL, cfg.BaseURL)
	cfg.AccountID = p.str(EnvAccountID, cfg.AccountID)
	cfg.AccessToken = p.str(EnvAccessToken, cfg.AccessToken)
	cfg.UserAgent = p.str(EnvUserAgent, cfg.UserAgent)
	cfg.Timeout = p.duration(EnvTimeout, cfg.Timeout)
	cfg.MaxRetries = p.integer(EnvMaxRetries, cfg.MaxRetries)
	cfg.MaxPages = p.integer(EnvMaxPages, cfg.MaxPages)
	cfg.PreloadConcurrency = p.integer(EnvPreloadConcurrency, cfg.PreloadConcurrency)
	cfg.CollectionTTL = p.duration(EnvCollectionTTL, cfg.CollectionTTL)
	cfg.QueryTTL = p.duration(EnvQueryTTL, cfg.QueryTTL)
	cfg.RedisURL = p.str(EnvRedisURL, cfg.RedisURL)
	cfg.LogLevel = p.level(EnvLogLevel, cfg.LogLevel)
	cfg.LogPretty = p.boolean(EnvLogPretty, cfg.LogPretty)
	cfg.Port = p.str(EnvPort, cfg.Port)

	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values the transport cannot run without.
func (c *Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return invalid(EnvBaseURL, "base url is required")
	case c.AccountID == "":
		return invalid(EnvAccountID, "account id is required")
	case c.AccessToken == "":
		return invalid(EnvAccessToken, "access token is required")
	case c.UserAgent == "":
		return invalid(EnvUserAgent, "user agent is required")
	case c.Timeout <= 0:
		return invalid(EnvTimeout, "timeout must be positive")
	case c.MaxRetries < 0:
		return invalid(EnvMaxRetries, "max retries must not be negative")
	case c.MaxPages <= 0:
		return invalid(EnvMaxPages, "max pages must be positive")
	case c.PreloadConcurrency <= 0:
		return invalid(EnvPreloadConcurrency, "preload concurrency must be positive")
	}
	return nil
}

// ClientConfig builds the transport configuration.
func (c *Config) ClientConfig() client.Config {
	cfg := client.DefaultConfig(c.AccountID, client.StaticToken(c.AccessToken), c.UserAgent)
	cfg.BaseURL = strings.TrimRight(c.BaseURL, "/")
	cfg.Timeout = c.Timeout
	cfg.Retry.MaxRetries = c.MaxRetries
	cfg.Pagination.MaxPages = c.MaxPages
	return cfg
}

// CacheConfig builds the reference cache configuration.
func (c *Config) CacheConfig() cache.Config {
	cfg := cache.DefaultConfig(c.AccountID)
	cfg.CollectionTTL = c.CollectionTTL
	return cfg
}

// LoggingConfig builds the logger configuration.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.LogLevel
	cfg.Pretty = c.LogPretty
	return cfg
}

// parser keeps the first conversion error.
type parser struct {
	err error
}

func (p *parser) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
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
		p.fail(key, v, err)
		return def
	}
	return n
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return d
}

func (p *parser) boolean(key string, def bool) bool {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return b
}

func (p *parser) level(key string, def logging.LogLevel) logging.LogLevel {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	level, err := logging.ParseLevel(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return level
}

func (p *parser) fail(key, value string, err error) {
	if p.err != nil {
		return
	}
	p.err = errors.WrapWithContext(err, errors.CodeInvalidConfig, "invalid value for "+key, map[string]interface{}{
		"key":   key,
		"value": value,
	})
}

func invalid(key, message string) error {
	return errors.WithContext(errors.New(errors.CodeInvalidConfig, message), "key", key)
}
