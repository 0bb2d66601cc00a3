// Package config loads process configuration from the environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendDynamoDB = "dynamodb"
	BackendSQL      = "sql"
	BackendMemory   = "memory"

	// ParamZAPIToken holds JSON {"token": "..."}.
	ParamZAPIToken = "zapi-token"
	// ParamSessionSecret holds the raw secret string.
	ParamSessionSecret = "session-secret"
)

type ZAPI struct {
	InstanceID  string
	Token       string
	ClientToken string
	BaseURL     string
	Timeout     time.Duration
}

type Config struct {
	Addr     string
	LogLevel slog.Level

	ZAPI ZAPI

	StoreBackend string
	DatabaseURL  string
	StateTable   string

	SessionSecret string
	ParamPrefix   string

	RedisURL  string
	DedupeTTL time.Duration
}

// SecretLookup reads a secret by key below the configured parameter prefix.
type SecretLookup interface {
	Lookup(ctx context.Context, key string) (string, error)
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over .env entries.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}
	return LoadFrom(os.LookupEnv)
}

// LoadFrom builds a Config from lookup. It only fails on values that cannot
// be parsed; use Validate before serving traffic.
func LoadFrom(lookup func(string) (string, bool)) (Config, error) {
	get := func(key, fallback string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return fallback
	}

	cfg := Config{
		Addr: get("APP_ADDR", ":8080"),
		ZAPI: ZAPI{
			InstanceID:  get("ZAPI_INSTANCE_ID", ""),
			Token:       get("ZAPI_TOKEN", ""),
			ClientToken: get("ZAPI_CLIENT_TOKEN", ""),
			BaseURL:     get("ZAPI_BASE_URL", "https://api.z-api.io"),
		},
		StoreBackend:  strings.ToLower(get("STORE_BACKEND", "")),
		DatabaseURL:   get("DATABASE_URL", ""),
		StateTable:    get("STATE_TABLE", ""),
		SessionSecret: get("SESSION_SECRET", ""),
		ParamPrefix:   get("PARAM_PREFIX", ""),
		RedisURL:      get("REDIS_URL", ""),
	}

	var err error
	if cfg.LogLevel, err = parseLevel(get("LOG_LEVEL", "info")); err != nil {
		return Config{}, err
	}
	if cfg.ZAPI.Timeout, err = parseDuration("ZAPI_TIMEOUT", get("ZAPI_TIMEOUT", "20s")); err != nil {
		return Config{}, err
	}
	if cfg.DedupeTTL, err = parseDuration("DEDUPE_TTL", get("DEDUPE_TTL", "24h")); err != nil {
		return Config{}, err
	}
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = inferBackend(cfg)
	}
	return cfg, nil
}

func inferBackend(cfg Config) string {
	switch {
	case cfg.DatabaseURL != "":
		return BackendSQL
	case cfg.StateTable != "":
		return BackendDynamoDB
	default:
		return BackendMemory
	}
}

// ValidateStore checks that the selected backend has what it needs.
func (c Config) ValidateStore() error {
	switch c.StoreBackend {
	case BackendSQL:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL is required for the sql store")
		}
	case BackendDynamoDB:
		if c.StateTable == "" {
			return errors.New("config: STATE_TABLE is required for the dynamodb store")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("config: unknown STORE_BACKEND %q", c.StoreBackend)
	}
	return nil
}

// Validate checks everything needed to serve webhooks.
func (c Config) Validate() error {
	var errs []error
	if c.ZAPI.InstanceID == "" {
		errs = append(errs, errors.New("config: ZAPI_INSTANCE_ID is required"))
	}
	if c.ZAPI.Token == "" && c.ParamPrefix == "" {
		errs = append(errs, errors.New("config: ZAPI_TOKEN or PARAM_PREFIX is required"))
	}
	if c.SessionSecret == "" && c.ParamPrefix == "" {
		errs = append(errs, errors.New("config: SESSION_SECRET or PARAM_PREFIX is required"))
	}
	if c.ZAPI.Timeout <= 0 {
		errs = append(errs, errors.New("config: ZAPI_TIMEOUT must be positive"))
	}
	if c.DedupeTTL <= 0 {
		errs = append(errs, errors.New("config: DEDUPE_TTL must be positive"))
	}
	if err := c.ValidateStore(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ResolveSecrets fills SessionSecret from the parameter store when it is not
// set directly. The gateway token is resolved lazily by the gateway client.
func (c *Config) ResolveSecrets(ctx context.Context, secrets SecretLookup) error {
	if c.SessionSecret != "" || c.ParamPrefix == "" {
		return nil
	}
	if secrets == nil {
		return errors.New("config: secret lookup must not be nil")
	}
	v, err := secrets.Lookup(ctx, ParamSessionSecret)
	if err != nil {
		return fmt.Errorf("config: resolve session secret: %w", err)
	}
	c.SessionSecret = strings.TrimSpace(v)
	if c.SessionSecret == "" {
		return errors.New("config: session secret parameter is empty")
	}
	return nil
}

// NeedsAWS reports whether any configured component talks to AWS.
func (c Config) NeedsAWS() bool {
	return c.StoreBackend == BackendDynamoDB || c.ParamPrefix != ""
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("config: invalid LOG_LEVEL %q", s)
	}
	return l, nil
}

func parseDuration(key, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s %q: %w", key, s, err)
	}
	return d, nil
}
