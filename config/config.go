// Package config loads environment variables and provides a typed Config used across the service.
// It applies defaults so the relay can run locally against a dev ingest server with only the
// integration credentials set. Cross-field requirements are checked by Validate.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Integration sources.
const (
	SourceGraphQL  = "graphql"
	SourcePostgres = "postgres"
)

// Notification sinks.
const (
	SinkGraphQL = "graphql"
	SinkNATS    = "nats"
)

type Config struct {
	// Ingest server
	IngestPath      string
	IntegrationID   string
	IntegrationKey  string
	IntegrationType string
	IngestTokenURL  string

	// Where integrations are listed from and where notifications go
	IntegrationSource string
	DBDsn             string
	NotifySink        string
	NATSURL           string
	NATSSubject       string

	// Twitch
	TwitchBotUsername string
	TwitchOAuthToken  string
	ChattersBaseURL   string

	// Timeouts and registry behavior
	MetaTimeout             time.Duration
	SubmitTimeout           time.Duration
	RegistryLoadAttempts    uint
	RegistryRefreshInterval time.Duration

	// Redis invalidation (optional)
	RedisURL                  string
	RegistryInvalidateChannel string

	// HTTP
	HTTPAddr   string
	AdminToken string

	// Tracing
	OTLPEndpoint string
}

// Load reads environment variables and applies defaults. It only fails on values that cannot be
// parsed; use Validate for required settings.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.IngestPath = os.Getenv("INGEST_PATH")
	if cfg.IngestPath == "" {
		cfg.IngestPath = "http://localhost:4000/graphql"
	}
	cfg.IntegrationID = os.Getenv("INTEGRATION_ID")
	cfg.IntegrationKey = os.Getenv("INTEGRATION_KEY")
	cfg.IntegrationType = envOr("INTEGRATION_TYPE", "twitch_chat")
	cfg.IngestTokenURL = os.Getenv("INGEST_TOKEN_URL")

	cfg.IntegrationSource = strings.ToLower(envOr("INTEGRATION_SOURCE", SourceGraphQL))
	cfg.DBDsn = os.Getenv("DB_DSN")
	cfg.NotifySink = strings.ToLower(envOr("NOTIFY_SINK", SinkGraphQL))
	cfg.NATSURL = envOr("NATS_URL", "nats://127.0.0.1:4222")
	cfg.NATSSubject = os.Getenv("NATS_SUBJECT")

	cfg.TwitchBotUsername = os.Getenv("TWITCH_BOT_USERNAME")
	cfg.TwitchOAuthToken = os.Getenv("TWITCH_OAUTH_TOKEN")
	cfg.ChattersBaseURL = os.Getenv("CHATTERS_BASE_URL")

	var err error
	if cfg.MetaTimeout, err = durationEnv("META_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.SubmitTimeout, err = durationEnv("SUBMIT_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.RegistryRefreshInterval, err = durationEnv("REGISTRY_REFRESH_INTERVAL", 0); err != nil {
		return nil, err
	}
	cfg.RegistryLoadAttempts = 3
	if v := os.Getenv("REGISTRY_LOAD_ATTEMPTS"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil || n == 0 {
			return nil, fmt.Errorf("invalid REGISTRY_LOAD_ATTEMPTS %q: want a positive integer", v)
		}
		cfg.RegistryLoadAttempts = uint(n)
	}

	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.RegistryInvalidateChannel = os.Getenv("REGISTRY_INVALIDATE_CHANNEL")

	cfg.HTTPAddr = envOr("HTTP_ADDR", ":8080")
	cfg.AdminToken = os.Getenv("ADMIN_TOKEN")

	cfg.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")

	return cfg, nil
}

// Validate checks the settings the selected source and sink depend on.
func (c *Config) Validate() error {
	var errs []error
	if c.IntegrationID == "" || c.IntegrationKey == "" {
		errs = append(errs, errors.New("missing ingest credentials: require INTEGRATION_ID and INTEGRATION_KEY"))
	}
	switch c.IntegrationSource {
	case SourceGraphQL:
		if c.IngestPath == "" {
			errs = append(errs, errors.New("INGEST_PATH is required for the graphql integration source"))
		}
	case SourcePostgres:
		if c.DBDsn == "" {
			errs = append(errs, errors.New("DB_DSN is required for the postgres integration source"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid INTEGRATION_SOURCE %q: want graphql or postgres", c.IntegrationSource))
	}
	switch c.NotifySink {
	case SinkGraphQL:
		if c.IngestPath == "" {
			errs = append(errs, errors.New("INGEST_PATH is required for the graphql notification sink"))
		}
	case SinkNATS:
		if c.NATSURL == "" {
			errs = append(errs, errors.New("NATS_URL is required for the nats notification sink"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid NOTIFY_SINK %q: want graphql or nats", c.NotifySink))
	}
	if (c.TwitchBotUsername == "") != (c.TwitchOAuthToken == "") {
		errs = append(errs, errors.New("TWITCH_BOT_USERNAME and TWITCH_OAUTH_TOKEN must be set together"))
	}
	return errors.Join(errs...)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s %q: want a non-negative duration", key, v)
	}
	return d, nil
}
