package config

import (
	"strings"
	"testing"
	"time"
)

var allKeys = []string{
	"INGEST_PATH", "INTEGRATION_ID", "INTEGRATION_KEY", "INTEGRATION_TYPE", "INGEST_TOKEN_URL",
	"INTEGRATION_SOURCE", "DB_DSN", "NOTIFY_SINK", "NATS_URL", "NATS_SUBJECT",
	"TWITCH_BOT_USERNAME", "TWITCH_OAUTH_TOKEN", "CHATTERS_BASE_URL",
	"META_TIMEOUT", "SUBMIT_TIMEOUT", "REGISTRY_LOAD_ATTEMPTS", "REGISTRY_REFRESH_INTERVAL",
	"REDIS_URL", "REGISTRY_INVALIDATE_CHANNEL", "HTTP_ADDR", "ADMIN_TOKEN", "OTEL_EXPORTER_OTLP_ENDPOINT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.IntegrationType != "twitch_chat" {
		t.Errorf("IntegrationType = %q", cfg.IntegrationType)
	}
	if cfg.IntegrationSource != SourceGraphQL || cfg.NotifySink != SinkGraphQL {
		t.Errorf("source/sink = %q/%q", cfg.IntegrationSource, cfg.NotifySink)
	}
	if cfg.MetaTimeout != 5*time.Second || cfg.SubmitTimeout != 10*time.Second {
		t.Errorf("timeouts = %v/%v", cfg.MetaTimeout, cfg.SubmitTimeout)
	}
	if cfg.RegistryLoadAttempts != 3 || cfg.RegistryRefreshInterval != 0 {
		t.Errorf("registry = %d/%v", cfg.RegistryLoadAttempts, cfg.RegistryRefreshInterval)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("INGEST_PATH", "https://ingest.example/graphql")
	t.Setenv("INTEGRATION_SOURCE", "Postgres")
	t.Setenv("NOTIFY_SINK", "NATS")
	t.Setenv("META_TIMEOUT", "750ms")
	t.Setenv("SUBMIT_TIMEOUT", "3s")
	t.Setenv("REGISTRY_LOAD_ATTEMPTS", "5")
	t.Setenv("REGISTRY_REFRESH_INTERVAL", "2m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.IngestPath != "https://ingest.example/graphql" {
		t.Errorf("IngestPath = %q", cfg.IngestPath)
	}
	if cfg.IntegrationSource != SourcePostgres || cfg.NotifySink != SinkNATS {
		t.Errorf("source/sink = %q/%q", cfg.IntegrationSource, cfg.NotifySink)
	}
	if cfg.MetaTimeout != 750*time.Millisecond || cfg.SubmitTimeout != 3*time.Second {
		t.Errorf("timeouts = %v/%v", cfg.MetaTimeout, cfg.SubmitTimeout)
	}
	if cfg.RegistryLoadAttempts != 5 || cfg.RegistryRefreshInterval != 2*time.Minute {
		t.Errorf("registry = %d/%v", cfg.RegistryLoadAttempts, cfg.RegistryRefreshInterval)
	}
}

func TestLoadInvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"META_TIMEOUT", "soon"},
		{"SUBMIT_TIMEOUT", "-1s"},
		{"REGISTRY_REFRESH_INTERVAL", "5"},
		{"REGISTRY_LOAD_ATTEMPTS", "0"},
		{"REGISTRY_LOAD_ATTEMPTS", "many"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil || !strings.Contains(err.Error(), tt.key) {
				t.Errorf("Load() error = %v, want error naming %s", err, tt.key)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			IngestPath:        "http://ingest/graphql",
			IntegrationID:     "id",
			IntegrationKey:    "key",
			IntegrationSource: SourceGraphQL,
			NotifySink:        SinkGraphQL,
		}
	}
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing credentials", func(c *Config) { c.IntegrationKey = "" }, "INTEGRATION_KEY"},
		{"postgres without dsn", func(c *Config) { c.IntegrationSource = SourcePostgres }, "DB_DSN"},
		{"postgres with dsn", func(c *Config) { c.IntegrationSource = SourcePostgres; c.DBDsn = "postgres://x" }, ""},
		{"unknown source", func(c *Config) { c.IntegrationSource = "mongo" }, "INTEGRATION_SOURCE"},
		{"unknown sink", func(c *Config) { c.NotifySink = "kafka" }, "NOTIFY_SINK"},
		{"nats without url", func(c *Config) { c.NotifySink = SinkNATS }, "NATS_URL"},
		{"half bot credentials", func(c *Config) { c.TwitchBotUsername = "bot" }, "TWITCH_OAUTH_TOKEN"},
		{"full bot credentials", func(c *Config) { c.TwitchBotUsername = "bot"; c.TwitchOAuthToken = "oauth:x" }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
