// Command fstop-notifications-twitch-chat relays Twitch chat messages to the notification ingest
// service. It:
//   - Loads configuration and initializes structured logging, metrics and tracing.
//   - Loads the twitch_chat integrations (ingest GraphQL API or Postgres) into a registry.
//   - Joins every subscribed channel over Twitch IRC and, for each message, submits one
//     notification per subscribed integration (GraphQL mutation or NATS).
//   - Refreshes the registry on an interval, on redis invalidations and on POST /admin/refresh.
//   - Exposes /healthz, /readyz, /status and /metrics.
//
// A registry that cannot be loaded at startup is fatal. Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"

	"github.com/jgaull/fstop-notifications-twitch-chat/chat"
	"github.com/jgaull/fstop-notifications-twitch-chat/config"
	"github.com/jgaull/fstop-notifications-twitch-chat/db"
	"github.com/jgaull/fstop-notifications-twitch-chat/dispatch"
	"github.com/jgaull/fstop-notifications-twitch-chat/ingest"
	"github.com/jgaull/fstop-notifications-twitch-chat/registry"
	"github.com/jgaull/fstop-notifications-twitch-chat/relay"
	"github.com/jgaull/fstop-notifications-twitch-chat/server"
	"github.com/jgaull/fstop-notifications-twitch-chat/telemetry"
	"github.com/jgaull/fstop-notifications-twitch-chat/twitchapi"
)

const (
	serviceName    = "fstop-notifications-twitch-chat"
	serviceVersion = "1.0.0"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		return 1
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("err", err))
		return 1
	}

	telemetry.Init()

	// Tracing is optional; requires OTEL_EXPORTER_OTLP_ENDPOINT
	ratio, _ := strconv.ParseFloat(os.Getenv("OTEL_TRACES_SAMPLER_ARG"), 64)
	shutdownTracing, err := telemetry.InitTracing(telemetry.TracingConfig{
		Endpoint:       cfg.OTLPEndpoint,
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
		SampleRatio:    ratio,
	})
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		return 1
	}
	defer shutdownTracing()

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ingestHTTP := ingest.NewHTTPClient(ctx, ingest.Credentials{
		IntegrationID:  cfg.IntegrationID,
		IntegrationKey: cfg.IntegrationKey,
		TokenURL:       cfg.IngestTokenURL,
	}, cfg.SubmitTimeout)
	ingestClient := &ingest.Client{Endpoint: cfg.IngestPath, HTTPClient: ingestHTTP}

	var source registry.Source = ingestClient
	if cfg.IntegrationSource == config.SourcePostgres {
		database, err := db.Connect(ctx, cfg.DBDsn)
		if err != nil {
			slog.Error("failed to open db", slog.Any("err", err))
			return 1
		}
		defer func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
		if err := db.Migrate(ctx, database); err != nil {
			slog.Error("failed to migrate db", slog.Any("err", err))
			return 1
		}
		source = &db.IntegrationStore{DB: database}
	}
	slog.Info("integration source selected", slog.String("source", cfg.IntegrationSource), slog.String("type", cfg.IntegrationType))

	var notifier dispatch.Notifier = ingestClient
	if cfg.NotifySink == config.SinkNATS {
		pub, err := ingest.DialNATS(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			slog.Error("failed to connect to nats", slog.Any("err", err))
			return 1
		}
		defer pub.Close()
		notifier = pub
	}
	slog.Info("notification sink selected", slog.String("sink", cfg.NotifySink))

	reg := registry.New(source, registry.Filter{Type: cfg.IntegrationType},
		registry.WithAttempts(cfg.RegistryLoadAttempts))

	dispatcher := dispatch.New(
		&twitchapi.ChattersClient{BaseURL: cfg.ChattersBaseURL},
		notifier,
		dispatch.Options{MetaTimeout: cfg.MetaTimeout, SubmitTimeout: cfg.SubmitTimeout},
	)

	creds := chat.Credentials{Username: cfg.TwitchBotUsername, OAuth: cfg.TwitchOAuthToken}
	svc := relay.New(reg, dispatcher, func(channels []string, handle chat.Handler) relay.ChatRunner {
		return chat.NewListener(chat.NewClient(creds), channels, cfg.TwitchBotUsername, handle)
	})

	refresh := func(rctx context.Context, _ string) error {
		_, err := reg.Load(rctx)
		return err
	}
	if cfg.RedisURL != "" {
		opts, err := goredis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", slog.Any("err", err))
			return 1
		}
		rdb := goredis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
		go reg.ListenInvalidations(ctx, rdb, cfg.RegistryInvalidateChannel)
		// every replica, this one included, reloads when the invalidation arrives
		refresh = func(rctx context.Context, reason string) error {
			return registry.PublishInvalidation(rctx, rdb, cfg.RegistryInvalidateChannel, reason)
		}
	}
	reg.StartRefresher(ctx, cfg.RegistryRefreshInterval)

	startPprof()

	go func() {
		handler := server.NewMux(svc, server.Options{AdminToken: cfg.AdminToken, Refresh: refresh})
		if err := server.Start(ctx, handler, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	if err := svc.Run(ctx); err != nil {
		var le *registry.LoadError
		if errors.As(err, &le) {
			slog.Error("failed to load integrations; exiting", slog.Any("err", err))
		} else {
			slog.Error("chat relay stopped", slog.Any("err", err))
		}
		return 1
	}
	slog.Info("shutting down")
	return 0
}

// setupLogging configures the default logger (level + format). Defaults: level=info, format=text.
func setupLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		// unknown level -> keep info but note once using temporary logger
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))
}

// startPprof enables profiling endpoints in debug mode (ENABLE_PPROF=1).
func startPprof() {
	if os.Getenv("ENABLE_PPROF") != "1" {
		return
	}
	pprofAddr := os.Getenv("PPROF_ADDR")
	if pprofAddr == "" {
		pprofAddr = "localhost:6060"
	}
	go func() {
		slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
		// Use an http.Server with timeouts to satisfy G114 and avoid DoS risks
		srv := &http.Server{
			Addr:              pprofAddr,
			Handler:           nil, // default mux exposes /debug/pprof
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		if err := srv.ListenAndServe(); err != nil {
			slog.Error("pprof server error", slog.Any("err", err))
		}
	}()
}
