// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	MessagesReceived       prometheus.Counter
	NotificationsDelivered prometheus.Counter
	NotificationsFailed    prometheus.Counter
	MetadataFetchFailures  prometheus.Counter
	DispatchOutcomes       *prometheus.CounterVec // label: outcome
	RegistryLoads          *prometheus.CounterVec // label: result

	// Histograms (seconds)
	DispatchDuration prometheus.Observer
	SubmitDuration   prometheus.Observer
	MetaDuration     prometheus.Observer

	// Gauges
	RegistryIntegrations  prometheus.Gauge
	RegistryChannels      prometheus.Gauge
	NotificationsInFlight prometheus.Gauge
	ChatConnected         prometheus.Gauge // 1=connected,0=disconnected
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		MessagesReceived = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_chat_messages_received_total", Help: "Number of chat messages received from the chat network"})
		NotificationsDelivered = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_notifications_delivered_total", Help: "Number of notification records accepted by the ingest service"})
		NotificationsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_notifications_failed_total", Help: "Number of notification records the ingest service rejected or never answered"})
		MetadataFetchFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_metadata_fetch_failures_total", Help: "Number of failed channel metadata fetches"})
		DispatchOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{Name: "relay_dispatch_outcomes_total", Help: "Dispatch outcomes by kind"}, []string{"outcome"})
		RegistryLoads = promauto.NewCounterVec(prometheus.CounterOpts{Name: "relay_registry_loads_total", Help: "Integration registry loads by result"}, []string{"result"})
		DispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "relay_dispatch_duration_seconds", Help: "Time from message receipt until all submissions settled", Buckets: prometheus.DefBuckets})
		SubmitDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "relay_submit_duration_seconds", Help: "Single notification submission duration seconds", Buckets: prometheus.DefBuckets})
		MetaDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "relay_metadata_fetch_duration_seconds", Help: "Channel metadata fetch duration seconds", Buckets: prometheus.DefBuckets})
		RegistryIntegrations = promauto.NewGauge(prometheus.GaugeOpts{Name: "relay_registry_integrations", Help: "Integrations in the active registry snapshot"})
		RegistryChannels = promauto.NewGauge(prometheus.GaugeOpts{Name: "relay_registry_channels", Help: "Distinct channels in the active registry snapshot"})
		NotificationsInFlight = promauto.NewGauge(prometheus.GaugeOpts{Name: "relay_notifications_in_flight", Help: "Notification submissions currently awaiting the ingest service"})
		ChatConnected = promauto.NewGauge(prometheus.GaugeOpts{Name: "relay_chat_connected", Help: "Chat connection open=1 closed=0"})
	})
}

// IncMessagesReceived counts one inbound chat message.
func IncMessagesReceived() {
	if MessagesReceived != nil {
		MessagesReceived.Inc()
	}
}

// RecordSubmission counts one settled submission.
func RecordSubmission(ok bool) {
	if ok {
		if NotificationsDelivered != nil {
			NotificationsDelivered.Inc()
		}
		return
	}
	if NotificationsFailed != nil {
		NotificationsFailed.Inc()
	}
}

// IncMetadataFetchFailures counts one failed metadata fetch.
func IncMetadataFetchFailures() {
	if MetadataFetchFailures != nil {
		MetadataFetchFailures.Inc()
	}
}

// RecordOutcome counts a dispatch outcome by name.
func RecordOutcome(outcome string) {
	if DispatchOutcomes != nil {
		DispatchOutcomes.WithLabelValues(outcome).Inc()
	}
}

// RecordRegistryLoad counts a registry load attempt and, on success, updates the size gauges.
func RecordRegistryLoad(ok bool, integrations, channels int) {
	if RegistryLoads == nil {
		return
	}
	if !ok {
		RegistryLoads.WithLabelValues("failure").Inc()
		return
	}
	RegistryLoads.WithLabelValues("success").Inc()
	RegistryIntegrations.Set(float64(integrations))
	RegistryChannels.Set(float64(channels))
}

// AddInFlight adjusts the in-flight submission gauge by delta.
func AddInFlight(delta int) {
	if NotificationsInFlight != nil {
		NotificationsInFlight.Add(float64(delta))
	}
}

// SetChatConnected sets gauge to 1 if connected else 0.
func SetChatConnected(connected bool) {
	if ChatConnected == nil {
		return
	}
	if connected {
		ChatConnected.Set(1)
	} else {
		ChatConnected.Set(0)
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
