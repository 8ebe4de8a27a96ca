package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsInitialized(t *testing.T) {
	Init()

	if MessagesReceived == nil || NotificationsDelivered == nil || NotificationsFailed == nil {
		t.Fatal("counters not initialized")
	}
	if DispatchDuration == nil || SubmitDuration == nil || MetaDuration == nil {
		t.Fatal("histograms not initialized")
	}
	if RegistryIntegrations == nil || RegistryChannels == nil || NotificationsInFlight == nil {
		t.Fatal("gauges not initialized")
	}
	// second call must not re-register (promauto would panic)
	Init()
}

func TestRecordSubmission(t *testing.T) {
	Init()

	delivered := testutil.ToFloat64(NotificationsDelivered)
	failed := testutil.ToFloat64(NotificationsFailed)

	RecordSubmission(true)
	RecordSubmission(true)
	RecordSubmission(false)

	if got := testutil.ToFloat64(NotificationsDelivered) - delivered; got != 2 {
		t.Errorf("delivered delta = %v, want 2", got)
	}
	if got := testutil.ToFloat64(NotificationsFailed) - failed; got != 1 {
		t.Errorf("failed delta = %v, want 1", got)
	}
}

func TestRecordRegistryLoad(t *testing.T) {
	Init()

	failures := testutil.ToFloat64(RegistryLoads.WithLabelValues("failure"))
	RecordRegistryLoad(true, 5, 3)
	RecordRegistryLoad(false, 0, 0)

	if got := testutil.ToFloat64(RegistryIntegrations); got != 5 {
		t.Errorf("integrations gauge = %v, want 5", got)
	}
	if got := testutil.ToFloat64(RegistryChannels); got != 3 {
		t.Errorf("channels gauge = %v, want 3", got)
	}
	if got := testutil.ToFloat64(RegistryLoads.WithLabelValues("failure")) - failures; got != 1 {
		t.Errorf("failure delta = %v, want 1", got)
	}
}

func TestInFlightGauge(t *testing.T) {
	Init()

	before := testutil.ToFloat64(NotificationsInFlight)
	AddInFlight(3)
	AddInFlight(-3)
	if got := testutil.ToFloat64(NotificationsInFlight); got != before {
		t.Errorf("in-flight gauge = %v, want %v", got, before)
	}
}

func TestTimeFuncRecordsObservation(t *testing.T) {
	testHistogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_duration_seconds",
		Help:    "Test duration",
		Buckets: prometheus.DefBuckets,
	})

	executed := false
	duration := TimeFunc(testHistogram, func() {
		time.Sleep(10 * time.Millisecond)
		executed = true
	})

	if !executed {
		t.Error("TimeFunc did not execute provided function")
	}
	if duration < 10*time.Millisecond {
		t.Errorf("TimeFunc duration = %v, want >= 10ms", duration)
	}

	metric := &dto.Metric{}
	if err := testHistogram.Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Histogram == nil || metric.Histogram.GetSampleCount() == 0 {
		t.Error("TimeFunc did not record observation in histogram")
	}
}

func TestCorrelation(t *testing.T) {
	ctx := context.Background()
	if got := GetCorrelation(ctx); got != "" {
		t.Errorf("GetCorrelation(empty) = %q", got)
	}
	ctx = WithCorrelation(ctx, "abc")
	if got := GetCorrelation(ctx); got != "abc" {
		t.Errorf("GetCorrelation = %q, want abc", got)
	}
	if LoggerWithCorr(ctx) == nil {
		t.Error("LoggerWithCorr returned nil")
	}
}

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(TracingConfig{ServiceName: "test"})
	if err != nil {
		t.Fatalf("InitTracing() error = %v", err)
	}
	shutdown()

	_, span := StartSpan(WithCorrelation(context.Background(), "x"), "test", "op")
	EndSpan(span, nil)
}
