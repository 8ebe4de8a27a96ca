// Package dispatch turns one inbound chat message into notification records for every
// integration subscribed to its channel and submits them concurrently.
//
// Metadata enrichment is best-effort: a failed fetch is logged and the records are sent without
// it. Submissions are independent; the outcome keeps one result per integration so a partial
// failure shows exactly which subscribers missed the message. The dispatcher never retries.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jgaull/fstop-notifications-twitch-chat/ingest"
	"github.com/jgaull/fstop-notifications-twitch-chat/registry"
	"github.com/jgaull/fstop-notifications-twitch-chat/telemetry"
	"github.com/jgaull/fstop-notifications-twitch-chat/twitchapi"
)

const (
	DefaultMetaTimeout   = 5 * time.Second
	DefaultSubmitTimeout = 10 * time.Second
)

// Event is one chat message as delivered by the listener. Channel carries no address sigil.
type Event struct {
	Channel     string
	DisplayName string
	Context     map[string]any // sender tags, forwarded verbatim in the record data
	Text        string
	Self        bool
	ReceivedAt  time.Time
}

// MetaFetcher reads auxiliary channel data.
type MetaFetcher interface {
	FetchChannelMeta(ctx context.Context, channel string) (*twitchapi.ChannelMeta, error)
}

// Notifier writes one notification record and returns its id.
type Notifier interface {
	CreateNotification(ctx context.Context, rec ingest.Record) (string, error)
}

// Options bound the outbound calls. Zero values select the defaults.
type Options struct {
	MetaTimeout   time.Duration
	SubmitTimeout time.Duration
}

// Dispatcher handles chat messages. It is safe for concurrent use.
type Dispatcher struct {
	meta          MetaFetcher
	notifier      Notifier
	metaTimeout   time.Duration
	submitTimeout time.Duration
	now           func() time.Time
}

// New returns a Dispatcher.
func New(meta MetaFetcher, notifier Notifier, opts Options) *Dispatcher {
	d := &Dispatcher{
		meta:          meta,
		notifier:      notifier,
		metaTimeout:   opts.MetaTimeout,
		submitTimeout: opts.SubmitTimeout,
		now:           time.Now,
	}
	if d.metaTimeout <= 0 {
		d.metaTimeout = DefaultMetaTimeout
	}
	if d.submitTimeout <= 0 {
		d.submitTimeout = DefaultSubmitTimeout
	}
	return d
}

// Handle dispatches ev against snap and waits until every submission has settled.
func (d *Dispatcher) Handle(ctx context.Context, ev Event, snap *registry.Snapshot) Outcome {
	originatedAt := ev.ReceivedAt
	if originatedAt.IsZero() {
		originatedAt = d.now()
	}
	if telemetry.GetCorrelation(ctx) == "" {
		ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
	}
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("channel", ev.Channel))

	out := Outcome{Channel: ev.Channel, OriginatedAt: originatedAt}
	ctx, span := telemetry.StartSpan(ctx, "dispatch", "dispatch.handle", attribute.String("chat.channel", ev.Channel))
	defer func() {
		telemetry.EndSpan(span, out.Err())
		if telemetry.DispatchDuration != nil {
			telemetry.DispatchDuration.Observe(time.Since(originatedAt).Seconds())
		}
	}()

	subscribers := registry.Match(snap, ev.Channel)
	span.SetAttributes(attribute.Int("subscribers", len(subscribers)))
	if len(subscribers) == 0 {
		out.Kind = OutcomeNoSubscribers
		telemetry.RecordOutcome(out.Kind.String())
		log.Debug("no subscribers for channel")
		return out
	}

	out.Meta = d.fetchMeta(ctx, ev.Channel, log)

	data, err := encodeData(ev.Context, out.Meta)
	if err != nil {
		// nothing can be submitted without a data payload
		for _, in := range subscribers {
			out.Deliveries = append(out.Deliveries, Delivery{
				IntegrationID: in.ID,
				UserID:        in.UserID,
				Err:           &SubmitError{IntegrationID: in.ID, UserID: in.UserID, Err: err},
			})
		}
	} else {
		out.Deliveries = d.submitAll(ctx, buildRecords(ev, subscribers, data, originatedAt))
	}

	out.Kind = OutcomeAllDelivered
	if failed := out.Failed(); len(failed) > 0 {
		out.Kind = OutcomePartialFailure
		for _, f := range failed {
			log.Warn("notification delivery failed",
				slog.String("integration_id", f.IntegrationID),
				slog.String("user_id", f.UserID),
				slog.Any("err", f.Err))
		}
		log.Error("error sending notifications to the ingest server",
			slog.Int("delivered", len(out.Deliveries)-len(failed)),
			slog.Int("failed", len(failed)))
	} else {
		log.Info("chat message sent to ingest server", slog.Int("delivered", len(out.Deliveries)))
	}
	telemetry.RecordOutcome(out.Kind.String())
	return out
}

func (d *Dispatcher) fetchMeta(ctx context.Context, channel string, log *slog.Logger) MetaResult {
	if d.meta == nil {
		return MetaAbsent(fmt.Errorf("no metadata source configured"))
	}
	ctx, cancel := context.WithTimeout(ctx, d.metaTimeout)
	defer cancel()
	ctx, span := telemetry.StartSpan(ctx, "dispatch", "dispatch.fetch_meta")
	meta, err := d.meta.FetchChannelMeta(ctx, channel)
	telemetry.EndSpan(span, err)
	if err != nil {
		telemetry.IncMetadataFetchFailures()
		log.Warn("error fetching chatters", slog.Any("err", err))
		return MetaAbsent(err)
	}
	return MetaValue(meta)
}

type recordData struct {
	Context map[string]any         `json:"context"`
	Meta    *twitchapi.ChannelMeta `json:"meta,omitempty"`
}

func encodeData(sender map[string]any, meta MetaResult) (string, error) {
	b, err := json.Marshal(recordData{Context: sender, Meta: meta.Meta()})
	if err != nil {
		return "", fmt.Errorf("encode notification data: %w", err)
	}
	return string(b), nil
}

func buildRecords(ev Event, subscribers []registry.Integration, data string, originatedAt time.Time) []ingest.Record {
	title := ev.DisplayName
	if title == "" {
		if s, ok := ev.Context["display-name"].(string); ok {
			title = s
		}
	}
	records := make([]ingest.Record, 0, len(subscribers))
	for _, in := range subscribers {
		records = append(records, ingest.Record{
			Title:         title,
			Type:          ingest.NotificationType,
			Data:          data,
			IntegrationID: in.ID,
			UserID:        in.UserID,
			OriginatedAt:  originatedAt.UnixMilli(),
			Message:       ev.Text,
		})
	}
	return records
}

// submitAll sends every record concurrently and joins them. Each submission has its own timeout
// and survives cancellation of ctx, so a shutdown does not cut off records already in flight.
func (d *Dispatcher) submitAll(ctx context.Context, records []ingest.Record) []Delivery {
	results := make([]Delivery, len(records))
	base := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for i, rec := range records {
		wg.Add(1)
		go func() {
			defer wg.Done()
			telemetry.AddInFlight(1)
			defer telemetry.AddInFlight(-1)

			sctx, cancel := context.WithTimeout(base, d.submitTimeout)
			defer cancel()
			sctx, span := telemetry.StartSpan(sctx, "dispatch", "dispatch.submit", attribute.String("integration.id", rec.IntegrationID))

			var (
				id  string
				err error
			)
			telemetry.TimeFunc(telemetry.SubmitDuration, func() {
				id, err = d.notifier.CreateNotification(sctx, rec)
			})
			telemetry.EndSpan(span, err)
			telemetry.RecordSubmission(err == nil)

			results[i] = Delivery{IntegrationID: rec.IntegrationID, UserID: rec.UserID, RecordID: id}
			if err != nil {
				results[i].RecordID = ""
				results[i].Err = &SubmitError{IntegrationID: rec.IntegrationID, UserID: rec.UserID, Err: err}
			}
		}()
	}
	wg.Wait()
	return results
}
