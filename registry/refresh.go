package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DefaultInvalidateChannel is the redis pub/sub channel carrying refresh requests.
const DefaultInvalidateChannel = "integrations:invalidate"

// StartRefresher reloads the registry every interval until ctx is done. Failed reloads are
// logged and leave the previous snapshot in place. A non-positive interval disables it.
func (r *Registry) StartRefresher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		slog.Info("registry refresher started", slog.Duration("interval", interval))
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.refresh(ctx, "interval")
			}
		}
	}()
}

// ListenInvalidations reloads the registry whenever a message arrives on the redis channel.
// It blocks until ctx is done or the subscription closes.
func (r *Registry) ListenInvalidations(ctx context.Context, rdb *goredis.Client, channel string) {
	if channel == "" {
		channel = DefaultInvalidateChannel
	}
	pubsub := rdb.Subscribe(ctx, channel)
	defer func() { _ = pubsub.Close() }()

	slog.Info("listening for registry invalidations", slog.String("channel", channel))
	ch := pubsub.Channel()
	for {
		select {
		case msg := <-ch:
			if msg == nil {
				return
			}
			r.handleInvalidation(ctx, msg.Payload)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Registry) handleInvalidation(ctx context.Context, payload string) {
	reason := payload
	if reason == "" {
		reason = "unspecified"
	}
	r.refresh(ctx, "invalidation:"+reason)
}

func (r *Registry) refresh(ctx context.Context, trigger string) {
	if _, err := r.Load(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Warn("registry refresh failed; keeping previous snapshot", slog.String("trigger", trigger), slog.Any("err", err))
		return
	}
	slog.Debug("registry refreshed", slog.String("trigger", trigger))
}

// PublishInvalidation asks every replica listening on channel to reload its registry.
func PublishInvalidation(ctx context.Context, rdb *goredis.Client, channel, reason string) error {
	if channel == "" {
		channel = DefaultInvalidateChannel
	}
	if err := rdb.Publish(ctx, channel, reason).Err(); err != nil {
		return fmt.Errorf("failed to publish registry invalidation: %w", err)
	}
	return nil
}
