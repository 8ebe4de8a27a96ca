package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jgaull/fstop-notifications-twitch-chat/telemetry"
)

// Filter narrows a source listing.
type Filter struct {
	Type string // integration type, e.g. "twitch_chat"
}

// Source lists the currently active integrations.
type Source interface {
	ListIntegrations(ctx context.Context, filter Filter) ([]Integration, error)
}

// LoadError reports that no snapshot could be built: the source call failed or returned
// records that cannot be indexed.
type LoadError struct {
	Err error
}

func (e *LoadError) Error() string { return "registry load failed: " + e.Err.Error() }

func (e *LoadError) Unwrap() error { return e.Err }

// Registry owns the current snapshot.
type Registry struct {
	source   Source
	filter   Filter
	attempts uint
	delay    time.Duration

	current atomic.Pointer[Snapshot]

	loadMu sync.Mutex // serializes Load so snapshots are published in fetch order
	hookMu sync.Mutex
	hooks  []func(prev, next *Snapshot)
}

// Option configures a Registry.
type Option func(*Registry)

// WithAttempts bounds how many times a failing source query is tried per Load (minimum 1).
func WithAttempts(n uint) Option {
	return func(r *Registry) {
		if n > 0 {
			r.attempts = n
		}
	}
}

// WithRetryDelay sets the base delay between source query attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.delay = d
		}
	}
}

// New returns a Registry with no snapshot; call Load before use.
func New(source Source, filter Filter, opts ...Option) *Registry {
	r := &Registry{source: source, filter: filter, attempts: 1, delay: time.Second}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Current returns the active snapshot, or nil before the first successful Load.
func (r *Registry) Current() *Snapshot { return r.current.Load() }

// OnSwap registers fn to run after every successful Load. prev is nil on the first load.
func (r *Registry) OnSwap(fn func(prev, next *Snapshot)) {
	r.hookMu.Lock()
	defer r.hookMu.Unlock()
	r.hooks = append(r.hooks, fn)
}

// Load queries the source, builds a snapshot and swaps it in. On failure the previous snapshot
// stays active and the error is a *LoadError. Malformed records fail immediately; source errors
// are retried up to the configured attempts.
func (r *Registry) Load(ctx context.Context) (_ *Snapshot, err error) {
	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	ctx, span := telemetry.StartSpan(ctx, "registry", "registry.load", attribute.String("integration.type", r.filter.Type))
	defer func() { telemetry.EndSpan(span, err) }()

	var (
		snap    *Snapshot
		lastErr error
	)
	retryErr := retry.Do(
		func() error {
			list, err := r.source.ListIntegrations(ctx, r.filter)
			if err != nil {
				lastErr = fmt.Errorf("list integrations: %w", err)
				if errors.Is(err, ErrMalformedIntegration) {
					return retry.Unrecoverable(lastErr)
				}
				return lastErr
			}
			s, err := NewSnapshot(list)
			if err != nil {
				lastErr = err
				return retry.Unrecoverable(err)
			}
			snap = s
			return nil
		},
		retry.Attempts(r.attempts),
		retry.Delay(r.delay),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(r.delay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("integration listing failed, retrying", slog.Uint64("attempt", uint64(n)+1), slog.Any("err", err))
		}),
	)
	if retryErr != nil {
		cause := lastErr
		if cause == nil {
			cause = retryErr
		}
		telemetry.RecordRegistryLoad(false, 0, 0)
		return nil, &LoadError{Err: cause}
	}

	prev := r.current.Swap(snap)
	telemetry.RecordRegistryLoad(true, snap.Len(), len(snap.channels))
	span.SetAttributes(attribute.Int("integrations", snap.Len()), attribute.Int("channels", len(snap.channels)))
	slog.Info("integration registry loaded", slog.Int("integrations", snap.Len()), slog.Any("channels", snap.channels))

	r.hookMu.Lock()
	hooks := append([]func(prev, next *Snapshot){}, r.hooks...)
	r.hookMu.Unlock()
	for _, fn := range hooks {
		fn(prev, snap)
	}
	return snap, nil
}
