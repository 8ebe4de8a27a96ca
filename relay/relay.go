// Package relay wires the integration registry, the chat listener and the dispatcher into the
// running service.
package relay

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jgaull/fstop-notifications-twitch-chat/chat"
	"github.com/jgaull/fstop-notifications-twitch-chat/dispatch"
	"github.com/jgaull/fstop-notifications-twitch-chat/registry"
)

// ChatRunner is a connected chat session.
type ChatRunner interface {
	Run(ctx context.Context) error
	Connected() bool
	Joined(channel string) bool
}

// ListenerFactory builds the chat session for a channel set.
type ListenerFactory func(channels []string, handle chat.Handler) ChatRunner

// Handler processes one chat event against a snapshot.
type Handler interface {
	Handle(ctx context.Context, ev dispatch.Event, snap *registry.Snapshot) dispatch.Outcome
}

// Service is the relay process: load the registry, join its channels, dispatch every message.
type Service struct {
	reg         *registry.Registry
	handler     Handler
	newListener ListenerFactory

	mu       sync.RWMutex
	listener ChatRunner
	started  time.Time
}

// New returns a Service.
func New(reg *registry.Registry, handler Handler, newListener ListenerFactory) *Service {
	return &Service{reg: reg, handler: handler, newListener: newListener}
}

// Run loads the registry and then listens until ctx is done. A registry load failure is
// returned as a *registry.LoadError before any chat connection is attempted.
func (s *Service) Run(ctx context.Context) error {
	snap, err := s.reg.Load(ctx)
	if err != nil {
		return err
	}
	channels := snap.Channels()
	if len(channels) == 0 {
		slog.Warn("no integrations subscribe to any channel; chat will stay idle")
	}
	slog.Info("registry loaded", slog.Int("integrations", snap.Len()), slog.Int("channels", len(channels)))

	l := s.newListener(channels, s.handle)
	s.mu.Lock()
	s.listener = l
	s.started = time.Now()
	s.mu.Unlock()

	s.reg.OnSwap(func(_, next *registry.Snapshot) {
		for _, c := range next.Channels() {
			if !l.Joined(c) {
				slog.Warn("integration channel not joined; restart to pick it up", slog.String("channel", c))
			}
		}
	})

	return l.Run(ctx)
}

func (s *Service) handle(ctx context.Context, ev dispatch.Event) {
	s.handler.Handle(ctx, ev, s.reg.Current())
}

// RegistryLoaded reports whether a snapshot is active.
func (s *Service) RegistryLoaded() bool { return s.reg.Current() != nil }

// ChatConnected reports whether the chat session is up.
func (s *Service) ChatConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listener != nil && s.listener.Connected()
}

// Status summarizes the service for the status endpoint.
type Status struct {
	Integrations  int       `json:"integrations"`
	Channels      []string  `json:"channels"`
	LoadedAt      time.Time `json:"loaded_at,omitempty"`
	ChatConnected bool      `json:"chat_connected"`
	StartedAt     time.Time `json:"started_at,omitempty"`
}

// Status returns the current status.
func (s *Service) Status() Status {
	st := Status{Channels: []string{}, ChatConnected: s.ChatConnected()}
	if snap := s.reg.Current(); snap != nil {
		st.Integrations = snap.Len()
		if ch := snap.Channels(); len(ch) > 0 {
			st.Channels = ch
		}
		st.LoadedAt = snap.LoadedAt()
	}
	s.mu.RLock()
	st.StartedAt = s.started
	s.mu.RUnlock()
	return st
}
