package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/jgaull/fstop-notifications-twitch-chat/dispatch"
	"github.com/jgaull/fstop-notifications-twitch-chat/telemetry"
)

// Handler receives every chat message from a joined channel. Calls run concurrently.
type Handler func(ctx context.Context, ev dispatch.Event)

// ircClient is the subset of *twitch.Client the listener drives.
type ircClient interface {
	OnConnect(func())
	OnPrivateMessage(func(twitch.PrivateMessage))
	OnReconnectMessage(func(twitch.ReconnectMessage))
	OnNoticeMessage(func(twitch.NoticeMessage))
	Join(channels ...string)
	Connect() error
	Disconnect() error
}

// Credentials authenticate the bot account. Empty credentials connect anonymously (read-only).
type Credentials struct {
	Username string
	OAuth    string
}

// NewClient builds an IRC client for creds.
func NewClient(creds Credentials) *twitch.Client {
	if creds.Username == "" || creds.OAuth == "" {
		slog.Info("twitch bot credentials not set; connecting anonymously")
		return twitch.NewAnonymousClient()
	}
	token := creds.OAuth
	if !strings.HasPrefix(token, "oauth:") {
		token = "oauth:" + token
	}
	return twitch.NewClient(creds.Username, token)
}

// Listener joins a fixed set of channels and hands each message to a Handler.
type Listener struct {
	client   ircClient
	channels []string
	handler  Handler
	username string
	now      func() time.Time

	mu        sync.RWMutex
	joined    map[string]struct{}
	connected bool
}

// NewListener returns a listener for channels. username identifies the bot account so its own
// messages can be flagged; it may be empty.
func NewListener(client ircClient, channels []string, username string, handler Handler) *Listener {
	joined := make(map[string]struct{}, len(channels))
	for _, c := range channels {
		joined[strings.ToLower(c)] = struct{}{}
	}
	return &Listener{
		client:   client,
		channels: channels,
		handler:  handler,
		username: username,
		now:      time.Now,
		joined:   joined,
	}
}

// Connected reports whether the IRC session is up.
func (l *Listener) Connected() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.connected
}

// Joined reports whether channel is part of the joined set.
func (l *Listener) Joined(channel string) bool {
	_, ok := l.joined[strings.ToLower(channel)]
	return ok
}

func (l *Listener) setConnected(v bool) {
	l.mu.Lock()
	l.connected = v
	l.mu.Unlock()
	telemetry.SetChatConnected(v)
}

// Run connects and blocks until ctx is canceled or the connection fails. Handlers still running
// when the connection closes are waited for before Run returns.
func (l *Listener) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	l.client.OnConnect(func() {
		l.setConnected(true)
		slog.Info("connected to twitch chat", slog.Int("channels", len(l.channels)))
	})
	l.client.OnReconnectMessage(func(twitch.ReconnectMessage) {
		l.setConnected(false)
		slog.Warn("twitch chat requested reconnect")
	})
	l.client.OnNoticeMessage(func(msg twitch.NoticeMessage) {
		slog.Info("twitch chat notice", slog.String("channel", msg.Channel), slog.String("msg_id", msg.MsgID), slog.String("message", msg.Message))
	})
	l.client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		ev := l.event(msg)
		telemetry.IncMessagesReceived()
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.handler(ctx, ev)
		}()
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = l.client.Disconnect()
		case <-done:
		}
	}()

	if len(l.channels) > 0 {
		l.client.Join(l.channels...)
	}
	slog.Info("joining twitch channels", slog.Any("channels", l.channels))
	err := l.client.Connect()
	l.setConnected(false)
	if err == nil || errors.Is(err, twitch.ErrClientDisconnected) || ctx.Err() != nil {
		slog.Info("twitch chat disconnected")
		return nil
	}
	return fmt.Errorf("twitch chat connect: %w", err)
}

// event converts an IRC message into a dispatch event stamped with the receive time.
func (l *Listener) event(msg twitch.PrivateMessage) dispatch.Event {
	sender := make(map[string]any, len(msg.Tags)+2)
	for k, v := range msg.Tags {
		sender[k] = v
	}
	sender["username"] = msg.User.Name
	if msg.Action {
		sender["message-type"] = "action"
	} else {
		sender["message-type"] = "chat"
	}
	display := msg.User.DisplayName
	if display == "" {
		display = msg.User.Name
	}
	return dispatch.Event{
		Channel:     strings.TrimPrefix(msg.Channel, "#"),
		DisplayName: display,
		Context:     sender,
		Text:        msg.Message,
		Self:        l.username != "" && strings.EqualFold(msg.User.Name, l.username),
		ReceivedAt:  l.now(),
	}
}
