// Package twitchapi reads auxiliary channel data from Twitch's public endpoints.
package twitchapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jgaull/fstop-notifications-twitch-chat/telemetry"
)

// DefaultChattersBaseURL serves GET /group/user/{channel}/chatters.
const DefaultChattersBaseURL = "http://tmi.twitch.tv"

// ChannelMeta is the best-effort enrichment attached to each notification.
// Chatters is forwarded verbatim; its shape belongs to Twitch.
type ChannelMeta struct {
	Chatters json.RawMessage `json:"chatters"`
}

// FetchError is returned for any failed metadata read: transport error, timeout,
// non-2xx status or an undecodable body.
type FetchError struct {
	Channel    string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch chatters for %s: status %d: %v", e.Channel, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch chatters for %s: %v", e.Channel, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ChattersClient fetches the viewer list of a channel.
type ChattersClient struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration // per call; 0 means only the caller's context bounds it
}

func (c *ChattersClient) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *ChattersClient) baseURL() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return DefaultChattersBaseURL
}

// FetchChannelMeta issues one GET for channel's chatters.
func (c *ChattersClient) FetchChannelMeta(ctx context.Context, channel string) (*ChannelMeta, error) {
	if channel == "" {
		return nil, &FetchError{Channel: channel, Err: fmt.Errorf("channel empty")}
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	var (
		meta *ChannelMeta
		err  error
	)
	telemetry.TimeFunc(telemetry.MetaDuration, func() {
		meta, err = c.fetch(ctx, channel)
	})
	return meta, err
}

func (c *ChattersClient) fetch(ctx context.Context, channel string) (*ChannelMeta, error) {
	endpoint := c.baseURL() + "/group/user/" + url.PathEscape(channel) + "/chatters"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &FetchError{Channel: channel, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http().Do(req)
	if err != nil {
		return nil, &FetchError{Channel: channel, Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &FetchError{Channel: channel, StatusCode: resp.StatusCode, Err: fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(b)))}
	}
	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, &FetchError{Channel: channel, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode body: %w", err)}
	}
	return &ChannelMeta{Chatters: raw}, nil
}
