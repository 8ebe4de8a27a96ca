package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestChattersClient_FetchChannelMeta(t *testing.T) {
	tests := []struct {
		name        string
		channel     string
		body        string
		statusCode  int
		wantStatus  int
		errContains string
		wantErr     bool
	}{
		{
			name:       "successful fetch",
			channel:    "foo",
			body:       `{"chatter_count":2,"chatters":{"viewers":["a","b"]}}`,
			statusCode: http.StatusOK,
		},
		{
			name:        "server error",
			channel:     "foo",
			body:        `oops`,
			statusCode:  http.StatusInternalServerError,
			wantErr:     true,
			wantStatus:  http.StatusInternalServerError,
			errContains: "500",
		},
		{
			name:        "not found",
			channel:     "gone",
			statusCode:  http.StatusNotFound,
			wantErr:     true,
			wantStatus:  http.StatusNotFound,
			errContains: "404",
		},
		{
			name:        "invalid json",
			channel:     "foo",
			body:        `{not json`,
			statusCode:  http.StatusOK,
			wantErr:     true,
			wantStatus:  http.StatusOK,
			errContains: "decode",
		},
		{
			name:        "empty channel",
			channel:     "",
			wantErr:     true,
			errContains: "channel empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet {
					t.Errorf("method = %s, want GET", r.Method)
				}
				if want := "/group/user/" + tt.channel + "/chatters"; r.URL.Path != want {
					t.Errorf("path = %s, want %s", r.URL.Path, want)
				}
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := &ChattersClient{BaseURL: server.URL, Timeout: time.Second}
			meta, err := client.FetchChannelMeta(context.Background(), tt.channel)

			if tt.wantErr {
				var fe *FetchError
				if !errors.As(err, &fe) {
					t.Fatalf("FetchChannelMeta() error = %v, want *FetchError", err)
				}
				if fe.StatusCode != tt.wantStatus {
					t.Errorf("StatusCode = %d, want %d", fe.StatusCode, tt.wantStatus)
				}
				if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("error = %v, want containing %q", err, tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("FetchChannelMeta() error = %v", err)
			}
			if !json.Valid(meta.Chatters) || string(meta.Chatters) != tt.body {
				t.Errorf("Chatters = %s, want verbatim %s", meta.Chatters, tt.body)
			}
		})
	}
}

func TestChattersClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := &ChattersClient{BaseURL: server.URL, Timeout: 50 * time.Millisecond}
	start := time.Now()
	_, err := client.FetchChannelMeta(context.Background(), "slow")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want wrapping context.DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("fetch took %v, timeout not applied", elapsed)
	}
}

func TestChattersClient_MetaJSONShape(t *testing.T) {
	meta := ChannelMeta{Chatters: json.RawMessage(`{"viewers":["x"]}`)}
	b, err := json.Marshal(meta)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(b) != `{"chatters":{"viewers":["x"]}}` {
		t.Errorf("Marshal() = %s", b)
	}
}
