package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// GraphQLPath is where MockIngestServer serves the ingest GraphQL API.
const GraphQLPath = "/graphql"

// MockIngestServer is a test server standing in for the ingest GraphQL API and the Twitch
// chatters endpoint. Unregistered paths return 404.
type MockIngestServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc

	mu           sync.Mutex
	integrations []map[string]any
	failFor      map[string]bool // integration ids whose createNotification fails
	records      []map[string]any
}

type graphqlRequest struct {
	Query     string                     `json:"query"`
	Variables map[string]json.RawMessage `json:"variables"`
}

// NewMockIngestServer creates a new mock ingest server.
func NewMockIngestServer(t *testing.T) *MockIngestServer {
	t.Helper()
	m := &MockIngestServer{
		Handlers: make(map[string]http.HandlerFunc),
		failFor:  make(map[string]bool),
	}
	m.Handlers[GraphQLPath] = m.serveGraphQL
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		if handler, ok := m.Handlers[key]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockIntegration adds an integration returned by the integrations query.
func (m *MockIngestServer) MockIntegration(id, userID, channel string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.integrations = append(m.integrations, map[string]any{
		"_id":                 id,
		"user":                map[string]string{"_id": userID},
		"integrationSettings": map[string]string{"channelName": channel},
	})
}

// FailNotificationsFor makes createNotification return a GraphQL error for integrationID.
func (m *MockIngestServer) FailNotificationsFor(integrationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failFor[integrationID] = true
}

// MockChattersResponse adds a handler for the chatters endpoint of channel.
func (m *MockIngestServer) MockChattersResponse(channel string, viewers ...string) {
	m.Handlers["/group/user/"+channel+"/chatters"] = func(w http.ResponseWriter, r *http.Request) {
		if viewers == nil {
			viewers = []string{}
		}
		response := map[string]any{
			"chatter_count": len(viewers),
			"chatters":      map[string]any{"viewers": viewers},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// Records returns the notification records received so far.
func (m *MockIngestServer) Records() []map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]map[string]any(nil), m.records...)
}

func (m *MockIngestServer) serveGraphQL(w http.ResponseWriter, r *http.Request) {
	var req graphqlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")

	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case strings.Contains(req.Query, "createNotification"):
		var rec map[string]any
		if err := json.Unmarshal(req.Variables["record"], &rec); err != nil {
			http.Error(w, "bad record", http.StatusBadRequest)
			return
		}
		id, _ := rec["integration"].(string)
		if m.failFor[id] {
			_ = json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck // test mock response
				"data":   nil,
				"errors": []map[string]string{{"message": "integration " + id + " rejected"}},
			})
			return
		}
		m.records = append(m.records, rec)
		_ = json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck // test mock response
			"data": map[string]any{"createNotification": map[string]string{"recordId": fmt.Sprintf("rec-%d", len(m.records))}},
		})
	case strings.Contains(req.Query, "integrations"):
		list := m.integrations
		if list == nil {
			list = []map[string]any{}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"integrations": list}}) //nolint:errcheck // test mock response
	default:
		http.Error(w, "unknown operation", http.StatusBadRequest)
	}
}
