package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jgaull/fstop-notifications-twitch-chat/registry"
)

const integrationsQuery = `query Integrations($filter: FilterFindManyIntegrationInput) {
	integrations(filter: $filter) {
		user {
			_id
		}
		integrationSettings
		_id
	}
}`

const createNotificationMutation = `mutation CreateNotification($record: CreateOneNotificationInput!) {
	createNotification(record: $record) {
		recordId
	}
}`

// GraphQLError is the errors[] payload of a GraphQL response.
type GraphQLError struct {
	Messages []string
}

func (e *GraphQLError) Error() string {
	return "graphql: " + strings.Join(e.Messages, "; ")
}

// Client is a minimal GraphQL client for the ingest service.
type Client struct {
	Endpoint   string
	HTTPClient *http.Client
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

type gqlRequest struct {
	Query     string `json:"query"`
	Variables any    `json:"variables,omitempty"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *Client) do(ctx context.Context, query string, variables any, out any) error {
	if c.Endpoint == "" {
		return errors.New("ingest endpoint not configured")
	}
	body, err := json.Marshal(gqlRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	resp, err := c.http().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("ingest request failed: %s: %s", resp.Status, strings.TrimSpace(string(b)))
	}
	var gr gqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if len(gr.Errors) > 0 {
		ge := &GraphQLError{}
		for _, e := range gr.Errors {
			ge.Messages = append(ge.Messages, e.Message)
		}
		return ge
	}
	if out == nil {
		return nil
	}
	if len(gr.Data) == 0 || string(gr.Data) == "null" {
		return errors.New("graphql: empty data")
	}
	if err := json.Unmarshal(gr.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

// ListIntegrations implements registry.Source against the integrations query.
func (c *Client) ListIntegrations(ctx context.Context, filter registry.Filter) ([]registry.Integration, error) {
	vars := map[string]any{"filter": map[string]string{"type": filter.Type}}
	var data struct {
		Integrations []struct {
			ID   string `json:"_id"`
			User *struct {
				ID string `json:"_id"`
			} `json:"user"`
			IntegrationSettings json.RawMessage `json:"integrationSettings"`
		} `json:"integrations"`
	}
	if err := c.do(ctx, integrationsQuery, vars, &data); err != nil {
		return nil, err
	}
	out := make([]registry.Integration, 0, len(data.Integrations))
	for i, in := range data.Integrations {
		if in.User == nil {
			return nil, fmt.Errorf("%w: integration %d (id=%q) has no user", registry.ErrMalformedIntegration, i, in.ID)
		}
		var settings map[string]any
		if len(in.IntegrationSettings) > 0 && string(in.IntegrationSettings) != "null" {
			if err := json.Unmarshal(in.IntegrationSettings, &settings); err != nil {
				return nil, fmt.Errorf("%w: integration %d (id=%q) settings: %v", registry.ErrMalformedIntegration, i, in.ID, err)
			}
		}
		out = append(out, registry.Integration{ID: in.ID, UserID: in.User.ID, Settings: settings})
	}
	return out, nil
}

// CreateNotification submits one record and returns the stored record id.
func (c *Client) CreateNotification(ctx context.Context, rec Record) (string, error) {
	var data struct {
		CreateNotification *struct {
			RecordID string `json:"recordId"`
		} `json:"createNotification"`
	}
	if err := c.do(ctx, createNotificationMutation, map[string]any{"record": rec}, &data); err != nil {
		return "", err
	}
	if data.CreateNotification == nil || data.CreateNotification.RecordID == "" {
		return "", errors.New("createNotification returned no recordId")
	}
	return data.CreateNotification.RecordID, nil
}
