package ingest

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2/clientcredentials"
)

// Credentials authenticate the relay to the ingest service. With TokenURL set the pair is used as
// OAuth2 client credentials; otherwise it is sent as HTTP Basic auth.
type Credentials struct {
	IntegrationID  string
	IntegrationKey string
	TokenURL       string
	Scopes         []string
}

// NewHTTPClient returns an http.Client that authenticates every request with creds.
func NewHTTPClient(ctx context.Context, creds Credentials, timeout time.Duration) *http.Client {
	if creds.TokenURL != "" {
		cc := &clientcredentials.Config{
			ClientID:     creds.IntegrationID,
			ClientSecret: creds.IntegrationKey,
			TokenURL:     creds.TokenURL,
			Scopes:       creds.Scopes,
		}
		hc := cc.Client(ctx)
		hc.Timeout = timeout
		return hc
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &basicAuthTransport{
			base:     http.DefaultTransport,
			username: creds.IntegrationID,
			password: creds.IntegrationKey,
		},
	}
}

type basicAuthTransport struct {
	base               http.RoundTripper
	username, password string
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.username == "" && t.password == "" {
		return t.base.RoundTrip(req)
	}
	r := req.Clone(req.Context())
	r.SetBasicAuth(t.username, t.password)
	return t.base.RoundTrip(r)
}
