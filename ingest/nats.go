package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	natspkg "github.com/nats-io/nats.go"
)

// DefaultSubject is where NATSPublisher sends records when no subject is configured.
const DefaultSubject = "notifications.twitch_chat"

type publisher interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
}

// NATSPublisher writes notification records to a NATS subject instead of the GraphQL mutation.
// The record id is generated locally and sent alongside the record.
type NATSPublisher struct {
	conn    publisher
	nc      *natspkg.Conn
	subject string
}

type natsEnvelope struct {
	RecordID string `json:"recordId"`
	Record
}

// DialNATS connects to url and returns a publisher for subject.
func DialNATS(url, subject string) (*NATSPublisher, error) {
	nc, err := natspkg.Connect(url, natspkg.Name("twitch-chat-relay"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	p := newNATSPublisher(nc, subject)
	p.nc = nc
	return p, nil
}

func newNATSPublisher(conn publisher, subject string) *NATSPublisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSPublisher{conn: conn, subject: subject}
}

// CreateNotification publishes rec and waits for the server to acknowledge the flush.
func (p *NATSPublisher) CreateNotification(ctx context.Context, rec Record) (string, error) {
	if p.conn == nil {
		return "", errors.New("nats publisher not connected")
	}
	id := uuid.NewString()
	b, err := json.Marshal(natsEnvelope{RecordID: id, Record: rec})
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}
	if err := p.conn.Publish(p.subject, b); err != nil {
		return "", fmt.Errorf("publish %s: %w", p.subject, err)
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return "", fmt.Errorf("flush %s: %w", p.subject, err)
	}
	return id, nil
}

// Close drains the underlying connection if this publisher owns one.
func (p *NATSPublisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
	}
}
