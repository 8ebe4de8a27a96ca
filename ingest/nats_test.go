package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

type fakeConn struct {
	subject  string
	data     []byte
	pubErr   error
	flushErr error
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	f.subject = subject
	f.data = data
	return f.pubErr
}

func (f *fakeConn) FlushWithContext(context.Context) error { return f.flushErr }

func TestNATSPublisher_CreateNotification(t *testing.T) {
	conn := &fakeConn{}
	p := newNATSPublisher(conn, "")

	id, err := p.CreateNotification(context.Background(), Record{Title: "t", Type: NotificationType, IntegrationID: "i1", UserID: "u1", OriginatedAt: 42, Message: "hi"})
	if err != nil {
		t.Fatalf("CreateNotification() error = %v", err)
	}
	if id == "" {
		t.Fatal("empty record id")
	}
	if conn.subject != DefaultSubject {
		t.Errorf("subject = %q, want %q", conn.subject, DefaultSubject)
	}
	var env map[string]any
	if err := json.Unmarshal(conn.data, &env); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if env["recordId"] != id || env["integration"] != "i1" || env["user"] != "u1" || env["message"] != "hi" {
		t.Errorf("payload = %v", env)
	}
}

func TestNATSPublisher_Errors(t *testing.T) {
	boom := errors.New("boom")
	for name, conn := range map[string]*fakeConn{
		"publish": {pubErr: boom},
		"flush":   {flushErr: boom},
	} {
		t.Run(name, func(t *testing.T) {
			p := newNATSPublisher(conn, "custom.subject")
			if _, err := p.CreateNotification(context.Background(), Record{}); !errors.Is(err, boom) {
				t.Errorf("error = %v, want wrapping boom", err)
			}
			if conn.subject != "custom.subject" {
				t.Errorf("subject = %q", conn.subject)
			}
		})
	}
}

func TestNATSPublisher_NotConnected(t *testing.T) {
	p := &NATSPublisher{}
	if _, err := p.CreateNotification(context.Background(), Record{}); err == nil {
		t.Error("expected error")
	}
	p.Close()
}
