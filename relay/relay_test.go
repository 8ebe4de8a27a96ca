package relay

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jgaull/fstop-notifications-twitch-chat/chat"
	"github.com/jgaull/fstop-notifications-twitch-chat/dispatch"
	"github.com/jgaull/fstop-notifications-twitch-chat/registry"
)

type stubSource struct {
	list []registry.Integration
	err  error
}

func (s *stubSource) ListIntegrations(context.Context, registry.Filter) ([]registry.Integration, error) {
	return s.list, s.err
}

type stubListener struct {
	channels []string
	handle   chat.Handler
	run      func(ctx context.Context) error
}

func (l *stubListener) Run(ctx context.Context) error { return l.run(ctx) }
func (l *stubListener) Connected() bool { return true }
func (l *stubListener) Joined(c string) bool {
	for _, j := range l.channels {
		if j == c {
			return true
		}
	}
	return false
}

type recordingHandler struct {
	mu    sync.Mutex
	snaps []*registry.Snapshot
	evs   []dispatch.Event
}

func (h *recordingHandler) Handle(_ context.Context, ev dispatch.Event, snap *registry.Snapshot) dispatch.Outcome {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.evs = append(h.evs, ev)
	h.snaps = append(h.snaps, snap)
	return dispatch.Outcome{}
}

func integ(id, channel string) registry.Integration {
	return registry.Integration{ID: id, UserID: "u-" + id, Settings: map[string]any{registry.SettingChannelName: channel}}
}

func TestRun_LoadFailureNeverDials(t *testing.T) {
	boom := errors.New("ingest unreachable")
	reg := registry.New(&stubSource{err: boom}, registry.Filter{Type: "twitch_chat"})
	dialed := false
	svc := New(reg, &recordingHandler{}, func([]string, chat.Handler) ChatRunner {
		dialed = true
		return nil
	})

	err := svc.Run(context.Background())
	var le *registry.LoadError
	if !errors.As(err, &le) || !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want LoadError wrapping source error", err)
	}
	if dialed {
		t.Error("chat listener created after failed load")
	}
	if svc.RegistryLoaded() || svc.ChatConnected() {
		t.Error("service reports ready after failed load")
	}
}

func TestRun_JoinsSnapshotChannelsAndDispatches(t *testing.T) {
	reg := registry.New(&stubSource{list: []registry.Integration{integ("i1", "Foo"), integ("i2", "bar"), integ("i3", "foo")}}, registry.Filter{})
	h := &recordingHandler{}
	var got *stubListener
	svc := New(reg, h, func(channels []string, handle chat.Handler) ChatRunner {
		got = &stubListener{channels: channels, handle: handle}
		got.run = func(ctx context.Context) error {
			handle(ctx, dispatch.Event{Channel: "foo", Text: "hi"})
			return nil
		}
		return got
	})

	if err := svc.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(got.channels) != 2 || got.channels[0] != "Foo" || got.channels[1] != "bar" {
		t.Errorf("channels = %v", got.channels)
	}
	if len(h.evs) != 1 || h.snaps[0] != reg.Current() {
		t.Errorf("handler calls = %d, snapshot = %p", len(h.evs), h.snaps)
	}

	st := svc.Status()
	if st.Integrations != 3 || len(st.Channels) != 2 || !st.ChatConnected || st.StartedAt.IsZero() {
		t.Errorf("Status() = %+v", st)
	}
}

func TestStatus_BeforeLoad(t *testing.T) {
	svc := New(registry.New(&stubSource{}, registry.Filter{}), &recordingHandler{}, nil)
	st := svc.Status()
	if st.Integrations != 0 || st.Channels == nil || st.ChatConnected {
		t.Errorf("Status() = %+v", st)
	}
}
