package chat

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"chat-relay/internal/identity"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

// recordingSink captures every event delivered to a connection.
type recordingSink struct {
	mu       sync.Mutex
	id       string
	events   []Outbound
	closed   bool
	rejected bool
}

func newRecordingSink(id string) *recordingSink {
	return &recordingSink{id: id}
}

func (s *recordingSink) ID() string { return s.id }

func (s *recordingSink) Deliver(evt Outbound) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rejected {
		return false
	}
	s.events = append(s.events, evt)
	return true
}

func (s *recordingSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *recordingSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *recordingSink) named(event string) []Outbound {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Outbound
	for _, evt := range s.events {
		if evt.Event == event {
			out = append(out, evt)
		}
	}
	return out
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

// fixture wires an engine to a dispatcher the way the hub does, without
// the goroutine.
type fixture struct {
	t          *testing.T
	engine     *Engine
	dispatcher *Dispatcher
	sinks      map[string]*recordingSink
	now        time.Time
	ids        int
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{t: t, sinks: make(map[string]*recordingSink), now: testNow}
	if opts.Now == nil {
		opts.Now = func() time.Time { return f.now }
	}
	if opts.NewID == nil {
		opts.NewID = func() string {
			f.ids++
			return fmt.Sprintf("gen-%d", f.ids)
		}
	}
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	f.engine = NewEngine(log, opts)
	f.dispatcher = NewDispatcher(log, f.engine.Registry(), nil)
	return f
}

func (f *fixture) connect(connID, identityID string) *recordingSink {
	f.t.Helper()
	sink := newRecordingSink(connID)
	f.sinks[connID] = sink
	f.dispatcher.Attach(sink)
	f.dispatcher.Dispatch(f.engine.Connect(connID, identity.Identity{ID: identityID})...)
	return sink
}

func (f *fixture) disconnect(connID string) {
	f.t.Helper()
	require.True(f.t, f.dispatcher.Detach(connID))
	f.dispatcher.Dispatch(f.engine.Disconnect(connID)...)
}

func (f *fixture) send(connID, event string, payload any) []Delivery {
	f.t.Helper()
	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(f.t, err)
		data = raw
	}
	deliveries := f.engine.Handle(connID, Inbound{Event: event, Data: data})
	f.dispatcher.Dispatch(deliveries...)
	return deliveries
}

func (f *fixture) join(connID, username, room string) {
	f.t.Helper()
	f.send(connID, EventJoinRoom, JoinRoomPayload{Username: username, Room: room})
}

func (f *fixture) resetAll() {
	for _, sink := range f.sinks {
		sink.reset()
	}
}

// requireError asserts that the only delivery is an error for connID.
func requireError(t *testing.T, deliveries []Delivery, connID string) ErrorEvent {
	t.Helper()
	require.Len(t, deliveries, 1)
	require.Equal(t, ScopeDirect, deliveries[0].Scope)
	require.Equal(t, connID, deliveries[0].Target)
	require.Equal(t, EventError, deliveries[0].Event.Event)
	evt, ok := deliveries[0].Event.Data.(ErrorEvent)
	require.True(t, ok)
	return evt
}

func requireNoError(t *testing.T, deliveries []Delivery) {
	t.Helper()
	for _, d := range deliveries {
		require.NotEqual(t, EventError, d.Event.Event, "unexpected error event: %v", d.Event.Data)
	}
}
