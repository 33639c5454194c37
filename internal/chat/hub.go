package chat

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"chat-relay/internal/identity"
)

// ErrHubStopped is returned when the hub loop is no longer running.
var ErrHubStopped = errors.New("hub stopped")

type registration struct {
	sink     Sink
	identity identity.Identity
}

type inboundFrame struct {
	connID string
	event  Inbound
}

// Hub is the single writer of the engine state. Every connect, disconnect
// and inbound event runs on the Run loop together with its dispatch, so no
// reader ever sees a membership change without its broadcast.
type Hub struct {
	log        *slog.Logger
	engine     *Engine
	dispatcher *Dispatcher

	register   chan registration
	unregister chan string
	inbound    chan inboundFrame
	query      chan func(*Engine)

	pruneInterval time.Duration
	done          chan struct{}
}

func NewHub(log *slog.Logger, engine *Engine, dispatcher *Dispatcher, pruneInterval time.Duration) *Hub {
	if pruneInterval <= 0 {
		pruneInterval = time.Minute
	}
	return &Hub{
		log:           log,
		engine:        engine,
		dispatcher:    dispatcher,
		register:      make(chan registration),
		unregister:    make(chan string),
		inbound:       make(chan inboundFrame, 256),
		query:         make(chan func(*Engine)),
		pruneInterval: pruneInterval,
		done:          make(chan struct{}),
	}
}

// Run processes hub traffic until ctx is done, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.pruneInterval)
	defer func() {
		ticker.Stop()
		h.dispatcher.CloseAll()
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			h.log.Info("Hub shutting down", "connections", h.dispatcher.Len())
			return

		case reg := <-h.register:
			h.dispatcher.Attach(reg.sink)
			h.dispatcher.Dispatch(h.engine.Connect(reg.sink.ID(), reg.identity)...)

		case connID := <-h.unregister:
			// Always check they are attached to avoid double disconnects
			if h.dispatcher.Detach(connID) {
				h.dispatcher.Dispatch(h.engine.Disconnect(connID)...)
			}

		case frame := <-h.inbound:
			h.dispatcher.Dispatch(h.engine.Handle(frame.connID, frame.event)...)

		case fn := <-h.query:
			fn(h.engine)

		case now := <-ticker.C:
			if n := h.engine.PruneOffline(now); n > 0 {
				h.log.Debug("Pruned offline entries", "count", n)
			}
		}
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} { return h.done }

func (h *Hub) Register(sink Sink, id identity.Identity) error {
	select {
	case h.register <- registration{sink: sink, identity: id}:
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}

func (h *Hub) Unregister(connID string) {
	select {
	case h.unregister <- connID:
	case <-h.done:
	}
}

// Submit queues an inbound event from connID.
func (h *Hub) Submit(connID string, in Inbound) error {
	select {
	case <-h.done:
		return ErrHubStopped
	default:
	}
	select {
	case h.inbound <- inboundFrame{connID: connID, event: in}:
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}

// Do runs fn on the hub loop and waits for it to return. fn must not keep
// references to engine state after it returns.
func (h *Hub) Do(ctx context.Context, fn func(*Engine)) error {
	finished := make(chan struct{})
	wrapped := func(e *Engine) {
		defer close(finished)
		fn(e)
	}

	select {
	case h.query <- wrapped:
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
