//go:generate go run go.uber.org/mock/mockgen -source=mirror.go -destination=../mocks/mock_mirror.go -package=mocks
package chat

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Mirror copies room traffic to an external observer. Publish must not block.
type Mirror interface {
	Publish(room string, evt Outbound)
}

type mirroredEvent struct {
	room string
	evt  Outbound
}

// RedisMirror publishes room messages to one Redis channel per room. It only
// publishes: the relay never consumes these channels.
type RedisMirror struct {
	log    *slog.Logger
	client *redis.Client
	prefix string
	events chan mirroredEvent
}

func NewRedisMirror(log *slog.Logger, client *redis.Client, prefix string, buffer int) *RedisMirror {
	return &RedisMirror{
		log:    log,
		client: client,
		prefix: prefix,
		events: make(chan mirroredEvent, buffer),
	}
}

func (m *RedisMirror) Publish(room string, evt Outbound) {
	select {
	case m.events <- mirroredEvent{room: room, evt: evt}:
	default:
		m.log.Debug("Mirror buffer full, event lost", "room", room, "event", evt.Event)
	}
}

func (m *RedisMirror) Channel(room string) string {
	return m.prefix + room
}

// Run publishes queued events until ctx is done.
func (m *RedisMirror) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			m.log.Debug("Stopping redis mirror")
			return
		case me := <-m.events:
			payload, err := json.Marshal(me.evt)
			if err != nil {
				m.log.Error("Mirror encode failed", "error", err)
				continue
			}
			if err := m.client.Publish(ctx, m.Channel(me.room), payload).Err(); err != nil {
				m.log.Warn("Redis publish failed", "room", me.room, "error", err)
			}
		}
	}
}
