package chat

import "github.com/samber/lo"

// DefaultHistorySize is the number of room messages replayed to joiners.
const DefaultHistorySize = 50

// History is a bounded FIFO of the most recent room messages.
type History struct {
	capacity int
	messages []Message
}

func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &History{capacity: capacity, messages: make([]Message, 0, capacity)}
}

// Append adds a room message and evicts the oldest ones beyond capacity.
// Private and image messages are ignored.
func (h *History) Append(msg Message) {
	if msg.Kind != KindRoom {
		return
	}
	h.messages = append(h.messages, msg)
	for len(h.messages) > h.capacity {
		h.messages = h.messages[1:]
	}
}

// Snapshot returns every retained message, oldest first.
func (h *History) Snapshot() []Message {
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Room returns the retained messages of one room, oldest first.
func (h *History) Room(room string) []Message {
	return lo.Filter(h.messages, func(m Message, _ int) bool { return m.Room == room })
}

func (h *History) Contains(id string) bool {
	return lo.ContainsBy(h.messages, func(m Message) bool { return m.ID == id })
}

func (h *History) Len() int { return len(h.messages) }

func (h *History) Capacity() int { return h.capacity }
