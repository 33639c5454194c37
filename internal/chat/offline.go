package chat

import (
	"time"

	"github.com/samber/lo"
)

// DefaultOfflineRetention is how long unread state survives a disconnect.
const DefaultOfflineRetention = 10 * time.Minute

// OfflineEntry holds the messages a disconnected identity has not read yet,
// along with the room it was last bound to.
type OfflineEntry struct {
	IdentityID string
	Username   string
	Room       string
	MessageIDs []string
	ExpiresAt  time.Time
}

// OfflineQueue keys unread state by application identity rather than by
// transport connection id, which changes on every reconnect.
type OfflineQueue struct {
	capacity  int
	retention time.Duration
	entries   map[string]*OfflineEntry
}

func NewOfflineQueue(capacity int, retention time.Duration) *OfflineQueue {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	if retention <= 0 {
		retention = DefaultOfflineRetention
	}
	return &OfflineQueue{
		capacity:  capacity,
		retention: retention,
		entries:   make(map[string]*OfflineEntry),
	}
}

// Enqueue seeds the entry for a departing identity, replacing any older one.
func (q *OfflineQueue) Enqueue(identityID, username, room string, ids []string, now time.Time) {
	entry := &OfflineEntry{
		IdentityID: identityID,
		Username:   username,
		Room:       room,
		MessageIDs: append([]string(nil), ids...),
		ExpiresAt:  now.Add(q.retention),
	}
	entry.trim(q.capacity)
	q.entries[identityID] = entry
}

// Append records a new room message for every offline identity last seen in
// room, except its own sender.
func (q *OfflineQueue) Append(room, msgID, sender string) {
	for _, entry := range q.entries {
		if entry.Room != room || entry.Username == sender {
			continue
		}
		entry.MessageIDs = append(entry.MessageIDs, msgID)
		entry.trim(q.capacity)
	}
}

// Take removes and returns the live entry of an identity.
func (q *OfflineQueue) Take(identityID string, now time.Time) (OfflineEntry, bool) {
	entry, ok := q.entries[identityID]
	if !ok {
		return OfflineEntry{}, false
	}
	delete(q.entries, identityID)
	if now.After(entry.ExpiresAt) {
		return OfflineEntry{}, false
	}
	return *entry, true
}

// Prune drops expired entries and reports how many were dropped.
func (q *OfflineQueue) Prune(now time.Time) int {
	expired := lo.PickBy(q.entries, func(_ string, e *OfflineEntry) bool { return now.After(e.ExpiresAt) })
	for id := range expired {
		delete(q.entries, id)
	}
	return len(expired)
}

func (q *OfflineQueue) Len() int { return len(q.entries) }

func (e *OfflineEntry) trim(capacity int) {
	if over := len(e.MessageIDs) - capacity; over > 0 {
		e.MessageIDs = e.MessageIDs[over:]
	}
}
