package chat

import (
	"sort"

	"github.com/samber/lo"
)

// DefaultReceiptCapacity bounds how many messages keep read-receipt state.
const DefaultReceiptCapacity = 10000

// Receipt is the read state of one message along with what is needed to
// route a receipt back to its sender.
type Receipt struct {
	MessageID    string
	OriginSender string
	OriginRoom   string
	OriginConnID string
	Readers      []string
}

type receiptEntry struct {
	sender  string
	room    string
	connID  string
	readers set
}

// ReceiptTracker keeps per-message reader sets, evicting the oldest message
// once capacity is reached.
type ReceiptTracker struct {
	capacity int
	entries  map[string]*receiptEntry
	order    []string
}

func NewReceiptTracker(capacity int) *ReceiptTracker {
	if capacity <= 0 {
		capacity = DefaultReceiptCapacity
	}
	return &ReceiptTracker{
		capacity: capacity,
		entries:  make(map[string]*receiptEntry),
	}
}

// RecordSend seeds an entry with an empty reader set.
func (t *ReceiptTracker) RecordSend(msgID, sender, room, connID string) {
	if _, ok := t.entries[msgID]; !ok {
		t.order = append(t.order, msgID)
	}
	t.entries[msgID] = &receiptEntry{sender: sender, room: room, connID: connID, readers: make(set)}

	for len(t.order) > t.capacity {
		delete(t.entries, t.order[0])
		t.order = t.order[1:]
	}
}

func (t *ReceiptTracker) Lookup(msgID string) (Receipt, bool) {
	entry, ok := t.entries[msgID]
	if !ok {
		return Receipt{}, false
	}
	return entry.view(msgID), true
}

// RecordRead adds reader to the message's reader set.
func (t *ReceiptTracker) RecordRead(msgID, reader string) (Receipt, error) {
	entry, ok := t.entries[msgID]
	if !ok {
		return Receipt{}, notFoundErr("unknown message %q", msgID)
	}
	entry.readers[reader] = struct{}{}
	return entry.view(msgID), nil
}

func (t *ReceiptTracker) HasRead(msgID, reader string) bool {
	entry, ok := t.entries[msgID]
	if !ok {
		return false
	}
	_, read := entry.readers[reader]
	return read
}

func (t *ReceiptTracker) Len() int { return len(t.entries) }

func (e *receiptEntry) view(msgID string) Receipt {
	readers := lo.Keys(e.readers)
	sort.Strings(readers)
	return Receipt{
		MessageID:    msgID,
		OriginSender: e.sender,
		OriginRoom:   e.room,
		OriginConnID: e.connID,
		Readers:      readers,
	}
}
