package chat

import "log/slog"

// Scope is the fan-out target of a delivery.
type Scope int

const (
	ScopeGlobal Scope = iota // every live connection
	ScopeRoom                // every connection bound to Target room
	ScopeDirect              // the single connection Target
)

func (s Scope) String() string {
	switch s {
	case ScopeGlobal:
		return "global"
	case ScopeRoom:
		return "room"
	case ScopeDirect:
		return "direct"
	default:
		return "unknown"
	}
}

// Delivery is one outbound event together with its scope.
type Delivery struct {
	Scope  Scope
	Target string
	Event  Outbound
}

func Global(event string, data any) Delivery {
	return Delivery{Scope: ScopeGlobal, Event: Outbound{Event: event, Data: data}}
}

func ToRoom(room, event string, data any) Delivery {
	return Delivery{Scope: ScopeRoom, Target: room, Event: Outbound{Event: event, Data: data}}
}

func Direct(connID, event string, data any) Delivery {
	return Delivery{Scope: ScopeDirect, Target: connID, Event: Outbound{Event: event, Data: data}}
}

// Sink is a live connection as seen by the dispatcher.
type Sink interface {
	ID() string
	// Deliver enqueues evt without blocking and reports whether it was accepted.
	Deliver(evt Outbound) bool
	// Close signals that no more events will be delivered.
	Close()
}

// Directory resolves the members of a room.
type Directory interface {
	MembersOf(room string) []string
}

// Dispatcher is the only path to a connection. Delivery is best effort: an
// event for an unknown or saturated connection is dropped.
type Dispatcher struct {
	log    *slog.Logger
	sinks  map[string]Sink
	rooms  Directory
	mirror Mirror
}

func NewDispatcher(log *slog.Logger, rooms Directory, mirror Mirror) *Dispatcher {
	return &Dispatcher{
		log:    log,
		sinks:  make(map[string]Sink),
		rooms:  rooms,
		mirror: mirror,
	}
}

func (d *Dispatcher) Attach(sink Sink) {
	d.sinks[sink.ID()] = sink
}

// Detach closes and forgets the sink. It reports whether it was attached.
func (d *Dispatcher) Detach(connID string) bool {
	sink, ok := d.sinks[connID]
	if !ok {
		return false
	}
	delete(d.sinks, connID)
	sink.Close()
	return true
}

// CloseAll detaches every sink.
func (d *Dispatcher) CloseAll() {
	for id := range d.sinks {
		d.Detach(id)
	}
}

func (d *Dispatcher) Len() int { return len(d.sinks) }

// Dispatch fans out every delivery in order and returns how many events
// were handed to a connection.
func (d *Dispatcher) Dispatch(deliveries ...Delivery) int {
	sent := 0
	for _, dl := range deliveries {
		switch dl.Scope {
		case ScopeGlobal:
			for _, sink := range d.sinks {
				sent += d.send(sink, dl.Event)
			}
		case ScopeRoom:
			for _, connID := range d.rooms.MembersOf(dl.Target) {
				if sink, ok := d.sinks[connID]; ok {
					sent += d.send(sink, dl.Event)
				}
			}
			if d.mirror != nil && mirrored(dl.Event.Event) {
				d.mirror.Publish(dl.Target, dl.Event)
			}
		case ScopeDirect:
			sink, ok := d.sinks[dl.Target]
			if !ok {
				d.log.Debug("Dropping event for unknown connection", "event", dl.Event.Event, "conn", dl.Target)
				continue
			}
			sent += d.send(sink, dl.Event)
		}
	}
	return sent
}

func (d *Dispatcher) send(sink Sink, evt Outbound) int {
	if !sink.Deliver(evt) {
		d.log.Debug("Dropping event for saturated connection", "event", evt.Event, "conn", sink.ID())
		return 0
	}
	return 1
}

func mirrored(event string) bool {
	return event == EventMessage || event == EventImageMessage
}
