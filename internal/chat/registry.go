package chat

import (
	"sort"

	"chat-relay/internal/identity"

	"github.com/samber/lo"
)

// Session binds a connection to a username and at most one room.
type Session struct {
	ConnID   string
	Identity identity.Identity
	Username string
	Room     string
	seq      uint64
}

type set map[string]struct{}

// Registry is the source of truth for who is online and where. It keeps an
// explicit room index next to the sessions; both are only ever mutated
// together so the derived and indexed views agree at every observation.
type Registry struct {
	conns    map[string]identity.Identity // every live connection
	sessions map[string]*Session          // connections that joined a room
	rooms    map[string]set               // room -> connection ids
	nextSeq  uint64
}

func NewRegistry() *Registry {
	return &Registry{
		conns:    make(map[string]identity.Identity),
		sessions: make(map[string]*Session),
		rooms:    make(map[string]set),
	}
}

// Register records a live connection. No session exists until it joins.
func (r *Registry) Register(connID string, id identity.Identity) {
	r.conns[connID] = id
}

// Join binds the connection to room under username, implicitly leaving the
// previous room. It returns the updated session and the room it left, if any.
func (r *Registry) Join(connID, username, room string) (Session, string) {
	id := r.conns[connID]
	id.Username = username
	r.conns[connID] = id

	sess, ok := r.sessions[connID]
	if !ok {
		r.nextSeq++
		sess = &Session{ConnID: connID, seq: r.nextSeq}
		r.sessions[connID] = sess
	}

	previous := sess.Room
	if previous != "" {
		r.leaveRoom(connID, previous)
	}

	sess.Identity = id
	sess.Username = username
	sess.Room = room
	if r.rooms[room] == nil {
		r.rooms[room] = make(set)
	}
	r.rooms[room][connID] = struct{}{}

	return *sess, previous
}

func (r *Registry) leaveRoom(connID, room string) {
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

func (r *Registry) Lookup(connID string) (Session, bool) {
	sess, ok := r.sessions[connID]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

func (r *Registry) Identity(connID string) (identity.Identity, bool) {
	id, ok := r.conns[connID]
	return id, ok
}

// Remove forgets the connection and its session. The returned session is
// the one that was removed, if the connection had joined a room.
func (r *Registry) Remove(connID string) (Session, bool) {
	delete(r.conns, connID)

	sess, ok := r.sessions[connID]
	if !ok {
		return Session{}, false
	}
	r.leaveRoom(connID, sess.Room)
	delete(r.sessions, connID)
	return *sess, true
}

// MembersOf returns the connections bound to room, in join order. An unknown
// room has no members.
func (r *Registry) MembersOf(room string) []string {
	members := lo.Keys(r.rooms[room])
	sort.Slice(members, func(i, j int) bool {
		return r.sessions[members[i]].seq < r.sessions[members[j]].seq
	})
	return members
}

// Sessions returns every joined session in join order.
func (r *Registry) Sessions() []Session {
	sessions := lo.MapToSlice(r.sessions, func(_ string, s *Session) Session { return *s })
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].seq < sessions[j].seq })
	return sessions
}

// Rooms returns the member count of every non-empty room.
func (r *Registry) Rooms() map[string]int {
	return lo.MapValues(r.rooms, func(members set, _ string) int { return len(members) })
}

func (r *Registry) ConnectionCount() int { return len(r.conns) }

func (r *Registry) SessionCount() int { return len(r.sessions) }
