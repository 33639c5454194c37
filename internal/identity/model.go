package identity

import "github.com/google/uuid"

// Identity is the application-level identity of a chat user. It outlives
// transport connections: a client that presents its resume token on a new
// connection gets the same ID back.
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// New mints a fresh identity with no username yet.
func New() Identity {
	return Identity{ID: uuid.NewString()}
}

func (i Identity) IsZero() bool {
	return i.ID == ""
}
