package domain

import (
	"errors"
	"time"
)

var (
	ErrNameTaken    = errors.New("display name is already taken")
	ErrInvalidInput = errors.New("invalid input")
)

// Identity is an authenticated display name bound to one live connection.
type Identity struct {
	ConnectionID string    `json:"id"`
	Name         string    `json:"username"`
	JoinedAt     time.Time `json:"joinedAt"`
}

// SessionRegistry defines the interface for live session state.
// One session per connection; a connection without an Identity is
// unauthenticated and inert with respect to room operations.
type SessionRegistry interface {
	// Authenticate binds an Identity to the connection. It fails with
	// ErrNameTaken when the name matches any currently live identity,
	// atomically with respect to concurrent calls.
	Authenticate(connID, name string) (*Identity, error)
	IdentityOf(connID string) (*Identity, bool)
	CurrentRoom(connID string) (string, bool)
	SetCurrentRoom(connID, roomID string)
	// Remove destroys the session. Idempotent.
	Remove(connID string)
}
