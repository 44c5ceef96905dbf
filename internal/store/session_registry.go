// Package store holds the in-memory state of the relay: the session
// registry and the room store. Both are constructed once per server
// instance and shared by reference with the broadcast engine.
package store

import (
	"sync"
	"time"

	"relay-chat/internal/domain"
)

// SessionRegistry maps live connections to their authenticated identity
// and current room. A single mutex covers both maps so the uniqueness
// check and the bind commit are one atomic step.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*session
	names    map[string]string // display name -> connection id
}

type session struct {
	identity    *domain.Identity
	currentRoom string
}

// NewSessionRegistry creates an empty SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*session),
		names:    make(map[string]string),
	}
}

// Authenticate binds an identity to the connection. Exactly one of any
// set of concurrent calls requesting the same name succeeds. A name held
// by any live identity is taken, the caller's own included.
func (r *SessionRegistry) Authenticate(connID, name string) (*domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.names[name]; taken {
		return nil, domain.ErrNameTaken
	}

	// Re-authentication under a new name releases the old one.
	if prev, ok := r.sessions[connID]; ok {
		delete(r.names, prev.identity.Name)
	}

	identity := &domain.Identity{
		ConnectionID: connID,
		Name:         name,
		JoinedAt:     time.Now(),
	}
	r.sessions[connID] = &session{identity: identity}
	r.names[name] = connID

	return identity, nil
}

// IdentityOf returns the identity bound to the connection, if any.
func (r *SessionRegistry) IdentityOf(connID string) (*domain.Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[connID]
	if !ok {
		return nil, false
	}
	return s.identity, true
}

// CurrentRoom returns the connection's active room id, if it has one.
func (r *SessionRegistry) CurrentRoom(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[connID]
	if !ok || s.currentRoom == "" {
		return "", false
	}
	return s.currentRoom, true
}

// SetCurrentRoom records the connection's active room. It does not touch
// room membership; the broadcast engine composes the two. No-op for
// unauthenticated connections.
func (r *SessionRegistry) SetCurrentRoom(connID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[connID]; ok {
		s.currentRoom = roomID
	}
}

// Remove destroys the session and frees its display name. Idempotent.
func (r *SessionRegistry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[connID]
	if !ok {
		return
	}
	delete(r.names, s.identity.Name)
	delete(r.sessions, connID)
}

// Count returns the number of live sessions.
func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
