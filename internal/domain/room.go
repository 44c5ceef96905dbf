package domain

import (
	"errors"
	"time"
)

var (
	ErrRoomExists   = errors.New("room already exists")
	ErrRoomNotFound = errors.New("room not found")
)

// Room is a named channel with bounded message history and a membership set.
// Membership and history are owned by the RoomStore; this struct carries the
// descriptive part only.
type Room struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// RoomSummary is the read-only projection of a room pushed to clients.
// The member count serializes as userCount for wire compatibility.
type RoomSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MemberCount int    `json:"userCount"`
}

// RoomStore defines the interface for the room directory, per-room
// membership and bounded message history.
type RoomStore interface {
	// List returns summaries of all rooms ordered by creation time.
	List() []*RoomSummary
	Get(roomID string) (*Room, bool)
	Summary(roomID string) (*RoomSummary, bool)
	// Create derives the room id from the name (lowercased, whitespace
	// runs collapsed to "-") and fails with ErrRoomExists on collision.
	Create(name, description, createdBy string) (*RoomSummary, error)
	// AddMember and RemoveMember are idempotent; operating on a missing
	// room or non-member is a no-op.
	AddMember(roomID, connID string)
	RemoveMember(roomID, connID string)
	// RemoveMemberAll removes the connection from every room it is a
	// member of and returns the ids of the rooms it was removed from.
	RemoveMemberAll(connID string) []string
	// AppendMessage appends to the room's history and enforces the
	// retention cap, dropping oldest entries first. Returns false when
	// the room does not exist.
	AppendMessage(roomID string, msg *Message) bool
	History(roomID string) []*Message
	Members(roomID string) []string
	MemberCount(roomID string) int
}
