// Package engine implements the broadcast engine: it orchestrates
// authentication, room membership, message submission and room creation
// by composing the session registry and room store, and emits outbound
// events through a transport-agnostic Gateway.
package engine

import (
	"errors"
	"log/slog"
	"time"

	"relay-chat/internal/domain"
	"relay-chat/internal/markup"
	"relay-chat/internal/observability"
	"relay-chat/internal/protocol"

	"github.com/google/uuid"
)

const (
	maxMessageLength  = 1000
	maxRoomNameLength = 100
)

// Gateway delivers pre-encoded event frames to connections. Deliveries
// are enqueued, never awaited, so a slow recipient cannot delay the
// engine's state mutations.
type Gateway interface {
	// Send delivers a frame to one connection.
	Send(connID string, data []byte)
	// SendMany delivers a frame to each listed connection.
	SendMany(connIDs []string, data []byte)
	// Broadcast delivers a frame to every connection.
	Broadcast(data []byte)
}

// Engine is the broadcast engine. Safe for concurrent use: the stores
// synchronize their own state, and a per-room operation lock keeps each
// room's mutate-then-enqueue sequences serialized so delivery order
// matches mutation order. Independent rooms do not contend.
type Engine struct {
	sessions domain.SessionRegistry
	rooms    domain.RoomStore
	gateway  Gateway
	roomOps  *keyedMutex
}

// New creates a broadcast engine over the given stores and gateway.
func New(sessions domain.SessionRegistry, rooms domain.RoomStore, gateway Gateway) *Engine {
	return &Engine{
		sessions: sessions,
		rooms:    rooms,
		gateway:  gateway,
		roomOps:  newKeyedMutex(),
	}
}

// Authenticate binds a display name to the connection. On success the
// caller receives a positive ack followed by the current room directory;
// on a name collision it receives a failure ack and nothing changes.
func (e *Engine) Authenticate(connID, name string) {
	_, rebind := e.sessions.IdentityOf(connID)

	identity, err := e.sessions.Authenticate(connID, name)
	if err != nil {
		if errors.Is(err, domain.ErrNameTaken) {
			slog.Debug("authentication rejected, name taken",
				slog.String("connection_id", connID),
				slog.String("name", name))
			e.send(connID, protocol.EventAuthResult, &protocol.Ack{
				Success: false,
				Error:   "Username is already taken",
			})
		}
		return
	}

	// A rebind swaps the name on an existing session; the gauge counts
	// sessions, not binds, and Disconnect decrements it exactly once.
	if !rebind {
		observability.SessionsActive.Inc()
	}
	slog.Info("client authenticated",
		slog.String("connection_id", connID),
		slog.String("name", identity.Name))

	e.send(connID, protocol.EventAuthResult, &protocol.Ack{Success: true})
	e.send(connID, protocol.EventRoomsList, e.rooms.List())
}

// JoinRoom moves the connection into the target room. The caller receives
// the room's history, the room's other members are notified, and the
// updated room summary is broadcast to every connection. Unauthenticated
// callers and unknown rooms are silently ignored.
func (e *Engine) JoinRoom(connID, roomID string) {
	identity, ok := e.sessions.IdentityOf(connID)
	if !ok {
		slog.Debug("join_room from unauthenticated connection",
			slog.String("connection_id", connID))
		return
	}

	e.leaveAll(connID, identity.Name)

	if _, ok := e.rooms.Get(roomID); !ok {
		slog.Debug("join_room for unknown room",
			slog.String("connection_id", connID),
			slog.String("room_id", roomID))
		return
	}

	// Membership add, history snapshot and every notification enqueue stay
	// under the room lock: a concurrent message lands either in the history
	// the joiner receives or in a new_message frame, never both and never
	// neither, and the room_updated count broadcast to all clients reflects
	// this mutation, not a later one.
	unlock := e.roomOps.lock(roomID)
	e.rooms.AddMember(roomID, connID)
	e.sessions.SetCurrentRoom(connID, roomID)
	e.send(connID, protocol.EventRoomMessages, e.rooms.History(roomID))
	e.sendMany(exclude(e.rooms.Members(roomID), connID), protocol.EventUserJoined, identity.Name)
	if summary, ok := e.rooms.Summary(roomID); ok {
		e.broadcast(protocol.EventRoomUpdated, summary)
	}
	unlock()

	slog.Info("client joined room",
		slog.String("connection_id", connID),
		slog.String("name", identity.Name),
		slog.String("room_id", roomID))
}

// SendMessage formats and appends a message to the sender's current room,
// then fans it out to every member, sender included. Dropped silently when
// the sender is not in a room.
func (e *Engine) SendMessage(connID, text string) {
	identity, ok := e.sessions.IdentityOf(connID)
	if !ok {
		slog.Debug("send_message from unauthenticated connection",
			slog.String("connection_id", connID))
		return
	}

	roomID, ok := e.sessions.CurrentRoom(connID)
	if !ok {
		slog.Debug("send_message outside a room",
			slog.String("connection_id", connID),
			slog.String("name", identity.Name))
		return
	}

	if len(text) > maxMessageLength {
		slog.Warn("message dropped, too long",
			slog.String("connection_id", connID),
			slog.Int("length", len(text)))
		return
	}

	msg := &domain.Message{
		ID:        newMessageID(),
		Text:      text,
		Formatted: markup.Format(text),
		Author:    identity.Name,
		SentAt:    time.Now(),
	}

	// Append and fan-out enqueue share the room lock so every member
	// receives messages in history order.
	unlock := e.roomOps.lock(roomID)
	defer unlock()

	if !e.rooms.AppendMessage(roomID, msg) {
		slog.Warn("current room missing on append",
			slog.String("connection_id", connID),
			slog.String("room_id", roomID))
		return
	}
	e.sendMany(e.rooms.Members(roomID), protocol.EventNewMessage, msg)
	observability.MessagesTotal.WithLabelValues(roomID).Inc()
}

// CreateRoom creates a room named by the caller. The caller receives an
// ack with the new summary; every connection then receives a new_room
// announcement. A derived-id collision yields a failure ack.
func (e *Engine) CreateRoom(connID, name, description string) {
	identity, ok := e.sessions.IdentityOf(connID)
	if !ok {
		slog.Debug("create_room from unauthenticated connection",
			slog.String("connection_id", connID))
		return
	}

	if len(name) > maxRoomNameLength {
		slog.Warn("room name dropped, too long",
			slog.String("connection_id", connID),
			slog.Int("length", len(name)))
		return
	}

	summary, err := e.rooms.Create(name, description, identity.Name)
	if err != nil {
		if errors.Is(err, domain.ErrRoomExists) {
			e.send(connID, protocol.EventCreateRoomResult, &protocol.Ack{
				Success: false,
				Error:   "Room already exists",
			})
		}
		return
	}

	slog.Info("room created",
		slog.String("room_id", summary.ID),
		slog.String("created_by", identity.Name))

	e.send(connID, protocol.EventCreateRoomResult, &protocol.Ack{
		Success: true,
		Room:    summary,
	})
	e.broadcast(protocol.EventNewRoom, summary)
}

// Disconnect tears down the connection's session: room membership is
// released, remaining members are notified, the updated summary is
// broadcast, and the identity is destroyed. Idempotent; after it returns
// no room or session state references the connection id.
func (e *Engine) Disconnect(connID string) {
	identity, ok := e.sessions.IdentityOf(connID)
	if !ok {
		e.sessions.Remove(connID)
		return
	}

	if roomID, ok := e.sessions.CurrentRoom(connID); ok {
		unlock := e.roomOps.lock(roomID)
		e.rooms.RemoveMember(roomID, connID)
		e.sendMany(e.rooms.Members(roomID), protocol.EventUserLeft, identity.Name)
		if summary, ok := e.rooms.Summary(roomID); ok {
			e.broadcast(protocol.EventRoomUpdated, summary)
		}
		unlock()
	}

	// Defensive sweep in case membership and session drifted.
	e.rooms.RemoveMemberAll(connID)
	e.sessions.Remove(connID)
	observability.SessionsActive.Dec()

	slog.Info("client disconnected",
		slog.String("connection_id", connID),
		slog.String("name", identity.Name))
}

// leaveAll removes the connection from every room it is a member of and
// notifies each room's remaining members.
func (e *Engine) leaveAll(connID, name string) {
	for _, roomID := range e.rooms.RemoveMemberAll(connID) {
		e.sendMany(e.rooms.Members(roomID), protocol.EventUserLeft, name)
	}
}

func (e *Engine) send(connID, eventType string, payload any) {
	data, err := protocol.Encode(eventType, payload)
	if err != nil {
		slog.Error("failed to encode event",
			slog.String("error", err.Error()),
			slog.String("type", eventType))
		return
	}
	observability.EventsSent.WithLabelValues(eventType).Inc()
	e.gateway.Send(connID, data)
}

func (e *Engine) sendMany(connIDs []string, eventType string, payload any) {
	if len(connIDs) == 0 {
		return
	}
	data, err := protocol.Encode(eventType, payload)
	if err != nil {
		slog.Error("failed to encode event",
			slog.String("error", err.Error()),
			slog.String("type", eventType))
		return
	}
	observability.EventsSent.WithLabelValues(eventType).Inc()
	e.gateway.SendMany(connIDs, data)
}

func (e *Engine) broadcast(eventType string, payload any) {
	data, err := protocol.Encode(eventType, payload)
	if err != nil {
		slog.Error("failed to encode event",
			slog.String("error", err.Error()),
			slog.String("type", eventType))
		return
	}
	observability.EventsSent.WithLabelValues(eventType).Inc()
	e.gateway.Broadcast(data)
}

// newMessageID returns a time-ordered unique id so clients can key and
// sort messages without a server-side sequence.
func newMessageID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.New().String()
}

func exclude(connIDs []string, skip string) []string {
	out := connIDs[:0]
	for _, id := range connIDs {
		if id != skip {
			out = append(out, id)
		}
	}
	return out
}
