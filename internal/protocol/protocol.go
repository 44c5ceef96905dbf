// Package protocol defines the closed set of inbound commands and
// outbound events exchanged with clients as {type, payload} envelopes.
// Unknown or malformed shapes are rejected here, at the boundary, so the
// broadcast engine only ever sees validated commands.
package protocol

import (
	"encoding/json"
	"fmt"

	"relay-chat/internal/domain"
)

// Inbound command types.
const (
	CmdAuthenticate = "authenticate"
	CmdJoinRoom     = "join_room"
	CmdSendMessage  = "send_message"
	CmdCreateRoom   = "create_room"
)

// Outbound event types.
const (
	EventAuthResult       = "auth_result"
	EventCreateRoomResult = "create_room_result"
	EventRoomsList        = "rooms_list"
	EventRoomMessages     = "room_messages"
	EventNewMessage       = "new_message"
	EventNewRoom          = "new_room"
	EventRoomUpdated      = "room_updated"
	EventUserJoined       = "user_joined"
	EventUserLeft         = "user_left"
)

// Envelope is the wire frame for both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type authenticatePayload struct {
	Name string `json:"name"`
}

type joinRoomPayload struct {
	RoomID string `json:"roomId"`
}

type sendMessagePayload struct {
	Text string `json:"text"`
}

type createRoomPayload struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Ack is the reply payload for the two acknowledged commands.
type Ack struct {
	Success bool                `json:"success"`
	Error   string              `json:"error,omitempty"`
	Room    *domain.RoomSummary `json:"room,omitempty"`
}

// Command is a decoded and validated inbound command. Type selects which
// of the remaining fields are meaningful.
type Command struct {
	Type        string
	Name        string
	RoomID      string
	Text        string
	Description string
}

// DecodeCommand parses a raw frame into a validated Command. It returns
// an error for unknown types, malformed JSON and missing required fields.
func DecodeCommand(data []byte) (*Command, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed envelope: %w", err)
	}

	switch env.Type {
	case CmdAuthenticate:
		var p authenticatePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", env.Type, err)
		}
		if p.Name == "" {
			return nil, fmt.Errorf("%s: %w: name is required", env.Type, domain.ErrInvalidInput)
		}
		return &Command{Type: env.Type, Name: p.Name}, nil

	case CmdJoinRoom:
		var p joinRoomPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", env.Type, err)
		}
		if p.RoomID == "" {
			return nil, fmt.Errorf("%s: %w: roomId is required", env.Type, domain.ErrInvalidInput)
		}
		return &Command{Type: env.Type, RoomID: p.RoomID}, nil

	case CmdSendMessage:
		var p sendMessagePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", env.Type, err)
		}
		// Empty text is relayed as-is; only a malformed payload is rejected.
		return &Command{Type: env.Type, Text: p.Text}, nil

	case CmdCreateRoom:
		var p createRoomPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", env.Type, err)
		}
		if p.Name == "" {
			return nil, fmt.Errorf("%s: %w: name is required", env.Type, domain.ErrInvalidInput)
		}
		return &Command{Type: env.Type, Name: p.Name, Description: p.Description}, nil

	default:
		return nil, fmt.Errorf("unknown command type %q", env.Type)
	}
}

// Encode marshals an outbound event envelope.
func Encode(eventType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return json.Marshal(Envelope{Type: eventType, Payload: raw})
}
