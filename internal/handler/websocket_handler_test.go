package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"relay-chat/internal/domain"
	"relay-chat/internal/engine"
	"relay-chat/internal/protocol"
	"relay-chat/internal/store"
	ws "relay-chat/internal/websocket"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestServer wires a full relay (stores, engine, hub, handler) behind an
// httptest server and returns its ws:// URL.
func newTestServer(t *testing.T, allowedOrigins string) string {
	t.Helper()

	sessions := store.NewSessionRegistry()
	rooms := store.NewRoomStore(0)
	hub := ws.NewHub()

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = hub.Run(ctx) }()

	eng := engine.New(sessions, rooms, hub)
	h := NewWebSocketHandler(hub, eng, allowedOrigins)

	srv := httptest.NewServer(http.HandlerFunc(h.HandleConnection))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendCommand(t *testing.T, conn *websocket.Conn, cmdType string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	data, err := json.Marshal(protocol.Envelope{Type: cmdType, Payload: raw})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

// waitForEvent reads frames until one of the given type arrives, discarding
// everything else. Broadcast events interleave with directed ones, so tests
// name the event they care about.
func waitForEvent(t *testing.T, conn *websocket.Conn, eventType string) json.RawMessage {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))

	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", eventType)

		var env protocol.Envelope
		require.NoError(t, json.Unmarshal(data, &env))
		if env.Type == eventType {
			return env.Payload
		}
	}
}

func authenticateConn(t *testing.T, conn *websocket.Conn, name string) {
	t.Helper()
	sendCommand(t, conn, protocol.CmdAuthenticate, map[string]string{"name": name})
	var ack protocol.Ack
	require.NoError(t, json.Unmarshal(waitForEvent(t, conn, protocol.EventAuthResult), &ack))
	require.True(t, ack.Success, "authentication of %s failed: %s", name, ack.Error)
}

func TestWebSocketHandler_AuthenticateAndListRooms(t *testing.T) {
	url := newTestServer(t, "*")
	conn := dial(t, url, nil)

	sendCommand(t, conn, protocol.CmdAuthenticate, map[string]string{"name": "alice"})

	var ack protocol.Ack
	require.NoError(t, json.Unmarshal(waitForEvent(t, conn, protocol.EventAuthResult), &ack))
	assert.True(t, ack.Success)

	var rooms []*domain.RoomSummary
	require.NoError(t, json.Unmarshal(waitForEvent(t, conn, protocol.EventRoomsList), &rooms))
	require.Len(t, rooms, 2)
	assert.Equal(t, "general", rooms[0].ID)
	assert.Equal(t, "random", rooms[1].ID)
}

func TestWebSocketHandler_DuplicateName(t *testing.T) {
	url := newTestServer(t, "*")

	first := dial(t, url, nil)
	authenticateConn(t, first, "alice")

	second := dial(t, url, nil)
	sendCommand(t, second, protocol.CmdAuthenticate, map[string]string{"name": "alice"})

	var ack protocol.Ack
	require.NoError(t, json.Unmarshal(waitForEvent(t, second, protocol.EventAuthResult), &ack))
	assert.False(t, ack.Success)
	assert.Equal(t, "Username is already taken", ack.Error)
}

func TestWebSocketHandler_JoinAndChat(t *testing.T) {
	url := newTestServer(t, "*")

	alice := dial(t, url, nil)
	authenticateConn(t, alice, "alice")
	sendCommand(t, alice, protocol.CmdJoinRoom, map[string]string{"roomId": "general"})

	var history []*domain.Message
	require.NoError(t, json.Unmarshal(waitForEvent(t, alice, protocol.EventRoomMessages), &history))
	assert.Empty(t, history)

	bob := dial(t, url, nil)
	authenticateConn(t, bob, "bob")
	sendCommand(t, bob, protocol.CmdJoinRoom, map[string]string{"roomId": "general"})
	waitForEvent(t, bob, protocol.EventRoomMessages)

	// Alice hears that bob arrived.
	var joined string
	require.NoError(t, json.Unmarshal(waitForEvent(t, alice, protocol.EventUserJoined), &joined))
	assert.Equal(t, "bob", joined)

	sendCommand(t, alice, protocol.CmdSendMessage, map[string]string{"text": "hi **bob**"})

	for _, conn := range []*websocket.Conn{alice, bob} {
		var msg domain.Message
		require.NoError(t, json.Unmarshal(waitForEvent(t, conn, protocol.EventNewMessage), &msg))
		assert.Equal(t, "hi **bob**", msg.Text)
		assert.Equal(t, "hi <strong>bob</strong>", msg.Formatted)
		assert.Equal(t, "alice", msg.Author)
	}
}

func TestWebSocketHandler_DisconnectNotifiesRoom(t *testing.T) {
	url := newTestServer(t, "*")

	alice := dial(t, url, nil)
	authenticateConn(t, alice, "alice")
	sendCommand(t, alice, protocol.CmdJoinRoom, map[string]string{"roomId": "general"})
	waitForEvent(t, alice, protocol.EventRoomMessages)

	bob := dial(t, url, nil)
	authenticateConn(t, bob, "bob")
	sendCommand(t, bob, protocol.CmdJoinRoom, map[string]string{"roomId": "general"})
	waitForEvent(t, alice, protocol.EventUserJoined)

	require.NoError(t, bob.Close())

	var left string
	require.NoError(t, json.Unmarshal(waitForEvent(t, alice, protocol.EventUserLeft), &left))
	assert.Equal(t, "bob", left)

	var summary domain.RoomSummary
	require.NoError(t, json.Unmarshal(waitForEvent(t, alice, protocol.EventRoomUpdated), &summary))
	assert.Equal(t, "general", summary.ID)
	assert.Equal(t, 1, summary.MemberCount)
}

func TestWebSocketHandler_CreateRoomAnnouncedToAll(t *testing.T) {
	url := newTestServer(t, "*")

	alice := dial(t, url, nil)
	authenticateConn(t, alice, "alice")

	bob := dial(t, url, nil)
	authenticateConn(t, bob, "bob")

	sendCommand(t, alice, protocol.CmdCreateRoom, map[string]string{"name": "Book Club"})

	var ack protocol.Ack
	require.NoError(t, json.Unmarshal(waitForEvent(t, alice, protocol.EventCreateRoomResult), &ack))
	require.True(t, ack.Success)
	require.NotNil(t, ack.Room)
	assert.Equal(t, "book-club", ack.Room.ID)
	assert.Equal(t, "User created room", ack.Room.Description)

	var announced domain.RoomSummary
	require.NoError(t, json.Unmarshal(waitForEvent(t, bob, protocol.EventNewRoom), &announced))
	assert.Equal(t, "book-club", announced.ID)
}

func TestWebSocketHandler_MalformedFrameIsNotFatal(t *testing.T) {
	url := newTestServer(t, "*")
	conn := dial(t, url, nil)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"mystery"}`)))

	// The connection survives and still accepts valid commands.
	authenticateConn(t, conn, "alice")
}

func TestWebSocketHandler_OriginAllowlist(t *testing.T) {
	url := newTestServer(t, "https://chat.example.com")

	// A listed origin upgrades.
	allowed := http.Header{"Origin": []string{"https://chat.example.com"}}
	conn := dial(t, url, allowed)
	authenticateConn(t, conn, "alice")

	// An unlisted origin is refused at the handshake.
	denied := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, denied)
	require.Error(t, err)
	assert.ErrorIs(t, err, websocket.ErrBadHandshake)
	if resp != nil {
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		resp.Body.Close()
	}

	// No Origin header means a non-browser client; those are accepted.
	bare := dial(t, url, nil)
	authenticateConn(t, bare, "bob")
}
