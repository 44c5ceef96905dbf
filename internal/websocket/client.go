package websocket

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"relay-chat/internal/engine"
	"relay-chat/internal/protocol"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second // Must be less than pongWait
	maxMessageSize = 4096
)

// Client is one WebSocket connection. It decodes inbound frames into
// protocol commands for the broadcast engine and writes frames queued on
// its send buffer by the hub.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	id        string
	engine    *engine.Engine
	writeMu   sync.Mutex
	closed    atomic.Bool
	// sendClosed guards close(send); set only by the hub goroutine.
	sendClosed atomic.Bool
	ctx       context.Context
	ctxCancel context.CancelFunc
}

// NewClient creates a client for an upgraded connection. id must be
// unique per connection; it is the connection id the engine sees.
func NewClient(ctx context.Context, hub *Hub, conn *websocket.Conn, id string, eng *engine.Engine) *Client {
	clientCtx, cancel := context.WithCancel(ctx)

	return &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, 256),
		id:        id,
		engine:    eng,
		ctx:       clientCtx,
		ctxCancel: cancel,
	}
}

// ReadPump reads inbound frames and dispatches them to the engine. It
// tears the session down on exit: engine disconnect runs before the hub
// unregister so no event can target the connection after its state is
// gone.
func (c *Client) ReadPump() {
	defer func() {
		c.ctxCancel()
		c.engine.Disconnect(c.id)
		c.hub.Unregister(c)
		c.closeConnection()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		slog.Warn("failed to set read deadline",
			slog.String("error", err.Error()),
			slog.String("connection_id", c.id))
		return
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			slog.Warn("failed to set read deadline in pong handler",
				slog.String("error", err.Error()),
				slog.String("connection_id", c.id))
			return err
		}
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket error",
					slog.String("error", err.Error()),
					slog.String("connection_id", c.id))
			}
			break
		}

		cmd, err := protocol.DecodeCommand(data)
		if err != nil {
			// Malformed input is local to this connection, never fatal.
			slog.Warn("invalid command frame",
				slog.String("error", err.Error()),
				slog.String("connection_id", c.id))
			continue
		}

		switch cmd.Type {
		case protocol.CmdAuthenticate:
			c.engine.Authenticate(c.id, cmd.Name)
		case protocol.CmdJoinRoom:
			c.engine.JoinRoom(c.id, cmd.RoomID)
		case protocol.CmdSendMessage:
			c.engine.SendMessage(c.id, cmd.Text)
		case protocol.CmdCreateRoom:
			c.engine.CreateRoom(c.id, cmd.Name, cmd.Description)
		}
	}
}

// WritePump pumps frames from the hub to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// Hub closed the channel
				_ = c.writeMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.writeMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.writeMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// writeMessage writes a message to the WebSocket connection in a thread-safe manner
func (c *Client) writeMessage(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return websocket.ErrCloseSent
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		slog.Warn("failed to set write deadline",
			slog.String("error", err.Error()),
			slog.String("connection_id", c.id))
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

// closeConnection safely closes the WebSocket connection
func (c *Client) closeConnection() {
	if c.closed.CompareAndSwap(false, true) {
		c.writeMu.Lock()
		c.conn.Close()
		c.writeMu.Unlock()
	}
}
