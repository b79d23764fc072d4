package tabs

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"holidaze/internal/pkg/errs"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the tab.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a message sent by a tab.
	maxMessageSize = 1024
)

// Client is one connected tab.
type Client struct {
	hub  *Hub
	id   string
	conn *websocket.Conn

	// a buffered channel used to queue events waiting to be sent to the tab.
	// Only the hub loop sends on or closes it.
	send chan []byte

	logger zerolog.Logger
}

func newClient(h *Hub, conn *websocket.Conn, id string) *Client {
	return &Client{
		hub:    h,
		id:     id,
		conn:   conn,
		send:   make(chan []byte, h.sendBuffer),
		logger: h.logger.With().Str("tab_id", id).Logger(),
	}
}

// readPump reads inbound messages until the connection fails, then leaves the hub.
func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Tab connection close error")
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading message (tab closed or went away)")
			}
			return
		}
		c.processInbound(data)
	}
}

func (c *Client) processInbound(data []byte) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Warn().Err(err).Msg("Tab sent invalid JSON")
		return
	}

	switch msg.Type {
	case TypeSync:
		c.hub.requestSync(c)
	default:
		c.logger.Warn().Str("msg_type", string(msg.Type)).Msg("Tab sent unsupported message type")
	}
}

// writePump writes queued events and heartbeats until the queue is closed or a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Tab connection close error in writePump")
		}
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !c.writeQueued(message, ok) {
				return
			}
		case <-ticker.C:
			if !c.writePing() {
				return
			}
		}
	}
}

// writeQueued writes one event. Returns false if the pump should terminate.
func (c *Client) writeQueued(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if !ok {
		closeMessage := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
		if err := c.conn.WriteMessage(websocket.CloseMessage, closeMessage); err != nil {
			c.logger.Debug().Err(err).Msg("Error writing close message")
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		c.logger.Warn().Err(err).Msg("Error writing message")
		return false
	}
	return true
}

// writePing sends a heartbeat. Returns false if the pump should terminate.
func (c *Client) writePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Warn().Err(err).Msg("Error writing ping")
		return false
	}
	return true
}

// queue marshals ev onto the send queue without blocking. Must run on the hub loop.
func (c *Client) queue(ev Event) bool {
	data, err := encode(ev)
	if err != nil {
		c.logger.Error().Err(err).Msg("Error marshaling event for tab")
		return true
	}

	select {
	case c.send <- data:
		return true
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Tab send queue full")
		return false
	}
}

// queueError sends an ERROR event describing err.
func (c *Client) queueError(err error) {
	customErr := errs.From(err)
	c.queue(NewEvent(TypeError, ErrorPayload{Code: customErr.Code, Message: customErr.Message}))
}
