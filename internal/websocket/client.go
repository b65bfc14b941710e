// Waymark - GPS Tracking and Live Telemetry
// Copyright 2026 Waymark contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waymark-gps/waymark

package websocket

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/waymark-gps/waymark/internal/config"
	"github.com/waymark-gps/waymark/internal/logging"
)

// clientIDCounter generates unique, monotonically increasing IDs so
// clients can be visited in a consistent order during fan-out.
var clientIDCounter atomic.Uint64

// Client is the middleman between one WebSocket connection and the hub.
type Client struct {
	id        uint64 // monotonic, used for deterministic fan-out order
	sessionID string // uuid, used in logs
	hub       *Hub
	conn      *websocket.Conn
	send      chan Message
	cfg       *config.LiveConfig
}

// NewClient creates a Client for an upgraded connection. The client is
// not active until Start is called, and must be registered with the
// hub by the caller.
func NewClient(hub *Hub, conn *websocket.Conn, cfg *config.LiveConfig) *Client {
	return &Client{
		id:        clientIDCounter.Add(1),
		sessionID: uuid.NewString(),
		hub:       hub,
		conn:      conn,
		send:      make(chan Message, cfg.ClientBufferSize),
		cfg:       cfg,
	}
}

// SessionID returns the client's session identifier.
func (c *Client) SessionID() string {
	return c.sessionID
}

// Start begins the read and write pumps.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// readPump reads control messages (subscribe, unsubscribe, ping) from
// the connection and forwards them to the hub until the connection
// drops.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout)); err != nil {
		logging.Error().Err(err).Str("session_id", c.sessionID).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Error().Err(err).Str("session_id", c.sessionID).Msg("unexpected websocket close")
			}
			return
		}
		c.handleMessage(msg)
	}
}

func (c *Client) handleMessage(msg Message) {
	switch msg.Type {
	case MessageTypeSubscribe:
		deviceID := deviceIDFromData(msg.Data)
		if deviceID == "" {
			logging.Debug().Str("session_id", c.sessionID).Msg("subscribe without device_id ignored")
			return
		}
		c.hub.subscribe <- subscribeRequest{client: c, deviceID: deviceID}

	case MessageTypeUnsubscribe:
		c.hub.unsubscribe <- c

	case MessageTypePing:
		select {
		case c.send <- Message{Type: MessageTypePong}:
		default:
		}

	default:
		logging.Debug().
			Str("session_id", c.sessionID).
			Str("message_type", msg.Type).
			Msg("unknown live message type ignored")
	}
}

// deviceIDFromData extracts data.device_id from a decoded message.
func deviceIDFromData(data interface{}) string {
	obj, ok := data.(map[string]interface{})
	if !ok {
		return ""
	}
	id, _ := obj["device_id"].(string)
	return id
}

// writePump writes queued messages and periodic pings to the
// connection until the hub closes the send channel or a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				logging.Error().Err(err).Str("session_id", c.sessionID).Msg("failed to set write deadline")
				return
			}
			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				logging.Error().Err(err).Str("session_id", c.sessionID).Msg("failed to write live message")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
