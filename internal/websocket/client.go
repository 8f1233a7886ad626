// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

package websocket

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/trailkeeper/internal/logging"
	"github.com/tomtom215/trailkeeper/internal/view"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBuffer     = 256
)

// clientIDCounter orders clients for deterministic broadcast.
var clientIDCounter atomic.Uint64

// Client is one connection. It owns a LocationList for the day the client
// selected; list changes and hub broadcasts share the send buffer. A
// client whose buffer fills up is disconnected rather than allowed to
// hold back the feed.
type Client struct {
	id   uint64
	hub  *Hub
	conn *websocket.Conn
	list *view.LocationList

	mu     sync.Mutex
	send   chan Message
	closed bool
}

// NewClient creates a client. list may be nil when day selection is not
// offered.
func NewClient(hub *Hub, conn *websocket.Conn, list *view.LocationList) *Client {
	c := &Client{
		id:   clientIDCounter.Add(1),
		hub:  hub,
		conn: conn,
		list: list,
		send: make(chan Message, sendBuffer),
	}
	if list != nil {
		list.SetListener(func(u view.LocationUpdate) {
			if !c.trySend(updateMessage(u)) {
				c.evict()
			}
		})
	}
	return c
}

// ID returns the client's ordering key.
func (c *Client) ID() uint64 {
	return c.id
}

// trySend queues msg without blocking. It reports false when the buffer
// is full or the client is closed.
func (c *Client) trySend(msg Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// evict asks the hub to drop a slow client. Never blocks the caller.
func (c *Client) evict() {
	if c.isClosed() {
		return
	}
	logging.Warn().Uint64("client_id", c.id).Msg("websocket client too slow, disconnecting")
	wsSlowClients.Inc()
	go func() {
		select {
		case c.hub.Unregister <- c:
		case <-c.hub.done:
		}
	}()
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// close ends the day subscription and closes the send channel. Only the
// hub calls it.
func (c *Client) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()

	if c.list != nil {
		c.list.Close()
	}
}

// readPump handles client frames until the connection fails.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.Unregister <- c:
		case <-c.hub.done:
			c.close()
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg inbound
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Error().Err(err).Msg("unexpected websocket close error")
			}
			return
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg inbound) {
	switch msg.Type {
	case MessageTypePing:
		c.trySend(Message{Type: MessageTypePong})

	case MessageTypeSelectDay:
		var day string
		if err := json.Unmarshal(msg.Data, &day); err != nil {
			c.trySend(Message{Type: MessageTypeError, Data: ErrorData{Message: "select_day expects a yyyyMMdd string"}})
			return
		}
		if c.list == nil {
			c.trySend(Message{Type: MessageTypeError, Data: ErrorData{Message: "day selection unavailable"}})
			return
		}
		if err := c.list.SetDay(day); err != nil {
			c.trySend(Message{Type: MessageTypeError, Data: ErrorData{Message: err.Error()}})
			return
		}
		wsDaySelections.Inc()
		logging.Debug().Uint64("client_id", c.id).Str("day", day).Msg("websocket client selected day")

	default:
		c.trySend(Message{Type: MessageTypeError, Data: ErrorData{Message: "unknown message type " + msg.Type}})
	}
}

// writePump writes queued frames and keeps the connection alive.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline")
				return
			}
			if !ok {
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					logging.Debug().Err(err).Msg("failed to write close message")
				}
				return
			}
			data, err := MarshalMessage(message)
			if err != nil {
				logging.Error().Err(err).Str("message_type", message.Type).Msg("failed to encode message")
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logging.Debug().Err(err).Msg("failed to write message")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline for ping")
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Start begins reading and writing for the client.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}
