// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

package websocket

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/tomtom215/trailkeeper/internal/logging"
	"github.com/tomtom215/trailkeeper/internal/models"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Hub maintains the set of active clients and broadcasts the day index
// to all of them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	done       chan struct{}
	doneOnce   sync.Once
	mu         sync.RWMutex

	datesMu sync.RWMutex
	dates   []models.DateAggregateEntry
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
	}
}

// RunWithContext runs the hub until ctx is done, then closes every client.
// Lifecycle events take priority over broadcasts so a client is always
// registered before it can miss a message.
func (h *Hub) RunWithContext(ctx context.Context) error {
	defer h.doneOnce.Do(func() { close(h.done) })

	for {
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.addClient(client)
		case client := <-h.Unregister:
			h.removeClient(client)
		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()
	wsClients.Set(float64(total))

	if dates := h.Dates(); dates != nil {
		client.trySend(Message{Type: MessageTypeDates, Data: dates})
	}
	logging.Info().Int("total_clients", total).Msg("websocket client connected")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client]
	delete(h.clients, client)
	total := len(h.clients)
	h.mu.Unlock()
	if !ok {
		return
	}
	client.close()
	wsClients.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("websocket client disconnected")
}

func (h *Hub) logGracefulShutdown(ctx context.Context) {
	clientCount := h.GetClientCount()
	h.closeAllClients()

	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", clientCount).
		Msg("websocket hub stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}

// sortedClients returns clients ordered by ID. Caller holds h.mu.
func (h *Hub) sortedClients() []*Client {
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	return clients
}

func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	var slow []*Client
	for _, client := range h.sortedClients() {
		if !client.trySend(message) {
			slow = append(slow, client)
			delete(h.clients, client)
		}
	}
	total := len(h.clients)
	h.mu.Unlock()

	for _, client := range slow {
		wsSlowClients.Inc()
		client.close()
	}
	if len(slow) > 0 {
		wsClients.Set(float64(total))
		logging.Warn().Int("dropped_clients", len(slow)).Msg("websocket clients dropped on full buffer")
	}
	wsBroadcasts.WithLabelValues(message.Type).Inc()
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	clients := h.sortedClients()
	for _, client := range clients {
		delete(h.clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		client.close()
	}
	wsClients.Set(0)
}

// BroadcastDates records the latest day index and sends it to every
// client. New clients receive the latest index on connect.
func (h *Hub) BroadcastDates(entries []models.DateAggregateEntry) {
	if entries == nil {
		entries = []models.DateAggregateEntry{}
	}
	h.datesMu.Lock()
	h.dates = entries
	h.datesMu.Unlock()

	h.BroadcastJSON(MessageTypeDates, entries)
}

// Dates returns the last broadcast day index, nil before the first.
func (h *Hub) Dates() []models.DateAggregateEntry {
	h.datesMu.RLock()
	defer h.datesMu.RUnlock()
	return h.dates
}

// BroadcastJSON queues a message for all clients, dropping it when the
// broadcast queue is full.
func (h *Hub) BroadcastJSON(messageType string, data interface{}) {
	message := Message{
		Type: messageType,
		Data: data,
	}

	select {
	case h.broadcast <- message:
	default:
		logging.Warn().Str("message_type", messageType).Msg("broadcast channel full, dropping message")
	}
}

// GetClientCount returns the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
