// UAScope - HTTP Traffic Threat Monitoring
// Copyright 2026 UAScope Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uascope/uascope

// Package websocket fans scored events out to connected dashboard viewers
// and accepts inline event submission from collector clients over the
// same connection.
package websocket

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/time/rate"

	"github.com/uascope/uascope/internal/logging"
	"github.com/uascope/uascope/internal/metrics"
	"github.com/uascope/uascope/internal/models"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled is the normal graceful shutdown path.
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline may indicate a hung shutdown.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Message types for WebSocket communication
const (
	MessageTypeUAData    = "ua_data"
	MessageTypeScanError = "scan_error"
	MessageTypePing      = "ping"
	MessageTypePong      = "pong"
)

// Message represents a WebSocket message
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// ScanErrorData is sent back to a collector whose inline submission was
// rejected. The connection stays open.
type ScanErrorData struct {
	Message string `json:"message"`
}

// Hub maintains the set of active viewers and broadcasts live events to
// them. Delivery is best effort: a viewer whose send queue is full is
// disconnected rather than allowed to stall the feed.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex

	// limiter throttles the global broadcast rate; nil means unlimited.
	limiter *rate.Limiter

	bufferSize int
}

// NewHub creates a hub. bufferSize is the per-viewer send queue depth;
// ratePerSec caps global broadcasts, 0 for unlimited.
func NewHub(bufferSize, ratePerSec int) *Hub {
	if bufferSize < 1 {
		bufferSize = 256
	}
	var limiter *rate.Limiter
	if ratePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec)
	}
	return &Hub{
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		limiter:    limiter,
		bufferSize: bufferSize,
	}
}

// RunWithContext starts the hub with context support for graceful
// shutdown, designed to run under suture supervision.
//
// Priority-based selection keeps behavior predictable when multiple
// channels are ready: shutdown first, then client lifecycle, then
// broadcasts. Go's select picks randomly among ready channels, which
// would otherwise let a broadcast race a disconnect.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		// Priority 1: shutdown (non-blocking check)
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		// Priority 2: client lifecycle events (non-blocking check)
		select {
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		default:
		}

		// Priority 3: broadcasts, or block until anything arrives
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
	count := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnections.Set(float64(count))
	logging.Info().Int("total_clients", count).Msg("websocket client connected")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		client.closeSend()
	}
	count := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnections.Set(float64(count))
	logging.Info().Int("total_clients", count).Msg("websocket client disconnected")
}

// logGracefulShutdown closes all viewers and logs structured shutdown
// information. The context error is not logged as an error because
// cancellation is expected during shutdown.
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
	switch ctx.Err() {
	case context.Canceled:
		return ShutdownReasonContextCanceled
	case context.DeadlineExceeded:
		return ShutdownReasonContextDeadline
	default:
		return ShutdownReasonContextCanceled
	}
}

// broadcastToClients sends a message to all connected viewers in ID order.
// Sorting makes delivery order deterministic; map iteration order is not.
// A viewer with a full queue is dropped so one slow consumer cannot block
// the rest.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	var toRemove []*Client
	for _, client := range clients {
		if client.enqueue(message) {
			metrics.WSMessagesSent.Inc()
		} else {
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range toRemove {
		client.closeSend()
		delete(h.clients, client)
		metrics.WSMessagesDropped.Inc()
	}
	if len(toRemove) > 0 {
		metrics.WSConnections.Set(float64(len(h.clients)))
		logging.Warn().Int("dropped_clients", len(toRemove)).Msg("disconnected viewers with full send queues")
	}
}

// closeAllClients closes all viewers in ID order during shutdown.
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	for _, client := range clients {
		client.closeSend()
		delete(h.clients, client)
	}
	metrics.WSConnections.Set(0)
	logging.Info().Msg("closed all websocket clients during shutdown")
}

// Publish queues a scored event for broadcast to all viewers. Returns
// false when the event was suppressed by the throttle or a full queue;
// persistence has already happened by the time this is called, so a
// suppressed broadcast loses nothing durable.
func (h *Hub) Publish(event models.LiveEvent) bool {
	if h.limiter != nil && !h.limiter.Allow() {
		metrics.WSBroadcastThrottled.Inc()
		return false
	}

	message := Message{
		Type: MessageTypeUAData,
		Data: event,
	}

	select {
	case h.broadcast <- message:
		return true
	default:
		logging.Warn().Msg("broadcast channel full, dropping live event")
		metrics.WSMessagesDropped.Inc()
		return false
	}
}

// BroadcastJSON sends an arbitrary typed message to all viewers.
func (h *Hub) BroadcastJSON(messageType string, data interface{}) {
	message := Message{
		Type: messageType,
		Data: data,
	}

	select {
	case h.broadcast <- message:
	default:
		logging.Warn().Str("message_type", messageType).Msg("broadcast channel full, dropping JSON message")
	}
}

// GetClientCount returns the number of connected viewers
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
