// UAScope - HTTP Traffic Threat Monitoring
// Copyright 2026 UAScope Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uascope/uascope

package websocket

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/uascope/uascope/internal/logging"
	"github.com/uascope/uascope/internal/metrics"
	"github.com/uascope/uascope/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024 // 64 KB; ingest payloads are small

	// ingestTimeout bounds how long an inline submission may hold the
	// read loop.
	ingestTimeout = 5 * time.Second
)

// Ingestor runs a traffic observation through the scoring pipeline.
// Implemented by the pipeline package; declared here so a collector can
// submit events over its WebSocket connection without an import cycle.
type Ingestor interface {
	Ingest(ctx context.Context, req *models.IngestRequest) (*models.IngestResult, error)
}

// clientIDCounter generates unique, monotonically increasing client IDs
// so broadcast and shutdown order is deterministic.
var clientIDCounter atomic.Uint64

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	id       uint64
	hub      *Hub
	conn     *websocket.Conn
	send     chan Message
	ingestor Ingestor // nil for view-only connections

	// sendMu guards closed. Both the hub and the client's own read pump
	// enqueue into send; the mutex keeps a reply from racing the hub
	// closing the queue.
	sendMu sync.Mutex
	closed bool
}

// NewClient creates a new Client. ingestor may be nil, in which case
// inline ua_data submissions are rejected with a scan_error reply.
func NewClient(hub *Hub, conn *websocket.Conn, ingestor Ingestor) *Client {
	return &Client{
		id:       clientIDCounter.Add(1),
		hub:      hub,
		conn:     conn,
		send:     make(chan Message, hub.bufferSize),
		ingestor: ingestor,
	}
}

// ID returns the client's unique identifier for deterministic ordering
func (c *Client) ID() uint64 {
	return c.id
}

// readPump pumps messages from the websocket connection to the hub.
// Inline ua_data submissions run through the ingest pipeline; a rejected
// submission gets a scan_error reply and the connection stays open.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister <- c
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
		var msg rawMessage
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Error().Err(err).Msg("unexpected websocket close error")
			}
			break
		}
		metrics.WSMessagesReceived.Inc()

		switch msg.Type {
		case MessageTypePing:
			c.reply(Message{Type: MessageTypePong})

		case MessageTypeUAData:
			c.handleInlineSubmit(msg.Data)
		}
	}
}

// rawMessage defers data decoding until the type is known.
type rawMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// handleInlineSubmit runs a collector's submission through the pipeline.
func (c *Client) handleInlineSubmit(data json.RawMessage) {
	if c.ingestor == nil {
		c.replyScanError("ingestion is not enabled on this connection")
		return
	}

	var req models.IngestRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.replyScanError("malformed ua_data payload")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
	defer cancel()

	if _, err := c.ingestor.Ingest(ctx, &req); err != nil {
		c.replyScanError(err.Error())
		return
	}
	// The broadcast comes back through the hub like any other event; no
	// direct acknowledgment beyond that.
}

func (c *Client) replyScanError(message string) {
	c.reply(Message{
		Type: MessageTypeScanError,
		Data: ScanErrorData{Message: message},
	})
}

// reply queues a direct message to this client only, best effort.
func (c *Client) reply(msg Message) {
	c.enqueue(msg)
}

// enqueue queues a message unless the queue is closed or full. Returns
// false when the message was not queued.
func (c *Client) enqueue(msg Message) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

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

// closeSend closes the send queue exactly once. Only the hub calls this,
// when dropping a slow viewer or shutting down.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// writePump pumps messages from the hub to the websocket connection
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
				// The hub closed the channel
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					logging.Error().Err(err).Msg("failed to write close message")
				}
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				logging.Error().Err(err).Msg("failed to write JSON message")
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

// Start begins reading and writing for the client
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}
