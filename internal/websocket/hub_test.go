// UAScope - HTTP Traffic Threat Monitoring
// Copyright 2026 UAScope Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uascope/uascope

package websocket

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/uascope/uascope/internal/logging"
	"github.com/uascope/uascope/internal/models"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "info",
		Format: "console",
		Output: io.Discard,
	})
}

// setupHub creates and starts a hub for testing, canceled at cleanup.
func setupHub(t *testing.T, ratePerSec int) *Hub {
	t.Helper()

	hub := NewHub(256, ratePerSec)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.RunWithContext(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(10 * time.Millisecond)
	return hub
}

// createTestClient creates a mock client without a real connection.
func createTestClient(hub *Hub) *Client {
	return &Client{id: clientIDCounter.Add(1), hub: hub, conn: nil, send: make(chan Message, hub.bufferSize)}
}

// registerClient registers a client and waits for registration to land.
func registerClient(hub *Hub, client *Client) {
	hub.Register <- client
	time.Sleep(20 * time.Millisecond)
}

func testLiveEvent(id int64) models.LiveEvent {
	return models.LiveEvent{
		ID:              id,
		UserAgent:       "sqlmap/1.7",
		IsHTTP:          true,
		RiskScore:       100,
		TimestampMillis: time.Now().UnixMilli(),
	}
}

func TestNewHub(t *testing.T) {
	hub := NewHub(128, 0)

	checks := []struct {
		name   string
		check  bool
		errMsg string
	}{
		{"clients map", hub.clients != nil, "clients map not initialized"},
		{"broadcast channel", hub.broadcast != nil, "broadcast channel not initialized"},
		{"Register channel", hub.Register != nil, "Register channel not initialized"},
		{"Unregister channel", hub.Unregister != nil, "Unregister channel not initialized"},
		{"empty clients", len(hub.clients) == 0, "clients map should be empty"},
		{"no limiter at rate 0", hub.limiter == nil, "limiter should be nil for unlimited rate"},
	}

	for _, c := range checks {
		if !c.check {
			t.Error(c.errMsg)
		}
	}

	if limited := NewHub(128, 50); limited.limiter == nil {
		t.Error("limiter not created for positive rate")
	}
}

func TestHubBufferSizeFallback(t *testing.T) {
	hub := NewHub(0, 0)
	if hub.bufferSize != 256 {
		t.Errorf("bufferSize = %d, want 256 fallback", hub.bufferSize)
	}
}

func TestHubGetClientCount(t *testing.T) {
	hub := NewHub(256, 0)

	if hub.GetClientCount() != 0 {
		t.Errorf("Expected 0 clients initially, got %d", hub.GetClientCount())
	}

	for i := 0; i < 5; i++ {
		hub.clients[createTestClient(hub)] = true
	}

	if hub.GetClientCount() != 5 {
		t.Errorf("Expected 5 clients, got %d", hub.GetClientCount())
	}
}

func TestHubPublishDeliversToAllViewers(t *testing.T) {
	hub := setupHub(t, 0)

	first := createTestClient(hub)
	second := createTestClient(hub)
	registerClient(hub, first)
	registerClient(hub, second)

	if !hub.Publish(testLiveEvent(1)) {
		t.Fatal("Publish returned false")
	}

	for _, client := range []*Client{first, second} {
		select {
		case msg := <-client.send:
			if msg.Type != MessageTypeUAData {
				t.Errorf("message type = %q, want %q", msg.Type, MessageTypeUAData)
			}
			event, ok := msg.Data.(models.LiveEvent)
			if !ok {
				t.Fatalf("message data has type %T", msg.Data)
			}
			if event.ID != 1 || event.RiskScore != 100 {
				t.Errorf("event = %+v", event)
			}
		case <-time.After(time.Second):
			t.Fatal("viewer did not receive broadcast")
		}
	}
}

func TestHubRegisterUnregister(t *testing.T) {
	hub := setupHub(t, 0)

	client := createTestClient(hub)
	registerClient(hub, client)
	if hub.GetClientCount() != 1 {
		t.Fatalf("client count = %d after register, want 1", hub.GetClientCount())
	}

	hub.Unregister <- client
	time.Sleep(20 * time.Millisecond)
	if hub.GetClientCount() != 0 {
		t.Errorf("client count = %d after unregister, want 0", hub.GetClientCount())
	}

	// The send channel must be closed so writePump terminates.
	select {
	case _, ok := <-client.send:
		if ok {
			t.Error("expected closed send channel")
		}
	default:
		t.Error("send channel not closed after unregister")
	}
}

func TestHubDropsViewerWithFullQueue(t *testing.T) {
	hub := setupHub(t, 0)

	stuck := &Client{id: clientIDCounter.Add(1), hub: hub, send: make(chan Message)} // unbuffered, never drained
	healthy := createTestClient(hub)
	registerClient(hub, stuck)
	registerClient(hub, healthy)

	hub.Publish(testLiveEvent(1))
	time.Sleep(50 * time.Millisecond)

	if hub.GetClientCount() != 1 {
		t.Errorf("client count = %d, want 1 after dropping stuck viewer", hub.GetClientCount())
	}

	select {
	case msg := <-healthy.send:
		if msg.Type != MessageTypeUAData {
			t.Errorf("healthy viewer got %q message", msg.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("healthy viewer did not receive broadcast")
	}
}

func TestHubThrottleSuppressesExcess(t *testing.T) {
	hub := setupHub(t, 1) // 1 event/sec with burst 1

	client := createTestClient(hub)
	registerClient(hub, client)

	if !hub.Publish(testLiveEvent(1)) {
		t.Fatal("first publish should pass the throttle")
	}
	if hub.Publish(testLiveEvent(2)) {
		t.Error("second immediate publish should be throttled")
	}
}

func TestHubShutdownClosesClients(t *testing.T) {
	hub := NewHub(256, 0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- hub.RunWithContext(ctx)
	}()
	time.Sleep(10 * time.Millisecond)

	client := createTestClient(hub)
	registerClient(hub, client)

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("RunWithContext returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("hub did not stop after cancel")
	}

	if hub.GetClientCount() != 0 {
		t.Errorf("client count = %d after shutdown, want 0", hub.GetClientCount())
	}
}

func TestBroadcastJSONWithoutClients(t *testing.T) {
	hub := setupHub(t, 0)
	hub.BroadcastJSON("test_type", map[string]interface{}{"k": "v"})
	time.Sleep(10 * time.Millisecond)
}
