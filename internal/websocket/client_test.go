// UAScope - HTTP Traffic Threat Monitoring
// Copyright 2026 UAScope Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uascope/uascope

package websocket

import (
	"context"
	"errors"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/uascope/uascope/internal/models"
)

type fakeIngestor struct {
	lastReq *models.IngestRequest
	err     error
}

func (f *fakeIngestor) Ingest(_ context.Context, req *models.IngestRequest) (*models.IngestResult, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &models.IngestResult{ID: 1, RiskScore: 100}, nil
}

func drainReply(t *testing.T, c *Client) *Message {
	t.Helper()
	select {
	case msg := <-c.send:
		return &msg
	default:
		return nil
	}
}

func TestHandleInlineSubmitSuccess(t *testing.T) {
	hub := NewHub(256, 0)
	ing := &fakeIngestor{}
	client := NewClient(hub, nil, ing)

	payload, _ := json.Marshal(models.IngestRequest{UserAgent: "sqlmap/1.7", URL: "/", TimestampMillis: 1700000000000})
	client.handleInlineSubmit(payload)

	if ing.lastReq == nil {
		t.Fatal("ingestor not called")
	}
	if ing.lastReq.UserAgent != "sqlmap/1.7" {
		t.Errorf("ingested UA = %q", ing.lastReq.UserAgent)
	}
	if msg := drainReply(t, client); msg != nil {
		t.Errorf("unexpected reply %+v on success", msg)
	}
}

func TestHandleInlineSubmitMalformedPayload(t *testing.T) {
	hub := NewHub(256, 0)
	client := NewClient(hub, nil, &fakeIngestor{})

	client.handleInlineSubmit(json.RawMessage(`{not json`))

	msg := drainReply(t, client)
	if msg == nil || msg.Type != MessageTypeScanError {
		t.Fatalf("reply = %+v, want scan_error", msg)
	}
}

func TestHandleInlineSubmitIngestFailure(t *testing.T) {
	hub := NewHub(256, 0)
	client := NewClient(hub, nil, &fakeIngestor{err: errors.New("URL is required")})

	payload, _ := json.Marshal(models.IngestRequest{UserAgent: "curl/8.0"})
	client.handleInlineSubmit(payload)

	msg := drainReply(t, client)
	if msg == nil || msg.Type != MessageTypeScanError {
		t.Fatalf("reply = %+v, want scan_error", msg)
	}
	data, ok := msg.Data.(ScanErrorData)
	if !ok {
		t.Fatalf("reply data has type %T", msg.Data)
	}
	if data.Message != "URL is required" {
		t.Errorf("scan_error message = %q", data.Message)
	}
}

func TestHandleInlineSubmitWithoutIngestor(t *testing.T) {
	hub := NewHub(256, 0)
	client := NewClient(hub, nil, nil)

	payload, _ := json.Marshal(models.IngestRequest{URL: "/"})
	client.handleInlineSubmit(payload)

	msg := drainReply(t, client)
	if msg == nil || msg.Type != MessageTypeScanError {
		t.Fatalf("reply = %+v, want scan_error", msg)
	}
}

func TestReplyAfterViewerDropped(t *testing.T) {
	hub := NewHub(1, 0)
	client := NewClient(hub, nil, nil)
	hub.addClient(client)

	// Fill the single-slot queue, then overflow it so the hub drops the
	// viewer and closes its queue.
	hub.broadcastToClients(Message{Type: MessageTypeUAData})
	hub.broadcastToClients(Message{Type: MessageTypeUAData})

	if hub.GetClientCount() != 0 {
		t.Fatalf("client count = %d, want 0 after drop", hub.GetClientCount())
	}

	// The read pump may still answer a ping after the drop; this must not
	// panic the process.
	client.reply(Message{Type: MessageTypePong})

	if client.enqueue(Message{Type: MessageTypePong}) {
		t.Error("enqueue reported success on a closed queue")
	}
}

func TestReplyAfterHubShutdown(t *testing.T) {
	hub := NewHub(4, 0)
	client := NewClient(hub, nil, nil)
	hub.addClient(client)

	hub.closeAllClients()

	client.reply(Message{Type: MessageTypeScanError, Data: ScanErrorData{Message: "late"}})

	if hub.GetClientCount() != 0 {
		t.Errorf("client count = %d, want 0 after shutdown", hub.GetClientCount())
	}
}

func TestClientIDsIncrease(t *testing.T) {
	hub := NewHub(256, 0)
	a := NewClient(hub, nil, nil)
	b := NewClient(hub, nil, nil)
	if b.ID() <= a.ID() {
		t.Errorf("client IDs not increasing: %d then %d", a.ID(), b.ID())
	}
}
