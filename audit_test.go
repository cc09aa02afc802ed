package geogate

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestDispatcherDeliversToSink(t *testing.T) {
	sink := NewChannelSink(8)
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 8}, sink)

	d.Emit(context.Background(), AuditEvent{EventType: "login_allowed", AccountID: "acct-1", Success: true})

	select {
	case event := <-sink.Events():
		if event.EventType != "login_allowed" || event.AccountID != "acct-1" {
			t.Fatalf("unexpected event: %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for audit event")
	}

	d.Close()
}

func TestDispatcherDrainsOnClose(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 16}, sink)

	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: "logout_session", Success: true})
	}
	d.Close()

	lines := bytes.Count(buf.Bytes(), []byte("\n"))
	if lines != 5 {
		t.Fatalf("expected 5 JSON lines after drain, got %d", lines)
	}

	var event AuditEvent
	first, _, _ := bytes.Cut(buf.Bytes(), []byte("\n"))
	if err := json.Unmarshal(first, &event); err != nil {
		t.Fatalf("unmarshal of emitted line failed: %v", err)
	}
	if event.EventType != "logout_session" {
		t.Fatalf("unexpected event type %q", event.EventType)
	}
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := newAuditDispatcher(AuditConfig{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("disabled config must produce a nil dispatcher")
	}

	// Nil receivers must be safe: the engine calls these unconditionally.
	d.Emit(context.Background(), AuditEvent{EventType: "login_allowed"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher reports zero drops")
	}
}

func TestDispatcherEmitAfterCloseIsNoOp(t *testing.T) {
	sink := NewChannelSink(1)
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1}, sink)
	d.Close()

	d.Emit(context.Background(), AuditEvent{EventType: "login_allowed"})

	select {
	case event := <-sink.Events():
		t.Fatalf("unexpected event after close: %+v", event)
	default:
	}
}
