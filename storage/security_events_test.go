package storage

import (
	"testing"
	"time"
)

func TestLogAndQuerySecurityEvents(t *testing.T) {
	store := newTestStore(t)

	now := nowUnixMilli()
	source := "203.0.113.9:1338"

	if err := store.LogSecurityEvent(SecurityEvent{
		EventType:     EventNonNeighborPacket,
		SourceAddress: &source,
		Details:       `{"bytes":12}`,
		Severity:      SecuritySeverityWarning,
		Timestamp:     now - 1_000,
	}); err != nil {
		t.Fatalf("LogSecurityEvent non-neighbor failed: %v", err)
	}
	if err := store.LogSecurityEvent(SecurityEvent{
		EventType:     EventUnverifiedPing,
		SourceAddress: &source,
		Details:       `{"inner":"ping"}`,
		Severity:      SecuritySeverityCritical,
		Timestamp:     now,
	}); err != nil {
		t.Fatalf("LogSecurityEvent unverified failed: %v", err)
	}

	all, err := store.GetSecurityEvents(SecurityEventFilter{
		SourceAddress: source,
		Limit:         10,
	})
	if err != nil {
		t.Fatalf("GetSecurityEvents all failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 security events, got %d", len(all))
	}
	if all[0].EventType != EventUnverifiedPing {
		t.Fatalf("expected newest event type unverified_ping, got %q", all[0].EventType)
	}
	if all[1].EventType != EventNonNeighborPacket {
		t.Fatalf("expected older event type non_neighbor_packet, got %q", all[1].EventType)
	}

	filtered, err := store.GetSecurityEvents(SecurityEventFilter{
		EventType:     EventNonNeighborPacket,
		SourceAddress: source,
		Severity:      SecuritySeverityWarning,
		Limit:         10,
	})
	if err != nil {
		t.Fatalf("GetSecurityEvents filtered failed: %v", err)
	}
	if len(filtered) != 1 {
		t.Fatalf("expected 1 filtered security event, got %d", len(filtered))
	}
	if filtered[0].Details != `{"bytes":12}` {
		t.Fatalf("unexpected filtered event details: %q", filtered[0].Details)
	}
}

func TestSecurityEventRetentionPrunesOldRows(t *testing.T) {
	store := newTestStore(t)
	store.SetRetention(1 * time.Second)

	now := nowUnixMilli()

	if err := store.LogSecurityEvent(SecurityEvent{
		EventType: "old_event",
		Details:   `{"state":"old"}`,
		Severity:  SecuritySeverityInfo,
		Timestamp: now - 10_000,
	}); err != nil {
		t.Fatalf("LogSecurityEvent old_event failed: %v", err)
	}
	if err := store.LogSecurityEvent(SecurityEvent{
		EventType: "new_event",
		Details:   `{"state":"new"}`,
		Severity:  SecuritySeverityInfo,
		Timestamp: now,
	}); err != nil {
		t.Fatalf("LogSecurityEvent new_event failed: %v", err)
	}

	events, err := store.GetSecurityEvents(SecurityEventFilter{Limit: 10})
	if err != nil {
		t.Fatalf("GetSecurityEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event after retention prune, got %d", len(events))
	}
	if events[0].EventType != "new_event" {
		t.Fatalf("expected retained event type new_event, got %q", events[0].EventType)
	}
}

func TestLogSecurityEventRejectsInvalidInput(t *testing.T) {
	store := newTestStore(t)

	if err := store.LogSecurityEvent(SecurityEvent{}); err == nil {
		t.Fatalf("expected missing event type to fail")
	}
	if err := store.LogSecurityEvent(SecurityEvent{EventType: "x", Severity: "loud"}); err == nil {
		t.Fatalf("expected invalid severity to fail")
	}
	if err := store.LogSecurityEvent(SecurityEvent{EventType: "x", Details: "{not json"}); err == nil {
		t.Fatalf("expected invalid details to fail")
	}
}
