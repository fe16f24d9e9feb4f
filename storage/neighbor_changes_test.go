package storage

import (
	"errors"
	"testing"
)

func TestLogAndQueryNeighborChanges(t *testing.T) {
	store := newTestStore(t)
	now := nowUnixMilli()

	changes := []NeighborChange{
		{NeighborAddress: "10.0.0.1:1338", Field: FieldUUID, NewValue: "uuid-a", Timestamp: now - 2_000},
		{NeighborAddress: "10.0.0.1:1338", Field: FieldUUID, OldValue: "uuid-a", NewValue: "uuid-b", Timestamp: now - 1_000},
		{NeighborAddress: "10.0.0.2:1338", Field: FieldReportIxiVersion, NewValue: "1.0", Timestamp: now},
	}
	for _, change := range changes {
		if err := store.LogNeighborChange(change); err != nil {
			t.Fatalf("LogNeighborChange failed: %v", err)
		}
	}

	got, err := store.GetNeighborChanges(NeighborChangeFilter{NeighborAddress: "10.0.0.1:1338"})
	if err != nil {
		t.Fatalf("GetNeighborChanges failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 changes, got %d", len(got))
	}
	if got[0].NewValue != "uuid-b" || got[0].OldValue != "uuid-a" {
		t.Fatalf("unexpected newest change: %+v", got[0])
	}

	versions, err := store.GetNeighborChanges(NeighborChangeFilter{Field: FieldReportIxiVersion})
	if err != nil {
		t.Fatalf("GetNeighborChanges by field failed: %v", err)
	}
	if len(versions) != 1 || versions[0].NeighborAddress != "10.0.0.2:1338" {
		t.Fatalf("unexpected version changes: %+v", versions)
	}
}

func TestLogNeighborChangeRejectsInvalidInput(t *testing.T) {
	store := newTestStore(t)

	if err := store.LogNeighborChange(NeighborChange{Field: FieldUUID, NewValue: "x"}); err == nil {
		t.Fatalf("expected missing address to fail")
	}
	if err := store.LogNeighborChange(NeighborChange{NeighborAddress: "a:1", Field: "name", NewValue: "x"}); err == nil {
		t.Fatalf("expected unknown field to fail")
	}
	if err := store.LogNeighborChange(NeighborChange{NeighborAddress: "a:1", Field: FieldUUID}); err == nil {
		t.Fatalf("expected empty new value to fail")
	}
	if _, err := store.GetNeighborChanges(NeighborChangeFilter{Field: "name"}); err == nil {
		t.Fatalf("expected unknown filter field to fail")
	}
}

func TestRecordLocalUUIDHistory(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.CurrentLocalUUID(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on empty history, got %v", err)
	}

	if err := store.RecordLocalUUID("proposed", UUIDOriginMetadataFile); err != nil {
		t.Fatalf("RecordLocalUUID failed: %v", err)
	}
	if err := store.RecordLocalUUID("assigned", UUIDOriginRCS); err != nil {
		t.Fatalf("RecordLocalUUID failed: %v", err)
	}
	if err := store.RecordLocalUUID("assigned", UUIDOriginRCS); err != nil {
		t.Fatalf("RecordLocalUUID repeat failed: %v", err)
	}

	current, err := store.CurrentLocalUUID()
	if err != nil {
		t.Fatalf("CurrentLocalUUID failed: %v", err)
	}
	if current.UUID != "assigned" || current.Origin != UUIDOriginRCS {
		t.Fatalf("unexpected current uuid: %+v", current)
	}

	var rows int
	if err := store.db.QueryRow("SELECT COUNT(1) FROM local_uuid_history").Scan(&rows); err != nil {
		t.Fatalf("count history: %v", err)
	}
	if rows != 2 {
		t.Fatalf("expected repeat to be a no-op, got %d rows", rows)
	}

	if err := store.RecordLocalUUID("x", "guess"); err == nil {
		t.Fatalf("expected invalid origin to fail")
	}
}
