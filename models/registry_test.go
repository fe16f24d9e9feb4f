package models

import (
	"crypto/ed25519"
	"crypto/rand"
	"sync"
	"testing"
)

func mustAddress(t *testing.T, text string) Address {
	t.Helper()

	addr, err := ParseAddress(text)
	if err != nil {
		t.Fatalf("parse %q: %v", text, err)
	}
	return addr
}

func TestAttributePrefersExactMatchOverEarlierHostMatch(t *testing.T) {
	registry := NewRegistry([]Address{
		mustAddress(t, "10.0.0.1:6000"),
		mustAddress(t, "10.0.0.1:5000"),
	})

	got := registry.Attribute(mustAddress(t, "10.0.0.1:5000"))
	if got == nil {
		t.Fatalf("expected a neighbor to be attributed")
	}
	if got.ReportAddress().Port() != 5000 {
		t.Fatalf("expected exact match on port 5000, got %s", got.ReportAddress())
	}
}

func TestAttributeFallsBackToHostMatch(t *testing.T) {
	registry := NewRegistry([]Address{
		mustAddress(t, "10.0.0.1:5000"),
		mustAddress(t, "10.0.0.2:5000"),
	})

	got := registry.Attribute(mustAddress(t, "10.0.0.2:41234"))
	if got == nil || got.ReportAddress().Host() != "10.0.0.2" {
		t.Fatalf("expected host-only match on 10.0.0.2, got %v", got)
	}

	if registry.Attribute(mustAddress(t, "10.0.0.9:5000")) != nil {
		t.Fatalf("expected no attribution for an unknown host")
	}
}

func TestNeighborSettersIgnoreEmptyValues(t *testing.T) {
	n := NewNeighbor(mustAddress(t, "10.0.0.1:5000"))

	if _, changed := n.SetUUID("abc"); !changed {
		t.Fatalf("expected first uuid to be a change")
	}
	if previous, changed := n.SetUUID(""); changed || previous != "abc" {
		t.Fatalf("expected empty uuid to be ignored, got previous=%q changed=%v", previous, changed)
	}
	if n.UUID() != "abc" {
		t.Fatalf("expected uuid to remain abc, got %q", n.UUID())
	}
	if _, changed := n.SetUUID("abc"); changed {
		t.Fatalf("expected identical uuid not to be a change")
	}

	if _, changed := n.SetPublicKey(ed25519.PublicKey{1, 2, 3}); changed {
		t.Fatalf("expected short public key to be ignored")
	}
	if n.PublicKey() != nil {
		t.Fatalf("expected no public key to be stored")
	}
}

func TestDuplicateKeysGroupsNeighborsSharingAKey(t *testing.T) {
	shared, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	other, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	registry := NewRegistry([]Address{
		mustAddress(t, "10.0.0.1:5000"),
		mustAddress(t, "10.0.0.2:5000"),
		mustAddress(t, "10.0.0.3:5000"),
	})
	all := registry.All()
	all[0].SetPublicKey(shared)
	all[1].SetPublicKey(other)
	all[2].SetPublicKey(shared)

	groups := registry.DuplicateKeys()
	if len(groups) != 1 || len(groups[0]) != 2 {
		t.Fatalf("expected one group of two neighbors, got %v", groups)
	}
	if groups[0][0] != all[0] || groups[0][1] != all[2] {
		t.Fatalf("expected group to keep registry order")
	}
}

func TestNeighborCountersAreSafeForConcurrentUse(t *testing.T) {
	n := NewNeighbor(mustAddress(t, "10.0.0.1:5000"))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				n.IncrementPingCount()
				n.IncrementMetadataCount()
				_ = n.Snapshot()
			}
		}()
	}
	wg.Wait()

	if n.PingCount() != 1600 || n.MetadataCount() != 1600 {
		t.Fatalf("expected 1600/1600, got ping=%d metadata=%d", n.PingCount(), n.MetadataCount())
	}
}
