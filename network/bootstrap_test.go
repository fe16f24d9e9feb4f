package network

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBootstrapReceivesUUIDFromRCS(t *testing.T) {
	h := newReceiverHarness(t, "", nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = h.receiver.Run(ctx)
	}()

	rcsDone := make(chan error, 1)
	go func() {
		if err := h.rcsConn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
			rcsDone <- err
			return
		}
		buf := make([]byte, MaxDatagramSize)
		n, from, err := h.rcsConn.ReadFromUDPAddrPort(buf)
		if err != nil {
			rcsDone <- err
			return
		}
		payload, err := Deserialize(string(buf[:n]))
		if err != nil {
			rcsDone <- err
			return
		}
		if _, ok := payload.(MetadataPayload); !ok {
			rcsDone <- errors.New("expected metadata announcement")
			return
		}
		answer, err := Serialize(UUIDPayload{UUID: "assigned"})
		if err != nil {
			rcsDone <- err
			return
		}
		_, err = h.rcsConn.WriteToUDPAddrPort([]byte(answer), from)
		rcsDone <- err
	}()

	sender := h.receiver.sender
	uuid, err := Bootstrap(ctx, sender, h.identity, h.rcs, MetadataPayload{ReportIxiVersion: "1.0", UUID: "proposed"}, 2*time.Second)
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	if uuid != "assigned" {
		t.Fatalf("expected assigned uuid, got %q", uuid)
	}
	if err := <-rcsDone; err != nil {
		t.Fatalf("fake RCS failed: %v", err)
	}
	if calls := h.store.Calls(); len(calls) != 1 || calls[0] != "assigned" {
		t.Fatalf("expected assigned uuid to be persisted once, got %v", calls)
	}
}

func TestBootstrapTimesOut(t *testing.T) {
	h := newReceiverHarness(t, "", nil, nil)

	start := time.Now()
	_, err := Bootstrap(context.Background(), h.receiver.sender, h.identity, h.rcs,
		MetadataPayload{ReportIxiVersion: "1.0", UUID: "proposed"}, 50*time.Millisecond)
	if !errors.Is(err, ErrBootstrapTimeout) {
		t.Fatalf("expected ErrBootstrapTimeout, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("expected bounded wait, took %s", time.Since(start))
	}
	if h.identity.Waiters() != 0 {
		t.Fatalf("expected waiter to be released on timeout, got %d", h.identity.Waiters())
	}
}

func TestBootstrapHonoursContext(t *testing.T) {
	h := newReceiverHarness(t, "", nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Bootstrap(ctx, h.receiver.sender, h.identity, h.rcs,
		MetadataPayload{ReportIxiVersion: "1.0", UUID: "proposed"}, time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSenderRejectsOversizedPayload(t *testing.T) {
	h := newReceiverHarness(t, "", nil, nil)

	nonce := make([]byte, MaxDatagramSize)
	for i := range nonce {
		nonce[i] = 'n'
	}
	err := h.receiver.sender.SendTo(PingPayload{Nonce: string(nonce)}, h.rcs)
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}
