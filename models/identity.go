package models

import (
	"context"
	"crypto/ed25519"
	"sync"
)

// Identity holds the local node's UUID and signing key.
//
// The UUID is unknown until it is either restored from the metadata file or
// assigned by the collector during the bootstrap handshake.
type Identity struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	mu      sync.Mutex
	uuid    string
	known   chan struct{}
	waiters map[uint64]chan string
	nextID  uint64
}

// NewIdentity creates an identity. uuid may be empty.
func NewIdentity(uuid string, privateKey ed25519.PrivateKey) *Identity {
	id := &Identity{
		privateKey: privateKey,
		known:      make(chan struct{}),
		waiters:    make(map[uint64]chan string),
	}
	if len(privateKey) == ed25519.PrivateKeySize {
		id.publicKey = privateKey.Public().(ed25519.PublicKey)
	}
	if uuid != "" {
		id.uuid = uuid
		close(id.known)
	}
	return id
}

// PrivateKey returns the signing key.
func (id *Identity) PrivateKey() ed25519.PrivateKey { return id.privateKey }

// PublicKey returns the public half of the signing key.
func (id *Identity) PublicKey() ed25519.PublicKey { return id.publicKey }

// UUID returns the local UUID and whether one is known.
func (id *Identity) UUID() (string, bool) {
	id.mu.Lock()
	defer id.mu.Unlock()
	return id.uuid, id.uuid != ""
}

// SetUUID overwrites the UUID and returns the previous value. An empty uuid is
// ignored. Waiters registered through Expect are not released; see Release.
func (id *Identity) SetUUID(uuid string) string {
	id.mu.Lock()
	defer id.mu.Unlock()

	previous := id.uuid
	if uuid == "" {
		return previous
	}
	id.uuid = uuid
	return previous
}

// Release hands uuid to every waiter registered through Expect and unblocks
// WaitUUID.
func (id *Identity) Release(uuid string) {
	id.mu.Lock()
	defer id.mu.Unlock()

	select {
	case <-id.known:
	default:
		close(id.known)
	}
	for key, ch := range id.waiters {
		ch <- uuid
		delete(id.waiters, key)
	}
}

// Expect registers a one-shot waiter for the next Release. Register before
// sending the request that triggers it; cancel releases the slot if the caller
// gives up.
func (id *Identity) Expect() (<-chan string, func()) {
	ch := make(chan string, 1)

	id.mu.Lock()
	key := id.nextID
	id.nextID++
	id.waiters[key] = ch
	id.mu.Unlock()

	cancel := func() {
		id.mu.Lock()
		delete(id.waiters, key)
		id.mu.Unlock()
	}
	return ch, cancel
}

// Waiters returns the number of registered Expect waiters.
func (id *Identity) Waiters() int {
	id.mu.Lock()
	defer id.mu.Unlock()
	return len(id.waiters)
}

// WaitUUID blocks until a UUID was restored at construction or released, or
// ctx is done.
func (id *Identity) WaitUUID(ctx context.Context) (string, error) {
	select {
	case <-id.known:
		uuid, _ := id.UUID()
		return uuid, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
