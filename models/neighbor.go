package models

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"sync"
)

// Neighbor is one statically configured peer and the identity learned from it.
type Neighbor struct {
	reportAddress Address

	mu               sync.RWMutex
	reportIxiVersion string
	uuid             string
	publicKey        ed25519.PublicKey
	metadataCount    uint64
	pingCount        uint64
}

// NeighborSnapshot is a point-in-time copy of a Neighbor.
type NeighborSnapshot struct {
	ReportAddress    string `json:"report_address"`
	ReportIxiVersion string `json:"report_ixi_version,omitempty"`
	UUID             string `json:"uuid,omitempty"`
	PublicKey        string `json:"public_key,omitempty"`
	MetadataCount    uint64 `json:"metadata_count"`
	PingCount        uint64 `json:"ping_count"`
}

// NewNeighbor creates a neighbor reporting from addr.
func NewNeighbor(addr Address) *Neighbor {
	return &Neighbor{reportAddress: addr}
}

// ReportAddress returns the configured report endpoint.
func (n *Neighbor) ReportAddress() Address {
	return n.reportAddress
}

// MatchesExact reports whether candidate has the neighbor's host and port.
func (n *Neighbor) MatchesExact(candidate Address) bool {
	return n.reportAddress.Equal(candidate)
}

// MatchesHost reports whether candidate has the neighbor's host, ignoring port.
func (n *Neighbor) MatchesHost(candidate Address) bool {
	return n.reportAddress.SameHost(candidate)
}

// ReportIxiVersion returns the last announced version, or "".
func (n *Neighbor) ReportIxiVersion() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.reportIxiVersion
}

// UUID returns the last announced UUID, or "".
func (n *Neighbor) UUID() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.uuid
}

// PublicKey returns a copy of the learned key, or nil if none is known yet.
func (n *Neighbor) PublicKey() ed25519.PublicKey {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.publicKey == nil {
		return nil
	}
	return append(ed25519.PublicKey(nil), n.publicKey...)
}

// MetadataCount returns the number of metadata payloads received.
func (n *Neighbor) MetadataCount() uint64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.metadataCount
}

// PingCount returns the number of signed pings attributed to the neighbor.
func (n *Neighbor) PingCount() uint64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.pingCount
}

// SetReportIxiVersion stores version and returns the previous value and whether
// it changed. An empty version is ignored.
func (n *Neighbor) SetReportIxiVersion(version string) (previous string, changed bool) {
	if version == "" {
		return n.ReportIxiVersion(), false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	previous = n.reportIxiVersion
	if previous == version {
		return previous, false
	}
	n.reportIxiVersion = version
	return previous, true
}

// SetUUID stores uuid and returns the previous value and whether it changed.
// An empty uuid is ignored.
func (n *Neighbor) SetUUID(uuid string) (previous string, changed bool) {
	if uuid == "" {
		return n.UUID(), false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	previous = n.uuid
	if previous == uuid {
		return previous, false
	}
	n.uuid = uuid
	return previous, true
}

// SetPublicKey stores key and returns the previous key and whether it changed.
// Keys that are not Ed25519-sized are ignored.
func (n *Neighbor) SetPublicKey(key ed25519.PublicKey) (previous ed25519.PublicKey, changed bool) {
	if len(key) != ed25519.PublicKeySize {
		return n.PublicKey(), false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	previous = n.publicKey
	if bytes.Equal(previous, key) {
		return previous, false
	}
	n.publicKey = append(ed25519.PublicKey(nil), key...)
	return previous, true
}

// IncrementMetadataCount records one metadata payload and returns the new count.
func (n *Neighbor) IncrementMetadataCount() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.metadataCount++
	return n.metadataCount
}

// IncrementPingCount records one signed ping and returns the new count.
func (n *Neighbor) IncrementPingCount() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pingCount++
	return n.pingCount
}

// Snapshot copies the neighbor state under a single read lock.
func (n *Neighbor) Snapshot() NeighborSnapshot {
	n.mu.RLock()
	defer n.mu.RUnlock()

	snap := NeighborSnapshot{
		ReportAddress:    n.reportAddress.String(),
		ReportIxiVersion: n.reportIxiVersion,
		UUID:             n.uuid,
		MetadataCount:    n.metadataCount,
		PingCount:        n.pingCount,
	}
	if n.publicKey != nil {
		snap.PublicKey = base64.StdEncoding.EncodeToString(n.publicKey)
	}
	return snap
}
