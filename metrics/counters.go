package metrics

import (
	"sync/atomic"
	"time"
)

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	GeneratedAt        time.Time `json:"generated_at"`
	PacketsReceived    uint64    `json:"packets_received"`
	NonNeighborInvalid uint64    `json:"non_neighbor_invalid"`
	NonNeighborPing    uint64    `json:"non_neighbor_ping"`
	Relayed            uint64    `json:"relayed"`
	RelaySkipped       uint64    `json:"relay_skipped"`
}

// Counters is the set of anomalous-traffic counters shared by the receiver and
// whoever reports them. Create one per receiver.
type Counters struct {
	packetsReceived    atomic.Uint64
	nonNeighborInvalid atomic.Uint64
	nonNeighborPing    atomic.Uint64
	relayed            atomic.Uint64
	relaySkipped       atomic.Uint64
}

// New returns a zeroed counter set.
func New() *Counters {
	return &Counters{}
}

// IncPacketsReceived counts every datagram read from the socket.
func (c *Counters) IncPacketsReceived() {
	c.packetsReceived.Add(1)
}

// IncNonNeighborInvalid counts a packet from a source that is neither a
// neighbor nor the collector.
func (c *Counters) IncNonNeighborInvalid() {
	c.nonNeighborInvalid.Add(1)
}

// IncNonNeighborPing counts a signed ping no neighbor key could verify.
func (c *Counters) IncNonNeighborPing() {
	c.nonNeighborPing.Add(1)
}

// IncRelayed counts a ping report sent to the collector.
func (c *Counters) IncRelayed() {
	c.relayed.Add(1)
}

// IncRelaySkipped counts a ping that could not be reported because the local
// UUID is not known yet.
func (c *Counters) IncRelaySkipped() {
	c.relaySkipped.Add(1)
}

// NonNeighborInvalid returns the unattributed packet count.
func (c *Counters) NonNeighborInvalid() uint64 {
	return c.nonNeighborInvalid.Load()
}

// NonNeighborPing returns the unverified signed ping count.
func (c *Counters) NonNeighborPing() uint64 {
	return c.nonNeighborPing.Load()
}

// Snapshot copies all counters.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		GeneratedAt:        time.Now().UTC(),
		PacketsReceived:    c.packetsReceived.Load(),
		NonNeighborInvalid: c.nonNeighborInvalid.Load(),
		NonNeighborPing:    c.nonNeighborPing.Load(),
		Relayed:            c.relayed.Load(),
		RelaySkipped:       c.relaySkipped.Load(),
	}
}
