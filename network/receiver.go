package network

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"reportixi/crypto"
	"reportixi/metrics"
	"reportixi/models"
	"reportixi/storage"
)

// UUIDStore persists the local UUID assigned by the RCS.
type UUIDStore interface {
	Store(uuid string) error
}

// Journal records neighbor churn and anomalous traffic. *storage.Store
// implements it.
type Journal interface {
	LogNeighborChange(change storage.NeighborChange) error
	LogSecurityEvent(event storage.SecurityEvent) error
	RecordLocalUUID(uuid, origin string) error
}

// ReceiverOptions configures a Receiver. Registry, Identity, Counters,
// UUIDStore and Sender are required.
type ReceiverOptions struct {
	Registry  *models.Registry
	Identity  *models.Identity
	RCS       models.Address
	Counters  *metrics.Counters
	UUIDStore UUIDStore
	Sender    *Sender
	Logger    *zap.Logger

	// Journal is optional.
	Journal Journal
	// EventRate bounds journal writes for unattributed traffic. Critical
	// events are always written.
	EventRate  rate.Limit
	EventBurst int

	// OnPersistError is called when the UUID store fails. The default logs
	// at fatal level, which exits the process.
	OnPersistError func(err error)
}

const (
	defaultEventRate  = rate.Limit(1)
	defaultEventBurst = 10
)

// Receiver reads datagrams from one socket, attributes them to a neighbor or
// the RCS and dispatches the decoded payload.
type Receiver struct {
	conn     *net.UDPConn
	registry *models.Registry
	identity *models.Identity
	rcs      models.Address
	counters *metrics.Counters
	store    UUIDStore
	sender   *Sender
	journal  Journal
	limiter  *rate.Limiter
	logger   *zap.Logger

	onPersistError func(error)

	running   atomic.Bool
	closed    chan struct{}
	closeOnce sync.Once
}

// NewReceiver builds a receiver reading from conn. It does not start reading
// until Run is called.
func NewReceiver(conn *net.UDPConn, opts ReceiverOptions) (*Receiver, error) {
	if conn == nil {
		return nil, errors.New("network: receiver requires a socket")
	}
	if opts.Registry == nil || opts.Identity == nil || opts.Counters == nil {
		return nil, errors.New("network: receiver requires registry, identity and counters")
	}
	if opts.UUIDStore == nil || opts.Sender == nil {
		return nil, errors.New("network: receiver requires uuid store and sender")
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("receiver")

	if opts.EventRate <= 0 {
		opts.EventRate = defaultEventRate
	}
	if opts.EventBurst <= 0 {
		opts.EventBurst = defaultEventBurst
	}
	onPersistError := opts.OnPersistError
	if onPersistError == nil {
		onPersistError = func(err error) {
			logger.Fatal("could not persist uuid", zap.Error(err))
		}
	}

	return &Receiver{
		conn:           conn,
		registry:       opts.Registry,
		identity:       opts.Identity,
		rcs:            opts.RCS,
		counters:       opts.Counters,
		store:          opts.UUIDStore,
		sender:         opts.Sender,
		journal:        opts.Journal,
		limiter:        rate.NewLimiter(opts.EventRate, opts.EventBurst),
		logger:         logger,
		onPersistError: onPersistError,
		closed:         make(chan struct{}),
	}, nil
}

// Running reports whether Run is inside its receive loop.
func (r *Receiver) Running() bool {
	return r.running.Load()
}

// Run blocks receiving datagrams until ctx is done or Shutdown is called.
// Per-packet failures never end the loop.
func (r *Receiver) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return errors.New("network: receiver already running")
	}
	defer r.running.Store(false)

	select {
	case <-r.closed:
		return nil
	default:
	}

	stop := context.AfterFunc(ctx, func() { _ = r.Shutdown() })
	defer stop()

	buf := make([]byte, MaxDatagramSize)
	for {
		n, source, err := r.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			select {
			case <-r.closed:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("network: socket closed: %w", err)
			}
			r.logger.Error("receive failed", zap.Error(err))
			continue
		}
		r.handlePacket(source, buf[:n])
	}
}

// Shutdown stops the receive loop by closing the socket. It is safe to call
// more than once.
func (r *Receiver) Shutdown() error {
	var closeErr error
	r.closeOnce.Do(func() {
		close(r.closed)
		closeErr = r.conn.Close()
	})
	return closeErr
}

func (r *Receiver) handlePacket(from netip.AddrPort, data []byte) {
	r.counters.IncPacketsReceived()
	source := models.AddressFromAddrPort(from)
	r.logger.Debug("processing packet", zap.Stringer("source", source), zap.Int("bytes", len(data)))

	neighbor := r.registry.Attribute(source)
	fromRCS := !r.rcs.IsZero() && r.rcs.Equal(source)
	if neighbor == nil && !fromRCS {
		r.counters.IncNonNeighborInvalid()
		r.logger.Warn("received packet from unknown address", zap.Stringer("source", source))
		r.recordEvent(storage.EventNonNeighborPacket, storage.SecuritySeverityWarning, source, map[string]any{
			"bytes": len(data),
		})
		return
	}

	payload, err := Deserialize(string(data))
	if err != nil {
		if neighbor != nil {
			r.logger.Info("received invalid payload from neighbor",
				zap.Stringer("neighbor", neighbor.ReportAddress()), zap.Error(err))
		} else {
			r.logger.Info("received invalid payload from RCS", zap.Error(err))
		}
		r.recordEvent(storage.EventInvalidPayload, storage.SecuritySeverityInfo, source, map[string]any{
			"error": err.Error(),
		})
		return
	}

	switch p := payload.(type) {
	case MetadataPayload:
		if neighbor == nil {
			r.logger.Debug("dropping metadata payload from RCS")
			return
		}
		r.processMetadata(neighbor, p)
	case UUIDPayload:
		if !fromRCS {
			r.logger.Debug("dropping uuid payload from neighbor", zap.Stringer("neighbor", neighbor.ReportAddress()))
			return
		}
		r.processUUID(p)
	case SignedPayload:
		r.processSigned(source, p)
	case PingPayload, SilentPingPayload, ReceivedPingPayload:
		r.logger.Debug("dropping unsigned payload",
			zap.String("type", string(p.Type())), zap.Stringer("source", source))
	default:
		r.logger.Debug("dropping unhandled payload", zap.String("type", string(payload.Type())))
	}
}

func (r *Receiver) processMetadata(neighbor *models.Neighbor, metadata MetadataPayload) {
	addr := neighbor.ReportAddress()
	r.logger.Debug("received metadata", zap.Stringer("neighbor", addr))

	if previous, changed := neighbor.SetReportIxiVersion(metadata.ReportIxiVersion); changed {
		r.logger.Info("neighbor operates Report.ixi version",
			zap.Stringer("neighbor", addr), zap.String("version", metadata.ReportIxiVersion))
		r.recordChange(addr, storage.FieldReportIxiVersion, previous, metadata.ReportIxiVersion)
	}
	if previous, changed := neighbor.SetUUID(metadata.UUID); changed {
		r.logger.Info("received new uuid from neighbor",
			zap.Stringer("neighbor", addr), zap.String("uuid", metadata.UUID))
		r.recordChange(addr, storage.FieldUUID, previous, metadata.UUID)
	}
	if previous, changed := neighbor.SetPublicKey(metadata.PublicKey); changed {
		r.logger.Info("received new public key from neighbor",
			zap.Stringer("neighbor", addr), zap.String("fingerprint", crypto.KeyFingerprint(metadata.PublicKey)))
		r.recordChange(addr, storage.FieldPublicKey, crypto.EncodePublicKey(previous), crypto.EncodePublicKey(metadata.PublicKey))
		r.warnDuplicateKeys()
	}

	neighbor.IncrementMetadataCount()
}

// processUUID overwrites, persists and logs the UUID before releasing the
// bootstrap waiters. Waiters stay blocked when the UUID could not be stored.
func (r *Receiver) processUUID(payload UUIDPayload) {
	previous := r.identity.SetUUID(payload.UUID)
	if err := r.store.Store(payload.UUID); err != nil {
		r.onPersistError(fmt.Errorf("store uuid: %w", err))
		return
	}

	if previous == payload.UUID {
		r.logger.Info("current uuid was successfully validated by RCS", zap.String("uuid", payload.UUID))
	} else {
		r.logger.Info("received new uuid from RCS", zap.String("uuid", payload.UUID))
	}
	r.identity.Release(payload.UUID)

	if r.journal != nil {
		if err := r.journal.RecordLocalUUID(payload.UUID, storage.UUIDOriginRCS); err != nil {
			r.logger.Warn("could not journal local uuid", zap.Error(err))
		}
	}
}

func (r *Receiver) processSigned(source models.Address, signed SignedPayload) {
	inner, err := signed.Payload()
	if err != nil {
		r.logger.Debug("dropping signed payload", zap.Error(err))
		return
	}

	signee := r.identifySignee(signed)
	if signee != nil {
		signee.IncrementPingCount()
	} else {
		r.counters.IncNonNeighborPing()
		r.recordEvent(storage.EventUnverifiedPing, storage.SecuritySeverityWarning, source, map[string]any{
			"inner": string(inner.Type()),
		})
	}

	ping, ok := inner.(PingPayload)
	if !ok {
		return
	}
	r.relay(ping, signee != nil)
}

// identifySignee returns the first neighbor, in registry order, whose known
// key verifies the envelope.
func (r *Receiver) identifySignee(signed SignedPayload) *models.Neighbor {
	for _, n := range r.registry.All() {
		key := n.PublicKey()
		if len(key) != ed25519.PublicKeySize {
			continue
		}
		if signed.Verify(key) {
			return n
		}
	}
	return nil
}

func (r *Receiver) relay(ping PingPayload, authenticated bool) {
	uuid, known := r.identity.UUID()
	if !known {
		r.counters.IncRelaySkipped()
		return
	}

	report := ReceivedPingPayload{UUID: uuid, Ping: ping, Authenticated: authenticated}
	if err := r.sender.SendTo(report, r.rcs); err != nil {
		r.logger.Warn("could not relay ping to RCS", zap.Error(err))
		return
	}
	r.counters.IncRelayed()
}

func (r *Receiver) warnDuplicateKeys() {
	for _, group := range r.registry.DuplicateKeys() {
		addresses := make([]string, 0, len(group))
		for _, n := range group {
			addresses = append(addresses, n.ReportAddress().String())
		}
		r.logger.Warn("neighbors share a public key; signed pings attribute to the first",
			zap.Strings("neighbors", addresses))
		r.recordEvent(storage.EventDuplicateNeighborKey, storage.SecuritySeverityCritical, group[0].ReportAddress(), map[string]any{
			"neighbors": addresses,
		})
	}
}

func (r *Receiver) recordChange(addr models.Address, field, previous, current string) {
	if r.journal == nil {
		return
	}
	if err := r.journal.LogNeighborChange(storage.NeighborChange{
		NeighborAddress: addr.String(),
		Field:           field,
		OldValue:        previous,
		NewValue:        current,
	}); err != nil {
		r.logger.Warn("could not journal neighbor change", zap.Error(err))
	}
}

// recordEvent journals a security event. Critical events bypass the limiter.
func (r *Receiver) recordEvent(eventType, severity string, source models.Address, details map[string]any) {
	if r.journal == nil {
		return
	}
	if severity != storage.SecuritySeverityCritical && !r.limiter.Allow() {
		return
	}
	raw, err := json.Marshal(details)
	if err != nil {
		r.logger.Warn("could not encode event details", zap.Error(err))
		return
	}
	addr := source.String()
	if err := r.journal.LogSecurityEvent(storage.SecurityEvent{
		EventType:     eventType,
		SourceAddress: &addr,
		Details:       string(raw),
		Severity:      severity,
	}); err != nil {
		r.logger.Warn("could not journal security event", zap.String("event_type", eventType), zap.Error(err))
	}
}
