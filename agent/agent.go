package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"reportixi/crypto"
	"reportixi/discovery"
	"reportixi/metrics"
	"reportixi/models"
	"reportixi/network"
	"reportixi/storage"
)

// ReportIxiVersion is announced to the RCS and to neighbors.
const ReportIxiVersion = "1.0.0"

const shutdownGrace = 5 * time.Second

// Options wires an Agent. Identity, Registry, RCS and UUIDStore are required.
type Options struct {
	ListenAddress string
	Identity      *models.Identity
	Registry      *models.Registry
	RCS           models.Address
	UUIDStore     network.UUIDStore

	// ProposedUUID is announced to the RCS when Identity has no UUID yet.
	ProposedUUID     string
	BootstrapTimeout time.Duration

	// Journal is optional; a nil *storage.Store disables journaling.
	Journal *storage.Store
	// MetricsAddress enables the HTTP surface when non-empty.
	MetricsAddress string
	// Broadcaster, when set, has its TXT records refreshed once the UUID is known.
	Broadcaster *discovery.Broadcaster

	Logger         *zap.Logger
	OnPersistError func(error)
}

// Agent owns the report socket and everything attached to it.
type Agent struct {
	opts     Options
	logger   *zap.Logger
	conn     *net.UDPConn
	sender   *network.Sender
	receiver *network.Receiver
	counters *metrics.Counters
	prom     *prometheus.Registry
	http     *http.Server

	done         chan struct{}
	shutdownOnce sync.Once
	shutdownErr  error
}

// New binds the report socket and builds the receiver.
func New(opts Options) (*Agent, error) {
	if opts.Identity == nil || opts.Registry == nil || opts.UUIDStore == nil {
		return nil, errors.New("agent: identity, registry and uuid store are required")
	}
	if opts.RCS.IsZero() {
		return nil, errors.New("agent: rcs address is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	udpAddr, err := net.ResolveUDPAddr("udp", opts.ListenAddress)
	if err != nil {
		return nil, fmt.Errorf("resolve listen address %q: %w", opts.ListenAddress, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("listen on %q: %w", opts.ListenAddress, err)
	}

	counters := metrics.New()
	sender := network.NewSender(conn, logger)

	receiverOpts := network.ReceiverOptions{
		Registry:       opts.Registry,
		Identity:       opts.Identity,
		RCS:            opts.RCS,
		Counters:       counters,
		UUIDStore:      opts.UUIDStore,
		Sender:         sender,
		Logger:         logger,
		OnPersistError: opts.OnPersistError,
	}
	if opts.Journal != nil {
		receiverOpts.Journal = opts.Journal
	}
	receiver, err := network.NewReceiver(conn, receiverOpts)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	a := &Agent{
		opts:     opts,
		logger:   logger.Named("agent"),
		conn:     conn,
		sender:   sender,
		receiver: receiver,
		counters: counters,
		prom:     metrics.NewRegistry(metrics.NewCollector(counters, opts.Registry)),
		done:     make(chan struct{}),
	}
	if opts.MetricsAddress != "" {
		a.http = &http.Server{
			Addr:              opts.MetricsAddress,
			Handler:           a.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return a, nil
}

// LocalAddr returns the bound report socket address.
func (a *Agent) LocalAddr() *net.UDPAddr {
	return a.conn.LocalAddr().(*net.UDPAddr)
}

// Sender exposes the report socket to periodic ping and metadata callers.
func (a *Agent) Sender() *network.Sender {
	return a.sender
}

// Counters returns the traffic counters of this agent.
func (a *Agent) Counters() *metrics.Counters {
	return a.counters
}

// Neighbors returns the configured neighbors in registry order.
func (a *Agent) Neighbors() []*models.Neighbor {
	return a.opts.Registry.All()
}

// UUID returns the local UUID and whether it is known.
func (a *Agent) UUID() (string, bool) {
	return a.opts.Identity.UUID()
}

// Metadata is the announcement this node sends to the RCS and its neighbors.
func (a *Agent) Metadata() network.MetadataPayload {
	uuid, known := a.opts.Identity.UUID()
	if !known {
		uuid = a.opts.ProposedUUID
	}
	return network.MetadataPayload{
		ReportIxiVersion: ReportIxiVersion,
		UUID:             uuid,
		PublicKey:        a.opts.Identity.PublicKey(),
	}
}

// Run serves until ctx is done or Shutdown is called. A bootstrap timeout is
// logged and the agent keeps running; a later UuidPayload still completes it.
func (a *Agent) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.receiver.Run(gctx)
	})

	g.Go(func() error {
		a.bootstrap(gctx)
		return nil
	})

	if a.http != nil {
		listener, err := net.Listen("tcp", a.http.Addr)
		if err != nil {
			cancel()
			_ = a.Shutdown()
			_ = g.Wait()
			return fmt.Errorf("listen http on %q: %w", a.http.Addr, err)
		}
		a.logger.Info("http surface listening", zap.Stringer("address", listener.Addr()))
		g.Go(func() error {
			if err := a.http.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve http: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-a.done:
		}
		cancel()
		return a.Shutdown()
	})

	a.logger.Info("report socket listening",
		zap.Stringer("address", a.LocalAddr()),
		zap.Stringer("rcs", a.opts.RCS),
		zap.Int("neighbors", a.opts.Registry.Len()))

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *Agent) bootstrap(ctx context.Context) {
	metadata := a.Metadata()
	if metadata.UUID == "" {
		a.logger.Warn("no uuid to propose to RCS; waiting for an unsolicited assignment")
		a.awaitLateUUID(ctx)
		return
	}

	uuid, err := network.Bootstrap(ctx, a.sender, a.opts.Identity, a.opts.RCS, metadata, a.opts.BootstrapTimeout)
	switch {
	case err == nil:
		a.bootstrapped(uuid)
	case errors.Is(err, network.ErrBootstrapTimeout):
		a.logger.Warn("RCS did not answer the metadata announcement", zap.Error(err))
		a.awaitLateUUID(ctx)
	case errors.Is(err, context.Canceled):
	default:
		a.logger.Error("bootstrap failed", zap.Error(err))
	}
}

// awaitLateUUID completes bootstrap when the RCS answers after the timeout.
// A UUID restored from the metadata file returns immediately.
func (a *Agent) awaitLateUUID(ctx context.Context) {
	uuid, err := a.opts.Identity.WaitUUID(ctx)
	if err != nil {
		return
	}
	a.bootstrapped(uuid)
}

func (a *Agent) bootstrapped(uuid string) {
	a.logger.Info("bootstrap complete",
		zap.String("uuid", uuid),
		zap.String("key_fingerprint", crypto.KeyFingerprint(a.opts.Identity.PublicKey())))
	a.opts.Broadcaster.SetUUID(uuid)
}

// Shutdown stops the receiver and the HTTP surface. It is idempotent.
func (a *Agent) Shutdown() error {
	a.shutdownOnce.Do(func() {
		close(a.done)
		var errs []error
		if err := a.receiver.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("close report socket: %w", err))
		}
		if a.http != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			if err := a.http.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("shutdown http: %w", err))
			}
		}
		a.shutdownErr = errors.Join(errs...)
	})
	return a.shutdownErr
}
