package discovery

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"
)

const (
	// DefaultService is the mDNS service name without domain suffix.
	DefaultService = "_reportixi._udp"
	// DefaultDomain is the mDNS domain.
	DefaultDomain = "local."
)

type registerFunc func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (*zeroconf.Server, error)

// Config controls the mDNS broadcaster.
type Config struct {
	Service string
	Domain  string

	Name             string
	ReportPort       int
	ReportIxiVersion string
	KeyFingerprint   string
	UUID             string

	registerFn registerFunc
}

func (c Config) withDefaults() Config {
	out := c
	if out.Service == "" {
		out.Service = DefaultService
	}
	if out.Domain == "" {
		out.Domain = DefaultDomain
	}
	if out.registerFn == nil {
		out.registerFn = zeroconf.Register
	}
	return out
}

func (c Config) validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("name is required")
	}
	if c.ReportPort <= 0 {
		return errors.New("report port must be > 0")
	}
	return nil
}

func (c Config) txt() []string {
	return []string{
		"uuid=" + c.UUID,
		"version=" + c.ReportIxiVersion,
		"key_fingerprint=" + c.KeyFingerprint,
		"report_port=" + strconv.Itoa(c.ReportPort),
	}
}

// Broadcaster advertises the local report endpoint via mDNS.
type Broadcaster struct {
	mu     sync.Mutex
	config Config
	server *zeroconf.Server
}

// StartBroadcaster registers and starts mDNS broadcast.
func StartBroadcaster(config Config) (*Broadcaster, error) {
	cfg := config.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	server, err := cfg.registerFn(cfg.Name, cfg.Service, cfg.Domain, cfg.ReportPort, cfg.txt(), nil)
	if err != nil {
		return nil, fmt.Errorf("register mDNS service: %w", err)
	}

	return &Broadcaster{config: cfg, server: server}, nil
}

// SetUUID republishes the TXT records with a new local UUID.
func (b *Broadcaster) SetUUID(uuid string) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.config.UUID == uuid {
		return
	}
	b.config.UUID = uuid
	if b.server != nil {
		b.server.SetText(b.config.txt())
	}
}

// Text returns the TXT records currently advertised.
func (b *Broadcaster) Text() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.config.txt()
}

// Stop stops mDNS broadcasting.
func (b *Broadcaster) Stop() {
	if b == nil || b.server == nil {
		return
	}
	b.server.Shutdown()
}
