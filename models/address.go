package models

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"
)

// ErrFormat indicates an address or configuration value could not be parsed.
var ErrFormat = errors.New("models: invalid format")

// Address is an immutable host and port pair.
type Address struct {
	host string
	port int
}

// NewAddress builds an Address, canonicalising IP literal hosts.
func NewAddress(host string, port int) (Address, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return Address{}, fmt.Errorf("%w: empty host", ErrFormat)
	}
	if port <= 0 || port > 65535 {
		return Address{}, fmt.Errorf("%w: port %d out of range", ErrFormat, port)
	}
	return Address{host: canonicalHost(host), port: port}, nil
}

// ParseAddress parses "host:port", "[v6]:port" and the "name/ip:port" form
// printed by socket libraries. For the latter the part after the slash wins.
func ParseAddress(text string) (Address, error) {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return Address{}, fmt.Errorf("%w: empty address", ErrFormat)
	}
	if idx := strings.LastIndex(raw, "/"); idx >= 0 {
		raw = raw[idx+1:]
	}

	host, portText, err := net.SplitHostPort(raw)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %q: %v", ErrFormat, text, err)
	}
	port, err := strconv.Atoi(portText)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %q: invalid port %q", ErrFormat, text, portText)
	}

	addr, err := NewAddress(host, port)
	if err != nil {
		return Address{}, fmt.Errorf("parse %q: %w", text, err)
	}
	return addr, nil
}

// AddressFromAddrPort converts a packet source into an Address.
func AddressFromAddrPort(ap netip.AddrPort) Address {
	return Address{host: ap.Addr().Unmap().WithZone("").String(), port: int(ap.Port())}
}

// Host returns the canonical host.
func (a Address) Host() string { return a.host }

// Port returns the port.
func (a Address) Port() int { return a.port }

// IsZero reports whether the address was never set.
func (a Address) IsZero() bool { return a.host == "" && a.port == 0 }

// Equal is the strict comparison: host and port both match.
func (a Address) Equal(other Address) bool {
	return a.host == other.host && a.port == other.port
}

// SameHost is the non-strict comparison: the port is ignored.
func (a Address) SameHost(other Address) bool {
	return a.host == other.host
}

// UDPAddr resolves a into a UDP socket address.
func (a Address) UDPAddr() (*net.UDPAddr, error) {
	if ip, err := netip.ParseAddr(a.host); err == nil {
		return net.UDPAddrFromAddrPort(netip.AddrPortFrom(ip, uint16(a.port))), nil
	}
	resolved, err := net.ResolveUDPAddr("udp", a.String())
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", a, err)
	}
	return resolved, nil
}

func (a Address) String() string {
	return net.JoinHostPort(a.host, strconv.Itoa(a.port))
}

func canonicalHost(host string) string {
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	if ip, err := netip.ParseAddr(host); err == nil {
		return ip.Unmap().WithZone("").String()
	}
	return strings.ToLower(host)
}
