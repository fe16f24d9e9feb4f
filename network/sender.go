package network

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"go.uber.org/zap"

	"reportixi/models"
)

// ErrPayloadTooLarge indicates a serialized payload would not fit the
// receiver's datagram buffer.
var ErrPayloadTooLarge = errors.New("network: payload exceeds datagram size")

// Sender writes payloads as single datagrams. It is safe for concurrent use.
type Sender struct {
	conn   net.PacketConn
	logger *zap.Logger
}

// NewSender writes datagrams through conn, usually the report socket.
func NewSender(conn net.PacketConn, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{conn: conn, logger: logger.Named("sender")}
}

// Send serializes payload and writes it to host:port once. Delivery is best
// effort; nothing is retried.
func (s *Sender) Send(payload Payload, host string, port int) error {
	serialized, err := Serialize(payload)
	if err != nil {
		return err
	}
	if len(serialized) > MaxDatagramSize {
		return fmt.Errorf("%w: %s payload is %d bytes", ErrPayloadTooLarge, payload.Type(), len(serialized))
	}

	target := net.JoinHostPort(host, strconv.Itoa(port))
	addr, err := net.ResolveUDPAddr("udp", target)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", target, err)
	}

	if _, err := s.conn.WriteTo([]byte(serialized), addr); err != nil {
		return fmt.Errorf("send %s payload to %s: %w", payload.Type(), target, err)
	}
	s.logger.Debug("sent payload", zap.String("type", string(payload.Type())), zap.String("target", target))
	return nil
}

// SendTo sends payload to addr.
func (s *Sender) SendTo(payload Payload, addr models.Address) error {
	return s.Send(payload, addr.Host(), addr.Port())
}
