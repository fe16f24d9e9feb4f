package network

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"reportixi/crypto"
)

const (
	// MaxDatagramSize is the receive buffer size for one payload.
	MaxDatagramSize = 1024
)

// PayloadType is the wire discriminator carried in every payload's "type" field.
type PayloadType string

const (
	TypePing         PayloadType = "ping"
	TypeSilentPing   PayloadType = "silent_ping"
	TypeMetadata     PayloadType = "metadata"
	TypeUUID         PayloadType = "uuid"
	TypeSigned       PayloadType = "signed"
	TypeReceivedPing PayloadType = "received_ping"
)

var (
	// ErrDecode indicates a datagram could not be decoded into a payload.
	ErrDecode = errors.New("network: invalid payload")
	// ErrUnknownPayloadType indicates the discriminator is missing or unknown.
	ErrUnknownPayloadType = fmt.Errorf("%w: unknown payload type", ErrDecode)
)

// Payload is one wire message. The set of implementations is closed.
type Payload interface {
	Type() PayloadType
	validate() error
}

// Envelope identifies the payload type.
type Envelope struct {
	Type PayloadType `json:"type"`
}

// PingPayload is a liveness probe carrying a caller-chosen nonce.
type PingPayload struct {
	Nonce string `json:"nonce"`
}

// SilentPingPayload is a liveness probe that is counted but never reported.
type SilentPingPayload struct{}

// MetadataPayload announces a node's Report.ixi version, UUID and public key.
type MetadataPayload struct {
	ReportIxiVersion string
	UUID             string
	PublicKey        ed25519.PublicKey
}

// UUIDPayload is the collector's answer to the bootstrap handshake.
type UUIDPayload struct {
	UUID string `json:"uuid"`
}

// ReceivedPingPayload reports a ping received from a neighbor to the collector.
type ReceivedPingPayload struct {
	UUID          string      `json:"uuid"`
	Ping          PingPayload `json:"ping"`
	Authenticated bool        `json:"authenticated"`
}

// Type implementations return the wire discriminator of each payload.

func (PingPayload) Type() PayloadType         { return TypePing }
func (SilentPingPayload) Type() PayloadType   { return TypeSilentPing }
func (MetadataPayload) Type() PayloadType     { return TypeMetadata }
func (UUIDPayload) Type() PayloadType         { return TypeUUID }
func (ReceivedPingPayload) Type() PayloadType { return TypeReceivedPing }

func (p PingPayload) validate() error {
	if p.Nonce == "" {
		return errors.New("nonce is required")
	}
	return nil
}

func (SilentPingPayload) validate() error { return nil }

func (p MetadataPayload) validate() error {
	if p.ReportIxiVersion == "" {
		return errors.New("report_ixi_version is required")
	}
	if p.UUID == "" {
		return errors.New("uuid is required")
	}
	if p.PublicKey != nil && len(p.PublicKey) != ed25519.PublicKeySize {
		return fmt.Errorf("public key size %d", len(p.PublicKey))
	}
	return nil
}

func (p UUIDPayload) validate() error {
	if p.UUID == "" {
		return errors.New("uuid is required")
	}
	return nil
}

func (p ReceivedPingPayload) validate() error {
	if p.UUID == "" {
		return errors.New("uuid is required")
	}
	if err := p.Ping.validate(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// wire forms; the discriminator is written first so payloads stay readable.

type pingWire struct {
	Type  PayloadType `json:"type"`
	Nonce string      `json:"nonce"`
}

type silentPingWire struct {
	Type PayloadType `json:"type"`
}

type metadataWire struct {
	Type             PayloadType `json:"type"`
	ReportIxiVersion string      `json:"report_ixi_version"`
	UUID             string      `json:"uuid"`
	PublicKey        string      `json:"public_key,omitempty"`
}

type uuidWire struct {
	Type PayloadType `json:"type"`
	UUID string      `json:"uuid"`
}

type signedWire struct {
	Type      PayloadType `json:"type"`
	Payload   string      `json:"payload"`
	Signature string      `json:"signature"`
}

type receivedPingWire struct {
	Type          PayloadType  `json:"type"`
	UUID          string       `json:"uuid"`
	Ping          *PingPayload `json:"ping"`
	Authenticated bool         `json:"authenticated"`
}

// Serialize encodes a payload into its wire string.
func Serialize(payload Payload) (string, error) {
	if payload == nil {
		return "", errors.New("network: nil payload")
	}
	if err := payload.validate(); err != nil {
		return "", fmt.Errorf("serialize %s payload: %w", payload.Type(), err)
	}

	var wire any
	switch p := payload.(type) {
	case PingPayload:
		wire = pingWire{Type: TypePing, Nonce: p.Nonce}
	case SilentPingPayload:
		wire = silentPingWire{Type: TypeSilentPing}
	case MetadataPayload:
		wire = metadataWire{
			Type:             TypeMetadata,
			ReportIxiVersion: p.ReportIxiVersion,
			UUID:             p.UUID,
			PublicKey:        crypto.EncodePublicKey(p.PublicKey),
		}
	case UUIDPayload:
		wire = uuidWire{Type: TypeUUID, UUID: p.UUID}
	case SignedPayload:
		wire = signedWire{Type: TypeSigned, Payload: p.Inner, Signature: encodeSignature(p.Signature)}
	case ReceivedPingPayload:
		ping := p.Ping
		wire = receivedPingWire{Type: TypeReceivedPing, UUID: p.UUID, Ping: &ping, Authenticated: p.Authenticated}
	default:
		return "", fmt.Errorf("network: unsupported payload %T", payload)
	}

	raw, err := json.Marshal(wire)
	if err != nil {
		return "", fmt.Errorf("marshal %s payload: %w", payload.Type(), err)
	}
	return string(raw), nil
}

// DecodePayloadType extracts the "type" field from a wire string.
func DecodePayloadType(data string) (PayloadType, error) {
	var envelope Envelope
	if err := json.Unmarshal([]byte(data), &envelope); err != nil {
		return "", fmt.Errorf("%w: decode envelope: %v", ErrDecode, err)
	}
	if envelope.Type == "" {
		return "", ErrUnknownPayloadType
	}
	return envelope.Type, nil
}

// Deserialize decodes a wire string. It never returns a partially filled
// payload: any missing or malformed required field is an ErrDecode.
func Deserialize(data string) (Payload, error) {
	if strings.TrimSpace(data) == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrDecode)
	}

	payloadType, err := DecodePayloadType(data)
	if err != nil {
		return nil, err
	}

	var payload Payload
	switch payloadType {
	case TypePing:
		var wire pingWire
		if err := decodeStrict(data, &wire); err != nil {
			return nil, err
		}
		payload = PingPayload{Nonce: wire.Nonce}
	case TypeSilentPing:
		var wire silentPingWire
		if err := decodeStrict(data, &wire); err != nil {
			return nil, err
		}
		payload = SilentPingPayload{}
	case TypeMetadata:
		var wire metadataWire
		if err := decodeStrict(data, &wire); err != nil {
			return nil, err
		}
		metadata := MetadataPayload{ReportIxiVersion: wire.ReportIxiVersion, UUID: wire.UUID}
		if wire.PublicKey != "" {
			key, err := crypto.DecodePublicKey(wire.PublicKey)
			if err != nil {
				return nil, fmt.Errorf("%w: metadata public key: %v", ErrDecode, err)
			}
			metadata.PublicKey = key
		}
		payload = metadata
	case TypeUUID:
		var wire uuidWire
		if err := decodeStrict(data, &wire); err != nil {
			return nil, err
		}
		payload = UUIDPayload{UUID: wire.UUID}
	case TypeSigned:
		var wire signedWire
		if err := decodeStrict(data, &wire); err != nil {
			return nil, err
		}
		signed, err := decodeSigned(wire)
		if err != nil {
			return nil, err
		}
		payload = signed
	case TypeReceivedPing:
		var wire receivedPingWire
		if err := decodeStrict(data, &wire); err != nil {
			return nil, err
		}
		if wire.Ping == nil {
			return nil, fmt.Errorf("%w: received_ping: ping is required", ErrDecode)
		}
		payload = ReceivedPingPayload{UUID: wire.UUID, Ping: *wire.Ping, Authenticated: wire.Authenticated}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPayloadType, payloadType)
	}

	if err := payload.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, payloadType, err)
	}
	return payload, nil
}

// decodeStrict decodes exactly one JSON object into target. Keys must match
// the wire names exactly, including case.
func decodeStrict(data string, target any) error {
	if err := checkKeys(json.RawMessage(data), reflect.TypeOf(target)); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	decoder := json.NewDecoder(bytes.NewReader([]byte(data)))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if decoder.More() {
		return fmt.Errorf("%w: trailing data", ErrDecode)
	}
	return nil
}

// checkKeys rejects object keys that are not the exact json tag of a field of
// t, recursing into nested structs. Malformed input is left to the decoder.
func checkKeys(raw json.RawMessage, t reflect.Type) error {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil
	}

	known := make(map[string]reflect.Type, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		known[name] = field.Type
	}
	for key, value := range fields {
		fieldType, ok := known[key]
		if !ok {
			return fmt.Errorf("unknown field %q", key)
		}
		if err := checkKeys(value, fieldType); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}
