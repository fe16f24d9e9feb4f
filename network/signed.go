package network

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"

	"reportixi/crypto"
)

// SignedPayload is an authenticated envelope around a ping or silent ping.
// Inner is kept in its serialized form because those are the exact bytes the
// signature covers.
type SignedPayload struct {
	Inner     string
	Signature []byte

	payload Payload
}

// Type returns TypeSigned.
func (SignedPayload) Type() PayloadType { return TypeSigned }

func (p SignedPayload) validate() error {
	if p.Inner == "" {
		return errors.New("payload is required")
	}
	if len(p.Signature) == 0 {
		return errors.New("signature is required")
	}
	return nil
}

// SignPayload serializes inner and signs it with privateKey.
func SignPayload(privateKey ed25519.PrivateKey, inner Payload) (SignedPayload, error) {
	if err := checkSignable(inner); err != nil {
		return SignedPayload{}, err
	}
	serialized, err := Serialize(inner)
	if err != nil {
		return SignedPayload{}, err
	}
	signature, err := crypto.Sign(privateKey, []byte(serialized))
	if err != nil {
		return SignedPayload{}, fmt.Errorf("sign %s payload: %w", inner.Type(), err)
	}
	return SignedPayload{Inner: serialized, Signature: signature, payload: inner}, nil
}

// Payload returns the decoded inner payload.
func (p SignedPayload) Payload() (Payload, error) {
	if p.payload != nil {
		return p.payload, nil
	}
	inner, err := Deserialize(p.Inner)
	if err != nil {
		return nil, err
	}
	if err := checkSignable(inner); err != nil {
		return nil, err
	}
	return inner, nil
}

// Verify reports whether the envelope was signed by the holder of candidate.
// A mismatch is an expected outcome and is not an error.
func (p SignedPayload) Verify(candidate ed25519.PublicKey) bool {
	if len(candidate) == 0 || p.Inner == "" {
		return false
	}
	return crypto.Verify(candidate, []byte(p.Inner), p.Signature)
}

// Equal compares the wire content of two envelopes.
func (p SignedPayload) Equal(other SignedPayload) bool {
	return p.Inner == other.Inner && string(p.Signature) == string(other.Signature)
}

func decodeSigned(wire signedWire) (SignedPayload, error) {
	if wire.Payload == "" {
		return SignedPayload{}, fmt.Errorf("%w: signed: payload is required", ErrDecode)
	}
	signature, err := base64.StdEncoding.DecodeString(wire.Signature)
	if err != nil {
		return SignedPayload{}, fmt.Errorf("%w: signed: signature: %v", ErrDecode, err)
	}
	if len(signature) != ed25519.SignatureSize {
		return SignedPayload{}, fmt.Errorf("%w: signed: signature size %d", ErrDecode, len(signature))
	}

	inner, err := Deserialize(wire.Payload)
	if err != nil {
		return SignedPayload{}, fmt.Errorf("signed: inner: %w", err)
	}
	if err := checkSignable(inner); err != nil {
		return SignedPayload{}, err
	}

	return SignedPayload{Inner: wire.Payload, Signature: signature, payload: inner}, nil
}

func checkSignable(inner Payload) error {
	switch inner.(type) {
	case PingPayload, SilentPingPayload:
		return nil
	case nil:
		return fmt.Errorf("%w: signed: missing inner payload", ErrDecode)
	default:
		return fmt.Errorf("%w: signed: cannot wrap %s", ErrDecode, inner.Type())
	}
}

func encodeSignature(signature []byte) string {
	return base64.StdEncoding.EncodeToString(signature)
}
