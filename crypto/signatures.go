package crypto

import (
	"crypto/ed25519"
	"errors"
	"fmt"
)

// Sign signs data using an Ed25519 private key.
func Sign(privateKey ed25519.PrivateKey, data []byte) ([]byte, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: private key size %d", ErrInvalidKey, len(privateKey))
	}
	if len(data) == 0 {
		return nil, errors.New("crypto: nothing to sign")
	}
	return ed25519.Sign(privateKey, data), nil
}

// Verify reports whether signature is valid for data under publicKey. Malformed
// keys and signatures simply fail verification.
func Verify(publicKey ed25519.PublicKey, data, signature []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	if len(signature) != ed25519.SignatureSize || len(data) == 0 {
		return false
	}
	return ed25519.Verify(publicKey, data, signature)
}
