package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const signingKeyPEMType = "REPORT IXI ED25519 SEED"

// ErrInvalidKey indicates encoded key material has the wrong shape.
var ErrInvalidKey = errors.New("crypto: invalid key")

// LoadOrCreateSigningKey reads the node's Ed25519 seed from path, creating and
// persisting a fresh one if the file does not exist.
func LoadOrCreateSigningKey(path string) (ed25519.PrivateKey, bool, error) {
	key, err := LoadSigningKey(path)
	if err == nil {
		return key, false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, err
	}

	_, key, err = ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, false, fmt.Errorf("generate signing key: %w", err)
	}
	if err := SaveSigningKey(path, key); err != nil {
		return nil, false, err
	}
	return key, true, nil
}

// LoadSigningKey reads a PEM encoded Ed25519 seed.
func LoadSigningKey(path string) (ed25519.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signing key: %w", err)
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("%w: %s has no PEM block", ErrInvalidKey, path)
	}
	if block.Type != signingKeyPEMType {
		return nil, fmt.Errorf("%w: %s has PEM type %q", ErrInvalidKey, path, block.Type)
	}
	if len(block.Bytes) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: %s has seed size %d", ErrInvalidKey, path, len(block.Bytes))
	}

	return ed25519.NewKeyFromSeed(block.Bytes), nil
}

// SaveSigningKey writes the seed of key as PEM with 0600 permissions.
func SaveSigningKey(path string, key ed25519.PrivateKey) error {
	if len(key) != ed25519.PrivateKeySize {
		return fmt.Errorf("%w: private key size %d", ErrInvalidKey, len(key))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}

	block := &pem.Block{Type: signingKeyPEMType, Bytes: key.Seed()}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		return fmt.Errorf("write signing key: %w", err)
	}
	return nil
}

// EncodePublicKey returns the wire form of a public key.
func EncodePublicKey(key ed25519.PublicKey) string {
	if len(key) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(key)
}

// DecodePublicKey parses the wire form of a public key.
func DecodePublicKey(text string) (ed25519.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: public key size %d", ErrInvalidKey, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

// KeyFingerprint returns the truncated SHA-256 hex fingerprint of a public key.
func KeyFingerprint(publicKey ed25519.PublicKey) string {
	sum := sha256.Sum256(publicKey)
	return hex.EncodeToString(sum[:8])
}
