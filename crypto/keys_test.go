package crypto

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOrCreateSigningKeyIsStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "signing.pem")

	first, created, err := LoadOrCreateSigningKey(path)
	if err != nil {
		t.Fatalf("first LoadOrCreateSigningKey failed: %v", err)
	}
	if !created {
		t.Fatalf("expected key to be created on first run")
	}

	second, created, err := LoadOrCreateSigningKey(path)
	if err != nil {
		t.Fatalf("second LoadOrCreateSigningKey failed: %v", err)
	}
	if created {
		t.Fatalf("expected existing key to be reused")
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("expected stable private key across runs")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat key file: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600 permissions, got %v", info.Mode().Perm())
	}
}

func TestLoadSigningKeyRejectsForeignPEM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foreign.pem")
	if err := os.WriteFile(path, []byte("-----BEGIN OTHER-----\nAAAA\n-----END OTHER-----\n"), 0o600); err != nil {
		t.Fatalf("write foreign pem: %v", err)
	}

	if _, err := LoadSigningKey(path); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestPublicKeyEncodingRoundTrip(t *testing.T) {
	key, _, err := LoadOrCreateSigningKey(filepath.Join(t.TempDir(), "k.pem"))
	if err != nil {
		t.Fatalf("LoadOrCreateSigningKey failed: %v", err)
	}
	public := key.Public().(ed25519.PublicKey)

	decoded, err := DecodePublicKey(EncodePublicKey(public))
	if err != nil {
		t.Fatalf("DecodePublicKey failed: %v", err)
	}
	if !bytes.Equal(decoded, public) {
		t.Fatalf("decoded key mismatch")
	}

	if _, err := DecodePublicKey("not base64!"); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey for bad base64, got %v", err)
	}
	if _, err := DecodePublicKey("AAAA"); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey for short key, got %v", err)
	}
	if len(KeyFingerprint(decoded)) != 16 {
		t.Fatalf("expected 16 hex chars of fingerprint")
	}
}
