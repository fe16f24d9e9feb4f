package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
)

func TestSignatureValidity(t *testing.T) {
	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate Ed25519 keypair: %v", err)
	}

	data := []byte(`{"type":"ping","nonce":"n-1"}`)
	signature, err := Sign(privateKey, data)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if !Verify(publicKey, data, signature) {
		t.Fatalf("expected signature verification to succeed")
	}
}

func TestVerifyRejectsUnrelatedKeyAndTampering(t *testing.T) {
	_, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate Ed25519 keypair: %v", err)
	}
	otherPublic, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate Ed25519 keypair: %v", err)
	}

	data := []byte("ping")
	signature, err := Sign(privateKey, data)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	if Verify(otherPublic, data, signature) {
		t.Fatalf("expected verification with unrelated key to fail")
	}
	if Verify(privateKey.Public().(ed25519.PublicKey), []byte("ping!"), signature) {
		t.Fatalf("expected verification of tampered data to fail")
	}
	if Verify(nil, data, signature) {
		t.Fatalf("expected verification with nil key to fail")
	}
	if Verify(otherPublic, data, signature[:10]) {
		t.Fatalf("expected verification of short signature to fail")
	}
}
