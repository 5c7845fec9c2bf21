package security

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestAppKeySecretProvider_EncryptDecryptRoundTrip(t *testing.T) {
	provider, err := NewAppKeySecretProviderFromString("super-secret-test-key", WithKeyID("shopsync-v1"), WithVersion(3))
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	plaintext := []byte("shpat_0123456789")
	encrypted, err := provider.Encrypt(context.Background(), plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Contains(encrypted, plaintext) {
		t.Fatalf("expected sealed token to hide plaintext")
	}
	if !IsEnvelope(encrypted) {
		t.Fatalf("expected envelope prefix, got %q", encrypted)
	}
	meta, err := ParseEnvelopeMetadata(encrypted)
	if err != nil {
		t.Fatalf("parse metadata: %v", err)
	}
	if meta.KeyID != "shopsync-v1" || meta.Version != 3 || meta.Algorithm != "aes-256-gcm" {
		t.Fatalf("unexpected envelope metadata %+v", meta)
	}

	decrypted, err := provider.Decrypt(context.Background(), encrypted)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Fatalf("expected roundtrip plaintext; got %q", string(decrypted))
	}
}

func TestAppKeySecretProvider_NonceIsFreshPerCall(t *testing.T) {
	provider, _ := NewAppKeySecretProviderFromString("0123456789abcdef0123456789abcdef")
	first, _ := provider.Encrypt(context.Background(), []byte("token"))
	second, _ := provider.Encrypt(context.Background(), []byte("token"))
	if bytes.Equal(first, second) {
		t.Fatalf("expected distinct ciphertexts for repeated plaintext")
	}
}

func TestAppKeySecretProvider_RejectsMetadataMismatch(t *testing.T) {
	issuer, _ := NewAppKeySecretProviderFromString("super-secret-test-key", WithKeyID("shopsync-v1"), WithVersion(1))
	receiver, _ := NewAppKeySecretProviderFromString("super-secret-test-key", WithKeyID("shopsync-v2"), WithVersion(2))

	encrypted, err := issuer.Encrypt(context.Background(), []byte("payload"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := receiver.Decrypt(context.Background(), encrypted); err == nil {
		t.Fatalf("expected metadata mismatch error")
	}
}

func TestAppKeySecretProvider_RejectsWrongKeyAndBadInput(t *testing.T) {
	issuer, _ := NewAppKeySecretProviderFromString("key-one")
	other, _ := NewAppKeySecretProviderFromString("key-two")
	encrypted, _ := issuer.Encrypt(context.Background(), []byte("payload"))

	if _, err := other.Decrypt(context.Background(), encrypted); err == nil {
		t.Fatalf("expected authentication failure with a different key")
	}
	if _, err := issuer.Decrypt(context.Background(), []byte("shpat_plain")); err == nil ||
		!strings.Contains(err.Error(), "prefix") {
		t.Fatalf("expected prefix error for plaintext, got %v", err)
	}
	if _, err := issuer.Encrypt(context.Background(), nil); err == nil {
		t.Fatalf("expected empty plaintext to be rejected")
	}
	if _, err := NewAppKeySecretProvider([]byte("   ")); err == nil {
		t.Fatalf("expected blank key material to be rejected")
	}
}

func TestAppKeySecretProvider_RejectsTamperedHeader(t *testing.T) {
	provider, _ := NewAppKeySecretProviderFromString("super-secret-test-key", WithKeyID("kid"), WithVersion(2))
	relabelled, _ := NewAppKeySecretProviderFromString("super-secret-test-key", WithKeyID("kid"), WithVersion(3))
	encrypted, err := provider.Encrypt(context.Background(), []byte("payload"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	tampered := []byte(strings.Replace(string(encrypted), "kid:2:", "kid:3:", 1))
	if _, err := relabelled.Decrypt(context.Background(), tampered); err == nil {
		t.Fatalf("expected header bound as additional data to fail authentication")
	}
	if _, err := provider.Decrypt(context.Background(), []byte(EnvelopePrefix+"kid:x:AAAA")); err == nil {
		t.Fatalf("expected malformed version to be rejected")
	}
}
