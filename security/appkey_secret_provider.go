// Package security seals Shopify access tokens before they are persisted.
package security

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/goliatone/go-shopsync/core"
)

const defaultKeyID = "app-key"

type Option func(*AppKeySecretProvider)

// AppKeySecretProvider seals values with AES-256-GCM under one application
// key. The key material is hashed to 32 bytes, so any non-blank secret works.
type AppKeySecretProvider struct {
	gcm     cipher.AEAD
	keyID   string
	version int
}

func WithKeyID(id string) Option {
	return func(p *AppKeySecretProvider) {
		if id = strings.TrimSpace(id); id != "" && !strings.Contains(id, ":") {
			p.keyID = id
		}
	}
}

func WithVersion(version int) Option {
	return func(p *AppKeySecretProvider) {
		if version > 0 {
			p.version = version
		}
	}
}

func NewAppKeySecretProvider(keyMaterial []byte, opts ...Option) (*AppKeySecretProvider, error) {
	material := strings.TrimSpace(string(keyMaterial))
	if material == "" {
		return nil, fmt.Errorf("security: key material is required")
	}
	key := sha256.Sum256([]byte(material))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("security: create gcm: %w", err)
	}
	p := &AppKeySecretProvider{gcm: gcm, keyID: defaultKeyID, version: 1}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

func NewAppKeySecretProviderFromString(key string, opts ...Option) (*AppKeySecretProvider, error) {
	return NewAppKeySecretProvider([]byte(key), opts...)
}

func (p *AppKeySecretProvider) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if p == nil || p.gcm == nil {
		return nil, fmt.Errorf("security: secret provider is not configured")
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("security: plaintext is required")
	}
	env := envelope{KeyID: p.keyID, Version: p.version}
	nonce := make([]byte, p.gcm.NonceSize(), p.gcm.NonceSize()+len(plaintext)+p.gcm.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("security: nonce generation failed: %w", err)
	}
	env.Payload = p.gcm.Seal(nonce, nonce, plaintext, []byte(env.header()))
	return env.encode(), nil
}

func (p *AppKeySecretProvider) Decrypt(_ context.Context, sealed []byte) ([]byte, error) {
	if p == nil || p.gcm == nil {
		return nil, fmt.Errorf("security: secret provider is not configured")
	}
	env, err := decodeEnvelope(sealed)
	if err != nil {
		return nil, err
	}
	if env.KeyID != p.keyID || env.Version != p.version {
		return nil, fmt.Errorf("security: sealed with %s, provider holds %s", env.header(), p.keyID+":"+fmt.Sprint(p.version))
	}
	size := p.gcm.NonceSize()
	if len(env.Payload) <= size {
		return nil, fmt.Errorf("security: sealed payload too short")
	}
	plaintext, err := p.gcm.Open(nil, env.Payload[:size], env.Payload[size:], []byte(env.header()))
	if err != nil {
		return nil, fmt.Errorf("security: open sealed value: %w", err)
	}
	return plaintext, nil
}

func (p *AppKeySecretProvider) KeyID() string {
	if p == nil {
		return ""
	}
	return p.keyID
}

func (p *AppKeySecretProvider) Version() int {
	if p == nil {
		return 0
	}
	return p.version
}

var _ core.SecretProvider = (*AppKeySecretProvider)(nil)
