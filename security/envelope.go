package security

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// Sealed values are EnvelopePrefix + "<kid>:<version>:<base64url(nonce|ciphertext)>".
// The kid and version are bound to the ciphertext as GCM additional data.
const (
	EnvelopePrefix    = "shopsync.secret.v1:"
	envelopeAlgorithm = "aes-256-gcm"
)

type envelope struct {
	KeyID   string
	Version int
	Payload []byte
}

type EnvelopeMetadata struct {
	KeyID     string
	Version   int
	Algorithm string
}

// IsEnvelope reports whether value was produced by a provider in this
// package. Stores use it to tell sealed tokens from legacy plaintext.
func IsEnvelope(value []byte) bool {
	return strings.HasPrefix(string(value), EnvelopePrefix)
}

func ParseEnvelopeMetadata(sealed []byte) (EnvelopeMetadata, error) {
	env, err := decodeEnvelope(sealed)
	if err != nil {
		return EnvelopeMetadata{}, err
	}
	return EnvelopeMetadata{KeyID: env.KeyID, Version: env.Version, Algorithm: envelopeAlgorithm}, nil
}

func (e envelope) header() string {
	return e.KeyID + ":" + strconv.Itoa(e.Version)
}

func (e envelope) encode() []byte {
	return []byte(EnvelopePrefix + e.header() + ":" + base64.RawURLEncoding.EncodeToString(e.Payload))
}

func decodeEnvelope(sealed []byte) (envelope, error) {
	if len(sealed) == 0 {
		return envelope{}, fmt.Errorf("security: sealed value is required")
	}
	if !IsEnvelope(sealed) {
		return envelope{}, fmt.Errorf("security: missing envelope prefix")
	}
	body := strings.TrimPrefix(string(sealed), EnvelopePrefix)

	cut := strings.LastIndexByte(body, ':')
	if cut < 0 {
		return envelope{}, fmt.Errorf("security: malformed envelope")
	}
	header, encoded := body[:cut], body[cut+1:]
	cut = strings.LastIndexByte(header, ':')
	if cut <= 0 {
		return envelope{}, fmt.Errorf("security: malformed envelope header")
	}
	version, err := strconv.Atoi(header[cut+1:])
	if err != nil || version <= 0 {
		return envelope{}, fmt.Errorf("security: invalid envelope version %q", header[cut+1:])
	}
	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return envelope{}, fmt.Errorf("security: decode envelope payload: %w", err)
	}
	return envelope{KeyID: header[:cut], Version: version, Payload: payload}, nil
}
