package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strings"

	"github.com/goliatone/go-shopsync/core"
)

// SignatureVerifier checks X-Shopify-Hmac-Sha256 values. The test-mode
// bypass is decided by construction only, never by request input.
type SignatureVerifier struct {
	TestMode    bool
	BypassToken string
}

func NewSignatureVerifier(cfg core.ShopifyConfig) SignatureVerifier {
	bypass := strings.TrimSpace(cfg.BypassToken)
	if bypass == "" {
		bypass = core.DefaultBypassToken
	}
	return SignatureVerifier{
		TestMode:    cfg.TestMode,
		BypassToken: bypass,
	}
}

// Verify returns true when signature is the base64 HMAC-SHA256 of rawBody
// keyed by secret.
func (v SignatureVerifier) Verify(rawBody []byte, signature string, secret string) bool {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return false
	}
	if v.TestMode && v.BypassToken != "" &&
		subtle.ConstantTimeCompare([]byte(signature), []byte(v.BypassToken)) == 1 {
		return true
	}
	if secret == "" {
		return false
	}
	decoded, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(decoded, Sign(rawBody, secret)) == 1
}

// Sign computes the raw HMAC-SHA256 digest of body.
func Sign(body []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return mac.Sum(nil)
}

// SignBase64 is the header form Shopify sends.
func SignBase64(body []byte, secret string) string {
	return base64.StdEncoding.EncodeToString(Sign(body, secret))
}
