package webhooks

import (
	"strings"

	"github.com/goliatone/go-shopsync/core"
)

const (
	HeaderHMAC       = "X-Shopify-Hmac-Sha256"
	HeaderShopDomain = "X-Shopify-Shop-Domain"
	HeaderTopic      = "X-Shopify-Topic"
	HeaderWebhookID  = "X-Shopify-Webhook-Id"
	HeaderAPIVersion = "X-Shopify-Api-Version"
)

// Delivery is one inbound webhook request as seen by the boundary.
type Delivery struct {
	Headers map[string]string
	Body    []byte
}

type DeliveryHeaders struct {
	HMAC       string
	ShopDomain string
	Topic      core.Topic
	WebhookID  string
	APIVersion string
}

// ExtractHeaders returns the Shopify headers, failing on the first missing
// required one in HMAC, shop, topic order.
func ExtractHeaders(delivery Delivery) (DeliveryHeaders, error) {
	out := DeliveryHeaders{
		HMAC:       headerValue(delivery.Headers, HeaderHMAC),
		ShopDomain: strings.ToLower(headerValue(delivery.Headers, HeaderShopDomain)),
		Topic:      core.ParseTopic(headerValue(delivery.Headers, HeaderTopic)),
		WebhookID:  headerValue(delivery.Headers, HeaderWebhookID),
		APIVersion: headerValue(delivery.Headers, HeaderAPIVersion),
	}
	switch {
	case out.HMAC == "":
		return out, core.UnauthenticatedError(core.MessageMissingHMAC)
	case out.ShopDomain == "":
		return out, core.BadInputError(core.MessageMissingShop)
	case out.Topic == "":
		return out, core.BadInputError(core.MessageMissingTopic)
	}
	return out, nil
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	if value, ok := headers[key]; ok {
		return strings.TrimSpace(value)
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
