package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-shopsync/core"
)

const (
	RegistrationCreated = "created"
	RegistrationExists  = "exists"
	RegistrationFailed  = "failed"
	RegistrationDeleted = "deleted"
)

type Webhook struct {
	ID         int64  `json:"id"`
	Topic      string `json:"topic"`
	Address    string `json:"address"`
	Format     string `json:"format"`
	APIVersion string `json:"api_version,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}

// Registration is the per-topic outcome of a register or delete pass.
type Registration struct {
	Topic     string `json:"topic"`
	Status    string `json:"status"`
	WebhookID int64  `json:"webhookId,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (c *Client) ListWebhooks(ctx context.Context, creds Credentials) ([]Webhook, error) {
	response, _, err := c.do(ctx, creds, "list_webhooks", http.MethodGet, c.adminURL(creds.ShopDomain, "webhooks.json"), nil)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Webhooks []Webhook `json:"webhooks"`
	}
	if err := json.Unmarshal(response.Body, &doc); err != nil {
		return nil, core.ExternalError(err, "shopify: decode webhooks", map[string]any{"shop_domain": creds.ShopDomain})
	}
	return doc.Webhooks, nil
}

// RegisterWebhooks subscribes address to every topic not yet subscribed. A
// 422 saying the subscription already exists counts as registered. Per-topic
// failures are reported in the result; only the initial listing can fail the
// call.
func (c *Client) RegisterWebhooks(ctx context.Context, creds Credentials, address string, topics []core.Topic) ([]Registration, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, core.ValidationError("address", "Webhook address is required")
	}
	if len(topics) == 0 {
		topics = core.SubscribedTopics()
	}
	existing, err := c.ListWebhooks(ctx, creds)
	if err != nil {
		return nil, err
	}
	byTopic := make(map[string]Webhook, len(existing))
	for _, webhook := range existing {
		byTopic[webhook.Topic] = webhook
	}

	results := make([]Registration, 0, len(topics))
	for _, topic := range topics {
		if current, ok := byTopic[topic.String()]; ok {
			results = append(results, Registration{Topic: topic.String(), Status: RegistrationExists, WebhookID: current.ID})
			continue
		}
		results = append(results, c.createWebhook(ctx, creds, topic, address))
	}
	return results, nil
}

func (c *Client) createWebhook(ctx context.Context, creds Credentials, topic core.Topic, address string) Registration {
	out := Registration{Topic: topic.String()}
	body, _ := json.Marshal(map[string]any{
		"webhook": map[string]string{"topic": topic.String(), "address": address, "format": "json"},
	})
	response, _, err := c.do(ctx, creds, "create_webhook", http.MethodPost, c.adminURL(creds.ShopDomain, "webhooks.json"), body)
	if err != nil {
		if response.StatusCode == http.StatusUnprocessableEntity && alreadyRegistered(response.Body) {
			out.Status = RegistrationExists
			return out
		}
		out.Status = RegistrationFailed
		out.Error = errorText(err)
		return out
	}
	var doc struct {
		Webhook Webhook `json:"webhook"`
	}
	if err := json.Unmarshal(response.Body, &doc); err != nil {
		out.Status = RegistrationFailed
		out.Error = "shopify: decode created webhook: " + err.Error()
		return out
	}
	out.Status = RegistrationCreated
	out.WebhookID = doc.Webhook.ID
	return out
}

func (c *Client) DeleteWebhook(ctx context.Context, creds Credentials, webhookID int64) error {
	if webhookID <= 0 {
		return core.ValidationError("webhook_id", "Webhook id is required")
	}
	_, _, err := c.do(ctx, creds, "delete_webhook", http.MethodDelete,
		c.adminURL(creds.ShopDomain, fmt.Sprintf("webhooks/%d.json", webhookID)), nil)
	return err
}

// DeleteAllWebhooks removes every subscription of the shop and reports each.
func (c *Client) DeleteAllWebhooks(ctx context.Context, creds Credentials) ([]Registration, error) {
	existing, err := c.ListWebhooks(ctx, creds)
	if err != nil {
		return nil, err
	}
	results := make([]Registration, 0, len(existing))
	for _, webhook := range existing {
		out := Registration{Topic: webhook.Topic, WebhookID: webhook.ID, Status: RegistrationDeleted}
		if err := c.DeleteWebhook(ctx, creds, webhook.ID); err != nil {
			out.Status = RegistrationFailed
			out.Error = errorText(err)
		}
		results = append(results, out)
	}
	return results, nil
}

func alreadyRegistered(body []byte) bool {
	detail := strings.ToLower(ErrorDetail(body))
	return strings.Contains(detail, "already been taken") || strings.Contains(detail, "exists")
}

func errorText(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && strings.TrimSpace(richErr.Message) != "" {
		return richErr.Message
	}
	return err.Error()
}
