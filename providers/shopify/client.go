// Package shopify is a small Admin REST client: paginated resource pulls and
// webhook subscription management for one shop at a time.
package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-shopsync/core"
	"github.com/goliatone/go-shopsync/ratelimit"
)

const (
	HeaderAccessToken = "X-Shopify-Access-Token"
	HeaderLink        = "Link"

	defaultRequestTimeout = 30 * time.Second
)

// Credentials identify the shop a call is made for.
type Credentials struct {
	ShopDomain  string
	AccessToken string
}

func CredentialsFor(tenant core.Tenant) Credentials {
	return Credentials{ShopDomain: tenant.ShopDomain, AccessToken: tenant.AccessToken}
}

type Client struct {
	Transport  core.TransportAdapter
	APIVersion string
	PageLimit  int
	// Endpoint maps a shop domain to the scheme and host requests go to.
	Endpoint func(shopDomain string) string
	Pacer    *ratelimit.Pacer
	Timeout  time.Duration
	Observer *core.Observer
}

func NewClient(transport core.TransportAdapter, cfg core.ShopifyConfig, pacer *ratelimit.Pacer, observer *core.Observer) *Client {
	if observer == nil {
		observer = core.NewObserver("shopify", nil, nil, nil)
	}
	apiVersion := strings.TrimSpace(cfg.APIVersion)
	if apiVersion == "" {
		apiVersion = core.DefaultAPIVersion
	}
	pageLimit := cfg.PageLimit
	if pageLimit <= 0 || pageLimit > core.DefaultPageLimit {
		pageLimit = core.DefaultPageLimit
	}
	return &Client{
		Transport:  transport,
		APIVersion: apiVersion,
		PageLimit:  pageLimit,
		Endpoint:   HTTPSEndpoint,
		Pacer:      pacer,
		Timeout:    defaultRequestTimeout,
		Observer:   observer,
	}
}

func HTTPSEndpoint(shopDomain string) string {
	return "https://" + strings.TrimSpace(shopDomain)
}

// Page is one page of a resource listing.
type Page struct {
	Entity  core.EntityType
	Items   []json.RawMessage
	NextURL string
	Meta    ResponseMeta
}

// FirstPageURL builds the opening URL of an entity pull. Orders include every
// status; since narrows the pull to records updated after the last sync.
func (c *Client) FirstPageURL(shopDomain string, entity core.EntityType, since *time.Time) string {
	query := url.Values{}
	query.Set("limit", fmt.Sprintf("%d", c.pageLimit()))
	if entity == core.EntityOrders {
		query.Set("status", "any")
	}
	if since != nil && !since.IsZero() {
		query.Set("updated_at_min", since.UTC().Format(time.RFC3339))
	}
	return c.adminURL(shopDomain, string(entity)+".json") + "?" + query.Encode()
}

// FetchPage GETs pageURL and decodes the entity array. The next page URL is
// taken from the Link header.
func (c *Client) FetchPage(ctx context.Context, creds Credentials, entity core.EntityType, pageURL string) (Page, error) {
	response, meta, err := c.do(ctx, creds, "list_"+string(entity), http.MethodGet, pageURL, nil)
	if err != nil {
		return Page{}, err
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(response.Body, &doc); err != nil {
		return Page{}, core.ExternalError(err, "shopify: decode "+string(entity)+" page", map[string]any{
			"shop_domain": creds.ShopDomain,
		})
	}
	page := Page{Entity: entity, Meta: meta, NextURL: NextPageURL(headerValue(response.Headers, HeaderLink))}
	if raw, ok := doc[string(entity)]; ok && len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &page.Items); err != nil {
			return Page{}, core.ExternalError(err, "shopify: decode "+string(entity)+" items", map[string]any{
				"shop_domain": creds.ShopDomain,
			})
		}
	}
	return page, nil
}

// NextPageURL returns the rel="next" target of a Link header, or "".
func NextPageURL(link string) string {
	for _, part := range strings.Split(link, ",") {
		segments := strings.Split(part, ";")
		if len(segments) < 2 {
			continue
		}
		target := strings.TrimSpace(segments[0])
		for _, param := range segments[1:] {
			name, value, ok := strings.Cut(strings.TrimSpace(param), "=")
			if !ok || !strings.EqualFold(strings.TrimSpace(name), "rel") {
				continue
			}
			if strings.Trim(strings.TrimSpace(value), `"`) == "next" {
				return strings.Trim(target, "<>")
			}
		}
	}
	return ""
}

func (c *Client) do(
	ctx context.Context,
	creds Credentials,
	operation string,
	method string,
	target string,
	body []byte,
) (response core.TransportResponse, meta ResponseMeta, err error) {
	startedAt := time.Now()
	defer func() {
		fields := meta.Fields()
		fields["shop_domain"] = creds.ShopDomain
		c.observer().Observe(ctx, startedAt, operation, err, fields)
	}()
	if c == nil || c.Transport == nil {
		return core.TransportResponse{}, ResponseMeta{}, core.InternalError(nil, "shopify: client transport is not configured")
	}
	if strings.TrimSpace(creds.ShopDomain) == "" {
		return core.TransportResponse{}, ResponseMeta{}, core.BadInputError("shopify: shop domain is required")
	}
	if strings.TrimSpace(creds.AccessToken) == "" {
		return core.TransportResponse{}, ResponseMeta{}, core.BadInputError("shopify: access token is required")
	}
	if err := c.Pacer.BeforeCall(ctx, creds.ShopDomain); err != nil {
		return core.TransportResponse{}, ResponseMeta{}, err
	}

	response, err = c.Transport.Do(ctx, core.TransportRequest{
		Method:  method,
		URL:     target,
		Headers: map[string]string{HeaderAccessToken: creds.AccessToken},
		Body:    body,
		Timeout: c.Timeout,
	})
	if err != nil {
		return core.TransportResponse{}, ResponseMeta{}, err
	}
	meta = ParseResponseMeta(response)
	if _, err := c.Pacer.AfterCall(ctx, creds.ShopDomain, response); err != nil {
		c.observer().Warn(ctx, "call budget not recorded", map[string]any{"shop_domain": creds.ShopDomain, "error": err.Error()})
	}
	return response, meta, statusError(creds.ShopDomain, operation, response, meta)
}

func (c *Client) adminURL(shopDomain string, resource string) string {
	endpoint := HTTPSEndpoint
	if c.Endpoint != nil {
		endpoint = c.Endpoint
	}
	version := strings.TrimSpace(c.APIVersion)
	if version == "" {
		version = core.DefaultAPIVersion
	}
	return strings.TrimRight(endpoint(shopDomain), "/") + "/admin/api/" + version + "/" + strings.TrimLeft(resource, "/")
}

func (c *Client) pageLimit() int {
	if c.PageLimit <= 0 || c.PageLimit > core.DefaultPageLimit {
		return core.DefaultPageLimit
	}
	return c.PageLimit
}

func (c *Client) observer() *core.Observer {
	if c == nil {
		return nil
	}
	return c.Observer
}
