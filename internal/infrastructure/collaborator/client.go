// Package collaborator holds the HTTP clients for the order, inventory,
// pricing, listing and notification services the domain handlers call.
package collaborator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/meschain/webhook-gateway/internal/domain/shared"
	"github.com/meschain/webhook-gateway/internal/infrastructure/config"
)

// maxResponseSize limits the response body read from a collaborator.
const maxResponseSize = 4 * 1024 * 1024

// ErrMissingBaseURL is returned when a client has no endpoint.
var ErrMissingBaseURL = errors.New("collaborator: base URL is required")

// Client is a JSON-over-HTTP client for one collaborator service.
type Client struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default traced client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

// WithAPIKey sends key as a bearer token on every request.
func WithAPIKey(key string) ClientOption {
	return func(cl *Client) {
		cl.apiKey = key
	}
}

// NewClient creates a client for the service named name at baseURL.
func NewClient(name, baseURL string, timeout time.Duration, opts ...ClientOption) (*Client, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		return nil, fmt.Errorf("%s: %w", name, ErrMissingBaseURL)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		name:    name,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// path joins escaped segments under the base URL.
func (c *Client) path(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return c.baseURL + "/" + strings.Join(escaped, "/")
}

// do sends in as JSON and decodes the response into out. 404 maps to
// shared.ErrNotFound, 409 to shared.ErrAlreadyExists, 5xx and transport
// failures to shared.ErrUnavailable.
func (c *Client) do(ctx context.Context, method, target string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: failed to marshal request: %w", c.name, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", c.name, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w: %v", c.name, shared.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%s: failed to read response: %w", c.name, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", c.name, shared.ErrNotFound)
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%s: %w", c.name, shared.ErrAlreadyExists)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%s: %w: HTTP %d", c.name, shared.ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%s: %w: HTTP %d: %s", c.name, shared.ErrInvalidInput, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", c.name, err)
	}
	return nil
}

// endpoint picks the specific URL or base + suffix.
func endpoint(specific, base, suffix string) string {
	if specific != "" {
		return specific
	}
	return strings.TrimRight(base, "/") + suffix
}

// Services bundles one client per collaborator.
type Services struct {
	Orders        *OrderClient
	Inventory     *InventoryClient
	Pricing       *PricingClient
	Listings      *ListingClient
	Notifications *NotificationClient
}

// NewServices builds all clients from configuration. Service-specific URLs
// override BaseURL + "/<service>".
func NewServices(cfg config.CollaboratorsConfig) (*Services, error) {
	opts := []ClientOption{WithAPIKey(cfg.APIKey)}
	build := func(name, specific, suffix string) (*Client, error) {
		return NewClient(name, endpoint(specific, cfg.BaseURL, suffix), cfg.Timeout, opts...)
	}

	orders, err := build("order-service", cfg.OrderURL, "/orders-api")
	if err != nil {
		return nil, err
	}
	inventory, err := build("inventory-service", cfg.InventoryURL, "/inventory-api")
	if err != nil {
		return nil, err
	}
	pricing, err := build("pricing-service", cfg.PricingURL, "/pricing-api")
	if err != nil {
		return nil, err
	}
	listings, err := build("listing-service", cfg.ListingURL, "/listing-api")
	if err != nil {
		return nil, err
	}
	notifications, err := build("notification-service", cfg.NotificationURL, "/notification-api")
	if err != nil {
		return nil, err
	}

	return &Services{
		Orders:        NewOrderClient(orders),
		Inventory:     NewInventoryClient(inventory),
		Pricing:       NewPricingClient(pricing),
		Listings:      NewListingClient(listings),
		Notifications: NewNotificationClient(notifications),
	}, nil
}
