// Package datasource fetches tenant inventory and billing records from the
// inventory backend over HTTP. The rest of the system only sees the
// rag.DataSource interface, so the backend can be swapped without touching
// the index or pipeline layers.
package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/54b3r/pantryai-go/internal/rag"
)

// defaultFetchTimeout bounds each backend call.
const defaultFetchTimeout = 15 * time.Second

// Client is an HTTP rag.DataSource backed by the inventory service. It is
// safe for concurrent use.
type Client struct {
	// baseURL is the inventory service base URL.
	baseURL string
	// apiKey is the optional bearer token for the inventory service.
	apiKey string
	// client is the shared HTTP client with a request timeout.
	client *http.Client
}

// Config holds the settings for constructing a Client.
type Config struct {
	// BaseURL is the inventory service base URL (e.g. "http://inventory:8080").
	BaseURL string
	// APIKey is an optional bearer token sent on every request.
	APIKey string
	// Timeout bounds each backend call. Defaults to 15s if zero.
	Timeout time.Duration
}

// New constructs a Client from the given config.
func New(cfg *Config) (*Client, error) {
	if cfg == nil || cfg.BaseURL == "" {
		return nil, fmt.Errorf("datasource: base URL must not be empty")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("datasource: invalid base URL %q: %w", cfg.BaseURL, err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// record is the wire shape of one inventory or billing row.
type record struct {
	ItemName string  `json:"item_name"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
	Month    string  `json:"month"`
}

// Fetch returns the tenant's inventory records followed by its billing
// records. Ordering matters downstream: document position is the tie-breaker
// in nearest-neighbour search, so inventory rows always rank ahead of billing
// rows at equal distance.
func (c *Client) Fetch(ctx context.Context, tenantID string) ([]rag.RawRecord, error) {
	inventory, err := c.fetchCollection(ctx, tenantID, "inventory")
	if err != nil {
		return nil, fmt.Errorf("datasource: fetch inventory for tenant %s: %w", tenantID, err)
	}
	billing, err := c.fetchCollection(ctx, tenantID, "billing")
	if err != nil {
		return nil, fmt.Errorf("datasource: fetch billing for tenant %s: %w", tenantID, err)
	}

	records := make([]rag.RawRecord, 0, len(inventory)+len(billing))
	for _, r := range inventory {
		records = append(records, rag.RawRecord{
			Kind:     rag.KindInventory,
			ItemName: r.ItemName,
			Quantity: r.Quantity,
			Price:    r.Price,
			Month:    r.Month,
		})
	}
	for _, r := range billing {
		records = append(records, rag.RawRecord{
			Kind:     rag.KindBilling,
			ItemName: r.ItemName,
			Quantity: r.Quantity,
			Price:    r.Price,
			Month:    r.Month,
		})
	}
	return records, nil
}

// fetchCollection retrieves one collection (inventory or billing) for the
// tenant. A 404 means the tenant has no rows in that collection and is not
// an error.
func (c *Client) fetchCollection(ctx context.Context, tenantID, collection string) ([]record, error) {
	u := fmt.Sprintf("%s/api/tenants/%s/%s", c.baseURL, url.PathEscape(tenantID), collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s returned HTTP %d", collection, resp.StatusCode)
	}

	var records []record
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", collection, err)
	}
	return records, nil
}

// Ping checks that the inventory backend is reachable. Used by the readiness
// probe.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return fmt.Errorf("datasource: create ping request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("datasource: ping failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("datasource: ping returned HTTP %d", resp.StatusCode)
	}
	return nil
}
