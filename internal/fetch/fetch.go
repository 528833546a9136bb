// Package fetch provides the thin HTTP clients for the two commerce
// backends. Each client implements domain.OrderFetcher: it pages through the
// vendor's order search for a date range and returns canonical orders via
// the normalize adapters. Everything else (caching, chunking, merge) is the
// collect pipeline's job.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/opensource-commerce/kestrel/internal/domain"
	"github.com/opensource-commerce/kestrel/internal/normalize"
)

const defaultPageSize = 100

// Client holds shared HTTP client configuration for vendor APIs.
type Client struct {
	baseURL    string
	token      string
	pageSize   int
	httpClient *http.Client
}

func newClient(baseURL, token string) Client {
	return Client{
		baseURL:  baseURL,
		token:    token,
		pageSize: defaultPageSize,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// StorefrontClient fetches orders from the storefront API.
type StorefrontClient struct {
	Client
}

// NewStorefrontClient creates a storefront order fetcher.
func NewStorefrontClient(baseURL, token string) *StorefrontClient {
	return &StorefrontClient{newClient(baseURL, token)}
}

// Source implements domain.OrderFetcher.
func (c *StorefrontClient) Source() domain.OrderSource {
	return domain.SourceStorefront
}

// FetchOrders pages through the storefront order search for [start, end].
// The requested page size is sent explicitly; a short page means the last
// one.
func (c *StorefrontClient) FetchOrders(ctx context.Context, tenantID string, start, end time.Time) ([]domain.Order, error) {
	var orders []domain.Order

	for page := 1; ; page++ {
		query := url.Values{
			"data_inicial": {start.Format("2006-01-02")},
			"data_final":   {end.Format("2006-01-02")},
			"pagina":       {strconv.Itoa(page)},
			"limite":       {strconv.Itoa(c.pageSize)},
			"loja":         {tenantID},
		}

		var body struct {
			Orders []normalize.StorefrontOrder `json:"pedidos"`
		}
		if err := c.getJSON(ctx, "/pedidos", query, &body); err != nil {
			return nil, fmt.Errorf("storefront page %d: %w", page, err)
		}

		orders = append(orders, normalize.StorefrontOrders(body.Orders)...)
		if len(body.Orders) < c.pageSize {
			return orders, nil
		}
	}
}

// MarketplaceClient fetches orders from the marketplace API.
type MarketplaceClient struct {
	Client
}

// NewMarketplaceClient creates a marketplace order fetcher.
func NewMarketplaceClient(baseURL, token string) *MarketplaceClient {
	return &MarketplaceClient{newClient(baseURL, token)}
}

// Source implements domain.OrderFetcher.
func (c *MarketplaceClient) Source() domain.OrderSource {
	return domain.SourceMarketplace
}

// FetchOrders pages through the marketplace order search for [start, end].
func (c *MarketplaceClient) FetchOrders(ctx context.Context, tenantID string, start, end time.Time) ([]domain.Order, error) {
	var orders []domain.Order

	for offset := 0; ; offset += c.pageSize {
		query := url.Values{
			"placed_after":  {start.Format("2006-01-02")},
			"placed_before": {end.Format("2006-01-02")},
			"offset":        {strconv.Itoa(offset)},
			"limit":         {strconv.Itoa(c.pageSize)},
			"seller_id":     {tenantID},
		}

		var body struct {
			Orders []normalize.MarketplaceOrder `json:"orders"`
		}
		if err := c.getJSON(ctx, "/v2/orders", query, &body); err != nil {
			return nil, fmt.Errorf("marketplace offset %d: %w", offset, err)
		}

		orders = append(orders, normalize.MarketplaceOrders(body.Orders)...)
		if len(body.Orders) < c.pageSize {
			return orders, nil
		}
	}
}
