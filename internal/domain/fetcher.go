package domain

import (
	"context"
	"time"
)

// OrderFetcher retrieves orders from one commerce backend for a date range.
// Implementations are the thin per-vendor API wrappers; they return canonical
// orders (via the normalize adapters) and surface their own failures. The
// collect pipeline treats a failed fetch as an empty contribution, so a
// fetcher must return an error rather than a partial silent result.
type OrderFetcher interface {
	// Source identifies the backend this fetcher queries.
	Source() OrderSource

	// FetchOrders returns all orders placed in [start, end], inclusive.
	// May issue multiple paginated upstream calls.
	FetchOrders(ctx context.Context, tenantID string, start, end time.Time) ([]Order, error)
}

// FetcherFunc adapts a function to the OrderFetcher interface.
type FetcherFunc struct {
	Src OrderSource
	Fn  func(ctx context.Context, tenantID string, start, end time.Time) ([]Order, error)
}

// Source implements OrderFetcher.
func (f FetcherFunc) Source() OrderSource { return f.Src }

// FetchOrders implements OrderFetcher.
func (f FetcherFunc) FetchOrders(ctx context.Context, tenantID string, start, end time.Time) ([]Order, error) {
	return f.Fn(ctx, tenantID, start, end)
}
