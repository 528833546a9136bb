package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// OrderSource identifies which commerce backend produced an order.
type OrderSource string

const (
	// SourceStorefront is the hosted storefront backend.
	SourceStorefront OrderSource = "storefront"

	// SourceMarketplace is the marketplace backend.
	SourceMarketplace OrderSource = "marketplace"
)

// Sources lists all backends in their canonical concatenation order.
// Merge results depend on this order (first seen wins), so it is fixed.
var Sources = []OrderSource{SourceStorefront, SourceMarketplace}

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	// StatusNormal is a completed or in-progress order counted in revenue.
	StatusNormal OrderStatus = "normal"

	// StatusCancelled marks an order excluded from revenue aggregation.
	// Cancelled orders are kept in merged sets; aggregations filter them.
	StatusCancelled OrderStatus = "cancelled"
)

// Order is the canonical, source-agnostic order record. Vendor payloads are
// converted to this shape by the normalize adapters before any core logic runs.
type Order struct {
	// ID is the source-local order identifier. Unique within a source only.
	ID     string      `json:"id"`
	Source OrderSource `json:"source"`

	// OrderDate is the calendar date the order was placed. Source of truth
	// for recency and period bucketing.
	OrderDate time.Time `json:"orderDate"`

	// Total is the order amount in the local currency. Never negative after
	// normalization; malformed vendor amounts normalize to zero.
	Total decimal.Decimal `json:"total"`

	Status OrderStatus `json:"status"`

	// Identity fields, all best-effort. Document is a national tax id
	// (CPF/CNPJ), the strongest identity signal across both backends.
	CustomerName string `json:"customerName,omitempty"`
	Email        string `json:"email,omitempty"`
	Document     string `json:"document,omitempty"`

	// Raw is the original vendor payload, retained for diagnostics only.
	// Never read by computation logic.
	Raw json.RawMessage `json:"raw,omitempty"`
}

// Cancelled reports whether the order is excluded from revenue aggregation.
func (o *Order) Cancelled() bool {
	return o.Status == StatusCancelled
}

// DedupKey is the composite identifier used to detect duplicate records
// during merge. Both backends use independent ID spaces, so the source is
// part of the key.
func (o *Order) DedupKey() string {
	return string(o.Source) + ":" + o.ID
}

// OrderSet is a merged order set plus the fetch metadata callers need to
// distinguish partial data from zero data.
type OrderSet struct {
	TenantID string    `json:"tenantId"`
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`

	Orders []Order `json:"orders"`

	// ChunksAttempted and ChunksFailed count upstream fetch chunks across
	// all sources. A nonzero ChunksFailed means the set may undercount.
	ChunksAttempted int `json:"chunksAttempted"`
	ChunksFailed    int `json:"chunksFailed"`

	// CountBySource is the post-merge order count per backend.
	CountBySource map[OrderSource]int `json:"countBySource"`
}

// Complete reports whether every upstream chunk fetch succeeded.
func (s *OrderSet) Complete() bool {
	return s.ChunksFailed == 0
}
