package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RFMRecord is the per-customer Recency/Frequency/Monetary projection over a
// merged order set. Computed fresh on each analytics run, never persisted as
// authoritative state; the upstream order systems remain the source of truth.
//
// CustomerID is a best-effort identity key (see identity.Resolve): when
// resolution falls back to weak signals such as the customer name, distinct
// customers can collide. Treat these records as a heuristic projection, not
// ground truth.
type RFMRecord struct {
	CustomerID string `json:"customerId"`

	// RecencyDays is whole days since the most recent order, as of the
	// analysis run time (floor).
	RecencyDays int `json:"recencyDays"`

	// Frequency is the count of non-cancelled orders attributed to the
	// customer.
	Frequency int `json:"frequency"`

	// Monetary is the sum of non-cancelled order totals.
	Monetary decimal.Decimal `json:"monetary"`

	LastOrderDate time.Time `json:"lastOrderDate"`

	// Quintile scores (1..5, 5 best) computed rank-based over the full
	// population at call time. Zero until ApplyScores runs.
	RecencyScore   int `json:"rScore,omitempty"`
	FrequencyScore int `json:"fScore,omitempty"`
	MonetaryScore  int `json:"mScore,omitempty"`

	// Segment is the first matching segment label, empty when no segment
	// rule matched or labeling was not requested.
	Segment string `json:"segment,omitempty"`
}

// RevenueBreakdown splits a period's revenue into new-customer and
// returning-customer buckets.
type RevenueBreakdown struct {
	PeriodStart time.Time `json:"periodStart"`
	PeriodEnd   time.Time `json:"periodEnd"`

	NewCustomerRevenue       decimal.Decimal `json:"newCustomerRevenue"`
	ReturningCustomerRevenue decimal.Decimal `json:"returningCustomerRevenue"`

	// AcquiredCustomerCount is the number of customers whose earliest order
	// in the supplied history falls inside the period.
	AcquiredCustomerCount int `json:"acquiredCustomerCount"`

	// HistoryComplete is false when the caller supplied only a partial
	// order history. Classification of "new" customers is then approximate:
	// a customer whose first-ever order predates the supplied history is
	// miscounted as new.
	HistoryComplete bool `json:"historyComplete"`
}

// SegmentConfig defines one customer segment as a CEL expression over RFM
// variables (recency_days, frequency, monetary, r_score, f_score, m_score).
// Segments are evaluated in Priority order; the first match wins.
type SegmentConfig struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Expression  string `json:"expression"`
	Priority    int    `json:"priority"`
	Enabled     bool   `json:"enabled"`
}
