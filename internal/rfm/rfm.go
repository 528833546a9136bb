// Package rfm computes per-customer Recency/Frequency/Monetary analytics
// over a merged order set.
package rfm

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-commerce/kestrel/internal/domain"
	"github.com/opensource-commerce/kestrel/internal/identity"
)

// Calculate aggregates the order set into one RFM record per resolved
// customer. Cancelled orders are excluded before grouping. The result is
// unsorted by contract; use SortByMonetary for presentation.
//
// recencyDays is whole days between asOf and the customer's last order date,
// floored. An empty input returns an empty slice.
func Calculate(orders []domain.Order, asOf time.Time) []domain.RFMRecord {
	byCustomer := make(map[string]*domain.RFMRecord)

	for _, o := range orders {
		if o.Cancelled() {
			continue
		}

		key := identity.Resolve(o)
		rec, ok := byCustomer[key]
		if !ok {
			rec = &domain.RFMRecord{
				CustomerID: key,
				Monetary:   decimal.Zero,
			}
			byCustomer[key] = rec
		}

		rec.Frequency++
		rec.Monetary = rec.Monetary.Add(o.Total)
		if o.OrderDate.After(rec.LastOrderDate) {
			rec.LastOrderDate = o.OrderDate
		}
	}

	records := make([]domain.RFMRecord, 0, len(byCustomer))
	for _, rec := range byCustomer {
		rec.RecencyDays = daysBetween(rec.LastOrderDate, asOf)
		records = append(records, *rec)
	}

	return records
}

// daysBetween returns whole days from a to b, floored, never negative.
func daysBetween(a, b time.Time) int {
	if b.Before(a) {
		return 0
	}
	return int(b.Sub(a).Hours() / 24)
}

// ApplyScores assigns rank-based quintile scores (1..5, 5 best) for each
// dimension, computed from the supplied population only. Scores are a pure
// function of the input distribution and must be recomputed whenever the
// order set changes; they are never cached or persisted.
//
// Recency is inverted: fewer days since the last order ranks higher.
func ApplyScores(records []domain.RFMRecord) {
	n := len(records)
	if n == 0 {
		return
	}

	idx := make([]int, n)

	// Recency: ascending days = best first.
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return records[idx[a]].RecencyDays < records[idx[b]].RecencyDays
	})
	for rank, i := range idx {
		records[i].RecencyScore = quintile(rank, n)
	}

	// Frequency: descending count = best first.
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return records[idx[a]].Frequency > records[idx[b]].Frequency
	})
	for rank, i := range idx {
		records[i].FrequencyScore = quintile(rank, n)
	}

	// Monetary: descending spend = best first.
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return records[idx[a]].Monetary.GreaterThan(records[idx[b]].Monetary)
	})
	for rank, i := range idx {
		records[i].MonetaryScore = quintile(rank, n)
	}
}

// quintile maps a zero-based rank (0 = best) in a population of n to a score
// of 5 down to 1.
func quintile(rank, n int) int {
	score := 5 - (rank*5)/n
	if score < 1 {
		score = 1
	}
	return score
}

// SortByMonetary orders records by descending spend, the reference display
// order. Presentation concern only; Calculate output is unsorted by contract.
func SortByMonetary(records []domain.RFMRecord) {
	sort.SliceStable(records, func(a, b int) bool {
		return records[a].Monetary.GreaterThan(records[b].Monetary)
	})
}
