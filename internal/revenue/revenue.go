// Package revenue classifies merged orders into new-customer and
// returning-customer revenue buckets for a period.
package revenue

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-commerce/kestrel/internal/domain"
	"github.com/opensource-commerce/kestrel/internal/identity"
)

// Segment splits the period's revenue by customer acquisition status. A
// customer is "new" when their earliest non-cancelled order across the
// supplied history falls inside [periodStart, periodEnd]; every other
// customer's in-period revenue counts as returning. A customer's revenue is
// never attributed to both buckets.
//
// Correct classification requires the full order history per customer, or at
// least history reaching back to each customer's first order. When the caller
// can only supply a bounded window, it must pass historyComplete=false; the
// flag is carried through so presentation can mark the split as approximate
// instead of authoritative.
//
// Cancelled orders are excluded from both revenue and first-order detection.
func Segment(orders []domain.Order, periodStart, periodEnd time.Time, historyComplete bool) domain.RevenueBreakdown {
	firstOrder := make(map[string]time.Time)

	for _, o := range orders {
		if o.Cancelled() {
			continue
		}
		key := identity.Resolve(o)
		if first, ok := firstOrder[key]; !ok || o.OrderDate.Before(first) {
			firstOrder[key] = o.OrderDate
		}
	}

	breakdown := domain.RevenueBreakdown{
		PeriodStart:              periodStart,
		PeriodEnd:                periodEnd,
		NewCustomerRevenue:       decimal.Zero,
		ReturningCustomerRevenue: decimal.Zero,
		HistoryComplete:          historyComplete,
	}

	acquired := make(map[string]struct{})

	for _, o := range orders {
		if o.Cancelled() || !inPeriod(o.OrderDate, periodStart, periodEnd) {
			continue
		}

		key := identity.Resolve(o)
		if inPeriod(firstOrder[key], periodStart, periodEnd) {
			breakdown.NewCustomerRevenue = breakdown.NewCustomerRevenue.Add(o.Total)
			acquired[key] = struct{}{}
		} else {
			breakdown.ReturningCustomerRevenue = breakdown.ReturningCustomerRevenue.Add(o.Total)
		}
	}

	breakdown.AcquiredCustomerCount = len(acquired)
	return breakdown
}

func inPeriod(t, start, end time.Time) bool {
	return !t.Before(start) && !t.After(end)
}
