package rfm

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-commerce/kestrel/internal/domain"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCalculate(t *testing.T) {
	asOf := day(2026, 3, 1)

	t.Run("EmptyInput", func(t *testing.T) {
		records := Calculate(nil, asOf)
		if records == nil {
			t.Fatal("expected empty slice, got nil")
		}
		if len(records) != 0 {
			t.Errorf("expected 0 records, got %d", len(records))
		}
	})

	t.Run("AggregatesPerCustomer", func(t *testing.T) {
		orders := []domain.Order{
			{ID: "S-1", Source: domain.SourceStorefront, OrderDate: day(2026, 1, 10), Total: dec("1234.50"), Email: "maria@example.com"},
			{ID: "M-1", Source: domain.SourceMarketplace, OrderDate: day(2026, 2, 15), Total: dec("300.25"), Email: "maria@example.com"},
			{ID: "S-2", Source: domain.SourceStorefront, OrderDate: day(2026, 2, 10), Total: dec("50.00"), Email: "joao@example.com"},
		}

		records := Calculate(orders, asOf)
		if len(records) != 2 {
			t.Fatalf("expected 2 customers, got %d", len(records))
		}

		byID := make(map[string]domain.RFMRecord)
		for _, rec := range records {
			byID[rec.CustomerID] = rec
		}

		maria := byID["email:maria@example.com"]
		if maria.Frequency != 2 {
			t.Errorf("expected frequency 2, got %d", maria.Frequency)
		}
		if !maria.Monetary.Equal(dec("1534.75")) {
			t.Errorf("expected monetary 1534.75, got %s", maria.Monetary)
		}
		if !maria.LastOrderDate.Equal(day(2026, 2, 15)) {
			t.Errorf("expected last order 2026-02-15, got %v", maria.LastOrderDate)
		}
		if maria.RecencyDays != 14 {
			t.Errorf("expected recency 14 days, got %d", maria.RecencyDays)
		}
	})

	t.Run("CancelledExcluded", func(t *testing.T) {
		orders := []domain.Order{
			{ID: "S-1", OrderDate: day(2026, 1, 10), Total: dec("100.00"), Email: "a@b.com"},
			{ID: "S-2", OrderDate: day(2026, 2, 20), Total: dec("900.00"), Email: "a@b.com", Status: domain.StatusCancelled},
		}

		records := Calculate(orders, asOf)
		if len(records) != 1 {
			t.Fatalf("expected 1 customer, got %d", len(records))
		}

		rec := records[0]
		if rec.Frequency != 1 {
			t.Errorf("expected cancelled order excluded from frequency, got %d", rec.Frequency)
		}
		if !rec.Monetary.Equal(dec("100.00")) {
			t.Errorf("expected cancelled order excluded from monetary, got %s", rec.Monetary)
		}
		// The cancelled Feb order must not advance recency either
		if !rec.LastOrderDate.Equal(day(2026, 1, 10)) {
			t.Errorf("expected last order 2026-01-10, got %v", rec.LastOrderDate)
		}
	})

	t.Run("OnlyCancelledYieldsNoRecord", func(t *testing.T) {
		orders := []domain.Order{
			{ID: "S-1", OrderDate: day(2026, 1, 10), Total: dec("100.00"), Email: "a@b.com", Status: domain.StatusCancelled},
		}

		if records := Calculate(orders, asOf); len(records) != 0 {
			t.Errorf("expected no record for cancelled-only customer, got %d", len(records))
		}
	})

	t.Run("RecencyFloorsAndNeverNegative", func(t *testing.T) {
		orders := []domain.Order{
			// 13.5 days before asOf: floors to 13
			{ID: "S-1", OrderDate: time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC), Total: dec("10"), Email: "a@b.com"},
			// Order after asOf: clamps to 0
			{ID: "S-2", OrderDate: day(2026, 3, 5), Total: dec("10"), Email: "c@d.com"},
		}

		records := Calculate(orders, asOf)
		byID := make(map[string]int)
		for _, rec := range records {
			byID[rec.CustomerID] = rec.RecencyDays
		}

		if byID["email:a@b.com"] != 13 {
			t.Errorf("expected recency floored to 13, got %d", byID["email:a@b.com"])
		}
		if byID["email:c@d.com"] != 0 {
			t.Errorf("expected recency clamped to 0 for future order, got %d", byID["email:c@d.com"])
		}
	})
}

func TestApplyScores(t *testing.T) {
	t.Run("EmptyInput", func(t *testing.T) {
		ApplyScores(nil) // must not panic
	})

	t.Run("SingleCustomerGetsTopScores", func(t *testing.T) {
		records := []domain.RFMRecord{
			{CustomerID: "only", RecencyDays: 100, Frequency: 1, Monetary: dec("10")},
		}
		ApplyScores(records)

		if records[0].RecencyScore != 5 || records[0].FrequencyScore != 5 || records[0].MonetaryScore != 5 {
			t.Errorf("expected 5/5/5 for a population of one, got %d/%d/%d",
				records[0].RecencyScore, records[0].FrequencyScore, records[0].MonetaryScore)
		}
	})

	t.Run("QuintilesOverPopulation", func(t *testing.T) {
		// Ten customers with strictly increasing recency, frequency and spend.
		records := make([]domain.RFMRecord, 10)
		for i := range records {
			records[i] = domain.RFMRecord{
				CustomerID:  fmt.Sprintf("c-%d", i),
				RecencyDays: i * 10,
				Frequency:   10 - i,
				Monetary:    decimal.NewFromInt(int64(1000 - i*100)),
			}
		}

		ApplyScores(records)

		// Best recency (0 days) ranks 5, worst (90 days) ranks 1
		if records[0].RecencyScore != 5 {
			t.Errorf("expected best recency score 5, got %d", records[0].RecencyScore)
		}
		if records[9].RecencyScore != 1 {
			t.Errorf("expected worst recency score 1, got %d", records[9].RecencyScore)
		}

		// Frequency and monetary decrease with index: first is best
		if records[0].FrequencyScore != 5 || records[0].MonetaryScore != 5 {
			t.Errorf("expected 5/5 for best customer, got %d/%d", records[0].FrequencyScore, records[0].MonetaryScore)
		}
		if records[9].FrequencyScore != 1 || records[9].MonetaryScore != 1 {
			t.Errorf("expected 1/1 for worst customer, got %d/%d", records[9].FrequencyScore, records[9].MonetaryScore)
		}

		// Two customers per quintile in a population of ten
		counts := make(map[int]int)
		for _, rec := range records {
			counts[rec.MonetaryScore]++
		}
		for score := 1; score <= 5; score++ {
			if counts[score] != 2 {
				t.Errorf("expected 2 customers with monetary score %d, got %d", score, counts[score])
			}
		}
	})

	t.Run("ScoresAlwaysInRange", func(t *testing.T) {
		records := make([]domain.RFMRecord, 7)
		for i := range records {
			records[i] = domain.RFMRecord{
				CustomerID:  fmt.Sprintf("c-%d", i),
				RecencyDays: i,
				Frequency:   i,
				Monetary:    decimal.NewFromInt(int64(i)),
			}
		}

		ApplyScores(records)

		for _, rec := range records {
			for _, score := range []int{rec.RecencyScore, rec.FrequencyScore, rec.MonetaryScore} {
				if score < 1 || score > 5 {
					t.Errorf("score out of range for %s: %d", rec.CustomerID, score)
				}
			}
		}
	})
}

func TestSortByMonetary(t *testing.T) {
	records := []domain.RFMRecord{
		{CustomerID: "low", Monetary: dec("10")},
		{CustomerID: "high", Monetary: dec("1000")},
		{CustomerID: "mid", Monetary: dec("500")},
	}

	SortByMonetary(records)

	if records[0].CustomerID != "high" || records[1].CustomerID != "mid" || records[2].CustomerID != "low" {
		t.Errorf("unexpected order: %s, %s, %s", records[0].CustomerID, records[1].CustomerID, records[2].CustomerID)
	}
}
