// Package merge combines order lists from multiple backends into one logical
// set, removing duplicate records of the same transaction.
package merge

import (
	"github.com/opensource-commerce/kestrel/internal/domain"
)

// Orders concatenates the given lists and removes duplicates on the
// composite dedup key (source, id). First-seen wins: within a duplicate
// group the earliest record in concatenation order is kept, so callers must
// pass sources and chunks in a stable order for reproducible results.
//
// Duplicates arise when the same backend is queried twice for overlapping
// windows (pagination, retries); an order present in exactly one backend is
// kept exactly once. Cancelled orders are retained (cancellation is a
// property, not a deletion trigger) and filtered at aggregation time.
//
// Nil or empty lists are treated as empty, never as an error.
func Orders(lists ...[]domain.Order) []domain.Order {
	total := 0
	for _, list := range lists {
		total += len(list)
	}

	seen := make(map[string]struct{}, total)
	merged := make([]domain.Order, 0, total)

	for _, list := range lists {
		for _, o := range list {
			key := o.DedupKey()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, o)
		}
	}

	return merged
}

// CountBySource tallies merged orders per backend, for fetch metadata.
func CountBySource(orders []domain.Order) map[domain.OrderSource]int {
	counts := make(map[domain.OrderSource]int, len(domain.Sources))
	for _, o := range orders {
		counts[o.Source]++
	}
	return counts
}
