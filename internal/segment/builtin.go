package segment

import "github.com/opensource-commerce/kestrel/internal/domain"

// BuiltinSegments returns the default segment definitions. Scores are
// population quintiles (1..5, 5 best), so these thresholds adapt to each
// tenant's distribution rather than fixed spend amounts.
func BuiltinSegments() []*domain.SegmentConfig {
	return []*domain.SegmentConfig{
		{
			ID:          "champion",
			Name:        "champion",
			Description: "Bought recently, buys often, spends the most",
			Expression:  "r_score >= 4 && f_score >= 4 && m_score >= 4",
			Priority:    10,
			Enabled:     true,
		},
		{
			ID:          "loyal",
			Name:        "loyal",
			Description: "Consistent repeat buyers",
			Expression:  "f_score >= 4 && r_score >= 3",
			Priority:    20,
			Enabled:     true,
		},
		{
			ID:          "promising",
			Name:        "promising",
			Description: "Recent buyers without an order history yet",
			Expression:  "r_score >= 4 && frequency <= 2",
			Priority:    30,
			Enabled:     true,
		},
		{
			ID:          "at_risk",
			Name:        "at_risk",
			Description: "Valuable customers going quiet",
			Expression:  "m_score >= 4 && r_score <= 2",
			Priority:    40,
			Enabled:     true,
		},
		{
			ID:          "hibernating",
			Name:        "hibernating",
			Description: "Low engagement, long since last order",
			Expression:  "r_score <= 2 && f_score <= 2",
			Priority:    50,
			Enabled:     true,
		},
		{
			ID:          "lost",
			Name:        "lost",
			Description: "No order in over a year",
			Expression:  "recency_days > 365",
			Priority:    60,
			Enabled:     true,
		},
	}
}
