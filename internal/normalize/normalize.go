// Package normalize converts raw vendor order payloads into the canonical
// Order shape. Each backend gets its own tagged adapter; no field probing
// happens downstream of this package.
package normalize

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/opensource-commerce/kestrel/internal/domain"
)

// Vendor date layouts, tried in order.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
}

// StorefrontOrder is the raw order shape returned by the storefront API.
// Totals arrive as locale-formatted strings ("1.234,50"); the customer block
// may be absent or partially filled.
type StorefrontOrder struct {
	Number    string `json:"numero"`
	CreatedAt string `json:"data"`
	Total     string `json:"total"`
	Situation string `json:"situacao"`
	Customer  struct {
		Name     string `json:"nome"`
		Email    string `json:"email"`
		Document string `json:"cpf_cnpj"`
	} `json:"cliente"`
}

// Storefront situations that mean the order no longer counts as revenue.
var storefrontCancelled = map[string]bool{
	"cancelado": true,
	"cancelled": true,
	"canceled":  true,
	"estornado": true,
	"3":         true, // numeric situation code used by older API versions
}

// Normalize converts the storefront shape to a canonical Order. The original
// payload is retained in Raw for diagnostics.
func (s *StorefrontOrder) Normalize() domain.Order {
	raw, _ := json.Marshal(s)
	return domain.Order{
		ID:           s.Number,
		Source:       domain.SourceStorefront,
		OrderDate:    parseDate(s.CreatedAt),
		Total:        ParseAmount(s.Total),
		Status:       storefrontStatus(s.Situation),
		CustomerName: strings.TrimSpace(s.Customer.Name),
		Email:        strings.TrimSpace(s.Customer.Email),
		Document:     strings.TrimSpace(s.Customer.Document),
		Raw:          raw,
	}
}

func storefrontStatus(situation string) domain.OrderStatus {
	if storefrontCancelled[strings.ToLower(strings.TrimSpace(situation))] {
		return domain.StatusCancelled
	}
	return domain.StatusNormal
}

// MarketplaceOrder is the raw order shape returned by the marketplace API.
// Amounts are JSON numbers; buyer identity fields live at the top level.
type MarketplaceOrder struct {
	OrderID    string  `json:"order_id"`
	PlacedAt   string  `json:"placed_at"`
	GrandTotal float64 `json:"grand_total"`
	Status     string  `json:"status"`
	BuyerName  string  `json:"buyer_name"`
	BuyerEmail string  `json:"buyer_email"`
	BuyerTaxID string  `json:"buyer_tax_id"`
}

// Normalize converts the marketplace shape to a canonical Order.
func (m *MarketplaceOrder) Normalize() domain.Order {
	raw, _ := json.Marshal(m)

	status := domain.StatusNormal
	switch strings.ToLower(strings.TrimSpace(m.Status)) {
	case "cancelled", "canceled", "refunded":
		status = domain.StatusCancelled
	}

	return domain.Order{
		ID:           m.OrderID,
		Source:       domain.SourceMarketplace,
		OrderDate:    parseDate(m.PlacedAt),
		Total:        ParseAmount(m.GrandTotal),
		Status:       status,
		CustomerName: strings.TrimSpace(m.BuyerName),
		Email:        strings.TrimSpace(m.BuyerEmail),
		Document:     strings.TrimSpace(m.BuyerTaxID),
		Raw:          raw,
	}
}

// StorefrontOrders normalizes a storefront result page.
func StorefrontOrders(raw []StorefrontOrder) []domain.Order {
	orders := make([]domain.Order, 0, len(raw))
	for i := range raw {
		orders = append(orders, raw[i].Normalize())
	}
	return orders
}

// MarketplaceOrders normalizes a marketplace result page.
func MarketplaceOrders(raw []MarketplaceOrder) []domain.Order {
	orders := make([]domain.Order, 0, len(raw))
	for i := range raw {
		orders = append(orders, raw[i].Normalize())
	}
	return orders
}

func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
