//go:build integration
// +build integration

// Package integration provides end-to-end tests for the Kestrel order
// reconciliation and analytics pipeline.
//
// These tests wire the COMPLETE stack in-process:
//
//	Mock vendor APIs → fetch → normalize → cache → merge → analytics → HTTP API
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// UNDERSTANDING THE DOMAIN:
//
// 1. ORDER: A sale record from one of two backends (storefront, marketplace).
//    Each backend has its own wire format; normalization produces one shape.
//
// 2. IDENTITY: Customers are matched across backends by the strongest
//    available signal: tax document > email > name.
//
// 3. MERGE: Chunked fetches can overlap; duplicate source+id pairs collapse
//    to the first record seen.
//
// 4. RFM: Recency/Frequency/Monetary per customer, quintile-scored over the
//    population, labeled with CEL segment rules (champion, loyal, ...).
//
// 5. REVENUE: In-period revenue split into new vs returning customers by
//    each customer's earliest non-cancelled order in the supplied history.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-commerce/kestrel/internal/api"
	"github.com/opensource-commerce/kestrel/internal/bus"
	"github.com/opensource-commerce/kestrel/internal/cache"
	"github.com/opensource-commerce/kestrel/internal/collect"
	"github.com/opensource-commerce/kestrel/internal/domain"
	"github.com/opensource-commerce/kestrel/internal/fetch"
	"github.com/opensource-commerce/kestrel/internal/repository"
	"github.com/opensource-commerce/kestrel/internal/segment"
	"github.com/opensource-commerce/kestrel/internal/worker"
)

const testTenant = "test-tenant"

// stack is the fully wired in-process deployment under test.
type stack struct {
	server          *httptest.Server
	storefrontHits  *atomic.Int32
	marketplaceHits *atomic.Int32
}

// newStack assembles the standalone deployment: SQLite repository, in-process
// LRU cache, channel bus, builtin segments, and mock vendor APIs.
func newStack(t *testing.T) *stack {
	t.Helper()

	var storefrontHits, marketplaceHits atomic.Int32

	// Mock storefront API: locale-formatted totals, nested customer block.
	storefrontSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		storefrontHits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"pedidos": [
			{"numero": "S-100", "data": "2026-01-10 09:30:00", "total": "1.234,50", "situacao": "atendido",
			 "cliente": {"nome": "Maria Silva", "email": "maria@example.com", "cpf_cnpj": "123.456.789-09"}},
			{"numero": "S-101", "data": "2026-02-05 14:00:00", "total": "200,00", "situacao": "cancelado",
			 "cliente": {"nome": "Maria Silva", "email": "maria@example.com", "cpf_cnpj": "123.456.789-09"}},
			{"numero": "S-102", "data": "2026-02-10 10:00:00", "total": "50,00", "situacao": "atendido",
			 "cliente": {"nome": "Joao Souza", "email": "joao@example.com"}},
			{"numero": "S-103", "data": "2026-02-20 16:45:00", "total": "150,00", "situacao": "atendido",
			 "cliente": {"nome": "Ana Lima", "email": "ana@example.com"}}
		]}`)
	}))
	t.Cleanup(storefrontSrv.Close)

	// Mock marketplace API: numeric totals, flat buyer fields. M-200 carries
	// the same tax document as S-100, digits only, so it is the same customer.
	marketplaceSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		marketplaceHits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"orders": [
			{"order_id": "M-200", "placed_at": "2026-02-15T12:00:00Z", "grand_total": 300.25, "status": "shipped",
			 "buyer_name": "Maria S.", "buyer_email": "maria.alt@example.com", "buyer_tax_id": "12345678909"},
			{"order_id": "M-201", "placed_at": "2026-01-20T08:00:00Z", "grand_total": 99.99, "status": "delivered",
			 "buyer_name": "Joao Souza", "buyer_email": "joao@example.com"}
		]}`)
	}))
	t.Cleanup(marketplaceSrv.Close)

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: t.TempDir() + "/kestrel.db",
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	cacheImpl := cache.NewLRUCache(1000)
	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	segments, err := segment.NewEngine()
	if err != nil {
		t.Fatalf("failed to create segment engine: %v", err)
	}
	if err := segments.LoadSegments(segment.BuiltinSegments()); err != nil {
		t.Fatalf("failed to load builtin segments: %v", err)
	}

	service := collect.NewService(
		domain.CollectConfig{ChunkDays: 30, CacheTTL: time.Minute, ArchiveOrders: true},
		cacheImpl, repo, eventBus, segments,
		fetch.NewStorefrontClient(storefrontSrv.URL, ""),
		fetch.NewMarketplaceClient(marketplaceSrv.URL, ""),
	)

	w := worker.NewWorker(eventBus, service)
	if err := w.Start(worker.Config{TenantIDs: []string{testTenant}}); err != nil {
		t.Fatalf("failed to start worker: %v", err)
	}
	t.Cleanup(func() { w.Stop() })

	srv := api.NewServer(domain.ServerConfig{}, service, cacheImpl, repo, eventBus, segments, "test")
	httpSrv := httptest.NewServer(srv.Router())
	t.Cleanup(httpSrv.Close)

	return &stack{
		server:          httpSrv,
		storefrontHits:  &storefrontHits,
		marketplaceHits: &marketplaceHits,
	}
}

func (s *stack) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, s.server.URL+path, reader)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", testTenant)

	resp, err := s.server.Client().Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func TestOrderPipeline(t *testing.T) {
	s := newStack(t)

	// The window spans two 30-day chunks; each chunk returns the full mock
	// payload, so merge must collapse the duplicates.
	const window = "from=2026-01-01&to=2026-02-28"

	t.Run("MergedOrders", func(t *testing.T) {
		var set domain.OrderSet
		if code := s.do(t, "GET", "/orders?"+window, nil, &set); code != http.StatusOK {
			t.Fatalf("expected 200, got %d", code)
		}

		if len(set.Orders) != 6 {
			t.Errorf("expected 6 merged orders, got %d", len(set.Orders))
		}
		if set.ChunksAttempted != 4 {
			t.Errorf("expected 4 chunks attempted (2 sources x 2 chunks), got %d", set.ChunksAttempted)
		}
		if set.ChunksFailed != 0 {
			t.Errorf("expected 0 failed chunks, got %d", set.ChunksFailed)
		}
		if set.CountBySource[domain.SourceStorefront] != 4 {
			t.Errorf("expected 4 storefront orders, got %d", set.CountBySource[domain.SourceStorefront])
		}
		if set.CountBySource[domain.SourceMarketplace] != 2 {
			t.Errorf("expected 2 marketplace orders, got %d", set.CountBySource[domain.SourceMarketplace])
		}

		// Cancelled orders are retained in the merged set.
		var sawCancelled bool
		for _, o := range set.Orders {
			if o.ID == "S-101" && o.Cancelled() {
				sawCancelled = true
			}
		}
		if !sawCancelled {
			t.Error("expected cancelled order S-101 to be retained in the merged set")
		}
	})

	t.Run("SecondRequestServedFromCache", func(t *testing.T) {
		before := s.storefrontHits.Load() + s.marketplaceHits.Load()

		var set domain.OrderSet
		s.do(t, "GET", "/orders?"+window, nil, &set)

		after := s.storefrontHits.Load() + s.marketplaceHits.Load()
		if after != before {
			t.Errorf("expected cached window to skip upstream fetches, got %d extra", after-before)
		}
	})

	t.Run("RFM", func(t *testing.T) {
		var resp struct {
			Records []domain.RFMRecord `json:"records"`
		}
		if code := s.do(t, "GET", "/analytics/rfm?"+window+"&asOf=2026-03-01", nil, &resp); code != http.StatusOK {
			t.Fatalf("expected 200, got %d", code)
		}

		if len(resp.Records) != 3 {
			t.Fatalf("expected 3 customers, got %d", len(resp.Records))
		}

		byID := make(map[string]domain.RFMRecord)
		for _, rec := range resp.Records {
			byID[rec.CustomerID] = rec
		}

		// Maria is unified across backends by tax document: S-100 (1234.50)
		// plus M-200 (300.25). The cancelled S-101 contributes nothing.
		maria, ok := byID["doc:12345678909"]
		if !ok {
			t.Fatalf("expected customer doc:12345678909, got %v", keys(byID))
		}
		if maria.Frequency != 2 {
			t.Errorf("expected frequency 2 for maria, got %d", maria.Frequency)
		}
		if !maria.Monetary.Equal(decimal.RequireFromString("1534.75")) {
			t.Errorf("expected monetary 1534.75 for maria, got %s", maria.Monetary)
		}
		if maria.RecencyDays != 13 {
			t.Errorf("expected recency 13 days for maria, got %d", maria.RecencyDays)
		}
		if maria.Segment == "" {
			t.Error("expected maria to carry a segment label")
		}

		// Joao has no document; email unifies his storefront and marketplace
		// orders.
		joao, ok := byID["email:joao@example.com"]
		if !ok {
			t.Fatalf("expected customer email:joao@example.com, got %v", keys(byID))
		}
		if joao.Frequency != 2 {
			t.Errorf("expected frequency 2 for joao, got %d", joao.Frequency)
		}
		if !joao.Monetary.Equal(decimal.RequireFromString("149.99")) {
			t.Errorf("expected monetary 149.99 for joao, got %s", joao.Monetary)
		}

		for _, rec := range resp.Records {
			if rec.RecencyScore < 1 || rec.RecencyScore > 5 {
				t.Errorf("recency score out of range for %s: %d", rec.CustomerID, rec.RecencyScore)
			}
		}
	})

	t.Run("Revenue", func(t *testing.T) {
		var resp struct {
			domain.RevenueBreakdown
		}
		path := "/analytics/revenue?from=2026-02-01&to=2026-02-28&historyFrom=2026-01-01&historyComplete=true"
		if code := s.do(t, "GET", path, nil, &resp); code != http.StatusOK {
			t.Fatalf("expected 200, got %d", code)
		}

		// Ana's first order falls inside February: 150.00 new revenue.
		// Maria and Joao both ordered in January: 300.25 + 50.00 returning.
		if !resp.NewCustomerRevenue.Equal(decimal.RequireFromString("150.00")) {
			t.Errorf("expected new revenue 150.00, got %s", resp.NewCustomerRevenue)
		}
		if !resp.ReturningCustomerRevenue.Equal(decimal.RequireFromString("350.25")) {
			t.Errorf("expected returning revenue 350.25, got %s", resp.ReturningCustomerRevenue)
		}
		if resp.AcquiredCustomerCount != 1 {
			t.Errorf("expected 1 acquired customer, got %d", resp.AcquiredCustomerCount)
		}
		if !resp.HistoryComplete {
			t.Error("expected historyComplete to be carried through")
		}
	})

	t.Run("RevenueWithoutHistoryIsApproximate", func(t *testing.T) {
		var resp struct {
			domain.RevenueBreakdown
		}
		s.do(t, "GET", "/analytics/revenue?from=2026-02-01&to=2026-02-28", nil, &resp)

		if resp.HistoryComplete {
			t.Error("expected window-only revenue split to be flagged approximate")
		}
	})

	t.Run("InvalidateRefetchesOneSource", func(t *testing.T) {
		// Warm both sources, then invalidate only the storefront chunks.
		s.do(t, "GET", "/orders?"+window, nil, nil)
		sfBefore, mpBefore := s.storefrontHits.Load(), s.marketplaceHits.Load()

		code := s.do(t, "POST", "/cache/invalidate", map[string]string{"key": "orders:storefront"}, nil)
		if code != http.StatusOK {
			t.Fatalf("expected 200, got %d", code)
		}

		s.do(t, "GET", "/orders?"+window, nil, nil)

		if got := s.storefrontHits.Load() - sfBefore; got != 2 {
			t.Errorf("expected 2 storefront refetches after invalidation, got %d", got)
		}
		if got := s.marketplaceHits.Load() - mpBefore; got != 0 {
			t.Errorf("expected marketplace to stay cached, got %d refetches", got)
		}
	})

	t.Run("AsyncRefresh", func(t *testing.T) {
		body := map[string]any{"from": "2026-01-01", "to": "2026-02-28", "force": true}
		code := s.do(t, "POST", "/refresh", body, nil)
		if code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d", code)
		}

		// The worker processes the request off the channel bus.
		time.Sleep(200 * time.Millisecond)

		var runs struct {
			Runs []*domain.AnalysisRun `json:"runs"`
		}
		s.do(t, "GET", "/runs?limit=50", nil, &runs)

		var collected *domain.AnalysisRun
		for _, run := range runs.Runs {
			if run.Kind == "collect" {
				collected = run
				break
			}
		}
		if collected == nil {
			t.Fatal("expected an audited collect run after async refresh")
		}
		if collected.OrderCount != 6 {
			t.Errorf("expected 6 orders in the refreshed run, got %d", collected.OrderCount)
		}

		// ArchiveOrders is on, so the merged set is retrievable per run.
		var archived struct {
			Orders []domain.Order `json:"orders"`
		}
		s.do(t, "GET", "/runs/"+collected.ID+"/orders", nil, &archived)
		if len(archived.Orders) != 6 {
			t.Errorf("expected 6 archived orders, got %d", len(archived.Orders))
		}
	})

	t.Run("MissingTenantHeader", func(t *testing.T) {
		resp, err := http.Get(s.server.URL + "/orders?" + window)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400 for missing tenant header, got %d", resp.StatusCode)
		}
	})

	t.Run("InvalidWindow", func(t *testing.T) {
		var out map[string]string
		if code := s.do(t, "GET", "/orders?from=2026-02-28&to=2026-01-01", nil, &out); code != http.StatusBadRequest {
			t.Errorf("expected 400 for inverted window, got %d", code)
		}
	})

	t.Run("Health", func(t *testing.T) {
		resp, err := http.Get(s.server.URL + "/health")
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		var health map[string]string
		json.NewDecoder(resp.Body).Decode(&health)
		if health["status"] != "healthy" {
			t.Errorf("expected healthy status, got %s", health["status"])
		}
	})
}

func TestSegmentManagement(t *testing.T) {
	s := newStack(t)

	t.Run("ListBuiltins", func(t *testing.T) {
		var resp struct {
			Segments []*domain.SegmentConfig `json:"segments"`
			Count    int                     `json:"count"`
		}
		if code := s.do(t, "GET", "/segments", nil, &resp); code != http.StatusOK {
			t.Fatalf("expected 200, got %d", code)
		}
		if resp.Count == 0 {
			t.Fatal("expected builtin segments to be loaded")
		}
	})

	t.Run("ReplaceAndLabel", func(t *testing.T) {
		custom := []*domain.SegmentConfig{
			{
				ID:         "big-spender",
				Name:       "big_spender",
				Expression: "monetary > 1000.0",
				Priority:   10,
				Enabled:    true,
			},
		}
		if code := s.do(t, "PUT", "/segments", custom, nil); code != http.StatusOK {
			t.Fatalf("expected 200, got %d", code)
		}

		var resp struct {
			Records []domain.RFMRecord `json:"records"`
		}
		s.do(t, "GET", "/analytics/rfm?from=2026-01-01&to=2026-02-28&asOf=2026-03-01", nil, &resp)

		for _, rec := range resp.Records {
			if rec.CustomerID == "doc:12345678909" && rec.Segment != "big_spender" {
				t.Errorf("expected maria labeled big_spender, got %q", rec.Segment)
			}
			if rec.CustomerID == "email:joao@example.com" && rec.Segment != "" {
				t.Errorf("expected joao unlabeled, got %q", rec.Segment)
			}
		}
	})

	t.Run("InvalidExpressionRejected", func(t *testing.T) {
		bad := []*domain.SegmentConfig{
			{ID: "broken", Name: "broken", Expression: "frequency >", Priority: 1, Enabled: true},
		}
		if code := s.do(t, "PUT", "/segments", bad, nil); code != http.StatusBadRequest {
			t.Errorf("expected 400 for invalid CEL expression, got %d", code)
		}
	})

	t.Run("ReloadRestoresBuiltins", func(t *testing.T) {
		if code := s.do(t, "POST", "/segments/reload", nil, nil); code != http.StatusOK {
			t.Fatalf("expected 200, got %d", code)
		}

		var resp struct {
			Count int `json:"count"`
		}
		s.do(t, "GET", "/segments", nil, &resp)
		if resp.Count < 2 {
			t.Errorf("expected builtin segment set restored, got %d", resp.Count)
		}
	})
}

func keys(m map[string]domain.RFMRecord) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
