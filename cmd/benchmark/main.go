// Benchmark tool for load-testing Kestrel's analytics endpoints.
//
// Usage:
//   go run cmd/benchmark/main.go -serve :9090 -orders 50000        # mock source
//   KESTREL_STOREFRONT_URL=http://localhost:9090 go run cmd/kestrel/main.go
//   go run cmd/benchmark/main.go -url http://localhost:8080 -requests 1000
//
// This tool:
//   1. Optionally serves a synthetic storefront order API (-serve)
//   2. Drives GET /orders, /analytics/rfm and /analytics/revenue concurrently
//   3. Separates cold (first per window) from warm request latency
//   4. Reports throughput and the server's cache statistics
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// syntheticOrder mirrors the storefront order wire format.
type syntheticOrder struct {
	Numero   string `json:"numero"`
	Data     string `json:"data"`
	Total    string `json:"total"`
	Situacao string `json:"situacao"`
	Cliente  struct {
		Nome    string `json:"nome"`
		Email   string `json:"email"`
		CPFCNPJ string `json:"cpf_cnpj"`
	} `json:"cliente"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TotalRequests int64
	TotalErrors   int64

	ColdRequests int64
	ColdTimeMs   int64
	WarmRequests int64
	WarmTimeMs   int64
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	requests := flag.Int("requests", 1000, "Total analytics requests to issue")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	windows := flag.Int("windows", 12, "Distinct 30-day windows to query")
	serveAddr := flag.String("serve", "", "Serve a mock storefront API on this address instead of load-testing")
	orderCount := flag.Int("orders", 10000, "Synthetic orders to generate for the mock source")
	customers := flag.Int("customers", 500, "Distinct synthetic customers")
	seed := flag.Int64("seed", 42, "Random seed for synthetic data")
	verbose := flag.Bool("verbose", false, "Print each request result")
	flag.Parse()

	if *serveAddr != "" {
		serveMockSource(*serveAddr, *orderCount, *customers, *seed)
		return
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║           KESTREL BENCHMARK - Analytics Throughput            ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nKestrel URL: %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Requests:    %d\n", *requests)
	fmt.Printf("Windows:     %d\n", *windows)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is healthy")

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(*baseURL, *tenantID, *requests, *workers, *windows, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
	printCacheStats(*baseURL, *tenantID)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// serveMockSource runs a storefront-shaped order API backed by synthetic
// data, for pointing KESTREL_STOREFRONT_URL at.
func serveMockSource(addr string, orderCount, customers int, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	orders := generateOrders(rng, orderCount, customers)

	fmt.Printf("Serving %d synthetic orders for %d customers on %s\n", len(orders), customers, addr)
	fmt.Printf("Point Kestrel at it: KESTREL_STOREFRONT_URL=http://localhost%s\n", addr)

	http.HandleFunc("/pedidos", func(w http.ResponseWriter, r *http.Request) {
		start, _ := time.Parse("2006-01-02", r.URL.Query().Get("data_inicial"))
		end, _ := time.Parse("2006-01-02", r.URL.Query().Get("data_final"))
		page, _ := strconv.Atoi(r.URL.Query().Get("pagina"))
		if page < 1 {
			page = 1
		}
		pageSize, _ := strconv.Atoi(r.URL.Query().Get("limite"))
		if pageSize < 1 {
			pageSize = 100
		}

		var matched []syntheticOrder
		for _, o := range orders {
			d, _ := time.Parse("2006-01-02", o.Data[:10])
			if !d.Before(start) && !d.After(end) {
				matched = append(matched, o)
			}
		}

		lo := (page - 1) * pageSize
		hi := lo + pageSize
		if lo > len(matched) {
			lo = len(matched)
		}
		if hi > len(matched) {
			hi = len(matched)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"pedidos": matched[lo:hi]})
	})

	if err := http.ListenAndServe(addr, nil); err != nil {
		fmt.Printf("ERROR: mock source failed: %v\n", err)
		os.Exit(1)
	}
}

// generateOrders builds a year of synthetic order history. Totals use the
// comma-decimal format the storefront emits, and a few orders come back
// cancelled so the analytics have something to exclude.
func generateOrders(rng *rand.Rand, orderCount, customers int) []syntheticOrder {
	now := time.Now().UTC()
	orders := make([]syntheticOrder, 0, orderCount)

	for i := 0; i < orderCount; i++ {
		customer := rng.Intn(customers)
		daysAgo := rng.Intn(365)
		total := 20 + rng.Float64()*980

		var o syntheticOrder
		o.Numero = fmt.Sprintf("S-%06d", i+1)
		o.Data = now.AddDate(0, 0, -daysAgo).Format("2006-01-02 15:04:05")
		o.Total = fmt.Sprintf("%.2f", total)
		o.Situacao = "atendido"
		if rng.Float64() < 0.05 {
			o.Situacao = "cancelado"
		}
		o.Cliente.Nome = fmt.Sprintf("Customer %d", customer)
		o.Cliente.Email = fmt.Sprintf("customer%d@example.com", customer)
		if customer%3 == 0 {
			o.Cliente.CPFCNPJ = fmt.Sprintf("%011d", 10000000000+customer)
		}
		orders = append(orders, o)
	}

	return orders
}

func runBenchmark(baseURL, tenantID string, requests, numWorkers, windows int, verbose bool) *Metrics {
	metrics := &Metrics{}

	// Each window gets hit multiple times; the first hit per window+path is
	// cold, the rest come from cache.
	type job struct {
		path   string
		window int
	}

	paths := []string{"/orders", "/analytics/rfm", "/analytics/revenue"}
	var seen sync.Map

	work := make(chan job, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 120 * time.Second}

			for j := range work {
				to := time.Now().UTC().AddDate(0, 0, -30*j.window)
				from := to.AddDate(0, 0, -29)
				url := fmt.Sprintf("%s%s?from=%s&to=%s",
					baseURL, j.path, from.Format("2006-01-02"), to.Format("2006-01-02"))

				_, cold := seen.LoadOrStore(fmt.Sprintf("%s|%d", j.path, j.window), true)
				cold = !cold

				start := time.Now()
				err := doRequest(client, url, tenantID)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.TotalRequests, 1)
				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", url, err)
					}
					continue
				}

				if cold {
					atomic.AddInt64(&metrics.ColdRequests, 1)
					atomic.AddInt64(&metrics.ColdTimeMs, elapsed)
				} else {
					atomic.AddInt64(&metrics.WarmRequests, 1)
					atomic.AddInt64(&metrics.WarmTimeMs, elapsed)
				}

				if verbose {
					kind := "warm"
					if cold {
						kind = "cold"
					}
					fmt.Printf("✓ %-20s window=%-2d %s %5dms\n", j.path, j.window, kind, elapsed)
				}
			}
		}()
	}

	for i := 0; i < requests; i++ {
		work <- job{path: paths[i%len(paths)], window: i % windows}
	}
	close(work)

	wg.Wait()
	return metrics
}

func doRequest(client *http.Client, url, tenantID string) error {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 REQUEST STATISTICS\n")
	fmt.Printf("   Total Requests:   %d\n", m.TotalRequests)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)
	fmt.Printf("   Cold Requests:    %d\n", m.ColdRequests)
	fmt.Printf("   Warm Requests:    %d\n", m.WarmRequests)

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.ColdRequests > 0 {
		fmt.Printf("   Cold Latency:     %.2f ms avg\n", float64(m.ColdTimeMs)/float64(m.ColdRequests))
	}
	if m.WarmRequests > 0 {
		fmt.Printf("   Warm Latency:     %.2f ms avg\n", float64(m.WarmTimeMs)/float64(m.WarmRequests))
	}
	if m.TotalRequests > 0 {
		fmt.Printf("   Throughput:       %.2f req/sec\n", float64(m.TotalRequests)/duration.Seconds())
	}

	if m.ColdRequests > 0 && m.WarmRequests > 0 {
		coldAvg := float64(m.ColdTimeMs) / float64(m.ColdRequests)
		warmAvg := float64(m.WarmTimeMs) / float64(m.WarmRequests)
		if warmAvg > 0 {
			fmt.Printf("\n💡 Cache speedup: %.1fx (cold %.0fms -> warm %.0fms)\n", coldAvg/warmAvg, coldAvg, warmAvg)
		}
	}

	fmt.Println()
}

func printCacheStats(baseURL, tenantID string) {
	client := &http.Client{Timeout: 10 * time.Second}
	req, err := http.NewRequest(http.MethodGet, baseURL+"/cache/stats", nil)
	if err != nil {
		return
	}
	req.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("🗄️  SERVER CACHE: %s\n\n", body)
}
