// Package collect orchestrates the order pipeline: chunked concurrent
// fetches from every backend, read-through caching, merge/dedup, and the
// downstream analytics entry points.
package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-commerce/kestrel/internal/cache"
	"github.com/opensource-commerce/kestrel/internal/domain"
	"github.com/opensource-commerce/kestrel/internal/merge"
	"github.com/opensource-commerce/kestrel/internal/revenue"
	"github.com/opensource-commerce/kestrel/internal/rfm"
	"github.com/opensource-commerce/kestrel/internal/segment"
)

// Service runs the order collection and analytics pipeline.
type Service struct {
	fetchers []domain.OrderFetcher
	cache    domain.Cache
	repo     domain.Repository
	bus      domain.EventBus
	segments *segment.Engine
	cfg      domain.CollectConfig
}

// NewService creates the pipeline service. repo, bus, and segments may be
// nil; collection and analytics degrade gracefully without them. Fetchers
// are kept in the order given (merge results depend on it), so callers
// should register sources in domain.Sources order.
func NewService(cfg domain.CollectConfig, c domain.Cache, repo domain.Repository, bus domain.EventBus, segments *segment.Engine, fetchers ...domain.OrderFetcher) *Service {
	if cfg.ChunkDays <= 0 {
		cfg.ChunkDays = 30
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	return &Service{
		fetchers: fetchers,
		cache:    c,
		repo:     repo,
		bus:      bus,
		segments: segments,
		cfg:      cfg,
	}
}

// window is one date-range chunk of the requested period.
type window struct {
	start time.Time
	end   time.Time
}

// CollectOrders fetches, caches, and merges orders from every backend for
// [from, to]. Every source×chunk fetch runs concurrently; a failed chunk is
// logged and contributes nothing rather than aborting the aggregation, so
// callers must check ChunksFailed before treating totals as authoritative.
func (s *Service) CollectOrders(ctx context.Context, tenantID string, from, to time.Time) (*domain.OrderSet, error) {
	start := time.Now()

	set, err := s.collect(ctx, tenantID, from, to)
	if err != nil {
		return nil, err
	}

	s.recordRun(ctx, tenantID, "collect", set, time.Since(start))
	return set, nil
}

// AnalyzeRFM collects the window and computes scored, labeled RFM records.
// Records come back unsorted; the order set is returned alongside so callers
// can surface fetch metadata.
func (s *Service) AnalyzeRFM(ctx context.Context, tenantID string, from, to, asOf time.Time) ([]domain.RFMRecord, *domain.OrderSet, error) {
	start := time.Now()

	set, err := s.collect(ctx, tenantID, from, to)
	if err != nil {
		return nil, nil, err
	}

	records := rfm.Calculate(set.Orders, asOf)
	rfm.ApplyScores(records)
	if s.segments != nil {
		s.segments.Label(records)
	}

	s.recordRun(ctx, tenantID, "rfm", set, time.Since(start))
	return records, set, nil
}

// AnalyzeRevenue collects [historyFrom, periodEnd] and splits the period's
// revenue into new vs returning buckets. historyComplete is the caller's
// claim that historyFrom reaches back to the tenant's first-ever order; it
// is forced false when historyFrom is zero (window-only fetch) or when any
// chunk failed, so a degraded split is never presented as authoritative.
func (s *Service) AnalyzeRevenue(ctx context.Context, tenantID string, periodStart, periodEnd, historyFrom time.Time, historyComplete bool) (domain.RevenueBreakdown, *domain.OrderSet, error) {
	start := time.Now()

	if historyFrom.IsZero() || historyFrom.After(periodStart) {
		historyFrom = periodStart
		historyComplete = false
	}

	set, err := s.collect(ctx, tenantID, historyFrom, periodEnd)
	if err != nil {
		return domain.RevenueBreakdown{}, nil, err
	}
	if !set.Complete() {
		historyComplete = false
	}

	breakdown := revenue.Segment(set.Orders, periodStart, periodEnd, historyComplete)

	s.recordRun(ctx, tenantID, "revenue", set, time.Since(start))
	return breakdown, set, nil
}

// InvalidateWindow drops the cached chunks covering [from, to] for every
// source. Chunk keys are exact, so removal reaches the primary store too.
func (s *Service) InvalidateWindow(ctx context.Context, tenantID string, from, to time.Time) error {
	for _, f := range s.fetchers {
		for _, w := range splitWindow(from, to, s.cfg.ChunkDays) {
			key := chunkKey(f.Source(), w)
			if err := s.cache.Delete(ctx, tenantID, key); err != nil {
				return err
			}
		}
	}

	if s.bus != nil {
		_ = s.bus.Publish(ctx, tenantID, domain.TopicCacheInvalidated, nil)
	}
	return nil
}

// chunkResult is one source×chunk fetch outcome, indexed for stable
// concatenation order regardless of goroutine completion order.
type chunkResult struct {
	orders []domain.Order
	failed bool
}

func (s *Service) collect(ctx context.Context, tenantID string, from, to time.Time) (*domain.OrderSet, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}
	if to.Before(from) {
		return nil, fmt.Errorf("window end %s precedes start %s", to.Format("2006-01-02"), from.Format("2006-01-02"))
	}

	chunks := splitWindow(from, to, s.cfg.ChunkDays)

	// Fire every source×chunk fetch concurrently, await all. Results land
	// in fixed slots so the later concatenation is source-major and
	// chronological, the ordering merge's first-seen-wins depends on.
	results := make([][]chunkResult, len(s.fetchers))
	var wg sync.WaitGroup

	for fi, f := range s.fetchers {
		results[fi] = make([]chunkResult, len(chunks))
		for ci, w := range chunks {
			wg.Add(1)
			go func(fi, ci int, f domain.OrderFetcher, w window) {
				defer wg.Done()
				orders, err := s.fetchChunk(ctx, tenantID, f, w)
				if err != nil {
					slog.Warn("chunk fetch failed, contributing empty",
						"tenant_id", tenantID,
						"source", f.Source(),
						"from", w.start.Format("2006-01-02"),
						"to", w.end.Format("2006-01-02"),
						"error", err,
					)
					results[fi][ci] = chunkResult{failed: true}
					return
				}
				results[fi][ci] = chunkResult{orders: orders}
			}(fi, ci, f, w)
		}
	}

	wg.Wait()

	lists := make([][]domain.Order, 0, len(s.fetchers)*len(chunks))
	attempted, failed := 0, 0
	for fi := range results {
		for ci := range results[fi] {
			attempted++
			if results[fi][ci].failed {
				failed++
				continue
			}
			lists = append(lists, results[fi][ci].orders)
		}
	}

	merged := merge.Orders(lists...)

	return &domain.OrderSet{
		TenantID:        tenantID,
		From:            from,
		To:              to,
		Orders:          merged,
		ChunksAttempted: attempted,
		ChunksFailed:    failed,
		CountBySource:   merge.CountBySource(merged),
	}, nil
}

// fetchChunk runs one source×chunk fetch behind the read-through cache.
func (s *Service) fetchChunk(ctx context.Context, tenantID string, f domain.OrderFetcher, w window) ([]domain.Order, error) {
	key := chunkKey(f.Source(), w)
	return cache.Fetch(ctx, s.cache, tenantID, key, s.cfg.CacheTTL, func(ctx context.Context) ([]domain.Order, error) {
		if s.cfg.FetchTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.cfg.FetchTimeout)
			defer cancel()
		}
		return f.FetchOrders(ctx, tenantID, w.start, w.end)
	})
}

func chunkKey(src domain.OrderSource, w window) string {
	return fmt.Sprintf("orders:%s:%s:%s", src, w.start.Format("2006-01-02"), w.end.Format("2006-01-02"))
}

// splitWindow cuts [from, to] into consecutive chunks of at most chunkDays
// days, chronologically ordered. Long ranges would otherwise hit upstream
// timeouts and defeat cache reuse across overlapping requests.
func splitWindow(from, to time.Time, chunkDays int) []window {
	if chunkDays <= 0 {
		chunkDays = 30
	}

	var chunks []window
	step := time.Duration(chunkDays) * 24 * time.Hour
	for start := from; !start.After(to); start = start.Add(step) {
		end := start.Add(step - 24*time.Hour)
		if end.After(to) {
			end = to
		}
		chunks = append(chunks, window{start: start, end: end})
	}
	return chunks
}

// recordRun persists the run audit row, archives the merged set when
// configured, and announces the refresh on the bus. All best-effort: audit
// failures never fail the analytics call.
func (s *Service) recordRun(ctx context.Context, tenantID, kind string, set *domain.OrderSet, took time.Duration) {
	runID := uuid.New().String()

	if s.repo != nil {
		run := &domain.AnalysisRun{
			ID:              runID,
			TenantID:        tenantID,
			Kind:            kind,
			WindowStart:     set.From,
			WindowEnd:       set.To,
			ChunksAttempted: set.ChunksAttempted,
			ChunksFailed:    set.ChunksFailed,
			OrderCount:      len(set.Orders),
			DurationMs:      took.Milliseconds(),
			CreatedAt:       time.Now().UTC(),
		}
		if err := s.repo.SaveRun(ctx, tenantID, run); err != nil {
			slog.Error("failed to save analysis run", "run_id", runID, "error", err)
		} else if s.cfg.ArchiveOrders {
			if err := s.repo.ArchiveOrders(ctx, tenantID, runID, set.Orders); err != nil {
				slog.Error("failed to archive orders", "run_id", runID, "error", err)
			}
		}
	}

	if s.bus != nil {
		payload := mustJSON(domain.RefreshResult{
			TenantID:        tenantID,
			RunID:           runID,
			From:            set.From.Format("2006-01-02"),
			To:              set.To.Format("2006-01-02"),
			OrderCount:      len(set.Orders),
			ChunksAttempted: set.ChunksAttempted,
			ChunksFailed:    set.ChunksFailed,
		})
		if err := s.bus.Publish(ctx, tenantID, domain.TopicOrdersRefreshed, payload); err != nil {
			slog.Warn("failed to publish refresh event", "run_id", runID, "error", err)
		}
	}
}

func mustJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}
