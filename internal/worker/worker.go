// Package worker provides async cache warming driven by refresh events.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/opensource-commerce/kestrel/internal/collect"
	"github.com/opensource-commerce/kestrel/internal/domain"
)

// Worker consumes refresh requests from the EventBus and runs the collection
// pipeline to warm the order cache. Scheduling lives outside this process;
// whatever triggers report fetches publishes a request, the worker reacts.
type Worker struct {
	bus     domain.EventBus
	service *collect.Service

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = global worker)
	TenantIDs []string
}

// NewWorker creates a new refresh worker.
func NewWorker(bus domain.EventBus, service *collect.Service) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:     bus,
		service: service,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins processing refresh requests for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker subscribes across all tenants via the bus wildcard, for
// single-tenant and development setups. The handler resolves the tenant from
// each message.
func (w *Worker) startGlobalWorker() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TenantWildcard, domain.TopicRefreshRequested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicRefreshRequested, func(ctx context.Context, msg *domain.Message) error {
		return w.processRefresh(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicRefreshRequested,
	)

	return nil
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processRefresh(ctx, msg.TenantID, msg)
}

// processRefresh warms the order cache for the requested window.
func (w *Worker) processRefresh(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var req domain.RefreshRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse refresh request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message tenant if provided
	if req.TenantID != "" {
		tenantID = req.TenantID
	}

	from, err := time.Parse("2006-01-02", req.From)
	if err != nil {
		slog.Error("invalid refresh window start", "from", req.From, "error", err)
		return err
	}
	to, err := time.Parse("2006-01-02", req.To)
	if err != nil {
		slog.Error("invalid refresh window end", "to", req.To, "error", err)
		return err
	}

	slog.Debug("processing refresh request",
		"tenant_id", tenantID,
		"from", req.From,
		"to", req.To,
		"force", req.Force,
	)

	if req.Force {
		if err := w.service.InvalidateWindow(ctx, tenantID, from, to); err != nil {
			slog.Warn("failed to invalidate window before refresh",
				"tenant_id", tenantID,
				"error", err,
			)
		}
	}

	set, err := w.service.CollectOrders(ctx, tenantID, from, to)
	if err != nil {
		slog.Error("refresh collection failed",
			"tenant_id", tenantID,
			"error", err,
		)
		return err
	}

	slog.Info("refresh processed",
		"tenant_id", tenantID,
		"order_count", len(set.Orders),
		"chunks_attempted", set.ChunksAttempted,
		"chunks_failed", set.ChunksFailed,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
