package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (single process) or NATS (distributed).
// All methods require tenantID for strict multi-tenancy isolation.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, tenantID string, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, tenantID string, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenantId"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string

	// Channel settings (single process)
	ChannelBufferSize int

	// NATS settings (distributed)
	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds
}

// TenantWildcard subscribes across every tenant on a topic. The channel bus
// fans each published message out to wildcard subscribers in addition to the
// tenant's own; the NATS transport maps it onto a subject wildcard. Publishing
// under the wildcard is rejected.
const TenantWildcard = "*"

// Standard topic names for the order pipeline. The NATS transport prefixes
// subjects with "kestrel.<tenant>.".
const (
	// TopicRefreshRequested asks the worker to warm the order cache for a
	// window. Payload: RefreshRequest.
	TopicRefreshRequested = "orders.refresh.requested"

	// TopicOrdersRefreshed announces a completed collection. Payload:
	// RefreshResult.
	TopicOrdersRefreshed = "orders.refreshed"

	// TopicCacheInvalidated announces an explicit cache invalidation.
	TopicCacheInvalidated = "cache.invalidated"
)

// RefreshRequest is the payload of TopicRefreshRequested.
type RefreshRequest struct {
	TenantID string `json:"tenantId"`
	From     string `json:"from"` // YYYY-MM-DD
	To       string `json:"to"`   // YYYY-MM-DD

	// Force drops cached chunks before fetching.
	Force bool `json:"force,omitempty"`
}

// RefreshResult is the payload of TopicOrdersRefreshed.
type RefreshResult struct {
	TenantID        string `json:"tenantId"`
	RunID           string `json:"runId"`
	From            string `json:"from"`
	To              string `json:"to"`
	OrderCount      int    `json:"orderCount"`
	ChunksAttempted int    `json:"chunksAttempted"`
	ChunksFailed    int    `json:"chunksFailed"`
}
