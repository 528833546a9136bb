package domain

import "time"

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Profile determines the default backing services
	Profile Profile `json:"profile"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`
	Collect    CollectConfig    `json:"collect"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// CollectConfig holds order collection settings.
type CollectConfig struct {
	// ChunkDays is the size of the date-range chunks a long window is
	// split into before fetching. Chunks fetch concurrently.
	ChunkDays int `json:"chunkDays"`

	// CacheTTL is how long fetched chunks stay cached.
	CacheTTL time.Duration `json:"cacheTTL"`

	// FetchTimeout bounds a single source+chunk fetch.
	FetchTimeout time.Duration `json:"fetchTimeout"`

	// ArchiveOrders enables persisting the merged set per run for
	// inspection.
	ArchiveOrders bool `json:"archiveOrders"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp
	Endpoint     string `json:"endpoint"`
}

// Profile selects the default backing services.
type Profile string

const (
	// ProfileStandalone runs on SQLite + in-process cache + channel bus.
	ProfileStandalone Profile = "standalone"

	// ProfileDistributed runs on PostgreSQL + Redis + NATS.
	ProfileDistributed Profile = "distributed"
)

// DefaultConfig returns a standalone configuration: everything in-process,
// no external services required.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 60,
		},
		Profile: ProfileStandalone,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Collect: CollectConfig{
			ChunkDays:     30,
			CacheTTL:      10 * time.Minute,
			FetchTimeout:  60 * time.Second,
			ArchiveOrders: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}

// DistributedConfig returns a configuration backed by PostgreSQL, Redis
// (tiered with the in-process fallback), and NATS.
func DistributedConfig() *Config {
	cfg := DefaultConfig()
	cfg.Profile = ProfileDistributed
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "kestrel",
	}
	cfg.Cache = CacheConfig{
		Type:         "tiered",
		RedisAddr:    "localhost:6379",
		LocalMaxSize: 1000,
		LocalTTL:     5 * time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
