package config

import (
	"time"

	"github.com/vietddude/planbridge/internal/core/domain"
	redisclient "github.com/vietddude/planbridge/internal/infra/redis"
	"github.com/vietddude/planbridge/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Logging  LoggingConfig      `yaml:"logging"`
	Chain    ChainConfig        `yaml:"chain"`
	Scanner  ScannerConfig      `yaml:"scanner"`
	Watcher  WatcherConfig      `yaml:"watcher"`
	Storage  StorageConfig      `yaml:"storage"`
	Redis    redisclient.Config `yaml:"redis"`
	Telegram TelegramConfig     `yaml:"telegram"`
	Notify   NotifyConfig       `yaml:"notify"`
	AMQP     AMQPConfig         `yaml:"amqp"`
}

// ServerConfig holds HTTP and gRPC server settings.
type ServerConfig struct {
	Port     int `yaml:"port"`
	GRPCPort int `yaml:"grpc_port"` // 0 = disabled
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ChainConfig holds settings for the Flow access node and contracts.
type ChainConfig struct {
	Network        domain.Network    `yaml:"network"`
	AccessNode     string            `yaml:"access_node"`
	ExplorerURL    string            `yaml:"explorer_url"`
	Timeout        time.Duration     `yaml:"timeout"`
	RateLimit      float64           `yaml:"rate_limit"` // requests per second, 0 = unlimited
	EventType      string            `yaml:"event_type"`
	Contracts      map[string]string `yaml:"contracts"` // placeholder -> address, e.g. DCAContract: 0x78acd984694957cf
	TrackedTokens  []string          `yaml:"tracked_tokens"`
	RetryAttempts  int               `yaml:"retry_attempts"`
	RetryBaseDelay time.Duration     `yaml:"retry_base_delay"`
	HeadCacheTTL   time.Duration     `yaml:"head_cache_ttl"`
}

// ScannerConfig controls chunked event log retrieval.
type ScannerConfig struct {
	ChunkSize   uint64        `yaml:"chunk_size"`  // max blocks per events query
	Lookback    uint64        `yaml:"lookback"`    // history window in blocks
	Parallelism int           `yaml:"parallelism"` // concurrent window queries, 1 = sequential
	Timeout     time.Duration `yaml:"timeout"`     // overall scan deadline
}

// WatcherConfig controls the execution event watcher.
type WatcherConfig struct {
	Enabled         bool          `yaml:"enabled"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	MinPollInterval time.Duration `yaml:"min_poll_interval"` // floor while catching up, 0 = fixed interval
	MaxRange        uint64        `yaml:"max_range"`         // max blocks scanned per tick
	Concurrency     int           `yaml:"concurrency"`       // concurrent notifications
	DedupTTL        time.Duration `yaml:"dedup_ttl"`
	RescanSleep     time.Duration `yaml:"rescan_sleep"`
}

// StorageConfig selects the wallet link and cursor backend.
type StorageConfig struct {
	Driver   string          `yaml:"driver"` // sqlite, postgres, memory
	Path     string          `yaml:"path"`   // sqlite file
	LockPath string          `yaml:"lock_path"`
	Postgres postgres.Config `yaml:"postgres"`
}

// TelegramConfig holds bot credentials.
type TelegramConfig struct {
	Token        string        `yaml:"token"`
	BotUsername  string        `yaml:"bot_username"`
	APIURL       string        `yaml:"api_url"`
	PollTimeout  time.Duration `yaml:"poll_timeout"`
	Workers      int           `yaml:"workers"` // concurrent command handlers
	HistoryLimit int           `yaml:"history_limit"`
	WebAppURL    string        `yaml:"web_app_url"`
}

// NotifyConfig selects the delivery channel for execution notifications.
type NotifyConfig struct {
	Channel string `yaml:"channel"` // telegram, amqp
}

// AMQPConfig holds broker settings for the amqp delivery channel.
type AMQPConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}
