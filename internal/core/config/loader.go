package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/planbridge/internal/core/domain"
)

const (
	DefaultChunkSize = 250
	DefaultLookback  = 2500
	DefaultEventType = "A.78acd984694957cf.DCAContract.PlanExecuted"
)

// DefaultContracts are the testnet deployments imported by the chain scripts.
var DefaultContracts = map[string]string{
	"DCAContract":   "0x78acd984694957cf",
	"MockUSD":       "0x78acd984694957cf",
	"MockBTC":       "0x78acd984694957cf",
	"FungibleToken": "0x9a0766d93b6608b7",
	"FlowToken":     "0x7e60df042a9c0868",
}

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, expanding environment variables and
// applying defaults.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	if cfg.Chain.Network == "" {
		cfg.Chain.Network = domain.NetworkTestnet
	}
	if cfg.Chain.AccessNode == "" {
		cfg.Chain.AccessNode = domain.NetworkAccessNodes[cfg.Chain.Network]
	}
	if cfg.Chain.ExplorerURL == "" {
		cfg.Chain.ExplorerURL = cfg.Chain.Network.ExplorerURL()
	}
	if cfg.Chain.Timeout == 0 {
		cfg.Chain.Timeout = 10 * time.Second
	}
	if cfg.Chain.EventType == "" {
		cfg.Chain.EventType = DefaultEventType
	}
	if cfg.Chain.Contracts == nil {
		cfg.Chain.Contracts = make(map[string]string)
	}
	for name, addr := range DefaultContracts {
		if _, ok := cfg.Chain.Contracts[name]; !ok {
			cfg.Chain.Contracts[name] = addr
		}
	}
	if len(cfg.Chain.TrackedTokens) == 0 {
		cfg.Chain.TrackedTokens = []string{"USD", "BTC"}
	}
	if cfg.Chain.RetryAttempts == 0 {
		cfg.Chain.RetryAttempts = 3
	}
	if cfg.Chain.HeadCacheTTL == 0 {
		cfg.Chain.HeadCacheTTL = 2 * time.Second
	}
	if cfg.Chain.RetryBaseDelay == 0 {
		cfg.Chain.RetryBaseDelay = 500 * time.Millisecond
	}

	if cfg.Scanner.ChunkSize == 0 {
		cfg.Scanner.ChunkSize = DefaultChunkSize
	}
	if cfg.Scanner.Lookback == 0 {
		cfg.Scanner.Lookback = DefaultLookback
	}
	if cfg.Scanner.Parallelism <= 0 {
		cfg.Scanner.Parallelism = 1
	}
	if cfg.Scanner.Timeout == 0 {
		cfg.Scanner.Timeout = 60 * time.Second
	}

	if cfg.Watcher.PollInterval == 0 {
		cfg.Watcher.PollInterval = 10 * time.Second
	}
	if cfg.Watcher.MaxRange == 0 {
		cfg.Watcher.MaxRange = cfg.Scanner.Lookback
	}
	if cfg.Watcher.Concurrency <= 0 {
		cfg.Watcher.Concurrency = 4
	}
	if cfg.Watcher.DedupTTL == 0 {
		cfg.Watcher.DedupTTL = 24 * time.Hour
	}
	if cfg.Watcher.RescanSleep == 0 {
		cfg.Watcher.RescanSleep = 10 * time.Second
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "data/planbridge.db"
	}
	if cfg.Storage.LockPath == "" {
		cfg.Storage.LockPath = cfg.Storage.Path + ".lock"
	}

	if cfg.Telegram.APIURL == "" {
		cfg.Telegram.APIURL = "https://api.telegram.org"
	}
	if cfg.Telegram.PollTimeout == 0 {
		cfg.Telegram.PollTimeout = 30 * time.Second
	}
	if cfg.Telegram.Workers <= 0 {
		cfg.Telegram.Workers = 16
	}
	if cfg.Telegram.HistoryLimit <= 0 {
		cfg.Telegram.HistoryLimit = 5
	}

	if cfg.Notify.Channel == "" {
		cfg.Notify.Channel = "telegram"
	}
	if cfg.AMQP.Exchange == "" {
		cfg.AMQP.Exchange = "notifications"
	}
}

// Validate checks settings that have no sensible default.
func (c *AppConfig) Validate() error {
	switch c.Storage.Driver {
	case "sqlite", "memory":
	case "postgres":
		if c.Storage.Postgres.URL == "" {
			return fmt.Errorf("storage.postgres.url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	switch c.Notify.Channel {
	case "telegram":
	case "amqp":
		if c.AMQP.URL == "" {
			return fmt.Errorf("amqp.url is required for the amqp channel")
		}
	default:
		return fmt.Errorf("unknown notify channel %q", c.Notify.Channel)
	}

	if c.Chain.AccessNode == "" {
		return fmt.Errorf("chain.access_node is required for network %q", c.Chain.Network)
	}
	return nil
}
