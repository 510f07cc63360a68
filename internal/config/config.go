// Package config loads and validates the keeper's TOML configuration
// file (spec.md §6.1). Defaults and validation follow the original
// keeper-node's config.rs closely, translated to idiomatic Go.
package config

import (
	"fmt"
	"os"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/solcron/keeper/internal/keeperr"
)

// Config is the root of the keeper's TOML configuration file.
type Config struct {
	Keeper     KeeperSettings     `toml:"keeper"`
	RPC        RPCSettings        `toml:"rpc"`
	Monitoring MonitoringSettings `toml:"monitoring"`
	Execution  ExecutionSettings  `toml:"execution"`
	Database   DatabaseSettings   `toml:"database"`
	Logging    LoggingSettings    `toml:"logging"`
	Metrics    MetricsSettings    `toml:"metrics"`
}

type KeeperSettings struct {
	WalletPath  string `toml:"wallet_path"`
	StakeAmount uint64 `toml:"stake_amount"`
}

type RPCSettings struct {
	PrimaryURL       string   `toml:"primary_url"`
	FallbackURLs     []string `toml:"fallback_urls"`
	RequestTimeoutMs *uint64  `toml:"request_timeout_ms"`
	MaxRetries       *uint32  `toml:"max_retries"`
}

type MonitoringSettings struct {
	PollIntervalMs    uint64 `toml:"poll_interval_ms"`
	MaxConcurrentJobs int    `toml:"max_concurrent_jobs"`
	JobCacheTTLSeconds uint64 `toml:"job_cache_ttl_seconds"`
	EnableWebsocket   *bool  `toml:"enable_websocket"`
}

type ExecutionSettings struct {
	PriorityFeePercentile uint32 `toml:"priority_fee_percentile"`
	MaxRetries            uint32 `toml:"max_retries"`
	RetryDelayMs          uint64 `toml:"retry_delay_ms"`
	MaxComputeUnits       uint32 `toml:"max_compute_units"`
	SimulationEnabled     *bool  `toml:"simulation_enabled"`
}

type DatabaseSettings struct {
	URL                 string  `toml:"url"`
	MaxConnections      *uint32 `toml:"max_connections"`
	ConnectionTimeoutMs *uint64 `toml:"connection_timeout_ms"`
}

type LoggingSettings struct {
	Level    string  `toml:"level"`
	FilePath *string `toml:"file_path"`
}

type MetricsSettings struct {
	Enabled bool    `toml:"enabled"`
	Port    *uint16 `toml:"port"`
}

// Load reads and parses the TOML file at path, then validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, keeperr.Wrap(keeperr.KindConfig, fmt.Sprintf("read config file %s", path), err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, keeperr.Wrap(keeperr.KindConfig, "parse config", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate enforces the bounds spec.md §6.1 describes. Wallet path
// existence is checked separately by internal/keypair at load time, not
// here, so Validate runs against configuration alone without touching
// the filesystem twice.
func (c *Config) Validate() error {
	if c.RPC.PrimaryURL == "" {
		return keeperr.New(keeperr.KindConfig, "rpc.primary_url cannot be empty")
	}

	if c.Monitoring.PollIntervalMs < 100 {
		return keeperr.New(keeperr.KindConfig, "monitoring.poll_interval_ms too small (min 100ms)")
	}

	if c.Monitoring.MaxConcurrentJobs <= 0 {
		return keeperr.New(keeperr.KindConfig, "monitoring.max_concurrent_jobs must be > 0")
	}

	if c.Execution.PriorityFeePercentile > 100 {
		return keeperr.New(keeperr.KindConfig, "execution.priority_fee_percentile must be <= 100")
	}

	if c.Execution.MaxComputeUnits > 1_400_000 {
		return keeperr.New(keeperr.KindConfig, "execution.max_compute_units too high (max 1,400,000)")
	}

	if c.Database.URL == "" || !hasPrefix(c.Database.URL, "postgresql://") {
		return keeperr.New(keeperr.KindConfig, "database.url must begin with postgresql://")
	}

	return nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// RPCURLs returns the primary RPC endpoint followed by all fallbacks.
func (c *Config) RPCURLs() []string {
	urls := make([]string, 0, 1+len(c.RPC.FallbackURLs))
	urls = append(urls, c.RPC.PrimaryURL)
	urls = append(urls, c.RPC.FallbackURLs...)
	return urls
}

// RequestTimeout returns rpc.request_timeout_ms as a time.Duration,
// defaulting to 30s.
func (c *Config) RequestTimeout() time.Duration {
	if c.RPC.RequestTimeoutMs != nil {
		return time.Duration(*c.RPC.RequestTimeoutMs) * time.Millisecond
	}
	return 30 * time.Second
}

// MaxRPCRetries returns rpc.max_retries, defaulting to 3.
func (c *Config) MaxRPCRetries() uint32 {
	if c.RPC.MaxRetries != nil {
		return *c.RPC.MaxRetries
	}
	return 3
}

// PollInterval returns monitoring.poll_interval_ms as a time.Duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Monitoring.PollIntervalMs) * time.Millisecond
}

// RetryDelay returns execution.retry_delay_ms as a time.Duration.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Execution.RetryDelayMs) * time.Millisecond
}

// WebsocketEnabled returns monitoring.enable_websocket, defaulting to true.
func (c *Config) WebsocketEnabled() bool {
	return c.Monitoring.EnableWebsocket == nil || *c.Monitoring.EnableWebsocket
}

// SimulationEnabled returns execution.simulation_enabled, defaulting to true.
func (c *Config) SimulationEnabled() bool {
	return c.Execution.SimulationEnabled == nil || *c.Execution.SimulationEnabled
}

// MaxDBConnections returns database.max_connections, defaulting to 10.
func (c *Config) MaxDBConnections() uint32 {
	if c.Database.MaxConnections != nil {
		return *c.Database.MaxConnections
	}
	return 10
}

// DBTimeout returns database.connection_timeout_ms, defaulting to 10s.
func (c *Config) DBTimeout() time.Duration {
	if c.Database.ConnectionTimeoutMs != nil {
		return time.Duration(*c.Database.ConnectionTimeoutMs) * time.Millisecond
	}
	return 10 * time.Second
}

// MetricsPort returns metrics.port, defaulting to 9090.
func (c *Config) MetricsPort() uint16 {
	if c.Metrics.Port != nil {
		return *c.Metrics.Port
	}
	return 9090
}
