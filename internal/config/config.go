// Package config loads the tradegate YAML configuration with environment
// variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Trading modes. In paper mode the executor is hard-wired to the simulated
// broker regardless of any configured live credentials.
const (
	ModePaper = "paper"
	ModeLive  = "live"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the tradegate pipeline.
type Config struct {
	Storage Storage       `yaml:"storage"`
	Logging Logging       `yaml:"logging"`
	API     API           `yaml:"api"`
	Alpaca  Alpaca        `yaml:"alpaca"`
	Ledger  Ledger        `yaml:"ledger"`
	Trading TradingConfig `yaml:"trading"`
}

// API configures the optional status HTTP API. An empty listen address
// disables it.
type API struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Alpaca holds credentials and endpoint for the Alpaca broker API.
type Alpaca struct {
	APIKey          string `yaml:"api_key"`
	APISecret       string `yaml:"api_secret"`
	BaseURL         string `yaml:"base_url"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// Ledger configures the optional external audit ledger gateway. An empty
// endpoint means auditing is a logged no-op.
type Ledger struct {
	Endpoint   string `yaml:"endpoint"`
	TimeoutSec int    `yaml:"timeout_sec"`
	QueueSize  int    `yaml:"queue_size"`
}

// RiskConfig holds the per-tier static risk limits.
type RiskConfig struct {
	MaxDailyLoss    float64 `yaml:"max_daily_loss"`
	MaxPositionSize float64 `yaml:"max_position_size"`
	MaxOpenTrades   int     `yaml:"max_open_trades"`
}

// ExecutorConfig holds retry and timeout knobs for order dispatch.
type ExecutorConfig struct {
	MaxAttempts     int `yaml:"max_attempts"`
	BaseDelayMs     int `yaml:"base_delay_ms"`
	OrderTimeoutSec int `yaml:"order_timeout_sec"`
}

// TradingConfig defines the trading mode and execution parameters.
type TradingConfig struct {
	Mode     string         `yaml:"mode"` // "paper" or "live"
	Timezone string         `yaml:"timezone"`
	Risk     RiskConfig     `yaml:"risk"`
	Executor ExecutorConfig `yaml:"executor"`
}

// LiveTradingEnabled reports whether real broker dispatch is allowed.
func (t TradingConfig) LiveTradingEnabled() bool {
	return t.Mode == ModeLive
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides, and validates the
// result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaults returns a Config pre-filled with safe defaults: paper mode and
// conservative retry settings.
func defaults() *Config {
	return &Config{
		Logging: Logging{Level: "info", Format: "json"},
		Alpaca:  Alpaca{RateLimitPerMin: 200},
		Ledger:  Ledger{TimeoutSec: 10, QueueSize: 256},
		Trading: TradingConfig{
			Mode:     ModePaper,
			Timezone: "America/New_York",
			Executor: ExecutorConfig{
				MaxAttempts:     3,
				BaseDelayMs:     250,
				OrderTimeoutSec: 10,
			},
		},
	}
}

// Validate rejects configurations that could silently disable the safety
// gates: unknown trading mode or non-positive risk limits.
func (c *Config) Validate() error {
	if c.Trading.Mode != ModePaper && c.Trading.Mode != ModeLive {
		return fmt.Errorf("trading.mode must be %q or %q, got %q", ModePaper, ModeLive, c.Trading.Mode)
	}
	r := c.Trading.Risk
	if r.MaxDailyLoss <= 0 {
		return fmt.Errorf("trading.risk.max_daily_loss must be positive, got %v", r.MaxDailyLoss)
	}
	if r.MaxPositionSize <= 0 {
		return fmt.Errorf("trading.risk.max_position_size must be positive, got %v", r.MaxPositionSize)
	}
	if r.MaxOpenTrades <= 0 {
		return fmt.Errorf("trading.risk.max_open_trades must be positive, got %v", r.MaxOpenTrades)
	}
	if c.Trading.Executor.MaxAttempts <= 0 {
		return fmt.Errorf("trading.executor.max_attempts must be positive, got %v", c.Trading.Executor.MaxAttempts)
	}
	if c.Trading.Mode == ModeLive && (c.Alpaca.APIKey == "" || c.Alpaca.APISecret == "") {
		return fmt.Errorf("live mode requires alpaca api_key and api_secret")
	}
	return nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("API_LISTEN_ADDR"); v != "" {
		cfg.API.ListenAddr = v
	}

	if v := os.Getenv("TRADING_MODE"); v != "" {
		cfg.Trading.Mode = v
	}
	if v := os.Getenv("MAX_OPEN_TRADES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Trading.Risk.MaxOpenTrades = n
		}
	}

	if v := os.Getenv("LEDGER_ENDPOINT"); v != "" {
		cfg.Ledger.Endpoint = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}

	// Standard Alpaca env vars (highest priority — canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
