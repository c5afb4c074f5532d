// Package config defines the top-level configuration for riskbridge and
// provides validation helpers.
package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by RISKBRIDGE_* environment variables.
type Config struct {
	Risk      RiskConfig      `toml:"risk"`
	Execution ExecutionConfig `toml:"execution"`
	Bridge    BridgeConfig    `toml:"bridge"`
	Symbols   SymbolsConfig   `toml:"symbols"`
	Monitor   MonitorConfig   `toml:"monitor"`
	Supabase  SupabaseConfig  `toml:"supabase"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// RiskConfig holds the portfolio risk parameters.
type RiskConfig struct {
	MaxPortfolioRisk      float64 `toml:"max_portfolio_risk"`
	MaxSinglePositionRisk float64 `toml:"max_single_position_risk"`
	MaxDrawdown           float64 `toml:"max_drawdown"`
	MaxLeverage           float64 `toml:"max_leverage"`
	RiskFreeRate          float64 `toml:"risk_free_rate"`
	LookbackPeriodDays    int     `toml:"lookback_period_days"`
	// PortfolioValue is the assumed account value used by the leverage metric
	// and as the sizing default.
	PortfolioValue    float64 `toml:"portfolio_value"`
	UseAccountBalance bool    `toml:"use_account_balance"`
	LiquidityScale    float64 `toml:"liquidity_scale"`
	HistoryCapacity   int     `toml:"history_capacity"`
}

// ExecutionConfig holds order execution settings.
type ExecutionConfig struct {
	Enabled           bool               `toml:"enabled"`
	Timeout           duration           `toml:"timeout"`
	RetryAttempts     int                `toml:"retry_attempts"`
	BackoffBase       duration           `toml:"backoff_base"`
	BackoffMax        duration           `toml:"backoff_max"`
	SlippageTolerance float64            `toml:"slippage_tolerance"`
	CommissionPerLot  float64            `toml:"commission_per_lot"`
	ContractSize      float64            `toml:"contract_size"`
	ContractSizes     map[string]float64 `toml:"contract_sizes"`
	AccountLeverage   float64            `toml:"account_leverage"`
	DedupTTL          duration           `toml:"dedup_ttl"`
	OrderLockTTL      duration           `toml:"order_lock_ttl"`
	RestrictedHours   []HourRange        `toml:"restricted_hours"`
	ClosedWeekdays    []string           `toml:"closed_weekdays"`
	RetryableCodes    []int              `toml:"retryable_codes"`
}

// HourRange is a restricted UTC window such as {start = "21:55", end = "23:05"}.
// A range whose end is before its start wraps past midnight.
type HourRange struct {
	Start string `toml:"start"`
	End   string `toml:"end"`
}

// BridgeConfig holds the MT5 bridge HTTP endpoint parameters.
type BridgeConfig struct {
	BaseURL        string   `toml:"base_url"`
	APIKey         string   `toml:"api_key"`
	RequestTimeout duration `toml:"request_timeout"`
	RatePerSecond  float64  `toml:"rate_per_second"`
	Burst          int      `toml:"burst"`
	RatesTimeframe string   `toml:"rates_timeframe"`
}

// SymbolsConfig holds symbol resolution parameters.
type SymbolsConfig struct {
	AliasFile     string   `toml:"alias_file"`
	ProbeTimeout  duration `toml:"probe_timeout"`
	CacheTTL      duration `toml:"cache_ttl"`
	SweepInterval duration `toml:"sweep_interval"`
	SharedCache   bool     `toml:"shared_cache"`
}

// MonitorConfig controls the periodic evaluation loop.
type MonitorConfig struct {
	Interval        duration `toml:"interval"`
	ArchiveInterval duration `toml:"archive_interval"`
	ArchivePrefix   string   `toml:"archive_prefix"`
	SyncPositions   bool     `toml:"sync_positions"`
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters.
type SupabaseConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// duration wraps time.Duration so that it can be decoded from a TOML string
// such as "15s" or "5m".
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port         int      `toml:"port"`
	APIKey       string   `toml:"api_key"`
	CORSOrigins  []string `toml:"cors_origins"`
	RateLimit    int      `toml:"rate_limit"`
	RateWindow   duration `toml:"rate_window"`
	StreamAlerts bool     `toml:"stream_alerts"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	MinLevel          string   `toml:"min_level"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Risk: RiskConfig{
			MaxPortfolioRisk:      0.02,
			MaxSinglePositionRisk: 0.01,
			MaxDrawdown:           0.15,
			MaxLeverage:           10,
			RiskFreeRate:          0.02,
			LookbackPeriodDays:    30,
			PortfolioValue:        10000,
			LiquidityScale:        10,
			HistoryCapacity:       100,
		},
		Execution: ExecutionConfig{
			Enabled:           true,
			Timeout:           duration{15 * time.Second},
			RetryAttempts:     3,
			BackoffBase:       duration{500 * time.Millisecond},
			BackoffMax:        duration{5 * time.Second},
			SlippageTolerance: 0.0005,
			CommissionPerLot:  7,
			ContractSize:      100000,
			AccountLeverage:   100,
			DedupTTL:          duration{10 * time.Minute},
			OrderLockTTL:      duration{time.Minute},
			RestrictedHours: []HourRange{
				{Start: "21:55", End: "23:05"},
			},
			ClosedWeekdays: []string{"saturday"},
		},
		Bridge: BridgeConfig{
			BaseURL:        "http://localhost:8080",
			RequestTimeout: duration{20 * time.Second},
			RatePerSecond:  5,
			Burst:          5,
			RatesTimeframe: "1d",
		},
		Symbols: SymbolsConfig{
			ProbeTimeout:  duration{3 * time.Second},
			CacheTTL:      duration{6 * time.Hour},
			SweepInterval: duration{15 * time.Minute},
		},
		Monitor: MonitorConfig{
			Interval:        duration{time.Minute},
			ArchiveInterval: duration{time.Hour},
			ArchivePrefix:   "risk-history",
			SyncPositions:   true,
		},
		Supabase: SupabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "riskbridge",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Port:         8000,
			CORSOrigins:  []string{"http://localhost:3000"},
			RateLimit:    120,
			RateWindow:   duration{time.Minute},
			StreamAlerts: true,
		},
		Notify: NotifyConfig{
			Events:   []string{"risk_alert", "order_filled", "order_failed", "position_closed"},
			MinLevel: "WARNING",
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"server":  true,
	"monitor": true,
	"full":    true,
	"report":  true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validWeekdays = map[string]bool{
	"sunday": true, "monday": true, "tuesday": true, "wednesday": true,
	"thursday": true, "friday": true, "saturday": true,
}

var clockPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// Validate checks the configuration for logical errors and returns a combined
// error describing all problems found, or nil when the config is valid.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, monitor, full, report)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	r := c.Risk
	if r.MaxPortfolioRisk <= 0 || r.MaxPortfolioRisk > 1 {
		errs = append(errs, "risk: max_portfolio_risk must be in (0, 1]")
	}
	if r.MaxSinglePositionRisk <= 0 || r.MaxSinglePositionRisk > 1 {
		errs = append(errs, "risk: max_single_position_risk must be in (0, 1]")
	}
	if r.MaxDrawdown <= 0 || r.MaxDrawdown > 1 {
		errs = append(errs, "risk: max_drawdown must be in (0, 1]")
	}
	if r.MaxLeverage <= 0 {
		errs = append(errs, "risk: max_leverage must be > 0")
	}
	if r.LookbackPeriodDays < 2 {
		errs = append(errs, "risk: lookback_period_days must be >= 2")
	}
	if r.PortfolioValue <= 0 {
		errs = append(errs, "risk: portfolio_value must be > 0")
	}
	if r.LiquidityScale <= 0 {
		errs = append(errs, "risk: liquidity_scale must be > 0")
	}
	if r.HistoryCapacity < 1 {
		errs = append(errs, "risk: history_capacity must be >= 1")
	}

	e := c.Execution
	if e.Timeout.Duration <= 0 {
		errs = append(errs, "execution: timeout must be > 0")
	}
	if e.RetryAttempts < 1 {
		errs = append(errs, "execution: retry_attempts must be >= 1")
	}
	if e.BackoffMax.Duration < e.BackoffBase.Duration {
		errs = append(errs, "execution: backoff_max must not be less than backoff_base")
	}
	if e.SlippageTolerance < 0 {
		errs = append(errs, "execution: slippage_tolerance must be >= 0")
	}
	if e.ContractSize <= 0 {
		errs = append(errs, "execution: contract_size must be > 0")
	}
	if e.AccountLeverage <= 0 {
		errs = append(errs, "execution: account_leverage must be > 0")
	}
	for i, h := range e.RestrictedHours {
		if !clockPattern.MatchString(h.Start) || !clockPattern.MatchString(h.End) {
			errs = append(errs, fmt.Sprintf("execution: restricted_hours[%d] must use HH:MM, got %q-%q", i, h.Start, h.End))
		}
	}
	for _, d := range e.ClosedWeekdays {
		if !validWeekdays[strings.ToLower(d)] {
			errs = append(errs, fmt.Sprintf("execution: unknown closed weekday %q", d))
		}
	}

	if c.Bridge.BaseURL == "" {
		errs = append(errs, "bridge: base_url must not be empty")
	}
	if c.Bridge.RatePerSecond <= 0 || c.Bridge.Burst < 1 {
		errs = append(errs, "bridge: rate_per_second must be > 0 and burst >= 1")
	}

	if c.Symbols.ProbeTimeout.Duration <= 0 {
		errs = append(errs, "symbols: probe_timeout must be > 0")
	}
	if c.Symbols.CacheTTL.Duration <= 0 {
		errs = append(errs, "symbols: cache_ttl must be > 0")
	}
	if c.Symbols.SharedCache && !c.Redis.Enabled {
		errs = append(errs, "symbols: shared_cache requires redis.enabled")
	}

	if c.Supabase.Enabled {
		if c.Supabase.DSN == "" {
			if c.Supabase.Host == "" {
				errs = append(errs, "supabase: host must not be empty (or set supabase.dsn)")
			}
			if c.Supabase.Port < 1 || c.Supabase.Port > 65535 {
				errs = append(errs, fmt.Sprintf("supabase: port must be 1-65535, got %d", c.Supabase.Port))
			}
		}
		if c.Supabase.PoolMaxConns < 1 {
			errs = append(errs, "supabase: pool_max_conns must be >= 1")
		}
		if c.Supabase.PoolMinConns > c.Supabase.PoolMaxConns {
			errs = append(errs, "supabase: pool_min_conns must not exceed pool_max_conns")
		}
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}

	if c.S3.Enabled && (c.S3.Endpoint == "" || c.S3.Bucket == "") {
		errs = append(errs, "s3: endpoint and bucket must not be empty")
	}

	mode := strings.ToLower(c.Mode)
	if mode == "server" || mode == "full" {
		if c.Server.Port < 1 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}
	if (mode == "monitor" || mode == "full") && c.Monitor.Interval.Duration <= 0 {
		errs = append(errs, "monitor: interval must be > 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
