package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies RISKBRIDGE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
//
// A missing file is not an error: the defaults plus environment are used.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known RISKBRIDGE_* environment variables and
// overwrites the corresponding Config fields when a variable is set.
func applyEnvOverrides(cfg *Config) {
	// ── Risk ──
	setFloat64(&cfg.Risk.MaxPortfolioRisk, "RISKBRIDGE_RISK_MAX_PORTFOLIO_RISK")
	setFloat64(&cfg.Risk.MaxSinglePositionRisk, "RISKBRIDGE_RISK_MAX_SINGLE_POSITION_RISK")
	setFloat64(&cfg.Risk.MaxDrawdown, "RISKBRIDGE_RISK_MAX_DRAWDOWN")
	setFloat64(&cfg.Risk.MaxLeverage, "RISKBRIDGE_RISK_MAX_LEVERAGE")
	setFloat64(&cfg.Risk.RiskFreeRate, "RISKBRIDGE_RISK_RISK_FREE_RATE")
	setInt(&cfg.Risk.LookbackPeriodDays, "RISKBRIDGE_RISK_LOOKBACK_PERIOD_DAYS")
	setFloat64(&cfg.Risk.PortfolioValue, "RISKBRIDGE_RISK_PORTFOLIO_VALUE")
	setBool(&cfg.Risk.UseAccountBalance, "RISKBRIDGE_RISK_USE_ACCOUNT_BALANCE")
	setFloat64(&cfg.Risk.LiquidityScale, "RISKBRIDGE_RISK_LIQUIDITY_SCALE")

	// ── Execution ──
	setBool(&cfg.Execution.Enabled, "RISKBRIDGE_EXECUTION_ENABLED")
	setDuration(&cfg.Execution.Timeout, "RISKBRIDGE_EXECUTION_TIMEOUT")
	setInt(&cfg.Execution.RetryAttempts, "RISKBRIDGE_EXECUTION_RETRY_ATTEMPTS")
	setDuration(&cfg.Execution.BackoffBase, "RISKBRIDGE_EXECUTION_BACKOFF_BASE")
	setDuration(&cfg.Execution.BackoffMax, "RISKBRIDGE_EXECUTION_BACKOFF_MAX")
	setFloat64(&cfg.Execution.SlippageTolerance, "RISKBRIDGE_EXECUTION_SLIPPAGE_TOLERANCE")
	setFloat64(&cfg.Execution.CommissionPerLot, "RISKBRIDGE_EXECUTION_COMMISSION_PER_LOT")
	setFloat64(&cfg.Execution.ContractSize, "RISKBRIDGE_EXECUTION_CONTRACT_SIZE")
	setFloat64(&cfg.Execution.AccountLeverage, "RISKBRIDGE_EXECUTION_ACCOUNT_LEVERAGE")
	setStringSlice(&cfg.Execution.ClosedWeekdays, "RISKBRIDGE_EXECUTION_CLOSED_WEEKDAYS")

	// ── Bridge ──
	setStr(&cfg.Bridge.BaseURL, "RISKBRIDGE_BRIDGE_BASE_URL")
	setStr(&cfg.Bridge.APIKey, "RISKBRIDGE_BRIDGE_API_KEY")
	setDuration(&cfg.Bridge.RequestTimeout, "RISKBRIDGE_BRIDGE_REQUEST_TIMEOUT")
	setFloat64(&cfg.Bridge.RatePerSecond, "RISKBRIDGE_BRIDGE_RATE_PER_SECOND")
	setInt(&cfg.Bridge.Burst, "RISKBRIDGE_BRIDGE_BURST")
	setStr(&cfg.Bridge.RatesTimeframe, "RISKBRIDGE_BRIDGE_RATES_TIMEFRAME")

	// ── Symbols ──
	setStr(&cfg.Symbols.AliasFile, "RISKBRIDGE_SYMBOLS_ALIAS_FILE")
	setDuration(&cfg.Symbols.ProbeTimeout, "RISKBRIDGE_SYMBOLS_PROBE_TIMEOUT")
	setDuration(&cfg.Symbols.CacheTTL, "RISKBRIDGE_SYMBOLS_CACHE_TTL")
	setDuration(&cfg.Symbols.SweepInterval, "RISKBRIDGE_SYMBOLS_SWEEP_INTERVAL")
	setBool(&cfg.Symbols.SharedCache, "RISKBRIDGE_SYMBOLS_SHARED_CACHE")

	// ── Monitor ──
	setDuration(&cfg.Monitor.Interval, "RISKBRIDGE_MONITOR_INTERVAL")
	setDuration(&cfg.Monitor.ArchiveInterval, "RISKBRIDGE_MONITOR_ARCHIVE_INTERVAL")
	setStr(&cfg.Monitor.ArchivePrefix, "RISKBRIDGE_MONITOR_ARCHIVE_PREFIX")
	setBool(&cfg.Monitor.SyncPositions, "RISKBRIDGE_MONITOR_SYNC_POSITIONS")

	// ── Supabase ──
	setBool(&cfg.Supabase.Enabled, "RISKBRIDGE_SUPABASE_ENABLED")
	setStr(&cfg.Supabase.DSN, "RISKBRIDGE_SUPABASE_DSN")
	setStr(&cfg.Supabase.Host, "RISKBRIDGE_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "RISKBRIDGE_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "RISKBRIDGE_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "RISKBRIDGE_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "RISKBRIDGE_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "RISKBRIDGE_SUPABASE_SSL_MODE")
	setInt(&cfg.Supabase.PoolMaxConns, "RISKBRIDGE_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "RISKBRIDGE_SUPABASE_POOL_MIN_CONNS")
	setBool(&cfg.Supabase.RunMigrations, "RISKBRIDGE_SUPABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "RISKBRIDGE_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "RISKBRIDGE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "RISKBRIDGE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "RISKBRIDGE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "RISKBRIDGE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "RISKBRIDGE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "RISKBRIDGE_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "RISKBRIDGE_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "RISKBRIDGE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "RISKBRIDGE_S3_REGION")
	setStr(&cfg.S3.Bucket, "RISKBRIDGE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "RISKBRIDGE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "RISKBRIDGE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "RISKBRIDGE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "RISKBRIDGE_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setInt(&cfg.Server.Port, "RISKBRIDGE_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "RISKBRIDGE_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "RISKBRIDGE_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "RISKBRIDGE_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "RISKBRIDGE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "RISKBRIDGE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "RISKBRIDGE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "RISKBRIDGE_NOTIFY_EVENTS")
	setStr(&cfg.Notify.MinLevel, "RISKBRIDGE_NOTIFY_MIN_LEVEL")

	// ── Top-level ──
	setStr(&cfg.Mode, "RISKBRIDGE_MODE")
	setStr(&cfg.LogLevel, "RISKBRIDGE_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
