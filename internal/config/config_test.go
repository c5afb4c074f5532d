package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/riskbridge/internal/domain"
)

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, "server", cfg.Mode)
	assert.Equal(t, 0.02, cfg.Risk.MaxPortfolioRisk)
	assert.Equal(t, 15*time.Second, cfg.Execution.Timeout.Duration)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeTOML(t, `
mode = "full"

[risk]
max_drawdown = 0.1
portfolio_value = 25000.0

[execution]
timeout = "5s"
contract_sizes = { xauusd = 100.0 }
restricted_hours = [{ start = "22:00", end = "01:00" }]

[monitor]
interval = "30s"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, 0.1, cfg.Risk.MaxDrawdown)
	assert.Equal(t, 0.02, cfg.Risk.MaxPortfolioRisk)
	assert.Equal(t, 25000.0, cfg.Risk.PortfolioValue)
	assert.Equal(t, 5*time.Second, cfg.Execution.Timeout.Duration)
	assert.Equal(t, 30*time.Second, cfg.Monitor.Interval.Duration)
	assert.Equal(t, []HourRange{{Start: "22:00", End: "01:00"}}, cfg.Execution.RestrictedHours)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeTOML(t, "[execution]\ntimeout = \"soon\"\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RISKBRIDGE_MODE", "monitor")
	t.Setenv("RISKBRIDGE_RISK_PORTFOLIO_VALUE", "50000")
	t.Setenv("RISKBRIDGE_EXECUTION_TIMEOUT", "7s")
	t.Setenv("RISKBRIDGE_REDIS_ENABLED", "true")
	t.Setenv("RISKBRIDGE_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "monitor", cfg.Mode)
	assert.Equal(t, 50000.0, cfg.Risk.PortfolioValue)
	assert.Equal(t, 7*time.Second, cfg.Execution.Timeout.Duration)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Risk.MaxPortfolioRisk = 0
	cfg.Risk.LookbackPeriodDays = 1
	cfg.Execution.RestrictedHours = []HourRange{{Start: "25:00", End: "01:00"}}
	cfg.Execution.ClosedWeekdays = []string{"someday"}
	cfg.Symbols.SharedCache = true

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `unknown mode "trade"`)
	assert.Contains(t, msg, "max_portfolio_risk")
	assert.Contains(t, msg, "lookback_period_days")
	assert.Contains(t, msg, "restricted_hours[0]")
	assert.Contains(t, msg, `unknown closed weekday "someday"`)
	assert.Contains(t, msg, "shared_cache requires redis.enabled")
}

func TestValidateBackends(t *testing.T) {
	cfg := Defaults()
	cfg.Supabase.Enabled = true
	cfg.Supabase.Host = ""
	cfg.S3.Enabled = true
	cfg.S3.Bucket = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "supabase: host")
	assert.Contains(t, err.Error(), "s3: endpoint and bucket")

	cfg.Supabase.DSN = "postgres://u:p@db:5432/risk"
	cfg.S3.Bucket = "risk"
	require.NoError(t, cfg.Validate())
}

func TestRiskParameters(t *testing.T) {
	p := Defaults().Risk.RiskParameters()
	assert.Equal(t, domain.RiskParameters{
		MaxPortfolioRisk:      0.02,
		MaxSinglePositionRisk: 0.01,
		MaxDrawdown:           0.15,
		MaxLeverage:           10,
		RiskFreeRate:          0.02,
		LookbackPeriodDays:    30,
		PortfolioValue:        10000,
		LiquidityScale:        10,
	}, p)
}

func TestExecutionSettings(t *testing.T) {
	cfg := Defaults()
	cfg.Execution.ContractSizes = map[string]float64{"xauusd": 100}
	cfg.Execution.ClosedWeekdays = []string{"Saturday", "sunday"}

	s, err := cfg.ExecutionSettings()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, s.Timeout)
	assert.Equal(t, 100.0, s.ContractSizeFor("XAUUSD"))
	assert.Equal(t, 100000.0, s.ContractSizeFor("EURUSD"))
	assert.Equal(t, 10000.0, s.AccountBalance)
	assert.Equal(t, []domain.ClockRange{{Start: 21*60 + 55, End: 23*60 + 5}}, s.TradingHours.Restricted)
	assert.Equal(t, []time.Weekday{time.Saturday, time.Sunday}, s.TradingHours.ClosedDays)
}

func TestExecutionSettingsRejectsBadClock(t *testing.T) {
	cfg := Defaults()
	cfg.Execution.RestrictedHours = []HourRange{{Start: "9:00", End: "10:00"}}
	_, err := cfg.ExecutionSettings()
	require.Error(t, err)
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Bridge.APIKey = "bridge-key"
	cfg.Supabase.Password = "pw"
	cfg.Notify.TelegramToken = "tg"
	cfg.Execution.ContractSizes = map[string]float64{"XAUUSD": 100}

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Bridge.APIKey)
	assert.Equal(t, "***", out.Supabase.Password)
	assert.Equal(t, "***", out.Notify.TelegramToken)
	assert.Empty(t, out.Server.APIKey)
	assert.Equal(t, "bridge-key", cfg.Bridge.APIKey)

	out.Execution.ContractSizes["XAUUSD"] = 1
	assert.Equal(t, 100.0, cfg.Execution.ContractSizes["XAUUSD"])
}
