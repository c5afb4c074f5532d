package app

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	s3blob "github.com/alanyoungcy/riskbridge/internal/blob/s3"
	"github.com/alanyoungcy/riskbridge/internal/cache/memory"
	"github.com/alanyoungcy/riskbridge/internal/cache/redis"
	"github.com/alanyoungcy/riskbridge/internal/config"
	"github.com/alanyoungcy/riskbridge/internal/domain"
	"github.com/alanyoungcy/riskbridge/internal/execution"
	"github.com/alanyoungcy/riskbridge/internal/notify"
	"github.com/alanyoungcy/riskbridge/internal/platform/bridge"
	"github.com/alanyoungcy/riskbridge/internal/risk"
	"github.com/alanyoungcy/riskbridge/internal/server/handler"
	"github.com/alanyoungcy/riskbridge/internal/service"
	"github.com/alanyoungcy/riskbridge/internal/store/postgres"
	"github.com/alanyoungcy/riskbridge/internal/symbols"
)

// Dependencies bundles everything the modes need. It is constructed by Wire
// and torn down by the returned cleanup function.
type Dependencies struct {
	Bridge      *bridge.Client
	Resolver    *symbols.Resolver
	Gateway     *execution.Gateway
	Correlation *risk.CorrelationTracker
	Aggregator  *risk.Aggregator

	Positions *service.PositionService
	Risk      *service.RiskService
	Monitor   *service.MonitorService

	// Stores; nil when Postgres is disabled.
	Executions domain.ExecutionStore
	Snapshots  domain.RiskSnapshotStore
	Audit      domain.AuditStore

	// Caches. Redis-backed when enabled, in-process otherwise.
	RateLimiter domain.RateLimiter
	SignalBus   domain.SignalBus
	// localLimiter is set when RateLimiter is in-process and needs sweeping.
	localLimiter *memory.RateLimiter

	Notifier *notify.Notifier

	// HealthChecks are reported by GET /api/health.
	HealthChecks map[string]handler.HealthCheck
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{HealthChecks: make(map[string]handler.HealthCheck)}

	// --- MT5 bridge ---
	deps.Bridge = bridge.New(bridge.Config{
		BaseURL:        cfg.Bridge.BaseURL,
		APIKey:         cfg.Bridge.APIKey,
		RequestTimeout: cfg.Bridge.RequestTimeout.Duration,
		RatePerSecond:  cfg.Bridge.RatePerSecond,
		Burst:          cfg.Bridge.Burst,
	}, logger)
	deps.HealthChecks["bridge"] = deps.Bridge.Health

	// --- PostgreSQL ---
	var (
		records   domain.PositionRecordStore
		archAudit domain.AuditStore
	)
	if cfg.Supabase.Enabled {
		pgClient, err := postgres.New(ctx, cfg.Supabase)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Supabase.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		stores := pgClient.Stores()
		records = stores.Positions
		deps.Executions = stores.Executions
		deps.Snapshots = stores.Snapshots
		deps.Audit = stores.Audit
		archAudit = stores.Audit
		deps.HealthChecks["postgres"] = pgClient.Ping
	}

	// --- Redis ---
	var (
		locks  domain.LockManager
		shared domain.ResolutionCache
	)
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		locks = redis.NewLockManager(redisClient)
		if cfg.Symbols.SharedCache {
			shared = redis.NewResolutionCache(redisClient)
		}
		deps.HealthChecks["redis"] = redisClient.Ping
	} else {
		deps.localLimiter = memory.NewRateLimiter(10 * time.Minute)
		deps.RateLimiter = deps.localLimiter
		deps.SignalBus = memory.NewBus()
	}

	// --- S3 risk archive ---
	var archiver service.Archiver
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		archiver = s3blob.NewRiskArchiver(
			s3blob.NewWriter(s3Client),
			s3blob.NewReader(s3Client),
			archAudit,
			cfg.Monitor.ArchivePrefix,
		)
		deps.HealthChecks["s3"] = s3Client.Health
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events,
		domain.AlertLevel(strings.ToUpper(cfg.Notify.MinLevel)), logger)

	// --- Symbol resolution ---
	aliases, err := symbols.LoadAliases(cfg.Symbols.AliasFile)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: aliases: %w", err)
	}
	deps.Resolver = symbols.NewResolver(deps.Bridge, aliases, symbols.Options{
		ProbeTimeout: cfg.Symbols.ProbeTimeout.Duration,
		CacheTTL:     cfg.Symbols.CacheTTL.Duration,
		Shared:       shared,
	}, logger)

	// --- Execution gateway ---
	settings, err := cfg.ExecutionSettings()
	var active *domain.ExecutionSettings
	switch {
	case err != nil:
		logger.WarnContext(ctx, "wire: execution settings invalid, orders will be rejected",
			slog.String("error", err.Error()),
		)
	case !cfg.Execution.Enabled:
		logger.InfoContext(ctx, "wire: execution disabled, orders will be rejected")
	default:
		active = &settings
	}
	opts := []execution.Option{execution.WithDedup(execution.NewDedup(cfg.Execution.DedupTTL.Duration))}
	if locks != nil {
		opts = append(opts, execution.WithLocks(locks, cfg.Execution.OrderLockTTL.Duration))
	}
	if cfg.Risk.UseAccountBalance {
		opts = append(opts, execution.WithAccount(deps.Bridge))
	}
	policy := execution.NewRetryPolicy(
		cfg.Execution.RetryAttempts,
		cfg.Execution.BackoffBase.Duration,
		cfg.Execution.BackoffMax.Duration,
		cfg.Execution.RetryableCodes,
	)
	deps.Gateway = execution.NewGateway(deps.Bridge, deps.Resolver, active, policy, logger, opts...)

	// --- Risk engine ---
	params := cfg.Risk.RiskParameters()
	book := risk.NewPositionStore()
	brokerSymbols := service.NewBrokerSymbols(book, deps.Resolver)
	deps.Correlation = risk.NewCorrelationTracker(deps.Bridge, params.LookbackPeriodDays, logger).
		WithSymbolMapper(brokerSymbols)
	deps.Aggregator = risk.NewAggregator(book, deps.Correlation, params, risk.NewHistory(cfg.Risk.HistoryCapacity), logger)
	sizer := risk.NewSizer(deps.Aggregator, book, deps.Correlation, params, logger)

	// --- Services ---
	deps.Positions = service.NewPositionService(
		book,
		deps.Correlation,
		deps.Bridge,
		records,
		deps.SignalBus,
		deps.Audit,
		deps.Notifier,
		brokerRiskEstimator(settings, deps.Aggregator),
		logger,
	)

	riskDeps := service.RiskDeps{
		Aggregator:  deps.Aggregator,
		Sizer:       sizer,
		Positions:   deps.Positions,
		Correlation: deps.Correlation,
		Executor:    deps.Gateway,
		Market:      deps.Bridge,
		Symbols:     brokerSymbols,
		Snapshots:   deps.Snapshots,
		Executions:  deps.Executions,
		Bus:         deps.SignalBus,
		Audit:       deps.Audit,
		Notifier:    deps.Notifier,
	}
	if cfg.Risk.UseAccountBalance {
		riskDeps.Account = deps.Bridge
	}
	deps.Risk = service.NewRiskService(riskDeps, logger)

	deps.Monitor = service.NewMonitorService(deps.Risk, archiver, service.MonitorConfig{
		Interval:        cfg.Monitor.Interval.Duration,
		ArchiveInterval: cfg.Monitor.ArchiveInterval.Duration,
		SyncPositions:   cfg.Monitor.SyncPositions,
	}, logger)

	return deps, cleanup, nil
}

// brokerRiskEstimator estimates the account fraction at risk for a position
// found at the broker: the loss to its stop over the portfolio value. A
// position without a stop is assumed to risk nothing.
func brokerRiskEstimator(settings domain.ExecutionSettings, agg *risk.Aggregator) service.RiskEstimator {
	return func(bp domain.BrokerPosition) float64 {
		value := agg.Params().PortfolioValue
		if bp.StopLoss <= 0 || value <= 0 {
			return 0
		}
		loss := math.Abs(bp.PriceOpen-bp.StopLoss) * bp.Volume * settings.ContractSizeFor(bp.Symbol)
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			return 0
		}
		return loss / value
	}
}
