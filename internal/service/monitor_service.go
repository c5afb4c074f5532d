package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	s3blob "github.com/alanyoungcy/riskbridge/internal/blob/s3"
	"github.com/alanyoungcy/riskbridge/internal/domain"
)

// Archiver stores batches of risk history. *s3blob.RiskArchiver implements it.
type Archiver interface {
	Archive(ctx context.Context, at time.Time, snaps []domain.PortfolioRiskSnapshot, alerts []domain.RiskAlert) (s3blob.RiskArchive, error)
}

// MonitorConfig controls the evaluation loop.
type MonitorConfig struct {
	Interval        time.Duration
	ArchiveInterval time.Duration
	SyncPositions   bool
}

// MonitorService periodically evaluates the portfolio, raises alerts and
// archives the evaluations. It runs only when a monitoring mode is selected.
type MonitorService struct {
	risk     *RiskService
	archiver Archiver
	cfg      MonitorConfig
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	pending []domain.PortfolioRiskSnapshot
	alerts  []domain.RiskAlert
}

// NewMonitorService creates a MonitorService. archiver may be nil.
func NewMonitorService(rs *RiskService, archiver Archiver, cfg MonitorConfig, logger *slog.Logger) *MonitorService {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &MonitorService{
		risk:     rs,
		archiver: archiver,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "monitor")),
		now:      time.Now,
	}
}

// Evaluate runs one cycle: optional broker sync, snapshot, alerts. The
// results are queued for the next archive.
func (m *MonitorService) Evaluate(ctx context.Context) (domain.PortfolioRiskSnapshot, []domain.RiskAlert) {
	if m.cfg.SyncPositions {
		if _, err := m.risk.SyncPositions(ctx); err != nil {
			m.logger.WarnContext(ctx, "monitor: position sync failed", slog.String("error", err.Error()))
		}
	}
	snap := m.risk.CalculatePortfolioRisk(ctx)
	alerts := m.risk.GenerateRiskAlerts(ctx, snap)

	if m.archiver != nil {
		m.mu.Lock()
		m.pending = append(m.pending, snap)
		m.alerts = append(m.alerts, alerts...)
		m.mu.Unlock()
	}
	return snap, alerts
}

// Archive uploads everything evaluated since the previous archive. On failure
// the batch is kept for the next attempt.
func (m *MonitorService) Archive(ctx context.Context) error {
	if m.archiver == nil {
		return nil
	}
	m.mu.Lock()
	snaps, alerts := m.pending, m.alerts
	m.pending, m.alerts = nil, nil
	m.mu.Unlock()
	if len(snaps) == 0 && len(alerts) == 0 {
		return nil
	}

	out, err := m.archiver.Archive(ctx, m.now().UTC(), snaps, alerts)
	if err != nil {
		m.mu.Lock()
		m.pending = append(snaps, m.pending...)
		m.alerts = append(alerts, m.alerts...)
		m.mu.Unlock()
		return err
	}
	m.logger.InfoContext(ctx, "monitor: risk history archived",
		slog.String("path", out.Path),
		slog.Int("snapshots", out.Snapshots),
		slog.Int("alerts", out.Alerts),
	)
	return nil
}

// Run evaluates every Interval and archives every ArchiveInterval until ctx
// is cancelled. Pending history is flushed on the way out.
func (m *MonitorService) Run(ctx context.Context) error {
	m.logger.InfoContext(ctx, "monitor: started",
		slog.Duration("interval", m.cfg.Interval),
		slog.Duration("archive_interval", m.cfg.ArchiveInterval),
	)
	eval := time.NewTicker(m.cfg.Interval)
	defer eval.Stop()

	var archiveC <-chan time.Time
	if m.archiver != nil && m.cfg.ArchiveInterval > 0 {
		t := time.NewTicker(m.cfg.ArchiveInterval)
		defer t.Stop()
		archiveC = t.C
	}

	m.Evaluate(ctx)
	for {
		select {
		case <-ctx.Done():
			m.flush(ctx)
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-eval.C:
			m.Evaluate(ctx)
		case <-archiveC:
			if err := m.Archive(ctx); err != nil {
				m.logger.ErrorContext(ctx, "monitor: archive failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (m *MonitorService) flush(ctx context.Context) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if err := m.Archive(fctx); err != nil {
		m.logger.ErrorContext(fctx, "monitor: final archive failed", slog.String("error", err.Error()))
	}
}
