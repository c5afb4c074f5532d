package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/riskbridge/internal/server"
	"github.com/alanyoungcy/riskbridge/internal/server/handler"
	"github.com/alanyoungcy/riskbridge/internal/server/ws"
)

// ServerMode serves the HTTP API and the event stream.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	a.startHousekeeping(ctx, g, deps)
	return g.Wait()
}

// MonitorMode runs the periodic risk evaluation without an HTTP surface.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return deps.Monitor.Run(ctx)
	})
	a.startHousekeeping(ctx, g, deps)
	return g.Wait()
}

// FullMode runs the HTTP surface and the monitor together.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return deps.Monitor.Run(ctx)
	})
	a.startHTTPServer(ctx, g, deps)
	a.startHousekeeping(ctx, g, deps)
	return g.Wait()
}

// ReportMode evaluates the portfolio once and prints it.
func (a *App) ReportMode(ctx context.Context, deps *Dependencies) error {
	if a.cfg.Monitor.SyncPositions {
		if res, err := deps.Risk.SyncPositions(ctx); err != nil {
			a.logger.WarnContext(ctx, "report: position sync failed, using stored book",
				slog.String("error", err.Error()),
			)
		} else {
			a.logger.InfoContext(ctx, "report: positions synced",
				slog.Int("added", res.Added),
				slog.Int("updated", res.Updated),
				slog.Int("removed", res.Removed),
			)
		}
	}

	snap := deps.Risk.CalculatePortfolioRisk(ctx)
	return renderReport(a.out, riskReport{
		Snapshot:        snap,
		Positions:       deps.Risk.OpenPositions(),
		Alerts:          deps.Risk.CurrentAlerts(ctx),
		Recommendations: deps.Risk.GetRiskRecommendations(ctx),
	})
}

func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(a.cfg.Mode, deps.HealthChecks, a.logger),
		Risk:      handler.NewRiskHandler(deps.Risk, deps.Correlation, deps.Snapshots, a.logger),
		Positions: handler.NewPositionHandler(deps.Risk, a.logger),
		Execute:   handler.NewExecuteHandler(deps.Risk),
		Symbols:   handler.NewSymbolHandler(deps.Resolver),
	}
	if deps.Executions != nil && deps.Audit != nil {
		handlers.Records = handler.NewRecordsHandler(deps.Executions, deps.Audit, a.logger)
	}

	var hub *ws.Hub
	if a.cfg.Server.StreamAlerts {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Mode:           a.cfg.Mode,
			AllowedOrigins: a.cfg.Server.CORSOrigins,
		})
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)),
		)
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startHousekeeping sweeps the resolution cache, the order dedup table and
// the in-process rate limiter.
func (a *App) startHousekeeping(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if iv := a.cfg.Symbols.SweepInterval.Duration; iv > 0 {
		g.Go(func() error {
			return deps.Resolver.RunSweeper(ctx, iv)
		})
	}
	if d := deps.Gateway.Dedup(); d != nil {
		g.Go(func() error {
			return every(ctx, time.Minute, func() {
				if n := d.Cleanup(); n > 0 {
					a.logger.DebugContext(ctx, "app: expired order ids dropped", slog.Int("count", n))
				}
			})
		})
	}
	if l := deps.localLimiter; l != nil {
		g.Go(func() error {
			return every(ctx, 5*time.Minute, func() { l.Cleanup() })
		})
	}
}

// every calls fn on each tick until ctx is cancelled.
func every(ctx context.Context, interval time.Duration, fn func()) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			fn()
		}
	}
}
