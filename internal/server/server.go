// Package server hosts the HTTP API, the Prometheus endpoint and the
// WebSocket event stream.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/riskbridge/internal/domain"
	"github.com/alanyoungcy/riskbridge/internal/server/handler"
	"github.com/alanyoungcy/riskbridge/internal/server/middleware"
	"github.com/alanyoungcy/riskbridge/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	RateLimit   int    // requests per RateWindow per client; 0 disables
	RateWindow  time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// Records is optional.
type Handlers struct {
	Health    *handler.HealthHandler
	Risk      *handler.RiskHandler
	Positions *handler.PositionHandler
	Execute   *handler.ExecuteHandler
	Symbols   *handler.SymbolHandler
	Records   *handler.RecordsHandler
}

// Server is the headless HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in CORS, logging, rate
// limiting and auth, outermost first. /api/health and /metrics skip auth.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/risk", handlers.Risk.GetRisk)
	mux.HandleFunc("GET /api/risk/history", handlers.Risk.GetHistory)
	mux.HandleFunc("GET /api/risk/alerts", handlers.Risk.GetAlerts)
	mux.HandleFunc("GET /api/risk/recommendations", handlers.Risk.GetRecommendations)
	mux.HandleFunc("POST /api/sizing", handlers.Risk.Size)

	mux.HandleFunc("GET /api/positions", handlers.Positions.ListPositions)
	mux.HandleFunc("POST /api/positions", handlers.Positions.UpsertPosition)
	mux.HandleFunc("POST /api/positions/sync", handlers.Positions.SyncPositions)
	mux.HandleFunc("DELETE /api/positions/{id}", handlers.Positions.DeletePosition)
	mux.HandleFunc("POST /api/positions/{id}/close", handlers.Positions.ClosePosition)

	mux.HandleFunc("POST /api/execute", handlers.Execute.Execute)
	mux.HandleFunc("GET /api/symbols/{symbol}", handlers.Symbols.Resolve)

	if handlers.Records != nil {
		mux.HandleFunc("GET /api/executions", handlers.Records.ListExecutions)
		mux.HandleFunc("GET /api/executions/{id}", handlers.Records.GetExecution)
		mux.HandleFunc("GET /api/audit", handlers.Records.ListAudit)
	}

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health", "/metrics")(h)
	h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(middleware.NewOriginPolicy(cfg.CORSOrigins))(h)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			// Executions may retry for several attempt timeouts.
			WriteTimeout: 90 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the fully wrapped handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
