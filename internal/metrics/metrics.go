// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "riskbridge"

var (
	// Portfolio risk.
	RiskScore = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "risk",
		Name:      "score",
		Help:      "Latest composite portfolio risk score (0-100)",
	})
	TotalRisk = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "risk",
		Name:      "total",
		Help:      "Latest total portfolio risk as a fraction of portfolio value",
	})
	Drawdown = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "risk",
		Name:      "max_drawdown",
		Help:      "Max drawdown of the risk history series",
	})
	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "risk",
		Name:      "open_positions",
		Help:      "Positions currently tracked",
	})
	AlertsRaised = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "risk",
		Name:      "alerts_total",
		Help:      "Risk alerts generated",
	}, []string{"level", "metric"})
	SizingRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "risk",
		Name:      "sizing_requests_total",
		Help:      "Position sizing calls by outcome",
	}, []string{"outcome"})

	// Symbol resolution.
	SymbolLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "symbols",
		Name:      "lookups_total",
		Help:      "Symbol resolutions by source (cache, shared, probe, fallback)",
	}, []string{"source"})
	SymbolProbes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "symbols",
		Name:      "probes_total",
		Help:      "Broker tradability probes issued",
	})

	// Execution.
	OrdersAttempted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "execution",
		Name:      "orders_attempted_total",
		Help:      "Orders the gateway tried to place",
	})
	OrdersPlaced = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "execution",
		Name:      "orders_placed_total",
		Help:      "Orders filled by the broker",
	})
	OrdersFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "execution",
		Name:      "orders_failed_total",
		Help:      "Orders that failed after retries, by error code",
	}, []string{"code"})
	OrderRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "execution",
		Name:      "order_retries_total",
		Help:      "Resubmissions after a retryable failure",
	})
	ExecutionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "execution",
		Name:      "latency_seconds",
		Help:      "Wall time of one gateway execution including retries",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	})
	Slippage = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "execution",
		Name:      "slippage",
		Help:      "Absolute fill price minus requested price",
		Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
	})

	// HTTP.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests processed",
	}, []string{"method", "status"})
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests",
	}, []string{"method"})
	WSClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ws",
		Name:      "clients",
		Help:      "Connected websocket clients",
	})
)
