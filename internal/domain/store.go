package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// PositionRecordStore persists the open book so it survives restarts.
type PositionRecordStore interface {
	Upsert(ctx context.Context, pos Position) error
	Close(ctx context.Context, id string, exitPrice float64) error
	ListOpen(ctx context.Context) ([]Position, error)
}

// ExecutionStore persists execution results.
type ExecutionStore interface {
	Insert(ctx context.Context, res ExecutionResult) error
	GetByCorrelationID(ctx context.Context, correlationID string) (ExecutionResult, error)
	ListRecent(ctx context.Context, opts ListOpts) ([]ExecutionResult, error)
}

// RiskSnapshotStore persists computed portfolio snapshots.
type RiskSnapshotStore interface {
	Insert(ctx context.Context, snap PortfolioRiskSnapshot) error
	List(ctx context.Context, opts ListOpts) ([]PortfolioRiskSnapshot, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore writes an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
