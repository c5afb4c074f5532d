package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/riskbridge/internal/domain"
)

// RiskSnapshotStore implements domain.RiskSnapshotStore.
type RiskSnapshotStore struct {
	pool *pgxpool.Pool
}

// NewRiskSnapshotStore creates a new RiskSnapshotStore backed by the given connection pool.
func NewRiskSnapshotStore(pool *pgxpool.Pool) *RiskSnapshotStore {
	return &RiskSnapshotStore{pool: pool}
}

// Insert appends one snapshot.
func (s *RiskSnapshotStore) Insert(ctx context.Context, snap domain.PortfolioRiskSnapshot) error {
	const query = `
		INSERT INTO risk_snapshots (
			taken_at, positions, total_risk, concentration_risk, correlation_risk,
			leverage_risk, liquidity_risk, time_risk, var_95, var_99,
			expected_shortfall, max_drawdown_risk, risk_score
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := s.pool.Exec(ctx, query,
		snap.Timestamp, snap.Positions, snap.TotalRisk, snap.ConcentrationRisk, snap.CorrelationRisk,
		snap.LeverageRisk, snap.LiquidityRisk, snap.TimeRisk, snap.VaR95, snap.VaR99,
		snap.ExpectedShortfall, snap.MaxDrawdownRisk, snap.RiskScore,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert risk snapshot: %w", err)
	}
	return nil
}

// List returns snapshots newest first.
func (s *RiskSnapshotStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.PortfolioRiskSnapshot, error) {
	query, args := listQuery(`
		SELECT taken_at, positions, total_risk, concentration_risk, correlation_risk,
			leverage_risk, liquidity_risk, time_risk, var_95, var_99,
			expected_shortfall, max_drawdown_risk, risk_score
		FROM risk_snapshots WHERE 1=1`, "taken_at", opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list risk snapshots: %w", err)
	}
	defer rows.Close()

	var out []domain.PortfolioRiskSnapshot
	for rows.Next() {
		var r domain.PortfolioRiskSnapshot
		if err := rows.Scan(
			&r.Timestamp, &r.Positions, &r.TotalRisk, &r.ConcentrationRisk, &r.CorrelationRisk,
			&r.LeverageRisk, &r.LiquidityRisk, &r.TimeRisk, &r.VaR95, &r.VaR99,
			&r.ExpectedShortfall, &r.MaxDrawdownRisk, &r.RiskScore,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan risk snapshot: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list risk snapshots rows: %w", err)
	}
	return out, nil
}

var _ domain.RiskSnapshotStore = (*RiskSnapshotStore)(nil)
