package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/riskbridge/internal/domain"
)

// PositionStore implements domain.PositionRecordStore. The in-memory book is
// authoritative; this table lets it be rebuilt after a restart.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, COALESCE(ticket, 0), symbol, broker_symbol, strategy,
	size, entry_price, current_price, risk_percent, stop_loss, take_profit,
	profit, correlation_id, opened_at, updated_at`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	err := row.Scan(
		&p.ID, &p.Ticket, &p.Symbol, &p.BrokerSymbol, &p.Strategy,
		&p.Size, &p.EntryPrice, &p.CurrentPrice, &p.RiskPercent, &p.StopLoss, &p.TakeProfit,
		&p.Profit, &p.CorrelationID, &p.OpenedAt, &p.UpdatedAt,
	)
	return p, err
}

// Upsert inserts or refreshes an open position.
func (s *PositionStore) Upsert(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, ticket, symbol, broker_symbol, strategy,
			size, entry_price, current_price, risk_percent, stop_loss, take_profit,
			profit, correlation_id, status, opened_at, updated_at
		) VALUES (
			$1, NULLIF($2::BIGINT, 0), $3, $4, $5,
			$6, $7, $8, $9, $10, $11,
			$12, $13, 'open', $14, NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			broker_symbol = EXCLUDED.broker_symbol,
			size          = EXCLUDED.size,
			current_price = EXCLUDED.current_price,
			risk_percent  = EXCLUDED.risk_percent,
			stop_loss     = EXCLUDED.stop_loss,
			take_profit   = EXCLUDED.take_profit,
			profit        = EXCLUDED.profit,
			updated_at    = NOW()`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.Ticket, p.Symbol, p.BrokerSymbol, p.Strategy,
		p.Size, p.EntryPrice, p.CurrentPrice, p.RiskPercent, p.StopLoss, p.TakeProfit,
		p.Profit, p.CorrelationID, p.OpenedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert position %s: %w", p.ID, err)
	}
	return nil
}

// Close marks a position closed. It returns domain.ErrNotFound when no open
// position has that id.
func (s *PositionStore) Close(ctx context.Context, id string, exitPrice float64) error {
	const query = `
		UPDATE positions
		SET status = 'closed', exit_price = $2, closed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'open'`

	tag, err := s.pool.Exec(ctx, query, id, exitPrice)
	if err != nil {
		return fmt.Errorf("postgres: close position %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListOpen returns all open positions, oldest first.
func (s *PositionStore) ListOpen(ctx context.Context) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE status = 'open' ORDER BY opened_at`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions: %w", err)
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list open positions rows: %w", err)
	}
	return out, nil
}

var _ domain.PositionRecordStore = (*PositionStore)(nil)
