package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/riskbridge/internal/domain"
)

// ExecutionStore implements domain.ExecutionStore.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore creates a new ExecutionStore backed by the given connection pool.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

const executionSelectCols = `correlation_id, success, symbol, broker_symbol, symbol_confidence,
	action, volume, COALESCE(order_id, 0), COALESCE(deal_id, 0), requested_price,
	executed_price, slippage, commission, execution_ms, attempts, filling_mode,
	error_code, error_message, COALESCE(retcode, 0), retryable, risk_analysis, executed_at`

func scanExecution(row pgx.Row) (domain.ExecutionResult, error) {
	var (
		r         domain.ExecutionResult
		conf      string
		action    string
		execMS    int64
		code, msg *string
		retcode   int
		retryable bool
		impact    []byte
	)
	err := row.Scan(
		&r.CorrelationID, &r.Success, &r.Symbol, &r.BrokerSymbol, &conf,
		&action, &r.Volume, &r.OrderID, &r.DealID, &r.RequestedPrice,
		&r.ExecutedPrice, &r.Slippage, &r.Commission, &execMS, &r.Attempts, &r.FillingMode,
		&code, &msg, &retcode, &retryable, &impact, &r.Timestamp,
	)
	if err != nil {
		return domain.ExecutionResult{}, err
	}
	r.SymbolConfidence = domain.Confidence(conf)
	r.Action = domain.OrderAction(action)
	r.ExecutionTime = time.Duration(execMS) * time.Millisecond
	if code != nil {
		r.Error = &domain.ExecutionError{Code: *code, Retcode: retcode, Retryable: retryable}
		if msg != nil {
			r.Error.Message = *msg
		}
	}
	if len(impact) > 0 {
		if err := json.Unmarshal(impact, &r.RiskAnalysis); err != nil {
			return domain.ExecutionResult{}, fmt.Errorf("unmarshal risk analysis: %w", err)
		}
	}
	return r, nil
}

// Insert records an execution result. Re-inserting a correlation id
// overwrites the earlier attempt.
func (s *ExecutionStore) Insert(ctx context.Context, r domain.ExecutionResult) error {
	impact, err := json.Marshal(r.RiskAnalysis)
	if err != nil {
		return fmt.Errorf("postgres: marshal risk analysis: %w", err)
	}

	var code, msg *string
	var retcode *int
	retryable := false
	if r.Error != nil {
		code, msg = &r.Error.Code, &r.Error.Message
		if r.Error.Retcode != 0 {
			retcode = &r.Error.Retcode
		}
		retryable = r.Error.Retryable
	}

	const query = `
		INSERT INTO executions (
			correlation_id, success, symbol, broker_symbol, symbol_confidence,
			action, volume, order_id, deal_id, requested_price,
			executed_price, slippage, commission, execution_ms, attempts, filling_mode,
			error_code, error_message, retcode, retryable, risk_analysis, executed_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, NULLIF($8::BIGINT, 0), NULLIF($9::BIGINT, 0), $10,
			$11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22
		)
		ON CONFLICT (correlation_id) DO UPDATE SET
			success        = EXCLUDED.success,
			broker_symbol  = EXCLUDED.broker_symbol,
			order_id       = EXCLUDED.order_id,
			deal_id        = EXCLUDED.deal_id,
			executed_price = EXCLUDED.executed_price,
			slippage       = EXCLUDED.slippage,
			commission     = EXCLUDED.commission,
			execution_ms   = EXCLUDED.execution_ms,
			attempts       = EXCLUDED.attempts,
			filling_mode   = EXCLUDED.filling_mode,
			error_code     = EXCLUDED.error_code,
			error_message  = EXCLUDED.error_message,
			retcode        = EXCLUDED.retcode,
			retryable      = EXCLUDED.retryable,
			risk_analysis  = EXCLUDED.risk_analysis,
			executed_at    = EXCLUDED.executed_at`

	_, err = s.pool.Exec(ctx, query,
		r.CorrelationID, r.Success, r.Symbol, r.BrokerSymbol, string(r.SymbolConfidence),
		string(r.Action), r.Volume, r.OrderID, r.DealID, r.RequestedPrice,
		r.ExecutedPrice, r.Slippage, r.Commission, r.ExecutionTime.Milliseconds(), r.Attempts, r.FillingMode,
		code, msg, retcode, retryable, impact, r.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert execution %s: %w", r.CorrelationID, err)
	}
	return nil
}

// GetByCorrelationID returns one execution or domain.ErrNotFound.
func (s *ExecutionStore) GetByCorrelationID(ctx context.Context, id string) (domain.ExecutionResult, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+executionSelectCols+` FROM executions WHERE correlation_id = $1`, id)
	r, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ExecutionResult{}, domain.ErrNotFound
		}
		return domain.ExecutionResult{}, fmt.Errorf("postgres: get execution %s: %w", id, err)
	}
	return r, nil
}

// ListRecent returns executions newest first.
func (s *ExecutionStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.ExecutionResult, error) {
	query, args := listQuery(`SELECT `+executionSelectCols+` FROM executions WHERE 1=1`, "executed_at", opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions: %w", err)
	}
	defer rows.Close()

	var out []domain.ExecutionResult
	for rows.Next() {
		r, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan execution: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list executions rows: %w", err)
	}
	return out, nil
}

var _ domain.ExecutionStore = (*ExecutionStore)(nil)
