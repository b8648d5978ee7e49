package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/storage"
)

// TradeStore implements storage.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

const tradeColumns = `
	trade_id, run_id, strategy_id, symbol, leg, direction,
	entry_index, entry_time, entry_price, quantity, entry_cost,
	exit_index, exit_time, exit_price, exit_cost, forced,
	gross_pnl, net_pnl, trade_return`

// InsertBulk adds multiple trades atomically. Fails entire batch on any duplicate.
func (s *TradeStore) InsertBulk(ctx context.Context, trades []*domain.Trade) (err error) {
	defer observe("trade_insert_bulk", time.Now(), &err)
	if len(trades) == 0 {
		return nil
	}
	for _, t := range trades {
		if t == nil || t.TradeID == "" || t.RunID == "" {
			return storage.ErrInvalidInput
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `INSERT INTO backtest_trades (` + tradeColumns + `) VALUES (
		$1, $2, $3, $4, $5, $6,
		$7, $8, $9, $10, $11,
		$12, $13, $14, $15, $16,
		$17, $18, $19
	)`

	batch := &pgx.Batch{}
	for _, t := range trades {
		batch.Queue(query,
			t.TradeID, t.RunID, t.StrategyID, t.Symbol, t.Leg, string(t.Direction),
			t.EntryIndex, t.EntryTime, t.EntryPrice, t.Quantity, t.EntryCost,
			t.ExitIndex, t.ExitTime, t.ExitPrice, t.ExitCost, t.Forced,
			t.GrossPnL, t.NetPnL, t.Return,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for range trades {
		if _, err := br.Exec(); err != nil {
			br.Close()
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert trade in bulk: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetByRunID retrieves all trades of a run.
func (s *TradeStore) GetByRunID(ctx context.Context, runID string) (_ []*domain.Trade, err error) {
	defer observe("trade_get", time.Now(), &err)
	query := `SELECT ` + tradeColumns + `
		FROM backtest_trades
		WHERE run_id = $1
		ORDER BY entry_index ASC, leg ASC, trade_id ASC
	`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("get trades by run id: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// GetByStrategy retrieves all trades of a strategy.
func (s *TradeStore) GetByStrategy(ctx context.Context, strategyID string) (_ []*domain.Trade, err error) {
	defer observe("trade_get_by_strategy", time.Now(), &err)
	query := `SELECT ` + tradeColumns + `
		FROM backtest_trades
		WHERE strategy_id = $1
		ORDER BY entry_time ASC, leg ASC, trade_id ASC
	`

	rows, err := s.pool.Query(ctx, query, strategyID)
	if err != nil {
		return nil, fmt.Errorf("get trades by strategy: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// scanTrades scans multiple rows into a slice of Trade.
func scanTrades(rows pgx.Rows) ([]*domain.Trade, error) {
	var trades []*domain.Trade

	for rows.Next() {
		var t domain.Trade
		var direction string

		err := rows.Scan(
			&t.TradeID, &t.RunID, &t.StrategyID, &t.Symbol, &t.Leg, &direction,
			&t.EntryIndex, &t.EntryTime, &t.EntryPrice, &t.Quantity, &t.EntryCost,
			&t.ExitIndex, &t.ExitTime, &t.ExitPrice, &t.ExitCost, &t.Forced,
			&t.GrossPnL, &t.NetPnL, &t.Return,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}

		t.Direction = domain.Direction(direction)
		t.EntryTime = t.EntryTime.UTC()
		t.ExitTime = t.ExitTime.UTC()
		trades = append(trades, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}

	return trades, nil
}
