package clickhouse

import (
	"context"
	"fmt"
	"time"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/storage"
)

// EquityCurveStore implements storage.EquityCurveStore using ClickHouse.
type EquityCurveStore struct {
	conn *Conn
}

// NewEquityCurveStore creates a new EquityCurveStore.
func NewEquityCurveStore(conn *Conn) *EquityCurveStore {
	return &EquityCurveStore{conn: conn}
}

// Compile-time interface check.
var _ storage.EquityCurveStore = (*EquityCurveStore)(nil)

// InsertBulk stores the curve of a run. MergeTree does not enforce keys, so
// an existing curve for runID is checked first.
func (s *EquityCurveStore) InsertBulk(ctx context.Context, runID string, points []domain.EquityPoint) (err error) {
	defer observe("equity_insert_bulk", time.Now(), &err)
	if runID == "" {
		return storage.ErrInvalidInput
	}
	if len(points) == 0 {
		return nil
	}

	n, err := s.count(ctx, runID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if n > 0 {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO equity_curves (run_id, ts, cash, equity)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range points {
		if err := batch.Append(runID, p.Time.UTC(), p.Cash, p.Equity); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByRunID retrieves a curve ordered by time. Returns ErrNotFound if the run has none.
func (s *EquityCurveStore) GetByRunID(ctx context.Context, runID string) (_ []domain.EquityPoint, err error) {
	defer observe("equity_get", time.Now(), &err)
	query := `
		SELECT ts, cash, equity
		FROM equity_curves
		WHERE run_id = ?
		ORDER BY ts ASC
	`

	rows, err := s.conn.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query equity curve: %w", err)
	}
	defer rows.Close()

	points, err := scanEquityPoints(rows)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, storage.ErrNotFound
	}
	return points, nil
}

func (s *EquityCurveStore) count(ctx context.Context, runID string) (uint64, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count(*) FROM equity_curves WHERE run_id = ?`, runID).Scan(&count)
	return count, err
}

func scanEquityPoints(rows chRows) ([]domain.EquityPoint, error) {
	var points []domain.EquityPoint

	for rows.Next() {
		var p domain.EquityPoint
		if err := rows.Scan(&p.Time, &p.Cash, &p.Equity); err != nil {
			return nil, fmt.Errorf("scan equity row: %w", err)
		}
		p.Time = p.Time.UTC()
		points = append(points, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate equity rows: %w", err)
	}

	return points, nil
}
