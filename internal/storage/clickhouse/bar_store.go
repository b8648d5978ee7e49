package clickhouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/storage"
)

// BarStore implements storage.BarStore using ClickHouse.
type BarStore struct {
	conn *Conn
}

// NewBarStore creates a new BarStore.
func NewBarStore(conn *Conn) *BarStore {
	return &BarStore{conn: conn}
}

// Compile-time interface check.
var _ storage.BarStore = (*BarStore)(nil)

// InsertBulk adds the bars of a series. Fails entire batch on duplicate (symbol, ts).
func (s *BarStore) InsertBulk(ctx context.Context, series *domain.PriceSeries) (err error) {
	defer observe("bar_insert_bulk", time.Now(), &err)
	if series == nil || series.Symbol == "" {
		return storage.ErrInvalidInput
	}
	if series.Len() == 0 {
		return nil
	}
	symbol := strings.ToUpper(series.Symbol)

	// Check for intra-batch duplicates
	seen := make(map[int64]struct{}, series.Len())
	for _, b := range series.Bars {
		k := b.Timestamp.UnixMilli()
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	// Check for duplicates against existing rows in the batch's time span
	var count uint64
	err = s.conn.QueryRow(ctx, `
		SELECT count(*) FROM daily_bars
		WHERE symbol = ? AND ts >= ? AND ts <= ? AND has(?, toUnixTimestamp64Milli(ts))
	`, symbol, series.Start().UTC(), series.End().UTC(), keys(seen)).Scan(&count)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if count > 0 {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO daily_bars (symbol, ts, open, high, low, close, volume)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, b := range series.Bars {
		err = batch.Append(symbol, b.Timestamp.UTC(), b.Open, b.High, b.Low, b.Close, b.Volume)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByTimeRange retrieves bars within [start, end] (zero = open), ordered by ts ASC.
func (s *BarStore) GetByTimeRange(ctx context.Context, symbol string, start, end time.Time) (_ *domain.PriceSeries, err error) {
	defer observe("bar_get_range", time.Now(), &err)
	query := `
		SELECT ts, open, high, low, close, volume
		FROM daily_bars
		WHERE symbol = ?`
	args := []interface{}{strings.ToUpper(symbol)}
	if !start.IsZero() {
		query += ` AND ts >= ?`
		args = append(args, start.UTC())
	}
	if !end.IsZero() {
		query += ` AND ts <= ?`
		args = append(args, end.UTC())
	}
	query += ` ORDER BY ts ASC`

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bars by time range: %w", err)
	}
	defer rows.Close()

	bars, err := scanBars(rows)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, storage.ErrNotFound
	}
	return domain.NewPriceSeries(symbol, bars), nil
}

// Symbols lists stored symbols in ascending order.
func (s *BarStore) Symbols(ctx context.Context) (_ []string, err error) {
	defer observe("bar_symbols", time.Now(), &err)
	rows, err := s.conn.Query(ctx, `SELECT DISTINCT symbol FROM daily_bars ORDER BY symbol ASC`)
	if err != nil {
		return nil, fmt.Errorf("query symbols: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("scan symbol row: %w", err)
		}
		out = append(out, sym)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate symbol rows: %w", err)
	}
	return out, nil
}

func scanBars(rows chRows) ([]domain.Bar, error) {
	var bars []domain.Bar

	for rows.Next() {
		var b domain.Bar
		if err := rows.Scan(&b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar row: %w", err)
		}
		b.Timestamp = b.Timestamp.UTC()
		bars = append(bars, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bar rows: %w", err)
	}

	return bars, nil
}

func keys(m map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
