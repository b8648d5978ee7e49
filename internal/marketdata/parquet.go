package marketdata

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"strategy-lab/internal/domain"
)

var _ Source = (*ParquetSource)(nil)

// DefaultMarket is the market directory used when none is configured.
const DefaultMarket = "us"

// ParquetSource reads daily bars from Parquet files laid out as
//
//	<DataDir>/<Market>/daily/<SYMBOL>/<YYYY>.parquet
type ParquetSource struct {
	DataDir string
	Market  string
}

// NewParquetSource creates a ParquetSource rooted at dataDir.
func NewParquetSource(dataDir, market string) *ParquetSource {
	if market == "" {
		market = DefaultMarket
	}
	return &ParquetSource{DataDir: dataDir, Market: market}
}

// BarRecord is the on-disk schema for daily bars.
type BarRecord struct {
	Symbol     string  `parquet:"symbol"`
	Timestamp  int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open       float64 `parquet:"open"`
	High       float64 `parquet:"high"`
	Low        float64 `parquet:"low"`
	Close      float64 `parquet:"close"`
	Volume     int64   `parquet:"volume"`
	TradeCount int64   `parquet:"trade_count"`
	VWAP       float64 `parquet:"vwap"`
}

// Bars reads the year files covering [start, end]. With an open bound every
// year file present for the symbol is read.
func (s *ParquetSource) Bars(_ context.Context, symbol string, start, end time.Time) (*domain.PriceSeries, error) {
	symbol = strings.ToUpper(symbol)
	years, err := s.years(symbol, start, end)
	if err != nil {
		return nil, err
	}

	var bars []domain.Bar
	for _, year := range years {
		records, err := readBarFile(s.barPath(symbol, year))
		if err != nil {
			return nil, fmt.Errorf("read %s/%d: %w", symbol, year, err)
		}
		for _, r := range records {
			bars = append(bars, domain.Bar{
				Timestamp: time.UnixMilli(r.Timestamp).UTC(),
				Open:      r.Open,
				High:      r.High,
				Low:       r.Low,
				Close:     r.Close,
				Volume:    float64(r.Volume),
			})
		}
	}
	return finalize(symbol, bars, start, end)
}

// WriteSeries merges series into the year files, replacing bars with equal timestamps.
func (s *ParquetSource) WriteSeries(series *domain.PriceSeries) error {
	if series.Len() == 0 {
		return nil
	}
	symbol := strings.ToUpper(series.Symbol)

	groups := make(map[int][]BarRecord)
	for _, b := range series.Bars {
		ts := b.Timestamp.UTC()
		groups[ts.Year()] = append(groups[ts.Year()], BarRecord{
			Symbol:    symbol,
			Timestamp: ts.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    int64(b.Volume),
		})
	}

	for year, records := range groups {
		path := s.barPath(symbol, year)
		existing, err := readBarFile(path)
		if err != nil {
			return fmt.Errorf("read %s/%d: %w", symbol, year, err)
		}
		merged := mergeBarRecords(existing, records)

		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := parquet.WriteFile(path, merged); err != nil {
			return fmt.Errorf("write bars for %s/%d: %w", symbol, year, err)
		}
	}
	return nil
}

// Symbols lists the symbols with bar data, sorted.
func (s *ParquetSource) Symbols() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.DataDir, s.Market, "daily"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

func (s *ParquetSource) years(symbol string, start, end time.Time) ([]int, error) {
	if !start.IsZero() && !end.IsZero() {
		var years []int
		for y := start.UTC().Year(); y <= end.UTC().Year(); y++ {
			years = append(years, y)
		}
		return years, nil
	}

	entries, err := os.ReadDir(filepath.Join(s.DataDir, s.Market, "daily", symbol))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", symbol, ErrNoData)
		}
		return nil, err
	}
	var years []int
	for _, e := range entries {
		var y int
		if _, err := fmt.Sscanf(e.Name(), "%d.parquet", &y); err != nil {
			continue
		}
		if !start.IsZero() && y < start.UTC().Year() {
			continue
		}
		if !end.IsZero() && y > end.UTC().Year() {
			continue
		}
		years = append(years, y)
	}
	sort.Ints(years)
	return years, nil
}

func (s *ParquetSource) barPath(symbol string, year int) string {
	return filepath.Join(s.DataDir, s.Market, "daily", strings.ToUpper(symbol), fmt.Sprintf("%d.parquet", year))
}

// readBarFile returns nil records for a missing file.
func readBarFile(path string) ([]BarRecord, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return parquet.ReadFile[BarRecord](path)
}

// mergeBarRecords deduplicates by timestamp, preferring incoming records.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	seen := make(map[int64]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Timestamp] = r
	}
	for _, r := range incoming {
		seen[r.Timestamp] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
