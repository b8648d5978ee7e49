package marketdata

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"strategy-lab/internal/domain"
)

var _ Source = (*CSVSource)(nil)

// csvHeader is the expected column order.
var csvHeader = []string{"timestamp", "open", "high", "low", "close", "volume"}

// CSVSource reads <Dir>/<SYMBOL>.csv files with a timestamp,open,high,low,close,volume header.
// Timestamps are RFC3339 or YYYY-MM-DD.
type CSVSource struct {
	Dir string
}

// NewCSVSource creates a CSVSource.
func NewCSVSource(dir string) *CSVSource {
	return &CSVSource{Dir: dir}
}

// Bars reads the symbol's file and clips it to [start, end].
func (s *CSVSource) Bars(ctx context.Context, symbol string, start, end time.Time) (*domain.PriceSeries, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	symbol = strings.ToUpper(symbol)

	f, err := os.Open(filepath.Join(s.Dir, symbol+".csv"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", symbol, ErrNoData)
		}
		return nil, err
	}
	defer f.Close()

	bars, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read %s.csv: %w", symbol, err)
	}
	return finalize(symbol, bars, start, end)
}

// ReadCSV parses bars from r. The header row is required.
func ReadCSV(r io.Reader) ([]domain.Bar, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range csvHeader {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	var bars []domain.Bar
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		ts, err := parseTimestamp(rec[col["timestamp"]])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		var vals [5]float64
		for i, name := range csvHeader[1:] {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[col[name]]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", line, name, err)
			}
			vals[i] = v
		}
		bars = append(bars, domain.Bar{
			Timestamp: ts,
			Open:      vals[0],
			High:      vals[1],
			Low:       vals[2],
			Close:     vals[3],
			Volume:    vals[4],
		})
	}
	return bars, nil
}

// WriteCSV writes series to w with the standard header.
func WriteCSV(w io.Writer, series *domain.PriceSeries) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, b := range series.Bars {
		if err := cw.Write([]string{
			b.Timestamp.UTC().Format(time.RFC3339),
			formatF(b.Open), formatF(b.High), formatF(b.Low), formatF(b.Close), formatF(b.Volume),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
	}
	return t, nil
}

func formatF(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
