package marketdata

import (
	"context"
	"errors"
	"testing"
	"time"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/storage/memory"
)

func TestStoreSource_AndImport(t *testing.T) {
	ctx := context.Background()
	store := memory.NewBarStore()
	upstream := mapSource{"IBM": domain.NewPriceSeries("IBM", dailyBars(day0, 1, 2, 3, 4))}

	n, err := Import(ctx, upstream, store, "IBM", time.Time{}, day0.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if n != 2 {
		t.Errorf("imported %d, want 2", n)
	}

	// Overlapping import only adds the new bars.
	n, err = Import(ctx, upstream, store, "IBM", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("second Import failed: %v", err)
	}
	if n != 2 {
		t.Errorf("second import added %d, want 2", n)
	}

	src := NewStoreSource(store)
	series, err := src.Bars(ctx, "ibm", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Bars failed: %v", err)
	}
	if series.Len() != 4 || series.Bars[3].Close != 4 {
		t.Errorf("unexpected series: %+v", series.Bars)
	}

	_, err = src.Bars(ctx, "NOPE", time.Time{}, time.Time{})
	if !errors.Is(err, ErrNoData) {
		t.Errorf("expected ErrNoData, got %v", err)
	}
}
