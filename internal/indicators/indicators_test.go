package indicators

import (
	"errors"
	"math"
	"testing"

	"strategy-lab/internal/domain"
)

const eps = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < eps
}

func TestSMA(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	got, err := SMA(x, 3)
	if err != nil {
		t.Fatalf("SMA failed: %v", err)
	}
	if !math.IsNaN(got[0]) || !math.IsNaN(got[1]) {
		t.Errorf("expected NaN warm-up, got %v", got[:2])
	}
	want := []float64{2, 3, 4}
	for i, w := range want {
		if !almostEqual(got[i+2], w) {
			t.Errorf("SMA[%d] = %f, want %f", i+2, got[i+2], w)
		}
	}
}

func TestEMA_SeedAndRecurrence(t *testing.T) {
	x := []float64{2, 4, 6, 8}
	got, err := EMA(x, 3)
	if err != nil {
		t.Fatalf("EMA failed: %v", err)
	}
	if !almostEqual(got[2], 4) {
		t.Errorf("expected seed 4, got %f", got[2])
	}
	// k = 0.5: 4 + (8-4)*0.5 = 6
	if !almostEqual(got[3], 6) {
		t.Errorf("expected 6, got %f", got[3])
	}
}

func TestRollingMeanStd_ConstantIsExactlyZero(t *testing.T) {
	x := make([]float64, 30)
	for i := range x {
		x[i] = 100.1
	}
	means, stds, err := RollingMeanStd(x, 20)
	if err != nil {
		t.Fatalf("RollingMeanStd failed: %v", err)
	}
	for i := 19; i < len(x); i++ {
		if stds[i] != 0 {
			t.Fatalf("std[%d] = %g, want exactly 0", i, stds[i])
		}
		if !almostEqual(means[i], 100.1) {
			t.Errorf("mean[%d] = %f", i, means[i])
		}
	}
}

func TestZScore_ZeroStdIsNaN(t *testing.T) {
	x := []float64{5, 5, 5, 5, 6}
	z, err := ZScore(x, 3)
	if err != nil {
		t.Fatalf("ZScore failed: %v", err)
	}
	if !math.IsNaN(z[2]) || !math.IsNaN(z[3]) {
		t.Errorf("expected NaN for zero-std windows, got %v", z)
	}
	if math.IsNaN(z[4]) || z[4] <= 0 {
		t.Errorf("expected positive z at last bar, got %f", z[4])
	}
}

func TestRSI(t *testing.T) {
	t.Run("only gains falls back to 50", func(t *testing.T) {
		x := []float64{1, 2, 3, 4, 5, 6}
		got, err := RSI(x, 3)
		if err != nil {
			t.Fatalf("RSI failed: %v", err)
		}
		for i := 3; i < len(x); i++ {
			if got[i] != 50 {
				t.Errorf("RSI[%d] = %f, want 50", i, got[i])
			}
		}
	})

	t.Run("equal gains and losses", func(t *testing.T) {
		x := []float64{10, 11, 10, 11, 10}
		got, err := RSI(x, 2)
		if err != nil {
			t.Fatalf("RSI failed: %v", err)
		}
		for i := 2; i < len(x); i++ {
			if !almostEqual(got[i], 50) {
				t.Errorf("RSI[%d] = %f, want 50", i, got[i])
			}
		}
	})

	t.Run("range", func(t *testing.T) {
		x := []float64{10, 9, 9.5, 8, 8.2, 7, 7.7, 7.1}
		got, err := RSI(x, 3)
		if err != nil {
			t.Fatalf("RSI failed: %v", err)
		}
		for i := 3; i < len(x); i++ {
			if got[i] < 0 || got[i] > 100 {
				t.Errorf("RSI[%d] = %f out of range", i, got[i])
			}
		}
	})
}

func TestBollinger(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	b, err := Bollinger(x, 3, 2)
	if err != nil {
		t.Fatalf("Bollinger failed: %v", err)
	}
	// window {3,4,5}: mean 4, sample std 1
	if !almostEqual(b.Middle[4], 4) || !almostEqual(b.Upper[4], 6) || !almostEqual(b.Lower[4], 2) {
		t.Errorf("unexpected bands at 4: %f %f %f", b.Lower[4], b.Middle[4], b.Upper[4])
	}
	if _, err := Bollinger(x, 3, -1); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration for negative k, got %v", err)
	}
}

func TestMACD_ConstantSeriesIsZero(t *testing.T) {
	x := make([]float64, 40)
	for i := range x {
		x[i] = 42
	}
	res, err := MACD(x, 12, 26, 9)
	if err != nil {
		t.Fatalf("MACD failed: %v", err)
	}
	if !math.IsNaN(res.MACD[24]) {
		t.Errorf("expected NaN before slow window, got %f", res.MACD[24])
	}
	if !math.IsNaN(res.Signal[32]) {
		t.Errorf("expected NaN signal before warm-up, got %f", res.Signal[32])
	}
	for i := 33; i < len(x); i++ {
		if !almostEqual(res.MACD[i], 0) || !almostEqual(res.Signal[i], 0) || !almostEqual(res.Histogram[i], 0) {
			t.Errorf("bar %d: expected zeros, got %f %f %f", i, res.MACD[i], res.Signal[i], res.Histogram[i])
		}
	}
}

func TestMACD_Errors(t *testing.T) {
	x := make([]float64, 20)
	if _, err := MACD(x, 26, 12, 9); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
	if _, err := MACD(x, 12, 26, 9); !errors.Is(err, domain.ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData, got %v", err)
	}
}

func TestWindowErrors(t *testing.T) {
	x := []float64{1, 2, 3}

	if _, err := SMA(x, 0); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("SMA window 0: expected ErrConfiguration, got %v", err)
	}
	if _, err := EMA(x, -1); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("EMA window -1: expected ErrConfiguration, got %v", err)
	}
	_, err := SMA(x, 5)
	var insufficient *domain.InsufficientDataError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientDataError, got %v", err)
	}
	if insufficient.Need != 5 || insufficient.Have != 3 {
		t.Errorf("unexpected need/have: %d/%d", insufficient.Need, insufficient.Have)
	}
	if _, err := RSI(x, 3); !errors.Is(err, domain.ErrInsufficientData) {
		t.Errorf("RSI: expected ErrInsufficientData, got %v", err)
	}
	if _, _, err := RollingMeanStd(x, 1); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("RollingMeanStd window 1: expected ErrConfiguration, got %v", err)
	}
}

func TestReturnsAndMomentum(t *testing.T) {
	x := []float64{100, 110, 99}
	r := Returns(x)
	if !math.IsNaN(r[0]) || !almostEqual(r[1], 0.1) || !almostEqual(r[2], -0.1) {
		t.Errorf("unexpected returns %v", r)
	}
	m, err := Momentum(x, 2)
	if err != nil {
		t.Fatalf("Momentum failed: %v", err)
	}
	if !almostEqual(m[2], -0.01) {
		t.Errorf("momentum[2] = %f, want -0.01", m[2])
	}
}

func TestInputNotModified(t *testing.T) {
	x := []float64{3, 1, 4, 1, 5, 9, 2, 6}
	orig := append([]float64(nil), x...)
	_, _ = SMA(x, 3)
	_, _ = EMA(x, 3)
	_, _ = RSI(x, 3)
	_, _ = Bollinger(x, 3, 2)
	for i := range x {
		if x[i] != orig[i] {
			t.Fatalf("input modified at %d", i)
		}
	}
}
