package strategy

import (
	"math"
	"time"

	"strategy-lab/internal/domain"
)

var testStart = time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)

func seriesFromCloses(symbol string, closes []float64) *domain.PriceSeries {
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{Timestamp: testStart.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c}
	}
	return domain.NewPriceSeries(symbol, bars)
}

func constantSeries(symbol string, n int, price float64) *domain.PriceSeries {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = price
	}
	return seriesFromCloses(symbol, closes)
}

// linearSeries moves in equal steps from first to last.
func linearSeries(symbol string, n int, first, last float64) *domain.PriceSeries {
	closes := make([]float64, n)
	step := (last - first) / float64(n-1)
	for i := range closes {
		closes[i] = first + step*float64(i)
	}
	return seriesFromCloses(symbol, closes)
}

type xorshift struct {
	state uint64
}

// next returns a value in [-0.5, 0.5).
func (x *xorshift) next() float64 {
	x.state ^= x.state << 13
	x.state ^= x.state >> 7
	x.state ^= x.state << 17
	return float64(x.state>>11)/float64(uint64(1)<<53) - 0.5
}

// cointegratedPair returns b as a drifting random walk and a = b plus a
// period-20 sine of amplitude 2 and small noise.
func cointegratedPair(n int, seed uint64) (*domain.PriceSeries, *domain.PriceSeries) {
	nz := &xorshift{state: seed}
	a := make([]float64, n)
	b := make([]float64, n)
	level := 100.0
	for t := 0; t < n; t++ {
		level += 0.3 + 2*nz.next()
		b[t] = level
		a[t] = level + 2*math.Sin(2*math.Pi*float64(t)/20) + 0.1*nz.next()
	}
	return seriesFromCloses("AAA", a), seriesFromCloses("BBB", b)
}

// divergingPair returns b as a near-linear trend and a = b plus a parabola
// centered on the sample, so their spread drifts in every window.
func divergingPair(n int, seed uint64) (*domain.PriceSeries, *domain.PriceSeries) {
	nz := &xorshift{state: seed}
	a := make([]float64, n)
	b := make([]float64, n)
	for t := 0; t < n; t++ {
		x := float64(t) - float64(n)/2
		b[t] = 80 + 0.2*float64(t) + 0.02*nz.next()
		a[t] = b[t] + 0.03*x*x + 0.05*nz.next()
	}
	return seriesFromCloses("AAA", a), seriesFromCloses("BBB", b)
}
