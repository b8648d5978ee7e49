package runner

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/marketdata"
)

var testStart = time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)

func seriesFromCloses(symbol string, closes []float64) *domain.PriceSeries {
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{Timestamp: testStart.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c}
	}
	return domain.NewPriceSeries(symbol, bars)
}

type xorshift struct {
	state uint64
}

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

// randomWalk returns level + walk from two independent random walks.
func randomWalk(symbol string, n int, seed uint64) *domain.PriceSeries {
	nz := &xorshift{state: seed}
	out := make([]float64, n)
	level, walk := 100.0, 0.0
	for t := 0; t < n; t++ {
		level += nz.next()
		walk += 2 * nz.next()
		out[t] = level + walk
	}
	return seriesFromCloses(symbol, out)
}

func oscillating(symbol string, n int) *domain.PriceSeries {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 + 5*math.Sin(float64(i)/3) + 3*math.Sin(float64(i)*1.7) + 0.05*float64(i)
	}
	return seriesFromCloses(symbol, out)
}

// memSource serves fixed series and counts requests.
type memSource struct {
	mu     sync.Mutex
	series map[string]*domain.PriceSeries
	calls  int
}

func newMemSource(series ...*domain.PriceSeries) *memSource {
	m := &memSource{series: make(map[string]*domain.PriceSeries)}
	for _, s := range series {
		m.series[s.Symbol] = s
	}
	return m
}

func (m *memSource) Bars(_ context.Context, symbol string, start, end time.Time) (*domain.PriceSeries, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	s, ok := m.series[strings.ToUpper(symbol)]
	if !ok {
		return nil, marketdata.ErrNoData
	}
	out := s.Clone().Between(start, end)
	if out.Len() == 0 {
		return nil, marketdata.ErrNoData
	}
	return out, nil
}
