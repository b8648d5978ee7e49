package backtest

import (
	"math"

	"strategy-lab/internal/domain"
)

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
