package strategy

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"strategy-lab/internal/domain"
)

// minADFBars is the shortest series the unit-root regression accepts.
func minADFBars(lags int) int {
	return 2*lags + 10
}

// hedgeRatio regresses a on b and returns (slope, intercept).
func hedgeRatio(a, b []float64) (float64, float64, error) {
	if _, variance := stat.MeanVariance(b, nil); !(variance > 0) {
		return 0, 0, &domain.DegenerateInputError{What: "hedge regression: secondary series has zero variance"}
	}
	alpha, beta := stat.LinearRegression(b, a, nil, false)
	if math.IsNaN(beta) || math.IsInf(beta, 0) {
		return 0, 0, &domain.DegenerateInputError{What: "hedge regression: undefined slope"}
	}
	return beta, alpha, nil
}

// adfStatistic returns the augmented Dickey-Fuller t-statistic of x with a
// constant and lags lagged differences:
//
//	Δx[t] = α + β·x[t-1] + Σ γj·Δx[t-j] + ε
//
// The statistic is β divided by its standard error.
func adfStatistic(x []float64, lags int) (float64, error) {
	n := len(x)
	k := 2 + lags
	nobs := n - 1 - lags
	if n < minADFBars(lags) {
		return 0, &domain.InsufficientDataError{What: "adf test", Need: minADFBars(lags), Have: n}
	}

	diff := make([]float64, n-1)
	for i := 1; i < n; i++ {
		diff[i-1] = x[i] - x[i-1]
	}

	X := mat.NewDense(nobs, k, nil)
	y := mat.NewVecDense(nobs, nil)
	for r := 0; r < nobs; r++ {
		t := r + lags + 1 // index into x of the dependent observation
		y.SetVec(r, diff[t-1])
		X.Set(r, 0, 1)
		X.Set(r, 1, x[t-1])
		for j := 1; j <= lags; j++ {
			X.Set(r, 1+j, diff[t-1-j])
		}
	}

	var xtx mat.Dense
	xtx.Mul(X.T(), X)
	var inv mat.Dense
	if err := inv.Inverse(&xtx); err != nil {
		return 0, &domain.DegenerateInputError{What: "adf regression is singular"}
	}

	var xty mat.VecDense
	xty.MulVec(X.T(), y)
	var coef mat.VecDense
	coef.MulVec(&inv, &xty)

	var fitted mat.VecDense
	fitted.MulVec(X, &coef)
	rss := 0.0
	for r := 0; r < nobs; r++ {
		e := y.AtVec(r) - fitted.AtVec(r)
		rss += e * e
	}
	sigma2 := rss / float64(nobs-k)
	se := math.Sqrt(sigma2 * inv.At(1, 1))
	if !(se > 0) || math.IsNaN(se) {
		return 0, &domain.DegenerateInputError{What: "adf regression has zero residual variance"}
	}
	return coef.AtVec(1) / se, nil
}

// halfLife returns the mean-reversion half-life in bars from an AR(1) fit of
// the spread differences on the lagged spread. Non-reverting spreads return 0.
func halfLife(spread []float64) float64 {
	if len(spread) < 3 {
		return 0
	}
	lagged := spread[:len(spread)-1]
	delta := make([]float64, len(spread)-1)
	for i := 1; i < len(spread); i++ {
		delta[i-1] = spread[i] - spread[i-1]
	}
	if _, variance := stat.MeanVariance(lagged, nil); !(variance > 0) {
		return 0
	}
	_, lambda := stat.LinearRegression(lagged, delta, nil, false)
	if !(lambda < 0) {
		return 0
	}
	return -math.Ln2 / lambda
}
