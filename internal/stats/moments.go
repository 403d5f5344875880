package stats

import (
	"math"
	"sort"
)

var machineEpsilon = math.Nextafter(1, 2) - 1

// quantile returns the q-th quantile of sorted values using linear
// interpolation between closest ranks (the numpy/pandas default)
func quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return Undefined
	}
	if n == 1 {
		return sorted[0]
	}

	h := float64(n-1) * q
	lo := int(math.Floor(h))
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := h - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

// centralMoments returns the population 2nd, 3rd and 4th central moments
func centralMoments(values []float64, mean float64) (m2, m3, m4 float64) {
	n := float64(len(values))
	for _, v := range values {
		d := v - mean
		d2 := d * d
		m2 += d2
		m3 += d2 * d
		m4 += d2 * d2
	}
	return m2 / n, m3 / n, m4 / n
}

// flatVariance reports whether a population variance is zero up to the
// precision of mean
func flatVariance(m2, mean float64) bool {
	return m2 == 0 || m2 <= math.Pow(machineEpsilon*mean, 2)
}

// shape returns the biased sample skewness m3/m2^1.5 and the excess
// (Fisher) kurtosis m4/m2^2 - 3. Both are undefined when the variance is
// numerically zero.
func shape(values []float64, mean float64) (skew, kurtosis float64) {
	if len(values) < 2 {
		return Undefined, Undefined
	}

	m2, m3, m4 := centralMoments(values, mean)
	if flatVariance(m2, mean) {
		return Undefined, Undefined
	}
	return m3 / math.Pow(m2, 1.5), m4/(m2*m2) - 3
}

// normalCDF is the distribution function of N(mu, sigma)
func normalCDF(x, mu, sigma float64) float64 {
	return 0.5 * math.Erfc(-(x-mu)/(sigma*math.Sqrt2))
}

// ksStatistic is the one-sample Kolmogorov-Smirnov D statistic of sorted
// values against N(mu, sigma): the largest distance between the empirical
// and the normal distribution functions.
func ksStatistic(sorted []float64, mu, sigma float64) float64 {
	n := float64(len(sorted))
	var d float64
	for i, x := range sorted {
		cdf := normalCDF(x, mu, sigma)
		if plus := float64(i+1)/n - cdf; plus > d {
			d = plus
		}
		if minus := cdf - float64(i)/n; minus > d {
			d = minus
		}
	}
	return d
}

// ksPValue approximates the survival function of the Kolmogorov
// distribution with Stephens' small-sample correction
func ksPValue(d float64, n int) float64 {
	if n <= 0 || math.IsNaN(d) {
		return Undefined
	}

	sqrtN := math.Sqrt(float64(n))
	lambda := (sqrtN + 0.12 + 0.11/sqrtN) * d
	if lambda < 0.2 {
		return 1
	}

	var sum float64
	sign := 1.0
	for j := 1; j <= 100; j++ {
		term := sign * math.Exp(-2*float64(j*j)*lambda*lambda)
		sum += term
		if math.Abs(term) < 1e-12 {
			break
		}
		sign = -sign
	}

	p := 2 * sum
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

// sortedCopy returns values in ascending order without touching the input
func sortedCopy(values []float64) []float64 {
	s := append([]float64(nil), values...)
	sort.Float64s(s)
	return s
}
