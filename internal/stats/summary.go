package stats

import (
	"math"

	gostats "github.com/GaryBoone/GoStats/stats"

	"github.com/smukkama/rfi-pipeline/internal/trace"
)

// Undefined marks a statistic the row's data cannot support (too few
// values, zero variance, or a measure that was not requested). It is NaN
// and serializes as an empty cell.
var Undefined = math.NaN()

// IsUndefined reports whether v is the Undefined marker
func IsUndefined(v float64) bool {
	return math.IsNaN(v)
}

// FrequencySummary is one row of a day summary: the distribution of one
// frequency's non-missing power values (dBm) across the day
type FrequencySummary struct {
	Frequency trace.Frequency
	Count     int

	Mean            float64
	Median          float64
	Min             float64
	Max             float64
	Skew            float64
	Kurtosis        float64
	PercentAboveIQR float64
	KSStatistic     float64

	StdDev            float64
	KSPValue          float64
	PercentAbove5Std  float64
	IQRCutoff         float64
	PercentOutsideIQR float64
}

// undefinedSummary returns a row with every statistic undefined
func undefinedSummary(f trace.Frequency) FrequencySummary {
	s := FrequencySummary{Frequency: f}
	for _, c := range columns {
		*c.field(&s) = Undefined
	}
	return s
}

// Summarize computes the requested measures over values. values must hold
// only real readings; no-data cells are dropped by the caller.
func Summarize(f trace.Frequency, values []float64, measures Measure) FrequencySummary {
	s := undefinedSummary(f)
	n := len(values)
	s.Count = n
	if n == 0 {
		return s
	}

	sorted := sortedCopy(values)

	s.Min = gostats.StatsMin(values)
	s.Max = gostats.StatsMax(values)
	s.Mean = clamp(gostats.StatsMean(values), s.Min, s.Max)
	s.Median = quantile(sorted, 0.5)

	q1 := quantile(sorted, 0.25)
	q3 := quantile(sorted, 0.75)
	iqr := q3 - q1
	upper := q3 + 1.5*iqr
	lower := q1 - 1.5*iqr
	s.IQRCutoff = upper

	var above, outside int
	for _, v := range values {
		if v > upper {
			above++
			outside++
		} else if v < lower {
			outside++
		}
	}
	s.PercentAboveIQR = percent(above, n)
	s.PercentOutsideIQR = percent(outside, n)

	if n >= 2 {
		// Rounding in the library's running sums leaves a residue on constant
		// rows; those rows have zero spread.
		std := 0.0
		if m2, _, _ := centralMoments(values, s.Mean); !flatVariance(m2, s.Mean) {
			std = gostats.StatsSampleStandardDeviation(values)
		}
		s.StdDev = std
		s.Skew, s.Kurtosis = shape(values, s.Mean)

		cutoff := s.Median + 5*std
		var above5 int
		for _, v := range values {
			if v > cutoff {
				above5++
			}
		}
		s.PercentAbove5Std = percent(above5, n)

		// The normal is fitted from the same sample, so D is descriptive only.
		if std > 0 && measures&(KSStatistic|KSPValue) != 0 {
			s.KSStatistic = ksStatistic(sorted, s.Mean, std)
			s.KSPValue = ksPValue(s.KSStatistic, n)
		}
	}

	for _, c := range columns {
		if !measures.Has(c.measure) {
			*c.field(&s) = Undefined
		}
	}
	return s
}

func percent(count, total int) float64 {
	if total == 0 {
		return Undefined
	}
	return float64(count) / float64(total) * 100
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Round rounds v to the given number of decimal places; Undefined passes through
func Round(v float64, decimals int) float64 {
	if IsUndefined(v) || math.IsInf(v, 0) {
		return v
	}
	scale := math.Pow(10, float64(decimals))
	return math.Round(v*scale) / scale
}
