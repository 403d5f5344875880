package stats

import (
	"math"
)

// DaySummary is the day-level rollup of a device-day's frequency summaries
// used by the trend dashboards
type DaySummary struct {
	DeviceID    string
	Date        string
	Frequencies int

	MaxPower                float64
	MinPower                float64
	PercentSkewPositive     float64
	PercentKurtosisPositive float64
	AvgPercentAboveIQR      float64
	AvgPercentAbove5Std     float64
}

// Rollup derives the day summary from the frequency rows. Shares of
// positive skew/kurtosis are taken over all rows (undefined is not > 0);
// averages skip undefined rows.
func Rollup(deviceID, date string, rows []FrequencySummary) DaySummary {
	d := DaySummary{
		DeviceID:                deviceID,
		Date:                    date,
		Frequencies:             len(rows),
		MaxPower:                Undefined,
		MinPower:                Undefined,
		PercentSkewPositive:     Undefined,
		PercentKurtosisPositive: Undefined,
		AvgPercentAboveIQR:      Undefined,
		AvgPercentAbove5Std:     Undefined,
	}
	if len(rows) == 0 {
		return d
	}

	var skewPositive, kurtPositive int
	var iqrSum, std5Sum float64
	var iqrN, std5N int

	for _, r := range rows {
		if !IsUndefined(r.Max) && (IsUndefined(d.MaxPower) || r.Max > d.MaxPower) {
			d.MaxPower = r.Max
		}
		if !IsUndefined(r.Min) && (IsUndefined(d.MinPower) || r.Min < d.MinPower) {
			d.MinPower = r.Min
		}
		if r.Skew > 0 {
			skewPositive++
		}
		if r.Kurtosis > 0 {
			kurtPositive++
		}
		if !IsUndefined(r.PercentAboveIQR) {
			iqrSum += r.PercentAboveIQR
			iqrN++
		}
		if !IsUndefined(r.PercentAbove5Std) {
			std5Sum += r.PercentAbove5Std
			std5N++
		}
	}

	d.PercentSkewPositive = percent(skewPositive, len(rows))
	d.PercentKurtosisPositive = percent(kurtPositive, len(rows))
	if iqrN > 0 {
		d.AvgPercentAboveIQR = iqrSum / float64(iqrN)
	}
	if std5N > 0 {
		d.AvgPercentAbove5Std = std5Sum / float64(std5N)
	}
	return d
}

// Metric returns a rollup field by its alerting name
func (d DaySummary) Metric(name string) (float64, bool) {
	var v float64
	switch name {
	case "day_max_power":
		v = d.MaxPower
	case "day_min_power":
		v = d.MinPower
	case "percent_skew_positive":
		v = d.PercentSkewPositive
	case "percent_kurtosis_positive":
		v = d.PercentKurtosisPositive
	case "avg_outlier_percent":
		v = d.AvgPercentAboveIQR
	case "avg_percent_above_5std":
		v = d.AvgPercentAbove5Std
	default:
		return 0, false
	}
	return v, !math.IsNaN(v)
}
