package stats

import (
	"fmt"
	"strings"
)

// Measure selects one statistic (one summary column). Measures combine as
// a bit set so a single engine covers every report variant.
type Measure uint

const (
	Mean Measure = 1 << iota
	Median
	Min
	Max
	Skew
	Kurtosis
	PercentAboveIQR
	KSStatistic
	StdDev
	KSPValue
	PercentAbove5Std
	IQRCutoff
	PercentOutsideIQR
)

const (
	// DefaultMeasures are the columns of the standard day summary artifact
	DefaultMeasures = Mean | Median | Min | Max | Skew | Kurtosis | PercentAboveIQR | KSStatistic
	// AllMeasures adds the optional columns
	AllMeasures = DefaultMeasures | StdDev | KSPValue | PercentAbove5Std | IQRCutoff | PercentOutsideIQR
)

// Has reports whether every measure in x is enabled in m
func (m Measure) Has(x Measure) bool {
	return m&x == x
}

// column binds a measure to its CSV header and its summary field
type column struct {
	measure Measure
	name    string
	header  string
	field   func(*FrequencySummary) *float64
}

// columns is the fixed output order of summary artifacts
var columns = []column{
	{Mean, "mean", "Mean (dBm)", func(s *FrequencySummary) *float64 { return &s.Mean }},
	{Median, "median", "Median (dBm)", func(s *FrequencySummary) *float64 { return &s.Median }},
	{Min, "min", "Min (dBm)", func(s *FrequencySummary) *float64 { return &s.Min }},
	{Max, "max", "Max (dBm)", func(s *FrequencySummary) *float64 { return &s.Max }},
	{Skew, "skew", "Skew", func(s *FrequencySummary) *float64 { return &s.Skew }},
	{Kurtosis, "kurtosis", "Kurtosis", func(s *FrequencySummary) *float64 { return &s.Kurtosis }},
	{PercentAboveIQR, "iqr", "% Above 1.5*IQR", func(s *FrequencySummary) *float64 { return &s.PercentAboveIQR }},
	{KSStatistic, "ks", "KS Test D Statistic", func(s *FrequencySummary) *float64 { return &s.KSStatistic }},
	{StdDev, "std", "Std Dev (dBm)", func(s *FrequencySummary) *float64 { return &s.StdDev }},
	{KSPValue, "ks_pvalue", "KS Test P-Value", func(s *FrequencySummary) *float64 { return &s.KSPValue }},
	{PercentAbove5Std, "5std", "% Above 5 Std Dev", func(s *FrequencySummary) *float64 { return &s.PercentAbove5Std }},
	{IQRCutoff, "iqr_cutoff", "IQR Cutoff (dBm)", func(s *FrequencySummary) *float64 { return &s.IQRCutoff }},
	{PercentOutsideIQR, "iqr_two_sided", "% Outside 1.5*IQR", func(s *FrequencySummary) *float64 { return &s.PercentOutsideIQR }},
}

// ParseMeasures reads a comma separated list of measure names. "default"
// and "all" expand to DefaultMeasures and AllMeasures.
func ParseMeasures(list string) (Measure, error) {
	var m Measure
	for _, name := range strings.Split(list, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		switch name {
		case "":
			continue
		case "default":
			m |= DefaultMeasures
			continue
		case "all":
			m |= AllMeasures
			continue
		}

		found := false
		for _, c := range columns {
			if c.name == name {
				m |= c.measure
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown measure %q", name)
		}
	}

	if m == 0 {
		return 0, fmt.Errorf("no measures selected")
	}
	return m, nil
}

// String lists the enabled measure names
func (m Measure) String() string {
	var names []string
	for _, c := range columns {
		if m.Has(c.measure) {
			names = append(names, c.name)
		}
	}
	return strings.Join(names, ",")
}
