package stats

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/smukkama/rfi-pipeline/internal/matrix"
	"github.com/smukkama/rfi-pipeline/internal/trace"
)

// Day rollup headers
const (
	rollupDate           = "Date"
	rollupDevice         = "Device"
	rollupFrequencies    = "Frequencies"
	rollupMaxPower       = "Day Max Power (dBm)"
	rollupMinPower       = "Day Min Power (dBm)"
	rollupSkewPositive   = "Percent Skewness > 0"
	rollupKurtPositive   = "Percent Kurtosis > 0"
	rollupAvgOutliers    = "Average Percent of Outliers"
	rollupAvgAbove5StdDv = "Average Percent > 5 Std Dev"
)

func formatStat(v float64, decimals int) string {
	if IsUndefined(v) {
		return ""
	}
	r := Round(v, decimals)
	if r == 0 {
		// drop the sign of -0
		r = 0
	}
	return strconv.FormatFloat(r, 'f', -1, 64)
}

func parseStat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return Undefined, nil
	}
	return strconv.ParseFloat(s, 64)
}

// SummaryHeader returns the header row for the enabled measures
func SummaryHeader(measures Measure) []string {
	header := []string{matrix.FrequencyHeader}
	for _, c := range columns {
		if measures.Has(c.measure) {
			header = append(header, c.header)
		}
	}
	return header
}

// WriteSummaryCSV writes one row per frequency with the enabled measures,
// rounded to decimals. Undefined values are written as empty cells.
func WriteSummaryCSV(w io.Writer, rows []FrequencySummary, measures Measure, decimals int) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(SummaryHeader(measures)); err != nil {
		return err
	}

	for i := range rows {
		record := []string{rows[i].Frequency.String()}
		for _, c := range columns {
			if measures.Has(c.measure) {
				record = append(record, formatStat(*c.field(&rows[i]), decimals))
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// ReadSummaryCSV loads a summary artifact. The returned Measure describes
// which columns were present; unknown columns are ignored.
func ReadSummaryCSV(r io.Reader) ([]FrequencySummary, Measure, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read summary header: %w", err)
	}
	if len(header) == 0 || strings.TrimSpace(header[0]) != matrix.FrequencyHeader {
		return nil, 0, fmt.Errorf("summary header must start with %q", matrix.FrequencyHeader)
	}

	var present Measure
	fields := make([]*column, len(header))
	for i, h := range header[1:] {
		for k := range columns {
			if columns[k].header == strings.TrimSpace(h) {
				fields[i+1] = &columns[k]
				present |= columns[k].measure
				break
			}
		}
	}

	var rows []FrequencySummary
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, 0, fmt.Errorf("line %d: %w", line, err)
		}
		if len(record) != len(header) {
			return nil, 0, fmt.Errorf("line %d: expected %d columns, got %d", line, len(header), len(record))
		}

		ghz, err := strconv.ParseFloat(strings.TrimSpace(record[0]), 64)
		if err != nil {
			return nil, 0, fmt.Errorf("line %d: invalid frequency %q", line, record[0])
		}

		s := undefinedSummary(trace.FrequencyFromGHz(ghz))
		for i := 1; i < len(record); i++ {
			if fields[i] == nil {
				continue
			}
			v, err := parseStat(record[i])
			if err != nil {
				return nil, 0, fmt.Errorf("line %d column %s: %w", line, header[i], err)
			}
			*fields[i].field(&s) = v
		}
		rows = append(rows, s)
	}

	return rows, present, nil
}

// WriteDaySummaryCSV writes the single-row day rollup artifact. The
// 5-sigma column is included only when that measure was computed.
func WriteDaySummaryCSV(w io.Writer, d DaySummary, measures Measure, decimals int) error {
	header := []string{
		rollupDate, rollupDevice, rollupFrequencies,
		rollupMaxPower, rollupMinPower,
		rollupSkewPositive, rollupKurtPositive,
		rollupAvgOutliers,
	}
	record := []string{
		d.Date, d.DeviceID, strconv.Itoa(d.Frequencies),
		formatStat(d.MaxPower, decimals), formatStat(d.MinPower, decimals),
		formatStat(d.PercentSkewPositive, decimals), formatStat(d.PercentKurtosisPositive, decimals),
		formatStat(d.AvgPercentAboveIQR, decimals),
	}
	if measures.Has(PercentAbove5Std) {
		header = append(header, rollupAvgAbove5StdDv)
		record = append(record, formatStat(d.AvgPercentAbove5Std, decimals))
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.Write(record); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}
