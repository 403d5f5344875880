package stats

import (
	"bytes"
	"strings"
	"testing"

	"github.com/smukkama/rfi-pipeline/internal/trace"
)

func TestWriteSummaryCSV(t *testing.T) {
	rows := []FrequencySummary{
		Summarize(trace.Frequency(81), []float64{0, 3.0102999566, 6.0205999133}, DefaultMeasures),
		Summarize(trace.Frequency(16207), nil, DefaultMeasures),
	}

	var buf bytes.Buffer
	if err := WriteSummaryCSV(&buf, rows, DefaultMeasures, 4); err != nil {
		t.Fatalf("WriteSummaryCSV failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected 3 lines, got %d: %q", len(lines), buf.String())
	}

	wantHeader := "Frequency (GHz),Mean (dBm),Median (dBm),Min (dBm),Max (dBm),Skew,Kurtosis,% Above 1.5*IQR,KS Test D Statistic"
	if lines[0] != wantHeader {
		t.Errorf("Header mismatch:\n got %s\nwant %s", lines[0], wantHeader)
	}
	if !strings.HasPrefix(lines[1], "0.0081,3.0103,3.0103,0,6.0206,0,-1.5,0,") {
		t.Errorf("Unexpected first row: %s", lines[1])
	}
	if lines[2] != "1.6207,,,,,,,," {
		t.Errorf("Expected empty statistics for no-data row, got %s", lines[2])
	}
}

func TestWriteSummaryCSV_OptionalColumns(t *testing.T) {
	measures := DefaultMeasures | StdDev | KSPValue
	header := strings.Join(SummaryHeader(measures), ",")
	if !strings.HasSuffix(header, "KS Test D Statistic,Std Dev (dBm),KS Test P-Value") {
		t.Errorf("Optional columns not appended in order: %s", header)
	}
}

func TestReadSummaryCSV_RoundTrip(t *testing.T) {
	rows := []FrequencySummary{
		Summarize(trace.Frequency(81), []float64{-90, -91, -89.5, -60}, AllMeasures),
		Summarize(trace.Frequency(90), []float64{-70}, AllMeasures),
	}

	var buf bytes.Buffer
	if err := WriteSummaryCSV(&buf, rows, AllMeasures, 4); err != nil {
		t.Fatalf("WriteSummaryCSV failed: %v", err)
	}

	got, present, err := ReadSummaryCSV(&buf)
	if err != nil {
		t.Fatalf("ReadSummaryCSV failed: %v", err)
	}
	if present != AllMeasures {
		t.Errorf("Expected all measures present, got %v", present)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(got))
	}
	if got[0].Frequency != 81 || got[1].Frequency != 90 {
		t.Errorf("Unexpected frequencies %v %v", got[0].Frequency, got[1].Frequency)
	}
	if got[0].Max != -60 || got[0].Mean != Round(rows[0].Mean, 4) {
		t.Errorf("Unexpected values in first row: %+v", got[0])
	}
	if !IsUndefined(got[1].Skew) {
		t.Errorf("Expected undefined skew to survive round trip, got %v", got[1].Skew)
	}
}

func TestReadSummaryCSV_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"wrong header", "Freq,Mean (dBm)\n0.1,1\n"},
		{"short row", "Frequency (GHz),Mean (dBm)\n0.1\n"},
		{"bad frequency", "Frequency (GHz),Mean (dBm)\nabc,1\n"},
		{"bad value", "Frequency (GHz),Mean (dBm)\n0.1,loud\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ReadSummaryCSV(strings.NewReader(tt.input)); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestRollup(t *testing.T) {
	rows := []FrequencySummary{
		undefinedSummary(1),
		undefinedSummary(2),
		undefinedSummary(3),
		undefinedSummary(4),
	}
	rows[0].Max, rows[0].Min, rows[0].Skew, rows[0].Kurtosis, rows[0].PercentAboveIQR = -50, -99, 0.4, 1.2, 10
	rows[1].Max, rows[1].Min, rows[1].Skew, rows[1].Kurtosis, rows[1].PercentAboveIQR = -20, -95, -0.1, 2.0, 0
	rows[2].Max, rows[2].Min, rows[2].Skew, rows[2].Kurtosis, rows[2].PercentAboveIQR = -70, -101, 0.2, -0.5, 5

	d := Rollup("dev1", "20240115", rows)
	if d.Frequencies != 4 {
		t.Errorf("Expected 4 frequencies, got %d", d.Frequencies)
	}
	if d.MaxPower != -20 || d.MinPower != -101 {
		t.Errorf("Expected max -20 and min -101, got %v %v", d.MaxPower, d.MinPower)
	}
	if d.PercentSkewPositive != 50 {
		t.Errorf("Expected 50%% positive skew, got %v", d.PercentSkewPositive)
	}
	if d.PercentKurtosisPositive != 50 {
		t.Errorf("Expected 50%% positive kurtosis, got %v", d.PercentKurtosisPositive)
	}
	if d.AvgPercentAboveIQR != 5 {
		t.Errorf("Expected average outlier percent 5, got %v", d.AvgPercentAboveIQR)
	}
	if !IsUndefined(d.AvgPercentAbove5Std) {
		t.Errorf("Expected undefined 5 std average, got %v", d.AvgPercentAbove5Std)
	}

	if v, ok := d.Metric("avg_outlier_percent"); !ok || v != 5 {
		t.Errorf("Metric(avg_outlier_percent) = %v, %v", v, ok)
	}
	if _, ok := d.Metric("avg_percent_above_5std"); ok {
		t.Error("Expected undefined metric to report !ok")
	}
	if _, ok := d.Metric("humidity"); ok {
		t.Error("Expected unknown metric to report !ok")
	}
}

func TestWriteDaySummaryCSV(t *testing.T) {
	d := DaySummary{
		DeviceID:                "dev1",
		Date:                    "20240115",
		Frequencies:             2,
		MaxPower:                -20.123456,
		MinPower:                -101,
		PercentSkewPositive:     50,
		PercentKurtosisPositive: Undefined,
		AvgPercentAboveIQR:      3.33333,
		AvgPercentAbove5Std:     1,
	}

	var buf bytes.Buffer
	if err := WriteDaySummaryCSV(&buf, d, DefaultMeasures, 4); err != nil {
		t.Fatalf("WriteDaySummaryCSV failed: %v", err)
	}

	want := "Date,Device,Frequencies,Day Max Power (dBm),Day Min Power (dBm),Percent Skewness > 0,Percent Kurtosis > 0,Average Percent of Outliers\n" +
		"20240115,dev1,2,-20.1235,-101,50,,3.3333\n"
	if buf.String() != want {
		t.Errorf("Unexpected rollup CSV:\n got %q\nwant %q", buf.String(), want)
	}

	buf.Reset()
	if err := WriteDaySummaryCSV(&buf, d, DefaultMeasures|PercentAbove5Std, 4); err != nil {
		t.Fatalf("WriteDaySummaryCSV failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Average Percent > 5 Std Dev") || !strings.HasSuffix(buf.String(), ",1\n") {
		t.Errorf("Expected 5 std column, got %q", buf.String())
	}
}
