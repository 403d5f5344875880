package stats

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/smukkama/rfi-pipeline/internal/matrix"
	"github.com/smukkama/rfi-pipeline/internal/trace"
)

// noisyMatrix builds a deterministic matrix with a few no-data cells and
// occasional spikes
func noisyMatrix(rows, cols int) *matrix.DayMatrix {
	m := &matrix.DayMatrix{DeviceID: "dev1", Date: "20240115"}
	for c := 0; c < cols; c++ {
		m.Timestamps = append(m.Timestamps, fmt.Sprintf("%02d:%02d:00", c/60, c%60))
	}
	for r := 0; r < rows; r++ {
		m.Frequencies = append(m.Frequencies, trace.Frequency(100+r*7))
		row := make([]float64, cols)
		for c := range row {
			switch {
			case (r+c)%11 == 0:
				row[c] = trace.NoData
			case (r*c)%13 == 5:
				row[c] = -20 + float64(r%3)
			default:
				row[c] = -95 + 3*math.Sin(float64(r*cols+c))
			}
		}
		m.Power = append(m.Power, row)
	}
	return m
}

func summaryCSV(t *testing.T, rows []FrequencySummary) string {
	t.Helper()
	var buf bytes.Buffer
	if err := WriteSummaryCSV(&buf, rows, AllMeasures, 10); err != nil {
		t.Fatalf("WriteSummaryCSV failed: %v", err)
	}
	return buf.String()
}

func TestEngine_WorkerCountDoesNotChangeOutput(t *testing.T) {
	m := noisyMatrix(57, 40)
	ctx := context.Background()

	serial := NewEngine(Config{Workers: 1, ChunkSize: 1000, Measures: AllMeasures})
	parallel := NewEngine(Config{Workers: 8, ChunkSize: 5, Measures: AllMeasures})

	a, err := serial.Summarize(ctx, m)
	if err != nil {
		t.Fatalf("serial Summarize failed: %v", err)
	}
	b, err := parallel.Summarize(ctx, m)
	if err != nil {
		t.Fatalf("parallel Summarize failed: %v", err)
	}

	if len(a) != m.Rows() || len(b) != m.Rows() {
		t.Fatalf("Expected %d rows, got %d and %d", m.Rows(), len(a), len(b))
	}
	if summaryCSV(t, a) != summaryCSV(t, b) {
		t.Error("Summaries differ between 1 and 8 workers")
	}

	for i := 1; i < len(b); i++ {
		if b[i-1].Frequency >= b[i].Frequency {
			t.Fatalf("Rows not in ascending frequency order at %d", i)
		}
	}
}

func TestEngine_EmptyMatrix(t *testing.T) {
	e := NewEngine(DefaultConfig())
	rows, err := e.Summarize(context.Background(), matrix.NewEmpty("dev1", "20240115"))
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("Expected no rows, got %d", len(rows))
	}
}

func TestEngine_AllMissingRowIsKept(t *testing.T) {
	m := &matrix.DayMatrix{
		DeviceID:    "dev1",
		Date:        "20240115",
		Frequencies: []trace.Frequency{81, 90},
		Timestamps:  []string{"10:00:00", "10:05:00"},
		Power: [][]float64{
			{trace.NoData, trace.NoData},
			{-90, -92},
		},
	}

	rows, err := NewEngine(DefaultConfig()).Summarize(context.Background(), m)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(rows))
	}
	if rows[0].Count != 0 || !IsUndefined(rows[0].Mean) {
		t.Errorf("Expected undefined row for all-missing frequency, got %+v", rows[0])
	}
	if rows[1].Mean != -91 {
		t.Errorf("Expected mean -91, got %v", rows[1].Mean)
	}
}

func TestEngine_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEngine(Config{Workers: 2, ChunkSize: 1}).Summarize(ctx, noisyMatrix(10, 4))
	if err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestNewEngine_Defaults(t *testing.T) {
	cfg := NewEngine(Config{Decimals: -1}).Config()
	if cfg != DefaultConfig() {
		t.Errorf("Expected defaults %+v, got %+v", DefaultConfig(), cfg)
	}
}

func TestNewEngine_ZeroDecimalsKept(t *testing.T) {
	cfg := NewEngine(Config{Decimals: 0}).Config()
	if cfg.Decimals != 0 {
		t.Fatalf("Expected 0 decimals kept, got %d", cfg.Decimals)
	}

	rows, err := NewEngine(Config{Workers: 1, Measures: Mean}).Summarize(context.Background(), noisyMatrix(1, 5))
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	var buf bytes.Buffer
	if err := WriteSummaryCSV(&buf, rows, Mean, cfg.Decimals); err != nil {
		t.Fatalf("WriteSummaryCSV failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected header and one row, got %q", buf.String())
	}
	mean := strings.Split(lines[1], ",")[1]
	if strings.Contains(mean, ".") {
		t.Errorf("Expected an integer mean at 0 decimals, got %q", mean)
	}
}
