package trend

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/smukkama/rfi-pipeline/internal/batch"
	"github.com/smukkama/rfi-pipeline/internal/cache"
	"github.com/smukkama/rfi-pipeline/internal/matrix"
	"github.com/smukkama/rfi-pipeline/internal/trace"
)

func writeMatrix(t *testing.T, dir, date, body string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, date+"_matrix.csv"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestExtractor_Extract(t *testing.T) {
	root := t.TempDir()
	dev := filepath.Join(root, "sh1")
	writeMatrix(t, dev, "20240102",
		"Frequency (GHz),00:00:00,00:05:00,00:10:00,00:15:00,00:20:00\n"+
			"0.0081,-90,-91,-90.5,-89,-20\n"+
			"1.6207,-80,,-81,-82,-80\n")
	writeMatrix(t, dev, "20240101",
		"Frequency (GHz),10:00:00,11:00:00\n"+
			"1.6207,-70,\n")
	writeMatrix(t, dev, "20240103",
		"Frequency (GHz),10:00:00\n"+
			"0.0081,-95\n")

	files, err := batch.DiscoverMatrices(root)
	if err != nil {
		t.Fatalf("DiscoverMatrices failed: %v", err)
	}

	f := trace.FrequencyFromGHz(1.6207)
	s, err := NewExtractor(3).Extract(context.Background(), "sh1", f, files)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if len(s.Points) != 5 {
		t.Fatalf("Expected 5 points, got %d: %+v", len(s.Points), s.Points)
	}
	if s.Points[0].Date != "20240101" || s.Points[0].Timestamp != "10:00:00" || s.Points[0].Power != -70 {
		t.Errorf("Unexpected first point %+v", s.Points[0])
	}
	if s.Points[1].Date != "20240102" || s.Points[1].Timestamp != "00:00:00" {
		t.Errorf("Expected points ordered by date then time, got %+v", s.Points[1])
	}

	if len(s.Days) != 2 || s.Days[0].Date != "20240101" || s.Days[1].Date != "20240102" {
		t.Fatalf("Unexpected days %+v", s.Days)
	}
	if s.Days[1].Count != 4 {
		t.Errorf("Expected 4 values on 20240102, got %d", s.Days[1].Count)
	}
	if len(s.Missing) != 1 || s.Missing[0] != "20240103" {
		t.Errorf("Expected 20240103 missing, got %v", s.Missing)
	}
}

func TestExtractor_OutlierPercent(t *testing.T) {
	root := t.TempDir()
	writeMatrix(t, filepath.Join(root, "sh1"), "20240102",
		"Frequency (GHz),a,b,c,d,e\n"+
			"0.0081,-90,-91,-90.5,-89,-20\n")

	files, _ := batch.DiscoverMatrices(root)
	s, err := NewExtractor(1).Extract(context.Background(), "sh1", trace.Frequency(81), files)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	// Q1=-90.5, Q3=-89, fences -92.75 and -86.75: only -20 is outside
	if got := s.Days[0].PercentOutside; got != 20 {
		t.Errorf("Expected 20%% outside, got %v", got)
	}

	var buf bytes.Buffer
	if err := s.WriteOutliersCSV(&buf, 4); err != nil {
		t.Fatalf("WriteOutliersCSV failed: %v", err)
	}
	if want := "Date,Values,% Outside 1.5*IQR\n20240102,5,20\n"; buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}

	buf.Reset()
	if err := s.WritePowerCSV(&buf); err != nil {
		t.Fatalf("WritePowerCSV failed: %v", err)
	}
	if want := "Date,Timestamp,Power (dBm)\n20240102,a,-90\n"; buf.String()[:len(want)] != want {
		t.Errorf("Unexpected power CSV %q", buf.String())
	}
}

func TestExtractor_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	files := []batch.MatrixFile{{DeviceID: "sh1", Date: "20240101", Path: "missing.csv"}}
	if _, err := NewExtractor(1).Extract(ctx, "sh1", trace.Frequency(81), files); err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestFileNames(t *testing.T) {
	power, outliers := FileNames(trace.FrequencyFromGHz(1.6207))
	if power != "1.6207_GHz_power.csv" || outliers != "1.6207_GHz_outliers.csv" {
		t.Errorf("Unexpected names %s %s", power, outliers)
	}
}

type fakeSource struct {
	matrices map[string]*matrix.DayMatrix
	gets     []string
}

func (f *fakeSource) Get(ctx context.Context, deviceID, date string) (*matrix.DayMatrix, error) {
	f.gets = append(f.gets, date)
	if m, ok := f.matrices[deviceID+"/"+date]; ok {
		return m, nil
	}
	return nil, cache.ErrMiss
}

func TestExtractor_SourceBeforeFiles(t *testing.T) {
	root := t.TempDir()
	dev := filepath.Join(root, "sh1")
	writeMatrix(t, dev, "20240101",
		"Frequency (GHz),10:00:00\n"+
			"1.6207,-70\n")
	writeMatrix(t, dev, "20240102",
		"Frequency (GHz),10:00:00\n"+
			"1.6207,-71\n")

	files, err := batch.DiscoverMatrices(root)
	if err != nil {
		t.Fatalf("DiscoverMatrices failed: %v", err)
	}

	f := trace.FrequencyFromGHz(1.6207)
	src := &fakeSource{matrices: map[string]*matrix.DayMatrix{
		"sh1/20240101": {
			DeviceID:    "sh1",
			Date:        "20240101",
			Frequencies: []trace.Frequency{f},
			Timestamps:  []string{"10:00:00", "10:05:00"},
			Power:       [][]float64{{-50, -51}},
		},
	}}

	s, err := NewExtractor(1).WithSource(src).Extract(context.Background(), "sh1", f, files)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(src.gets) != 2 {
		t.Errorf("Expected the source consulted for both days, got %v", src.gets)
	}

	// 20240101 comes from the source, 20240102 falls back to its file
	if len(s.Points) != 3 {
		t.Fatalf("Expected 3 points, got %+v", s.Points)
	}
	if s.Points[0].Power != -50 || s.Points[1].Power != -51 {
		t.Errorf("Expected cached readings for 20240101, got %+v", s.Points[:2])
	}
	if s.Points[2].Date != "20240102" || s.Points[2].Power != -71 {
		t.Errorf("Expected file reading for 20240102, got %+v", s.Points[2])
	}
}
