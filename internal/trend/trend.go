package trend

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"sync"

	"github.com/smukkama/rfi-pipeline/internal/batch"
	"github.com/smukkama/rfi-pipeline/internal/matrix"
	"github.com/smukkama/rfi-pipeline/internal/stats"
	"github.com/smukkama/rfi-pipeline/internal/trace"
)

// Point is one reading of the tracked frequency
type Point struct {
	Date      string
	Timestamp string
	Power     float64
}

// DayOutliers is the two-sided 1.5*IQR outlier share of one day
type DayOutliers struct {
	Date           string
	Count          int
	PercentOutside float64
}

// Series follows one frequency across many days
type Series struct {
	DeviceID  string
	Frequency trace.Frequency
	Points    []Point
	Days      []DayOutliers
	// Missing lists dates whose matrix has no row for the frequency
	Missing []string
}

// MatrixSource returns a device-day matrix without reading its CSV, such as
// the Redis matrix cache
type MatrixSource interface {
	Get(ctx context.Context, deviceID, date string) (*matrix.DayMatrix, error)
}

// Extractor reads matrix artifacts concurrently
type Extractor struct {
	workers int
	source  MatrixSource
}

// NewExtractor creates an extractor reading up to workers matrices at once
func NewExtractor(workers int) *Extractor {
	if workers <= 0 {
		workers = 4
	}
	return &Extractor{workers: workers}
}

// WithSource makes the extractor consult src before each CSV. Any error from
// src, a miss included, falls back to the file.
func (e *Extractor) WithSource(src MatrixSource) *Extractor {
	e.source = src
	return e
}

type dayRow struct {
	date    string
	found   bool
	points  []Point
	outlier DayOutliers
	err     error
}

// Extract collects the row of f from every matrix file. Output is sorted by
// date then timestamp.
func (e *Extractor) Extract(ctx context.Context, deviceID string, f trace.Frequency, files []batch.MatrixFile) (*Series, error) {
	rows := make([]dayRow, len(files))
	jobs := make(chan int)

	workers := e.workers
	if workers > len(files) {
		workers = len(files)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				rows[i] = e.readDay(ctx, files[i], f)
			}
		}()
	}

	var cancelled error
dispatch:
	for i := range files {
		if err := ctx.Err(); err != nil {
			cancelled = err
			break
		}
		select {
		case <-ctx.Done():
			cancelled = ctx.Err()
			break dispatch
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	if cancelled != nil {
		return nil, cancelled
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].date < rows[j].date })

	s := &Series{DeviceID: deviceID, Frequency: f}
	for _, r := range rows {
		if r.err != nil {
			return nil, r.err
		}
		if !r.found {
			s.Missing = append(s.Missing, r.date)
			continue
		}
		s.Points = append(s.Points, r.points...)
		s.Days = append(s.Days, r.outlier)
	}
	return s, nil
}

func (e *Extractor) readDay(ctx context.Context, mf batch.MatrixFile, f trace.Frequency) dayRow {
	row := dayRow{date: mf.Date}

	m, err := e.loadMatrix(ctx, mf)
	if err != nil {
		row.err = err
		return row
	}

	i, ok := m.RowIndex(f)
	if !ok {
		return row
	}
	row.found = true

	for j, ts := range m.Timestamps {
		if v := m.Power[i][j]; !trace.IsNoData(v) {
			row.points = append(row.points, Point{Date: mf.Date, Timestamp: ts, Power: v})
		}
	}

	summary := stats.Summarize(f, m.Values(i), stats.PercentOutsideIQR)
	row.outlier = DayOutliers{
		Date:           mf.Date,
		Count:          summary.Count,
		PercentOutside: summary.PercentOutsideIQR,
	}
	return row
}

func (e *Extractor) loadMatrix(ctx context.Context, mf batch.MatrixFile) (*matrix.DayMatrix, error) {
	if e.source != nil {
		if m, err := e.source.Get(ctx, mf.DeviceID, mf.Date); err == nil {
			return m, nil
		}
	}

	file, err := os.Open(mf.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", mf.Path, err)
	}
	defer file.Close()

	m, err := matrix.ReadCSV(mf.DeviceID, mf.Date, file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", mf.Path, err)
	}
	return m, nil
}

// FileNames returns the power and outlier artifact names of a series
func FileNames(f trace.Frequency) (power, outliers string) {
	prefix := f.String() + "_GHz"
	return prefix + "_power.csv", prefix + "_outliers.csv"
}

// WritePowerCSV writes the long (date, timestamp, power) table
func (s *Series) WritePowerCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Date", "Timestamp", "Power (dBm)"}); err != nil {
		return err
	}
	for _, p := range s.Points {
		if err := cw.Write([]string{p.Date, p.Timestamp, matrix.FormatPower(p.Power)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteOutliersCSV writes one row per day with its outlier percentage
func (s *Series) WriteOutliersCSV(w io.Writer, decimals int) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Date", "Values", "% Outside 1.5*IQR"}); err != nil {
		return err
	}
	for _, d := range s.Days {
		pct := ""
		if !stats.IsUndefined(d.PercentOutside) {
			pct = strconv.FormatFloat(stats.Round(d.PercentOutside, decimals), 'f', -1, 64)
		}
		if err := cw.Write([]string{d.Date, strconv.Itoa(d.Count), pct}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
