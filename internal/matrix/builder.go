package matrix

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/smukkama/rfi-pipeline/internal/trace"
)

// BuildStats describes how a day's trace files fared during a build
type BuildStats struct {
	Files    int
	Parsed   int
	Failed   int
	Failures []error
}

// Builder aggregates one device-day's trace files into a DayMatrix.
// Files are parsed by a bounded pool of workers.
type Builder struct {
	workers int
}

// NewBuilder creates a builder parsing up to workers files concurrently
func NewBuilder(workers int) *Builder {
	if workers <= 0 {
		workers = 4 // Default 4 parsers
	}
	return &Builder{workers: workers}
}

// Workers returns the file-level concurrency of the builder
func (b *Builder) Workers() int {
	return b.workers
}

// buildJob is one file handed to a parse worker
type buildJob struct {
	index int
	path  string
}

// BuildDir builds the matrix for every trace file directly inside dir
func (b *Builder) BuildDir(ctx context.Context, deviceID, date, dir string) (*DayMatrix, *BuildStats, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read day directory %s: %w", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if !entry.IsDir() && trace.IsTraceFile(entry.Name()) {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}

	return b.Build(ctx, deviceID, date, paths)
}

// Build parses paths and pivots them into a DayMatrix. Per-file failures are
// counted in BuildStats and do not fail the build; zero parseable files
// yield an empty matrix. The only error returned is context cancellation.
func (b *Builder) Build(ctx context.Context, deviceID, date string, paths []string) (*DayMatrix, *BuildStats, error) {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	stats := &BuildStats{Files: len(sorted)}
	if len(sorted) == 0 {
		return NewEmpty(deviceID, date), stats, nil
	}

	workers := b.workers
	if workers > len(sorted) {
		workers = len(sorted)
	}

	jobs := make(chan buildJob)
	partials := make([]*accumulator, workers)
	failures := make([][]error, workers)
	parsed := make([]int, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		partials[w] = newAccumulator()
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			parser := trace.NewParser(deviceID)
			for job := range jobs {
				tr, err := parseSafely(parser, job.path)
				if err != nil {
					failures[w] = append(failures[w], err)
					continue
				}
				partials[w].add(job.index, tr)
				parsed[w]++
			}
		}(w)
	}

	var cancelled error
dispatch:
	for i, path := range sorted {
		if err := ctx.Err(); err != nil {
			cancelled = err
			break
		}
		select {
		case <-ctx.Done():
			cancelled = ctx.Err()
			break dispatch
		case jobs <- buildJob{index: i, path: path}:
		}
	}
	close(jobs)
	wg.Wait()

	if cancelled != nil {
		return nil, nil, cancelled
	}

	combined := newAccumulator()
	for w := 0; w < workers; w++ {
		combined.merge(partials[w])
		stats.Parsed += parsed[w]
		stats.Failures = append(stats.Failures, failures[w]...)
	}
	stats.Failed = len(stats.Failures)

	return combined.matrix(deviceID, date), stats, nil
}

// parseSafely parses one file, turning a panic into a failure for that file
func parseSafely(parser *trace.Parser, path string) (tr *trace.Trace, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &trace.ParseFailure{Path: path, Reason: fmt.Sprintf("panic: %v", r)}
		}
	}()
	return parser.ParseFile(path)
}

// cellKey addresses one matrix cell
type cellKey struct {
	freq trace.Frequency
	ts   string
}

// contribution is one power value and the file it came from
type contribution struct {
	file  int
	power float64
}

// cell holds the first value written to a (frequency, timestamp) pair and
// any further values that collided with it
type cell struct {
	first contribution
	dups  []contribution
}

// accumulator is a worker-private partial matrix. Workers never share one;
// partials are merged in a single combining step.
type accumulator struct {
	cells map[cellKey]cell
	freqs map[trace.Frequency]struct{}
	times map[string]struct{}
}

func newAccumulator() *accumulator {
	return &accumulator{
		cells: make(map[cellKey]cell),
		freqs: make(map[trace.Frequency]struct{}),
		times: make(map[string]struct{}),
	}
}

// add records every reading of a trace parsed from file index
func (a *accumulator) add(file int, tr *trace.Trace) {
	ts := tr.TimeKey()
	a.times[ts] = struct{}{}

	for _, r := range tr.DBm() {
		a.freqs[r.Frequency] = struct{}{}
		if !r.Valid() {
			continue
		}
		a.put(cellKey{freq: r.Frequency, ts: ts}, contribution{file: file, power: r.Power})
	}
}

func (a *accumulator) put(key cellKey, c contribution) {
	existing, ok := a.cells[key]
	if !ok {
		a.cells[key] = cell{first: c}
		return
	}
	existing.dups = append(existing.dups, c)
	a.cells[key] = existing
}

// merge folds other into a
func (a *accumulator) merge(other *accumulator) {
	for f := range other.freqs {
		a.freqs[f] = struct{}{}
	}
	for ts := range other.times {
		a.times[ts] = struct{}{}
	}
	for key, c := range other.cells {
		a.put(key, c.first)
		for _, d := range c.dups {
			a.put(key, d)
		}
	}
}

// value averages a cell's contributions in file order so that the result does
// not depend on which worker parsed which file
func (c cell) value() float64 {
	if len(c.dups) == 0 {
		return c.first.power
	}

	all := make([]contribution, 0, len(c.dups)+1)
	all = append(all, c.first)
	all = append(all, c.dups...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].file < all[j].file })

	var sum float64
	for _, v := range all {
		sum += v.power
	}
	return sum / float64(len(all))
}

// matrix lays the accumulated cells out on sorted axes
func (a *accumulator) matrix(deviceID, date string) *DayMatrix {
	m := NewEmpty(deviceID, date)
	if len(a.times) == 0 {
		return m
	}

	m.Frequencies = make([]trace.Frequency, 0, len(a.freqs))
	for f := range a.freqs {
		m.Frequencies = append(m.Frequencies, f)
	}
	sort.Slice(m.Frequencies, func(i, j int) bool { return m.Frequencies[i] < m.Frequencies[j] })

	m.Timestamps = make([]string, 0, len(a.times))
	for ts := range a.times {
		m.Timestamps = append(m.Timestamps, ts)
	}
	sort.Strings(m.Timestamps)

	rowOf := make(map[trace.Frequency]int, len(m.Frequencies))
	for i, f := range m.Frequencies {
		rowOf[f] = i
	}
	colOf := make(map[string]int, len(m.Timestamps))
	for i, ts := range m.Timestamps {
		colOf[ts] = i
	}

	m.Power = make([][]float64, len(m.Frequencies))
	for i := range m.Power {
		row := make([]float64, len(m.Timestamps))
		for j := range row {
			row[j] = trace.NoData
		}
		m.Power[i] = row
	}

	for key, c := range a.cells {
		m.Power[rowOf[key.freq]][colOf[key.ts]] = c.value()
	}

	return m
}
