package batch

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smukkama/rfi-pipeline/internal/artifact"
	"github.com/smukkama/rfi-pipeline/internal/matrix"
	"github.com/smukkama/rfi-pipeline/internal/stats"
)

// Artifacts are the output files of one device-day
type Artifacts struct {
	Matrix     string
	MatrixJSON string
	Summary    string
	Rollup     string
}

// ArtifactPaths returns where the artifacts of a device-day are written
func ArtifactPaths(outputDir, deviceID, date string) Artifacts {
	dir := filepath.Join(outputDir, deviceID)
	return Artifacts{
		Matrix:     filepath.Join(dir, date+"_matrix.csv"),
		MatrixJSON: filepath.Join(dir, date+"_matrix.json"),
		Summary:    filepath.Join(dir, date+"_summary.csv"),
		Rollup:     filepath.Join(dir, "summary-"+date+".csv"),
	}
}

// DayOutput is what sinks receive once a device-day is fully on disk
type DayOutput struct {
	RunID         uuid.UUID
	DeviceID      string
	Date          string
	Matrix        *matrix.DayMatrix
	Summaries     []stats.FrequencySummary
	Rollup        stats.DaySummary
	Artifacts     Artifacts
	ParseFailures int
}

// DaySink is notified after each processed device-day. Sink errors are
// recorded in the report but never fail the day.
type DaySink interface {
	Name() string
	DayProcessed(ctx context.Context, out *DayOutput) error
}

// Config controls a batch run
type Config struct {
	OutputDir  string
	DayWorkers int
	WriteJSON  bool
}

// Orchestrator drives MatrixBuilder and the statistics engine over many
// device-days. Days run on their own bounded pool; the builder and engine
// carry their own nested pools.
type Orchestrator struct {
	cfg     Config
	builder *matrix.Builder
	engine  *stats.Engine
	sinks   []DaySink
}

// New creates an orchestrator
func New(cfg Config, builder *matrix.Builder, engine *stats.Engine, sinks ...DaySink) *Orchestrator {
	if cfg.DayWorkers <= 0 {
		cfg.DayWorkers = 2
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "output"
	}
	return &Orchestrator{
		cfg:     cfg,
		builder: builder,
		engine:  engine,
		sinks:   sinks,
	}
}

// AddSink registers a sink for subsequent runs
func (o *Orchestrator) AddSink(s DaySink) {
	o.sinks = append(o.sinks, s)
}

// dayJob is one unit of the day pool
type dayJob struct {
	deviceID string
	date     string
	run      func(ctx context.Context, runID uuid.UUID) DayResult
}

// Run builds and summarizes every group. A failing day never stops the
// others; the report lists the outcome of every group.
func (o *Orchestrator) Run(ctx context.Context, groups []Group) *Report {
	jobs := make([]dayJob, len(groups))
	for i := range groups {
		g := groups[i]
		jobs[i] = dayJob{
			deviceID: g.DeviceID,
			date:     g.Date,
			run: func(ctx context.Context, runID uuid.UUID) DayResult {
				return o.processGroup(ctx, runID, g)
			},
		}
	}
	return o.runDays(ctx, jobs)
}

// RunMatrices recomputes summaries from existing matrix artifacts
func (o *Orchestrator) RunMatrices(ctx context.Context, files []MatrixFile) *Report {
	jobs := make([]dayJob, len(files))
	for i := range files {
		f := files[i]
		jobs[i] = dayJob{
			deviceID: f.DeviceID,
			date:     f.Date,
			run: func(ctx context.Context, runID uuid.UUID) DayResult {
				return o.processMatrixFile(ctx, runID, f)
			},
		}
	}
	return o.runDays(ctx, jobs)
}

func (o *Orchestrator) runDays(ctx context.Context, jobs []dayJob) *Report {
	report := newReport()
	fmt.Printf("Run %s: %d device-days, %d day workers\n", report.RunID, len(jobs), o.cfg.DayWorkers)

	results := make([]DayResult, len(jobs))
	dispatched := make([]bool, len(jobs))
	queue := make(chan int)

	workers := o.cfg.DayWorkers
	if workers > len(jobs) {
		workers = len(jobs)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range queue {
				results[i] = runDay(ctx, report.RunID, jobs[i])
			}
		}()
	}

dispatch:
	for i := range jobs {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break dispatch
		case queue <- i:
			dispatched[i] = true
		}
	}
	close(queue)
	wg.Wait()

	for i, job := range jobs {
		if !dispatched[i] {
			results[i] = DayResult{
				DeviceID: job.deviceID,
				Date:     job.date,
				Status:   DayFailed,
				Err:      fmt.Errorf("not started: %w", ctx.Err()),
			}
		}
	}

	report.Days = results
	report.finish()
	return report
}

// runDay runs one job, turning a panic into a failure of that day
func runDay(ctx context.Context, runID uuid.UUID, job dayJob) (res DayResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Panic while processing %s/%s: %v\n", job.deviceID, job.date, r)
			res = DayResult{
				DeviceID: job.deviceID,
				Date:     job.date,
				Status:   DayFailed,
				Err:      fmt.Errorf("panic: %v", r),
			}
		}
		res.Duration = time.Since(start)
	}()
	return job.run(ctx, runID)
}

func (o *Orchestrator) processGroup(ctx context.Context, runID uuid.UUID, g Group) DayResult {
	res := DayResult{DeviceID: g.DeviceID, Date: g.Date, Files: len(g.Paths)}

	m, bs, err := o.builder.Build(ctx, g.DeviceID, g.Date, g.Paths)
	if err != nil {
		log.Printf("Failed to build matrix for %s/%s: %v\n", g.DeviceID, g.Date, err)
		res.Status = DayFailed
		res.Err = fmt.Errorf("build matrix: %w", err)
		return res
	}

	res.ParseFailures = bs.Failed
	for _, f := range bs.Failures {
		log.Printf("Skipping trace file for %s/%s: %v\n", g.DeviceID, g.Date, f)
	}

	if m.Empty() {
		fmt.Printf("No data for %s/%s (%d files, %d unparseable)\n", g.DeviceID, g.Date, bs.Files, bs.Failed)
		res.Status = DaySkipped
		res.Err = ErrNoData
		return res
	}

	return o.writeDay(ctx, runID, m, res, true)
}

func (o *Orchestrator) processMatrixFile(ctx context.Context, runID uuid.UUID, f MatrixFile) DayResult {
	res := DayResult{DeviceID: f.DeviceID, Date: f.Date, Files: 1}
	res.Artifacts.Matrix = f.Path

	file, err := os.Open(f.Path)
	if err != nil {
		res.Status = DayFailed
		res.Err = fmt.Errorf("open matrix: %w", err)
		return res
	}
	defer file.Close()

	m, err := matrix.ReadCSV(f.DeviceID, f.Date, file)
	if err != nil {
		log.Printf("Failed to read matrix %s: %v\n", f.Path, err)
		res.Status = DayFailed
		res.Err = fmt.Errorf("read matrix %s: %w", f.Path, err)
		return res
	}

	if m.Empty() {
		fmt.Printf("No data for %s/%s in %s\n", f.DeviceID, f.Date, f.Path)
		res.Status = DaySkipped
		res.Err = ErrNoData
		return res
	}

	return o.writeDay(ctx, runID, m, res, false)
}

// writeDay summarizes m and writes the day's artifacts as one unit: if any
// write fails, the artifacts already written for the day are removed.
func (o *Orchestrator) writeDay(ctx context.Context, runID uuid.UUID, m *matrix.DayMatrix, res DayResult, writeMatrix bool) DayResult {
	paths := ArtifactPaths(o.cfg.OutputDir, m.DeviceID, m.Date)
	ecfg := o.engine.Config()

	var set artifact.Set
	fail := func(err error) DayResult {
		if rerr := set.Remove(); rerr != nil {
			log.Printf("Failed to remove partial artifacts for %s/%s: %v\n", m.DeviceID, m.Date, rerr)
		}
		log.Printf("Failed to process %s/%s: %v\n", m.DeviceID, m.Date, err)
		res.Status = DayFailed
		res.Err = err
		res.Artifacts = Artifacts{}
		return res
	}

	if writeMatrix {
		if err := set.Write(paths.Matrix, m.WriteCSV); err != nil {
			return fail(err)
		}
		res.Artifacts.Matrix = paths.Matrix

		if o.cfg.WriteJSON {
			err := set.Write(paths.MatrixJSON, func(w io.Writer) error {
				data, err := m.MarshalPayload()
				if err != nil {
					return err
				}
				_, err = w.Write(data)
				return err
			})
			if err != nil {
				return fail(err)
			}
			res.Artifacts.MatrixJSON = paths.MatrixJSON
		}
	}

	summaries, err := o.engine.Summarize(ctx, m)
	if err != nil {
		return fail(fmt.Errorf("summarize: %w", err))
	}

	err = set.Write(paths.Summary, func(w io.Writer) error {
		return stats.WriteSummaryCSV(w, summaries, ecfg.Measures, ecfg.Decimals)
	})
	if err != nil {
		return fail(err)
	}
	res.Artifacts.Summary = paths.Summary

	rollup := stats.Rollup(m.DeviceID, m.Date, summaries)
	err = set.Write(paths.Rollup, func(w io.Writer) error {
		return stats.WriteDaySummaryCSV(w, rollup, ecfg.Measures, ecfg.Decimals)
	})
	if err != nil {
		return fail(err)
	}
	res.Artifacts.Rollup = paths.Rollup

	res.Status = DayProcessed
	res.Frequencies = m.Rows()
	res.Timestamps = m.Cols()
	fmt.Printf("Processed %s/%s: %d frequencies x %d timestamps\n", m.DeviceID, m.Date, m.Rows(), m.Cols())

	out := &DayOutput{
		RunID:         runID,
		DeviceID:      m.DeviceID,
		Date:          m.Date,
		Matrix:        m,
		Summaries:     summaries,
		Rollup:        rollup,
		Artifacts:     res.Artifacts,
		ParseFailures: res.ParseFailures,
	}
	for _, s := range o.sinks {
		if err := s.DayProcessed(ctx, out); err != nil {
			log.Printf("Sink %s failed for %s/%s: %v\n", s.Name(), m.DeviceID, m.Date, err)
			res.SinkErrors = append(res.SinkErrors, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}

	return res
}
