package stats

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/smukkama/rfi-pipeline/internal/matrix"
)

// Config controls which statistics the engine computes and how the work is split
type Config struct {
	Workers   int
	ChunkSize int
	Measures  Measure
	// Decimals is the precision of written artifacts. 0 rounds to integers;
	// a negative value selects the default.
	Decimals int
}

// DefaultConfig returns the configuration of the standard day summary
func DefaultConfig() Config {
	return Config{
		Workers:   4,
		ChunkSize: 1000,
		Measures:  DefaultMeasures,
		Decimals:  4,
	}
}

// Engine computes per-frequency summaries of a DayMatrix. Rows are
// independent, so the row set is cut into chunks that workers process
// concurrently; results are reassembled in frequency order.
type Engine struct {
	cfg Config
}

// NewEngine creates an engine, filling unset fields from DefaultConfig
func NewEngine(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.Measures == 0 {
		cfg.Measures = def.Measures
	}
	if cfg.Decimals < 0 {
		cfg.Decimals = def.Decimals
	}
	return &Engine{cfg: cfg}
}

// Config returns the effective engine configuration
func (e *Engine) Config() Config {
	return e.cfg
}

// chunk is a half-open range of matrix rows
type chunk struct {
	index      int
	start, end int
}

// Summarize returns one FrequencySummary per matrix row, sorted by
// frequency. The output does not depend on the number of workers.
func (e *Engine) Summarize(ctx context.Context, m *matrix.DayMatrix) ([]FrequencySummary, error) {
	rows := m.Rows()
	if rows == 0 {
		return nil, nil
	}

	var chunks []chunk
	for start := 0; start < rows; start += e.cfg.ChunkSize {
		end := start + e.cfg.ChunkSize
		if end > rows {
			end = rows
		}
		chunks = append(chunks, chunk{index: len(chunks), start: start, end: end})
	}

	workers := e.cfg.Workers
	if workers > len(chunks) {
		workers = len(chunks)
	}

	results := make([][]FrequencySummary, len(chunks))
	errs := make([]error, len(chunks))
	jobs := make(chan chunk)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range jobs {
				results[c.index], errs[c.index] = e.summarizeChunk(m, c)
			}
		}()
	}

	var cancelled error
	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			cancelled = err
			break
		}
		select {
		case <-ctx.Done():
			cancelled = ctx.Err()
		case jobs <- c:
		}
		if cancelled != nil {
			break
		}
	}
	close(jobs)
	wg.Wait()

	if cancelled != nil {
		return nil, cancelled
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	summaries := make([]FrequencySummary, 0, rows)
	for _, r := range results {
		summaries = append(summaries, r...)
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].Frequency < summaries[j].Frequency
	})

	return summaries, nil
}

// summarizeChunk computes the rows of one chunk. A panic fails the chunk
// with the offending row range instead of taking down the process.
func (e *Engine) summarizeChunk(m *matrix.DayMatrix, c chunk) (out []FrequencySummary, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("chunk %d (rows %d-%d) of %s/%s panicked: %v", c.index, c.start, c.end, m.DeviceID, m.Date, r)
		}
	}()

	out = make([]FrequencySummary, 0, c.end-c.start)
	for i := c.start; i < c.end; i++ {
		out = append(out, Summarize(m.Frequencies[i], m.Values(i), e.cfg.Measures))
	}
	return out, nil
}
