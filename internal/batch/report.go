package batch

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNoData marks a device-day without any usable trace
var ErrNoData = errors.New("no data")

// DayStatus is the outcome of one device-day
type DayStatus string

const (
	DayProcessed DayStatus = "PROCESSED"
	DaySkipped   DayStatus = "SKIPPED"
	DayFailed    DayStatus = "FAILED"
)

// DayResult records what happened to one device-day
type DayResult struct {
	DeviceID      string
	Date          string
	Status        DayStatus
	Files         int
	ParseFailures int
	Frequencies   int
	Timestamps    int
	Artifacts     Artifacts
	Err           error
	SinkErrors    []error
	Duration      time.Duration
}

// Report summarizes a batch run
type Report struct {
	RunID     uuid.UUID
	Started   time.Time
	Finished  time.Time
	Processed int
	Skipped   int
	Failed    int
	Days      []DayResult
}

func newReport() *Report {
	return &Report{RunID: uuid.New(), Started: time.Now()}
}

// finish sorts the day results and computes the counters
func (r *Report) finish() {
	r.Finished = time.Now()
	sort.Slice(r.Days, func(i, j int) bool {
		if r.Days[i].DeviceID != r.Days[j].DeviceID {
			return r.Days[i].DeviceID < r.Days[j].DeviceID
		}
		return r.Days[i].Date < r.Days[j].Date
	})

	r.Processed, r.Skipped, r.Failed = 0, 0, 0
	for _, d := range r.Days {
		switch d.Status {
		case DayProcessed:
			r.Processed++
		case DaySkipped:
			r.Skipped++
		case DayFailed:
			r.Failed++
		}
	}
}

// HasFailures reports whether any device-day failed
func (r *Report) HasFailures() bool {
	return r.Failed > 0
}

// FailedDays returns the failed device-days
func (r *Report) FailedDays() []DayResult {
	var failed []DayResult
	for _, d := range r.Days {
		if d.Status == DayFailed {
			failed = append(failed, d)
		}
	}
	return failed
}

// Summary renders the run outcome with one line per failed or skipped day
func (r *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s finished in %s: %d processed, %d skipped, %d failed\n",
		r.RunID, r.Finished.Sub(r.Started).Round(time.Millisecond), r.Processed, r.Skipped, r.Failed)
	for _, d := range r.Days {
		switch d.Status {
		case DayFailed:
			fmt.Fprintf(&b, "  FAILED  %s/%s: %v\n", d.DeviceID, d.Date, d.Err)
		case DaySkipped:
			fmt.Fprintf(&b, "  SKIPPED %s/%s: %v\n", d.DeviceID, d.Date, d.Err)
		}
		if d.ParseFailures > 0 {
			fmt.Fprintf(&b, "  %s/%s: %d of %d trace files could not be parsed\n", d.DeviceID, d.Date, d.ParseFailures, d.Files)
		}
	}
	return b.String()
}
