package trace

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// DateLayout is the date part of a trace file name and of every artifact
	DateLayout = "20060102"
	// TimeKeyLayout formats a capture time as a matrix column key
	TimeKeyLayout = "15:04:05"

	fileStampLayout = "20060102150405"
)

var fileNamePattern = regexp.MustCompile(`^(\d{8})_(\d{6})_trace\.csv$`)

var (
	ErrBadFileName = errors.New("file name does not match YYYYMMDD_HHMMSS_trace.csv")
	ErrNoHeader    = errors.New("missing header row")
	ErrNoReadings  = errors.New("no readings after header")
	ErrBadValue    = errors.New("non-numeric value")
	ErrShortRow    = errors.New("row has fewer than two columns")
)

// ParseFailure reports a trace file that could not be turned into a Trace.
// Callers count and skip it; it never aborts a batch.
type ParseFailure struct {
	Path   string
	Line   int
	Reason string
	Err    error
}

func (e *ParseFailure) Error() string {
	var b strings.Builder
	b.WriteString("parse ")
	b.WriteString(e.Path)
	if e.Line > 0 {
		fmt.Fprintf(&b, " line %d", e.Line)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ParseFailure) Unwrap() error {
	return e.Err
}

// IsTraceFile reports whether name (a base name) follows the trace pattern
func IsTraceFile(name string) bool {
	return fileNamePattern.MatchString(name)
}

// ParseFileName extracts the capture instant from a trace file's base name
func ParseFileName(name string) (time.Time, error) {
	m := fileNamePattern.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, ErrBadFileName
	}

	ts, err := time.ParseInLocation(fileStampLayout, m[1]+m[2], time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrBadFileName, err)
	}
	return ts, nil
}

// Parser turns raw trace files into Traces. The body is a header row followed
// by (frequency MHz, power mW) rows; columns past the second are ignored.
type Parser struct {
	DeviceID string
}

// NewParser creates a parser that stamps traces with deviceID
func NewParser(deviceID string) *Parser {
	return &Parser{DeviceID: deviceID}
}

// ParseFile reads and parses one trace file
func (p *Parser) ParseFile(path string) (*Trace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ParseFailure{Path: path, Reason: "open", Err: err}
	}
	defer f.Close()

	t, err := p.ParseReader(filepath.Base(path), f)
	if err != nil {
		var pf *ParseFailure
		if errors.As(err, &pf) {
			pf.Path = path
		}
		return nil, err
	}
	return t, nil
}

// ParseReader parses a trace body read from r. name is the file's base name
// and supplies the capture timestamp.
func (p *Parser) ParseReader(name string, r io.Reader) (*Trace, error) {
	ts, err := ParseFileName(name)
	if err != nil {
		return nil, &ParseFailure{Path: name, Err: err}
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	if _, err := reader.Read(); err != nil {
		if err == io.EOF {
			return nil, &ParseFailure{Path: name, Err: ErrNoHeader}
		}
		return nil, &ParseFailure{Path: name, Line: 1, Reason: "read header", Err: err}
	}

	var readings []Reading
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, &ParseFailure{Path: name, Line: line, Reason: "read row", Err: err}
		}

		if len(record) < 2 {
			return nil, &ParseFailure{Path: name, Line: line, Err: ErrShortRow}
		}

		mhz, err := strconv.ParseFloat(strings.TrimSpace(record[0]), 64)
		if err != nil || math.IsNaN(mhz) || math.IsInf(mhz, 0) {
			return nil, &ParseFailure{Path: name, Line: line, Reason: fmt.Sprintf("frequency %q", record[0]), Err: ErrBadValue}
		}
		mw, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
		if err != nil {
			return nil, &ParseFailure{Path: name, Line: line, Reason: fmt.Sprintf("power %q", record[1]), Err: ErrBadValue}
		}

		readings = append(readings, Reading{
			Frequency: FrequencyFromMHz(mhz),
			Power:     MilliwattToDBm(mw),
			Unit:      UnitDBm,
		})
	}

	if len(readings) == 0 {
		return nil, &ParseFailure{Path: name, Err: ErrNoReadings}
	}

	sort.SliceStable(readings, func(i, j int) bool {
		return readings[i].Frequency < readings[j].Frequency
	})

	return &Trace{
		Timestamp: ts,
		DeviceID:  p.DeviceID,
		Readings:  readings,
	}, nil
}
