package trace

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"time"
)

// FrequencyScale is the number of frequency keys per GHz. Frequencies are
// rounded to 4 decimal places of GHz (0.1 MHz) when a trace is parsed.
const FrequencyScale = 10000

// Frequency is the canonical sweep-bin key: an integer count of 1e-4 GHz.
// Every matrix row, summary row and map lookup uses it after ingestion.
type Frequency int64

// FrequencyFromMHz rounds a raw instrument frequency to its key
func FrequencyFromMHz(mhz float64) Frequency {
	return Frequency(math.Round(mhz / 1000 * FrequencyScale))
}

// FrequencyFromGHz rounds a GHz value (as found in matrix artifacts) to its key
func FrequencyFromGHz(ghz float64) Frequency {
	return Frequency(math.Round(ghz * FrequencyScale))
}

// GHz returns the frequency in GHz
func (f Frequency) GHz() float64 {
	return float64(f) / FrequencyScale
}

// MHz returns the frequency in MHz
func (f Frequency) MHz() float64 {
	return float64(f) / (FrequencyScale / 1000)
}

// String formats the frequency as the shortest GHz decimal, e.g. "0.0081"
func (f Frequency) String() string {
	return strconv.FormatFloat(f.GHz(), 'f', -1, 64)
}

// Unit is the unit a reading's power is expressed in
type Unit string

const (
	UnitMilliwatt Unit = "mW"
	UnitDBm       Unit = "dBm"
)

// NoData is the sentinel for a power value that could not be measured or
// converted. It is NaN, so it never compares equal to anything.
var NoData = math.NaN()

// IsNoData reports whether v is the no-data sentinel
func IsNoData(v float64) bool {
	return math.IsNaN(v)
}

// MilliwattToDBm converts a linear power to dBm. Non-positive and
// non-finite inputs have no logarithm and yield NoData.
func MilliwattToDBm(mw float64) float64 {
	if !(mw > 0) || math.IsInf(mw, 1) {
		return NoData
	}
	return 10 * math.Log10(mw)
}

// DBmToMilliwatt converts dBm back to linear power
func DBmToMilliwatt(dbm float64) float64 {
	if IsNoData(dbm) {
		return NoData
	}
	return math.Pow(10, dbm/10)
}

// Reading is one frequency bin of a sweep
type Reading struct {
	Frequency Frequency
	Power     float64
	Unit      Unit
}

// Valid reports whether the reading carries a usable power value
func (r Reading) Valid() bool {
	return !IsNoData(r.Power)
}

// DBm returns the reading expressed in dBm
func (r Reading) DBm() Reading {
	if r.Unit == UnitDBm {
		return r
	}
	return Reading{Frequency: r.Frequency, Power: MilliwattToDBm(r.Power), Unit: UnitDBm}
}

// Trace is one spectrum sweep captured at a single instant.
// Readings are sorted by ascending frequency.
type Trace struct {
	Timestamp time.Time
	DeviceID  string
	Readings  []Reading
}

// Date returns the capture date as YYYYMMDD
func (t *Trace) Date() string {
	return t.Timestamp.Format(DateLayout)
}

// TimeKey returns the capture time as HH:MM:SS, the matrix column key
func (t *Trace) TimeKey() string {
	return t.Timestamp.Format(TimeKeyLayout)
}

// DBm returns the readings converted to dBm
func (t *Trace) DBm() []Reading {
	out := make([]Reading, len(t.Readings))
	for i, r := range t.Readings {
		out[i] = r.DBm()
	}
	return out
}

// WriteRaw writes the trace in the instrument's raw layout: a header row and
// (frequency MHz, power mW) rows. Readings without data are written as 0 mW,
// which parses back to no data.
func (t *Trace) WriteRaw(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Frequency (MHz)", "Power (mW)"}); err != nil {
		return err
	}

	for _, r := range t.Readings {
		mw := r.Power
		if r.Unit == UnitDBm {
			mw = DBmToMilliwatt(r.Power)
		}
		if IsNoData(mw) {
			mw = 0
		}
		record := []string{
			strconv.FormatFloat(r.Frequency.MHz(), 'f', -1, 64),
			strconv.FormatFloat(mw, 'g', -1, 64),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
