package matrix

import (
	"sort"

	"github.com/smukkama/rfi-pipeline/internal/trace"
)

// FrequencyHeader is the first column of a matrix artifact
const FrequencyHeader = "Frequency (GHz)"

// DayMatrix is the pivoted frequency x timestamp power table (dBm) of one
// device-day. Rows are ascending frequencies, columns ascending HH:MM:SS
// timestamps. Missing cells hold trace.NoData.
type DayMatrix struct {
	DeviceID    string
	Date        string
	Frequencies []trace.Frequency
	Timestamps  []string
	Power       [][]float64
}

// NewEmpty returns a matrix with no rows and no columns
func NewEmpty(deviceID, date string) *DayMatrix {
	return &DayMatrix{DeviceID: deviceID, Date: date}
}

// Rows returns the number of frequency rows
func (m *DayMatrix) Rows() int {
	return len(m.Frequencies)
}

// Cols returns the number of timestamp columns
func (m *DayMatrix) Cols() int {
	return len(m.Timestamps)
}

// Empty reports whether the day has no data at all
func (m *DayMatrix) Empty() bool {
	return len(m.Frequencies) == 0 || len(m.Timestamps) == 0
}

// Values returns the non-missing power values of row i in column order
func (m *DayMatrix) Values(i int) []float64 {
	row := m.Power[i]
	values := make([]float64, 0, len(row))
	for _, v := range row {
		if !trace.IsNoData(v) {
			values = append(values, v)
		}
	}
	return values
}

// RowIndex finds the row of a frequency
func (m *DayMatrix) RowIndex(f trace.Frequency) (int, bool) {
	i := sort.Search(len(m.Frequencies), func(i int) bool {
		return m.Frequencies[i] >= f
	})
	if i < len(m.Frequencies) && m.Frequencies[i] == f {
		return i, true
	}
	return -1, false
}

// Lookup returns the power at (frequency, timestamp). ok is false when the
// cell does not exist or holds no data.
func (m *DayMatrix) Lookup(f trace.Frequency, timestamp string) (float64, bool) {
	row, found := m.RowIndex(f)
	if !found {
		return trace.NoData, false
	}
	col := sort.SearchStrings(m.Timestamps, timestamp)
	if col >= len(m.Timestamps) || m.Timestamps[col] != timestamp {
		return trace.NoData, false
	}
	v := m.Power[row][col]
	return v, !trace.IsNoData(v)
}

// normalize sorts rows by frequency and columns by timestamp in place
func (m *DayMatrix) normalize() {
	if !sort.StringsAreSorted(m.Timestamps) {
		order := make([]int, len(m.Timestamps))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			return m.Timestamps[order[a]] < m.Timestamps[order[b]]
		})

		timestamps := make([]string, len(order))
		for i, j := range order {
			timestamps[i] = m.Timestamps[j]
		}
		for r, row := range m.Power {
			permuted := make([]float64, len(order))
			for i, j := range order {
				permuted[i] = row[j]
			}
			m.Power[r] = permuted
		}
		m.Timestamps = timestamps
	}

	if !sort.SliceIsSorted(m.Frequencies, func(a, b int) bool { return m.Frequencies[a] < m.Frequencies[b] }) {
		order := make([]int, len(m.Frequencies))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			return m.Frequencies[order[a]] < m.Frequencies[order[b]]
		})

		freqs := make([]trace.Frequency, len(order))
		power := make([][]float64, len(order))
		for i, j := range order {
			freqs[i] = m.Frequencies[j]
			power[i] = m.Power[j]
		}
		m.Frequencies = freqs
		m.Power = power
	}
}
