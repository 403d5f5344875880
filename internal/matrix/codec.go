package matrix

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/smukkama/rfi-pipeline/internal/trace"
)

// WriteCSV writes the wide matrix artifact: a header of "Frequency (GHz)"
// followed by one column per timestamp, then one row per frequency. Cells
// without data are left empty.
func (m *DayMatrix) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	header := make([]string, 0, len(m.Timestamps)+1)
	header = append(header, FrequencyHeader)
	header = append(header, m.Timestamps...)
	if err := cw.Write(header); err != nil {
		return err
	}

	record := make([]string, len(m.Timestamps)+1)
	for i, f := range m.Frequencies {
		record[0] = f.String()
		for j, v := range m.Power[i] {
			record[j+1] = FormatPower(v)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// FormatPower renders a cell value; no data becomes an empty string
func FormatPower(v float64) string {
	if trace.IsNoData(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ParsePower reads a cell value written by FormatPower or by pandas
func ParsePower(s string) (float64, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "nan", "-inf", "inf":
		return trace.NoData, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return trace.NoData, err
	}
	if math.IsInf(v, 0) {
		return trace.NoData, nil
	}
	return v, nil
}

// ReadCSV loads a matrix artifact. Rows and columns are re-sorted if the
// file was written out of order; duplicate frequency rows and duplicate
// timestamp columns are rejected.
func ReadCSV(deviceID, date string, r io.Reader) (*DayMatrix, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("matrix has no header")
		}
		return nil, fmt.Errorf("failed to read matrix header: %w", err)
	}
	if len(header) == 0 || strings.TrimSpace(header[0]) != FrequencyHeader {
		return nil, fmt.Errorf("matrix header must start with %q", FrequencyHeader)
	}

	columns := make(map[string]bool, len(header)-1)
	for _, ts := range header[1:] {
		if columns[ts] {
			return nil, fmt.Errorf("duplicate timestamp column %q", ts)
		}
		columns[ts] = true
	}

	m := NewEmpty(deviceID, date)
	m.Timestamps = append([]string(nil), header[1:]...)
	seen := make(map[trace.Frequency]bool)

	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(record) != len(header) {
			return nil, fmt.Errorf("line %d: expected %d columns, got %d", line, len(header), len(record))
		}

		ghz, err := strconv.ParseFloat(strings.TrimSpace(record[0]), 64)
		if err != nil || math.IsNaN(ghz) || math.IsInf(ghz, 0) {
			return nil, fmt.Errorf("line %d: invalid frequency %q", line, record[0])
		}
		f := trace.FrequencyFromGHz(ghz)
		if seen[f] {
			return nil, fmt.Errorf("line %d: duplicate frequency %s", line, f)
		}
		seen[f] = true

		row := make([]float64, len(record)-1)
		for j, cellText := range record[1:] {
			if row[j], err = ParsePower(cellText); err != nil {
				return nil, fmt.Errorf("line %d column %s: invalid power %q", line, header[j+1], cellText)
			}
		}

		m.Frequencies = append(m.Frequencies, f)
		m.Power = append(m.Power, row)
	}

	if len(m.Frequencies) == 0 {
		m.Timestamps = nil
	}
	m.normalize()
	return m, nil
}

// Payload is the JSON shape served by the time_series_matrix_data endpoint.
// Data is indexed [timestamp][frequency]; missing cells are null.
type Payload struct {
	Frequencies []float64    `json:"frequencies"`
	Timestamps  []string     `json:"timestamps"`
	Data        [][]*float64 `json:"data"`
}

// ToPayload converts the matrix to its endpoint representation
func (m *DayMatrix) ToPayload() *Payload {
	p := &Payload{
		Frequencies: make([]float64, len(m.Frequencies)),
		Timestamps:  append([]string{}, m.Timestamps...),
		Data:        make([][]*float64, len(m.Timestamps)),
	}
	for i, f := range m.Frequencies {
		p.Frequencies[i] = f.GHz()
	}
	for j := range m.Timestamps {
		column := make([]*float64, len(m.Frequencies))
		for i := range m.Frequencies {
			if v := m.Power[i][j]; !trace.IsNoData(v) {
				column[i] = &v
			}
		}
		p.Data[j] = column
	}
	return p
}

// MarshalPayload encodes the matrix as endpoint JSON
func (m *DayMatrix) MarshalPayload() ([]byte, error) {
	return json.Marshal(m.ToPayload())
}

// UnmarshalPayload decodes endpoint JSON back into a matrix
func UnmarshalPayload(deviceID, date string, data []byte) (*DayMatrix, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode matrix payload: %w", err)
	}
	if len(p.Data) != len(p.Timestamps) {
		return nil, fmt.Errorf("payload has %d timestamps but %d data columns", len(p.Timestamps), len(p.Data))
	}

	m := NewEmpty(deviceID, date)
	if len(p.Frequencies) == 0 || len(p.Timestamps) == 0 {
		return m, nil
	}

	m.Timestamps = p.Timestamps
	m.Frequencies = make([]trace.Frequency, len(p.Frequencies))
	m.Power = make([][]float64, len(p.Frequencies))
	for i, ghz := range p.Frequencies {
		m.Frequencies[i] = trace.FrequencyFromGHz(ghz)
		m.Power[i] = make([]float64, len(p.Timestamps))
	}
	for j, column := range p.Data {
		if len(column) != len(p.Frequencies) {
			return nil, fmt.Errorf("payload column %s has %d values, expected %d", p.Timestamps[j], len(column), len(p.Frequencies))
		}
		for i, v := range column {
			if v == nil {
				m.Power[i][j] = trace.NoData
			} else {
				m.Power[i][j] = *v
			}
		}
	}

	m.normalize()
	return m, nil
}
