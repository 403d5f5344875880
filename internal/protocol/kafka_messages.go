package protocol

import (
	"encoding/json"
	"math"
	"time"

	"github.com/smukkama/rfi-pipeline/internal/stats"
)

// RollupData is the day rollup as carried on the wire. Undefined statistics
// are null.
type RollupData struct {
	Frequencies             int      `json:"frequencies"`
	MaxPower                *float64 `json:"day_max_power"`
	MinPower                *float64 `json:"day_min_power"`
	PercentSkewPositive     *float64 `json:"percent_skew_positive"`
	PercentKurtosisPositive *float64 `json:"percent_kurtosis_positive"`
	AvgPercentAboveIQR      *float64 `json:"avg_outlier_percent"`
	AvgPercentAbove5Std     *float64 `json:"avg_percent_above_5std,omitempty"`
}

func ptr(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

func val(p *float64) float64 {
	if p == nil {
		return stats.Undefined
	}
	return *p
}

// NewRollupData converts a day rollup for the wire
func NewRollupData(d stats.DaySummary) RollupData {
	return RollupData{
		Frequencies:             d.Frequencies,
		MaxPower:                ptr(d.MaxPower),
		MinPower:                ptr(d.MinPower),
		PercentSkewPositive:     ptr(d.PercentSkewPositive),
		PercentKurtosisPositive: ptr(d.PercentKurtosisPositive),
		AvgPercentAboveIQR:      ptr(d.AvgPercentAboveIQR),
		AvgPercentAbove5Std:     ptr(d.AvgPercentAbove5Std),
	}
}

// DaySummary converts the wire rollup back
func (r RollupData) DaySummary(deviceID, date string) stats.DaySummary {
	return stats.DaySummary{
		DeviceID:                deviceID,
		Date:                    date,
		Frequencies:             r.Frequencies,
		MaxPower:                val(r.MaxPower),
		MinPower:                val(r.MinPower),
		PercentSkewPositive:     val(r.PercentSkewPositive),
		PercentKurtosisPositive: val(r.PercentKurtosisPositive),
		AvgPercentAboveIQR:      val(r.AvgPercentAboveIQR),
		AvgPercentAbove5Std:     val(r.AvgPercentAbove5Std),
	}
}

// DayProcessedEvent announces that a device-day's artifacts were written
type DayProcessedEvent struct {
	RunID         string     `json:"run_id"`
	DeviceID      string     `json:"device_id"`
	Date          string     `json:"date"`
	ProcessedAt   time.Time  `json:"processed_at"`
	Rollup        RollupData `json:"rollup"`
	MatrixPath    string     `json:"matrix_path"`
	SummaryPath   string     `json:"summary_path"`
	RollupPath    string     `json:"rollup_path"`
	ParseFailures int        `json:"parse_failures"`
}

// AlarmNotification is the message format for alarm notifications
type AlarmNotification struct {
	Type         string    `json:"type"` // ALARM_TRIGGERED, ALARM_CLEARED
	DeviceID     string    `json:"device_id"`
	Date         string    `json:"date"`
	Metric       string    `json:"metric"`
	Value        float64   `json:"value"`
	Threshold    float64   `json:"threshold"`
	Operator     string    `json:"operator"`
	DurationDays int       `json:"duration_days"`
	StartDate    string    `json:"start_date"`
	RaisedAt     time.Time `json:"raised_at"`
	AlarmID      int64     `json:"alarm_id,omitempty"`
	ThresholdID  int       `json:"threshold_id"`
}

const (
	AlarmTypeTriggered = "ALARM_TRIGGERED"
	AlarmTypeCleared   = "ALARM_CLEARED"
)

// EncodeDayProcessedEvent encodes a DayProcessedEvent to JSON
func EncodeDayProcessedEvent(ev *DayProcessedEvent) ([]byte, error) {
	return json.Marshal(ev)
}

// DecodeDayProcessedEvent decodes JSON to DayProcessedEvent
func DecodeDayProcessedEvent(data []byte) (*DayProcessedEvent, error) {
	var ev DayProcessedEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// EncodeAlarmNotification encodes an AlarmNotification to JSON
func EncodeAlarmNotification(alarm *AlarmNotification) ([]byte, error) {
	return json.Marshal(alarm)
}

// DecodeAlarmNotification decodes JSON to AlarmNotification
func DecodeAlarmNotification(data []byte) (*AlarmNotification, error) {
	var alarm AlarmNotification
	if err := json.Unmarshal(data, &alarm); err != nil {
		return nil, err
	}
	return &alarm, nil
}
