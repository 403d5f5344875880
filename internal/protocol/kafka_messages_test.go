package protocol

import (
	"strings"
	"testing"
	"time"

	"github.com/smukkama/rfi-pipeline/internal/stats"
)

func TestDayProcessedEvent_UndefinedIsNull(t *testing.T) {
	d := stats.DaySummary{
		DeviceID:                "sh1",
		Date:                    "20240115",
		Frequencies:             120,
		MaxPower:                -20.5,
		MinPower:                -101,
		PercentSkewPositive:     40,
		PercentKurtosisPositive: 55,
		AvgPercentAboveIQR:      stats.Undefined,
		AvgPercentAbove5Std:     stats.Undefined,
	}

	ev := &DayProcessedEvent{
		RunID:       "run-1",
		DeviceID:    d.DeviceID,
		Date:        d.Date,
		ProcessedAt: time.Date(2024, 1, 16, 0, 5, 0, 0, time.UTC),
		Rollup:      NewRollupData(d),
	}

	data, err := EncodeDayProcessedEvent(ev)
	if err != nil {
		t.Fatalf("EncodeDayProcessedEvent failed: %v", err)
	}
	if !strings.Contains(string(data), `"avg_outlier_percent":null`) {
		t.Errorf("Expected null outlier percent, got %s", data)
	}
	if strings.Contains(string(data), "avg_percent_above_5std") {
		t.Errorf("Expected 5 std field omitted, got %s", data)
	}

	decoded, err := DecodeDayProcessedEvent(data)
	if err != nil {
		t.Fatalf("DecodeDayProcessedEvent failed: %v", err)
	}
	back := decoded.Rollup.DaySummary(decoded.DeviceID, decoded.Date)
	if back.MaxPower != -20.5 || back.Frequencies != 120 {
		t.Errorf("Unexpected rollup %+v", back)
	}
	if !stats.IsUndefined(back.AvgPercentAboveIQR) {
		t.Errorf("Expected undefined outlier percent, got %v", back.AvgPercentAboveIQR)
	}
}

func TestAlarmNotification_RoundTrip(t *testing.T) {
	n := &AlarmNotification{
		Type:         AlarmTypeTriggered,
		DeviceID:     "sh1",
		Date:         "20240115",
		Metric:       "avg_outlier_percent",
		Value:        12.5,
		Threshold:    10,
		Operator:     ">",
		DurationDays: 2,
		StartDate:    "20240114",
		AlarmID:      7,
	}

	data, err := EncodeAlarmNotification(n)
	if err != nil {
		t.Fatalf("EncodeAlarmNotification failed: %v", err)
	}
	got, err := DecodeAlarmNotification(data)
	if err != nil {
		t.Fatalf("DecodeAlarmNotification failed: %v", err)
	}
	if *got != *n {
		t.Errorf("got %+v, want %+v", got, n)
	}

	if _, err := DecodeAlarmNotification([]byte("{")); err == nil {
		t.Error("Expected error for truncated JSON")
	}
}
