package database

import (
	"time"
)

// Run is one batch run of the pipeline
type Run struct {
	RunID      string
	Trigger    string // manual, scheduled
	InputRoot  string
	OutputDir  string
	StartedAt  time.Time
	FinishedAt time.Time
	Processed  int
	Skipped    int
	Failed     int
}

// DayReport indexes the artifacts and rollup of one device-day
type DayReport struct {
	ID                      int64
	DeviceID                string
	Date                    time.Time
	RunID                   string
	Frequencies             int
	MaxPower                *float64
	MinPower                *float64
	PercentSkewPositive     *float64
	PercentKurtosisPositive *float64
	AvgOutlierPercent       *float64
	AvgPercentAbove5Std     *float64
	MatrixPath              string
	SummaryPath             string
	RollupPath              string
	ParseFailures           int
	ProcessedAt             time.Time
	UpdatedAt               time.Time
}

// AlarmThreshold represents an alarm configuration on a rollup metric
type AlarmThreshold struct {
	ID             int
	DeviceID       string
	MetricName     string
	Operator       string
	ThresholdValue float64
	DurationDays   int
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AlarmLog represents a logged alarm event
type AlarmLog struct {
	AlarmID         int64
	DeviceID        string
	MetricName      string
	BreachValue     float64
	ThresholdConfig string // JSON
	StartDate       time.Time
	EndDate         *time.Time
	Status          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

const (
	AlarmStatusActive  = "ACTIVE"
	AlarmStatusCleared = "CLEARED"
)
