package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// DB wraps the database connection
type DB struct {
	*sql.DB
}

// Connect establishes a connection to the database
func Connect(connectionString string) (*DB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)

	return &DB{db}, nil
}

// MigrationFiles lists the .sql files of dir in execution order
func MigrationFiles(dir string) ([]string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var sqlFiles []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".sql") {
			sqlFiles = append(sqlFiles, file.Name())
		}
	}
	sort.Strings(sqlFiles)
	return sqlFiles, nil
}

// RunMigrations executes all SQL migration files in order
func (db *DB) RunMigrations(migrationsDir string) error {
	sqlFiles, err := MigrationFiles(migrationsDir)
	if err != nil {
		return err
	}

	for _, filename := range sqlFiles {
		fmt.Printf("Running migration: %s\n", filename)

		content, err := os.ReadFile(filepath.Join(migrationsDir, filename))
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", filename, err)
		}

		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", filename, err)
		}
	}

	fmt.Println("All migrations completed successfully")
	return nil
}

// ParseDate converts a YYYYMMDD device-day date for the DATE columns
func ParseDate(date string) (time.Time, error) {
	t, err := time.ParseInLocation("20060102", date, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	return t, nil
}

// InsertRun records a finished batch run
func (db *DB) InsertRun(run *Run) error {
	query := `
		INSERT INTO rfi_runs (
			run_id, trigger, input_root, output_dir,
			started_at, finished_at, processed, skipped, failed
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (run_id) DO NOTHING
	`
	_, err := db.Exec(query,
		run.RunID, run.Trigger, run.InputRoot, run.OutputDir,
		run.StartedAt, run.FinishedAt, run.Processed, run.Skipped, run.Failed,
	)
	return err
}

// UpsertDayReport inserts or replaces the report of a device-day
func (db *DB) UpsertDayReport(r *DayReport) error {
	query := `
		INSERT INTO rfi_day_reports (
			device_id, date, run_id, frequencies,
			day_max_power, day_min_power,
			percent_skew_positive, percent_kurtosis_positive,
			avg_outlier_percent, avg_percent_above_5std,
			matrix_path, summary_path, rollup_path,
			parse_failures, processed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (device_id, date) DO UPDATE
		SET run_id = EXCLUDED.run_id,
		    frequencies = EXCLUDED.frequencies,
		    day_max_power = EXCLUDED.day_max_power,
		    day_min_power = EXCLUDED.day_min_power,
		    percent_skew_positive = EXCLUDED.percent_skew_positive,
		    percent_kurtosis_positive = EXCLUDED.percent_kurtosis_positive,
		    avg_outlier_percent = EXCLUDED.avg_outlier_percent,
		    avg_percent_above_5std = EXCLUDED.avg_percent_above_5std,
		    matrix_path = EXCLUDED.matrix_path,
		    summary_path = EXCLUDED.summary_path,
		    rollup_path = EXCLUDED.rollup_path,
		    parse_failures = EXCLUDED.parse_failures,
		    processed_at = EXCLUDED.processed_at,
		    updated_at = CURRENT_TIMESTAMP
		RETURNING id
	`

	return db.QueryRow(query,
		r.DeviceID,
		r.Date,
		r.RunID,
		r.Frequencies,
		r.MaxPower,
		r.MinPower,
		r.PercentSkewPositive,
		r.PercentKurtosisPositive,
		r.AvgOutlierPercent,
		r.AvgPercentAbove5Std,
		r.MatrixPath,
		r.SummaryPath,
		r.RollupPath,
		r.ParseFailures,
		r.ProcessedAt,
	).Scan(&r.ID)
}

// GetActiveAlarmThresholds retrieves the active thresholds of a device,
// including the ones configured for every device ('*')
func (db *DB) GetActiveAlarmThresholds(deviceID string) ([]*AlarmThreshold, error) {
	query := `
		SELECT id, device_id, metric_name, operator, threshold_value,
		       duration_days, is_active, created_at, updated_at
		FROM rfi_alarm_thresholds
		WHERE (device_id = $1 OR device_id = '*') AND is_active = true
		ORDER BY metric_name, id
	`

	rows, err := db.Query(query, deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var thresholds []*AlarmThreshold
	for rows.Next() {
		var t AlarmThreshold
		if err := rows.Scan(
			&t.ID,
			&t.DeviceID,
			&t.MetricName,
			&t.Operator,
			&t.ThresholdValue,
			&t.DurationDays,
			&t.IsActive,
			&t.CreatedAt,
			&t.UpdatedAt,
		); err != nil {
			return nil, err
		}
		thresholds = append(thresholds, &t)
	}

	return thresholds, rows.Err()
}

// InsertAlarmLog inserts a new alarm log entry
func (db *DB) InsertAlarmLog(alarm *AlarmLog) error {
	query := `
		INSERT INTO rfi_alarms_log (
			device_id, metric_name, breach_value, threshold_config,
			start_date, status
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING alarm_id
	`

	return db.QueryRow(
		query,
		alarm.DeviceID,
		alarm.MetricName,
		alarm.BreachValue,
		alarm.ThresholdConfig,
		alarm.StartDate,
		alarm.Status,
	).Scan(&alarm.AlarmID)
}

// UpdateAlarmLogCleared updates an alarm log to cleared status
func (db *DB) UpdateAlarmLogCleared(alarmID int64, endDate time.Time) error {
	query := `
		UPDATE rfi_alarms_log
		SET status = $1, end_date = $2, updated_at = CURRENT_TIMESTAMP
		WHERE alarm_id = $3
	`

	_, err := db.Exec(query, AlarmStatusCleared, endDate, alarmID)
	return err
}
