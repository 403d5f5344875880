package timer

import (
	"fmt"
	"time"
)

// NextDailyRun returns the next occurrence of timeOfDay ("HH:MM") strictly
// after now, in now's location
func NextDailyRun(now time.Time, timeOfDay string) (time.Time, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(timeOfDay, "%d:%d", &hour, &minute); err != nil {
		return time.Time{}, fmt.Errorf("invalid time format: %s (expected HH:MM)", timeOfDay)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("invalid time of day: %s", timeOfDay)
	}

	run := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !run.After(now) {
		run = run.AddDate(0, 0, 1)
	}
	return run, nil
}

// PreviousDay returns the calendar day before now as YYYYMMDD
func PreviousDay(now time.Time) string {
	return now.AddDate(0, 0, -1).Format("20060102")
}

// ScheduleDaily runs job every day at timeOfDay under the given task ID.
// Each run schedules the next one before invoking job.
func ScheduleDaily(s *Scheduler, id, timeOfDay string, job func(now time.Time)) error {
	next, err := NextDailyRun(time.Now(), timeOfDay)
	if err != nil {
		return err
	}
	fmt.Printf("Next %s run scheduled for: %s\n", id, next.Format("2006-01-02 15:04:05"))

	return s.Schedule(id, next, func() {
		if err := ScheduleDaily(s, id, timeOfDay, job); err != nil && err != ErrStopped {
			fmt.Printf("Failed to reschedule %s: %v\n", id, err)
		}
		job(time.Now())
	})
}
