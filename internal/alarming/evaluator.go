package alarming

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/smukkama/rfi-pipeline/internal/database"
	"github.com/smukkama/rfi-pipeline/internal/protocol"
	"github.com/smukkama/rfi-pipeline/internal/queue"
	"github.com/smukkama/rfi-pipeline/internal/stats"
)

const day = 24 * time.Hour

// ThresholdStore loads thresholds and records alarm history
type ThresholdStore interface {
	GetActiveAlarmThresholds(deviceID string) ([]*database.AlarmThreshold, error)
	InsertAlarmLog(alarm *database.AlarmLog) error
	UpdateAlarmLogCleared(alarmID int64, endDate time.Time) error
}

// Evaluator evaluates day rollups against thresholds and manages alarm state.
// A threshold with DurationDays n triggers once its condition has held on n
// consecutive days; a missing day restarts the count.
type Evaluator struct {
	store         ThresholdStore
	states        StateStore
	alarmProducer queue.Publisher
	now           func() time.Time

	mu             sync.Mutex
	thresholdCache map[string][]*database.AlarmThreshold
	cacheLoaded    map[string]time.Time
	cacheValidity  time.Duration
}

// NewEvaluator creates a new alarm evaluator
func NewEvaluator(store ThresholdStore, states StateStore, alarmProducer queue.Publisher) *Evaluator {
	return &Evaluator{
		store:          store,
		states:         states,
		alarmProducer:  alarmProducer,
		now:            time.Now,
		thresholdCache: make(map[string][]*database.AlarmThreshold),
		cacheLoaded:    make(map[string]time.Time),
		cacheValidity:  5 * time.Minute,
	}
}

// EvaluateDay evaluates one device-day rollup against all thresholds that
// apply to the device
func (e *Evaluator) EvaluateDay(ctx context.Context, ev *protocol.DayProcessedEvent) error {
	date, err := database.ParseDate(ev.Date)
	if err != nil {
		return err
	}
	summary := ev.Rollup.DaySummary(ev.DeviceID, ev.Date)

	thresholds, err := e.getThresholds(ev.DeviceID)
	if err != nil {
		return fmt.Errorf("failed to get thresholds: %w", err)
	}

	for _, threshold := range thresholds {
		if err := e.evaluateThreshold(ctx, summary, date, threshold); err != nil {
			fmt.Printf("Failed to evaluate threshold %s on %s: %v\n", threshold.MetricName, ev.DeviceID, err)
		}
	}

	return nil
}

func (e *Evaluator) evaluateThreshold(ctx context.Context, summary stats.DaySummary, date time.Time, threshold *database.AlarmThreshold) error {
	value, ok := summary.Metric(threshold.MetricName)
	if !ok {
		// Undefined metric for the day; state is left as is
		return nil
	}

	state, err := e.states.GetState(ctx, summary.DeviceID, stateName(threshold))
	if err != nil {
		return err
	}

	// Replayed or out-of-order days do not move the state machine
	if state.Status != AlarmStateClear && !date.After(state.LastDate) {
		return nil
	}

	if evaluateCondition(value, threshold.Operator, threshold.ThresholdValue) {
		return e.handleBreach(ctx, summary, date, threshold, value, state)
	}
	return e.handleNoBreach(ctx, summary, date, threshold, state)
}

func (e *Evaluator) handleBreach(ctx context.Context, summary stats.DaySummary, date time.Time, threshold *database.AlarmThreshold, value float64, state *AlarmState) error {
	switch state.Status {
	case AlarmStateClear:
		state = &AlarmState{
			Status:          AlarmStatePending,
			BreachStartDate: date,
			LastDate:        date,
			BreachValue:     value,
		}

	case AlarmStatePending:
		if date.Sub(state.LastDate) > day {
			state.BreachStartDate = date
		}
		state.LastDate = date
		state.BreachValue = value

	case AlarmStateActive:
		state.LastDate = date
		return e.states.SetState(ctx, summary.DeviceID, stateName(threshold), state)
	}

	if breachDays(state) >= threshold.DurationDays {
		return e.triggerAlarm(ctx, summary, threshold, value, state)
	}
	return e.states.SetState(ctx, summary.DeviceID, stateName(threshold), state)
}

func (e *Evaluator) handleNoBreach(ctx context.Context, summary stats.DaySummary, date time.Time, threshold *database.AlarmThreshold, state *AlarmState) error {
	switch state.Status {
	case AlarmStatePending:
		return e.states.DeleteState(ctx, summary.DeviceID, stateName(threshold))
	case AlarmStateActive:
		return e.clearAlarm(ctx, summary, date, threshold, state)
	}
	return nil
}

// stateName separates the states of thresholds sharing a metric, such as a
// device threshold and a '*' threshold
func stateName(threshold *database.AlarmThreshold) string {
	return fmt.Sprintf("%s:%d", threshold.MetricName, threshold.ID)
}

// breachDays counts the days from the breach start through the last breached
// day, inclusive
func breachDays(state *AlarmState) int {
	return int(state.LastDate.Sub(state.BreachStartDate)/day) + 1
}

func (e *Evaluator) triggerAlarm(ctx context.Context, summary stats.DaySummary, threshold *database.AlarmThreshold, value float64, state *AlarmState) error {
	fmt.Printf("🚨 ALARM TRIGGERED: device=%s, metric=%s, value=%.2f, threshold=%s %.2f, since=%s\n",
		summary.DeviceID, threshold.MetricName, value, threshold.Operator, threshold.ThresholdValue,
		state.BreachStartDate.Format("20060102"))

	thresholdConfig, _ := json.Marshal(threshold)
	alarmLog := &database.AlarmLog{
		DeviceID:        summary.DeviceID,
		MetricName:      threshold.MetricName,
		BreachValue:     value,
		ThresholdConfig: string(thresholdConfig),
		StartDate:       state.BreachStartDate,
		Status:          database.AlarmStatusActive,
	}

	if err := e.store.InsertAlarmLog(alarmLog); err != nil {
		return fmt.Errorf("failed to insert alarm log: %w", err)
	}

	state.Status = AlarmStateActive
	state.AlarmID = alarmLog.AlarmID
	if err := e.states.SetState(ctx, summary.DeviceID, stateName(threshold), state); err != nil {
		return err
	}

	return e.sendNotification(ctx, &protocol.AlarmNotification{
		Type:         protocol.AlarmTypeTriggered,
		DeviceID:     summary.DeviceID,
		Date:         summary.Date,
		Metric:       threshold.MetricName,
		Value:        value,
		Threshold:    threshold.ThresholdValue,
		Operator:     threshold.Operator,
		DurationDays: threshold.DurationDays,
		StartDate:    state.BreachStartDate.Format("20060102"),
		RaisedAt:     e.now().UTC(),
		AlarmID:      alarmLog.AlarmID,
		ThresholdID:  threshold.ID,
	})
}

func (e *Evaluator) clearAlarm(ctx context.Context, summary stats.DaySummary, date time.Time, threshold *database.AlarmThreshold, state *AlarmState) error {
	fmt.Printf("✅ ALARM CLEARED: device=%s, metric=%s, date=%s\n",
		summary.DeviceID, threshold.MetricName, summary.Date)

	if state.AlarmID > 0 {
		if err := e.store.UpdateAlarmLogCleared(state.AlarmID, date); err != nil {
			return fmt.Errorf("failed to update alarm log: %w", err)
		}
	}

	if err := e.states.DeleteState(ctx, summary.DeviceID, stateName(threshold)); err != nil {
		return err
	}

	return e.sendNotification(ctx, &protocol.AlarmNotification{
		Type:         protocol.AlarmTypeCleared,
		DeviceID:     summary.DeviceID,
		Date:         summary.Date,
		Metric:       threshold.MetricName,
		Threshold:    threshold.ThresholdValue,
		Operator:     threshold.Operator,
		DurationDays: threshold.DurationDays,
		StartDate:    state.BreachStartDate.Format("20060102"),
		RaisedAt:     e.now().UTC(),
		AlarmID:      state.AlarmID,
		ThresholdID:  threshold.ID,
	})
}

func (e *Evaluator) sendNotification(ctx context.Context, notification *protocol.AlarmNotification) error {
	data, err := protocol.EncodeAlarmNotification(notification)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	key := fmt.Sprintf("%s-%s-%d", notification.DeviceID, notification.Metric, notification.ThresholdID)
	return e.alarmProducer.Publish(ctx, key, data)
}

func (e *Evaluator) getThresholds(deviceID string) ([]*database.AlarmThreshold, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if loaded, ok := e.cacheLoaded[deviceID]; ok && time.Since(loaded) < e.cacheValidity {
		return e.thresholdCache[deviceID], nil
	}

	thresholds, err := e.store.GetActiveAlarmThresholds(deviceID)
	if err != nil {
		return nil, err
	}

	e.thresholdCache[deviceID] = thresholds
	e.cacheLoaded[deviceID] = time.Now()

	return thresholds, nil
}

func evaluateCondition(value float64, operator string, threshold float64) bool {
	switch operator {
	case ">":
		return value > threshold
	case "<":
		return value < threshold
	case ">=":
		return value >= threshold
	case "<=":
		return value <= threshold
	default:
		return false
	}
}
