package alarming

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/smukkama/rfi-pipeline/internal/database"
	"github.com/smukkama/rfi-pipeline/internal/protocol"
)

type memoryStates struct {
	states map[string]*AlarmState
}

func newMemoryStates() *memoryStates {
	return &memoryStates{states: make(map[string]*AlarmState)}
}

func (m *memoryStates) GetState(ctx context.Context, deviceID, name string) (*AlarmState, error) {
	if s, ok := m.states[stateKey(deviceID, name)]; ok {
		cp := *s
		return &cp, nil
	}
	return &AlarmState{Status: AlarmStateClear}, nil
}

func (m *memoryStates) SetState(ctx context.Context, deviceID, name string, state *AlarmState) error {
	cp := *state
	m.states[stateKey(deviceID, name)] = &cp
	return nil
}

func (m *memoryStates) DeleteState(ctx context.Context, deviceID, name string) error {
	delete(m.states, stateKey(deviceID, name))
	return nil
}

func (m *memoryStates) status(deviceID, name string) string {
	s, _ := m.GetState(context.Background(), deviceID, name)
	return s.Status
}

type fakeThresholds struct {
	thresholds []*database.AlarmThreshold
	logs       []*database.AlarmLog
	cleared    map[int64]time.Time
}

func (f *fakeThresholds) GetActiveAlarmThresholds(deviceID string) ([]*database.AlarmThreshold, error) {
	return f.thresholds, nil
}

func (f *fakeThresholds) InsertAlarmLog(alarm *database.AlarmLog) error {
	alarm.AlarmID = int64(len(f.logs) + 1)
	f.logs = append(f.logs, alarm)
	return nil
}

func (f *fakeThresholds) UpdateAlarmLogCleared(alarmID int64, endDate time.Time) error {
	if f.cleared == nil {
		f.cleared = make(map[int64]time.Time)
	}
	f.cleared[alarmID] = endDate
	return nil
}

type capturePublisher struct {
	keys          []string
	notifications []*protocol.AlarmNotification
}

func (p *capturePublisher) Publish(ctx context.Context, key string, value []byte) error {
	n, err := protocol.DecodeAlarmNotification(value)
	if err != nil {
		return err
	}
	p.keys = append(p.keys, key)
	p.notifications = append(p.notifications, n)
	return nil
}

func outlierEvent(date string, pct float64) *protocol.DayProcessedEvent {
	return &protocol.DayProcessedEvent{
		DeviceID: "sh1",
		Date:     date,
		Rollup:   protocol.RollupData{Frequencies: 10, AvgPercentAboveIQR: &pct},
	}
}

func newTestEvaluator(durationDays int) (*Evaluator, *memoryStates, *fakeThresholds, *capturePublisher) {
	store := &fakeThresholds{thresholds: []*database.AlarmThreshold{{
		ID:             1,
		DeviceID:       "*",
		MetricName:     "avg_outlier_percent",
		Operator:       ">",
		ThresholdValue: 5,
		DurationDays:   durationDays,
		IsActive:       true,
	}}}
	states := newMemoryStates()
	pub := &capturePublisher{}
	e := NewEvaluator(store, states, pub)
	e.now = func() time.Time { return time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC) }
	return e, states, store, pub
}

func evaluate(t *testing.T, e *Evaluator, date string, pct float64) {
	t.Helper()
	if err := e.EvaluateDay(context.Background(), outlierEvent(date, pct)); err != nil {
		t.Fatalf("EvaluateDay(%s) failed: %v", date, err)
	}
}

func TestEvaluator_TriggersAfterConsecutiveDays(t *testing.T) {
	e, states, store, pub := newTestEvaluator(2)

	evaluate(t, e, "20240110", 7)
	if got := states.status("sh1", "avg_outlier_percent:1"); got != AlarmStatePending {
		t.Fatalf("Expected PENDING after first breach, got %s", got)
	}
	if len(pub.notifications) != 0 {
		t.Fatalf("Expected no notification yet, got %d", len(pub.notifications))
	}

	evaluate(t, e, "20240111", 8)
	if got := states.status("sh1", "avg_outlier_percent:1"); got != AlarmStateActive {
		t.Fatalf("Expected ALARMING after second breach, got %s", got)
	}
	if len(store.logs) != 1 || !store.logs[0].StartDate.Equal(time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("Unexpected alarm logs %+v", store.logs)
	}

	if len(pub.notifications) != 1 {
		t.Fatalf("Expected 1 notification, got %d", len(pub.notifications))
	}
	n := pub.notifications[0]
	if n.Type != protocol.AlarmTypeTriggered || n.Value != 8 || n.StartDate != "20240110" || n.Date != "20240111" {
		t.Errorf("Unexpected notification %+v", n)
	}
	if pub.keys[0] != "sh1-avg_outlier_percent-1" {
		t.Errorf("Unexpected key %s", pub.keys[0])
	}

	// Still breached: no second trigger
	evaluate(t, e, "20240112", 9)
	if len(pub.notifications) != 1 || len(store.logs) != 1 {
		t.Errorf("Expected alarm to stay raised without new notifications")
	}

	evaluate(t, e, "20240113", 1)
	if got := states.status("sh1", "avg_outlier_percent:1"); got != AlarmStateClear {
		t.Fatalf("Expected CLEAR after recovery, got %s", got)
	}
	if len(pub.notifications) != 2 || pub.notifications[1].Type != protocol.AlarmTypeCleared {
		t.Fatalf("Expected clear notification, got %+v", pub.notifications)
	}
	if end, ok := store.cleared[1]; !ok || !end.Equal(time.Date(2024, 1, 13, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected alarm 1 cleared on 20240113, got %v", store.cleared)
	}
}

func TestEvaluator_GapRestartsCount(t *testing.T) {
	e, states, _, pub := newTestEvaluator(2)

	evaluate(t, e, "20240110", 7)
	evaluate(t, e, "20240112", 7)

	if got := states.status("sh1", "avg_outlier_percent:1"); got != AlarmStatePending {
		t.Fatalf("Expected PENDING after a gap, got %s", got)
	}
	if len(pub.notifications) != 0 {
		t.Fatalf("Expected no trigger across a gap")
	}

	evaluate(t, e, "20240113", 7)
	if len(pub.notifications) != 1 || pub.notifications[0].StartDate != "20240112" {
		t.Fatalf("Expected trigger starting 20240112, got %+v", pub.notifications)
	}
}

func TestEvaluator_PendingResetOnRecovery(t *testing.T) {
	e, states, _, pub := newTestEvaluator(3)

	evaluate(t, e, "20240110", 7)
	evaluate(t, e, "20240111", 2)
	if got := states.status("sh1", "avg_outlier_percent:1"); got != AlarmStateClear {
		t.Fatalf("Expected CLEAR, got %s", got)
	}
	if len(pub.notifications) != 0 {
		t.Errorf("Expected no notifications, got %d", len(pub.notifications))
	}
}

func TestEvaluator_SingleDayThreshold(t *testing.T) {
	for _, duration := range []int{0, 1} {
		t.Run(fmt.Sprintf("duration=%d", duration), func(t *testing.T) {
			e, states, _, pub := newTestEvaluator(duration)
			evaluate(t, e, "20240110", 6)
			if got := states.status("sh1", "avg_outlier_percent:1"); got != AlarmStateActive {
				t.Fatalf("Expected immediate ALARMING, got %s", got)
			}
			if len(pub.notifications) != 1 {
				t.Errorf("Expected 1 notification, got %d", len(pub.notifications))
			}
		})
	}
}

func TestEvaluator_ReplayedDayIgnored(t *testing.T) {
	e, states, _, pub := newTestEvaluator(2)

	evaluate(t, e, "20240110", 7)
	evaluate(t, e, "20240110", 7)
	if got := states.status("sh1", "avg_outlier_percent:1"); got != AlarmStatePending {
		t.Fatalf("Expected PENDING, got %s", got)
	}
	if len(pub.notifications) != 0 {
		t.Errorf("Replayed day must not count twice")
	}
}

func TestEvaluator_UndefinedMetricLeavesState(t *testing.T) {
	e, states, _, _ := newTestEvaluator(2)

	evaluate(t, e, "20240110", 7)
	ev := &protocol.DayProcessedEvent{DeviceID: "sh1", Date: "20240111"}
	if err := e.EvaluateDay(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	if got := states.status("sh1", "avg_outlier_percent:1"); got != AlarmStatePending {
		t.Errorf("Expected state unchanged, got %s", got)
	}
}

func TestEvaluator_BadDate(t *testing.T) {
	e, _, _, _ := newTestEvaluator(2)
	if err := e.EvaluateDay(context.Background(), outlierEvent("2024-01-10", 7)); err == nil {
		t.Error("Expected error for malformed date")
	}
}

func TestEvaluateCondition(t *testing.T) {
	tests := []struct {
		value     float64
		operator  string
		threshold float64
		want      bool
	}{
		{6, ">", 5, true},
		{5, ">", 5, false},
		{5, ">=", 5, true},
		{4, "<", 5, true},
		{5, "<=", 5, true},
		{5, "==", 5, false},
	}
	for _, tt := range tests {
		if got := evaluateCondition(tt.value, tt.operator, tt.threshold); got != tt.want {
			t.Errorf("evaluateCondition(%v %s %v) = %v, want %v", tt.value, tt.operator, tt.threshold, got, tt.want)
		}
	}
}

func TestEvaluator_DeviceAndWildcardThresholds(t *testing.T) {
	e, states, store, pub := newTestEvaluator(2)
	store.thresholds = append(store.thresholds, &database.AlarmThreshold{
		ID:             2,
		DeviceID:       "sh1",
		MetricName:     "avg_outlier_percent",
		Operator:       ">",
		ThresholdValue: 20,
		DurationDays:   1,
		IsActive:       true,
	})

	evaluate(t, e, "20240110", 50)

	if got := states.status("sh1", "avg_outlier_percent:1"); got != AlarmStatePending {
		t.Errorf("Expected wildcard threshold PENDING, got %s", got)
	}
	if got := states.status("sh1", "avg_outlier_percent:2"); got != AlarmStateActive {
		t.Errorf("Expected device threshold ALARMING, got %s", got)
	}
	if len(store.logs) != 1 || len(pub.notifications) != 1 {
		t.Fatalf("Expected one alarm, got logs=%d notifications=%d", len(store.logs), len(pub.notifications))
	}
	if pub.notifications[0].ThresholdID != 2 || pub.keys[0] != "sh1-avg_outlier_percent-2" {
		t.Errorf("Unexpected notification %+v keyed %s", pub.notifications[0], pub.keys[0])
	}

	evaluate(t, e, "20240111", 50)
	if got := states.status("sh1", "avg_outlier_percent:1"); got != AlarmStateActive {
		t.Errorf("Expected wildcard threshold ALARMING on day two, got %s", got)
	}
	if len(pub.notifications) != 2 || pub.notifications[1].ThresholdID != 1 {
		t.Errorf("Expected wildcard trigger, got %+v", pub.notifications)
	}
}
