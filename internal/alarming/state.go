package alarming

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// AlarmState represents the current state of an alarm on one device metric
type AlarmState struct {
	Status          string    `json:"status"` // CLEAR, PENDING_ALARM, ALARMING
	BreachStartDate time.Time `json:"breach_start_date"`
	LastDate        time.Time `json:"last_date"`
	BreachValue     float64   `json:"breach_value"`
	AlarmID         int64     `json:"alarm_id,omitempty"`
}

const (
	AlarmStateClear   = "CLEAR"
	AlarmStatePending = "PENDING_ALARM"
	AlarmStateActive  = "ALARMING"
)

// StateStore holds alarm states between evaluated days
type StateStore interface {
	GetState(ctx context.Context, deviceID, name string) (*AlarmState, error)
	SetState(ctx context.Context, deviceID, name string, state *AlarmState) error
	DeleteState(ctx context.Context, deviceID, name string) error
}

const stateKeyPrefix = "rfi_alarm_state:"

func stateKey(deviceID, name string) string {
	return fmt.Sprintf("%s%s:%s", stateKeyPrefix, deviceID, name)
}

// StateManager manages alarm states in Redis
type StateManager struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewStateManager creates a new state manager. States expire after ttl
// without an update; a zero ttl keeps them until deleted.
func NewStateManager(redisClient *redis.Client, ttl time.Duration) *StateManager {
	return &StateManager{redis: redisClient, ttl: ttl}
}

// GetState retrieves the alarm state for a device and metric
func (sm *StateManager) GetState(ctx context.Context, deviceID, name string) (*AlarmState, error) {
	data, err := sm.redis.Get(ctx, stateKey(deviceID, name)).Result()
	if errors.Is(err, redis.Nil) {
		return &AlarmState{Status: AlarmStateClear}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get state from Redis: %w", err)
	}

	var state AlarmState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}

	return &state, nil
}

// SetState saves the alarm state for a device and metric
func (sm *StateManager) SetState(ctx context.Context, deviceID, name string, state *AlarmState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := sm.redis.Set(ctx, stateKey(deviceID, name), data, sm.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set state in Redis: %w", err)
	}

	return nil
}

// DeleteState removes the alarm state (returns to CLEAR)
func (sm *StateManager) DeleteState(ctx context.Context, deviceID, name string) error {
	return sm.redis.Del(ctx, stateKey(deviceID, name)).Err()
}

// GetAllStates returns all stored alarm states keyed by Redis key
func (sm *StateManager) GetAllStates(ctx context.Context) (map[string]*AlarmState, error) {
	states := make(map[string]*AlarmState)

	iter := sm.redis.Scan(ctx, 0, stateKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := sm.redis.Get(ctx, key).Result()
		if err != nil {
			continue
		}

		var state AlarmState
		if err := json.Unmarshal([]byte(data), &state); err != nil {
			continue
		}
		states[key] = &state
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}

	return states, nil
}
