package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/smukkama/rfi-pipeline/internal/batch"
	"github.com/smukkama/rfi-pipeline/internal/protocol"
)

// EventSink publishes a DayProcessedEvent for every device-day a batch run
// writes. Events are keyed by device so one device's days stay ordered
// within a partition.
type EventSink struct {
	publisher Publisher
	now       func() time.Time
}

// NewEventSink creates a sink publishing through p
func NewEventSink(p Publisher) *EventSink {
	return &EventSink{publisher: p, now: time.Now}
}

// Name implements batch.DaySink
func (s *EventSink) Name() string {
	return "kafka-day-events"
}

// DayProcessed implements batch.DaySink
func (s *EventSink) DayProcessed(ctx context.Context, out *batch.DayOutput) error {
	ev := &protocol.DayProcessedEvent{
		RunID:         out.RunID.String(),
		DeviceID:      out.DeviceID,
		Date:          out.Date,
		ProcessedAt:   s.now().UTC(),
		Rollup:        protocol.NewRollupData(out.Rollup),
		MatrixPath:    out.Artifacts.Matrix,
		SummaryPath:   out.Artifacts.Summary,
		RollupPath:    out.Artifacts.Rollup,
		ParseFailures: out.ParseFailures,
	}

	data, err := protocol.EncodeDayProcessedEvent(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return s.publisher.Publish(ctx, out.DeviceID, data)
}
