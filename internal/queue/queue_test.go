package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/smukkama/rfi-pipeline/internal/batch"
	"github.com/smukkama/rfi-pipeline/internal/database"
	"github.com/smukkama/rfi-pipeline/internal/protocol"
	"github.com/smukkama/rfi-pipeline/internal/stats"
)

type fakePublisher struct {
	keys   []string
	values [][]byte
	err    error
}

func (p *fakePublisher) Publish(ctx context.Context, key string, value []byte) error {
	p.keys = append(p.keys, key)
	p.values = append(p.values, value)
	return p.err
}

type fakeStore struct {
	reports []*database.DayReport
	err     error
}

func (s *fakeStore) UpsertDayReport(r *database.DayReport) error {
	if s.err != nil {
		return s.err
	}
	s.reports = append(s.reports, r)
	return nil
}

func sampleOutput() *batch.DayOutput {
	return &batch.DayOutput{
		RunID:    uuid.MustParse("6f1c2a52-2c1e-4e8e-9d7e-1f0c4b7c9a10"),
		DeviceID: "sh1",
		Date:     "20240115",
		Rollup: stats.DaySummary{
			DeviceID:                "sh1",
			Date:                    "20240115",
			Frequencies:             3,
			MaxPower:                -20,
			MinPower:                -100,
			PercentSkewPositive:     33.3333,
			PercentKurtosisPositive: 0,
			AvgPercentAboveIQR:      4.5,
			AvgPercentAbove5Std:     stats.Undefined,
		},
		Artifacts: batch.Artifacts{
			Matrix:  "out/sh1/20240115_matrix.csv",
			Summary: "out/sh1/20240115_summary.csv",
			Rollup:  "out/sh1/summary-20240115.csv",
		},
		ParseFailures: 2,
	}
}

func TestEventSink_DayProcessed(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewEventSink(pub)
	sink.now = func() time.Time { return time.Date(2024, 1, 16, 0, 5, 0, 0, time.UTC) }

	if err := sink.DayProcessed(context.Background(), sampleOutput()); err != nil {
		t.Fatalf("DayProcessed failed: %v", err)
	}
	if len(pub.keys) != 1 || pub.keys[0] != "sh1" {
		t.Fatalf("Expected one message keyed by device, got %v", pub.keys)
	}

	ev, err := protocol.DecodeDayProcessedEvent(pub.values[0])
	if err != nil {
		t.Fatalf("DecodeDayProcessedEvent failed: %v", err)
	}
	if ev.RunID != "6f1c2a52-2c1e-4e8e-9d7e-1f0c4b7c9a10" || ev.ParseFailures != 2 {
		t.Errorf("Unexpected event %+v", ev)
	}
	if ev.Rollup.AvgPercentAboveIQR == nil || *ev.Rollup.AvgPercentAboveIQR != 4.5 {
		t.Errorf("Unexpected outlier percent %v", ev.Rollup.AvgPercentAboveIQR)
	}
	if ev.Rollup.AvgPercentAbove5Std != nil {
		t.Errorf("Expected nil 5 std average, got %v", *ev.Rollup.AvgPercentAbove5Std)
	}
}

func TestEventSink_PublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	if err := NewEventSink(pub).DayProcessed(context.Background(), sampleOutput()); err == nil {
		t.Error("Expected publish error to be returned")
	}
}

func TestCatalogWriter_ProcessMessage(t *testing.T) {
	pub := &fakePublisher{}
	if err := NewEventSink(pub).DayProcessed(context.Background(), sampleOutput()); err != nil {
		t.Fatal(err)
	}

	store := &fakeStore{}
	cw := NewCatalogWriter(nil, store, 10, time.Second)

	if err := cw.processMessage(kafka.Message{Value: pub.values[0]}); err != nil {
		t.Fatalf("processMessage failed: %v", err)
	}
	if len(store.reports) != 1 {
		t.Fatalf("Expected 1 report, got %d", len(store.reports))
	}

	r := store.reports[0]
	if r.DeviceID != "sh1" || !r.Date.Equal(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected report identity %s %v", r.DeviceID, r.Date)
	}
	if r.MaxPower == nil || *r.MaxPower != -20 || r.AvgPercentAbove5Std != nil {
		t.Errorf("Unexpected rollup columns %+v", r)
	}
	if r.RollupPath != "out/sh1/summary-20240115.csv" {
		t.Errorf("Unexpected rollup path %s", r.RollupPath)
	}
}

func TestCatalogWriter_ProcessMessageErrors(t *testing.T) {
	cw := NewCatalogWriter(nil, &fakeStore{}, 10, time.Second)
	if err := cw.processMessage(kafka.Message{Value: []byte("not json")}); err == nil {
		t.Error("Expected decode error")
	}

	bad, _ := protocol.EncodeDayProcessedEvent(&protocol.DayProcessedEvent{DeviceID: "sh1", Date: "2024-01-15"})
	if err := cw.processMessage(kafka.Message{Value: bad}); err == nil {
		t.Error("Expected invalid date error")
	}

	good, _ := protocol.EncodeDayProcessedEvent(&protocol.DayProcessedEvent{DeviceID: "sh1", Date: "20240115"})
	failing := NewCatalogWriter(nil, &fakeStore{err: errors.New("db down")}, 10, time.Second)
	if err := failing.processMessage(kafka.Message{Value: good}); err == nil {
		t.Error("Expected store error")
	}
}

func TestNewProducer_PartitionsByKey(t *testing.T) {
	p := NewProducer([]string{"localhost:9092"}, "rfi.days")
	defer p.Close()

	if p.writer.Topic != "rfi.days" {
		t.Errorf("Expected topic rfi.days, got %s", p.writer.Topic)
	}
	if _, ok := p.writer.Balancer.(*kafka.Hash); !ok {
		t.Errorf("Expected a key hash balancer, got %T", p.writer.Balancer)
	}
	if p.writer.Async {
		t.Error("Expected a synchronous writer")
	}
}

func TestCreateTopic_NoBrokers(t *testing.T) {
	if err := CreateTopic(nil, "rfi.days", 3, 1); err == nil {
		t.Error("Expected error without brokers")
	}
}
