package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/smukkama/rfi-pipeline/internal/database"
	"github.com/smukkama/rfi-pipeline/internal/protocol"
)

// DayReportStore persists day reports
type DayReportStore interface {
	UpsertDayReport(r *database.DayReport) error
}

// CatalogWriter consumes day-processed events from Kafka and batch-writes
// them into the Postgres catalog
type CatalogWriter struct {
	consumer      *Consumer
	store         DayReportStore
	batchSize     int
	flushInterval time.Duration
	stopCh        chan struct{}
	wg            sync.WaitGroup
}

// NewCatalogWriter creates a new catalog writer
func NewCatalogWriter(consumer *Consumer, store DayReportStore, batchSize int, flushInterval time.Duration) *CatalogWriter {
	return &CatalogWriter{
		consumer:      consumer,
		store:         store,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		stopCh:        make(chan struct{}),
	}
}

// Start begins consuming and writing to database
func (cw *CatalogWriter) Start(ctx context.Context) error {
	cw.wg.Add(1)
	go cw.run(ctx)
	return nil
}

// Stop stops the writer, flushing what it holds
func (cw *CatalogWriter) Stop() {
	close(cw.stopCh)
	cw.wg.Wait()
}

func (cw *CatalogWriter) run(ctx context.Context) {
	defer cw.wg.Done()

	consumeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var batch []kafka.Message
	ticker := time.NewTicker(cw.flushInterval)
	defer ticker.Stop()

	msgChan := make(chan kafka.Message, 10)
	go func() {
		for {
			msg, err := cw.consumer.Consume(consumeCtx)
			if err != nil {
				if consumeCtx.Err() != nil {
					return
				}
				fmt.Printf("Consumer error: %v\n", err)
				continue
			}
			select {
			case msgChan <- msg:
			case <-consumeCtx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-cw.stopCh:
			if len(batch) > 0 {
				cw.flush(ctx, batch)
			}
			return

		case <-ticker.C:
			if len(batch) > 0 {
				fmt.Printf("Flush interval reached (%d events), flushing...\n", len(batch))
				cw.flush(ctx, batch)
				batch = nil
			}

		case msg := <-msgChan:
			fmt.Printf("Consumed day event (partition=%d, offset=%d)\n", msg.Partition, msg.Offset)
			batch = append(batch, msg)

			if len(batch) >= cw.batchSize {
				fmt.Printf("Batch full (%d events), flushing...\n", len(batch))
				cw.flush(ctx, batch)
				batch = nil
			}
		}
	}
}

func (cw *CatalogWriter) flush(ctx context.Context, batch []kafka.Message) {
	successCount := 0
	for _, msg := range batch {
		if err := cw.processMessage(msg); err != nil {
			fmt.Printf("Failed to process event: %v\n", err)
			continue
		}
		successCount++

		// Commit offset after successful processing
		if err := cw.consumer.Commit(ctx, msg); err != nil {
			fmt.Printf("Failed to commit offset: %v\n", err)
		}
	}

	fmt.Printf("Flushed batch of %d day reports to database\n", successCount)
}

func (cw *CatalogWriter) processMessage(msg kafka.Message) error {
	ev, err := protocol.DecodeDayProcessedEvent(msg.Value)
	if err != nil {
		return fmt.Errorf("failed to decode event: %w", err)
	}

	report, err := NewDayReport(ev)
	if err != nil {
		return err
	}

	if err := cw.store.UpsertDayReport(report); err != nil {
		return fmt.Errorf("failed to upsert day report %s/%s: %w", ev.DeviceID, ev.Date, err)
	}
	return nil
}

// NewDayReport maps a day-processed event onto its catalog row
func NewDayReport(ev *protocol.DayProcessedEvent) (*database.DayReport, error) {
	date, err := database.ParseDate(ev.Date)
	if err != nil {
		return nil, err
	}

	return &database.DayReport{
		DeviceID:                ev.DeviceID,
		Date:                    date,
		RunID:                   ev.RunID,
		Frequencies:             ev.Rollup.Frequencies,
		MaxPower:                ev.Rollup.MaxPower,
		MinPower:                ev.Rollup.MinPower,
		PercentSkewPositive:     ev.Rollup.PercentSkewPositive,
		PercentKurtosisPositive: ev.Rollup.PercentKurtosisPositive,
		AvgOutlierPercent:       ev.Rollup.AvgPercentAboveIQR,
		AvgPercentAbove5Std:     ev.Rollup.AvgPercentAbove5Std,
		MatrixPath:              ev.MatrixPath,
		SummaryPath:             ev.SummaryPath,
		RollupPath:              ev.RollupPath,
		ParseFailures:           ev.ParseFailures,
		ProcessedAt:             ev.ProcessedAt,
	}, nil
}
