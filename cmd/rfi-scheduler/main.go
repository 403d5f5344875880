package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smukkama/rfi-pipeline/internal/pipeline"
	"github.com/smukkama/rfi-pipeline/internal/timer"
	"github.com/smukkama/rfi-pipeline/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	fmt.Println("Starting RFI Scheduler...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pl, err := pipeline.Setup(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to set up pipeline: %v", err)
	}
	defer pl.Close()

	// One worker: a daily run never overlaps the next
	scheduler := timer.NewScheduler(1)
	scheduler.Start()
	defer scheduler.Stop()
	fmt.Println("Scheduler started")

	err = timer.ScheduleDaily(scheduler, "daily-rfi-run", cfg.Schedule.DailyTime, func(now time.Time) {
		date := timer.PreviousDay(now)
		fmt.Printf("\n--- Running daily batch for %s ---\n", date)

		report, err := pl.RunDays(ctx, "scheduled", []string{date})
		if err != nil {
			log.Printf("Daily batch for %s failed: %v\n", date, err)
			return
		}
		fmt.Print(report.Summary())

		if report.HasFailures() {
			if err := pl.Notifier.SendRunReport(report); err != nil {
				log.Printf("Failed to email run report: %v\n", err)
			}
		}
		fmt.Printf("--- Daily batch for %s complete ---\n", date)
	})
	if err != nil {
		log.Fatalf("Failed to schedule daily run: %v", err)
	}

	fmt.Println("\n✓ RFI Scheduler is running")
	fmt.Println("✓ Press Ctrl+C to stop")

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down gracefully...")
	cancel()
}
