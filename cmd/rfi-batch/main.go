package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/smukkama/rfi-pipeline/internal/batch"
	"github.com/smukkama/rfi-pipeline/internal/pipeline"
	"github.com/smukkama/rfi-pipeline/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	p := &cfg.Pipeline
	flag.StringVar(&p.InputRoot, "input", p.InputRoot, "root directory of raw trace files")
	flag.StringVar(&p.OutputDir, "output", p.OutputDir, "directory for matrix and summary artifacts")
	flag.StringVar(&p.DeviceID, "device", p.DeviceID, "device ID for files not under a device directory")
	flag.BoolVar(&p.DeviceFromPath, "device-from-path", p.DeviceFromPath, "take the device from the first directory under -input")
	flag.IntVar(&p.DayWorkers, "day-workers", p.DayWorkers, "device-days processed concurrently")
	flag.IntVar(&p.FileWorkers, "file-workers", p.FileWorkers, "trace files parsed concurrently per day")
	flag.IntVar(&p.StatWorkers, "stat-workers", p.StatWorkers, "statistics workers per day")
	flag.IntVar(&p.ChunkSize, "chunk-size", p.ChunkSize, "frequencies per statistics work unit")
	flag.StringVar(&p.Measures, "measures", p.Measures, "comma separated summary measures, or default/all")
	flag.IntVar(&p.Decimals, "decimals", p.Decimals, "decimal places in summary artifacts")
	flag.BoolVar(&p.WriteJSON, "json", p.WriteJSON, "also write the matrix JSON payload")
	flag.BoolVar(&p.RecordRuns, "record", p.RecordRuns, "record the run in the Postgres catalog")
	dates := flag.String("dates", "", "comma separated YYYYMMDD dates to process (default all)")
	fromMatrices := flag.String("from-matrices", "", "recompute statistics from matrix artifacts under this directory")
	emailReport := flag.Bool("email-report", false, "email the run report")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	fmt.Println("Starting RFI batch run...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pl, err := pipeline.Setup(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to set up pipeline: %v", err)
	}
	defer pl.Close()

	var days []string
	if *dates != "" {
		for _, d := range strings.Split(*dates, ",") {
			days = append(days, strings.TrimSpace(d))
		}
	}

	var report *batch.Report
	if *fromMatrices != "" {
		report, err = pl.RunMatrices(ctx, "manual", *fromMatrices)
	} else {
		report, err = pl.RunDays(ctx, "manual", days)
	}
	if err != nil {
		pl.Close()
		log.Fatalf("Batch run failed: %v", err)
	}

	fmt.Print(report.Summary())

	if *emailReport {
		if err := pl.Notifier.SendRunReport(report); err != nil {
			log.Printf("Failed to email run report: %v\n", err)
		}
	}

	if report.HasFailures() {
		pl.Close()
		os.Exit(1)
	}
}
