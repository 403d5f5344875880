package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/smukkama/rfi-pipeline/internal/artifact"
	"github.com/smukkama/rfi-pipeline/internal/batch"
	"github.com/smukkama/rfi-pipeline/internal/cache"
	"github.com/smukkama/rfi-pipeline/internal/trace"
	"github.com/smukkama/rfi-pipeline/internal/trend"
	"github.com/smukkama/rfi-pipeline/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	root := flag.String("matrices", cfg.Pipeline.OutputDir, "directory holding {date}_matrix.csv artifacts")
	device := flag.String("device", "", "device to extract (default all devices found)")
	ghz := flag.Float64("freq", 0, "frequency to extract, in GHz")
	out := flag.String("out", "trend", "output directory")
	workers := flag.Int("workers", cfg.Pipeline.FileWorkers, "matrix files read concurrently")
	flag.Parse()

	if *ghz <= 0 {
		log.Fatalf("A positive -freq is required")
	}
	f := trace.FrequencyFromGHz(*ghz)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	files, err := batch.DiscoverMatrices(*root)
	if err != nil {
		log.Fatalf("Failed to discover matrices: %v", err)
	}

	byDevice := make(map[string][]batch.MatrixFile)
	var devices []string
	for _, mf := range files {
		if *device != "" && mf.DeviceID != *device {
			continue
		}
		if _, ok := byDevice[mf.DeviceID]; !ok {
			devices = append(devices, mf.DeviceID)
		}
		byDevice[mf.DeviceID] = append(byDevice[mf.DeviceID], mf)
	}
	if len(devices) == 0 {
		log.Fatalf("No matrix files found under %s", *root)
	}

	extractor := trend.NewExtractor(*workers)
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()

		comp, err := cache.NewCompressor(cfg.Redis.CompressionLevel)
		if err != nil {
			log.Fatalf("Failed to create compressor: %v", err)
		}
		defer comp.Close()

		if err := client.Ping(ctx).Err(); err != nil {
			log.Printf("Redis unavailable, reading matrix files only: %v\n", err)
		} else {
			extractor.WithSource(cache.NewMatrixCache(client, comp, cfg.Redis.MatrixTTL))
			fmt.Println("Reading cached matrices from Redis")
		}
	}
	powerName, outlierName := trend.FileNames(f)

	for _, dev := range devices {
		series, err := extractor.Extract(ctx, dev, f, byDevice[dev])
		if err != nil {
			log.Fatalf("Failed to extract %s GHz for %s: %v", f, dev, err)
		}
		if len(series.Missing) > 0 {
			fmt.Printf("%s: %s GHz not present on %d day(s)\n", dev, f, len(series.Missing))
		}

		set := &artifact.Set{}
		dir := filepath.Join(*out, dev)
		err = set.Write(filepath.Join(dir, powerName), series.WritePowerCSV)
		if err == nil {
			err = set.Write(filepath.Join(dir, outlierName), func(w io.Writer) error {
				return series.WriteOutliersCSV(w, cfg.Pipeline.Decimals)
			})
		}
		if err != nil {
			set.Remove()
			log.Fatalf("Failed to write trend for %s: %v", dev, err)
		}

		fmt.Printf("%s: %d readings over %d day(s) -> %s\n", dev, len(series.Points), len(series.Days), dir)
	}
}
