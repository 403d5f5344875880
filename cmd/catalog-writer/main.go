package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smukkama/rfi-pipeline/internal/database"
	"github.com/smukkama/rfi-pipeline/internal/queue"
	"github.com/smukkama/rfi-pipeline/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	fmt.Println("Starting Catalog Writer Service...")
	db, err := database.Connect(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	fmt.Println("Connected to database")

	if err := db.RunMigrations(cfg.Pipeline.MigrationsDir); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	if err := queue.CreateTopic(cfg.Kafka.Brokers, cfg.Kafka.TopicDays, cfg.Kafka.NumPartitions, 1); err != nil {
		fmt.Printf("Warning: could not ensure topic %s: %v\n", cfg.Kafka.TopicDays, err)
	}

	consumer := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicDays, "catalog-writer-group")
	defer consumer.Close()
	fmt.Println("Kafka consumer created (registering with broker...)")

	writer := queue.NewCatalogWriter(consumer, db, cfg.Kafka.BatchSize, cfg.Kafka.FlushInterval)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := writer.Start(ctx); err != nil {
		log.Fatalf("Failed to start catalog writer: %v", err)
	}
	fmt.Println("Catalog writer started")

	// Print consumer stats periodically
	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				stats := consumer.Stats()
				fmt.Printf("Consumer stats: Messages=%d, Bytes=%d, Errors=%d\n",
					stats.Messages, stats.Bytes, stats.Errors)
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Println("\n✓ Catalog Writer Service is running")
	fmt.Printf("✓ Consuming %s and writing to PostgreSQL\n", cfg.Kafka.TopicDays)
	fmt.Printf("✓ Batch size: %d events | Flush interval: %s\n", cfg.Kafka.BatchSize, cfg.Kafka.FlushInterval)
	fmt.Println("✓ Press Ctrl+C to stop")

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down gracefully...")
	writer.Stop()
	fmt.Println("Catalog Writer Service stopped")
}
