package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smukkama/rfi-pipeline/internal/notification"
	"github.com/smukkama/rfi-pipeline/internal/protocol"
	"github.com/smukkama/rfi-pipeline/internal/queue"
	"github.com/smukkama/rfi-pipeline/pkg/config"
)

const retryDelay = 30 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	fmt.Println("Starting RFI Notification Service...")

	notifier := notification.NewEmailNotifier(&cfg.SMTP)

	// Test SMTP connection (optional, will skip if not configured)
	if err := notifier.TestConnection(); err != nil {
		fmt.Printf("Note: %v (notifications will be logged only)\n", err)
	}

	consumer := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicAlarms, "notification-group")
	defer consumer.Close()
	fmt.Printf("Kafka consumer initialized on %s\n", cfg.Kafka.TopicAlarms)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Println("\n✓ RFI Notification Service is running")
	fmt.Println("✓ Press Ctrl+C to stop")

	go func() {
		for {
			msg, err := consumer.Consume(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("Failed to consume message: %v\n", err)
				continue
			}

			alarm, err := protocol.DecodeAlarmNotification(msg.Value)
			if err != nil {
				log.Printf("Failed to decode notification: %v\n", err)
				consumer.Commit(ctx, msg)
				continue
			}

			// The offset is only committed once the mail went out
			for {
				err := notifier.SendAlarmNotification(alarm)
				if err == nil {
					break
				}
				log.Printf("Failed to send notification for %s/%s, retrying in %s: %v\n",
					alarm.DeviceID, alarm.Metric, retryDelay, err)
				select {
				case <-time.After(retryDelay):
				case <-ctx.Done():
					return
				}
			}

			if err := consumer.Commit(ctx, msg); err != nil {
				log.Printf("Failed to commit offset: %v\n", err)
			}
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down gracefully...")
	cancel()
}
