package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/smukkama/rfi-pipeline/internal/alarming"
	"github.com/smukkama/rfi-pipeline/internal/database"
	"github.com/smukkama/rfi-pipeline/internal/protocol"
	"github.com/smukkama/rfi-pipeline/internal/queue"
	"github.com/smukkama/rfi-pipeline/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	fmt.Println("Starting Alarming Service...")

	// Connect to database
	db, err := database.Connect(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	fmt.Println("Connected to database")

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	fmt.Println("Connected to Redis")

	stateManager := alarming.NewStateManager(redisClient, cfg.Alerting.StateTTL)
	if states, err := stateManager.GetAllStates(ctx); err == nil {
		fmt.Printf("Loaded %d open alarm states\n", len(states))
	}

	// Create alarm producer (for notifications)
	alarmProducer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicAlarms)
	defer alarmProducer.Close()
	fmt.Println("Alarm notification producer initialized")

	evaluator := alarming.NewEvaluator(db, stateManager, alarmProducer)

	// Day events are evaluated in order per device
	consumer := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicDays, "alarming-group")
	defer consumer.Close()
	fmt.Println("Kafka consumer initialized")

	fmt.Println("\n✓ Alarming Service is running")
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

			ev, err := protocol.DecodeDayProcessedEvent(msg.Value)
			if err != nil {
				log.Printf("Failed to decode day event: %v\n", err)
				consumer.Commit(ctx, msg)
				continue
			}

			if err := evaluator.EvaluateDay(ctx, ev); err != nil {
				log.Printf("Failed to evaluate %s/%s: %v\n", ev.DeviceID, ev.Date, err)
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
