// Package pipeline wires configuration into a batch orchestrator and the
// optional catalog, cache and event sinks shared by the batch binaries.
package pipeline

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/smukkama/rfi-pipeline/internal/batch"
	"github.com/smukkama/rfi-pipeline/internal/cache"
	"github.com/smukkama/rfi-pipeline/internal/database"
	"github.com/smukkama/rfi-pipeline/internal/matrix"
	"github.com/smukkama/rfi-pipeline/internal/notification"
	"github.com/smukkama/rfi-pipeline/internal/queue"
	"github.com/smukkama/rfi-pipeline/internal/stats"
	"github.com/smukkama/rfi-pipeline/pkg/config"
)

// Pipeline is a configured orchestrator plus the connections it owns
type Pipeline struct {
	cfg          *config.Config
	Orchestrator *batch.Orchestrator
	DB           *database.DB
	Notifier     *notification.EmailNotifier
	closers      []func()
}

// Setup builds the orchestrator and connects the sinks enabled in cfg
func Setup(ctx context.Context, cfg *config.Config) (*Pipeline, error) {
	statsCfg, err := cfg.Pipeline.StatsConfig()
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:      cfg,
		Notifier: notification.NewEmailNotifier(&cfg.SMTP),
	}
	p.Orchestrator = batch.New(
		batch.Config{
			OutputDir:  cfg.Pipeline.OutputDir,
			DayWorkers: cfg.Pipeline.DayWorkers,
			WriteJSON:  cfg.Pipeline.WriteJSON,
		},
		matrix.NewBuilder(cfg.Pipeline.FileWorkers),
		stats.NewEngine(statsCfg),
	)

	if cfg.Pipeline.RecordRuns {
		db, err := database.Connect(cfg.Database.ConnectionString())
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		p.closers = append(p.closers, func() { db.Close() })
		if err := db.RunMigrations(cfg.Pipeline.MigrationsDir); err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		p.DB = db
		fmt.Println("Connected to database")
	}

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		p.closers = append(p.closers, func() { client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}

		comp, err := cache.NewCompressor(cfg.Redis.CompressionLevel)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.closers = append(p.closers, comp.Close)

		p.Orchestrator.AddSink(cache.NewMatrixCache(client, comp, cfg.Redis.MatrixTTL))
		fmt.Println("Matrix cache enabled")
	}

	if cfg.Kafka.Enabled {
		if err := queue.CreateTopic(cfg.Kafka.Brokers, cfg.Kafka.TopicDays, cfg.Kafka.NumPartitions, 1); err != nil {
			fmt.Printf("Warning: could not ensure topic %s: %v\n", cfg.Kafka.TopicDays, err)
		}
		producer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicDays)
		p.closers = append(p.closers, func() { producer.Close() })

		p.Orchestrator.AddSink(queue.NewEventSink(producer))
		fmt.Println("Day event producer initialized")
	}

	return p, nil
}

// Close releases connections in reverse order of creation
func (p *Pipeline) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
	p.closers = nil
}

// RunDays discovers the trace files of the given dates (all dates when
// empty) and processes them. The run is recorded in the catalog when one is
// connected.
func (p *Pipeline) RunDays(ctx context.Context, trigger string, dates []string) (*batch.Report, error) {
	groups, err := batch.Discover(p.cfg.Pipeline.InputRoot, batch.DiscoverOptions{
		DeviceID:       p.cfg.Pipeline.DeviceID,
		DeviceFromPath: p.cfg.Pipeline.DeviceFromPath,
		Dates:          dates,
	})
	if err != nil {
		return nil, err
	}
	fmt.Printf("Discovered %d device-days under %s\n", len(groups), p.cfg.Pipeline.InputRoot)

	report := p.Orchestrator.Run(ctx, groups)
	p.record(trigger, report)
	return report, nil
}

// RunMatrices recomputes statistics for existing matrix artifacts
func (p *Pipeline) RunMatrices(ctx context.Context, trigger, root string) (*batch.Report, error) {
	files, err := batch.DiscoverMatrices(root)
	if err != nil {
		return nil, err
	}
	fmt.Printf("Discovered %d matrix files under %s\n", len(files), root)

	report := p.Orchestrator.RunMatrices(ctx, files)
	p.record(trigger, report)
	return report, nil
}

func (p *Pipeline) record(trigger string, report *batch.Report) {
	if p.DB == nil {
		return
	}

	run := &database.Run{
		RunID:      report.RunID.String(),
		Trigger:    trigger,
		InputRoot:  p.cfg.Pipeline.InputRoot,
		OutputDir:  p.cfg.Pipeline.OutputDir,
		StartedAt:  report.Started,
		FinishedAt: report.Finished,
		Processed:  report.Processed,
		Skipped:    report.Skipped,
		Failed:     report.Failed,
	}
	if err := p.DB.InsertRun(run); err != nil {
		fmt.Printf("Failed to record run %s: %v\n", run.RunID, err)
	}
}
