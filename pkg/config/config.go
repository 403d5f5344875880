package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/smukkama/rfi-pipeline/internal/stats"
)

type Config struct {
	Pipeline PipelineConfig
	Schedule ScheduleConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Alerting AlertingConfig
	SMTP     SMTPConfig
}

type PipelineConfig struct {
	InputRoot      string
	OutputDir      string
	DeviceID       string
	DeviceFromPath bool
	DayWorkers     int
	FileWorkers    int
	StatWorkers    int
	ChunkSize      int
	Measures       string
	Decimals       int
	WriteJSON      bool
	RecordRuns     bool
	MigrationsDir  string
}

// StatsConfig returns the statistics engine configuration
func (p PipelineConfig) StatsConfig() (stats.Config, error) {
	measures, err := stats.ParseMeasures(p.Measures)
	if err != nil {
		return stats.Config{}, err
	}
	return stats.Config{
		Workers:   p.StatWorkers,
		ChunkSize: p.ChunkSize,
		Measures:  measures,
		Decimals:  p.Decimals,
	}, nil
}

type ScheduleConfig struct {
	DailyTime string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type RedisConfig struct {
	Enabled          bool
	Addr             string
	Password         string
	DB               int
	MatrixTTL        time.Duration
	CompressionLevel int
}

type KafkaConfig struct {
	Enabled       bool
	Brokers       []string
	TopicDays     string
	TopicAlarms   string
	NumPartitions int
	BatchSize     int
	FlushInterval time.Duration
}

type AlertingConfig struct {
	StateTTL time.Duration
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	config := &Config{
		Pipeline: PipelineConfig{
			InputRoot:      getEnv("RFI_INPUT_ROOT", "data/raw"),
			OutputDir:      getEnv("RFI_OUTPUT_DIR", "data/out"),
			DeviceID:       getEnv("RFI_DEVICE_ID", ""),
			DeviceFromPath: getEnvAsBool("RFI_DEVICE_FROM_PATH", true),
			DayWorkers:     getEnvAsInt("RFI_DAY_WORKERS", 2),
			FileWorkers:    getEnvAsInt("RFI_FILE_WORKERS", 8),
			StatWorkers:    getEnvAsInt("RFI_STAT_WORKERS", 4),
			ChunkSize:      getEnvAsInt("RFI_CHUNK_SIZE", 1000),
			Measures:       getEnv("RFI_MEASURES", "default"),
			Decimals:       getEnvAsInt("RFI_DECIMALS", 4),
			WriteJSON:      getEnvAsBool("RFI_WRITE_JSON", false),
			RecordRuns:     getEnvAsBool("RFI_RECORD_RUNS", false),
			MigrationsDir:  getEnv("RFI_MIGRATIONS_DIR", "migrations"),
		},
		Schedule: ScheduleConfig{
			DailyTime: getEnv("SCHEDULE_DAILY_TIME", "00:05"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "rfi_user"),
			Password: getEnv("DB_PASSWORD", "rfi_pass"),
			DBName:   getEnv("DB_NAME", "rfi_db"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Enabled:          getEnvAsBool("REDIS_ENABLED", false),
			Addr:             getEnv("REDIS_ADDR", "localhost:6379"),
			Password:         getEnv("REDIS_PASSWORD", ""),
			DB:               getEnvAsInt("REDIS_DB", 0),
			MatrixTTL:        getEnvAsDuration("REDIS_MATRIX_TTL", 72*time.Hour),
			CompressionLevel: getEnvAsInt("REDIS_COMPRESSION_LEVEL", 2),
		},
		Kafka: KafkaConfig{
			Enabled:       getEnvAsBool("KAFKA_ENABLED", false),
			Brokers:       strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			TopicDays:     getEnv("KAFKA_TOPIC_DAYS", "rfi.days.processed"),
			TopicAlarms:   getEnv("KAFKA_TOPIC_ALARMS", "rfi.alarms"),
			NumPartitions: getEnvAsInt("KAFKA_NUM_PARTITIONS", 4),
			BatchSize:     getEnvAsInt("KAFKA_BATCH_SIZE", 100),
			FlushInterval: getEnvAsDuration("KAFKA_FLUSH_INTERVAL", 5*time.Second),
		},
		Alerting: AlertingConfig{
			StateTTL: getEnvAsDuration("ALARM_STATE_TTL", 30*24*time.Hour),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", "smtp.gmail.com"),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "rfi-pipeline@example.com"),
			To:       getEnv("SMTP_TO", "admin@example.com"),
		},
	}

	return config, nil
}

// Validate reports every invalid setting at once
func (c *Config) Validate() error {
	var errs []error

	p := c.Pipeline
	if p.InputRoot == "" {
		errs = append(errs, errors.New("input root is required"))
	}
	if p.OutputDir == "" {
		errs = append(errs, errors.New("output dir is required"))
	}
	if p.DeviceID == "" && !p.DeviceFromPath {
		errs = append(errs, errors.New("device id is required unless devices come from the input path"))
	}
	if p.DayWorkers <= 0 || p.FileWorkers <= 0 || p.StatWorkers <= 0 {
		errs = append(errs, fmt.Errorf("worker counts must be positive (day=%d file=%d stat=%d)",
			p.DayWorkers, p.FileWorkers, p.StatWorkers))
	}
	if p.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunk size must be positive, got %d", p.ChunkSize))
	}
	if p.Decimals < 0 {
		errs = append(errs, fmt.Errorf("decimals must not be negative, got %d", p.Decimals))
	}
	if _, err := stats.ParseMeasures(p.Measures); err != nil {
		errs = append(errs, err)
	}

	if c.Redis.Enabled && (c.Redis.CompressionLevel < 1 || c.Redis.CompressionLevel > 4) {
		errs = append(errs, fmt.Errorf("redis compression level must be 1-4, got %d", c.Redis.CompressionLevel))
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Brokers[0] == "") {
		errs = append(errs, errors.New("kafka brokers are required when kafka is enabled"))
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
