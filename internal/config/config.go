package config

import (
	"fmt"
	"log"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Environment string `env:"ENV" env-default:"development"`
	LogLevel    string `env:"LOG_LEVEL"`
	DBDSN       string `env:"DB_DSN" env-required:"true"`
	DBMigrate   bool   `env:"DB_MIGRATE" env-default:"true"`

	TelegramToken        string `env:"TELEGRAM_TOKEN"`
	TelegramNotifyChatID int64  `env:"TELEGRAM_NOTIFY_CHAT_ID"`

	RedisAddr    string `env:"REDIS_ADDR"`
	AMQPURL      string `env:"AMQP_URL"`
	AMQPExchange string `env:"AMQP_EXCHANGE" env-default:"booking.events"`

	Booking     Booking
	Maintenance Maintenance
}

type Booking struct {
	HoldTTL           time.Duration `env:"BOOKING_HOLD_TTL" env-default:"10m"`
	MinNotice         time.Duration `env:"BOOKING_MIN_NOTICE" env-default:"2h"`
	ContentionRetries int           `env:"BOOKING_CONTENTION_RETRIES" env-default:"3"`
	SearchLimit       int           `env:"BOOKING_SEARCH_LIMIT" env-default:"20"`
}

type Maintenance struct {
	SweepSchedule     string `env:"MAINTENANCE_SWEEP_SCHEDULE" env-default:"@every 1m"`
	PartitionSchedule string `env:"MAINTENANCE_PARTITION_SCHEDULE" env-default:"@daily"`
	MonthsAhead       int    `env:"PARTITION_MONTHS_AHEAD" env-default:"3"`
	RetireAfterMonths int    `env:"PARTITION_RETIRE_AFTER_MONTHS" env-default:"0"`
}

func Load() (*Config, error) {
	// .env необязателен, переменные окружения имеют приоритет
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DBDSN == "" {
		return fmt.Errorf("DB_DSN is required but not set")
	}
	if c.Booking.ContentionRetries < 0 {
		return fmt.Errorf("BOOKING_CONTENTION_RETRIES must be >= 0, got %d", c.Booking.ContentionRetries)
	}
	if c.Maintenance.MonthsAhead < 0 {
		return fmt.Errorf("PARTITION_MONTHS_AHEAD must be >= 0, got %d", c.Maintenance.MonthsAhead)
	}
	if c.TelegramToken != "" && c.TelegramNotifyChatID == 0 {
		return fmt.Errorf("TELEGRAM_NOTIFY_CHAT_ID is required when TELEGRAM_TOKEN is set")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
