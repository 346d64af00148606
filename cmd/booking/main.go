package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/Freeeeeet/booking_core/internal/app"
	"github.com/Freeeeeet/booking_core/internal/config"
	"github.com/Freeeeeet/booking_core/internal/lock"
	"github.com/Freeeeeet/booking_core/internal/notifier"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment, cfg.LogLevel)
	defer logger.Sync()

	logger.Info("Starting booking core", zap.String("environment", cfg.Environment))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		logger.Fatal("Failed to create connection pool", zap.Error(err))
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}

	migrator, err := app.NewMigrator(pool, logger)
	if err != nil {
		logger.Fatal("Failed to create migrator", zap.Error(err))
	}
	defer migrator.Close()

	if cfg.DBMigrate {
		if err := migrator.Run(ctx); err != nil {
			logger.Fatal("Failed to apply migrations", zap.Error(err))
		}
	}

	sink, closeSinks := buildSinks(cfg, logger)
	defer closeSinks()

	core := app.NewCore(pool, migrator.DB(), sink, cfg, logger)

	// строки вне созданных секций попадают в DEFAULT, поэтому сбой здесь не мешает старту;
	// планировщик повторит попытку
	report, err := core.Partitions.EnsureFuturePartitions(ctx, cfg.Maintenance.MonthsAhead)
	if err != nil {
		logger.Error("Failed to ensure partitions", zap.Error(err))
	}
	if report != nil {
		logger.Info("Partitions ready",
			zap.Strings("created", report.Created),
			zap.Int("existing", len(report.AlreadyExisting)),
		)
	}

	var locker lock.Locker
	if cfg.RedisAddr != "" {
		redisLock, err := lock.NewRedisLock(cfg.RedisAddr)
		if err != nil {
			logger.Fatal("Failed to init redis lock", zap.Error(err))
		}
		defer redisLock.Close()
		locker = redisLock
	} else {
		logger.Warn("REDIS_ADDR is not set, maintenance jobs run without cross-instance lock")
	}

	scheduler, err := app.NewScheduler(core.Maintenance, locker, app.ScheduleConfig{
		SweepSchedule:     cfg.Maintenance.SweepSchedule,
		PartitionSchedule: cfg.Maintenance.PartitionSchedule,
		MonthsAhead:       cfg.Maintenance.MonthsAhead,
		RetireAfterMonths: cfg.Maintenance.RetireAfterMonths,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create scheduler", zap.Error(err))
	}

	scheduler.Start(ctx)
	logger.Info("Booking core is running")

	<-ctx.Done()

	logger.Info("Shutting down")
	shutdownDone := make(chan struct{})
	go func() {
		scheduler.Stop()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
	case <-time.After(30 * time.Second):
		logger.Warn("Scheduler did not stop in time")
	}
}

// buildSinks собирает настроенных получателей событий
func buildSinks(cfg *config.Config, logger *zap.Logger) (notifier.Sink, func()) {
	var (
		sinks   notifier.Fanout
		closers []func()
	)

	if cfg.AMQPURL != "" {
		publisher, err := notifier.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			logger.Fatal("Failed to connect to rabbitmq", zap.Error(err))
		}
		sinks = append(sinks, publisher)
		closers = append(closers, func() {
			if err := publisher.Close(); err != nil {
				logger.Warn("Failed to close rabbitmq connection", zap.Error(err))
			}
		})
		logger.Info("AMQP event sink enabled", zap.String("exchange", cfg.AMQPExchange))
	}

	if cfg.TelegramToken != "" {
		telegram, err := notifier.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramNotifyChatID)
		if err != nil {
			logger.Fatal("Failed to create telegram notifier", zap.Error(err))
		}
		sinks = append(sinks, telegram)
		logger.Info("Telegram event sink enabled", zap.Int64("chat_id", cfg.TelegramNotifyChatID))
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if len(sinks) == 0 {
		return notifier.Nop{}, closeAll
	}
	return sinks, closeAll
}
