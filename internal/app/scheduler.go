package app

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/booking_core/internal/lock"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	sweepJob     = "hold-sweep"
	partitionJob = "partition-maintenance"
	jobLockTTL   = 5 * time.Minute
)

// Maintenance фоновые операции, которые запускает планировщик
type Maintenance interface {
	SweepExpiredHolds(ctx context.Context) (int, error)
	MaintainPartitions(ctx context.Context, monthsAhead, retireAfterMonths int) error
}

// ScheduleConfig расписания в формате cron и параметры секций
type ScheduleConfig struct {
	SweepSchedule     string
	PartitionSchedule string
	MonthsAhead       int
	RetireAfterMonths int
}

// Scheduler управляет фоновыми задачами
type Scheduler struct {
	cron        *cron.Cron
	maintenance Maintenance
	locker      lock.Locker
	cfg         ScheduleConfig
	logger      *zap.Logger
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewScheduler создаёт планировщик; locker может быть nil, тогда задачи выполняются без межпроцессной блокировки
func NewScheduler(maintenance Maintenance, locker lock.Locker, cfg ScheduleConfig, logger *zap.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:        cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		maintenance: maintenance,
		locker:      locker,
		cfg:         cfg,
		logger:      logger,
	}

	if _, err := s.cron.AddFunc(cfg.SweepSchedule, func() { s.run(sweepJob, s.sweep) }); err != nil {
		return nil, fmt.Errorf("schedule %s %q: %w", sweepJob, cfg.SweepSchedule, err)
	}
	if _, err := s.cron.AddFunc(cfg.PartitionSchedule, func() { s.run(partitionJob, s.partitions) }); err != nil {
		return nil, fmt.Errorf("schedule %s %q: %w", partitionJob, cfg.PartitionSchedule, err)
	}

	return s, nil
}

// Start запускает фоновые задачи
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.logger.Info("Starting background scheduler",
		zap.String("sweep_schedule", s.cfg.SweepSchedule),
		zap.String("partition_schedule", s.cfg.PartitionSchedule),
	)
	s.cron.Start()
}

// Stop останавливает планировщик и ждёт завершения запущенных задач
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background scheduler")
	done := s.cron.Stop()
	if s.cancel != nil {
		s.cancel()
	}
	<-done.Done()
}

func (s *Scheduler) run(name string, job func(ctx context.Context) error) {
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	if s.locker != nil {
		acquired, err := s.locker.Lock(ctx, name, jobLockTTL)
		if err != nil {
			s.logger.Error("Failed to acquire job lock", zap.String("job", name), zap.Error(err))
			return
		}
		if !acquired {
			s.logger.Debug("Job is running on another instance", zap.String("job", name))
			return
		}
		defer func() {
			if err := s.locker.Unlock(context.Background(), name); err != nil {
				s.logger.Warn("Failed to release job lock", zap.String("job", name), zap.Error(err))
			}
		}()
	}

	start := time.Now()
	if err := job(ctx); err != nil {
		s.logger.Error("Background job failed", zap.String("job", name), zap.Error(err))
		return
	}
	s.logger.Debug("Background job completed", zap.String("job", name), zap.Duration("took", time.Since(start)))
}

func (s *Scheduler) sweep(ctx context.Context) error {
	n, err := s.maintenance.SweepExpiredHolds(ctx)
	if n > 0 {
		s.logger.Info("Expired holds reclaimed", zap.Int("count", n))
	}
	return err
}

func (s *Scheduler) partitions(ctx context.Context) error {
	return s.maintenance.MaintainPartitions(ctx, s.cfg.MonthsAhead, s.cfg.RetireAfterMonths)
}
