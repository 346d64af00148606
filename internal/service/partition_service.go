package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/booking_core/internal/model"
	"github.com/Freeeeeet/booking_core/internal/repository"
	"go.uber.org/zap"
)

// MinRetentionMonths нижняя граница возраста удаляемых секций; меньшее значение отклоняется
const MinRetentionMonths = 3

// PartitionService создаёт будущие месячные секции и удаляет только старые
type PartitionService struct {
	store  PartitionStore
	tables []string
	logger *zap.Logger
	now    func() time.Time
}

func NewPartitionService(store PartitionStore, logger *zap.Logger) *PartitionService {
	return &PartitionService{
		store:  store,
		tables: repository.PartitionedTables,
		logger: logger,
		now:    time.Now,
	}
}

// ListPartitions возвращает секции всех секционированных таблиц
func (s *PartitionService) ListPartitions(ctx context.Context) ([]model.Partition, error) {
	var all []model.Partition
	for _, table := range s.tables {
		parts, err := s.store.List(ctx, table)
		if err != nil {
			return nil, err
		}
		all = append(all, parts...)
	}
	return all, nil
}

// EnsureFuturePartitions создаёт недостающие секции с текущего месяца по месяц now+monthsAhead включительно.
// Ошибка одной секции не мешает создать остальные; отчёт возвращается вместе с ошибкой.
func (s *PartitionService) EnsureFuturePartitions(ctx context.Context, monthsAhead int) (*model.EnsureReport, error) {
	if monthsAhead < 0 {
		return nil, model.NewError(model.KindInvalidRequest, "months ahead must not be negative", nil)
	}

	report := &model.EnsureReport{}
	current := monthStart(s.now())
	var errs []error

	for _, table := range s.tables {
		existing, err := s.existingNames(ctx, table)
		if err != nil {
			return nil, err
		}

		for i := 0; i <= monthsAhead; i++ {
			from := current.AddDate(0, i, 0)
			name := repository.PartitionName(table, from)

			if existing[name] {
				report.AlreadyExisting = append(report.AlreadyExisting, name)
				continue
			}

			if err := s.store.Create(ctx, table, name, from, from.AddDate(0, 1, 0)); err != nil {
				s.logger.Error("Failed to create partition",
					zap.String("table", table),
					zap.String("partition", name),
					zap.Error(err),
				)
				errs = append(errs, err)
				continue
			}
			report.Created = append(report.Created, name)

			s.logger.Info("Partition created",
				zap.String("table", table),
				zap.String("partition", name),
			)
		}
	}

	return report, errors.Join(errs...)
}

func (s *PartitionService) existingNames(ctx context.Context, table string) (map[string]bool, error) {
	parts, err := s.store.List(ctx, table)
	if err != nil {
		return nil, err
	}
	names := make(map[string]bool, len(parts))
	for _, p := range parts {
		names[p.Name] = true
	}
	return names, nil
}

// RetireOldPartitions отсоединяет и удаляет секции, целиком лежащие раньше, чем minAgeMonths назад
// от начала текущего месяца. Секции по умолчанию и всё новее порога не трогаются никогда.
func (s *PartitionService) RetireOldPartitions(ctx context.Context, minAgeMonths int, dryRun bool) (*model.RetireReport, error) {
	if minAgeMonths < MinRetentionMonths {
		return nil, model.NewError(model.KindPartitionSafety,
			fmt.Sprintf("minimum age is %d months, got %d", MinRetentionMonths, minAgeMonths), nil)
	}

	cutoff := monthStart(s.now()).AddDate(0, -minAgeMonths, 0)
	report := &model.RetireReport{Cutoff: cutoff, DryRun: dryRun}

	for _, table := range s.tables {
		parts, err := s.store.List(ctx, table)
		if err != nil {
			return nil, err
		}

		for _, p := range parts {
			if p.IsDefault || p.RangeEnd.IsZero() || p.RangeEnd.After(cutoff) {
				report.Kept = append(report.Kept, p.Name)
				continue
			}

			if !dryRun {
				if err := s.store.Retire(ctx, table, p.Name); err != nil {
					return nil, err
				}
				s.logger.Info("Partition retired",
					zap.String("table", table),
					zap.String("partition", p.Name),
					zap.Int64("rows", p.RowCount),
				)
			}
			report.Retired = append(report.Retired, p.Name)
		}
	}

	return report, nil
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
