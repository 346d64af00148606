package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Freeeeeet/booking_core/internal/repository/base"
	"go.uber.org/zap"
)

// MaintenanceService фоновые задачи, обходящие всех арендаторов
type MaintenanceService struct {
	db         base.Querier
	catalog    CatalogStore
	holds      *HoldService
	partitions *PartitionService
	logger     *zap.Logger
}

func NewMaintenanceService(db base.Querier, repos Repositories, holds *HoldService, partitions *PartitionService, logger *zap.Logger) *MaintenanceService {
	return &MaintenanceService{
		db:         db,
		catalog:    repos.Catalog,
		holds:      holds,
		partitions: partitions,
		logger:     logger,
	}
}

// SweepExpiredHolds снимает просроченные удержания у каждой активной организации,
// каждую в своей транзакции. Ошибка одного арендатора не останавливает остальных.
func (s *MaintenanceService) SweepExpiredHolds(ctx context.Context) (int, error) {
	ids, err := s.catalog.ListActiveOrganizationIDs(ctx, s.db)
	if err != nil {
		return 0, err
	}

	total := 0
	var errs []error
	for _, id := range ids {
		n, err := s.holds.ReclaimExpired(ctx, id)
		if err != nil {
			s.logger.Error("Failed to reclaim expired holds",
				zap.String("tenant_id", id.String()),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("tenant %s: %w", id, err))
			continue
		}
		total += n
	}

	return total, errors.Join(errs...)
}

// MaintainPartitions создаёт будущие секции и, если retireAfterMonths > 0, удаляет старые.
// Удаление выполняется, даже если часть секций создать не удалось.
func (s *MaintenanceService) MaintainPartitions(ctx context.Context, monthsAhead, retireAfterMonths int) error {
	var errs []error

	report, err := s.partitions.EnsureFuturePartitions(ctx, monthsAhead)
	if err != nil {
		errs = append(errs, fmt.Errorf("ensure partitions: %w", err))
	}
	if report != nil {
		s.logger.Info("Partitions ensured",
			zap.Int("created", len(report.Created)),
			zap.Int("existing", len(report.AlreadyExisting)),
		)
	}

	if retireAfterMonths <= 0 {
		return errors.Join(errs...)
	}

	retired, err := s.partitions.RetireOldPartitions(ctx, retireAfterMonths, false)
	if err != nil {
		errs = append(errs, fmt.Errorf("retire partitions: %w", err))
		return errors.Join(errs...)
	}
	s.logger.Info("Old partitions retired",
		zap.Strings("retired", retired.Retired),
		zap.Time("cutoff", retired.Cutoff),
	)

	return errors.Join(errs...)
}
