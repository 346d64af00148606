package app

import (
	"database/sql"

	"github.com/Freeeeeet/booking_core/internal/config"
	"github.com/Freeeeeet/booking_core/internal/repository"
	"github.com/Freeeeeet/booking_core/internal/repository/base"
	"github.com/Freeeeeet/booking_core/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Core сервисы бронирования, собранные поверх одного пула.
// Внешние слои (HTTP, агент) работают только через эти сервисы.
type Core struct {
	Availability *service.AvailabilityService
	Holds        *service.HoldService
	Booking      *service.BookingService
	Partitions   *service.PartitionService
	Maintenance  *service.MaintenanceService
}

func NewCore(pool *pgxpool.Pool, catalogDB *sql.DB, sink service.EventPublisher, cfg *config.Config, logger *zap.Logger) *Core {
	gate := base.NewTenantGate(pool)
	repos := service.NewRepositories()

	availability := service.NewAvailabilityService(gate, repos, cfg.Booking.SearchLimit, logger)
	holds := service.NewHoldService(gate, repos, sink, cfg.Booking.HoldTTL, logger)
	booking := service.NewBookingService(gate, repos, availability, holds, sink, service.BookingOptions{
		HoldTTL:           cfg.Booking.HoldTTL,
		MinNotice:         cfg.Booking.MinNotice,
		ContentionRetries: cfg.Booking.ContentionRetries,
	}, logger)
	partitions := service.NewPartitionService(repository.NewPartitionRepository(catalogDB), logger)

	return &Core{
		Availability: availability,
		Holds:        holds,
		Booking:      booking,
		Partitions:   partitions,
		Maintenance:  service.NewMaintenanceService(pool, repos, holds, partitions, logger),
	}
}
