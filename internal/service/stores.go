package service

import (
	"context"
	"time"

	"github.com/Freeeeeet/booking_core/internal/model"
	"github.com/Freeeeeet/booking_core/internal/repository"
	"github.com/Freeeeeet/booking_core/internal/repository/base"
	"github.com/Freeeeeet/booking_core/internal/schedule"
	"github.com/google/uuid"
)

// Transactor открывает транзакции, привязанные к арендатору
type Transactor interface {
	InTenantTx(ctx context.Context, tenantID uuid.UUID, fn base.TxFunc) error
	InTenantReadTx(ctx context.Context, tenantID uuid.UUID, fn base.TxFunc) error
}

type SlotStore interface {
	LockNoWait(ctx context.Context, q base.Querier, id uuid.UUID) (*model.TimeSlot, error)
	MarkHeld(ctx context.Context, q base.Querier, id uuid.UUID, holderRef string, expiresAt time.Time) (int64, error)
	ReleaseHold(ctx context.Context, q base.Querier, id uuid.UUID, holderRef string) (bool, error)
	Occupy(ctx context.Context, q base.Querier, id, appointmentID uuid.UUID) (int64, error)
	Release(ctx context.Context, q base.Querier, id, appointmentID uuid.UUID) (bool, error)
	ReclaimExpired(ctx context.Context, q base.Querier, now time.Time, limit int) ([]uuid.UUID, error)
	Search(ctx context.Context, q base.Querier, f repository.SlotFilter) ([]model.CandidateSlot, error)
}

type AppointmentStore interface {
	NextCodeSeq(ctx context.Context, q base.Querier, organizationID uuid.UUID, day time.Time) (int, error)
	Insert(ctx context.Context, q base.Querier, a *model.Appointment) error
	LockByCode(ctx context.Context, q base.Querier, organizationID uuid.UUID, code string) (*model.Appointment, error)
	Reschedule(ctx context.Context, q base.Querier, a *model.Appointment, previousDate time.Time) error
	Cancel(ctx context.Context, q base.Querier, a *model.Appointment, reason string, cancelledAt time.Time) error
	BusyIntervals(ctx context.Context, q base.Querier, professionalID uuid.UUID, day time.Time, excludeID *uuid.UUID) ([]schedule.Interval, error)
	FindByPhone(ctx context.Context, q base.Querier, pq repository.PhoneQuery) ([]model.Appointment, error)
}

type CatalogStore interface {
	GetOrganization(ctx context.Context, q base.Querier, id uuid.UUID) (*model.Organization, error)
	ListActiveOrganizationIDs(ctx context.Context, q base.Querier) ([]uuid.UUID, error)
	GetService(ctx context.Context, q base.Querier, id uuid.UUID) (*model.Service, error)
	ProfessionalBookable(ctx context.Context, q base.Querier, professionalID uuid.UUID, serviceID *uuid.UUID) (bool, error)
}

type ClientStore interface {
	FindByPhone(ctx context.Context, q base.Querier, organizationID uuid.UUID, digits string) (*model.Client, error)
	Create(ctx context.Context, q base.Querier, c *model.Client) error
}

type BlockedPeriodStore interface {
	Overlapping(ctx context.Context, q base.Querier, professionalID uuid.UUID, start, end time.Time) ([]model.BlockedPeriod, error)
}

type EventStore interface {
	Append(ctx context.Context, q base.Querier, ev *model.SystemEvent) error
}

// EventPublisher получатель событий после коммита (очередь, чат операторов)
type EventPublisher interface {
	Publish(ctx context.Context, ev model.SystemEvent) error
}

type PartitionStore interface {
	List(ctx context.Context, parent string) ([]model.Partition, error)
	Create(ctx context.Context, parent, name string, from, to time.Time) error
	Retire(ctx context.Context, parent, name string) error
}

// Repositories набор хранилищ, с которыми работают сервисы
type Repositories struct {
	Slots        SlotStore
	Appointments AppointmentStore
	Catalog      CatalogStore
	Clients      ClientStore
	Blocked      BlockedPeriodStore
	Events       EventStore
}

// NewRepositories собирает репозитории PostgreSQL
func NewRepositories() Repositories {
	return Repositories{
		Slots:        repository.NewSlotRepository(),
		Appointments: repository.NewAppointmentRepository(),
		Catalog:      repository.NewCatalogRepository(),
		Clients:      repository.NewClientRepository(),
		Blocked:      repository.NewBlockedPeriodRepository(),
		Events:       repository.NewEventRepository(),
	}
}
