package service

import (
	"context"
	"time"

	"github.com/Freeeeeet/booking_core/internal/model"
	"github.com/Freeeeeet/booking_core/internal/repository"
	"github.com/Freeeeeet/booking_core/internal/repository/base"
	"github.com/Freeeeeet/booking_core/internal/schedule"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const (
	DefaultSearchLimit = 20
	maxSearchDays      = 31
)

// SearchRequest фильтры поиска свободных слотов
type SearchRequest struct {
	ProfessionalID *uuid.UUID
	ServiceID      *uuid.UUID
	// Date естественное выражение ("завтра", "2025-06-15"); пусто означает сегодня
	Date string
	// Days длина диапазона в днях начиная с Date
	Days  int
	Shift string
	// DurationMinutes требуемая длительность, если услуга не указана
	DurationMinutes int
	Limit           int
}

// slotQuery внутренний запрос поиска, общий для поиска, создания и переноса записи
type slotQuery struct {
	org                  *model.Organization
	service              *model.Service
	professionalID       *uuid.UUID
	date                 string
	days                 int
	shift                string
	durationMinutes      int
	limit                int
	excludeAppointmentID *uuid.UUID
}

type AvailabilityService struct {
	tx     Transactor
	repos  Repositories
	limit  int
	logger *zap.Logger
	now    func() time.Time
}

func NewAvailabilityService(tx Transactor, repos Repositories, limit int, logger *zap.Logger) *AvailabilityService {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	return &AvailabilityService{
		tx:     tx,
		repos:  repos,
		limit:  limit,
		logger: logger,
		now:    time.Now,
	}
}

// SearchAvailability возвращает свободные слоты, сгруппированные по специалисту и дате.
// Только чтение: состояние слотов не меняется.
func (s *AvailabilityService) SearchAvailability(ctx context.Context, tenantID uuid.UUID, req SearchRequest) ([]model.SlotGroup, error) {
	if req.Days < 0 || req.Days > maxSearchDays {
		return nil, model.NewError(model.KindInvalidRequest, "days must be between 0 and 31", nil)
	}
	if req.DurationMinutes < 0 {
		return nil, model.NewError(model.KindInvalidRequest, "duration must not be negative", nil)
	}

	var groups []model.SlotGroup
	err := s.tx.InTenantReadTx(ctx, tenantID, func(ctx context.Context, tx pgx.Tx) error {
		org, err := loadOrganization(ctx, tx, s.repos.Catalog, tenantID)
		if err != nil {
			return err
		}

		var svc *model.Service
		if req.ServiceID != nil {
			svc, err = loadService(ctx, tx, s.repos.Catalog, tenantID, *req.ServiceID)
			if err != nil {
				return err
			}
		}

		limit := req.Limit
		if limit <= 0 || limit > s.limit {
			limit = s.limit
		}

		candidates, res, err := s.candidates(ctx, tx, slotQuery{
			org:             org,
			service:         svc,
			professionalID:  req.ProfessionalID,
			date:            req.Date,
			days:            req.Days,
			shift:           req.Shift,
			durationMinutes: req.DurationMinutes,
			limit:           limit,
		})
		if err != nil {
			return err
		}

		if !res.Recognized {
			s.logger.Debug("Date expression not recognized, searching from today",
				zap.String("tenant_id", tenantID.String()),
				zap.String("date", req.Date),
			)
		}

		groups = GroupSlots(candidates, org.Location())
		return nil
	})
	if err != nil {
		return nil, err
	}

	return groups, nil
}

// candidates ищет слоты в уже открытой транзакции арендатора
func (s *AvailabilityService) candidates(ctx context.Context, q base.Querier, sq slotQuery) ([]model.CandidateSlot, schedule.Resolution, error) {
	loc := sq.org.Location()
	now := s.now().In(loc)
	res := schedule.Resolve(sq.date, sq.shift, now)

	days := sq.days
	if days == 0 {
		days = 1
	}

	filter := repository.SlotFilter{
		OrganizationID:       sq.org.ID,
		ProfessionalID:       sq.professionalID,
		From:                 res.Date,
		To:                   res.Date.AddDate(0, 0, days),
		Window:               res.Window,
		Timezone:             loc.String(),
		RequiredMinutes:      sq.durationMinutes,
		ExcludeAppointmentID: sq.excludeAppointmentID,
		Limit:                sq.limit,
	}
	// прошедшие слоты не предлагаются
	if filter.From.Before(now) {
		filter.From = now
	}
	if sq.service != nil {
		filter.ServiceID = &sq.service.ID
		filter.RequiredMinutes = sq.service.DurationMinutes + sq.service.BufferMinutes
	}

	candidates, err := s.repos.Slots.Search(ctx, q, filter)
	if err != nil {
		return nil, res, err
	}

	return candidates, res, nil
}

// GroupSlots группирует слоты по специалисту и дате в часовом поясе организации.
// Порядок групп и слотов внутри сохраняется, повторы отбрасываются.
func GroupSlots(candidates []model.CandidateSlot, loc *time.Location) []model.SlotGroup {
	type groupKey struct {
		professionalID uuid.UUID
		date           string
	}

	var groups []model.SlotGroup
	index := make(map[groupKey]int)
	seen := make(map[uuid.UUID]bool)

	for _, c := range candidates {
		if seen[c.SlotID] {
			continue
		}
		seen[c.SlotID] = true

		key := groupKey{professionalID: c.ProfessionalID, date: c.StartAt.In(loc).Format("2006-01-02")}
		i, ok := index[key]
		if !ok {
			groups = append(groups, model.SlotGroup{
				ProfessionalID:   c.ProfessionalID,
				ProfessionalName: c.ProfessionalName,
				Date:             key.date,
			})
			i = len(groups) - 1
			index[key] = i
		}
		groups[i].Slots = append(groups[i].Slots, c)
	}

	return groups
}

func loadOrganization(ctx context.Context, q base.Querier, catalog CatalogStore, tenantID uuid.UUID) (*model.Organization, error) {
	org, err := catalog.GetOrganization(ctx, q, tenantID)
	if err != nil {
		return nil, err
	}
	if org == nil || !org.IsActive {
		return nil, model.NewError(model.KindInvalidRequest, "organization not found or inactive", nil)
	}
	return org, nil
}

func loadService(ctx context.Context, q base.Querier, catalog CatalogStore, tenantID, serviceID uuid.UUID) (*model.Service, error) {
	svc, err := catalog.GetService(ctx, q, serviceID)
	if err != nil {
		return nil, err
	}
	if svc == nil || !svc.IsActive || svc.OrganizationID != tenantID {
		return nil, model.ErrServiceNotFound
	}
	return svc, nil
}
