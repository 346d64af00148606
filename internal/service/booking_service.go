package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/Freeeeeet/booking_core/internal/formatting"
	"github.com/Freeeeeet/booking_core/internal/model"
	"github.com/Freeeeeet/booking_core/internal/repository"
	"github.com/Freeeeeet/booking_core/internal/repository/base"
	"github.com/Freeeeeet/booking_core/internal/schedule"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

const (
	DefaultContentionRetries = 3
	defaultRetryBackoff      = 50 * time.Millisecond
	phoneMatchDigits         = 10
)

// BookingOptions настройки оркестратора записи
type BookingOptions struct {
	HoldTTL           time.Duration
	MinNotice         time.Duration
	ContentionRetries int
	RetryBackoff      time.Duration
}

// BookingRequest запрос на создание записи.
// Если заданы SlotID и HoldRef, записывается именно этот удержанный слот, иначе слот подбирается поиском.
type BookingRequest struct {
	ClientPhone    string
	ClientName     string
	ServiceID      uuid.UUID
	ProfessionalID *uuid.UUID
	Date           string
	Shift          string
	Notes          string
	Origin         model.AppointmentOrigin
	SlotID         *uuid.UUID
	HoldRef        string
}

// ModifyRequest изменения записи; пустые поля не меняются
type ModifyRequest struct {
	Date           string
	Shift          string
	ProfessionalID *uuid.UUID
	Notes          *string
}

func (r ModifyRequest) reschedules() bool {
	return r.Date != "" || r.Shift != "" || r.ProfessionalID != nil
}

// AppointmentResult результат создания или переноса записи
type AppointmentResult struct {
	Appointment model.Appointment `json:"appointment"`
	Attempts    int               `json:"attempts"`
	// DateRecognized false, если выражение даты не распознано и использовано "сегодня"
	DateRecognized bool `json:"date_recognized"`
}

// CancellationResult результат отмены
type CancellationResult struct {
	Code           string    `json:"code"`
	CancelledAt    time.Time `json:"cancelled_at"`
	ReleasedSlotID uuid.UUID `json:"released_slot_id"`
}

// BookingService атомарно создаёт, переносит и отменяет записи
type BookingService struct {
	tx           Transactor
	repos        Repositories
	availability *AvailabilityService
	holds        *HoldService
	conflicts    *ConflictValidator
	policy       schedule.Policy
	events       *eventLog
	opts         BookingOptions
	logger       *zap.Logger
	now          func() time.Time
}

func NewBookingService(
	tx Transactor,
	repos Repositories,
	availability *AvailabilityService,
	holds *HoldService,
	sink EventPublisher,
	opts BookingOptions,
	logger *zap.Logger,
) *BookingService {
	if opts.HoldTTL <= 0 {
		opts.HoldTTL = DefaultHoldTTL
	}
	if opts.ContentionRetries < 0 {
		opts.ContentionRetries = DefaultContentionRetries
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = defaultRetryBackoff
	}
	return &BookingService{
		tx:           tx,
		repos:        repos,
		availability: availability,
		holds:        holds,
		conflicts:    NewConflictValidator(repos.Appointments, repos.Blocked),
		policy:       schedule.NewPolicy(opts.MinNotice),
		events:       newEventLog(repos.Events, sink, logger),
		opts:         opts,
		logger:       logger,
		now:          time.Now,
	}
}

// CreateAppointment создаёт подтверждённую запись.
// Когда слот подбирается поиском, конкуренция за блокировку повторяется целиком с экспоненциальной паузой.
func (s *BookingService) CreateAppointment(ctx context.Context, tenantID uuid.UUID, req BookingRequest) (*AppointmentResult, error) {
	if req.ServiceID == uuid.Nil {
		return nil, model.NewError(model.KindInvalidRequest, "service id is required", nil)
	}
	if (req.SlotID == nil) != (req.HoldRef == "") {
		return nil, model.NewError(model.KindInvalidRequest, "slot id and hold reference go together", nil)
	}
	if req.Origin == "" {
		req.Origin = model.OriginManual
	}

	// Явно удержанный слот не ищется заново, поэтому и повторять нечего
	if req.SlotID != nil {
		res, err := s.createOnce(ctx, tenantID, req)
		if err != nil {
			return nil, err
		}
		res.Attempts = 1
		return res, nil
	}

	var (
		res      *AppointmentResult
		attempts int
	)
	backoff := retry.WithMaxRetries(uint64(s.opts.ContentionRetries), retry.NewExponential(s.opts.RetryBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		var err error
		res, err = s.createOnce(ctx, tenantID, req)
		if errors.Is(err, model.ErrContention) {
			s.logger.Debug("Slot contention, retrying booking",
				zap.String("tenant_id", tenantID.String()),
				zap.Int("attempt", attempts),
			)
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	res.Attempts = attempts
	return res, nil
}

func (s *BookingService) createOnce(ctx context.Context, tenantID uuid.UUID, req BookingRequest) (*AppointmentResult, error) {
	var (
		appt       model.Appointment
		recognized = true
		ev         model.SystemEvent
	)

	err := s.tx.InTenantTx(ctx, tenantID, func(ctx context.Context, tx pgx.Tx) error {
		org, err := loadOrganization(ctx, tx, s.repos.Catalog, tenantID)
		if err != nil {
			return err
		}

		svc, err := loadService(ctx, tx, s.repos.Catalog, tenantID, req.ServiceID)
		if err != nil {
			return err
		}

		client, err := s.resolveClient(ctx, tx, org, req.ClientPhone, req.ClientName)
		if err != nil {
			return err
		}

		// Выбираем слот: явно удержанный или первый подходящий из поиска
		var slot *model.TimeSlot
		if req.SlotID != nil {
			slot, err = s.heldSlot(ctx, tx, org, svc, req)
		} else {
			slot, recognized, err = s.pickSlot(ctx, tx, slotQuery{
				org:            org,
				service:        svc,
				professionalID: req.ProfessionalID,
				date:           req.Date,
				shift:          req.Shift,
				limit:          1,
			})
		}
		if err != nil {
			return err
		}

		// Финальная проверка пересечений внутри транзакции
		loc := org.Location()
		day := localDay(slot.StartAt, loc)
		if err := s.ensureFree(ctx, tx, slot, svc, day, nil); err != nil {
			return err
		}

		seq, err := s.repos.Appointments.NextCodeSeq(ctx, tx, org.ID, day)
		if err != nil {
			return err
		}

		appt = model.Appointment{
			ID:             uuid.New(),
			OrganizationID: org.ID,
			Code:           schedule.FormatCode(org.IndustryCode, day, seq),
			ClientID:       client.ID,
			ProfessionalID: slot.ProfessionalID,
			ServiceID:      svc.ID,
			SlotID:         slot.ID,
			Date:           day,
			StartsAt:       slot.StartAt,
			EndsAt:         slot.StartAt.Add(time.Duration(svc.DurationMinutes) * time.Minute),
			PriceCents:     svc.PriceCents,
			State:          model.AppointmentStateConfirmed,
			Origin:         req.Origin,
			Notes:          req.Notes,
			ClientName:     client.Name,
			ServiceName:    svc.Name,
		}
		if err := s.repos.Appointments.Insert(ctx, tx, &appt); err != nil {
			return err
		}

		appt.SlotVersion, err = s.repos.Slots.Occupy(ctx, tx, slot.ID, appt.ID)
		if err != nil {
			return err
		}

		ev = newEvent(org.ID, model.EventAppointmentCreated, "appointment", appt.ID, map[string]any{
			"code":            appt.Code,
			"slot_id":         appt.SlotID,
			"professional_id": appt.ProfessionalID,
			"service_id":      appt.ServiceID,
			"service_name":    svc.Name,
			"duration":        svc.DurationMinutes,
			"starts_at":       appt.StartsAt,
			"ends_at":         appt.EndsAt,
			"origin":          appt.Origin,
		})
		s.events.append(ctx, tx, &ev)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.publish(ctx, ev)

	s.logger.Info("Appointment created",
		zap.String("tenant_id", tenantID.String()),
		zap.String("code", appt.Code),
		zap.String("slot_id", appt.SlotID.String()),
	)

	return &AppointmentResult{Appointment: appt, DateRecognized: recognized}, nil
}

// pickSlot находит первый подходящий слот и удерживает его до конца транзакции
func (s *BookingService) pickSlot(ctx context.Context, q base.Querier, sq slotQuery) (*model.TimeSlot, bool, error) {
	candidates, res, err := s.availability.candidates(ctx, q, sq)
	if err != nil {
		return nil, res.Recognized, err
	}
	if len(candidates) == 0 {
		return nil, res.Recognized, model.ErrNoAvailability
	}

	slot, _, err := s.holds.placeHoldTx(ctx, q, candidates[0].SlotID, s.opts.HoldTTL, "booking:"+uuid.NewString())
	if err != nil {
		return nil, res.Recognized, err
	}

	return slot, res.Recognized, nil
}

// heldSlot проверяет, что слот всё ещё удерживается тем же держателем
// и проходит те же фильтры, что и поиск: специалист, день, смена, услуга
func (s *BookingService) heldSlot(ctx context.Context, q base.Querier, org *model.Organization, svc *model.Service, req BookingRequest) (*model.TimeSlot, error) {
	slot, err := s.repos.Slots.LockNoWait(ctx, q, *req.SlotID)
	if err != nil {
		return nil, err
	}
	if slot == nil {
		return nil, model.ErrSlotNotFound
	}

	now := s.now()
	if !slot.HeldBy(req.HoldRef) || !slot.HoldActive(now) {
		return nil, model.NewError(model.KindSlotUnavailable, "hold expired or belongs to another session", nil)
	}
	if !slot.StartAt.After(now) {
		return nil, model.NewError(model.KindSlotUnavailable, "slot is in the past", nil)
	}
	if slot.DurationMinutes < svc.DurationMinutes+svc.BufferMinutes {
		return nil, model.NewError(model.KindSlotUnavailable, "slot is too short for the service", nil)
	}
	if req.ProfessionalID != nil && *req.ProfessionalID != slot.ProfessionalID {
		return nil, model.NewError(model.KindSlotUnavailable, "slot belongs to another professional", nil)
	}

	if req.Date != "" || req.Shift != "" {
		loc := org.Location()
		res := schedule.Resolve(req.Date, req.Shift, now.In(loc))
		local := slot.StartAt.In(loc)
		if req.Date != "" && res.Recognized && res.Date.Format(time.DateOnly) != local.Format(time.DateOnly) {
			return nil, model.NewError(model.KindSlotUnavailable, "slot is on another day", nil)
		}
		if res.Window != nil && !res.Window.Contains(local) {
			return nil, model.NewError(model.KindSlotUnavailable, "slot is outside the requested shift", nil)
		}
	}

	bookable, err := s.repos.Catalog.ProfessionalBookable(ctx, q, slot.ProfessionalID, &svc.ID)
	if err != nil {
		return nil, err
	}
	if !bookable {
		return nil, model.NewError(model.KindSlotUnavailable, "professional cannot take this service online", nil)
	}

	return slot, nil
}

func (s *BookingService) ensureFree(ctx context.Context, q base.Querier, slot *model.TimeSlot, svc *model.Service, day time.Time, excludeID *uuid.UUID) error {
	candidate := schedule.Interval{
		Start: slot.StartAt,
		End:   slot.StartAt.Add(time.Duration(svc.DurationMinutes+svc.BufferMinutes) * time.Minute),
	}

	free, err := s.conflicts.IsFree(ctx, q, slot.ProfessionalID, day, candidate, excludeID)
	if err != nil {
		return err
	}
	if !free {
		return model.NewError(model.KindSlotUnavailable, "slot overlaps another appointment or blocked period", nil)
	}
	return nil
}

func (s *BookingService) resolveClient(ctx context.Context, q base.Querier, org *model.Organization, phone, name string) (*model.Client, error) {
	digits := phoneDigits(phone)
	if digits == "" {
		return nil, model.NewError(model.KindInvalidRequest, "client phone is required", nil)
	}

	client, err := s.repos.Clients.FindByPhone(ctx, q, org.ID, digits)
	if err != nil {
		return nil, err
	}
	if client != nil {
		return client, nil
	}

	if !org.AllowClientCreation {
		return nil, model.ErrClientCreationDisabled
	}

	client = &model.Client{
		ID:             uuid.New(),
		OrganizationID: org.ID,
		Name:           strings.TrimSpace(name),
		Phone:          strings.TrimSpace(phone),
	}
	if err := s.repos.Clients.Create(ctx, q, client); err != nil {
		return nil, err
	}

	s.logger.Info("Client created",
		zap.String("tenant_id", org.ID.String()),
		zap.String("client_id", client.ID.String()),
	)

	return client, nil
}

// ModifyAppointment переносит запись и/или меняет заметки.
// Старый слот освобождается и новый занимается в одной транзакции; любая ошибка оставляет запись как была.
func (s *BookingService) ModifyAppointment(ctx context.Context, tenantID uuid.UUID, code string, changes ModifyRequest) (*AppointmentResult, error) {
	var (
		appt       *model.Appointment
		recognized = true
		ev         model.SystemEvent
	)

	err := s.tx.InTenantTx(ctx, tenantID, func(ctx context.Context, tx pgx.Tx) error {
		org, err := loadOrganization(ctx, tx, s.repos.Catalog, tenantID)
		if err != nil {
			return err
		}

		appt, err = s.repos.Appointments.LockByCode(ctx, tx, org.ID, code)
		if err != nil {
			return err
		}
		if appt == nil {
			return model.ErrAppointmentNotFound
		}

		// Проверяем что запись ещё можно менять
		if !s.policy.CanModify(appt.StartsAt, appt.State, s.now()) {
			return model.ErrNotModifiable
		}

		if changes.Notes != nil {
			appt.Notes = *changes.Notes
		}

		previousSlotID := appt.SlotID
		previousDate := appt.Date
		previousStart := appt.StartsAt

		if changes.reschedules() {
			svc, err := s.serviceOf(ctx, tx, appt)
			if err != nil {
				return err
			}

			professionalID := changes.ProfessionalID
			if professionalID == nil {
				professionalID = &appt.ProfessionalID
			}

			date := changes.Date
			if date == "" {
				date = appt.StartsAt.In(org.Location()).Format("2006-01-02")
			}

			var slot *model.TimeSlot
			slot, recognized, err = s.pickSlot(ctx, tx, slotQuery{
				org:                  org,
				service:              svc,
				professionalID:       professionalID,
				date:                 date,
				shift:                changes.Shift,
				limit:                1,
				excludeAppointmentID: &appt.ID,
			})
			if err != nil {
				return err
			}

			day := localDay(slot.StartAt, org.Location())
			if err := s.ensureFree(ctx, tx, slot, svc, day, &appt.ID); err != nil {
				return err
			}

			// Освобождаем старый слот до того, как занять новый
			released, err := s.repos.Slots.Release(ctx, tx, previousSlotID, appt.ID)
			if err != nil {
				return err
			}
			if !released {
				s.logger.Warn("Previous slot was not bound to appointment",
					zap.String("tenant_id", tenantID.String()),
					zap.String("code", appt.Code),
					zap.String("slot_id", previousSlotID.String()),
				)
			}

			appt.SlotID = slot.ID
			appt.ProfessionalID = slot.ProfessionalID
			appt.Date = day
			appt.StartsAt = slot.StartAt
			appt.EndsAt = slot.StartAt.Add(time.Duration(svc.DurationMinutes) * time.Minute)
		}

		if err := s.repos.Appointments.Reschedule(ctx, tx, appt, previousDate); err != nil {
			return err
		}

		if appt.SlotID != previousSlotID {
			appt.SlotVersion, err = s.repos.Slots.Occupy(ctx, tx, appt.SlotID, appt.ID)
			if err != nil {
				return err
			}
		}

		ev = newEvent(org.ID, model.EventAppointmentModified, "appointment", appt.ID, map[string]any{
			"code":             appt.Code,
			"previous_slot_id": previousSlotID,
			"previous_start":   previousStart,
			"slot_id":          appt.SlotID,
			"starts_at":        appt.StartsAt,
			"ends_at":          appt.EndsAt,
		})
		s.events.append(ctx, tx, &ev)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.publish(ctx, ev)

	s.logger.Info("Appointment modified",
		zap.String("tenant_id", tenantID.String()),
		zap.String("code", appt.Code),
		zap.String("slot_id", appt.SlotID.String()),
	)

	return &AppointmentResult{Appointment: *appt, Attempts: 1, DateRecognized: recognized}, nil
}

func (s *BookingService) serviceOf(ctx context.Context, q base.Querier, appt *model.Appointment) (*model.Service, error) {
	svc, err := s.repos.Catalog.GetService(ctx, q, appt.ServiceID)
	if err != nil {
		return nil, err
	}
	if svc == nil {
		return nil, model.ErrServiceNotFound
	}
	return svc, nil
}

// CancelAppointment отменяет запись и освобождает её слот. Запись не удаляется
func (s *BookingService) CancelAppointment(ctx context.Context, tenantID uuid.UUID, code, reason string) (*CancellationResult, error) {
	var (
		result CancellationResult
		ev     model.SystemEvent
	)

	err := s.tx.InTenantTx(ctx, tenantID, func(ctx context.Context, tx pgx.Tx) error {
		appt, err := s.repos.Appointments.LockByCode(ctx, tx, tenantID, code)
		if err != nil {
			return err
		}
		if appt == nil {
			return model.ErrAppointmentNotFound
		}

		now := s.now()
		if appt.State.Terminal() {
			return model.NewError(model.KindNotCancellable, "appointment is already cancelled", nil)
		}
		if !s.policy.CanCancel(appt.StartsAt, now) {
			return model.ErrNotCancellable
		}

		if err := s.repos.Appointments.Cancel(ctx, tx, appt, reason, now); err != nil {
			return err
		}

		released, err := s.repos.Slots.Release(ctx, tx, appt.SlotID, appt.ID)
		if err != nil {
			return err
		}

		result = CancellationResult{Code: appt.Code, CancelledAt: now}
		if released {
			result.ReleasedSlotID = appt.SlotID
		} else {
			s.logger.Warn("Cancelled appointment slot was not bound to it",
				zap.String("tenant_id", tenantID.String()),
				zap.String("code", appt.Code),
				zap.String("slot_id", appt.SlotID.String()),
			)
		}

		ev = newEvent(tenantID, model.EventAppointmentCancelled, "appointment", appt.ID, map[string]any{
			"code":      appt.Code,
			"slot_id":   appt.SlotID,
			"reason":    reason,
			"starts_at": appt.StartsAt,
		})
		s.events.append(ctx, tx, &ev)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.publish(ctx, ev)

	s.logger.Info("Appointment cancelled",
		zap.String("tenant_id", tenantID.String()),
		zap.String("code", result.Code),
	)

	return &result, nil
}

// FindAppointmentsByPhone возвращает записи клиента с относительным временем и флагами доступных действий
func (s *BookingService) FindAppointmentsByPhone(
	ctx context.Context,
	tenantID uuid.UUID,
	phone string,
	states []model.AppointmentState,
	includePast bool,
) ([]model.AppointmentView, error) {
	digits := phoneDigits(phone)
	if digits == "" {
		return nil, model.NewError(model.KindInvalidRequest, "phone is required", nil)
	}

	var views []model.AppointmentView
	err := s.tx.InTenantReadTx(ctx, tenantID, func(ctx context.Context, tx pgx.Tx) error {
		org, err := loadOrganization(ctx, tx, s.repos.Catalog, tenantID)
		if err != nil {
			return err
		}

		now := s.now()
		pq := repository.PhoneQuery{
			OrganizationID: org.ID,
			PhoneDigits:    digits,
			States:         states,
		}
		if !includePast {
			pq.Since = &now
		}

		appointments, err := s.repos.Appointments.FindByPhone(ctx, tx, pq)
		if err != nil {
			return err
		}

		loc := org.Location()
		views = make([]model.AppointmentView, 0, len(appointments))
		for _, a := range appointments {
			views = append(views, model.AppointmentView{
				Appointment:  a,
				RelativeTime: formatting.RelativeTime(a.StartsAt.In(loc), now.In(loc)),
				CanModify:    s.policy.CanModify(a.StartsAt, a.State, now),
				CanCancel:    !a.State.Terminal() && s.policy.CanCancel(a.StartsAt, now),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return views, nil
}

// localDay дата начала в часовом поясе организации; значение для колонки DATE
func localDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// phoneDigits оставляет только цифры и последние 10 из них, чтобы +7 и 8 совпадали
func phoneDigits(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) > phoneMatchDigits {
		digits = digits[len(digits)-phoneMatchDigits:]
	}
	return digits
}
