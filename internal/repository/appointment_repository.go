package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/booking_core/internal/model"
	"github.com/Freeeeeet/booking_core/internal/repository/base"
	"github.com/Freeeeeet/booking_core/internal/schedule"
	"github.com/google/uuid"
)

const appointmentColumns = `
	a.id, a.organization_id, a.code, a.client_id, a.professional_id, a.service_id, a.slot_id,
	a.appointment_date, a.starts_at, a.ends_at, a.price_cents, a.state, a.origin, a.notes,
	a.cancel_reason, a.cancelled_at, a.created_at, a.updated_at`

type AppointmentRepository struct{}

func NewAppointmentRepository() *AppointmentRepository {
	return &AppointmentRepository{}
}

func appointmentDest(a *model.Appointment) []any {
	return []any{
		&a.ID,
		&a.OrganizationID,
		&a.Code,
		&a.ClientID,
		&a.ProfessionalID,
		&a.ServiceID,
		&a.SlotID,
		&a.Date,
		&a.StartsAt,
		&a.EndsAt,
		&a.PriceCents,
		&a.State,
		&a.Origin,
		&a.Notes,
		&a.CancelReason,
		&a.CancelledAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	}
}

// NextCodeSeq выдаёт следующий порядковый номер записи организации за день.
// Счётчик обновляется в той же транзакции, поэтому откат не оставляет пропусков.
func (r *AppointmentRepository) NextCodeSeq(ctx context.Context, q base.Querier, organizationID uuid.UUID, day time.Time) (int, error) {
	query := `
		INSERT INTO appointment_code_counters (organization_id, day, last_seq)
		VALUES ($1, $2, 1)
		ON CONFLICT (organization_id, day)
		DO UPDATE SET last_seq = appointment_code_counters.last_seq + 1
		RETURNING last_seq
	`

	var seq int
	if err := q.QueryRow(ctx, query, organizationID, day).Scan(&seq); err != nil {
		return 0, fmt.Errorf("next appointment code: %w", err)
	}

	return seq, nil
}

// Insert создаёт запись
func (r *AppointmentRepository) Insert(ctx context.Context, q base.Querier, a *model.Appointment) error {
	query := `
		INSERT INTO appointments (
			id, organization_id, code, client_id, professional_id, service_id, slot_id,
			appointment_date, starts_at, ends_at, price_cents, state, origin, notes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at
	`

	err := q.QueryRow(
		ctx, query,
		a.ID,
		a.OrganizationID,
		a.Code,
		a.ClientID,
		a.ProfessionalID,
		a.ServiceID,
		a.SlotID,
		a.Date,
		a.StartsAt,
		a.EndsAt,
		a.PriceCents,
		a.State,
		a.Origin,
		a.Notes,
	).Scan(&a.CreatedAt, &a.UpdatedAt)

	if base.IsUniqueViolation(err) {
		return model.NewError(model.KindContention, "appointment code is already taken", err)
	}
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}

	return nil
}

// LockByCode находит запись по коду и блокирует её до конца транзакции
func (r *AppointmentRepository) LockByCode(ctx context.Context, q base.Querier, organizationID uuid.UUID, code string) (*model.Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments a
		WHERE a.organization_id = $1 AND a.code = $2
		FOR UPDATE
	`

	var a model.Appointment
	err := q.QueryRow(ctx, query, organizationID, code).Scan(appointmentDest(&a)...)
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock appointment by code: %w", err)
	}

	return &a, nil
}

// Reschedule переносит запись на другой слот. previousDate нужна для поиска строки в секции
func (r *AppointmentRepository) Reschedule(ctx context.Context, q base.Querier, a *model.Appointment, previousDate time.Time) error {
	query := `
		UPDATE appointments
		SET professional_id = $3,
		    slot_id = $4,
		    appointment_date = $5,
		    starts_at = $6,
		    ends_at = $7,
		    notes = $8,
		    updated_at = NOW()
		WHERE id = $1 AND appointment_date = $2
		RETURNING updated_at
	`

	err := q.QueryRow(
		ctx, query,
		a.ID,
		previousDate,
		a.ProfessionalID,
		a.SlotID,
		a.Date,
		a.StartsAt,
		a.EndsAt,
		a.Notes,
	).Scan(&a.UpdatedAt)

	if err != nil {
		return fmt.Errorf("reschedule appointment: %w", err)
	}

	return nil
}

// Cancel переводит запись в cancelled. Строка не удаляется
func (r *AppointmentRepository) Cancel(ctx context.Context, q base.Querier, a *model.Appointment, reason string, cancelledAt time.Time) error {
	query := `
		UPDATE appointments
		SET state = 'cancelled',
		    cancel_reason = $3,
		    cancelled_at = $4,
		    updated_at = NOW()
		WHERE id = $1 AND appointment_date = $2
		RETURNING updated_at
	`

	if err := q.QueryRow(ctx, query, a.ID, a.Date, reason, cancelledAt).Scan(&a.UpdatedAt); err != nil {
		return fmt.Errorf("cancel appointment: %w", err)
	}

	a.State = model.AppointmentStateCancelled
	a.CancelReason = &reason
	a.CancelledAt = &cancelledAt

	return nil
}

// BusyIntervals возвращает интервалы записей специалиста за день, которые занимают его время
func (r *AppointmentRepository) BusyIntervals(ctx context.Context, q base.Querier, professionalID uuid.UUID, day time.Time, excludeID *uuid.UUID) ([]schedule.Interval, error) {
	query := `
		SELECT starts_at, ends_at
		FROM appointments
		WHERE professional_id = $1
		  AND appointment_date = $2
		  AND state IN ('confirmed', 'in_progress')
		  AND ($3::uuid IS NULL OR id <> $3)
		ORDER BY starts_at
	`

	rows, err := q.Query(ctx, query, professionalID, day, excludeID)
	if err != nil {
		return nil, fmt.Errorf("get busy intervals: %w", err)
	}
	defer rows.Close()

	var busy []schedule.Interval
	for rows.Next() {
		var in schedule.Interval
		if err := rows.Scan(&in.Start, &in.End); err != nil {
			return nil, fmt.Errorf("scan busy interval: %w", err)
		}
		busy = append(busy, in)
	}

	return busy, rows.Err()
}

// PhoneQuery параметры поиска записей клиента по телефону
type PhoneQuery struct {
	OrganizationID uuid.UUID
	PhoneDigits    string
	States         []model.AppointmentState
	// Since отсекает прошедшие записи, nil означает "включая прошлые"
	Since *time.Time
	Limit int
}

// FindByPhone возвращает записи клиента вместе с именами клиента, специалиста и услуги
func (r *AppointmentRepository) FindByPhone(ctx context.Context, q base.Querier, pq PhoneQuery) ([]model.Appointment, error) {
	args := []any{pq.OrganizationID, pq.PhoneDigits}
	where := []string{
		"a.organization_id = $1",
		"regexp_replace(c.phone, '\\D', '', 'g') LIKE '%' || $2",
	}

	if len(pq.States) > 0 {
		states := make([]string, len(pq.States))
		for i, s := range pq.States {
			states[i] = string(s)
		}
		args = append(args, states)
		where = append(where, fmt.Sprintf("a.state = ANY($%d)", len(args)))
	}

	if pq.Since != nil {
		args = append(args, *pq.Since)
		where = append(where, fmt.Sprintf("a.starts_at >= $%d", len(args)))
	}

	limit := pq.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)

	query := `
		SELECT ` + appointmentColumns + `, c.name, p.name, sv.name
		FROM appointments a
		JOIN clients c ON c.id = a.client_id
		JOIN professionals p ON p.id = a.professional_id
		JOIN services sv ON sv.id = a.service_id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY a.starts_at
		LIMIT ` + fmt.Sprintf("$%d", len(args))

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find appointments by phone: %w", err)
	}
	defer rows.Close()

	var appointments []model.Appointment
	for rows.Next() {
		var a model.Appointment
		dest := append(appointmentDest(&a), &a.ClientName, &a.ProfessionalName, &a.ServiceName)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		appointments = append(appointments, a)
	}

	return appointments, rows.Err()
}
