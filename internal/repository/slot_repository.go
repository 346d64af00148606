package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/booking_core/internal/model"
	"github.com/Freeeeeet/booking_core/internal/repository/base"
	"github.com/google/uuid"
)

const slotColumns = `
	id, organization_id, professional_id, start_at, end_at, duration_minutes, state, capacity,
	hold_expires_at, holder_ref, appointment_id, version, created_at, updated_at`

type SlotRepository struct{}

func NewSlotRepository() *SlotRepository {
	return &SlotRepository{}
}

func scanSlot(row interface{ Scan(dest ...any) error }) (*model.TimeSlot, error) {
	var slot model.TimeSlot
	err := row.Scan(
		&slot.ID,
		&slot.OrganizationID,
		&slot.ProfessionalID,
		&slot.StartAt,
		&slot.EndAt,
		&slot.DurationMinutes,
		&slot.State,
		&slot.Capacity,
		&slot.HoldExpiresAt,
		&slot.HolderRef,
		&slot.AppointmentID,
		&slot.Version,
		&slot.CreatedAt,
		&slot.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

// LockNoWait берёт эксклюзивную блокировку строки слота, не дожидаясь её освобождения.
// Занятая блокировка превращается в ошибку конкуренции.
func (r *SlotRepository) LockNoWait(ctx context.Context, q base.Querier, id uuid.UUID) (*model.TimeSlot, error) {
	query := `SELECT ` + slotColumns + ` FROM time_slots WHERE id = $1 FOR UPDATE NOWAIT`

	slot, err := scanSlot(q.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		if base.IsLockNotAvailable(err) {
			return nil, model.NewError(model.KindContention, "slot is locked by another operation", err)
		}
		return nil, fmt.Errorf("lock slot: %w", err)
	}

	return slot, nil
}

// MarkHeld переводит заблокированный слот во временное удержание и возвращает новую версию
func (r *SlotRepository) MarkHeld(ctx context.Context, q base.Querier, id uuid.UUID, holderRef string, expiresAt time.Time) (int64, error) {
	query := `
		UPDATE time_slots
		SET state = 'temporarily_held',
		    hold_expires_at = $2,
		    holder_ref = $3,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING version
	`

	var version int64
	if err := q.QueryRow(ctx, query, id, expiresAt, holderRef).Scan(&version); err != nil {
		return 0, fmt.Errorf("mark slot held: %w", err)
	}

	return version, nil
}

// ReleaseHold снимает удержание указанного держателя. false, если снимать нечего
func (r *SlotRepository) ReleaseHold(ctx context.Context, q base.Querier, id uuid.UUID, holderRef string) (bool, error) {
	query := `
		UPDATE time_slots
		SET state = 'available',
		    hold_expires_at = NULL,
		    holder_ref = NULL,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $1
		  AND state = 'temporarily_held'
		  AND holder_ref = $2
	`

	affected, err := base.ExecAffected(ctx, q, query, id, holderRef)
	if err != nil {
		return false, fmt.Errorf("release hold: %w", err)
	}

	return affected > 0, nil
}

// Occupy привязывает слот к записи. Слот должен быть свободен или удерживаться
func (r *SlotRepository) Occupy(ctx context.Context, q base.Querier, id, appointmentID uuid.UUID) (int64, error) {
	query := `
		UPDATE time_slots
		SET state = 'occupied',
		    appointment_id = $2,
		    hold_expires_at = NULL,
		    holder_ref = NULL,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $1
		  AND state IN ('available', 'temporarily_held')
		RETURNING version
	`

	var version int64
	err := q.QueryRow(ctx, query, id, appointmentID).Scan(&version)
	if err != nil {
		if base.IsNotFound(err) {
			return 0, model.NewError(model.KindSlotUnavailable, "slot was taken before commit", nil)
		}
		return 0, fmt.Errorf("occupy slot: %w", err)
	}

	return version, nil
}

// Release возвращает в свободные слот, занятый именно этой записью.
// false, если слот уже отдан другой записи или свободен
func (r *SlotRepository) Release(ctx context.Context, q base.Querier, id, appointmentID uuid.UUID) (bool, error) {
	query := `
		UPDATE time_slots
		SET state = 'available',
		    appointment_id = NULL,
		    hold_expires_at = NULL,
		    holder_ref = NULL,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $1
		  AND state = 'occupied'
		  AND appointment_id = $2
	`

	tag, err := q.Exec(ctx, query, id, appointmentID)
	if err != nil {
		return false, fmt.Errorf("release slot: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// ReclaimExpired освобождает просроченные удержания. Строки, заблокированные
// другими транзакциями, пропускаются и будут подобраны следующим проходом.
func (r *SlotRepository) ReclaimExpired(ctx context.Context, q base.Querier, now time.Time, limit int) ([]uuid.UUID, error) {
	query := `
		UPDATE time_slots
		SET state = 'available',
		    hold_expires_at = NULL,
		    holder_ref = NULL,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id IN (
			SELECT id FROM time_slots
			WHERE state = 'temporarily_held'
			  AND hold_expires_at <= $1
			ORDER BY hold_expires_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id
	`

	rows, err := q.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("reclaim expired holds: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan reclaimed slot: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// Search возвращает свободные слоты по фильтру, упорядоченные по времени начала
func (r *SlotRepository) Search(ctx context.Context, q base.Querier, f SlotFilter) ([]model.CandidateSlot, error) {
	query, args := f.build()

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search slots: %w", err)
	}
	defer rows.Close()

	var slots []model.CandidateSlot
	for rows.Next() {
		var c model.CandidateSlot
		err := rows.Scan(
			&c.SlotID,
			&c.ProfessionalID,
			&c.ProfessionalName,
			&c.StartAt,
			&c.EndAt,
			&c.DurationMinutes,
			&c.Version,
		)
		if err != nil {
			return nil, fmt.Errorf("scan candidate slot: %w", err)
		}
		slots = append(slots, c)
	}

	return slots, rows.Err()
}
