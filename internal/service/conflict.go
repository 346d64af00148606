package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/booking_core/internal/repository/base"
	"github.com/Freeeeeet/booking_core/internal/schedule"
	"github.com/google/uuid"
)

// ConflictValidator последняя проверка пересечений перед коммитом.
// Интервалы полуоткрытые: [10:00, 10:30) и [10:30, 11:00) не конфликтуют.
type ConflictValidator struct {
	appointments AppointmentStore
	blocked      BlockedPeriodStore
}

func NewConflictValidator(appointments AppointmentStore, blocked BlockedPeriodStore) *ConflictValidator {
	return &ConflictValidator{appointments: appointments, blocked: blocked}
}

// IsFree true, если ни одна другая подтверждённая или идущая запись специалиста за день
// не пересекает candidate и интервал не попадает в закрытый период
func (v *ConflictValidator) IsFree(
	ctx context.Context,
	q base.Querier,
	professionalID uuid.UUID,
	day time.Time,
	candidate schedule.Interval,
	excludeAppointmentID *uuid.UUID,
) (bool, error) {
	if !candidate.Valid() {
		return false, fmt.Errorf("invalid interval %s - %s", candidate.Start, candidate.End)
	}

	busy, err := v.appointments.BusyIntervals(ctx, q, professionalID, day, excludeAppointmentID)
	if err != nil {
		return false, err
	}
	if schedule.FirstOverlap(candidate, busy) >= 0 {
		return false, nil
	}

	blocked, err := v.blocked.Overlapping(ctx, q, professionalID, candidate.Start, candidate.End)
	if err != nil {
		return false, err
	}

	return len(blocked) == 0, nil
}
