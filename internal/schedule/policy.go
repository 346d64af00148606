package schedule

import (
	"time"

	"github.com/Freeeeeet/booking_core/internal/model"
)

const DefaultMinNotice = 2 * time.Hour

// Policy правила отмены и переноса записи
type Policy struct {
	MinNotice time.Duration
}

func NewPolicy(minNotice time.Duration) Policy {
	if minNotice <= 0 {
		minNotice = DefaultMinNotice
	}
	return Policy{MinNotice: minNotice}
}

// CanCancel true, если до начала записи осталось не меньше MinNotice
func (p Policy) CanCancel(startsAt, now time.Time) bool {
	return !now.Add(p.MinNotice).After(startsAt)
}

// CanModify true для confirmed/pending при том же минимальном уведомлении
func (p Policy) CanModify(startsAt time.Time, state model.AppointmentState, now time.Time) bool {
	if state != model.AppointmentStateConfirmed && state != model.AppointmentStatePending {
		return false
	}
	return p.CanCancel(startsAt, now)
}
