package schedule

import (
	"testing"
	"time"

	"github.com/Freeeeeet/booking_core/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestPolicy_CanCancel(t *testing.T) {
	p := NewPolicy(0)
	start := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, DefaultMinNotice, p.MinNotice)
	assert.True(t, p.CanCancel(start, start.Add(-3*time.Hour)))
	assert.True(t, p.CanCancel(start, start.Add(-2*time.Hour)))
	assert.False(t, p.CanCancel(start, start.Add(-2*time.Hour+time.Second)))
	assert.False(t, p.CanCancel(start, start.Add(time.Hour)))
}

func TestPolicy_CanModify(t *testing.T) {
	p := NewPolicy(2 * time.Hour)
	start := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	early := start.Add(-24 * time.Hour)

	assert.True(t, p.CanModify(start, model.AppointmentStateConfirmed, early))
	assert.True(t, p.CanModify(start, model.AppointmentStatePending, early))
	assert.False(t, p.CanModify(start, model.AppointmentStateInProgress, early))
	assert.False(t, p.CanModify(start, model.AppointmentStateCancelled, early))
	assert.False(t, p.CanModify(start, model.AppointmentStateConfirmed, start.Add(-time.Hour)))
}

func TestPolicy_CustomNotice(t *testing.T) {
	p := NewPolicy(24 * time.Hour)
	start := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

	assert.False(t, p.CanCancel(start, start.Add(-3*time.Hour)))
}
