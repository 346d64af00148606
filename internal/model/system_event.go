package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventAppointmentCreated   = "appointment.created"
	EventAppointmentModified  = "appointment.modified"
	EventAppointmentCancelled = "appointment.cancelled"
	EventSlotHeld             = "slot.held"
	EventSlotHoldReleased     = "slot.hold_released"
	EventSlotHoldsReclaimed   = "slot.holds_reclaimed"
)

// SystemEvent запись журнала событий; только добавление
type SystemEvent struct {
	ID             uuid.UUID      `json:"id"`
	OrganizationID uuid.UUID      `json:"organization_id"`
	EventType      string         `json:"event_type"`
	EntityType     string         `json:"entity_type"`
	EntityID       uuid.UUID      `json:"entity_id"`
	Metadata       map[string]any `json:"metadata"`
	CreatedAt      time.Time      `json:"created_at"`
}
