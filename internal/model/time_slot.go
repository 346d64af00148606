package model

import (
	"time"

	"github.com/google/uuid"
)

type SlotState string

const (
	SlotStateAvailable       SlotState = "available"
	SlotStateTemporarilyHeld SlotState = "temporarily_held"
	SlotStateOccupied        SlotState = "occupied"
	SlotStateBlocked         SlotState = "blocked"
)

// TimeSlot дискретный интервал времени специалиста, доступный для записи
type TimeSlot struct {
	ID              uuid.UUID  `json:"id"`
	OrganizationID  uuid.UUID  `json:"organization_id"`
	ProfessionalID  uuid.UUID  `json:"professional_id"`
	StartAt         time.Time  `json:"start_at"`
	EndAt           time.Time  `json:"end_at"`
	DurationMinutes int        `json:"duration_minutes"`
	State           SlotState  `json:"state"`
	Capacity        int        `json:"capacity"`
	HoldExpiresAt   *time.Time `json:"hold_expires_at"` // только для temporarily_held
	HolderRef       *string    `json:"holder_ref"`
	AppointmentID   *uuid.UUID `json:"appointment_id"` // только для occupied
	Version         int64      `json:"version"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// HoldActive сообщает, что слот удерживается и срок удержания ещё не истёк
func (s *TimeSlot) HoldActive(now time.Time) bool {
	return s.State == SlotStateTemporarilyHeld && s.HoldExpiresAt != nil && s.HoldExpiresAt.After(now)
}

// HeldBy сообщает, принадлежит ли удержание указанному держателю
func (s *TimeSlot) HeldBy(holderRef string) bool {
	return s.State == SlotStateTemporarilyHeld && s.HolderRef != nil && *s.HolderRef == holderRef
}

// CandidateSlot слот из результатов поиска вместе с данными специалиста
type CandidateSlot struct {
	SlotID           uuid.UUID `json:"slot_id"`
	ProfessionalID   uuid.UUID `json:"professional_id"`
	ProfessionalName string    `json:"professional_name"`
	StartAt          time.Time `json:"start_at"`
	EndAt            time.Time `json:"end_at"`
	DurationMinutes  int       `json:"duration_minutes"`
	Version          int64     `json:"version"`
}

// SlotGroup слоты одного специалиста на одну дату
type SlotGroup struct {
	ProfessionalID   uuid.UUID       `json:"professional_id"`
	ProfessionalName string          `json:"professional_name"`
	Date             string          `json:"date"` // YYYY-MM-DD в часовом поясе организации
	Slots            []CandidateSlot `json:"slots"`
}
