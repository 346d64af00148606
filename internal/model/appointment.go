package model

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentState string

const (
	AppointmentStatePending    AppointmentState = "pending"
	AppointmentStateConfirmed  AppointmentState = "confirmed"
	AppointmentStateInProgress AppointmentState = "in_progress"
	AppointmentStateCancelled  AppointmentState = "cancelled" // терминальное, запись не удаляется
)

// Terminal сообщает, что из состояния больше нет переходов
func (s AppointmentState) Terminal() bool {
	return s == AppointmentStateCancelled
}

// Blocking сообщает, что запись занимает время специалиста
func (s AppointmentState) Blocking() bool {
	return s == AppointmentStateConfirmed || s == AppointmentStateInProgress
}

type AppointmentOrigin string

const (
	OriginManual    AppointmentOrigin = "manual"
	OriginAutomatic AppointmentOrigin = "automatic_agent"
)

type Appointment struct {
	ID              uuid.UUID         `json:"id"`
	OrganizationID  uuid.UUID         `json:"organization_id"`
	Code            string            `json:"code"`
	ClientID        uuid.UUID         `json:"client_id"`
	ProfessionalID  uuid.UUID         `json:"professional_id"`
	ServiceID       uuid.UUID         `json:"service_id"`
	SlotID          uuid.UUID         `json:"slot_id"`
	Date            time.Time         `json:"date"` // ключ партиционирования
	StartsAt        time.Time         `json:"starts_at"`
	EndsAt          time.Time         `json:"ends_at"`
	PriceCents      int64             `json:"price_cents"`
	State           AppointmentState  `json:"state"`
	Origin          AppointmentOrigin `json:"origin"`
	Notes           string            `json:"notes"`
	CancelReason    *string           `json:"cancel_reason"`
	CancelledAt     *time.Time        `json:"cancelled_at"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	SlotVersion     int64             `json:"slot_version"`

	// Дополнительные поля для удобства (не из таблицы appointments)
	ClientName       string `json:"client_name,omitempty"`
	ProfessionalName string `json:"professional_name,omitempty"`
	ServiceName      string `json:"service_name,omitempty"`
}

// AppointmentView запись с человекочитаемым временем и флагами доступных действий
type AppointmentView struct {
	Appointment
	RelativeTime string `json:"relative_time"`
	CanModify    bool   `json:"can_modify"`
	CanCancel    bool   `json:"can_cancel"`
}
