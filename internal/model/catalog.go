package model

import (
	"time"

	"github.com/google/uuid"
)

// Organization арендатор системы
type Organization struct {
	ID                  uuid.UUID `json:"id"`
	Name                string    `json:"name"`
	IndustryCode        string    `json:"industry_code"` // salon, barbershop, clinic...
	Timezone            string    `json:"timezone"`
	IsActive            bool      `json:"is_active"`
	AllowClientCreation bool      `json:"allow_client_creation"`
	CreatedAt           time.Time `json:"created_at"`
}

// Location возвращает часовой пояс организации, UTC при ошибке
func (o *Organization) Location() *time.Location {
	if o.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(o.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type Professional struct {
	ID                   uuid.UUID `json:"id"`
	OrganizationID       uuid.UUID `json:"organization_id"`
	Name                 string    `json:"name"`
	IsActive             bool      `json:"is_active"`
	AcceptsOnlineBooking bool      `json:"accepts_online_booking"`
}

// Service услуга организации
type Service struct {
	ID              uuid.UUID `json:"id"`
	OrganizationID  uuid.UUID `json:"organization_id"`
	Name            string    `json:"name"`
	DurationMinutes int       `json:"duration_minutes"` // >= 1
	BufferMinutes   int       `json:"buffer_minutes"`   // уборка между визитами
	PriceCents      int64     `json:"price_cents"`
	IsActive        bool      `json:"is_active"`
}

type Client struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	Name           string    `json:"name"`
	Phone          string    `json:"phone"`
	CreatedAt      time.Time `json:"created_at"`
}

// BlockedPeriod закрытый интервал; ProfessionalID == nil закрывает всю организацию
type BlockedPeriod struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	ProfessionalID *uuid.UUID `json:"professional_id"`
	StartAt        time.Time  `json:"start_at"`
	EndAt          time.Time  `json:"end_at"`
	Reason         string     `json:"reason"`
}
