package repository

import (
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/booking_core/internal/schedule"
	"github.com/google/uuid"
)

// SlotFilter параметры поиска свободных слотов. Каждое заданное поле только сужает выборку
type SlotFilter struct {
	OrganizationID uuid.UUID
	ProfessionalID *uuid.UUID
	ServiceID      *uuid.UUID
	From           time.Time // начало диапазона, включительно
	To             time.Time // конец диапазона, не включительно
	Window         *schedule.ClockWindow
	Timezone       string
	// RequiredMinutes длительность услуги вместе с буфером
	RequiredMinutes int
	// ExcludeAppointmentID запись, которая не считается конфликтом (при переносе)
	ExcludeAppointmentID *uuid.UUID
	Limit                int
}

func (f SlotFilter) timezone() string {
	if f.Timezone == "" {
		return "UTC"
	}
	return f.Timezone
}

// build собирает запрос с позиционными параметрами
func (f SlotFilter) build() (string, []any) {
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	tz := arg(f.timezone())

	var where []string
	where = append(where,
		"s.organization_id = "+arg(f.OrganizationID),
		"s.state = 'available'",
		"s.start_at >= "+arg(f.From),
		"s.start_at < "+arg(f.To),
		"p.is_active",
		"p.accepts_online_booking",
	)

	if f.ProfessionalID != nil {
		where = append(where, "s.professional_id = "+arg(*f.ProfessionalID))
	}

	if f.ServiceID != nil {
		where = append(where, `EXISTS (
			SELECT 1 FROM professional_services ps
			WHERE ps.professional_id = s.professional_id
			  AND ps.service_id = `+arg(*f.ServiceID)+`
		)`)
	}

	// Конфликты проверяются на интервале услуги с буфером, а не на всём слоте
	candidateEnd := "s.end_at"
	if f.RequiredMinutes > 0 {
		required := arg(f.RequiredMinutes)
		where = append(where, "s.duration_minutes >= "+required)
		candidateEnd = "(s.start_at + make_interval(mins => " + required + "))"
	}

	if f.Window != nil {
		where = append(where,
			fmt.Sprintf("(s.start_at AT TIME ZONE %s)::time >= %s::time", tz, arg(clockLiteral(f.Window.Start))),
			fmt.Sprintf("(s.start_at AT TIME ZONE %s)::time < %s::time", tz, arg(clockLiteral(f.Window.End))),
		)
	}

	where = append(where, `NOT EXISTS (
			SELECT 1 FROM blocked_periods b
			WHERE (b.professional_id = s.professional_id OR b.professional_id IS NULL)
			  AND b.start_at < ` + candidateEnd + `
			  AND b.end_at > s.start_at
		)`)

	conflict := `NOT EXISTS (
			SELECT 1 FROM appointments a
			WHERE a.professional_id = s.professional_id
			  AND a.appointment_date = (s.start_at AT TIME ZONE ` + tz + `)::date
			  AND a.state IN ('confirmed', 'in_progress')
			  AND a.starts_at < ` + candidateEnd + `
			  AND a.ends_at > s.start_at`
	if f.ExcludeAppointmentID != nil {
		conflict += `
			  AND a.id <> ` + arg(*f.ExcludeAppointmentID)
	}
	where = append(where, conflict+`
		)`)

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT s.id, s.professional_id, p.name, s.start_at, s.end_at, s.duration_minutes, s.version
		FROM time_slots s
		JOIN professionals p ON p.id = s.professional_id
		WHERE ` + strings.Join(where, "\n		  AND ") + `
		ORDER BY s.start_at, s.id
		LIMIT ` + arg(limit)

	return query, args
}

// clockLiteral переводит смещение от полуночи в HH:MM:SS
func clockLiteral(d time.Duration) string {
	d = d.Truncate(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
