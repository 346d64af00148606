package service

import (
	"context"
	"testing"
	"time"

	"github.com/Freeeeeet/booking_core/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchAvailability_GroupsByProfessionalAndDate(t *testing.T) {
	f := newFixture(t)
	org := f.a.org.ID

	boris := model.Professional{ID: uuid.New(), OrganizationID: org, Name: "Boris", IsActive: true, AcceptsOnlineBooking: true}
	f.db.state.professionals[boris.ID] = boris
	f.db.state.assignments[boris.ID] = map[uuid.UUID]bool{f.a.svc.ID: true}

	f.db.addSlot(org, f.a.prof.ID, at(10, 0), 30)
	f.db.addSlot(org, f.a.prof.ID, at(9, 0), 30)
	f.db.addSlot(org, boris.ID, at(9, 30), 30)
	f.db.addSlot(org, f.a.prof.ID, time.Date(2025, 6, 16, 9, 0, 0, 0, time.UTC), 30)

	groups, err := f.availability.SearchAvailability(context.Background(), org, SearchRequest{
		ServiceID: &f.a.svc.ID,
		Date:      "tomorrow",
		Days:      2,
	})
	require.NoError(t, err)
	require.Len(t, groups, 3)

	assert.Equal(t, f.a.prof.ID, groups[0].ProfessionalID)
	assert.Equal(t, "2025-06-15", groups[0].Date)
	require.Len(t, groups[0].Slots, 2)
	assert.Equal(t, at(9, 0), groups[0].Slots[0].StartAt)
	assert.Equal(t, at(10, 0), groups[0].Slots[1].StartAt)

	assert.Equal(t, "Boris", groups[1].ProfessionalName)
	assert.Equal(t, "2025-06-16", groups[2].Date)
}

func TestSearchAvailability_Filters(t *testing.T) {
	f := newFixture(t)
	org := f.a.org.ID

	offline := model.Professional{ID: uuid.New(), OrganizationID: org, Name: "Offline", IsActive: true}
	f.db.state.professionals[offline.ID] = offline
	f.db.state.assignments[offline.ID] = map[uuid.UUID]bool{f.a.svc.ID: true}

	unassigned := model.Professional{ID: uuid.New(), OrganizationID: org, Name: "Colorist", IsActive: true, AcceptsOnlineBooking: true}
	f.db.state.professionals[unassigned.ID] = unassigned

	morning := f.db.addSlot(org, f.a.prof.ID, at(9, 0), 30)
	f.db.addSlot(org, f.a.prof.ID, at(14, 0), 30)
	f.db.addSlot(org, offline.ID, at(9, 0), 30)
	f.db.addSlot(org, unassigned.ID, at(9, 0), 30)
	f.db.addBlocked(org, &f.a.prof.ID, at(10, 0), at(11, 0))
	f.db.addSlot(org, f.a.prof.ID, at(10, 30), 30)

	groups, err := f.availability.SearchAvailability(context.Background(), org, SearchRequest{
		ServiceID: &f.a.svc.ID,
		Date:      "завтра",
		Shift:     "утро",
	})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Slots, 1)
	assert.Equal(t, morning, groups[0].Slots[0].SlotID)

	// поиск не меняет состояние слотов
	assert.Equal(t, model.SlotStateAvailable, f.db.slot(morning).State)
	assert.Equal(t, int64(1), f.db.slot(morning).Version)
}

func TestSearchAvailability_BufferAndDuration(t *testing.T) {
	f := newFixture(t)
	org := f.a.org.ID
	svc := f.db.state.services[f.a.svc.ID]
	svc.BufferMinutes = 15
	f.db.state.services[svc.ID] = svc

	f.db.addSlot(org, f.a.prof.ID, at(9, 0), 30)
	long := f.db.addSlot(org, f.a.prof.ID, at(11, 0), 45)

	groups, err := f.availability.SearchAvailability(context.Background(), org, SearchRequest{ServiceID: &svc.ID, Date: "2025-06-15"})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Slots, 1)
	assert.Equal(t, long, groups[0].Slots[0].SlotID)

	// без услуги учитывается явная длительность
	groups, err = f.availability.SearchAvailability(context.Background(), org, SearchRequest{Date: "2025-06-15", DurationMinutes: 60})
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestSearchAvailability_ConflictsUseServiceInterval(t *testing.T) {
	f := newFixture(t)
	org := f.a.org.ID
	svc := f.db.state.services[f.a.svc.ID]
	svc.BufferMinutes = 15
	f.db.state.services[svc.ID] = svc

	f.db.addSlot(org, f.a.prof.ID, at(10, 50), 45)
	first, err := f.booking.CreateAppointment(context.Background(), org, f.request(f.a))
	require.NoError(t, err)
	assert.Equal(t, at(10, 50), first.Appointment.StartsAt)

	// слот длиннее услуги: запись в 10:50 задевает хвост слота, но не 10:00-10:45
	early := f.db.addSlot(org, f.a.prof.ID, at(10, 0), 60)

	groups, err := f.availability.SearchAvailability(context.Background(), org, SearchRequest{ServiceID: &svc.ID, Date: "2025-06-15"})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Slots, 1)
	assert.Equal(t, early, groups[0].Slots[0].SlotID)

	req := f.request(f.a)
	req.ClientPhone = "+7 (916) 000-00-01"
	second, err := f.booking.CreateAppointment(context.Background(), org, req)
	require.NoError(t, err)
	assert.Equal(t, early, second.Appointment.SlotID)

	// 09:45 с буфером заканчивается в 10:30 и задевает запись 10:00-10:30
	f.db.addSlot(org, f.a.prof.ID, at(9, 45), 45)
	groups, err = f.availability.SearchAvailability(context.Background(), org, SearchRequest{ServiceID: &svc.ID, Date: "2025-06-15"})
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestSearchAvailability_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.availability.SearchAvailability(context.Background(), f.a.org.ID, SearchRequest{Days: 90})
	assert.ErrorIs(t, err, model.ErrInvalidRequest)

	missing := uuid.New()
	_, err = f.availability.SearchAvailability(context.Background(), f.a.org.ID, SearchRequest{ServiceID: &missing})
	assert.ErrorIs(t, err, model.ErrServiceNotFound)

	_, err = f.availability.SearchAvailability(context.Background(), uuid.Nil, SearchRequest{})
	assert.ErrorIs(t, err, model.ErrTenantIsolation)
}

func TestGroupSlots_DropsDuplicatesAndUsesLocalDate(t *testing.T) {
	moscow, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)

	prof := uuid.New()
	late := model.CandidateSlot{SlotID: uuid.New(), ProfessionalID: prof, StartAt: time.Date(2025, 6, 15, 22, 0, 0, 0, time.UTC)}
	early := model.CandidateSlot{SlotID: uuid.New(), ProfessionalID: prof, StartAt: time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC)}

	groups := GroupSlots([]model.CandidateSlot{early, late, early}, moscow)

	require.Len(t, groups, 2)
	assert.Equal(t, "2025-06-15", groups[0].Date)
	assert.Len(t, groups[0].Slots, 1)
	assert.Equal(t, "2025-06-16", groups[1].Date, "22:00 UTC is 01:00 next day in Moscow")
}
