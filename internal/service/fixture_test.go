package service

import (
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/booking_core/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// fakeClock общее время для всех сервисов теста
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type tenantData struct {
	org  model.Organization
	svc  model.Service
	prof model.Professional
}

type fixture struct {
	db    *memDB
	clock *fakeClock
	sink  *recordingSink

	a, b tenantData

	availability *AvailabilityService
	holds        *HoldService
	booking      *BookingService
}

// 2025-06-14 09:00 UTC, суббота
var fixtureNow = time.Date(2025, 6, 14, 9, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := newMemDB()
	f := &fixture{
		db:    db,
		clock: &fakeClock{now: fixtureNow},
		sink:  &recordingSink{},
		a:     seedTenant(db, "Salon A"),
		b:     seedTenant(db, "Salon B"),
	}

	logger := zap.NewNop()
	repos := db.repos()
	f.availability = NewAvailabilityService(db, repos, 20, logger)
	f.holds = NewHoldService(db, repos, f.sink, 10*time.Minute, logger)
	f.booking = NewBookingService(db, repos, f.availability, f.holds, f.sink, BookingOptions{
		HoldTTL:           10 * time.Minute,
		MinNotice:         2 * time.Hour,
		ContentionRetries: 3,
		RetryBackoff:      time.Millisecond,
	}, logger)

	f.availability.now = f.clock.Now
	f.holds.now = f.clock.Now
	f.booking.now = f.clock.Now

	return f
}

func seedTenant(db *memDB, name string) tenantData {
	org := model.Organization{
		ID:                  uuid.New(),
		Name:                name,
		IndustryCode:        "salon",
		Timezone:            "UTC",
		IsActive:            true,
		AllowClientCreation: true,
	}
	svc := model.Service{
		ID:              uuid.New(),
		OrganizationID:  org.ID,
		Name:            "Haircut",
		DurationMinutes: 30,
		PriceCents:      150000,
		IsActive:        true,
	}
	prof := model.Professional{
		ID:                   uuid.New(),
		OrganizationID:       org.ID,
		Name:                 "Anna",
		IsActive:             true,
		AcceptsOnlineBooking: true,
	}

	db.state.orgs[org.ID] = org
	db.state.services[svc.ID] = svc
	db.state.professionals[prof.ID] = prof
	db.state.assignments[prof.ID] = map[uuid.UUID]bool{svc.ID: true}

	return tenantData{org: org, svc: svc, prof: prof}
}

// at время 2025-06-15 в UTC
func at(hour, minute int) time.Time {
	return time.Date(2025, 6, 15, hour, minute, 0, 0, time.UTC)
}

func (f *fixture) request(td tenantData) BookingRequest {
	return BookingRequest{
		ClientPhone: "+7 (916) 123-45-67",
		ClientName:  "Maria",
		ServiceID:   td.svc.ID,
		Date:        "2025-06-15",
		Origin:      model.OriginAutomatic,
	}
}
