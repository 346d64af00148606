package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Freeeeeet/booking_core/internal/model"
	"github.com/Freeeeeet/booking_core/internal/repository"
	"github.com/Freeeeeet/booking_core/internal/repository/base"
	"github.com/Freeeeeet/booking_core/internal/schedule"
	"github.com/google/uuid"
)

// memState содержимое in-memory базы; клонируется на старте транзакции для отката
type memState struct {
	orgs          map[uuid.UUID]model.Organization
	services      map[uuid.UUID]model.Service
	professionals map[uuid.UUID]model.Professional
	assignments   map[uuid.UUID]map[uuid.UUID]bool
	clients       map[uuid.UUID]model.Client
	slots         map[uuid.UUID]model.TimeSlot
	appointments  map[uuid.UUID]model.Appointment
	blocked       []model.BlockedPeriod
	events        []model.SystemEvent
	counters      map[string]int
}

func newMemState() memState {
	return memState{
		orgs:          map[uuid.UUID]model.Organization{},
		services:      map[uuid.UUID]model.Service{},
		professionals: map[uuid.UUID]model.Professional{},
		assignments:   map[uuid.UUID]map[uuid.UUID]bool{},
		clients:       map[uuid.UUID]model.Client{},
		slots:         map[uuid.UUID]model.TimeSlot{},
		appointments:  map[uuid.UUID]model.Appointment{},
		counters:      map[string]int{},
	}
}

func (s memState) clone() memState {
	c := newMemState()
	for k, v := range s.orgs {
		c.orgs[k] = v
	}
	for k, v := range s.services {
		c.services[k] = v
	}
	for k, v := range s.professionals {
		c.professionals[k] = v
	}
	for k, v := range s.assignments {
		inner := map[uuid.UUID]bool{}
		for sk, sv := range v {
			inner[sk] = sv
		}
		c.assignments[k] = inner
	}
	for k, v := range s.clients {
		c.clients[k] = v
	}
	for k, v := range s.slots {
		c.slots[k] = v
	}
	for k, v := range s.appointments {
		c.appointments[k] = v
	}
	c.blocked = append(c.blocked, s.blocked...)
	c.events = append(c.events, s.events...)
	for k, v := range s.counters {
		c.counters[k] = v
	}
	return c
}

// memDB сериализует транзакции одним мьютексом и восстанавливает снимок при ошибке.
// Строки чужого арендатора не видны, как под политикой RLS.
type memDB struct {
	mu    sync.Mutex
	state memState

	// contention сколько следующих LockNoWait завершатся ошибкой конкуренции
	contention int
	lockCalls  int
	failEvents bool
	commits    int
}

func newMemDB() *memDB {
	return &memDB{state: newMemState()}
}

func (m *memDB) InTenantTx(ctx context.Context, tenantID uuid.UUID, fn base.TxFunc) error {
	if tenantID == uuid.Nil {
		return model.NewError(model.KindTenantIsolation, "tenant id is required", nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	if err := fn(base.WithTenant(ctx, tenantID), nil); err != nil {
		m.state = snapshot
		return err
	}
	m.commits++
	return nil
}

func (m *memDB) InTenantReadTx(ctx context.Context, tenantID uuid.UUID, fn base.TxFunc) error {
	return m.InTenantTx(ctx, tenantID, fn)
}

func (m *memDB) repos() Repositories {
	return Repositories{
		Slots:        &memSlots{m},
		Appointments: &memAppointments{m},
		Catalog:      &memCatalog{m},
		Clients:      &memClients{m},
		Blocked:      &memBlocked{m},
		Events:       &memEvents{m},
	}
}

// Методы ниже для подготовки и проверки данных, вне транзакций

func (m *memDB) slot(id uuid.UUID) model.TimeSlot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.slots[id]
}

func (m *memDB) appointmentByCode(org uuid.UUID, code string) (model.Appointment, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.state.appointments {
		if a.OrganizationID == org && a.Code == code {
			return a, true
		}
	}
	return model.Appointment{}, false
}

func (m *memDB) eventTypes(org uuid.UUID) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var types []string
	for _, e := range m.state.events {
		if e.OrganizationID == org {
			types = append(types, e.EventType)
		}
	}
	return types
}

func (m *memDB) addSlot(org, prof uuid.UUID, start time.Time, minutes int) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.state.slots[id] = model.TimeSlot{
		ID:              id,
		OrganizationID:  org,
		ProfessionalID:  prof,
		StartAt:         start,
		EndAt:           start.Add(time.Duration(minutes) * time.Minute),
		DurationMinutes: minutes,
		State:           model.SlotStateAvailable,
		Capacity:        1,
		Version:         1,
	}
	return id
}

func (m *memDB) addBlocked(org uuid.UUID, prof *uuid.UUID, start, end time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.blocked = append(m.state.blocked, model.BlockedPeriod{
		ID: uuid.New(), OrganizationID: org, ProfessionalID: prof, StartAt: start, EndAt: end, Reason: "vacation",
	})
}

type memSlots struct{ db *memDB }

func (r *memSlots) LockNoWait(ctx context.Context, _ base.Querier, id uuid.UUID) (*model.TimeSlot, error) {
	r.db.lockCalls++
	if r.db.contention > 0 {
		r.db.contention--
		return nil, model.NewError(model.KindContention, "slot is locked by another operation", nil)
	}
	slot, ok := r.db.state.slots[id]
	if !ok || slot.OrganizationID != base.TenantFromContext(ctx) {
		return nil, nil
	}
	return &slot, nil
}

func (r *memSlots) MarkHeld(ctx context.Context, _ base.Querier, id uuid.UUID, holderRef string, expiresAt time.Time) (int64, error) {
	slot := r.db.state.slots[id]
	slot.State = model.SlotStateTemporarilyHeld
	slot.HoldExpiresAt = &expiresAt
	slot.HolderRef = &holderRef
	slot.Version++
	r.db.state.slots[id] = slot
	return slot.Version, nil
}

func (r *memSlots) ReleaseHold(ctx context.Context, _ base.Querier, id uuid.UUID, holderRef string) (bool, error) {
	slot, ok := r.db.state.slots[id]
	if !ok || slot.OrganizationID != base.TenantFromContext(ctx) || !slot.HeldBy(holderRef) {
		return false, nil
	}
	r.db.state.slots[id] = freed(slot)
	return true, nil
}

func (r *memSlots) Occupy(ctx context.Context, _ base.Querier, id, appointmentID uuid.UUID) (int64, error) {
	slot, ok := r.db.state.slots[id]
	if !ok || slot.OrganizationID != base.TenantFromContext(ctx) ||
		(slot.State != model.SlotStateAvailable && slot.State != model.SlotStateTemporarilyHeld) {
		return 0, model.NewError(model.KindSlotUnavailable, "slot was taken before commit", nil)
	}
	slot.State = model.SlotStateOccupied
	slot.AppointmentID = &appointmentID
	slot.HoldExpiresAt = nil
	slot.HolderRef = nil
	slot.Version++
	r.db.state.slots[id] = slot
	return slot.Version, nil
}

func (r *memSlots) Release(ctx context.Context, _ base.Querier, id, appointmentID uuid.UUID) (bool, error) {
	slot, ok := r.db.state.slots[id]
	if !ok || slot.OrganizationID != base.TenantFromContext(ctx) ||
		slot.State != model.SlotStateOccupied || slot.AppointmentID == nil || *slot.AppointmentID != appointmentID {
		return false, nil
	}
	r.db.state.slots[id] = freed(slot)
	return true, nil
}

func freed(slot model.TimeSlot) model.TimeSlot {
	slot.State = model.SlotStateAvailable
	slot.AppointmentID = nil
	slot.HoldExpiresAt = nil
	slot.HolderRef = nil
	slot.Version++
	return slot
}

func (r *memSlots) ReclaimExpired(ctx context.Context, _ base.Querier, now time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for id, slot := range r.db.state.slots {
		if len(ids) == limit {
			break
		}
		if slot.OrganizationID != base.TenantFromContext(ctx) || slot.State != model.SlotStateTemporarilyHeld {
			continue
		}
		if slot.HoldExpiresAt != nil && !slot.HoldExpiresAt.After(now) {
			r.db.state.slots[id] = freed(slot)
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *memSlots) Search(ctx context.Context, _ base.Querier, f repository.SlotFilter) ([]model.CandidateSlot, error) {
	st := r.db.state
	tenant := base.TenantFromContext(ctx)
	loc, err := time.LoadLocation(f.Timezone)
	if err != nil {
		loc = time.UTC
	}

	var out []model.CandidateSlot
	for _, s := range st.slots {
		if s.OrganizationID != tenant || s.OrganizationID != f.OrganizationID || s.State != model.SlotStateAvailable {
			continue
		}
		if s.StartAt.Before(f.From) || !s.StartAt.Before(f.To) {
			continue
		}
		p, ok := st.professionals[s.ProfessionalID]
		if !ok || !p.IsActive || !p.AcceptsOnlineBooking {
			continue
		}
		if f.ProfessionalID != nil && s.ProfessionalID != *f.ProfessionalID {
			continue
		}
		if f.ServiceID != nil && !st.assignments[s.ProfessionalID][*f.ServiceID] {
			continue
		}
		if f.RequiredMinutes > 0 && s.DurationMinutes < f.RequiredMinutes {
			continue
		}
		if f.Window != nil && !f.Window.Contains(s.StartAt.In(loc)) {
			continue
		}
		slotIv := schedule.Interval{Start: s.StartAt, End: s.EndAt}
		if f.RequiredMinutes > 0 {
			slotIv.End = s.StartAt.Add(time.Duration(f.RequiredMinutes) * time.Minute)
		}
		if blockedOverlap(st.blocked, tenant, s.ProfessionalID, slotIv) {
			continue
		}
		if appointmentOverlap(st.appointments, tenant, s.ProfessionalID, slotIv, f.ExcludeAppointmentID) {
			continue
		}
		out = append(out, model.CandidateSlot{
			SlotID:           s.ID,
			ProfessionalID:   s.ProfessionalID,
			ProfessionalName: p.Name,
			StartAt:          s.StartAt,
			EndAt:            s.EndAt,
			DurationMinutes:  s.DurationMinutes,
			Version:          s.Version,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartAt.Equal(out[j].StartAt) {
			return out[i].StartAt.Before(out[j].StartAt)
		}
		return out[i].SlotID.String() < out[j].SlotID.String()
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func blockedOverlap(blocked []model.BlockedPeriod, tenant, prof uuid.UUID, iv schedule.Interval) bool {
	for _, b := range blocked {
		if b.OrganizationID != tenant || (b.ProfessionalID != nil && *b.ProfessionalID != prof) {
			continue
		}
		if iv.Overlaps(schedule.Interval{Start: b.StartAt, End: b.EndAt}) {
			return true
		}
	}
	return false
}

func appointmentOverlap(appointments map[uuid.UUID]model.Appointment, tenant, prof uuid.UUID, iv schedule.Interval, exclude *uuid.UUID) bool {
	for _, a := range appointments {
		if a.OrganizationID != tenant || a.ProfessionalID != prof || !a.State.Blocking() {
			continue
		}
		if exclude != nil && a.ID == *exclude {
			continue
		}
		if iv.Overlaps(schedule.Interval{Start: a.StartsAt, End: a.EndsAt}) {
			return true
		}
	}
	return false
}

type memAppointments struct{ db *memDB }

func (r *memAppointments) NextCodeSeq(ctx context.Context, _ base.Querier, organizationID uuid.UUID, day time.Time) (int, error) {
	key := organizationID.String() + day.Format("2006-01-02")
	r.db.state.counters[key]++
	return r.db.state.counters[key], nil
}

func (r *memAppointments) Insert(ctx context.Context, _ base.Querier, a *model.Appointment) error {
	for _, existing := range r.db.state.appointments {
		if existing.OrganizationID == a.OrganizationID && existing.Code == a.Code {
			return model.NewError(model.KindContention, "appointment code is already taken", nil)
		}
	}
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	r.db.state.appointments[a.ID] = *a
	return nil
}

func (r *memAppointments) LockByCode(ctx context.Context, _ base.Querier, organizationID uuid.UUID, code string) (*model.Appointment, error) {
	tenant := base.TenantFromContext(ctx)
	for _, a := range r.db.state.appointments {
		if a.OrganizationID == tenant && a.OrganizationID == organizationID && a.Code == code {
			found := a
			return &found, nil
		}
	}
	return nil, nil
}

func (r *memAppointments) Reschedule(ctx context.Context, _ base.Querier, a *model.Appointment, previousDate time.Time) error {
	existing, ok := r.db.state.appointments[a.ID]
	if !ok || existing.OrganizationID != base.TenantFromContext(ctx) || !existing.Date.Equal(previousDate) {
		return errors.New("appointment row not found")
	}
	r.db.state.appointments[a.ID] = *a
	return nil
}

func (r *memAppointments) Cancel(ctx context.Context, _ base.Querier, a *model.Appointment, reason string, cancelledAt time.Time) error {
	existing, ok := r.db.state.appointments[a.ID]
	if !ok || existing.OrganizationID != base.TenantFromContext(ctx) {
		return errors.New("appointment row not found")
	}
	a.State = model.AppointmentStateCancelled
	a.CancelReason = &reason
	a.CancelledAt = &cancelledAt
	r.db.state.appointments[a.ID] = *a
	return nil
}

func (r *memAppointments) BusyIntervals(ctx context.Context, _ base.Querier, professionalID uuid.UUID, day time.Time, excludeID *uuid.UUID) ([]schedule.Interval, error) {
	tenant := base.TenantFromContext(ctx)
	var busy []schedule.Interval
	for _, a := range r.db.state.appointments {
		if a.OrganizationID != tenant || a.ProfessionalID != professionalID || !a.Date.Equal(day) || !a.State.Blocking() {
			continue
		}
		if excludeID != nil && a.ID == *excludeID {
			continue
		}
		busy = append(busy, schedule.Interval{Start: a.StartsAt, End: a.EndsAt})
	}
	return busy, nil
}

func (r *memAppointments) FindByPhone(ctx context.Context, _ base.Querier, pq repository.PhoneQuery) ([]model.Appointment, error) {
	st := r.db.state
	tenant := base.TenantFromContext(ctx)
	var out []model.Appointment
	for _, a := range st.appointments {
		if a.OrganizationID != tenant || a.OrganizationID != pq.OrganizationID {
			continue
		}
		c := st.clients[a.ClientID]
		if !strings.HasSuffix(phoneDigits(c.Phone), pq.PhoneDigits) {
			continue
		}
		if len(pq.States) > 0 && !containsState(pq.States, a.State) {
			continue
		}
		if pq.Since != nil && a.StartsAt.Before(*pq.Since) {
			continue
		}
		a.ClientName = c.Name
		a.ProfessionalName = st.professionals[a.ProfessionalID].Name
		a.ServiceName = st.services[a.ServiceID].Name
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, nil
}

func containsState(states []model.AppointmentState, s model.AppointmentState) bool {
	for _, x := range states {
		if x == s {
			return true
		}
	}
	return false
}

type memCatalog struct{ db *memDB }

func (r *memCatalog) GetOrganization(ctx context.Context, _ base.Querier, id uuid.UUID) (*model.Organization, error) {
	org, ok := r.db.state.orgs[id]
	if !ok {
		return nil, nil
	}
	return &org, nil
}

func (r *memCatalog) ProfessionalBookable(ctx context.Context, _ base.Querier, professionalID uuid.UUID, serviceID *uuid.UUID) (bool, error) {
	p, ok := r.db.state.professionals[professionalID]
	if !ok || p.OrganizationID != base.TenantFromContext(ctx) || !p.IsActive || !p.AcceptsOnlineBooking {
		return false, nil
	}
	if serviceID != nil && !r.db.state.assignments[professionalID][*serviceID] {
		return false, nil
	}
	return true, nil
}

func (r *memCatalog) ListActiveOrganizationIDs(ctx context.Context, _ base.Querier) ([]uuid.UUID, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var ids []uuid.UUID
	for id, org := range r.db.state.orgs {
		if org.IsActive {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *memCatalog) GetService(ctx context.Context, _ base.Querier, id uuid.UUID) (*model.Service, error) {
	svc, ok := r.db.state.services[id]
	if !ok || svc.OrganizationID != base.TenantFromContext(ctx) {
		return nil, nil
	}
	return &svc, nil
}

type memClients struct{ db *memDB }

func (r *memClients) FindByPhone(ctx context.Context, _ base.Querier, organizationID uuid.UUID, digits string) (*model.Client, error) {
	for _, c := range r.db.state.clients {
		if c.OrganizationID == base.TenantFromContext(ctx) && c.OrganizationID == organizationID &&
			strings.HasSuffix(phoneDigits(c.Phone), digits) {
			found := c
			return &found, nil
		}
	}
	return nil, nil
}

func (r *memClients) Create(ctx context.Context, _ base.Querier, c *model.Client) error {
	c.CreatedAt = time.Now()
	r.db.state.clients[c.ID] = *c
	return nil
}

type memBlocked struct{ db *memDB }

func (r *memBlocked) Overlapping(ctx context.Context, _ base.Querier, professionalID uuid.UUID, start, end time.Time) ([]model.BlockedPeriod, error) {
	tenant := base.TenantFromContext(ctx)
	iv := schedule.Interval{Start: start, End: end}
	var out []model.BlockedPeriod
	for _, b := range r.db.state.blocked {
		if blockedOverlap([]model.BlockedPeriod{b}, tenant, professionalID, iv) {
			out = append(out, b)
		}
	}
	return out, nil
}

type memEvents struct{ db *memDB }

func (r *memEvents) Append(ctx context.Context, _ base.Querier, ev *model.SystemEvent) error {
	if r.db.failEvents {
		return errors.New("system_events partition missing")
	}
	ev.CreatedAt = time.Now()
	r.db.state.events = append(r.db.state.events, *ev)
	return nil
}

// recordingSink получатель событий для проверки рассылки после коммита
type recordingSink struct {
	mu     sync.Mutex
	events []model.SystemEvent
	err    error
}

func (s *recordingSink) Publish(ctx context.Context, ev model.SystemEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

func (s *recordingSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var types []string
	for _, e := range s.events {
		types = append(types, e.EventType)
	}
	return types
}

// memPartitions хранилище секций для тестов жизненного цикла
type memPartitions struct {
	parts   map[string][]model.Partition
	retired []string
	// failCreate ошибки Create по имени секции
	failCreate map[string]error
}

func (s *memPartitions) List(ctx context.Context, parent string) ([]model.Partition, error) {
	return append([]model.Partition(nil), s.parts[parent]...), nil
}

func (s *memPartitions) Create(ctx context.Context, parent, name string, from, to time.Time) error {
	if err := s.failCreate[name]; err != nil {
		return err
	}
	s.parts[parent] = append(s.parts[parent], model.Partition{ParentTable: parent, Name: name, RangeStart: from, RangeEnd: to})
	return nil
}

func (s *memPartitions) Retire(ctx context.Context, parent, name string) error {
	kept := s.parts[parent][:0]
	for _, p := range s.parts[parent] {
		if p.Name != name {
			kept = append(kept, p)
		}
	}
	s.parts[parent] = kept
	s.retired = append(s.retired, name)
	return nil
}
