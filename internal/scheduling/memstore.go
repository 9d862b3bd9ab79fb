package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-memory Repository. A single mutex makes every
// conditional check-and-write atomic, which is the per-doctor mutual
// exclusion variant of the engine's no-double-booking guarantee. It backs the
// test suite and works as an embedded mode for single-process deployments.
type MemStore struct {
	mu sync.Mutex

	patients map[uuid.UUID]*Patient
	open     map[uuid.UUID]map[string][]TimeWindow // doctor -> day -> windows
	slots    []*BookedSlot
	appts    map[uuid.UUID]*Appointment
	events   []*EventLog
	nextEvID int64

	// AppointmentInsertHook, when set, runs between the booked-slot write and
	// the appointment write inside CreateBooking. Tests use it to inject a
	// mid-transaction fault and assert the slot write is rolled back.
	AppointmentInsertHook func() error
}

func NewMemStore() *MemStore {
	return &MemStore{
		patients: make(map[uuid.UUID]*Patient),
		open:     make(map[uuid.UUID]map[string][]TimeWindow),
		appts:    make(map[uuid.UUID]*Appointment),
		nextEvID: 1,
	}
}

// AddPatient registers a patient so bookings referencing them pass the
// existence check.
func (m *MemStore) AddPatient(p Patient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := p
	m.patients[p.ID] = &cp
}

func (m *MemStore) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemStore) UpsertOpenHours(_ context.Context, doctorID uuid.UUID, day Day, windows []TimeWindow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.open[doctorID] == nil {
		m.open[doctorID] = make(map[string][]TimeWindow)
	}
	cp := make([]TimeWindow, len(windows))
	copy(cp, windows)
	m.open[doctorID][day.String()] = cp
	return nil
}

func (m *MemStore) OpenHoursInRange(_ context.Context, doctorID uuid.UUID, from, to Day) ([]OpenHours, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []OpenHours
	for day := from; !day.After(to.Time); day = day.Next() {
		windows, ok := m.open[doctorID][day.String()]
		if !ok {
			continue
		}
		cp := make([]TimeWindow, len(windows))
		copy(cp, windows)
		result = append(result, OpenHours{DoctorID: doctorID, Day: day, Windows: cp})
	}
	return result, nil
}

func (m *MemStore) ActiveBookedSlots(_ context.Context, doctorID uuid.UUID, from, to Day) ([]BookedSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []BookedSlot
	for _, s := range m.slots {
		if s.DoctorID != doctorID || s.Status == SlotCanceled {
			continue
		}
		if s.Day.Before(from.Time) || s.Day.After(to.Time) {
			continue
		}
		result = append(result, *s)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Day.Equal(result[j].Day.Time) {
			return result[i].Day.Before(result[j].Day.Time)
		}
		return result[i].Start < result[j].Start
	})
	return result, nil
}

func (m *MemStore) CreateBooking(_ context.Context, p BookingParams) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.slots {
		if s.DoctorID != p.DoctorID || s.Status == SlotCanceled || !s.Day.Equal(p.Day.Time) {
			continue
		}
		if overlaps(p.Start, p.End, s.Start, s.End) {
			return nil, ErrSlotAlreadyBooked
		}
	}

	now := time.Now().UTC()
	slot := &BookedSlot{
		ID:            uuid.New(),
		DoctorID:      p.DoctorID,
		PatientID:     p.PatientID,
		AppointmentID: uuid.New(),
		Day:           p.Day,
		Start:         p.Start,
		End:           p.End,
		Status:        SlotPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	m.slots = append(m.slots, slot)

	if m.AppointmentInsertHook != nil {
		if err := m.AppointmentInsertHook(); err != nil {
			// Roll the slot write back; both records change or neither does.
			m.slots = m.slots[:len(m.slots)-1]
			return nil, err
		}
	}

	appt := &Appointment{
		ID:        slot.AppointmentID,
		DoctorID:  p.DoctorID,
		PatientID: p.PatientID,
		Day:       p.Day,
		Start:     p.Start,
		End:       p.End,
		Purpose:   p.Purpose,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.appts[appt.ID] = appt

	cp := *appt
	return &cp, nil
}

func (m *MemStore) CancelBooking(_ context.Context, id uuid.UUID, by CancelActor) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	appt, ok := m.appts[id]
	if !ok || (appt.Status != StatusPending && appt.Status != StatusConfirmed) {
		return nil, ErrAppointmentNotFound
	}

	appt.Status = StatusCanceled
	actor := by
	appt.CanceledBy = &actor
	appt.UpdatedAt = time.Now().UTC()

	for _, s := range m.slots {
		if s.AppointmentID == id {
			s.Status = SlotCanceled
			s.UpdatedAt = appt.UpdatedAt
		}
	}

	cp := *appt
	return &cp, nil
}

func (m *MemStore) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	appt, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *appt
	return &cp, nil
}

func (m *MemStore) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	appt, ok := m.appts[id]
	if !ok || appt.Status != from {
		return nil, ErrAppointmentNotFound
	}
	appt.Status = to
	appt.UpdatedAt = time.Now().UTC()

	if to == StatusConfirmed {
		for _, s := range m.slots {
			if s.AppointmentID == id {
				s.Status = SlotConfirmed
				s.UpdatedAt = appt.UpdatedAt
			}
		}
	}

	cp := *appt
	return &cp, nil
}

func (m *MemStore) ListAppointmentsByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var all []Appointment
	for _, a := range m.appts {
		if a.PatientID == patientID {
			all = append(all, *a)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].Day.Equal(all[j].Day.Time) {
			return all[i].Day.After(all[j].Day.Time)
		}
		return all[i].Start > all[j].Start
	})

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (m *MemStore) ListAppointmentsByDoctor(_ context.Context, doctorID uuid.UUID, from, to Day) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []Appointment
	for _, a := range m.appts {
		if a.DoctorID != doctorID {
			continue
		}
		if a.Day.Before(from.Time) || a.Day.After(to.Time) {
			continue
		}
		result = append(result, *a)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Day.Equal(result[j].Day.Time) {
			return result[i].Day.Before(result[j].Day.Time)
		}
		return result[i].Start < result[j].Start
	})
	return result, nil
}

func (m *MemStore) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev.ID = m.nextEvID
	m.nextEvID++
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	m.events = append(m.events, &ev)
	return nil
}

func (m *MemStore) UndispatchedEvents(_ context.Context, limit int) ([]EventLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []EventLog
	for _, ev := range m.events {
		if ev.DispatchedAt != nil {
			continue
		}
		result = append(result, *ev)
		if len(result) == limit {
			break
		}
	}
	return result, nil
}

func (m *MemStore) MarkEventDispatched(_ context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ev := range m.events {
		if ev.ID == id && ev.DispatchedAt == nil {
			t := at
			ev.DispatchedAt = &t
		}
	}
	return nil
}

// Events returns a snapshot of every recorded event, for tests.
func (m *MemStore) Events() []EventLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EventLog, len(m.events))
	for i, ev := range m.events {
		out[i] = *ev
	}
	return out
}
