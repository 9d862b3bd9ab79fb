package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/config"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

const (
	EventBookingCreated       = "BOOKING_CREATED"
	EventAppointmentConfirmed = "APPOINTMENT_CONFIRMED"
	EventAppointmentCanceled  = "APPOINTMENT_CANCELED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
)

var (
	ErrSlotAlreadyBooked  = errors.New("slot overlaps an existing booking")
	ErrDoctorBusy         = errors.New("doctor calendar is busy, please retry")
	ErrInvalidTransition  = errors.New("invalid appointment status transition")
	ErrCancellationWindow = errors.New("appointment can no longer be canceled")
	ErrInvalidTimeWindow  = errors.New("invalid time window")
	ErrInvalidDateRange   = errors.New("invalid date range")
	ErrInvalidCancelActor = errors.New("invalid cancel actor")
)

// Service is the scheduling engine: it turns declared open hours into
// bookable slots, commits reservations, and drives appointments through
// their lifecycle. All booking and cancel writes for one doctor are
// serialized by a per-doctor lock on top of the repository's own
// conditional writes.
type Service struct {
	repo      Repository
	directory DoctorDirectory
	locker    redisclient.Locker
	cfg       config.Config
	log       zerolog.Logger

	now func() time.Time
}

func NewService(repo Repository, directory DoctorDirectory, locker redisclient.Locker, cfg config.Config, log zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		directory: directory,
		locker:    locker,
		cfg:       cfg,
		log:       log.With().Str("component", "scheduling").Logger(),
		now:       time.Now,
	}
}

// DeclareOpenHours upserts the doctor's open-hour windows for one day,
// replacing any previous declaration for that day.
func (s *Service) DeclareOpenHours(ctx context.Context, doctorID uuid.UUID, day Day, windows []TimeWindow) error {
	if err := validateWindows(windows); err != nil {
		return err
	}
	if _, err := s.directory.AppointmentDuration(ctx, doctorID); err != nil {
		return err
	}
	if err := s.repo.UpsertOpenHours(ctx, doctorID, day, windows); err != nil {
		return fmt.Errorf("upsert open hours: %w", err)
	}
	return nil
}

// QueryAvailableSlots expands the doctor's open hours in [from, to] into
// fixed-duration candidate slots and removes every candidate that overlaps a
// non-canceled booked slot on the same day. Read-only.
func (s *Service) QueryAvailableSlots(ctx context.Context, doctorID uuid.UUID, from, to Day) (*Availability, error) {
	if from.After(to.Time) {
		return nil, ErrInvalidDateRange
	}

	duration, err := s.directory.AppointmentDuration(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	price, err := s.directory.AppointmentPrice(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	open, err := s.repo.OpenHoursInRange(ctx, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load open hours: %w", err)
	}
	booked, err := s.repo.ActiveBookedSlots(ctx, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load booked slots: %w", err)
	}

	bookedByDay := make(map[string][]BookedSlot)
	for _, b := range booked {
		key := b.Day.String()
		bookedByDay[key] = append(bookedByDay[key], b)
	}

	result := &Availability{
		DoctorID:    doctorID,
		SlotMinutes: int(duration / time.Minute),
		PriceCents:  price,
	}
	for _, oh := range open {
		dayBooked := bookedByDay[oh.Day.String()]
		var free []CandidateSlot
		for _, w := range oh.Windows {
			candidates, err := GenerateSlots(w, duration)
			if err != nil {
				return nil, err
			}
			for _, c := range candidates {
				if !overlapsAnySlot(c, dayBooked) {
					free = append(free, c)
				}
			}
		}
		result.Days = append(result.Days, DayAvailability{Day: oh.Day, Slots: free})
	}
	return result, nil
}

// IsSlotFree reports whether no non-canceled booked slot for the doctor on
// that day overlaps [start, end). Advisory only: the authoritative check
// happens inside CreateBooking.
func (s *Service) IsSlotFree(ctx context.Context, doctorID uuid.UUID, day Day, start, end TimeOfDay) (bool, error) {
	if start >= end || !start.Valid() || !end.Valid() {
		return false, ErrInvalidTimeWindow
	}
	booked, err := s.repo.ActiveBookedSlots(ctx, doctorID, day, day)
	if err != nil {
		return false, fmt.Errorf("load booked slots: %w", err)
	}
	for _, b := range booked {
		if overlaps(start, end, b.Start, b.End) {
			return false, nil
		}
	}
	return true, nil
}

// Book reserves a slot exclusively for a patient and creates the pending
// appointment. The conflict check and both writes happen atomically inside
// the repository, guarded by the per-doctor lock, so concurrent attempts at
// overlapping ranges yield exactly one success.
func (s *Service) Book(ctx context.Context, p BookingParams) (*Appointment, error) {
	if p.Start >= p.End || !p.Start.Valid() || !p.End.Valid() {
		return nil, ErrInvalidTimeWindow
	}

	duration, err := s.directory.AppointmentDuration(ctx, p.DoctorID)
	if err != nil {
		return nil, err
	}
	if time.Duration(p.End-p.Start)*time.Minute != duration {
		return nil, fmt.Errorf("%w: booking must span exactly %s", ErrInvalidTimeWindow, duration)
	}
	if _, err := s.repo.GetPatientByID(ctx, p.PatientID); err != nil {
		return nil, err
	}

	var created *Appointment
	err = s.locker.WithDoctorLock(ctx, p.DoctorID, func(lockCtx context.Context) error {
		appt, err := s.repo.CreateBooking(lockCtx, p)
		if err != nil {
			return err
		}
		created = appt
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrDoctorBusy
		}
		return nil, err
	}

	s.logEvent(ctx, created, EventBookingCreated, nil)

	s.log.Info().
		Str("appointment_id", created.ID.String()).
		Str("doctor_id", p.DoctorID.String()).
		Str("day", p.Day.String()).
		Str("start", p.Start.String()).
		Msg("appointment booked")

	return created, nil
}

// Cancel moves a pending or confirmed appointment to canceled and releases
// its booked slot in the same transaction. Doctors and patients must cancel
// at least the configured window before the appointment starts; admins
// bypass the window.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, by CancelActor) (*Appointment, error) {
	if !by.Valid() {
		return nil, ErrInvalidCancelActor
	}

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canTransition(appt.Status, StatusCanceled) {
		return nil, ErrInvalidTransition
	}
	if by != ActorAdmin {
		lead := appt.StartsAt().Sub(s.now().UTC())
		if lead < s.cfg.CancelWindow {
			return nil, fmt.Errorf("%w: requires %s notice, got %s", ErrCancellationWindow, s.cfg.CancelWindow, lead.Truncate(time.Minute))
		}
	}

	var canceled *Appointment
	err = s.locker.WithDoctorLock(ctx, appt.DoctorID, func(lockCtx context.Context) error {
		updated, err := s.repo.CancelBooking(lockCtx, id, by)
		if err != nil {
			// The status moved between our read and the conditional write.
			if errors.Is(err, ErrAppointmentNotFound) {
				return ErrInvalidTransition
			}
			return err
		}
		canceled = updated
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrDoctorBusy
		}
		return nil, err
	}

	s.logEvent(ctx, canceled, EventAppointmentCanceled, map[string]any{"canceled_by": string(by)})

	s.log.Info().
		Str("appointment_id", id.String()).
		Str("canceled_by", string(by)).
		Msg("appointment canceled")

	return canceled, nil
}

// Confirm moves a pending appointment to confirmed.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canTransition(appt.Status, StatusConfirmed) {
		return nil, ErrInvalidTransition
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, id, StatusPending, StatusConfirmed)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("confirm appointment: %w", err)
	}

	s.logEvent(ctx, updated, EventAppointmentConfirmed, nil)
	return updated, nil
}

// Complete moves a confirmed appointment to completed and bumps the doctor's
// completed-appointments counter. Completing a pending appointment fails.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canTransition(appt.Status, StatusCompleted) {
		return nil, ErrInvalidTransition
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, id, StatusConfirmed, StatusCompleted)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("complete appointment: %w", err)
	}

	if err := s.directory.IncrementCompletedAppointments(ctx, updated.DoctorID); err != nil {
		s.log.Warn().Err(err).
			Str("doctor_id", updated.DoctorID.String()).
			Msg("failed to increment completed appointments")
	}

	s.logEvent(ctx, updated, EventAppointmentCompleted, nil)
	return updated, nil
}

// GetAppointment retrieves one appointment by ID.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return appt, nil
}

// ListAppointmentsByPatient retrieves appointments for a patient, newest first.
func (s *Service) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	appts, err := s.repo.ListAppointmentsByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appts, nil
}

// ListAppointmentsByDoctor retrieves a doctor's appointments with Day in
// [from, to].
func (s *Service) ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, from, to Day) ([]Appointment, error) {
	if from.After(to.Time) {
		return nil, ErrInvalidDateRange
	}
	appts, err := s.repo.ListAppointmentsByDoctor(ctx, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list appointments by doctor: %w", err)
	}
	return appts, nil
}

// logEvent records a lifecycle event into the outbox. Best effort: delivery
// problems never fail the transition that triggered the event.
func (s *Service) logEvent(ctx context.Context, appt *Appointment, eventType string, extra map[string]any) {
	payload := map[string]any{
		"appointment_id": appt.ID.String(),
		"doctor_id":      appt.DoctorID.String(),
		"patient_id":     appt.PatientID.String(),
		"day":            appt.Day.String(),
		"start":          appt.Start.String(),
		"end":            appt.End.String(),
	}
	for k, v := range extra {
		payload[k] = v
	}

	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appt.ID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Warn().Err(err).
			Str("event_type", eventType).
			Str("appointment_id", appt.ID.String()).
			Msg("failed to insert event log")
	}
}

func validateWindows(windows []TimeWindow) error {
	if len(windows) == 0 {
		return fmt.Errorf("%w: at least one window required", ErrInvalidTimeWindow)
	}
	for _, w := range windows {
		if !w.Start.Valid() || !w.End.Valid() || w.Start >= w.End {
			return fmt.Errorf("%w: %s-%s", ErrInvalidTimeWindow, w.Start, w.End)
		}
	}
	for i, a := range windows {
		for _, b := range windows[i+1:] {
			if overlaps(a.Start, a.End, b.Start, b.End) {
				return fmt.Errorf("%w: windows %s-%s and %s-%s overlap", ErrInvalidTimeWindow, a.Start, a.End, b.Start, b.End)
			}
		}
	}
	return nil
}

func overlapsAnySlot(c CandidateSlot, booked []BookedSlot) bool {
	for _, b := range booked {
		if overlaps(c.Start, c.End, b.Start, b.End) {
			return true
		}
	}
	return false
}
