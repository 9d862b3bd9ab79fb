package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// BookingParams carries everything a repository needs to commit one booking.
type BookingParams struct {
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	Day       Day
	Start     TimeOfDay
	End       TimeOfDay
	Purpose   string
}

// Repository contains all persistence interactions needed by the service.
//
// CreateBooking and CancelBooking are the two atomic dual-writes of the
// engine: the booked-slot entry and the appointment record change together or
// not at all. Implementations must guarantee at-most-one non-canceled booking
// per overlapping (doctor, day, time range) as part of CreateBooking itself,
// not as a separate pre-check.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	UpsertOpenHours(ctx context.Context, doctorID uuid.UUID, day Day, windows []TimeWindow) error
	OpenHoursInRange(ctx context.Context, doctorID uuid.UUID, from, to Day) ([]OpenHours, error)

	// ActiveBookedSlots returns the non-canceled booked slots for the doctor
	// with Day in [from, to].
	ActiveBookedSlots(ctx context.Context, doctorID uuid.UUID, from, to Day) ([]BookedSlot, error)

	// CreateBooking atomically writes the booked-slot entry and the pending
	// appointment. Returns ErrSlotAlreadyBooked if any non-canceled slot
	// overlaps the requested range.
	CreateBooking(ctx context.Context, p BookingParams) (*Appointment, error)

	// CancelBooking atomically sets the appointment to canceled, records who
	// canceled, and releases the matching booked slot. Returns
	// ErrAppointmentNotFound if the appointment is missing or no longer in a
	// cancelable status.
	CancelBooking(ctx context.Context, id uuid.UUID, by CancelActor) (*Appointment, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// UpdateAppointmentStatus performs a conditional transition: the update
	// applies only while the stored status equals from. Returns
	// ErrAppointmentNotFound when the condition does not hold.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)

	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, from, to Day) ([]Appointment, error)

	// Event outbox
	InsertEvent(ctx context.Context, ev EventLog) error
	UndispatchedEvents(ctx context.Context, limit int) ([]EventLog, error)
	MarkEventDispatched(ctx context.Context, id int64, at time.Time) error
}

// DoctorDirectory is the consumed interface supplying per-doctor scheduling
// parameters. The directory itself (profiles, education, experience) lives
// outside this engine.
type DoctorDirectory interface {
	AppointmentDuration(ctx context.Context, doctorID uuid.UUID) (time.Duration, error)
	AppointmentPrice(ctx context.Context, doctorID uuid.UUID) (int64, error)
	IncrementCompletedAppointments(ctx context.Context, doctorID uuid.UUID) error
}
