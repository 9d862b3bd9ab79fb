package scheduling

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCompleted AppointmentStatus = "completed"
	StatusCanceled  AppointmentStatus = "canceled"
)

// validTransitions is the closed transition table for appointments. Anything
// not listed here is rejected with ErrInvalidTransition.
var validTransitions = map[AppointmentStatus]map[AppointmentStatus]bool{
	StatusPending:   {StatusConfirmed: true, StatusCanceled: true},
	StatusConfirmed: {StatusCompleted: true, StatusCanceled: true},
}

func canTransition(from, to AppointmentStatus) bool {
	return validTransitions[from][to]
}

type SlotStatus string

const (
	SlotPending   SlotStatus = "pending"
	SlotConfirmed SlotStatus = "confirmed"
	SlotCanceled  SlotStatus = "canceled"
)

// CancelActor identifies who requested a cancellation. Admins bypass the
// cancellation window.
type CancelActor string

const (
	ActorDoctor  CancelActor = "doctor"
	ActorPatient CancelActor = "patient"
	ActorAdmin   CancelActor = "admin"
)

func (a CancelActor) Valid() bool {
	return a == ActorDoctor || a == ActorPatient || a == ActorAdmin
}

// TimeWindow is a doctor-declared open-hour range within a single day.
type TimeWindow struct {
	Start TimeOfDay `json:"start"`
	End   TimeOfDay `json:"end"`
}

// OpenHours is the declared open-hour entry for one doctor on one day.
// Declarations are last-write-wins per day.
type OpenHours struct {
	DoctorID uuid.UUID
	Day      Day
	Windows  []TimeWindow
}

// BookedSlot is a persisted reservation of a time range on a doctor's
// calendar. Non-canceled slots for one doctor and day never overlap.
type BookedSlot struct {
	ID            uuid.UUID
	DoctorID      uuid.UUID
	PatientID     uuid.UUID
	AppointmentID uuid.UUID
	Day           Day
	Start         TimeOfDay
	End           TimeOfDay
	Status        SlotStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Appointment struct {
	ID             uuid.UUID
	DoctorID       uuid.UUID
	PatientID      uuid.UUID
	Day            Day
	Start          TimeOfDay
	End            TimeOfDay
	Purpose        string
	Status         AppointmentStatus
	CanceledBy     *CancelActor
	PrescriptionID *uuid.UUID
	FeedbackID     *uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// StartsAt is the absolute UTC instant the appointment begins, used for the
// cancellation-window check.
func (a *Appointment) StartsAt() time.Time {
	return a.Day.At(a.Start)
}

// CandidateSlot is an ephemeral bookable range derived from an open-hour
// window. It is never persisted.
type CandidateSlot struct {
	Start TimeOfDay `json:"start"`
	End   TimeOfDay `json:"end"`
}

// DayAvailability is the per-day result of an availability query.
type DayAvailability struct {
	Day   Day             `json:"day"`
	Slots []CandidateSlot `json:"slots"`
}

// Availability is the full availability response for a doctor over a date
// range, carrying the doctor's slot length and visit price alongside.
type Availability struct {
	DoctorID    uuid.UUID         `json:"doctor_id"`
	SlotMinutes int               `json:"slot_minutes"`
	PriceCents  int64             `json:"price_cents"`
	Days        []DayAvailability `json:"days"`
}

// Patient is the minimal projection of a patient this engine needs. Profile
// management lives outside.
type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
	DispatchedAt  *time.Time
}
