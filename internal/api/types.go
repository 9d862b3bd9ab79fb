package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/scheduling"
)

type DeclareOpenHoursRequest struct {
	Day     scheduling.Day          `json:"day"`
	Windows []scheduling.TimeWindow `json:"windows"`
}

type BookAppointmentRequest struct {
	DoctorID  string               `json:"doctor_id"`
	PatientID string               `json:"patient_id"`
	Day       scheduling.Day       `json:"day"`
	Start     scheduling.TimeOfDay `json:"start"`
	End       scheduling.TimeOfDay `json:"end"`
	Purpose   string               `json:"purpose"`
}

type CancelAppointmentRequest struct {
	CanceledBy string `json:"canceled_by"`
}

type AppointmentResponse struct {
	ID         uuid.UUID            `json:"id"`
	DoctorID   uuid.UUID            `json:"doctor_id"`
	PatientID  uuid.UUID            `json:"patient_id"`
	Day        scheduling.Day       `json:"day"`
	Start      scheduling.TimeOfDay `json:"start"`
	End        scheduling.TimeOfDay `json:"end"`
	Purpose    string               `json:"purpose,omitempty"`
	Status     string               `json:"status"`
	CanceledBy *string              `json:"canceled_by,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

func toAppointmentResponse(a *scheduling.Appointment) AppointmentResponse {
	resp := AppointmentResponse{
		ID:        a.ID,
		DoctorID:  a.DoctorID,
		PatientID: a.PatientID,
		Day:       a.Day,
		Start:     a.Start,
		End:       a.End,
		Purpose:   a.Purpose,
		Status:    string(a.Status),
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
	if a.CanceledBy != nil {
		by := string(*a.CanceledBy)
		resp.CanceledBy = &by
	}
	return resp
}

type AppointmentListResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
}

func toAppointmentListResponse(appts []scheduling.Appointment) AppointmentListResponse {
	out := AppointmentListResponse{Appointments: make([]AppointmentResponse, 0, len(appts))}
	for i := range appts {
		out.Appointments = append(out.Appointments, toAppointmentResponse(&appts[i]))
	}
	return out
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
