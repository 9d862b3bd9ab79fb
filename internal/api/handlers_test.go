package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/directory"
	"github.com/hackgods/clinic-scheduling/internal/scheduling"
)

// nopLocker runs the critical section directly. The in-memory store already
// serializes writes, so handler tests do not need a real lock.
type nopLocker struct{}

func (nopLocker) WithDoctorLock(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type testServer struct {
	srv       *httptest.Server
	store     *scheduling.MemStore
	directory *directory.Static
	doctorID  uuid.UUID
	patientID uuid.UUID
	day       scheduling.Day
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := scheduling.NewMemStore()
	dir := directory.NewStatic()
	svc := scheduling.NewService(store, dir, nopLocker{}, config.Config{CancelWindow: 36 * time.Hour}, zerolog.Nop())

	router := NewRouter(RouterConfig{
		Service: svc,
		Env:     "test",
		Version: "test",
		Logger:  zerolog.Nop(),
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	ts := &testServer{
		srv:       srv,
		store:     store,
		directory: dir,
		doctorID:  uuid.New(),
		patientID: uuid.New(),
		// Far enough out that the cancellation window never interferes.
		day: scheduling.DayOf(time.Now().UTC().AddDate(0, 0, 7)),
	}
	dir.Add(ts.doctorID, directory.StaticEntry{Duration: 30 * time.Minute, PriceCents: 5000})
	store.AddPatient(scheduling.Patient{ID: ts.patientID, Name: "Ada Vance"})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (ts *testServer) declareOpenHours(t *testing.T, windows ...map[string]string) {
	t.Helper()
	resp := ts.do(t, http.MethodPut, "/doctors/"+ts.doctorID.String()+"/open-hours", map[string]any{
		"day":     ts.day.String(),
		"windows": windows,
	})
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func (ts *testServer) book(t *testing.T, start, end string) AppointmentResponse {
	t.Helper()
	resp := ts.do(t, http.MethodPost, "/appointments", map[string]string{
		"doctor_id":  ts.doctorID.String(),
		"patient_id": ts.patientID.String(),
		"day":        ts.day.String(),
		"start":      start,
		"end":        end,
		"purpose":    "checkup",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeBody[AppointmentResponse](t, resp)
}

func TestOpenHoursAndAvailability(t *testing.T) {
	ts := newTestServer(t)
	ts.declareOpenHours(t,
		map[string]string{"start": "09:00", "end": "10:00"},
		map[string]string{"start": "14:00", "end": "15:00"},
	)

	path := fmt.Sprintf("/doctors/%s/availability?from=%s&to=%s", ts.doctorID, ts.day, ts.day)
	resp := ts.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	avail := decodeBody[scheduling.Availability](t, resp)
	assert.Equal(t, ts.doctorID, avail.DoctorID)
	assert.Equal(t, 30, avail.SlotMinutes)
	assert.Equal(t, int64(5000), avail.PriceCents)
	require.Len(t, avail.Days, 1)
	assert.Len(t, avail.Days[0].Slots, 4)
}

func TestAvailabilityRequiresValidRange(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/doctors/"+ts.doctorID.String()+"/availability?from=bogus&to=2026-09-10", nil)
	body := decodeBody[ErrorResponse](t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_from", body.Error)

	path := fmt.Sprintf("/doctors/%s/availability?from=%s&to=%s", ts.doctorID, ts.day.Next(), ts.day)
	resp = ts.do(t, http.MethodGet, path, nil)
	body = decodeBody[ErrorResponse](t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_request", body.Error)
}

func TestBookAppointment(t *testing.T) {
	ts := newTestServer(t)

	appt := ts.book(t, "09:00", "09:30")
	assert.Equal(t, "pending", appt.Status)
	assert.Equal(t, ts.doctorID, appt.DoctorID)
	assert.Equal(t, ts.patientID, appt.PatientID)

	resp := ts.do(t, http.MethodGet, "/appointments/"+appt.ID.String(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeBody[AppointmentResponse](t, resp)
	assert.Equal(t, appt.ID, got.ID)
}

func TestBookAppointmentConflict(t *testing.T) {
	ts := newTestServer(t)
	ts.book(t, "09:00", "09:30")

	resp := ts.do(t, http.MethodPost, "/appointments", map[string]string{
		"doctor_id":  ts.doctorID.String(),
		"patient_id": ts.patientID.String(),
		"day":        ts.day.String(),
		"start":      "09:15",
		"end":        "09:45",
	})
	body := decodeBody[ErrorResponse](t, resp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "slot_already_booked", body.Error)
}

func TestBookAppointmentValidation(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/appointments", map[string]string{
		"doctor_id":  "not-a-uuid",
		"patient_id": ts.patientID.String(),
		"day":        ts.day.String(),
		"start":      "09:00",
		"end":        "09:30",
	})
	body := decodeBody[ErrorResponse](t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_doctor_id", body.Error)

	// Unknown doctor is a 404, not a validation failure.
	resp = ts.do(t, http.MethodPost, "/appointments", map[string]string{
		"doctor_id":  uuid.NewString(),
		"patient_id": ts.patientID.String(),
		"day":        ts.day.String(),
		"start":      "09:00",
		"end":        "09:30",
	})
	body = decodeBody[ErrorResponse](t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "doctor_not_found", body.Error)

	// Span not matching the doctor's slot length.
	resp = ts.do(t, http.MethodPost, "/appointments", map[string]string{
		"doctor_id":  ts.doctorID.String(),
		"patient_id": ts.patientID.String(),
		"day":        ts.day.String(),
		"start":      "09:00",
		"end":        "10:00",
	})
	body = decodeBody[ErrorResponse](t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_request", body.Error)
}

func TestAppointmentLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	appt := ts.book(t, "09:00", "09:30")

	// Completing before confirming is rejected.
	resp := ts.do(t, http.MethodPost, "/appointments/"+appt.ID.String()+"/complete", nil)
	body := decodeBody[ErrorResponse](t, resp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "invalid_status_transition", body.Error)

	resp = ts.do(t, http.MethodPost, "/appointments/"+appt.ID.String()+"/confirm", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	confirmed := decodeBody[AppointmentResponse](t, resp)
	assert.Equal(t, "confirmed", confirmed.Status)

	resp = ts.do(t, http.MethodPost, "/appointments/"+appt.ID.String()+"/complete", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	completed := decodeBody[AppointmentResponse](t, resp)
	assert.Equal(t, "completed", completed.Status)
	assert.Equal(t, 1, ts.directory.CompletedAppointments(ts.doctorID))
}

func TestCancelAppointmentOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	appt := ts.book(t, "09:00", "09:30")

	resp := ts.do(t, http.MethodPost, "/appointments/"+appt.ID.String()+"/cancel", map[string]string{
		"canceled_by": "patient",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	canceled := decodeBody[AppointmentResponse](t, resp)
	assert.Equal(t, "canceled", canceled.Status)
	require.NotNil(t, canceled.CanceledBy)
	assert.Equal(t, "patient", *canceled.CanceledBy)

	// Canceled is terminal.
	resp = ts.do(t, http.MethodPost, "/appointments/"+appt.ID.String()+"/confirm", nil)
	body := decodeBody[ErrorResponse](t, resp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "invalid_status_transition", body.Error)

	resp = ts.do(t, http.MethodPost, "/appointments/"+uuid.NewString()+"/cancel", map[string]string{
		"canceled_by": "admin",
	})
	body = decodeBody[ErrorResponse](t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "appointment_not_found", body.Error)

	resp = ts.do(t, http.MethodPost, "/appointments/not-a-uuid/cancel", map[string]string{
		"canceled_by": "admin",
	})
	body = decodeBody[ErrorResponse](t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_appointment_id", body.Error)
}

func TestListAppointmentsOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	ts.book(t, "09:00", "09:30")
	ts.book(t, "10:00", "10:30")

	resp := ts.do(t, http.MethodGet, "/patients/"+ts.patientID.String()+"/appointments", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	byPatient := decodeBody[AppointmentListResponse](t, resp)
	assert.Len(t, byPatient.Appointments, 2)

	path := fmt.Sprintf("/doctors/%s/appointments?from=%s&to=%s", ts.doctorID, ts.day, ts.day)
	resp = ts.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	byDoctor := decodeBody[AppointmentListResponse](t, resp)
	require.Len(t, byDoctor.Appointments, 2)
	assert.True(t, byDoctor.Appointments[0].Start < byDoctor.Appointments[1].Start)
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/health/live", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/health/ready", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
