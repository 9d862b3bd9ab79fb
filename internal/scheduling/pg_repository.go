package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgRepository persists the engine's state in Postgres. The booked_slots
// table carries an exclusion constraint over (doctor_id, day, time range)
// filtered to non-canceled rows, so the database itself refuses a second
// overlapping booking even if every application-level guard were bypassed.
type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Email = email
	return &p, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var day time.Time
	var start, end int32
	var canceledBy *string

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&day,
		&start,
		&end,
		&a.Purpose,
		&a.Status,
		&canceledBy,
		&a.PrescriptionID,
		&a.FeedbackID,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Day = DayOf(day)
	a.Start = TimeOfDay(start)
	a.End = TimeOfDay(end)
	if canceledBy != nil {
		actor := CancelActor(*canceledBy)
		a.CanceledBy = &actor
	}
	return &a, nil
}

const appointmentColumns = `id, doctor_id, patient_id, day, start_min, end_min, purpose, status, canceled_by, prescription_id, feedback_id, created_at, updated_at`

// Interface methods

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) UpsertOpenHours(ctx context.Context, doctorID uuid.UUID, day Day, windows []TimeWindow) error {
	data, err := json.Marshal(windows)
	if err != nil {
		return fmt.Errorf("marshal windows: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO open_hours (doctor_id, day, windows, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (doctor_id, day)
		DO UPDATE SET windows = EXCLUDED.windows, updated_at = now()
	`, doctorID, day.Time, data)
	if err != nil {
		return fmt.Errorf("upsert open hours: %w", err)
	}
	return nil
}

func (r *PgRepository) OpenHoursInRange(ctx context.Context, doctorID uuid.UUID, from, to Day) ([]OpenHours, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT day, windows
		FROM open_hours
		WHERE doctor_id = $1 AND day BETWEEN $2 AND $3
		ORDER BY day
	`, doctorID, from.Time, to.Time)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []OpenHours
	for rows.Next() {
		var day time.Time
		var data []byte
		if err := rows.Scan(&day, &data); err != nil {
			return nil, err
		}
		var windows []TimeWindow
		if err := json.Unmarshal(data, &windows); err != nil {
			return nil, fmt.Errorf("unmarshal windows: %w", err)
		}
		result = append(result, OpenHours{DoctorID: doctorID, Day: DayOf(day), Windows: windows})
	}
	return result, rows.Err()
}

func (r *PgRepository) ActiveBookedSlots(ctx context.Context, doctorID uuid.UUID, from, to Day) ([]BookedSlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, doctor_id, patient_id, appointment_id, day, start_min, end_min, status, created_at, updated_at
		FROM booked_slots
		WHERE doctor_id = $1 AND day BETWEEN $2 AND $3 AND status <> 'canceled'
		ORDER BY day, start_min
	`, doctorID, from.Time, to.Time)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []BookedSlot
	for rows.Next() {
		var s BookedSlot
		var day time.Time
		var start, end int32
		if err := rows.Scan(&s.ID, &s.DoctorID, &s.PatientID, &s.AppointmentID, &day, &start, &end, &s.Status, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		s.Day = DayOf(day)
		s.Start = TimeOfDay(start)
		s.End = TimeOfDay(end)
		result = append(result, s)
	}
	return result, rows.Err()
}

// CreateBooking writes the booked slot and the appointment in one
// transaction. The slot insert is conditional on no overlapping non-canceled
// slot existing, checked and written in the same statement.
func (r *PgRepository) CreateBooking(ctx context.Context, p BookingParams) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin booking tx: %w", err)
	}
	defer tx.Rollback(ctx)

	slotID := uuid.New()
	apptID := uuid.New()

	ct, err := tx.Exec(ctx, `
		INSERT INTO booked_slots (id, doctor_id, patient_id, appointment_id, day, start_min, end_min, status, created_at, updated_at)
		SELECT $1, $2, $3, $4, $5, $6, $7, 'pending', now(), now()
		WHERE NOT EXISTS (
			SELECT 1 FROM booked_slots
			WHERE doctor_id = $2
			  AND day = $5
			  AND status <> 'canceled'
			  AND start_min < $7
			  AND end_min > $6
		)
	`, slotID, p.DoctorID, p.PatientID, apptID, p.Day.Time, int32(p.Start), int32(p.End))
	if err != nil {
		if isOverlapViolation(err) {
			return nil, ErrSlotAlreadyBooked
		}
		return nil, fmt.Errorf("insert booked slot: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return nil, ErrSlotAlreadyBooked
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO appointments (id, doctor_id, patient_id, day, start_min, end_min, purpose, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', now(), now())
		RETURNING `+appointmentColumns+`
	`, apptID, p.DoctorID, p.PatientID, p.Day.Time, int32(p.Start), int32(p.End), p.Purpose)

	appt, err := scanAppointment(row)
	if err != nil {
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		if isOverlapViolation(err) {
			return nil, ErrSlotAlreadyBooked
		}
		return nil, fmt.Errorf("commit booking tx: %w", err)
	}
	return appt, nil
}

// CancelBooking flips the appointment to canceled and releases its slot in
// one transaction, so the calendar can never show a canceled appointment
// still blocking its range.
func (r *PgRepository) CancelBooking(ctx context.Context, id uuid.UUID, by CancelActor) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin cancel tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'canceled',
		    canceled_by = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status IN ('pending', 'confirmed')
		RETURNING `+appointmentColumns+`
	`, id, string(by))

	appt, err := scanAppointment(row)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE booked_slots
		SET status = 'canceled',
		    updated_at = now()
		WHERE appointment_id = $1
	`, id); err != nil {
		return nil, fmt.Errorf("release booked slot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit cancel tx: %w", err)
	}
	return appt, nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin status tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, string(to), string(from))

	appt, err := scanAppointment(row)
	if err != nil {
		return nil, err
	}

	// The booked slot mirrors confirmation so calendar reads can tell pending
	// holds from confirmed visits.
	if to == StatusConfirmed {
		if _, err := tx.Exec(ctx, `
			UPDATE booked_slots
			SET status = 'confirmed',
			    updated_at = now()
			WHERE appointment_id = $1
		`, id); err != nil {
			return nil, fmt.Errorf("confirm booked slot: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit status tx: %w", err)
	}
	return appt, nil
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY day DESC, start_min DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func (r *PgRepository) ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, from, to Day) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1 AND day BETWEEN $2 AND $3
		ORDER BY day, start_min
	`, doctorID, from.Time, to.Time)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func (r *PgRepository) UndispatchedEvents(ctx context.Context, limit int) ([]EventLog, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, event_type, appointment_id, payload, created_at, dispatched_at
		FROM event_logs
		WHERE dispatched_at IS NULL
		ORDER BY id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []EventLog
	for rows.Next() {
		var ev EventLog
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.AppointmentID, &ev.Payload, &ev.CreatedAt, &ev.DispatchedAt); err != nil {
			return nil, err
		}
		result = append(result, ev)
	}
	return result, rows.Err()
}

func (r *PgRepository) MarkEventDispatched(ctx context.Context, id int64, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE event_logs
		SET dispatched_at = $2
		WHERE id = $1 AND dispatched_at IS NULL
	`, id, at)
	if err != nil {
		return fmt.Errorf("mark event dispatched: %w", err)
	}
	return nil
}

// isOverlapViolation detects the booked_slots exclusion constraint firing
// under a concurrent commit the NOT EXISTS guard could not see.
func isOverlapViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23P01" || pgErr.Code == "23505"
	}
	return false
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
