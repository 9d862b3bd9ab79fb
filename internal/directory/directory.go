// Package directory supplies per-doctor scheduling parameters to the engine.
// It is the consumed edge of the doctor-profile subsystem: the engine only
// sees appointment duration, visit price, and the completed-visits counter.
package directory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-scheduling/internal/scheduling"
)

// PgDirectory reads doctor scheduling parameters from the doctors table.
// Durations are stored the way doctors configure them ("15min", "1hour") and
// parsed on read.
type PgDirectory struct {
	pool *pgxpool.Pool
}

func NewPgDirectory(pool *pgxpool.Pool) *PgDirectory {
	return &PgDirectory{pool: pool}
}

func (d *PgDirectory) AppointmentDuration(ctx context.Context, doctorID uuid.UUID) (time.Duration, error) {
	var raw string
	err := d.pool.QueryRow(ctx, `
		SELECT slot_duration FROM doctors WHERE id = $1
	`, doctorID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, scheduling.ErrDoctorNotFound
		}
		return 0, fmt.Errorf("load doctor duration: %w", err)
	}
	return scheduling.ParseAppointmentDuration(raw)
}

func (d *PgDirectory) AppointmentPrice(ctx context.Context, doctorID uuid.UUID) (int64, error) {
	var price int64
	err := d.pool.QueryRow(ctx, `
		SELECT price_cents FROM doctors WHERE id = $1
	`, doctorID).Scan(&price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, scheduling.ErrDoctorNotFound
		}
		return 0, fmt.Errorf("load doctor price: %w", err)
	}
	return price, nil
}

func (d *PgDirectory) IncrementCompletedAppointments(ctx context.Context, doctorID uuid.UUID) error {
	ct, err := d.pool.Exec(ctx, `
		UPDATE doctors
		SET completed_appointments = completed_appointments + 1,
		    updated_at = now()
		WHERE id = $1
	`, doctorID)
	if err != nil {
		return fmt.Errorf("increment completed appointments: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return scheduling.ErrDoctorNotFound
	}
	return nil
}

// StaticEntry is one doctor's scheduling parameters in a Static directory.
type StaticEntry struct {
	Duration   time.Duration
	PriceCents int64
	Completed  int
}

// Static is a fixed in-memory directory for tests and embedded setups.
type Static struct {
	mu      sync.Mutex
	doctors map[uuid.UUID]*StaticEntry
}

func NewStatic() *Static {
	return &Static{doctors: make(map[uuid.UUID]*StaticEntry)}
}

func (s *Static) Add(doctorID uuid.UUID, e StaticEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := e
	s.doctors[doctorID] = &cp
}

func (s *Static) AppointmentDuration(_ context.Context, doctorID uuid.UUID) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.doctors[doctorID]
	if !ok {
		return 0, scheduling.ErrDoctorNotFound
	}
	return e.Duration, nil
}

func (s *Static) AppointmentPrice(_ context.Context, doctorID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.doctors[doctorID]
	if !ok {
		return 0, scheduling.ErrDoctorNotFound
	}
	return e.PriceCents, nil
}

func (s *Static) IncrementCompletedAppointments(_ context.Context, doctorID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.doctors[doctorID]
	if !ok {
		return scheduling.ErrDoctorNotFound
	}
	e.Completed++
	return nil
}

// CompletedAppointments reports the counter, for tests.
func (s *Static) CompletedAppointments(doctorID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.doctors[doctorID]; ok {
		return e.Completed
	}
	return 0
}
