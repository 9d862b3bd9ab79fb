package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/scheduling"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn, 0)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	doctorIDs, err := seedDoctors(context.Background(), pool, 50)
	if err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	if err := seedPatients(context.Background(), pool, 2000); err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedOpenHours(context.Background(), pool, doctorIDs, 14); err != nil {
		log.Fatalf("seed open hours: %v", err)
	}

	log.Println("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d doctors", count)

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}
	durations := []string{"15min", "20min", "30min", "45min", "1hour"}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]
		duration := durations[gofakeit.Number(0, len(durations)-1)]
		price := int64(gofakeit.Number(3000, 25000))

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty, slot_duration, price_cents, completed_appointments, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, 0, now(), now())
		`, id, name, spec, duration, price)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("doctors seeded")
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			email := gofakeit.Email()

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, id, name, email)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return nil
}

// seedOpenHours declares a standard morning and afternoon block for each
// doctor over the next `days` weekdays.
func seedOpenHours(ctx context.Context, pool *pgxpool.Pool, doctorIDs []uuid.UUID, days int) error {
	log.Printf("seeding open hours for %d doctors over %d days", len(doctorIDs), days)

	repo := scheduling.NewPgRepository(pool)

	morningStart, _ := scheduling.ParseTimeOfDay("09:00")
	morningEnd, _ := scheduling.ParseTimeOfDay("12:00")
	afternoonStart, _ := scheduling.ParseTimeOfDay("14:00")
	afternoonEnd, _ := scheduling.ParseTimeOfDay("17:00")

	windows := []scheduling.TimeWindow{
		{Start: morningStart, End: morningEnd},
		{Start: afternoonStart, End: afternoonEnd},
	}

	day := scheduling.DayOf(time.Now().UTC()).Next()
	declared := 0
	for i := 0; i < days; i++ {
		if wd := day.Weekday(); wd != time.Saturday && wd != time.Sunday {
			for _, id := range doctorIDs {
				if err := repo.UpsertOpenHours(ctx, id, day, windows); err != nil {
					return err
				}
				declared++
			}
		}
		day = day.Next()
	}

	log.Printf("open hours seeded: %d declarations", declared)
	return nil
}
