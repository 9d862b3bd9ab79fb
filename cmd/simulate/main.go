package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-scheduling/internal/db"
)

// simulate hammers the booking API with concurrent workers that all try to
// reserve slots on a small set of doctors. The point is to observe the
// no-double-booking guarantee under contention: totals should show exactly
// one success per distinct slot and conflicts for everyone else.

type SimConfig struct {
	APIBaseURL  string
	Duration    time.Duration
	Workers     int
	DoctorLimit int
	PostgresDSN string
}

type slotRef struct {
	DoctorID uuid.UUID
	Day      string
	Start    string
	End      string
}

type DataPool struct {
	Patients []uuid.UUID
	Slots    []slotRef
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	mu        sync.Mutex
	Latencies []time.Duration
}

func (om *OperationMetrics) Record(latency time.Duration, success, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]

	p50Idx := len(latencies) * 50 / 100
	if p50Idx >= len(latencies) {
		p50Idx = len(latencies) - 1
	}
	p50 = latencies[p50Idx]

	p95Idx := len(latencies) * 95 / 100
	if p95Idx >= len(latencies) {
		p95Idx = len(latencies) - 1
	}
	p95 = latencies[p95Idx]

	return avg, min, max, p50, p95
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	log.Printf("config: base_url=%s duration=%s workers=%d doctors=%d",
		cfg.APIBaseURL, cfg.Duration, cfg.Workers, cfg.DoctorLimit)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, 0)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	pool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}
	log.Printf("loaded %d patients and %d candidate slots", len(pool.Patients), len(pool.Slots))
	if len(pool.Patients) == 0 || len(pool.Slots) == 0 {
		log.Fatal("nothing to simulate, run the seed tool first")
	}

	metrics := &OperationMetrics{}
	client := &http.Client{Timeout: 10 * time.Second}

	runCtx, stop := context.WithTimeout(context.Background(), cfg.Duration)
	defer stop()

	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker(runCtx, client, cfg, pool, metrics)
		}()
	}
	wg.Wait()

	report(metrics)
}

func worker(ctx context.Context, client *http.Client, cfg SimConfig, pool *DataPool, metrics *OperationMetrics) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		slot := pool.Slots[rand.Intn(len(pool.Slots))]
		patient := pool.Patients[rand.Intn(len(pool.Patients))]

		body, _ := json.Marshal(map[string]string{
			"doctor_id":  slot.DoctorID.String(),
			"patient_id": patient.String(),
			"day":        slot.Day,
			"start":      slot.Start,
			"end":        slot.End,
			"purpose":    "load test visit",
		})

		start := time.Now()
		resp, err := client.Post(cfg.APIBaseURL+"/appointments", "application/json", bytes.NewReader(body))
		latency := time.Since(start)
		if err != nil {
			metrics.Record(latency, false, false)
			continue
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		metrics.Record(latency,
			resp.StatusCode == http.StatusCreated,
			resp.StatusCode == http.StatusConflict)
	}
}

// loadDataPool reads patient IDs and expands each doctor's open hours into
// the same candidate slots the API would offer.
func loadDataPool(ctx context.Context, pgPool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	pool := &DataPool{}

	rows, err := pgPool.Query(ctx, `SELECT id FROM patients LIMIT 1000`)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		pool.Patients = append(pool.Patients, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	doctorRows, err := pgPool.Query(ctx, `SELECT id FROM doctors LIMIT $1`, cfg.DoctorLimit)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	defer doctorRows.Close()

	var doctors []uuid.UUID
	for doctorRows.Next() {
		var id uuid.UUID
		if err := doctorRows.Scan(&id); err != nil {
			return nil, err
		}
		doctors = append(doctors, id)
	}
	if err := doctorRows.Err(); err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: 10 * time.Second}
	from := time.Now().UTC().Format("2006-01-02")
	to := time.Now().UTC().AddDate(0, 0, 14).Format("2006-01-02")

	for _, doctorID := range doctors {
		url := fmt.Sprintf("%s/doctors/%s/availability?from=%s&to=%s", cfg.APIBaseURL, doctorID, from, to)
		resp, err := client.Get(url)
		if err != nil {
			return nil, fmt.Errorf("query availability: %w", err)
		}
		var avail struct {
			Days []struct {
				Day   string `json:"day"`
				Slots []struct {
					Start string `json:"start"`
					End   string `json:"end"`
				} `json:"slots"`
			} `json:"days"`
		}
		err = json.NewDecoder(resp.Body).Decode(&avail)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("decode availability: %w", err)
		}

		for _, day := range avail.Days {
			for _, s := range day.Slots {
				pool.Slots = append(pool.Slots, slotRef{
					DoctorID: doctorID,
					Day:      day.Day,
					Start:    s.Start,
					End:      s.End,
				})
			}
		}
	}

	return pool, nil
}

func report(metrics *OperationMetrics) {
	avg, min, max, p50, p95 := metrics.Stats()

	fmt.Println()
	fmt.Println("=== booking simulation results ===")
	fmt.Printf("total:    %d\n", atomic.LoadInt64(&metrics.Total))
	fmt.Printf("success:  %d\n", atomic.LoadInt64(&metrics.Success))
	fmt.Printf("conflict: %d\n", atomic.LoadInt64(&metrics.Conflict))
	fmt.Printf("error:    %d\n", atomic.LoadInt64(&metrics.Error))
	fmt.Printf("latency:  avg=%s min=%s max=%s p50=%s p95=%s\n", avg, min, max, p50, p95)
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:  getEnv("API_BASE_URL", "http://localhost:8080"),
		Duration:    getDurationEnv("SIM_DURATION", 30*time.Second),
		Workers:     getIntEnv("SIM_WORKERS", 50),
		DoctorLimit: getIntEnv("SIM_DOCTORS", 5),
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
	}
	if cfg.PostgresDSN == "" {
		log.Fatal("POSTGRES_DSN is required")
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getIntEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
