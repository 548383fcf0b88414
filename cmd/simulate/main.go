// simulate drives the call service the way a fleet of polling clients does:
// mostly room-status checks, with a trickle of joins, initiations, and
// appointment listings. It reports latency percentiles per operation.
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
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mednexus/telehealth-calls/internal/auth"
	"github.com/mednexus/telehealth-calls/internal/config"
	"github.com/mednexus/telehealth-calls/internal/db"
)

type SimConfig struct {
	APIBaseURL       string
	Duration         time.Duration
	Workers          int
	StatusRatio      float64
	JoinRatio        float64
	InitiateRatio    float64
	ListRatio        float64
	AppointmentLimit int
	PostgresDSN      string
	AuthSecret       string
}

// simAppointment pairs an appointment with pre-minted tokens for both of its
// parties, so workers can hit either role's endpoints.
type simAppointment struct {
	ID           uuid.UUID
	PatientToken string
	DoctorToken  string
}

type DataPool struct {
	Appointments []simAppointment
}

func (dp *DataPool) Random(rng *rand.Rand) (simAppointment, bool) {
	if len(dp.Appointments) == 0 {
		return simAppointment{}, false
	}
	return dp.Appointments[rng.Intn(len(dp.Appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
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

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

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

type Metrics struct {
	RoomStatus OperationMetrics
	Join       OperationMetrics
	Initiate   OperationMetrics
	List       OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d status=%.2f join=%.2f initiate=%.2f list=%.2f",
		cfg.Duration, cfg.Workers, cfg.StatusRatio, cfg.JoinRatio, cfg.InitiateRatio, cfg.ListRatio)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}

	log.Printf("loaded: %d confirmed appointments", len(dataPool.Appointments))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:       getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:         getDuration("SIM_DURATION", 30*time.Second),
		Workers:          getInt("SIM_WORKERS", 10),
		StatusRatio:      getFloat("SIM_STATUS_RATIO", 0.7),
		JoinRatio:        getFloat("SIM_JOIN_RATIO", 0.1),
		InitiateRatio:    getFloat("SIM_INITIATE_RATIO", 0.1),
		ListRatio:        getFloat("SIM_LIST_RATIO", 0.1),
		AppointmentLimit: getInt("SIM_APPOINTMENT_LIMIT", 2000),
		PostgresDSN:      baseCfg.PostgresDSN,
		AuthSecret:       baseCfg.AuthSecret,
	}

	// Normalize ratios
	total := cfg.StatusRatio + cfg.JoinRatio + cfg.InitiateRatio + cfg.ListRatio
	if total > 0 {
		cfg.StatusRatio /= total
		cfg.JoinRatio /= total
		cfg.InitiateRatio /= total
		cfg.ListRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.AuthSecret == "" {
		return fmt.Errorf("AUTH_SECRET is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	tokens := auth.NewManager(cfg.AuthSecret, 2*time.Hour)

	rows, err := pool.Query(ctx, `
		SELECT id, patient_id, doctor_id FROM appointments
		WHERE status = 'confirmed'
		LIMIT $1
	`, cfg.AppointmentLimit)
	if err != nil {
		return nil, fmt.Errorf("load appointments: %w", err)
	}
	defer rows.Close()

	dataPool := &DataPool{}
	for rows.Next() {
		var id, patientID, doctorID uuid.UUID
		if err := rows.Scan(&id, &patientID, &doctorID); err != nil {
			return nil, err
		}

		patientToken, err := tokens.Issue(patientID, auth.RolePatient)
		if err != nil {
			return nil, fmt.Errorf("issue patient token: %w", err)
		}
		doctorToken, err := tokens.Issue(doctorID, auth.RoleDoctor)
		if err != nil {
			return nil, fmt.Errorf("issue doctor token: %w", err)
		}

		dataPool.Appointments = append(dataPool.Appointments, simAppointment{
			ID:           id,
			PatientToken: patientToken,
			DoctorToken:  doctorToken,
		})
	}

	if len(dataPool.Appointments) == 0 {
		return nil, fmt.Errorf("no confirmed appointments loaded")
	}

	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Println("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.StatusRatio:
				s.doRoomStatus(ctx, rng)
			case r < s.config.StatusRatio+s.config.JoinRatio:
				s.doJoin(ctx, rng)
			case r < s.config.StatusRatio+s.config.JoinRatio+s.config.InitiateRatio:
				s.doInitiate(ctx, rng)
			default:
				s.doList(ctx, rng)
			}
		}
	}
}

// pick returns an appointment, the token to act with, and whether the actor
// is the doctor.
func (s *Simulator) pick(rng *rand.Rand) (simAppointment, string, bool, bool) {
	appt, ok := s.pool.Random(rng)
	if !ok {
		return simAppointment{}, "", false, false
	}
	asDoctor := rng.Intn(2) == 0
	token := appt.PatientToken
	if asDoctor {
		token = appt.DoctorToken
	}
	return appt, token, asDoctor, true
}

func (s *Simulator) doRoomStatus(ctx context.Context, rng *rand.Rand) {
	appt, token, asDoctor, ok := s.pick(rng)
	if !ok {
		return
	}

	path := "/api/livekit/room-status/" + appt.ID.String()
	if asDoctor {
		path = "/api/livekit/room-status-doctor/" + appt.ID.String()
	}

	start := time.Now()
	status, err := s.get(ctx, path, token)
	latency := time.Since(start)

	// 404 just means no room yet; the poller treats it as inactive.
	success := err == nil && (status == http.StatusOK || status == http.StatusNotFound)
	s.metrics.RoomStatus.Record(latency, success, false)
}

func (s *Simulator) doJoin(ctx context.Context, rng *rand.Rand) {
	appt, token, asDoctor, ok := s.pick(rng)
	if !ok {
		return
	}

	path := "/api/livekit/join-appointment"
	if asDoctor {
		path = "/api/livekit/join-appointment-doctor"
	}

	start := time.Now()
	status, err := s.post(ctx, path, token, map[string]string{"appointment_id": appt.ID.String()})
	latency := time.Since(start)

	s.metrics.Join.Record(latency, err == nil && status == http.StatusOK, err == nil && status == http.StatusConflict)
}

func (s *Simulator) doInitiate(ctx context.Context, rng *rand.Rand) {
	appt, token, asDoctor, ok := s.pick(rng)
	if !ok {
		return
	}

	path := "/api/livekit/initiate-call"
	if asDoctor {
		path = "/api/livekit/initiate-call-doctor"
	}

	start := time.Now()
	status, err := s.post(ctx, path, token, map[string]string{"appointment_id": appt.ID.String()})
	latency := time.Since(start)

	s.metrics.Initiate.Record(latency, err == nil && status == http.StatusOK, err == nil && status == http.StatusConflict)
}

func (s *Simulator) doList(ctx context.Context, rng *rand.Rand) {
	_, token, _, ok := s.pick(rng)
	if !ok {
		return
	}

	start := time.Now()
	status, err := s.get(ctx, "/api/appointments?status=confirmed", token)
	latency := time.Since(start)

	s.metrics.List.Record(latency, err == nil && status == http.StatusOK, false)
}

func (s *Simulator) get(ctx context.Context, path, token string) (int, error) {
	req, _ := http.NewRequestWithContext(ctx, "GET", s.config.APIBaseURL+path, nil)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (s *Simulator) post(ctx context.Context, path, token string, payload map[string]string) (int, error) {
	body, _ := json.Marshal(payload)

	req, _ := http.NewRequestWithContext(ctx, "POST", s.config.APIBaseURL+path, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Room Status", &s.metrics.RoomStatus)
	printOperationReport("Join", &s.metrics.Join)
	printOperationReport("Initiate", &s.metrics.Initiate)
	printOperationReport("List Appointments", &s.metrics.List)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failures := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failures > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failures, float64(failures)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
