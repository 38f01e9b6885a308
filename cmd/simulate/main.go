package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
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
	"github.com/rs/zerolog"

	"github.com/hackgods/physio-appointments/internal/api"
	"github.com/hackgods/physio-appointments/internal/config"
	"github.com/hackgods/physio-appointments/internal/db"
	"github.com/hackgods/physio-appointments/internal/logger"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	ChargeRatio  float64
	ConfirmRatio float64
	ReadRatio    float64
	Days         int
	PeopleLimit  int
	PostgresDSN  string
	JWTSecret    string
}

type booking struct {
	ID          uuid.UUID
	TherapistID uuid.UUID
	PatientID   uuid.UUID
}

type pendingPayment struct {
	ID        uuid.UUID
	PatientID uuid.UUID
}

type DataPool struct {
	Therapists []uuid.UUID
	Patients   []uuid.UUID

	mu       sync.Mutex
	bookings []booking
	pending  []pendingPayment
}

func (dp *DataPool) AddBooking(b booking) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.bookings = append(dp.bookings, b)
}

// TakeBooking removes a random booking so it is charged at most once by
// this simulator.
func (dp *DataPool) TakeBooking(rng *rand.Rand) (booking, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.bookings) == 0 {
		return booking{}, false
	}
	idx := rng.Intn(len(dp.bookings))
	b := dp.bookings[idx]
	dp.bookings[idx] = dp.bookings[len(dp.bookings)-1]
	dp.bookings = dp.bookings[:len(dp.bookings)-1]
	return b, true
}

func (dp *DataPool) RandomBooking(rng *rand.Rand) (booking, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.bookings) == 0 {
		return booking{}, false
	}
	return dp.bookings[rng.Intn(len(dp.bookings))], true
}

func (dp *DataPool) AddPending(p pendingPayment) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.pending = append(dp.pending, p)
}

func (dp *DataPool) TakePending(rng *rand.Rand) (pendingPayment, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.pending) == 0 {
		return pendingPayment{}, false
	}
	idx := rng.Intn(len(dp.pending))
	p := dp.pending[idx]
	dp.pending[idx] = dp.pending[len(dp.pending)-1]
	dp.pending = dp.pending[:len(dp.pending)-1]
	return p, true
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

func (om *OperationMetrics) Stats() (avg, p50, p95, max time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	p50 = latencies[len(latencies)*50/100]
	p95 = latencies[min(len(latencies)*95/100, len(latencies)-1)]
	max = latencies[len(latencies)-1]
	return avg, p50, p95, max
}

type Metrics struct {
	Booking OperationMetrics
	Charge  OperationMetrics
	Confirm OperationMetrics
	Read    OperationMetrics

	// DoubleConfirms counts payments confirmed by more than one racer.
	DoubleConfirms int64
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	auth    *api.Authenticator
	tokens  sync.Map // actor id -> bearer token
	metrics Metrics
	log     zerolog.Logger
}

func main() {
	cfg := loadConfig()
	log := logger.New("dev", "info")

	if err := validateConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	log.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("booking", cfg.BookingRatio).
		Float64("charge", cfg.ChargeRatio).
		Float64("confirm", cfg.ConfirmRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("load data pool")
	}
	log.Info().Int("therapists", len(dataPool.Therapists)).Int("patients", len(dataPool.Patients)).Msg("loaded people")

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		auth:   api.NewAuthenticator(cfg.JWTSecret),
		log:    log,
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load base config: %v\n", err)
		os.Exit(1)
	}

	cfg := SimConfig{
		APIBaseURL:   config.GetEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     config.GetDuration("SIM_DURATION", 30*time.Second),
		Workers:      config.GetInt("SIM_WORKERS", 10),
		BookingRatio: config.GetFloat("SIM_BOOKING_RATIO", 0.4),
		ChargeRatio:  config.GetFloat("SIM_CHARGE_RATIO", 0.2),
		ConfirmRatio: config.GetFloat("SIM_CONFIRM_RATIO", 0.2),
		ReadRatio:    config.GetFloat("SIM_READ_RATIO", 0.2),
		Days:         config.GetInt("SIM_DAYS", 5),
		PeopleLimit:  config.GetInt("SIM_PEOPLE_LIMIT", 500),
		PostgresDSN:  baseCfg.PostgresDSN,
		JWTSecret:    baseCfg.JWTSecret,
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.ChargeRatio + cfg.ConfirmRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.ChargeRatio /= total
		cfg.ConfirmRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Days <= 0 {
		return fmt.Errorf("SIM_DAYS must be > 0")
	}
	return nil
}

func loadIDs(ctx context.Context, pool *pgxpool.Pool, query string, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	therapists, err := loadIDs(ctx, pool, `SELECT id FROM therapists LIMIT $1`, cfg.PeopleLimit)
	if err != nil {
		return nil, fmt.Errorf("load therapists: %w", err)
	}
	patients, err := loadIDs(ctx, pool, `SELECT id FROM patients LIMIT $1`, cfg.PeopleLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}

	if len(therapists) == 0 {
		return nil, fmt.Errorf("no therapists loaded, run cmd/seed first")
	}
	if len(patients) == 0 {
		return nil, fmt.Errorf("no patients loaded, run cmd/seed first")
	}

	return &DataPool{Therapists: therapists, Patients: patients}, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.Info().Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info().Msg("simulation complete")
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
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng)
			case r < s.config.BookingRatio+s.config.ChargeRatio:
				s.doCharge(ctx, rng)
			case r < s.config.BookingRatio+s.config.ChargeRatio+s.config.ConfirmRatio:
				s.doConfirm(ctx, rng)
			default:
				s.doRead(ctx, rng)
			}
		}
	}
}

func (s *Simulator) token(id uuid.UUID, role api.Role) string {
	if t, ok := s.tokens.Load(id); ok {
		return t.(string)
	}
	t, err := s.auth.Issue(api.Actor{ID: id, Role: role}, 24*time.Hour)
	if err != nil {
		s.log.Fatal().Err(err).Msg("issue token")
	}
	s.tokens.Store(id, t)
	return t
}

// call performs one request and returns status and body. Transport errors
// are reported as status 0.
func (s *Simulator) call(ctx context.Context, method, path, token string, body any) (int, []byte) {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0, nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	therapist := s.pool.Therapists[rng.Intn(len(s.pool.Therapists))]
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	// A small grid of slots keeps contention high.
	date := time.Now().AddDate(0, 0, 1+rng.Intn(s.config.Days)).Format("2006-01-02")
	minutes := 8*60 + 30*rng.Intn(20)
	clock := fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)

	start := time.Now()
	status, data := s.call(ctx, http.MethodPost, "/therapist/appointments", s.token(therapist, api.RoleTherapist), map[string]string{
		"patient_id": patient.String(),
		"date":       date,
		"time":       clock,
		"type":       "follow_up",
	})
	latency := time.Since(start)

	if status == http.StatusCreated {
		var resp api.AppointmentResponse
		if err := json.Unmarshal(data, &resp); err == nil {
			s.pool.AddBooking(booking{ID: resp.ID, TherapistID: therapist, PatientID: patient})
		}
	}

	s.metrics.Booking.Record(latency, status == http.StatusCreated, status == http.StatusConflict)
}

func (s *Simulator) doCharge(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.TakeBooking(rng)
	if !ok {
		return
	}

	method := "cash"
	if rng.Intn(2) == 0 {
		method = "card"
	}

	start := time.Now()
	status, data := s.call(ctx, http.MethodPost, "/therapist/payments", s.token(b.TherapistID, api.RoleTherapist), map[string]any{
		"appointment_id": b.ID.String(),
		"amount":         strconv.Itoa(300 + 50*rng.Intn(8)),
		"method":         method,
	})
	latency := time.Since(start)

	if status == http.StatusCreated && method == "card" {
		var resp api.PaymentResponse
		if err := json.Unmarshal(data, &resp); err == nil {
			s.pool.AddPending(pendingPayment{ID: resp.ID, PatientID: b.PatientID})
		}
	}

	s.metrics.Charge.Record(latency, status == http.StatusCreated, status == http.StatusConflict)
}

// doConfirm fires two confirmations for the same payment at once. At most
// one may win.
func (s *Simulator) doConfirm(ctx context.Context, rng *rand.Rand) {
	p, ok := s.pool.TakePending(rng)
	if !ok {
		return
	}

	token := s.token(p.PatientID, api.RolePatient)
	path := "/patient/payments/" + p.ID.String() + "/confirm"
	card := fmt.Sprintf("**** **** **** %04d", rng.Intn(10000))

	var wins int64
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start := time.Now()
			status, _ := s.call(ctx, http.MethodPost, path, token, map[string]string{
				"card_number":       card,
				"card_holder":       "Simulated Patient",
				"authorization_ref": fmt.Sprintf("SIM-%d", i),
			})
			if status == http.StatusOK {
				atomic.AddInt64(&wins, 1)
			}
			s.metrics.Confirm.Record(time.Since(start), status == http.StatusOK, status == http.StatusNotFound)
		}(i)
	}
	wg.Wait()

	if wins > 1 {
		atomic.AddInt64(&s.metrics.DoubleConfirms, 1)
	}
}

func (s *Simulator) doRead(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.RandomBooking(rng)
	if !ok {
		return
	}

	start := time.Now()
	status, _ := s.call(ctx, http.MethodGet, "/appointments/"+b.ID.String(), s.token(b.TherapistID, api.RoleTherapist), nil)
	s.metrics.Read.Record(time.Since(start), status == http.StatusOK, false)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Charge", &s.metrics.Charge)
	printOperationReport("Confirm", &s.metrics.Confirm)
	printOperationReport("Read by ID", &s.metrics.Read)

	fmt.Printf("Double confirmations: %d\n", atomic.LoadInt64(&s.metrics.DoubleConfirms))
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, p50, p95, max := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s max=%s\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond),
		p95.Round(time.Millisecond), max.Round(time.Millisecond))
	fmt.Println()
}
