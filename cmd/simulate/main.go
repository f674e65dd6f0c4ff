package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/dialysis-capacity-scheduling/internal/api"
	"github.com/hackgods/dialysis-capacity-scheduling/internal/logging"
	"github.com/hackgods/dialysis-capacity-scheduling/internal/scheduling"
)

type SimConfig struct {
	APIBaseURL      string
	Duration        time.Duration
	Workers         int
	BookingRatio    float64
	CancelRatio     float64
	RescheduleRatio float64
	Patients        int
	Sessions        int
	Beds            int
	UserID          string
}

// DataPool holds ids created during setup and bookings made during the run.
type DataPool struct {
	Patients     []int64
	Sessions     []int64
	mu           sync.Mutex
	appointments []int64
}

func (dp *DataPool) AddAppointment(id int64) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

// TakeAppointment removes and returns a random appointment id.
func (dp *DataPool) TakeAppointment(rng *rand.Rand) (int64, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.appointments) == 0 {
		return 0, false
	}
	idx := rng.Intn(len(dp.appointments))
	id := dp.appointments[idx]
	dp.appointments[idx] = dp.appointments[len(dp.appointments)-1]
	dp.appointments = dp.appointments[:len(dp.appointments)-1]
	return id, true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case status >= 200 && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
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

	n := len(latencies)
	return sum / time.Duration(n), latencies[n*50/100], latencies[min(n*95/100, n-1)], latencies[n-1]
}

type Metrics struct {
	Booking    OperationMetrics
	Cancel     OperationMetrics
	Reschedule OperationMetrics
	Read       OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	logger  *zap.Logger
	metrics Metrics
}

func main() {
	logger, err := logging.New(getEnv("LOG_LEVEL", "info"), "console", "simulate")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	sim := &Simulator{
		config: cfg,
		pool:   &DataPool{},
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sim.Setup(ctx); err != nil {
		logger.Fatal("setup failed", zap.Error(err))
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:      getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:        getDuration("SIM_DURATION", 30*time.Second),
		Workers:         getInt("SIM_WORKERS", 10),
		BookingRatio:    getFloat("SIM_BOOKING_RATIO", 0.6),
		CancelRatio:     getFloat("SIM_CANCEL_RATIO", 0.15),
		RescheduleRatio: getFloat("SIM_RESCHEDULE_RATIO", 0.1),
		Patients:        getInt("SIM_PATIENTS", 200),
		Sessions:        getInt("SIM_SESSIONS", 10),
		Beds:            getInt("SIM_BEDS", 8),
		UserID:          getEnv("SIM_USER_ID", "1"),
	}

	total := cfg.BookingRatio + cfg.CancelRatio + cfg.RescheduleRatio
	if total > 1 {
		cfg.BookingRatio /= total
		cfg.CancelRatio /= total
		cfg.RescheduleRatio /= total
	}
	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Sessions <= 0 || cfg.Beds <= 0 || cfg.Patients <= 0 {
		return fmt.Errorf("SIM_SESSIONS, SIM_BEDS and SIM_PATIENTS must be > 0")
	}
	return nil
}

// Setup creates a center with beds and a set of ad-hoc sessions spread over
// the coming days, so the run does not depend on seeded data.
func (s *Simulator) Setup(ctx context.Context) error {
	var center api.CenterResponse
	if err := s.call(ctx, http.MethodPost, "/centers", api.CreateCenterRequest{
		Name:          gofakeit.Company() + " Dialysis",
		TotalCapacity: s.config.Beds,
	}, &center); err != nil {
		return fmt.Errorf("create center: %w", err)
	}

	for i := 1; i <= s.config.Beds; i++ {
		if err := s.call(ctx, http.MethodPost, fmt.Sprintf("/centers/%d/beds", center.ID), api.CreateBedRequest{
			Code: fmt.Sprintf("SIM-%02d", i),
		}, nil); err != nil {
			return fmt.Errorf("register bed: %w", err)
		}
	}

	shifts := [][2]string{{"06:00", "10:00"}, {"10:30", "14:30"}, {"15:00", "19:00"}}
	for i := 0; i < s.config.Sessions; i++ {
		sh := shifts[i%len(shifts)]
		start, end := scheduling.MustTimeOfDay(sh[0]), scheduling.MustTimeOfDay(sh[1])
		beds := s.config.Beds
		var sess api.SessionResponse
		if err := s.call(ctx, http.MethodPost, "/sessions", api.CreateSessionRequest{
			CenterID:      center.ID,
			Date:          time.Now().AddDate(0, 0, 1+i/len(shifts)).Format("2006-01-02"),
			StartTime:     &start,
			EndTime:       &end,
			AvailableBeds: &beds,
		}, &sess); err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		s.pool.Sessions = append(s.pool.Sessions, sess.ID)
	}

	for i := 0; i < s.config.Patients; i++ {
		s.pool.Patients = append(s.pool.Patients, int64(gofakeit.Number(100000, 999999)))
	}

	s.logger.Info("setup complete",
		zap.Int64("center_id", center.ID),
		zap.Int("sessions", len(s.pool.Sessions)),
		zap.Int("patients", len(s.pool.Patients)),
	)
	return nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info("starting simulation", zap.Duration("duration", s.config.Duration), zap.Int("workers", s.config.Workers))

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng)
		case r < s.config.BookingRatio+s.config.CancelRatio:
			s.doCancel(ctx, rng)
		case r < s.config.BookingRatio+s.config.CancelRatio+s.config.RescheduleRatio:
			s.doReschedule(ctx, rng)
		default:
			s.doRead(ctx, rng)
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	req := api.BookAppointmentRequest{
		ScheduledSessionID: s.pool.Sessions[rng.Intn(len(s.pool.Sessions))],
		PatientID:          s.pool.Patients[rng.Intn(len(s.pool.Patients))],
	}

	var appt api.AppointmentResponse
	start := time.Now()
	status := s.send(ctx, http.MethodPost, "/book-appointment", req, &appt)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Booking.Record(time.Since(start), status)

	if status == http.StatusCreated {
		s.pool.AddAppointment(appt.ID)
	}
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.TakeAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	status := s.send(ctx, http.MethodPost, "/cancel-appointment", api.CancelAppointmentRequest{AppointmentID: id}, nil)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Cancel.Record(time.Since(start), status)
}

func (s *Simulator) doReschedule(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.TakeAppointment(rng)
	if !ok {
		return
	}
	req := api.RescheduleAppointmentRequest{
		AppointmentID:         id,
		NewScheduledSessionID: s.pool.Sessions[rng.Intn(len(s.pool.Sessions))],
	}

	start := time.Now()
	status := s.send(ctx, http.MethodPost, "/reschedule-appointment", req, nil)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Reschedule.Record(time.Since(start), status)

	// still active either way unless it vanished
	if status != http.StatusNotFound {
		s.pool.AddAppointment(id)
	}
}

func (s *Simulator) doRead(ctx context.Context, rng *rand.Rand) {
	id := s.pool.Sessions[rng.Intn(len(s.pool.Sessions))]

	start := time.Now()
	status := s.send(ctx, http.MethodGet, fmt.Sprintf("/sessions/%d", id), nil, nil)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Read.Record(time.Since(start), status)
}

func (s *Simulator) call(ctx context.Context, method, path string, body, out any) error {
	status := s.send(ctx, method, path, body, out)
	if status < 200 || status >= 300 {
		return fmt.Errorf("%s %s: status %d", method, path, status)
	}
	return nil
}

// send returns the HTTP status, or 0 on a transport error.
func (s *Simulator) send(ctx context.Context, method, path string, body, out any) int {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, &buf)
	if err != nil {
		return 0
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	req.Header.Set("X-User-ID", s.config.UserID)
	req.Header.Set("X-User-Role", "nurse")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		_ = json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Book", &s.metrics.Booking)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Reschedule", &s.metrics.Reschedule)
	printOperationReport("Read session", &s.metrics.Read)
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
		avg.Round(time.Millisecond), p50.Round(time.Millisecond), p95.Round(time.Millisecond), max.Round(time.Millisecond))
	fmt.Println()
}

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
