package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hackgods/dialysis-capacity-scheduling/internal/ckd"
	"github.com/hackgods/dialysis-capacity-scheduling/internal/notify"
	redisclient "github.com/hackgods/dialysis-capacity-scheduling/internal/redis"
	"github.com/hackgods/dialysis-capacity-scheduling/internal/scheduling"
)

// Monday 2 March 2026.
var testNow = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type testServer struct {
	t       *testing.T
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := zap.NewNop()
	store := scheduling.NewMemStore()
	alloc := scheduling.NewAllocator(store, logger)

	h := NewRouter(RouterConfig{
		Engine:    scheduling.NewEngine(store, alloc, notify.Nop{}, logger, time.UTC, scheduling.WithClock(func() time.Time { return testNow })),
		Generator: scheduling.NewGenerator(store, redisclient.NewLocalLocker(), logger, 366),
		Registry:  scheduling.NewRegistry(store, logger),
		CKD:       ckd.NewService(ckd.NewMemRepository(), logger, time.UTC),
		Logger:    logger,
		Env:       "test",
		Version:   "test",
	})
	return &testServer{t: t, handler: h}
}

// do sends a request as staff user 100 and decodes the response into out
// when out is non-nil.
func (s *testServer) do(method, path string, body any, out any) *httptest.ResponseRecorder {
	s.t.Helper()
	return s.doAs("100", method, path, body, out)
}

func (s *testServer) doAs(userID, method, path string, body any, out any) *httptest.ResponseRecorder {
	s.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
		req.Header.Set("X-User-Role", "nurse")
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	if out != nil && rec.Code < 300 {
		require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec
}

func (s *testServer) seedCenter(beds int) CenterResponse {
	s.t.Helper()

	var c CenterResponse
	rec := s.do(http.MethodPost, "/centers", CreateCenterRequest{Name: "Riverside", TotalCapacity: 10}, &c)
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())

	for i := 1; i <= beds; i++ {
		rec := s.do(http.MethodPost, fmt.Sprintf("/centers/%d/beds", c.ID), CreateBedRequest{Code: fmt.Sprintf("B%d", i)}, nil)
		require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	return c
}

func (s *testServer) seedSession(centerID int64, date string, capacity int) SessionResponse {
	s.t.Helper()

	var sess SessionResponse
	rec := s.do(http.MethodPost, "/sessions", map[string]any{
		"centerId":      centerID,
		"date":          date,
		"startTime":     "07:00",
		"endTime":       "11:00",
		"availableBeds": capacity,
	}, &sess)
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return sess
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var e ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e), rec.Body.String())
	return e.Error
}

func TestGenerateSessions(t *testing.T) {
	s := newTestServer(t)
	c := s.seedCenter(5)

	var ts []TemplateResponse
	rec := s.do(http.MethodPost, fmt.Sprintf("/centers/%d/templates", c.ID), map[string]any{
		"weekday":           "mon",
		"startTime":         "07:00",
		"endTime":           "11:00",
		"defaultCapacity":   5,
		"recurrencePattern": "weekly",
	}, &ts)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, ts, 1)

	req := GenerateSessionsRequest{CenterID: c.ID, StartDate: "2026-03-02", EndDate: "2026-03-15"}

	var first GenerateSessionsResponse
	rec = s.do(http.MethodPost, "/generate-sessions", req, &first)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, first.Created)
	require.Len(t, first.Sessions, 2)
	assert.Equal(t, "2026-03-02", first.Sessions[0].Date)
	assert.Equal(t, 5, first.Sessions[0].AvailableBeds)
	assert.Equal(t, "07:00", first.Sessions[0].StartTime.String())

	var second GenerateSessionsResponse
	rec = s.do(http.MethodPost, "/generate-sessions", req, &second)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 2, second.Skipped)

	var listed []SessionResponse
	rec = s.do(http.MethodGet, fmt.Sprintf("/centers/%d/sessions?from=2026-03-01&to=2026-03-31", c.ID), nil, &listed)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, listed, 2)
}

func TestGenerateSessions_BadRange(t *testing.T) {
	s := newTestServer(t)
	c := s.seedCenter(1)

	rec := s.do(http.MethodPost, "/generate-sessions", GenerateSessionsRequest{CenterID: c.ID, StartDate: "2026-03-10", EndDate: "2026-03-01"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_range", errorCode(t, rec))

	rec = s.do(http.MethodPost, "/generate-sessions", GenerateSessionsRequest{CenterID: c.ID, StartDate: "March 1st", EndDate: "2026-03-01"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_start_date", errorCode(t, rec))
}

func TestBookCancelReschedule(t *testing.T) {
	s := newTestServer(t)
	c := s.seedCenter(2)
	from := s.seedSession(c.ID, "2026-03-02", 1)
	to := s.seedSession(c.ID, "2026-03-04", 1)

	var appt AppointmentResponse
	rec := s.do(http.MethodPost, "/book-appointment", BookAppointmentRequest{ScheduledSessionID: from.ID, PatientID: 7}, &appt)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "booked", appt.Status)
	require.NotNil(t, appt.StaffID)
	assert.Equal(t, int64(100), *appt.StaffID)

	rec = s.do(http.MethodPost, "/book-appointment", BookAppointmentRequest{ScheduledSessionID: from.ID, PatientID: 7}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "duplicate_booking", errorCode(t, rec))

	rec = s.do(http.MethodPost, "/book-appointment", BookAppointmentRequest{ScheduledSessionID: from.ID, PatientID: 8}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "exhausted", errorCode(t, rec))

	var moved AppointmentResponse
	rec = s.do(http.MethodPost, "/reschedule-appointment", RescheduleAppointmentRequest{AppointmentID: appt.ID, NewScheduledSessionID: to.ID}, &moved)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, to.ID, moved.ScheduledSessionID)
	assert.Equal(t, "rescheduled", moved.Status)

	var sess SessionResponse
	s.do(http.MethodGet, fmt.Sprintf("/sessions/%d", from.ID), nil, &sess)
	assert.Equal(t, 1, sess.AvailableBeds)

	rec = s.do(http.MethodPost, "/cancel-appointment", CancelAppointmentRequest{AppointmentID: appt.ID}, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodPost, "/cancel-appointment", CancelAppointmentRequest{AppointmentID: appt.ID}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_terminal", errorCode(t, rec))

	var history []AppointmentResponse
	rec = s.do(http.MethodGet, "/patients/7/appointments", nil, &history)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, history, 1)
	assert.Equal(t, "canceled", history[0].Status)
}

func TestCancelSession(t *testing.T) {
	s := newTestServer(t)
	c := s.seedCenter(3)
	sess := s.seedSession(c.ID, "2026-03-02", 3)

	for _, p := range []int64{1, 2, 3} {
		rec := s.do(http.MethodPost, "/book-appointment", BookAppointmentRequest{ScheduledSessionID: sess.ID, PatientID: p}, nil)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	var res CancelSessionResponse
	rec := s.do(http.MethodPost, fmt.Sprintf("/sessions/%d/cancel", sess.ID), nil, &res)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "cancelled", res.Session.Status)
	assert.Equal(t, 3, res.CanceledAppointments)

	var appts []AppointmentResponse
	s.do(http.MethodGet, fmt.Sprintf("/sessions/%d/appointments", sess.ID), nil, &appts)
	require.Len(t, appts, 3)
	for _, a := range appts {
		assert.Equal(t, "canceled", a.Status)
	}

	rec = s.do(http.MethodPost, "/book-appointment", BookAppointmentRequest{ScheduledSessionID: sess.ID, PatientID: 9}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "session_not_bookable", errorCode(t, rec))
}

func TestRecordCKDAndHistory(t *testing.T) {
	s := newTestServer(t)

	var rec1 CKDRecordResponse
	rec := s.do(http.MethodPost, "/record-ckd", map[string]any{"patientId": 7, "eGFR": 45.0, "creatinine": 1.8, "date": "2026-01-15"}, &rec1)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 3, rec1.Stage)
	assert.Equal(t, int64(100), rec1.RecordedByID)

	rec = s.do(http.MethodPost, "/record-ckd", map[string]any{"patientId": 7, "eGFR": 12.0, "creatinine": 5.2}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, "/record-ckd", map[string]any{"patientId": 7, "eGFR": -1, "creatinine": 5.2}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_measurement", errorCode(t, rec))

	rec = s.do(http.MethodGet, "/ckd-history?patientId=0", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_patient", errorCode(t, rec))

	var hist []CKDRecordResponse
	rec = s.do(http.MethodGet, "/ckd-history?patientId=7", nil, &hist)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, hist, 2)
	assert.Equal(t, 5, hist[0].Stage)
	assert.Equal(t, "2026-01-15", hist[1].Date)
}

func TestActorHeaders(t *testing.T) {
	s := newTestServer(t)
	c := s.seedCenter(1)
	sess := s.seedSession(c.ID, "2026-03-02", 1)

	rec := s.doAs("", http.MethodPost, "/book-appointment", BookAppointmentRequest{ScheduledSessionID: sess.ID, PatientID: 7}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "missing_actor", errorCode(t, rec))

	rec = s.doAs("abc", http.MethodPost, "/book-appointment", BookAppointmentRequest{ScheduledSessionID: sess.ID, PatientID: 7}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_user_id", errorCode(t, rec))
}

func TestRequestValidation(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/book-appointment", BookAppointmentRequest{ScheduledSessionID: 1}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_failed", errorCode(t, rec))
	assert.Contains(t, rec.Body.String(), "patientId: gt=0")

	rec = s.do(http.MethodPost, "/generate-sessions", map[string]any{"centerId": 1}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_failed", errorCode(t, rec))
	assert.Contains(t, rec.Body.String(), "startDate: required")
}

func TestCreateTemplate_MissingTimes(t *testing.T) {
	s := newTestServer(t)
	c := s.seedCenter(2)
	path := fmt.Sprintf("/centers/%d/templates", c.ID)

	for _, missing := range []string{"startTime", "endTime"} {
		body := map[string]any{
			"weekday":           "mon",
			"startTime":         "07:00",
			"endTime":           "11:00",
			"defaultCapacity":   2,
			"recurrencePattern": "weekly",
		}
		delete(body, missing)

		rec := s.do(http.MethodPost, path, body, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, missing)
		assert.Equal(t, "validation_failed", errorCode(t, rec), missing)
		assert.Contains(t, rec.Body.String(), missing+": required")
	}

	var listed []TemplateResponse
	rec := s.do(http.MethodGet, path, nil, &listed)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, listed)
}

func TestCreateSession_MissingFields(t *testing.T) {
	s := newTestServer(t)
	c := s.seedCenter(2)

	for _, missing := range []string{"startTime", "endTime", "availableBeds"} {
		body := map[string]any{
			"centerId":      c.ID,
			"date":          "2026-03-04",
			"startTime":     "07:00",
			"endTime":       "11:00",
			"availableBeds": 2,
		}
		delete(body, missing)

		rec := s.do(http.MethodPost, "/sessions", body, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, missing)
		assert.Equal(t, "validation_failed", errorCode(t, rec), missing)
		assert.Contains(t, rec.Body.String(), missing+": required")
	}

	// an explicit zero is a deliberate closed session, not a missing field
	rec := s.do(http.MethodPost, "/sessions", map[string]any{
		"centerId":      c.ID,
		"date":          "2026-03-04",
		"startTime":     "07:00",
		"endTime":       "11:00",
		"availableBeds": 0,
	}, nil)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestNotFoundAndBadIDs(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/sessions/404", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "session_not_found", errorCode(t, rec))

	rec = s.do(http.MethodGet, "/appointments/abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/ckd-history", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/health/live", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var ready ReadinessResponse
	rec = s.do(http.MethodGet, "/health/ready", nil, &ready)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", ready.Status)
	assert.Equal(t, "disabled", ready.Dependencies["postgres"])
	assert.Equal(t, "disabled", ready.Dependencies["redis"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
