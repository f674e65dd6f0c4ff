package api

import (
	"time"

	"github.com/hackgods/dialysis-capacity-scheduling/internal/ckd"
	"github.com/hackgods/dialysis-capacity-scheduling/internal/scheduling"
)

type GenerateSessionsRequest struct {
	CenterID    int64   `json:"centerId" validate:"gt=0"`
	StartDate   string  `json:"startDate" validate:"required"`
	EndDate     string  `json:"endDate" validate:"required"`
	TemplateIDs []int64 `json:"templateIds,omitempty" validate:"omitempty,dive,gt=0"`
}

type GenerateSessionsResponse struct {
	Created   int                       `json:"created"`
	Skipped   int                       `json:"skipped"`
	Refreshed int                       `json:"refreshed"`
	Sessions  []SessionResponse         `json:"sessions"`
	Failures  []TemplateFailureResponse `json:"failures,omitempty"`
}

type TemplateFailureResponse struct {
	TemplateID int64  `json:"templateId"`
	Reason     string `json:"reason"`
}

type BookAppointmentRequest struct {
	ScheduledSessionID int64 `json:"scheduledSessionId" validate:"gt=0"`
	PatientID          int64 `json:"patientId" validate:"gt=0"`
}

type CancelAppointmentRequest struct {
	AppointmentID int64 `json:"appointmentId" validate:"gt=0"`
}

type RescheduleAppointmentRequest struct {
	AppointmentID         int64 `json:"appointmentId" validate:"gt=0"`
	NewScheduledSessionID int64 `json:"newScheduledSessionId" validate:"gt=0"`
}

type AssignBedRequest struct {
	BedID int64 `json:"bedId" validate:"gt=0"`
}

type RecordCKDRequest struct {
	PatientID  int64   `json:"patientId" validate:"gt=0"`
	EGFR       float64 `json:"eGFR"`
	Creatinine float64 `json:"creatinine"`
	Notes      *string `json:"notes,omitempty"`
	Date       *string `json:"date,omitempty"`
}

type CreateCenterRequest struct {
	Name          string `json:"name" validate:"required,max=200"`
	TotalCapacity int    `json:"totalCapacity"`
}

type CreateTemplateRequest struct {
	DoctorID          *int64                `json:"doctorId,omitempty"`
	Weekday           string                `json:"weekday" validate:"required"`
	StartTime         *scheduling.TimeOfDay `json:"startTime" validate:"required"`
	EndTime           *scheduling.TimeOfDay `json:"endTime" validate:"required"`
	DefaultCapacity   int                   `json:"defaultCapacity"`
	RecurrencePattern string                `json:"recurrencePattern"`
}

type CreateBedRequest struct {
	Code string `json:"code" validate:"required,max=32"`
}

type CreateSessionRequest struct {
	CenterID      int64                 `json:"centerId" validate:"gt=0"`
	Date          string                `json:"date" validate:"required"`
	StartTime     *scheduling.TimeOfDay `json:"startTime" validate:"required"`
	EndTime       *scheduling.TimeOfDay `json:"endTime" validate:"required"`
	AvailableBeds *int                  `json:"availableBeds" validate:"required,min=0"`
	Notes         *string               `json:"notes,omitempty"`
}

type StatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type CenterResponse struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	TotalCapacity int       `json:"totalCapacity"`
	CreatedAt     time.Time `json:"createdAt"`
}

type TemplateResponse struct {
	ID                int64                `json:"id"`
	CenterID          int64                `json:"centerId"`
	DoctorID          *int64               `json:"doctorId,omitempty"`
	Weekday           string               `json:"weekday"`
	StartTime         scheduling.TimeOfDay `json:"startTime"`
	EndTime           scheduling.TimeOfDay `json:"endTime"`
	DefaultCapacity   int                  `json:"defaultCapacity"`
	RecurrencePattern string               `json:"recurrencePattern"`
	Status            string               `json:"status"`
	CreatedByID       int64                `json:"createdById"`
	CreatedAt         time.Time            `json:"createdAt"`
}

type BedResponse struct {
	ID        int64     `json:"id"`
	CenterID  int64     `json:"centerId"`
	Code      string    `json:"code"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

type SessionResponse struct {
	ID            int64                `json:"id"`
	CenterID      int64                `json:"centerId"`
	TemplateID    *int64               `json:"templateId"`
	Date          string               `json:"date"`
	StartTime     scheduling.TimeOfDay `json:"startTime"`
	EndTime       scheduling.TimeOfDay `json:"endTime"`
	Capacity      int                  `json:"capacity"`
	AvailableBeds int                  `json:"availableBeds"`
	Notes         *string              `json:"notes,omitempty"`
	Status        string               `json:"status"`
	CreatedByID   int64                `json:"createdById"`
	CreatedAt     time.Time            `json:"createdAt"`
	UpdatedAt     *time.Time           `json:"updatedAt,omitempty"`
}

type CancelSessionResponse struct {
	Session              SessionResponse `json:"session"`
	CanceledAppointments int             `json:"canceledAppointments"`
}

type AppointmentResponse struct {
	ID                 int64     `json:"id"`
	ScheduledSessionID int64     `json:"scheduledSessionId"`
	PatientID          int64     `json:"patientId"`
	BedID              *int64    `json:"bedId"`
	BedPending         bool      `json:"bedPending"`
	StaffID            *int64    `json:"staffId,omitempty"`
	Status             string    `json:"status"`
	Notes              *string   `json:"notes,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

type CKDRecordResponse struct {
	ID           int64     `json:"id"`
	PatientID    int64     `json:"patientId"`
	Date         string    `json:"date"`
	EGFR         float64   `json:"eGFR"`
	Creatinine   float64   `json:"creatinine"`
	Stage        int       `json:"stage"`
	Notes        *string   `json:"notes,omitempty"`
	RecordedByID int64     `json:"recordedById"`
	RecordedAt   time.Time `json:"recordedAt"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toCenterResponse(c *scheduling.Center) CenterResponse {
	return CenterResponse{ID: c.ID, Name: c.Name, TotalCapacity: c.TotalCapacity, CreatedAt: c.CreatedAt}
}

func toTemplateResponse(t scheduling.SessionTemplate) TemplateResponse {
	return TemplateResponse{
		ID:                t.ID,
		CenterID:          t.CenterID,
		DoctorID:          t.DoctorID,
		Weekday:           string(t.Weekday),
		StartTime:         t.StartTime,
		EndTime:           t.EndTime,
		DefaultCapacity:   t.DefaultCapacity,
		RecurrencePattern: string(t.RecurrencePattern),
		Status:            string(t.Status),
		CreatedByID:       t.CreatedByID,
		CreatedAt:         t.CreatedAt,
	}
}

func toBedResponse(b scheduling.Bed) BedResponse {
	return BedResponse{ID: b.ID, CenterID: b.CenterID, Code: b.Code, Status: string(b.Status), CreatedAt: b.CreatedAt}
}

func toSessionResponse(s scheduling.ScheduledSession) SessionResponse {
	return SessionResponse{
		ID:            s.ID,
		CenterID:      s.CenterID,
		TemplateID:    s.TemplateID,
		Date:          s.Date.Format(scheduling.DateLayout),
		StartTime:     s.StartTime,
		EndTime:       s.EndTime,
		Capacity:      s.Capacity,
		AvailableBeds: s.AvailableBeds,
		Notes:         s.Notes,
		Status:        string(s.Status),
		CreatedByID:   s.CreatedByID,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

func toSessionResponses(ss []scheduling.ScheduledSession) []SessionResponse {
	out := make([]SessionResponse, 0, len(ss))
	for _, s := range ss {
		out = append(out, toSessionResponse(s))
	}
	return out
}

func toAppointmentResponse(a *scheduling.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                 a.ID,
		ScheduledSessionID: a.ScheduledSessionID,
		PatientID:          a.PatientID,
		BedID:              a.BedID,
		BedPending:         a.BedPending,
		StaffID:            a.StaffID,
		Status:             string(a.Status),
		Notes:              a.Notes,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
}

func toAppointmentResponses(as []scheduling.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(as))
	for i := range as {
		out = append(out, toAppointmentResponse(&as[i]))
	}
	return out
}

func toCKDRecordResponse(r ckd.Record) CKDRecordResponse {
	return CKDRecordResponse{
		ID:           r.ID,
		PatientID:    r.PatientID,
		Date:         r.Date.Format(scheduling.DateLayout),
		EGFR:         r.EGFR,
		Creatinine:   r.Creatinine,
		Stage:        r.Stage,
		Notes:        r.Notes,
		RecordedByID: r.RecordedByID,
		RecordedAt:   r.RecordedAt,
	}
}
