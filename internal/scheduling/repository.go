package scheduling

import (
	"context"
	"time"
)

// Store contains all persistence needed by the scheduling services.
// Methods outside InTx are single statements; anything that mutates capacity
// goes through a Tx.
type Store interface {
	CreateCenter(ctx context.Context, c *Center) error
	GetCenter(ctx context.Context, id int64) (*Center, error)
	ListCenterIDs(ctx context.Context) ([]int64, error)

	// Templates. CreateTemplates stores all rows or none.
	CreateTemplates(ctx context.Context, ts []SessionTemplate) ([]SessionTemplate, error)
	GetTemplate(ctx context.Context, id int64) (*SessionTemplate, error)
	ListTemplates(ctx context.Context, centerID int64, activeOnly bool) ([]SessionTemplate, error)
	SetTemplateStatus(ctx context.Context, id int64, status TemplateStatus) (*SessionTemplate, error)

	// Beds
	CreateBed(ctx context.Context, b *Bed) error
	ListBeds(ctx context.Context, centerID int64) ([]Bed, error)
	SetBedStatus(ctx context.Context, id int64, status BedStatus) (*Bed, error)
	CountActiveBeds(ctx context.Context, centerID int64) (int, error)

	// InsertSession returns false without error when a non-cancelled session
	// for the same (center, template, date) already exists.
	InsertSession(ctx context.Context, s *ScheduledSession) (bool, error)
	// RefreshEmptySession raises a generated session that was created with
	// zero capacity to s.Capacity. Only scheduled sessions that never had an
	// appointment qualify; s is filled from the updated row on success.
	RefreshEmptySession(ctx context.Context, s *ScheduledSession) (bool, error)
	GetSession(ctx context.Context, id int64) (*ScheduledSession, error)
	ListSessions(ctx context.Context, centerID int64, from, to time.Time) ([]ScheduledSession, error)

	GetAppointment(ctx context.Context, id int64) (*Appointment, error)
	ListAppointmentsBySession(ctx context.Context, sessionID int64) ([]Appointment, error)
	ListAppointmentsByPatient(ctx context.Context, patientID int64, limit, offset int) ([]Appointment, error)

	// InTx runs fn in one transaction. Returning an error rolls back every
	// write made through tx.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the transactional view used by the allocator and the booking engine.
type Tx interface {
	// LockSession loads the session and holds it against concurrent
	// capacity changes until the transaction ends.
	LockSession(ctx context.Context, id int64) (*ScheduledSession, error)
	LockAppointment(ctx context.Context, id int64) (*Appointment, error)

	FindActiveAppointment(ctx context.Context, sessionID, patientID int64) (*Appointment, error)
	ListActiveAppointments(ctx context.Context, sessionID int64) ([]Appointment, error)

	GetBed(ctx context.Context, id int64) (*Bed, error)
	// ListActiveBeds returns active beds of the center ordered by id.
	ListActiveBeds(ctx context.Context, centerID int64) ([]Bed, error)
	// OccupiedBedIDs returns beds held by active appointments in sessions
	// overlapping s, ignoring appointment excludeAppointmentID.
	OccupiedBedIDs(ctx context.Context, s *ScheduledSession, excludeAppointmentID int64) (map[int64]bool, error)

	// AdjustAvailableBeds applies delta, clamped to capacity. It returns
	// ErrExhausted when the result would be negative.
	AdjustAvailableBeds(ctx context.Context, sessionID int64, delta int) (int, error)
	UpdateSessionStatus(ctx context.Context, id int64, status SessionStatus) error

	InsertAppointment(ctx context.Context, a *Appointment) error
	UpdateAppointment(ctx context.Context, a *Appointment) error
}
