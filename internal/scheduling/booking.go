package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/dialysis-capacity-scheduling/internal/actor"
	"github.com/hackgods/dialysis-capacity-scheduling/internal/notify"
)

// Engine books, cancels and reschedules appointments against scheduled
// sessions and manages session lifecycle.
type Engine struct {
	store    Store
	alloc    *Allocator
	notifier notify.Notifier
	logger   *zap.Logger
	loc      *time.Location
	now      func() time.Time
}

type EngineOption func(*Engine)

// WithClock overrides the time source used to decide whether a session date
// is in the past.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

func NewEngine(store Store, alloc *Allocator, notifier notify.Notifier, logger *zap.Logger, loc *time.Location, opts ...EngineOption) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	e := &Engine{
		store:    store,
		alloc:    alloc,
		notifier: notifier,
		logger:   logger,
		loc:      loc,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) today() time.Time {
	return CivilDate(e.now(), e.loc)
}

func (e *Engine) checkBookable(s *ScheduledSession) error {
	if s.Status != SessionScheduled {
		return fmt.Errorf("%w: session %d is %s", ErrSessionNotBookable, s.ID, s.Status)
	}
	if s.Date.Before(e.today()) {
		return fmt.Errorf("%w: session %d is on %s, which is in the past", ErrSessionNotBookable, s.ID, s.Date.Format(DateLayout))
	}
	return nil
}

func checkNoActiveAppointment(ctx context.Context, tx Tx, sessionID, patientID int64) error {
	_, err := tx.FindActiveAppointment(ctx, sessionID, patientID)
	switch {
	case err == nil:
		return ErrDuplicateBooking
	case errors.Is(err, ErrAppointmentNotFound):
		return nil
	default:
		return fmt.Errorf("check existing appointment: %w", err)
	}
}

// Book creates a booked appointment for the patient. The session row is
// locked for the duration, so concurrent bookings of the last bed or by the
// same patient cannot both succeed.
func (e *Engine) Book(ctx context.Context, sessionID, patientID int64) (*Appointment, error) {
	who, err := actor.Require(ctx)
	if err != nil {
		return nil, err
	}
	if patientID <= 0 {
		return nil, fmt.Errorf("%w: patient id must be positive", ErrInvalidInput)
	}

	var booked *Appointment

	err = e.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		sess, err := tx.LockSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if err := e.checkBookable(sess); err != nil {
			return err
		}
		if err := checkNoActiveAppointment(ctx, tx, sess.ID, patientID); err != nil {
			return err
		}

		assignment, err := e.alloc.reserve(ctx, tx, sess, 0)
		if err != nil {
			return err
		}

		appt := &Appointment{
			ScheduledSessionID: sess.ID,
			PatientID:          patientID,
			BedID:              assignment.BedID,
			BedPending:         assignment.Pending,
			Status:             StatusBooked,
		}
		if who.IsStaff() {
			staffID := who.UserID
			appt.StaffID = &staffID
		}
		if err := tx.InsertAppointment(ctx, appt); err != nil {
			return err
		}

		booked = appt
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("appointment booked",
		zap.Int64("appointment_id", booked.ID),
		zap.Int64("session_id", sessionID),
		zap.Int64("patient_id", patientID),
		zap.Bool("bed_pending", booked.BedPending),
	)
	e.notifier.Notify(ctx, notify.Event{
		Type:    notify.EventAppointmentBooked,
		Payload: appointmentPayload(booked),
	})

	return booked, nil
}

// Cancel moves an active appointment to canceled and returns its capacity.
func (e *Engine) Cancel(ctx context.Context, appointmentID int64) (*Appointment, error) {
	if _, err := actor.Require(ctx); err != nil {
		return nil, err
	}

	current, err := e.store.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if !current.Status.Active() {
		return nil, ErrAlreadyTerminal
	}

	var canceled *Appointment

	err = e.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		// session first, then appointment: same order as CancelSession
		sess, err := tx.LockSession(ctx, current.ScheduledSessionID)
		if err != nil {
			return err
		}
		appt, err := tx.LockAppointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		if appt.ScheduledSessionID != sess.ID {
			return ErrSessionBusy
		}
		if !appt.Status.Active() {
			return ErrAlreadyTerminal
		}

		if err := e.alloc.release(ctx, tx, sess, appt.BedID); err != nil {
			return err
		}

		appt.Status = StatusCanceled
		appt.BedID = nil
		appt.BedPending = false
		if err := tx.UpdateAppointment(ctx, appt); err != nil {
			return err
		}

		canceled = appt
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("appointment canceled",
		zap.Int64("appointment_id", canceled.ID),
		zap.Int64("session_id", canceled.ScheduledSessionID),
	)
	e.notifier.Notify(ctx, notify.Event{
		Type:    notify.EventAppointmentCanceled,
		Payload: appointmentPayload(canceled),
	})

	return canceled, nil
}

// Reschedule moves an active appointment to another session. Capacity is
// reserved on the new session and released on the old one in the same
// transaction; on any failure the appointment is left as it was.
func (e *Engine) Reschedule(ctx context.Context, appointmentID, newSessionID int64) (*Appointment, error) {
	if _, err := actor.Require(ctx); err != nil {
		return nil, err
	}

	current, err := e.store.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if !current.Status.Active() {
		return nil, ErrAlreadyTerminal
	}
	if current.ScheduledSessionID == newSessionID {
		return nil, ErrDuplicateBooking
	}
	oldSessionID := current.ScheduledSessionID

	var moved *Appointment

	err = e.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		oldSess, newSess, err := lockSessionPair(ctx, tx, oldSessionID, newSessionID)
		if err != nil {
			return err
		}
		appt, err := tx.LockAppointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		if appt.ScheduledSessionID != oldSess.ID {
			return ErrSessionBusy
		}
		if !appt.Status.Active() {
			return ErrAlreadyTerminal
		}

		if err := e.checkBookable(newSess); err != nil {
			return err
		}
		if err := checkNoActiveAppointment(ctx, tx, newSess.ID, appt.PatientID); err != nil {
			return err
		}

		assignment, err := e.alloc.reserve(ctx, tx, newSess, appt.ID)
		if err != nil {
			return err
		}
		if err := e.alloc.release(ctx, tx, oldSess, appt.BedID); err != nil {
			return err
		}

		appt.ScheduledSessionID = newSess.ID
		appt.Status = StatusRescheduled
		appt.BedID = assignment.BedID
		appt.BedPending = assignment.Pending
		if err := tx.UpdateAppointment(ctx, appt); err != nil {
			return err
		}

		moved = appt
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("appointment rescheduled",
		zap.Int64("appointment_id", moved.ID),
		zap.Int64("from_session_id", oldSessionID),
		zap.Int64("to_session_id", newSessionID),
	)

	payload := appointmentPayload(moved)
	payload["rescheduled_from_session_id"] = oldSessionID
	e.notifier.Notify(ctx, notify.Event{Type: notify.EventAppointmentBooked, Payload: payload})

	return moved, nil
}

// Complete marks an active appointment as completed. Capacity stays consumed.
func (e *Engine) Complete(ctx context.Context, appointmentID int64) (*Appointment, error) {
	if _, err := actor.Require(ctx); err != nil {
		return nil, err
	}

	var done *Appointment
	err := e.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		appt, err := tx.LockAppointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		if !appt.Status.Active() {
			return ErrAlreadyTerminal
		}
		appt.Status = StatusCompleted
		if err := tx.UpdateAppointment(ctx, appt); err != nil {
			return err
		}
		done = appt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return done, nil
}

// AssignBed lets staff finalize the bed of an appointment, typically one
// left pending at booking time.
func (e *Engine) AssignBed(ctx context.Context, appointmentID, bedID int64) (*Appointment, error) {
	if _, err := actor.Require(ctx); err != nil {
		return nil, err
	}

	current, err := e.store.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	var updated *Appointment
	err = e.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		sess, err := tx.LockSession(ctx, current.ScheduledSessionID)
		if err != nil {
			return err
		}
		appt, err := tx.LockAppointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		if appt.ScheduledSessionID != sess.ID {
			return ErrSessionBusy
		}
		if !appt.Status.Active() {
			return ErrAlreadyTerminal
		}
		if err := e.alloc.bedAvailable(ctx, tx, sess, bedID, appt.ID); err != nil {
			return err
		}

		appt.BedID = &bedID
		appt.BedPending = false
		if err := tx.UpdateAppointment(ctx, appt); err != nil {
			return err
		}
		updated = appt
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("bed assigned",
		zap.Int64("appointment_id", appointmentID),
		zap.Int64("bed_id", bedID),
	)
	return updated, nil
}

func (e *Engine) GetAppointment(ctx context.Context, id int64) (*Appointment, error) {
	return e.store.GetAppointment(ctx, id)
}

func (e *Engine) ListSessionAppointments(ctx context.Context, sessionID int64) ([]Appointment, error) {
	if _, err := e.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	appts, err := e.store.ListAppointmentsBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list appointments by session: %w", err)
	}
	return appts, nil
}

// ListPatientAppointments returns the patient's appointments, newest first.
func (e *Engine) ListPatientAppointments(ctx context.Context, patientID int64, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}

	appts, err := e.store.ListAppointmentsByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appts, nil
}

// lockSessionPair locks two sessions in ascending id order and returns them
// as (a, b).
func lockSessionPair(ctx context.Context, tx Tx, a, b int64) (*ScheduledSession, *ScheduledSession, error) {
	first, second := a, b
	if second < first {
		first, second = second, first
	}

	s1, err := tx.LockSession(ctx, first)
	if err != nil {
		return nil, nil, err
	}
	s2, err := tx.LockSession(ctx, second)
	if err != nil {
		return nil, nil, err
	}

	if s1.ID == a {
		return s1, s2, nil
	}
	return s2, s1, nil
}

func appointmentPayload(a *Appointment) map[string]any {
	payload := map[string]any{
		"appointment_id":       a.ID,
		"scheduled_session_id": a.ScheduledSessionID,
		"patient_id":           a.PatientID,
		"status":               string(a.Status),
	}
	if a.BedID != nil {
		payload["bed_id"] = *a.BedID
	}
	return payload
}
