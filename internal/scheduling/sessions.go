package scheduling

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/dialysis-capacity-scheduling/internal/actor"
	"github.com/hackgods/dialysis-capacity-scheduling/internal/notify"
)

// SessionInput describes an ad-hoc session created outside any template.
type SessionInput struct {
	CenterID      int64
	Date          time.Time
	StartTime     TimeOfDay
	EndTime       TimeOfDay
	AvailableBeds int
	Notes         *string
}

var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionScheduled:  {SessionInProgress, SessionCompleted},
	SessionInProgress: {SessionCompleted},
}

func canTransition(from, to SessionStatus) bool {
	for _, s := range sessionTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (e *Engine) CreateSession(ctx context.Context, in SessionInput) (*ScheduledSession, error) {
	who, err := actor.Require(ctx)
	if err != nil {
		return nil, err
	}

	if !in.StartTime.Valid() || !in.EndTime.Valid() || in.StartTime >= in.EndTime {
		return nil, fmt.Errorf("%w: start %s must be before end %s", ErrInvalidSession, in.StartTime, in.EndTime)
	}
	if in.Date.IsZero() {
		return nil, fmt.Errorf("%w: date is required", ErrInvalidSession)
	}
	date := CivilDate(in.Date, in.Date.Location())
	if date.Before(e.today()) {
		return nil, fmt.Errorf("%w: date %s is in the past", ErrInvalidSession, date.Format(DateLayout))
	}

	center, err := e.store.GetCenter(ctx, in.CenterID)
	if err != nil {
		return nil, err
	}
	if in.AvailableBeds < 0 || in.AvailableBeds > center.TotalCapacity {
		return nil, fmt.Errorf("%w: available beds must be between 0 and %d", ErrInvalidSession, center.TotalCapacity)
	}

	s := &ScheduledSession{
		CenterID:      center.ID,
		Date:          date,
		StartTime:     in.StartTime,
		EndTime:       in.EndTime,
		Capacity:      in.AvailableBeds,
		AvailableBeds: in.AvailableBeds,
		Notes:         in.Notes,
		Status:        SessionScheduled,
		CreatedByID:   who.UserID,
	}
	if _, err := e.store.InsertSession(ctx, s); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	e.logger.Info("ad-hoc session created",
		zap.Int64("session_id", s.ID),
		zap.Int64("center_id", s.CenterID),
		zap.String("date", s.Date.Format(DateLayout)),
	)
	return s, nil
}

func (e *Engine) GetSession(ctx context.Context, id int64) (*ScheduledSession, error) {
	return e.store.GetSession(ctx, id)
}

func (e *Engine) ListSessions(ctx context.Context, centerID int64, from, to time.Time) ([]ScheduledSession, error) {
	if to.Before(from) {
		return nil, ErrInvalidRange
	}
	if _, err := e.store.GetCenter(ctx, centerID); err != nil {
		return nil, err
	}
	sessions, err := e.store.ListSessions(ctx, centerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// UpdateSessionStatus advances a session through scheduled, in-progress and
// completed. Completing a session completes its remaining active
// appointments. Cancellation goes through CancelSession.
func (e *Engine) UpdateSessionStatus(ctx context.Context, id int64, status SessionStatus) (*ScheduledSession, error) {
	if status == SessionCancelled {
		res, err := e.CancelSession(ctx, id)
		if err != nil {
			return nil, err
		}
		return res.Session, nil
	}
	if _, err := actor.Require(ctx); err != nil {
		return nil, err
	}

	var updated *ScheduledSession
	err := e.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		sess, err := tx.LockSession(ctx, id)
		if err != nil {
			return err
		}
		if !canTransition(sess.Status, status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, sess.Status, status)
		}

		if status == SessionCompleted {
			appts, err := tx.ListActiveAppointments(ctx, sess.ID)
			if err != nil {
				return err
			}
			for i := range appts {
				appts[i].Status = StatusCompleted
				if err := tx.UpdateAppointment(ctx, &appts[i]); err != nil {
					return err
				}
			}
		}

		if err := tx.UpdateSessionStatus(ctx, sess.ID, status); err != nil {
			return err
		}
		sess.Status = status
		updated = sess
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("session status changed", zap.Int64("session_id", id), zap.String("status", string(status)))
	return updated, nil
}

type CancelSessionResult struct {
	Session  *ScheduledSession
	Canceled []Appointment
}

// CancelSession cancels the session and every active appointment in it in
// one transaction; readers never observe a partial cascade.
func (e *Engine) CancelSession(ctx context.Context, id int64) (*CancelSessionResult, error) {
	if _, err := actor.Require(ctx); err != nil {
		return nil, err
	}

	res := &CancelSessionResult{}

	err := e.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		sess, err := tx.LockSession(ctx, id)
		if err != nil {
			return err
		}
		if sess.Status == SessionCancelled || sess.Status == SessionCompleted {
			return ErrAlreadyTerminal
		}

		appts, err := tx.ListActiveAppointments(ctx, sess.ID)
		if err != nil {
			return fmt.Errorf("list active appointments: %w", err)
		}

		for i := range appts {
			if err := e.alloc.release(ctx, tx, sess, appts[i].BedID); err != nil {
				return err
			}
			appts[i].Status = StatusCanceled
			appts[i].BedID = nil
			appts[i].BedPending = false
			if err := tx.UpdateAppointment(ctx, &appts[i]); err != nil {
				return err
			}
		}

		if err := tx.UpdateSessionStatus(ctx, sess.ID, SessionCancelled); err != nil {
			return err
		}
		sess.Status = SessionCancelled

		res.Session = sess
		res.Canceled = appts
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("session cancelled",
		zap.Int64("session_id", id),
		zap.Int("canceled_appointments", len(res.Canceled)),
	)

	e.notifier.Notify(ctx, notify.Event{
		Type: notify.EventSessionCancelled,
		Payload: map[string]any{
			"scheduled_session_id": id,
			"center_id":            res.Session.CenterID,
			"date":                 res.Session.Date.Format(DateLayout),
			"canceled":             len(res.Canceled),
		},
	})
	for i := range res.Canceled {
		e.notifier.Notify(ctx, notify.Event{
			Type:    notify.EventAppointmentCanceled,
			Payload: appointmentPayload(&res.Canceled[i]),
		})
	}

	return res, nil
}
