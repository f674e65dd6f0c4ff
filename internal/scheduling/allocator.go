package scheduling

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// BedAssignment is the result of a reservation. BedID is nil and Pending is
// true when capacity was available but no named bed was free; staff finish
// the assignment later.
type BedAssignment struct {
	SessionID int64
	BedID     *int64
	Pending   bool
}

// Allocator tracks remaining capacity per session. The counter is the hard
// limit; named beds are assigned best-effort.
type Allocator struct {
	store  Store
	logger *zap.Logger
}

func NewAllocator(store Store, logger *zap.Logger) *Allocator {
	return &Allocator{store: store, logger: logger}
}

// Reserve takes one unit of capacity from the session in its own transaction.
func (a *Allocator) Reserve(ctx context.Context, sessionID int64) (*BedAssignment, error) {
	var assignment *BedAssignment

	err := a.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		sess, err := tx.LockSession(ctx, sessionID)
		if err != nil {
			return err
		}
		assignment, err = a.reserve(ctx, tx, sess, 0)
		return err
	})
	if err != nil {
		return nil, err
	}
	return assignment, nil
}

// Release gives one unit of capacity back to the session.
func (a *Allocator) Release(ctx context.Context, sessionID int64, bedID *int64) error {
	return a.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		sess, err := tx.LockSession(ctx, sessionID)
		if err != nil {
			return err
		}
		return a.release(ctx, tx, sess, bedID)
	})
}

// reserve expects sess to be locked by tx. excludeAppointmentID lets a
// rescheduled appointment ignore its own current bed.
func (a *Allocator) reserve(ctx context.Context, tx Tx, sess *ScheduledSession, excludeAppointmentID int64) (*BedAssignment, error) {
	if sess.AvailableBeds <= 0 {
		return nil, ErrExhausted
	}

	remaining, err := tx.AdjustAvailableBeds(ctx, sess.ID, -1)
	if err != nil {
		if errors.Is(err, ErrExhausted) {
			return nil, err
		}
		return nil, fmt.Errorf("decrement available beds: %w", err)
	}
	sess.AvailableBeds = remaining

	bedID, err := a.pickBed(ctx, tx, sess, excludeAppointmentID)
	if err != nil {
		return nil, err
	}

	assignment := &BedAssignment{SessionID: sess.ID, BedID: bedID, Pending: bedID == nil}
	if assignment.Pending {
		a.logger.Info("capacity reserved without a free bed",
			zap.Int64("session_id", sess.ID),
			zap.Int("available_beds", remaining),
		)
	}
	return assignment, nil
}

// pickBed returns the lowest-id active bed not held in an overlapping
// session, or nil.
func (a *Allocator) pickBed(ctx context.Context, tx Tx, sess *ScheduledSession, excludeAppointmentID int64) (*int64, error) {
	beds, err := tx.ListActiveBeds(ctx, sess.CenterID)
	if err != nil {
		return nil, fmt.Errorf("list active beds: %w", err)
	}
	if len(beds) == 0 {
		return nil, nil
	}

	occupied, err := tx.OccupiedBedIDs(ctx, sess, excludeAppointmentID)
	if err != nil {
		return nil, fmt.Errorf("load occupied beds: %w", err)
	}

	for _, b := range beds {
		if !occupied[b.ID] {
			id := b.ID
			return &id, nil
		}
	}
	return nil, nil
}

func (a *Allocator) release(ctx context.Context, tx Tx, sess *ScheduledSession, bedID *int64) error {
	remaining, err := tx.AdjustAvailableBeds(ctx, sess.ID, 1)
	if err != nil {
		return fmt.Errorf("increment available beds: %w", err)
	}
	sess.AvailableBeds = remaining

	fields := []zap.Field{zap.Int64("session_id", sess.ID), zap.Int("available_beds", remaining)}
	if bedID != nil {
		fields = append(fields, zap.Int64("bed_id", *bedID))
	}
	a.logger.Debug("capacity released", fields...)
	return nil
}

// bedAvailable reports whether bedID may be assigned for sess.
func (a *Allocator) bedAvailable(ctx context.Context, tx Tx, sess *ScheduledSession, bedID, appointmentID int64) error {
	bed, err := tx.GetBed(ctx, bedID)
	if err != nil {
		return err
	}
	if bed.CenterID != sess.CenterID || bed.Status != BedActive {
		return ErrBedUnavailable
	}
	occupied, err := tx.OccupiedBedIDs(ctx, sess, appointmentID)
	if err != nil {
		return fmt.Errorf("load occupied beds: %w", err)
	}
	if occupied[bedID] {
		return ErrBedUnavailable
	}
	return nil
}
