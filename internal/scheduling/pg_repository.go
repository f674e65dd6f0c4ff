package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgLockNotAvailable    = "55P03"
	pgDeadlockDetected    = "40P01"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgStore struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewPgStore returns a Store backed by Postgres. lockTimeout bounds how long
// a transaction waits for a session row lock.
func NewPgStore(pool *pgxpool.Pool, lockTimeout time.Duration) *PgStore {
	return &PgStore{pool: pool, lockTimeout: lockTimeout}
}

// Helpers

const sessionColumns = `id, center_id, template_id, date, start_time, end_time, capacity, available_beds, notes, status, created_by_id, created_at, updated_at`

const appointmentColumns = `id, scheduled_session_id, patient_id, bed_id, bed_pending, staff_id, status, notes, created_at, updated_at`

const templateColumns = `id, center_id, doctor_id, weekday, start_time, end_time, default_capacity, recurrence_pattern, status, created_by_id, created_at`

const bedColumns = `id, center_id, code, status, created_at`

func toPgTime(t TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: int64(t.Duration() / time.Microsecond), Valid: true}
}

func fromPgTime(t pgtype.Time) TimeOfDay {
	return TimeOfDay(t.Microseconds / int64(time.Minute/time.Microsecond))
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func scanCenter(row pgx.Row) (*Center, error) {
	var c Center
	err := row.Scan(&c.ID, &c.Name, &c.TotalCapacity, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCenterNotFound
		}
		return nil, err
	}
	return &c, nil
}

func scanTemplate(row pgx.Row) (*SessionTemplate, error) {
	var t SessionTemplate
	var start, end pgtype.Time

	err := row.Scan(
		&t.ID,
		&t.CenterID,
		&t.DoctorID,
		&t.Weekday,
		&start,
		&end,
		&t.DefaultCapacity,
		&t.RecurrencePattern,
		&t.Status,
		&t.CreatedByID,
		&t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}

	t.StartTime = fromPgTime(start)
	t.EndTime = fromPgTime(end)
	return &t, nil
}

func scanBed(row pgx.Row) (*Bed, error) {
	var b Bed
	err := row.Scan(&b.ID, &b.CenterID, &b.Code, &b.Status, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBedNotFound
		}
		return nil, err
	}
	return &b, nil
}

func scanSession(row pgx.Row) (*ScheduledSession, error) {
	var s ScheduledSession
	var start, end pgtype.Time

	err := row.Scan(
		&s.ID,
		&s.CenterID,
		&s.TemplateID,
		&s.Date,
		&start,
		&end,
		&s.Capacity,
		&s.AvailableBeds,
		&s.Notes,
		&s.Status,
		&s.CreatedByID,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	s.StartTime = fromPgTime(start)
	s.EndTime = fromPgTime(end)
	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.ScheduledSessionID,
		&a.PatientID,
		&a.BedID,
		&a.BedPending,
		&a.StaffID,
		&a.Status,
		&a.Notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (*T, error)) ([]T, error) {
	defer rows.Close()

	var result []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Centers

func (r *PgStore) CreateCenter(ctx context.Context, c *Center) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO centers (name, total_capacity)
		VALUES ($1, $2)
		RETURNING id, created_at
	`, c.Name, c.TotalCapacity).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert center: %w", err)
	}
	return nil
}

func (r *PgStore) GetCenter(ctx context.Context, id int64) (*Center, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, total_capacity, created_at
		FROM centers
		WHERE id = $1
	`, id)
	return scanCenter(row)
}

func (r *PgStore) ListCenterIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM centers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// Templates

func (r *PgStore) CreateTemplates(ctx context.Context, ts []SessionTemplate) ([]SessionTemplate, error) {
	out := make([]SessionTemplate, 0, len(ts))

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for _, t := range ts {
			row := tx.QueryRow(ctx, `
				INSERT INTO session_templates
					(center_id, doctor_id, weekday, start_time, end_time, default_capacity, recurrence_pattern, status, created_by_id)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				RETURNING `+templateColumns,
				t.CenterID, t.DoctorID, t.Weekday, toPgTime(t.StartTime), toPgTime(t.EndTime),
				t.DefaultCapacity, t.RecurrencePattern, t.Status, t.CreatedByID,
			)
			created, err := scanTemplate(row)
			if err != nil {
				return err
			}
			out = append(out, *created)
		}
		return nil
	})
	if err != nil {
		if pgCode(err) == pgForeignKeyViolation {
			return nil, ErrCenterNotFound
		}
		return nil, fmt.Errorf("insert session templates: %w", err)
	}
	return out, nil
}

func (r *PgStore) GetTemplate(ctx context.Context, id int64) (*SessionTemplate, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+templateColumns+` FROM session_templates WHERE id = $1`, id)
	return scanTemplate(row)
}

func (r *PgStore) ListTemplates(ctx context.Context, centerID int64, activeOnly bool) ([]SessionTemplate, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+templateColumns+`
		FROM session_templates
		WHERE center_id = $1
		  AND ($2 = false OR status = 'active')
		ORDER BY id
	`, centerID, activeOnly)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanTemplate)
}

func (r *PgStore) SetTemplateStatus(ctx context.Context, id int64, status TemplateStatus) (*SessionTemplate, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE session_templates
		SET status = $2
		WHERE id = $1
		RETURNING `+templateColumns, id, status)
	return scanTemplate(row)
}

// Beds

func (r *PgStore) CreateBed(ctx context.Context, b *Bed) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO beds (center_id, code, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, b.CenterID, b.Code, b.Status).Scan(&b.ID, &b.CreatedAt)
	if err != nil {
		switch pgCode(err) {
		case pgUniqueViolation:
			return ErrDuplicateBedCode
		case pgForeignKeyViolation:
			return ErrCenterNotFound
		}
		return fmt.Errorf("insert bed: %w", err)
	}
	return nil
}

func (r *PgStore) ListBeds(ctx context.Context, centerID int64) ([]Bed, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+bedColumns+` FROM beds WHERE center_id = $1 ORDER BY id`, centerID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanBed)
}

func (r *PgStore) SetBedStatus(ctx context.Context, id int64, status BedStatus) (*Bed, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE beds
		SET status = $2
		WHERE id = $1
		RETURNING `+bedColumns, id, status)
	return scanBed(row)
}

func (r *PgStore) CountActiveBeds(ctx context.Context, centerID int64) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM beds WHERE center_id = $1 AND status = 'active'
	`, centerID).Scan(&n)
	return n, err
}

// Sessions

func (r *PgStore) InsertSession(ctx context.Context, s *ScheduledSession) (bool, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO scheduled_sessions
			(center_id, template_id, date, start_time, end_time, capacity, available_beds, notes, status, created_by_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT DO NOTHING
		RETURNING id, created_at
	`, s.CenterID, s.TemplateID, s.Date, toPgTime(s.StartTime), toPgTime(s.EndTime),
		s.Capacity, s.AvailableBeds, s.Notes, s.Status, s.CreatedByID,
	).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		if pgCode(err) == pgForeignKeyViolation {
			return false, ErrCenterNotFound
		}
		return false, fmt.Errorf("insert scheduled session: %w", err)
	}
	return true, nil
}

func (r *PgStore) RefreshEmptySession(ctx context.Context, s *ScheduledSession) (bool, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE scheduled_sessions ss
		SET capacity = $4, available_beds = $4, updated_at = now()
		WHERE center_id = $1 AND template_id = $2 AND date = $3
			AND status = 'scheduled' AND capacity = 0
			AND NOT EXISTS (SELECT 1 FROM appointments a WHERE a.scheduled_session_id = ss.id)
		RETURNING `+sessionColumns,
		s.CenterID, s.TemplateID, s.Date, s.Capacity,
	)
	got, err := scanSession(row)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) || errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("refresh scheduled session: %w", err)
	}
	*s = *got
	return true, nil
}

func (r *PgStore) GetSession(ctx context.Context, id int64) (*ScheduledSession, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM scheduled_sessions WHERE id = $1`, id)
	return scanSession(row)
}

func (r *PgStore) ListSessions(ctx context.Context, centerID int64, from, to time.Time) ([]ScheduledSession, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM scheduled_sessions
		WHERE center_id = $1
		  AND date BETWEEN $2 AND $3
		ORDER BY date, start_time, id
	`, centerID, from, to)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanSession)
}

// Appointments

func (r *PgStore) GetAppointment(ctx context.Context, id int64) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

func (r *PgStore) ListAppointmentsBySession(ctx context.Context, sessionID int64) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE scheduled_session_id = $1
		ORDER BY id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanAppointment)
}

func (r *PgStore) ListAppointmentsByPatient(ctx context.Context, patientID int64, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY id DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanAppointment)
}

// Transactions

func (r *PgStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if r.lockTimeout > 0 {
			timeout := fmt.Sprintf("%dms", r.lockTimeout.Milliseconds())
			if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, timeout); err != nil {
				return fmt.Errorf("set lock timeout: %w", err)
			}
		}
		return fn(ctx, &pgTx{q: tx})
	})
	if err == nil {
		return nil
	}

	switch pgCode(err) {
	case pgLockNotAvailable, pgDeadlockDetected:
		return ErrSessionBusy
	case pgUniqueViolation:
		// uq_appointments_active_patient backs the service-level check
		return ErrDuplicateBooking
	}
	return err
}

type pgTx struct {
	q querier
}

func (t *pgTx) LockSession(ctx context.Context, id int64) (*ScheduledSession, error) {
	row := t.q.QueryRow(ctx, `SELECT `+sessionColumns+` FROM scheduled_sessions WHERE id = $1 FOR UPDATE`, id)
	return scanSession(row)
}

func (t *pgTx) LockAppointment(ctx context.Context, id int64) (*Appointment, error) {
	row := t.q.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, id)
	return scanAppointment(row)
}

func (t *pgTx) FindActiveAppointment(ctx context.Context, sessionID, patientID int64) (*Appointment, error) {
	row := t.q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE scheduled_session_id = $1
		  AND patient_id = $2
		  AND status IN ('booked', 'rescheduled')
		LIMIT 1
	`, sessionID, patientID)
	return scanAppointment(row)
}

func (t *pgTx) ListActiveAppointments(ctx context.Context, sessionID int64) ([]Appointment, error) {
	rows, err := t.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE scheduled_session_id = $1
		  AND status IN ('booked', 'rescheduled')
		ORDER BY id
		FOR UPDATE
	`, sessionID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanAppointment)
}

func (t *pgTx) GetBed(ctx context.Context, id int64) (*Bed, error) {
	row := t.q.QueryRow(ctx, `SELECT `+bedColumns+` FROM beds WHERE id = $1`, id)
	return scanBed(row)
}

func (t *pgTx) ListActiveBeds(ctx context.Context, centerID int64) ([]Bed, error) {
	rows, err := t.q.Query(ctx, `
		SELECT `+bedColumns+`
		FROM beds
		WHERE center_id = $1 AND status = 'active'
		ORDER BY id
	`, centerID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanBed)
}

func (t *pgTx) OccupiedBedIDs(ctx context.Context, s *ScheduledSession, excludeAppointmentID int64) (map[int64]bool, error) {
	rows, err := t.q.Query(ctx, `
		SELECT DISTINCT a.bed_id
		FROM appointments a
		JOIN scheduled_sessions s ON s.id = a.scheduled_session_id
		WHERE s.center_id = $1
		  AND s.date = $2
		  AND s.status <> 'cancelled'
		  AND s.start_time < $4
		  AND $3 < s.end_time
		  AND a.status IN ('booked', 'rescheduled')
		  AND a.bed_id IS NOT NULL
		  AND a.id <> $5
	`, s.CenterID, s.Date, toPgTime(s.StartTime), toPgTime(s.EndTime), excludeAppointmentID)
	if err != nil {
		return nil, err
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, err
	}

	occupied := make(map[int64]bool, len(ids))
	for _, id := range ids {
		occupied[id] = true
	}
	return occupied, nil
}

func (t *pgTx) AdjustAvailableBeds(ctx context.Context, sessionID int64, delta int) (int, error) {
	var n int
	err := t.q.QueryRow(ctx, `
		UPDATE scheduled_sessions
		SET available_beds = LEAST(available_beds + $2, capacity),
		    updated_at = now()
		WHERE id = $1
		  AND available_beds + $2 >= 0
		RETURNING available_beds
	`, sessionID, delta).Scan(&n)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrExhausted
		}
		return 0, fmt.Errorf("adjust available beds: %w", err)
	}
	return n, nil
}

func (t *pgTx) UpdateSessionStatus(ctx context.Context, id int64, status SessionStatus) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE scheduled_sessions
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (t *pgTx) InsertAppointment(ctx context.Context, a *Appointment) error {
	err := t.q.QueryRow(ctx, `
		INSERT INTO appointments
			(scheduled_session_id, patient_id, bed_id, bed_pending, staff_id, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`, a.ScheduledSessionID, a.PatientID, a.BedID, a.BedPending, a.StaffID, a.Status, a.Notes,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateAppointment(ctx context.Context, a *Appointment) error {
	err := t.q.QueryRow(ctx, `
		UPDATE appointments
		SET scheduled_session_id = $2,
		    bed_id = $3,
		    bed_pending = $4,
		    staff_id = $5,
		    status = $6,
		    notes = $7,
		    updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, a.ID, a.ScheduledSessionID, a.BedID, a.BedPending, a.StaffID, a.Status, a.Notes,
	).Scan(&a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAppointmentNotFound
		}
		return fmt.Errorf("update appointment: %w", err)
	}
	return nil
}
