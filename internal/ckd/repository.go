package ckd

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository stores CKD records. Records are only ever appended.
type Repository interface {
	Insert(ctx context.Context, r *Record) error
	ListByPatient(ctx context.Context, patientID int64) ([]Record, error)
}

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) Insert(ctx context.Context, rec *Record) error {
	const q = `
		INSERT INTO ckd_records (patient_id, date, egfr, creatinine, stage, notes, recorded_by_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, recorded_at
	`
	return r.pool.QueryRow(ctx, q,
		rec.PatientID,
		rec.Date,
		rec.EGFR,
		rec.Creatinine,
		rec.Stage,
		rec.Notes,
		rec.RecordedByID,
	).Scan(&rec.ID, &rec.RecordedAt)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID int64) ([]Record, error) {
	const q = `
		SELECT id, patient_id, date, egfr, creatinine, stage, notes, recorded_by_id, recorded_at
		FROM ckd_records
		WHERE patient_id = $1
		ORDER BY date DESC, recorded_at DESC, id DESC
	`
	rows, err := r.pool.Query(ctx, q, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var rec Record
		err := row.Scan(
			&rec.ID,
			&rec.PatientID,
			&rec.Date,
			&rec.EGFR,
			&rec.Creatinine,
			&rec.Stage,
			&rec.Notes,
			&rec.RecordedByID,
			&rec.RecordedAt,
		)
		return rec, err
	})
}

// MemRepository keeps records in process memory.
type MemRepository struct {
	mu      sync.RWMutex
	nextID  int64
	records []Record
	now     func() time.Time
}

func NewMemRepository() *MemRepository {
	return &MemRepository{now: time.Now}
}

func (m *MemRepository) Insert(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	rec.ID = m.nextID
	rec.RecordedAt = m.now()
	m.records = append(m.records, *rec)
	return nil
}

func (m *MemRepository) ListByPatient(_ context.Context, patientID int64) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Record
	for _, rec := range m.records {
		if rec.PatientID == patientID {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		if !out[i].RecordedAt.Equal(out[j].RecordedAt) {
			return out[i].RecordedAt.After(out[j].RecordedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}
