package ckd

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/dialysis-capacity-scheduling/internal/actor"
)

type Service struct {
	repo   Repository
	logger *zap.Logger
	loc    *time.Location
	now    func() time.Time
}

func NewService(repo Repository, logger *zap.Logger, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{repo: repo, logger: logger, loc: loc, now: time.Now}
}

func (s *Service) today() time.Time {
	y, m, d := s.now().In(s.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// RecordStage computes the stage for the measurement and appends it to the
// patient's history.
func (s *Service) RecordStage(ctx context.Context, in RecordInput) (*Record, error) {
	who, err := actor.Require(ctx)
	if err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	stage, err := ComputeStage(in.EGFR)
	if err != nil {
		return nil, err
	}

	date := s.today()
	if in.Date != nil {
		y, m, d := in.Date.Date()
		date = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		if date.After(s.today()) {
			return nil, fmt.Errorf("%w: %s is in the future", ErrInvalidDate, date.Format("2006-01-02"))
		}
	}

	rec := &Record{
		PatientID:    in.PatientID,
		Date:         date,
		EGFR:         in.EGFR,
		Creatinine:   in.Creatinine,
		Stage:        stage,
		Notes:        in.Notes,
		RecordedByID: who.UserID,
	}
	if err := s.repo.Insert(ctx, rec); err != nil {
		return nil, fmt.Errorf("insert ckd record: %w", err)
	}

	s.logger.Info("ckd stage recorded",
		zap.Int64("record_id", rec.ID),
		zap.Int64("patient_id", rec.PatientID),
		zap.Int("stage", rec.Stage),
	)
	return rec, nil
}

// History returns the patient's records, newest date first.
func (s *Service) History(ctx context.Context, patientID int64) ([]Record, error) {
	if patientID <= 0 {
		return nil, fmt.Errorf("%w: patient id must be positive", ErrInvalidPatient)
	}
	recs, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list ckd records: %w", err)
	}
	return recs, nil
}
