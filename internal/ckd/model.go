package ckd

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidMeasurement = errors.New("invalid measurement")
	ErrInvalidDate        = errors.New("invalid record date")
	ErrInvalidPatient     = errors.New("invalid patient")
)

// Record is one immutable CKD staging entry.
type Record struct {
	ID           int64
	PatientID    int64
	Date         time.Time // civil date, midnight UTC
	EGFR         float64
	Creatinine   float64
	Stage        int
	Notes        *string
	RecordedByID int64
	RecordedAt   time.Time
}

type RecordInput struct {
	PatientID  int64
	EGFR       float64
	Creatinine float64
	Notes      *string
	Date       *time.Time // defaults to today
}

func (in RecordInput) validate() error {
	if in.PatientID <= 0 {
		return fmt.Errorf("%w: patient id must be positive", ErrInvalidPatient)
	}
	if err := checkPositive("eGFR", in.EGFR); err != nil {
		return err
	}
	return checkPositive("creatinine", in.Creatinine)
}
