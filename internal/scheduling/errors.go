package scheduling

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("not found")

var (
	ErrCenterNotFound      = fmt.Errorf("center %w", ErrNotFound)
	ErrTemplateNotFound    = fmt.Errorf("session template %w", ErrNotFound)
	ErrSessionNotFound     = fmt.Errorf("scheduled session %w", ErrNotFound)
	ErrBedNotFound         = fmt.Errorf("bed %w", ErrNotFound)
	ErrAppointmentNotFound = fmt.Errorf("appointment %w", ErrNotFound)
)

var (
	ErrInvalidRange            = errors.New("invalid date range")
	ErrExhausted               = errors.New("session capacity exhausted")
	ErrDuplicateBooking        = errors.New("patient already has an active appointment for this session")
	ErrSessionNotBookable      = errors.New("session is not bookable")
	ErrAlreadyTerminal         = errors.New("already in a terminal state")
	ErrInvalidTemplate         = errors.New("invalid session template")
	ErrInvalidSession          = errors.New("invalid scheduled session")
	ErrInvalidInput            = errors.New("invalid input")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrDuplicateBedCode        = errors.New("bed code already registered for center")
	ErrBedUnavailable          = errors.New("bed is not available for this session")

	// ErrSessionBusy is returned when a session row lock could not be taken
	// within the lock timeout. Callers may retry.
	ErrSessionBusy = errors.New("session is busy, retry")

	ErrGenerationInProgress = errors.New("session generation already running for center")
)
