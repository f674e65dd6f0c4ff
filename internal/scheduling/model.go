package scheduling

import (
	"fmt"
	"strings"
	"time"
)

type Weekday string

const (
	Monday    Weekday = "mon"
	Tuesday   Weekday = "tue"
	Wednesday Weekday = "wed"
	Thursday  Weekday = "thu"
	Friday    Weekday = "fri"
	Saturday  Weekday = "sat"
	Sunday    Weekday = "sun"
)

// Weekday groups are accepted when authoring templates only.
const (
	GroupWeekdays = "weekdays"
	GroupWeekends = "weekends"
	GroupAllDays  = "alldays"
)

var weekdayGroups = map[string][]Weekday{
	GroupWeekdays: {Monday, Tuesday, Wednesday, Thursday, Friday},
	GroupWeekends: {Saturday, Sunday},
	GroupAllDays:  {Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday},
}

var weekdayByTime = map[time.Weekday]Weekday{
	time.Monday:    Monday,
	time.Tuesday:   Tuesday,
	time.Wednesday: Wednesday,
	time.Thursday:  Thursday,
	time.Friday:    Friday,
	time.Saturday:  Saturday,
	time.Sunday:    Sunday,
}

func (w Weekday) Valid() bool {
	switch w {
	case Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday:
		return true
	}
	return false
}

// WeekdayOf returns the weekday of a civil date.
func WeekdayOf(d time.Time) Weekday {
	return weekdayByTime[d.Weekday()]
}

// ExpandWeekdays resolves a single weekday or a weekday-group literal.
func ExpandWeekdays(raw string) ([]Weekday, bool, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if days, ok := weekdayGroups[v]; ok {
		out := make([]Weekday, len(days))
		copy(out, days)
		return out, true, nil
	}
	w := Weekday(v)
	if !w.Valid() {
		return nil, false, fmt.Errorf("%w: unknown weekday %q", ErrInvalidTemplate, raw)
	}
	return []Weekday{w}, false, nil
}

type RecurrencePattern string

const (
	RecurrenceDaily  RecurrencePattern = "daily"
	RecurrenceWeekly RecurrencePattern = "weekly"
)

type TemplateStatus string

const (
	TemplateActive   TemplateStatus = "active"
	TemplateInactive TemplateStatus = "inactive"
)

type SessionStatus string

const (
	SessionScheduled  SessionStatus = "scheduled"
	SessionInProgress SessionStatus = "in-progress"
	SessionCompleted  SessionStatus = "completed"
	SessionCancelled  SessionStatus = "cancelled"
)

type BedStatus string

const (
	BedActive   BedStatus = "active"
	BedInactive BedStatus = "inactive"
)

type AppointmentStatus string

const (
	StatusBooked      AppointmentStatus = "booked"
	StatusCanceled    AppointmentStatus = "canceled"
	StatusRescheduled AppointmentStatus = "rescheduled"
	StatusCompleted   AppointmentStatus = "completed"
)

// Active reports whether the appointment still holds capacity.
func (s AppointmentStatus) Active() bool {
	return s == StatusBooked || s == StatusRescheduled
}

type Center struct {
	ID            int64
	Name          string
	TotalCapacity int
	CreatedAt     time.Time
}

type SessionTemplate struct {
	ID                int64
	CenterID          int64
	DoctorID          *int64
	Weekday           Weekday
	StartTime         TimeOfDay
	EndTime           TimeOfDay
	DefaultCapacity   int
	RecurrencePattern RecurrencePattern
	Status            TemplateStatus
	CreatedByID       int64
	CreatedAt         time.Time
}

// Validate checks the fields the generator relies on.
func (t SessionTemplate) Validate() error {
	if !t.Weekday.Valid() {
		return fmt.Errorf("%w: weekday %q", ErrInvalidTemplate, t.Weekday)
	}
	if t.RecurrencePattern != RecurrenceDaily && t.RecurrencePattern != RecurrenceWeekly {
		return fmt.Errorf("%w: recurrence pattern %q", ErrInvalidTemplate, t.RecurrencePattern)
	}
	if !t.StartTime.Valid() || !t.EndTime.Valid() || t.StartTime >= t.EndTime {
		return fmt.Errorf("%w: start %s must be before end %s", ErrInvalidTemplate, t.StartTime, t.EndTime)
	}
	if t.DefaultCapacity <= 0 {
		return fmt.Errorf("%w: default capacity must be positive", ErrInvalidTemplate)
	}
	return nil
}

// Matches reports whether the template produces a session on date d.
func (t SessionTemplate) Matches(d time.Time) bool {
	switch t.RecurrencePattern {
	case RecurrenceDaily:
		return true
	case RecurrenceWeekly:
		return t.Weekday == WeekdayOf(d)
	}
	return false
}

type ScheduledSession struct {
	ID            int64
	CenterID      int64
	TemplateID    *int64
	Date          time.Time
	StartTime     TimeOfDay
	EndTime       TimeOfDay
	Capacity      int
	AvailableBeds int
	Notes         *string
	Status        SessionStatus
	CreatedByID   int64
	CreatedAt     time.Time
	UpdatedAt     *time.Time
}

// Overlaps reports whether two sessions share the same center, date and an
// intersecting time window.
func (s ScheduledSession) Overlaps(o ScheduledSession) bool {
	return s.CenterID == o.CenterID &&
		s.Date.Equal(o.Date) &&
		s.StartTime < o.EndTime &&
		o.StartTime < s.EndTime
}

type Bed struct {
	ID        int64
	CenterID  int64
	Code      string
	Status    BedStatus
	CreatedAt time.Time
}

type Appointment struct {
	ID                 int64
	ScheduledSessionID int64
	PatientID          int64
	BedID              *int64
	BedPending         bool
	StaffID            *int64
	Status             AppointmentStatus
	Notes              *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
