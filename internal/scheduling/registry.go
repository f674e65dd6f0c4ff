package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hackgods/dialysis-capacity-scheduling/internal/actor"
)

// TemplateInput is a template as authored. Weekday may be a single weekday
// or one of the weekday-group literals.
type TemplateInput struct {
	CenterID          int64
	DoctorID          *int64
	Weekday           string
	StartTime         TimeOfDay
	EndTime           TimeOfDay
	DefaultCapacity   int
	RecurrencePattern RecurrencePattern
}

// Registry owns session templates and beds.
type Registry struct {
	store  Store
	logger *zap.Logger
}

func NewRegistry(store Store, logger *zap.Logger) *Registry {
	return &Registry{store: store, logger: logger}
}

// CreateCenter registers a center. Centers are reference data maintained
// elsewhere; this exists for seeding and local runs.
func (r *Registry) CreateCenter(ctx context.Context, name string, totalCapacity int) (*Center, error) {
	if strings.TrimSpace(name) == "" || totalCapacity <= 0 {
		return nil, fmt.Errorf("%w: center needs a name and a positive total capacity", ErrInvalidInput)
	}
	c := &Center{Name: name, TotalCapacity: totalCapacity}
	if err := r.store.CreateCenter(ctx, c); err != nil {
		return nil, fmt.Errorf("create center: %w", err)
	}
	return c, nil
}

// CreateTemplate validates the input, expands weekday groups into one
// template per weekday and stores them together.
func (r *Registry) CreateTemplate(ctx context.Context, in TemplateInput) ([]SessionTemplate, error) {
	who, err := actor.Require(ctx)
	if err != nil {
		return nil, err
	}

	days, grouped, err := ExpandWeekdays(in.Weekday)
	if err != nil {
		return nil, err
	}
	if grouped && in.RecurrencePattern == RecurrenceDaily {
		return nil, fmt.Errorf("%w: a daily template cannot use weekday group %q", ErrInvalidTemplate, in.Weekday)
	}

	if _, err := r.store.GetCenter(ctx, in.CenterID); err != nil {
		return nil, err
	}

	templates := make([]SessionTemplate, 0, len(days))
	for _, day := range days {
		t := SessionTemplate{
			CenterID:          in.CenterID,
			DoctorID:          in.DoctorID,
			Weekday:           day,
			StartTime:         in.StartTime,
			EndTime:           in.EndTime,
			DefaultCapacity:   in.DefaultCapacity,
			RecurrencePattern: in.RecurrencePattern,
			Status:            TemplateActive,
			CreatedByID:       who.UserID,
		}
		if err := t.Validate(); err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}

	created, err := r.store.CreateTemplates(ctx, templates)
	if err != nil {
		return nil, fmt.Errorf("create templates: %w", err)
	}

	r.logger.Info("session templates created",
		zap.Int64("center_id", in.CenterID),
		zap.String("weekday", in.Weekday),
		zap.Int("count", len(created)),
	)
	return created, nil
}

func (r *Registry) ListTemplates(ctx context.Context, centerID int64, activeOnly bool) ([]SessionTemplate, error) {
	if _, err := r.store.GetCenter(ctx, centerID); err != nil {
		return nil, err
	}
	ts, err := r.store.ListTemplates(ctx, centerID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return ts, nil
}

func (r *Registry) SetTemplateStatus(ctx context.Context, id int64, status TemplateStatus) (*SessionTemplate, error) {
	if status != TemplateActive && status != TemplateInactive {
		return nil, fmt.Errorf("%w: status %q", ErrInvalidTemplate, status)
	}
	t, err := r.store.SetTemplateStatus(ctx, id, status)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("set template status: %w", err)
	}
	return t, nil
}

func (r *Registry) RegisterBed(ctx context.Context, centerID int64, code string) (*Bed, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("%w: bed code is required", ErrInvalidInput)
	}

	b := &Bed{CenterID: centerID, Code: code, Status: BedActive}
	if err := r.store.CreateBed(ctx, b); err != nil {
		if errors.Is(err, ErrDuplicateBedCode) || errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("register bed: %w", err)
	}

	r.logger.Info("bed registered", zap.Int64("center_id", centerID), zap.String("code", code))
	return b, nil
}

func (r *Registry) ListBeds(ctx context.Context, centerID int64) ([]Bed, error) {
	if _, err := r.store.GetCenter(ctx, centerID); err != nil {
		return nil, err
	}
	beds, err := r.store.ListBeds(ctx, centerID)
	if err != nil {
		return nil, fmt.Errorf("list beds: %w", err)
	}
	return beds, nil
}

func (r *Registry) SetBedStatus(ctx context.Context, id int64, status BedStatus) (*Bed, error) {
	if status != BedActive && status != BedInactive {
		return nil, fmt.Errorf("%w: bed status %q", ErrInvalidInput, status)
	}
	b, err := r.store.SetBedStatus(ctx, id, status)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("set bed status: %w", err)
	}
	return b, nil
}
