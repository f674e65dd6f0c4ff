package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/dialysis-capacity-scheduling/internal/actor"
	redisclient "github.com/hackgods/dialysis-capacity-scheduling/internal/redis"
)

type GenerateRequest struct {
	CenterID    int64
	StartDate   time.Time
	EndDate     time.Time
	TemplateIDs []int64 // empty means every active template of the center
}

// TemplateFailure records a template skipped during generation.
type TemplateFailure struct {
	TemplateID int64
	Reason     string
}

type GenerateResult struct {
	Created int
	Skipped int
	// Refreshed counts existing zero-capacity sessions raised to the
	// template capacity once the center had active beds.
	Refreshed int
	Sessions  []ScheduledSession
	Failures []TemplateFailure
}

// Generator expands session templates into dated sessions.
type Generator struct {
	store   Store
	locker  redisclient.Locker
	logger  *zap.Logger
	maxDays int
}

func NewGenerator(store Store, locker redisclient.Locker, logger *zap.Logger, maxDays int) *Generator {
	return &Generator{
		store:   store,
		locker:  locker,
		logger:  logger,
		maxDays: maxDays,
	}
}

// Generate creates the sessions of [StartDate, EndDate] inclusive. Sessions
// that already exist for the same template and date are counted as skipped.
// A bad template is reported in Failures and does not stop the run.
func (g *Generator) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	who, err := actor.Require(ctx)
	if err != nil {
		return nil, err
	}

	start := CivilDate(req.StartDate, req.StartDate.Location())
	end := CivilDate(req.EndDate, req.EndDate.Location())
	if req.StartDate.IsZero() || req.EndDate.IsZero() || end.Before(start) {
		return nil, fmt.Errorf("%w: start date must not be after end date", ErrInvalidRange)
	}
	if days := int(end.Sub(start).Hours()/24) + 1; g.maxDays > 0 && days > g.maxDays {
		return nil, fmt.Errorf("%w: %d days exceeds the limit of %d", ErrInvalidRange, days, g.maxDays)
	}

	center, err := g.store.GetCenter(ctx, req.CenterID)
	if err != nil {
		return nil, err
	}

	templates, failures, err := g.resolveTemplates(ctx, center.ID, req.TemplateIDs)
	if err != nil {
		return nil, err
	}

	activeBeds, err := g.store.CountActiveBeds(ctx, center.ID)
	if err != nil {
		return nil, fmt.Errorf("count active beds: %w", err)
	}

	result := &GenerateResult{Failures: failures}

	err = g.locker.WithCenterLock(ctx, center.ID, func(lockCtx context.Context) error {
		for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
			if lockCtx.Err() != nil {
				return fmt.Errorf("generation stopped at %s after %d sessions: %w",
					d.Format(DateLayout), result.Created, context.Cause(lockCtx))
			}
			for _, t := range templates {
				if !t.Matches(d) {
					continue
				}

				templateID := t.ID
				beds := sessionCapacity(t, center, activeBeds)
				s := ScheduledSession{
					CenterID:      t.CenterID,
					TemplateID:    &templateID,
					Date:          d,
					StartTime:     t.StartTime,
					EndTime:       t.EndTime,
					Capacity:      beds,
					AvailableBeds: beds,
					Status:        SessionScheduled,
					CreatedByID:   who.UserID,
				}

				created, err := g.store.InsertSession(lockCtx, &s)
				if err != nil {
					return fmt.Errorf("insert session for template %d on %s: %w", t.ID, d.Format(DateLayout), err)
				}
				if !created {
					if beds > 0 {
						refreshed, err := g.store.RefreshEmptySession(lockCtx, &s)
						if err != nil {
							return fmt.Errorf("refresh session for template %d on %s: %w", t.ID, d.Format(DateLayout), err)
						}
						if refreshed {
							result.Refreshed++
							result.Sessions = append(result.Sessions, s)
							continue
						}
					}
					result.Skipped++
					continue
				}
				result.Created++
				result.Sessions = append(result.Sessions, s)
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrGenerationInProgress
		}
		return nil, err
	}

	g.logger.Info("sessions generated",
		zap.Int64("center_id", center.ID),
		zap.String("start_date", start.Format(DateLayout)),
		zap.String("end_date", end.Format(DateLayout)),
		zap.Int("created", result.Created),
		zap.Int("skipped", result.Skipped),
		zap.Int("refreshed", result.Refreshed),
		zap.Int("template_failures", len(result.Failures)),
	)
	return result, nil
}

// resolveTemplates loads the templates to expand. Problems with a single
// template become failures rather than errors.
func (g *Generator) resolveTemplates(ctx context.Context, centerID int64, ids []int64) ([]SessionTemplate, []TemplateFailure, error) {
	var candidates []SessionTemplate
	var failures []TemplateFailure

	if len(ids) == 0 {
		ts, err := g.store.ListTemplates(ctx, centerID, true)
		if err != nil {
			return nil, nil, fmt.Errorf("list templates: %w", err)
		}
		candidates = ts
	} else {
		seen := make(map[int64]bool, len(ids))
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true

			t, err := g.store.GetTemplate(ctx, id)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					failures = append(failures, TemplateFailure{TemplateID: id, Reason: "template not found"})
					continue
				}
				return nil, nil, fmt.Errorf("load template %d: %w", id, err)
			}
			switch {
			case t.CenterID != centerID:
				failures = append(failures, TemplateFailure{TemplateID: id, Reason: "template belongs to another center"})
				continue
			case t.Status != TemplateActive:
				failures = append(failures, TemplateFailure{TemplateID: id, Reason: "template is inactive"})
				continue
			}
			candidates = append(candidates, *t)
		}
	}

	valid := candidates[:0]
	for _, t := range candidates {
		if err := t.Validate(); err != nil {
			failures = append(failures, TemplateFailure{TemplateID: t.ID, Reason: err.Error()})
			g.logger.Warn("skipping malformed template", zap.Int64("template_id", t.ID), zap.Error(err))
			continue
		}
		valid = append(valid, t)
	}
	return valid, failures, nil
}

// sessionCapacity is the template default bounded by the center's total
// capacity. A center without active beds gets zero; the next run after beds
// are added raises those sessions if nobody has booked them.
func sessionCapacity(t SessionTemplate, center *Center, activeBeds int) int {
	if activeBeds == 0 {
		return 0
	}
	if t.DefaultCapacity > center.TotalCapacity {
		return center.TotalCapacity
	}
	return t.DefaultCapacity
}
