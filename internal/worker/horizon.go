// Package worker keeps generated sessions a fixed number of days ahead.
package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/dialysis-capacity-scheduling/internal/actor"
	"github.com/hackgods/dialysis-capacity-scheduling/internal/scheduling"
)

const RoleSystem = "system"

type CenterLister interface {
	ListCenterIDs(ctx context.Context) ([]int64, error)
}

type RunStats struct {
	Centers int
	Created int
	Skipped int
	Busy    int
	Failed  int
}

// Horizon regenerates [today, today+days] for every center on each run.
// Generation is idempotent, so overlapping runs only add the new days.
type Horizon struct {
	centers      CenterLister
	gen          *scheduling.Generator
	logger       *zap.Logger
	days         int
	systemUserID int64
	loc          *time.Location
	now          func() time.Time
}

func NewHorizon(centers CenterLister, gen *scheduling.Generator, logger *zap.Logger, days int, systemUserID int64, loc *time.Location) *Horizon {
	if loc == nil {
		loc = time.UTC
	}
	return &Horizon{
		centers:      centers,
		gen:          gen,
		logger:       logger,
		days:         days,
		systemUserID: systemUserID,
		loc:          loc,
		now:          time.Now,
	}
}

// RunOnce processes every center. A failing center is logged and does not
// stop the others; only listing centers can fail the run.
func (h *Horizon) RunOnce(ctx context.Context) (RunStats, error) {
	var stats RunStats

	ids, err := h.centers.ListCenterIDs(ctx)
	if err != nil {
		return stats, err
	}

	ctx = actor.WithActor(ctx, actor.Actor{UserID: h.systemUserID, Role: RoleSystem})
	start := scheduling.CivilDate(h.now(), h.loc)
	end := start.AddDate(0, 0, h.days)

	for _, id := range ids {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.Centers++

		res, err := h.gen.Generate(ctx, scheduling.GenerateRequest{CenterID: id, StartDate: start, EndDate: end})
		switch {
		case errors.Is(err, scheduling.ErrGenerationInProgress):
			stats.Busy++
			h.logger.Info("generation already running, skipping center", zap.Int64("center_id", id))
			continue
		case err != nil:
			stats.Failed++
			h.logger.Error("horizon generation failed", zap.Int64("center_id", id), zap.Error(err))
			continue
		}

		stats.Created += res.Created
		stats.Skipped += res.Skipped
		for _, f := range res.Failures {
			h.logger.Warn("template skipped",
				zap.Int64("center_id", id),
				zap.Int64("template_id", f.TemplateID),
				zap.String("reason", f.Reason),
			)
		}
	}

	return stats, nil
}
