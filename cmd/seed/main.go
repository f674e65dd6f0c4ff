package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hackgods/dialysis-capacity-scheduling/internal/actor"
	"github.com/hackgods/dialysis-capacity-scheduling/internal/bootstrap"
	"github.com/hackgods/dialysis-capacity-scheduling/internal/config"
	"github.com/hackgods/dialysis-capacity-scheduling/internal/logging"
	"github.com/hackgods/dialysis-capacity-scheduling/internal/scheduling"
)

type shift struct {
	start, end string
}

var shifts = []shift{
	{"06:00", "10:00"},
	{"10:30", "14:30"},
	{"15:00", "19:00"},
}

var weekdayPlans = []string{
	scheduling.GroupWeekdays,
	"mon", "wed", "fri",
	"tue", "thu", "sat",
}

func main() {
	var centers, generateDays int

	cmd := &cobra.Command{
		Use:          "seed",
		Short:        "Create demo centers, beds and session templates",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), centers, generateDays)
		},
	}
	cmd.Flags().IntVar(&centers, "centers", 3, "number of centers to create")
	cmd.Flags().IntVar(&generateDays, "generate-days", 14, "days of sessions to generate per center, 0 to skip")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, centers, generateDays int) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config load: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, "seed")
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	app, closeApp, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer closeApp()

	ctx = actor.WithActor(ctx, actor.Actor{UserID: cfg.SystemUserID, Role: "admin"})

	for i := 0; i < centers; i++ {
		if err := seedCenter(ctx, app, generateDays); err != nil {
			return fmt.Errorf("seed center: %w", err)
		}
	}

	logger.Info("seed complete", zap.Int("centers", centers))
	return nil
}

func seedCenter(ctx context.Context, app *bootstrap.App, generateDays int) error {
	beds := gofakeit.Number(6, 16)
	name := fmt.Sprintf("%s Dialysis Center", gofakeit.City())

	center, err := app.Registry.CreateCenter(ctx, name, beds)
	if err != nil {
		return err
	}

	for i := 1; i <= beds; i++ {
		code := fmt.Sprintf("%c-%02d", 'A'+rune((i-1)/8), i)
		if _, err := app.Registry.RegisterBed(ctx, center.ID, code); err != nil {
			return fmt.Errorf("register bed %s: %w", code, err)
		}
	}

	for _, sh := range shifts {
		doctorID := int64(gofakeit.Number(1000, 1999))
		_, err := app.Registry.CreateTemplate(ctx, scheduling.TemplateInput{
			CenterID:          center.ID,
			DoctorID:          &doctorID,
			Weekday:           weekdayPlans[gofakeit.Number(0, len(weekdayPlans)-1)],
			StartTime:         scheduling.MustTimeOfDay(sh.start),
			EndTime:           scheduling.MustTimeOfDay(sh.end),
			DefaultCapacity:   gofakeit.Number(beds/2, beds),
			RecurrencePattern: scheduling.RecurrenceWeekly,
		})
		if err != nil {
			return fmt.Errorf("create template %s-%s: %w", sh.start, sh.end, err)
		}
	}

	fields := []zap.Field{
		zap.Int64("center_id", center.ID),
		zap.String("name", center.Name),
		zap.Int("beds", beds),
	}

	if generateDays > 0 {
		today := scheduling.CivilDate(time.Now(), app.Config.Location)
		res, err := app.Generator.Generate(ctx, scheduling.GenerateRequest{
			CenterID:  center.ID,
			StartDate: today,
			EndDate:   today.AddDate(0, 0, generateDays-1),
		})
		if err != nil {
			return fmt.Errorf("generate sessions: %w", err)
		}
		fields = append(fields, zap.Int("sessions", res.Created))
	}

	app.Logger.Info("center seeded", fields...)
	return nil
}
