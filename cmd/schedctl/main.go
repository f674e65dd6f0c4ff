package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hackgods/dialysis-capacity-scheduling/internal/actor"
	"github.com/hackgods/dialysis-capacity-scheduling/internal/bootstrap"
	"github.com/hackgods/dialysis-capacity-scheduling/internal/config"
	"github.com/hackgods/dialysis-capacity-scheduling/internal/db"
	"github.com/hackgods/dialysis-capacity-scheduling/internal/logging"
	"github.com/hackgods/dialysis-capacity-scheduling/internal/scheduling"
)

func main() {
	root := &cobra.Command{
		Use:          "schedctl",
		Short:        "Operator commands for the dialysis scheduler",
		SilenceUsage: true,
	}
	root.AddCommand(migrateCmd(), generateCmd(), cancelSessionCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "migrate", Short: "Manage the database schema"}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			pool, err := connect(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			n, err := db.Migrate(cmd.Context(), pool)
			if err != nil {
				return err
			}
			logger.Info("migrations applied", zap.Int("count", n))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List migrations and when they were applied",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			pool, err := connect(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			rows, err := db.Status(cmd.Context(), pool)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "VERSION\tNAME\tAPPLIED")
			for _, r := range rows {
				applied := "pending"
				if r.AppliedAt != nil {
					applied = r.AppliedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%03d\t%s\t%s\n", r.Version, r.Name, applied)
			}
			return tw.Flush()
		},
	})

	return cmd
}

func generateCmd() *cobra.Command {
	var (
		centerID int64
		from, to string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate sessions for a center over a date range",
		RunE: func(cmd *cobra.Command, _ []string) error {
			start, err := scheduling.ParseDate(from)
			if err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			end, err := scheduling.ParseDate(to)
			if err != nil {
				return fmt.Errorf("--to: %w", err)
			}

			return withApp(cmd.Context(), func(ctx context.Context, app *bootstrap.App) error {
				res, err := app.Generator.Generate(ctx, scheduling.GenerateRequest{
					CenterID:  centerID,
					StartDate: start,
					EndDate:   end,
				})
				if err != nil {
					return err
				}
				for _, f := range res.Failures {
					app.Logger.Warn("template skipped", zap.Int64("template_id", f.TemplateID), zap.String("reason", f.Reason))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %d, refreshed %d, skipped %d\n", res.Created, res.Refreshed, res.Skipped)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&centerID, "center", 0, "center id")
	cmd.Flags().StringVar(&from, "from", "", "first date, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "last date, YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("center")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

func cancelSessionCmd() *cobra.Command {
	var id int64

	cmd := &cobra.Command{
		Use:   "cancel-session",
		Short: "Cancel a session and every active appointment in it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, app *bootstrap.App) error {
				res, err := app.Engine.CancelSession(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "session %d cancelled, %d appointments cancelled\n", res.Session.ID, len(res.Canceled))
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "session id")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}

func setup() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, fmt.Errorf("config load: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, "schedctl")
	if err != nil {
		return cfg, nil, fmt.Errorf("logger init: %w", err)
	}
	return cfg, logger, nil
}

func connect(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	if cfg.DataSource != config.DataSourcePostgres {
		return nil, fmt.Errorf("migrations need DATA_SOURCE=%s", config.DataSourcePostgres)
	}
	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 2, AppName: "schedctl"})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// withApp runs fn against a bootstrapped app, acting as the system user.
func withApp(ctx context.Context, fn func(context.Context, *bootstrap.App) error) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	app, closeApp, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer closeApp()

	ctx = actor.WithActor(ctx, actor.Actor{UserID: cfg.SystemUserID, Role: "admin"})
	return fn(ctx, app)
}
