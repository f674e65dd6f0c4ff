package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/dialysis-capacity-scheduling/internal/ckd"
	"github.com/hackgods/dialysis-capacity-scheduling/internal/scheduling"
)

type RouterConfig struct {
	Engine    *scheduling.Engine
	Generator *scheduling.Generator
	Registry  *scheduling.Registry
	CKD       *ckd.Service
	Logger    *zap.Logger
	PgPool    *pgxpool.Pool
	Redis     *redis.Client
	Env       string
	Version   string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(ActorMiddleware)

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Post("/generate-sessions", generateSessionsHandler(cfg.Generator))
	r.Post("/book-appointment", bookAppointmentHandler(cfg.Engine))
	r.Post("/cancel-appointment", cancelAppointmentHandler(cfg.Engine))
	r.Post("/reschedule-appointment", rescheduleAppointmentHandler(cfg.Engine))
	r.Post("/record-ckd", recordCKDHandler(cfg.CKD))
	r.Get("/ckd-history", ckdHistoryHandler(cfg.CKD))

	r.Post("/centers", createCenterHandler(cfg.Registry))
	r.Route("/centers/{id}", func(r chi.Router) {
		r.Post("/templates", createTemplateHandler(cfg.Registry))
		r.Get("/templates", listTemplatesHandler(cfg.Registry))
		r.Post("/beds", registerBedHandler(cfg.Registry))
		r.Get("/beds", listBedsHandler(cfg.Registry))
		r.Get("/sessions", listCenterSessionsHandler(cfg.Engine))
	})
	r.Post("/templates/{id}/status", setTemplateStatusHandler(cfg.Registry))
	r.Post("/beds/{id}/status", setBedStatusHandler(cfg.Registry))

	r.Post("/sessions", createSessionHandler(cfg.Engine))
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", getSessionHandler(cfg.Engine))
		r.Post("/status", updateSessionStatusHandler(cfg.Engine))
		r.Post("/cancel", cancelSessionHandler(cfg.Engine))
		r.Get("/appointments", listSessionAppointmentsHandler(cfg.Engine))
	})

	r.Route("/appointments/{id}", func(r chi.Router) {
		r.Get("/", getAppointmentHandler(cfg.Engine))
		r.Post("/complete", completeAppointmentHandler(cfg.Engine))
		r.Post("/assign-bed", assignBedHandler(cfg.Engine))
	})
	r.Get("/patients/{id}/appointments", listPatientAppointmentsHandler(cfg.Engine))

	return r
}
