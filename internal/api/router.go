package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/mednexus/telehealth-calls/internal/appointment"
	"github.com/mednexus/telehealth-calls/internal/auth"
	"github.com/mednexus/telehealth-calls/internal/media"
	redisclient "github.com/mednexus/telehealth-calls/internal/redis"
)

type RouterConfig struct {
	Service  *appointment.Service
	Rooms    media.RoomDirectory
	Tokens   *media.TokenMinter
	Cache    *redisclient.StatusCache
	Locker   redisclient.Locker
	Hub      *Hub
	Auth     *auth.Manager
	PgPool   *pgxpool.Pool
	Redis    *redis.Client
	MediaURL string
	RoomType string
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	calls := NewCallHandler(cfg.Service, cfg.Rooms, cfg.Tokens, cfg.Cache, cfg.Locker, cfg.Hub, cfg.MediaURL, cfg.RoomType)
	tokens := NewAuthHandler(cfg.Service, cfg.Auth)

	r.Post("/api/auth/token", tokens.issueToken())

	// Patient call endpoints
	r.Group(func(r chi.Router) {
		r.Use(cfg.Auth.Middleware(auth.RolePatient))
		r.Post("/api/livekit/join-appointment", calls.joinAppointment(false))
		r.Post("/api/livekit/initiate-call", calls.initiateCall(false))
		r.Get("/api/livekit/room-status/{appointmentID}", calls.roomStatus(false))
	})

	// Doctor call endpoints
	r.Group(func(r chi.Router) {
		r.Use(cfg.Auth.Middleware(auth.RoleDoctor))
		r.Post("/api/livekit/join-appointment-doctor", calls.joinAppointment(true))
		r.Post("/api/livekit/initiate-call-doctor", calls.initiateCall(true))
		r.Get("/api/livekit/room-status-doctor/{appointmentID}", calls.roomStatus(true))
		r.Post("/api/appointments/{appointmentID}/complete", calls.completeAppointment())
	})

	// Endpoints shared by both roles
	r.Group(func(r chi.Router) {
		r.Use(cfg.Auth.Middleware(""))
		r.Get("/api/appointments", calls.listAppointments())
		r.Get("/ws/notifications", calls.notifications())
	})

	return r
}
