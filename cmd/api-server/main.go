package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/mednexus/telehealth-calls/internal/api"
	"github.com/mednexus/telehealth-calls/internal/appointment"
	"github.com/mednexus/telehealth-calls/internal/auth"
	"github.com/mednexus/telehealth-calls/internal/config"
	"github.com/mednexus/telehealth-calls/internal/db"
	"github.com/mednexus/telehealth-calls/internal/media"
	redisclient "github.com/mednexus/telehealth-calls/internal/redis"
)

const version = "0.1.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running in env=%s http_port=%s", cfg.Env, cfg.HTTPPort)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	log.Println("connected to Postgres")

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("redis connection error: %v", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Printf("error closing redis: %v", err)
		}
	}()
	log.Println("connected to Redis")

	if cfg.AuthSecret == "" {
		log.Fatal("AUTH_SECRET is required")
	}
	if cfg.LiveKitHost == "" || cfg.LiveKitAPIKey == "" || cfg.LiveKitAPISecret == "" {
		log.Fatal("LIVEKIT_HOST, LIVEKIT_API_KEY and LIVEKIT_API_SECRET are required")
	}

	repo := appointment.NewPgRepository(pgPool)
	svc := appointment.NewService(repo)
	hub := api.NewHub()
	defer hub.Close()

	router := api.NewRouter(api.RouterConfig{
		Service:  svc,
		Rooms:    media.NewLiveKitDirectory(cfg.LiveKitHost, cfg.LiveKitAPIKey, cfg.LiveKitAPISecret),
		Tokens:   media.NewTokenMinter(cfg.LiveKitAPIKey, cfg.LiveKitAPISecret, cfg.AuthTokenTTL),
		Cache:    redisclient.NewStatusCache(rdb, cfg.RoomStatusTTL),
		Locker:   redisclient.NewRedisCallLocker(rdb, cfg.InitiateLockTTL),
		Hub:      hub,
		Auth:     auth.NewManager(cfg.AuthSecret, cfg.AuthTokenTTL),
		PgPool:   pgPool,
		Redis:    rdb,
		MediaURL: cfg.LiveKitHost,
		Env:      cfg.Env,
		Version:  version,
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-rootCtx.Done()

	log.Println("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
}
