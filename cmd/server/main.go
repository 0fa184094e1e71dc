package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/spyword/server/internal/config"
	"github.com/spyword/server/internal/handler"
	"github.com/spyword/server/internal/logger"
	"github.com/spyword/server/internal/middleware"
	"github.com/spyword/server/internal/repository"
	"github.com/spyword/server/internal/repository/memory"
	redisrepo "github.com/spyword/server/internal/repository/redis"
	"github.com/spyword/server/internal/service"
)

func main() {
	logger.Init()
	cfg := config.Load()
	log.Info().Str("mode", cfg.Mode).Msg("Config loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		store repository.RoomStore
		acc   repository.RoomAccessor
		sched interface {
			repository.TaskScheduler
			SetRunner(repository.TaskRunner)
			Start(context.Context)
		}
	)

	switch cfg.Mode {
	case config.ModeRedis:
		client, err := redisrepo.NewClient(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Redis connection failed")
		}
		defer client.Close()

		store = client
		acc = client
		sched = redisrepo.NewScheduler(client, cfg.SchedulerInterval)
	default:
		mem := memory.NewStore()
		go mem.StartJanitor(ctx, cfg.RoomInactivity, cfg.JanitorInterval)

		store = mem
		acc = mem
		sched = memory.NewScheduler(cfg.SchedulerInterval)
	}

	// WebSocket hub
	hub := handler.NewHub()

	// Services
	disp := service.NewDispatcher(hub, sched)
	opts := service.Options{
		AccusationVoteDuration: cfg.AccusationVote,
		FinalVoteDuration:      cfg.FinalVote,
		LastChanceDuration:     cfg.LastChance,
		DisconnectGrace:        cfg.DisconnectGrace,
	}
	roomSvc := service.NewRoomService(store, acc, disp, opts)
	gameSvc := service.NewGameService(acc, disp, opts)
	sched.SetRunner(service.NewTimeoutHandler(gameSvc, roomSvc))
	go sched.Start(ctx)

	// Handlers
	roomHandler := handler.NewRoomHandler(roomSvc)
	wsHandler := handler.NewWSHandler(hub, roomSvc, gameSvc)

	// Router
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	mux.HandleFunc("POST /rooms", roomHandler.CreateRoom)
	mux.HandleFunc("GET /rooms/{code}", roomHandler.GetRoom)

	mux.HandleFunc("GET /ws", wsHandler.ServeWS)

	root := middleware.Chain(mux, middleware.Logger, middleware.CORS("*"))

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server shutdown error")
	}
	log.Info().Msg("Server stopped")
}
