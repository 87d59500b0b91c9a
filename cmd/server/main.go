package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/convinceme/convince-server-go/internal/config"
	"github.com/convinceme/convince-server-go/internal/database"
	"github.com/convinceme/convince-server-go/internal/handler"
	"github.com/convinceme/convince-server-go/internal/jobs"
	"github.com/convinceme/convince-server-go/internal/middleware"
	"github.com/convinceme/convince-server-go/internal/redis"
	"github.com/convinceme/convince-server-go/internal/repository"
	"github.com/convinceme/convince-server-go/internal/service"
	"github.com/convinceme/convince-server-go/internal/ws"
)

func main() {
	_ = godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	setLogLevel(cfg.LogLevel)

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	convincerRepo := repository.NewConvincerRepository(db.DB)
	attemptRepo := repository.NewAttemptRepository(db.DB)
	messageRepo := repository.NewMessageRepository(db.DB)
	aiResponseRepo := repository.NewAIResponseRepository(db.DB)
	balanceRepo := repository.NewTimeBalanceRepository(db.DB)
	paymentRepo := repository.NewPaymentRepository(db.DB)
	prizeRepo := repository.NewPrizeRepository(db.DB)

	// The hub authorizes subscriptions through the attempt service, which
	// in turn notifies through the hub; the closure breaks the cycle.
	var attemptService *service.AttemptService
	hub := ws.NewHub(func(ctx context.Context, convincerID, attemptID string) error {
		return attemptService.AuthorizeSubscription(ctx, convincerID, attemptID)
	})

	convincerService := service.NewConvincerService(convincerRepo)
	ledgerService := service.NewTimeLedgerService(db, balanceRepo, paymentRepo)
	prizeService := service.NewPrizeService(prizeRepo, cfg.InitialPrizeCents, cfg.PrizeGrowthPercent)
	responderService := service.NewResponderService(
		db, attemptRepo, aiResponseRepo, hub, clockwork.NewRealClock(), cfg.ResponderDelay(),
	)
	attemptService = service.NewAttemptService(
		db, attemptRepo, messageRepo, balanceRepo, prizeService, responderService, hub, cfg.WinThreshold,
	)

	seedCtx, seedCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if _, err := prizeService.EnsureOpenPrize(seedCtx); err != nil {
		log.Fatal().Err(err).Msg("failed to seed prize")
	}
	seedCancel()

	authMiddleware := middleware.NewAuthMiddleware(convincerRepo)
	rateLimitMiddleware := middleware.NewRedisRateLimitMiddleware(redisClient.Client)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)

	convincerHandler := handler.NewConvincerHandler(convincerService)
	attemptHandler := handler.NewAttemptHandler(attemptService)
	messageHandler := handler.NewMessageHandler(attemptService, responderService, messageRepo, aiResponseRepo)
	timeBalanceHandler := handler.NewTimeBalanceHandler(ledgerService)
	wsHandler := handler.NewWSHandler(hub)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/convincers", convincerHandler.Register)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Handler)
			r.Use(rateLimitMiddleware.Handler)

			r.Post("/attempts", attemptHandler.StartOrResume)
			r.Patch("/attempts/{attemptID}", attemptHandler.Update)
			r.Get("/attempts/{attemptID}/messages", messageHandler.ListMessages)
			r.Get("/attempts/{attemptID}/ai-responses", messageHandler.ListAIResponses)
			r.Get("/convincers/{convincerID}/attempts/active", attemptHandler.GetActive)
			r.Post("/messages", messageHandler.CreateMessage)
			r.Post("/ai-responses", messageHandler.CreateAIResponse)
			r.Get("/time-balance/{convincerID}", timeBalanceHandler.GetBalance)
			r.Put("/time-balance/{convincerID}", timeBalanceHandler.Debit)
			r.Post("/payments", timeBalanceHandler.CreatePayment)
			r.Get("/ws", wsHandler.Connect)
		})
	})

	reaperJob := jobs.NewReaperJob(attemptRepo, attemptService, cfg.StaleAttemptTTL(), config.ReaperJobInterval)
	reaperJob.Start()
	defer reaperJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
