package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	migrations "github.com/kwizz/kwizz-go/db"
	"github.com/kwizz/kwizz-go/internal/audit"
	"github.com/kwizz/kwizz-go/internal/changefeed"
	"github.com/kwizz/kwizz-go/internal/config"
	"github.com/kwizz/kwizz-go/internal/database"
	"github.com/kwizz/kwizz-go/internal/gamesync"
	"github.com/kwizz/kwizz-go/internal/handler"
	"github.com/kwizz/kwizz-go/internal/jobs"
	"github.com/kwizz/kwizz-go/internal/middleware"
	redisclient "github.com/kwizz/kwizz-go/internal/redis"
	"github.com/kwizz/kwizz-go/internal/repository"
	"github.com/kwizz/kwizz-go/internal/service"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := config.LoadDotEnv(".env"); err != nil {
		log.Fatal().Err(err).Msg("failed to load .env")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	isProduction := os.Getenv("APP_ENV") == "production"
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	setLogLevel(cfg.LogLevel)

	if cfg.AutoMigrate {
		if err := migrations.Up(cfg.DatabaseURL); err != nil {
			log.Fatal().Err(err).Msg("database migration failed")
		}
		log.Info().Msg("database migrations applied")
	}

	db, err := database.Connect(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("database connected")

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	redisClient, err := redisclient.NewClient(ctx, cfg.RedisURL)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	hostRepo := repository.NewHostRepository(db.DB)
	lotRepo := repository.NewCreditLotRepository(db.DB)
	gameRepo := repository.NewGameRepository(db.DB)
	playerRepo := repository.NewPlayerRepository(db.DB)
	responseRepo := repository.NewResponseRepository(db.DB)
	questionRepo := repository.NewQuestionRepository(db.DB)

	broker := changefeed.NewBroker(redisClient.Client)
	defer broker.Close()

	ledger := service.NewCreditLedger(db, hostRepo, lotRepo, gameRepo, audit.Default)
	hostService := service.NewHostService(hostRepo, cfg.FreeCredits, audit.Default)
	gameService := service.NewGameService(gameRepo, playerRepo, responseRepo, questionRepo, ledger)
	answerService := service.NewAnswerService(db, gameRepo, playerRepo, responseRepo, questionRepo)
	quizService := service.NewQuizService(db, questionRepo)

	authMiddleware := middleware.NewAuthMiddleware(hostService, audit.Default)
	joinLimiter := middleware.NewRedisRateLimiter(redisClient.Client, config.JoinRateLimitWindow)
	joinLimitMiddleware := middleware.NewJoinRateLimitMiddleware(joinLimiter, cfg.JoinRateLimitPerMin, audit.Default)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)

	// Server-side streams read straight from the broker.
	feed := gamesync.FeedFunc(func(ctx context.Context, gameID string) (gamesync.Stream, error) {
		sub, err := broker.Subscribe(ctx, gameID)
		if err != nil {
			return nil, err
		}
		return sub, nil
	})

	healthHandler := handler.NewHealthHandler(map[string]handler.Pinger{
		"database": db,
		"redis": handler.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}),
	})
	hostHandler := handler.NewHostHandler(hostService)
	gameHandler := handler.NewGameHandler(gameService, answerService, authMiddleware.Handler, joinLimitMiddleware.Handler)
	streamHandler := handler.NewStreamHandler(gameService, feed)
	creditHandler := handler.NewCreditHandler(ledger)
	quizHandler := handler.NewQuizHandler(quizService)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(securityHeadersMiddleware.Handler)

	// Change streams stay open for the whole game and must not be cut off
	// by the request timeout.
	r.Get("/v1/games/{gameID}/events", streamHandler.Events)
	r.Get("/v1/games/{gameID}/feed", streamHandler.Feed)

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
		r.Use(bodyLimitMiddleware.Handler)

		r.Get("/health", healthHandler.ServeHTTP)
		r.Post("/v1/hosts", hostHandler.Register)

		r.Mount("/v1/games", gameHandler.Routes())

		r.Route("/v1/credits", func(r chi.Router) {
			r.Use(authMiddleware.Handler)
			r.Mount("/", creditHandler.Routes())
		})

		r.Route("/v1/quizzes", func(r chi.Router) {
			r.Use(authMiddleware.Handler)
			r.Mount("/", quizHandler.Routes())
		})
	})

	relayCtx, stopRelay := context.WithCancel(context.Background())
	relay := changefeed.NewRelay(changefeed.NewPostgresListener(cfg.DatabaseURL), broker, changefeed.Channel)
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		if err := relay.Run(relayCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("change relay stopped")
		}
	}()

	sweepJob := jobs.NewSweepJob(gameRepo, cfg.SweepAfter(), config.SweepJobInterval)
	sweepJob.Start()
	defer sweepJob.Stop()

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

	stopRelay()
	<-relayDone

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
