package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"raffle-backend/docs"
	"raffle-backend/internal/common/config"
	"raffle-backend/internal/common/logger"
	"raffle-backend/internal/common/metrics"
	"raffle-backend/internal/common/middleware"
	historyRepo "raffle-backend/internal/features/history/repository/postgres"
	raffleHTTP "raffle-backend/internal/features/raffle/delivery/http"
	"raffle-backend/internal/features/raffle/repository"
	"raffle-backend/internal/features/raffle/repository/memory"
	raffleRedis "raffle-backend/internal/features/raffle/repository/redis"
	"raffle-backend/internal/features/raffle/service"
	"raffle-backend/internal/platform/postgres"
	"raffle-backend/internal/platform/redis"
	"raffle-backend/internal/service/notifications"
	"raffle-backend/internal/service/telegram"
	"raffle-backend/internal/workers"
)

// @title           Raffle API
// @version         1.0
// @description     Ticket raffle backend for a Telegram Mini App. All endpoints require init_data authentication.

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey TelegramInitData
// @in header
// @name init_data
// @description Telegram Mini App init_data string for authentication

// @tag.name raffle
// @tag.description Denominations, free tickets and draw results

// @tag.name me
// @tag.description Account, tickets and referral bonus

// @tag.name purchases
// @tag.description Payment submission

// @tag.name admin
// @tag.description Payment verification and draw administration

type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init("raffle-backend", cfg.Debug, cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	logger.Info().
		Str("store", cfg.Raffle.StoreDriver).
		Ints("denominations", cfg.Raffle.Denominations).
		Msg("Starting raffle backend")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	settings, err := cfg.Settings()
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid raffle settings")
	}

	var (
		store     repository.RaffleRepository
		publisher notifications.Publisher = notifications.Nop{}
		redisCli  *redis.Client
		checks    = map[string]healthChecker{}
	)
	switch cfg.Raffle.StoreDriver {
	case config.StoreMemory:
		logger.Warn().Msg("Using in-memory store, state is lost on restart")
		store = memory.New()
	default:
		redisCli, err = redis.Open(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer redisCli.Close()
		store = raffleRedis.NewRedisRaffleRepository(redisCli.Client)
		publisher = notifications.NewRedisPublisher(redisCli.Client)
		checks["redis"] = redisCli
	}

	// Интерфейс остаётся nil, если архив выключен
	var archive service.Archiver
	if cfg.ArchiveEnabled() {
		pg, err := postgres.NewClient(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pg.Close()

		archiveRepo := historyRepo.NewArchiveRepository(pg.DB())
		if cfg.Postgres.AutoMigrate {
			if err := archiveRepo.EnsureSchema(ctx); err != nil {
				logger.Fatal().Err(err).Msg("Failed to apply archive schema")
			}
		}
		archive = archiveRepo
		checks["postgres"] = pg
	}

	engine, err := service.NewEngine(store, settings, service.Options{
		Publisher: publisher,
		Archive:   archive,
		AdminIDs:  cfg.Telegram.AdminIDs,
		Payment:   cfg.PaymentInstructions(),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build raffle engine")
	}
	if err := engine.Pool.InitializeAll(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize rounds")
	}

	reconciler := workers.NewDrawReconciler(engine.Draws, settings.Denominations, cfg.Raffle.ReconcileInterval)
	if err := reconciler.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start draw reconciler")
	}
	defer reconciler.Stop()

	if redisCli != nil {
		channelID, err := parseChannelID(cfg.Telegram.ChannelID)
		if err != nil {
			logger.Fatal().Err(err).Msg("Invalid CHANNEL_ID")
		}
		notifier := notifications.NewService(telegram.NewClient(cfg.Telegram.BotToken), cfg.Telegram.AdminIDs, channelID)
		go workers.NewRedisStreamWorker(redisCli.Client, notifier).Start(ctx)
	}

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.Logger())
	router.Use(metrics.Middleware())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.Server.Origin}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Content-Type", "Authorization", "Accept", middleware.InitDataHeader}
	router.Use(cors.New(corsConfig))
	router.Use(middleware.HandleErrors())

	setupRoutes(router, cfg, engine, checks)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	logger.Info().Msg("Server exited")
}

func setupRoutes(router *gin.Engine, cfg *config.Config, engine *service.Engine, checks map[string]healthChecker) {
	v1 := router.Group("/api/v1",
		middleware.TelegramInitData(cfg.Telegram.BotToken, cfg.Telegram.InitDataTTL),
		middleware.RequireAuth(),
		middleware.AutoCreateAccount(engine.Accounts),
	)
	raffleHTTP.NewRaffleHandler(engine).RegisterRoutes(v1)

	docs.SwaggerInfo.Host = ""
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC(),
			"service":   "raffle-backend",
		})
	})

	router.GET("/live", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		for name, check := range checks {
			if err := check.HealthCheck(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unready",
					"error":   name + " unavailable",
					"details": err.Error(),
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":    "ready",
			"timestamp": time.Now().UTC(),
			"service":   "raffle-backend",
		})
	})
}

func parseChannelID(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}
