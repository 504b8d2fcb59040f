package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/campushq/tutorhub-api/api/swagger"
	"github.com/campushq/tutorhub-api/internal/handler"
	"github.com/campushq/tutorhub-api/internal/middleware"
	"github.com/campushq/tutorhub-api/internal/models"
	"github.com/campushq/tutorhub-api/internal/repository"
	"github.com/campushq/tutorhub-api/internal/service"
	"github.com/campushq/tutorhub-api/pkg/cache"
	"github.com/campushq/tutorhub-api/pkg/config"
	"github.com/campushq/tutorhub-api/pkg/database"
	"github.com/campushq/tutorhub-api/pkg/jobs"
	"github.com/campushq/tutorhub-api/pkg/logger"
	corsmiddleware "github.com/campushq/tutorhub-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campushq/tutorhub-api/pkg/middleware/requestid"
	"github.com/campushq/tutorhub-api/pkg/storage"
)

// @title TutorHub API
// @version 1.0.0
// @description Tutoring marketplace: availability grid, booking commit, points ledger and leaderboard
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	// Redis is an accelerator, not a dependency: the grid and
	// leaderboard recompute on every request when it is down.
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	userRepo := repository.NewUserRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	pricingRepo := repository.NewPricingRepository(db)
	availabilityRepo := repository.NewAvailabilityRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	receiptRepo := repository.NewReceiptRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()

	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "tutorhub-api",
	})
	pricingSvc := service.NewPricingService(subjectRepo, pricingRepo,
		cfg.Pricing.DurationStepMinutes, cfg.Pricing.DiscountStepPercent, nil, logr)
	availabilitySvc := service.NewAvailabilityService(availabilityRepo, sessionRepo, pricingSvc, cacheRepo,
		cfg.Booking.LeadDays, cfg.Booking.GridStepMinutes, cfg.Booking.GridCacheTTL, nil, logr)
	bookingSvc := service.NewBookingService(pricingSvc, availabilityRepo, sessionRepo, availabilitySvc,
		metricsSvc, cfg.Booking.LeadDays, nil, logr)
	ledgerSvc := service.NewLedgerService(receiptRepo, cacheRepo, metricsSvc, nil, logr)
	leaderboardSvc := service.NewLeaderboardService(receiptRepo, cacheRepo,
		cfg.Leaderboard.CacheTTL, cfg.Leaderboard.DefaultPageSize, nil, logr)
	sessionSvc := service.NewSessionService(sessionRepo, ledgerSvc, availabilitySvc, logr)

	var statementSvc *service.StatementService
	if cfg.Statements.Enabled {
		store, err := storage.NewLocalStorage(cfg.Statements.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init statement storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Statements.SignedURLSecret, cfg.Statements.SignedURLTTL)
		statementSvc = service.NewStatementService(receiptRepo, userRepo, store, signer,
			jobs.QueueConfig{
				Workers:    cfg.Statements.WorkerConcurrency,
				MaxRetries: cfg.Statements.WorkerRetries,
			},
			service.StatementConfig{
				APIPrefix: cfg.APIPrefix,
				ResultTTL: cfg.Statements.SignedURLTTL,
			}, logr)
		statementSvc.Start(context.Background())
		defer statementSvc.Stop()

		go func() {
			ticker := time.NewTicker(cfg.Statements.CleanupInterval)
			defer ticker.Stop()
			for range ticker.C {
				if removed, err := statementSvc.Cleanup(); err != nil {
					logr.Sugar().Warnw("statement cleanup failed", "error", err)
				} else if len(removed) > 0 {
					logr.Sugar().Infow("statement cleanup", "removed", len(removed))
				}
			}
		}()
	}

	authHandler := handler.NewAuthHandler(authSvc)
	pricingHandler := handler.NewPricingHandler(pricingSvc)
	availabilityHandler := handler.NewAvailabilityHandler(availabilitySvc)
	bookingHandler := handler.NewBookingHandler(bookingSvc)
	sessionHandler := handler.NewSessionHandler(sessionSvc)
	pointsHandler := handler.NewPointsHandler(ledgerSvc)
	leaderboardHandler := handler.NewLeaderboardHandler(leaderboardSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", metricsHandler.Scrape)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.POST("/change-password", middleware.JWT(authSvc), authHandler.ChangePassword)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))
	{
		authed.GET("/subjects", pricingHandler.Subjects)
		authed.GET("/subjects/:id/config", pricingHandler.SubjectConfig)

		authed.POST("/bookings/quote", pricingHandler.Quote)
		authed.POST("/bookings", bookingHandler.Request)

		authed.GET("/availability/grid", availabilityHandler.MonthGrid)
		authed.GET("/availability/blocks", availabilityHandler.ListBlocks)

		authed.GET("/sessions", sessionHandler.List)
		authed.GET("/sessions/:id", sessionHandler.Find)
		authed.POST("/sessions/:id/cancel", sessionHandler.Cancel)

		authed.GET("/points/balance", pointsHandler.MyBalance)
		authed.GET("/points/receipts", pointsHandler.Receipts)

		authed.GET("/leaderboard", leaderboardHandler.Rank)
	}

	owners := api.Group("")
	owners.Use(middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin, models.RoleTutor))
	{
		owners.POST("/availability/blocks", availabilityHandler.CreateBlock)
		owners.DELETE("/availability/blocks/:id", availabilityHandler.DeleteBlock)

		owners.POST("/sessions/:id/accept", sessionHandler.Accept)
		owners.POST("/sessions/:id/deny", sessionHandler.Deny)
		owners.POST("/sessions/:id/paid", sessionHandler.MarkPaid)
		owners.POST("/sessions/:id/no-show", sessionHandler.MarkNoShow)
		owners.POST("/sessions/:id/complete", sessionHandler.Complete)
	}

	admin := api.Group("")
	admin.Use(middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin))
	{
		admin.POST("/pricing/rules", pricingHandler.CreateRule)
		admin.GET("/pricing/rules/:id", pricingHandler.RuleHistory)

		admin.GET("/points/balance/:id", pointsHandler.Balance)
		admin.POST("/points/adjustments", pointsHandler.Adjust)
		admin.POST("/points/awards", pointsHandler.Award)
		admin.DELETE("/points/references/:reference", pointsHandler.Reverse)
	}

	if statementSvc != nil {
		statementHandler := handler.NewStatementHandler(statementSvc)
		statements := api.Group("/statements")
		{
			// Downloads authenticate with the signed token itself.
			statements.GET("/download/:token", statementHandler.Download)
			statements.POST("", middleware.JWT(authSvc), statementHandler.Request)
			statements.GET("/:id", middleware.JWT(authSvc), statementHandler.Status)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
