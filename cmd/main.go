package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"

	"edusync/internal/caching"
	"edusync/internal/handlers"
	"edusync/internal/jobs"
	"edusync/internal/jobs/background"
	"edusync/internal/middleware"
	"edusync/internal/models"
	"edusync/internal/repositories"
	"edusync/internal/services"
	"edusync/pkg/database"
)

const version = "1.0.0"

func main() {
	// Database connection
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	pool, err := database.NewPool(databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	// JWT configuration
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}

	// Redis configuration
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	redisPassword := os.Getenv("REDIS_PASSWORD")
	redisDB := 0
	if redisDBStr := os.Getenv("REDIS_DB"); redisDBStr != "" {
		if db, err := strconv.Atoi(redisDBStr); err == nil {
			redisDB = db
		}
	}

	// MinIO configuration for sweep report archival
	minioEndpoint := os.Getenv("MINIO_ENDPOINT")
	if minioEndpoint == "" {
		minioEndpoint = "localhost:9000"
	}
	minioAccessKey := os.Getenv("MINIO_ACCESS_KEY")
	if minioAccessKey == "" {
		minioAccessKey = "minioadmin"
	}
	minioSecretKey := os.Getenv("MINIO_SECRET_KEY")
	if minioSecretKey == "" {
		minioSecretKey = "minioadmin"
	}
	useSSL := os.Getenv("MINIO_USE_SSL") == "true"
	sweepBucket := os.Getenv("SWEEP_REPORT_BUCKET")
	if sweepBucket == "" {
		sweepBucket = "entitlement-sweep-reports"
	}

	sweepInterval := 5 * time.Minute
	if intervalStr := os.Getenv("SWEEP_INTERVAL"); intervalStr != "" {
		if parsed, err := time.ParseDuration(intervalStr); err == nil {
			sweepInterval = parsed
		}
	}

	clock := clockwork.NewRealClock()
	plans := models.DefaultPlanTable()

	// Create repositories
	tenantRepo := repositories.NewTenantRepo(pool)
	subscriptionRepo := repositories.NewTenantSubscriptionRepo(pool)
	entitlementRepo := repositories.NewUserEntitlementRepo(pool)
	userRepo := repositories.NewUserRepo(pool)

	// Create cache and notification services
	cacheSvc := caching.NewRedisCacheService(redisAddr, redisPassword, redisDB)
	notificationSvc := services.NewNotificationService(redisAddr, redisPassword, redisDB)

	archiveSvc, err := services.NewArchiveService(minioEndpoint, minioAccessKey, minioSecretKey, useSSL, sweepBucket)
	if err != nil {
		log.Fatalf("Failed to initialize archive service: %v", err)
	}
	if err := archiveSvc.EnsureBucketExists(context.Background()); err != nil {
		log.Printf("WARN: could not ensure sweep report bucket: %v", err)
	}

	// Create the entitlement sync engine
	assignmentSvc := services.NewAssignmentService(entitlementRepo, userRepo, clock)
	anomalySvc := services.NewAnomalyService(entitlementRepo, clock)
	syncSvc := services.NewSyncService(userRepo, entitlementRepo, assignmentSvc, anomalySvc, notificationSvc, cacheSvc, plans, clock, 5)
	subscriptionSvc := services.NewSubscriptionService(subscriptionRepo, tenantRepo, syncSvc, cacheSvc, plans, clock)

	// Background expiry sweep
	sweeper := jobs.NewExpirySweeper(subscriptionRepo, syncSvc, archiveSvc, clock, 3)
	scheduler, err := background.NewJobScheduler(sweeper, sweepInterval, clock)
	if err != nil {
		log.Fatalf("Failed to create job scheduler: %v", err)
	}
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start job scheduler: %v", err)
	}
	defer func() {
		if err := scheduler.Stop(); err != nil {
			log.Printf("Failed to stop job scheduler: %v", err)
		}
	}()

	// Create handlers
	subscriptionHandlers := handlers.NewSubscriptionHandlers(subscriptionSvc, syncSvc, cacheSvc)
	entitlementHandlers := handlers.NewEntitlementHandlers(assignmentSvc, entitlementRepo, plans)
	jobHandlers := handlers.NewJobHandlers(sweeper, scheduler)

	// Create Echo instance
	e := echo.New()

	// Global middleware
	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORS())
	e.Use(echoMiddleware.RemoveTrailingSlash())

	// Health endpoints (no auth required)
	e.GET("/health", handlers.HealthCheck)
	e.GET("/health/ready", func(c echo.Context) error {
		return handlers.ReadinessCheck(c, pool)
	})

	// API routes
	v1 := e.Group("/v1")

	jwtConfig := echojwt.Config{
		SigningKey: []byte(jwtSecret),
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return new(middleware.JWTCustomClaims)
		},
		SuccessHandler: middleware.AttachClaims,
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(401, "Invalid token")
		},
	}

	protected := v1.Group("")
	protected.Use(echojwt.WithConfig(jwtConfig))

	// Entitlement routes
	protected.GET("/users/:id/entitlements", entitlementHandlers.ListUserEntitlements)
	protected.GET("/entitlements/:id/transactions", entitlementHandlers.ListTransactions)

	// Admin routes (subscription lifecycle + manual edits + jobs)
	admin := protected.Group("", middleware.RequireRole(models.RoleAdmin))
	admin.POST("/entitlements/assign", entitlementHandlers.AssignEntitlement)
	admin.GET("/tenants/:id/subscription", subscriptionHandlers.GetSubscription)
	admin.POST("/tenants/:id/subscription/activate", subscriptionHandlers.ActivateSubscription)
	admin.POST("/tenants/:id/subscription/renew", subscriptionHandlers.RenewSubscription)
	admin.POST("/tenants/:id/subscription/cancel", subscriptionHandlers.CancelSubscription)
	admin.POST("/tenants/:id/reconcile", subscriptionHandlers.ReconcileTenant)
	admin.POST("/admin/sweep", jobHandlers.TriggerSweep)
	admin.GET("/admin/jobs", jobHandlers.JobStatus)

	// Start server
	portStr := os.Getenv("PORT")
	if portStr == "" {
		portStr = "8080"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		log.Fatalf("Invalid port %s: %v", portStr, err)
	}

	log.Printf("Edusync server v%s starting on port %d", version, port)
	e.Logger.Fatal(e.Start(fmt.Sprintf(":%d", port)))
}
