// Package main provides the main entry point for the PrimeFit API
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/primefit/primefit-api/app/handlers"
	"github.com/primefit/primefit-api/app/middleware"
	"github.com/primefit/primefit-api/app/router"
	"github.com/primefit/primefit-api/app/services"
	businessflow "github.com/primefit/primefit-api/business_flow"
	"github.com/primefit/primefit-api/config"
	"github.com/primefit/primefit-api/repository"
	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Application represents the main application structure
type Application struct {
	router    *router.FiberRouter
	config    *config.Config
	server    *fiber.App
	stopFuncs []func()
}

func main() {
	log.Println("Starting PrimeFit API...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	setupLogging(cfg.Logging)

	// Initialize application
	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	// Setup routes
	app.router.SetupRoutes()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Printf("Server starting on %s", address)

		if err := app.server.Listen(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Println("Shutting down gracefully...")

	// Stop background workers
	for _, fn := range app.stopFuncs {
		fn()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// setupLogging routes the standard logger through a rotating file when
// configured, so long-running deployments do not fill the disk.
func setupLogging(cfg config.LoggingConfig) {
	if cfg.Output != "file" && cfg.Output != "both" {
		return
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}

	if cfg.Output == "both" {
		log.SetOutput(io.MultiWriter(os.Stdout, rotator))
		return
	}
	log.SetOutput(rotator)
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB for connection pooling configuration
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test the connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	return db, nil
}

// initializeCache initializes the Redis client and verifies connectivity
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled || cfg.Provider != "redis" {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	// Override DB if provided in config
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established (db=%d)", cfg.RedisDB)
	return rc, nil
}

// startCacheHealthMonitor starts a background goroutine that periodically pings Redis
// to detect connectivity issues. The returned cancel function stops the monitor.
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					log.Printf("Redis healthcheck failed: %v", err)
				}
				c()
			}
		}
	}()
	return cancel
}

// startSessionCleanup purges expired session rows on an interval. The
// returned cancel function stops the worker.
func startSessionCleanup(parent context.Context, sessionRepo repository.AccountSessionRepository, interval time.Duration) func() {
	cleanupCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-cleanupCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 30*time.Second)
				if err := sessionRepo.CleanupExpiredSessions(ctx); err != nil {
					log.Printf("Session cleanup failed: %v", err)
				}
				c()
			}
		}
	}()
	return cancel
}

// startMetricsServer exposes Prometheus metrics on a dedicated listener so the
// scrape endpoint never shares the public API surface. The returned shutdown
// function stops the listener.
func startMetricsServer(cfg config.MetricsConfig) func() {
	if !cfg.Enabled {
		return func() {}
	}

	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: mux,
	}

	go func() {
		log.Printf("Metrics server listening on %s%s", srv.Addr, path)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Metrics server error: %v", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// initializeNotificationService initializes the notification service
func initializeNotificationService(cfg *config.Config) services.NotificationService {
	var smsProvider services.SMSProvider
	var emailProvider services.EmailProvider

	switch cfg.SMS.ProviderDomain {
	case "mock":
		smsProvider = services.NewMockSMSProvider()
	default:
		smsProvider = services.NewCarrierSMSProvider(&cfg.SMS)
	}

	if cfg.Email.Host != "" {
		emailProvider = services.NewSMTPEmailProvider(cfg.Email.Host, cfg.Email.Port, cfg.Email.Username, cfg.Email.Password, cfg.Email.FromEmail)
	} else {
		emailProvider = services.NewMockEmailProvider()
	}

	return services.NewNotificationService(smsProvider, emailProvider)
}

// initializeOTPService selects the code delivery backend. Demo mode accepts
// the fixed code without touching Redis; carrier mode needs the cache for
// code storage and send rate accounting.
func initializeOTPService(cfg *config.Config, rc *redis.Client, notifier services.NotificationService) (services.OTPService, error) {
	switch cfg.OTP.Mode {
	case "demo":
		return services.NewDemoOTPService(cfg.OTP.DefaultCountryCode), nil
	default:
		if rc == nil {
			return nil, fmt.Errorf("carrier otp mode requires redis cache to be enabled")
		}
		return services.NewCarrierOTPService(rc, notifier, cfg.OTP.DefaultCountryCode), nil
	}
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.Config) (*Application, error) {
	var stopFuncs []func()

	// Initialize database
	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		cancel := startCacheHealthMonitor(context.Background(), rc, cfg.Cache.DefaultTTL)
		stopFuncs = append(stopFuncs, cancel)
	}

	stopFuncs = append(stopFuncs, startMetricsServer(cfg.Metrics))

	// Initialize repositories
	accountRepo := repository.NewAccountRepository(db)
	otpRepo := repository.NewOTPVerificationRepository(db)
	sessionRepo := repository.NewAccountSessionRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)

	stopFuncs = append(stopFuncs, startSessionCleanup(context.Background(), sessionRepo, cfg.Security.SessionCleanupInterval))

	// Initialize services
	notificationService := initializeNotificationService(cfg)

	otpService, err := initializeOTPService(cfg, rc, notificationService)
	if err != nil {
		return nil, err
	}

	tokenService, err := services.NewTokenService(
		cfg.JWT.AccessTokenTTL,
		cfg.JWT.RefreshTokenTTL,
		cfg.JWT.Issuer,
		cfg.JWT.Audience,
		cfg.JWT.UseRSAKeys,
		cfg.JWT.PrivateKey,
		cfg.JWT.PublicKey,
		cfg.JWT.SecretKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}

	log.Printf("Token service initialized with issuer: %s, audience: %s", cfg.JWT.Issuer, cfg.JWT.Audience)

	clock := businessflow.SystemClock{}

	// Initialize flows
	duplicateGuard := businessflow.NewDuplicateGuard(accountRepo)

	registrationFlow := businessflow.NewRegistrationFlow(
		accountRepo,
		otpRepo,
		sessionRepo,
		auditRepo,
		duplicateGuard,
		otpService,
		tokenService,
		clock,
		cfg.OTP.DefaultCountryCode,
		db,
	)

	twoFactorFlow := businessflow.NewTwoFactorFlow(
		accountRepo,
		sessionRepo,
		auditRepo,
		otpService,
		tokenService,
		clock,
		db,
	)

	webhookFlow := businessflow.NewWebhookFlow(
		accountRepo,
		auditRepo,
		notificationService,
		cfg.Webhook.SigningSecret,
		clock,
		db,
	)

	accessFlow := businessflow.NewAccessFlow(accountRepo, clock)

	adminFlow := businessflow.NewAdminFlow(
		accountRepo,
		sessionRepo,
		auditRepo,
		clock,
		db,
	)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(registrationFlow, twoFactorFlow)
	webhookHandler := handlers.NewWebhookHandler(webhookFlow, cfg.Webhook.SignatureHeader)
	accessHandler := handlers.NewAccessHandler(accessFlow)
	adminHandler := handlers.NewAdminHandler(adminFlow)

	// Initialize auth middleware
	authMiddleware := middleware.NewAuthMiddleware(tokenService, sessionRepo)

	// Initialize router
	appRouter := router.NewFiberRouter(
		cfg,
		authHandler,
		webhookHandler,
		accessHandler,
		adminHandler,
		authMiddleware,
	)

	fiberRouter := appRouter.(*router.FiberRouter)
	application := &Application{
		router:    fiberRouter,
		config:    cfg,
		server:    fiberRouter.GetApp(),
		stopFuncs: stopFuncs,
	}

	return application, nil
}
