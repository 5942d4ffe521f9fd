package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/connectmydoc/patients/internal/config"
	"github.com/connectmydoc/patients/internal/domain/patient"
	"github.com/connectmydoc/patients/internal/platform/cache"
	"github.com/connectmydoc/patients/internal/platform/db"
	"github.com/connectmydoc/patients/internal/platform/events"
	"github.com/connectmydoc/patients/internal/platform/logging"
	"github.com/connectmydoc/patients/internal/platform/metrics"
	"github.com/connectmydoc/patients/internal/platform/middleware"
	"github.com/connectmydoc/patients/internal/platform/telemetry"
)

const serviceName = "patient-server"

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Logger
	logger := logging.New(logging.Options{
		Level:         cfg.LogLevel,
		Development:   cfg.IsDev(),
		Service:       serviceName,
		File:          cfg.LogFile,
		MaxSizeMB:     cfg.LogMaxSizeMB,
		MaxBackups:    cfg.LogMaxBackups,
		MaxAgeDays:    cfg.LogMaxAgeDays,
		CompressFiles: true,
	})

	// Error reporting
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Env,
			Release:     serviceName + "@" + version,
		}); err != nil {
			return err
		}
		defer sentry.Flush(2 * time.Second)
	}

	// Tracing
	ctx := context.Background()
	tracing, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTelEndpoint,
		OTLPInsecure:   cfg.OTelInsecure,
		SampleRate:     cfg.OTelSampleRate,
	})
	if err != nil {
		return err
	}
	defer tracing.Shutdown(context.Background())

	// Database
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{
		MaxConns:       cfg.DBMaxConns,
		MinConns:       cfg.DBMinConns,
		ConnectTimeout: 10 * time.Second,
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Doctor directory, cached in Redis when configured
	var doctors patient.DoctorDirectory = patient.NewHTTPDoctorDirectory(patient.DoctorDirectoryConfig{
		BaseURL:    cfg.DoctorAPIURL,
		Timeout:    cfg.DoctorAPITimeout,
		MaxRetries: cfg.DoctorAPIMaxRetries,
	})
	var checks []db.Check
	if cfg.RedisURL != "" {
		redisCache, err := cache.NewRedisCache(cfg.RedisURL, serviceName)
		if err != nil {
			return err
		}
		defer redisCache.Close()
		doctors = patient.NewCachedDoctorDirectory(doctors, redisCache, cfg.DoctorCacheTTL, logger)
		checks = append(checks, db.Check{Name: "redis", Ping: redisCache.Ping})
	}

	// Lifecycle events
	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, func(d events.Delivery) {
			metrics.RecordEventDelivered(d.EventType, d.Err)
			if d.Err != nil {
				logger.Warn().Err(d.Err).
					Str("event_type", d.EventType).
					Str("event_id", d.EventID).
					Int64("patient_id", d.AggregateID).
					Msg("lifecycle event not delivered")
			}
		})
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("publishing lifecycle events")
	}
	defer publisher.Close()

	svc := patient.NewService(
		patient.NewPatientRepo(pool),
		patient.NewAddressRepo(pool),
		patient.NewGuardianRepo(pool),
		db.NewUnitOfWork(pool),
		patient.NewHelper(doctors, cfg.PhoneRegion),
		patient.WithEvents(publisher),
		patient.WithLogger(logger),
	)

	limiter := middleware.NewRateLimiter(rateLimitConfig(cfg))
	cleanupCtx, stopCleanup := context.WithCancel(context.Background())
	defer stopCleanup()
	go limiter.StartCleanup(cleanupCtx, time.Minute)

	e := newRouter(cfg, logger, patient.NewHandler(svc), db.HealthHandler(pool, checks...), limiter)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("version", version).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func rateLimitConfig(cfg *config.Config) middleware.RateLimitConfig {
	rl := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rl.RequestsPerSecond = cfg.RateLimitRPS
	}
	if cfg.RateLimitBurst > 0 {
		rl.BurstSize = cfg.RateLimitBurst
	}
	return rl
}

// newRouter builds the echo instance with the global middleware chain, the
// patient routes and the operational endpoints.
func newRouter(cfg *config.Config, logger zerolog.Logger, patients *patient.Handler, ready echo.HandlerFunc, limiter *middleware.RateLimiter) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(e, logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(telemetry.Middleware())
	e.Use(metrics.Middleware())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderContentType, middleware.RequestIDHeader},
	}))
	e.Use(limiter.Middleware())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	// Operational endpoints
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	if ready != nil {
		e.GET("/health/ready", ready)
	}
	e.GET("/metrics", metrics.Handler())

	// API
	patients.RegisterRoutes(e.Group("/api/v1"))
	return e
}
