package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ms-rental/internal/analytics"
	analyticsapi "ms-rental/internal/analytics/api"
	"ms-rental/internal/auth"
	"ms-rental/internal/booking"
	bookingapi "ms-rental/internal/booking/api"
	bookingdb "ms-rental/internal/booking/db"
	bookingkafka "ms-rental/internal/booking/kafka"
	bookingredis "ms-rental/internal/booking/redis"
	"ms-rental/internal/catalog"
	catalogapi "ms-rental/internal/catalog/api"
	catalogdb "ms-rental/internal/catalog/db"
	"ms-rental/internal/config"
	"ms-rental/internal/database"
	"ms-rental/internal/database/migrations"
	"ms-rental/internal/kafka"
	"ms-rental/internal/logger"
	"ms-rental/internal/payment"
	"ms-rental/internal/pricing"
	"ms-rental/internal/sse"
	"ms-rental/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
)

func runMigrations(ctx context.Context, cfg *config.Config, logger *logger.Logger) {
	if !cfg.Migrations.RunOnStart {
		logger.Info("MIGRATION", "Skipping migrations (RUN_MIGRATIONS=false)")
		return
	}

	sqldb, err := database.OpenPostgres(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("MIGRATION", fmt.Sprintf("Failed to open migration connection: %v", err))
	}

	runner := migrations.NewRunner(sqldb, migrations.MigrateOptions{
		AutoMigrate: true,
		SeedData:    cfg.Migrations.SeedData,
	}, logger)
	defer runner.Close()

	if err := runner.Initialize(); err != nil {
		logger.Fatal("MIGRATION", fmt.Sprintf("Failed to initialize migrations: %v", err))
	}
	if err := runner.RunMigrations(); err != nil {
		logger.Fatal("MIGRATION", fmt.Sprintf("Failed to run migrations: %v", err))
	}
}

func newVerifier(ctx context.Context, cfg config.AuthConfig, logger *logger.Logger) auth.Verifier {
	if cfg.OIDCIssuer != "" {
		v, err := auth.NewOIDCVerifier(ctx, cfg.OIDCIssuer)
		if err != nil {
			logger.Fatal("AUTH", fmt.Sprintf("Failed to discover OIDC issuer %s: %v", cfg.OIDCIssuer, err))
		}
		logger.Info("AUTH", "Verifying tokens against OIDC issuer "+cfg.OIDCIssuer)
		return v
	}
	if cfg.JWTSecret == "" {
		logger.Fatal("CONFIG", "Either OIDC_ISSUER or JWT_SECRET must be set")
	}
	logger.Info("AUTH", "Verifying HMAC-signed tokens")
	return auth.NewHMACVerifier([]byte(cfg.JWTSecret), cfg.Issuer)
}

func healthHandler(db *bun.DB, rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := map[string]string{"postgres": "ok", "redis": "ok"}
		status := http.StatusOK
		if err := db.PingContext(ctx); err != nil {
			checks["postgres"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			checks["redis"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		utils.WriteSuccess(w, status, "health", checks)
	}
}

func main() {
	logger := logger.NewLogger("booking-service")
	defer logger.Close()

	logger.Info("APP", "Starting Booking Service initialization")

	if err := godotenv.Load(); err != nil {
		logger.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		logger.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("CONFIG", fmt.Sprintf("Invalid configuration: %v", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runMigrations(ctx, cfg, logger)

	logger.Info("APP", "Verifying database connections")
	bunDB, err := database.ConnectPostgres(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	redisClient, err := database.ConnectRedis(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Fatal("REDIS", err.Error())
	}
	defer redisClient.Close()

	emitter := sse.NewBookingEventEmitter()

	catalogService := catalog.NewService(
		&catalogdb.DB{Bun: bunDB},
		catalog.NewRedisCarCache(redisClient, catalog.DefaultCacheTTL),
		logger,
	)

	var gateway booking.PaymentGateway
	stripeGateway, err := payment.NewStripeGateway(cfg.Stripe, logger)
	if err != nil {
		logger.Warn("PAYMENT", fmt.Sprintf("Payments disabled: %v", err))
	} else {
		gateway = stripeGateway
	}

	var events booking.EventPublisher
	var paymentResults *bookingkafka.Producer
	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topics.All(), logger); err != nil {
			logger.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		eventsProducer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics.BookingEvents, logger)
		defer eventsProducer.Close()
		events = bookingkafka.NewProducer(eventsProducer)

		resultsProducer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics.PaymentResults, logger)
		defer resultsProducer.Close()
		paymentResults = bookingkafka.NewProducer(resultsProducer)
		logger.Info("KAFKA", "Kafka producers initialized successfully")
	} else {
		logger.Warn("KAFKA", "Kafka disabled, booking events stay in-process")
	}

	bookingService := booking.NewBookingService(
		&bookingdb.DB{Bun: bunDB},
		catalogService,
		bookingredis.NewRedis(redisClient, cfg.Redis.LockTTL, logger),
		events,
		gateway,
		logger,
		booking.WithCalculator(pricing.NewCalculator(cfg.Pricing.TaxRateBps)),
		booking.WithCurrency(cfg.Pricing.Currency),
		booking.WithPaymentLinkTTL(cfg.Booking.PaymentLinkTTL),
		booking.WithNotifier(emitter),
	)

	bookingHandler := bookingapi.NewHandler(bookingService, emitter, cfg.Stripe.WebhookSecret, logger)
	if paymentResults != nil {
		bookingHandler.PaymentResults = paymentResults
	}
	carHandler := catalogapi.NewHandler(catalogService, logger)
	analyticsHandler := analyticsapi.NewHandler(analytics.NewService(bunDB), logger)
	verifier := newVerifier(ctx, cfg.Auth, logger)

	logger.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Stripe-Signature"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(logger.Middleware)

	r.Get("/healthz", healthHandler(bunDB, redisClient))
	r.Mount("/api/cars", carHandler.Routes(verifier))
	logger.Info("ROUTER", "Car routes registered under /api/cars")
	r.Mount("/api/bookings", bookingHandler.BookingRoutes(verifier))
	logger.Info("ROUTER", "Booking routes registered under /api/bookings")
	r.Mount("/api/payments", bookingHandler.PaymentRoutes(verifier))
	logger.Info("ROUTER", "Payment routes registered under /api/payments")
	r.Mount("/api/analytics", analyticsHandler.Routes(verifier))
	logger.Info("ROUTER", "Analytics routes registered under /api/analytics")

	// No WriteTimeout: the /stream endpoints hold responses open.
	server := &http.Server{
		Addr:        cfg.Server.Port,
		Handler:     r,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("HTTP", "🚀 Booking Service running on "+cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	logger.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-ctx.Done()

	logger.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		logger.Info("HTTP", "✅ Booking Service shutdown complete")
	}
}
