package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ms-rental/internal/booking"
	bookingdb "ms-rental/internal/booking/db"
	bookingkafka "ms-rental/internal/booking/kafka"
	bookingredis "ms-rental/internal/booking/redis"
	"ms-rental/internal/catalog"
	catalogdb "ms-rental/internal/catalog/db"
	"ms-rental/internal/config"
	"ms-rental/internal/database"
	"ms-rental/internal/kafka"
	"ms-rental/internal/logger"
	"ms-rental/internal/payment"
	"ms-rental/internal/pricing"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

// warnMissingTopic flags a results topic the API has not created yet. The
// reader still starts and picks the topic up once it exists.
func warnMissingTopic(ctx context.Context, brokers []string, topic string, logger *logger.Logger) {
	topics, err := kafka.ListTopics(ctx, brokers)
	if err != nil {
		logger.Warn("KAFKA", fmt.Sprintf("Could not list topics: %v", err))
		return
	}
	for _, t := range topics {
		if t == topic {
			return
		}
	}
	logger.Warn("KAFKA", fmt.Sprintf("Topic %s does not exist yet, start the booking service first", topic))
}

// booking-worker applies queued payment results and completes rentals
// whose period has ended.
func main() {
	logger := logger.NewLogger("booking-worker")
	defer logger.Close()

	if err := godotenv.Load(); err != nil {
		logger.Warn("CONFIG", ".env file not found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("CONFIG", fmt.Sprintf("Invalid configuration: %v", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	var gateway booking.PaymentGateway
	if g, err := payment.NewStripeGateway(cfg.Stripe, logger); err != nil {
		logger.Warn("PAYMENT", fmt.Sprintf("Payments disabled: %v", err))
	} else {
		gateway = g
	}

	var events booking.EventPublisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics.BookingEvents, logger)
		defer producer.Close()
		events = bookingkafka.NewProducer(producer)
	}

	svc := booking.NewBookingService(
		&bookingdb.DB{Bun: bunDB},
		catalog.NewService(&catalogdb.DB{Bun: bunDB}, nil, logger),
		bookingredis.NewRedis(redisClient, cfg.Redis.LockTTL, logger),
		events,
		gateway,
		logger,
		booking.WithCalculator(pricing.NewCalculator(cfg.Pricing.TaxRateBps)),
		booking.WithCurrency(cfg.Pricing.Currency),
		booking.WithPaymentLinkTTL(cfg.Booking.PaymentLinkTTL),
	)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Kafka.Enabled {
		warnMissingTopic(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topics.PaymentResults, logger)
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.PaymentResults, cfg.Kafka.GroupID, logger)
		defer consumer.Close()
		g.Go(func() error {
			return consumer.Start(gctx, bookingkafka.PaymentResultHandler(svc))
		})
	} else {
		logger.Warn("KAFKA", "Kafka disabled, payment results are applied by the webhook handler")
	}

	g.Go(func() error {
		svc.RunCompletionSweeper(gctx, cfg.Booking.SweepInterval)
		return nil
	})

	logger.Info("APP", "Booking worker started, waiting for shutdown signal")
	if err := g.Wait(); err != nil {
		logger.Error("APP", fmt.Sprintf("Worker stopped with error: %v", err))
		return
	}
	logger.Info("APP", "✅ Booking worker shutdown complete")
}
