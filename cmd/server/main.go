package main

import (
	"context"
	"errors"
	"log"
	netHttp "net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"learning-platform/config"
	"learning-platform/db"
	"learning-platform/http"
	"learning-platform/http/handlers"
	"learning-platform/logger"
	"learning-platform/metrics"
	"learning-platform/services"
	"learning-platform/services/kafka"
	"learning-platform/utils"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Run from the project root so config/.env is found.
	if cwd, err := os.Getwd(); err == nil {
		if root := findProjectRoot(cwd); root != "" && root != cwd {
			if err := os.Chdir(root); err != nil {
				log.Fatal("Error changing to project root:", err)
			}
		}
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	logger.SetDefault(logger.New(logger.Config{Level: logger.ParseLevel(cfg.LogLevel), Output: os.Stdout}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Fatal("Server stopped: %v", err)
	}
	logger.Info("Server shutdown complete")
}

func run(ctx context.Context, cfg config.Config) error {
	conn, err := db.Open(ctx, cfg.DBConnString())
	if err != nil {
		return err
	}
	defer conn.Close()
	logger.Info("Database connection established")

	store := db.NewStore(conn)
	m := metrics.New()

	var (
		publisher services.Publisher
		producer  *kafka.Producer
		consumer  *kafka.Consumer
	)
	if cfg.KafkaEnabled() {
		producer = kafka.NewProducer(cfg.KafkaBrokers)
		defer func() {
			if err := producer.Close(); err != nil {
				logger.Error("Error closing Kafka producer: %v", err)
			}
		}()
		if err := producer.EnsureTopics(ctx, cfg.KafkaPaymentsTopic, cfg.KafkaSubscriptionsTopic); err != nil {
			logger.Warn("Could not ensure Kafka topics: %v", err)
		}
		publisher = producer

		if cfg.MailEnabled() {
			mailer, err := services.NewSMTPMailer(services.SMTPConfig{
				Host:     cfg.SMTPHost,
				Port:     cfg.SMTPPort,
				User:     cfg.SMTPUser,
				Password: cfg.SMTPPass,
				From:     cfg.EmailFrom,
			})
			if err != nil {
				return err
			}
			notifier := services.NewNotifier(mailer)
			consumer = kafka.NewConsumer(kafka.ConsumerConfig{
				Brokers: cfg.KafkaBrokers,
				Topic:   cfg.KafkaSubscriptionsTopic,
				GroupID: cfg.KafkaConsumerGroup,
			}, notifier.HandleMessage, producer)
			defer consumer.Close()
		} else {
			logger.Info("SMTP credentials not set, subscription emails disabled")
		}
	} else {
		logger.Info("KAFKA_BROKERS not set, events will not be published")
	}

	ledger := services.NewLedger(nil)
	events := services.NewEventBus(publisher, cfg.KafkaPaymentsTopic, cfg.KafkaSubscriptionsTopic, nil)
	auth := services.NewAuthService(store, cfg.JWTSecret, nil)

	h := &handlers.Handler{
		Verifier:      services.NewVerifier(cfg.IPNKey),
		Payments:      services.NewPaymentService(store, ledger, events, m),
		Subscriptions: services.NewSubscriptionService(store, ledger, events, m),
		Access:        services.NewAccessGate(store, ledger, m),
		Auth:          auth,
		Validator:     utils.NewValidator(),
		Metrics:       m,
		Ping:          store.Ping,
	}
	server := &netHttp.Server{
		Addr: cfg.HTTPAddr,
		Handler: http.NewRouter(h, http.RouterConfig{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			Auth:           auth,
			Metrics:        m,

			RateLimitPerSecond: cfg.RateLimitPerSecond,
			RateLimitBurst:     cfg.RateLimitBurst,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Server starting on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, netHttp.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received, draining HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return services.NewExpirySweeper(store, ledger, cfg.SubscriptionSweepInterval, nil, m).Run(gctx)
	})
	if consumer != nil {
		g.Go(func() error { return consumer.Run(gctx) })
	}
	return g.Wait()
}

// findProjectRoot walks up from start and returns the first directory containing go.mod
func findProjectRoot(start string) string {
	dir := start
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
