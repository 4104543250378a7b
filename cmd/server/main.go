package main

import (
	"context"
	"errors"
	netHttp "net/http"
	"os/signal"
	"syscall"
	"time"

	"enrollment-crm/config"
	"enrollment-crm/db"
	"enrollment-crm/http"
	"enrollment-crm/http/handlers"
	"enrollment-crm/logger"
	"enrollment-crm/metrics"
	"enrollment-crm/repository"
	"enrollment-crm/services"
	"enrollment-crm/services/kafka"

	"golang.org/x/sync/errgroup"
)

func main() {
	// Load configuration
	config.LoadConfig()
	cfg := config.AppConfig

	logger.SetDefault(logger.New(logger.Config{
		Level: logger.ParseLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON || cfg.Env == "production",
	}))
	defer logger.Default().Sync()
	metrics.Register()

	// Initialize database
	if err := db.InitDB(); err != nil {
		logger.Fatal("Error initializing database: %v", err)
	}
	defer db.Close()
	store := repository.NewPostgresStore(db.DB)

	// Redis is optional
	var cache services.Cache = services.NewMemoryCache()
	db.ConnectRedis()
	if db.RDB != nil {
		cache = services.NewRedisCache(db.RDB, "crm:")
		defer db.RDB.Close()
	}

	// Kafka is optional: without brokers events are handled in-process
	brokers := cfg.KafkaBrokerList()
	deadLetters := kafka.WithMaxRetries(store, cfg.DLQMaxRetries)
	producer := kafka.NewProducer(brokers, deadLetters)
	dispatcher := kafka.NewDispatcher()
	topics := services.TopicsFromConfig(cfg)

	deps := &services.Deps{
		Store:    store,
		Events:   kafka.NewBus(producer, dispatcher, deadLetters),
		Topics:   topics,
		Cache:    cache,
		Location: cfg.Location(),
	}

	var mailer services.Mailer
	if m := services.NewSMTPMailer(cfg); m != nil {
		mailer = m
	}
	services.NewNotificationService(deps, mailer).Register(dispatcher)

	var gateway services.PaymentGateway
	if g := services.NewRazorpayGateway(cfg.RazorpayKeyID, cfg.RazorpayKeySecret); g != nil {
		gateway = g
	}

	auth := services.NewAuthService(deps, cfg.JWTSecret, cfg.JWTExpiration)
	enrollment := services.NewEnrollmentService(deps)
	finance := services.NewFinanceService(deps, gateway, cfg.PaymentCurrency).
		WithWebhookSecret(cfg.RazorpayWebhookSecret)
	dlq := kafka.NewDLQ(store, producer, dispatcher)

	h := &handlers.Handler{
		Leads:      services.NewLeadService(deps, enrollment),
		Courses:    services.NewCourseService(deps),
		Finance:    finance,
		Enrollment: enrollment,
		Dashboard:  services.NewDashboardService(deps, cfg.DashboardTTL),
		Auth:       auth,
		Team:       services.NewTeamService(deps),
		DLQ:        dlq,
		Store:      store,
	}

	server := &netHttp.Server{
		Addr:              cfg.ServerAddr,
		Handler:           http.NewRouter(h, auth, cfg.AllowedOrigins()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Set up graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kafka.EnsureTopics(ctx, brokers, []string{topics.Leads, topics.Finance, topics.Notifications})

	g, gctx := errgroup.WithContext(ctx)
	if consumer := kafka.NewConsumer(brokers, cfg.KafkaGroupID, []string{topics.Notifications}, dispatcher, deadLetters); consumer != nil {
		g.Go(func() error {
			go func() {
				<-gctx.Done()
				consumer.Close()
			}()
			consumer.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		dlq.RunAutoRetry(gctx, cfg.DLQRetryInterval)
		return nil
	})
	g.Go(func() error {
		finance.RunOverdueSweeper(gctx, cfg.OverdueSweepEvery)
		return nil
	})
	g.Go(func() error {
		logger.Info("Server starting on %s", cfg.ServerAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, netHttp.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received, draining connections...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error: %v", err)
	}

	// Close Kafka producer gracefully
	if err := producer.Close(); err != nil {
		logger.Error("Error closing Kafka producer: %v", err)
	}

	logger.Info("Server shutdown complete")
}
