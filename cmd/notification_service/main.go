package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/notifly/gateway/internal/notification_service/adapters/channel"
	"github.com/notifly/gateway/internal/notification_service/app"
	repoPg "github.com/notifly/gateway/internal/notification_service/repository/postgres"
	httptransport "github.com/notifly/gateway/internal/notification_service/transport/http"
	"github.com/notifly/gateway/internal/platform/config"
	"github.com/notifly/gateway/internal/platform/database"
	"github.com/notifly/gateway/internal/platform/logger"
	"github.com/notifly/gateway/internal/platform/messagebroker"
)

const serviceName = "notification_service"

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		slog.Error("Failed to load configuration", "service", serviceName, "error", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.LogLevel)
	appLogger.Info("Notification service starting...", "port", cfg.ServerPort)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := database.NewDBPool(ctx, cfg.PostgresDSN)
	if err != nil {
		appLogger.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	appLogger.Info("Connected to PostgreSQL database")

	natsClient, err := messagebroker.NewNATSClient(cfg.NATSUrl, serviceName, appLogger)
	if err != nil {
		appLogger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()
	appLogger.Info("Connected to NATS")

	senders := channel.NewRegistry(
		channel.NewTelegramSender(channel.TelegramConfig{
			BotToken: cfg.TelegramBotToken,
			BaseURL:  cfg.TelegramAPIURL,
		}, cfg.ProviderTimeout()),
		channel.NewEmailSender(channel.EmailConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPass,
			From:     cfg.SMTPFrom,
		}),
		channel.NewSMSSender(channel.SMSConfig{
			APIID:  cfg.SMSRuAPIID,
			APIURL: cfg.SMSRuAPIURL,
		}, cfg.ProviderTimeout()),
	)

	attemptRepo := repoPg.NewPgAttemptLogRepository(dbPool)
	retryRepo := repoPg.NewPgRetryJobRepository(dbPool)

	dispatcher := app.NewDispatcher(senders, attemptRepo, nil, cfg.ProviderTimeout(), cfg.BulkWorkerLimit, appLogger)

	consumer := app.NewJobConsumer(dispatcher, retryRepo, natsClient, app.ConsumerConfig{
		MaxAttempts:  cfg.DispatchMaxAttempts,
		RetryBackoff: cfg.RetryBackoff(),
	}, appLogger)

	poller := app.NewRetryPoller(retryRepo, natsClient, appLogger, app.PollerConfig{
		PollingInterval: cfg.RetryPollInterval(),
		JobBatchSize:    cfg.RetryJobBatchSize,
		MaxRetry:        cfg.RetryPollMaxRetry,
	})

	sub, err := consumer.Start(ctx)
	if err != nil {
		appLogger.Error("Failed to start dispatch job consumer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = sub.Unsubscribe() }()

	validate := validator.New()
	notificationHandler := httptransport.NewNotificationHandler(dispatcher, attemptRepo, natsClient, validate, appLogger)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	started := time.Now()
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":         "ok",
			"uptime_seconds": int(time.Since(started).Seconds()),
		})
	})
	r.Handle("/metrics", promhttp.Handler())
	notificationHandler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.ServerPort),
		Handler: r,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		appLogger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		err := poller.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.Error("Service exited with error", "error", err)
		os.Exit(1)
	}
	appLogger.Info("Notification service stopped")
}
