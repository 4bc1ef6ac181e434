package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"multiactivity/internal/config"
	"multiactivity/internal/consul"
	"multiactivity/internal/email"
	"multiactivity/internal/logger"
	"multiactivity/internal/session"

	"github.com/gin-gonic/gin"
	_ "github.com/joho/godotenv/autoload"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	lgr := logger.New(cfg.Log.Level, cfg.Log.Format)
	logger.SetDefault(lgr)

	if cfg.Kafka.Brokers == "" {
		lgr.Error("KAFKA_BROKERS is required for the mailer")
		os.Exit(1)
	}

	port := cfg.Email.ServicePort
	lgr.Info("Starting mailer",
		"port", port,
		"redis", cfg.Redis.Addr,
		"kafka", cfg.Kafka.Brokers,
		"topic", cfg.Kafka.EmailTopic,
		"mode", cfg.Email.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis for the idempotency store
	redisClient, err := session.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		lgr.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	lgr.Info("Connected to Redis")

	idempotencyStore := email.NewIdempotencyStore(session.NewRedisStore(redisClient), lgr)
	sender := email.NewSender(cfg.Email, lgr)

	consumer, err := email.NewConsumer(&email.ConsumerConfig{
		Brokers:       cfg.Kafka.Brokers,
		Topic:         cfg.Kafka.EmailTopic,
		DLQTopic:      cfg.Kafka.EmailDLQTopic,
		ConsumerGroup: cfg.Kafka.ConsumerGroup,
		MaxRetries:    cfg.Kafka.MaxRetries,
	}, sender, idempotencyStore, lgr)
	if err != nil {
		lgr.Error("Failed to create Kafka consumer", "error", err)
		os.Exit(1)
	}

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := consumer.Start(ctx); err != nil {
			lgr.Error("Consumer error", "error", err)
			stop()
		}
	}()

	// Health endpoint for Consul
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	handler := email.NewHandler(func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	}, lgr)
	r.GET("/health", handler.HealthCheck)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		lgr.Info("HTTP server started", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lgr.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	consulClient, err := consul.NewClient(cfg.Consul)
	if err != nil {
		lgr.Error("Failed to create Consul client", "error", err)
		os.Exit(1)
	}
	var serviceID string
	if consulClient != nil {
		serviceID, err = consulClient.RegisterHTTP("mailer", port, "email", "kafka-consumer")
		if err != nil {
			lgr.Error("Failed to register with Consul", "error", err)
		} else {
			lgr.Info("Registered with Consul", "serviceID", serviceID)
		}
	}

	<-ctx.Done()
	lgr.Info("Shutting down mailer")

	if serviceID != "" {
		if err := consulClient.Deregister(serviceID); err != nil {
			lgr.Error("Failed to deregister from Consul", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		lgr.Error("HTTP server forced to shutdown", "error", err)
	}

	<-consumerDone
	consumer.Close()

	lgr.Info("Mailer stopped")
}
