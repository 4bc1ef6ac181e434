package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"multiactivity/internal/auth"
	"multiactivity/internal/config"
	"multiactivity/internal/consul"
	"multiactivity/internal/database"
	"multiactivity/internal/drive"
	"multiactivity/internal/email"
	"multiactivity/internal/food"
	"multiactivity/internal/kafka"
	"multiactivity/internal/logger"
	"multiactivity/internal/notes"
	"multiactivity/internal/pokemon"
	"multiactivity/internal/server"
	"multiactivity/internal/session"
	"multiactivity/internal/storage"
	"multiactivity/internal/todos"

	_ "github.com/joho/godotenv/autoload"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	logger.SetDefault(log)

	if err := cfg.ValidateServer(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting multiactivity server",
		"port", cfg.Server.Port,
		"env", cfg.AppEnv,
		"kafka_enabled", cfg.Kafka.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startupCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	// Postgres
	db, err := database.New(startupCtx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("Connected to database")

	if cfg.Database.Migrate {
		if err := database.Migrate(startupCtx, db); err != nil {
			slog.Error("Failed to apply schema", "error", err)
			os.Exit(1)
		}
		slog.Info("Database schema applied")
	}

	// Redis
	redisClient, err := session.NewRedisClient(startupCtx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		slog.Error("Failed to connect to Redis", "addr", cfg.Redis.Addr, "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	store := session.NewRedisStore(redisClient)
	slog.Info("Connected to Redis", "addr", cfg.Redis.Addr)

	// S3
	objects, err := storage.New(startupCtx, cfg.Storage)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	slog.Info("Storage service initialized", "bucket", cfg.Storage.Bucket)

	// Email delivery, through Kafka when enabled
	var publisher email.Publisher
	if cfg.Kafka.Enabled {
		kafkaConfig, err := kafka.NewConfig(cfg.Kafka)
		if err != nil {
			slog.Error("Invalid Kafka configuration", "error", err)
			os.Exit(1)
		}
		producer, err := kafka.NewProducer(kafkaConfig, log)
		if err != nil {
			slog.Error("Failed to create Kafka producer", "error", err)
			os.Exit(1)
		}
		defer producer.Close()
		publisher = producer
	}
	notifier := email.NewNotifier(publisher, cfg.Kafka.EmailTopic, email.NewSender(cfg.Email, log), log)

	// Auth backend and session manager
	backend := auth.NewBackend(auth.NewUserRepository(db), store, notifier, cfg.Auth, log)

	driveService := drive.NewService(objects, log)
	foodHandler := food.NewHandler(food.NewFoodRepository(db), food.NewReviewRepository(db), objects, log)
	backend.OnAccountDeleted(driveService.PurgeUser)
	backend.OnAccountDeleted(foodHandler.PurgeUser)

	manager := session.NewManager(backend, log)
	manager.Start(ctx)
	defer manager.Close()
	go backend.Run(ctx)

	srv := server.New(cfg.Server, server.Deps{
		DB:       db,
		Redis:    redisClient,
		Storage:  objects,
		Sessions: manager,
		Tokens:   backend,
		Auth:     auth.NewHandler(manager, backend, backend, log),
		Activities: []server.RouteRegistrar{
			todos.NewHandler(todos.NewRepository(db), log),
			notes.NewHandler(notes.NewRepository(db), notes.NewRenderer(), log),
			foodHandler,
			pokemon.NewHandler(pokemon.NewClient(cfg.Pokemon, store, log), pokemon.NewRepository(db), log),
			drive.NewHandler(driveService),
		},
		Logger: log,
	}).HTTPServer()

	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	// Consul
	consulClient, err := consul.NewClient(cfg.Consul)
	if err != nil {
		slog.Error("Failed to create Consul client", "error", err)
		os.Exit(1)
	}
	var serviceID string
	if consulClient != nil {
		serviceID, err = consulClient.RegisterHTTP("multiactivity", cfg.Server.Port, "api", "http")
		if err != nil {
			slog.Error("Failed to register with Consul", "error", err)
		} else {
			slog.Info("Registered with Consul", "service_id", serviceID)
		}
	}

	<-ctx.Done()
	slog.Info("Shutting down multiactivity server")

	if serviceID != "" {
		if err := consulClient.Deregister(serviceID); err != nil {
			slog.Error("Failed to deregister from Consul", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server stopped")
}
