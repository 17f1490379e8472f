package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Ramsey-B/fern/config"
	accountrepo "github.com/Ramsey-B/fern/internal/repositories/account"
	auditlogrepo "github.com/Ramsey-B/fern/internal/repositories/auditlog"
	chatrepo "github.com/Ramsey-B/fern/internal/repositories/chat"
	jobrepo "github.com/Ramsey-B/fern/internal/repositories/job"
	jobapprovalrepo "github.com/Ramsey-B/fern/internal/repositories/jobapproval"
	jobrunrepo "github.com/Ramsey-B/fern/internal/repositories/jobrun"
	messagerepo "github.com/Ramsey-B/fern/internal/repositories/message"
	tenantrepo "github.com/Ramsey-B/fern/internal/repositories/tenant"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/dispatch"
	"github.com/Ramsey-B/fern/pkg/drivers"
	"github.com/Ramsey-B/fern/pkg/entities"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/jobs"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/platforms/github"
	"github.com/Ramsey-B/fern/pkg/platforms/slack"
	"github.com/Ramsey-B/fern/pkg/platforms/teams"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/resolve"
	auditlogroutes "github.com/Ramsey-B/fern/pkg/routes/auditlog"
	dlqroutes "github.com/Ramsey-B/fern/pkg/routes/dlq"
	"github.com/Ramsey-B/fern/pkg/routes/health"
	jobroutes "github.com/Ramsey-B/fern/pkg/routes/job"
	observeroutes "github.com/Ramsey-B/fern/pkg/routes/observe"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const version = "0.1.0"

func main() {
	_ = godotenv.Load(".env")

	var cfg config.Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := newLogger(cfg)
	logger.WithField("version", version).Infof("Starting %s", cfg.AppName)

	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	tracing.SetTracer(tp.Tracer(cfg.AppName))

	ctx := context.Background()

	db, err := connectDatabase(cfg, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to database")
		os.Exit(1)
	}
	defer db.Close()

	if err := migrateDatabase(cfg, db, logger); err != nil {
		logger.WithError(err).Error("Failed to run migrations")
		os.Exit(1)
	}

	dbInstance := database.NewDatabaseInstance(db, logger)

	redisClient, err := redis.NewClient(redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to Redis")
		os.Exit(1)
	}
	defer redisClient.Close()

	dlq := redis.NewDeadLetterQueue(redisClient, cfg.DLQStream, logger)
	bus := events.NewBus(cfg.EventQueueSize, logger)

	registry := entities.NewRegistry(logger)
	teams.Register(registry)
	slack.Register(registry)
	github.Register(registry)

	tenants := tenantrepo.NewRepository(dbInstance, logger)
	accounts := accountrepo.NewRepository(dbInstance, logger)
	chats := chatrepo.NewRepository(dbInstance, logger)
	messages := messagerepo.NewRepository(dbInstance, logger)
	jobsRepo := jobrepo.NewRepository(dbInstance, logger)
	runs := jobrunrepo.NewRepository(dbInstance, logger)
	approvals := jobapprovalrepo.NewRepository(dbInstance, logger)
	auditLogs := auditlogrepo.NewRepository(dbInstance, logger)

	resolver := resolve.NewResolver(tenants, accounts, chats, messages, bus, cfg.ResolveRetryAttempts, logger)
	jobService := jobs.NewService(jobsRepo, runs, approvals, chats, accounts, bus, logger)

	// Every known platform must have a driver before anything starts.
	table, err := drivers.NewTable(
		teams.NewDriver(teams.NewLogConnector(logger), chats, jobsRepo, registry, logger),
		slack.NewDriver(slack.NewLogConnector(logger), chats, jobsRepo, registry, logger),
		github.NewDriver(github.NewLogConnector(logger), chats, jobsRepo, registry, logger),
	)
	if err != nil {
		logger.WithError(err).Error("Driver table is incomplete")
		os.Exit(1)
	}

	dispatcher := dispatch.NewDispatcher(bus, table, auditLogs, dlq, resolver, dispatch.Config{
		PollTimeout: time.Duration(cfg.DispatchPollTimeoutMS) * time.Millisecond,
	}, logger)
	if err := dispatcher.Start(ctx); err != nil {
		logger.WithError(err).Error("Failed to start dispatcher")
		os.Exit(1)
	}

	var consumer *kafka.Consumer
	if cfg.KafkaConsumerEnabled {
		consumer = kafka.NewConsumer(cfg, resolver, logger)
		if err := consumer.Start(ctx); err != nil {
			logger.WithError(err).Error("Failed to start Kafka consumer")
			os.Exit(1)
		}
	}

	e := newServer(cfg, logger)

	checker := health.NewChecker(db, redisClient, dispatcher, version)
	checker.RegisterRoutes(e)

	api := e.Group("/api/v1")
	observeroutes.NewHandler(resolver, tenants, accounts, chats, messages).Register(api)
	jobroutes.NewHandler(jobService, runs).Register(api)
	auditlogroutes.NewHandler(auditLogs).Register(api)
	dlqroutes.NewHandler(dlq, &dlqReplayer{dlq: dlq, bus: bus}).Register(api)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("HTTP server failed")
			os.Exit(1)
		}
	}()
	checker.SetReady(true)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")
	checker.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Failed to shut down HTTP server")
	}
	if consumer != nil {
		if err := consumer.Stop(); err != nil {
			logger.WithError(err).Error("Failed to stop Kafka consumer")
		}
	}

	// Close the bus first so dispatch workers drain what is queued, then
	// stop the workers.
	bus.Close()
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Failed to stop dispatcher")
	}

	logger.Info("Shutdown complete")
}

func newLogger(cfg config.Config) ectologger.Logger {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zapConfig := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)

	zapLogger, err := zapConfig.Build()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func connectDatabase(cfg config.Config, logger ectologger.Logger) (*sqlx.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName, cfg.DatabasePassword, cfg.DatabaseName, cfg.DatabaseSSLMode)

	var db *sqlx.DB
	var err error
	for attempt := 1; attempt <= cfg.StartupMaxAttempts; attempt++ {
		db, err = sqlx.Connect(cfg.DatabaseDriver, dsn)
		if err == nil {
			break
		}
		logger.WithError(err).Warnf("Database connection attempt %d/%d failed", attempt, cfg.StartupMaxAttempts)
		time.Sleep(time.Duration(attempt) * time.Second)
	}
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	db.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)

	logger.Infof("Connected to database %s", cfg.DatabaseName)
	return db, nil
}

func migrateDatabase(cfg config.Config, db *sqlx.DB, logger ectologger.Logger) error {
	driver, err := migratepg.WithInstance(db.DB, &migratepg.Config{})
	if err != nil {
		return err
	}

	ms := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
	})
	return ms.Migrate(cfg.DatabaseName, driver)
}

func newServer(cfg config.Config, logger ectologger.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second

	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.HTTPErrorHandler = middleware.Error(logger)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return e
}

// dlqReplayer binds the dead letter stream back to the bus for the replay
// route.
type dlqReplayer struct {
	dlq *redis.DeadLetterQueue
	bus *events.Bus
}

func (r *dlqReplayer) Replay(ctx context.Context, messageID string) error {
	return r.dlq.Replay(ctx, messageID, r.bus)
}
