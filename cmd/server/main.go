package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/waterlab-lims-server/internal/api"
	"github.com/waterlab-lims-server/internal/audit"
	"github.com/waterlab-lims-server/internal/cache"
	"github.com/waterlab-lims-server/internal/config"
	"github.com/waterlab-lims-server/internal/database"
	"github.com/waterlab-lims-server/internal/domain"
	"github.com/waterlab-lims-server/internal/repository"
	"github.com/waterlab-lims-server/internal/service"
)

func main() {
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}
	cfg := configManager.GetConfig()

	logger := newLogger(cfg.Logging)
	logger.WithFields(logrus.Fields{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Starting water lab LIMS server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down")
		cancel()
	}()

	db, err := database.NewConnection(ctx, cfg.Database, logger)
	if err != nil {
		logger.WithError(err).Fatal("Database connection failed")
	}
	defer db.Close()

	runner, err := database.NewMigrationRunner(configManager.GetDatabaseURL(), cfg.Database.MigrationsPath, logger)
	if err != nil {
		logger.WithError(err).Fatal("Migration runner setup failed")
	}
	if err := runner.Up(ctx); err != nil {
		logger.WithError(err).Fatal("Applying migrations failed")
	}
	if version, dirty, err := runner.Version(); err != nil {
		logger.WithError(err).Warn("Could not read schema version")
	} else {
		logger.WithFields(logrus.Fields{
			"version": version,
			"dirty":   dirty,
		}).Info("Database schema ready")
	}
	if err := runner.Close(); err != nil {
		logger.WithError(err).Warn("Closing migration runner failed")
	}

	samples := repository.NewSampleRepository(db.Pool, logger)
	customers := repository.NewCustomerRepository(db.Pool, logger)
	results := repository.NewResultRepository(db.Pool, logger)
	parameters := repository.NewParameterRepository(db.Pool, logger)
	categories := repository.NewCategoryRepository(db.Pool, logger)
	overrides := repository.NewOverrideRepository(db.Pool, logger)
	reviews := repository.NewReviewRepository(db.Pool, logger)

	var finder domain.OverrideFinder = overrides
	var invalidator api.OverrideInvalidator
	if cfg.Cache.Enabled {
		overrideCache, err := cache.New(overrides, cfg.Cache, logger)
		if err != nil {
			logger.WithError(err).Fatal("Override cache setup failed")
		}
		defer overrideCache.Close()
		finder = overrideCache
		invalidator = overrideCache
	}

	auditStore, err := newAuditStore(cfg.Audit)
	if err != nil {
		logger.WithError(err).Fatal("Audit store setup failed")
	}
	defer auditStore.Close()

	hub := api.NewEventHub(logger)
	defer hub.Close()
	sink := domain.MultiSink{audit.NewStoreSink(auditStore), hub}

	lifecycle := service.NewLifecycleService(samples, logger).WithSink(sink)
	sampleService := service.NewSampleService(samples, customers, logger).WithSink(sink)
	resultService := service.NewResultService(results, samples, logger).WithSink(sink)
	reviewService := service.NewReviewService(reviews, samples,
		service.NewLifecycleReviewHandler(lifecycle, logger), logger).WithSink(sink)
	static := service.NewStaticOverrides(cfg.Lab.TextResultStatusOverrides, logger)
	resolver := service.NewResolver(finder, static, logger)
	seedService := service.NewSeedService(parameters, categories, logger)

	server := api.NewServer(configManager.GetServerConfig(), api.Deps{
		Samples:     sampleService,
		Results:     resultService,
		Lifecycle:   lifecycle,
		Reviews:     reviewService,
		Resolver:    resolver,
		Seed:        seedService,
		Parameters:  parameters,
		Categories:  categories,
		Overrides:   overrides,
		Invalidator: invalidator,
		AuditStore:  auditStore,
		Events:      hub,
		Sink:        sink,
		Health:      db,
	}, logger, configManager.IsDevelopment())

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}
	logger.Info("Server stopped")
}

// newAuditStore selects the external audit store backend. The embedded
// sqlite store is the default; postgres suits deployments that already
// run a dedicated audit database.
func newAuditStore(cfg domain.AuditConfig) (audit.Store, error) {
	if cfg.Backend == "postgres" {
		return audit.NewPostgresStoreFromURL(cfg.PostgresURL)
	}
	return audit.NewSQLiteStore(cfg.SQLitePath)
}

func newLogger(cfg domain.LoggingConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	}

	if cfg.Output == "stderr" {
		logger.SetOutput(os.Stderr)
	} else {
		logger.SetOutput(os.Stdout)
	}
	return logger
}
