package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/vmxmy/salary-system-v3-sub002/pkg/blobstore"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/config"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/database"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/datasource"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/datasource/mssql"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/datasource/postgres"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/handlers"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/logging"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/repositories"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/services"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/services/jobqueue"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("source_type", cfg.Source.Type),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())))

	ctx := context.Background()

	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	migrationDB, err := sql.Open("postgres", cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal("Failed to open migration connection", zap.Error(err))
	}
	if err := database.RunMigrations(migrationDB, "migrations", logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	_ = migrationDB.Close()

	sourceClient, err := newSourceClient(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to connect to source database", zap.Error(err))
	}
	defer func() { _ = sourceClient.Close() }()

	var blobs blobstore.Store
	if cfg.Redis.Host != "" {
		store, err := blobstore.NewRedisStore(ctx, &cfg.Redis, logger)
		if err != nil {
			logger.Fatal("Failed to connect to redis", zap.Error(err))
		}
		blobs = store
	} else {
		logger.Warn("No redis host configured, report files held in memory")
		blobs = blobstore.NewMemoryStore()
	}

	prober := services.NewSchemaProber(sourceClient, &cfg.Discovery, logger)
	strategies := []services.DiscoveryStrategy{
		services.NewCuratedListStrategy(cfg.Discovery.CuratedRelations),
	}
	if cfg.Discovery.EnableErrorProbe {
		strategies = append(strategies, services.NewErrorProbeStrategy(sourceClient, &cfg.Discovery, logger))
	}
	discovery := services.NewDiscoveryService(prober, strategies, &cfg.Scoring, &cfg.Discovery, logger)

	filterEngine := services.NewFilterEngine(logger)
	queue := jobqueue.New(logger, jobqueue.WithMaxConcurrent(cfg.Report.MaxConcurrentJobs))

	jobRepo := repositories.NewReportJobRepository(db)
	historyRepo := repositories.NewReportHistoryRepository(db)
	templateRepo := repositories.NewTemplateRepository(db)

	reportService := services.NewReportService(
		sourceClient, filterEngine,
		jobRepo, historyRepo, templateRepo,
		blobs, queue, &cfg.Report, logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewSourcesHandler(discovery, prober, logger).RegisterRoutes(mux)
	handlers.NewReportsHandler(reportService, filterEngine, logger).RegisterRoutes(mux)

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("Starting salary-report-engine",
		zap.String("addr", addr), zap.String("version", cfg.Version))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

// newSourceClient connects to the HR source database named by configuration.
func newSourceClient(ctx context.Context, cfg *config.Config, logger *zap.Logger) (datasource.QueryClient, error) {
	src := cfg.Source
	switch src.Type {
	case "mssql":
		return mssql.NewClient(ctx, &mssql.Config{
			Host:     src.Host,
			Port:     src.Port,
			User:     src.User,
			Password: src.Password,
			Database: src.Database,
		}, logger)
	default:
		return postgres.NewClient(ctx, &postgres.Config{
			Host:     src.Host,
			Port:     src.Port,
			User:     src.User,
			Password: src.Password,
			Database: src.Database,
			SSLMode:  src.SSLMode,
		}, logger)
	}
}
