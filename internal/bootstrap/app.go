package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"onboarding-backend/internal/analyses"
	"onboarding-backend/internal/analysisapi"
	"onboarding-backend/internal/export"
	"onboarding-backend/internal/repometa"
	"onboarding-backend/internal/selection"
	"onboarding-backend/internal/services/health"
	"onboarding-backend/internal/shared/auth"
	"onboarding-backend/internal/shared/config"
	"onboarding-backend/internal/shared/server"
	"onboarding-backend/internal/shared/storage/db"
	"onboarding-backend/internal/shared/storage/object"
	localstore "onboarding-backend/internal/shared/storage/object/local"
	s3store "onboarding-backend/internal/shared/storage/object/s3"
	"onboarding-backend/internal/shared/telemetry"
	"onboarding-backend/internal/usage"
)

// App holds shared dependencies.
type App struct {
	Config           config.Config
	Router           *gin.Engine
	DB               *sql.DB
	Storage          string
	Archive          object.Store
	Auth             *auth.Manager
	AnalysesRepo     analyses.Repo
	UsageService     *usage.Service
	AnalysesService  *analyses.Service
	Selections       *selection.Registry
	AnalysisHandler  *analyses.Handler
	SelectionHandler *selection.Handler
	UsageHandler     *usage.Handler
	ExportHandler    *export.Handler
}

// Build prepares dependencies and the router.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	telemetry.Configure(os.Stdout, cfg.LogLevel)

	manager, err := auth.NewManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.Env)
	if err != nil {
		return nil, err
	}

	sqlDB, storage, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:  cfg,
		DB:      sqlDB,
		Storage: storage,
		Auth:    manager,
	}
	archive, err := buildArchive(ctx, cfg)
	if err != nil {
		if !cfg.IsDevLike() {
			app.Close()
			return nil, err
		}
		telemetry.Warn("bootstrap.archive_disabled", map[string]any{"error": err.Error()})
	} else {
		app.Archive = archive
	}
	if err := buildServices(ctx, app); err != nil {
		app.Close()
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:           cfg,
		Verifier:         manager,
		Health:           health.NewService(sqlDB, storage),
		AnalysisHandler:  app.AnalysisHandler,
		SelectionHandler: app.SelectionHandler,
		UsageHandler:     app.UsageHandler,
		ExportHandler:    app.ExportHandler,
	})

	telemetry.Info("bootstrap.ready", map[string]any{
		"env":          cfg.Env,
		"storage":      storage,
		"analysis_api": cfg.AnalysisAPIURL != "",
		"github_token": cfg.GitHubToken != "",
		"archive":      cfg.ObjectStoreType,
	})
	return app, nil
}

// Close waits for background store updates and releases the database.
func (a *App) Close() {
	if a.AnalysisHandler != nil {
		a.AnalysisHandler.Wait()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
}

// buildDB opens the configured database. Dev-like environments fall back to
// in-memory storage when it cannot be reached.
func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, string, error) {
	var (
		dialect string
		dsn     string
		opts    db.Options
	)
	switch cfg.DBDriver {
	case config.DriverMemory:
		telemetry.Info("bootstrap.storage_memory", map[string]any{"reason": "DB_DRIVER=memory"})
		return nil, config.DriverMemory, nil
	case config.DriverSQLite:
		dialect, dsn, opts = db.DialectSQLite, cfg.SQLitePath, db.OptionsFromEnv(db.DefaultSQLiteOptions())
	default:
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			if cfg.IsDevLike() {
				telemetry.Warn("bootstrap.storage_memory", map[string]any{"reason": "DATABASE_URL empty"})
				return nil, config.DriverMemory, nil
			}
			return nil, "", fmt.Errorf("DATABASE_URL is required")
		}
		dialect, dsn, opts = db.DialectPostgres, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultServerOptions())
	}

	sqlDB, err := db.Connect(ctx, dialect, dsn, opts)
	if err == nil && cfg.AutoMigrate {
		if err = db.RunMigrations(ctx, sqlDB, dialect); err != nil {
			_ = sqlDB.Close()
			sqlDB = nil
		}
	}
	if err != nil {
		if cfg.IsDevLike() {
			telemetry.Warn("bootstrap.storage_memory", map[string]any{
				"reason":  "database unavailable",
				"dialect": dialect,
				"error":   err.Error(),
			})
			return nil, config.DriverMemory, nil
		}
		return nil, "", err
	}
	return sqlDB, dialect, nil
}

func buildServices(ctx context.Context, app *App) error {
	var analysisRepo analyses.Repo
	var usageSvc *usage.Service
	if app.DB != nil {
		analysisRepo = analyses.NewSQLRepo(app.DB, analyses.Dialect(app.Storage))
		usageSvc = usage.NewSQLService(usage.NewSQLStore(app.DB, app.Storage))
	} else {
		analysisRepo = analyses.NewMemoryRepo()
		usageSvc = usage.NewService()
	}

	var analyzer analyses.Analyzer = analysisapi.PlaceholderClient{}
	if strings.TrimSpace(app.Config.AnalysisAPIURL) != "" {
		client, err := analysisapi.NewClient(app.Config.AnalysisAPIURL, app.Config.AnalysisAPITimeout)
		if err != nil {
			return err
		}
		analyzer = client
	}

	analysisSvc := analyses.NewService(analysisRepo, usageSvc)
	registry := selection.NewRegistry(analysisSvc)

	app.AnalysesRepo = analysisRepo
	app.UsageService = usageSvc
	app.AnalysesService = analysisSvc
	app.Selections = registry
	app.AnalysisHandler = analyses.NewHandler(analysisSvc, analyzer, repometa.NewEnricher(ctx, app.Config.GitHubToken))
	app.SelectionHandler = selection.NewHandler(registry)
	app.UsageHandler = usage.NewHandler(usageSvc)
	app.ExportHandler = export.NewHandler(analysisSvc, app.Archive)

	if app.AnalysisHandler == nil || app.SelectionHandler == nil || app.UsageHandler == nil {
		return errors.New("failed to initialize handlers")
	}
	return nil
}

func buildArchive(ctx context.Context, cfg config.Config) (object.Store, error) {
	switch cfg.ObjectStoreType {
	case config.ObjectStoreS3:
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}
