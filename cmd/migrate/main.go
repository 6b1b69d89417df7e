package main

// Run database migrations:
//   go run ./cmd/migrate

import (
	"context"
	"os"

	"onboarding-backend/internal/shared/config"
	"onboarding-backend/internal/shared/storage/db"
	"onboarding-backend/internal/shared/telemetry"
)

func main() {
	cfg := config.Load()
	telemetry.Configure(os.Stdout, cfg.LogLevel)
	ctx := context.Background()

	var dialect, dsn string
	switch cfg.DBDriver {
	case config.DriverSQLite:
		dialect, dsn = db.DialectSQLite, cfg.SQLitePath
	case config.DriverPostgres:
		dialect, dsn = db.DialectPostgres, cfg.DatabaseURL
	default:
		telemetry.Info("migrate.skipped", map[string]any{"driver": cfg.DBDriver})
		return
	}

	opts := db.OptionsFromEnv(db.DefaultMigrateOptions())
	sqlDB, err := db.Connect(ctx, dialect, dsn, opts)
	if err != nil {
		telemetry.Error("migrate.connect_failed", map[string]any{"dialect": dialect, "error": err.Error()})
		os.Exit(1)
	}
	defer sqlDB.Close()

	if err := db.RunMigrations(ctx, sqlDB, dialect); err != nil {
		telemetry.Error("migrate.failed", map[string]any{"dialect": dialect, "error": err.Error()})
		sqlDB.Close()
		os.Exit(1)
	}
	telemetry.Info("migrate.done", map[string]any{"dialect": dialect})
}
