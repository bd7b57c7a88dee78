package database

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"hiss/internal/database/migrations"
	"hiss/internal/middleware"

	"github.com/pressly/goose/v3"
	"gorm.io/gorm"
)

// goose keeps its settings in package globals.
func initGoose() error {
	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(gooseLogger{})
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	return nil
}

type gooseLogger struct{}

func (gooseLogger) Fatalf(format string, v ...any) {
	middleware.Logger.Error(fmt.Sprintf(format, v...))
}

func (gooseLogger) Printf(format string, v ...any) {
	middleware.Logger.Info(fmt.Sprintf(format, v...))
}

// RunMigrations applies every pending embedded SQL migration.
func RunMigrations(ctx context.Context, db *gorm.DB) error {
	if err := initGoose(); err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	if err := goose.UpContext(ctx, sqlDB, "."); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, err := goose.GetDBVersionContext(ctx, sqlDB)
	if err == nil {
		middleware.Logger.Info("Migrations applied", slog.Int64("version", version))
	}
	return nil
}

// RollbackMigration reverts the most recently applied migration.
func RollbackMigration(ctx context.Context, db *gorm.DB) error {
	if err := initGoose(); err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	if err := goose.DownContext(ctx, sqlDB, "."); err != nil {
		return fmt.Errorf("failed to roll back migration: %w", err)
	}
	return nil
}

// MigrationStatus writes the applied/pending state of every migration to w.
func MigrationStatus(ctx context.Context, db *gorm.DB, w io.Writer) error {
	if err := initGoose(); err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	current, err := goose.GetDBVersionContext(ctx, sqlDB)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	files, err := goose.CollectMigrations(".", 0, goose.MaxVersion)
	if err != nil {
		return fmt.Errorf("failed to collect migrations: %w", err)
	}

	for _, m := range files {
		state := "pending"
		if m.Version <= current {
			state = "applied"
		}
		if _, err := fmt.Fprintf(w, "%-8s %d %s\n", state, m.Version, m.Source); err != nil {
			return err
		}
	}
	return nil
}
