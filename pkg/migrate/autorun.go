package migrate

import (
	"context"
	"fmt"
	"strings"

	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/teamprint-backend/pkg/config"
	"github.com/angelmondragon/teamprint-backend/pkg/db"
	"github.com/angelmondragon/teamprint-backend/pkg/logger"
)

// shouldAutoRun gates startup migrations: dev only, opt-in, and only on
// postgres since the embedded SQL is postgres dialect.
func shouldAutoRun(cfg *config.Config) (bool, string) {
	switch {
	case !cfg.App.IsDev():
		return false, "not dev"
	case !cfg.App.AutoMigrate:
		return false, "disabled"
	case !strings.EqualFold(strings.TrimSpace(cfg.DB.Driver), db.DriverPostgres) && strings.TrimSpace(cfg.DB.Driver) != "":
		return false, "driver " + cfg.DB.Driver
	}
	return true, ""
}

// MaybeRunDev brings the schema up to date at startup when shouldAutoRun
// allows it and logs the resulting version.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	run, reason := shouldAutoRun(cfg)
	if !run {
		if cfg.App.AutoMigrate {
			logg.Warn(logg.WithField(ctx, "reason", reason), "migrate.autorun_skipped")
		}
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("migrate: underlying sql.DB: %w", err)
	}
	if err := Run(ctx, sqlDB, "up"); err != nil {
		return err
	}
	version, err := goose.GetDBVersionContext(ctx, sqlDB)
	if err != nil {
		return fmt.Errorf("migrate: read version: %w", err)
	}
	logg.Info(logg.WithField(ctx, "schema_version", version), "migrate.autorun_completed")
	return nil
}
