package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/angelmondragon/teamprint-backend/internal/bootstrap"
	"github.com/angelmondragon/teamprint-backend/pkg/db"
	pkgerrors "github.com/angelmondragon/teamprint-backend/pkg/errors"
	"github.com/angelmondragon/teamprint-backend/pkg/migrate"
)

const serviceName = "migrate"

func main() {
	cmd := flag.String("cmd", "up", "up|down|status|version|create|validate")
	dir := flag.String("dir", migrate.DefaultDir, "source directory for -cmd=create")
	name := flag.String("name", "", "migration name for -cmd=create")
	version := flag.String("version", "", "target YYYYMMDDHHMMSS for -cmd=version")
	flag.Parse()

	// create and validate work on files only.
	switch *cmd {
	case "create":
		if *name == "" {
			exit("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(*dir, *name, time.Now())
		if err != nil {
			exit("create migration: %v", err)
		}
		fmt.Println("created migration:", path)
		return
	case "validate":
		if err := migrate.Validate(); err != nil {
			exit("migration validation failed: %v", err)
		}
		fmt.Println("migration validation passed")
		return
	case "up", "down", "status":
	case "version":
		if *version == "" {
			exit("missing -version for version command")
		}
	default:
		exit("unknown -cmd value: %s", *cmd)
	}

	proc, err := bootstrap.Start(serviceName)
	if err != nil {
		os.Exit(1)
	}
	ctx := proc.Logger.WithFields(context.Background(), map[string]any{"env": proc.Config.App.Env, "cmd": *cmd})
	if err := apply(ctx, proc, *cmd, *version); err != nil {
		proc.Exit(proc.Logger.WithFields(ctx, failureFields(err)), err)
	}
	_ = proc.Close()
	proc.Logger.Info(ctx, "migrate.completed")
}

func apply(ctx context.Context, proc *bootstrap.Process, cmd, version string) error {
	sqlDB, err := openSQL(ctx, proc)
	if err != nil {
		return err
	}
	if cmd == "version" {
		return migrate.MigrateToVersion(ctx, sqlDB, version)
	}
	return migrate.Run(ctx, sqlDB, cmd)
}

// openSQL gives goose a lib/pq handle on postgres and falls back to the
// gorm pool for other drivers.
func openSQL(ctx context.Context, proc *bootstrap.Process) (*sql.DB, error) {
	driver := strings.ToLower(strings.TrimSpace(proc.Config.DB.Driver))
	if driver == "" || driver == db.DriverPostgres {
		sqlDB, err := migrate.OpenPostgres(proc.Config.DB.DSN)
		if err != nil {
			return nil, err
		}
		proc.OnClose("database", sqlDB.Close)
		return sqlDB, nil
	}
	// Auto-migrate must not run ahead of an explicit down or version target.
	proc.Config.App.AutoMigrate = false
	client, err := proc.OpenDB(ctx)
	if err != nil {
		return nil, err
	}
	return client.DB().DB()
}

func failureFields(err error) map[string]any {
	dump := pkgerrors.Dump(err)
	fields := map[string]any{"error_chain": dump.Chain}
	if dump.PGCode != "" {
		fields["pg_code"] = dump.PGCode
		fields["pg_message"] = dump.PGMessage
		fields["pg_detail"] = dump.PGDetail
		fields["pg_table"] = dump.PGTable
	}
	return fields
}

func exit(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
