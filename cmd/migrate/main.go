package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/fabricmgmt/eventing-backend/pkg/config"
	"github.com/fabricmgmt/eventing-backend/pkg/db"
	"github.com/fabricmgmt/eventing-backend/pkg/logger"
	"github.com/fabricmgmt/eventing-backend/pkg/migrate"
)

type migrateFlags struct {
	cmd     string
	dir     string
	name    string
	version string
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})

	_ = godotenv.Load()

	var flags migrateFlags
	flag.StringVar(&flags.cmd, "cmd", "up", "migration command: up|down|status|version|create|validate")
	flag.StringVar(&flags.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	flag.StringVar(&flags.name, "name", "", "migration name (for create)")
	flag.StringVar(&flags.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": flags.cmd,
		"dir": flags.dir,
	})

	// create and validate only touch the migrations directory.
	if done, err := runLocal(flags); done {
		fail(err)
		return
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to connect to database", err)
		os.Exit(1)
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		logg.Error(ctx, "failed to unwrap sql database", err)
		os.Exit(1)
	}

	fail(runAgainstDB(ctx, sqlDB, flags))
}

func runLocal(flags migrateFlags) (bool, error) {
	switch flags.cmd {
	case "create":
		if flags.name == "" {
			return true, fmt.Errorf("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(flags.dir, flags.name)
		if err != nil {
			return true, fmt.Errorf("failed to create migration: %w", err)
		}
		fmt.Println("created migration:", path)
		return true, nil

	case "validate":
		if err := migrate.ValidateDir(flags.dir); err != nil {
			return true, fmt.Errorf("migration validation failed: %w", err)
		}
		fmt.Println("migration validation passed")
		return true, nil
	}
	return false, nil
}

func runAgainstDB(ctx context.Context, sqlDB *sql.DB, flags migrateFlags) error {
	switch flags.cmd {
	case "up", "down", "status":
		if err := migrate.Run(ctx, sqlDB, flags.dir, flags.cmd); err != nil {
			return fmt.Errorf("goose %s failed: %w", flags.cmd, err)
		}
		return nil

	case "version":
		if flags.version == "" {
			return fmt.Errorf("missing -version for version command")
		}
		if err := migrate.MigrateToVersion(ctx, sqlDB, flags.dir, flags.version); err != nil {
			return fmt.Errorf("goose version migrate failed: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("unknown -cmd value: %s", flags.cmd)
	}
}

func fail(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
