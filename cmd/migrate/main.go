// Command migrate applies, lists or rolls back the site's database
// migrations.
//
//	migrate [-driver sqlite|postgres] [-dsn DSN] up|status|down
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/alim08/tradesite/pkg/database"
	"github.com/alim08/tradesite/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	driver := flag.String("driver", envOr("DB_DRIVER", database.DriverSQLite), "database driver")
	dsn := flag.String("dsn", envOr("DB_DSN", "data/site.db"), "database DSN")
	flag.Parse()

	if err := logger.Init(); err != nil {
		panic("logger init: " + err.Error())
	}
	defer logger.Log.Sync()

	command := flag.Arg(0)
	if command == "" {
		command = "status"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := database.New(ctx, database.NewConfig(*driver, *dsn))
	if err != nil {
		logger.Log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := run(ctx, db, command); err != nil {
		logger.Log.Fatal("migrate failed", zap.String("command", command), zap.Error(err))
	}
}

func run(ctx context.Context, db *database.DB, command string) error {
	switch command {
	case "up":
		return db.RunMigrations(ctx)
	case "down":
		return db.RollbackMigration(ctx)
	case "status":
		status, err := db.GetMigrationStatus(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			return err
		}
		logger.Log.Info("migration status", zap.Int("pending", database.Pending(status)))
		return nil
	default:
		return fmt.Errorf("unknown command %q (want up, status or down)", command)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
