package main

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"placewatch/internal/config"
	"placewatch/migrations"
)

func migrateCMD() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate <command>",
		Short: "Run database migrations",
		Long: `Commands:
  up          Migrate to the latest version
  up-one      Migrate one version up
  down        Roll back one version
  status      Show migration status
  version     Show current version
  reset       Roll back all migrations`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"up", "up-one", "down", "status", "version", "reset"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			slog.SetDefault(newLogger(cfg.LogLevel))

			driver := "sqlite"
			if cfg.DatabaseDriver == migrations.DialectPostgres {
				driver = "pgx"
			}
			db, err := sql.Open(driver, cfg.DatabaseDSN())
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer func() { _ = db.Close() }()

			dir, err := migrations.Setup(cfg.DatabaseDriver)
			if err != nil {
				return err
			}

			switch args[0] {
			case "up":
				err = goose.Up(db, dir)
			case "up-one":
				err = goose.UpByOne(db, dir)
			case "down":
				err = goose.Down(db, dir)
			case "status":
				err = goose.Status(db, dir)
			case "version":
				err = goose.Version(db, dir)
			case "reset":
				err = goose.Reset(db, dir)
			default:
				return fmt.Errorf("unknown command: %s", args[0])
			}
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			return nil
		},
	}
}
