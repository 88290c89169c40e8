package migration

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

// Embed SQL files from the local migrations folder
//
//go:embed migrations/*.sql
var embeddedMigrations embed.FS

const tableName = "goose_db_version"

// gooseLogger routes goose output through zerolog.
type gooseLogger struct {
	logger zerolog.Logger
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Info().Msgf(format, v...)
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Fatal().Msgf(format, v...)
}

// Files lists the embedded migration files in apply order.
func Files() ([]string, error) {
	return fs.Glob(embeddedMigrations, "migrations/*.sql")
}

// Run applies every pending migration on db.
func Run(ctx context.Context, db *sql.DB, logger zerolog.Logger) error {
	logger = logger.With().Str("component", "migration").Logger()

	goose.SetBaseFS(embeddedMigrations)
	goose.SetTableName(tableName)
	goose.SetLogger(gooseLogger{logger: logger})
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info().Msg("migrations completed successfully")
	return nil
}

// RunURL opens dbURL, migrates it and closes the connection.
func RunURL(ctx context.Context, dbURL string, logger zerolog.Logger) error {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return fmt.Errorf("failed to connect to the database: %w", err)
	}
	defer db.Close()
	return Run(ctx, db, logger)
}
