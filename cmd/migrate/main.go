package main

import (
	"errors"
	"flag"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/kwizz/kwizz-go/db"
	"github.com/kwizz/kwizz-go/internal/config"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	down := flag.Bool("down", false, "roll back one migration instead of applying all")
	flag.Parse()

	if err := config.LoadDotEnv(".env"); err != nil {
		log.Warn().Err(err).Msg("failed to load .env")
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal().Msg("DATABASE_URL is not set")
	}

	if !*down {
		if err := db.Up(dsn); err != nil {
			log.Fatal().Err(err).Msg("database migration failed")
		}
		log.Info().Msg("database migrations applied")
		return
	}

	m, err := db.NewMigrator(dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("migration setup failed")
	}
	defer m.Close()
	if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatal().Err(err).Msg("rollback failed")
	}
	log.Info().Msg("rolled back one migration")
}
