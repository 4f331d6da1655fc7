package main

import (
	"context"
	"errors"
	"flag"
	"time"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/dvloznov/transaction-etl/internal/config"
	"github.com/dvloznov/transaction-etl/internal/logger"
	"github.com/dvloznov/transaction-etl/internal/store"
	"github.com/dvloznov/transaction-etl/migrations"
)

func main() {
	log := logger.New()

	down := flag.Bool("down", false, "Roll the schema back instead of migrating up")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Configuration error")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := store.Open(ctx, cfg.DB.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot reach the store")
	}
	defer db.Close()

	driver, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
	if err != nil {
		log.Fatal().Err(err).Msg("Migration driver error")
	}
	src, err := iofs.New(migrations.FS, "postgres")
	if err != nil {
		log.Fatal().Err(err).Msg("Migration source error")
	}
	m, err := migrate.NewWithInstance("iofs", src, cfg.DB.Name, driver)
	if err != nil {
		log.Fatal().Err(err).Msg("Migration setup error")
	}

	if *down {
		err = m.Down()
	} else {
		err = m.Up()
	}
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		log.Info().Msg("Schema already up to date")
	case err != nil:
		log.Fatal().Err(err).Msg("Migration failed")
	default:
		log.Info().Bool("down", *down).Msg("Migration applied")
	}
}
