package main

import (
	"context"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/physio-appointments/internal/config"
	"github.com/hackgods/physio-appointments/internal/db"
	"github.com/hackgods/physio-appointments/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("config load error")
	}
	log := logger.New(cfg.Env, cfg.LogLevel)
	log.Info().Msg("seed starting")

	if cfg.StorageDriver != config.StoragePostgres {
		log.Fatal().Msg("seed needs STORAGE_DRIVER=postgres")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if err := db.Migrate(context.Background(), pool); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}

	therapists := config.GetInt("SEED_THERAPISTS", 20)
	patients := config.GetInt("SEED_PATIENTS", 2000)

	if err := seedPeople(context.Background(), pool, log, "therapists", therapists); err != nil {
		log.Fatal().Err(err).Msg("seed therapists")
	}
	if err := seedPeople(context.Background(), pool, log, "patients", patients); err != nil {
		log.Fatal().Err(err).Msg("seed patients")
	}

	log.Info().Int("therapists", therapists).Int("patients", patients).Msg("seed complete")
}

// seedPeople inserts count fake profiles into table in batches.
func seedPeople(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger, table string, count int) error {
	log.Info().Str("table", table).Int("count", count).Msg("seeding")

	const batchSize = 500

	// table is one of two literals above, never user input.
	insert := `INSERT INTO ` + table + ` (id, name, email, phone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())`

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			var email any
			// Some people have no email on file; notifications skip them.
			if gofakeit.Number(1, 10) > 1 {
				email = gofakeit.Email()
			}

			_, err := tx.Exec(ctx, insert, uuid.New(), gofakeit.Name(), email, gofakeit.Phone())
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Info().Str("table", table).Msgf("seeded %d/%d", end, count)
	}

	return nil
}
