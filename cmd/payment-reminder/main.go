package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/physio-appointments/internal/appointment"
	"github.com/hackgods/physio-appointments/internal/config"
	"github.com/hackgods/physio-appointments/internal/db"
	"github.com/hackgods/physio-appointments/internal/directory"
	"github.com/hackgods/physio-appointments/internal/logger"
	"github.com/hackgods/physio-appointments/internal/notify"
	"github.com/hackgods/physio-appointments/internal/payment"
	redisclient "github.com/hackgods/physio-appointments/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("config load error")
	}

	log := logger.New(cfg.Env, cfg.LogLevel)
	if cfg.StorageDriver != config.StoragePostgres {
		log.Fatal().Str("storage", cfg.StorageDriver).Msg("payment-reminder needs STORAGE_DRIVER=postgres")
	}

	log.Info().
		Str("env", cfg.Env).
		Dur("interval", cfg.ReminderInterval).
		Dur("after", cfg.ReminderAfter).
		Msg("payment-reminder starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("error closing redis")
		}
	}()
	log.Info().Msg("connected to Redis")

	var mailer notify.Dispatcher = notify.NewLogDispatcher(log)
	if cfg.SMTPHost != "" {
		mailer = notify.NewSMTPDispatcher(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.MailFrom)
	}

	dir := directory.NewPgDirectory(pgPool)
	locker := redisclient.NewRedisLocker(rdb, cfg.LockTTL)
	appointments := appointment.NewService(appointment.NewPgRepository(pgPool), dir, locker, cfg, log)
	svc := payment.NewService(payment.NewPgRepository(pgPool), appointments, dir, locker, mailer, cfg, log)

	// Run once at startup
	runOnce(rootCtx, svc, log)

	ticker := time.NewTicker(cfg.ReminderInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info().Msg("shutdown signal received, stopping payment-reminder")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, log)
		}
	}
}

func runOnce(ctx context.Context, svc *payment.Service, log zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	start := time.Now()
	sent, err := svc.RemindPending(runCtx)
	if err != nil {
		log.Error().Err(err).Msg("reminder run error")
		return
	}
	log.Info().Int("sent", sent).Dur("took", time.Since(start)).Msg("reminder run complete")
}
