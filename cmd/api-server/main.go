package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/physio-appointments/internal/api"
	"github.com/hackgods/physio-appointments/internal/appointment"
	"github.com/hackgods/physio-appointments/internal/config"
	"github.com/hackgods/physio-appointments/internal/db"
	"github.com/hackgods/physio-appointments/internal/directory"
	"github.com/hackgods/physio-appointments/internal/logger"
	"github.com/hackgods/physio-appointments/internal/memstore"
	"github.com/hackgods/physio-appointments/internal/notify"
	"github.com/hackgods/physio-appointments/internal/payment"
	redisclient "github.com/hackgods/physio-appointments/internal/redis"
)

var version = "dev"

// backend bundles whatever storage driver was selected.
type backend struct {
	appointments appointment.Repository
	payments     payment.Repository
	dir          directory.Directory
	locker       redisclient.Locker
	pgPool       *pgxpool.Pool
	redis        *redis.Client
	close        func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("config load error")
	}

	log := logger.New(cfg.Env, cfg.LogLevel)
	log.Info().
		Str("env", cfg.Env).
		Str("http_port", cfg.HTTPPort).
		Str("storage", cfg.StorageDriver).
		Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var be *backend
	switch cfg.StorageDriver {
	case config.StorageMemory:
		be = memoryBackend(cfg, log)
	default:
		be, err = postgresBackend(rootCtx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("storage setup failed")
		}
	}
	defer be.close()

	var mailer notify.Dispatcher = notify.NewLogDispatcher(log)
	if cfg.SMTPHost != "" {
		mailer = notify.NewSMTPDispatcher(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.MailFrom)
		log.Info().Str("smtp_host", cfg.SMTPHost).Msg("smtp notifications enabled")
	}

	appointments := appointment.NewService(be.appointments, be.dir, be.locker, cfg, log)
	payments := payment.NewService(be.payments, appointments, be.dir, be.locker, mailer, cfg, log)

	router := api.NewRouter(api.RouterConfig{
		Appointments: appointments,
		Payments:     payments,
		Auth:         api.NewAuthenticator(cfg.JWTSecret),
		Logger:       log,
		PgPool:       be.pgPool,
		Redis:        be.redis,
		Env:          cfg.Env,
		Version:      version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func postgresBackend(ctx context.Context, cfg config.Config, log zerolog.Logger) (*backend, error) {
	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(ctx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		return nil, err
	}
	log.Info().Msg("connected to Postgres")

	if err := db.Migrate(ctx, pgPool); err != nil {
		pgPool.Close()
		return nil, err
	}

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		pgPool.Close()
		return nil, err
	}
	log.Info().Str("addr", cfg.RedisAddr).Msg("connected to Redis")

	return &backend{
		appointments: appointment.NewPgRepository(pgPool),
		payments:     payment.NewPgRepository(pgPool),
		dir:          directory.NewPgDirectory(pgPool),
		locker:       redisclient.NewRedisLocker(rdb, cfg.LockTTL),
		pgPool:       pgPool,
		redis:        rdb,
		close: func() {
			if err := rdb.Close(); err != nil {
				log.Error().Err(err).Msg("error closing redis")
			}
			pgPool.Close()
		},
	}, nil
}

// memoryBackend keeps everything in process. In dev it is filled with a few
// fake people and prints tokens to call the API with.
func memoryBackend(cfg config.Config, log zerolog.Logger) *backend {
	store := memstore.New()

	if cfg.IsDev() {
		auth := api.NewAuthenticator(cfg.JWTSecret)
		demo := func(role api.Role, add func(directory.Profile)) {
			p := directory.Profile{
				ID:    uuid.New(),
				Name:  gofakeit.Name(),
				Email: gofakeit.Email(),
				Phone: gofakeit.Phone(),
			}
			add(p)
			token, err := auth.Issue(api.Actor{ID: p.ID, Role: role}, 24*time.Hour)
			if err != nil {
				log.Error().Err(err).Msg("failed to issue demo token")
				return
			}
			log.Info().Str("role", string(role)).Str("id", p.ID.String()).Str("name", p.Name).Str("token", token).Msg("demo actor")
		}
		for i := 0; i < 2; i++ {
			demo(api.RoleTherapist, store.AddTherapist)
			demo(api.RolePatient, store.AddPatient)
		}
		demo(api.RoleAdmin, func(directory.Profile) {})
	}

	log.Warn().Msg("using in-memory storage, data is lost on restart")

	return &backend{
		appointments: store,
		payments:     store,
		dir:          store,
		locker:       store,
		close:        func() {},
	}
}
