package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	httpapi "github.com/aet-hub/aet-hub/internal/api/http"
	"github.com/aet-hub/aet-hub/internal/application/auth"
	"github.com/aet-hub/aet-hub/internal/application/fleet"
	"github.com/aet-hub/aet-hub/internal/application/history"
	"github.com/aet-hub/aet-hub/internal/application/ledger"
	"github.com/aet-hub/aet-hub/internal/application/license"
	"github.com/aet-hub/aet-hub/internal/application/notification"
	"github.com/aet-hub/aet-hub/internal/application/transition"
	"github.com/aet-hub/aet-hub/internal/application/user"
	"github.com/aet-hub/aet-hub/internal/config"
	domainHistory "github.com/aet-hub/aet-hub/internal/domain/history"
	domainLedger "github.com/aet-hub/aet-hub/internal/domain/ledger"
	domainLicense "github.com/aet-hub/aet-hub/internal/domain/license"
	domainSession "github.com/aet-hub/aet-hub/internal/domain/session"
	domainTransporter "github.com/aet-hub/aet-hub/internal/domain/transporter"
	domainUser "github.com/aet-hub/aet-hub/internal/domain/user"
	domainVehicle "github.com/aet-hub/aet-hub/internal/domain/vehicle"
	"github.com/aet-hub/aet-hub/internal/infrastructure/memory"
	"github.com/aet-hub/aet-hub/internal/infrastructure/postgres"
	"github.com/aet-hub/aet-hub/internal/infrastructure/redislock"
	"github.com/aet-hub/aet-hub/internal/infrastructure/sse"
	"github.com/aet-hub/aet-hub/internal/infrastructure/storage"
	"github.com/aet-hub/aet-hub/internal/metrics"
)

type repositories struct {
	users        domainUser.Repository
	sessions     domainSession.Repository
	transporters domainTransporter.Repository
	vehicles     domainVehicle.Repository
	licenses     domainLicense.Repository
	ledger       domainLedger.Repository
	history      domainHistory.Repository
	tx           domainLicense.TxRunner
	close        func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		zerolog.New(os.Stderr).Fatal().Err(err).Msg("config error")
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repos, err := openRepositories(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("storage error")
	}
	defer repos.close()

	signKey, err := cfg.SigningKey()
	if err != nil {
		logger.Fatal().Err(err).Msg("signing key error")
	}
	if signKey == nil {
		logger.Warn().Msg("history signing key not set; status history will not be signed")
	}

	// metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	licenseMetrics := metrics.NewLicenseMetrics(reg)
	jobMetrics := metrics.NewJobMetrics(reg)

	// infrastructure
	sseHub := sse.NewHub(licenseMetrics)
	defer sseHub.Stop()
	files, err := storage.New(storage.Options{
		Bucket:          cfg.S3Bucket,
		Region:          cfg.S3Region,
		Endpoint:        cfg.S3Endpoint,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
		LocalDir:        cfg.UploadDir,
		PublicBaseURL:   cfg.PublicBaseURL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("storage setup error")
	}

	// services
	policy, err := ledger.NewBlockPolicy(cfg.ConflictBlockRule, cfg.RenewalWindowDays)
	if err != nil {
		logger.Fatal().Err(err).Msg("conflict block rule error")
	}
	publisher := notification.NewService(sseHub, logger)
	conflicts := ledger.NewConflictValidator(repos.ledger, policy, licenseMetrics, logger)
	syncer := ledger.NewSyncer(repos.ledger, repos.vehicles, logger)
	historySvc := history.NewService(repos.history, logger, signKey)
	authSvc := auth.NewService(repos.users, repos.sessions, cfg.SessionTTL, cfg.BootstrapToken, logger)
	userSvc := user.NewService(repos.users, logger)
	fleetSvc := fleet.NewService(repos.transporters, repos.vehicles, logger)
	licenseSvc := license.NewService(license.Params{
		Repo:         repos.licenses,
		Tx:           repos.tx,
		Transporters: repos.transporters,
		Vehicles:     repos.vehicles,
		Conflicts:    conflicts,
		Publisher:    publisher,
		Logger:       logger,
	})
	transitionSvc := transition.NewService(transition.Params{
		Licenses:             repos.licenses,
		Tx:                   repos.tx,
		History:              historySvc,
		Ledger:               syncer,
		Storage:              files,
		Publisher:            publisher,
		Metrics:              licenseMetrics,
		NumberOptionalStates: cfg.NumberOptionalStates,
		Logger:               logger,
	})

	reconcilerParams := ledger.ReconcilerParams{
		Licenses:    repos.licenses,
		Ledger:      repos.ledger,
		Syncer:      syncer,
		Jobs:        jobMetrics,
		SyncMetrics: licenseMetrics,
		Logger:      logger,
	}
	if cfg.RedisURL != "" {
		client, err := redislock.Dial(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis error")
		}
		defer client.Close()
		lock, err := redislock.New(client, redislock.Key(ledger.ReconcileJobName), 0)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis lock error")
		}
		reconcilerParams.Lock = lock
	}
	reconciler, err := ledger.NewReconciler(reconcilerParams)
	if err != nil {
		logger.Fatal().Err(err).Msg("reconciler error")
	}

	uploadDir := ""
	if cfg.S3Bucket == "" {
		uploadDir = cfg.UploadDir
	}
	apiServer := httpapi.NewServer(httpapi.Deps{
		Auth:                authSvc,
		Users:               userSvc,
		Fleet:               fleetSvc,
		Licenses:            licenseSvc,
		Transitions:         transitionSvc,
		History:             historySvc,
		Ledger:              ledger.NewService(repos.ledger),
		Reconciler:          reconciler,
		Hub:                 sseHub,
		Metrics:             promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		UploadDir:           uploadDir,
		SessionCookieName:   cfg.SessionCookieName,
		SessionCookieSecure: cfg.SessionCookieSecure,
		Logger:              logger,
	})

	// Event streams are long-lived, so no write timeout is set; regular routes carry
	// their own request timeout.
	httpServer := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           apiServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// background loops
	go reconciler.Loop(ctx, cfg.ReconcileInterval)

	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := authSvc.PurgeExpired(ctx); err != nil {
					logger.Error().Err(err).Msg("session purge failed")
				} else if n > 0 {
					logger.Info().Int("sessions", n).Msg("expired sessions purged")
				}
			}
		}
	}()

	// start server
	go func() {
		logger.Info().Str("addr", cfg.ServerAddr).Str("db_driver", cfg.DBDriver).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// graceful shutdown
	<-ctx.Done()
	logger.Info().Msg("shutting down")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctxShutdown); err != nil {
		logger.Error().Err(err).Msg("http shutdown error")
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if cfg.LogFormat == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(level).With().Timestamp().Str("app", "aet-hub").Logger()
}

func openRepositories(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*repositories, error) {
	if cfg.DBDriver == config.DriverMemory {
		logger.Warn().Msg("using in-memory storage; data is lost on restart")
		store := memory.NewStore()
		return &repositories{
			users:        store.Users(),
			sessions:     store.Sessions(),
			transporters: store.Transporters(),
			vehicles:     store.Vehicles(),
			licenses:     store.Licenses(),
			ledger:       store.Ledger(),
			history:      store.History(),
			tx:           store.TxManager(),
			close:        func() {},
		}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return &repositories{
		users:        postgres.NewUserRepository(pool),
		sessions:     postgres.NewSessionRepository(pool),
		transporters: postgres.NewTransporterRepository(pool),
		vehicles:     postgres.NewVehicleRepository(pool),
		licenses:     postgres.NewLicenseRepository(pool),
		ledger:       postgres.NewLedgerRepository(pool),
		history:      postgres.NewHistoryRepository(pool),
		tx:           postgres.NewTxManager(pool),
		close:        pool.Close,
	}, nil
}
