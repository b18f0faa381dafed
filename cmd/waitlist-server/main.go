package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"teed-waitlist/internal/admin"
	"teed-waitlist/internal/common/auth"
	"teed-waitlist/internal/common/aws"
	"teed-waitlist/internal/common/camunda"
	"teed-waitlist/internal/common/config"
	"teed-waitlist/internal/common/database"
	"teed-waitlist/internal/common/logger"
	"teed-waitlist/internal/common/observability"
	"teed-waitlist/internal/common/ratelimit"
	"teed-waitlist/internal/scoring/loader"
	"teed-waitlist/internal/scoring/store"
	"teed-waitlist/internal/server"
	"teed-waitlist/internal/waitlist"
	scoreapplicant "teed-waitlist/internal/workers/waitlist/score-applicant"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog).WithFields(map[string]interface{}{
		"service": cfg.App.Name,
		"env":     cfg.App.Environment,
	})

	zapLog.Info("Starting waitlist server...", zap.String("version", cfg.App.Version))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs := observability.New(cfg.App.Name, prometheus.DefaultRegisterer, log)
	defer obs.Shutdown()

	// --- Postgres ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()

	if err := pg.Migrate(ctx); err != nil {
		zapLog.Fatal("schema migration failed", zap.Error(err))
	}
	zapLog.Info("PostgreSQL connected and migrated")

	// --- Redis ---
	rdb := database.NewRedis(cfg.Database.Redis)
	err = retryWithBackoff(func() error {
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	// --- Notifications ---
	var notifier loader.Notifier
	if cfg.Integrations.AWS.SNS.Enabled && cfg.Scoring.NotifyConfigChange {
		sns, err := aws.NewSNSClient(ctx, cfg.Integrations.AWS.Region, cfg.Integrations.AWS.SNS.TopicARN)
		if err != nil {
			zapLog.Fatal("sns client init failed", zap.Error(err))
		}
		notifier = loader.NewEventNotifier(sns)
	}

	var mailer waitlist.Mailer
	if cfg.Integrations.AWS.SES.Enabled {
		ses, err := aws.NewSESClient(ctx, cfg.Integrations.AWS.Region, cfg.Integrations.AWS.SES.FromEmail)
		if err != nil {
			zapLog.Fatal("ses client init failed", zap.Error(err))
		}
		mailer = ses
	}

	// --- Scoring ---
	configStore := store.NewConfigStore(pg.DB)
	historyStore := store.NewHistoryStore(pg.DB)
	scoringConfig := loader.New(configStore, historyStore, log.WithFields(map[string]interface{}{"component": "scoring-config"}), loader.Options{
		CacheTTL: config.GetDuration(cfg.Scoring.CacheTTL),
		EnvVar:   cfg.Scoring.EnvOverrideVar,
		Notifier: notifier,
	})
	if _, source := scoringConfig.GetConfig(ctx, true); source != loader.SourcePersisted {
		zapLog.Warn("scoring config not served from the store", zap.String("source", string(source)))
	}

	applications := waitlist.NewApplicationStore(pg.DB)
	enricher := waitlist.NewEnricher(pg.DB, rdb.Client, config.GetDuration(cfg.Scoring.ProfileCacheTTL), log)
	service := waitlist.NewService(scoringConfig, applications, enricher, mailer, cfg.Waitlist.CapacityLimit, log)

	// --- Auth ---
	var identity auth.IdentityProvider
	switch cfg.Auth.Provider {
	case "keycloak":
		identity = auth.NewKeycloakClient(
			cfg.Auth.Keycloak.URL,
			cfg.Auth.Keycloak.Realm,
			cfg.Auth.Keycloak.ClientID,
			cfg.Auth.Keycloak.ClientSecret,
		)
	default:
		identity = auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience)
	}
	operators := auth.NewProfileOperatorChecker(pg.DB)

	// --- Rate limiting ---
	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		interval := config.GetDuration(cfg.RateLimit.RefillInterval)
		limiter = ratelimit.NewLimiter(cfg.RateLimit.Capacity, interval)
		go sweepLimiter(ctx, limiter, interval, log)
	}

	checks := map[string]server.Pinger{
		"postgres": pg,
		"redis":    rdb,
	}

	// --- Workflow worker ---
	var workers *camunda.Workers
	if cfg.Camunda.Enabled {
		var zb *camunda.Client
		err = retryWithBackoff(func() error {
			var err error
			zb, err = camunda.NewClient(cfg.Camunda)
			return err
		}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		defer zb.Close()
		checks["zeebe"] = zb

		handler := scoreapplicant.NewHandler(&scoreapplicant.Config{
			Timeout:       config.GetDuration(cfg.Camunda.RequestTimeout),
			CapacityLimit: cfg.Waitlist.CapacityLimit,
		}, scoringConfig, applications, enricher, log)

		workers = camunda.NewWorkers(zb.Zeebe(), log)
		workers.Start(camunda.Registration{
			TaskType:      scoreapplicant.TaskType,
			MaxJobsActive: cfg.Camunda.MaxJobsActive,
			Timeout:       config.GetDuration(cfg.Camunda.RequestTimeout),
			Handler:       handler.Handle,
		})
	}

	// --- HTTP ---
	adminHandler := admin.NewHandler(scoringConfig, applications, enricher, historyStore, obs, log, admin.Options{
		CapacityLimit:     cfg.Waitlist.CapacityLimit,
		SimulateMaxSample: cfg.Scoring.SimulateMaxSample,
		StatisticsSample:  cfg.Scoring.StatisticsSample,
	})

	srv := server.New(cfg.Server, server.Deps{
		Admin:     adminHandler,
		Waitlist:  service,
		Identity:  identity,
		Operators: operators,
		Limiter:   limiter,
		Checks:    checks,
	}, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// --- Graceful Shutdown ---
	select {
	case <-ctx.Done():
		zapLog.Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			zapLog.Error("http server stopped", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("http shutdown failed", zap.Error(err))
	}
	if workers != nil {
		workers.Stop()
	}
	zapLog.Info("Waitlist server stopped")
}

// sweepLimiter drops buckets idle for longer than two refill intervals.
func sweepLimiter(ctx context.Context, limiter *ratelimit.Limiter, interval time.Duration, log logger.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := limiter.Sweep(2 * interval); n > 0 {
				log.Debug("rate limit buckets swept", map[string]interface{}{"removed": n, "remaining": limiter.Len()})
			}
		}
	}
}
