package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/jobsync/config"
	"github.com/target/jobsync/internal/adapters/source"
	"github.com/target/jobsync/internal/data"
	"github.com/target/jobsync/internal/observability/notify/pagerduty"
	"github.com/target/jobsync/internal/observability/notify/slack"
	"github.com/target/jobsync/internal/observability/statsd"
	"github.com/target/jobsync/internal/service"
	"github.com/target/jobsync/internal/service/failurenotifier"
)

const shutdownWaitTimeout = 30 * time.Second

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	Metrics         statsd.Sink
	FailureNotifier *failurenotifier.Service

	client *statsd.Client
}

// Close releases the metrics connection.
func (o ObservabilityContainer) Close() error {
	return o.client.Close()
}

// buildObservability configures metrics and notification adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig, tags map[string]string) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	container := ObservabilityContainer{
		Metrics:         statsd.Nop{},
		FailureNotifier: buildFailureNotifier(obsLogger, cfg.Notifications),
	}

	if cfg.Metrics.IsEnabled() {
		client, err := statsd.FromConfig(cfg.Metrics, obsLogger, tags)
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			container.Metrics = client
			container.client = client
		}
	}

	return container
}

func buildFailureNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *failurenotifier.Service {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = slog.Default()
	}

	if !cfg.Enabled {
		return failurenotifier.NewService(failurenotifier.Options{
			Logger: baseLogger.With("component", "failure_notifier"),
		})
	}

	sinks := make([]failurenotifier.SinkRegistration, 0, 2)

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL: cfg.Slack.WebhookURL,
			Channel:    cfg.Slack.Channel,
			Username:   cfg.Slack.Username,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			baseLogger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{
				Name: "slack",
				Sink: client,
			})
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			baseLogger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{
				Name: "pagerduty",
				Sink: client,
			})
		}
	}

	return failurenotifier.NewService(failurenotifier.Options{
		Logger: baseLogger.With("component", "failure_notifier"),
		Sinks:  sinks,
	})
}

// Infra holds the connected backing stores.
type Infra struct {
	DB       *sql.DB
	Redis    redis.UniversalClient
	DocStore *DocStore
	Logger   *slog.Logger
}

// ConnectInfra connects Postgres, Redis and the configured document store, closing whatever
// was opened if a later connection fails.
func ConnectInfra(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*Infra, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	infra := &Infra{Logger: logger}

	dbCfg := DatabaseConfig{DBConfig: cfg.Postgres, RedisConfig: cfg.Redis, Logger: logger}

	db, err := ConnectDB(ctx, dbCfg)
	if err != nil {
		return nil, err
	}
	infra.DB = db

	rdb, err := ConnectRedis(ctx, dbCfg)
	if err != nil {
		return nil, errors.Join(err, infra.Close(ctx))
	}
	infra.Redis = rdb

	docs, err := ConnectDocStore(ctx, DocStoreOptions{
		Config:          cfg,
		DeleteBatchSize: cfg.Sync.DeleteBatchSize,
		Logger:          logger,
	})
	if err != nil {
		return nil, errors.Join(err, infra.Close(ctx))
	}
	infra.DocStore = docs

	return infra, nil
}

// Close releases every connection that was opened.
func (i *Infra) Close(ctx context.Context) error {
	if i == nil {
		return nil
	}
	var errs []error
	if err := i.DocStore.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close document store: %w", err))
	}
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if i.DB != nil {
		if err := i.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config *config.AppConfig
	Infra  *Infra
	Logger *slog.Logger
}

// SyncServices holds the wired reconciliation components.
type SyncServices struct {
	Listings      *data.ListingRepo
	KV            *data.RedisKVRepo
	Source        *source.HTTPSource
	Tracker       *service.LivenessTracker
	Cache         *service.SessionCache
	Writer        *service.FanoutWriter
	Coordinator   *service.Coordinator
	Runner        *service.SyncRunner
	Observability ObservabilityContainer
}

// Close releases observability resources. Infra is closed by its owner.
func (s *SyncServices) Close() error {
	if s == nil {
		return nil
	}
	return s.Observability.Close()
}

// NewSyncServices builds the reconciliation pipeline on top of connected infrastructure.
func NewSyncServices(deps *ServiceDeps) (*SyncServices, error) {
	if deps == nil || deps.Config == nil || deps.Infra == nil {
		return nil, errors.New("config and infra are required")
	}
	if deps.Infra.DocStore == nil {
		return nil, errors.New("document store is required")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	obs := buildObservability(logger, cfg.Observability, map[string]string{
		"docstore": string(deps.Infra.DocStore.Backend),
	})
	svcs := &SyncServices{Observability: obs}

	if err := buildPipeline(svcs, cfg, deps.Infra, logger); err != nil {
		_ = obs.Close()
		return nil, err
	}
	return svcs, nil
}

func buildPipeline(svcs *SyncServices, cfg *config.AppConfig, infra *Infra, logger *slog.Logger) error {
	var err error
	metrics := svcs.Observability.Metrics

	svcs.Listings = data.NewListingRepo(infra.DB, data.ListingRepoOptions{
		DeleteBatchSize: cfg.Sync.DeleteBatchSize,
	})
	svcs.KV = data.NewRedisKVRepo(infra.Redis)

	if svcs.Source, err = source.New(source.Options{Config: cfg.Source, Logger: logger}); err != nil {
		return fmt.Errorf("build source: %w", err)
	}

	if svcs.Tracker, err = service.NewLivenessTracker(service.LivenessTrackerOptions{
		KV:        svcs.KV,
		BatchSize: cfg.Sync.BootstrapBatchSize,
		Logger:    logger,
		Metrics:   metrics,
	}); err != nil {
		return fmt.Errorf("build liveness tracker: %w", err)
	}

	if svcs.Cache, err = service.NewSessionCache(service.SessionCacheOptions{
		KV:            svcs.KV,
		TTL:           cfg.Cache.SessionTTL,
		LocalCapacity: cfg.Cache.LocalCapacity,
		Logger:        logger,
	}); err != nil {
		return fmt.Errorf("build session cache: %w", err)
	}

	if svcs.Writer, err = service.NewFanoutWriter(service.FanoutWriterOptions{
		Relational: svcs.Listings,
		Document:   infra.DocStore.Store,
		Logger:     logger,
		Metrics:    metrics,
	}); err != nil {
		return fmt.Errorf("build fan-out writer: %w", err)
	}

	if svcs.Coordinator, err = service.NewCoordinator(service.CoordinatorOptions{
		Source:            svcs.Source,
		Relational:        svcs.Listings,
		KV:                svcs.KV,
		Tracker:           svcs.Tracker,
		Cache:             svcs.Cache,
		Writer:            svcs.Writer,
		WriteConcurrency:  cfg.Sync.WriteConcurrency,
		FetchRetries:      cfg.Source.MaxRetries,
		RetryBackoff:      cfg.Source.RetryBackoff,
		MaxDeleteFraction: cfg.Sync.MaxDeleteFraction,
		Logger:            logger,
		Metrics:           metrics,
	}); err != nil {
		return fmt.Errorf("build coordinator: %w", err)
	}

	if svcs.Runner, err = service.NewSyncRunner(service.SyncRunnerOptions{
		Runner:      svcs.Coordinator,
		Interval:    cfg.Sync.Interval,
		PassTimeout: cfg.Sync.PassTimeout,
		Notifier:    svcs.Observability.FailureNotifier,
		Logger:      logger,
	}); err != nil {
		return fmt.Errorf("build sync runner: %w", err)
	}

	return nil
}

// RunSync connects infrastructure, applies migrations when enabled and runs the sync runner
// until it finishes or a shutdown signal arrives.
func RunSync(cfg *config.AppConfig, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	infra, err := ConnectInfra(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), shutdownWaitTimeout)
		defer closeCancel()
		if closeErr := infra.Close(closeCtx); closeErr != nil {
			logger.Error("failed to close infrastructure", "error", closeErr)
		}
	}()

	if cfg.Postgres.RunMigrationsOnStart {
		if err := RunMigrations(ctx, infra.DB, logger); err != nil {
			return err
		}
	}

	svcs, err := NewSyncServices(&ServiceDeps{Config: cfg, Infra: infra, Logger: logger})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := svcs.Close(); closeErr != nil {
			logger.Warn("failed to close metrics client", "error", closeErr)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- svcs.Runner.Run(ctx)
	}()

	return waitForShutdown(shutdownConfig{
		cancel: cancel,
		errCh:  errCh,
		logger: logger,
	})
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	cancel context.CancelFunc
	errCh  <-chan error
	logger *slog.Logger
}

// waitForShutdown waits for the runner to return or a shutdown signal. On a signal the
// runner's context is cancelled and it is given shutdownWaitTimeout to unwind.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-cfg.errCh:
		return err
	case sig := <-quit:
		cfg.logger.Info("shutting down sync runner...", "signal", sig.String())
		cfg.cancel()
	}

	select {
	case err := <-cfg.errCh:
		if isShutdownErr(err) {
			return nil
		}
		return err
	case <-time.After(shutdownWaitTimeout):
		cfg.logger.Warn("timeout waiting for sync runner to stop")
		return nil
	}
}

func isShutdownErr(err error) bool {
	return err == nil || errors.Is(err, context.Canceled)
}
