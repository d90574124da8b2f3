package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/mmk-site-audit/config"
	"github.com/target/mmk-site-audit/internal/adapters/checks"
	"github.com/target/mmk-site-audit/internal/adapters/fetcher"
	"github.com/target/mmk-site-audit/internal/adapters/pagespeed"
	"github.com/target/mmk-site-audit/internal/adapters/reaper"
	"github.com/target/mmk-site-audit/internal/core"
	"github.com/target/mmk-site-audit/internal/data"
	"github.com/target/mmk-site-audit/internal/domain/scoring"
	httpx "github.com/target/mmk-site-audit/internal/http"
	"github.com/target/mmk-site-audit/internal/observability/notify"
	"github.com/target/mmk-site-audit/internal/observability/notify/pagerduty"
	"github.com/target/mmk-site-audit/internal/observability/notify/slack"
	"github.com/target/mmk-site-audit/internal/observability/statsd"
	"github.com/target/mmk-site-audit/internal/service"
	"github.com/target/mmk-site-audit/internal/service/failurenotifier"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Audits *service.AuditService
	// History is nil when Postgres is disabled.
	History *data.AuditHistoryRepo
	// Archive is nil when Redis is disabled.
	Archive       *core.ResultArchive
	Health        []httpx.HealthCheck
	Observability ObservabilityContainer
}

// ObservabilityContainer holds the StatsD client and the alert notifier.
type ObservabilityContainer struct {
	// Metrics is nil when metrics are disabled or the agent could not be dialed.
	Metrics *statsd.Client
	Alerts  *failurenotifier.Service
}

// Sink returns the metrics sink, or nil when metrics are disabled.
//
//nolint:ireturn // callers take the interface so a disabled client stays a true nil.
func (o ObservabilityContainer) Sink() statsd.Sink {
	if o.Metrics == nil {
		return nil
	}
	return o.Metrics
}

func (o ObservabilityContainer) Close() error {
	return o.Metrics.Close()
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	if logger == nil {
		logger = slog.Default()
	}

	var obs ObservabilityContainer
	if cfg.Metrics.Enabled {
		client, err := statsd.NewClient(statsd.Config{
			Enabled:    true,
			Address:    cfg.Metrics.StatsdAddress,
			Prefix:     cfg.Metrics.Prefix,
			GlobalTags: cfg.Metrics.GlobalTags(),
			Logger:     logger,
		})
		if err != nil {
			logger.Warn("metrics disabled, statsd agent unreachable", "address", cfg.Metrics.StatsdAddress, "error", err)
		} else {
			obs.Metrics = client
		}
	}
	obs.Alerts = buildFailureNotifier(logger, cfg.Alerts, obs.Sink())
	return obs
}

func buildFailureNotifier(logger *slog.Logger, cfg config.AlertsConfig, metrics statsd.Sink) *failurenotifier.Service {
	logger = logger.With("component", "failure_notifier")
	opts := failurenotifier.Options{
		Logger:         logger,
		Metrics:        metrics,
		Cooldown:       cfg.Cooldown,
		NotifyDegraded: cfg.NotifyDegraded,
	}
	if cfg.Enabled {
		opts.Destinations = alertDestinations(logger, cfg)
	}
	return failurenotifier.NewService(opts)
}

// alertDestinations builds a client per enabled sink. A sink that fails to build is logged
// and skipped so the other one still alerts.
func alertDestinations(logger *slog.Logger, cfg config.AlertsConfig) []failurenotifier.Destination {
	var dests []failurenotifier.Destination
	add := func(name string, sink notify.Sink, err error) {
		if err != nil {
			logger.Error("alert sink disabled", "sink", name, "error", err)
			return
		}
		dests = append(dests, failurenotifier.Destination{Name: name, Sink: sink})
	}

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL:      cfg.Slack.WebhookURL,
			Channel:         cfg.Slack.Channel,
			Username:        cfg.Slack.Username,
			ReportURLPrefix: cfg.Slack.ReportURLPrefix,
			Timeout:         cfg.Timeout,
			RetryLimit:      cfg.RetryLimit,
		})
		add("slack", client, err)
	}
	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		add("pagerduty", client, err)
	}
	return dests
}

// auditCollaborators groups the adapters the audit service fans out to.
type auditCollaborators struct {
	fetcher     core.PageFetcher
	checks      core.CheckRegistry
	performance core.PerformanceClient
	engine      *scoring.Engine
}

func buildCollaborators(cfg *config.AppConfig, logger *slog.Logger) (auditCollaborators, error) {
	policy, err := cfg.Scoring.Policy()
	if err != nil {
		return auditCollaborators{}, fmt.Errorf("scoring policy: %w", err)
	}
	engine, err := scoring.NewEngine(policy)
	if err != nil {
		return auditCollaborators{}, fmt.Errorf("scoring engine: %w", err)
	}

	registry, err := checks.DefaultRegistry(checks.Options{
		UserAgent:            cfg.Audit.UserAgent,
		RDAPEndpoint:         cfg.Checks.RDAPEndpoint,
		LinkCheckLimit:       cfg.Checks.LinkCheckLimit,
		LinkCheckTimeout:     cfg.Checks.LinkCheckTimeout,
		LinkCheckConcurrency: cfg.Checks.LinkCheckConcurrency,
	})
	if err != nil {
		return auditCollaborators{}, fmt.Errorf("check registry: %w", err)
	}

	return auditCollaborators{
		fetcher: fetcher.New(fetcher.Config{
			Timeout:      cfg.Audit.FetchTimeout,
			UserAgent:    cfg.Audit.UserAgent,
			MaxBodyBytes: cfg.Audit.MaxBodyBytes,
		}),
		checks: registry,
		performance: pagespeed.New(pagespeed.Config{
			Endpoint:    cfg.PageSpeed.Endpoint,
			Timeout:     cfg.PageSpeed.Timeout,
			MaxAttempts: cfg.PageSpeed.MaxAttempts,
			Logger:      logger.With("component", "pagespeed"),
		}),
		engine: engine,
	}, nil
}

// NewServices wires the audit service and its optional persistence and notification layers.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps with config are required")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	collab, err := buildCollaborators(cfg, logger)
	if err != nil {
		return ServiceContainer{}, err
	}

	observability := buildObservability(logger, cfg.Observability)
	container := ServiceContainer{Observability: observability}

	var recorders []core.AuditRecorder
	if deps.DB != nil {
		container.History = data.NewAuditHistoryRepo(deps.DB)
		recorders = append(recorders, container.History)
		db := deps.DB
		container.Health = append(container.Health, httpx.HealthCheck{Name: "postgres", Check: db.PingContext})
	}
	if deps.RedisClient != nil {
		cacheRepo := data.NewRedisCacheRepo(deps.RedisClient)
		container.Archive = core.NewResultArchive(core.ResultArchiveOptions{
			Cache:  cacheRepo,
			TTL:    cfg.Cache.TTL,
			Logger: logger,
		})
		container.Health = append(container.Health, httpx.HealthCheck{Name: "redis", Check: cacheRepo.Health})
	}
	if observability.Alerts.Enabled() {
		recorders = append(recorders, observability.Alerts)
	}

	audits, err := service.NewAuditService(service.AuditServiceOptions{
		Store: data.NewJobStore(data.JobStoreOptions{}),
		Cache: data.NewAuditCache(data.AuditCacheConfig{
			TTL:        cfg.Cache.TTL,
			MaxEntries: cfg.Cache.MaxEntries,
		}),
		Fetcher:     collab.fetcher,
		Checks:      collab.checks,
		Performance: collab.performance,
		Scoring:     collab.engine,
		Archive:     container.Archive,
		Recorders:   recorders,
		Metrics:     observability.Sink(),
		Logger:      logger.With("component", "audit_service"),
		Settings: service.AuditSettings{
			Slots:         cfg.Audit.Slots,
			AuditTimeout:  cfg.Audit.Timeout,
			CallTimeout:   cfg.Audit.CallTimeout,
			FetchTimeout:  cfg.Audit.FetchTimeout,
			DefaultAPIKey: cfg.PageSpeed.APIKey,
		},
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create audit service: %w", err)
	}
	container.Audits = audits

	return container, nil
}

// ServiceOrchestrationConfig contains dependencies for running the enabled services.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

// startHTTPServerIfEnabled starts the HTTP server if enabled.
func startHTTPServerIfEnabled(deps *serviceStartupDeps) (*http.Server, error) {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeHTTP] {
		return nil, nil
	}
	return StartHTTPServer(&HTTPServerConfig{
		Config:   deps.cfg.Config,
		Services: deps.cfg.Services,
		Logger:   deps.logger,
		ErrCh:    deps.errCh,
	})
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				deps.logger.WarnContext(ctx, "dropping background service error",
					"service", descriptor.name,
					"error", errMsg,
				)
			}
		}
	}()

	deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)

	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}

		handles = append(handles, backgroundServiceHandle{
			mode: svc.mode,
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func newReaperBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeReaper,
		name: "reaper",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil || deps.cfg.Config == nil {
				return nil
			}
			runner, err := reaper.NewRunner(reaperOptions(deps.cfg, deps.logger))
			if err != nil {
				return fmt.Errorf("create reaper runner: %w", err)
			}
			return runner.Run(ctx)
		},
	}
}

// reaperOptions prunes the serving process's jobs plus, with Postgres enabled, its history.
func reaperOptions(cfg *ServiceOrchestrationConfig, logger *slog.Logger) reaper.RunnerOptions {
	opts := reaper.RunnerOptions{
		Config:  cfg.Config.Reaper,
		Logger:  logger,
		Metrics: cfg.Services.Observability.Sink(),
	}
	if cfg.Services.Audits != nil {
		opts.Jobs = cfg.Services.Audits
	}
	// a nil repo must not become a non-nil interface
	if cfg.Services.History != nil {
		opts.History = cfg.Services.History
	}
	return opts
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	return []backgroundService{
		newReaperBackgroundService(deps),
	}
}

// ServiceStartupResult holds the results of starting all services.
type ServiceStartupResult struct {
	HTTPServer *http.Server
	Background []backgroundServiceHandle
}

// startServices binds the HTTP listener first, then launches background services. Nothing
// runs in the background when the bind fails.
func startServices(deps *serviceStartupDeps) (ServiceStartupResult, error) {
	server, err := startHTTPServerIfEnabled(deps)
	if err != nil {
		return ServiceStartupResult{}, err
	}
	return ServiceStartupResult{
		HTTPServer: server,
		Background: startBackgroundServices(deps, buildBackgroundServices(deps)),
	}, nil
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}
	if cfg.Services.Audits == nil {
		return errors.New("service orchestration config missing audit service")
	}

	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Determine which services are enabled
	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	// Start all enabled services
	result, err := startServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	})
	if err != nil {
		return fmt.Errorf("start services: %w", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	// Wait for shutdown signal or error
	return waitForShutdown(shutdownConfig{
		quit:            quit,
		cancel:          cancel,
		errCh:           errCh,
		httpServer:      result.HTTPServer,
		audits:          cfg.Services.Audits,
		logger:          logger,
		backgrounds:     result.Background,
		shutdownTimeout: cfg.Config.HTTP.ShutdownTimeout,
	})
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	count := 0
	for _, mode := range config.ValidServiceModes() {
		if enabled[mode] {
			count++
		}
	}
	return count
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	size := errorChannelCapacity(enabled) + 1
	if size < 1 {
		return 1
	}
	return size
}

// auditShutdowner is the part of the audit service gracefulStop needs.
type auditShutdowner interface {
	Shutdown(ctx context.Context) error
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	quit            <-chan os.Signal
	cancel          context.CancelFunc
	errCh           <-chan error
	httpServer      *http.Server
	audits          auditShutdowner
	logger          *slog.Logger
	backgrounds     []backgroundServiceHandle
	shutdownTimeout time.Duration
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	select {
	case <-cfg.quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel() // Cancel service context before waiting
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel() // Cancel service context before waiting
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop stops accepting requests, fails outstanding audits and waits for
// background services.
func gracefulStop(cfg shutdownConfig) error {
	timeout := cfg.shutdownTimeout
	if timeout <= 0 {
		timeout = shutdownWaitTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if cfg.httpServer != nil {
		if err := ShutdownHTTPServer(ShutdownConfig{
			Context: shutdownCtx,
			Server:  cfg.httpServer,
			Logger:  cfg.logger,
		}); err != nil {
			errs = append(errs, err)
		}
	}

	if cfg.audits != nil {
		if err := cfg.audits.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown audit service: %w", err))
		} else {
			cfg.logger.Info("audit service stopped")
		}
	}

	// Wait for background services to finish
	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	return errors.Join(errs...)
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
