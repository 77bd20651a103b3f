package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	assemblyservice "condominia/contexts/governance/assembly-service"
	postgresadapter "condominia/contexts/governance/assembly-service/adapters/postgres"
	redisadapter "condominia/contexts/governance/assembly-service/adapters/redis"
	tenancyadapter "condominia/contexts/governance/assembly-service/adapters/tenancy"
	"condominia/contexts/governance/assembly-service/domain/services"
	"condominia/contexts/governance/assembly-service/ports"
	"condominia/internal/platform/config"
	"condominia/internal/platform/db"
	"condominia/internal/platform/httpserver"
	"condominia/internal/platform/messaging"
	"condominia/internal/platform/metrics"
	"condominia/internal/platform/tenancy"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

const (
	sweepInterval        = time.Minute
	shutdownGracePeriod  = 10 * time.Second
	dedicatedPoolMaxOpen = 5
)

type APIApp struct {
	server  *httpserver.Server
	runtime *runtime
	logger  *slog.Logger
}

type WorkerApp struct {
	module       assemblyservice.Module
	runtime      *runtime
	pollInterval time.Duration
	logger       *slog.Logger
}

// runtime holds the infrastructure shared by every process.
type runtime struct {
	postgres *db.Postgres
	redis    *redis.Client
	router   *tenancy.Router
	registry tenancy.Registry
	metrics  *metrics.Metrics
	bus      *messaging.Bus
	module   assemblyservice.Module
}

func BuildAPI(configPath string) (*APIApp, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := slog.Default().With("service", cfg.ServiceName, "process", "api")
	rt, err := buildRuntime(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &APIApp{
		server:  httpserver.New(rt.module, rt.metrics, logger, normalizeAddr(cfg.HTTPPort)),
		runtime: rt,
		logger:  logger,
	}, nil
}

func BuildWorker(configPath string) (*WorkerApp, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := slog.Default().With("service", cfg.ServiceName, "process", "worker")
	rt, err := buildRuntime(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &WorkerApp{
		module:       rt.module,
		runtime:      rt,
		pollInterval: cfg.OutboxPollInterval,
		logger:       logger,
	}, nil
}

// TenantRegistration describes a residential complex to onboard.
type TenantRegistration struct {
	TenantID  string
	TenantKey string
	Name      string
	Schema    string
	DSN       string
}

// ProvisionTenant registers a tenant in public.tenants and opens its handle
// once, which creates the namespace tables.
func ProvisionTenant(ctx context.Context, configPath string, registration TenantRegistration) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.TenantRegistry != config.RegistryPostgres {
		return errors.New("tenant provisioning requires TENANT_REGISTRY=postgres")
	}
	logger := slog.Default().With("service", cfg.ServiceName, "process", "provision")
	rt, err := buildRuntime(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = rt.close()
	}()

	registry, ok := rt.registry.(*tenancy.PostgresRegistry)
	if !ok {
		return errors.New("tenant registry does not accept registrations")
	}
	if err := registry.Register(ctx, tenancy.Tenant{
		TenantID:  registration.TenantID,
		TenantKey: registration.TenantKey,
		Name:      registration.Name,
		Schema:    registration.Schema,
		DSN:       registration.DSN,
	}); err != nil {
		return fmt.Errorf("register tenant %q: %w", registration.TenantKey, err)
	}
	if _, err := rt.router.Resolve(ctx, registration.TenantKey); err != nil {
		return fmt.Errorf("provision tenant %q: %w", registration.TenantKey, err)
	}
	logger.Info("tenant provisioned",
		"event", "bootstrap_tenant_provisioned",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"tenant_key", tenancy.NormalizeKey(registration.TenantKey),
		"schema", registration.Schema,
	)
	return nil
}

func buildRuntime(cfg config.Config, logger *slog.Logger) (*runtime, error) {
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}
	policy, err := decisionPolicy(cfg)
	if err != nil {
		return nil, err
	}

	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	rt := &runtime{postgres: pg, metrics: metrics.New()}

	registry, err := buildRegistry(cfg, pg.DB)
	if err != nil {
		_ = rt.close()
		return nil, err
	}
	rt.registry = registry

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if migrator, ok := registry.(*tenancy.PostgresRegistry); ok {
		if err := migrator.Migrate(ctx); err != nil {
			_ = rt.close()
			return nil, fmt.Errorf("migrate tenant registry: %w", err)
		}
	}

	router, err := tenancy.NewRouter(registry, tenancy.PostgresConnector{
		Shared: pg.DB,
		Dial: func(ctx context.Context, dsn string) (*gorm.DB, error) {
			return db.Dial(ctx, dsn, db.PoolOptions{MaxOpenConns: dedicatedPoolMaxOpen, MaxIdleConns: 1})
		},
	}, tenancy.Options{
		CacheSize:    cfg.TenantCacheSize,
		IdleTimeout:  cfg.TenantIdleTimeout,
		Provisioners: []tenancy.Provisioner{postgresadapter.Provisioner{Logger: logger}},
		Observer:     rt.metrics.RouterObserver(),
		Logger:       logger,
	})
	if err != nil {
		_ = rt.close()
		return nil, err
	}
	rt.router = router

	journal := postgresadapter.NewJournal(pg.DB, logger)
	if err := journal.Migrate(ctx); err != nil {
		_ = rt.close()
		return nil, err
	}

	var idempotency ports.IdempotencyStore = journal
	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			_ = rt.close()
			return nil, fmt.Errorf("connect redis %s: %w", addr, err)
		}
		rt.redis = client
		idempotency = redisadapter.NewIdempotencyStore(client, "", logger)
	}

	rt.bus = messaging.NewBus(cfg.KafkaBrokers, logger)
	rt.module = assemblyservice.NewModule(assemblyservice.Dependencies{
		Tenants: tenancyadapter.Gateway{
			Router: router,
			Bind:   tenancyadapter.PostgresBinder(logger),
			Logger: logger,
		},
		Idempotency:    idempotency,
		Outbox:         journal,
		OutboxRows:     journal,
		Publisher:      rt.bus,
		Subscriber:     rt.bus,
		Dedup:          journal,
		Clock:          postgresadapter.SystemClock{},
		IDGen:          postgresadapter.UUIDGenerator{},
		IdempotencyTTL: 7 * 24 * time.Hour,
		Policy:         policy,
		Logger:         logger,
	})
	return rt, nil
}

func buildRegistry(cfg config.Config, shared *gorm.DB) (tenancy.Registry, error) {
	switch cfg.TenantRegistry {
	case config.RegistryFile:
		return tenancy.LoadFileRegistry(cfg.TenantRegistryFile)
	default:
		return tenancy.NewPostgresRegistry(shared), nil
	}
}

func decisionPolicy(cfg config.Config) (services.DecisionPolicy, error) {
	ordinary, err := services.ParseDecisionRule(cfg.DecisionRuleOrdinary, cfg.QualifiedMajorityThreshold)
	if err != nil {
		return services.DecisionPolicy{}, fmt.Errorf("DECISION_RULE_ORDINARY: %w", err)
	}
	extraordinary, err := services.ParseDecisionRule(cfg.DecisionRuleExtraordinary, cfg.QualifiedMajorityThreshold)
	if err != nil {
		return services.DecisionPolicy{}, fmt.Errorf("DECISION_RULE_EXTRAORDINARY: %w", err)
	}
	return services.DecisionPolicy{Ordinary: ordinary, Extraordinary: extraordinary}, nil
}

func (rt *runtime) close() error {
	var errs []error
	if rt.router != nil {
		errs = append(errs, rt.router.Close())
	}
	if rt.redis != nil {
		errs = append(errs, rt.redis.Close())
	}
	if rt.postgres != nil {
		errs = append(errs, rt.postgres.Close())
	}
	return errors.Join(errs...)
}

func (a *APIApp) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.runtime.router.Run(ctx, sweepInterval)
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Start()
	}()
	a.logger.Info("api app started",
		"event", "bootstrap_api_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
	)

	var err error
	select {
	case err = <-errCh:
	case <-ctx.Done():
		shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownGracePeriod)
		err = a.server.Shutdown(shutdownCtx)
		stop()
	}
	cancel()
	wg.Wait()
	return err
}

func (a *APIApp) Close() error {
	return a.runtime.close()
}

func (w *WorkerApp) Run(ctx context.Context) error {
	go w.runtime.router.Run(ctx, sweepInterval)
	if err := w.module.ResultPublisher.Start(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", w.pollInterval.String(),
	)

	for {
		if _, err := w.module.OutboxRelay.RunOnce(ctx); err != nil {
			w.logger.Warn("outbox relay cycle failed",
				"event", "bootstrap_worker_outbox_cycle_failed",
				"module", "internal/app/bootstrap",
				"layer", "platform",
				"error", err.Error(),
			)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *WorkerApp) Close() error {
	return w.runtime.close()
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
