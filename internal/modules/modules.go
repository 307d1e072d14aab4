// Package modules assembles the module registry from configuration. The
// server and modulectl share it so both see the same catalog, store and audit
// wiring.
package modules

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"complyhub/internal/modules/catalog"
	"complyhub/internal/modules/invalidation"
	"complyhub/internal/modules/metrics"
	"complyhub/internal/modules/registry"
	"complyhub/internal/modules/service"
	"complyhub/internal/modules/store"
	"complyhub/internal/platform/config"
	"complyhub/internal/platform/postgres"
	platformredis "complyhub/internal/platform/redis"
	audit "complyhub/pkg/platform/audit"
	"complyhub/pkg/platform/audit/publishers/compliance"
	auditmemory "complyhub/pkg/platform/audit/store/memory"
	auditpg "complyhub/pkg/platform/audit/store/postgres"
	"complyhub/pkg/platform/circuit"
)

// stateLockKey serializes module writes across replicas sharing a database.
const stateLockKey int64 = 0x6d6f64756c6573

// Runtime holds the assembled registry and the connections it owns.
// Transactor serializes module writes across replicas; RelayTransactor runs
// outbox relay batches and takes no advisory lock.
type Runtime struct {
	Catalog         *catalog.Catalog
	Service         *service.Service
	Registry        *registry.Registry
	Metrics         *metrics.Metrics
	DB              *sql.DB
	Redis           *platformredis.Client
	Outbox          *auditpg.Store
	Transactor      *postgres.Transactor
	RelayTransactor *postgres.Transactor
	Origin          string

	logger *slog.Logger
}

// Build loads the catalog, opens the configured backends and constructs the
// engine. It does not bootstrap; callers decide when state is loaded.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger, reg prometheus.Registerer) (*Runtime, error) {
	cat, err := catalog.Load(cfg.Modules.CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("load module catalog: %w", err)
	}

	rt := &Runtime{
		Catalog: cat,
		Metrics: metrics.NewWithRegistry(reg),
		Origin:  invalidation.NewOrigin(),
		logger:  logger,
	}

	var (
		states     service.StateStore
		auditStore audit.Store
	)
	opts := []service.Option{
		service.WithLogger(logger),
		service.WithMetrics(rt.Metrics),
		service.WithPersistTimeout(cfg.Modules.PersistTimeout),
	}

	if cfg.Database.Enabled() {
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		rt.DB = db
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = rt.Close()
			return nil, err
		}
		rt.Transactor, rt.RelayTransactor = newTransactors(db, cfg.Modules.PersistTimeout)
		rt.Outbox = auditpg.New(db)
		states = store.NewPostgres(db)
		auditStore = rt.Outbox
		opts = append(opts, service.WithTransactor(rt.Transactor))
		logger.InfoContext(ctx, "module state backed by postgres")
	} else {
		states = store.NewInMemory()
		auditStore = auditmemory.NewInMemoryStore()
		logger.WarnContext(ctx, "DATABASE_URL not set, module state is kept in memory")
	}

	opts = append(opts, service.WithAuditPublisher(compliance.New(auditStore,
		compliance.WithLogger(logger),
		compliance.WithMetrics(compliance.NewMetricsWithRegistry(reg)),
	)))

	redisClient, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	if redisClient != nil {
		rt.Redis = redisClient
		opts = append(opts, service.WithInvalidator(
			invalidation.NewPublisher(redisClient.Client, redisClient.Channel(), rt.Origin,
				invalidation.WithBreaker(circuit.New("redis-invalidation")),
				invalidation.WithLogger(logger),
			),
		))
	}

	svc, err := service.New(cat, states, opts...)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.Service = svc
	rt.Registry = registry.New(svc, registry.WithLogger(logger), registry.WithMetrics(rt.Metrics))
	return rt, nil
}

// newTransactors returns the transactor for module state writes, which
// serializes replicas on stateLockKey, and a lock-free one for the outbox
// relay. Relay batches coordinate through FOR UPDATE SKIP LOCKED instead.
func newTransactors(db *sql.DB, timeout time.Duration) (state, relay *postgres.Transactor) {
	state = postgres.NewTransactor(db,
		postgres.WithTimeout(timeout),
		postgres.WithAdvisoryLock(stateLockKey),
	)
	relay = postgres.NewTransactor(db, postgres.WithTimeout(timeout))
	return state, relay
}

// Listener returns the cross-replica reload listener, or nil when Redis is
// not configured.
func (rt *Runtime) Listener() *invalidation.Listener {
	if rt.Redis == nil {
		return nil
	}
	return invalidation.NewListener(rt.Redis.Client, rt.Redis.Channel(), rt.Origin, rt.Service, rt.logger)
}

// Health pings every backend the runtime owns.
func (rt *Runtime) Health(ctx context.Context) error {
	var errs []error
	if rt.DB != nil {
		if err := rt.DB.PingContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("postgres: %w", err))
		}
	}
	if rt.Redis != nil {
		if err := rt.Redis.Health(ctx); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Close releases the connections opened by Build.
func (rt *Runtime) Close() error {
	var errs []error
	if rt.Redis != nil {
		errs = append(errs, rt.Redis.Close())
	}
	if rt.DB != nil {
		errs = append(errs, rt.DB.Close())
	}
	return errors.Join(errs...)
}
