package tenancy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"
)

const (
	defaultCacheSize   = 256
	defaultIdleTimeout = 15 * time.Minute
)

// Options tunes handle caching and provisioning.
type Options struct {
	CacheSize    int
	IdleTimeout  time.Duration
	Provisioners []Provisioner
	Observer     Observer
	Logger       *slog.Logger
	Now          func() time.Time
}

// Router resolves tenant keys to cached handles.
type Router struct {
	registry     Registry
	connector    Connector
	provisioners []Provisioner
	cache        *lru.Cache
	group        singleflight.Group
	idleTimeout  time.Duration
	observer     Observer
	logger       *slog.Logger
	now          func() time.Time
}

func NewRouter(registry Registry, connector Connector, opts Options) (*Router, error) {
	if registry == nil || connector == nil {
		return nil, errors.New("tenancy router requires a registry and a connector")
	}
	r := &Router{
		registry:     registry,
		connector:    connector,
		provisioners: append([]Provisioner(nil), opts.Provisioners...),
		idleTimeout:  opts.IdleTimeout,
		observer:     opts.Observer,
		logger:       opts.Logger,
		now:          opts.Now,
	}
	if r.idleTimeout <= 0 {
		r.idleTimeout = defaultIdleTimeout
	}
	if r.observer == nil {
		r.observer = nopObserver{}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.now == nil {
		r.now = func() time.Time { return time.Now().UTC() }
	}
	size := opts.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.NewWithEvict(size, r.onEvict)
	if err != nil {
		return nil, fmt.Errorf("create tenant handle cache: %w", err)
	}
	r.cache = cache
	return r, nil
}

// Resolve returns the handle bound to tenantKey, opening and provisioning the
// namespace on first use.
func (r *Router) Resolve(ctx context.Context, tenantKey string) (*Handle, error) {
	key := NormalizeKey(tenantKey)
	if key == "" {
		return nil, r.unknownTenant(key)
	}
	if value, ok := r.cache.Get(key); ok {
		handle := value.(*Handle)
		handle.touch(r.now())
		r.observer.HandleCacheHit(key)
		return handle, nil
	}
	r.observer.HandleCacheMiss(key)

	value, err, _ := r.group.Do(key, func() (any, error) {
		if value, ok := r.cache.Peek(key); ok {
			return value, nil
		}
		return r.open(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	handle := value.(*Handle)
	handle.touch(r.now())
	return handle, nil
}

// Scoped runs op with the tenant's handle pinned. Every data access inside op
// must go through the handle it receives.
func (r *Router) Scoped(ctx context.Context, tenantKey string, op func(ctx context.Context, handle *Handle) error) error {
	// A handle can be evicted between Resolve and acquire; one retry picks up
	// the freshly opened replacement.
	for attempt := 0; attempt < 2; attempt++ {
		handle, err := r.Resolve(ctx, tenantKey)
		if err != nil {
			return err
		}
		if !handle.acquire(r.now()) {
			continue
		}
		return r.run(ctx, handle, op)
	}
	return fmt.Errorf("%w: %s", ErrNamespaceUnavailable, NormalizeKey(tenantKey))
}

func (r *Router) run(ctx context.Context, handle *Handle, op func(ctx context.Context, handle *Handle) error) error {
	defer handle.release()
	return op(ctx, handle)
}

// Sweep evicts handles idle longer than the idle timeout and returns how many
// were evicted. Handles with in-flight operations are kept.
func (r *Router) Sweep(now time.Time) int {
	evicted := 0
	for _, key := range r.cache.Keys() {
		value, ok := r.cache.Peek(key)
		if !ok {
			continue
		}
		idleFor, inUse := value.(*Handle).idle(now)
		if inUse || idleFor < r.idleTimeout {
			continue
		}
		if r.cache.Remove(key) {
			evicted++
		}
	}
	return evicted
}

// Run sweeps idle handles every interval until ctx is done.
func (r *Router) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if evicted := r.Sweep(r.now()); evicted > 0 {
				r.logger.Info("idle tenant handles evicted",
					"event", "tenancy_handles_swept",
					"module", "internal/platform/tenancy",
					"layer", "platform",
					"evicted", evicted,
				)
			}
		}
	}
}

// Len reports the number of cached handles.
func (r *Router) Len() int {
	return r.cache.Len()
}

// Close evicts every cached handle.
func (r *Router) Close() error {
	r.cache.Purge()
	return nil
}

func (r *Router) open(ctx context.Context, key string) (*Handle, error) {
	tenant, found, err := r.registry.Lookup(ctx, key)
	if err != nil {
		r.logger.Error("tenant registry lookup failed",
			"event", "tenancy_registry_lookup_failed",
			"module", "internal/platform/tenancy",
			"layer", "platform",
			"tenant_key", key,
			"error", err.Error(),
		)
		return nil, fmt.Errorf("%w: registry lookup: %v", ErrNamespaceUnavailable, err)
	}
	if !found {
		return nil, r.unknownTenant(key)
	}
	tenant.TenantKey = NormalizeKey(tenant.TenantKey)
	if !ValidSchema(tenant.Schema) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidNamespace, tenant.Schema)
	}

	conn, err := r.connector.Open(ctx, tenant)
	if err != nil {
		r.logger.Error("tenant namespace open failed",
			"event", "tenancy_namespace_open_failed",
			"module", "internal/platform/tenancy",
			"layer", "platform",
			"tenant_key", key,
			"schema", tenant.Schema,
			"error", err.Error(),
		)
		return nil, fmt.Errorf("%w: %v", ErrNamespaceUnavailable, err)
	}
	for _, provisioner := range r.provisioners {
		if err := provisioner.Provision(ctx, tenant, conn); err != nil {
			_ = conn.Close()
			r.logger.Error("tenant namespace provisioning failed",
				"event", "tenancy_namespace_provision_failed",
				"module", "internal/platform/tenancy",
				"layer", "platform",
				"tenant_key", key,
				"schema", tenant.Schema,
				"error", err.Error(),
			)
			return nil, fmt.Errorf("%w: provision: %v", ErrNamespaceUnavailable, err)
		}
	}

	handle := newHandle(tenant, conn, r.logger, r.observer)
	r.cache.Add(key, handle)
	r.logger.Info("tenant handle opened",
		"event", "tenancy_handle_opened",
		"module", "internal/platform/tenancy",
		"layer", "platform",
		"tenant_key", key,
		"schema", tenant.Schema,
	)
	return handle, nil
}

func (r *Router) onEvict(key any, value any) {
	handle, ok := value.(*Handle)
	if !ok {
		return
	}
	handle.retire()
	if tenantKey, ok := key.(string); ok {
		r.observer.HandleEvicted(tenantKey)
	}
}

func (r *Router) unknownTenant(key string) error {
	r.logger.Warn("unknown tenant rejected",
		"event", "tenancy_unknown_tenant",
		"module", "internal/platform/tenancy",
		"layer", "platform",
		"security_event", true,
		"tenant_key", key,
	)
	r.observer.SecurityEvent("unknown_tenant", key)
	return fmt.Errorf("%w: %q", ErrUnknownTenant, key)
}
