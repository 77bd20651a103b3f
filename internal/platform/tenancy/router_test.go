package tenancy

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

type trackedConnection struct {
	namespace string
	closed    *atomic.Int32
}

func (c trackedConnection) Namespace() string { return c.namespace }

func (c trackedConnection) Close() error {
	c.closed.Add(1)
	return nil
}

type countingConnector struct {
	opens  atomic.Int32
	closes atomic.Int32
	delay  time.Duration
}

func (c *countingConnector) Open(_ context.Context, tenant Tenant) (Connection, error) {
	c.opens.Add(1)
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	return trackedConnection{namespace: tenant.Schema, closed: &c.closes}, nil
}

type recordingObserver struct {
	mu       sync.Mutex
	hits     int
	misses   int
	evicted  []string
	security []string
}

func (o *recordingObserver) HandleCacheHit(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hits++
}

func (o *recordingObserver) HandleCacheMiss(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.misses++
}

func (o *recordingObserver) HandleEvicted(key string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.evicted = append(o.evicted, key)
}

func (o *recordingObserver) SecurityEvent(kind string, _ string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.security = append(o.security, kind)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testTenants() *MemoryRegistry {
	return NewMemoryRegistry(
		Tenant{TenantID: "t-1", TenantKey: "Torre-Norte", Schema: "torre_norte"},
		Tenant{TenantID: "t-2", TenantKey: "torre-sul", Schema: "torre_sul"},
		Tenant{TenantID: "t-3", TenantKey: "broken", Schema: "Bad-Schema"},
	)
}

func newTestRouter(t *testing.T, connector Connector, opts Options) *Router {
	t.Helper()
	router, err := NewRouter(testTenants(), connector, opts)
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	return router
}

func TestResolveOpensEachNamespaceOnce(t *testing.T) {
	connector := &countingConnector{delay: 10 * time.Millisecond}
	observer := &recordingObserver{}
	router := newTestRouter(t, connector, Options{Observer: observer})

	var group errgroup.Group
	for i := 0; i < 20; i++ {
		group.Go(func() error {
			handle, err := router.Resolve(context.Background(), " TORRE-norte ")
			if err != nil {
				return err
			}
			if handle.TenantKey() != "torre-norte" {
				return errors.New("unexpected tenant key " + handle.TenantKey())
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		t.Fatalf("concurrent resolve failed: %v", err)
	}
	if opens := connector.opens.Load(); opens != 1 {
		t.Fatalf("expected one open, got %d", opens)
	}
	if router.Len() != 1 {
		t.Fatalf("expected one cached handle, got %d", router.Len())
	}
}

func TestResolveRejectsUnknownAndInvalidTenants(t *testing.T) {
	connector := &countingConnector{}
	observer := &recordingObserver{}
	router := newTestRouter(t, connector, Options{Observer: observer})

	if _, err := router.Resolve(context.Background(), "ghost"); !errors.Is(err, ErrUnknownTenant) {
		t.Fatalf("expected unknown tenant, got %v", err)
	}
	if _, err := router.Resolve(context.Background(), "  "); !errors.Is(err, ErrUnknownTenant) {
		t.Fatalf("expected unknown tenant for empty key, got %v", err)
	}
	if _, err := router.Resolve(context.Background(), "broken"); !errors.Is(err, ErrInvalidNamespace) {
		t.Fatalf("expected invalid namespace, got %v", err)
	}
	if connector.opens.Load() != 0 {
		t.Fatalf("rejected tenants must not open connections")
	}
	if len(observer.security) != 2 || observer.security[0] != "unknown_tenant" {
		t.Fatalf("expected two unknown tenant security events, got %v", observer.security)
	}
}

func TestGuardRejectsOtherTenants(t *testing.T) {
	observer := &recordingObserver{}
	router := newTestRouter(t, &countingConnector{}, Options{Observer: observer})

	err := router.Scoped(context.Background(), "torre-norte", func(_ context.Context, handle *Handle) error {
		if err := handle.Guard(""); err != nil {
			return err
		}
		if err := handle.Guard("TORRE-NORTE"); err != nil {
			return err
		}
		return handle.Guard("torre-sul")
	})
	if !errors.Is(err, ErrCrossTenantAccess) {
		t.Fatalf("expected cross-tenant rejection, got %v", err)
	}
	if len(observer.security) != 1 || observer.security[0] != "cross_tenant_access" {
		t.Fatalf("expected a cross-tenant security event, got %v", observer.security)
	}
}

func TestSweepEvictsIdleHandles(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	connector := &countingConnector{}
	observer := &recordingObserver{}
	router := newTestRouter(t, connector, Options{IdleTimeout: 10 * time.Minute, Observer: observer, Now: clock.Now})

	if _, err := router.Resolve(context.Background(), "torre-norte"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	clock.Advance(5 * time.Minute)
	if _, err := router.Resolve(context.Background(), "torre-sul"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	clock.Advance(6 * time.Minute)

	if evicted := router.Sweep(clock.Now()); evicted != 1 {
		t.Fatalf("expected one eviction, got %d", evicted)
	}
	if connector.closes.Load() != 1 {
		t.Fatalf("expected the evicted connection to close")
	}
	if len(observer.evicted) != 1 || observer.evicted[0] != "torre-norte" {
		t.Fatalf("unexpected evictions %v", observer.evicted)
	}

	if _, err := router.Resolve(context.Background(), "torre-norte"); err != nil {
		t.Fatalf("re-resolve: %v", err)
	}
	if connector.opens.Load() != 3 {
		t.Fatalf("expected the namespace to reopen, got %d opens", connector.opens.Load())
	}
}

func TestEvictedHandleClosesAfterInFlightOperation(t *testing.T) {
	connector := &countingConnector{}
	router := newTestRouter(t, connector, Options{CacheSize: 1})

	err := router.Scoped(context.Background(), "torre-norte", func(ctx context.Context, _ *Handle) error {
		// Opening a second tenant pushes this handle out of the size-one cache.
		if _, err := router.Resolve(ctx, "torre-sul"); err != nil {
			return err
		}
		if connector.closes.Load() != 0 {
			return errors.New("handle closed while still in use")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("scoped: %v", err)
	}
	if connector.closes.Load() != 1 {
		t.Fatalf("expected the retired handle to close on release, got %d closes", connector.closes.Load())
	}

	var namespace string
	err = router.Scoped(context.Background(), "torre-norte", func(_ context.Context, handle *Handle) error {
		namespace = handle.Connection().Namespace()
		return nil
	})
	if err != nil || namespace != "torre_norte" {
		t.Fatalf("expected a fresh handle for torre_norte, got %q, %v", namespace, err)
	}
}

func TestProvisionersRunOnOpen(t *testing.T) {
	connector := &countingConnector{}
	var calls atomic.Int32
	router := newTestRouter(t, connector, Options{Provisioners: []Provisioner{
		ProvisionerFunc(func(_ context.Context, tenant Tenant, conn Connection) error {
			calls.Add(1)
			if tenant.Schema != conn.Namespace() {
				return errors.New("namespace mismatch")
			}
			if tenant.TenantKey == "torre-sul" {
				return errors.New("ddl failed")
			}
			return nil
		}),
	}})

	for i := 0; i < 3; i++ {
		if _, err := router.Resolve(context.Background(), "torre-norte"); err != nil {
			t.Fatalf("resolve: %v", err)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one provisioning run, got %d", calls.Load())
	}

	_, err := router.Resolve(context.Background(), "torre-sul")
	if !errors.Is(err, ErrNamespaceUnavailable) {
		t.Fatalf("expected namespace unavailable, got %v", err)
	}
	if connector.closes.Load() != 1 {
		t.Fatalf("failed provisioning must close the connection")
	}
	if router.Len() != 1 {
		t.Fatalf("failed namespaces must not be cached")
	}
}

func TestParseFileRegistry(t *testing.T) {
	registry, err := ParseFileRegistry([]byte(`
tenants:
  - key: Torre-Norte
    name: Torre Norte
    schema: torre_norte
  - id: t-2
    key: torre-sul
    schema: torre_sul
    dsn: postgres://sul@db/sul
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	tenant, found, err := registry.Lookup(context.Background(), "torre-norte")
	if err != nil || !found {
		t.Fatalf("lookup failed: %v %v", found, err)
	}
	if tenant.TenantID != "torre-norte" || tenant.Name != "Torre Norte" {
		t.Fatalf("unexpected tenant %+v", tenant)
	}
	sul, _, _ := registry.Lookup(context.Background(), "TORRE-SUL")
	if sul.DSN != "postgres://sul@db/sul" || sul.TenantID != "t-2" {
		t.Fatalf("unexpected tenant %+v", sul)
	}

	invalid := map[string]string{
		"missing key":   "tenants:\n  - schema: a\n",
		"bad schema":    "tenants:\n  - key: a\n    schema: \"drop table\"\n",
		"duplicate key": "tenants:\n  - key: a\n    schema: a\n  - key: A\n    schema: b\n",
		"not yaml":      "tenants: [",
	}
	for name, raw := range invalid {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseFileRegistry([]byte(raw)); err == nil {
				t.Fatalf("expected an error")
			}
		})
	}
}

func TestValidSchema(t *testing.T) {
	for _, name := range []string{"torre_norte", "_tmp", "t1"} {
		if !ValidSchema(name) {
			t.Fatalf("%q should be valid", name)
		}
	}
	for _, name := range []string{"", "Torre", "1abc", "a-b", "a;drop", "public.x"} {
		if ValidSchema(name) {
			t.Fatalf("%q should be rejected", name)
		}
	}
}
