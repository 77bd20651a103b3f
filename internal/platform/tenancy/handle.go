package tenancy

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Handle is a data-access handle bound to exactly one tenant namespace.
type Handle struct {
	tenant   Tenant
	conn     Connection
	logger   *slog.Logger
	observer Observer

	mu       sync.Mutex
	inflight int
	retired  bool
	closed   bool
	lastUsed time.Time
}

func newHandle(tenant Tenant, conn Connection, logger *slog.Logger, observer Observer) *Handle {
	return &Handle{
		tenant:   tenant,
		conn:     conn,
		logger:   logger,
		observer: observer,
	}
}

func (h *Handle) Tenant() Tenant {
	return h.tenant
}

func (h *Handle) TenantKey() string {
	return h.tenant.TenantKey
}

func (h *Handle) Connection() Connection {
	return h.conn
}

// Guard rejects data-access calls that name a tenant other than the handle's
// own. An empty key carries no explicit tenant reference and passes.
func (h *Handle) Guard(tenantKey string) error {
	key := NormalizeKey(tenantKey)
	if key == "" || key == h.tenant.TenantKey {
		return nil
	}
	h.logger.Warn("cross-tenant access rejected",
		"event", "tenancy_cross_tenant_access",
		"module", "internal/platform/tenancy",
		"layer", "platform",
		"security_event", true,
		"handle_tenant_key", h.tenant.TenantKey,
		"requested_tenant_key", key,
	)
	h.observer.SecurityEvent("cross_tenant_access", h.tenant.TenantKey)
	return fmt.Errorf("%w: handle %q cannot reach tenant %q", ErrCrossTenantAccess, h.tenant.TenantKey, key)
}

func (h *Handle) touch(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastUsed = now
}

// acquire pins the handle for one scoped operation. It fails once the handle
// has been evicted so the caller re-resolves a fresh one.
func (h *Handle) acquire(now time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.retired {
		return false
	}
	h.inflight++
	h.lastUsed = now
	return true
}

func (h *Handle) release() {
	h.mu.Lock()
	h.inflight--
	closeNow := h.retired && h.inflight == 0 && !h.closed
	if closeNow {
		h.closed = true
	}
	h.mu.Unlock()
	if closeNow {
		h.closeConnection()
	}
}

// retire marks an evicted handle. The connection closes immediately when
// idle, otherwise when the last in-flight operation releases it.
func (h *Handle) retire() {
	h.mu.Lock()
	h.retired = true
	closeNow := h.inflight == 0 && !h.closed
	if closeNow {
		h.closed = true
	}
	h.mu.Unlock()
	if closeNow {
		h.closeConnection()
	}
}

func (h *Handle) idle(now time.Time) (time.Duration, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return now.Sub(h.lastUsed), h.inflight > 0
}

func (h *Handle) closeConnection() {
	if h.conn == nil {
		return
	}
	if err := h.conn.Close(); err != nil {
		h.logger.Error("tenant connection close failed",
			"event", "tenancy_connection_close_failed",
			"module", "internal/platform/tenancy",
			"layer", "platform",
			"tenant_key", h.tenant.TenantKey,
			"error", err.Error(),
		)
	}
}
