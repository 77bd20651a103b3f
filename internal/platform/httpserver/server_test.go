package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	assemblyservice "condominia/contexts/governance/assembly-service"
	"condominia/contexts/governance/assembly-service/adapters/memory"
	domainerrors "condominia/contexts/governance/assembly-service/domain/errors"
	"condominia/contexts/governance/assembly-service/domain/services"
	"condominia/contexts/governance/assembly-service/ports"
	assemblyhttp "condominia/contexts/governance/assembly-service/transport/http"
	"condominia/internal/platform/metrics"
	"condominia/internal/platform/tenancy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var opening = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

const createBody = `{
	"title": "Annual ordinary assembly",
	"type": "ordinary",
	"scheduled_start": "2026-03-01T19:00:00Z",
	"quorum_pct": 50,
	"agenda": [{"topic": "Approve 2026 budget", "duration_minutes": 30}]
}`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	module, err := assemblyservice.NewInMemoryModule(assemblyservice.InMemoryOptions{
		Tenants: []tenancy.Tenant{{TenantKey: "torre-norte", Schema: "torre_norte"}},
		Clock:   memory.NewClock(opening),
		Logger:  quietLogger(),
	})
	require.NoError(t, err)
	module.Namespaces.Store("torre_norte").SetResident(ports.Resident{ResidentID: "res-a", UnitID: "101", Weight: 1, Active: true})
	return New(module, metrics.New(), quietLogger(), ":0").Handler()
}

func send(t *testing.T, handler http.Handler, method string, path string, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func as(role string, tenant string) map[string]string {
	return map[string]string{
		"X-User-Id":    role + "-1",
		"X-User-Role":  role,
		"X-Tenant-Key": tenant,
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) assemblyhttp.ErrorResponse {
	t.Helper()
	var resp assemblyhttp.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestAssemblyRoutesMapOutcomesToStatus(t *testing.T) {
	handler := newTestServer(t)

	rec := send(t, handler, http.MethodPost, "/api/v1/assemblies", createBody, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = send(t, handler, http.MethodPost, "/api/v1/assemblies", createBody, as("resident", "torre-norte"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decodeError(t, rec).Code)

	rec = send(t, handler, http.MethodPost, "/api/v1/assemblies", createBody, as("admin", "ghost"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "unknown_tenant", decodeError(t, rec).Code)

	rec = send(t, handler, http.MethodPost, "/api/v1/assemblies", `{"title":`, as("admin", "torre-norte"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	headers := as("ADMIN", "Torre-Norte")
	headers["Idempotency-Key"] = "create-1"
	rec = send(t, handler, http.MethodPost, "/api/v1/assemblies", createBody, headers)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created assemblyhttp.AssemblyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "planned", created.Status)

	rec = send(t, handler, http.MethodPost, "/api/v1/assemblies", createBody, headers)
	assert.Equal(t, http.StatusOK, rec.Code, "replays answer 200")

	path := "/api/v1/assemblies/" + created.AssemblyID
	rec = send(t, handler, http.MethodPost, path+"/begin", "", as("admin", "torre-norte"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", decodeError(t, rec).Code)
	assert.Equal(t, created.AssemblyID, decodeError(t, rec).Details.AssemblyID)

	rec = send(t, handler, http.MethodGet, path+"/agenda/zero/tally", "", as("admin", "torre-norte"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = send(t, handler, http.MethodGet, "/api/v1/assemblies/missing", "", as("admin", "torre-norte"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = send(t, handler, http.MethodDelete, path, "", as("admin", "torre-norte"))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = send(t, handler, http.MethodGet, path, "", as("admin", "torre-norte"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	handler := newTestServer(t)

	rec := send(t, handler, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	send(t, handler, http.MethodPost, "/api/v1/assemblies", createBody, as("resident", "torre-norte"))

	rec = send(t, handler, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `governance_rejections_total{code="forbidden"} 1`)
	assert.Contains(t, body, `route="POST /api/v1/assemblies"`)
	assert.Contains(t, body, `route="GET /healthz"`)
}

type unavailableGateway struct{}

func (unavailableGateway) WithTenant(context.Context, string, func(context.Context, ports.Store) error) error {
	return domainerrors.Unavailable("resolve tenant", io.ErrUnexpectedEOF)
}

func TestStorageFailuresAskClientsToRetry(t *testing.T) {
	module := assemblyservice.NewModule(assemblyservice.Dependencies{
		Tenants: unavailableGateway{},
		Clock:   memory.NewClock(opening),
		Policy:  services.DefaultDecisionPolicy(),
		Logger:  quietLogger(),
	})
	handler := New(module, metrics.New(), quietLogger(), "").Handler()

	rec := send(t, handler, http.MethodGet, "/api/v1/assemblies", "", as("admin", "torre-norte"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, "storage_unavailable", decodeError(t, rec).Code)
}
