package postgresadapter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"condominia/internal/platform/tenancy"
)

// tenantDDL creates one tenant namespace. %[1]s is a schema name already
// checked by tenancy.ValidSchema.
var tenantDDL = []string{
	`CREATE SCHEMA IF NOT EXISTS %[1]s`,
	`CREATE TABLE IF NOT EXISTS %[1]s.residents (
		resident_id TEXT PRIMARY KEY,
		unit_id TEXT NOT NULL DEFAULT '',
		weight DOUBLE PRECISION NOT NULL DEFAULT 1,
		active BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.assemblies (
		id TEXT PRIMARY KEY,
		tenant_key TEXT NOT NULL,
		title TEXT NOT NULL,
		type TEXT NOT NULL,
		scheduled_start TIMESTAMPTZ NOT NULL,
		location TEXT NOT NULL DEFAULT '',
		agenda JSONB NOT NULL,
		status TEXT NOT NULL,
		quorum_pct DOUBLE PRECISION NOT NULL,
		total_eligible_units DOUBLE PRECISION NOT NULL,
		organizer_id TEXT NOT NULL,
		started_at TIMESTAMPTZ,
		ended_at TIMESTAMPTZ,
		cancel_reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS assemblies_status_idx ON %[1]s.assemblies (status)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.eligible_voters (
		assembly_id TEXT NOT NULL,
		resident_id TEXT NOT NULL,
		tenant_key TEXT NOT NULL,
		unit_id TEXT NOT NULL DEFAULT '',
		weight DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (assembly_id, resident_id)
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.attendance_records (
		assembly_id TEXT NOT NULL,
		resident_id TEXT NOT NULL,
		tenant_key TEXT NOT NULL,
		delegate_name TEXT NOT NULL DEFAULT '',
		confirmed BOOLEAN NOT NULL DEFAULT FALSE,
		confirmed_at TIMESTAMPTZ NOT NULL,
		verified BOOLEAN NOT NULL DEFAULT FALSE,
		verified_by TEXT NOT NULL DEFAULT '',
		verified_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (assembly_id, resident_id)
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.votes (
		id TEXT PRIMARY KEY,
		assembly_id TEXT NOT NULL,
		tenant_key TEXT NOT NULL,
		agenda_numeral INTEGER NOT NULL,
		resident_id TEXT NOT NULL,
		choice TEXT NOT NULL,
		weight DOUBLE PRECISION NOT NULL,
		cast_by TEXT NOT NULL,
		cast_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS votes_identity_uidx ON %[1]s.votes (assembly_id, agenda_numeral, resident_id)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.agenda_item_gates (
		assembly_id TEXT NOT NULL,
		agenda_numeral INTEGER NOT NULL,
		tenant_key TEXT NOT NULL,
		confirmed_units DOUBLE PRECISION NOT NULL,
		quorum_pct DOUBLE PRECISION NOT NULL,
		required_pct DOUBLE PRECISION NOT NULL,
		opened_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (assembly_id, agenda_numeral)
	)`,
}

// Provisioner creates the tenant schema and its tables on first use. Every
// statement is IF NOT EXISTS, so reopening a namespace never touches rows.
type Provisioner struct {
	Logger *slog.Logger
}

func (p Provisioner) Provision(ctx context.Context, tenant tenancy.Tenant, conn tenancy.Connection) error {
	pg, ok := conn.(*tenancy.PostgresConnection)
	if !ok {
		return fmt.Errorf("postgres provisioner cannot serve %T", conn)
	}
	schema := strings.TrimSpace(pg.Namespace())
	if !tenancy.ValidSchema(schema) {
		return fmt.Errorf("%w: %q", tenancy.ErrInvalidNamespace, schema)
	}
	db := pg.DB().WithContext(ctx)
	for _, statement := range tenantDDL {
		if err := db.Exec(fmt.Sprintf(statement, schema)).Error; err != nil {
			return fmt.Errorf("provision %s: %w", schema, err)
		}
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("tenant namespace provisioned",
		"event", "governance_tenant_namespace_provisioned",
		"module", "governance/assembly-service",
		"layer", "adapter",
		"tenant_key", tenant.TenantKey,
		"schema", schema,
	)
	return nil
}

var _ tenancy.Provisioner = Provisioner{}
