package tenancy

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// MemoryConnection names a namespace without any backing connection.
type MemoryConnection struct {
	namespace string
}

func (c MemoryConnection) Namespace() string { return c.namespace }
func (c MemoryConnection) Close() error      { return nil }

// MemoryConnector opens MemoryConnections; in-memory stores key off the
// namespace name.
type MemoryConnector struct{}

func (MemoryConnector) Open(_ context.Context, tenant Tenant) (Connection, error) {
	return MemoryConnection{namespace: tenant.Schema}, nil
}

// PostgresConnection binds a gorm handle to one tenant schema.
type PostgresConnection struct {
	db        *gorm.DB
	schema    string
	dedicated bool
}

func (c *PostgresConnection) Namespace() string { return c.schema }

// DB returns the gorm handle. Callers must qualify tables with Table.
func (c *PostgresConnection) DB() *gorm.DB { return c.db }

// Table qualifies a table name with the tenant schema.
func (c *PostgresConnection) Table(name string) string {
	return c.schema + "." + name
}

// Close releases dedicated pools; the shared pool outlives every handle.
func (c *PostgresConnection) Close() error {
	if !c.dedicated || c.db == nil {
		return nil
	}
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// PostgresConnector serves schema-per-tenant namespaces from a shared pool,
// dialing a dedicated pool for tenants registered with their own DSN.
type PostgresConnector struct {
	Shared *gorm.DB
	Dial   func(ctx context.Context, dsn string) (*gorm.DB, error)
}

func (c PostgresConnector) Open(ctx context.Context, tenant Tenant) (Connection, error) {
	if !ValidSchema(tenant.Schema) {
		return nil, ErrInvalidNamespace
	}
	if tenant.DSN == "" {
		if c.Shared == nil {
			return nil, errors.New("postgres connector has no shared pool")
		}
		return &PostgresConnection{db: c.Shared, schema: tenant.Schema}, nil
	}
	if c.Dial == nil {
		return nil, errors.New("postgres connector cannot dial dedicated tenant databases")
	}
	db, err := c.Dial(ctx, tenant.DSN)
	if err != nil {
		return nil, err
	}
	return &PostgresConnection{db: db, schema: tenant.Schema, dedicated: true}, nil
}

var (
	_ Connector = MemoryConnector{}
	_ Connector = PostgresConnector{}
)
