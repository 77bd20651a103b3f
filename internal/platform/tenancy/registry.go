package tenancy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// MemoryRegistry is a process-local registry used by tests and local runs.
type MemoryRegistry struct {
	mu      sync.RWMutex
	tenants map[string]Tenant
}

func NewMemoryRegistry(tenants ...Tenant) *MemoryRegistry {
	registry := &MemoryRegistry{tenants: make(map[string]Tenant, len(tenants))}
	for _, tenant := range tenants {
		registry.Register(tenant)
	}
	return registry
}

func (r *MemoryRegistry) Register(tenant Tenant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tenant.TenantKey = NormalizeKey(tenant.TenantKey)
	r.tenants[tenant.TenantKey] = tenant
}

func (r *MemoryRegistry) Lookup(_ context.Context, tenantKey string) (Tenant, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tenant, ok := r.tenants[NormalizeKey(tenantKey)]
	return tenant, ok, nil
}

type fileTenant struct {
	ID     string `yaml:"id"`
	Key    string `yaml:"key"`
	Name   string `yaml:"name"`
	Schema string `yaml:"schema"`
	DSN    string `yaml:"dsn"`
}

type fileRegistry struct {
	Tenants []fileTenant `yaml:"tenants"`
}

// LoadFileRegistry reads a YAML tenant list:
//
//	tenants:
//	  - key: torres-del-parque
//	    schema: tenant_torres
func LoadFileRegistry(path string) (*MemoryRegistry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tenant registry %s: %w", path, err)
	}
	return ParseFileRegistry(raw)
}

func ParseFileRegistry(raw []byte) (*MemoryRegistry, error) {
	var doc fileRegistry
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode tenant registry: %w", err)
	}
	registry := NewMemoryRegistry()
	for _, item := range doc.Tenants {
		key := NormalizeKey(item.Key)
		if key == "" {
			return nil, errors.New("tenant registry entry without key")
		}
		schema := strings.TrimSpace(item.Schema)
		if !ValidSchema(schema) {
			return nil, fmt.Errorf("%w: tenant %q schema %q", ErrInvalidNamespace, key, schema)
		}
		if _, exists, _ := registry.Lookup(context.Background(), key); exists {
			return nil, fmt.Errorf("duplicate tenant key %q in registry", key)
		}
		id := strings.TrimSpace(item.ID)
		if id == "" {
			id = key
		}
		registry.Register(Tenant{
			TenantID:  id,
			TenantKey: key,
			Name:      strings.TrimSpace(item.Name),
			Schema:    schema,
			DSN:       strings.TrimSpace(item.DSN),
		})
	}
	return registry, nil
}

// PostgresRegistry reads tenants from the shared public.tenants table.
type PostgresRegistry struct {
	db *gorm.DB
}

func NewPostgresRegistry(db *gorm.DB) *PostgresRegistry {
	return &PostgresRegistry{db: db}
}

func (r *PostgresRegistry) Lookup(ctx context.Context, tenantKey string) (Tenant, bool, error) {
	var row tenantModel
	err := r.db.WithContext(ctx).
		Where("tenant_key = ?", NormalizeKey(tenantKey)).
		Take(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Tenant{}, false, nil
		}
		return Tenant{}, false, err
	}
	return row.toTenant(), true, nil
}

// Migrate creates public.tenants when it does not exist yet.
func (r *PostgresRegistry) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&tenantModel{})
}

// Register inserts a tenant row. Tenants are immutable, so an existing key is
// left untouched and reported as an error when its schema differs.
func (r *PostgresRegistry) Register(ctx context.Context, tenant Tenant) error {
	if !ValidSchema(tenant.Schema) {
		return fmt.Errorf("%w: %q", ErrInvalidNamespace, tenant.Schema)
	}
	if err := r.Migrate(ctx); err != nil {
		return err
	}
	row := tenantModel{
		ID:        strings.TrimSpace(tenant.TenantID),
		TenantKey: NormalizeKey(tenant.TenantKey),
		Name:      strings.TrimSpace(tenant.Name),
		Schema:    tenant.Schema,
		DSN:       strings.TrimSpace(tenant.DSN),
		CreatedAt: tenant.CreatedAt.UTC(),
	}
	if row.ID == "" {
		row.ID = row.TenantKey
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	existing, found, err := r.Lookup(ctx, row.TenantKey)
	if err != nil {
		return err
	}
	if found {
		if existing.Schema != row.Schema {
			return fmt.Errorf("tenant %q already registered with schema %q", row.TenantKey, existing.Schema)
		}
		return nil
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

type tenantModel struct {
	ID        string    `gorm:"column:id;primaryKey"`
	TenantKey string    `gorm:"column:tenant_key;uniqueIndex"`
	Name      string    `gorm:"column:name"`
	Schema    string    `gorm:"column:schema_name"`
	DSN       string    `gorm:"column:dsn"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (tenantModel) TableName() string {
	return "public.tenants"
}

func (m tenantModel) toTenant() Tenant {
	return Tenant{
		TenantID:  m.ID,
		TenantKey: NormalizeKey(m.TenantKey),
		Name:      m.Name,
		Schema:    m.Schema,
		DSN:       m.DSN,
		CreatedAt: m.CreatedAt.UTC(),
	}
}

var (
	_ Registry = (*MemoryRegistry)(nil)
	_ Registry = (*PostgresRegistry)(nil)
)
