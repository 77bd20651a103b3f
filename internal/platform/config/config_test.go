package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServiceName != "condominia" || cfg.HTTPPort != "8080" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.TenantRegistry != RegistryPostgres || cfg.TenantCacheSize != 256 {
		t.Fatalf("unexpected tenant defaults %+v", cfg)
	}
	if cfg.TenantIdleTimeout != 15*time.Minute || cfg.OutboxPollInterval != 2*time.Second {
		t.Fatalf("unexpected durations %+v", cfg)
	}
	if cfg.QualifiedMajorityThreshold != 2.0/3.0 {
		t.Fatalf("unexpected threshold %v", cfg.QualifiedMajorityThreshold)
	}
	if len(cfg.KafkaBrokers) != 0 {
		t.Fatalf("expected no brokers, got %v", cfg.KafkaBrokers)
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("TENANT_REGISTRY", "FILE")
	t.Setenv("TENANT_REGISTRY_FILE", "/etc/condominia/tenants.yaml")
	t.Setenv("TENANT_IDLE_TIMEOUT", "90s")
	t.Setenv("QUALIFIED_MAJORITY_THRESHOLD", "0.75")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPPort != "9090" {
		t.Fatalf("expected env port, got %q", cfg.HTTPPort)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	if cfg.TenantRegistry != RegistryFile || cfg.TenantIdleTimeout != 90*time.Second {
		t.Fatalf("unexpected tenant config %+v", cfg)
	}
	if cfg.QualifiedMajorityThreshold != 0.75 {
		t.Fatalf("unexpected threshold %v", cfg.QualifiedMajorityThreshold)
	}
}

func TestLoadFileThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "condominia.yaml")
	raw := "service_name: condominia-staging\nredis_addr: redis:6379\nkafka_brokers:\n  - a:9092\n  - b:9092\n"
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("REDIS_ADDR", "cache:6380")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServiceName != "condominia-staging" {
		t.Fatalf("file value ignored: %q", cfg.ServiceName)
	}
	if cfg.RedisAddr != "cache:6380" {
		t.Fatalf("env should win over file, got %q", cfg.RedisAddr)
	}
	if len(cfg.KafkaBrokers) != 2 {
		t.Fatalf("expected yaml list brokers, got %v", cfg.KafkaBrokers)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected a missing file to fail")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	valid := Config{
		TenantRegistry:             RegistryPostgres,
		TenantCacheSize:            1,
		TenantIdleTimeout:          time.Minute,
		OutboxPollInterval:         time.Second,
		QualifiedMajorityThreshold: 0.5,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := map[string]func(*Config){
		"unknown registry":    func(c *Config) { c.TenantRegistry = "consul" },
		"file without path":   func(c *Config) { c.TenantRegistry = RegistryFile },
		"zero cache":          func(c *Config) { c.TenantCacheSize = 0 },
		"zero idle timeout":   func(c *Config) { c.TenantIdleTimeout = 0 },
		"zero poll interval":  func(c *Config) { c.OutboxPollInterval = 0 },
		"threshold above one": func(c *Config) { c.QualifiedMajorityThreshold = 1.5 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected %s to be rejected", name)
			}
		})
	}
}
