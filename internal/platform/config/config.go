package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	RegistryFile     = "file"
	RegistryPostgres = "postgres"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName  string
	HTTPPort     string
	PostgresDSN  string
	KafkaBrokers []string
	RedisAddr    string

	TenantRegistry     string
	TenantRegistryFile string
	TenantCacheSize    int
	TenantIdleTimeout  time.Duration

	OutboxPollInterval time.Duration

	DecisionRuleOrdinary       string
	DecisionRuleExtraordinary  string
	QualifiedMajorityThreshold float64
}

// Load reads an optional YAML file, then lets environment variables override
// every key. Keys in the file are the lowercase env names.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg := Config{
		ServiceName:                strings.TrimSpace(v.GetString("service_name")),
		HTTPPort:                   strings.TrimSpace(v.GetString("http_port")),
		PostgresDSN:                strings.TrimSpace(v.GetString("postgres_dsn")),
		KafkaBrokers:               splitList(v.Get("kafka_brokers")),
		RedisAddr:                  strings.TrimSpace(v.GetString("redis_addr")),
		TenantRegistry:             strings.ToLower(strings.TrimSpace(v.GetString("tenant_registry"))),
		TenantRegistryFile:         strings.TrimSpace(v.GetString("tenant_registry_file")),
		TenantCacheSize:            v.GetInt("tenant_cache_size"),
		TenantIdleTimeout:          v.GetDuration("tenant_idle_timeout"),
		OutboxPollInterval:         v.GetDuration("outbox_poll_interval"),
		DecisionRuleOrdinary:       strings.TrimSpace(v.GetString("decision_rule_ordinary")),
		DecisionRuleExtraordinary:  strings.TrimSpace(v.GetString("decision_rule_extraordinary")),
		QualifiedMajorityThreshold: v.GetFloat64("qualified_majority_threshold"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "condominia")
	v.SetDefault("http_port", "8080")
	v.SetDefault("postgres_dsn", "")
	v.SetDefault("kafka_brokers", "")
	v.SetDefault("redis_addr", "")
	v.SetDefault("tenant_registry", RegistryPostgres)
	v.SetDefault("tenant_registry_file", "")
	v.SetDefault("tenant_cache_size", 256)
	v.SetDefault("tenant_idle_timeout", "15m")
	v.SetDefault("outbox_poll_interval", "2s")
	v.SetDefault("decision_rule_ordinary", "simple_majority")
	v.SetDefault("decision_rule_extraordinary", "qualified_majority")
	v.SetDefault("qualified_majority_threshold", 2.0/3.0)
}

func (c Config) Validate() error {
	switch c.TenantRegistry {
	case RegistryPostgres:
	case RegistryFile:
		if c.TenantRegistryFile == "" {
			return errors.New("TENANT_REGISTRY_FILE is required when TENANT_REGISTRY=file")
		}
	default:
		return fmt.Errorf("unsupported TENANT_REGISTRY %q", c.TenantRegistry)
	}
	if c.TenantCacheSize <= 0 {
		return fmt.Errorf("TENANT_CACHE_SIZE must be positive, got %d", c.TenantCacheSize)
	}
	if c.TenantIdleTimeout <= 0 {
		return errors.New("TENANT_IDLE_TIMEOUT must be positive")
	}
	if c.OutboxPollInterval <= 0 {
		return errors.New("OUTBOX_POLL_INTERVAL must be positive")
	}
	if c.QualifiedMajorityThreshold <= 0 || c.QualifiedMajorityThreshold > 1 {
		return fmt.Errorf("QUALIFIED_MAJORITY_THRESHOLD must be in (0,1], got %v", c.QualifiedMajorityThreshold)
	}
	return nil
}

// splitList accepts a comma separated env value or a YAML list.
func splitList(raw any) []string {
	var values []string
	switch typed := raw.(type) {
	case string:
		values = strings.Split(typed, ",")
	case []string:
		values = typed
	case []any:
		for _, item := range typed {
			values = append(values, fmt.Sprint(item))
		}
	}
	var items []string
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value != "" {
			items = append(items, value)
		}
	}
	return items
}
