package events

import (
	"encoding/json"
	"time"
)

// Envelope is the shared event shape used across condominia processes.
// TenantKey routes consumers back through the tenant router; payloads never
// carry cross-tenant data.
type Envelope struct {
	EventID        string          `json:"event_id"`
	EventType      string          `json:"event_type"`
	SourceService  string          `json:"source_service"`
	OccurredAtUTC  time.Time       `json:"occurred_at_utc"`
	CorrelationID  string          `json:"correlation_id"`
	TenantKey      string          `json:"tenant_key"`
	EntityType     string          `json:"entity_type"`
	EntityID       string          `json:"entity_id"`
	PayloadVersion int             `json:"payload_version"`
	Payload        json.RawMessage `json:"payload"`
}
