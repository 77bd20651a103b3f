package commands

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"condominia/contexts/governance/assembly-service/ports"
)

const (
	EventAssemblyCreated     = "assembly.created"
	EventAssemblyUpdated     = "assembly.updated"
	EventAssemblyStarted     = "assembly.started"
	EventAssemblyCompleted   = "assembly.completed"
	EventAssemblyCancelled   = "assembly.cancelled"
	EventAssemblyDeleted     = "assembly.deleted"
	EventAttendanceCheckedIn = "attendance.checked_in"
	EventAttendanceVerified  = "attendance.verified"
	EventVoteCast            = "vote.cast"
)

const (
	sourceService         = "assembly-service"
	entityTypeAssembly    = "assembly"
	payloadVersion        = 1
	defaultIdempotencyTTL = 7 * 24 * time.Hour
)

// appendEvent writes one envelope to the outbox. A nil outbox is a no-op so
// tests and read-only wiring can skip event plumbing.
func appendEvent(
	ctx context.Context,
	outbox ports.OutboxWriter,
	idGen ports.IDGenerator,
	eventType string,
	tenantKey string,
	assemblyID string,
	occurredAt time.Time,
	data map[string]any,
) error {
	if outbox == nil {
		return nil
	}
	eventID, err := idGen.NewID(ctx)
	if err != nil {
		return err
	}
	data["assembly_id"] = assemblyID
	data["occurred_at"] = occurredAt.UTC().Format(time.RFC3339Nano)
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	// Envelopes are partitioned by assembly so consumers see one session's
	// events in order.
	return outbox.AppendOutbox(ctx, ports.EventEnvelope{
		EventID:        eventID,
		EventType:      eventType,
		SourceService:  sourceService,
		OccurredAtUTC:  occurredAt.UTC(),
		CorrelationID:  eventID,
		TenantKey:      tenantKey,
		EntityType:     entityTypeAssembly,
		EntityID:       assemblyID,
		PayloadVersion: payloadVersion,
		Payload:        payload,
	})
}

// appendCommittedEvent records the event for a write the store has already
// committed. The write stands even if the outbox refuses the envelope, so a
// failure is logged for reconciliation and never returned to the caller.
func appendCommittedEvent(
	ctx context.Context,
	logger *slog.Logger,
	outbox ports.OutboxWriter,
	idGen ports.IDGenerator,
	eventType string,
	tenantKey string,
	assemblyID string,
	occurredAt time.Time,
	data map[string]any,
) {
	if err := appendEvent(ctx, outbox, idGen, eventType, tenantKey, assemblyID, occurredAt, data); err != nil {
		logger.Error("outbox append failed after commit",
			"event", "governance_outbox_append_failed",
			"module", "governance/assembly-service",
			"layer", "application",
			"tenant_key", tenantKey,
			"assembly_id", assemblyID,
			"event_type", eventType,
			"error", err.Error(),
		)
	}
}

func hashRequest(payload any) string {
	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func resolveNow(clock ports.Clock) time.Time {
	if clock != nil {
		return clock.Now().UTC()
	}
	return time.Now().UTC()
}
