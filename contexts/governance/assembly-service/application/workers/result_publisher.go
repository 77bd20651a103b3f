package workers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"

	application "condominia/contexts/governance/assembly-service/application"
	"condominia/contexts/governance/assembly-service/application/queries"
	"condominia/contexts/governance/assembly-service/domain/entities"
	"condominia/contexts/governance/assembly-service/ports"
)

const (
	assemblyCompletedTopic = "assembly.completed"
	assemblyCancelledTopic = "assembly.cancelled"
	defaultResultsGroup    = "assembly-service-results-cg"
	defaultDedupTTL        = 7 * 24 * time.Hour
)

// ResultPublisher hands finalized results to the minutes and notification
// collaborators whenever an assembly completes or is cancelled.
type ResultPublisher struct {
	Subscriber    ports.EventSubscriber
	Dedup         ports.EventDedupStore
	Results       queries.QueryUseCase
	Sink          ports.ResultSink
	Clock         ports.Clock
	ConsumerGroup string
	DedupTTL      time.Duration
	Logger        *slog.Logger
}

func (p ResultPublisher) Start(ctx context.Context) error {
	logger := application.ResolveLogger(p.Logger)
	group := strings.TrimSpace(p.ConsumerGroup)
	if group == "" {
		group = defaultResultsGroup
	}
	for _, topic := range []string{assemblyCompletedTopic, assemblyCancelledTopic} {
		if err := p.Subscriber.Subscribe(ctx, topic, group, p.Handle); err != nil {
			logger.Error("result publisher subscribe failed",
				"event", "governance_result_publisher_subscribe_failed",
				"module", "governance/assembly-service",
				"layer", "worker",
				"topic", topic,
				"consumer_group", group,
				"error", err.Error(),
			)
			return err
		}
	}
	logger.Info("result publisher subscriptions active",
		"event", "governance_result_publisher_started",
		"module", "governance/assembly-service",
		"layer", "worker",
		"consumer_group", group,
	)
	return nil
}

// Handle processes one terminal assembly event. Replays of an event id are
// skipped so each outcome is delivered once. A failed computation or
// delivery releases the reservation so the redelivered event is retried.
func (p ResultPublisher) Handle(ctx context.Context, event ports.EventEnvelope) error {
	logger := application.ResolveLogger(p.Logger)
	if p.Dedup != nil {
		replayed, err := p.Dedup.ReserveEvent(ctx, event.EventID, hashPayload(event.Payload), p.now().Add(p.dedupTTL()))
		if err != nil {
			return err
		}
		if replayed {
			logger.Debug("assembly result event replay skipped",
				"event", "governance_result_event_replayed",
				"module", "governance/assembly-service",
				"layer", "worker",
				"event_id", event.EventID,
			)
			return nil
		}
	}

	results, err := p.Results.ResultsForTenant(ctx, event.TenantKey, event.EntityID)
	if err != nil {
		logger.Error("assembly results computation failed",
			"event", "governance_result_compute_failed",
			"module", "governance/assembly-service",
			"layer", "worker",
			"event_id", event.EventID,
			"tenant_key", event.TenantKey,
			"assembly_id", event.EntityID,
			"error", err.Error(),
		)
		p.release(ctx, logger, event.EventID)
		return err
	}
	if err := p.Sink.Deliver(ctx, results); err != nil {
		logger.Error("assembly results delivery failed",
			"event", "governance_result_delivery_failed",
			"module", "governance/assembly-service",
			"layer", "worker",
			"event_id", event.EventID,
			"assembly_id", results.AssemblyID,
			"error", err.Error(),
		)
		p.release(ctx, logger, event.EventID)
		return err
	}
	logger.Info("assembly results published",
		"event", "governance_result_published",
		"module", "governance/assembly-service",
		"layer", "worker",
		"event_id", event.EventID,
		"tenant_key", results.TenantKey,
		"assembly_id", results.AssemblyID,
		"authoritative", results.Authoritative,
		"void", results.Void,
	)
	return nil
}

func (p ResultPublisher) release(ctx context.Context, logger *slog.Logger, eventID string) {
	if p.Dedup == nil {
		return
	}
	if err := p.Dedup.ReleaseEvent(context.WithoutCancel(ctx), eventID); err != nil {
		logger.Warn("assembly result reservation release failed",
			"event", "governance_result_event_release_failed",
			"module", "governance/assembly-service",
			"layer", "worker",
			"event_id", eventID,
			"error", err.Error(),
		)
	}
}

func (p ResultPublisher) dedupTTL() time.Duration {
	if p.DedupTTL <= 0 {
		return defaultDedupTTL
	}
	return p.DedupTTL
}

func (p ResultPublisher) now() time.Time {
	if p.Clock != nil {
		return p.Clock.Now().UTC()
	}
	return time.Now().UTC()
}

// LogSink is the default ResultSink until a minutes or notification
// collaborator is wired.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Deliver(_ context.Context, results entities.AssemblyResults) error {
	logger := application.ResolveLogger(s.Logger)
	for _, item := range results.Items {
		logger.Info("assembly item outcome",
			"event", "governance_result_item",
			"module", "governance/assembly-service",
			"layer", "worker",
			"tenant_key", results.TenantKey,
			"assembly_id", results.AssemblyID,
			"agenda_numeral", item.AgendaNumeral,
			"passed", item.Passed,
			"leading_option", item.LeadingOption,
			"cast_units", item.CastUnits,
			"authoritative", results.Authoritative,
			"void", results.Void,
		)
	}
	return nil
}

func hashPayload(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
