package workers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	application "condominia/contexts/governance/assembly-service/application"
	"condominia/contexts/governance/assembly-service/ports"
)

// OutboxRelay publishes persisted outbox records to the event bus.
type OutboxRelay struct {
	Outbox    ports.OutboxRepository
	Publisher ports.EventPublisher
	Clock     ports.Clock
	BatchSize int
	Logger    *slog.Logger
}

// RunOnce publishes a bounded batch of pending rows, marking each published
// only after the bus accepted it. The first failure ends the cycle so the
// next one retries the remaining rows in order.
func (r OutboxRelay) RunOnce(ctx context.Context) (int, error) {
	logger := application.ResolveLogger(r.Logger)
	limit := r.BatchSize
	if limit <= 0 {
		limit = 100
	}

	pending, err := r.Outbox.ListPendingOutbox(ctx, limit)
	if err != nil {
		logger.Error("governance outbox list failed",
			"event", "governance_outbox_list_failed",
			"module", "governance/assembly-service",
			"layer", "worker",
			"error", err.Error(),
		)
		return 0, err
	}
	if len(pending) == 0 {
		logger.Debug("governance outbox relay found no pending rows",
			"event", "governance_outbox_relay_noop",
			"module", "governance/assembly-service",
			"layer", "worker",
			"batch_size", limit,
		)
		return 0, nil
	}

	published := 0
	for _, row := range pending {
		var event ports.EventEnvelope
		if err := json.Unmarshal(row.Payload, &event); err != nil {
			logger.Error("governance outbox decode failed",
				"event", "governance_outbox_decode_failed",
				"module", "governance/assembly-service",
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"error", err.Error(),
			)
			return published, err
		}
		topic := event.EventType
		if topic == "" {
			topic = row.EventType
		}
		if err := r.Publisher.Publish(ctx, topic, event); err != nil {
			logger.Error("governance outbox publish failed",
				"event", "governance_outbox_publish_failed",
				"module", "governance/assembly-service",
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"event_id", event.EventID,
				"event_type", event.EventType,
				"error", err.Error(),
			)
			return published, err
		}
		if err := r.Outbox.MarkOutboxPublished(ctx, row.OutboxID, r.now()); err != nil {
			logger.Error("governance outbox mark published failed",
				"event", "governance_outbox_mark_published_failed",
				"module", "governance/assembly-service",
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"error", err.Error(),
			)
			return published, err
		}
		published++
	}

	logger.Info("governance outbox relay cycle completed",
		"event", "governance_outbox_relay_completed",
		"module", "governance/assembly-service",
		"layer", "worker",
		"published_count", published,
	)
	return published, nil
}

func (r OutboxRelay) now() time.Time {
	if r.Clock != nil {
		return r.Clock.Now().UTC()
	}
	return time.Now().UTC()
}
