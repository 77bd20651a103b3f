package messaging

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"condominia/internal/shared/events"
)

const subscriberBuffer = 128

type subscription struct {
	ch chan events.Envelope
}

// Bus is the in-process event bus behind the outbox relay. Each consumer
// group receives every event once; subscribers in the same group share a
// single queue.
type Bus struct {
	mu     sync.RWMutex
	topics map[string]map[string]*subscription
	logger *slog.Logger
}

func NewBus(brokers []string, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	if len(brokers) > 0 {
		logger.Info("external brokers configured; events stay in process",
			"event", "event_bus_brokers_ignored",
			"module", "internal/platform/messaging",
			"layer", "platform",
			"brokers", strings.Join(brokers, ","),
		)
	}
	return &Bus{
		topics: make(map[string]map[string]*subscription),
		logger: logger,
	}
}

// Publish enqueues event for every consumer group of topic. It blocks while
// a group's queue is full, so an accepted publish is never dropped.
func (b *Bus) Publish(ctx context.Context, topic string, event events.Envelope) error {
	b.mu.RLock()
	subs := make([]*subscription, 0, len(b.topics[topic]))
	for _, sub := range b.topics[topic] {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sub.ch <- event:
		}
	}

	b.logger.Info("event published",
		"event", "event_bus_publish",
		"module", "internal/platform/messaging",
		"layer", "platform",
		"topic", topic,
		"event_id", event.EventID,
		"event_type", event.EventType,
		"tenant_key", event.TenantKey,
		"consumer_groups", len(subs),
	)
	return nil
}

// Subscribe starts a consumer loop for group on topic until ctx is done.
func (b *Bus) Subscribe(
	ctx context.Context,
	topic string,
	consumerGroup string,
	handler func(context.Context, events.Envelope) error,
) error {
	b.mu.Lock()
	groups, ok := b.topics[topic]
	if !ok {
		groups = make(map[string]*subscription)
		b.topics[topic] = groups
	}
	sub, ok := groups[consumerGroup]
	if !ok {
		sub = &subscription{ch: make(chan events.Envelope, subscriberBuffer)}
		groups[consumerGroup] = sub
	}
	b.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-sub.ch:
				if err := handler(ctx, event); err != nil {
					b.logger.Error("consumer handler failed",
						"event", "event_bus_consume_failed",
						"module", "internal/platform/messaging",
						"layer", "platform",
						"topic", topic,
						"consumer_group", consumerGroup,
						"event_id", event.EventID,
						"event_type", event.EventType,
						"error", err.Error(),
					)
				}
			}
		}
	}()
	return nil
}
