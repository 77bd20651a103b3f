package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"condominia/contexts/governance/assembly-service/adapters/memory"
	"condominia/contexts/governance/assembly-service/ports"
)

type flakyPublisher struct {
	failOn string
	topics []string
}

func (p *flakyPublisher) Publish(_ context.Context, topic string, event ports.EventEnvelope) error {
	if event.EventID == p.failOn {
		return errors.New("broker unavailable")
	}
	p.topics = append(p.topics, topic)
	return nil
}

func seedOutbox(t *testing.T, journal *memory.Journal, ids ...string) {
	t.Helper()
	base := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	for i, id := range ids {
		err := journal.AppendOutbox(context.Background(), ports.EventEnvelope{
			EventID:       id,
			EventType:     "vote.cast",
			TenantKey:     "torre-norte",
			EntityID:      "asm-1",
			OccurredAtUTC: base.Add(time.Duration(i) * time.Second),
			Payload:       []byte(`{}`),
		})
		if err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
}

func TestOutboxRelayStopsAtFirstPublishFailure(t *testing.T) {
	clock := memory.NewClock(time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC))
	journal := memory.NewJournal(clock)
	seedOutbox(t, journal, "evt-1", "evt-2", "evt-3")
	publisher := &flakyPublisher{failOn: "evt-2"}
	relay := OutboxRelay{Outbox: journal, Publisher: publisher, Clock: clock}

	published, err := relay.RunOnce(context.Background())
	if err == nil {
		t.Fatalf("expected the publish failure to surface")
	}
	if published != 1 {
		t.Fatalf("expected one row published before the failure, got %d", published)
	}

	pending, err := journal.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 2 || pending[0].OutboxID != "evt-2" {
		t.Fatalf("expected evt-2 and evt-3 to remain pending in order, got %+v", pending)
	}

	publisher.failOn = ""
	published, err = relay.RunOnce(context.Background())
	if err != nil || published != 2 {
		t.Fatalf("expected the retry to drain the outbox, got %d, %v", published, err)
	}
	if len(publisher.topics) != 3 {
		t.Fatalf("expected three deliveries overall, got %v", publisher.topics)
	}
}

func TestOutboxRelayRespectsBatchSize(t *testing.T) {
	journal := memory.NewJournal(nil)
	seedOutbox(t, journal, "evt-1", "evt-2", "evt-3")
	relay := OutboxRelay{Outbox: journal, Publisher: &flakyPublisher{}, BatchSize: 2}

	if published, err := relay.RunOnce(context.Background()); err != nil || published != 2 {
		t.Fatalf("expected a batch of two, got %d, %v", published, err)
	}
	if published, err := relay.RunOnce(context.Background()); err != nil || published != 1 {
		t.Fatalf("expected the remaining row, got %d, %v", published, err)
	}
	if published, err := relay.RunOnce(context.Background()); err != nil || published != 0 {
		t.Fatalf("expected an empty cycle, got %d, %v", published, err)
	}
}

func TestOutboxRelayRejectsCorruptPayload(t *testing.T) {
	relay := OutboxRelay{
		Outbox:    corruptOutbox{},
		Publisher: &flakyPublisher{},
	}
	if _, err := relay.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected a decode failure")
	}
}

type corruptOutbox struct{}

func (corruptOutbox) ListPendingOutbox(context.Context, int) ([]ports.OutboxMessage, error) {
	return []ports.OutboxMessage{{OutboxID: "bad", Payload: []byte("{")}}, nil
}

func (corruptOutbox) MarkOutboxPublished(context.Context, string, time.Time) error {
	return nil
}
