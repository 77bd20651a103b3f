package assemblyservice_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	assemblyservice "condominia/contexts/governance/assembly-service"
	"condominia/contexts/governance/assembly-service/adapters/memory"
	"condominia/contexts/governance/assembly-service/domain/entities"
	"condominia/contexts/governance/assembly-service/ports"
	httptransport "condominia/contexts/governance/assembly-service/transport/http"
	"condominia/internal/platform/messaging"
	"condominia/internal/platform/tenancy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu        sync.Mutex
	delivered []entities.AssemblyResults
}

func (s *recordingSink) Deliver(_ context.Context, results entities.AssemblyResults) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered = append(s.delivered, results)
	return nil
}

func (s *recordingSink) snapshot() []entities.AssemblyResults {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entities.AssemblyResults(nil), s.delivered...)
}

// flakySink fails the first failures deliveries and records the rest.
type flakySink struct {
	recordingSink
	failures int
	calls    int
}

func (s *flakySink) Deliver(ctx context.Context, results entities.AssemblyResults) error {
	s.mu.Lock()
	s.calls++
	failing := s.calls <= s.failures
	s.mu.Unlock()
	if failing {
		return context.DeadlineExceeded
	}
	return s.recordingSink.Deliver(ctx, results)
}

func cancelledEvent(eventID string, assemblyID string, payload string) ports.EventEnvelope {
	return ports.EventEnvelope{
		EventID:       eventID,
		EventType:     "assembly.cancelled",
		OccurredAtUTC: opening,
		TenantKey:     "torre-norte",
		EntityType:    "assembly",
		EntityID:      assemblyID,
		Payload:       []byte(payload),
	}
}

func TestRelayDeliversTerminalResultsOnce(t *testing.T) {
	bus := messaging.NewBus(nil, nil)
	sink := &recordingSink{}
	module, err := assemblyservice.NewInMemoryModule(assemblyservice.InMemoryOptions{
		Tenants:    []tenancy.Tenant{{TenantKey: "torre-norte", Schema: "torre_norte"}},
		Clock:      memory.NewClock(opening),
		Publisher:  bus,
		Subscriber: bus,
		Sink:       sink,
	})
	require.NoError(t, err)
	module.Namespaces.Store("torre_norte").SetResident(ports.Resident{ResidentID: "res-a", UnitID: "101", Weight: 1, Active: true})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, module.ResultPublisher.Start(ctx))

	created, err := module.Handler.CreateAssemblyHandler(ctx, admin, "", createRequest())
	require.NoError(t, err)
	module.Clock.Set(opening.Add(time.Hour))
	_, err = module.Handler.BeginAssemblyHandler(ctx, admin, created.AssemblyID)
	require.NoError(t, err)
	_, err = module.Handler.CancelAssemblyHandler(ctx, admin, created.AssemblyID, httptransport.CancelAssemblyRequest{Reason: "power cut"})
	require.NoError(t, err)

	published, err := module.OutboxRelay.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, published)

	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	delivered := sink.snapshot()[0]
	assert.Equal(t, created.AssemblyID, delivered.AssemblyID)
	assert.True(t, delivered.Void)
	assert.False(t, delivered.Authoritative)

	again, err := module.OutboxRelay.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, again, "published rows are not relayed twice")
}

func TestResultPublisherSkipsReplayedEvents(t *testing.T) {
	sink := &recordingSink{}
	module, err := assemblyservice.NewInMemoryModule(assemblyservice.InMemoryOptions{
		Tenants: []tenancy.Tenant{{TenantKey: "torre-norte", Schema: "torre_norte"}},
		Clock:   memory.NewClock(opening),
		Sink:    sink,
	})
	require.NoError(t, err)
	module.Namespaces.Store("torre_norte").SetResident(ports.Resident{ResidentID: "res-a", UnitID: "101", Weight: 1, Active: true})
	ctx := context.Background()

	created, err := module.Handler.CreateAssemblyHandler(ctx, admin, "", createRequest())
	require.NoError(t, err)

	event := cancelledEvent("evt-1", created.AssemblyID, `{"reason":"x"}`)
	require.NoError(t, module.ResultPublisher.Handle(ctx, event))
	require.NoError(t, module.ResultPublisher.Handle(ctx, event))
	assert.Len(t, sink.snapshot(), 1)

	tampered := cancelledEvent("evt-1", created.AssemblyID, `{"reason":"y"}`)
	assert.Error(t, module.ResultPublisher.Handle(ctx, tampered))
	assert.Len(t, sink.snapshot(), 1)
}

func TestResultPublisherRetriesAfterFailedDelivery(t *testing.T) {
	sink := &flakySink{failures: 1}
	module, err := assemblyservice.NewInMemoryModule(assemblyservice.InMemoryOptions{
		Tenants: []tenancy.Tenant{{TenantKey: "torre-norte", Schema: "torre_norte"}},
		Clock:   memory.NewClock(opening),
		Sink:    sink,
	})
	require.NoError(t, err)
	ctx := context.Background()

	created, err := module.Handler.CreateAssemblyHandler(ctx, admin, "", createRequest())
	require.NoError(t, err)
	event := cancelledEvent("evt-flaky", created.AssemblyID, `{"reason":"x"}`)

	err = module.ResultPublisher.Handle(ctx, event)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Empty(t, sink.snapshot())

	require.NoError(t, module.ResultPublisher.Handle(ctx, event), "redelivery after a failure is processed")
	require.Len(t, sink.snapshot(), 1)
	assert.Equal(t, created.AssemblyID, sink.snapshot()[0].AssemblyID)

	require.NoError(t, module.ResultPublisher.Handle(ctx, event))
	assert.Len(t, sink.snapshot(), 1, "a successful delivery still dedups later replays")
	assert.Equal(t, 2, sink.calls)
}
