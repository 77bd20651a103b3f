package assemblyservice

import (
	"log/slog"
	"time"

	httpadapter "condominia/contexts/governance/assembly-service/adapters/http"
	"condominia/contexts/governance/assembly-service/adapters/memory"
	tenancyadapter "condominia/contexts/governance/assembly-service/adapters/tenancy"
	"condominia/contexts/governance/assembly-service/application/commands"
	"condominia/contexts/governance/assembly-service/application/queries"
	"condominia/contexts/governance/assembly-service/application/workers"
	"condominia/contexts/governance/assembly-service/domain/services"
	"condominia/contexts/governance/assembly-service/ports"
	"condominia/internal/platform/tenancy"
)

type Module struct {
	Handler         httpadapter.Handler
	OutboxRelay     workers.OutboxRelay
	ResultPublisher workers.ResultPublisher

	// Set by NewInMemoryModule only.
	Router     *tenancy.Router
	Namespaces *memory.Namespaces
	Journal    *memory.Journal
	Clock      *memory.Clock
}

type Dependencies struct {
	Tenants        ports.TenantGateway
	Idempotency    ports.IdempotencyStore
	Outbox         ports.OutboxWriter
	OutboxRows     ports.OutboxRepository
	Publisher      ports.EventPublisher
	Subscriber     ports.EventSubscriber
	Dedup          ports.EventDedupStore
	Sink           ports.ResultSink
	Clock          ports.Clock
	IDGen          ports.IDGenerator
	IdempotencyTTL time.Duration
	Policy         services.DecisionPolicy
	Logger         *slog.Logger
}

func NewModule(deps Dependencies) Module {
	assemblyUseCase := commands.AssemblyUseCase{
		Tenants:        deps.Tenants,
		Idempotency:    deps.Idempotency,
		Outbox:         deps.Outbox,
		Clock:          deps.Clock,
		IDGen:          deps.IDGen,
		IdempotencyTTL: deps.IdempotencyTTL,
		Logger:         deps.Logger,
	}
	attendanceUseCase := commands.AttendanceUseCase{
		Tenants: deps.Tenants,
		Outbox:  deps.Outbox,
		Clock:   deps.Clock,
		IDGen:   deps.IDGen,
		Logger:  deps.Logger,
	}
	voteUseCase := commands.VoteUseCase{
		Tenants: deps.Tenants,
		Outbox:  deps.Outbox,
		Clock:   deps.Clock,
		IDGen:   deps.IDGen,
		Logger:  deps.Logger,
	}
	queryUseCase := queries.QueryUseCase{
		Tenants: deps.Tenants,
		Clock:   deps.Clock,
		Policy:  deps.Policy,
		Logger:  deps.Logger,
	}
	sink := deps.Sink
	if sink == nil {
		sink = workers.LogSink{Logger: deps.Logger}
	}
	return Module{
		Handler: httpadapter.Handler{
			Assemblies: assemblyUseCase,
			Attendance: attendanceUseCase,
			Votes:      voteUseCase,
			Queries:    queryUseCase,
			Logger:     deps.Logger,
		},
		OutboxRelay: workers.OutboxRelay{
			Outbox:    deps.OutboxRows,
			Publisher: deps.Publisher,
			Clock:     deps.Clock,
			Logger:    deps.Logger,
		},
		ResultPublisher: workers.ResultPublisher{
			Subscriber: deps.Subscriber,
			Dedup:      deps.Dedup,
			Results:    queryUseCase,
			Sink:       sink,
			Clock:      deps.Clock,
			Logger:     deps.Logger,
		},
	}
}

// InMemoryOptions configures a process-local module, used by tests and
// local runs.
type InMemoryOptions struct {
	Tenants    []tenancy.Tenant
	Clock      *memory.Clock
	Publisher  ports.EventPublisher
	Subscriber ports.EventSubscriber
	Sink       ports.ResultSink
	// Outbox replaces the journal as the event writer when set.
	Outbox     ports.OutboxWriter
	Policy     *services.DecisionPolicy
	Logger     *slog.Logger
}

func NewInMemoryModule(opts InMemoryOptions) (Module, error) {
	clock := opts.Clock
	if clock == nil {
		clock = &memory.Clock{}
	}
	router, err := tenancy.NewRouter(
		tenancy.NewMemoryRegistry(opts.Tenants...),
		tenancy.MemoryConnector{},
		tenancy.Options{Logger: opts.Logger, Now: clock.Now},
	)
	if err != nil {
		return Module{}, err
	}
	namespaces := memory.NewNamespaces()
	journal := memory.NewJournal(clock)
	policy := services.DefaultDecisionPolicy()
	if opts.Policy != nil {
		policy = *opts.Policy
	}
	var outbox ports.OutboxWriter = journal
	if opts.Outbox != nil {
		outbox = opts.Outbox
	}
	module := NewModule(Dependencies{
		Tenants: tenancyadapter.Gateway{
			Router: router,
			Bind:   tenancyadapter.MemoryBinder(namespaces),
			Logger: opts.Logger,
		},
		Idempotency:    journal,
		Outbox:         outbox,
		OutboxRows:     journal,
		Publisher:      opts.Publisher,
		Subscriber:     opts.Subscriber,
		Dedup:          journal,
		Sink:           opts.Sink,
		Clock:          clock,
		IDGen:          memory.IDGenerator{},
		IdempotencyTTL: 24 * time.Hour,
		Policy:         policy,
		Logger:         opts.Logger,
	})
	module.Router = router
	module.Namespaces = namespaces
	module.Journal = journal
	module.Clock = clock
	return module, nil
}
