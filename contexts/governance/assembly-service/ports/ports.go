package ports

import (
	"context"
	"time"

	"condominia/contexts/governance/assembly-service/domain/entities"
	"condominia/internal/shared/events"
)

// AssemblyFilter narrows ListAssemblies; a zero filter lists every assembly.
type AssemblyFilter struct {
	Status entities.AssemblyStatus
	Limit  int
}

// StatusTransition is a compare-and-swap on assembly status. It applies only
// while the stored status is one of From.
type StatusTransition struct {
	AssemblyID   string
	From         []entities.AssemblyStatus
	To           entities.AssemblyStatus
	StartedAt    *time.Time
	EndedAt      *time.Time
	CancelReason string
	UpdatedAt    time.Time
}

type AssemblyRepository interface {
	CreateAssembly(ctx context.Context, assembly entities.Assembly, voters []entities.EligibleVoter) error
	GetAssembly(ctx context.Context, assemblyID string) (entities.Assembly, error)
	ListAssemblies(ctx context.Context, filter AssemblyFilter) ([]entities.Assembly, error)
	TransitionAssembly(ctx context.Context, transition StatusTransition) (entities.Assembly, error)
	// UpdatePlannedAssembly overwrites editable fields while the stored
	// status is still planned.
	UpdatePlannedAssembly(ctx context.Context, assembly entities.Assembly) error
	DeletePlannedAssembly(ctx context.Context, assemblyID string) error
	ListEligibleVoters(ctx context.Context, assemblyID string) ([]entities.EligibleVoter, error)
}

type AttendanceRepository interface {
	// UpsertAttendance confirms attendance, keeping any earlier verification.
	UpsertAttendance(ctx context.Context, record entities.AttendanceRecord) (entities.AttendanceRecord, error)
	MarkAttendanceVerified(
		ctx context.Context,
		assemblyID string,
		residentID string,
		verifiedBy string,
		verifiedAt time.Time,
	) (entities.AttendanceRecord, error)
	GetAttendance(ctx context.Context, assemblyID string, residentID string) (entities.AttendanceRecord, bool, error)
	ListAttendance(ctx context.Context, assemblyID string) ([]entities.AttendanceRecord, error)
}

type VoteRepository interface {
	// InsertVote must fail with ErrDuplicateVote when the identity triple
	// already exists. Implementations rely on a unique constraint.
	InsertVote(ctx context.Context, vote entities.Vote) error
	ListVotesByItem(ctx context.Context, assemblyID string, agendaNumeral int) ([]entities.Vote, error)
	ListVotesByAssembly(ctx context.Context, assemblyID string) ([]entities.Vote, error)
	GetItemGate(ctx context.Context, assemblyID string, agendaNumeral int) (entities.ItemGate, bool, error)
	// OpenItemGate inserts the gate if absent and returns the stored one.
	OpenItemGate(ctx context.Context, gate entities.ItemGate) (entities.ItemGate, error)
}

// Resident is the slice of a tenant's resident records governance needs.
type Resident struct {
	ResidentID string
	UnitID     string
	Weight     float64
	Active     bool
}

type ResidentDirectory interface {
	ListEligibleResidents(ctx context.Context) ([]Resident, error)
}

// Store is every data-access port reachable through one tenant handle.
type Store interface {
	AssemblyRepository
	AttendanceRepository
	VoteRepository
	ResidentDirectory
}

// TenantGateway runs op against the store bound to tenantKey's namespace.
// The store must not be retained after op returns.
type TenantGateway interface {
	WithTenant(ctx context.Context, tenantKey string, op func(ctx context.Context, store Store) error) error
}

type IdempotencyRecord struct {
	Key         string
	RequestHash string
	ResourceID  string
	ExpiresAt   time.Time
}

type IdempotencyStore interface {
	Get(ctx context.Context, key string, now time.Time) (IdempotencyRecord, bool, error)
	Put(ctx context.Context, record IdempotencyRecord) error
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

type EventEnvelope = events.Envelope

type OutboxWriter interface {
	AppendOutbox(ctx context.Context, envelope EventEnvelope) error
}

type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

type EventSubscriber interface {
	Subscribe(
		ctx context.Context,
		topic string,
		consumerGroup string,
		handler func(context.Context, EventEnvelope) error,
	) error
}

// EventDedupStore reports whether an event id was already reserved. A
// reserved id with a different payload hash is a conflict. ReleaseEvent
// drops a reservation whose processing failed so a redelivery runs again.
type EventDedupStore interface {
	ReserveEvent(ctx context.Context, eventID string, payloadHash string, expiresAt time.Time) (bool, error)
	ReleaseEvent(ctx context.Context, eventID string) error
}

// ResultSink receives finalized results for minutes rendering and
// notification delivery.
type ResultSink interface {
	Deliver(ctx context.Context, results entities.AssemblyResults) error
}
