package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	domainerrors "condominia/contexts/governance/assembly-service/domain/errors"
	"condominia/contexts/governance/assembly-service/ports"

	"github.com/google/uuid"
)

type outboxRecord struct {
	message   ports.OutboxMessage
	published bool
}

type dedupRecord struct {
	payloadHash string
	expiresAt   time.Time
}

// Journal keeps the tenant-independent bookkeeping: outbox rows,
// idempotency keys and consumed event ids.
type Journal struct {
	mu sync.RWMutex

	idempotency map[string]ports.IdempotencyRecord
	outbox      map[string]outboxRecord
	sequence    []string
	eventDedup  map[string]dedupRecord
	now         func() time.Time
}

func NewJournal(clock ports.Clock) *Journal {
	now := func() time.Time { return time.Now().UTC() }
	if clock != nil {
		now = clock.Now
	}
	return &Journal{
		idempotency: make(map[string]ports.IdempotencyRecord),
		outbox:      make(map[string]outboxRecord),
		eventDedup:  make(map[string]dedupRecord),
		now:         now,
	}
}

func (j *Journal) Get(_ context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	key = strings.TrimSpace(key)
	record, exists := j.idempotency[key]
	if !exists {
		return ports.IdempotencyRecord{}, false, nil
	}
	if !record.ExpiresAt.After(now.UTC()) {
		delete(j.idempotency, key)
		return ports.IdempotencyRecord{}, false, nil
	}
	return record, true, nil
}

func (j *Journal) Put(_ context.Context, record ports.IdempotencyRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	key := strings.TrimSpace(record.Key)
	if existing, exists := j.idempotency[key]; exists {
		if existing.RequestHash != record.RequestHash || existing.ResourceID != record.ResourceID {
			return domainerrors.ErrIdempotencyConflict
		}
		return nil
	}
	j.idempotency[key] = ports.IdempotencyRecord{
		Key:         key,
		RequestHash: strings.TrimSpace(record.RequestHash),
		ResourceID:  strings.TrimSpace(record.ResourceID),
		ExpiresAt:   record.ExpiresAt.UTC(),
	}
	return nil
}

func (j *Journal) AppendOutbox(_ context.Context, envelope ports.EventEnvelope) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	outboxID := strings.TrimSpace(envelope.EventID)
	if outboxID == "" {
		outboxID = uuid.NewString()
	}
	if existing, ok := j.outbox[outboxID]; ok {
		if !bytes.Equal(existing.message.Payload, payload) {
			return domainerrors.ErrIdempotencyConflict
		}
		return nil
	}
	createdAt := envelope.OccurredAtUTC.UTC()
	if createdAt.IsZero() {
		createdAt = j.now().UTC()
	}
	j.outbox[outboxID] = outboxRecord{
		message: ports.OutboxMessage{
			OutboxID:     outboxID,
			EventType:    strings.TrimSpace(envelope.EventType),
			PartitionKey: strings.TrimSpace(envelope.EntityID),
			Payload:      payload,
			CreatedAt:    createdAt,
		},
	}
	j.sequence = append(j.sequence, outboxID)
	return nil
}

// ListPendingOutbox returns unpublished rows in append order.
func (j *Journal) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	items := make([]ports.OutboxMessage, 0, limit)
	for _, outboxID := range j.sequence {
		row := j.outbox[outboxID]
		if row.published {
			continue
		}
		items = append(items, row.message)
		if len(items) == limit {
			break
		}
	}
	return items, nil
}

func (j *Journal) MarkOutboxPublished(_ context.Context, outboxID string, _ time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	row, ok := j.outbox[strings.TrimSpace(outboxID)]
	if !ok {
		return domainerrors.Unavailable("mark outbox published", errUnknownOutboxRow)
	}
	row.published = true
	j.outbox[strings.TrimSpace(outboxID)] = row
	return nil
}

// Events lists every appended envelope type in order, for assertions.
func (j *Journal) Events() []string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	items := make([]string, 0, len(j.sequence))
	for _, outboxID := range j.sequence {
		items = append(items, j.outbox[outboxID].message.EventType)
	}
	return items
}

func (j *Journal) ReserveEvent(
	_ context.Context,
	eventID string,
	payloadHash string,
	expiresAt time.Time,
) (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	key := strings.TrimSpace(eventID)
	if existing, ok := j.eventDedup[key]; ok {
		if existing.expiresAt.IsZero() || !j.now().After(existing.expiresAt) {
			if existing.payloadHash != strings.TrimSpace(payloadHash) {
				return false, domainerrors.ErrIdempotencyConflict
			}
			return true, nil
		}
		delete(j.eventDedup, key)
	}
	j.eventDedup[key] = dedupRecord{
		payloadHash: strings.TrimSpace(payloadHash),
		expiresAt:   expiresAt.UTC(),
	}
	return false, nil
}

func (j *Journal) ReleaseEvent(_ context.Context, eventID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.eventDedup, strings.TrimSpace(eventID))
	return nil
}

var (
	_ ports.IdempotencyStore = (*Journal)(nil)
	_ ports.OutboxWriter     = (*Journal)(nil)
	_ ports.OutboxRepository = (*Journal)(nil)
	_ ports.EventDedupStore  = (*Journal)(nil)
)
