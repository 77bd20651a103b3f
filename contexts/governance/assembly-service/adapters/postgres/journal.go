package postgresadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	domainerrors "condominia/contexts/governance/assembly-service/domain/errors"
	"condominia/contexts/governance/assembly-service/ports"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	outboxStatusPending   = "pending"
	outboxStatusPublished = "published"
)

// Journal keeps outbox rows, idempotency keys and consumed event ids in the
// shared public schema. Every row carries its tenant in the envelope or in
// the scoped key, never in a tenant schema.
type Journal struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewJournal(db *gorm.DB, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{db: db, logger: logger}
}

// Migrate creates the journal tables when missing.
func (j *Journal) Migrate(ctx context.Context) error {
	if err := j.db.WithContext(ctx).AutoMigrate(&idempotencyModel{}, &outboxModel{}, &eventDedupModel{}); err != nil {
		return logFailure(j.logger, "governance_journal_migrate_failed", err)
	}
	return nil
}

func (j *Journal) Get(ctx context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	var row idempotencyModel
	err := j.db.WithContext(ctx).
		Where("key = ?", strings.TrimSpace(key)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.IdempotencyRecord{}, false, nil
		}
		return ports.IdempotencyRecord{}, false, logFailure(j.logger, "governance_journal_idempotency_get_failed", err,
			"idempotency_key", strings.TrimSpace(key),
		)
	}
	if !row.ExpiresAt.IsZero() && !row.ExpiresAt.UTC().After(now.UTC()) {
		if err := j.db.WithContext(ctx).
			Where("key = ?", strings.TrimSpace(key)).
			Delete(&idempotencyModel{}).Error; err != nil {
			return ports.IdempotencyRecord{}, false, logFailure(j.logger, "governance_journal_idempotency_expire_failed", err,
				"idempotency_key", strings.TrimSpace(key),
			)
		}
		return ports.IdempotencyRecord{}, false, nil
	}
	return ports.IdempotencyRecord{
		Key:         row.Key,
		RequestHash: row.RequestHash,
		ResourceID:  row.ResourceID,
		ExpiresAt:   row.ExpiresAt.UTC(),
	}, true, nil
}

func (j *Journal) Put(ctx context.Context, record ports.IdempotencyRecord) error {
	row := idempotencyModel{
		Key:         strings.TrimSpace(record.Key),
		RequestHash: strings.TrimSpace(record.RequestHash),
		ResourceID:  strings.TrimSpace(record.ResourceID),
		ExpiresAt:   record.ExpiresAt.UTC(),
	}
	create := j.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return logFailure(j.logger, "governance_journal_idempotency_put_failed", create.Error, "idempotency_key", row.Key)
	}
	if create.RowsAffected > 0 {
		return nil
	}

	var existing idempotencyModel
	if err := j.db.WithContext(ctx).
		Where("key = ?", row.Key).
		First(&existing).Error; err != nil {
		return logFailure(j.logger, "governance_journal_idempotency_load_existing_failed", err, "idempotency_key", row.Key)
	}
	if existing.RequestHash != row.RequestHash || existing.ResourceID != row.ResourceID {
		return domainerrors.ErrIdempotencyConflict
	}
	return nil
}

func (j *Journal) AppendOutbox(ctx context.Context, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return logFailure(j.logger, "governance_journal_outbox_marshal_failed", err,
			"event_id", strings.TrimSpace(envelope.EventID),
			"event_type", strings.TrimSpace(envelope.EventType),
		)
	}
	row := outboxModel{
		OutboxID:     strings.TrimSpace(envelope.EventID),
		EventType:    strings.TrimSpace(envelope.EventType),
		TenantKey:    strings.TrimSpace(envelope.TenantKey),
		PartitionKey: strings.TrimSpace(envelope.EntityID),
		Payload:      datatypes.JSON(payload),
		Status:       outboxStatusPending,
		CreatedAt:    envelope.OccurredAtUTC.UTC(),
	}
	if row.OutboxID == "" {
		row.OutboxID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	create := j.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "outbox_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return logFailure(j.logger, "governance_journal_outbox_insert_failed", create.Error,
			"outbox_id", row.OutboxID,
		)
	}
	if create.RowsAffected > 0 {
		return nil
	}

	var existing outboxModel
	if err := j.db.WithContext(ctx).
		Select("payload").
		Where("outbox_id = ?", row.OutboxID).
		First(&existing).Error; err != nil {
		return logFailure(j.logger, "governance_journal_outbox_load_existing_failed", err,
			"outbox_id", row.OutboxID,
		)
	}
	if !bytes.Equal(existing.Payload, row.Payload) {
		return domainerrors.ErrIdempotencyConflict
	}
	return nil
}

func (j *Journal) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []outboxModel
	if err := j.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("created_at ASC").
		Order("outbox_id ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, logFailure(j.logger, "governance_journal_list_pending_outbox_failed", err, "limit", limit)
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.OutboxMessage{
			OutboxID:     row.OutboxID,
			EventType:    row.EventType,
			PartitionKey: row.PartitionKey,
			Payload:      append([]byte(nil), row.Payload...),
			CreatedAt:    row.CreatedAt.UTC(),
		})
	}
	return items, nil
}

func (j *Journal) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	result := j.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", strings.TrimSpace(outboxID)).
		Updates(map[string]any{
			"status":       outboxStatusPublished,
			"published_at": publishedAt.UTC(),
		})
	if result.Error != nil {
		return logFailure(j.logger, "governance_journal_mark_outbox_published_failed", result.Error,
			"outbox_id", strings.TrimSpace(outboxID),
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.Unavailable("mark outbox published", errors.New("outbox row not found"))
	}
	return nil
}

func (j *Journal) ReserveEvent(
	ctx context.Context,
	eventID string,
	payloadHash string,
	expiresAt time.Time,
) (bool, error) {
	row := eventDedupModel{
		EventID:     strings.TrimSpace(eventID),
		PayloadHash: strings.TrimSpace(payloadHash),
		ExpiresAt:   expiresAt.UTC(),
		ProcessedAt: time.Now().UTC(),
	}
	create := j.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return false, logFailure(j.logger, "governance_journal_reserve_event_failed", create.Error,
			"event_id", row.EventID,
		)
	}
	if create.RowsAffected > 0 {
		return false, nil
	}

	var existing eventDedupModel
	if err := j.db.WithContext(ctx).
		Select("payload_hash").
		Where("event_id = ?", row.EventID).
		First(&existing).Error; err != nil {
		return false, logFailure(j.logger, "governance_journal_reserve_event_load_existing_failed", err,
			"event_id", row.EventID,
		)
	}
	if existing.PayloadHash != row.PayloadHash {
		return false, domainerrors.ErrIdempotencyConflict
	}
	return true, nil
}

func (j *Journal) ReleaseEvent(ctx context.Context, eventID string) error {
	key := strings.TrimSpace(eventID)
	if err := j.db.WithContext(ctx).
		Where("event_id = ?", key).
		Delete(&eventDedupModel{}).Error; err != nil {
		return logFailure(j.logger, "governance_journal_release_event_failed", err,
			"event_id", key,
		)
	}
	return nil
}

type idempotencyModel struct {
	Key         string    `gorm:"column:key;primaryKey"`
	RequestHash string    `gorm:"column:request_hash"`
	ResourceID  string    `gorm:"column:resource_id"`
	ExpiresAt   time.Time `gorm:"column:expires_at"`
}

func (idempotencyModel) TableName() string {
	return "public.governance_idempotency"
}

type outboxModel struct {
	OutboxID     string         `gorm:"column:outbox_id;primaryKey"`
	EventType    string         `gorm:"column:event_type"`
	TenantKey    string         `gorm:"column:tenant_key"`
	PartitionKey string         `gorm:"column:partition_key"`
	Payload      datatypes.JSON `gorm:"column:payload"`
	Status       string         `gorm:"column:status;index"`
	CreatedAt    time.Time      `gorm:"column:created_at"`
	PublishedAt  *time.Time     `gorm:"column:published_at"`
}

func (outboxModel) TableName() string {
	return "public.governance_outbox"
}

type eventDedupModel struct {
	EventID     string    `gorm:"column:event_id;primaryKey"`
	PayloadHash string    `gorm:"column:payload_hash"`
	ExpiresAt   time.Time `gorm:"column:expires_at"`
	ProcessedAt time.Time `gorm:"column:processed_at"`
}

func (eventDedupModel) TableName() string {
	return "public.governance_event_dedup"
}

var (
	_ ports.IdempotencyStore = (*Journal)(nil)
	_ ports.OutboxWriter     = (*Journal)(nil)
	_ ports.OutboxRepository = (*Journal)(nil)
	_ ports.EventDedupStore  = (*Journal)(nil)
)
