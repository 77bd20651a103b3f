package redisadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	domainerrors "condominia/contexts/governance/assembly-service/domain/errors"
	"condominia/contexts/governance/assembly-service/ports"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "governance:idempotency:"

// IdempotencyStore keeps create-assembly replay keys in Redis. Keys expire
// with the record, so Get never has to prune.
type IdempotencyStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
	logger *slog.Logger
}

func NewIdempotencyStore(client redis.UniversalClient, prefix string, logger *slog.Logger) *IdempotencyStore {
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultKeyPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IdempotencyStore{
		client: client,
		prefix: prefix,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

type storedRecord struct {
	RequestHash string    `json:"request_hash"`
	ResourceID  string    `json:"resource_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (s *IdempotencyStore) Get(ctx context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	key = strings.TrimSpace(key)
	raw, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ports.IdempotencyRecord{}, false, nil
	}
	if err != nil {
		return ports.IdempotencyRecord{}, false, s.logError("governance_redis_idempotency_get_failed", err, key)
	}
	var stored storedRecord
	if err := json.Unmarshal(raw, &stored); err != nil {
		return ports.IdempotencyRecord{}, false, s.logError("governance_redis_idempotency_decode_failed", err, key)
	}
	if !stored.ExpiresAt.After(now.UTC()) {
		return ports.IdempotencyRecord{}, false, nil
	}
	return ports.IdempotencyRecord{
		Key:         key,
		RequestHash: stored.RequestHash,
		ResourceID:  stored.ResourceID,
		ExpiresAt:   stored.ExpiresAt.UTC(),
	}, true, nil
}

// Put writes the key only if absent. A second writer with a different
// request hash or resource gets ErrIdempotencyConflict.
func (s *IdempotencyStore) Put(ctx context.Context, record ports.IdempotencyRecord) error {
	key := strings.TrimSpace(record.Key)
	stored := storedRecord{
		RequestHash: strings.TrimSpace(record.RequestHash),
		ResourceID:  strings.TrimSpace(record.ResourceID),
		ExpiresAt:   record.ExpiresAt.UTC(),
	}
	ttl := stored.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(stored)
	if err != nil {
		return s.logError("governance_redis_idempotency_encode_failed", err, key)
	}
	created, err := s.client.SetNX(ctx, s.prefix+key, raw, ttl).Result()
	if err != nil {
		return s.logError("governance_redis_idempotency_put_failed", err, key)
	}
	if created {
		return nil
	}
	existing, found, err := s.Get(ctx, key, s.now())
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	if existing.RequestHash != stored.RequestHash || existing.ResourceID != stored.ResourceID {
		return domainerrors.ErrIdempotencyConflict
	}
	return nil
}

func (s *IdempotencyStore) logError(event string, err error, key string) error {
	s.logger.Error("governance redis operation failed",
		"event", event,
		"module", "governance/assembly-service",
		"layer", "adapter",
		"idempotency_key", key,
		"error", err.Error(),
	)
	return domainerrors.Unavailable(event, err)
}

var _ ports.IdempotencyStore = (*IdempotencyStore)(nil)
