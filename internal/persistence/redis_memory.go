package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"triage-assistant/internal/platform/logger"
	"triage-assistant/internal/triage"
)

// MemoryStore holds the cross-chat key/value memory of a user.
type MemoryStore interface {
	GetAll(ctx context.Context, userID uuid.UUID) (map[string]string, error)
	Upsert(ctx context.Context, userID uuid.UUID, values map[string]string) error
}

// RedisMemory keeps each user's memory in one hash.
type RedisMemory struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewRedisMemory(rdb redis.Cmdable, ttl time.Duration) *RedisMemory {
	return &RedisMemory{rdb: rdb, prefix: "triage:memory:", ttl: ttl}
}

func (m *RedisMemory) key(userID uuid.UUID) string {
	return m.prefix + userID.String()
}

func (m *RedisMemory) GetAll(ctx context.Context, userID uuid.UUID) (map[string]string, error) {
	vals, err := m.rdb.HGetAll(ctx, m.key(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	return vals, nil
}

func (m *RedisMemory) Upsert(ctx context.Context, userID uuid.UUID, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	key := m.key(userID)
	_, err := m.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, values)
		if m.ttl > 0 {
			pipe.Expire(ctx, key, m.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

// memoryBackend caches memory in a MemoryStore in front of the wrapped
// backend, which stays the source of truth. Every other call goes straight
// to the wrapped backend.
type memoryBackend struct {
	triage.Backend
	mem MemoryStore
	log *logger.Logger
}

// WithMemory puts mem in front of b for cross-chat memory.
func WithMemory(b triage.Backend, mem MemoryStore, log *logger.Logger) triage.Backend {
	if mem == nil {
		return b
	}
	if log == nil {
		log = logger.Nop()
	}
	return &memoryBackend{Backend: b, mem: mem, log: log}
}

// GetAllMemory reads the cache and falls back to the backend on a miss or a
// cache error, refilling the cache from what the backend returned.
func (b *memoryBackend) GetAllMemory(ctx context.Context, userID uuid.UUID) (map[string]string, error) {
	cached, err := b.mem.GetAll(ctx, userID)
	if err != nil {
		b.log.Warn("memory cache read failed", "user_id", userID.String(), "error", err)
	} else if len(cached) > 0 {
		return cached, nil
	}

	stored, err := b.Backend.GetAllMemory(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(stored) > 0 {
		if err := b.mem.Upsert(ctx, userID, stored); err != nil {
			b.log.Warn("memory cache refill failed", "user_id", userID.String(), "error", err)
		}
	}
	return stored, nil
}

// UpsertMemory writes the backend first; the cache write is best effort.
func (b *memoryBackend) UpsertMemory(ctx context.Context, userID uuid.UUID, values map[string]string) error {
	if err := b.Backend.UpsertMemory(ctx, userID, values); err != nil {
		return err
	}
	if err := b.mem.Upsert(ctx, userID, values); err != nil {
		b.log.Warn("memory cache write failed", "user_id", userID.String(), "error", err)
	}
	return nil
}
