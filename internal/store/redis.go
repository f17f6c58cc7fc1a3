package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/capitalize-ai/handoff-engine/internal/model"
)

const (
	stateKeyPrefix = "handoff:state:"
	auditKeyPrefix = "handoff:audit:"

	// DefaultTTL is how long an idle conversation is kept.
	DefaultTTL = 30 * 24 * time.Hour
)

var redisTracer = otel.Tracer("handoff.internal.store.redis")

// RedisStore persists state as a JSON snapshot and the audit log as a Redis list. Saves are
// guarded by WATCH/MULTI on the stored version.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

// NewRedisClient parses a redis:// URL and verifies the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// LoadState implements Store.
func (s *RedisStore) LoadState(ctx context.Context, conversationID string) (*model.ConversationState, error) {
	ctx, span := redisTracer.Start(ctx, "store.redis.load_state")
	defer span.End()
	span.SetAttributes(attribute.String("handoff.conversation_id", conversationID))

	val, err := s.client.Get(ctx, s.stateKey(conversationID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	var st model.ConversationState
	if err := json.Unmarshal(val, &st); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to decode state: %w", err)
	}

	st.AuditLog, err = s.AuditLog(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// SaveState implements Store.
func (s *RedisStore) SaveState(ctx context.Context, state *model.ConversationState, audit ...model.PolicyLogEntry) error {
	ctx, span := redisTracer.Start(ctx, "store.redis.save_state")
	defer span.End()
	span.SetAttributes(
		attribute.String("handoff.conversation_id", state.ConversationID),
		attribute.Int64("handoff.version", state.Version),
		attribute.Int("handoff.audit_entries", len(audit)),
	)

	entries, err := encodeAudit(audit)
	if err != nil {
		return err
	}

	key := s.stateKey(state.ConversationID)
	auditKey := s.auditKey(state.ConversationID)
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		var current int64
		val, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			var stored model.ConversationState
			if err := json.Unmarshal(val, &stored); err != nil {
				return err
			}
			current = stored.Version
		}
		if current != state.Version {
			return ErrVersionConflict
		}

		next := *state
		next.Version++
		next.UpdatedAt = time.Now().UTC()
		data, err := json.Marshal(&next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			if len(entries) > 0 {
				pipe.RPush(ctx, auditKey, entries...)
			}
			pipe.Expire(ctx, auditKey, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		state.Version = next.Version
		state.UpdatedAt = next.UpdatedAt
		return nil
	}, key)

	switch {
	case errors.Is(err, ErrVersionConflict), errors.Is(err, redis.TxFailedErr):
		return ErrVersionConflict
	case err != nil:
		span.RecordError(err)
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

// AppendAudit implements Store.
func (s *RedisStore) AppendAudit(ctx context.Context, conversationID string, entries ...model.PolicyLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	values, err := encodeAudit(entries)
	if err != nil {
		return err
	}

	key := s.auditKey(conversationID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, values...)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append audit: %w", err)
	}
	return nil
}

// AuditLog implements Store.
func (s *RedisStore) AuditLog(ctx context.Context, conversationID string) ([]model.PolicyLogEntry, error) {
	raw, err := s.client.LRange(ctx, s.auditKey(conversationID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read audit: %w", err)
	}
	out := make([]model.PolicyLogEntry, 0, len(raw))
	for _, item := range raw {
		var entry model.PolicyLogEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, fmt.Errorf("failed to decode audit entry: %w", err)
		}
		out = append(out, entry)
	}
	return out, nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func encodeAudit(entries []model.PolicyLogEntry) ([]any, error) {
	values := make([]any, len(entries))
	for i := range entries {
		data, err := json.Marshal(&entries[i])
		if err != nil {
			return nil, fmt.Errorf("failed to encode audit entry: %w", err)
		}
		values[i] = data
	}
	return values, nil
}

func (s *RedisStore) stateKey(id string) string {
	return stateKeyPrefix + id
}

func (s *RedisStore) auditKey(id string) string {
	return auditKeyPrefix + id
}
