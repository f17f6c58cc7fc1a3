package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/handoff-engine/internal/model"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisStore(client, time.Hour), mr
}

func drivers(t *testing.T) map[string]Store {
	rs, _ := newRedisStore(t)
	return map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  rs,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			defer s.Close()

			_, err := s.LoadState(ctx, "c1")
			require.ErrorIs(t, err, ErrNotFound)

			st := model.NewConversationState("c1", "p1", "u1", 5)
			st.History.Append(model.HistoryEntry{Role: model.RoleCounterparty, Text: "oi"})
			require.NoError(t, s.SaveState(ctx, st))
			assert.Equal(t, int64(1), st.Version)

			got, err := s.LoadState(ctx, "c1")
			require.NoError(t, err)
			assert.Equal(t, int64(1), got.Version)
			assert.Equal(t, "p1", got.PersonaID)
			assert.Equal(t, model.StatusAutomated, got.HandoffStatus)
			require.Equal(t, 1, got.History.Len())
			assert.Equal(t, "oi", got.History.Entries[0].Text)
			assert.Empty(t, got.AuditLog)

			got.HandoffStatus = model.StatusEscalated
			require.NoError(t, s.SaveState(ctx, got))
			assert.Equal(t, int64(2), got.Version)
		})
	}
}

func TestStoreVersionConflict(t *testing.T) {
	ctx := context.Background()
	for name, s := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			st := model.NewConversationState("c1", "p1", "u1", 5)
			require.NoError(t, s.SaveState(ctx, st))

			a, err := s.LoadState(ctx, "c1")
			require.NoError(t, err)
			b, err := s.LoadState(ctx, "c1")
			require.NoError(t, err)

			require.NoError(t, s.SaveState(ctx, a))
			assert.ErrorIs(t, s.SaveState(ctx, b), ErrVersionConflict)

			fresh := model.NewConversationState("c1", "p1", "u1", 5)
			assert.ErrorIs(t, s.SaveState(ctx, fresh), ErrVersionConflict)
		})
	}
}

func TestSaveStateWritesAuditWithSnapshot(t *testing.T) {
	ctx := context.Background()
	for name, s := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			st := model.NewConversationState("c1", "p1", "u1", 5)
			entry := model.PolicyLogEntry{ID: "1", Action: model.ActionEscalated, Reason: "DISTRESS"}
			require.NoError(t, s.SaveState(ctx, st, entry))

			got, err := s.LoadState(ctx, "c1")
			require.NoError(t, err)
			assert.Equal(t, int64(1), got.Version)
			require.Len(t, got.AuditLog, 1)
			assert.Equal(t, "1", got.AuditLog[0].ID)

			stale := model.NewConversationState("c1", "p1", "u1", 5)
			err = s.SaveState(ctx, stale, model.PolicyLogEntry{ID: "2", Action: model.ActionSilenced})
			assert.ErrorIs(t, err, ErrVersionConflict)

			entries, err := s.AuditLog(ctx, "c1")
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, "1", entries[0].ID)
		})
	}
}

func TestStoreAuditIsAppendOnly(t *testing.T) {
	ctx := context.Background()
	for name, s := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			first := model.PolicyLogEntry{ID: "1", Action: model.ActionSilenced, Reason: "STOP_TRIGGER"}
			second := model.PolicyLogEntry{ID: "2", Action: model.ActionEscalated, Reason: "DISTRESS", Detail: "socorro"}
			third := model.PolicyLogEntry{ID: "3", Action: model.ActionBlocked, Reason: "FORBIDDEN_TERM"}

			require.NoError(t, s.AppendAudit(ctx, "c1", first))
			require.NoError(t, s.AppendAudit(ctx, "c1", second, third))
			require.NoError(t, s.AppendAudit(ctx, "c1"))

			entries, err := s.AuditLog(ctx, "c1")
			require.NoError(t, err)
			require.Len(t, entries, 3)
			assert.Equal(t, []string{"1", "2", "3"}, []string{entries[0].ID, entries[1].ID, entries[2].ID})
			assert.Equal(t, "socorro", entries[1].Detail)

			empty, err := s.AuditLog(ctx, "other")
			require.NoError(t, err)
			assert.Empty(t, empty)

			st := model.NewConversationState("c1", "p1", "u1", 5)
			st.AuditLog = []model.PolicyLogEntry{{ID: "ignored"}}
			require.NoError(t, s.SaveState(ctx, st))
			got, err := s.LoadState(ctx, "c1")
			require.NoError(t, err)
			assert.Len(t, got.AuditLog, 3)
			assert.Equal(t, "1", got.AuditLog[0].ID)
		})
	}
}

func TestMemoryStoreIsolatesSnapshots(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	st := model.NewConversationState("c1", "p1", "u1", 5)
	require.NoError(t, s.SaveState(ctx, st))

	st.History.Append(model.HistoryEntry{Text: "after save"})
	got, err := s.LoadState(ctx, "c1")
	require.NoError(t, err)
	assert.Zero(t, got.History.Len())
}

func TestRedisStoreSetsTTL(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t)

	require.NoError(t, s.SaveState(ctx, model.NewConversationState("c1", "p1", "u1", 5)))
	require.NoError(t, s.AppendAudit(ctx, "c1", model.PolicyLogEntry{ID: "1"}))

	assert.Equal(t, time.Hour, mr.TTL(stateKeyPrefix+"c1"))
	assert.Equal(t, time.Hour, mr.TTL(auditKeyPrefix+"c1"))

	mr.FastForward(2 * time.Hour)
	_, err := s.LoadState(ctx, "c1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	defer client.Close()

	_, err = NewRedisClient(context.Background(), "not-a-url")
	assert.Error(t, err)
}
