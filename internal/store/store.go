// Package store persists conversation state and the append-only compliance audit log.
package store

import (
	"context"
	"errors"

	"github.com/capitalize-ai/handoff-engine/internal/model"
)

var (
	// ErrNotFound is returned when no state exists for a conversation.
	ErrNotFound = errors.New("conversation state not found")

	// ErrVersionConflict is returned when a state was saved by someone else since it was loaded.
	ErrVersionConflict = errors.New("conversation state version conflict")
)

// Store persists ConversationState snapshots and their audit log.
//
// SaveState succeeds only when the stored version equals state.Version (zero for a new
// conversation) and increments state.Version on success. The audit entries passed to
// SaveState are appended in the same atomic write: either the snapshot and its entries are
// both stored or neither is. The audit log is never part of the snapshot; LoadState hydrates
// it from the entries.
type Store interface {
	LoadState(ctx context.Context, conversationID string) (*model.ConversationState, error)
	SaveState(ctx context.Context, state *model.ConversationState, audit ...model.PolicyLogEntry) error
	AppendAudit(ctx context.Context, conversationID string, entries ...model.PolicyLogEntry) error
	AuditLog(ctx context.Context, conversationID string) ([]model.PolicyLogEntry, error)
	Close() error
}
