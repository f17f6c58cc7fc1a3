package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/handoff-engine/internal/model"
	"github.com/capitalize-ai/handoff-engine/pkg/metrics"
)

const (
	// AuditStreamName is the append-only mirror of every policy audit entry.
	AuditStreamName = "POLICY_AUDIT"

	// EventStreamName holds hand-off notices for operator tooling.
	EventStreamName = "HANDOFF_EVENTS"

	// SubjectPrefix is the prefix for all engine subjects.
	SubjectPrefix = "handoff"
)

// StreamManager handles JetStream stream operations.
type StreamManager struct {
	js jetstream.JetStream
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client) *StreamManager {
	return &StreamManager{js: client.JetStream()}
}

// EnsureStreams creates the audit and event streams when missing. The audit stream denies
// deletes and purges so entries can never be rewritten.
func (m *StreamManager) EnsureStreams(ctx context.Context) error {
	configs := []jetstream.StreamConfig{
		{
			Name:        AuditStreamName,
			Subjects:    []string{SubjectPrefix + ".audit.>"},
			Retention:   jetstream.LimitsPolicy,
			MaxAge:      5 * 365 * 24 * time.Hour,
			Storage:     jetstream.FileStorage,
			Replicas:    1,
			Compression: jetstream.S2Compression,
			DenyDelete:  true,
			DenyPurge:   true,
			Description: "Append-only compliance audit log",
		},
		{
			Name:        EventStreamName,
			Subjects:    []string{SubjectPrefix + ".events.>"},
			Retention:   jetstream.LimitsPolicy,
			MaxAge:      30 * 24 * time.Hour,
			Storage:     jetstream.FileStorage,
			Replicas:    1,
			Description: "Conversation hand-off notices",
		},
	}

	for _, cfg := range configs {
		if _, err := m.js.Stream(ctx, cfg.Name); err == nil {
			continue
		} else if !errors.Is(err, jetstream.ErrStreamNotFound) {
			return fmt.Errorf("failed to look up stream %s: %w", cfg.Name, err)
		}
		if _, err := m.js.CreateStream(ctx, cfg); err != nil {
			return fmt.Errorf("failed to create stream %s: %w", cfg.Name, err)
		}
	}
	return nil
}

// InboundSubject returns the subject counterpart messages for a conversation arrive on.
func InboundSubject(conversationID string) string {
	return fmt.Sprintf("%s.inbound.%s", SubjectPrefix, conversationID)
}

// InboundWildcard matches every inbound subject.
func InboundWildcard() string {
	return SubjectPrefix + ".inbound.>"
}

// OutboundSubject returns the subject replies for a conversation are published on.
func OutboundSubject(conversationID string) string {
	return fmt.Sprintf("%s.outbound.%s", SubjectPrefix, conversationID)
}

// AuditSubject returns the audit mirror subject for a conversation.
func AuditSubject(conversationID string) string {
	return fmt.Sprintf("%s.audit.%s", SubjectPrefix, conversationID)
}

// EventSubject returns the hand-off event subject for a conversation.
func EventSubject(conversationID string) string {
	return fmt.Sprintf("%s.events.%s", SubjectPrefix, conversationID)
}

// PublishAudit mirrors an audit entry to the audit stream. The entry ID doubles as the
// JetStream message ID so a retried publish is deduplicated.
func (m *StreamManager) PublishAudit(ctx context.Context, conversationID string, entry *model.PolicyLogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	if _, err := m.js.Publish(ctx, AuditSubject(conversationID), data, jetstream.WithMsgID(entry.ID)); err != nil {
		return fmt.Errorf("failed to publish audit entry: %w", err)
	}
	return nil
}

// NotifyHandoff publishes a hand-off notice for operators.
func (m *StreamManager) NotifyHandoff(ctx context.Context, event *model.HandoffEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := m.js.Publish(ctx, EventSubject(event.ConversationID), data, jetstream.WithMsgID(event.ID)); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// ReadAudit reads up to limit mirrored audit entries of a conversation, oldest first.
func (m *StreamManager) ReadAudit(ctx context.Context, conversationID string, limit int) ([]model.PolicyLogEntry, error) {
	consumer, err := m.js.OrderedConsumer(ctx, AuditStreamName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{AuditSubject(conversationID)},
		DeliverPolicy:  jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	batch, err := consumer.Fetch(limit, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch audit entries: %w", err)
	}

	var entries []model.PolicyLogEntry
	for msg := range batch.Messages() {
		var entry model.PolicyLogEntry
		if err := json.Unmarshal(msg.Data(), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := batch.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("batch error: %w", err)
	}
	return entries, nil
}

// CollectStats records stream sizes as metrics.
func (m *StreamManager) CollectStats(ctx context.Context) error {
	for _, name := range []string{AuditStreamName, EventStreamName} {
		stream, err := m.js.Stream(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to look up stream %s: %w", name, err)
		}
		info, err := stream.Info(ctx)
		if err != nil {
			return fmt.Errorf("failed to read stream %s: %w", name, err)
		}
		metrics.RecordStreamInfo(name, info.State.Msgs, info.State.Bytes)
	}
	return nil
}
