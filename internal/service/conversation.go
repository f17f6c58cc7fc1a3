// Package service orchestrates conversations: inbound evaluation, reply generation, outbound
// validation and hand-off control.
package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/handoff-engine/internal/archetype"
	"github.com/capitalize-ai/handoff-engine/internal/handoff"
	"github.com/capitalize-ai/handoff-engine/internal/model"
	"github.com/capitalize-ai/handoff-engine/internal/policy"
	"github.com/capitalize-ai/handoff-engine/internal/store"
	"github.com/capitalize-ai/handoff-engine/pkg/logger"
	"github.com/capitalize-ai/handoff-engine/pkg/metrics"
)

var (
	// ErrConversationNotFound is returned for operations on a conversation that was never seen.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrInvalidInput is returned for malformed requests.
	ErrInvalidInput = errors.New("invalid input")
)

// Audit reasons recorded by the orchestrator itself.
const (
	ReasonMaxConsecutiveAuto = "MAX_CONSECUTIVE_AUTO"
	ReasonGenerationFailed   = "GENERATION_FAILED"
	ReasonTruncated          = "TRUNCATED"
	ReasonAckSuppressed      = "HANDOFF_ACK_SUPPRESSED"
)

var tracer = otel.Tracer("handoff.internal.service")

// Generator produces the next automated reply for a conversation.
type Generator interface {
	Complete(ctx context.Context, systemPrompt string, history []model.HistoryEntry) (string, error)
}

// Notifier tells human operators that a conversation changed control state.
type Notifier interface {
	NotifyHandoff(ctx context.Context, event *model.HandoffEvent) error
}

// AuditSink receives a copy of every audit entry after it is stored.
type AuditSink interface {
	PublishAudit(ctx context.Context, conversationID string, entry *model.PolicyLogEntry) error
}

// Reply is an automated message the transport should deliver after Delay.
type Reply struct {
	Text  string
	Delay time.Duration
	Kind  model.ReplyKind
}

// HandoffResult is the outcome of an operator request.
type HandoffResult struct {
	Applied bool                `json:"applied"`
	From    model.HandoffStatus `json:"from"`
	To      model.HandoffStatus `json:"to"`
	Message string              `json:"message"`
}

// Option configures a ConversationService.
type Option func(*ConversationService)

// WithNotifier sets the operator notifier.
func WithNotifier(n Notifier) Option {
	return func(s *ConversationService) { s.notifier = n }
}

// WithAuditSink sets the audit mirror.
func WithAuditSink(a AuditSink) Option {
	return func(s *ConversationService) { s.auditSink = a }
}

// WithHistoryCapacity sets the history window size for new conversations.
func WithHistoryCapacity(n int) Option {
	return func(s *ConversationService) {
		if n > 0 {
			s.historyCapacity = n
		}
	}
}

// WithRandom overrides the [0,1) source used for reply delays.
func WithRandom(f func() float64) Option {
	return func(s *ConversationService) {
		if f != nil {
			s.random = f
		}
	}
}

// ConversationService is the conversation orchestrator. All mutations of one conversation
// run on its dispatcher shard.
type ConversationService struct {
	store      store.Store
	registry   *archetype.Registry
	generator  Generator
	dispatcher *Dispatcher
	notifier   Notifier
	auditSink  AuditSink
	logger     *logger.Logger

	historyCapacity int
	random          func() float64
}

// NewConversationService creates the orchestrator.
func NewConversationService(
	st store.Store,
	registry *archetype.Registry,
	generator Generator,
	dispatcher *Dispatcher,
	log *logger.Logger,
	opts ...Option,
) *ConversationService {
	s := &ConversationService{
		store:           st,
		registry:        registry,
		generator:       generator,
		dispatcher:      dispatcher,
		logger:          log,
		historyCapacity: model.DefaultHistoryCapacity,
		random:          rand.Float64,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleInbound processes one counterpart message and returns the reply to send, or nil
// when automation stays silent. Errors are returned only for invalid input, an unknown
// persona or a persistence failure.
func (s *ConversationService) HandleInbound(ctx context.Context, conversationID, personaID, fromID, text string) (*Reply, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, fmt.Errorf("%w: conversation id is required", ErrInvalidInput)
	}

	var reply *Reply
	err := s.dispatcher.Do(ctx, conversationID, func(ctx context.Context) error {
		var err error
		reply, err = s.handleInbound(ctx, conversationID, personaID, fromID, text)
		return err
	})
	if err != nil {
		return nil, err
	}
	return reply, nil
}

func (s *ConversationService) handleInbound(ctx context.Context, conversationID, personaID, fromID, text string) (*Reply, error) {
	ctx, span := tracer.Start(ctx, "service.handle_inbound")
	defer span.End()
	span.SetAttributes(attribute.String("handoff.conversation_id", conversationID))

	st, err := s.loadOrCreate(ctx, conversationID, personaID, fromID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	entry, ok := s.registry.Get(st.PersonaID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPersona, st.PersonaID)
	}
	eval := entry.Evaluator
	p := entry.Policy
	log := s.logger.WithConversation(conversationID, p.PersonaID)
	span.SetAttributes(attribute.String("handoff.persona_id", p.PersonaID))

	st.History.Append(model.HistoryEntry{Role: model.RoleCounterparty, Text: text, Timestamp: time.Now().UTC()})

	if !handoff.CanReply(st) {
		log.Debug("inbound recorded, automation paused", zap.String("status", string(st.HandoffStatus)))
		return nil, s.commit(ctx, st, nil)
	}

	res := eval.ClassifyInbound(text)
	metrics.RecordInbound(p.PersonaID, string(res.Verdict), res.Reason)
	span.SetAttributes(
		attribute.String("handoff.verdict", string(res.Verdict)),
		attribute.String("handoff.reason", res.Reason),
	)

	capped := handoff.CapReached(st, p.Compliance.MaxConsecutiveAutoMessages)
	handoff.RecordCounterpart(st)

	switch res.Verdict {
	case policy.VerdictSilence:
		log.Info("inbound silenced", zap.String("reason", res.Reason), zap.String("matched", res.Matched))
		return nil, s.commit(ctx, st, []model.PolicyLogEntry{
			newEntry(model.ActionSilenced, res.Reason, res.Matched),
		})

	case policy.VerdictEscalate:
		return s.escalate(ctx, log, st, eval, res, capped)
	}

	if capped {
		log.Info("automated streak cap reached, staying silent",
			zap.Int("max", p.Compliance.MaxConsecutiveAutoMessages))
		return nil, s.commit(ctx, st, []model.PolicyLogEntry{
			newEntry(model.ActionStopped, ReasonMaxConsecutiveAuto, fmt.Sprintf("max=%d", p.Compliance.MaxConsecutiveAutoMessages)),
		})
	}

	generated, err := s.generator.Complete(ctx, BuildSystemPrompt(p), st.History.Entries)
	if err != nil {
		span.RecordError(err)
		log.Warn("generation failed, staying silent", zap.Error(err))
		return nil, s.commit(ctx, st, []model.PolicyLogEntry{
			newEntry(model.ActionSilenced, ReasonGenerationFailed, err.Error()),
		})
	}

	out := eval.ValidateOutbound(generated)
	var audit []model.PolicyLogEntry
	switch {
	case !out.Allowed:
		metrics.RecordOutbound(p.PersonaID, "blocked", out.Reason)
		log.Info("reply blocked, fallback substituted", zap.String("reason", out.Reason), zap.String("matched", out.Matched))
		audit = append(audit, newEntry(model.ActionBlocked, out.Reason, out.Matched))
	case out.Truncated:
		metrics.RecordOutbound(p.PersonaID, "modified", ReasonTruncated)
		audit = append(audit, newEntry(model.ActionModified, ReasonTruncated,
			fmt.Sprintf("limit=%d", p.MaxCharsPerMessage)))
	default:
		metrics.RecordOutbound(p.PersonaID, "allowed", out.Reason)
	}

	st.History.Append(model.HistoryEntry{Role: model.RoleAutomated, Text: out.FinalText, Timestamp: time.Now().UTC()})
	handoff.RecordAutomated(st)
	if err := s.commit(ctx, st, audit); err != nil {
		return nil, err
	}

	return &Reply{Text: out.FinalText, Delay: s.delay(p.DelayRange), Kind: model.ReplyKindReply}, nil
}

func (s *ConversationService) escalate(
	ctx context.Context,
	log *logger.Logger,
	st *model.ConversationState,
	eval *policy.Evaluator,
	res policy.InboundResult,
	capped bool,
) (*Reply, error) {
	tr, err := handoff.Escalate(st)
	if err != nil {
		return nil, err
	}
	metrics.RecordTransition(string(tr.From), string(tr.To))
	log.Warn("conversation escalated", zap.String("reason", res.Reason), zap.String("matched", res.Matched))

	audit := []model.PolicyLogEntry{newEntry(model.ActionEscalated, res.Reason, res.Matched)}

	var reply *Reply
	if capped {
		audit = append(audit, newEntry(model.ActionStopped, ReasonAckSuppressed, ReasonMaxConsecutiveAuto))
	} else {
		ack := eval.HandoffMessage()
		st.History.Append(model.HistoryEntry{Role: model.RoleAutomated, Text: ack, Timestamp: time.Now().UTC()})
		handoff.RecordAutomated(st)
		reply = &Reply{Text: ack, Delay: s.delay(eval.Policy().DelayRange), Kind: model.ReplyKindHandoff}
	}

	if err := s.commit(ctx, st, audit); err != nil {
		return nil, err
	}
	s.notify(ctx, st, tr, res.Reason, "")
	return reply, nil
}

// TakeOver hands an escalated conversation to a human operator.
func (s *ConversationService) TakeOver(ctx context.Context, conversationID, operator string) (*HandoffResult, error) {
	return s.transition(ctx, conversationID, operator, "takeover", handoff.TakeOver)
}

// ReturnToAutomated gives a human-controlled conversation back to automation.
func (s *ConversationService) ReturnToAutomated(ctx context.Context, conversationID, operator string) (*HandoffResult, error) {
	return s.transition(ctx, conversationID, operator, "return", handoff.Return)
}

func (s *ConversationService) transition(
	ctx context.Context,
	conversationID, operator, op string,
	apply func(*model.ConversationState) (handoff.Transition, error),
) (*HandoffResult, error) {
	var result *HandoffResult
	err := s.dispatcher.Do(ctx, conversationID, func(ctx context.Context) error {
		ctx, span := tracer.Start(ctx, "service."+op, trace.WithAttributes(
			attribute.String("handoff.conversation_id", conversationID),
			attribute.String("handoff.operator", operator),
		))
		defer span.End()

		st, err := s.load(ctx, conversationID)
		if err != nil {
			return err
		}

		tr, err := apply(st)
		result = &HandoffResult{Applied: tr.Applied, From: tr.From, To: tr.To}
		if err != nil {
			result.Message = err.Error()
			s.logger.Info("handoff request ignored",
				zap.String("conversation_id", conversationID),
				zap.String("operator", operator),
				zap.String("op", op),
				zap.String("status", string(st.HandoffStatus)),
			)
			return err
		}

		if err := s.commit(ctx, st, nil); err != nil {
			return err
		}
		metrics.RecordTransition(string(tr.From), string(tr.To))
		result.Message = fmt.Sprintf("conversation moved from %s to %s", tr.From, tr.To)
		s.logger.Info("handoff transition applied",
			zap.String("conversation_id", conversationID),
			zap.String("operator", operator),
			zap.String("from", string(tr.From)),
			zap.String("to", string(tr.To)),
		)
		s.notify(ctx, st, tr, strings.ToUpper(op), operator)
		return nil
	})
	return result, err
}

// RecordAutomatedSend records an automated message sent outside the reply path, such as a
// campaign or follow-up. It counts toward the consecutive automated streak.
func (s *ConversationService) RecordAutomatedSend(ctx context.Context, conversationID, personaID, text string) (*model.ConversationState, error) {
	if strings.TrimSpace(conversationID) == "" || strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: conversation id and text are required", ErrInvalidInput)
	}

	var out *model.ConversationState
	err := s.dispatcher.Do(ctx, conversationID, func(ctx context.Context) error {
		st, err := s.loadOrCreate(ctx, conversationID, personaID, "")
		if err != nil {
			return err
		}
		st.History.Append(model.HistoryEntry{Role: model.RoleAutomated, Text: text, Timestamp: time.Now().UTC()})
		handoff.RecordAutomated(st)
		if err := s.commit(ctx, st, nil); err != nil {
			return err
		}
		out = st
		return nil
	})
	return out, err
}

// RecordHumanReply keeps a human operator's message in the history window.
func (s *ConversationService) RecordHumanReply(ctx context.Context, conversationID, operator, text string) (*model.ConversationState, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text is required", ErrInvalidInput)
	}

	var out *model.ConversationState
	err := s.dispatcher.Do(ctx, conversationID, func(ctx context.Context) error {
		st, err := s.load(ctx, conversationID)
		if err != nil {
			return err
		}
		st.History.Append(model.HistoryEntry{Role: model.RoleHuman, Text: text, Timestamp: time.Now().UTC()})
		if err := s.commit(ctx, st, nil); err != nil {
			return err
		}
		s.logger.Debug("human reply recorded", zap.String("conversation_id", conversationID), zap.String("operator", operator))
		out = st
		return nil
	})
	return out, err
}

// State returns the current state of a conversation, audit log included.
func (s *ConversationService) State(ctx context.Context, conversationID string) (*model.ConversationState, error) {
	return s.load(ctx, conversationID)
}

// AuditLog returns a conversation's audit entries in append order.
func (s *ConversationService) AuditLog(ctx context.Context, conversationID string) ([]model.PolicyLogEntry, error) {
	st, err := s.load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return st.AuditLog, nil
}

func (s *ConversationService) load(ctx context.Context, conversationID string) (*model.ConversationState, error) {
	st, err := s.store.LoadState(ctx, conversationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	return st, nil
}

func (s *ConversationService) loadOrCreate(ctx context.Context, conversationID, personaID, fromID string) (*model.ConversationState, error) {
	st, err := s.load(ctx, conversationID)
	switch {
	case err == nil:
		if st.CounterpartID == "" {
			st.CounterpartID = fromID
		}
		return st, nil
	case !errors.Is(err, ErrConversationNotFound):
		return nil, err
	}

	if _, ok := s.registry.Get(personaID); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPersona, personaID)
	}
	s.logger.Info("conversation created",
		zap.String("conversation_id", conversationID),
		zap.String("persona_id", personaID),
	)
	return model.NewConversationState(conversationID, personaID, fromID, s.historyCapacity), nil
}

// commit saves the state together with its audit entries, then mirrors the entries.
func (s *ConversationService) commit(ctx context.Context, st *model.ConversationState, audit []model.PolicyLogEntry) error {
	if err := s.store.SaveState(ctx, st, audit...); err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	if len(audit) == 0 {
		return nil
	}
	st.AuditLog = append(st.AuditLog, audit...)

	for i := range audit {
		metrics.RecordAudit(string(audit[i].Action), 1)
		if s.auditSink == nil {
			continue
		}
		if err := s.auditSink.PublishAudit(ctx, st.ConversationID, &audit[i]); err != nil {
			s.logger.Warn("failed to mirror audit entry",
				zap.String("conversation_id", st.ConversationID),
				zap.String("entry_id", audit[i].ID),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (s *ConversationService) notify(ctx context.Context, st *model.ConversationState, tr handoff.Transition, reason, operator string) {
	if s.notifier == nil {
		return
	}
	event := &model.HandoffEvent{
		ID:             uuid.NewString(),
		ConversationID: st.ConversationID,
		PersonaID:      st.PersonaID,
		CounterpartID:  st.CounterpartID,
		From:           tr.From,
		To:             tr.To,
		Reason:         reason,
		Operator:       operator,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.notifier.NotifyHandoff(ctx, event); err != nil {
		s.logger.Warn("failed to notify operators",
			zap.String("conversation_id", st.ConversationID),
			zap.Error(err),
		)
	}
}

func (s *ConversationService) delay(r model.DelayRange) time.Duration {
	secs := r.Min + s.random()*(r.Max-r.Min)
	return time.Duration(secs * float64(time.Second))
}

func newEntry(action model.PolicyAction, reason, detail string) model.PolicyLogEntry {
	return model.PolicyLogEntry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Action:    action,
		Reason:    reason,
		Detail:    detail,
	}
}
