// Package policy evaluates inbound messages and outbound replies against an archetype policy.
package policy

import (
	"math/rand"

	"github.com/capitalize-ai/handoff-engine/internal/model"
)

const (
	// DefaultShortMessageRunes is the length under which a stop trigger silences even when
	// the message contains a question mark.
	DefaultShortMessageRunes = 20

	// DefaultMaxInboundRunes is the inbound length beyond which a message escalates.
	DefaultMaxInboundRunes = 1500
)

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithShortMessageRunes overrides the short-message threshold for stop triggers.
func WithShortMessageRunes(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.shortMessageRunes = n
		}
	}
}

// WithMaxInboundRunes overrides the inbound length cap.
func WithMaxInboundRunes(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.maxInboundRunes = n
		}
	}
}

// WithRandom overrides the source used to pick fallback replies. intn must return a value
// in [0, n) and be safe for concurrent use.
func WithRandom(intn func(n int) int) Option {
	return func(e *Evaluator) {
		if intn != nil {
			e.intn = intn
		}
	}
}

type escalationMatcher struct {
	reason  string
	matcher *termMatcher
}

// Evaluator holds the precompiled rule structures of one ArchetypePolicy. It is immutable
// after Compile and safe for concurrent use.
type Evaluator struct {
	policy *model.ArchetypePolicy

	forbidden       *termMatcher
	stop            *termMatcher
	botSuspicion    *termMatcher
	identity        *termMatcher
	escalation      []escalationMatcher
	monetaryContext *termMatcher
	sales           *termMatcher
	nicheExclusions *termMatcher

	fallbacks      []string
	handoffMessage string

	shortMessageRunes int
	maxInboundRunes   int
	intn              func(n int) int
}

// escalationOrder fixes the order in which mandatory escalation groups are checked.
var escalationOrder = []model.EscalationReason{
	model.EscalationDistress,
	model.EscalationLegalThreat,
	model.EscalationAudioMessage,
	model.EscalationAggression,
}

// Compile builds the match structures for an archetype policy.
func Compile(p *model.ArchetypePolicy, opts ...Option) *Evaluator {
	e := &Evaluator{
		policy:            p,
		forbidden:         newSubstringMatcher(p.Compliance.GlobalForbiddenTerms, p.ExtraForbiddenTerms),
		stop:              newTermMatcher(p.Compliance.MandatoryStopTriggers, p.ExtraStopTriggers),
		botSuspicion:      newTermMatcher(p.Compliance.BotSuspicionTriggers),
		identity:          newTermMatcher(identityQuestions),
		monetaryContext:   newTermMatcher(monetaryContext),
		sales:             newTermMatcher(salesVocabulary),
		nicheExclusions:   newTermMatcher(p.Compliance.NicheExclusions[p.Niche]),
		shortMessageRunes: DefaultShortMessageRunes,
		maxInboundRunes:   DefaultMaxInboundRunes,
		intn:              rand.Intn,
	}

	for _, reason := range escalationOrder {
		if terms := p.Compliance.MandatoryEscalationTriggers[reason]; len(terms) > 0 {
			e.escalation = append(e.escalation, escalationMatcher{reason: string(reason), matcher: newTermMatcher(terms)})
		}
	}
	if len(p.ExtraEscalationTriggers) > 0 {
		e.escalation = append(e.escalation, escalationMatcher{reason: ReasonEscalationTrigger, matcher: newTermMatcher(p.ExtraEscalationTriggers)})
	}

	fallbacks := DefaultFallbacks
	if len(p.SafeResponses) > 0 {
		fallbacks = p.SafeResponses
	}
	e.fallbacks = make([]string, len(fallbacks))
	for i, text := range fallbacks {
		e.fallbacks[i] = Truncate(text, p.MaxCharsPerMessage)
	}
	e.handoffMessage = DefaultHandoffMessage
	if p.HandoffMessage != nil && *p.HandoffMessage != "" {
		e.handoffMessage = *p.HandoffMessage
	}
	// Canned texts obey the same per-message limit as generated replies.
	e.handoffMessage = Truncate(e.handoffMessage, p.MaxCharsPerMessage)

	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the archetype policy the evaluator was compiled from.
func (e *Evaluator) Policy() *model.ArchetypePolicy {
	return e.policy
}

// HandoffMessage returns the hand-off acknowledgement for this persona.
func (e *Evaluator) HandoffMessage() string {
	return e.handoffMessage
}

// Fallback returns a safe reply chosen uniformly at random.
func (e *Evaluator) Fallback() string {
	return e.fallbacks[e.intn(len(e.fallbacks))]
}

// RuleCount returns the number of compiled terms, for diagnostics.
func (e *Evaluator) RuleCount() int {
	n := e.forbidden.size() + e.stop.size() + e.botSuspicion.size() + e.nicheExclusions.size()
	for _, em := range e.escalation {
		n += em.matcher.size()
	}
	return n
}
