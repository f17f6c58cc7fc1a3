package policy

import (
	"strings"
	"unicode/utf8"

	"github.com/capitalize-ai/handoff-engine/internal/model"
)

// Verdict is the classification of an inbound message.
type Verdict string

const (
	VerdictSilence  Verdict = "SILENCE"
	VerdictEscalate Verdict = "ESCALATE"
	VerdictContinue Verdict = "CONTINUE"
)

// Inbound reasons.
const (
	ReasonOK                         = "OK"
	ReasonEmptyMessage               = "EMPTY_MESSAGE"
	ReasonEmojiOnly                  = "EMOJI_ONLY"
	ReasonStopTrigger                = "STOP_TRIGGER"
	ReasonIdentityQuestionNoEscalate = "IDENTITY_QUESTION_NO_ESCALATE"
	ReasonBotSuspect                 = "BOT_SUSPECT"
	ReasonEscalationTrigger          = "ESCALATION_TRIGGER"
	ReasonMessageTooLong             = "MESSAGE_TOO_LONG"
)

// InboundResult is the outcome of ClassifyInbound.
type InboundResult struct {
	Verdict Verdict `json:"verdict"`
	Reason  string  `json:"reason"`
	Matched string  `json:"matched,omitempty"`
}

type inboundInput struct {
	raw         string
	norm        *normalized
	runes       int
	hasQuestion bool
	botTerm     string
	botSuspect  bool
}

type inboundRule struct {
	name string
	eval func(e *Evaluator, in *inboundInput) (InboundResult, bool)
}

// inboundRules is evaluated top to bottom; the first rule that fires decides.
var inboundRules = []inboundRule{
	{"empty", func(e *Evaluator, in *inboundInput) (InboundResult, bool) {
		if strings.TrimSpace(in.raw) == "" {
			return InboundResult{Verdict: VerdictSilence, Reason: ReasonEmptyMessage}, true
		}
		return InboundResult{}, false
	}},
	{"emoji_only", func(e *Evaluator, in *inboundInput) (InboundResult, bool) {
		if isEmojiOnly(in.raw) {
			return InboundResult{Verdict: VerdictSilence, Reason: ReasonEmojiOnly}, true
		}
		return InboundResult{}, false
	}},
	{"stop_trigger", func(e *Evaluator, in *inboundInput) (InboundResult, bool) {
		term, ok := e.stop.match(in.norm)
		if !ok {
			return InboundResult{}, false
		}
		// A longer message that asks something is not closing the exchange.
		if in.runes < e.shortMessageRunes || !in.hasQuestion {
			return InboundResult{Verdict: VerdictSilence, Reason: ReasonStopTrigger, Matched: term}, true
		}
		return InboundResult{}, false
	}},
	{"identity_question", func(e *Evaluator, in *inboundInput) (InboundResult, bool) {
		if in.botSuspect {
			return InboundResult{}, false
		}
		if term, ok := e.identity.match(in.norm); ok {
			return InboundResult{Verdict: VerdictContinue, Reason: ReasonIdentityQuestionNoEscalate, Matched: term}, true
		}
		return InboundResult{}, false
	}},
	{"bot_suspicion", func(e *Evaluator, in *inboundInput) (InboundResult, bool) {
		if in.botSuspect {
			return InboundResult{Verdict: VerdictEscalate, Reason: ReasonBotSuspect, Matched: in.botTerm}, true
		}
		return InboundResult{}, false
	}},
	{"escalation_trigger", func(e *Evaluator, in *inboundInput) (InboundResult, bool) {
		if audioMarker.MatchString(in.raw) {
			return InboundResult{Verdict: VerdictEscalate, Reason: string(model.EscalationAudioMessage), Matched: strings.TrimSpace(in.raw)}, true
		}
		for _, em := range e.escalation {
			if term, ok := em.matcher.match(in.norm); ok {
				return InboundResult{Verdict: VerdictEscalate, Reason: em.reason, Matched: term}, true
			}
		}
		if in.runes > e.maxInboundRunes {
			return InboundResult{Verdict: VerdictEscalate, Reason: ReasonMessageTooLong}, true
		}
		return InboundResult{}, false
	}},
}

// ClassifyInbound decides whether the agent stays silent, escalates, or continues.
func (e *Evaluator) ClassifyInbound(message string) InboundResult {
	in := &inboundInput{
		raw:         message,
		norm:        normalize(message),
		runes:       utf8.RuneCountInString(strings.TrimSpace(message)),
		hasQuestion: strings.ContainsRune(message, '?'),
	}
	in.botTerm, in.botSuspect = e.botSuspicion.match(in.norm)

	for _, rule := range inboundRules {
		if res, fired := rule.eval(e, in); fired {
			return res
		}
	}
	return InboundResult{Verdict: VerdictContinue, Reason: ReasonOK}
}
