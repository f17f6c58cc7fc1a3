// Package model defines data structures for the handoff engine.
package model

import (
	"sort"
)

// Niche is the business domain a persona operates in.
type Niche string

const (
	NicheReligious Niche = "religious"
	NichePolitical Niche = "political"
	NicheWellness  Niche = "wellness"
	NicheFinance   Niche = "finance"
	NicheGeneral   Niche = "general"
)

// Niches lists every supported niche.
var Niches = []Niche{NicheReligious, NichePolitical, NicheWellness, NicheFinance, NicheGeneral}

// Valid reports whether n is a known niche.
func (n Niche) Valid() bool {
	for _, known := range Niches {
		if n == known {
			return true
		}
	}
	return false
}

// Tone is the conversational register of a persona.
type Tone string

const (
	ToneWarm         Tone = "warm"
	ToneFormal       Tone = "formal"
	ToneCasual       Tone = "casual"
	ToneEnthusiastic Tone = "enthusiastic"
	TonePastoral     Tone = "pastoral"
)

// Tones lists every supported tone.
var Tones = []Tone{ToneWarm, ToneFormal, ToneCasual, ToneEnthusiastic, TonePastoral}

// Valid reports whether t is a known tone.
func (t Tone) Valid() bool {
	for _, known := range Tones {
		if t == known {
			return true
		}
	}
	return false
}

// EscalationReason groups mandatory escalation triggers by the reason reported when they match.
type EscalationReason string

const (
	EscalationDistress     EscalationReason = "DISTRESS"
	EscalationLegalThreat  EscalationReason = "LEGAL_THREAT"
	EscalationAudioMessage EscalationReason = "AUDIO_MESSAGE"
	EscalationAggression   EscalationReason = "AGGRESSION"
)

// CompliancePolicy is the immutable compliance template. No persona may override its fields.
type CompliancePolicy struct {
	Version                     string                        `json:"version" yaml:"version"`
	MaxConsecutiveAutoMessages  int                           `json:"max_consecutive_auto_messages" yaml:"max_consecutive_auto_messages"`
	AllowLinks                  bool                          `json:"allow_links" yaml:"allow_links"`
	AllowPrice                  bool                          `json:"allow_price" yaml:"allow_price"`
	GlobalForbiddenTerms        []string                      `json:"global_forbidden_terms" yaml:"global_forbidden_terms"`
	MandatoryStopTriggers       []string                      `json:"mandatory_stop_triggers" yaml:"mandatory_stop_triggers"`
	MandatoryEscalationTriggers map[EscalationReason][]string `json:"mandatory_escalation_triggers" yaml:"mandatory_escalation_triggers"`
	BotSuspicionTriggers        []string                      `json:"bot_suspicion_triggers" yaml:"bot_suspicion_triggers"`
	NicheExclusions             map[Niche][]string            `json:"niche_exclusions" yaml:"niche_exclusions"`
}

// Clone returns a deep copy so callers can never alias the template's slices or maps.
func (p *CompliancePolicy) Clone() CompliancePolicy {
	out := *p
	out.GlobalForbiddenTerms = cloneStrings(p.GlobalForbiddenTerms)
	out.MandatoryStopTriggers = cloneStrings(p.MandatoryStopTriggers)
	out.BotSuspicionTriggers = cloneStrings(p.BotSuspicionTriggers)
	if p.MandatoryEscalationTriggers != nil {
		out.MandatoryEscalationTriggers = make(map[EscalationReason][]string, len(p.MandatoryEscalationTriggers))
		for k, v := range p.MandatoryEscalationTriggers {
			out.MandatoryEscalationTriggers[k] = cloneStrings(v)
		}
	}
	if p.NicheExclusions != nil {
		out.NicheExclusions = make(map[Niche][]string, len(p.NicheExclusions))
		for k, v := range p.NicheExclusions {
			out.NicheExclusions[k] = cloneStrings(v)
		}
	}
	return out
}

// DelayRange is the humanized reply delay window in seconds.
type DelayRange struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// ArchetypePolicy is the effective policy of one persona: the compliance template copied
// verbatim plus the persona-editable fields. It is only produced by archetype.Merge.
type ArchetypePolicy struct {
	PersonaID  string `json:"persona_id"`
	Name       string `json:"name"`
	Niche      Niche  `json:"niche"`
	Tone       Tone   `json:"tone"`
	BasePrompt string `json:"base_prompt"`

	Compliance CompliancePolicy `json:"compliance"`

	MaxCharsPerMessage      int        `json:"max_chars_per_message"`
	DelayRange              DelayRange `json:"delay_range"`
	ExtraForbiddenTerms     []string   `json:"extra_forbidden_terms,omitempty"`
	ExtraStopTriggers       []string   `json:"extra_stop_triggers,omitempty"`
	ExtraEscalationTriggers []string   `json:"extra_escalation_triggers,omitempty"`
	SafeResponses           []string   `json:"safe_responses,omitempty"`
	HandoffMessage          *string    `json:"handoff_message,omitempty"`
}

// ForbiddenTerms returns global ∪ persona forbidden terms.
func (a *ArchetypePolicy) ForbiddenTerms() []string {
	return Union(a.Compliance.GlobalForbiddenTerms, a.ExtraForbiddenTerms)
}

// StopTriggers returns mandatory ∪ persona stop triggers.
func (a *ArchetypePolicy) StopTriggers() []string {
	return Union(a.Compliance.MandatoryStopTriggers, a.ExtraStopTriggers)
}

// NicheExclusions returns the vocabulary of niches other than the persona's own.
func (a *ArchetypePolicy) NicheExclusions() []string {
	return Union(a.Compliance.NicheExclusions[a.Niche])
}

// Union merges string lists into a sorted, deduplicated list. Empty strings are dropped.
func Union(lists ...[]string) []string {
	seen := make(map[string]struct{})
	for _, list := range lists {
		for _, s := range list {
			if s == "" {
				continue
			}
			seen[s] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
