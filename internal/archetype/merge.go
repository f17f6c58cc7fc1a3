package archetype

import (
	"fmt"
	"strings"

	"github.com/capitalize-ai/handoff-engine/internal/model"
	"github.com/capitalize-ai/handoff-engine/internal/policy"
)

// Defaults for persona-editable fields.
const (
	DefaultMaxCharsPerMessage = 320
	DefaultDelayMin           = 2.0
	DefaultDelayMax           = 8.0
)

// Merge validates a persona definition and layers it over the compliance template. The
// template's fields are deep-copied verbatim; persona term lists are only ever appended as
// extension lists. The result depends on nothing but the inputs.
func Merge(in *model.PersonaInput, template *model.CompliancePolicy) (*model.ArchetypePolicy, error) {
	if res := Validate(in); !res.Valid {
		return nil, &ValidationError{Errors: res.Errors}
	}

	out := &model.ArchetypePolicy{
		PersonaID:  PersonaID(in),
		Name:       strings.TrimSpace(in.Name),
		Niche:      in.Niche,
		Tone:       in.Tone,
		BasePrompt: strings.TrimSpace(in.BasePrompt),

		Compliance: template.Clone(),

		MaxCharsPerMessage:      DefaultMaxCharsPerMessage,
		DelayRange:              model.DelayRange{Min: DefaultDelayMin, Max: DefaultDelayMax},
		ExtraForbiddenTerms:     normalizeTerms(in.ExtraForbiddenTerms),
		ExtraStopTriggers:       normalizeTerms(in.ExtraStopTriggers),
		ExtraEscalationTriggers: normalizeTerms(in.ExtraEscalationTriggers),
	}

	if in.MaxCharsPerMessage != nil {
		out.MaxCharsPerMessage = *in.MaxCharsPerMessage
	}
	if in.DelayRange != nil {
		out.DelayRange = *in.DelayRange
	}
	for _, resp := range in.SafeResponses {
		out.SafeResponses = append(out.SafeResponses, strings.TrimSpace(resp))
	}
	if in.HandoffMessage != nil {
		if msg := strings.TrimSpace(*in.HandoffMessage); msg != "" {
			out.HandoffMessage = &msg
		}
	}

	if errs := checkCannedReplies(out); len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}
	return out, nil
}

// checkCannedReplies runs the outbound rules over the persona's own fallback and hand-off
// texts. A canned reply the evaluator would block is unusable.
func checkCannedReplies(p *model.ArchetypePolicy) []FieldError {
	eval := policy.Compile(p)
	var errs []FieldError
	for i, resp := range p.SafeResponses {
		field := fmt.Sprintf("safe_responses[%d]", i)
		if res := eval.ValidateOutbound(resp); !res.Allowed {
			errs = append(errs, FieldError{Field: field, Message: "blocked by outbound rules: " + res.Reason})
		} else if res.Truncated {
			errs = append(errs, FieldError{Field: field, Message: tooLongMessage(p.MaxCharsPerMessage)})
		}
	}
	if p.HandoffMessage != nil {
		if res := eval.ValidateOutbound(*p.HandoffMessage); !res.Allowed {
			errs = append(errs, FieldError{Field: "handoff_message", Message: "blocked by outbound rules: " + res.Reason})
		} else if res.Truncated {
			errs = append(errs, FieldError{Field: "handoff_message", Message: tooLongMessage(p.MaxCharsPerMessage)})
		}
	}
	return errs
}

func tooLongMessage(limit int) string {
	return fmt.Sprintf("must be at most %d characters (max_chars_per_message)", limit)
}

// PersonaID returns the explicit ID or a slug derived from the persona name.
func PersonaID(in *model.PersonaInput) string {
	if in.ID != "" {
		return in.ID
	}
	return strings.ReplaceAll(policy.Normalize(in.Name), " ", "-")
}

func normalizeTerms(terms []string) []string {
	cleaned := make([]string, 0, len(terms))
	for _, t := range terms {
		cleaned = append(cleaned, strings.ToLower(strings.TrimSpace(t)))
	}
	if out := model.Union(cleaned); len(out) > 0 {
		return out
	}
	return nil
}
