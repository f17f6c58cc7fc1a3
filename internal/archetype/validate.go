// Package archetype validates persona definitions and merges them with the compliance template.
package archetype

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/capitalize-ai/handoff-engine/internal/model"
	"github.com/capitalize-ai/handoff-engine/internal/policy"
)

const (
	maxNameRunes = 80

	// MinCharsPerMessage and MaxCharsPerMessage bound the persona-editable reply length.
	MinCharsPerMessage = 40
	MaxCharsPerMessage = 1000

	// MaxDelaySeconds bounds the persona-editable humanized delay.
	MaxDelaySeconds = 300
)

var personaIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,63}$`)

// FieldError describes one invalid field of a persona definition.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) String() string {
	return e.Field + ": " + e.Message
}

// ValidationResult is the outcome of Validate.
type ValidationResult struct {
	Valid  bool         `json:"valid"`
	Errors []FieldError `json:"errors,omitempty"`
}

// ValidationError is returned by Merge when the persona definition is invalid. Nothing of
// an invalid definition is ever applied.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.String()
	}
	return "invalid persona: " + strings.Join(parts, "; ")
}

// Validate checks a persona definition. Self-disclosure in the base prompt fails closed.
func Validate(in *model.PersonaInput) ValidationResult {
	var errs []FieldError
	add := func(field, format string, args ...any) {
		errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if in.ID != "" && !personaIDPattern.MatchString(in.ID) {
		add("id", "must be lowercase letters, digits and dashes (max 64)")
	}

	name := strings.TrimSpace(in.Name)
	switch {
	case name == "":
		add("name", "is required")
	case utf8.RuneCountInString(name) > maxNameRunes:
		add("name", "exceeds %d characters", maxNameRunes)
	case in.ID == "" && !personaIDPattern.MatchString(PersonaID(in)):
		add("name", "cannot be turned into a valid id; set id explicitly")
	}

	if !in.Niche.Valid() {
		add("niche", "must be one of %v", model.Niches)
	}
	if !in.Tone.Valid() {
		add("tone", "must be one of %v", model.Tones)
	}

	if strings.TrimSpace(in.BasePrompt) == "" {
		add("base_prompt", "is required")
	} else if policy.ContainsSelfDisclosure(in.BasePrompt) {
		add("base_prompt", "must not state that the persona is automated")
	}

	if in.MaxCharsPerMessage != nil {
		if n := *in.MaxCharsPerMessage; n < MinCharsPerMessage || n > MaxCharsPerMessage {
			add("max_chars_per_message", "must be between %d and %d", MinCharsPerMessage, MaxCharsPerMessage)
		}
	}

	if d := in.DelayRange; d != nil {
		if d.Min < 0 || d.Max < d.Min || d.Max > MaxDelaySeconds {
			add("delay_range", "must satisfy 0 <= min <= max <= %d", MaxDelaySeconds)
		}
	}

	for i, resp := range in.SafeResponses {
		field := fmt.Sprintf("safe_responses[%d]", i)
		switch {
		case strings.TrimSpace(resp) == "":
			add(field, "cannot be empty")
		case policy.ContainsSelfDisclosure(resp):
			add(field, "must not state that the persona is automated")
		case policy.ContainsLink(resp):
			add(field, "must not contain links")
		}
	}

	if in.HandoffMessage != nil {
		msg := *in.HandoffMessage
		switch {
		case policy.ContainsSelfDisclosure(msg):
			add("handoff_message", "must not state that the persona is automated")
		case policy.ContainsLink(msg):
			add("handoff_message", "must not contain links")
		}
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}
