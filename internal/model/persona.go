package model

// PersonaInput is a user-authored persona definition. It carries only persona-editable
// fields; anything else in the source document is ignored.
type PersonaInput struct {
	ID         string `json:"id,omitempty" yaml:"id,omitempty"`
	Name       string `json:"name" yaml:"name"`
	Niche      Niche  `json:"niche" yaml:"niche"`
	Tone       Tone   `json:"tone" yaml:"tone"`
	BasePrompt string `json:"base_prompt" yaml:"base_prompt"`

	MaxCharsPerMessage      *int        `json:"max_chars_per_message,omitempty" yaml:"max_chars_per_message,omitempty"`
	DelayRange              *DelayRange `json:"delay_range,omitempty" yaml:"delay_range,omitempty"`
	ExtraForbiddenTerms     []string    `json:"extra_forbidden_terms,omitempty" yaml:"extra_forbidden_terms,omitempty"`
	ExtraStopTriggers       []string    `json:"extra_stop_triggers,omitempty" yaml:"extra_stop_triggers,omitempty"`
	ExtraEscalationTriggers []string    `json:"extra_escalation_triggers,omitempty" yaml:"extra_escalation_triggers,omitempty"`
	SafeResponses           []string    `json:"safe_responses,omitempty" yaml:"safe_responses,omitempty"`
	HandoffMessage          *string     `json:"handoff_message,omitempty" yaml:"handoff_message,omitempty"`
}

// ListPersonasResponse is the response for listing personas.
type ListPersonasResponse struct {
	Personas []ArchetypePolicy `json:"personas"`
	Total    int               `json:"total"`
}
