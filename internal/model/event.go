package model

import (
	"time"
)

// PolicyAction is the kind of policy decision recorded in the audit log.
type PolicyAction string

const (
	ActionStopped   PolicyAction = "STOPPED"
	ActionEscalated PolicyAction = "ESCALATED"
	ActionBlocked   PolicyAction = "BLOCKED"
	ActionModified  PolicyAction = "MODIFIED"
	ActionSilenced  PolicyAction = "SILENCED"
)

// PolicyLogEntry is an append-only compliance audit record.
type PolicyLogEntry struct {
	ID        string       `json:"id"`
	Timestamp time.Time    `json:"timestamp"`
	Action    PolicyAction `json:"action"`
	Reason    string       `json:"reason"`
	Detail    string       `json:"detail,omitempty"`
}

// HandoffEvent notifies operators that a conversation changed control state.
type HandoffEvent struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	PersonaID      string        `json:"persona_id"`
	CounterpartID  string        `json:"counterpart_id,omitempty"`
	From           HandoffStatus `json:"from"`
	To             HandoffStatus `json:"to"`
	Reason         string        `json:"reason"`
	Operator       string        `json:"operator,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// ListAuditResponse is the response for the audit export endpoint.
type ListAuditResponse struct {
	ConversationID string           `json:"conversation_id"`
	Entries        []PolicyLogEntry `json:"entries"`
	Total          int              `json:"total"`
}
