package model

import (
	"time"
)

// Role represents the role of a message author in the history window.
type Role string

const (
	RoleCounterparty Role = "counterparty"
	RoleAutomated    Role = "automated"
	RoleHuman        Role = "human"
)

// HistoryEntry is one message in the sliding history window.
type HistoryEntry struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// ReplyKind distinguishes generated replies from hand-off acknowledgements.
type ReplyKind string

const (
	ReplyKindReply   ReplyKind = "reply"
	ReplyKindHandoff ReplyKind = "handoff"
)

// InboundEnvelope is the transport payload of a counterpart message.
type InboundEnvelope struct {
	ConversationID string    `json:"conversation_id"`
	PersonaID      string    `json:"persona_id"`
	FromID         string    `json:"from_id"`
	Text           string    `json:"text"`
	ReceivedAt     time.Time `json:"received_at,omitempty"`
}

// OutboundEnvelope is the transport payload of a message to deliver to the counterpart.
type OutboundEnvelope struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Text           string    `json:"text"`
	Kind           ReplyKind `json:"kind"`
	DelaySeconds   float64   `json:"delay_seconds"`
	CreatedAt      time.Time `json:"created_at"`
}

// InboundRequest is the HTTP request body for an inbound message.
type InboundRequest struct {
	PersonaID string `json:"persona_id"`
	FromID    string `json:"from_id,omitempty"`
	Text      string `json:"text"`
}

// InboundResponse is the HTTP response when the engine produced a reply.
type InboundResponse struct {
	Reply        string    `json:"reply"`
	Kind         ReplyKind `json:"kind"`
	DelaySeconds float64   `json:"delay_seconds"`
}

// OutboundRequest is the HTTP request body for recording a message sent outside the reply path.
type OutboundRequest struct {
	PersonaID string `json:"persona_id,omitempty"`
	Text      string `json:"text"`
}

// HumanReplyRequest is the HTTP request body for a message sent by a human operator.
type HumanReplyRequest struct {
	Text string `json:"text"`
}
