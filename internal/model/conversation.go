package model

import (
	"time"
)

// HandoffStatus is the control state of a conversation.
type HandoffStatus string

const (
	StatusAutomated       HandoffStatus = "AUTOMATED"
	StatusEscalated       HandoffStatus = "ESCALATED"
	StatusHumanControlled HandoffStatus = "HUMAN_CONTROLLED"
)

// Sender identifies who sent the latest message in a conversation.
type Sender string

const (
	SenderAutomated    Sender = "automated"
	SenderCounterparty Sender = "counterparty"
)

// DefaultHistoryCapacity is the sliding history window used when none is configured.
const DefaultHistoryCapacity = 20

// ConversationState is the per-conversation control record.
type ConversationState struct {
	// Identity
	ConversationID string `json:"conversation_id"`
	PersonaID      string `json:"persona_id"`
	CounterpartID  string `json:"counterpart_id,omitempty"`

	// Handoff
	HandoffStatus           HandoffStatus `json:"handoff_status"`
	LastSender              Sender        `json:"last_sender"`
	ConsecutiveAutoMessages int           `json:"consecutive_auto_messages"`

	History History `json:"history"`

	// AuditLog is persisted as a separate append-only list and hydrated on load.
	AuditLog []PolicyLogEntry `json:"-"`

	// Version is incremented by the store on every save.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewConversationState creates the initial AUTOMATED state for a conversation.
func NewConversationState(conversationID, personaID, counterpartID string, historyCapacity int) *ConversationState {
	now := time.Now().UTC()
	return &ConversationState{
		ConversationID: conversationID,
		PersonaID:      personaID,
		CounterpartID:  counterpartID,
		HandoffStatus:  StatusAutomated,
		LastSender:     SenderCounterparty,
		History:        NewHistory(historyCapacity),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Clone returns a deep copy of the state.
func (s *ConversationState) Clone() *ConversationState {
	out := *s
	out.History = s.History.Clone()
	if s.AuditLog != nil {
		out.AuditLog = make([]PolicyLogEntry, len(s.AuditLog))
		copy(out.AuditLog, s.AuditLog)
	}
	return &out
}

// History is a bounded ordered window of recent messages. Appending to a full window
// evicts the oldest entry.
type History struct {
	Capacity int            `json:"capacity"`
	Entries  []HistoryEntry `json:"entries"`
}

// NewHistory creates an empty window with the given capacity.
func NewHistory(capacity int) History {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return History{Capacity: capacity, Entries: make([]HistoryEntry, 0, capacity)}
}

// Append adds an entry, evicting the oldest entries beyond capacity.
func (h *History) Append(entry HistoryEntry) {
	if h.Capacity <= 0 {
		h.Capacity = DefaultHistoryCapacity
	}
	h.Entries = append(h.Entries, entry)
	if over := len(h.Entries) - h.Capacity; over > 0 {
		kept := make([]HistoryEntry, h.Capacity)
		copy(kept, h.Entries[over:])
		h.Entries = kept
	}
}

// Len returns the number of entries in the window.
func (h *History) Len() int {
	return len(h.Entries)
}

// Clone returns a copy that shares no backing array with h.
func (h History) Clone() History {
	out := History{Capacity: h.Capacity, Entries: make([]HistoryEntry, len(h.Entries))}
	copy(out.Entries, h.Entries)
	return out
}
