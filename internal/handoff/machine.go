// Package handoff implements the conversation control state machine:
// AUTOMATED -> ESCALATED -> HUMAN_CONTROLLED -> AUTOMATED.
package handoff

import (
	"errors"
	"fmt"

	"github.com/capitalize-ai/handoff-engine/internal/model"
)

// ErrStateConflict is returned when a transition is requested from the wrong state. The
// state is left untouched.
var ErrStateConflict = errors.New("handoff state conflict")

// Transition describes the outcome of a state change request.
type Transition struct {
	Applied bool
	From    model.HandoffStatus
	To      model.HandoffStatus
}

func conflict(s *model.ConversationState, want model.HandoffStatus, op string) (Transition, error) {
	return Transition{Applied: false, From: s.HandoffStatus, To: s.HandoffStatus},
		fmt.Errorf("%w: %s requires %s, conversation is %s", ErrStateConflict, op, want, s.HandoffStatus)
}

// Escalate moves an automated conversation to ESCALATED.
func Escalate(s *model.ConversationState) (Transition, error) {
	if s.HandoffStatus != model.StatusAutomated {
		return conflict(s, model.StatusAutomated, "escalate")
	}
	s.HandoffStatus = model.StatusEscalated
	return Transition{Applied: true, From: model.StatusAutomated, To: model.StatusEscalated}, nil
}

// TakeOver moves an escalated conversation to HUMAN_CONTROLLED.
func TakeOver(s *model.ConversationState) (Transition, error) {
	if s.HandoffStatus != model.StatusEscalated {
		return conflict(s, model.StatusEscalated, "take over")
	}
	s.HandoffStatus = model.StatusHumanControlled
	return Transition{Applied: true, From: model.StatusEscalated, To: model.StatusHumanControlled}, nil
}

// Return gives a human-controlled conversation back to automation with a fresh streak.
func Return(s *model.ConversationState) (Transition, error) {
	if s.HandoffStatus != model.StatusHumanControlled {
		return conflict(s, model.StatusHumanControlled, "return")
	}
	s.HandoffStatus = model.StatusAutomated
	RecordCounterpart(s)
	return Transition{Applied: true, From: model.StatusHumanControlled, To: model.StatusAutomated}, nil
}

// RecordCounterpart resets the automated streak after a counterpart message.
func RecordCounterpart(s *model.ConversationState) {
	s.LastSender = model.SenderCounterparty
	s.ConsecutiveAutoMessages = 0
}

// RecordAutomated counts one automated message toward the streak.
func RecordAutomated(s *model.ConversationState) {
	s.LastSender = model.SenderAutomated
	s.ConsecutiveAutoMessages++
}

// CanReply reports whether automation may speak in the conversation.
func CanReply(s *model.ConversationState) bool {
	return s.HandoffStatus == model.StatusAutomated
}

// CapReached reports whether automation has already sent max messages in a row without a
// counterpart reply.
func CapReached(s *model.ConversationState, max int) bool {
	return s.HandoffStatus == model.StatusAutomated &&
		s.LastSender == model.SenderAutomated &&
		s.ConsecutiveAutoMessages >= max
}
