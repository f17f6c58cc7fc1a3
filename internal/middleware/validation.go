package middleware

import (
	"errors"
	"regexp"
	"unicode/utf8"
)

const (
	maxMessageRunes = 4096
	maxIDLength     = 128
)

// Conversation IDs become NATS subject tokens, so dots, wildcards and whitespace are out.
var conversationIDPattern = regexp.MustCompile(`^[A-Za-z0-9_:@+\-]+$`)

// ValidateMessageText validates a message body.
func ValidateMessageText(text string) error {
	if len(text) == 0 {
		return errors.New("text cannot be empty")
	}
	if !utf8.ValidString(text) {
		return errors.New("text must be valid UTF-8")
	}
	if utf8.RuneCountInString(text) > maxMessageRunes {
		return errors.New("text exceeds maximum length")
	}
	return nil
}

// ValidateConversationID validates a conversation ID.
func ValidateConversationID(id string) error {
	if len(id) == 0 {
		return errors.New("conversation ID cannot be empty")
	}
	if len(id) > maxIDLength {
		return errors.New("conversation ID exceeds maximum length")
	}
	if !conversationIDPattern.MatchString(id) {
		return errors.New("invalid conversation ID format")
	}
	return nil
}

// ValidatePersonaID validates a persona ID reference.
func ValidatePersonaID(id string) error {
	if len(id) == 0 {
		return errors.New("persona ID cannot be empty")
	}
	if len(id) > 64 {
		return errors.New("persona ID exceeds maximum length")
	}
	return nil
}
