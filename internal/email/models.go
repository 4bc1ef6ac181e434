package email

import (
	"time"

	"github.com/google/uuid"
)

// EmailEventType represents the type of email to be sent
type EmailEventType string

const (
	// EmailTypeConfirmSignup asks a new user to confirm their address
	EmailTypeConfirmSignup EmailEventType = "confirm_signup"
	// EmailTypeAccountDeleted tells a user their account is gone
	EmailTypeAccountDeleted EmailEventType = "account_deleted"
)

// EmailEvent is the message published to the email events topic
type EmailEvent struct {
	// MessageID is a UUID used for deduplication in the mailer
	MessageID string `json:"message_id"`

	EventType EmailEventType `json:"event_type"`
	Timestamp time.Time      `json:"timestamp"`
	Recipient string         `json:"recipient"`

	// Data contains type-specific fields.
	// confirm_signup: {"confirm_url": "https://..."}
	Data map[string]string `json:"data"`
}

// NewEmailEvent builds an event with a fresh message id
func NewEmailEvent(eventType EmailEventType, recipient string, data map[string]string) EmailEvent {
	if data == nil {
		data = map[string]string{}
	}
	return EmailEvent{
		MessageID: uuid.NewString(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		Recipient: recipient,
		Data:      data,
	}
}

// EmailMetadata represents metadata stored in Redis for deduplication
type EmailMetadata struct {
	SentAt    time.Time      `json:"sent_at"`
	Recipient string         `json:"recipient"`
	EventType EmailEventType `json:"event_type"`
}
