package email

import (
	"context"
	"fmt"
	"log/slog"
)

// Publisher puts an event on a message topic
type Publisher interface {
	Publish(topic, key string, value any) error
}

// Notifier turns account transitions into email events. With a Publisher
// the event goes to Kafka for the mailer; without one it is sent inline.
type Notifier struct {
	publisher Publisher
	topic     string
	sender    Sender
	logger    *slog.Logger
}

// NewNotifier creates a notifier. publisher may be nil.
func NewNotifier(publisher Publisher, topic string, sender Sender, logger *slog.Logger) *Notifier {
	return &Notifier{
		publisher: publisher,
		topic:     topic,
		sender:    sender,
		logger:    logger,
	}
}

// SendConfirmation emails the sign-up confirmation link
func (n *Notifier) SendConfirmation(ctx context.Context, recipient, confirmURL string) error {
	return n.dispatch(ctx, NewEmailEvent(EmailTypeConfirmSignup, recipient, map[string]string{
		"confirm_url": confirmURL,
	}))
}

// SendAccountDeleted emails the account deletion notice
func (n *Notifier) SendAccountDeleted(ctx context.Context, recipient string) error {
	return n.dispatch(ctx, NewEmailEvent(EmailTypeAccountDeleted, recipient, nil))
}

func (n *Notifier) dispatch(ctx context.Context, event EmailEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if n.publisher != nil {
		// keyed by recipient so one user's emails stay ordered
		if err := n.publisher.Publish(n.topic, event.Recipient, event); err != nil {
			return fmt.Errorf("publish %s event: %w", event.EventType, err)
		}
		n.logger.Debug("Email event published", "messageID", event.MessageID, "type", event.EventType)
		return nil
	}

	if err := n.sender.SendEmailEvent(event); err != nil {
		return fmt.Errorf("send %s email: %w", event.EventType, err)
	}
	return nil
}
