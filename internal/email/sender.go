// Package email delivers account emails. Events are rendered and sent either
// to the log (development) or over SMTP, directly or through Kafka.
package email

import (
	"fmt"
	"html"
	"log/slog"
	"net/smtp"

	"multiactivity/internal/config"
)

// Sender defines the interface for sending emails
type Sender interface {
	SendEmailEvent(event EmailEvent) error
}

// NewSender creates a new email sender based on configuration
func NewSender(cfg config.EmailConfig, logger *slog.Logger) Sender {
	if cfg.Mode == "smtp" {
		return &smtpSender{config: cfg, logger: logger, sendMail: smtp.SendMail}
	}
	return &logSender{logger: logger}
}

// logSender logs emails instead of sending them (development mode)
type logSender struct {
	logger *slog.Logger
}

func (s *logSender) SendEmailEvent(event EmailEvent) error {
	subject, _, err := render(event)
	if err != nil {
		return err
	}
	s.logger.Info("[DEV] Email",
		"recipient", event.Recipient,
		"type", event.EventType,
		"subject", subject,
		"data", event.Data)
	return nil
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// smtpSender sends emails via SMTP (production mode)
type smtpSender struct {
	config   config.EmailConfig
	logger   *slog.Logger
	sendMail sendMailFunc
}

func (s *smtpSender) SendEmailEvent(event EmailEvent) error {
	subject, body, err := render(event)
	if err != nil {
		return err
	}

	message := fmt.Sprintf("From: %s <%s>\r\n", s.config.FromName, s.config.From)
	message += fmt.Sprintf("To: %s\r\n", event.Recipient)
	message += fmt.Sprintf("Subject: %s\r\n", subject)
	message += "MIME-Version: 1.0\r\n"
	message += "Content-Type: text/html; charset=UTF-8\r\n"
	message += "\r\n"
	message += body

	var auth smtp.Auth
	if s.config.User != "" {
		auth = smtp.PlainAuth("", s.config.User, s.config.Password, s.config.Host)
	}

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	if err := s.sendMail(addr, auth, s.config.From, []string{event.Recipient}, []byte(message)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("Email sent via SMTP", "recipient", event.Recipient, "type", event.EventType)
	return nil
}

// render returns the subject and HTML body for event
func render(event EmailEvent) (string, string, error) {
	switch event.EventType {
	case EmailTypeConfirmSignup:
		link, ok := event.Data["confirm_url"]
		if !ok || link == "" {
			return "", "", fmt.Errorf("invalid confirm_signup data: missing confirm_url")
		}
		return "Confirm your email", layout("Confirm your email", fmt.Sprintf(`
        <p style="font-size: 16px;">Thanks for signing up! Confirm your address to start using your activities.</p>
        <p style="text-align: center; margin: 30px 0;">
            <a href="%s" style="background: #16a34a; color: white; padding: 12px 24px; border-radius: 6px; text-decoration: none;">Confirm email</a>
        </p>
        <p style="font-size: 14px; color: #666;">This link expires in <strong>24 hours</strong>.</p>`,
			html.EscapeString(link))), nil
	case EmailTypeAccountDeleted:
		return "Your account was deleted", layout("Account deleted", `
        <p style="font-size: 16px;">Your account and everything stored in it have been deleted.</p>
        <p style="font-size: 14px; color: #666;">If you didn't request this, please contact support.</p>`), nil
	default:
		return "", "", fmt.Errorf("unsupported email type: %s", event.EventType)
	}
}

func layout(title, content string) string {
	return fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>%s</title>
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
    <div style="background: #121212; padding: 30px; text-align: center; border-radius: 10px 10px 0 0;">
        <h1 style="color: #22c55e; margin: 0;">%s</h1>
    </div>

    <div style="background: #f9f9f9; padding: 30px; border-radius: 0 0 10px 10px;">%s

        <hr style="border: none; border-top: 1px solid #ddd; margin: 30px 0;">

        <p style="font-size: 12px; color: #999; text-align: center;">
            This is an automated message, please do not reply to this email.
        </p>
    </div>
</body>
</html>
`, title, title, content)
}
