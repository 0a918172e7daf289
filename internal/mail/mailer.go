package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"
)

// Invitation describes a collaboration invite email.
type Invitation struct {
	ToEmail     string
	ToName      string
	InviterName string
	ChatTitle   string
	ShareURL    string
	Role        string
}

// Sender delivers invitation mail. Delivery failure is a side-effect failure:
// callers report it as a sub-status and never fail the primary operation.
type Sender interface {
	SendInvitation(ctx context.Context, invitation Invitation) error
}

// SMTPConfig configures the SMTP sender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Logger   *zap.Logger
}

// SMTPSender delivers mail over plain SMTP with auth.
type SMTPSender struct {
	addr   string
	auth   smtp.Auth
	from   string
	logger *zap.Logger
}

// NewSMTPSender constructs the sender; an empty host yields a disabled sender
// whose sends fail (and are reported as emailStatus.sent=false upstream).
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPSender{
		addr:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		auth:   auth,
		from:   cfg.From,
		logger: logger,
	}
}

// SendInvitation renders and delivers the invite email.
func (s *SMTPSender) SendInvitation(_ context.Context, invitation Invitation) error {
	if strings.HasPrefix(s.addr, ":") {
		return fmt.Errorf("mail: smtp host not configured")
	}

	subject := fmt.Sprintf("%s invited you to collaborate on %q", invitation.InviterName, invitation.ChatTitle)
	body := fmt.Sprintf(
		"Hi %s,\r\n\r\n%s invited you to collaborate on %q as %s.\r\n\r\nOpen the chat here: %s\r\n",
		invitation.ToName, invitation.InviterName, invitation.ChatTitle, invitation.Role, invitation.ShareURL,
	)
	message := strings.Join([]string{
		"From: " + s.from,
		"To: " + invitation.ToEmail,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n")

	if err := smtp.SendMail(s.addr, s.auth, s.from, []string{invitation.ToEmail}, []byte(message)); err != nil {
		s.logger.Warn("invitation mail delivery failed",
			zap.String("to", invitation.ToEmail), zap.Error(err))
		return fmt.Errorf("mail: send invitation: %w", err)
	}
	s.logger.Info("invitation mail sent", zap.String("to", invitation.ToEmail))
	return nil
}
