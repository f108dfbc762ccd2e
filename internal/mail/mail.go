package mail

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/RyanBlaney/magictales/configs"
	"github.com/RyanBlaney/magictales/logging"
	"github.com/go-gomail/gomail"
)

// ResetSubject is the subject line of password reset mails.
const ResetSubject = "MagicTales Password Reset"

// LinkLogFile receives reset links when SMTP is not configured or fails.
const LinkLogFile = "password_reset_links.txt"

// Sender delivers one plain-text message.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPSender sends through an SMTP relay with STARTTLS.
type SMTPSender struct {
	cfg  configs.MailConfig
	send func(m *gomail.Message) error
}

// NewSMTPSender creates a sender for cfg.
func NewSMTPSender(cfg configs.MailConfig) *SMTPSender {
	dialer := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass)
	return &SMTPSender{cfg: cfg, send: func(m *gomail.Message) error { return dialer.DialAndSend(m) }}
}

// Send dials the relay and delivers the message, giving up after the
// configured timeout or when ctx ends.
func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.Sender())
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() { done <- s.send(m) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("smtp send abandoned: %w", ctx.Err())
	}
}

// LinkLog appends "<RFC3339> | <email> | <link>" lines to a file.
type LinkLog struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewLinkLog creates a log at dir/password_reset_links.txt.
func NewLinkLog(dir string) *LinkLog {
	return &LinkLog{path: filepath.Join(dir, LinkLogFile), now: time.Now}
}

// Path returns the log file.
func (l *LinkLog) Path() string {
	return l.path
}

// Append records one link.
func (l *LinkLog) Append(email, link string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open link log: %w", err)
	}

	if _, err := fmt.Fprintf(f, "%s | %s | %s\n", l.now().Format(time.RFC3339), email, link); err != nil {
		f.Close()
		return fmt.Errorf("failed to write link log: %w", err)
	}
	return f.Close()
}

// ResetMailer delivers password reset links by mail, falling back to the link log.
type ResetMailer struct {
	sender Sender
	links  *LinkLog
	logger logging.Logger
}

// NewResetMailer uses SMTP when cfg is complete and always keeps the link log as fallback.
func NewResetMailer(cfg configs.MailConfig, dataDir string) *ResetMailer {
	var sender Sender
	if cfg.Enabled() {
		sender = NewSMTPSender(cfg)
	}
	return NewResetMailerWithSender(sender, NewLinkLog(dataDir))
}

// NewResetMailerWithSender wires an explicit sender; nil means log only.
func NewResetMailerWithSender(sender Sender, links *LinkLog) *ResetMailer {
	return &ResetMailer{
		sender: sender,
		links:  links,
		logger: logging.WithFields(logging.Fields{
			"component": "reset_mailer",
		}),
	}
}

// SendResetLink mails link to email. If mailing is disabled or fails, the link
// is written to the link log instead; only a failure of both is returned.
func (r *ResetMailer) SendResetLink(ctx context.Context, email, link string) error {
	logger := r.logger.WithFields(logging.Fields{
		"function": "SendResetLink",
		"email":    email,
	})

	if r.sender != nil {
		body := "Click the link to reset your password: " + link
		err := r.sender.Send(ctx, email, ResetSubject, body)
		if err == nil {
			logger.Info("Password reset mail sent")
			return nil
		}
		logger.Warn("Password reset mail failed, writing link log", logging.Fields{"error": err.Error()})
	}

	if err := r.links.Append(email, link); err != nil {
		logger.Error(err, "Failed to record password reset link")
		return err
	}

	logger.Info("Password reset link recorded", logging.Fields{"path": r.links.Path()})
	return nil
}
