package notify

import (
	"bytes"
	"context"
	"fmt"

	"github.com/wneessen/go-mail"

	"github.com/Shivanand-hulikatti/campus-events/internal/config"
	"github.com/Shivanand-hulikatti/campus-events/internal/logger"
)

// Mailer delivers a message or reports why it could not.
type Mailer interface {
	Send(ctx context.Context, msg *Message) error
}

// NewMailer returns an SMTP mailer when credentials are configured and a
// logging mailer otherwise.
func NewMailer(cfg config.SMTPConfig, l logger.Logger) Mailer {
	if !cfg.Enabled() {
		l.Warn("SMTP credentials missing (SMTP_USER/SMTP_PASS), emails will only be logged")
		return LogMailer{Logger: l}
	}
	return NewSMTPMailer(cfg)
}

type SMTPMailer struct {
	cfg config.SMTPConfig
}

func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) Send(ctx context.Context, msg *Message) error {
	out, err := m.build(msg)
	if err != nil {
		return err
	}

	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.cfg.User),
		mail.WithPassword(m.cfg.Password),
		mail.WithTimeout(m.cfg.Timeout),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
	}
	if m.cfg.Port == 465 {
		opts = append(opts, mail.WithSSLPort(false))
	}

	client, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, out); err != nil {
		return fmt.Errorf("send mail to %s: %w", msg.To, err)
	}
	return nil
}

func (m *SMTPMailer) build(msg *Message) (*mail.Msg, error) {
	out := mail.NewMsg()
	if err := out.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", m.cfg.From, err)
	}
	if err := out.To(msg.To); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", msg.To, err)
	}
	out.Subject(msg.Subject)
	out.SetBodyString(mail.TypeTextHTML, msg.HTML)
	if msg.Text != "" {
		out.AddAlternativeString(mail.TypeTextPlain, msg.Text)
	}

	for _, a := range msg.Attachments {
		fileOpts := []mail.FileOption{mail.WithFileContentType(mail.ContentType(a.ContentType))}
		var err error
		if a.Inline {
			fileOpts = append(fileOpts, mail.WithFileContentID(a.ContentID))
			err = out.EmbedReader(a.Filename, bytes.NewReader(a.Data), fileOpts...)
		} else {
			err = out.AttachReader(a.Filename, bytes.NewReader(a.Data), fileOpts...)
		}
		if err != nil {
			return nil, fmt.Errorf("attach %s: %w", a.Filename, err)
		}
	}
	return out, nil
}

// LogMailer records messages in the log instead of sending them.
type LogMailer struct {
	Logger logger.Logger
}

func (m LogMailer) Send(_ context.Context, msg *Message) error {
	m.Logger.Info("mock email",
		"to", msg.To,
		"subject", msg.Subject,
		"attachments", len(msg.Attachments),
	)
	return nil
}
