// Package mailer delivers reports over authenticated, encrypted SMTP.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"time"

	applog "budgetreport/internal/log"

	"github.com/wneessen/go-mail"
)

// TLS modes, mirroring the configuration values.
const (
	TLSStartTLS = "starttls"
	TLSImplicit = "tls"
)

// Reasons carried by MailError.
const (
	ReasonConfig  = "config"
	ReasonMessage = "message"
	ReasonConnect = "connect"
	ReasonSend    = "send"
)

// MailError reports a failure to build, connect or deliver.
type MailError struct {
	Op     string
	Reason string
	Err    error
}

func (e *MailError) Error() string {
	return fmt.Sprintf("mail %s (%s): %v", e.Op, e.Reason, e.Err)
}

func (e *MailError) Unwrap() error { return e.Err }

func (e *MailError) ErrorType() string { return applog.ErrorTypeMail }

type Options struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	FromName   string
	Recipients []string
	TLS        string
	Timeout    time.Duration
	Logger     *applog.Logger
}

// smtpClient is the part of *mail.Client the mailer uses.
type smtpClient interface {
	DialAndSendWithContext(ctx context.Context, msgs ...*mail.Msg) error
	DialWithContext(ctx context.Context) error
	Close() error
}

type Mailer struct {
	opts      Options
	logger    *applog.Logger
	newClient func(Options) (smtpClient, error)
	now       func() time.Time
}

func New(opts Options) *Mailer {
	logger := opts.Logger
	if logger == nil {
		logger = applog.Discard()
	}
	if opts.From == "" {
		opts.From = opts.Username
	}
	return &Mailer{
		opts:      opts,
		logger:    logger.WithComponent(applog.ComponentMailer),
		newClient: dialer,
		now:       time.Now,
	}
}

func dialer(opts Options) (smtpClient, error) {
	clientOpts := []mail.Option{
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(opts.Username),
		mail.WithPassword(opts.Password),
	}
	switch opts.TLS {
	case TLSImplicit:
		clientOpts = append(clientOpts, mail.WithSSL())
	case TLSStartTLS, "":
		clientOpts = append(clientOpts, mail.WithTLSPolicy(mail.TLSMandatory))
	default:
		return nil, fmt.Errorf("unknown TLS mode %q", opts.TLS)
	}
	if opts.Timeout > 0 {
		clientOpts = append(clientOpts, mail.WithTimeout(opts.Timeout))
	}
	// Port last so the TLS options cannot reset it.
	if opts.Port > 0 {
		clientOpts = append(clientOpts, mail.WithPort(opts.Port))
	}
	return mail.NewClient(opts.Host, clientOpts...)
}

// Send delivers one HTML message addressed to every recipient.
func (m *Mailer) Send(ctx context.Context, subject, htmlBody string) error {
	return m.send(ctx, subject, mail.TypeTextHTML, htmlBody)
}

// SendPlain delivers a plain-text message, used for failure notices.
func (m *Mailer) SendPlain(ctx context.Context, subject, text string) error {
	return m.send(ctx, subject, mail.TypeTextPlain, text)
}

func (m *Mailer) send(ctx context.Context, subject string, ct mail.ContentType, body string) error {
	msg, err := m.buildMessage(subject, ct, body)
	if err != nil {
		return &MailError{Op: applog.OpSend, Reason: ReasonMessage, Err: err}
	}

	client, err := m.newClient(m.opts)
	if err != nil {
		return &MailError{Op: applog.OpSend, Reason: ReasonConfig, Err: err}
	}

	start := time.Now()
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return &MailError{Op: applog.OpSend, Reason: sendReason(err), Err: err}
	}

	m.logger.InfoContext(ctx, "Email sent",
		applog.FieldRecipients, len(m.opts.Recipients),
		"subject", subject,
		applog.FieldDuration, time.Since(start).Milliseconds())
	return nil
}

// TestConnection dials, negotiates TLS and authenticates without sending.
func (m *Mailer) TestConnection(ctx context.Context) error {
	client, err := m.newClient(m.opts)
	if err != nil {
		return &MailError{Op: applog.OpTestSMTP, Reason: ReasonConfig, Err: err}
	}
	if err := client.DialWithContext(ctx); err != nil {
		return &MailError{Op: applog.OpTestSMTP, Reason: ReasonConnect, Err: err}
	}
	if err := client.Close(); err != nil {
		m.logger.WarnContext(ctx, "Closing SMTP connection failed", applog.FieldError, err.Error())
	}

	m.logger.InfoContext(ctx, "SMTP connection test succeeded",
		"host", m.opts.Host,
		"port", m.opts.Port,
		"tls", m.opts.TLS)
	return nil
}

func (m *Mailer) buildMessage(subject string, ct mail.ContentType, body string) (*mail.Msg, error) {
	if len(m.opts.Recipients) == 0 {
		return nil, errors.New("no recipients")
	}

	msg := mail.NewMsg()
	if m.opts.FromName != "" {
		if err := msg.FromFormat(m.opts.FromName, m.opts.From); err != nil {
			return nil, fmt.Errorf("from address: %w", err)
		}
	} else if err := msg.From(m.opts.From); err != nil {
		return nil, fmt.Errorf("from address: %w", err)
	}
	if err := msg.To(m.opts.Recipients...); err != nil {
		return nil, fmt.Errorf("recipient addresses: %w", err)
	}
	msg.Subject(subject)
	msg.SetDateWithValue(m.now())
	msg.SetBodyString(ct, body)
	return msg, nil
}

func sendReason(err error) string {
	var sendErr *mail.SendError
	if errors.As(err, &sendErr) {
		return ReasonSend
	}
	return ReasonConnect
}
