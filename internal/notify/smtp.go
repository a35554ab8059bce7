package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"go.uber.org/zap"

	"github.com/spigell/resume-scorer/internal/logger"
)

const (
	DefaultSMTPHost = "smtp.gmail.com"
	DefaultSMTPPort = 587

	dialTimeout = 30 * time.Second
)

// SMTPConfig holds the relay settings. From defaults to User.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// SMTP sends plain text mail through a STARTTLS relay.
type SMTP struct {
	cfg    SMTPConfig
	logger *zap.Logger
	now    func() time.Time
}

func NewSMTP(cfg SMTPConfig, log *zap.Logger) *SMTP {
	if cfg.Host == "" {
		cfg.Host = DefaultSMTPHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultSMTPPort
	}
	if cfg.From == "" {
		cfg.From = cfg.User
	}

	return &SMTP{cfg: cfg, logger: logger.OrNop(log), now: time.Now}
}

// Configured reports whether credentials are present.
func (s *SMTP) Configured() bool {
	return s.cfg.User != "" && s.cfg.Password != ""
}

// Send delivers the message. Without credentials nothing is attempted and
// false is returned.
func (s *SMTP) Send(ctx context.Context, to, subject, body string) bool {
	log := s.logger.With(zap.String(logger.FieldEmail, to), zap.String("subject", subject))

	if err := s.send(ctx, to, subject, body); err != nil {
		reportSendError(log, err)
		return false
	}

	log.Info("sent email")
	return true
}

func reportSendError(log *zap.Logger, err error) {
	if errors.Is(err, ErrTransportNotConfigured) {
		log.Warn("smtp credentials not set; skipping send")
		return
	}
	log.Error("sending email failed", zap.Error(err))
}

func (s *SMTP) send(ctx context.Context, to, subject, body string) error {
	if !s.Configured() {
		return ErrTransportNotConfigured
	}

	msg, err := Compose(s.cfg.From, to, subject, body, s.now())
	if err != nil {
		return fmt.Errorf("%w: compose: %v", ErrSend, err)
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	dialer := &net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", ErrSend, addr, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("%w: handshake: %v", ErrSend, err)
	}
	defer c.Close()

	if err := c.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
		return fmt.Errorf("%w: starttls: %v", ErrSend, err)
	}
	if err := c.Auth(smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)); err != nil {
		return fmt.Errorf("%w: auth: %v", ErrSend, err)
	}
	if err := c.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("%w: mail from: %v", ErrSend, err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("%w: rcpt to: %v", ErrSend, err)
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("%w: data: %v", ErrSend, err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("%w: write body: %v", ErrSend, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: close body: %v", ErrSend, err)
	}

	return c.Quit()
}

// Compose renders an RFC 5322 plain text message.
func Compose(from, to, subject, body string, date time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(date)
	h.SetAddressList("From", []*mail.Address{{Address: from}})
	h.SetAddressList("To", []*mail.Address{{Address: to}})
	h.SetSubject(subject)
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generate message id: %w", err)
	}

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(w, normalizeNewlines(body)); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "\r\n")
}
