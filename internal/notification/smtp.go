package notification

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/spec-kit/pqrs-service/internal/domain"
)

// ErrNoRecipient is returned when a mail notification has no address.
var ErrNoRecipient = errors.New("notification has no recipient")

// defaultSMTPTimeout bounds a whole SMTP exchange when the caller's context has no deadline.
const defaultSMTPTimeout = 30 * time.Second

type transmitFunc func(ctx context.Context, to string, msg []byte) error

// SMTPSender mails notifications through an SMTP relay.
type SMTPSender struct {
	addr     string
	host     string
	from     string
	auth     smtp.Auth
	timeout  time.Duration
	transmit transmitFunc
}

// NewSMTPSender creates a sender for host:port. Credentials are optional.
func NewSMTPSender(host string, port int, user, password, from string) *SMTPSender {
	s := &SMTPSender{
		addr:    net.JoinHostPort(host, strconv.Itoa(port)),
		host:    host,
		from:    from,
		timeout: defaultSMTPTimeout,
	}
	if user != "" {
		s.auth = smtp.PlainAuth("", user, password, host)
	}
	s.transmit = s.dialAndSend
	return s
}

// Send delivers the notification as a plain text mail.
func (s *SMTPSender) Send(ctx context.Context, n domain.Notification) error {
	if strings.TrimSpace(n.Recipient) == "" {
		return ErrNoRecipient
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := buildMessage(s.from, n, time.Now())
	if err := s.transmit(ctx, n.Recipient, msg); err != nil {
		if ctxErr := contextErr(ctx); ctxErr != nil {
			return fmt.Errorf("smtp send to %s: %w", n.Recipient, errors.Join(ctxErr, err))
		}
		return fmt.Errorf("smtp send to %s: %w", n.Recipient, err)
	}
	return nil
}

// contextErr also reports a deadline that passed before ctx noticed it, since the connection
// deadline and the context timer fire independently.
func contextErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d, ok := ctx.Deadline(); ok && !time.Now().Before(d) {
		return context.DeadlineExceeded
	}
	return nil
}

// dialAndSend runs one SMTP exchange. The connection deadline follows ctx, and the
// connection is closed as soon as ctx is cancelled.
func (s *SMTPSender) dialAndSend(ctx context.Context, to string, msg []byte) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return err
	}
	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return err
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c, err := smtp.NewClient(conn, s.host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: s.host}); err != nil {
			return err
		}
	}
	if s.auth != nil {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(s.auth); err != nil {
				return err
			}
		}
	}
	if err := c.Mail(s.from); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func buildMessage(from string, n domain.Notification, now time.Time) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", n.Recipient)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", sanitizeHeader(n.Subject)))
	fmt.Fprintf(&b, "Date: %s\r\n", now.UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(n.Body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return b.Bytes()
}

func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}
