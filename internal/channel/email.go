package channel

import (
	"context"
	"fmt"
	"html"
	"mime"
	"net"
	"net/smtp"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"alertrelay.io/relay/internal/config"
	"alertrelay.io/relay/internal/pkg/logger"
)

// SMTP sends HTML mail over a plain SMTP session. net/smtp carries no
// context support, so cancellation is approximated with a connection
// deadline covering the whole exchange.
type SMTP struct {
	cfg config.SMTPConfig
}

// NewSMTP creates an email sender from the SMTP configuration.
func NewSMTP(cfg config.SMTPConfig) *SMTP {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SMTP{cfg: cfg}
}

var _ EmailSender = (*SMTP)(nil)

func (s *SMTP) Send(ctx context.Context, to, subject, htmlBody string) error {
	deadline := time.Now().Add(s.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	dialer := net.Dialer{Deadline: deadline}
	conn, err := dialer.DialContext(ctx, "tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("dial smtp %s: %w", s.cfg.Addr(), err)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return fmt.Errorf("set smtp deadline: %w", err)
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(nil); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if s.cfg.User != "" {
		auth := smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(s.cfg.User); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt %s: %w", to, err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(s.message(to, subject, htmlBody)); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close data: %w", err)
	}
	if err := client.Quit(); err != nil {
		logger.Debug("smtp quit failed", zap.Error(err))
	}

	return nil
}

func (s *SMTP) message(to, subject, htmlBody string) []byte {
	from := s.cfg.User
	if s.cfg.SenderName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", s.cfg.SenderName), s.cfg.User)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(htmlBody)
	b.WriteString("\r\n")
	return []byte(b.String())
}

// RenderEmailBody wraps the notification body with the action footer.
// The three links carry the notification's action token; every resend
// renders the same token, so old emails stay actionable.
func RenderEmailBody(baseURL, id, token, subject, body string) string {
	var b strings.Builder
	b.WriteString("<html><body style=\"font-family: Arial, sans-serif;\">")
	fmt.Fprintf(&b, "<h2>%s</h2>", html.EscapeString(subject))
	fmt.Fprintf(&b, "<div style=\"white-space: pre-wrap;\">%s</div>", html.EscapeString(body))

	if token != "" {
		b.WriteString("<hr>")
		b.WriteString("<p>")
		writeActionButton(&b, baseURL, id, token, "received", "#2e7d32", "Mark as received")
		writeActionButton(&b, baseURL, id, token, "resolved", "#1565c0", "Mark as resolved")
		writeActionButton(&b, baseURL, id, token, "cancel", "#c62828", "Cancel notification")
		b.WriteString("</p>")
		b.WriteString("<p style=\"color: #888; font-size: 12px;\">Action links expire automatically.</p>")
	}

	b.WriteString("</body></html>")
	return b.String()
}

func writeActionButton(b *strings.Builder, baseURL, id, token, action, color, label string) {
	link := fmt.Sprintf("%s/notifications/%s/%s?token=%s",
		strings.TrimRight(baseURL, "/"), url.PathEscape(id), action, url.QueryEscape(token))
	fmt.Fprintf(b,
		"<a href=\"%s\" style=\"display: inline-block; padding: 10px 16px; margin-right: 8px; background: %s; color: #fff; text-decoration: none; border-radius: 4px;\">%s</a>",
		link, color, label)
}
