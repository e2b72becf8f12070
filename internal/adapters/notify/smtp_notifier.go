package notify

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"github.com/mikey/guild-sentinel/internal/core"
)

// SMTPNotifier mails moderation notifications to operators
type SMTPNotifier struct {
	addr     string
	username string
	password string
	from     string
	to       []string
	logger   *zap.Logger
}

var _ core.Notifier = (*SMTPNotifier)(nil)

// NewSMTPNotifier creates a new SMTP notifier
func NewSMTPNotifier(addr, username, password, from string, to []string, logger *zap.Logger) (*SMTPNotifier, error) {
	if len(to) == 0 {
		return nil, fmt.Errorf("smtp notifier needs at least one recipient")
	}
	return &SMTPNotifier{
		addr:     addr,
		username: username,
		password: password,
		from:     from,
		to:       to,
		logger:   logger,
	}, nil
}

// Notify sends the notification as a plain text mail
func (n *SMTPNotifier) Notify(ctx context.Context, guildID, channelID string, note core.Notification) error {
	return n.send(ctx, FormatMessage(n.from, n.to, guildID, note))
}

// FormatMessage renders a notification as an RFC 5322 message
func FormatMessage(from string, to []string, guildID string, note core.Notification) []byte {
	ts := note.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&buf, "Subject: [guild %s] %s\r\n", guildID, sanitizeHeader(note.Title))
	fmt.Fprintf(&buf, "Date: %s\r\n", ts.Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(strings.ReplaceAll(note.Description, "\n", "\r\n"))
	buf.WriteString("\r\n")
	if note.Footer != "" {
		buf.WriteString("\r\n-- \r\n")
		buf.WriteString(note.Footer)
		buf.WriteString("\r\n")
	}
	return buf.Bytes()
}

func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}

func (n *SMTPNotifier) send(ctx context.Context, msg []byte) error {
	// Get hostname for EHLO
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	// Connect to the server with a timeout
	dialer := net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", n.addr)
	if err != nil {
		return fmt.Errorf("failed to connect to mail server: %w", err)
	}

	// Set a deadline for the connection
	if err := conn.SetDeadline(time.Now().Add(30 * time.Second)); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set connection deadline: %w", err)
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello(hostname); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}

	if n.username != "" {
		if err := c.Auth(sasl.NewPlainClient("", n.username, n.password)); err != nil {
			return fmt.Errorf("AUTH failed: %w", err)
		}
	}

	if err := c.Mail(n.from, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}

	// Continue with other recipients even if one fails
	recipientOK := false
	for _, recipient := range n.to {
		if err := c.Rcpt(recipient, nil); err != nil {
			n.logger.Warn("RCPT TO failed for recipient",
				zap.String("recipient", recipient),
				zap.Error(err))
		} else {
			recipientOK = true
		}
	}
	if !recipientOK {
		return fmt.Errorf("all recipients were rejected")
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}
	if _, err := wc.Write(msg); err != nil {
		wc.Close()
		return fmt.Errorf("failed to send mail data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	// The mail is already accepted at this point
	if err := c.Quit(); err != nil {
		n.logger.Warn("QUIT command failed", zap.Error(err))
	}
	return nil
}
