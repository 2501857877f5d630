// Package mailer composes and delivers alert emails. Delivery goes
// through the local MTA by default, invoked with the envelope sender
// and recipient as arguments; an SMTP relay can be configured instead.
package mailer

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime"
	"os/exec"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"vulnalert/internal/logger"
	"vulnalert/pkg/models"
)

// Config controls delivery and size limits.
type Config struct {
	// Mode is "sendmail" or "smtp".
	Mode         string
	SendmailPath string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	// SMTPStartTLS upgrades the relay connection with STARTTLS before
	// authenticating.
	SMTPStartTLS bool
	FromAddress  string
	// MaxAttachmentSize caps attached report bytes. Zero keeps the
	// default; negative disables the cap.
	MaxAttachmentSize int
	// MaxIncludeSize caps inlined report bytes.
	MaxIncludeSize int
}

const (
	defaultMaxAttachmentSize = 1048576
	defaultMaxIncludeSize    = 20000
)

// Mailer sends composed messages.
type Mailer struct {
	cfg Config
}

// New creates a mailer. Zero-valued limits get defaults.
func New(cfg Config) *Mailer {
	if cfg.Mode == "" {
		cfg.Mode = "sendmail"
	}
	if cfg.SendmailPath == "" {
		cfg.SendmailPath = "/usr/sbin/sendmail"
	}
	if cfg.MaxAttachmentSize == 0 {
		cfg.MaxAttachmentSize = defaultMaxAttachmentSize
	}
	if cfg.MaxIncludeSize == 0 {
		cfg.MaxIncludeSize = defaultMaxIncludeSize
	}
	return &Mailer{cfg: cfg}
}

// MaxAttachmentSize returns the configured attachment cap.
func (m *Mailer) MaxAttachmentSize() int { return m.cfg.MaxAttachmentSize }

// MaxIncludeSize returns the configured inline cap.
func (m *Mailer) MaxIncludeSize() int { return m.cfg.MaxIncludeSize }

// FromAddress returns the configured default sender.
func (m *Mailer) FromAddress() string { return m.cfg.FromAddress }

// Attachment is one base64 part appended to a message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Compose renders the full RFC 822 message. When the recipient
// credential is a PGP or S/MIME credential the plain message body is
// re-wrapped in the matching encryption envelope.
func Compose(from, to, subject, body string, attachment *Attachment, recipient *models.Credential) ([]byte, error) {
	headers := fmt.Sprintf("To: %s\r\nFrom: %s\r\nSubject: %s\r\nDate: %s\r\nMIME-Version: 1.0\r\n",
		to, from, encodeSubject(subject), time.Now().Format(time.RFC1123Z))

	var inner bytes.Buffer
	if attachment == nil {
		inner.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
		inner.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
		inner.WriteString(body)
		inner.WriteString("\r\n")
	} else {
		boundary := multipartBoundary()
		fmt.Fprintf(&inner, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", boundary)
		fmt.Fprintf(&inner, "--%s\r\n", boundary)
		inner.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
		inner.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
		inner.WriteString(body)
		fmt.Fprintf(&inner, "\r\n--%s\r\n", boundary)
		fmt.Fprintf(&inner, "Content-Type: %s\r\n", attachment.ContentType)
		fmt.Fprintf(&inner, "Content-Disposition: attachment; filename=%q\r\n", attachment.Filename)
		inner.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
		writeBase64(&inner, attachment.Content)
		fmt.Fprintf(&inner, "--%s--\r\n", boundary)
	}

	if recipient == nil {
		return append([]byte(headers), inner.Bytes()...), nil
	}

	switch recipient.Type {
	case models.CredentialPGP:
		envelope, err := pgpEnvelope(recipient.PublicKey, inner.Bytes())
		if err != nil {
			return nil, fmt.Errorf("pgp encrypt: %w", err)
		}
		return append([]byte(headers), envelope...), nil
	case models.CredentialSMIME:
		envelope, err := smimeEnvelope(recipient.Certificate, inner.Bytes())
		if err != nil {
			return nil, fmt.Errorf("smime encrypt: %w", err)
		}
		return append([]byte(headers), envelope...), nil
	default:
		return nil, fmt.Errorf("unsupported recipient credential type %q", recipient.Type)
	}
}

// Send composes and delivers one message.
func (m *Mailer) Send(from, to, subject, body string, attachment *Attachment, recipient *models.Credential) error {
	if from == "" {
		from = m.cfg.FromAddress
	}
	message, err := Compose(from, to, subject, body, attachment, recipient)
	if err != nil {
		return err
	}

	switch m.cfg.Mode {
	case "smtp":
		return m.sendSMTP(from, to, message)
	default:
		return m.sendSendmail(from, to, message)
	}
}

func (m *Mailer) sendSendmail(from, to string, message []byte) error {
	cmd := exec.Command(m.cfg.SendmailPath, "-f", from, to)
	cmd.Stdin = bytes.NewReader(message)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("sendmail: %w: %s", err, strings.TrimSpace(string(out)))
	}
	logger.Debugf("Mail to %s handed to %s", to, m.cfg.SendmailPath)
	return nil
}

func (m *Mailer) sendSMTP(from, to string, message []byte) error {
	port := m.cfg.SMTPPort
	if port == 0 {
		port = 587
	}
	addr := fmt.Sprintf("%s:%d", m.cfg.SMTPHost, port)

	var auth sasl.Client
	if m.cfg.SMTPUsername != "" {
		auth = sasl.NewPlainClient("", m.cfg.SMTPUsername, m.cfg.SMTPPassword)
	}

	if m.cfg.SMTPStartTLS {
		// SendMail upgrades with STARTTLS before authenticating.
		if err := smtp.SendMail(addr, auth, from, []string{to}, bytes.NewReader(message)); err != nil {
			return fmt.Errorf("smtp relay %s: %w", addr, err)
		}
		logger.Debugf("Mail to %s relayed via %s (starttls)", to, addr)
		return nil
	}

	c, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("smtp relay %s: %w", addr, err)
	}
	defer c.Close()
	if auth != nil {
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth %s: %w", addr, err)
		}
	}
	if err := c.SendMail(from, []string{to}, bytes.NewReader(message)); err != nil {
		return fmt.Errorf("smtp relay %s: %w", addr, err)
	}
	logger.Debugf("Mail to %s relayed via %s", to, addr)
	return c.Quit()
}

func encodeSubject(subject string) string {
	return mime.QEncoding.Encode("utf-8", subject)
}

func multipartBoundary() string {
	return fmt.Sprintf("=-=-=-%d-=-=-=", time.Now().UnixNano())
}

// writeBase64 emits base64 in 72-character lines.
func writeBase64(b *bytes.Buffer, data []byte) {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 72 {
		b.WriteString(encoded[:72])
		b.WriteString("\r\n")
		encoded = encoded[72:]
	}
	b.WriteString(encoded)
	b.WriteString("\r\n")
}
