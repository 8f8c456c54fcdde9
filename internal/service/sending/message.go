package sending

import (
	"bytes"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message is one outbound email. Bcc addresses travel in the envelope only;
// they are never written into the headers.
type Message struct {
	FromEmail string
	FromName  string
	To        string
	Bcc       []string
	ReplyTo   string
	Subject   string
	HTML      string
}

// Envelope returns the RCPT TO list: the Bcc set in BCC mode, otherwise To.
func (m *Message) Envelope() []string {
	if len(m.Bcc) > 0 {
		return m.Bcc
	}
	return []string{m.To}
}

// Bytes renders the message as an RFC 5322 document with a quoted-printable
// HTML body.
func (m *Message) Bytes(now time.Time) ([]byte, error) {
	from := (&mail.Address{Name: m.FromName, Address: m.FromEmail}).String()

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", m.To)
	if m.ReplyTo != "" {
		fmt.Fprintf(&buf, "Reply-To: %s\r\n", m.ReplyTo)
	}
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", m.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", now.Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "Message-ID: <%s@%s>\r\n", uuid.New().String(), messageIDDomain(m.FromEmail))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	buf.WriteString("Content-Transfer-Encoding: quoted-printable\r\n")
	buf.WriteString("\r\n")

	qp := quotedprintable.NewWriter(&buf)
	if _, err := qp.Write([]byte(m.HTML)); err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	if err := qp.Close(); err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	buf.WriteString("\r\n")
	return buf.Bytes(), nil
}

func messageIDDomain(from string) string {
	if i := strings.LastIndex(from, "@"); i >= 0 && i < len(from)-1 {
		return from[i+1:]
	}
	return "localhost"
}
