package sending

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/ignite/newsletter-engine/internal/domain"
)

// SMTPDialer opens relay sessions with net/smtp. The zero value is ready to use.
type SMTPDialer struct {
	// HelloName is announced in EHLO. Defaults to "localhost".
	HelloName string
	// InsecureSkipVerify disables certificate checks for private relays.
	InsecureSkipVerify bool
}

// Dial returns an unconnected transporter; the network work happens in Verify.
func (d SMTPDialer) Dial(_ context.Context, s domain.DeliverySettings) (Transporter, error) {
	if s.SMTPHost == "" {
		return nil, fmt.Errorf("smtp host not configured")
	}
	port := s.SMTPPort
	if port == 0 {
		port = 587
		if s.SMTPSecure {
			port = 465
		}
	}
	hello := d.HelloName
	if hello == "" {
		hello = "localhost"
	}
	return &smtpTransport{
		settings: s,
		addr:     net.JoinHostPort(s.SMTPHost, strconv.Itoa(port)),
		hello:    hello,
		tlsConfig: &tls.Config{
			ServerName:         s.SMTPHost,
			InsecureSkipVerify: d.InsecureSkipVerify,
		},
	}, nil
}

type smtpTransport struct {
	settings  domain.DeliverySettings
	addr      string
	hello     string
	tlsConfig *tls.Config

	conn   net.Conn
	client *smtp.Client
}

func (t *smtpTransport) Verify(ctx context.Context) error {
	if t.client != nil {
		return t.client.Noop()
	}
	return t.connect(ctx)
}

func (t *smtpTransport) connect(ctx context.Context) error {
	dialer := &net.Dialer{Timeout: orDefault(t.settings.ConnectionTimeout, 10*time.Second)}

	var (
		conn net.Conn
		err  error
	)
	if t.settings.SMTPSecure {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: t.tlsConfig}).DialContext(ctx, "tcp", t.addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", t.addr)
	}
	if err != nil {
		return fmt.Errorf("smtp connect to %s: %w", t.addr, err)
	}

	// NewClient blocks on the 220 greeting.
	conn.SetDeadline(time.Now().Add(orDefault(t.settings.GreetingTimeout, 10*time.Second)))
	c, err := smtp.NewClient(conn, t.settings.SMTPHost)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp greeting: %w", err)
	}
	conn.SetDeadline(time.Now().Add(orDefault(t.settings.SocketTimeout, 30*time.Second)))

	if err := c.Hello(t.hello); err != nil {
		c.Close()
		return fmt.Errorf("smtp ehlo: %w", err)
	}
	if !t.settings.SMTPSecure {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(t.tlsConfig); err != nil {
				c.Close()
				return fmt.Errorf("smtp starttls handshake: %w", err)
			}
		}
	}
	if t.settings.SMTPUser != "" {
		if err := c.Auth(&plainAuth{user: t.settings.SMTPUser, pass: t.settings.SMTPPassword}); err != nil {
			c.Close()
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	t.conn = conn
	t.client = c
	return nil
}

func (t *smtpTransport) Send(ctx context.Context, msg *Message) error {
	if t.client == nil {
		if err := t.connect(ctx); err != nil {
			return err
		}
	}
	t.conn.SetDeadline(time.Now().Add(orDefault(t.settings.SocketTimeout, 30*time.Second)))

	body, err := msg.Bytes(time.Now())
	if err != nil {
		return err
	}
	if err := t.client.Mail(msg.FromEmail); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	for _, rcpt := range msg.Envelope() {
		if err := t.client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("RCPT TO: %w", err)
		}
	}
	w, err := t.client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("DATA close: %w", err)
	}
	return nil
}

func (t *smtpTransport) Close() error {
	if t.client == nil {
		return nil
	}
	c := t.client
	t.client, t.conn = nil, nil
	if err := c.Quit(); err != nil {
		c.Close()
		return fmt.Errorf("smtp quit: %w", err)
	}
	return nil
}

// plainAuth implements smtp.Auth without the TLS requirement that
// smtp.PlainAuth enforces; relays on private networks often skip TLS.
type plainAuth struct {
	user, pass string
}

func (a *plainAuth) Start(_ *smtp.ServerInfo) (string, []byte, error) {
	return "PLAIN", []byte("\x00" + a.user + "\x00" + a.pass), nil
}

func (a *plainAuth) Next(_ []byte, more bool) ([]byte, error) {
	if more {
		return nil, fmt.Errorf("unexpected server challenge")
	}
	return nil, nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}
