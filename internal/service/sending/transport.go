package sending

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/textproto"
	"strings"
	"syscall"
	"time"

	"github.com/ignite/newsletter-engine/internal/domain"
	"github.com/ignite/newsletter-engine/internal/pkg/logger"
)

// Transporter is one physical relay connection carrying one message at a
// time. It is never pooled and never shared between chunks.
type Transporter interface {
	// Verify connects, negotiates TLS and authenticates.
	Verify(ctx context.Context) error
	// Send transmits msg to its envelope recipients.
	Send(ctx context.Context, msg *Message) error
	// Close ends the session and releases the connection.
	Close() error
}

// Dialer instantiates an unverified Transporter for the given settings.
type Dialer interface {
	Dial(ctx context.Context, settings domain.DeliverySettings) (Transporter, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, settings domain.DeliverySettings) (Transporter, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, settings domain.DeliverySettings) (Transporter, error) {
	return f(ctx, settings)
}

const (
	defaultMaxRetries      = 3
	defaultMaxBackoffDelay = 10 * time.Second
	baseBackoffDelay       = time.Second
)

// Manager creates verified transporters and closes them without ever
// surfacing a close error to the caller.
type Manager struct {
	dialer Dialer
	sleep  func(time.Duration)
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithSleep replaces time.Sleep for backoff waits.
func WithSleep(fn func(time.Duration)) ManagerOption {
	return func(m *Manager) { m.sleep = fn }
}

// NewManager creates a transporter manager around dialer.
func NewManager(dialer Dialer, opts ...ManagerOption) *Manager {
	m := &Manager{dialer: dialer, sleep: time.Sleep}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Backoff returns the wait before the attempt following attempt (1-based):
// 1s, 2s, 4s, ... capped at max.
func Backoff(attempt int, max time.Duration) time.Duration {
	if max <= 0 {
		max = defaultMaxBackoffDelay
	}
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 30 {
		return max
	}
	d := baseBackoffDelay * time.Duration(1<<(attempt-1))
	if d > max {
		return max
	}
	return d
}

// CreateAndVerify dials and verifies a transporter, retrying connection-class
// failures up to settings.MaxRetries attempts. It returns nil when the relay
// could not be reached or rejected the session outright.
func (m *Manager) CreateAndVerify(ctx context.Context, settings domain.DeliverySettings) Transporter {
	maxRetries := settings.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	log := logger.With("smtp_host", settings.SMTPHost)

	for attempt := 1; attempt <= maxRetries; attempt++ {
		t, err := m.dialer.Dial(ctx, settings)
		if err == nil {
			if err = t.Verify(ctx); err == nil {
				if attempt > 1 {
					log.Info("smtp connection verified after retry", "attempt", attempt)
				}
				return t
			}
			m.Close(t)
		}

		if !IsConnectionError(err) {
			log.Error("smtp verification failed", "attempt", attempt, "error", err)
			return nil
		}
		if attempt == maxRetries {
			log.Error("smtp connection retries exhausted", "attempts", attempt, "error", err)
			break
		}

		delay := Backoff(attempt, settings.MaxBackoffDelay)
		log.Warn("smtp connection failed, backing off",
			"attempt", attempt, "delay", delay.String(), "error", err)
		m.sleep(delay)
	}
	return nil
}

// Close closes t, logging and swallowing any error. A nil t is ignored.
func (m *Manager) Close(t Transporter) {
	if t == nil {
		return
	}
	if err := t.Close(); err != nil {
		logger.Warn("smtp close failed", "error", err)
	}
}

var connectionMarkers = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"timeout",
	"timed out",
	"too many connections",
	"econnrefused",
	"econnreset",
	"etimedout",
	"esocket",
	"econnection",
}

// IsConnectionError reports whether err is a transient failure to reach or
// keep a relay session: refusal, reset, timeouts (including greeting and TLS
// handshake timeouts), a dropped or garbled session, and 421
// service-unavailable replies. Text markers are matched against the root
// cause only, never against the wrapping context.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return true
	}
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) && protoErr.Code == 421 {
		return true
	}

	msg := strings.ToLower(rootCause(err).Error())
	for _, marker := range connectionMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func rootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}
