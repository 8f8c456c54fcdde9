package sending

import (
	"context"
	"strings"
	"time"

	"github.com/ignite/newsletter-engine/internal/domain"
	"github.com/ignite/newsletter-engine/internal/pkg/logger"
)

// DefaultSubjectDateFormat renders {date} as day.month.year.
const DefaultSubjectDateFormat = "02.01.2006"

// ChunkRequest is one chunk of a newsletter send.
type ChunkRequest struct {
	NewsletterID string
	Recipients   []string
	HTML         string
	Subject      string
	Settings     domain.DeliverySettings
}

// Outcome is the delivery result of the valid addresses of a chunk.
type Outcome struct {
	Results     []domain.EmailSendResult
	SentCount   int
	FailedCount int
}

func newOutcome(results []domain.EmailSendResult) Outcome {
	cr := domain.NewChunkResult(results, time.Time{})
	return Outcome{Results: cr.Results, SentCount: cr.SentCount, FailedCount: cr.FailedCount}
}

// ChunkSender delivers already-validated addresses over a verified transporter.
type ChunkSender struct {
	manager *Manager
	now     func() time.Time
}

// NewChunkSender creates a sender that uses manager for connection recovery.
func NewChunkSender(manager *Manager) *ChunkSender {
	return &ChunkSender{manager: manager, now: time.Now}
}

// RenderSubject substitutes every {date} token with now in layout.
func RenderSubject(template string, now time.Time, layout string) string {
	if layout == "" {
		layout = DefaultSubjectDateFormat
	}
	return strings.ReplaceAll(template, "{date}", now.Format(layout))
}

// Send delivers req.Recipients through t. More than one recipient goes out as
// a single BCC message addressed to the sender; a lone recipient is sent
// individually. A BCC connection failure gets exactly one retry on a fresh
// transporter. The returned transporter is the one still open, which may
// differ from t or be nil; the caller owns closing it.
func (s *ChunkSender) Send(ctx context.Context, t Transporter, req ChunkRequest) (Outcome, Transporter) {
	recipients := req.Recipients
	if len(recipients) == 0 {
		return Outcome{}, t
	}

	st := req.Settings
	subject := req.Subject
	if subject == "" {
		subject = st.SubjectTemplate
	}
	msg := &Message{
		FromEmail: st.FromEmail,
		FromName:  st.FromName,
		ReplyTo:   st.ReplyToEmail,
		Subject:   RenderSubject(subject, s.now(), st.SubjectDateFormat),
		HTML:      req.HTML,
	}

	if len(recipients) == 1 {
		msg.To = recipients[0]
		if err := t.Send(ctx, msg); err != nil {
			return newOutcome([]domain.EmailSendResult{domain.Rejected(recipients[0], err.Error())}), t
		}
		return newOutcome([]domain.EmailSendResult{domain.Delivered(recipients[0])}), t
	}

	msg.To = st.FromEmail
	msg.Bcc = recipients

	err := t.Send(ctx, msg)
	if err != nil && IsConnectionError(err) {
		log := logger.With("newsletter_id", req.NewsletterID, "recipients", len(recipients))
		log.Warn("bcc send lost its connection, recreating transporter", "error", err)
		s.manager.Close(t)
		t = s.manager.CreateAndVerify(ctx, st)
		if t != nil {
			err = t.Send(ctx, msg)
		}
	}
	return newOutcome(uniform(recipients, err)), t
}

// uniform marks every recipient with the same result, since a BCC envelope
// carries no per-recipient confirmation.
func uniform(recipients []string, err error) []domain.EmailSendResult {
	results := make([]domain.EmailSendResult, len(recipients))
	for i, r := range recipients {
		if err != nil {
			results[i] = domain.Rejected(r, err.Error())
		} else {
			results[i] = domain.Delivered(r)
		}
	}
	return results
}
