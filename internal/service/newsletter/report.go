package newsletter

import (
	"time"

	"github.com/ignite/newsletter-engine/internal/domain"
)

// Report summarizes a finished (or interrupted) dispatch.
type Report struct {
	NewsletterID string                  `json:"newsletter_id"`
	Subject      string                  `json:"subject"`
	Status       domain.NewsletterStatus `json:"status"`
	Recipients   int                     `json:"recipients"`
	Sent         int                     `json:"sent"`
	Failed       int                     `json:"failed"`
	SuccessRate  float64                 `json:"success_rate"`
	FailedEmails []string                `json:"failed_emails,omitempty"`
	Waves        int                     `json:"waves"`
	FinishedAt   time.Time               `json:"finished_at"`
}

func buildReport(id, subject string, recipients int, state domain.NewsletterState, p domain.Progress, now time.Time) *Report {
	r := &Report{
		NewsletterID: id,
		Subject:      subject,
		Status:       state.Status(),
		Recipients:   recipients,
		Waves:        1,
		FinishedAt:   now,
	}
	if p.Retry != nil {
		r.Waves += len(p.Retry.Stages)
	}

	switch s := state.(type) {
	case domain.Failed:
		r.FailedEmails = s.FailedEmails
	case domain.Retrying:
		r.FailedEmails = s.FailedEmails
	case domain.Sending:
		r.FailedEmails = CollectFailed(p.Initial.ChunkResults)
	}

	r.Failed = len(r.FailedEmails)
	r.Sent = recipients - r.Failed
	if r.Sent < 0 {
		r.Sent = 0
	}
	if recipients > 0 {
		r.SuccessRate = float64(r.Sent) / float64(recipients) * 100
	}
	return r
}
